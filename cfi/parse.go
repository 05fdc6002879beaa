package cfi

import (
	"errors"
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// Grammar for locator body (text between "epubcfi(" and ")").

type cfiBody struct {
	Parent *cfiPath `@@`
	Start  *cfiPath `( "," @@`
	End    *cfiPath `  "," @@ )?`
}

type cfiPath struct {
	Steps  []*cfiStep `@@*`
	Offset *cfiOffset `@@?`
}

type cfiStep struct {
	Indirect  bool   `( @"!" )?`
	Index     int    `"/" @Int`
	Assertion string `( @Assertion )?`
}

type cfiOffset struct {
	Value     int    `":" @Int`
	Assertion string `( @Assertion )?`
}

var cfiLexer = lexer.MustSimple([]lexer.SimpleRule{
	// bracketed assertion, "^" escapes next character
	{Name: "Assertion", Pattern: `\[(?:\^.|[^\]\^])*\]`},
	{Name: "Int", Pattern: `\d+`},
	{Name: "Punct", Pattern: `[/!:,]`},
})

var cfiParser = participle.MustBuild[cfiBody](
	participle.Lexer(cfiLexer),
)

// Parse decodes locator from its string form. Both wrapped ("epubcfi(...)")
// and bare forms are accepted.
func Parse(in string) (Locator, error) {
	body := strings.TrimSpace(in)
	if rest, ok := strings.CutPrefix(body, prefix); ok {
		var found bool
		if body, found = strings.CutSuffix(rest, ")"); !found {
			return Locator{}, fmt.Errorf("%w: %q: missing closing parenthesis", ErrMalformed, in)
		}
	}
	if len(body) == 0 {
		return Locator{}, fmt.Errorf("%w: %q: empty", ErrMalformed, in)
	}

	parsed, err := cfiParser.ParseString("", body)
	if err != nil {
		return Locator{}, fmt.Errorf("%w: %q: %v", ErrMalformed, in, err)
	}
	if parsed.Parent == nil {
		return Locator{}, fmt.Errorf("%w: %q: no path", ErrMalformed, in)
	}

	var l Locator
	indirect := -1
	for i, s := range parsed.Parent.Steps {
		if !s.Indirect {
			continue
		}
		if indirect >= 0 {
			return Locator{}, fmt.Errorf("%w: %q: nested indirection is not supported", ErrMalformed, in)
		}
		indirect = i
	}
	steps := convertSteps(parsed.Parent.Steps)
	if indirect < 0 {
		l.Base = steps
	} else {
		l.Base = cloneSteps(steps[:indirect])
		l.Path.Steps = cloneSteps(steps[indirect:])
	}
	l.Path.Terminal = convertOffset(parsed.Parent.Offset)

	if parsed.Start != nil || parsed.End != nil {
		if parsed.Start == nil || parsed.End == nil {
			return Locator{}, fmt.Errorf("%w: %q: incomplete range", ErrMalformed, in)
		}
		if l.Path.Terminal != nil {
			return Locator{}, fmt.Errorf("%w: %q: range parent cannot have offset", ErrMalformed, in)
		}
		var err error
		if l.Start, err = convertLocal(parsed.Start); err != nil {
			return Locator{}, fmt.Errorf("%w: %q: range start: %v", ErrMalformed, in, err)
		}
		if l.End, err = convertLocal(parsed.End); err != nil {
			return Locator{}, fmt.Errorf("%w: %q: range end: %v", ErrMalformed, in, err)
		}
		l.Range = true
	}

	if l.IsZero() {
		return Locator{}, fmt.Errorf("%w: %q: no path", ErrMalformed, in)
	}
	return l, nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// constants.
func MustParse(in string) Locator {
	l, err := Parse(in)
	if err != nil {
		panic(err)
	}
	return l
}

func convertSteps(in []*cfiStep) []Step {
	if len(in) == 0 {
		return nil
	}
	out := make([]Step, 0, len(in))
	for _, s := range in {
		out = append(out, Step{Index: s.Index, Assertion: trimBrackets(s.Assertion)})
	}
	return out
}

func convertOffset(in *cfiOffset) *Terminal {
	if in == nil {
		return nil
	}
	return &Terminal{Offset: in.Value, Assertion: trimBrackets(in.Assertion)}
}

func convertLocal(in *cfiPath) (Path, error) {
	for _, s := range in.Steps {
		if s.Indirect {
			return Path{}, errors.New("indirection inside range")
		}
	}
	p := Path{Steps: convertSteps(in.Steps), Terminal: convertOffset(in.Offset)}
	if p.empty() {
		return Path{}, errors.New("empty local path")
	}
	return p, nil
}

func trimBrackets(s string) string {
	if len(s) >= 2 && s[0] == '[' && s[len(s)-1] == ']' {
		return s[1 : len(s)-1]
	}
	return s
}
