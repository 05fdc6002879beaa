// Package cfi implements canonical fragment locators - hierarchical, totally
// ordered addresses into the content documents of a book.
//
// Locator string form follows EPUB CFI conventions:
//
//	epubcfi(/6/4[chap01ref]!/4[body01]/10[para05]/3:10)
//	epubcfi(/6/4[chap01ref]!/4[body01]/10[para05],/2/1:1,/3:4)
//
// Only a single indirection step and character offsets are supported.
package cfi

import (
	"errors"
	"slices"
	"strconv"
	"strings"
)

var (
	// ErrMalformed is returned when address cannot be decomposed into a valid
	// hierarchical path.
	ErrMalformed = errors.New("malformed address")
	// ErrNotFound is returned when address does not point to anything in the
	// document it is resolved against.
	ErrNotFound = errors.New("address does not resolve")
)

const prefix = "epubcfi("

// Step is a single "/N[assertion]" hop. Even indexes address elements, odd
// indexes address text chunks between elements.
type Step struct {
	Index int
	// Assertion keeps raw (escaped) text between brackets, usually element id.
	Assertion string
}

// ID returns unescaped id part of step assertion.
func (s Step) ID() string {
	id, _, _ := strings.Cut(s.Assertion, ";")
	return unescape(id)
}

// Terminal is a character offset into the text chunk addressed by the last
// step.
type Terminal struct {
	Offset    int
	Assertion string
}

type Path struct {
	Steps    []Step
	Terminal *Terminal
}

func (p Path) empty() bool {
	return len(p.Steps) == 0 && p.Terminal == nil
}

func (p Path) clone() Path {
	out := Path{Steps: cloneSteps(p.Steps)}
	if p.Terminal != nil {
		t := *p.Terminal
		out.Terminal = &t
	}
	return out
}

// Locator is an immutable address. Base holds package document steps leading
// to the spine itemref (everything before "!"), Path holds steps inside the
// content document. For ranges Path is the common parent and Start/End are
// relative to it.
type Locator struct {
	Base  []Step
	Path  Path
	Range bool
	Start Path
	End   Path
}

// IsZero reports whether locator is empty (never parsed or constructed).
func (l Locator) IsZero() bool {
	return len(l.Base) == 0 && l.Path.empty() && !l.Range
}

// SpineIndex returns zero based index of spine item locator points into, or
// -1 when base does not reference spine item.
func (l Locator) SpineIndex() int {
	if len(l.Base) < 2 {
		return -1
	}
	return l.Base[1].Index/2 - 1
}

// Collapse reduces range to its start or end point. Points are returned as is.
func (l Locator) Collapse(toStart bool) Locator {
	if !l.Range {
		return l
	}
	local := l.End
	if toStart {
		local = l.Start
	}
	out := Locator{Base: cloneSteps(l.Base)}
	out.Path.Steps = append(cloneSteps(l.Path.Steps), local.Steps...)
	if local.Terminal != nil {
		t := *local.Terminal
		out.Path.Terminal = &t
	}
	return out
}

// Equal reports structural equality, assertions included.
func (l Locator) Equal(o Locator) bool {
	return l.String() == o.String()
}

// String returns canonical serialization, Parse(l.String()) reproduces l.
func (l Locator) String() string {
	if l.IsZero() {
		return ""
	}
	var b strings.Builder
	b.WriteString(prefix)
	writeSteps(&b, l.Base)
	if len(l.Path.Steps) > 0 {
		b.WriteByte('!')
		writeSteps(&b, l.Path.Steps)
	}
	writeTerminal(&b, l.Path.Terminal)
	if l.Range {
		b.WriteByte(',')
		writeSteps(&b, l.Start.Steps)
		writeTerminal(&b, l.Start.Terminal)
		b.WriteByte(',')
		writeSteps(&b, l.End.Steps)
		writeTerminal(&b, l.End.Terminal)
	}
	b.WriteByte(')')
	return b.String()
}

// MarshalText allows locators to be used directly in JSON and YAML.
func (l Locator) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *Locator) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*l = Locator{}
		return nil
	}
	v, err := Parse(string(text))
	if err != nil {
		return err
	}
	*l = v
	return nil
}

// SpineBase builds package document part of a locator for spine item. spineStep
// is the step index of <spine> element inside <package>, itemIndex is zero based
// position of itemref in spine.
func SpineBase(spineStep, itemIndex int, idref string) []Step {
	return []Step{
		{Index: spineStep},
		{Index: (itemIndex + 1) * 2, Assertion: escape(idref)},
	}
}

func writeSteps(b *strings.Builder, steps []Step) {
	for _, s := range steps {
		b.WriteByte('/')
		b.WriteString(strconv.Itoa(s.Index))
		if s.Assertion != "" {
			b.WriteByte('[')
			b.WriteString(s.Assertion)
			b.WriteByte(']')
		}
	}
}

func writeTerminal(b *strings.Builder, t *Terminal) {
	if t == nil {
		return
	}
	b.WriteByte(':')
	b.WriteString(strconv.Itoa(t.Offset))
	if t.Assertion != "" {
		b.WriteByte('[')
		b.WriteString(t.Assertion)
		b.WriteByte(']')
	}
}

func cloneSteps(s []Step) []Step {
	if len(s) == 0 {
		return nil
	}
	return slices.Clone(s)
}

const specials = "^[](),;="

func escape(s string) string {
	if !strings.ContainsAny(s, specials) {
		return s
	}
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(specials, r) {
			b.WriteByte('^')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func unescape(s string) string {
	if !strings.Contains(s, "^") {
		return s
	}
	var (
		b       strings.Builder
		escaped bool
	)
	for _, r := range s {
		if r == '^' && !escaped {
			escaped = true
			continue
		}
		escaped = false
		b.WriteRune(r)
	}
	return b.String()
}
