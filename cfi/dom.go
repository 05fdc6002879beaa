package cfi

import (
	"fmt"
	"slices"
	"unicode/utf8"

	"github.com/beevik/etree"
)

// Point is a position inside loaded content document: either an element
// (Offset is ignored) or a character offset inside text node.
type Point struct {
	Node   etree.Token
	Offset int
}

// FromElement builds point locator addressing element of content document
// belonging to spine item with given base.
func FromElement(base []Step, el *etree.Element) Locator {
	return Locator{
		Base: cloneSteps(base),
		Path: Path{Steps: elementSteps(el)},
	}
}

// FromText builds point locator addressing character offset (in code points)
// inside text node.
func FromText(base []Step, cd *etree.CharData, offset int) Locator {
	return Locator{
		Base: cloneSteps(base),
		Path: textPath(cd, offset),
	}
}

// FromRange builds range locator spanning from start to end.
func FromRange(base []Step, start, end Point) (Locator, error) {
	sp, err := start.path()
	if err != nil {
		return Locator{}, err
	}
	ep, err := end.path()
	if err != nil {
		return Locator{}, err
	}
	if len(sp.Steps) == 0 || len(ep.Steps) == 0 {
		return Locator{}, fmt.Errorf("%w: range cannot start or end at document root", ErrMalformed)
	}

	// common parent, each local part keeps at least one step
	limit := min(len(sp.Steps), len(ep.Steps)) - 1
	common := 0
	for common < limit && sp.Steps[common].Index == ep.Steps[common].Index {
		common++
	}
	return Locator{
		Base:  cloneSteps(base),
		Path:  Path{Steps: cloneSteps(sp.Steps[:common])},
		Range: true,
		Start: Path{Steps: cloneSteps(sp.Steps[common:]), Terminal: sp.Terminal},
		End:   Path{Steps: cloneSteps(ep.Steps[common:]), Terminal: ep.Terminal},
	}, nil
}

// Resolve finds point in the document addressed by locator. Ranges resolve to
// their start. Base is not checked - caller is responsible for selecting the
// right document.
func Resolve(doc *etree.Document, l Locator) (Point, error) {
	l = l.Collapse(true)

	el := doc.Root()
	if el == nil {
		return Point{}, fmt.Errorf("%w: empty document", ErrNotFound)
	}
	steps := l.Path.Steps
	for i, s := range steps {
		if s.Index <= 0 {
			return Point{}, fmt.Errorf("%w: step %d has invalid index %d", ErrNotFound, i, s.Index)
		}
		if s.Index%2 == 1 {
			if i != len(steps)-1 {
				return Point{}, fmt.Errorf("%w: text step %d is not terminal", ErrNotFound, i)
			}
			offset := 0
			if l.Path.Terminal != nil {
				offset = l.Path.Terminal.Offset
			}
			return resolveText(el, (s.Index-1)/2, offset)
		}
		child := nthElement(el, s.Index/2-1)
		if child == nil {
			return Point{}, fmt.Errorf("%w: no element for step %d (/%d) under <%s>", ErrNotFound, i, s.Index, el.Tag)
		}
		el = child
	}
	p := Point{Node: el}
	if l.Path.Terminal != nil {
		p.Offset = l.Path.Terminal.Offset
	}
	return p, nil
}

func (p Point) path() (Path, error) {
	switch n := p.Node.(type) {
	case *etree.Element:
		return Path{Steps: elementSteps(n)}, nil
	case *etree.CharData:
		return textPath(n, p.Offset), nil
	default:
		return Path{}, fmt.Errorf("%w: unsupported node type %T", ErrMalformed, p.Node)
	}
}

// elementSteps returns steps from document root element down to el. Root
// element itself is implied and produces no step.
func elementSteps(el *etree.Element) []Step {
	var steps []Step
	for e := el; e != nil; e = e.Parent() {
		p := e.Parent()
		if p == nil || p.Parent() == nil {
			// e is either document node or root element
			break
		}
		steps = append(steps, Step{
			Index:     elementIndex(p, e),
			Assertion: escape(e.SelectAttrValue("id", "")),
		})
	}
	slices.Reverse(steps)
	return cloneSteps(steps)
}

func textPath(cd *etree.CharData, offset int) Path {
	p := cd.Parent()
	steps := append(elementSteps(p), Step{Index: textIndex(p, cd)})
	return Path{
		Steps:    steps,
		Terminal: &Terminal{Offset: offset + chunkOffset(p, cd)},
	}
}

func elementIndex(parent, el *etree.Element) int {
	n := 0
	for _, t := range parent.Child {
		if t == etree.Token(el) {
			break
		}
		if _, ok := t.(*etree.Element); ok {
			n++
		}
	}
	return (n + 1) * 2
}

func textIndex(parent *etree.Element, cd *etree.CharData) int {
	n := 0
	for _, t := range parent.Child {
		if t == etree.Token(cd) {
			break
		}
		if _, ok := t.(*etree.Element); ok {
			n++
		}
	}
	return n*2 + 1
}

// chunkOffset counts characters of text nodes preceding cd in the same chunk
// (e.g. separated by comments or processing instructions only).
func chunkOffset(parent *etree.Element, cd *etree.CharData) int {
	n := 0
	for _, t := range parent.Child {
		if t == etree.Token(cd) {
			break
		}
		switch v := t.(type) {
		case *etree.Element:
			n = 0
		case *etree.CharData:
			n += utf8.RuneCountInString(v.Data)
		}
	}
	return n
}

func nthElement(parent *etree.Element, n int) *etree.Element {
	if n < 0 {
		return nil
	}
	for _, t := range parent.Child {
		if el, ok := t.(*etree.Element); ok {
			if n == 0 {
				return el
			}
			n--
		}
	}
	return nil
}

func resolveText(parent *etree.Element, chunk, offset int) (Point, error) {
	var (
		elements int
		last     *etree.CharData
	)
	for _, t := range parent.Child {
		switch v := t.(type) {
		case *etree.Element:
			elements++
		case *etree.CharData:
			if elements != chunk {
				continue
			}
			n := utf8.RuneCountInString(v.Data)
			if offset <= n {
				return Point{Node: v, Offset: offset}, nil
			}
			offset -= n
			last = v
		}
		if elements > chunk {
			break
		}
	}
	if last == nil {
		return Point{}, fmt.Errorf("%w: no text chunk %d under <%s>", ErrNotFound, chunk, parent.Tag)
	}
	// offset past the end of chunk, clamp to its end
	return Point{Node: last, Offset: utf8.RuneCountInString(last.Data)}, nil
}
