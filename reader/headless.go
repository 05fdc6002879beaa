package reader

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/beevik/etree"

	"cfinav/cfi"
	"cfinav/config"
	"cfinav/epub"
)

// HeadlessFactory produces renditions without layout engine: every spine item
// is displayed as single page. Useful for command line host and tests.
type HeadlessFactory struct{}

func (HeadlessFactory) Render(book *epub.Book, opts RenderOptions) (Rendition, error) {
	if len(book.Spine) == 0 {
		return nil, errors.New("nothing to render, spine is empty")
	}
	return &HeadlessRendition{book: book, opts: opts, current: -1}, nil
}

// HeadlessRendition pages through spine items.
type HeadlessRendition struct {
	book *epub.Book
	opts RenderOptions

	mu        sync.Mutex
	observers []Observer
	current   int
	surface   *HeadlessSurface
	loc       Location
}

func (h *HeadlessRendition) Flow() config.Flow {
	return h.opts.Flow
}

func (h *HeadlessRendition) Subscribe(o Observer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.observers = append(h.observers, o)
}

func (h *HeadlessRendition) Location() (Location, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.loc, h.current >= 0
}

// Surface returns surface of displayed spine item, nil before first display.
func (h *HeadlessRendition) Surface() *HeadlessSurface {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.surface
}

// Display shows start of the book for empty target, otherwise target is
// either CFI or href of content document (possibly with fragment).
func (h *HeadlessRendition) Display(ctx context.Context, target string) error {
	switch {
	case target == "":
		return h.show(ctx, 0, cfi.Locator{})
	case strings.HasPrefix(target, "epubcfi("):
		l, err := cfi.Parse(target)
		if err != nil {
			return err
		}
		return h.show(ctx, l.SpineIndex(), l.Collapse(true))
	default:
		l, err := h.book.ResolveHref(ctx, target)
		if err != nil {
			return err
		}
		return h.show(ctx, l.SpineIndex(), l)
	}
}

func (h *HeadlessRendition) Next(ctx context.Context) error {
	h.mu.Lock()
	next := h.current + 1
	h.mu.Unlock()

	if next >= len(h.book.Spine) {
		return nil
	}
	return h.show(ctx, next, cfi.Locator{})
}

func (h *HeadlessRendition) show(ctx context.Context, index int, start cfi.Locator) error {
	item, ok := h.book.Item(index)
	if !ok {
		return fmt.Errorf("no spine item %d", index)
	}
	doc, err := item.Document(ctx)
	if err != nil {
		return err
	}
	// surface gets its own tree, the same as independent rendering frame would
	doc = doc.Copy()

	first, last := pageEdges(doc, item.CFIBase())
	if start.IsZero() {
		start = first
	}
	total := len(h.book.Spine)
	loc := Location{
		Start:   Edge{CFI: start, Percentage: float64(index) / float64(total)},
		End:     Edge{CFI: last, Percentage: float64(index+1) / float64(total)},
		AtStart: index == 0,
		AtEnd:   index == total-1,
	}

	h.mu.Lock()
	attached := h.current != index
	if attached {
		h.surface = &HeadlessSurface{
			rendition: h,
			base:      item.CFIBase(),
			doc:       doc,
			rect:      Rect{Right: float64(h.opts.Width), Bottom: float64(h.opts.Height)},
		}
	}
	h.current, h.loc = index, loc
	surface := h.surface
	observers := append([]Observer(nil), h.observers...)
	h.mu.Unlock()

	for _, o := range observers {
		if attached {
			o.OnContentAttached(surface)
		}
		o.OnRelocated(loc)
	}
	return nil
}

func (h *HeadlessRendition) selectionChanged(cfiRange string) {
	h.mu.Lock()
	observers := append([]Observer(nil), h.observers...)
	h.mu.Unlock()

	for _, o := range observers {
		o.OnSelectionChanged(cfiRange)
	}
}

// pageEdges returns addresses of the body start and of the end of last text
// in the document.
func pageEdges(doc *etree.Document, base []cfi.Step) (cfi.Locator, cfi.Locator) {
	root := doc.Root()
	if body := root.SelectElement("body"); body != nil {
		root = body
	}
	first := cfi.FromElement(base, root)

	var last *etree.CharData
	walkText(root, func(cd *etree.CharData) bool {
		if !cd.IsWhitespace() {
			last = cd
		}
		return true
	})
	if last == nil {
		return first, first
	}
	return first, cfi.FromText(base, last, utf8.RuneCountInString(last.Data))
}

// walkText visits text nodes in document order until fn returns false.
func walkText(el *etree.Element, fn func(*etree.CharData) bool) bool {
	for _, t := range el.Child {
		switch v := t.(type) {
		case *etree.CharData:
			if !fn(v) {
				return false
			}
		case *etree.Element:
			if !walkText(v, fn) {
				return false
			}
		}
	}
	return true
}

// HeadlessSurface is a page of headless rendition. Selection is made
// programmatically with Select between PointerDown and PointerUp.
type HeadlessSurface struct {
	rendition *HeadlessRendition
	base      []cfi.Step
	rect      Rect

	mu       sync.Mutex
	doc      *etree.Document
	observer SurfaceObserver
	sel      *Range
}

func (s *HeadlessSurface) Rect() Rect {
	return s.rect
}

func (s *HeadlessSurface) CFIBase() []cfi.Step {
	return s.base
}

func (s *HeadlessSurface) Range() (Range, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sel == nil {
		return Range{}, false
	}
	return *s.sel, true
}

func (s *HeadlessSurface) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sel = nil
}

func (s *HeadlessSurface) Language() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	root := s.doc.Root()
	if lang := root.SelectAttrValue("lang", ""); lang != "" {
		return lang
	}
	return root.SelectAttrValue("xml:lang", "")
}

func (s *HeadlessSurface) SetLanguage(lang string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Root().CreateAttr("lang", lang)
}

func (s *HeadlessSurface) Observe(o SurfaceObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observer = o
}

// Document returns tree displayed by the surface.
func (s *HeadlessSurface) Document() *etree.Document {
	return s.doc
}

func (s *HeadlessSurface) PointerDown() {
	if o := s.currentObserver(); o != nil {
		o.PointerDown()
	}
}

func (s *HeadlessSurface) PointerUp() {
	if o := s.currentObserver(); o != nil {
		o.PointerUp()
	}
}

// Select selects text between two addresses in the displayed document and
// notifies rendition observers about selection change.
func (s *HeadlessSurface) Select(start, end cfi.Locator) error {
	s.mu.Lock()
	sp, err := cfi.Resolve(s.doc, start)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("unable to resolve selection start: %w", err)
	}
	ep, err := cfi.Resolve(s.doc, end)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("unable to resolve selection end: %w", err)
	}
	s.sel = &Range{Start: sp, End: ep, Text: textBetween(s.doc.Root(), sp, ep)}
	s.mu.Unlock()

	cfiRange, err := cfi.FromRange(s.base, sp, ep)
	if err != nil {
		return err
	}
	s.rendition.selectionChanged(cfiRange.String())
	return nil
}

func (s *HeadlessSurface) currentObserver() SurfaceObserver {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.observer
}

// textBetween collects text from start to end, both must point into text
// nodes.
func textBetween(root *etree.Element, start, end cfi.Point) string {
	var (
		b      strings.Builder
		inside bool
	)
	walkText(root, func(cd *etree.CharData) bool {
		runes := []rune(cd.Data)
		from, to := 0, len(runes)
		if etree.Token(cd) == start.Node {
			inside, from = true, min(start.Offset, len(runes))
		}
		if !inside {
			return true
		}
		if etree.Token(cd) == end.Node {
			to = max(min(end.Offset, len(runes)), from)
			b.WriteString(string(runes[from:to]))
			return false
		}
		b.WriteString(string(runes[from:to]))
		return true
	})
	return b.String()
}
