package reader

import (
	"context"

	"cfinav/cfi"
	"cfinav/config"
	"cfinav/epub"
)

// Edge is one side of displayed page.
type Edge struct {
	CFI        cfi.Locator
	Percentage float64
}

// Location describes what rendition currently displays.
type Location struct {
	Start, End Edge
	AtStart    bool
	AtEnd      bool
}

// Rect is a box in screen coordinates.
type Rect struct {
	Left   float64 `json:"left"`
	Right  float64 `json:"right"`
	Top    float64 `json:"top"`
	Bottom float64 `json:"bottom"`
}

// Translate moves r by the origin of frame, turning frame relative
// coordinates into host ones.
func (r Rect) Translate(frame Rect) Rect {
	return Rect{
		Left:   r.Left + frame.Left,
		Right:  r.Right + frame.Left,
		Top:    r.Top + frame.Top,
		Bottom: r.Bottom + frame.Top,
	}
}

// Range is active text selection inside surface document.
type Range struct {
	Start, End cfi.Point
	// Text as reported by the surface, not normalized.
	Text string
	// Bounding box relative to the surface.
	Rect Rect
}

// Collapsed reports whether range selects nothing.
func (r Range) Collapsed() bool {
	return r.Start.Node == r.End.Node && r.Start.Offset == r.End.Offset
}

// SurfaceObserver receives pointer events from a single surface.
type SurfaceObserver interface {
	PointerDown()
	PointerUp()
}

// Surface is independently rendered frame displaying one content document.
type Surface interface {
	// Rect returns frame position in host coordinates.
	Rect() Rect
	// CFIBase returns package part of addresses for displayed document.
	CFIBase() []cfi.Step
	// Range returns current selection, false when there is none.
	Range() (Range, bool)
	// Clear removes selection.
	Clear()
	Language() string
	SetLanguage(lang string)
	Observe(o SurfaceObserver)
}

// Observer is notified by rendition. Calls could come from any goroutine.
type Observer interface {
	OnRelocated(loc Location)
	OnContentAttached(s Surface)
	OnSelectionChanged(cfiRange string)
}

// Rendition is layout engine displaying the book.
type Rendition interface {
	// Display shows the start of the book when target is empty, otherwise
	// target is either CFI or href.
	Display(ctx context.Context, target string) error
	Next(ctx context.Context) error
	Flow() config.Flow
	// Location returns what is displayed now, false before first display.
	Location() (Location, bool)
	Subscribe(o Observer)
}

// RenderOptions are passed to rendition factory as is.
type RenderOptions struct {
	// Target identifies element (or window) rendition paints into.
	Target string
	Flow   config.Flow
	Width  int
	Height int
}

// RenditionFactory attaches rendition to opened book.
type RenditionFactory interface {
	Render(book *epub.Book, opts RenderOptions) (Rendition, error)
}

// RenditionFactoryFunc is an adapter to allow the use of ordinary functions
// as RenditionFactory.
type RenditionFactoryFunc func(book *epub.Book, opts RenderOptions) (Rendition, error)

func (f RenditionFactoryFunc) Render(book *epub.Book, opts RenderOptions) (Rendition, error) {
	return f(book, opts)
}
