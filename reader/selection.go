package reader

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"cfinav/cfi"
	"cfinav/config"
)

// Selection describes text selected by the reader.
type Selection struct {
	Text     string      `json:"text"`
	CFIRange cfi.Locator `json:"cfiRange"`
	IsSingle bool        `json:"isSingle"`
	Language string      `json:"language"`
}

type pointerState int

const (
	stateIdle pointerState = iota
	stateSelecting
)

type surfaceEntry struct {
	surface Surface
	state   pointerState
}

// clearable remembers which surface holds the last reported selection.
type clearable struct {
	surfaceID uuid.UUID
	clear     func()
}

// selectionCoordinator tracks pointer state of every attached surface,
// reports finished selections and pages forward when selection is dragged
// past the end of displayed page.
type selectionCoordinator struct {
	mu       sync.Mutex
	surfaces map[uuid.UUID]*surfaceEntry
	last     *clearable

	rendition Rendition
	language  string
	debounce  *Debouncer
	emit      func(Event)
	log       *zap.Logger
}

func newSelectionCoordinator(r Rendition, language string, d *Debouncer, emit func(Event), log *zap.Logger) *selectionCoordinator {
	return &selectionCoordinator{
		surfaces:  make(map[uuid.UUID]*surfaceEntry),
		rendition: r,
		language:  language,
		debounce:  d,
		emit:      emit,
		log:       log.Named("selection"),
	}
}

// attach starts tracking surface. Documents without language get the one
// from book metadata.
func (c *selectionCoordinator) attach(s Surface) uuid.UUID {
	id := uuid.New()

	if s.Language() == "" && c.language != "" {
		s.SetLanguage(c.language)
	}

	c.mu.Lock()
	c.surfaces[id] = &surfaceEntry{surface: s}
	c.mu.Unlock()

	s.Observe(&surfaceEvents{id: id, c: c})
	c.log.Debug("Surface attached", zap.Stringer("id", id))
	return id
}

func (c *selectionCoordinator) pointerDown(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.surfaces[id]; ok {
		e.state = stateSelecting
	}
}

// pointerUp ends the drag on every surface. After selection turned the page
// pointer is released over a different surface than it was pressed on.
func (c *selectionCoordinator) pointerUp(id uuid.UUID) {
	c.mu.Lock()
	for _, e := range c.surfaces {
		e.state = stateIdle
	}
	e, ok := c.surfaces[id]
	c.mu.Unlock()
	if !ok {
		return
	}

	s := e.surface
	r, ok := s.Range()
	if !ok || r.Collapsed() {
		return
	}
	text := strings.ReplaceAll(strings.TrimSpace(r.Text), "\n", " ")
	if text == "" {
		return
	}
	cfiRange, err := cfi.FromRange(s.CFIBase(), r.Start, r.End)
	if err != nil {
		c.log.Warn("Unable to address selection", zap.Stringer("surface", id), zap.Error(err))
		return
	}

	c.mu.Lock()
	c.last = &clearable{surfaceID: id, clear: s.Clear}
	c.mu.Unlock()

	c.emit(SelectionMade{
		Position: r.Rect.Translate(s.Rect()),
		Selection: Selection{
			Text:     text,
			CFIRange: cfiRange,
			IsSingle: !strings.Contains(text, " "),
			Language: c.language,
		},
	})
}

// clearSelection deselects last reported selection in the surface it was
// made in. Only the most recent selection could be cleared.
func (c *selectionCoordinator) clearSelection() {
	c.mu.Lock()
	last := c.last
	c.last = nil
	c.mu.Unlock()

	if last != nil {
		c.log.Debug("Clearing selection", zap.Stringer("surface", last.surfaceID))
		last.clear()
	}
}

func (c *selectionCoordinator) selecting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range c.surfaces {
		if e.state == stateSelecting {
			return true
		}
	}
	return false
}

// selectionChanged is called for every change of selection while user drags
// pointer. After quiet window passes, if selection reaches the end of
// displayed page, rendition moves to the next one.
func (c *selectionCoordinator) selectionChanged(ctx context.Context, cfiRange string) {
	c.debounce.Call(func() {
		if c.rendition.Flow() != config.FlowPaginated || !c.selecting() {
			return
		}
		sel, err := cfi.Parse(cfiRange)
		if err != nil {
			c.log.Debug("Ignoring selection change", zap.String("cfi", cfiRange), zap.Error(err))
			return
		}
		loc, ok := c.rendition.Location()
		if !ok {
			return
		}
		if cfi.Compare(sel.Collapse(false), loc.End.CFI) < 0 {
			return
		}
		c.log.Debug("Selection reached end of page, turning", zap.Stringer("selection end", sel.Collapse(false)))
		if err := c.rendition.Next(ctx); err != nil {
			c.log.Warn("Unable to turn page", zap.Error(err))
		}
	})
}

type surfaceEvents struct {
	id uuid.UUID
	c  *selectionCoordinator
}

func (s *surfaceEvents) PointerDown() { s.c.pointerDown(s.id) }
func (s *surfaceEvents) PointerUp()   { s.c.pointerUp(s.id) }
