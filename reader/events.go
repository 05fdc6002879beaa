package reader

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Event is a notification sent to the host. Set of events is closed, every
// event type is defined in this package.
type Event interface {
	// Type returns event name on the wire.
	Type() string
	payload() (any, bool)
}

type (
	// BookError reports that package could not be opened, it is sent once and
	// nothing follows it.
	BookError struct {
		Err error
	}
	// BookReady reports that package metadata and spine are available.
	BookReady struct{}
	// RenditionReady reports that initial display completed.
	RenditionReady struct{}
	// LocationsReady reports that previously saved location table was loaded.
	LocationsReady struct{}
	// LocationsGenerated carries serialized location table, host is expected
	// to persist it and pass back on the next open.
	LocationsGenerated struct {
		Payload string
	}
	// Cover carries base64 encoded cover image, nil when book has no usable
	// cover.
	Cover struct {
		Payload *string
	}
	// Relocated carries current reading position.
	Relocated struct {
		Position Position
	}
	// SelectionMade carries selection made by the reader and its geometry in
	// host coordinates.
	SelectionMade struct {
		Position  Rect      `json:"position"`
		Selection Selection `json:"selection"`
	}
	// Ready reports that reader accepts commands.
	Ready struct{}
)

func (BookError) Type() string          { return "book-error" }
func (BookReady) Type() string          { return "book-ready" }
func (RenditionReady) Type() string     { return "rendition-ready" }
func (LocationsReady) Type() string     { return "locations-ready" }
func (LocationsGenerated) Type() string { return "locations-generated" }
func (Cover) Type() string              { return "cover" }
func (Relocated) Type() string          { return "relocated" }
func (SelectionMade) Type() string      { return "selection" }
func (Ready) Type() string              { return "ready" }

func (BookError) payload() (any, bool)            { return nil, false }
func (BookReady) payload() (any, bool)            { return nil, false }
func (RenditionReady) payload() (any, bool)       { return nil, false }
func (LocationsReady) payload() (any, bool)       { return nil, false }
func (e LocationsGenerated) payload() (any, bool) { return e.Payload, true }
func (e Cover) payload() (any, bool)              { return e.Payload, true }
func (e Relocated) payload() (any, bool)          { return e.Position, true }
func (e SelectionMade) payload() (any, bool)      { return e, true }
func (Ready) payload() (any, bool)                { return nil, false }

func (e BookError) Error() string {
	if e.Err == nil {
		return "book error"
	}
	return e.Err.Error()
}

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// MarshalEvent encodes event as {"type": ..., "payload": ...} object. Events
// without payload have no "payload" key, cover without image has null payload.
func MarshalEvent(e Event) ([]byte, error) {
	env := envelope{Type: e.Type()}
	if p, ok := e.payload(); ok {
		data, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("unable to encode %s payload: %w", e.Type(), err)
		}
		env.Payload = data
	}
	return json.Marshal(env)
}

// Dispatcher delivers events to the host.
type Dispatcher interface {
	Dispatch(e Event)
}

// DispatcherFunc is an adapter to allow the use of ordinary functions as
// Dispatcher.
type DispatcherFunc func(e Event)

func (f DispatcherFunc) Dispatch(e Event) {
	f(e)
}

// serialDispatcher makes sure host never sees two events at the same time,
// background work reports from different goroutines. Events dispatched while
// host handles another one (including from inside the handler) are queued and
// delivered in order by the goroutine already delivering.
type serialDispatcher struct {
	mu     sync.Mutex
	queue  []Event
	active bool
	next   Dispatcher
}

func (d *serialDispatcher) Dispatch(e Event) {
	d.mu.Lock()
	d.queue = append(d.queue, e)
	if d.active {
		d.mu.Unlock()
		return
	}
	d.active = true
	for len(d.queue) > 0 {
		e := d.queue[0]
		d.queue = d.queue[1:]
		d.mu.Unlock()
		d.next.Dispatch(e)
		d.mu.Lock()
	}
	d.active = false
	d.mu.Unlock()
}
