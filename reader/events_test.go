package reader

import (
	"errors"
	"slices"
	"sync"
	"testing"

	"cfinav/cfi"
)

func TestMarshalEvent(t *testing.T) {
	cover := "aGVsbG8="
	tests := []struct {
		name string
		e    Event
		want string
	}{
		{"book error", BookError{Err: errors.New("boom")}, `{"type":"book-error"}`},
		{"book ready", BookReady{}, `{"type":"book-ready"}`},
		{"rendition ready", RenditionReady{}, `{"type":"rendition-ready"}`},
		{"locations ready", LocationsReady{}, `{"type":"locations-ready"}`},
		{"ready", Ready{}, `{"type":"ready"}`},
		{"locations generated", LocationsGenerated{Payload: `["epubcfi(/6/2!/4/2/1:0)"]`},
			`{"type":"locations-generated","payload":"[\"epubcfi(/6/2!/4/2/1:0)\"]"}`},
		{"cover", Cover{Payload: &cover}, `{"type":"cover","payload":"aGVsbG8="}`},
		{"no cover", Cover{}, `{"type":"cover","payload":null}`},
		{"relocated", Relocated{Position: Position{
			AtStart: true, CFI: cfi.MustParse("epubcfi(/6/2[c1]!/4)"), SectionHref: "OPS/c1.xhtml",
			Chapter: 1, ChapterTotal: 3, Location: -1, Percentage: 0.25,
		}}, `{"type":"relocated","payload":{"atStart":true,"atEnd":false,"cfi":"epubcfi(/6/2[c1]!/4)","sectionHref":"OPS/c1.xhtml","chapter":1,"chapterTotal":3,"location":-1,"percentage":0.25}}`},
		{"selection", SelectionMade{
			Position: Rect{Left: 1, Right: 2, Top: 3, Bottom: 4},
			Selection: Selection{
				Text: "word", CFIRange: cfi.MustParse("epubcfi(/6/2!/4/2,/1:0,/1:4)"), IsSingle: true, Language: "en",
			},
		}, `{"type":"selection","payload":{"position":{"left":1,"right":2,"top":3,"bottom":4},"selection":{"text":"word","cfiRange":"epubcfi(/6/2!/4/2,/1:0,/1:4)","isSingle":true,"language":"en"}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := MarshalEvent(tt.e)
			if err != nil {
				t.Fatalf("MarshalEvent() error = %v", err)
			}
			if string(data) != tt.want {
				t.Errorf("MarshalEvent() =\n%s\nwant\n%s", data, tt.want)
			}
		})
	}
}

func TestBookError_Error(t *testing.T) {
	if got := (BookError{Err: ErrOpen}).Error(); got != ErrOpen.Error() {
		t.Errorf("Error() = %q", got)
	}
	if got := (BookError{}).Error(); got != "book error" {
		t.Errorf("Error() = %q", got)
	}
}

func TestSerialDispatcher_Reentrant(t *testing.T) {
	var (
		d   *serialDispatcher
		got []string
	)
	d = &serialDispatcher{next: DispatcherFunc(func(e Event) {
		got = append(got, e.Type())
		if _, ok := e.(RenditionReady); ok {
			// host reacts to event with a command producing more events
			d.Dispatch(Relocated{})
			d.Dispatch(Cover{})
		}
	})}

	d.Dispatch(BookReady{})
	d.Dispatch(RenditionReady{})
	d.Dispatch(LocationsReady{})

	want := []string{"book-ready", "rendition-ready", "relocated", "cover", "locations-ready"}
	if !slices.Equal(got, want) {
		t.Errorf("delivered %q, want %q", got, want)
	}
}

func TestSerialDispatcher_Concurrent(t *testing.T) {
	rec := &recorder{}
	var (
		mu     sync.Mutex
		inside int
	)
	d := &serialDispatcher{next: DispatcherFunc(func(e Event) {
		mu.Lock()
		inside++
		if inside > 1 {
			t.Error("host received two events at the same time")
		}
		mu.Unlock()
		rec.Dispatch(e)
		mu.Lock()
		inside--
		mu.Unlock()
	})}

	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			for range 50 {
				d.Dispatch(Ready{})
			}
		})
	}
	wg.Wait()
	if n := rec.count("ready"); n != 400 {
		t.Errorf("delivered %d events, want 400", n)
	}
}
