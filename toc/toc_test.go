package toc

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"cfinav/cfi"
	"cfinav/epub"
)

func mapResolver(m map[string]string) ResolverFunc {
	return func(_ context.Context, href string) (cfi.Locator, error) {
		s, ok := m[href]
		if !ok {
			return cfi.Locator{}, epub.ErrNotFound
		}
		return cfi.Parse(s)
	}
}

func labels(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Label)
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestBuild(t *testing.T) {
	nav := []epub.NavPoint{
		{Label: "  Chapter 2 \n", Href: "ch2.xhtml", Children: []epub.NavPoint{
			{Label: "Section 2.1", Href: "ch2.xhtml#s1"},
			{Label: "Broken", Href: "ch2.xhtml#missing"},
		}},
		{Label: "Part", Children: []epub.NavPoint{
			{Label: "Chapter 1", Href: "ch1.xhtml"},
		}},
		{Label: "Range", Href: "range.xhtml"},
	}
	r := mapResolver(map[string]string{
		"ch1.xhtml":    "epubcfi(/6/2[c1]!/4)",
		"ch2.xhtml":    "epubcfi(/6/4[c2]!/4)",
		"ch2.xhtml#s1": "epubcfi(/6/4[c2]!/4/6[s1])",
		"range.xhtml":  "epubcfi(/6/6!/4,/2/1:3,/4/1:0)",
	})

	toc := Build(context.Background(), nav, "Book", r, Options{}, zaptest.NewLogger(t))

	want := []string{"Chapter 1", "Chapter 2", "Section 2.1", "Range"}
	if got := labels(toc.Entries()); !equalStrings(got, want) {
		t.Fatalf("labels = %q, want %q", got, want)
	}
	if toc.Len() != 4 {
		t.Errorf("Len() = %d, want 4", toc.Len())
	}
	last := toc.Entries()[3]
	if last.CFI.Range || last.CFI.String() != "epubcfi(/6/6!/4/2/1:3)" {
		t.Errorf("range target must be collapsed to start, got %s", last.CFI)
	}
	if last.Href != "range.xhtml" {
		t.Errorf("Href = %q", last.Href)
	}
}

func TestBuild_EqualAddressesKeepOrder(t *testing.T) {
	nav := []epub.NavPoint{
		{Label: "A", Href: "a"},
		{Label: "B", Href: "b"},
		{Label: "C", Href: "c"},
	}
	r := mapResolver(map[string]string{
		"a": "epubcfi(/6/4!/4)",
		"b": "epubcfi(/6/2!/4)",
		"c": "epubcfi(/6/4!/4)",
	})
	toc := Build(context.Background(), nav, "", r, Options{Concurrency: 1}, zaptest.NewLogger(t))

	if got := labels(toc.Entries()); !equalStrings(got, []string{"B", "A", "C"}) {
		t.Fatalf("labels = %q", got)
	}
	// later entry wins when addresses are equal
	if got := toc.SectionFor(cfi.MustParse("epubcfi(/6/4!/4)")).Label; got != "C" {
		t.Errorf("SectionFor() = %q, want C", got)
	}
}

func TestBuild_Concurrency(t *testing.T) {
	var nav []epub.NavPoint
	for range 16 {
		nav = append(nav, epub.NavPoint{Label: "x", Href: "x"})
	}

	var current, peak atomic.Int32
	r := ResolverFunc(func(context.Context, string) (cfi.Locator, error) {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		current.Add(-1)
		return cfi.Parse("epubcfi(/6/2!/4)")
	})

	toc := Build(context.Background(), nav, "", r, Options{Concurrency: 3}, zaptest.NewLogger(t))
	if toc.Len() != len(nav) {
		t.Errorf("Len() = %d, want %d", toc.Len(), len(nav))
	}
	if p := peak.Load(); p > 3 {
		t.Errorf("peak concurrency = %d, want <= 3", p)
	}
}

func TestBuild_FailuresAreIsolated(t *testing.T) {
	nav := []epub.NavPoint{
		{Label: "ok", Href: "ok"},
		{Label: "error", Href: "error"},
		{Label: "zero", Href: "zero"},
		{Label: "no href"},
	}
	r := ResolverFunc(func(_ context.Context, href string) (cfi.Locator, error) {
		switch href {
		case "ok":
			return cfi.Parse("epubcfi(/6/2!/4)")
		case "zero":
			return cfi.Locator{}, nil
		}
		return cfi.Locator{}, errors.New("boom")
	})

	toc := Build(context.Background(), nav, "Title", r, Options{}, zaptest.NewLogger(t))
	if got := labels(toc.Entries()); !equalStrings(got, []string{"ok"}) {
		t.Errorf("labels = %q, want [ok]", got)
	}
}

func TestResolve_WrapsFailures(t *testing.T) {
	r := ResolverFunc(func(context.Context, string) (cfi.Locator, error) {
		return cfi.Locator{}, epub.ErrNotFound
	})
	_, err := resolve(context.Background(), r, "x")
	if !errors.Is(err, ErrResolution) || !errors.Is(err, epub.ErrNotFound) {
		t.Errorf("resolve() error = %v", err)
	}
}

func TestSectionFor(t *testing.T) {
	nav := []epub.NavPoint{{Label: "L3", Href: "c3"}, {Label: "L1", Href: "c1"}, {Label: "L2", Href: "c2"}}
	r := mapResolver(map[string]string{
		"c1": "epubcfi(/6/2!/4/2)",
		"c2": "epubcfi(/6/2!/4/10/1:5)",
		"c3": "epubcfi(/6/6!/4)",
	})
	toc := Build(context.Background(), nav, "The Title", r, Options{}, zaptest.NewLogger(t))

	tests := []struct {
		at   string
		want string
	}{
		{"epubcfi(/6/2!/2)", ""},
		{"epubcfi(/6/2!/4)", ""},
		{"epubcfi(/6/2!/4/2)", "L1"},
		{"epubcfi(/6/2!/4/2/1:100)", "L1"},
		{"epubcfi(/6/2!/4/10/1:4)", "L1"},
		{"epubcfi(/6/2!/4/10/1:5)", "L2"},
		{"epubcfi(/6/2!/4/10,/1:5,/3:2)", "L2"},
		{"epubcfi(/6/4!/4/200)", "L2"},
		{"epubcfi(/6/6!/4)", "L3"},
		{"epubcfi(/6/100!/4)", "L3"},
	}
	for _, tt := range tests {
		got := toc.SectionFor(cfi.MustParse(tt.at))
		if tt.want == "" {
			if got.Label != "The Title" || got.Href != "" || !got.CFI.IsZero() {
				t.Errorf("SectionFor(%s) = %+v, want root entry", tt.at, got)
			}
			continue
		}
		if got.Label != tt.want {
			t.Errorf("SectionFor(%s) = %q, want %q", tt.at, got.Label, tt.want)
		}
		if got.Href == "" {
			t.Errorf("SectionFor(%s) lost href", tt.at)
		}
	}
}

func TestSectionFor_NotBuilt(t *testing.T) {
	var toc *TOC
	if e := toc.SectionFor(cfi.MustParse("epubcfi(/6/2!/4)")); e.Label != "" || e.Href != "" {
		t.Errorf("SectionFor() on nil TOC = %+v", e)
	}
	if toc.Len() != 0 || toc.Entries() != nil {
		t.Error("nil TOC must be empty")
	}

	empty := Build(context.Background(), nil, "Title", mapResolver(nil), Options{}, zaptest.NewLogger(t))
	if e := empty.SectionFor(cfi.MustParse("epubcfi(/6/2!/4)")); e.Label != "Title" {
		t.Errorf("SectionFor() on empty TOC = %+v", e)
	}
}

func TestDump(t *testing.T) {
	nav := []epub.NavPoint{{Label: " Chapter\u00a01 ", Href: "ch1.xhtml"}, {Label: "Lost", Href: "lost.xhtml"}}
	toc := Build(context.Background(), nav, "Book", mapResolver(map[string]string{"ch1.xhtml": "epubcfi(/6/2!/4)"}), Options{}, zaptest.NewLogger(t))

	want := "TOC \"Book\" (1 entries)\n" +
		"  #0\n" +
		"    label: \"Chapter\\u00a01\"\n" +
		"    href: \"ch1.xhtml\"\n" +
		"    cfi: epubcfi(/6/2!/4)\n"
	if got := toc.Dump(); got != want {
		t.Errorf("Dump() =\n%s\nwant\n%s", got, want)
	}
}
