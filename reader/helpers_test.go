package reader

import (
	"archive/zip"
	"bytes"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"cfinav/config"
)

const testContainer = `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles><rootfile full-path="OPS/package.opf" media-type="application/oebps-package+xml"/></rootfiles>
</container>`

const testPackage = `<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0" unique-identifier="uid">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:identifier id="uid">urn:uuid:cfinav-test</dc:identifier>
    <dc:title>Reader Test</dc:title>
    <dc:language>de</dc:language>
  </metadata>
  <manifest>
    <item id="nav" href="nav.xhtml" media-type="application/xhtml+xml" properties="nav"/>
    <item id="c1" href="c1.xhtml" media-type="application/xhtml+xml"/>
    <item id="c2" href="c2.xhtml" media-type="application/xhtml+xml"/>
    <item id="c3" href="c3.xhtml" media-type="application/xhtml+xml"/>
    <item id="img" href="cover.png" media-type="image/png" properties="cover-image"/>
  </manifest>
  <spine>
    <itemref idref="c1"/>
    <itemref idref="c2"/>
    <itemref idref="c3"/>
  </spine>
</package>`

const testNav = `<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops">
<head><title>toc</title></head>
<body><nav epub:type="toc"><ol>
  <li><a href="c1.xhtml"> One </a></li>
  <li><a href="c2.xhtml#middle">Two</a></li>
  <li><a href="c3.xhtml#nowhere">Broken</a></li>
</ol></nav></body></html>`

func testChapter(title, second string) string {
	return `<html xmlns="http://www.w3.org/1999/xhtml"><head><title>` + title + `</title></head><body><p id="p1">Alpha beta gamma</p>
<p id="middle">` + second + `</p></body></html>`
}

func testFiles(t *testing.T, withCover bool) map[string]string {
	t.Helper()
	files := map[string]string{
		"mimetype":               "application/epub+zip",
		"META-INF/container.xml": testContainer,
		"OPS/package.opf":        testPackage,
		"OPS/nav.xhtml":          testNav,
		"OPS/c1.xhtml":           testChapter("one", "Delta epsilon"),
		"OPS/c2.xhtml":           testChapter("two", "Zeta eta"),
		"OPS/c3.xhtml":           testChapter("three", "Theta"),
	}
	if withCover {
		var buf bytes.Buffer
		if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 8, 12))); err != nil {
			t.Fatalf("png.Encode() error = %v", err)
		}
		files["OPS/cover.png"] = buf.String()
	}
	return files
}

func writeEPUB(t *testing.T, name string, files map[string]string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create epub: %v", err)
	}
	defer f.Close()

	w := zip.NewWriter(f)
	for n, content := range files {
		fw, err := w.Create(n)
		if err != nil {
			t.Fatalf("Failed to create %s: %v", n, err)
		}
		if _, err := fw.Write([]byte(content)); err != nil {
			t.Fatalf("Failed to write %s: %v", n, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Failed to close zip: %v", err)
	}
	return path
}

func testConfig() *config.Config {
	return &config.Config{
		Version: 1,
		Reader: config.ReaderConfig{
			InputType:            config.InputTypeEpub,
			Flow:                 config.FlowPaginated,
			CharsPerPage:         1024,
			SelectionQuietWindow: time.Second,
		},
		Cover: config.CoverConfig{Enable: true, MaxWidth: 600, MaxHeight: 800, JPEGQuality: 75},
	}
}

// recorder collects dispatched events.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Dispatch(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *recorder) count(typ string) int {
	n := 0
	for _, e := range r.all() {
		if e.Type() == typ {
			n++
		}
	}
	return n
}

func (r *recorder) types() []string {
	var out []string
	for _, e := range r.all() {
		out = append(out, e.Type())
	}
	return out
}

// fakeScheduler never fires on its own, test calls Fire to simulate end of
// quiet window.
type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	s       *fakeScheduler
	delay   time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (s *fakeScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{s: s, delay: d, fn: fn}
	s.timers = append(s.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Fire runs all pending timers and returns how many fired.
func (s *fakeScheduler) Fire() int {
	s.mu.Lock()
	var due []*fakeTimer
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			t.fired = true
			due = append(due, t)
		}
	}
	s.mu.Unlock()

	for _, t := range due {
		t.fn()
	}
	return len(due)
}

func (s *fakeScheduler) scheduled() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}
