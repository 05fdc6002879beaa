// Package locations builds uniformly spaced pseudo-page index of the whole
// work, used for progress display.
package locations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"unicode/utf8"

	"github.com/beevik/etree"
	"go.uber.org/zap"

	"cfinav/cfi"
)

// DefaultCharsPerPage is the page size used by Adobe Digital Editions, keeping
// it makes progress comparable across reading applications.
const DefaultCharsPerPage = 1024

// ErrInvalidData is returned when saved location table could not be restored.
var ErrInvalidData = errors.New("invalid location data")

// Section is a single content document of the work in reading order.
type Section interface {
	CFIBase() []cfi.Step
	Document(ctx context.Context) (*etree.Document, error)
}

// Table is immutable ordered sequence of locators, each marking the start of
// one pseudo-page.
type Table struct {
	entries []cfi.Locator
}

// Generate walks text of every spine item in order and cuts it into pages of
// charsPerPage characters. Each spine item starts new page. Generation either
// completes or fails - partial tables are never returned.
func Generate[S Section](ctx context.Context, spine []S, charsPerPage int, log *zap.Logger) (*Table, error) {
	if charsPerPage <= 0 {
		charsPerPage = DefaultCharsPerPage
	}

	t := &Table{}
	for i, section := range spine {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc, err := section.Document(ctx)
		if err != nil {
			return nil, fmt.Errorf("unable to load spine item %d: %w", i, err)
		}
		before := len(t.entries)
		t.entries = append(t.entries, paginate(doc, section.CFIBase(), charsPerPage)...)
		log.Debug("Spine item paginated", zap.Int("index", i), zap.Int("pages", len(t.entries)-before))
	}
	log.Debug("Location table generated", zap.Int("total", len(t.entries)), zap.Int("chars per page", charsPerPage))
	return t, nil
}

// paginate emits locator at the first character of every charsPerPage run of
// document text. Whitespace only text nodes are not counted.
func paginate(doc *etree.Document, base []cfi.Step, charsPerPage int) []cfi.Locator {
	root := doc.Root()
	if root == nil {
		return nil
	}
	if body := root.SelectElement("body"); body != nil {
		root = body
	}

	var (
		out     []cfi.Locator
		counter int
	)
	walkText(root, func(cd *etree.CharData) {
		if cd.IsWhitespace() {
			return
		}
		length := utf8.RuneCountInString(cd.Data)
		for pos := 0; pos < length; {
			if counter == 0 {
				out = append(out, cfi.FromText(base, cd, pos))
			}
			step := min(charsPerPage-counter, length-pos)
			pos += step
			counter += step
			if counter == charsPerPage {
				counter = 0
			}
		}
	})
	return out
}

func walkText(el *etree.Element, fn func(*etree.CharData)) {
	for _, t := range el.Child {
		switch v := t.(type) {
		case *etree.CharData:
			fn(v)
		case *etree.Element:
			walkText(v, fn)
		}
	}
}

// Load restores table previously produced by Save. Table is not checked
// against the document - this is caller's responsibility.
func Load(data []byte) (*Table, error) {
	var raw []string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: not a list of locators", ErrInvalidData)
	}
	t := &Table{entries: make([]cfi.Locator, 0, len(raw))}
	for i, s := range raw {
		l, err := cfi.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", ErrInvalidData, i, err)
		}
		if n := len(t.entries); n > 0 && cfi.Compare(t.entries[n-1], l) > 0 {
			return nil, fmt.Errorf("%w: entry %d is out of order", ErrInvalidData, i)
		}
		t.entries = append(t.entries, l)
	}
	return t, nil
}

// Save serializes table as JSON array of locator strings.
func (t *Table) Save() ([]byte, error) {
	raw := make([]string, 0, len(t.entries))
	for _, l := range t.entries {
		raw = append(raw, l.String())
	}
	return json.Marshal(raw)
}

// Total returns number of pseudo-pages.
func (t *Table) Total() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// IndexOf returns index of the page containing locator: greatest i such that
// entry i <= l, or -1 when l precedes the first page.
func (t *Table) IndexOf(l cfi.Locator) int {
	if t == nil {
		return -1
	}
	return sort.Search(len(t.entries), func(i int) bool {
		return cfi.Compare(t.entries[i], l) > 0
	}) - 1
}

// Locator returns start of page i.
func (t *Table) Locator(i int) (cfi.Locator, bool) {
	if t == nil || i < 0 || i >= len(t.entries) {
		return cfi.Locator{}, false
	}
	return t.entries[i], true
}

// Percentage returns progress through the work for locator in [0, 1].
func (t *Table) Percentage(l cfi.Locator) float64 {
	total := t.Total()
	if total == 0 {
		return 0
	}
	idx := t.IndexOf(l)
	if idx < 0 {
		return 0
	}
	return float64(idx) / float64(total)
}
