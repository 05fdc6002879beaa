package epub

import (
	"context"
	"encoding/xml"
	"fmt"
	"io/fs"
	"slices"
	"sync"

	"github.com/beevik/etree"
	"go.uber.org/zap"

	"cfinav/cfi"
)

// SpineItem is one content document in reading order.
type SpineItem struct {
	Index     int
	IDRef     string
	Href      string
	MediaType string
	Linear    bool

	base []cfi.Step
	book *Book

	mu  sync.Mutex
	doc *etree.Document
}

// CFIBase returns package part of addresses pointing into this item.
func (s *SpineItem) CFIBase() []cfi.Step {
	return slices.Clone(s.base)
}

// Document loads and parses content document. Parsed tree is cached until
// Unload is called. Returned document must not be modified.
func (s *SpineItem) Document(ctx context.Context) (*etree.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.doc != nil {
		return s.doc, nil
	}
	if s.Href == "" {
		return nil, fmt.Errorf("%w: spine item %d (%s) has no manifest entry", ErrNotFound, s.Index, s.IDRef)
	}
	doc, err := readContentDocument(s.book.fsys, s.Href)
	if err != nil {
		return nil, err
	}
	s.book.log.Debug("Content document loaded", zap.Int("index", s.Index), zap.String("href", s.Href))
	s.doc = doc
	return doc, nil
}

// Unload drops cached document tree.
func (s *SpineItem) Unload() {
	s.mu.Lock()
	s.doc = nil
	s.mu.Unlock()
}

func readContentDocument(fsys fs.FS, name string) (*etree.Document, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", name, err)
	}
	doc := etree.NewDocument()
	// content documents in the wild are often sloppy XHTML with HTML entities
	doc.ReadSettings.Permissive = true
	doc.ReadSettings.Entity = xml.HTMLEntity
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", name, err)
	}
	if doc.Root() == nil {
		return nil, fmt.Errorf("%s has no root element", name)
	}
	return doc, nil
}
