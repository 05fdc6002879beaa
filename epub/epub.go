// Package epub reads EPUB publications: container, package document, spine,
// navigation and content documents. Publication could be read from zip
// archive or from unpacked directory.
package epub

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"slices"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/language"

	"cfinav/archive"
	"cfinav/config"
)

var (
	// ErrPackage is returned when publication structure is broken beyond repair.
	ErrPackage = errors.New("invalid publication package")
	// ErrNotFound is returned when href does not point to a spine item or anchor.
	ErrNotFound = errors.New("not found")
	// ErrNoCover is returned when publication does not declare cover image.
	ErrNoCover = errors.New("no cover image")
)

// Metadata keeps the part of publication metadata used by the reader.
type Metadata struct {
	Title       string
	Creators    []string
	Identifier  string
	Language    language.Tag
	RawLanguage string
}

// Lang returns BCP 47 language of the publication or empty string when it
// is unknown.
func (m Metadata) Lang() string {
	if m.Language == language.Und {
		return ""
	}
	return m.Language.String()
}

// Book is opened publication.
type Book struct {
	Metadata    Metadata
	Spine       []*SpineItem
	Navigation  []NavPoint
	PackagePath string
	NavPath     string

	fsys     fs.FS
	closer   io.Closer
	manifest map[string]manifestItem
	byHref   map[string]*SpineItem
	coverID  string
	log      *zap.Logger
}

type manifestItem struct {
	ID         string
	Href       string
	MediaType  string
	Properties []string
}

func (m manifestItem) has(property string) bool {
	return slices.Contains(m.Properties, property)
}

// OpenFile opens publication located at name. Archives are expected for
// config.InputTypeEpub, in which case non UTF-8 entry names are decoded
// with cp (if not nil).
func OpenFile(name string, it config.InputType, cp encoding.Encoding, log *zap.Logger) (*Book, error) {
	switch it {
	case config.InputTypeDirectory:
		info, err := os.Stat(name)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%s is not a directory", name)
		}
		return Open(os.DirFS(name), log)
	case config.InputTypeEpub:
		a, err := archive.Open(name, cp)
		if err != nil {
			return nil, err
		}
		b, err := Open(a, log)
		if err != nil {
			return nil, multierr.Append(err, a.Close())
		}
		b.closer = a
		return b, nil
	default:
		return nil, fmt.Errorf("unsupported input type %s", it)
	}
}

// Open reads publication structure from fsys. Content documents are loaded
// lazily.
func Open(fsys fs.FS, log *zap.Logger) (*Book, error) {
	log = log.Named("epub")

	opf, err := rootfile(fsys)
	if err != nil {
		return nil, err
	}
	b := &Book{
		PackagePath: opf,
		fsys:        fsys,
		manifest:    make(map[string]manifestItem),
		byHref:      make(map[string]*SpineItem),
		log:         log,
	}
	if err := b.readPackage(); err != nil {
		return nil, err
	}

	// missing or broken navigation is not fatal, book is still readable
	if b.NavPath != "" {
		if b.Navigation, err = b.readNavigation(); err != nil {
			log.Warn("Unable to read navigation, ignoring", zap.String("path", b.NavPath), zap.Error(err))
		}
	}

	log.Debug("Publication opened",
		zap.String("package", b.PackagePath),
		zap.String("title", b.Metadata.Title),
		zap.Stringer("lang", b.Metadata.Language),
		zap.Int("spine", len(b.Spine)),
		zap.Int("nav points", countNavPoints(b.Navigation)),
	)
	return b, nil
}

// Close releases underlying archive if any and drops loaded documents.
func (b *Book) Close() error {
	for _, item := range b.Spine {
		item.Unload()
	}
	if b.closer == nil {
		return nil
	}
	err := b.closer.Close()
	b.closer = nil
	return err
}

// Item returns spine item for spine index.
func (b *Book) Item(index int) (*SpineItem, bool) {
	if index < 0 || index >= len(b.Spine) {
		return nil, false
	}
	return b.Spine[index], true
}

// ItemByHref returns spine item for href relative to publication root.
// Fragment if present is ignored.
func (b *Book) ItemByHref(href string) (*SpineItem, bool) {
	p, _, _ := strings.Cut(href, "#")
	item, ok := b.byHref[path.Clean(p)]
	return item, ok
}

// ReadFile reads publication resource, name is relative to publication root.
func (b *Book) ReadFile(name string) ([]byte, error) {
	return fs.ReadFile(b.fsys, name)
}

// resolvePath makes href found in document located at base relative to
// publication root. External references are returned unchanged.
func resolvePath(base, href string) string {
	if strings.Contains(href, "://") || strings.HasPrefix(href, "mailto:") {
		return href
	}
	p, frag, hasFrag := strings.Cut(href, "#")
	p = unescape(p)
	if p == "" {
		p = base
	} else {
		p = path.Join(path.Dir(base), p)
	}
	if hasFrag {
		return p + "#" + frag
	}
	return p
}
