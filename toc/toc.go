// Package toc anchors navigation tree of the publication to comparable
// document addresses, so current section could be found for any position.
package toc

import (
	"context"
	"errors"
	"slices"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"cfinav/cfi"
	"cfinav/epub"
)

// ErrResolution marks navigation entry which target could not be found.
// Such entries are dropped during Build and never reported to the caller.
var ErrResolution = errors.New("unable to resolve navigation target")

// Entry is a navigation point anchored to the address of its target.
type Entry struct {
	Label string      `json:"label"`
	Href  string      `json:"href"`
	CFI   cfi.Locator `json:"cfi"`
}

// Resolver converts navigation href into point address.
type Resolver interface {
	ResolveHref(ctx context.Context, href string) (cfi.Locator, error)
}

// ResolverFunc is an adapter to allow the use of ordinary functions as Resolver.
type ResolverFunc func(ctx context.Context, href string) (cfi.Locator, error)

func (f ResolverFunc) ResolveHref(ctx context.Context, href string) (cfi.Locator, error) {
	return f(ctx, href)
}

// Options controls TOC building.
type Options struct {
	// Concurrency limits number of resolutions running at the same time,
	// zero or negative value means no limit.
	Concurrency int
}

// TOC is immutable list of entries sorted in reading order.
type TOC struct {
	title   string
	entries []Entry
}

// Build flattens navigation tree in pre-order and resolves every entry
// concurrently. Entries which could not be resolved are dropped. Resulting
// entries are sorted by their addresses, entries with equal addresses keep
// navigation order.
func Build(ctx context.Context, nav []epub.NavPoint, title string, r Resolver, opts Options, log *zap.Logger) *TOC {
	log = log.Named("toc")

	var flat []Entry
	var flatten func([]epub.NavPoint)
	flatten = func(points []epub.NavPoint) {
		for _, p := range points {
			flat = append(flat, Entry{Label: strings.TrimSpace(p.Label), Href: p.Href})
			flatten(p.Children)
		}
	}
	flatten(nav)

	resolved := make([]bool, len(flat))

	g, gctx := errgroup.WithContext(ctx)
	if opts.Concurrency > 0 {
		g.SetLimit(opts.Concurrency)
	}
	for i := range flat {
		g.Go(func() error {
			l, err := resolve(gctx, r, flat[i].Href)
			if err != nil {
				log.Debug("Navigation entry dropped", zap.String("label", flat[i].Label), zap.String("href", flat[i].Href), zap.Error(err))
				return nil
			}
			// every goroutine owns its own slot
			flat[i].CFI, resolved[i] = l.Collapse(true), true
			return nil
		})
	}
	// resolution failures are never returned, so Wait only synchronizes
	_ = g.Wait()

	t := &TOC{title: title, entries: make([]Entry, 0, len(flat))}
	for i, e := range flat {
		if resolved[i] {
			t.entries = append(t.entries, e)
		}
	}
	slices.SortStableFunc(t.entries, func(a, b Entry) int {
		return cfi.Compare(a.CFI, b.CFI)
	})

	log.Debug("TOC built", zap.Int("navigation entries", len(flat)), zap.Int("resolved", len(t.entries)))
	return t
}

func resolve(ctx context.Context, r Resolver, href string) (cfi.Locator, error) {
	if href == "" {
		return cfi.Locator{}, errors.Join(ErrResolution, errors.New("empty href"))
	}
	if err := ctx.Err(); err != nil {
		return cfi.Locator{}, err
	}
	l, err := r.ResolveHref(ctx, href)
	if err != nil {
		return cfi.Locator{}, errors.Join(ErrResolution, err)
	}
	if l.IsZero() {
		return cfi.Locator{}, errors.Join(ErrResolution, errors.New("empty address"))
	}
	return l, nil
}

// SectionFor returns the last entry which address is not after l. When l
// precedes all entries (or TOC is empty) synthetic root entry labeled with
// book title is returned. Of entries with equal addresses the later one wins.
func (t *TOC) SectionFor(l cfi.Locator) Entry {
	if t == nil {
		return Entry{}
	}
	// first entry strictly after l
	i, _ := slices.BinarySearchFunc(t.entries, l, func(e Entry, target cfi.Locator) int {
		if cfi.Compare(e.CFI, target) <= 0 {
			return -1
		}
		return 1
	})
	if i == 0 {
		return t.Root()
	}
	return t.entries[i-1]
}

// Root returns synthetic entry for positions before the first navigation
// point.
func (t *TOC) Root() Entry {
	if t == nil {
		return Entry{}
	}
	return Entry{Label: t.title}
}

// Entries returns copy of sorted entries.
func (t *TOC) Entries() []Entry {
	if t == nil {
		return nil
	}
	return slices.Clone(t.entries)
}

// Len returns number of resolved entries.
func (t *TOC) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}
