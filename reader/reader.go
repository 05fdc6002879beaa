// Package reader coordinates opened book, its rendition and the host: it
// anchors navigation to document addresses, keeps location table, projects
// every relocation into reading position and handles text selection.
package reader

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/encoding"

	"cfinav/config"
	"cfinav/epub"
	"cfinav/locations"
	"cfinav/toc"
	"cfinav/utils/images"
)

// ErrOpen is returned when book could not be opened under any file name
// decoding.
var ErrOpen = errors.New("unable to open book")

// OpenRequest is a command to open the book.
type OpenRequest struct {
	FileName  string
	InputType config.InputType
	// Position to display after the start of the book, optional.
	InitialCFI string
	Render     RenderOptions
	// Serialized location table from previous run, optional.
	SavedLocations []byte
}

// Option modifies reader.
type Option func(*Reader)

// WithScheduler replaces wall clock used for selection debouncing.
func WithScheduler(s Scheduler) Option {
	return func(r *Reader) { r.sched = s }
}

// WithCodePage sets encoding of non UTF-8 file names in book archives.
func WithCodePage(cp encoding.Encoding) Option {
	return func(r *Reader) { r.codePage = cp }
}

// Reader is a single book reading session.
type Reader struct {
	cfg      *config.Config
	factory  RenditionFactory
	dispatch Dispatcher
	sched    Scheduler
	codePage encoding.Encoding
	log      *zap.Logger

	bg       errgroup.Group
	debounce *Debouncer

	mu        sync.RWMutex
	book      *epub.Book
	rendition Rendition
	selection *selectionCoordinator
	toc       *toc.TOC
	table     *locations.Table
}

// New creates reader and reports that it is ready to accept commands.
func New(cfg *config.Config, factory RenditionFactory, d Dispatcher, log *zap.Logger, opts ...Option) *Reader {
	r := &Reader{
		cfg:      cfg,
		factory:  factory,
		dispatch: &serialDispatcher{next: d},
		log:      log.Named("reader"),
	}
	for _, o := range opts {
		o(r)
	}
	r.debounce = NewDebouncer(r.sched, cfg.Reader.SelectionQuietWindow)
	r.dispatch.Dispatch(Ready{})
	return r
}

// Open opens the book, attaches rendition and displays requested position.
// Navigation anchoring, cover retrieval and location table generation
// continue in background after Open returns, use Wait to synchronize.
func (r *Reader) Open(ctx context.Context, req OpenRequest) error {
	book, err := r.openBook(req.FileName, req.InputType)
	if err != nil {
		r.dispatch.Dispatch(BookError{Err: err})
		return err
	}

	r.mu.Lock()
	r.book = book
	r.mu.Unlock()

	r.dispatch.Dispatch(BookReady{})

	r.bg.Go(func() error {
		r.buildTOC(ctx, book)
		return nil
	})
	r.bg.Go(func() error {
		r.retrieveCover(book)
		return nil
	})

	rendition, err := r.factory.Render(book, req.Render)
	if err != nil {
		return fmt.Errorf("unable to render book: %w", err)
	}
	sel := newSelectionCoordinator(rendition, book.Metadata.Lang(), r.debounce, r.dispatch.Dispatch, r.log)

	r.mu.Lock()
	r.rendition, r.selection = rendition, sel
	r.mu.Unlock()

	rendition.Subscribe(&renditionEvents{r: r, ctx: ctx})

	if err := rendition.Display(ctx, ""); err != nil {
		return fmt.Errorf("unable to display book: %w", err)
	}
	if req.InitialCFI != "" {
		if err := rendition.Display(ctx, req.InitialCFI); err != nil {
			return fmt.Errorf("unable to display %s: %w", req.InitialCFI, err)
		}
	}
	r.dispatch.Dispatch(RenditionReady{})

	if len(req.SavedLocations) > 0 {
		table, err := locations.Load(req.SavedLocations)
		if err == nil {
			r.setTable(table)
			r.dispatch.Dispatch(LocationsReady{})
			return nil
		}
		r.log.Warn("Unable to load saved locations, regenerating", zap.Error(err))
	}
	r.bg.Go(func() error {
		r.generateLocations(ctx, book)
		return nil
	})
	return nil
}

// openBook tries URL decoded file name first and then the name as is.
func (r *Reader) openBook(name string, it config.InputType) (*epub.Book, error) {
	var (
		errs  error
		tried = make(map[string]bool, 2)
	)
	candidates := []string{name}
	if decoded, err := url.PathUnescape(name); err == nil {
		candidates = []string{decoded, name}
	} else {
		errs = multierr.Append(errs, fmt.Errorf("unable to decode file name: %w", err))
	}
	for _, n := range candidates {
		if tried[n] {
			continue
		}
		tried[n] = true
		book, err := epub.OpenFile(n, it, r.codePage, r.log)
		if err == nil {
			r.log.Debug("Book opened", zap.String("file", n), zap.String("title", book.Metadata.Title), zap.Int("spine", len(book.Spine)))
			return book, nil
		}
		r.log.Debug("Unable to open book", zap.String("file", n), zap.Error(err))
		errs = multierr.Append(errs, err)
	}
	return nil, fmt.Errorf("%w %s: %w", ErrOpen, name, errs)
}

func (r *Reader) buildTOC(ctx context.Context, book *epub.Book) {
	t := toc.Build(ctx, book.Navigation, book.Metadata.Title, book, toc.Options{Concurrency: r.cfg.Reader.TOCConcurrency}, r.log)

	r.mu.Lock()
	r.toc = t
	r.mu.Unlock()
}

func (r *Reader) retrieveCover(book *epub.Book) {
	var payload *string
	defer func() {
		r.dispatch.Dispatch(Cover{Payload: payload})
	}()

	if !r.cfg.Cover.Enable {
		return
	}
	data, mime, err := book.Cover()
	if err != nil {
		r.log.Debug("Cover is not available", zap.Error(err))
		return
	}
	data, mime, err = images.PrepareCover(data, mime, &r.cfg.Cover)
	if err != nil {
		r.log.Warn("Unable to prepare cover", zap.Error(err))
		return
	}
	encoded := images.EncodeCover(data)
	payload = &encoded
	r.log.Debug("Cover prepared", zap.String("type", mime), zap.Int("size", len(data)))
}

func (r *Reader) generateLocations(ctx context.Context, book *epub.Book) {
	table, err := locations.Generate(ctx, book.Spine, r.cfg.Reader.CharsPerPage, r.log)
	if err != nil {
		r.log.Warn("Unable to generate locations", zap.Error(err))
		return
	}
	data, err := table.Save()
	if err != nil {
		r.log.Warn("Unable to serialize locations", zap.Error(err))
		return
	}
	r.setTable(table)
	r.dispatch.Dispatch(LocationsGenerated{Payload: string(data)})
}

func (r *Reader) setTable(t *locations.Table) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.table = t
}

// Wait blocks until background work started by Open is finished.
func (r *Reader) Wait() error {
	return r.bg.Wait()
}

// Close waits for background work and releases the book.
func (r *Reader) Close() (err error) {
	r.debounce.Stop()
	err = multierr.Append(err, r.Wait())

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.book != nil {
		err = multierr.Append(err, r.book.Close())
		r.book = nil
	}
	return err
}

// Book returns opened book, nil before successful Open.
func (r *Reader) Book() *epub.Book {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.book
}

// Rendition returns attached rendition, nil before successful Open.
func (r *Reader) Rendition() Rendition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rendition
}

// TOC returns navigation anchored to addresses, nil until it is built.
func (r *Reader) TOC() *toc.TOC {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.toc
}

// Locations returns location table, nil until it is ready.
func (r *Reader) Locations() *locations.Table {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.table
}

// ClearSelection removes last reported selection.
func (r *Reader) ClearSelection() {
	r.mu.RLock()
	sel := r.selection
	r.mu.RUnlock()

	if sel != nil {
		sel.clearSelection()
	}
}

// Position projects location onto current TOC and location table.
func (r *Reader) Position(loc Location) Position {
	r.mu.RLock()
	defer r.mu.RUnlock()

	spineLen := 0
	if r.book != nil {
		spineLen = len(r.book.Spine)
	}
	return Project(loc, r.toc, r.table, spineLen)
}

// renditionEvents keeps observer methods off the Reader API.
type renditionEvents struct {
	r   *Reader
	ctx context.Context
}

func (o *renditionEvents) OnRelocated(loc Location) {
	o.r.dispatch.Dispatch(Relocated{Position: o.r.Position(loc)})
}

func (o *renditionEvents) OnContentAttached(s Surface) {
	if sel := o.r.selectionCoordinator(); sel != nil {
		sel.attach(s)
	}
}

func (o *renditionEvents) OnSelectionChanged(cfiRange string) {
	if sel := o.r.selectionCoordinator(); sel != nil {
		sel.selectionChanged(o.ctx, cfiRange)
	}
}

func (r *Reader) selectionCoordinator() *selectionCoordinator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.selection
}
