package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/beevik/etree"
	cli "github.com/urfave/cli/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"cfinav/cfi"
	"cfinav/config"
	"cfinav/epub"
	"cfinav/locations"
	"cfinav/reader"
	"cfinav/state"
	"cfinav/store"
	"cfinav/toc"
)

var errNoBook = errors.New("no book has been specified")

// bookInputType selects how book path is interpreted: command line, then
// path itself (directories are always unpacked books), then configuration.
func bookInputType(cmd *cli.Command, cfg *config.Config, src string) (config.InputType, error) {
	if name := cmd.String("input-type"); len(name) > 0 {
		return config.ParseInputType(name)
	}
	if fi, err := os.Stat(src); err == nil && fi.IsDir() {
		return config.InputTypeDirectory, nil
	}
	return cfg.Reader.InputType, nil
}

func openForCommand(cmd *cli.Command, env *state.LocalEnv) (*epub.Book, string, error) {
	if cmd.Args().Len() == 0 {
		return nil, "", errNoBook
	}
	src := cmd.Args().Get(0)
	it, err := bookInputType(cmd, env.Cfg, src)
	if err != nil {
		return nil, "", fmt.Errorf("unable to interpret input type: %w", err)
	}
	if err := env.Rpt.StoreCopy("book/"+filepath.Base(src), src); err != nil {
		env.Log.Warn("Unable to store book in debug report", zap.Error(err))
	}
	book, err := epub.OpenFile(src, it, env.CodePage, env.Log)
	if err != nil {
		return nil, "", err
	}
	return book, src, nil
}

// locationsKey returns cache key for location table with pages of perPage
// characters, empty when cache is not used.
func locationsKey(env *state.LocalEnv, src string, perPage int) string {
	if env.Cache == nil {
		return ""
	}
	key, err := store.Key(src, perPage)
	if err != nil {
		env.Log.Warn("Unable to calculate book key, cache is not used", zap.String("book", src), zap.Error(err))
		return ""
	}
	return key
}

// cachedLocations returns serialized location table for the book from the
// cache together with the cache key. Any cache problem results in empty
// values, locations are simply regenerated then.
func cachedLocations(ctx context.Context, env *state.LocalEnv, src string, perPage int) ([]byte, string) {
	key := locationsKey(env, src, perPage)
	if len(key) == 0 {
		return nil, ""
	}
	data, ok, err := env.Cache.Get(ctx, key)
	if err != nil {
		env.Log.Warn("Unable to read location cache", zap.Error(err))
		return nil, key
	}
	if !ok {
		return nil, key
	}
	return data, key
}

func cacheLocations(ctx context.Context, env *state.LocalEnv, key string, data []byte) {
	if env.Cache == nil || len(key) == 0 {
		return
	}
	if err := env.Cache.Put(ctx, key, data); err != nil {
		env.Log.Warn("Unable to store locations in cache", zap.Error(err))
	}
}

func openBook(ctx context.Context, cmd *cli.Command) (err error) {
	env := state.EnvFromContext(ctx)
	log := env.Log.Named("open")

	if cmd.Args().Len() == 0 {
		return errNoBook
	}
	if cmd.Args().Len() > 2 {
		log.Warn("Malformed command line, too many arguments", zap.Strings("ignoring", cmd.Args().Slice()[2:]))
	}
	src, target := cmd.Args().Get(0), cmd.Args().Get(1)

	it, err := bookInputType(cmd, env.Cfg, src)
	if err != nil {
		return fmt.Errorf("unable to interpret input type: %w", err)
	}
	flow := env.Cfg.Reader.Flow
	if name := cmd.String("flow"); len(name) > 0 {
		if flow, err = config.ParseFlow(name); err != nil {
			return fmt.Errorf("unable to interpret reading flow: %w", err)
		}
	}

	var saved []byte
	if fname := cmd.String("locations"); len(fname) > 0 {
		if saved, err = os.ReadFile(fname); err != nil {
			return fmt.Errorf("unable to read saved locations: %w", err)
		}
	}
	cached, key := cachedLocations(ctx, env, src, env.Cfg.Reader.CharsPerPage)
	if saved == nil {
		saved = cached
	}

	if err := env.Rpt.StoreCopy("book/"+filepath.Base(src), src); err != nil {
		log.Warn("Unable to store book in debug report", zap.Error(err))
	}

	out := os.Stdout
	d := reader.DispatcherFunc(func(e reader.Event) {
		data, err := reader.MarshalEvent(e)
		if err != nil {
			log.Warn("Unable to encode event", zap.String("type", e.Type()), zap.Error(err))
			return
		}
		if _, err := out.Write(append(data, '\n')); err != nil {
			log.Warn("Unable to report event", zap.String("type", e.Type()), zap.Error(err))
		}
		if g, ok := e.(reader.LocationsGenerated); ok {
			cacheLocations(ctx, env, key, []byte(g.Payload))
		}
	})

	r := reader.New(env.Cfg, reader.HeadlessFactory{}, d, env.Log, reader.WithCodePage(env.CodePage))
	defer func() {
		err = multierr.Append(err, r.Close())
	}()

	if err := r.Open(ctx, reader.OpenRequest{
		FileName:       src,
		InputType:      it,
		InitialCFI:     target,
		Render:         reader.RenderOptions{Flow: flow},
		SavedLocations: saved,
	}); err != nil {
		return err
	}
	for range cmd.Int("pages") {
		if err := r.Rendition().Next(ctx); err != nil {
			return fmt.Errorf("unable to turn page: %w", err)
		}
	}
	return r.Wait()
}

func printTOC(ctx context.Context, cmd *cli.Command) (err error) {
	env := state.EnvFromContext(ctx)

	book, _, err := openForCommand(cmd, env)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, book.Close())
	}()

	t := toc.Build(ctx, book.Navigation, book.Metadata.Title, book, toc.Options{Concurrency: env.Cfg.Reader.TOCConcurrency}, env.Log)
	fmt.Fprint(os.Stdout, book.DumpNavigation())
	fmt.Fprint(os.Stdout, t.Dump())
	return nil
}

func generateLocations(ctx context.Context, cmd *cli.Command) (err error) {
	env := state.EnvFromContext(ctx)
	log := env.Log.Named("locations")

	book, src, err := openForCommand(cmd, env)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, book.Close())
	}()

	dst := cmd.Args().Get(1)
	if len(dst) == 0 {
		base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
		dst = config.CleanFileName(base) + ".locations.json"
	}
	if _, err := os.Stat(dst); err == nil && !cmd.Bool("overwrite") {
		return fmt.Errorf("destination file '%s' already exists", dst)
	}

	perPage := env.Cfg.Reader.CharsPerPage
	if n := cmd.Int("chars-per-page"); n > 0 {
		perPage = n
	}
	table, err := locations.Generate(ctx, book.Spine, perPage, env.Log)
	if err != nil {
		return fmt.Errorf("unable to generate locations: %w", err)
	}
	data, err := table.Save()
	if err != nil {
		return fmt.Errorf("unable to serialize locations: %w", err)
	}
	if err := os.WriteFile(dst, data, 0644); err != nil {
		return fmt.Errorf("unable to write locations: %w", err)
	}
	env.Rpt.Store("locations/"+filepath.Base(dst), dst)
	log.Info("Locations generated", zap.String("file", dst), zap.Int("total", table.Total()))

	cacheLocations(ctx, env, locationsKey(env, src, perPage), data)
	return nil
}

type located struct {
	Position reader.Position `json:"position"`
	Text     string          `json:"text"`
}

func locate(ctx context.Context, cmd *cli.Command) (err error) {
	env := state.EnvFromContext(ctx)

	if cmd.Args().Len() < 2 {
		return errors.New("both book and CFI must be specified")
	}
	target, err := cfi.Parse(cmd.Args().Get(1))
	if err != nil {
		return err
	}

	book, src, err := openForCommand(cmd, env)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, book.Close())
	}()

	var table *locations.Table
	cached, key := cachedLocations(ctx, env, src, env.Cfg.Reader.CharsPerPage)
	if cached != nil {
		if table, err = locations.Load(cached); err != nil {
			env.Log.Warn("Unable to load cached locations, regenerating", zap.Error(err))
			table = nil
		}
	}
	if table == nil {
		if table, err = locations.Generate(ctx, book.Spine, env.Cfg.Reader.CharsPerPage, env.Log); err != nil {
			return fmt.Errorf("unable to generate locations: %w", err)
		}
		if data, err := table.Save(); err == nil {
			cacheLocations(ctx, env, key, data)
		}
	}
	t := toc.Build(ctx, book.Navigation, book.Metadata.Title, book, toc.Options{Concurrency: env.Cfg.Reader.TOCConcurrency}, env.Log)

	item, ok := book.Item(target.SpineIndex())
	if !ok {
		return fmt.Errorf("%s does not point into the spine", target)
	}
	doc, err := item.Document(ctx)
	if err != nil {
		return err
	}
	p, err := cfi.Resolve(doc, target)
	if err != nil {
		return err
	}

	n := target.SpineIndex()
	total := len(book.Spine)
	loc := reader.Location{
		Start:   reader.Edge{CFI: target.Collapse(true), Percentage: float64(n) / float64(total)},
		End:     reader.Edge{CFI: target.Collapse(false), Percentage: float64(n+1) / float64(total)},
		AtStart: n == 0,
		AtEnd:   n == total-1,
	}
	res := located{
		Position: reader.Project(loc, t, table, total),
		Text:     textAt(p),
	}
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(append(data, '\n'))
	return err
}

// textAt returns text starting at point: the rest of the text node or the
// whole text of the element.
func textAt(p cfi.Point) string {
	switch n := p.Node.(type) {
	case *etree.CharData:
		if p.Offset <= 0 {
			return n.Data
		}
		if p.Offset >= utf8.RuneCountInString(n.Data) {
			return ""
		}
		return string([]rune(n.Data)[p.Offset:])
	case *etree.Element:
		var b strings.Builder
		collectText(&b, n)
		return b.String()
	}
	return ""
}

func collectText(b *strings.Builder, el *etree.Element) {
	for _, t := range el.Child {
		switch v := t.(type) {
		case *etree.CharData:
			b.WriteString(v.Data)
		case *etree.Element:
			collectText(b, v)
		}
	}
}
