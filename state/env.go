// Package state defines shared program state.
package state

import (
	"context"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"

	"cfinav/config"
	"cfinav/store"
)

type envKey struct{}

// LocalEnv keeps everything program needs in a single place.
type LocalEnv struct {
	Cfg *config.Config
	Rpt *config.Report
	Log *zap.Logger

	// non UTF-8 file names in book archives
	CodePage encoding.Encoding
	// saved location tables, nil when caching is disabled
	Cache *store.Cache

	start         time.Time
	restoreStdLog func()
}

func EnvFromContext(ctx context.Context) *LocalEnv {
	if env, ok := ctx.Value(envKey{}).(*LocalEnv); ok {
		return env
	}
	// this should never happen
	panic("localenv not found in context")
}

func ContextWithEnv(ctx context.Context) context.Context {
	return context.WithValue(ctx, envKey{}, newLocalEnv())
}

func (e *LocalEnv) Uptime() time.Duration {
	return time.Since(e.start)
}

// SetCodePage selects encoding for file names in old archives. Unknown
// names are reported and ignored.
func (e *LocalEnv) SetCodePage(name string) {
	e.CodePage = nil
	if len(name) == 0 {
		return
	}
	cp, err := ianaindex.IANA.Encoding(name)
	if err != nil || cp == nil {
		e.logger().Warn("Unknown character set specification. Ignoring...", zap.String("charset", name), zap.Error(err))
		return
	}
	e.CodePage = cp
	n, _ := ianaindex.IANA.Name(cp)
	e.logger().Debug("Forcefully converting all non UTF-8 file names in archives", zap.String("charset", n))
}

// OpenCache opens location table cache when it is enabled in configuration.
func (e *LocalEnv) OpenCache() error {
	if e.Cfg == nil || !e.Cfg.Cache.Enable || e.Cache != nil {
		return nil
	}
	path := e.Cfg.Cache.Destination
	if len(path) == 0 {
		var err error
		if path, err = defaultCachePath(); err != nil {
			return err
		}
	}
	cache, err := store.Open(path, e.logger())
	if err != nil {
		return err
	}
	e.Cache = cache
	e.logger().Debug("Location cache opened", zap.String("path", path))
	return nil
}

// Close releases resources owned by environment.
func (e *LocalEnv) Close() (err error) {
	if e.Cache != nil {
		err = multierr.Append(err, e.Cache.Close())
		e.Cache = nil
	}
	return err
}

func (e *LocalEnv) RedirectStdLog() {
	if e.Log == nil {
		return
	}
	e.restoreStdLog = zap.RedirectStdLog(e.Log)
}

func (e *LocalEnv) RestoreStdLog() {
	if e.Log != nil {
		_ = e.Log.Sync()
	}
	if e.restoreStdLog != nil {
		e.restoreStdLog()
	}
}

func (e *LocalEnv) logger() *zap.Logger {
	if e.Log == nil {
		return zap.NewNop()
	}
	return e.Log
}
