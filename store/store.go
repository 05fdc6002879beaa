// Package store persists generated location tables between runs, so they do
// not have to be regenerated every time the book is opened.
package store

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/zeebo/blake3"
	"go.uber.org/zap"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

const schema = `
CREATE TABLE IF NOT EXISTS locations (
	key     TEXT PRIMARY KEY,
	data    TEXT NOT NULL,
	updated INTEGER NOT NULL
);`

// Cache keeps serialized location tables keyed by book content hash.
type Cache struct {
	mu   sync.Mutex
	conn *sqlite.Conn
	log  *zap.Logger
}

// Open opens (creating if necessary) cache database at path.
func Open(path string, log *zap.Logger) (*Cache, error) {
	conn, err := sqlite.OpenConn(path, sqlite.OpenReadWrite, sqlite.OpenCreate, sqlite.OpenWAL)
	if err != nil {
		return nil, fmt.Errorf("unable to open cache %s: %w", path, err)
	}
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("unable to prepare cache %s: %w", path, err)
	}
	return &Cache{conn: conn, log: log.Named("store")}, nil
}

// Close releases database.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Close()
}

// Get returns saved location table for the key.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.conn.SetInterrupt(c.conn.SetInterrupt(ctx.Done()))

	var (
		data  []byte
		found bool
	)
	err := sqlitex.Execute(c.conn, `SELECT data FROM locations WHERE key = ?`,
		&sqlitex.ExecOptions{
			Args: []any{key},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				data, found = []byte(stmt.ColumnText(0)), true
				return nil
			}})
	if err != nil {
		return nil, false, fmt.Errorf("unable to read locations for %s: %w", key, err)
	}
	c.log.Debug("Cache lookup", zap.String("key", key), zap.Bool("found", found))
	return data, found, nil
}

// Put saves location table for the key replacing previous one.
func (c *Cache) Put(ctx context.Context, key string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.conn.SetInterrupt(c.conn.SetInterrupt(ctx.Done()))

	err := sqlitex.Execute(c.conn, `INSERT INTO locations (key, data, updated) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET data = excluded.data, updated = excluded.updated`,
		&sqlitex.ExecOptions{Args: []any{key, string(data), time.Now().Unix()}})
	if err != nil {
		return fmt.Errorf("unable to save locations for %s: %w", key, err)
	}
	c.log.Debug("Locations cached", zap.String("key", key), zap.Int("size", len(data)))
	return nil
}

// Key returns cache key for location table of the book located at path cut
// into pages of charsPerPage characters: BLAKE3 hash of page size and archive
// content or, for unpacked publications, of all file names and contents.
func Key(path string, charsPerPage int) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}

	h := blake3.New()
	fmt.Fprintf(h, "chars_per_page=%d", charsPerPage)
	h.Write([]byte{0})
	if !info.IsDir() {
		if err := hashFile(h, path); err != nil {
			return "", err
		}
		return hex.EncodeToString(h.Sum(nil)), nil
	}

	fsys := os.DirFS(path)
	err = fs.WalkDir(fsys, ".", func(name string, d fs.DirEntry, err error) error {
		if err != nil || !d.Type().IsRegular() {
			return err
		}
		// names are hashed so moving content around changes the key
		io.WriteString(h, name)
		h.Write([]byte{0})
		f, err := fsys.Open(name)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(h, f)
		return err
	})
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func hashFile(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}
