// Package archive exposes content of zip archive as read-only fs.FS.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"path"
	"slices"
	"strings"

	"golang.org/x/text/encoding"
)

// WalkFunc is the type of the function called for each file in archive
// visited by Walk. The name argument is normalized (UTF-8) path of the file
// in archive. If an error is returned, processing stops.
type WalkFunc func(name string, file *zip.File) error

// Archive is opened zip file. Archive implements fs.FS and fs.ReadFileFS so
// packages could be read from archives and directories the same way.
type Archive struct {
	path  string
	r     *zip.ReadCloser
	files map[string]*zip.File
	names []string
}

// Open opens zip archive. Names of entries which are not marked as UTF-8 are
// decoded using cp when it is not nil. Archives with entries which could
// escape extraction directory are rejected to prevent Zip Slip attacks.
func Open(archive string, cp encoding.Encoding) (*Archive, error) {
	r, err := zip.OpenReader(archive)
	if err != nil {
		return nil, err
	}

	a := &Archive{
		path:  archive,
		r:     r,
		files: make(map[string]*zip.File, len(r.File)),
	}
	for _, f := range r.File {
		name := f.Name
		if f.NonUTF8 && cp != nil {
			if decoded, err := cp.NewDecoder().String(name); err == nil {
				name = decoded
			}
		}
		if !isSafePath(name) {
			r.Close()
			return nil, fmt.Errorf("zip entry %q: unsafe path (absolute or contains path traversal)", name)
		}
		if f.FileInfo().IsDir() {
			continue
		}
		name = strings.TrimPrefix(path.Clean(strings.ReplaceAll(name, `\`, "/")), "./")
		if _, ok := a.files[name]; ok {
			// first entry wins, same as most readers do
			continue
		}
		a.files[name] = f
		a.names = append(a.names, name)
	}
	slices.Sort(a.names)
	return a, nil
}

// Path returns location of the archive file.
func (a *Archive) Path() string {
	return a.path
}

// Close releases underlying archive file.
func (a *Archive) Close() error {
	return a.r.Close()
}

// Open implements fs.FS. Only regular files could be opened.
func (a *Archive) Open(name string) (fs.File, error) {
	f, err := a.lookup("open", name)
	if err != nil {
		return nil, err
	}
	rc, err := f.Open()
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	return &file{ReadCloser: rc, info: f.FileInfo()}, nil
}

// ReadFile implements fs.ReadFileFS.
func (a *Archive) ReadFile(name string) ([]byte, error) {
	f, err := a.lookup("read", name)
	if err != nil {
		return nil, err
	}
	rc, err := f.Open()
	if err != nil {
		return nil, &fs.PathError{Op: "read", Path: name, Err: err}
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, &fs.PathError{Op: "read", Path: name, Err: err}
	}
	return data, nil
}

// Walk walks the all files in the archive which names start with prefix in
// lexical order, calling walkFn for each item.
func (a *Archive) Walk(prefix string, walkFn WalkFunc) error {
	for _, name := range a.names {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		if err := walkFn(name, a.files[name]); err != nil {
			return err
		}
	}
	return nil
}

func (a *Archive) lookup(op, name string) (*zip.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: op, Path: name, Err: fs.ErrInvalid}
	}
	f, ok := a.files[name]
	if !ok {
		return nil, &fs.PathError{Op: op, Path: name, Err: fs.ErrNotExist}
	}
	return f, nil
}

type file struct {
	io.ReadCloser
	info fs.FileInfo
}

func (f *file) Stat() (fs.FileInfo, error) {
	return f.info, nil
}

// isSafePath returns false for paths that could escape the extraction
// directory: absolute paths and those containing ".." components.
func isSafePath(name string) bool {
	if path.IsAbs(name) || strings.HasPrefix(name, "/") || strings.HasPrefix(name, `\`) {
		return false
	}
	for _, part := range strings.FieldsFunc(name, func(r rune) bool { return r == '/' || r == '\\' }) {
		if part == ".." {
			return false
		}
	}
	return true
}
