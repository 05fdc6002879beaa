package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/beevik/etree"
	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap/zaptest"

	"cfinav/cfi"
	"cfinav/config"
	"cfinav/state"
	"cfinav/store"
)

func TestBookInputType(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{Reader: config.ReaderConfig{InputType: config.InputTypeEpub}}

	tests := []struct {
		name    string
		args    []string
		want    config.InputType
		wantErr bool
	}{
		{"configured", []string{"test", "book.epub"}, config.InputTypeEpub, false},
		{"directory", []string{"test", dir}, config.InputTypeDirectory, false},
		{"forced", []string{"test", "--input-type", "directory", "book.epub"}, config.InputTypeDirectory, false},
		{"bad flag", []string{"test", "--input-type", "fb2", "book.epub"}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				got    config.InputType
				gotErr error
			)
			cmd := &cli.Command{
				Name:  "test",
				Flags: []cli.Flag{&cli.StringFlag{Name: "input-type"}},
				Action: func(_ context.Context, cmd *cli.Command) error {
					got, gotErr = bookInputType(cmd, cfg, cmd.Args().First())
					return nil
				},
			}
			if err := cmd.Run(context.Background(), tt.args); err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if (gotErr != nil) != tt.wantErr {
				t.Fatalf("bookInputType() error = %v, wantErr %v", gotErr, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("bookInputType() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTextAt(t *testing.T) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(`<html><body><p>Привет <b>мир</b></p></body></html>`); err != nil {
		t.Fatalf("ReadFromString() error = %v", err)
	}

	tests := []struct {
		name   string
		target string
		want   string
	}{
		{"text offset in runes", "epubcfi(/6/2!/2/2/1:3)", "вет "},
		{"text start", "epubcfi(/6/2!/2/2/1:0)", "Привет "},
		{"past text end", "epubcfi(/6/2!/2/2/1:42)", ""},
		{"element", "epubcfi(/6/2!/2/2)", "Привет мир"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := cfi.Resolve(doc, cfi.MustParse(tt.target))
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if got := textAt(p); got != tt.want {
				t.Errorf("textAt() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCachedLocations_PageSize(t *testing.T) {
	dir := t.TempDir()
	book := filepath.Join(dir, "book.epub")
	if err := os.WriteFile(book, []byte("book content"), 0644); err != nil {
		t.Fatal(err)
	}
	cache, err := store.Open(filepath.Join(dir, "locations.db"), zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	env := &state.LocalEnv{Log: zaptest.NewLogger(t), Cache: cache}

	ctx := context.Background()
	blob := []byte(`["epubcfi(/6/2!/4/2/1:0)"]`)
	cacheLocations(ctx, env, locationsKey(env, book, 1024), blob)

	if data, key := cachedLocations(ctx, env, book, 1024); string(data) != string(blob) || key == "" {
		t.Errorf("cachedLocations(1024) = %q, %q", data, key)
	}
	if data, key := cachedLocations(ctx, env, book, 512); data != nil || key == "" {
		t.Errorf("table cut with other page size must not be returned, got %q", data)
	}

	env.Cache = nil
	if data, key := cachedLocations(ctx, env, book, 1024); data != nil || key != "" {
		t.Error("nothing must be returned without cache")
	}
	if err := cache.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
