//go:build !windows

package config

import (
	"os"
	"strings"

	"golang.org/x/term"
)

// CleanFileName makes file name out of arbitrary text (book file name,
// title): drops characters not allowed in names, surrounding spaces and
// limits its length.
func CleanFileName(in string) string {
	out := strings.TrimLeft(strings.Map(func(sym rune) rune {
		if strings.ContainsRune(string(os.PathSeparator)+string(os.PathListSeparator), sym) {
			return -1
		}
		return sym
	}, in), ".")
	out = strings.TrimSpace(out)
	if r := []rune(out); len(r) > maxFileNameLen {
		out = strings.TrimSpace(string(r[:maxFileNameLen]))
	}
	if len(out) == 0 {
		out = "_bad_file_name_"
	}
	return out
}

// EnableColorOutput checks if colorized output is possible.
func EnableColorOutput(stream *os.File) bool {
	return term.IsTerminal(int(stream.Fd()))
}
