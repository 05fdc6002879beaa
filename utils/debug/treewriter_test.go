package debug

import (
	"testing"

	"cfinav/cfi"
)

func TestTreeWriter_Line(t *testing.T) {
	tests := []struct {
		name   string
		depth  int
		format string
		args   []any
		want   string
	}{
		{"no depth", 0, "test", nil, "test\n"},
		{"depth 1", 1, "indented", nil, "  indented\n"},
		{"depth 2", 2, "double indent", nil, "    double indent\n"},
		{"with formatting", 1, "value: %d", []any{42}, "  value: 42\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tw := NewTreeWriter()
			tw.Line(tt.depth, tt.format, tt.args...)
			if got := tw.String(); got != tt.want {
				t.Errorf("Line() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTreeWriter_TextBlock(t *testing.T) {
	tests := []struct {
		name  string
		label string
		value string
		want  string
	}{
		{"empty", "label", "", "  label: \n"},
		{"plain", "label", "Chapter 1", "  label: \"Chapter 1\"\n"},
		{"nbsp", "label", "Chapter\u00a01", "  label: \"Chapter\\u00a01\"\n"},
		{"new line", "label", "one\ntwo", "  label: \"one\\ntwo\"\n"},
		{"quote", "href", `a"b`, "  href: \"a\\\"b\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tw := NewTreeWriter()
			tw.TextBlock(1, tt.label, tt.value)
			if got := tw.String(); got != tt.want {
				t.Errorf("TextBlock() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTreeWriter_Field(t *testing.T) {
	tw := NewTreeWriter().WithIndent("\t")
	tw.Field(1, "cfi", cfi.MustParse("epubcfi(/6/4!/4/2/1:3)"))
	tw.Field(1, "empty", cfi.Locator{})
	tw.Line(0, "end")

	want := "\tcfi: epubcfi(/6/4!/4/2/1:3)\nend\n"
	if got := tw.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestTreeWriter_Tree(t *testing.T) {
	tw := NewTreeWriter()
	tw.Line(0, "Navigation (%s)", "nav.xhtml")
	tw.TextBlock(1, "label", "Part 1")
	tw.TextBlock(2, "href", "text/part1.xhtml")
	tw.TextBlock(2, "label", "Chapter 1")
	tw.TextBlock(3, "href", "text/ch1.xhtml#c1")

	want := "Navigation (nav.xhtml)\n" +
		"  label: \"Part 1\"\n" +
		"    href: \"text/part1.xhtml\"\n" +
		"    label: \"Chapter 1\"\n" +
		"      href: \"text/ch1.xhtml#c1\"\n"
	if got := tw.String(); got != want {
		t.Errorf("String() =\n%s\nwant\n%s", got, want)
	}
}
