package toc

import "cfinav/utils/debug"

// Dump returns human readable representation of resolved entries in reading
// order.
func (t *TOC) Dump() string {
	tw := debug.NewTreeWriter()
	tw.Line(0, "TOC %q (%d entries)", t.Root().Label, t.Len())
	for i, e := range t.Entries() {
		tw.Line(1, "#%d", i)
		tw.TextBlock(2, "label", e.Label)
		tw.TextBlock(2, "href", e.Href)
		tw.Field(2, "cfi", e.CFI)
	}
	return tw.String()
}
