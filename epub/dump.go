package epub

import (
	"cfinav/utils/debug"
)

// DumpNavigation returns human readable representation of navigation tree.
func (b *Book) DumpNavigation() string {
	tw := debug.NewTreeWriter()
	tw.Line(0, "Navigation (%s)", b.NavPath)
	dumpNavPoints(tw, 1, b.Navigation)
	return tw.String()
}

func dumpNavPoints(tw *debug.TreeWriter, depth int, points []NavPoint) {
	for _, p := range points {
		tw.TextBlock(depth, "label", p.Label)
		tw.TextBlock(depth+1, "href", p.Href)
		dumpNavPoints(tw, depth+1, p.Children)
	}
}
