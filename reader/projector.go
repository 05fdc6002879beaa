package reader

import (
	"cfinav/cfi"
	"cfinav/locations"
	"cfinav/toc"
)

// Position is normalized reading position reported to the host on every
// relocation.
type Position struct {
	AtStart       bool        `json:"atStart"`
	AtEnd         bool        `json:"atEnd"`
	CFI           cfi.Locator `json:"cfi"`
	SectionHref   string      `json:"sectionHref"`
	Chapter       int         `json:"chapter"`
	ChapterTotal  int         `json:"chapterTotal"`
	Location      int         `json:"location"`
	LocationTotal int         `json:"locationTotal,omitempty"`
	Percentage    float64     `json:"percentage"`
}

// Project computes position for displayed location. Either of TOC and
// location table may not be ready yet (nil), in which case section is empty
// and location is -1.
func Project(loc Location, t *toc.TOC, table *locations.Table, spineLen int) Position {
	start := loc.Start.CFI
	return Position{
		AtStart:       loc.AtStart,
		AtEnd:         loc.AtEnd,
		CFI:           start,
		SectionHref:   t.SectionFor(start).Href,
		Chapter:       start.SpineIndex() + 1,
		ChapterTotal:  spineLen,
		Location:      table.IndexOf(start),
		LocationTotal: table.Total(),
		Percentage:    loc.Start.Percentage,
	}
}
