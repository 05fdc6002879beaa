package cfi

import "cmp"

// Compare orders two locators: by spine index, then by steps component-wise
// (an ancestor sorts before its descendants), then by character offset (no
// offset sorts before any offset). Ranges are compared by their start point.
// Assertions do not participate in ordering.
//
// Returns -1, 0 or 1 and could be passed to slices.SortFunc directly.
func Compare(a, b Locator) int {
	a, b = a.Collapse(true), b.Collapse(true)

	if c := cmp.Compare(a.SpineIndex(), b.SpineIndex()); c != 0 {
		return c
	}
	if c := compareSteps(a.Base, b.Base); c != 0 {
		return c
	}
	if c := compareSteps(a.Path.Steps, b.Path.Steps); c != 0 {
		return c
	}
	return compareTerminals(a.Path.Terminal, b.Path.Terminal)
}

// CompareStrings parses both arguments and compares resulting locators.
func CompareStrings(a, b string) (int, error) {
	la, err := Parse(a)
	if err != nil {
		return 0, err
	}
	lb, err := Parse(b)
	if err != nil {
		return 0, err
	}
	return Compare(la, lb), nil
}

func compareSteps(a, b []Step) int {
	for i := range min(len(a), len(b)) {
		if c := cmp.Compare(a[i].Index, b[i].Index); c != 0 {
			return c
		}
	}
	return cmp.Compare(len(a), len(b))
}

func compareTerminals(a, b *Terminal) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return cmp.Compare(a.Offset, b.Offset)
}
