package epub

import (
	"context"
	"fmt"
	"strings"

	"github.com/beevik/etree"

	"cfinav/cfi"
)

// ResolveHref converts href (relative to publication root) into point address
// of its target. Without fragment target is the body of content document.
func (b *Book) ResolveHref(ctx context.Context, href string) (cfi.Locator, error) {
	item, ok := b.ItemByHref(href)
	if !ok {
		return cfi.Locator{}, fmt.Errorf("%w: %q is not in spine", ErrNotFound, href)
	}
	doc, err := item.Document(ctx)
	if err != nil {
		return cfi.Locator{}, err
	}

	var target *etree.Element
	if _, frag, _ := strings.Cut(href, "#"); frag != "" {
		target = findByID(doc.Root(), unescape(frag))
		if target == nil {
			return cfi.Locator{}, fmt.Errorf("%w: no element with id %q in %s", ErrNotFound, frag, item.Href)
		}
	} else if target = doc.Root().SelectElement("body"); target == nil {
		target = doc.Root()
	}
	return cfi.FromElement(item.CFIBase(), target), nil
}

func findByID(el *etree.Element, id string) *etree.Element {
	if el.SelectAttrValue("id", "") == id {
		return el
	}
	for _, c := range el.ChildElements() {
		if found := findByID(c, id); found != nil {
			return found
		}
	}
	return nil
}
