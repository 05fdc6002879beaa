package epub

import (
	"bytes"
	"fmt"
	"io/fs"
	"net/url"
	"path"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"cfinav/cfi"
)

const (
	containerPath   = "META-INF/container.xml"
	packageMimeType = "application/oebps-package+xml"
	ncxMimeType     = "application/x-dtbncx+xml"
)

// Publications use different namespace prefixes (or none at all), so all
// queries match local names only.
var (
	xpRootfile  = xpath.MustCompile(`//*[local-name()='rootfile']`)
	xpPackage   = xpath.MustCompile(`/*[local-name()='package']`)
	xpItem      = xpath.MustCompile(`//*[local-name()='manifest']/*[local-name()='item']`)
	xpSpine     = xpath.MustCompile(`/*[local-name()='package']/*[local-name()='spine']`)
	xpTitle     = xpath.MustCompile(`//*[local-name()='metadata']/*[local-name()='title']`)
	xpCreator   = xpath.MustCompile(`//*[local-name()='metadata']/*[local-name()='creator']`)
	xpLanguage  = xpath.MustCompile(`//*[local-name()='metadata']/*[local-name()='language']`)
	xpIdentity  = xpath.MustCompile(`//*[local-name()='metadata']/*[local-name()='identifier']`)
	xpMetaCover = xpath.MustCompile(`//*[local-name()='metadata']/*[local-name()='meta'][@name='cover']`)
	xpNavMap    = xpath.MustCompile(`//*[local-name()='navMap']`)
)

func rootfile(fsys fs.FS) (string, error) {
	doc, err := queryDocument(fsys, containerPath)
	if err != nil {
		return "", err
	}
	for _, n := range xmlquery.QuerySelectorAll(doc, xpRootfile) {
		if mt := attr(n, "media-type"); mt != "" && mt != packageMimeType {
			continue
		}
		if p := attr(n, "full-path"); p != "" {
			return path.Clean(strings.TrimPrefix(unescape(p), "/")), nil
		}
	}
	return "", fmt.Errorf("%w: no package document in %s", ErrPackage, containerPath)
}

func (b *Book) readPackage() error {
	doc, err := queryDocument(b.fsys, b.PackagePath)
	if err != nil {
		return err
	}
	pkg := xmlquery.QuerySelector(doc, xpPackage)
	if pkg == nil {
		return fmt.Errorf("%w: %s has no package element", ErrPackage, b.PackagePath)
	}

	b.readMetadata(doc)

	var nav, ncx string
	for _, n := range xmlquery.QuerySelectorAll(doc, xpItem) {
		item := manifestItem{
			ID:         attr(n, "id"),
			Href:       resolvePath(b.PackagePath, attr(n, "href")),
			MediaType:  attr(n, "media-type"),
			Properties: strings.Fields(attr(n, "properties")),
		}
		if item.ID == "" || item.Href == "" {
			b.log.Debug("Manifest item without id or href, ignoring", zap.String("id", item.ID))
			continue
		}
		b.manifest[item.ID] = item
		switch {
		case item.has("nav"):
			nav = item.Href
		case item.has("cover-image"):
			b.coverID = item.ID
		case item.MediaType == ncxMimeType && ncx == "":
			ncx = item.Href
		}
	}

	spine := xmlquery.QuerySelector(doc, xpSpine)
	if spine == nil {
		return fmt.Errorf("%w: %s has no spine", ErrPackage, b.PackagePath)
	}
	if id := attr(spine, "toc"); id != "" {
		if item, ok := b.manifest[id]; ok {
			ncx = item.Href
		}
	}
	switch {
	case nav != "":
		b.NavPath = nav
	case ncx != "":
		b.NavPath = ncx
	}

	if b.coverID == "" {
		// EPUB 2 way of declaring cover
		if n := xmlquery.QuerySelector(doc, xpMetaCover); n != nil {
			if _, ok := b.manifest[attr(n, "content")]; ok {
				b.coverID = attr(n, "content")
			}
		}
	}

	spineStep := (elementPosition(pkg, spine) + 1) * 2
	for i, ref := range childElements(spine, "itemref") {
		idref := attr(ref, "idref")
		item := &SpineItem{
			Index:  i,
			IDRef:  idref,
			Linear: attr(ref, "linear") != "no",
			base:   cfi.SpineBase(spineStep, i, idref),
			book:   b,
		}
		// items with broken references are kept so spine indexes stay
		// consistent with addresses, loading them fails
		if mi, ok := b.manifest[idref]; ok {
			item.Href, item.MediaType = mi.Href, mi.MediaType
			if _, dup := b.byHref[item.Href]; !dup {
				b.byHref[item.Href] = item
			}
		} else {
			b.log.Warn("Spine item references unknown manifest item", zap.Int("index", i), zap.String("idref", idref))
		}
		b.Spine = append(b.Spine, item)
	}
	if len(b.Spine) == 0 {
		return fmt.Errorf("%w: spine is empty", ErrPackage)
	}
	return nil
}

func (b *Book) readMetadata(doc *xmlquery.Node) {
	if n := xmlquery.QuerySelector(doc, xpTitle); n != nil {
		b.Metadata.Title = normalizeSpace(n.InnerText())
	}
	for _, n := range xmlquery.QuerySelectorAll(doc, xpCreator) {
		if name := normalizeSpace(n.InnerText()); name != "" {
			b.Metadata.Creators = append(b.Metadata.Creators, name)
		}
	}
	if n := xmlquery.QuerySelector(doc, xpIdentity); n != nil {
		b.Metadata.Identifier = strings.TrimSpace(n.InnerText())
	}
	b.Metadata.Language = language.Und
	if n := xmlquery.QuerySelector(doc, xpLanguage); n != nil {
		b.Metadata.RawLanguage = strings.TrimSpace(n.InnerText())
		b.Metadata.Language = parseBookLang(b.Metadata.RawLanguage, b.log)
	}
}

func parseBookLang(in string, log *zap.Logger) language.Tag {
	lang := strings.TrimSpace(in)
	if lang == "" {
		return language.Und
	}

	tag, err := language.Parse(lang)
	if err == nil {
		return tag
	}

	// last resort - try names directly
	for _, supportedTag := range display.Supported.Tags() {
		if strings.EqualFold(display.Self.Name(supportedTag), lang) ||
			strings.EqualFold(display.English.Languages().Name(supportedTag), lang) {
			return supportedTag
		}
	}
	log.Warn("Unable to parse book language", zap.String("lang", lang))
	return language.Und
}

func queryDocument(fsys fs.FS, name string) (*xmlquery.Node, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", name, err)
	}
	doc, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: unable to parse %s: %v", ErrPackage, name, err)
	}
	return doc, nil
}

func attr(n *xmlquery.Node, name string) string {
	for _, a := range n.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

func childElements(n *xmlquery.Node, local string) []*xmlquery.Node {
	var out []*xmlquery.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode && c.Data == local {
			out = append(out, c)
		}
	}
	return out
}

func firstChild(n *xmlquery.Node, local string) *xmlquery.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode && c.Data == local {
			return c
		}
	}
	return nil
}

// elementPosition returns zero based position of child among element
// children of parent.
func elementPosition(parent, child *xmlquery.Node) int {
	n := 0
	for c := parent.FirstChild; c != nil && c != child; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode {
			n++
		}
	}
	return n
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func unescape(s string) string {
	if u, err := url.PathUnescape(s); err == nil {
		return u
	}
	return s
}
