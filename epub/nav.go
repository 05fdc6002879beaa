package epub

import (
	"path"
	"slices"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/beevik/etree"
)

// NavPoint is a node of publication navigation tree. Href is relative to
// publication root and may carry fragment.
type NavPoint struct {
	Label    string
	Href     string
	Children []NavPoint
}

func (b *Book) readNavigation() ([]NavPoint, error) {
	if strings.EqualFold(path.Ext(b.NavPath), ".ncx") {
		doc, err := queryDocument(b.fsys, b.NavPath)
		if err != nil {
			return nil, err
		}
		navMap := xmlquery.QuerySelector(doc, xpNavMap)
		if navMap == nil {
			return nil, nil
		}
		return ncxPoints(navMap, b.NavPath), nil
	}

	doc, err := readContentDocument(b.fsys, b.NavPath)
	if err != nil {
		return nil, err
	}
	return navPoints(doc, b.NavPath), nil
}

func ncxPoints(parent *xmlquery.Node, base string) []NavPoint {
	var out []NavPoint
	for _, n := range childElements(parent, "navPoint") {
		var np NavPoint
		if label := firstChild(n, "navLabel"); label != nil {
			if text := firstChild(label, "text"); text != nil {
				np.Label = text.InnerText()
			}
		}
		if content := firstChild(n, "content"); content != nil {
			if src := attr(content, "src"); src != "" {
				np.Href = resolvePath(base, src)
			}
		}
		np.Children = ncxPoints(n, base)
		out = append(out, np)
	}
	return out
}

// navPoints extracts toc navigation from EPUB 3 navigation document. When
// no nav element is marked as toc the first one is used.
func navPoints(doc *etree.Document, base string) []NavPoint {
	var toc *etree.Element
	for _, nav := range doc.FindElements("//nav") {
		if toc == nil {
			toc = nav
		}
		if slices.Contains(strings.Fields(nav.SelectAttrValue("type", "")), "toc") {
			toc = nav
			break
		}
	}
	if toc == nil {
		return nil
	}
	ol := toc.SelectElement("ol")
	if ol == nil {
		return nil
	}
	return navList(ol, base)
}

func navList(ol *etree.Element, base string) []NavPoint {
	var out []NavPoint
	for _, li := range ol.SelectElements("li") {
		var np NavPoint
		for _, c := range li.ChildElements() {
			switch c.Tag {
			case "a":
				np.Label = textOf(c)
				if href := c.SelectAttrValue("href", ""); href != "" {
					np.Href = resolvePath(base, href)
				}
			case "span":
				if np.Label == "" {
					np.Label = textOf(c)
				}
			case "ol":
				np.Children = navList(c, base)
			}
		}
		out = append(out, np)
	}
	return out
}

func textOf(el *etree.Element) string {
	var sb strings.Builder
	var walk func(*etree.Element)
	walk = func(e *etree.Element) {
		for _, t := range e.Child {
			switch v := t.(type) {
			case *etree.CharData:
				sb.WriteString(v.Data)
			case *etree.Element:
				walk(v)
			}
		}
	}
	walk(el)
	return sb.String()
}

func countNavPoints(points []NavPoint) int {
	n := len(points)
	for _, p := range points {
		n += countNavPoints(p.Children)
	}
	return n
}
