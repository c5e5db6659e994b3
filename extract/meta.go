package extract

import (
	"context"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/webclip/capture"
)

// curatedMeta is the subset of <meta> name/property values worth
// persisting with every capture.
var curatedMeta = map[string]bool{
	"description":         true,
	"author":              true,
	"keywords":            true,
	"og:title":            true,
	"og:description":      true,
	"og:image":            true,
	"og:url":              true,
	"og:site_name":        true,
	"og:type":             true,
	"twitter:card":        true,
	"twitter:title":       true,
	"twitter:description": true,
	"twitter:image":       true,
}

// addPageMeta scrapes provenance metadata from the document head into
// the record. Scrape failures are logged and ignored: metadata is
// best-effort garnish, never a reason to fail a capture.
func (e *Extractor) addPageMeta(ctx context.Context, p Page, rec *capture.Record) {
	if u, err := url.Parse(p.URL()); err == nil && u.Host != "" {
		rec.Metadata[capture.MetaDomain] = u.Host
	}

	docHTML, err := p.DocumentHTML(ctx)
	if err != nil {
		e.cfg.Logger.Debug("extract: document unavailable for metadata", "url", p.URL(), "error", err)
		return
	}
	doc, err := html.Parse(strings.NewReader(docHTML))
	if err != nil {
		return
	}

	tags, canonical := scrapeHead(doc)
	for k, v := range tags {
		switch k {
		case "description":
			rec.Metadata[capture.MetaDescription] = v
		case "author":
			rec.Metadata[capture.MetaAuthor] = v
		case "keywords":
			rec.Metadata[capture.MetaKeywords] = v
		default:
			rec.Metadata[k] = v
		}
	}
	if canonical != "" {
		rec.Metadata[capture.MetaCanonical] = canonical
	}
}

// scrapeHead walks the document and collects curated meta tag values
// and the canonical link.
func scrapeHead(doc *html.Node) (map[string]string, string) {
	tags := make(map[string]string)
	var canonical string

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Meta:
				key := getAttr(n, "name")
				if key == "" {
					key = getAttr(n, "property")
				}
				key = strings.ToLower(key)
				if curatedMeta[key] {
					if content := getAttr(n, "content"); content != "" {
						tags[key] = content
					}
				}
			case atom.Link:
				if strings.EqualFold(getAttr(n, "rel"), "canonical") {
					canonical = getAttr(n, "href")
				}
			case atom.Body:
				// Meta tags live in the head; stop before the body.
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return tags, canonical
}
