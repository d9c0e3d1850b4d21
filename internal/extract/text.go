package extract

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// ErrStructure reports that an element the portal layout always carries is missing.
var ErrStructure = errors.New("unexpected page structure")

func structureError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrStructure, fmt.Sprintf(format, args...))
}

func parseDocument(r io.Reader) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// stripText concatenates every descendant text node of sel, each trimmed of
// surrounding whitespace, with no separator.
func stripText(sel *goquery.Selection) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(strings.TrimSpace(n.Data))
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return b.String()
}

// canonicalKey translates a portal label, falling back to a generated key.
func canonicalKey(table map[string]string, label string) string {
	if key, ok := table[label]; ok {
		return key
	}
	return strings.ReplaceAll(strings.ToLower(label), " ", "_")
}
