package knowledge

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// regionText returns the text of the first element matching selector: every
// text node trimmed, blanks dropped, joined by single spaces. found is false
// when the page has no such element.
func regionText(body []byte, selector string) (text string, found bool, err error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", false, err
	}

	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return "", false, nil
	}

	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(sel.Get(0))

	return strings.Join(parts, " "), true, nil
}
