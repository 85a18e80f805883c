package browser

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// keptAttrs are the attributes a cleaned snapshot preserves; they are the
// ones selectors and label assertions are written against.
var keptAttrs = map[string]bool{
	"id": true, "class": true, "name": true, "type": true, "role": true,
	"href": true, "action": true, "method": true, "value": true,
	"title": true, "alt": true, "placeholder": true, "selected": true,
	"disabled": true, "hidden": true,
}

// CleanHTML strips scripts, styles, comments and noisy attributes from a
// page so a failure snapshot shows the structure the selectors target.
// Input values other than button labels are dropped.
func CleanHTML(htmlContent string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML with goquery: %w", err)
	}

	doc.Find("script, style, noscript, iframe, svg, link, meta").Remove()

	doc.Find("*").Each(func(i int, s *goquery.Selection) {
		if len(s.Nodes) == 0 {
			return
		}
		node := s.Nodes[0]

		var toRemove []*html.Node
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			switch c.Type {
			case html.CommentNode:
				toRemove = append(toRemove, c)
			case html.TextNode:
				c.Data = strings.Join(strings.Fields(c.Data), " ")
			}
		}
		for _, n := range toRemove {
			node.RemoveChild(n)
		}

		keepValue := node.Data == "button" || node.Data == "option"
		if node.Data == "input" {
			t, _ := s.Attr("type")
			keepValue = t == "submit" || t == "button"
		}

		var preserved []html.Attribute
		for _, attr := range node.Attr {
			if !keptAttrs[attr.Key] && !strings.HasPrefix(attr.Key, "aria-") {
				continue
			}
			if attr.Key == "value" && !keepValue {
				continue
			}
			if (attr.Key == "href" || attr.Key == "action") && len(attr.Val) > 200 {
				attr.Val = attr.Val[:200] + "..."
			}
			preserved = append(preserved, attr)
		}
		node.Attr = preserved
	})

	cleaned, err := doc.Html()
	if err != nil {
		return "", fmt.Errorf("failed to render cleaned HTML: %w", err)
	}
	return cleaned, nil
}

// CountMatches counts the elements in htmlContent matching a CSS selector.
func CountMatches(htmlContent, selector string) (int, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return 0, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return doc.Find(selector).Length(), nil
}
