package cleaner

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// boilerplateSelector matches the page chrome that carries no extractable
// content: scripts, styles, navigation landmarks, and the usual ad/consent
// containers. Compiled once at init; a bad selector is a programmer error,
// so a panic is the right failure mode.
var boilerplateSelector = mustParseGroup(strings.Join([]string{
	"script", "style", "noscript", "template", "iframe", "svg",
	"nav", "header", "footer", "aside",
	`[role="navigation"]`, `[role="banner"]`, `[role="contentinfo"]`, `[role="complementary"]`,
	`[class*="advert"]`, `[id*="advert"]`, `[class*="cookie-banner"]`, `[id*="cookie-banner"]`,
}, ", "))

func mustParseGroup(sel string) cascadia.SelectorGroup {
	group, err := cascadia.ParseGroup(sel)
	if err != nil {
		panic(err)
	}
	return group
}

// landmarkSelector matches the elements that typically wrap the main content.
var landmarkSelector = "main, article, [role=\"main\"], .content, #content"

// StripBoilerplate removes non-content nodes from rawHTML and returns the
// remaining markup. Comments are removed too, which is why this walks the
// x/net/html tree directly instead of going through goquery (goquery has no
// API for comment nodes).
//
// Malformed input degrades gracefully: the html5 parser never fails on
// partial documents, it repairs them, so the worst case is odd but usable
// output, never an error.
func StripBoilerplate(rawHTML string) string {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		// html.Parse only errors on reader failure; a strings.Reader
		// cannot fail, but keep the fallback anyway.
		return rawHTML
	}

	for _, node := range cascadia.QueryAll(doc, boilerplateSelector) {
		if node.Parent != nil {
			node.Parent.RemoveChild(node)
		}
	}
	removeComments(doc)

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return rawHTML
	}
	return buf.String()
}

// removeComments walks the tree and deletes every comment node.
func removeComments(n *html.Node) {
	var next *html.Node
	for child := n.FirstChild; child != nil; child = next {
		next = child.NextSibling
		if child.Type == html.CommentNode {
			n.RemoveChild(child)
			continue
		}
		removeComments(child)
	}
}

// selectContentLandmark returns the outer HTML of the first content landmark
// (main, article, role=main, .content, #content) when one exists. Used as a
// fallback when readability cannot locate an article body.
func selectContentLandmark(rawHTML string) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return "", false
	}

	sel := doc.Find(landmarkSelector).First()
	if sel.Length() == 0 {
		return "", false
	}

	outer, err := goquery.OuterHtml(sel)
	if err != nil {
		return "", false
	}
	return outer, true
}

// stripTags is a simple helper that extracts visible text from an HTML
// fragment by parsing it with goquery. Returns trimmed plain text.
func stripTags(htmlFragment string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlFragment))
	if err != nil {
		return htmlFragment
	}
	return strings.TrimSpace(doc.Text())
}
