// Package content post-processes extracted article HTML and reads page metadata.
package content

import (
	"bytes"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	// titleMaxDistance is how much text may precede the heading that replaces the title.
	titleMaxDistance = 350
	// titleSimilarity is the minimum similarity for a heading to be adopted as the title.
	titleSimilarity = 0.9
)

// keepSelector matches descendants that make a block structurally meaningful.
const keepSelector = "img, picture, svg, canvas, video, audio, iframe, embed, object, param, source, " +
	"h1, h2, h3, h4, h5, h6, pre, code, blockquote, dl, ol, ul, table, form"

// Refine cleans article HTML and makes sure it is wrapped in a single article
// element whose first child is an h1 holding the canonical title.
func Refine(title, raw string) (string, error) {
	root := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(raw), root)
	if err != nil {
		return "", fmt.Errorf("parse article content: %w", err)
	}
	for _, n := range nodes {
		root.AppendChild(n)
	}
	doc := goquery.NewDocumentFromNode(root)

	removeJunk(doc.Selection)
	title = relocateTitle(root, title)
	container := ensureArticle(root)
	container.InsertBefore(headingNode(title), container.FirstChild)

	var buf bytes.Buffer
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return "", fmt.Errorf("render article content: %w", err)
		}
	}
	return buf.String(), nil
}

// removeJunk drops p/div blocks that carry at most one word or only digits,
// unless they hold media, headings, code, lists, tables or forms.
func removeJunk(sel *goquery.Selection) {
	sel.Find("p, div").Each(func(_ int, el *goquery.Selection) {
		if el.Find(keepSelector).Length() > 0 {
			return
		}
		words := strings.Fields(el.Text())
		if len(words) <= 1 || isNumeric(strings.Join(words, "")) {
			el.Remove()
		}
	})
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsNumber(r) {
			return false
		}
	}
	return true
}

// relocateTitle walks text nodes in document order. The first h1-h3 whose text
// matches title over their shared prefix replaces title and is removed.
func relocateTitle(root *html.Node, title string) string {
	seen := 0
	stack := []*html.Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for c := n.LastChild; c != nil; c = c.PrevSibling {
			stack = append(stack, c)
		}
		if n.Type != html.TextNode {
			continue
		}
		if p := n.Parent; p != nil && isTitleHeading(p) {
			text := strings.Join(strings.Fields(goquery.NewDocumentFromNode(p).Text()), " ")
			if headingMatches(text, title) {
				p.Parent.RemoveChild(p)
				return text
			}
		}
		seen += utf8.RuneCountInString(n.Data)
		if seen > titleMaxDistance {
			break
		}
	}
	return title
}

func isTitleHeading(n *html.Node) bool {
	return n.Type == html.ElementNode && (n.DataAtom == atom.H1 || n.DataAtom == atom.H2 || n.DataAtom == atom.H3)
}

func headingMatches(heading, title string) bool {
	h, t := []rune(heading), []rune(title)
	n := min(len(h), len(t))
	a, b := lettersOnly(h[:n]), lettersOnly(t[:n])
	if a == "" || b == "" {
		return false
	}
	return Similarity(a, b) > titleSimilarity
}

func lettersOnly(rs []rune) string {
	var sb strings.Builder
	for _, r := range rs {
		if unicode.IsLetter(r) {
			sb.WriteRune(unicode.ToLower(r))
		}
	}
	return sb.String()
}

// ensureArticle reuses the fragment's article when it is the only top-level
// element and otherwise wraps every top-level node in a new one.
func ensureArticle(root *html.Node) *html.Node {
	var only *html.Node
	elements := 0
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		switch {
		case c.Type == html.ElementNode:
			elements++
			only = c
		case c.Type == html.TextNode && strings.TrimSpace(c.Data) == "":
		default:
			elements++
			only = nil
		}
	}
	if elements == 1 && only != nil && only.DataAtom == atom.Article {
		return only
	}

	article := &html.Node{Type: html.ElementNode, Data: "article", DataAtom: atom.Article}
	for c := root.FirstChild; c != nil; {
		next := c.NextSibling
		root.RemoveChild(c)
		article.AppendChild(c)
		c = next
	}
	root.AppendChild(article)
	return article
}

func headingNode(title string) *html.Node {
	h1 := &html.Node{Type: html.ElementNode, Data: "h1", DataAtom: atom.H1}
	h1.AppendChild(&html.Node{Type: html.TextNode, Data: title})
	return h1
}
