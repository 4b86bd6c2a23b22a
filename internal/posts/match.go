package posts

import (
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/net/html"
)

// FindSmallestMatch returns the innermost element whose rendered text
// contains the snippet: among all elements that contain it, the one with the
// least text wins, which pins the swap to the post body instead of an
// ancestor wrapper.
func FindSmallestMatch(root *html.Node, snippet string) *html.Node {
	needle := normalizeSpace(snippet)
	if needle == "" {
		return nil
	}

	var best *html.Node
	bestLen := -1

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			content := normalizeSpace(innerText(n))
			if strings.Contains(content, needle) && (bestLen < 0 || len(content) < bestLen) {
				best = n
				bestLen = len(content)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return best
}

// Match describes the element a snippet resolved to.
type Match struct {
	Tag  string // element name, e.g. "p"
	Text string // rendered text, whitespace-normalized
}

// MatchInDocument parses an HTML document and locates the snippet's smallest
// containing element.
func MatchInDocument(r io.Reader, snippet string) (*Match, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, eris.Wrap(err, "posts: parse html")
	}
	n := FindSmallestMatch(doc, snippet)
	if n == nil {
		return nil, eris.Errorf("posts: snippet not found in document")
	}
	return &Match{Tag: n.Data, Text: normalizeSpace(innerText(n))}, nil
}

// innerText concatenates the text nodes under n, skipping script and style
// bodies.
func innerText(n *html.Node) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.ElementNode:
			if n.Data == "script" || n.Data == "style" {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
