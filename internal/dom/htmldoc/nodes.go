package htmldoc

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

func walk(n *html.Node, fn func(*html.Node)) {
	if n.Type == html.ElementNode {
		fn(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func isCandidate(n *html.Node) bool {
	return n.DataAtom == atom.Input || n.DataAtom == atom.Textarea || isContentEditable(n)
}

func isContentEditable(n *html.Node) bool {
	v, ok := lookup(n, "contenteditable")
	if !ok {
		return false
	}
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "" || v == "true" || v == "plaintext-only"
}

func lookup(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func attr(n *html.Node, key string) string {
	v, _ := lookup(n, key)
	return v
}

func hasAttr(n *html.Node, key string) bool {
	_, ok := lookup(n, key)
	return ok
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func maxLength(n *html.Node) int {
	v, err := strconv.Atoi(strings.TrimSpace(attr(n, "maxlength")))
	if err != nil || v < 0 {
		return 0
	}
	return v
}

func value(n *html.Node) string {
	if n.DataAtom == atom.Input {
		return attr(n, "value")
	}
	return textContent(n)
}

// isVisible walks n and its ancestors looking for anything that hides it.
func isVisible(n *html.Node) bool {
	if n.DataAtom == atom.Input && strings.EqualFold(attr(n, "type"), "hidden") {
		return false
	}
	for p := n; p != nil; p = p.Parent {
		if p.Type != html.ElementNode {
			continue
		}
		switch p.DataAtom {
		case atom.Template, atom.Noscript, atom.Head:
			return false
		}
		if hasAttr(p, "hidden") || hiddenByStyle(attr(p, "style")) {
			return false
		}
	}
	return true
}

func hiddenByStyle(style string) bool {
	for _, decl := range strings.Split(style, ";") {
		prop, val, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		prop = strings.ToLower(strings.TrimSpace(prop))
		val = strings.ToLower(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(val), "!important")))
		switch {
		case prop == "display" && val == "none":
			return true
		case prop == "visibility" && (val == "hidden" || val == "collapse"):
			return true
		case prop == "opacity" && (val == "0" || val == "0.0"):
			return true
		}
	}
	return false
}

// textContent concatenates descendant text, skipping scripts and styles,
// with whitespace collapsed.
func textContent(n *html.Node) string {
	var b strings.Builder
	var rec func(*html.Node)
	rec = func(c *html.Node) {
		switch {
		case c.Type == html.TextNode:
			b.WriteString(c.Data)
			b.WriteByte(' ')
			return
		case c.DataAtom == atom.Script || c.DataAtom == atom.Style:
			return
		}
		for k := c.FirstChild; k != nil; k = k.NextSibling {
			rec(k)
		}
	}
	rec(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

// nearby collects text from up to nearbyLevels ancestors and from
// non-input siblings.
func nearby(n *html.Node) string {
	var parts []string
	p := n.Parent
	for i := 0; i < nearbyLevels && p != nil && p.Type == html.ElementNode; i++ {
		if t := textContent(p); t != "" {
			parts = append(parts, t)
		}
		p = p.Parent
	}
	if n.Parent != nil {
		for s := n.Parent.FirstChild; s != nil; s = s.NextSibling {
			if s == n || s.Type != html.ElementNode || s.DataAtom == atom.Input {
				continue
			}
			if t := textContent(s); t != "" {
				parts = append(parts, t)
			}
		}
	}
	return strings.Join(parts, " ")
}

func findFirst(n *html.Node, a atom.Atom) *html.Node {
	var found *html.Node
	walk(n, func(c *html.Node) {
		if found == nil && c.DataAtom == a {
			found = c
		}
	})
	return found
}

func findByID(n *html.Node, id string) *html.Node {
	var found *html.Node
	walk(n, func(c *html.Node) {
		if found == nil && attr(c, "id") == id {
			found = c
		}
	})
	return found
}
