package crawler

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// dropped elements never contribute text.
var dropped = map[atom.Atom]bool{
	atom.Script: true,
	atom.Style:  true,
	atom.Nav:    true,
	atom.Footer: true,
	atom.Header: true,
	atom.Aside:  true,
}

// block elements start a new paragraph in extracted text.
var block = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Section: true, atom.Article: true, atom.Main: true,
	atom.Li: true, atom.Ul: true, atom.Ol: true, atom.Table: true, atom.Tr: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Blockquote: true, atom.Pre: true, atom.Br: true, atom.Form: true,
}

// Extract returns the page title and its main text. When fragment names an
// element id, the text comes from the closest section, div or main around
// that element. Otherwise it comes from <main>, then <body>, then the whole
// document. Paragraphs are separated by blank lines.
func Extract(page []byte, fragment string) (title, text string, err error) {
	root, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return "", "", err
	}

	if t := find(root, func(n *html.Node) bool { return n.DataAtom == atom.Title }); t != nil {
		title = strings.Join(strings.Fields(textOf(t)), " ")
	}

	prune(root)

	if fragment != "" {
		if target := find(root, func(n *html.Node) bool { return attr(n, "id") == fragment }); target != nil {
			text = render(container(target))
		}
	}
	if text == "" {
		node := find(root, func(n *html.Node) bool { return n.DataAtom == atom.Main })
		if node == nil {
			node = find(root, func(n *html.Node) bool { return n.DataAtom == atom.Body })
		}
		if node == nil {
			node = root
		}
		text = render(node)
	}
	return title, text, nil
}

func prune(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.ElementNode && dropped[c.DataAtom] {
			n.RemoveChild(c)
		} else {
			prune(c)
		}
		c = next
	}
}

func container(n *html.Node) *html.Node {
	for p := n.Parent; p != nil; p = p.Parent {
		switch p.DataAtom {
		case atom.Section, atom.Div, atom.Main:
			return p
		}
	}
	return n
}

func find(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := find(c, match); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textOf(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

// render flattens n into paragraphs: text inside one block is joined with
// spaces and blocks are separated by a blank line.
func render(n *html.Node) string {
	var (
		paras []string
		cur   []string
	)
	flush := func() {
		if len(cur) > 0 {
			paras = append(paras, strings.Join(cur, " "))
			cur = cur[:0]
		}
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			if s := strings.Join(strings.Fields(n.Data), " "); s != "" {
				cur = append(cur, s)
			}
			return
		case html.ElementNode:
			if block[n.DataAtom] {
				flush()
				defer flush()
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	flush()
	return strings.Join(paras, "\n\n")
}
