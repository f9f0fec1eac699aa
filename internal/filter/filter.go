// Package filter removes caller-selected elements from an HTML document
// before it is used as a comparison baseline.
//
// Elements are numbered in document order, depth first, starting at 0. The
// numbering is the one produced by the html5 parser, so implied <html>,
// <head> and <body> elements always take the first positions.
package filter

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

const markerPrefix = "pagewatch:excluded="

// Element describes one element as offered to the exclusion picker.
type Element struct {
	Index      int               `json:"index"`
	Tag        string            `json:"tag"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Filter parses doc, detaches every element whose index is in excluded and
// renders the result. The output is byte-for-byte deterministic for a given
// input and exclusion set.
//
// The applied set, empty or not, is recorded in a leading comment; a
// document that already carries the marker for the same set is returned
// unchanged. Use FilterFetched for content that did not come from Filter.
func Filter(doc string, excluded []int) (string, error) {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	set := toSet(excluded)
	if m := leadingMarker(root); m != nil && m.Data == markerFor(set) {
		return doc, nil
	}
	return apply(root, set)
}

// FilterFetched filters a page as served by its site. A marker comment in
// the page source is discarded, never trusted.
func FilterFetched(doc string, excluded []int) (string, error) {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	return apply(root, toSet(excluded))
}

func apply(root *html.Node, set map[int]struct{}) (string, error) {
	for m := leadingMarker(root); m != nil; m = leadingMarker(root) {
		root.RemoveChild(m)
	}
	for i, n := range elements(root) {
		if _, drop := set[i]; drop && n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
	}
	root.InsertBefore(&html.Node{Type: html.CommentNode, Data: markerFor(set)}, afterDoctype(root))

	var buf bytes.Buffer
	if err := html.Render(&buf, root); err != nil {
		return "", fmt.Errorf("render html: %w", err)
	}
	return buf.String(), nil
}

// Elements lists every element of doc in the order Filter numbers them.
func Elements(doc string) ([]Element, error) {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	nodes := elements(root)
	out := make([]Element, 0, len(nodes))
	for i, n := range nodes {
		e := Element{Index: i, Tag: n.Data}
		if len(n.Attr) > 0 {
			e.Attributes = make(map[string]string, len(n.Attr))
			for _, a := range n.Attr {
				key := a.Key
				if a.Namespace != "" {
					key = a.Namespace + ":" + a.Key
				}
				e.Attributes[key] = a.Val
			}
		}
		out = append(out, e)
	}
	return out, nil
}

// elements collects element nodes in pre-order. The slice is built before
// any mutation so indices refer to the original tree.
func elements(root *html.Node) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}

func toSet(idx []int) map[int]struct{} {
	set := make(map[int]struct{}, len(idx))
	for _, i := range idx {
		if i >= 0 {
			set[i] = struct{}{}
		}
	}
	return set
}

func markerFor(set map[int]struct{}) string {
	keys := make([]int, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = strconv.Itoa(k)
	}
	return " " + markerPrefix + strings.Join(parts, ",") + " "
}

// afterDoctype returns the first child of root that is not a doctype, or nil.
func afterDoctype(root *html.Node) *html.Node {
	c := root.FirstChild
	for c != nil && c.Type == html.DoctypeNode {
		c = c.NextSibling
	}
	return c
}

func leadingMarker(root *html.Node) *html.Node {
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.CommentNode:
			if strings.HasPrefix(strings.TrimSpace(c.Data), markerPrefix) {
				return c
			}
		case html.DoctypeNode:
			continue
		}
		return nil
	}
	return nil
}
