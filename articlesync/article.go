// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package articlesync

import (
	"bytes"
	"net/url"
	"path"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const descriptionLength = 400

type processedArticle struct {
	HTML          []byte
	FirstImageURL string
	Description   string
}

// processArticle normalizes a downloaded body: the body's children are wrapped in
// a single block element, and the first usable image and a text excerpt are
// extracted.
func processArticle(body, articleURL string) (processedArticle, error) {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return processedArticle{}, err
	}

	var out processedArticle
	bodyNode := findElement(doc, atom.Body)
	if bodyNode != nil {
		out.FirstImageURL = youTubeThumbnail(articleURL)
		if out.FirstImageURL == "" {
			out.FirstImageURL = firstImage(bodyNode)
		}
		out.Description = excerpt(bodyNode, descriptionLength)
		wrapChildren(bodyNode)
	}

	if doc.FirstChild == nil || doc.FirstChild.Type != html.DoctypeNode {
		doc.InsertBefore(&html.Node{Type: html.DoctypeNode, Data: "html"}, doc.FirstChild)
	}
	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return processedArticle{}, err
	}
	out.HTML = buf.Bytes()
	return out, nil
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// firstImage returns the first http(s) image that is not a gif
func firstImage(n *html.Node) string {
	if n.Type == html.ElementNode && n.DataAtom == atom.Img {
		if src := usableImage(attr(n, "src")); src != "" {
			return src
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if src := firstImage(c); src != "" {
			return src
		}
	}
	return ""
}

func usableImage(src string) string {
	u, err := url.Parse(strings.TrimSpace(src))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return ""
	}
	if strings.EqualFold(path.Ext(u.Path), ".gif") {
		return ""
	}
	return u.String()
}

// youTubeThumbnail returns the poster image for YouTube watch links, whose
// bodies carry no images of their own.
func youTubeThumbnail(articleURL string) string {
	u, err := url.Parse(articleURL)
	if err != nil {
		return ""
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if host != "youtube.com" && host != "m.youtube.com" {
		return ""
	}
	if u.Path != "/watch" {
		return ""
	}
	id := u.Query().Get("v")
	if id == "" {
		return ""
	}
	return "https://img.youtube.com/vi/" + url.PathEscape(id) + "/hqdefault.jpg"
}

// excerpt returns up to limit runes of the visible text, whitespace collapsed
func excerpt(n *html.Node, limit int) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch {
		case n.Type == html.ElementNode && (n.DataAtom == atom.Script || n.DataAtom == atom.Style):
			return
		case n.Type == html.TextNode:
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)

	text := strings.Join(strings.Fields(sb.String()), " ")
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	return string([]rune(text)[:limit])
}

// wrapChildren moves every child of n into a new div so inline content gets
// block layout.
func wrapChildren(n *html.Node) {
	wrapper := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	for n.FirstChild != nil {
		c := n.FirstChild
		n.RemoveChild(c)
		wrapper.AppendChild(c)
	}
	n.AppendChild(wrapper)
}
