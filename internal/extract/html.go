package extract

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

func extractHTML(data []byte) (Result, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return Result{}, fmt.Errorf("parse html: %w", err)
	}
	text := strings.TrimSpace(textContent(doc))
	if text == "" {
		return Result{}, fmt.Errorf("no text extracted from html")
	}
	return Result{Text: text, PageCount: 1}, nil
}

func textContent(n *html.Node) string {
	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		switch node.Type {
		case html.TextNode:
			buf.WriteString(node.Data)
			buf.WriteString(" ")
		case html.ElementNode:
			if node.Data == "script" || node.Data == "style" {
				return
			}
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
		if node.Type == html.ElementNode && (node.Data == "p" || node.Data == "br" || node.Data == "div" || node.Data == "li") {
			buf.WriteString("\n")
		}
	}
	walk(n)
	return buf.String()
}
