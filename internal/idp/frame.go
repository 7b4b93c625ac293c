package idp

import (
	"strings"

	"golang.org/x/net/html"
)

// hiddenInputs parses the rendered frame markup and returns the values of
// the named <input> elements. A name with no matching input is reported in
// the second return value so the caller can fail with the exact field list.
func hiddenInputs(markup string, names ...string) (map[string]string, []string) {
	values := make(map[string]string, len(names))
	doc, err := html.Parse(strings.NewReader(markup))
	if err == nil {
		collectInputs(doc, values)
	}
	var missing []string
	for _, name := range names {
		if _, ok := values[name]; !ok {
			missing = append(missing, name)
		}
	}
	return values, missing
}

func collectInputs(n *html.Node, values map[string]string) {
	if n.Type == html.ElementNode && n.Data == "input" {
		var name, value string
		for _, attr := range n.Attr {
			switch attr.Key {
			case "name":
				name = attr.Val
			case "value":
				value = attr.Val
			}
		}
		if name != "" {
			values[name] = value
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectInputs(c, values)
	}
}

// firstScriptPayload returns the right-hand side of the assignment inside
// the first <script> element of the markup, with the trailing semicolon
// stripped. The provider embeds its page options as a single
// "var x = {...};" statement.
func firstScriptPayload(markup string) (string, bool) {
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return "", false
	}
	text, ok := firstScriptText(doc)
	if !ok {
		return "", false
	}
	idx := strings.Index(text, "=")
	if idx < 0 {
		return "", false
	}
	return strings.TrimRight(strings.TrimSpace(text[idx+1:]), ";\n"), true
}

func firstScriptText(n *html.Node) (string, bool) {
	if n.Type == html.ElementNode && n.Data == "script" {
		if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
			return n.FirstChild.Data, true
		}
		return "", false
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if text, ok := firstScriptText(c); ok {
			return text, ok
		}
	}
	return "", false
}
