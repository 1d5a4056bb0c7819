// Package xpath fingerprints DOM elements with positional XPath locators and
// resolves them back. It is the server-side twin of the recorder's locator:
// every segment is tag[n] where n is the 1-based position among siblings
// sharing the tag name, from the root element down to the node.
package xpath

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/vincentbai/stepcoach/internal/models"
)

const maxTextLength = 200

// Parse reads an HTML document.
func Parse(reader io.Reader) (*html.Node, error) {
	document, err := html.Parse(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}
	return document, nil
}

// Build returns the locator for node. Non-element nodes are located through
// their nearest element ancestor; nil or element-less chains yield "".
func Build(node *html.Node) string {
	for node != nil && node.Type != html.ElementNode {
		node = node.Parent
	}
	if node == nil {
		return ""
	}

	var segments []string
	for current := node; current != nil && current.Type == html.ElementNode; current = current.Parent {
		segments = append(segments, fmt.Sprintf("%s[%d]", tagName(current), position(current)))
	}

	// Collected leaf-first.
	for left, right := 0, len(segments)-1; left < right; left, right = left+1, right-1 {
		segments[left], segments[right] = segments[right], segments[left]
	}
	return "/" + strings.Join(segments, "/")
}

// position counts preceding siblings with the same tag name, 1-based.
func position(node *html.Node) int {
	index := 1
	name := tagName(node)
	for sibling := node.PrevSibling; sibling != nil; sibling = sibling.PrevSibling {
		if sibling.Type == html.ElementNode && tagName(sibling) == name {
			index++
		}
	}
	return index
}

func tagName(node *html.Node) string {
	return strings.ToLower(node.Data)
}

// Resolve follows a tag[n] locator from root (usually the document node) and
// returns the element it names, or nil when any segment does not match.
// A segment without a predicate means tag[1].
func Resolve(root *html.Node, path string) *html.Node {
	path = strings.TrimSpace(path)
	if root == nil || !strings.HasPrefix(path, "/") || strings.HasPrefix(path, "//") {
		return nil
	}

	current := root
	for _, segment := range strings.Split(path[1:], "/") {
		name, index, err := parseSegment(segment)
		if err != nil {
			return nil
		}
		current = nthChild(current, name, index)
		if current == nil {
			return nil
		}
	}
	return current
}

func parseSegment(segment string) (string, int, error) {
	open := strings.IndexByte(segment, '[')
	if open < 0 {
		if segment == "" {
			return "", 0, fmt.Errorf("empty segment")
		}
		return strings.ToLower(segment), 1, nil
	}
	if !strings.HasSuffix(segment, "]") || open == 0 {
		return "", 0, fmt.Errorf("malformed segment %q", segment)
	}
	index, err := strconv.Atoi(segment[open+1 : len(segment)-1])
	if err != nil || index < 1 {
		return "", 0, fmt.Errorf("bad position in segment %q", segment)
	}
	return strings.ToLower(segment[:open]), index, nil
}

func nthChild(parent *html.Node, name string, index int) *html.Node {
	count := 0
	for child := parent.FirstChild; child != nil; child = child.NextSibling {
		if child.Type != html.ElementNode || tagName(child) != name {
			continue
		}
		count++
		if count == index {
			return child
		}
	}
	return nil
}

// Elements returns every element node under root in document order.
func Elements(root *html.Node) []*html.Node {
	var elements []*html.Node
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.ElementNode {
			elements = append(elements, node)
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	if root != nil {
		walk(root)
	}
	return elements
}

// Describe extracts the element fingerprint the recorder would capture for node.
func Describe(node *html.Node) *models.Element {
	if node == nil || node.Type != html.ElementNode {
		return nil
	}
	element := &models.Element{
		Tag:         tagName(node),
		ID:          attribute(node, "id"),
		Classes:     strings.Fields(attribute(node, "class")),
		Text:        visibleText(node),
		AriaLabel:   attribute(node, "aria-label"),
		Placeholder: attribute(node, "placeholder"),
		Name:        attribute(node, "name"),
		Type:        attribute(node, "type"),
		XPath:       Build(node),
	}
	return element
}

func attribute(node *html.Node, key string) string {
	for _, attr := range node.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func visibleText(node *html.Node) string {
	var builder strings.Builder
	var walk func(*html.Node)
	walk = func(current *html.Node) {
		if current.Type == html.ElementNode {
			switch tagName(current) {
			case "script", "style", "noscript", "template":
				return
			}
		}
		if current.Type == html.TextNode {
			builder.WriteString(current.Data)
			builder.WriteByte(' ')
		}
		for child := current.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(node)
	return Truncate(strings.Join(strings.Fields(builder.String()), " "), maxTextLength)
}

// Truncate cuts s to at most limit runes.
func Truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}
