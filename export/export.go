// Package export renders a layout snapshot as a static document for
// previews and the CLI: HTML through golang.org/x/net/html, Markdown by
// converting that HTML with html-to-markdown.
//
// Root nodes are emitted in sequence order. Free-positioned children are
// nested inside their section and absolutely positioned, in zIndex order.
// Nodes whose parent is missing are not rendered.
package export

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/canvas/layout"
	"github.com/hazyhaar/canvas/sanitize"
)

// Format selects the export encoding.
type Format string

const (
	FormatHTML     Format = "html"
	FormatMarkdown Format = "md"
)

// ParseFormat accepts "html", "md" and "markdown". Empty means HTML.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "html":
		return FormatHTML, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	}
	return "", fmt.Errorf("export: unknown format %q", s)
}

// ContentType returns the MIME type for f.
func (f Format) ContentType() string {
	if f == FormatMarkdown {
		return "text/markdown; charset=utf-8"
	}
	return "text/html; charset=utf-8"
}

// Write renders l in format f.
func Write(w io.Writer, f Format, title string, l layout.Layout) error {
	if f == FormatMarkdown {
		md, err := Markdown(title, l)
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, md)
		return err
	}
	return HTML(w, title, l)
}

// HTML writes a standalone HTML document for l.
func HTML(w io.Writer, title string, l layout.Layout) error {
	doc := &html.Node{Type: html.DocumentNode}
	doc.AppendChild(&html.Node{Type: html.DoctypeNode, Data: "html"})

	root := element(atom.Html, attr("lang", "en"))
	head := element(atom.Head)
	head.AppendChild(element(atom.Meta, attr("charset", "utf-8")))
	head.AppendChild(withText(element(atom.Title), title))
	root.AppendChild(head)

	body := element(atom.Body)
	for _, n := range l {
		if n.ParentID != "" {
			continue
		}
		body.AppendChild(render(l, n))
	}
	root.AppendChild(body)
	doc.AppendChild(root)

	if err := html.Render(w, doc); err != nil {
		return fmt.Errorf("export: render html: %w", err)
	}
	return nil
}

var mdConverter = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
		table.NewTablePlugin(),
	),
)

// Markdown renders l to HTML and converts it. The title becomes the top
// heading.
func Markdown(title string, l layout.Layout) (string, error) {
	var buf bytes.Buffer
	if err := HTML(&buf, title, l); err != nil {
		return "", err
	}
	md, err := mdConverter.ConvertString(buf.String())
	if err != nil {
		return "", fmt.Errorf("export: convert markdown: %w", err)
	}
	md = strings.TrimSpace(md)
	if title != "" {
		md = "# " + title + "\n\n" + md
	}
	return md + "\n", nil
}

func render(l layout.Layout, n layout.Node) *html.Node {
	n = sanitize.Node(n)
	c := n.Content

	var el *html.Node
	switch n.Type {
	case layout.KindText:
		el = withText(element(atom.P), c.Label())
	case layout.KindButton:
		if n.LinkURL != "" {
			el = withText(element(atom.A, attr("href", n.LinkURL), attr("class", "button")), c.Label())
		} else {
			el = withText(element(atom.Button, attr("type", "button")), c.Label())
		}
	case layout.KindImage:
		el = element(atom.Img, attr("src", n.ImageSrc), attr("alt", c.Label()))
		if n.LinkURL != "" {
			el = wrapLink(el, n.LinkURL)
		}
	case layout.KindSection:
		el = element(atom.Section)
		composite(el, atom.H2, c, n.LinkURL)
		children := slices.Clone(l.Children(n.ID))
		slices.SortStableFunc(children, func(a, b layout.Node) int {
			za, zb := a.Styles.Num(layout.ZIndex, 1), b.Styles.Num(layout.ZIndex, 1)
			switch {
			case za < zb:
				return -1
			case za > zb:
				return 1
			}
			return 0
		})
		if len(children) > 0 {
			el.Attr = append(el.Attr, attr("data-positioned", strconv.Itoa(len(children))))
		}
		for _, child := range children {
			el.AppendChild(render(l, child))
		}
	case layout.KindNavbar:
		el = element(atom.Nav)
		composite(el, atom.Strong, c, n.LinkURL)
	case layout.KindFooter:
		el = element(atom.Footer)
		composite(el, atom.P, c, n.LinkURL)
	case layout.KindCard:
		el = element(atom.Article, attr("class", "card"))
		composite(el, atom.H3, c, n.LinkURL)
		if n.ImageSrc != "" {
			el.InsertBefore(element(atom.Img, attr("src", n.ImageSrc), attr("alt", c.Title)), el.FirstChild)
		}
	default:
		el = withText(element(atom.Div), c.Label())
	}

	el.Attr = append(el.Attr, attr("id", n.ID), attr("data-kind", string(n.Type)))
	if css := inlineStyle(n); css != "" {
		el.Attr = append(el.Attr, attr("style", css))
	}
	return el
}

// composite renders the title, description and call to action of a
// composite node. Single-string content falls back to Text.
func composite(el *html.Node, heading atom.Atom, c layout.Content, link string) {
	title := c.Title
	if title == "" {
		title = c.Text
	}
	if title != "" {
		el.AppendChild(withText(element(heading), title))
	}
	if c.Description != "" {
		el.AppendChild(withText(element(atom.P), c.Description))
	}
	if c.CTA != "" {
		if link != "" {
			el.AppendChild(withText(element(atom.A, attr("href", link)), c.CTA))
		} else {
			el.AppendChild(withText(element(atom.Button, attr("type", "button")), c.CTA))
		}
	}
}

var customKey = regexp.MustCompile(`^[a-zA-Z][a-zA-Z-]*$`)

// inlineStyle turns the style map into a CSS declaration list. Keys are
// sorted so the output is stable. Position keys map to left/top/z-index.
func inlineStyle(n layout.Node) string {
	keys := make([]layout.Key, 0, len(n.Styles))
	for k := range n.Styles {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var decls []string
	if n.Positioned() {
		decls = append(decls, "position: absolute")
	}
	for _, k := range keys {
		v := n.Styles[k]
		switch k {
		case layout.X, layout.Y:
			num, ok := v.Num()
			if !ok {
				continue
			}
			prop := "left"
			if k == layout.Y {
				prop = "top"
			}
			decls = append(decls, prop+": "+strconv.FormatFloat(num, 'f', -1, 64)+"px")
			continue
		case layout.ZIndex:
			if num, ok := v.Num(); ok {
				decls = append(decls, "z-index: "+strconv.Itoa(int(num)))
			}
			continue
		}
		if !customKey.MatchString(string(k)) || sanitize.StyleValue(v) != nil {
			continue
		}
		s := v.Str()
		if s == "" || strings.ContainsAny(s, ";{}") {
			continue
		}
		decls = append(decls, kebab(string(k))+": "+s)
	}
	return strings.Join(decls, "; ")
}

// kebab converts a camelCase style key to its CSS property name.
func kebab(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= 'A' && r <= 'Z' {
			b.WriteByte('-')
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

func element(a atom.Atom, attrs ...html.Attribute) *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String(), Attr: attrs}
}

func attr(key, val string) html.Attribute { return html.Attribute{Key: key, Val: val} }

func withText(el *html.Node, text string) *html.Node {
	if text != "" {
		el.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	}
	return el
}

func wrapLink(el *html.Node, href string) *html.Node {
	a := element(atom.A, attr("href", href))
	a.AppendChild(el)
	return a
}
