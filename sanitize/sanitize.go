// Package sanitize guards what enters the mutation log. Text fields must be
// plain text, URLs are restricted to schemes a page can safely render and
// style values may not run script.
//
// Inbound mutations and snapshots are checked, never rewritten: the sender
// has already applied its own copy, so the logged payload must be exactly
// what it sent. Node and Text produce cleaned copies for rendering only.
package sanitize

import (
	"errors"
	"fmt"
	"html"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"github.com/hazyhaar/canvas/layout"
	"github.com/hazyhaar/canvas/mutation"
)

// MaxTextLen caps a single content field, in bytes.
const MaxTextLen = 10_000

// MaxURLLen caps image and link URLs.
const MaxURLLen = 2048

// ErrUnsafeScheme is returned for URLs outside the allowed schemes.
var ErrUnsafeScheme = errors.New("sanitize: URL scheme not allowed")

// ErrUnsafeStyle is returned for style values that could run script.
var ErrUnsafeStyle = errors.New("sanitize: unsafe style value")

// ErrMarkup is returned for text fields that are not plain text.
var ErrMarkup = errors.New("sanitize: content must be plain text")

// ErrTooLong is returned for text fields over MaxTextLen.
var ErrTooLong = fmt.Errorf("sanitize: content longer than %d bytes", MaxTextLen)

var strict = bluemonday.StrictPolicy()

// Text strips markup from s and returns plain text. Entities produced by
// the policy are decoded again so "a & b" survives unchanged.
func Text(s string) string {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	if len(s) > MaxTextLen {
		s = s[:MaxTextLen]
		for !utf8.ValidString(s) {
			s = s[:len(s)-1]
		}
	}
	if !strings.ContainsAny(s, "<>&") {
		return s
	}
	return html.UnescapeString(strict.Sanitize(s))
}

// Content applies Text to every field.
func Content(c layout.Content) layout.Content {
	return layout.Content{
		Text:        Text(c.Text),
		Title:       Text(c.Title),
		Description: Text(c.Description),
		CTA:         Text(c.CTA),
	}
}

// ImageURL validates an image source: http, https, a site-relative path,
// or an inline data:image URL. The empty string clears the image.
func ImageURL(raw string) error {
	if raw == "" {
		return nil
	}
	if strings.HasPrefix(raw, "data:image/") {
		return nil
	}
	return checkURL(raw, "http", "https")
}

// LinkURL validates a link target: http, https, mailto, tel, an in-page
// anchor or a site-relative path. The empty string clears the link.
func LinkURL(raw string) error {
	if raw == "" || strings.HasPrefix(raw, "#") {
		return nil
	}
	return checkURL(raw, "http", "https", "mailto", "tel")
}

func checkURL(raw string, schemes ...string) error {
	if len(raw) > MaxURLLen {
		return fmt.Errorf("sanitize: URL longer than %d bytes", MaxURLLen)
	}
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("sanitize: invalid URL: %w", err)
	}
	if u.Scheme == "" {
		// Site-relative only; "//host" would switch origin.
		if strings.HasPrefix(u.Path, "/") && u.Host == "" && !strings.HasPrefix(raw, "//") {
			return nil
		}
		return ErrUnsafeScheme
	}
	scheme := strings.ToLower(u.Scheme)
	for _, s := range schemes {
		if scheme == s {
			if (s == "http" || s == "https") && u.Hostname() == "" {
				return fmt.Errorf("sanitize: URL has no host")
			}
			return nil
		}
	}
	return ErrUnsafeScheme
}

// StyleValue rejects CSS values that can execute script or pull remote
// resources.
func StyleValue(v layout.Value) error {
	s := strings.ToLower(v.Str())
	for _, bad := range []string{"javascript:", "expression(", "url(", "<", "@import"} {
		if strings.Contains(s, bad) {
			return ErrUnsafeStyle
		}
	}
	return nil
}

// Node returns a copy of n safe to render: content is reduced to plain
// text, unsafe URLs are cleared and unsafe style values dropped.
func Node(n layout.Node) layout.Node {
	n.Content = Content(n.Content)
	if ImageURL(n.ImageSrc) != nil {
		n.ImageSrc = ""
	}
	if LinkURL(n.LinkURL) != nil {
		n.LinkURL = ""
	}
	if len(n.Styles) > 0 {
		styles := make(layout.Styles, len(n.Styles))
		for k, v := range n.Styles {
			if StyleValue(v) == nil {
				styles[k] = v
			}
		}
		n.Styles = styles
	}
	return n
}

// CheckText reports whether s would come out of Text unchanged.
func CheckText(s string) error {
	if len(s) > MaxTextLen {
		return ErrTooLong
	}
	if Text(s) != s {
		return ErrMarkup
	}
	return nil
}

// CheckContent applies CheckText to every field.
func CheckContent(c layout.Content) error {
	for _, f := range []string{c.Text, c.Title, c.Description, c.CTA} {
		if err := CheckText(f); err != nil {
			return err
		}
	}
	return nil
}

// CheckNode reports the first part of n that Node would change.
func CheckNode(n layout.Node) error {
	if err := CheckContent(n.Content); err != nil {
		return err
	}
	if err := ImageURL(n.ImageSrc); err != nil {
		return err
	}
	if err := LinkURL(n.LinkURL); err != nil {
		return err
	}
	for _, v := range n.Styles {
		if err := StyleValue(v); err != nil {
			return err
		}
	}
	return nil
}

// Mutation checks the payload of an inbound mutation. Anything that is
// not already safe is a *mutation.ValidationError; m is never modified.
func Mutation(m mutation.Mutation) error {
	if err := mutation.Validate(m); err != nil {
		return err
	}
	reject := func(reason string, err error) error {
		return &mutation.ValidationError{Type: m.Type, ID: m.ID, Reason: reason, Cause: err}
	}

	switch m.Type {
	case mutation.TypeAdd:
		n, _ := m.Node()
		if err := CheckNode(n); err != nil {
			return reject("unsafe node", err)
		}
	case mutation.TypeUpdateContent:
		p, _ := m.ContentPayload()
		err := CheckContent(p.Content)
		if p.Patch() {
			err = CheckText(p.Value)
		}
		if err != nil {
			return reject("content", err)
		}
	case mutation.TypeUpdateImage:
		src, _ := m.ImageSrc()
		if err := ImageURL(src); err != nil {
			return reject("unsafe image URL", err)
		}
	case mutation.TypeUpdateLink:
		u, _ := m.LinkURL()
		if err := LinkURL(u); err != nil {
			return reject("unsafe link URL", err)
		}
	case mutation.TypeUpdateStyle:
		p, _ := m.StylePatch()
		for k, v := range p {
			if v == nil {
				continue
			}
			if err := StyleValue(*v); err != nil {
				return reject(fmt.Sprintf("style %s", k), err)
			}
		}
	}
	return nil
}
