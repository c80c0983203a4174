package layout

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Field names one addressable part of a node's content.
type Field string

const (
	FieldText        Field = "text"
	FieldTitle       Field = "title"
	FieldDescription Field = "description"
	FieldCTA         Field = "cta"
)

// Valid reports whether f is a recognized content field.
func (f Field) Valid() bool {
	switch f {
	case FieldText, FieldTitle, FieldDescription, FieldCTA:
		return true
	}
	return false
}

// legacySep joins composite sub-fields in the older single-string form.
const legacySep = "|"

// Content is the structured text carried by a node. Simple kinds use Text;
// composite kinds (Card, Navbar, Footer, Section) use Title, Description
// and CTA.
//
// On the wire Content decodes from either an object or a plain string.
// A plain string containing "|" is the older "title|description|cta"
// encoding and is split once the node kind is known (see ForKind).
type Content struct {
	Text        string `json:"text,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	CTA         string `json:"cta,omitempty"`
}

// Plain builds a Content holding a single text value.
func Plain(s string) Content { return Content{Text: s} }

// IsZero reports whether every field is empty.
func (c Content) IsZero() bool { return c == Content{} }

// Get returns the value of f.
func (c Content) Get(f Field) string {
	switch f {
	case FieldTitle:
		return c.Title
	case FieldDescription:
		return c.Description
	case FieldCTA:
		return c.CTA
	}
	return c.Text
}

// With returns a copy of c with f set to v.
func (c Content) With(f Field, v string) Content {
	switch f {
	case FieldTitle:
		c.Title = v
	case FieldDescription:
		c.Description = v
	case FieldCTA:
		c.CTA = v
	default:
		c.Text = v
	}
	return c
}

// ForKind normalises legacy encodings for kind k: a composite node whose
// content arrived as "title|description|cta" gets its sub-fields split out.
func (c Content) ForKind(k Kind) Content {
	if !k.Composite() || c.Title != "" || c.Description != "" || c.CTA != "" {
		return c
	}
	if !strings.Contains(c.Text, legacySep) {
		return c
	}
	parts := strings.SplitN(c.Text, legacySep, 3)
	out := Content{Title: parts[0]}
	if len(parts) > 1 {
		out.Description = parts[1]
	}
	if len(parts) > 2 {
		out.CTA = parts[2]
	}
	return out
}

// Label is a short human label used by layer listings.
func (c Content) Label() string {
	for _, s := range []string{c.Title, c.Text, c.Description, c.CTA} {
		if s != "" {
			if i := strings.Index(s, legacySep); i >= 0 {
				s = s[:i]
			}
			return s
		}
	}
	return ""
}

func (c *Content) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*c = Content{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = Plain(s)
		return nil
	}
	type plain Content
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("layout: content: %w", err)
	}
	*c = Content(p)
	return nil
}
