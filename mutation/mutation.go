// Package mutation defines the wire contract for layout edits. Every client
// encodes its edits as Mutations, the channel stores and fans them out, and
// every receiving client folds them back into its layout with Apply.
//
// Wire shape:
//
//	{"type": "UPDATE_STYLE", "id": "node-1a2b3c4d", "data": {"color": "#fff"}, "actorId": "actor-..."}
//
// Types the decoder does not recognise are accepted and ignored by Apply,
// so older clients keep working when new mutation types are introduced.
package mutation

import (
	"bytes"
	"encoding/json"

	"github.com/hazyhaar/canvas/layout"
)

// Type is the kind of change a mutation carries.
type Type string

const (
	TypeAdd           Type = "ADD_COMPONENT"     // data: full node
	TypeUpdateStyle   Type = "UPDATE_STYLE"      // data: partial style map
	TypeUpdateContent Type = "UPDATE_CONTENT"    // data: string, content object, or {field, value}
	TypeUpdateImage   Type = "UPDATE_IMAGE"      // data: {imageSrc}
	TypeUpdateLink    Type = "UPDATE_LINK"       // data: {linkUrl}
	TypeMove          Type = "MOVE_COMPONENT"    // data: {delta}
	TypeDelete        Type = "DELETE_COMPONENT"  // no data
	TypeReset         Type = "RESET_LAYOUT"      // no data, no id
	TypeTerminate     Type = "TERMINATE_SESSION" // control: no layout transition
)

var known = map[Type]bool{
	TypeAdd: true, TypeUpdateStyle: true, TypeUpdateContent: true,
	TypeUpdateImage: true, TypeUpdateLink: true, TypeMove: true,
	TypeDelete: true, TypeReset: true, TypeTerminate: true,
}

// Known reports whether t is a mutation type this version understands.
func (t Type) Known() bool { return known[t] }

// Scoped reports whether mutations of type t target a single node and so
// require an id.
func (t Type) Scoped() bool {
	switch t {
	case TypeUpdateStyle, TypeUpdateContent, TypeUpdateImage, TypeUpdateLink, TypeMove, TypeDelete:
		return true
	}
	return false
}

// Control reports whether t is a session control message rather than a
// layout edit.
func (t Type) Control() bool { return t == TypeTerminate }

// Mutation is one immutable change intent. ActorID names the originating
// client instance (one per editor tab), not the signed-in user.
type Mutation struct {
	Type    Type            `json:"type"`
	ID      string          `json:"id,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	ActorID string          `json:"actorId"`
}

// ImagePayload is the data of UPDATE_IMAGE.
type ImagePayload struct {
	ImageSrc string `json:"imageSrc"`
}

// LinkPayload is the data of UPDATE_LINK.
type LinkPayload struct {
	LinkURL string `json:"linkUrl"`
}

// MovePayload is the data of MOVE_COMPONENT.
type MovePayload struct {
	Delta int `json:"delta"`
}

// ContentPayload is the decoded data of UPDATE_CONTENT. When Field is set
// only that sub-field is replaced; otherwise Content replaces the whole
// record.
type ContentPayload struct {
	Content layout.Content
	Field   layout.Field
	Value   string
}

// Patch reports whether the payload replaces a single sub-field.
func (p ContentPayload) Patch() bool { return p.Field != "" }

func (p ContentPayload) MarshalJSON() ([]byte, error) {
	if p.Patch() {
		return json.Marshal(struct {
			Field layout.Field `json:"field"`
			Value string       `json:"value"`
		}{p.Field, p.Value})
	}
	return json.Marshal(p.Content)
}

func (p *ContentPayload) UnmarshalJSON(data []byte) error {
	var probe struct {
		Field *layout.Field `json:"field"`
		Value string        `json:"value"`
	}
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		if err := json.Unmarshal(data, &probe); err != nil {
			return err
		}
		if probe.Field != nil {
			*p = ContentPayload{Field: *probe.Field, Value: probe.Value}
			return nil
		}
	}
	var c layout.Content
	if err := json.Unmarshal(data, &c); err != nil {
		return err
	}
	*p = ContentPayload{Content: c}
	return nil
}

// WithActor returns a copy of m stamped with actor.
func (m Mutation) WithActor(actor string) Mutation {
	m.ActorID = actor
	return m
}
