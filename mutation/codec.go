package mutation

import (
	"encoding/json"
	"fmt"

	"github.com/hazyhaar/canvas/layout"
)

// Encode serialises m to its wire form.
func Encode(m Mutation) ([]byte, error) {
	return json.Marshal(m)
}

// Decode parses and validates a wire mutation. Unknown types decode
// without error; check Type.Known before acting on them.
func Decode(data []byte) (Mutation, error) {
	var m Mutation
	if err := json.Unmarshal(data, &m); err != nil {
		return Mutation{}, &ValidationError{Reason: "malformed json", Cause: err}
	}
	if err := Validate(m); err != nil {
		return m, err
	}
	return m, nil
}

// Validate checks the shape of m: a type and an actor are always
// required, node-scoped types need an id, and known types must carry a
// decodable payload.
func Validate(m Mutation) error {
	if m.Type == "" {
		return invalid(m, "missing type", nil)
	}
	if m.ActorID == "" {
		return invalid(m, "missing actorId", nil)
	}
	if !m.Type.Known() {
		return nil
	}
	if m.Type.Scoped() && m.ID == "" {
		return invalid(m, "missing id", nil)
	}
	switch m.Type {
	case TypeAdd:
		n, err := m.Node()
		if err != nil {
			return invalid(m, "bad node", err)
		}
		if n.ID == "" {
			return invalid(m, "node without id", nil)
		}
		if n.Type == "" {
			return invalid(m, "node without type", nil)
		}
	case TypeUpdateStyle:
		if _, err := m.StylePatch(); err != nil {
			return invalid(m, "bad style patch", err)
		}
	case TypeUpdateContent:
		p, err := m.ContentPayload()
		if err != nil {
			return invalid(m, "bad content", err)
		}
		if p.Patch() && !p.Field.Valid() {
			return invalid(m, fmt.Sprintf("unknown content field %q", p.Field), nil)
		}
	case TypeUpdateImage:
		if _, err := m.ImageSrc(); err != nil {
			return invalid(m, "bad image payload", err)
		}
	case TypeUpdateLink:
		if _, err := m.LinkURL(); err != nil {
			return invalid(m, "bad link payload", err)
		}
	case TypeMove:
		if _, err := m.Delta(); err != nil {
			return invalid(m, "bad move payload", err)
		}
	}
	return nil
}

func (m Mutation) decode(v any) error {
	if len(m.Data) == 0 {
		return fmt.Errorf("missing data")
	}
	return json.Unmarshal(m.Data, v)
}

// Node decodes the ADD_COMPONENT payload. The mutation id, when present,
// wins over a node without one.
func (m Mutation) Node() (layout.Node, error) {
	var n layout.Node
	if err := m.decode(&n); err != nil {
		return layout.Node{}, err
	}
	if n.ID == "" {
		n.ID = m.ID
	}
	return n, nil
}

// StylePatch decodes the UPDATE_STYLE payload.
func (m Mutation) StylePatch() (layout.StylePatch, error) {
	var p layout.StylePatch
	err := m.decode(&p)
	return p, err
}

// ContentPayload decodes the UPDATE_CONTENT payload.
func (m Mutation) ContentPayload() (ContentPayload, error) {
	var p ContentPayload
	err := m.decode(&p)
	return p, err
}

// ImageSrc decodes the UPDATE_IMAGE payload.
func (m Mutation) ImageSrc() (string, error) {
	var p ImagePayload
	err := m.decode(&p)
	return p.ImageSrc, err
}

// LinkURL decodes the UPDATE_LINK payload.
func (m Mutation) LinkURL() (string, error) {
	var p LinkPayload
	err := m.decode(&p)
	return p.LinkURL, err
}

// Delta decodes the MOVE_COMPONENT payload.
func (m Mutation) Delta() (int, error) {
	var p MovePayload
	err := m.decode(&p)
	return p.Delta, err
}
