package mutation

import (
	"encoding/json"

	"github.com/hazyhaar/canvas/layout"
)

// raw encodes v for the Data field. Payloads built here only fail to encode
// for non-finite numbers; Validate then reports the missing data.
func raw(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

// Add builds an ADD_COMPONENT mutation.
func Add(actor string, n layout.Node) Mutation {
	return Mutation{Type: TypeAdd, ID: n.ID, Data: raw(n), ActorID: actor}
}

// UpdateStyle builds an UPDATE_STYLE mutation.
func UpdateStyle(actor, id string, p layout.StylePatch) Mutation {
	return Mutation{Type: TypeUpdateStyle, ID: id, Data: raw(p), ActorID: actor}
}

// UpdateContent builds an UPDATE_CONTENT mutation replacing the whole content.
func UpdateContent(actor, id string, c layout.Content) Mutation {
	return Mutation{Type: TypeUpdateContent, ID: id, Data: raw(ContentPayload{Content: c}), ActorID: actor}
}

// PatchContent builds an UPDATE_CONTENT mutation replacing one sub-field.
func PatchContent(actor, id string, f layout.Field, v string) Mutation {
	return Mutation{Type: TypeUpdateContent, ID: id, Data: raw(ContentPayload{Field: f, Value: v}), ActorID: actor}
}

// UpdateImage builds an UPDATE_IMAGE mutation.
func UpdateImage(actor, id, src string) Mutation {
	return Mutation{Type: TypeUpdateImage, ID: id, Data: raw(ImagePayload{ImageSrc: src}), ActorID: actor}
}

// UpdateLink builds an UPDATE_LINK mutation.
func UpdateLink(actor, id, url string) Mutation {
	return Mutation{Type: TypeUpdateLink, ID: id, Data: raw(LinkPayload{LinkURL: url}), ActorID: actor}
}

// Move builds a MOVE_COMPONENT mutation.
func Move(actor, id string, delta int) Mutation {
	return Mutation{Type: TypeMove, ID: id, Data: raw(MovePayload{Delta: delta}), ActorID: actor}
}

// Delete builds a DELETE_COMPONENT mutation.
func Delete(actor, id string) Mutation {
	return Mutation{Type: TypeDelete, ID: id, ActorID: actor}
}

// Reset builds a RESET_LAYOUT mutation.
func Reset(actor string) Mutation {
	return Mutation{Type: TypeReset, ActorID: actor}
}

// Terminate builds a TERMINATE_SESSION control mutation.
func Terminate(actor string) Mutation {
	return Mutation{Type: TypeTerminate, ActorID: actor}
}
