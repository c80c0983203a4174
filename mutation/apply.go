package mutation

import "github.com/hazyhaar/canvas/layout"

// Apply folds m into l and reports whether m was an edit it understood.
// Unknown types, control messages and undecodable payloads leave l
// unchanged and return false. Apply never fails.
func Apply(l layout.Layout, m Mutation) (layout.Layout, bool) {
	switch m.Type {
	case TypeAdd:
		n, err := m.Node()
		if err != nil || n.ID == "" {
			return l, false
		}
		return l.Add(n), true
	case TypeUpdateStyle:
		p, err := m.StylePatch()
		if err != nil {
			return l, false
		}
		return l.UpdateStyle(m.ID, p), true
	case TypeUpdateContent:
		p, err := m.ContentPayload()
		if err != nil {
			return l, false
		}
		if p.Patch() {
			return l.PatchContent(m.ID, p.Field, p.Value), true
		}
		return l.UpdateContent(m.ID, p.Content), true
	case TypeUpdateImage:
		src, err := m.ImageSrc()
		if err != nil {
			return l, false
		}
		return l.UpdateImage(m.ID, src), true
	case TypeUpdateLink:
		url, err := m.LinkURL()
		if err != nil {
			return l, false
		}
		return l.UpdateLink(m.ID, url), true
	case TypeMove:
		d, err := m.Delta()
		if err != nil {
			return l, false
		}
		return l.Move(m.ID, d), true
	case TypeDelete:
		return l.Delete(m.ID), true
	case TypeReset:
		return l.Reset(), true
	}
	return l, false
}
