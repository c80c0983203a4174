// Package layout holds the ordered node sequence of a page session and the
// pure transitions applied to it.
//
// Every transition returns a new Layout and leaves its receiver untouched,
// so the same mutation can be replayed against any baseline. Transitions
// that target a missing id return the layout unchanged.
//
// Deleting a node never deletes its children: nodes whose ParentID named
// the deleted node keep the dangling reference (see Orphans).
package layout

import (
	"slices"
)

// Layout is the ordered node sequence. Order is the paint and document
// order for stacked nodes.
type Layout []Node

// Index returns the position of id, or -1.
func (l Layout) Index(id string) int {
	return slices.IndexFunc(l, func(n Node) bool { return n.ID == id })
}

// Get returns the node with the given id.
func (l Layout) Get(id string) (Node, bool) {
	if i := l.Index(id); i >= 0 {
		return l[i], true
	}
	return Node{}, false
}

// Clone returns a deep copy.
func (l Layout) Clone() Layout {
	out := make(Layout, len(l))
	for i, n := range l {
		out[i] = n.clone()
	}
	return out
}

// Add appends n. A node with the same id is replaced in place, which
// makes a retried add idempotent.
func (l Layout) Add(n Node) Layout {
	n = n.clone()
	if n.Styles == nil {
		n.Styles = Styles{}
	}
	n.Content = n.Content.ForKind(n.Type)
	out := l.Clone()
	if i := out.Index(n.ID); i >= 0 {
		out[i] = n
		return out
	}
	return append(out, n)
}

// update applies fn to a copy of the node with the given id.
func (l Layout) update(id string, fn func(*Node)) Layout {
	i := l.Index(id)
	if i < 0 {
		return l
	}
	out := l.Clone()
	fn(&out[i])
	return out
}

// UpdateStyle shallow-merges p into the node's styles.
func (l Layout) UpdateStyle(id string, p StylePatch) Layout {
	return l.update(id, func(n *Node) { n.Styles = n.Styles.merge(p) })
}

// UpdateContent replaces the node's content wholesale.
func (l Layout) UpdateContent(id string, c Content) Layout {
	return l.update(id, func(n *Node) { n.Content = c.ForKind(n.Type) })
}

// PatchContent replaces a single content field.
func (l Layout) PatchContent(id string, f Field, v string) Layout {
	return l.update(id, func(n *Node) { n.Content = n.Content.With(f, v) })
}

// UpdateImage replaces the node's image source.
func (l Layout) UpdateImage(id, src string) Layout {
	return l.update(id, func(n *Node) { n.ImageSrc = src })
}

// UpdateLink replaces the node's link target.
func (l Layout) UpdateLink(id, url string) Layout {
	return l.update(id, func(n *Node) { n.LinkURL = url })
}

// Delete removes the node with the given id. Children are left in place.
func (l Layout) Delete(id string) Layout {
	i := l.Index(id)
	if i < 0 {
		return l
	}
	out := l.Clone()
	return slices.Delete(out, i, i+1)
}

// Reset returns an empty layout.
func (l Layout) Reset() Layout { return Layout{} }

// Move shifts the node delta positions in the sequence (negative moves it
// up). The target position is clamped to the sequence bounds.
func (l Layout) Move(id string, delta int) Layout {
	i := l.Index(id)
	if i < 0 || delta == 0 {
		return l
	}
	delta = min(max(delta, -len(l)), len(l))
	j := min(max(i+delta, 0), len(l)-1)
	if j == i {
		return l
	}
	out := l.Clone()
	n := out[i]
	out = slices.Delete(out, i, i+1)
	return slices.Insert(out, j, n)
}

// Children returns the nodes whose ParentID is parentID, in sequence order.
func (l Layout) Children(parentID string) []Node {
	var out []Node
	for _, n := range l {
		if n.ParentID == parentID && parentID != "" {
			out = append(out, n)
		}
	}
	return out
}

// Orphans returns nodes whose ParentID does not name a node in l.
func (l Layout) Orphans() []Node {
	var out []Node
	for _, n := range l {
		if n.ParentID != "" && l.Index(n.ParentID) < 0 {
			out = append(out, n)
		}
	}
	return out
}

// defaultZ is the zIndex assumed for nodes without one.
const defaultZ = 1

// Layers returns the nodes sorted by zIndex, highest first. Ties keep
// sequence order.
func (l Layout) Layers() []Node {
	out := slices.Clone(l)
	slices.SortStableFunc(out, func(a, b Node) int {
		za, zb := a.Styles.Num(ZIndex, defaultZ), b.Styles.Num(ZIndex, defaultZ)
		switch {
		case za > zb:
			return -1
		case za < zb:
			return 1
		}
		return 0
	})
	return out
}

// Restack computes the style patch that moves a node delta layers up
// (positive) or down (negative). The zIndex never drops below zero.
// The patch travels as a normal style update so every client converges.
func (l Layout) Restack(id string, delta int) (StylePatch, bool) {
	n, ok := l.Get(id)
	if !ok {
		return nil, false
	}
	z := max(n.Styles.Num(ZIndex, defaultZ)+float64(delta), 0)
	return StylePatch{}.Set(ZIndex, Number(z)), true
}
