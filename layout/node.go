package layout

import (
	"encoding/json"
	"fmt"
)

// Node is one component in a layout.
type Node struct {
	ID       string  `json:"id"`
	Type     Kind    `json:"type"`
	ParentID string  `json:"parentId,omitempty"`
	Content  Content `json:"content,omitzero"`
	ImageSrc string  `json:"imageSrc,omitempty"`
	LinkURL  string  `json:"linkUrl,omitempty"`
	Styles   Styles  `json:"styles"`
}

// DefaultStyles are applied to nodes dropped from the palette.
func DefaultStyles() Styles {
	return Styles{
		Padding:         String("20px"),
		MarginTop:       String("10px"),
		BackgroundColor: String("#ffffff"),
	}
}

// NewNode builds a palette node of kind k with default styles and
// placeholder content.
func NewNode(id string, k Kind) Node {
	return Node{
		ID:      id,
		Type:    k,
		Content: Plain("New " + string(k)),
		Styles:  DefaultStyles(),
	}
}

// Positioned reports whether the node is free-positioned inside a parent
// section, in which case zIndex rather than sequence order decides paint
// order.
func (n Node) Positioned() bool { return n.ParentID != "" }

func (n Node) clone() Node {
	n.Styles = n.Styles.Clone()
	return n
}

func (n *Node) UnmarshalJSON(data []byte) error {
	type plain Node
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("layout: node: %w", err)
	}
	if p.Styles == nil {
		p.Styles = Styles{}
	}
	p.Content = p.Content.ForKind(p.Type)
	*n = Node(p)
	return nil
}
