package layout

// Kind is the component variant of a node. It decides which style and
// content fields are meaningful. Unknown kinds (decorative template
// variants) are kept verbatim.
type Kind string

const (
	KindText    Kind = "Text"
	KindButton  Kind = "Button"
	KindImage   Kind = "Image"
	KindSection Kind = "Section"
	KindNavbar  Kind = "Navbar"
	KindFooter  Kind = "Footer"
	KindCard    Kind = "Card"
)

// Kinds lists the recognized kinds in palette order.
var Kinds = []Kind{KindText, KindButton, KindImage, KindSection, KindNavbar, KindFooter, KindCard}

// Known reports whether k is one of the recognized kinds.
func (k Kind) Known() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Composite reports whether content for this kind carries several
// sub-fields (title, description, call to action).
func (k Kind) Composite() bool {
	switch k {
	case KindCard, KindNavbar, KindFooter, KindSection:
		return true
	}
	return false
}

// Container reports whether nodes of this kind can be referenced as a
// parent by free-positioned children.
func (k Kind) Container() bool { return k == KindSection }

// Root reports whether nodes of this kind live at the top level of the
// stacked document flow.
func (k Kind) Root() bool {
	switch k {
	case KindSection, KindNavbar, KindFooter:
		return true
	}
	return false
}
