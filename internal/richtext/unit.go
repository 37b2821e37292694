// Package richtext is the in-process rich text editor behind each job content
// field. A document is a flat sequence of units; embeds such as tables are
// atomic units that occupy exactly one position.
package richtext

// Kind tags the variant held by a Unit.
type Kind int

const (
	KindParagraph Kind = iota
	KindHeading
	KindListItem
	KindRaw
	KindEmbed
)

func (k Kind) String() string {
	switch k {
	case KindParagraph:
		return "paragraph"
	case KindHeading:
		return "heading"
	case KindListItem:
		return "listItem"
	case KindRaw:
		return "raw"
	case KindEmbed:
		return "embed"
	default:
		return "unknown"
	}
}

// Ref is an opaque handle for a unit inside one editor. It follows the unit
// when surrounding content moves and is never reused within an editor.
type Ref uint64

// Unit is one block of the document.
//
// HTML holds inline markup for paragraphs, headings and list items, and the
// full outer markup for raw blocks. Embeds keep their payload in Value.
type Unit struct {
	Kind    Kind
	Ref     Ref
	HTML    string
	Level   int
	Ordered bool
	Embed   string
	Value   string
}

// NodeRef is enough to find an embedded unit again for replacement.
type NodeRef struct {
	Editor *Editor
	Unit   Ref
}

// Locate returns the unit's current position, or false when the editor is
// gone or the unit was deleted.
func (n NodeRef) Locate() (int, bool) {
	if n.Editor == nil {
		return 0, false
	}
	return n.Editor.Locate(n.Unit)
}
