package richtext

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Selection is the cursor, as a unit index plus a length.
type Selection struct {
	Index  int `json:"index"`
	Length int `json:"length"`
}

var (
	ErrUnitNotFound = errors.New("unit not found")
	ErrNotEmbed     = errors.New("unit is not an embed")
)

// Editor is one rich text field. It is not safe for concurrent use; callers
// serialize access per page session.
type Editor struct {
	registry  *Registry
	container *Container
	log       *zap.Logger

	units     []Unit
	nextRef   Ref
	selection *Selection
}

// NewEditor mounts an empty editor inside container.
func NewEditor(registry *Registry, container *Container, log *zap.Logger) *Editor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Editor{registry: registry, container: container, log: log}
}

func (e *Editor) Container() *Container {
	return e.container
}

// Load replaces the document with stored markup. Previous references and
// the selection are invalidated.
func (e *Editor) Load(markup string) {
	units := e.parseUnits(markup)
	for i := range units {
		units[i].Ref = e.newRef()
	}
	e.units = units
	e.selection = nil
}

// HTML is the stored form of the document.
func (e *Editor) HTML() string {
	return e.render(RenderStored)
}

// Render is the document as shown in the editor, with edit affordances.
func (e *Editor) Render() string {
	return e.render(RenderEditing)
}

// Units returns a copy of the document's units.
func (e *Editor) Units() []Unit {
	return append([]Unit(nil), e.units...)
}

// Length is the number of positions in the document.
func (e *Editor) Length() int {
	return len(e.units)
}

// Selection returns the cursor, or false when the editor has no focus.
func (e *Editor) Selection() (Selection, bool) {
	if e.selection == nil {
		return Selection{}, false
	}
	return *e.selection, true
}

// SetSelection focuses the editor. The range is clamped to the document.
func (e *Editor) SetSelection(index, length int) {
	index = clamp(index, 0, len(e.units))
	length = clamp(length, 0, len(e.units)-index)
	e.selection = &Selection{Index: index, Length: length}
}

// Blur drops the selection.
func (e *Editor) Blur() {
	e.selection = nil
}

// InsertUnit inserts an embed of the named type at pos, clamped to the
// document, and returns the new unit's reference.
func (e *Editor) InsertUnit(embedName, value string, pos int) (Ref, error) {
	embed, err := e.registry.Lookup(embedName)
	if err != nil {
		return 0, err
	}
	unit, err := embed.Create(value)
	if err != nil {
		return 0, errors.Wrapf(err, "create %s", embedName)
	}
	unit.Kind = KindEmbed
	unit.Embed = embedName
	unit.Ref = e.newRef()
	e.insert(clamp(pos, 0, len(e.units)), unit)
	return unit.Ref, nil
}

// InsertParagraph inserts a paragraph of inline markup at pos.
func (e *Editor) InsertParagraph(pos int, inline string) Ref {
	unit := Unit{Kind: KindParagraph, HTML: inline, Ref: e.newRef()}
	e.insert(clamp(pos, 0, len(e.units)), unit)
	return unit.Ref
}

// DeleteUnit removes n units starting at pos.
func (e *Editor) DeleteUnit(pos, n int) error {
	if pos < 0 || n < 0 || pos+n > len(e.units) {
		return errors.Errorf("delete [%d,%d) out of range for length %d", pos, pos+n, len(e.units))
	}
	e.units = append(e.units[:pos], e.units[pos+n:]...)
	if e.selection != nil {
		switch {
		case e.selection.Index >= pos+n:
			e.selection.Index -= n
		case e.selection.Index > pos:
			e.selection.Index = pos
		}
		e.selection.Length = clamp(e.selection.Length, 0, len(e.units)-e.selection.Index)
	}
	return nil
}

// Locate returns the current position of the unit with ref.
func (e *Editor) Locate(ref Ref) (int, bool) {
	for i, u := range e.units {
		if u.Ref == ref {
			return i, true
		}
	}
	return 0, false
}

// Unit returns the unit with ref.
func (e *Editor) Unit(ref Ref) (Unit, bool) {
	pos, ok := e.Locate(ref)
	if !ok {
		return Unit{}, false
	}
	return e.units[pos], true
}

// Activate is a click on the edit affordance of the embed with ref. The
// click is consumed here: the selection does not move.
func (e *Editor) Activate(ref Ref) error {
	u, ok := e.Unit(ref)
	if !ok {
		return ErrUnitNotFound
	}
	if u.Kind != KindEmbed {
		return ErrNotEmbed
	}
	embed, err := e.registry.Lookup(u.Embed)
	if err != nil {
		return err
	}
	embed.Activate(NodeRef{Editor: e, Unit: ref}, u)
	return nil
}

func (e *Editor) insert(pos int, unit Unit) {
	e.units = append(e.units, Unit{})
	copy(e.units[pos+1:], e.units[pos:])
	e.units[pos] = unit
	if e.selection != nil && e.selection.Index > pos {
		e.selection.Index++
	}
}

func (e *Editor) newRef() Ref {
	e.nextRef++
	return e.nextRef
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
