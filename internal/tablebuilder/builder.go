// Package tablebuilder is the dialog state behind the visual table builder.
package tablebuilder

import (
	"github.com/pkg/errors"

	"jobboard/api/internal/tabledoc"
)

type State int

const (
	Closed State = iota
	OpenForInsert
	OpenForEdit
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case OpenForInsert:
		return "open-for-insert"
	case OpenForEdit:
		return "open-for-edit"
	default:
		return "unknown"
	}
}

var (
	ErrClosed      = errors.New("table builder is closed")
	ErrAlreadyOpen = errors.New("table builder is already open")
)

// ConfirmFunc receives the generated markup when the user confirms.
type ConfirmFunc func(markup string)

// Builder edits one table document at a time. It does not know whether the
// confirmed markup will be inserted or replace an existing table.
type Builder struct {
	state     State
	doc       *tabledoc.Document
	onConfirm ConfirmFunc
}

func New() *Builder {
	return &Builder{}
}

func (b *Builder) State() State {
	return b.state
}

// OpenForInsert starts from the default 3x2 document.
func (b *Builder) OpenForInsert(onConfirm ConfirmFunc) error {
	return b.open(OpenForInsert, tabledoc.New(), onConfirm)
}

// OpenForEdit starts from doc. The builder works on its own copy.
func (b *Builder) OpenForEdit(doc *tabledoc.Document, onConfirm ConfirmFunc) error {
	return b.open(OpenForEdit, doc.Clone(), onConfirm)
}

func (b *Builder) open(state State, doc *tabledoc.Document, onConfirm ConfirmFunc) error {
	if b.state != Closed {
		return ErrAlreadyOpen
	}
	b.state = state
	b.doc = doc
	b.onConfirm = onConfirm
	return nil
}

// Document returns a copy of the document being edited.
func (b *Builder) Document() (*tabledoc.Document, error) {
	if b.state == Closed {
		return nil, ErrClosed
	}
	return b.doc.Clone(), nil
}

// Apply runs a mutation against the open document.
func (b *Builder) Apply(op Op) error {
	if b.state == Closed {
		return ErrClosed
	}
	return op.apply(b.doc)
}

// Preview is the markup Confirm would emit right now.
func (b *Builder) Preview() (string, error) {
	if b.state == Closed {
		return "", ErrClosed
	}
	return tabledoc.Serialize(b.doc), nil
}

// Confirm emits the markup exactly once and closes the builder.
func (b *Builder) Confirm() (string, error) {
	if b.state == Closed {
		return "", ErrClosed
	}
	markup := tabledoc.Serialize(b.doc)
	onConfirm := b.onConfirm
	b.reset()
	if onConfirm != nil {
		onConfirm(markup)
	}
	return markup, nil
}

// Cancel discards the document without calling back.
func (b *Builder) Cancel() {
	b.reset()
}

func (b *Builder) reset() {
	b.state = Closed
	b.doc = nil
	b.onConfirm = nil
}
