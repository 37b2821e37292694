package tablebuilder

import (
	"github.com/pkg/errors"

	"jobboard/api/internal/tabledoc"
)

// OpKind names a builder mutation as it arrives over the wire.
type OpKind string

const (
	OpAddColumn      OpKind = "addColumn"
	OpRemoveColumn   OpKind = "removeColumn"
	OpAddRow         OpKind = "addRow"
	OpRemoveRow      OpKind = "removeRow"
	OpUpdateHeader   OpKind = "updateHeader"
	OpUpdateCell     OpKind = "updateCell"
	OpSetHeaderColor OpKind = "setHeaderColor"
)

var (
	ErrUnknownOp  = errors.New("unknown table operation")
	ErrOutOfRange = errors.New("index out of range")
	ErrBadColor   = errors.New("invalid header color")
)

// Op is one builder mutation. Row and Col are zero-based; Row indexes body
// rows only.
type Op struct {
	Kind  OpKind `json:"op" validate:"required"`
	Row   int    `json:"row"`
	Col   int    `json:"col"`
	Value string `json:"value"`
}

func (op Op) apply(d *tabledoc.Document) error {
	switch op.Kind {
	case OpAddColumn:
		d.AddColumn()
	case OpAddRow:
		d.AddRow()
	case OpRemoveColumn:
		if err := checkIndex("column", op.Col, len(d.Headers)); err != nil {
			return err
		}
		d.RemoveColumn(op.Col)
	case OpRemoveRow:
		if err := checkIndex("row", op.Row, len(d.Rows)); err != nil {
			return err
		}
		d.RemoveRow(op.Row)
	case OpUpdateHeader:
		if err := checkIndex("column", op.Col, len(d.Headers)); err != nil {
			return err
		}
		d.UpdateHeader(op.Col, op.Value)
	case OpUpdateCell:
		if err := checkIndex("row", op.Row, len(d.Rows)); err != nil {
			return err
		}
		if err := checkIndex("column", op.Col, len(d.Headers)); err != nil {
			return err
		}
		d.UpdateCell(op.Row, op.Col, op.Value)
	case OpSetHeaderColor:
		color, ok := tabledoc.NormalizeColor(op.Value)
		if !ok {
			return errors.Wrapf(ErrBadColor, "%q", op.Value)
		}
		d.SetHeaderColor(color)
	default:
		return errors.Wrapf(ErrUnknownOp, "%q", op.Kind)
	}
	return nil
}

func checkIndex(what string, i, n int) error {
	if i < 0 || i >= n {
		return errors.Wrapf(ErrOutOfRange, "%s %d of %d", what, i, n)
	}
	return nil
}
