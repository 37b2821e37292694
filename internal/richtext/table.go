package richtext

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	// TableEmbedName is the registered name of the table embed.
	TableEmbedName = "html-table"

	tableClass   = "ql-html-table"
	wrapperClass = "table-content-wrapper"
	buttonClass  = "table-edit-btn"
)

var (
	ErrEmptyMarkup = errors.New("table markup is empty")
	ErrNotTable    = errors.New("markup is not a rendered table unit")
)

// EditFunc receives a table's markup and a reference to its unit when the
// user asks to edit it.
type EditFunc func(markup string, node NodeRef)

// TableEmbed renders arbitrary table markup as one atomic unit with an Edit
// button. The markup is the unit's only state.
type TableEmbed struct {
	onEdit EditFunc
}

func NewTableEmbed(onEdit EditFunc) *TableEmbed {
	return &TableEmbed{onEdit: onEdit}
}

func (t *TableEmbed) Name() string {
	return TableEmbedName
}

func (t *TableEmbed) Create(markup string) (Unit, error) {
	if strings.TrimSpace(markup) == "" {
		return Unit{}, ErrEmptyMarkup
	}
	return Unit{Value: markup}, nil
}

func (t *TableEmbed) Value(u Unit) string {
	return u.Value
}

// Render writes the markup verbatim. In editing mode it is wrapped in a
// non-editable region and followed by the Edit button, which the admin
// stylesheet reveals on hover and focus.
func (t *TableEmbed) Render(b *strings.Builder, u Unit, mode RenderMode) {
	if mode == RenderStored {
		b.WriteString(`<div class="` + tableClass + `">` + u.Value + `</div>`)
		return
	}
	b.WriteString(`<div class="` + tableClass + `" data-ref="` + strconv.FormatUint(uint64(u.Ref), 10) + `" contenteditable="false">`)
	b.WriteString(`<div class="` + wrapperClass + `" contenteditable="false">` + u.Value + `</div>`)
	b.WriteString(`<button type="button" class="` + buttonClass + `" contenteditable="false">Edit</button>`)
	b.WriteString(`</div>`)
}

// Recognize accepts the unit's own wrapper in either render mode, and bare
// top-level tables found in content written before the embed existed.
func (t *TableEmbed) Recognize(b Block) (string, bool) {
	switch {
	case b.Tag == "div" && b.HasClass(tableClass):
		for _, inner := range SplitBlocks(b.Inner) {
			if inner.Tag == "div" && inner.HasClass(wrapperClass) {
				return inner.Inner, true
			}
		}
		return b.Inner, true
	case b.Tag == "table":
		return b.Outer, true
	}
	return "", false
}

// Extract recovers the exact markup a rendered unit was created with.
func (t *TableEmbed) Extract(rendered string) (string, error) {
	blocks := SplitBlocks(rendered)
	if len(blocks) != 1 || blocks[0].Tag != "div" || !blocks[0].HasClass(tableClass) {
		return "", ErrNotTable
	}
	value, _ := t.Recognize(blocks[0])
	return value, nil
}

func (t *TableEmbed) Activate(node NodeRef, u Unit) {
	if t.onEdit != nil {
		t.onEdit(u.Value, node)
	}
}
