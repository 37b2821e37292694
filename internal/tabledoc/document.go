// Package tabledoc holds the rectangular table model edited by the table
// builder and its markup form.
package tabledoc

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// DefaultHeaderColor is used for fresh documents and whenever a header color
// cannot be recovered from markup.
const DefaultHeaderColor = "#dc2626"

// PresetColors are the header colors offered by the builder.
var PresetColors = []Preset{
	{Name: "Red", Value: "#dc2626"},
	{Name: "Blue", Value: "#2563eb"},
	{Name: "Green", Value: "#16a34a"},
	{Name: "Gray", Value: "#4b5563"},
}

type Preset struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Document is a simple table: one header band and at least one body row.
// Every row has exactly len(Headers) cells.
type Document struct {
	Headers     []string   `json:"headers"`
	Rows        [][]string `json:"rows"`
	HeaderColor string     `json:"headerColor"`
}

var (
	ErrNoHeaders    = errors.New("table needs at least one header")
	ErrNoRows       = errors.New("table needs at least one row")
	ErrNotRectangle = errors.New("every row must have one cell per header")
)

// New returns the 3x2 document the builder starts from.
func New() *Document {
	return &Document{
		Headers: []string{"Header 1", "Header 2", "Header 3"},
		Rows: [][]string{
			{"Data 1", "Data 2", "Data 3"},
			{"Data 4", "Data 5", "Data 6"},
		},
		HeaderColor: DefaultHeaderColor,
	}
}

// Minimal returns the fallback document: one header and one empty row.
func Minimal() *Document {
	return &Document{
		Headers:     []string{"Header 1"},
		Rows:        [][]string{{""}},
		HeaderColor: DefaultHeaderColor,
	}
}

func (d *Document) AddColumn() {
	d.Headers = append(d.Headers, fmt.Sprintf("Header %d", len(d.Headers)+1))
	for i := range d.Rows {
		d.Rows[i] = append(d.Rows[i], "")
	}
}

// RemoveColumn is a no-op on a single-column document.
func (d *Document) RemoveColumn(index int) {
	if len(d.Headers) <= 1 {
		return
	}
	d.Headers = removeAt(d.Headers, index)
	for i := range d.Rows {
		d.Rows[i] = removeAt(d.Rows[i], index)
	}
}

func (d *Document) AddRow() {
	d.Rows = append(d.Rows, make([]string, len(d.Headers)))
}

// RemoveRow is a no-op on a single-row document.
func (d *Document) RemoveRow(index int) {
	if len(d.Rows) <= 1 {
		return
	}
	d.Rows = append(d.Rows[:index:index], d.Rows[index+1:]...)
}

// cellText rewrites text the way the HTML parser reads it back: CR and CRLF
// become LF and NUL bytes are dropped.
var cellText = strings.NewReplacer("\r\n", "\n", "\r", "\n", "\x00", "")

func (d *Document) UpdateHeader(index int, value string) {
	d.Headers[index] = cellText.Replace(value)
}

func (d *Document) UpdateCell(rowIndex, colIndex int, value string) {
	d.Rows[rowIndex][colIndex] = cellText.Replace(value)
}

func (d *Document) SetHeaderColor(color string) {
	d.HeaderColor = color
}

// Clone returns a deep copy so callers never share row slices.
func (d *Document) Clone() *Document {
	out := &Document{
		Headers:     append([]string(nil), d.Headers...),
		Rows:        make([][]string, len(d.Rows)),
		HeaderColor: d.HeaderColor,
	}
	for i, row := range d.Rows {
		out.Rows[i] = append([]string(nil), row...)
	}
	return out
}

// Validate checks the dimension invariants. Documents built through the
// methods above always pass; it exists for documents decoded from requests.
func (d *Document) Validate() error {
	if len(d.Headers) < 1 {
		return ErrNoHeaders
	}
	if len(d.Rows) < 1 {
		return ErrNoRows
	}
	for i, row := range d.Rows {
		if len(row) != len(d.Headers) {
			return errors.Wrapf(ErrNotRectangle, "row %d has %d cells, want %d", i, len(row), len(d.Headers))
		}
	}
	return nil
}

func removeAt(values []string, index int) []string {
	out := make([]string, 0, len(values)-1)
	out = append(out, values[:index]...)
	return append(out, values[index+1:]...)
}
