package tabledoc

import (
	"html"
	"regexp"
	"strconv"
	"strings"

	nethtml "golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	tableStyle  = "width: 100%; border-collapse: collapse; margin: 10px 0;"
	headerStyle = "border: 1px solid #ddd; padding: 12px; text-align: left; font-weight: 600;"
	cellStyle   = "border: 1px solid #ddd; padding: 8px;"
)

var (
	backgroundDecl = regexp.MustCompile(`(?i)background-color\s*:\s*([^;]+)`)
	colorValue     = regexp.MustCompile(`^(#([0-9a-f]{3}|[0-9a-f]{4}|[0-9a-f]{6}|[0-9a-f]{8})|[a-z]+|(rgb|rgba|hsl|hsla)\([0-9.,%\s]+\))$`)
)

// NormalizeColor lower-cases and trims a CSS color. It returns false for
// anything that is not a hex, named, rgb() or hsl() color.
func NormalizeColor(color string) (string, bool) {
	normalized := strings.ToLower(strings.TrimSpace(color))
	if !colorValue.MatchString(normalized) {
		return "", false
	}
	return normalized, true
}

// Serialize renders the document as table markup. Cell text is escaped.
func Serialize(d *Document) string {
	color, ok := NormalizeColor(d.HeaderColor)
	if !ok {
		color = DefaultHeaderColor
	}

	var b strings.Builder
	b.WriteString(`<table style="` + tableStyle + `">` + "\n")
	b.WriteString("  <thead>\n")
	b.WriteString(`    <tr style="background-color: ` + color + `; color: white;">` + "\n")
	for _, header := range d.Headers {
		b.WriteString(`      <th style="` + headerStyle + `">` + html.EscapeString(header) + "</th>\n")
	}
	b.WriteString("    </tr>\n")
	b.WriteString("  </thead>\n")
	b.WriteString("  <tbody>\n")
	for _, row := range d.Rows {
		b.WriteString("    <tr>\n")
		for _, cell := range row {
			b.WriteString(`      <td style="` + cellStyle + `">` + html.EscapeString(cell) + "</td>\n")
		}
		b.WriteString("    </tr>\n")
	}
	b.WriteString("  </tbody>\n")
	b.WriteString("</table>")
	return b.String()
}

// Parse recovers a document from table markup. Markup without a table, or
// that the HTML parser rejects, yields Minimal(). Ragged rows are padded or
// cut to the header count so the result is always rectangular. Cell text
// comes back trimmed, with LF line endings and without NUL bytes.
func Parse(markup string) *Document {
	body := &nethtml.Node{Type: nethtml.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := nethtml.ParseFragment(strings.NewReader(markup), body)
	if err != nil {
		return Minimal()
	}
	var table *nethtml.Node
	for _, n := range nodes {
		if table = findFirst(n, atom.Table); table != nil {
			break
		}
	}
	if table == nil {
		return Minimal()
	}

	rows := tableRows(table)
	doc := &Document{HeaderColor: DefaultHeaderColor}

	headerIdx := -1
	for i, tr := range rows {
		if tr.Parent != nil && tr.Parent.DataAtom == atom.Thead {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 && len(rows) > 0 && onlyHeaderCells(rows[0]) {
		headerIdx = 0
	}

	if headerIdx >= 0 {
		header := rows[headerIdx]
		doc.Headers = cellTexts(header)
		if m := backgroundDecl.FindStringSubmatch(attr(header, "style")); m != nil {
			if color, ok := NormalizeColor(m[1]); ok {
				doc.HeaderColor = color
			}
		}
	}

	for i, tr := range rows {
		if i == headerIdx || (tr.Parent != nil && tr.Parent.DataAtom == atom.Thead) {
			continue
		}
		doc.Rows = append(doc.Rows, cellTexts(tr))
	}

	normalize(doc)
	return doc
}

func normalize(d *Document) {
	if len(d.Headers) == 0 {
		width := 1
		for _, row := range d.Rows {
			if len(row) > width {
				width = len(row)
			}
		}
		for len(d.Headers) < width {
			d.Headers = append(d.Headers, "Header "+strconv.Itoa(len(d.Headers)+1))
		}
	}
	if len(d.Rows) == 0 {
		d.Rows = [][]string{make([]string, len(d.Headers))}
	}
	for i, row := range d.Rows {
		switch {
		case len(row) < len(d.Headers):
			d.Rows[i] = append(row, make([]string, len(d.Headers)-len(row))...)
		case len(row) > len(d.Headers):
			d.Rows[i] = row[:len(d.Headers)]
		}
	}
}

// tableRows returns the rows that belong to table itself, skipping rows of
// tables nested inside its cells.
func tableRows(table *nethtml.Node) []*nethtml.Node {
	var rows []*nethtml.Node
	var walk func(n *nethtml.Node)
	walk = func(n *nethtml.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != nethtml.ElementNode {
				continue
			}
			switch c.DataAtom {
			case atom.Tr:
				rows = append(rows, c)
			case atom.Thead, atom.Tbody, atom.Tfoot:
				walk(c)
			}
		}
	}
	walk(table)
	return rows
}

func onlyHeaderCells(tr *nethtml.Node) bool {
	seen := false
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != nethtml.ElementNode {
			continue
		}
		if c.DataAtom == atom.Td {
			return false
		}
		if c.DataAtom == atom.Th {
			seen = true
		}
	}
	return seen
}

func cellTexts(tr *nethtml.Node) []string {
	var cells []string
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == nethtml.ElementNode && (c.DataAtom == atom.Th || c.DataAtom == atom.Td) {
			cells = append(cells, strings.TrimSpace(textContent(c)))
		}
	}
	return cells
}

func textContent(n *nethtml.Node) string {
	if n.Type == nethtml.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(textContent(c))
	}
	return b.String()
}

func findFirst(n *nethtml.Node, a atom.Atom) *nethtml.Node {
	if n.Type == nethtml.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, a); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *nethtml.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
