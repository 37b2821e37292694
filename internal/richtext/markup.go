package richtext

import (
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// Block is one top-level element, or run of loose text, of stored markup.
// Outer and Inner are exact slices of the source, so embeds can recover
// their payload byte for byte.
type Block struct {
	Tag   string
	Attrs []html.Attribute
	Outer string
	Inner string
}

// HasClass reports whether the block's class attribute lists class.
func (b Block) HasClass(class string) bool {
	for _, a := range b.Attrs {
		if a.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(a.Val) {
			if c == class {
				return true
			}
		}
	}
	return false
}

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true, "hr": true, "img": true,
	"input": true, "link": true, "meta": true, "source": true, "track": true, "wbr": true,
}

// SplitBlocks cuts markup into its top-level blocks. Whitespace between
// blocks is dropped. An element left open at the end of input takes the rest
// of the input as its content. End tags that close nothing open are kept as
// content inside a block and as their own block at the top level.
func SplitBlocks(markup string) []Block {
	type open struct {
		attrs []html.Attribute
		start string
		inner strings.Builder
		stack []string
	}

	var (
		blocks []Block
		cur    *open
	)
	z := html.NewTokenizer(strings.NewReader(markup))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		// Raw must be copied before TagName, which lower-cases in place.
		raw := string(z.Raw())

		if cur == nil {
			switch tt {
			case html.TextToken:
				if strings.TrimSpace(raw) != "" {
					blocks = append(blocks, Block{Outer: raw, Inner: raw})
				}
			case html.StartTagToken, html.SelfClosingTagToken:
				tag, attrs := tagOf(z)
				if tt == html.SelfClosingTagToken || voidElements[tag] {
					blocks = append(blocks, Block{Tag: tag, Attrs: attrs, Outer: raw})
					continue
				}
				cur = &open{attrs: attrs, start: raw, stack: []string{tag}}
			case html.EndTagToken:
				tag, _ := tagOf(z)
				blocks = append(blocks, Block{Tag: "/" + tag, Outer: raw})
			case html.CommentToken:
				blocks = append(blocks, Block{Tag: "#comment", Outer: raw})
			}
			continue
		}

		switch tt {
		case html.StartTagToken:
			if tag, _ := tagOf(z); !voidElements[tag] {
				cur.stack = append(cur.stack, tag)
			}
		case html.EndTagToken:
			tag, _ := tagOf(z)
			i := lastIndex(cur.stack, tag)
			if i == 0 {
				inner := cur.inner.String()
				blocks = append(blocks, Block{
					Tag:   cur.stack[0],
					Attrs: cur.attrs,
					Outer: cur.start + inner + raw,
					Inner: inner,
				})
				cur = nil
				continue
			}
			// Elements opened after the match were closed implicitly.
			if i > 0 {
				cur.stack = cur.stack[:i]
			}
		}
		cur.inner.WriteString(raw)
	}
	if cur != nil {
		inner := cur.inner.String()
		blocks = append(blocks, Block{Tag: cur.stack[0], Attrs: cur.attrs, Outer: cur.start + inner, Inner: inner})
	}
	return blocks
}

func lastIndex(stack []string, tag string) int {
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == tag {
			return i
		}
	}
	return -1
}

func tagOf(z *html.Tokenizer) (string, []html.Attribute) {
	name, more := z.TagName()
	tag := string(name)
	var attrs []html.Attribute
	for more {
		var key, val []byte
		key, val, more = z.TagAttr()
		attrs = append(attrs, html.Attribute{Key: string(key), Val: string(val)})
	}
	return tag, attrs
}

func (e *Editor) parseUnits(markup string) []Unit {
	var units []Unit
	for _, b := range SplitBlocks(markup) {
		if name, value, ok := e.registry.recognize(b); ok {
			units = append(units, Unit{Kind: KindEmbed, Embed: name, Value: value})
			continue
		}
		switch b.Tag {
		case "":
			units = append(units, Unit{Kind: KindParagraph, HTML: strings.TrimSpace(b.Outer)})
		case "p":
			units = append(units, Unit{Kind: KindParagraph, HTML: b.Inner})
		case "h1", "h2", "h3", "h4", "h5", "h6":
			units = append(units, Unit{Kind: KindHeading, Level: int(b.Tag[1] - '0'), HTML: b.Inner})
		case "ul", "ol":
			for _, item := range SplitBlocks(b.Inner) {
				if item.Tag == "li" {
					units = append(units, Unit{Kind: KindListItem, Ordered: b.Tag == "ol", HTML: item.Inner})
				} else {
					units = append(units, Unit{Kind: KindRaw, HTML: item.Outer})
				}
			}
		default:
			units = append(units, Unit{Kind: KindRaw, HTML: b.Outer})
		}
	}
	return units
}

func (e *Editor) render(mode RenderMode) string {
	var b strings.Builder
	for i := 0; i < len(e.units); i++ {
		u := e.units[i]
		switch u.Kind {
		case KindParagraph:
			b.WriteString("<p>" + u.HTML + "</p>")
		case KindHeading:
			level := string(rune('0' + u.Level))
			b.WriteString("<h" + level + ">" + u.HTML + "</h" + level + ">")
		case KindListItem:
			tag := "ul"
			if u.Ordered {
				tag = "ol"
			}
			b.WriteString("<" + tag + ">")
			j := i
			for ; j < len(e.units) && e.units[j].Kind == KindListItem && e.units[j].Ordered == u.Ordered; j++ {
				b.WriteString("<li>" + e.units[j].HTML + "</li>")
			}
			b.WriteString("</" + tag + ">")
			i = j - 1
		case KindRaw:
			b.WriteString(u.HTML)
		case KindEmbed:
			embed, err := e.registry.Lookup(u.Embed)
			if err != nil {
				e.log.Warn("dropping unit of unregistered embed type", zap.String("embed", u.Embed))
				continue
			}
			embed.Render(&b, u, mode)
		}
	}
	return b.String()
}
