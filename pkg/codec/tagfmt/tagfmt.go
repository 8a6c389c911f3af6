// Package tagfmt implements the tag-based wire format (spec §4.5): a tree
// of named start/end tags, with attribute-carrying self-closing tags
// decoding to Field items and nested "extension" elements carrying a
// scalar's extension list.
package tagfmt

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/erx-dienst/erx-core/pkg/codec"
)

// Parse decodes tag-based bytes into the neutral event stream.
func Parse(data []byte) ([]codec.Item, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var items []codec.Item
	first := true
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			name := t.Name.Local
			selfValue, hasValue := attrValue(t.Attr, "value")
			isExtension := name == "extension"

			if first {
				items = append(items, codec.Item{Kind: codec.RootItem, Name: name})
				first = false
				continue
			}

			if isExtension {
				// Merge the following sibling items into the previous
				// Field's extension list until the matching </extension>.
				nested, err := parseElementBody(dec)
				if err != nil {
					return nil, err
				}
				attachExtension(items, nested)
				continue
			}

			if hasValue {
				// encoding/xml still emits a matching EndElement for a
				// self-closing "<name value="…"/>" tag; normalizeSelfClosing
				// drops it below.
				items = append(items, codec.Item{Kind: codec.Field, Name: name, Value: selfValue})
			} else {
				items = append(items, codec.Item{Kind: codec.BeginElement, Name: name})
			}
		case xml.EndElement:
			if t.Name.Local == "extension" {
				continue
			}
			items = append(items, codec.Item{Kind: codec.EndElement})
		case xml.CharData:
			// Whitespace-only text between tags carries no semantic
			// content in this format (§4.5 "Canonical whitespace is
			// ignored").
			continue
		}
	}
	return normalizeSelfClosing(items), nil
}

// attrValue looks up an attribute by local name.
func attrValue(attrs []xml.Attr, name string) (string, bool) {
	for _, a := range attrs {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

// normalizeSelfClosing removes the EndElement immediately following a
// Field item, which encoding/xml always emits even for a self-closing
// "<name value=.../>" tag — the tag format has no concept of a Field
// owning its own EndElement.
func normalizeSelfClosing(items []codec.Item) []codec.Item {
	out := make([]codec.Item, 0, len(items))
	for i := 0; i < len(items); i++ {
		out = append(out, items[i])
		if items[i].Kind == codec.Field && i+1 < len(items) && items[i+1].Kind == codec.EndElement {
			i++ // drop the synthetic end element
		}
	}
	return out
}

// parseElementBody consumes tokens up to (and including) the next
// EndElement at depth 0, returning any Field/BeginElement items found —
// used to read an <extension>...</extension> element's children.
func parseElementBody(dec *xml.Decoder) ([]codec.Item, error) {
	var items []codec.Item
	// open holds one entry per start tag not yet closed: true for a
	// value-carrying tag (a Field, whose end tag adds no item).
	var open []bool
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("tagfmt: unterminated extension: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if v, ok := attrValue(t.Attr, "value"); ok {
				items = append(items, codec.Item{Kind: codec.Field, Name: t.Name.Local, Value: v})
				open = append(open, true)
			} else {
				items = append(items, codec.Item{Kind: codec.BeginElement, Name: t.Name.Local})
				open = append(open, false)
			}
		case xml.EndElement:
			if len(open) == 0 {
				return items, nil
			}
			isField := open[len(open)-1]
			open = open[:len(open)-1]
			if !isField {
				items = append(items, codec.Item{Kind: codec.EndElement})
			}
		}
	}
}

// attachExtension sets the Extension field of the most recent Field item.
func attachExtension(items []codec.Item, ext []codec.Item) {
	for i := len(items) - 1; i >= 0; i-- {
		if items[i].Kind == codec.Field {
			items[i].Extension = ext
			return
		}
	}
}

// Serialize encodes the neutral event stream back to tag-based bytes. A
// name stack tracks open elements so each EndElement writes the correct
// closing tag.
func Serialize(items []codec.Item) ([]byte, error) {
	var buf bytes.Buffer
	var names []string
	for _, it := range items {
		switch it.Kind {
		case codec.RootItem:
			fmt.Fprintf(&buf, "<%s>", xmlEscape(it.Name))
			names = append(names, it.Name)
		case codec.BeginElement:
			fmt.Fprintf(&buf, "<%s>", xmlEscape(it.Name))
			names = append(names, it.Name)
		case codec.EndElement:
			if len(names) == 0 {
				return nil, fmt.Errorf("tagfmt: unbalanced end element")
			}
			fmt.Fprintf(&buf, "</%s>", xmlEscape(names[len(names)-1]))
			names = names[:len(names)-1]
		case codec.Field:
			fmt.Fprintf(&buf, "<%s value=%s/>", xmlEscape(it.Name), quoteAttr(it.Value))
			if len(it.Extension) > 0 {
				buf.WriteString("<extension>")
				inner, err := Serialize(it.Extension)
				if err != nil {
					return nil, err
				}
				buf.Write(inner)
				buf.WriteString("</extension>")
			}
		}
	}
	if len(names) != 0 {
		return nil, fmt.Errorf("tagfmt: %d unclosed element(s)", len(names))
	}
	return buf.Bytes(), nil
}

func quoteAttr(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	if err := xml.EscapeText(&b, []byte(s)); err != nil {
		b.WriteString(s)
	}
	b.WriteByte('"')
	return b.String()
}

func xmlEscape(s string) string {
	var b strings.Builder
	if err := xml.EscapeText(&b, []byte(s)); err != nil {
		return s
	}
	return b.String()
}
