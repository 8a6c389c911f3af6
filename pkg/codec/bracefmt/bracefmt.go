// Package bracefmt implements the brace-based wire format (spec §4.5):
// JSON objects and arrays, with a root discriminator field `resourceType`
// and paired `_k`/`k` members merging into a Field's extension list.
package bracefmt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/erx-dienst/erx-core/pkg/codec"
)

// Parse decodes brace-based bytes into the neutral event stream.
func Parse(data []byte) ([]codec.Item, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("bracefmt: %w", err)
	}
	delim, ok := tok.(json.Delim)
	if !ok || delim != '{' {
		return nil, fmt.Errorf("bracefmt: expected a root object")
	}

	members, err := decodeObjectMembers(dec)
	if err != nil {
		return nil, err
	}

	root, rest := extractMember(members, "resourceType")
	if root == nil {
		return nil, fmt.Errorf("bracefmt: root object missing resourceType discriminator")
	}
	rootName, _ := root.value.(string)

	items := []codec.Item{{Kind: codec.RootItem, Name: rootName}}
	items = append(items, membersToItems(rest)...)
	items = append(items, codec.Item{Kind: codec.EndElement})
	return items, nil
}

type member struct {
	name  string
	value any // string, json.Number, bool, nil, []any, map[string]any
}

// decodeObjectMembers reads name/value pairs until the object's closing
// '}', using json.Decoder's token stream so the reader stays within
// encoding/json (per DESIGN.md — no third-party JSON library is wired for
// this concern since the neutral event model, not the wire bytes, is the
// spec's cross-cutting abstraction).
func decodeObjectMembers(dec *json.Decoder) ([]member, error) {
	var members []member
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("bracefmt: %w", err)
		}
		key, _ := keyTok.(string)

		val, err := decodeValue(dec)
		if err != nil {
			return nil, err
		}
		members = append(members, member{name: key, value: val})
	}
	if _, err := dec.Token(); err != nil { // closing '}'
		return nil, fmt.Errorf("bracefmt: %w", err)
	}
	return members, nil
}

func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("bracefmt: %w", err)
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			members, err := decodeObjectMembers(dec)
			if err != nil {
				return nil, err
			}
			return members, nil
		case '[':
			var arr []any
			for dec.More() {
				v, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				arr = append(arr, v)
			}
			if _, err := dec.Token(); err != nil { // closing ']'
				return nil, fmt.Errorf("bracefmt: %w", err)
			}
			return arr, nil
		}
		return nil, fmt.Errorf("bracefmt: unexpected delimiter %v", t)
	default:
		return t, nil
	}
}

func extractMember(members []member, name string) (*member, []member) {
	for i, m := range members {
		if m.name == name {
			found := m
			rest := make([]member, 0, len(members)-1)
			rest = append(rest, members[:i]...)
			rest = append(rest, members[i+1:]...)
			return &found, rest
		}
	}
	return nil, members
}

// membersToItems converts a decoded member list into Field/BeginElement
// items, merging any "_k" extension-carrier member into its "k" sibling
// (§4.5: "Paired _k members merge into the k field's extension list").
func membersToItems(members []member) []codec.Item {
	extensions := make(map[string][]member)
	var ordered []member
	for _, m := range members {
		if len(m.name) > 1 && m.name[0] == '_' {
			extensions[m.name[1:]] = asMembers(m.value)
			continue
		}
		ordered = append(ordered, m)
	}

	var items []codec.Item
	for _, m := range ordered {
		switch v := m.value.(type) {
		case []member: // nested object -> element
			items = append(items, codec.Item{Kind: codec.BeginElement, Name: m.name})
			items = append(items, membersToItems(v)...)
			items = append(items, codec.Item{Kind: codec.EndElement})
		case []any: // array -> repeated elements sharing the member name
			for _, elem := range v {
				if nested, ok := elem.([]member); ok {
					items = append(items, codec.Item{Kind: codec.BeginElement, Name: m.name})
					items = append(items, membersToItems(nested)...)
					items = append(items, codec.Item{Kind: codec.EndElement})
				} else {
					items = append(items, codec.Item{Kind: codec.Field, Name: m.name, Value: scalarString(elem)})
				}
			}
		default:
			field := codec.Item{Kind: codec.Field, Name: m.name, Value: scalarString(v)}
			if ext, ok := extensions[m.name]; ok {
				field.Extension = membersToItems(ext)
			}
			items = append(items, field)
		}
	}
	return items
}

func asMembers(v any) []member {
	if m, ok := v.([]member); ok {
		return m
	}
	return nil
}

func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// Serialize encodes the neutral event stream back to brace-based bytes.
func Serialize(items []codec.Item) ([]byte, error) {
	if len(items) == 0 || items[0].Kind != codec.RootItem {
		return nil, fmt.Errorf("bracefmt: stream must begin with Root")
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	buf.WriteString(`"resourceType":`)
	writeJSONString(&buf, items[0].Name)

	body := items[1 : len(items)-1] // drop Root and its matching EndElement
	if err := serializeMembers(&buf, body, true); err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// serializeMembers writes a flat item run (one element's children) as
// object members, consuming nested BeginElement/EndElement runs
// recursively. leadingComma controls whether the first member needs a
// preceding comma (the root always does, for resourceType).
func serializeMembers(buf *bytes.Buffer, items []codec.Item, leadingComma bool) error {
	i := 0
	for i < len(items) {
		it := items[i]
		switch it.Kind {
		case codec.Field:
			if leadingComma {
				buf.WriteByte(',')
			}
			leadingComma = true
			writeJSONString(buf, it.Name)
			buf.WriteByte(':')
			writeJSONString(buf, it.Value)
			if len(it.Extension) > 0 {
				buf.WriteByte(',')
				writeJSONString(buf, "_"+it.Name)
				buf.WriteByte(':')
				buf.WriteByte('{')
				if err := serializeMembers(buf, it.Extension, false); err != nil {
					return err
				}
				buf.WriteByte('}')
			}
			i++
		case codec.BeginElement:
			end := matchingEnd(items, i)
			if end < 0 {
				return fmt.Errorf("bracefmt: unbalanced element %q", it.Name)
			}
			if leadingComma {
				buf.WriteByte(',')
			}
			leadingComma = true
			writeJSONString(buf, it.Name)
			buf.WriteByte(':')
			buf.WriteByte('{')
			if err := serializeMembers(buf, items[i+1:end], false); err != nil {
				return err
			}
			buf.WriteByte('}')
			i = end + 1
		default:
			return fmt.Errorf("bracefmt: unexpected item %s", it.Kind)
		}
	}
	return nil
}

func matchingEnd(items []codec.Item, from int) int {
	depth := 0
	for i := from; i < len(items); i++ {
		switch items[i].Kind {
		case codec.BeginElement:
			depth++
		case codec.EndElement:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func writeJSONString(buf *bytes.Buffer, s string) {
	b, _ := json.Marshal(s)
	buf.Write(b)
}
