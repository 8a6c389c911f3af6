package records

import (
	"fmt"

	"github.com/erx-dienst/erx-core/pkg/codec"
)

// Bundle is the §4.6 "cyclic references" arena: a medical-record bundle
// whose entries (Composition -> MedicationRequest -> Medication ->
// Coverage) reference each other by id string rather than owning
// pointers, resolved against this map at query time. Grounded on the
// teacher's rir.RIRBundle, whose Nodes map[string]Node is addressed by
// Node.ChildrenIDs the same way.
type Bundle struct {
	ID      string
	Type    string
	Order   []string // entry keys in encounter order, for stable re-encoding
	Entries map[string]BundleEntry
}

// BundleEntry is one resource held as raw items, so resolving it to a
// typed record only happens when a caller actually asks for it.
type BundleEntry struct {
	ResourceType string
	FullURL      string
	Items        []codec.Item
}

// Resolve decodes entry id's items with the given Decode* function from
// this package (e.g. DecodeComposition, DecodeMedication).
func (b Bundle) Resolve(id string, decode func(*codec.StreamDecoder) (any, error)) (any, error) {
	entry, ok := b.Entries[id]
	if !ok {
		return nil, fmt.Errorf("records: bundle entry %q not found", id)
	}
	items := make([]codec.Item, 0, len(entry.Items)+2)
	items = append(items, codec.Item{Kind: codec.RootItem, Name: entry.ResourceType})
	items = append(items, entry.Items...)
	items = append(items, codec.Item{Kind: codec.EndElement, Name: entry.ResourceType})
	return decode(codec.NewStreamDecoder(items))
}

func topLevelID(items []codec.Item) string {
	depth := 0
	for _, it := range items {
		switch it.Kind {
		case codec.BeginElement:
			depth++
		case codec.EndElement:
			depth--
		case codec.Field:
			if depth == 0 && it.Name == "id" {
				return it.Value
			}
		}
	}
	return ""
}

// DecodeBundle decodes a Bundle resource, capturing each entry's
// sub-resource verbatim rather than eagerly decoding it.
func DecodeBundle(dec *codec.StreamDecoder) (Bundle, error) {
	b := Bundle{Entries: make(map[string]BundleEntry)}
	if err := dec.Root("Bundle"); err != nil {
		return b, err
	}

	for {
		name, ok := dec.PeekElement()
		if ok {
			if name != "entry" {
				if _, err := dec.Element(); err != nil {
					return b, err
				}
				if err := skipSubtree(dec); err != nil {
					return b, err
				}
				continue
			}
			if _, err := dec.Element(); err != nil {
				return b, err
			}
			entry, err := decodeBundleEntry(dec)
			if err != nil {
				return b, err
			}
			key := entry.FullURL
			if key == "" {
				key = entry.ResourceType + "/" + topLevelID(entry.Items)
			}
			b.Entries[key] = entry
			b.Order = append(b.Order, key)
			continue
		}
		if fname, ok := dec.PeekField(); ok {
			v, err := dec.Value(fname)
			if err != nil {
				return b, err
			}
			switch fname {
			case "id":
				b.ID = v
			case "type":
				b.Type = v
			}
			continue
		}
		break
	}

	if err := dec.End(); err != nil {
		return b, err
	}
	return b, nil
}

func decodeBundleEntry(dec *codec.StreamDecoder) (BundleEntry, error) {
	var entry BundleEntry
	for {
		if name, ok := dec.PeekElement(); ok {
			if name != "resource" {
				if _, err := dec.Element(); err != nil {
					return entry, err
				}
				if err := skipSubtree(dec); err != nil {
					return entry, err
				}
				continue
			}
			if _, err := dec.Element(); err != nil {
				return entry, err
			}
			rname, ok := dec.PeekElement()
			if !ok {
				return entry, fmt.Errorf("records: bundle entry has no resource")
			}
			if _, err := dec.Element(); err != nil {
				return entry, err
			}
			items, err := dec.Subtree()
			if err != nil {
				return entry, err
			}
			entry.ResourceType = rname
			entry.Items = items
			if err := dec.End(); err != nil { // close "resource"
				return entry, err
			}
			continue
		}
		if fname, ok := dec.PeekField(); ok {
			v, err := dec.Value(fname)
			if err != nil {
				return entry, err
			}
			if fname == "fullUrl" {
				entry.FullURL = v
			}
			continue
		}
		break
	}
	if err := dec.End(); err != nil { // close "entry"
		return entry, err
	}
	return entry, nil
}

// EncodeBundle writes b as a Bundle resource, re-serializing each
// entry's raw items verbatim.
func EncodeBundle(enc *codec.StreamEncoder, b Bundle) error {
	if err := enc.Root("Bundle"); err != nil {
		return err
	}
	if err := enc.Field("id", b.ID); err != nil {
		return err
	}
	if err := enc.Field("type", b.Type); err != nil {
		return err
	}

	for _, key := range b.Order {
		entry := b.Entries[key]
		if err := enc.Element("entry"); err != nil {
			return err
		}
		if entry.FullURL != "" {
			if err := enc.Field("fullUrl", entry.FullURL); err != nil {
				return err
			}
		}
		if err := enc.Element("resource"); err != nil {
			return err
		}
		if err := enc.Element(entry.ResourceType); err != nil {
			return err
		}
		if err := enc.Inline(entry.Items); err != nil {
			return err
		}
		if err := enc.End(); err != nil { // close resource type element
			return err
		}
		if err := enc.End(); err != nil { // close "resource"
			return err
		}
		if err := enc.End(); err != nil { // close "entry"
			return err
		}
	}

	return enc.End()
}
