//go:build property
// +build property

package codec_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/erx-dienst/erx-core/pkg/codec"
	"github.com/erx-dienst/erx-core/pkg/codec/bracefmt"
	"github.com/erx-dienst/erx-core/pkg/codec/tagfmt"
)

// fieldItems builds a Root("Resource") ... End() item stream from a set of
// field names/values, avoiding the empty-string and duplicate-name edges
// both wire formats treat specially.
func fieldItems(names, values []string) []codec.Item {
	items := []codec.Item{{Kind: codec.RootItem, Name: "Resource"}}
	seen := map[string]bool{}
	n := len(names)
	if len(values) < n {
		n = len(values)
	}
	for i := 0; i < n; i++ {
		name := names[i]
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		items = append(items, codec.Item{Kind: codec.Field, Name: name, Value: values[i]})
	}
	items = append(items, codec.Item{Kind: codec.EndElement, Name: "Resource"})
	return items
}

// TestTagFormatRoundTrip verifies Parse(Serialize(items)) reproduces the
// same field set the tag format was given (spec §4.5 cross-format
// equivalence, tag side).
func TestTagFormatRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("tagfmt decode(encode(items)) preserves fields", prop.ForAll(
		func(names, values []string) bool {
			want := fieldItems(names, values)

			encoded, err := tagfmt.Serialize(want)
			if err != nil {
				return false
			}
			got, err := tagfmt.Parse(encoded)
			if err != nil {
				return false
			}
			return sameFields(want, got)
		},
		gen.SliceOfN(5, gen.AlphaString()),
		gen.SliceOfN(5, gen.AlphaString()),
	))

	properties.TestingRun(t)
}

// TestBraceFormatRoundTrip is TestTagFormatRoundTrip's brace-format twin.
func TestBraceFormatRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("bracefmt decode(encode(items)) preserves fields", prop.ForAll(
		func(names, values []string) bool {
			want := fieldItems(names, values)

			encoded, err := bracefmt.Serialize(want)
			if err != nil {
				return false
			}
			got, err := bracefmt.Parse(encoded)
			if err != nil {
				return false
			}
			return sameFields(want, got)
		},
		gen.SliceOfN(5, gen.AlphaString()),
		gen.SliceOfN(5, gen.AlphaString()),
	))

	properties.TestingRun(t)
}

// TestCrossFormatEquivalence checks that encoding the same item stream to
// both wire formats and decoding each back yields the same field set,
// i.e. a record adapter cannot tell which format it was handed (spec
// §4.5 "the two wire formats are interchangeable at the record-adapter
// boundary").
func TestCrossFormatEquivalence(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("tagfmt and bracefmt agree on decoded fields", prop.ForAll(
		func(names, values []string) bool {
			items := fieldItems(names, values)

			tagBytes, err := tagfmt.Serialize(items)
			if err != nil {
				return false
			}
			braceBytes, err := bracefmt.Serialize(items)
			if err != nil {
				return false
			}

			fromTag, err := tagfmt.Parse(tagBytes)
			if err != nil {
				return false
			}
			fromBrace, err := bracefmt.Parse(braceBytes)
			if err != nil {
				return false
			}
			return sameFields(fromTag, fromBrace)
		},
		gen.SliceOfN(5, gen.AlphaString()),
		gen.SliceOfN(5, gen.AlphaString()),
	))

	properties.TestingRun(t)
}

func sameFields(a, b []codec.Item) bool {
	af := fieldsOf(a)
	bf := fieldsOf(b)
	if len(af) != len(bf) {
		return false
	}
	for k, v := range af {
		if bf[k] != v {
			return false
		}
	}
	return true
}

func fieldsOf(items []codec.Item) map[string]string {
	out := make(map[string]string)
	for _, it := range items {
		if it.Kind == codec.Field {
			out[it.Name] = it.Value
		}
	}
	return out
}
