package tagfmt_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/erx-dienst/erx-core/pkg/codec"
	"github.com/erx-dienst/erx-core/pkg/codec/tagfmt"
)

func TestSerializeParseRoundTrips(t *testing.T) {
	enc := codec.NewStreamEncoder()
	require.NoError(t, enc.Root("Task"))
	require.NoError(t, enc.Element("meta"))
	require.NoError(t, enc.Field("profile", "https://gematik.de/fhir/erp/StructureDefinition/GEM_ERP_PR_Task"))
	require.NoError(t, enc.End())
	require.NoError(t, enc.Field("id", "T1"))
	require.NoError(t, enc.Field("status", "ready"))
	require.NoError(t, enc.End())

	data, err := tagfmt.Serialize(enc.Items())
	require.NoError(t, err)
	require.Contains(t, string(data), `<Task><meta><profile value=`)

	items, err := tagfmt.Parse(data)
	require.NoError(t, err)

	dec := codec.NewStreamDecoder(items)
	require.NoError(t, dec.Root("Task"))

	name, ok := dec.PeekElement()
	require.True(t, ok)
	require.Equal(t, "meta", name)
	_, err = dec.Element()
	require.NoError(t, err)
	profile, err := dec.Value("profile")
	require.NoError(t, err)
	require.Equal(t, "https://gematik.de/fhir/erp/StructureDefinition/GEM_ERP_PR_Task", profile)
	require.NoError(t, dec.End())

	id, err := dec.Value("id")
	require.NoError(t, err)
	require.Equal(t, "T1", id)

	status, err := dec.Value("status")
	require.NoError(t, err)
	require.Equal(t, "ready", status)

	require.NoError(t, dec.End())
}

func TestSerializeEscapesAttributeAndElementText(t *testing.T) {
	enc := codec.NewStreamEncoder()
	require.NoError(t, enc.Root("Task"))
	require.NoError(t, enc.Field("note", `<script>alert("x")</script> & "quotes"`))
	require.NoError(t, enc.End())

	data, err := tagfmt.Serialize(enc.Items())
	require.NoError(t, err)
	require.NotContains(t, string(data), `<script>`)

	items, err := tagfmt.Parse(data)
	require.NoError(t, err)
	dec := codec.NewStreamDecoder(items)
	require.NoError(t, dec.Root("Task"))
	note, err := dec.Value("note")
	require.NoError(t, err)
	require.Equal(t, `<script>alert("x")</script> & "quotes"`, note)
	require.NoError(t, dec.End())
}

func TestSerializeParseFieldExtension(t *testing.T) {
	enc := codec.NewStreamEncoder()
	require.NoError(t, enc.Root("Task"))
	require.NoError(t, enc.Field("status", "ready"))
	require.NoError(t, enc.AttachExtension([]codec.Item{{Kind: codec.Field, Name: "note", Value: "activated"}}))
	require.NoError(t, enc.End())

	data, err := tagfmt.Serialize(enc.Items())
	require.NoError(t, err)
	require.Contains(t, string(data), `<extension>`)

	items, err := tagfmt.Parse(data)
	require.NoError(t, err)

	dec := codec.NewStreamDecoder(items)
	require.NoError(t, dec.Root("Task"))
	status, err := dec.ValueExtended()
	require.NoError(t, err)
	require.Equal(t, "ready", status)
	require.True(t, dec.HasPendingExtension())
	require.NoError(t, dec.BeginSubstream())
	note, err := dec.Value("note")
	require.NoError(t, err)
	require.Equal(t, "activated", note)
	require.NoError(t, dec.EndSubstream())
	require.NoError(t, dec.End())
}

func TestParseIgnoresInsignificantWhitespace(t *testing.T) {
	items, err := tagfmt.Parse([]byte("<Task>\n  <id value=\"T1\"/>\n</Task>"))
	require.NoError(t, err)

	dec := codec.NewStreamDecoder(items)
	require.NoError(t, dec.Root("Task"))
	id, err := dec.Value("id")
	require.NoError(t, err)
	require.Equal(t, "T1", id)
	require.NoError(t, dec.End())
}

func TestSerializeRejectsUnbalancedEndElement(t *testing.T) {
	_, err := tagfmt.Serialize([]codec.Item{
		{Kind: codec.RootItem, Name: "Task"},
		{Kind: codec.EndElement},
		{Kind: codec.EndElement},
	})
	require.Error(t, err)
}

func TestSerializeRejectsUnclosedElement(t *testing.T) {
	_, err := tagfmt.Serialize([]codec.Item{
		{Kind: codec.RootItem, Name: "Task"},
		{Kind: codec.BeginElement, Name: "meta"},
	})
	require.Error(t, err)
}
