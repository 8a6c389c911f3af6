package bracefmt_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/erx-dienst/erx-core/pkg/codec"
	"github.com/erx-dienst/erx-core/pkg/codec/bracefmt"
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

	data, err := bracefmt.Serialize(enc.Items())
	require.NoError(t, err)
	require.Contains(t, string(data), `"resourceType":"Task"`)

	items, err := bracefmt.Parse(data)
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

func TestParseRejectsRootWithoutResourceType(t *testing.T) {
	_, err := bracefmt.Parse([]byte(`{"id":"T1"}`))
	require.Error(t, err)
}

func TestParseRejectsNonObjectRoot(t *testing.T) {
	_, err := bracefmt.Parse([]byte(`[1,2,3]`))
	require.Error(t, err)
}

func TestSerializeMergesExtensionIntoUnderscoreField(t *testing.T) {
	enc := codec.NewStreamEncoder()
	require.NoError(t, enc.Root("Task"))
	require.NoError(t, enc.Field("status", "ready"))
	require.NoError(t, enc.AttachExtension([]codec.Item{{Kind: codec.Field, Name: "note", Value: "activated"}}))
	require.NoError(t, enc.End())

	data, err := bracefmt.Serialize(enc.Items())
	require.NoError(t, err)
	require.Contains(t, string(data), `"_status":{"note":"activated"}`)

	items, err := bracefmt.Parse(data)
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

func TestSerializeRepeatedArrayElements(t *testing.T) {
	enc := codec.NewStreamEncoder()
	require.NoError(t, enc.Root("Bundle"))
	require.NoError(t, enc.Array("entry"))
	require.NoError(t, enc.Element("entry"))
	require.NoError(t, enc.Field("fullUrl", "Medication/Med1"))
	require.NoError(t, enc.End())
	require.NoError(t, enc.Element("entry"))
	require.NoError(t, enc.Field("fullUrl", "Medication/Med2"))
	require.NoError(t, enc.End())
	require.NoError(t, enc.End())
	require.NoError(t, enc.End())

	data, err := bracefmt.Serialize(enc.Items())
	require.NoError(t, err)

	items, err := bracefmt.Parse(data)
	require.NoError(t, err)

	dec := codec.NewStreamDecoder(items)
	require.NoError(t, dec.Root("Bundle"))

	var urls []string
	for {
		name, ok := dec.PeekElement()
		if !ok {
			break
		}
		require.Equal(t, "entry", name)
		_, err := dec.Element()
		require.NoError(t, err)
		url, err := dec.Value("fullUrl")
		require.NoError(t, err)
		urls = append(urls, url)
		require.NoError(t, dec.End())
	}
	require.Equal(t, []string{"Medication/Med1", "Medication/Med2"}, urls)
	require.NoError(t, dec.End())
}

func TestSerializeRejectsStreamNotStartingWithRoot(t *testing.T) {
	_, err := bracefmt.Serialize([]codec.Item{{Kind: codec.Field, Name: "id", Value: "T1"}})
	require.Error(t, err)
}

func TestSerializeRejectsUnbalancedElement(t *testing.T) {
	items := []codec.Item{
		{Kind: codec.RootItem, Name: "Task"},
		{Kind: codec.BeginElement, Name: "meta"},
		{Kind: codec.Field, Name: "id", Value: "T1"},
		{Kind: codec.EndElement},
	}
	_, err := bracefmt.Serialize(items)
	require.Error(t, err)
}
