package records_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/erx-dienst/erx-core/pkg/codec"
	"github.com/erx-dienst/erx-core/pkg/erx/audit"
	"github.com/erx-dienst/erx-core/pkg/erx/comm"
	"github.com/erx-dienst/erx-core/pkg/erx/dispense"
	"github.com/erx-dienst/erx-core/pkg/erx/ids"
	"github.com/erx-dienst/erx-core/pkg/erx/task"
	"github.com/erx-dienst/erx-core/pkg/records"
)

func TestTaskStatusRoundTrips(t *testing.T) {
	snap := task.Snapshot{
		ID:             "T1",
		PrescriptionID: ids.PrescriptionID("160.100.000.000.001.61"),
		Status:         task.StatusInProgress,
		AuthoredOn:     time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC),
		LastModified:   time.Date(2026, 1, 1, 9, 5, 0, 0, time.UTC),
	}

	enc := codec.NewStreamEncoder()
	require.NoError(t, records.EncodeTask(enc, snap))

	got, err := records.DecodeTask(codec.NewStreamDecoder(enc.Items()))
	require.NoError(t, err)
	require.Equal(t, snap.Status, got.Status)
}

func TestCommunicationRoundTrips(t *testing.T) {
	msg := comm.Message{
		ID:        "C1",
		BasedOn:   "T1",
		Sender:    "Pharmacy/1",
		Recipient: "Patient/1",
		Content:   "ready for pickup",
	}

	enc := codec.NewStreamEncoder()
	require.NoError(t, records.EncodeCommunication(enc, msg, "https://gematik.de/fhir/erp/StructureDefinition/GEM_ERP_PR_Communication_DispReq"))

	got, err := records.DecodeCommunication(codec.NewStreamDecoder(enc.Items()))
	require.NoError(t, err)
	require.Equal(t, msg.Sender, got.Sender)
	require.Equal(t, msg.Recipient, got.Recipient)
	require.Equal(t, msg.Content, got.Content)
	require.Equal(t, "Task/"+msg.BasedOn, got.BasedOn, "the reference carries a resource-type prefix the in-memory id does not")
}

func TestMedicationDispenseRoundTrips(t *testing.T) {
	entry := dispense.Entry{
		ID:             "MD1",
		PrescriptionID: ids.PrescriptionID("160.100.000.000.001.61"),
		Subject:        ids.KVNR("X110406067"),
		Performer:      ids.TelematikID("3-SMC-B-Testkarte-883110000095957"),
		SupportingTask: "T1",
		RecordedAt:     time.Date(2026, 1, 1, 9, 10, 0, 0, time.UTC),
	}

	enc := codec.NewStreamEncoder()
	require.NoError(t, records.EncodeMedicationDispense(enc, entry))

	got, err := records.DecodeMedicationDispense(codec.NewStreamDecoder(enc.Items()))
	require.NoError(t, err)
	require.Equal(t, entry.PrescriptionID, got.PrescriptionID)
	require.Equal(t, entry.Subject, got.Subject)
	require.Equal(t, entry.Performer, got.Performer)
	require.Equal(t, "Task/"+entry.SupportingTask, got.SupportingTask)
}

func TestAuditEventRoundTrips(t *testing.T) {
	entry := audit.Entry{
		EntryID:   "A1",
		Timestamp: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC),
		Event: audit.Event{
			Action:      audit.ActionCreate,
			SubType:     audit.SubTypeCreate,
			Agent:       audit.Agent{ActorID: "Practitioner/1", Name: "Dr. House"},
			What:        "Task/T1",
			Description: "created",
			Outcome:     audit.OutcomeOK,
		},
	}

	enc := codec.NewStreamEncoder()
	require.NoError(t, records.EncodeAuditEvent(enc, entry))

	got, err := records.DecodeAuditEvent(codec.NewStreamDecoder(enc.Items()))
	require.NoError(t, err)
	require.Equal(t, entry.Event.Agent, got.Agent)
	require.Equal(t, entry.Event.What, got.What)
}

func TestCompositionRoundTrips(t *testing.T) {
	c := records.Composition{
		ID:          "Comp1",
		Beneficiary: "Pharmacy/1",
		Author:      "Device/e-rezept-fd",
		EventStart:  "2026-01-01T09:00:00Z",
		EventEnd:    "2026-01-01T09:00:00Z",
		SectionRefs: []string{"MedicationRequest/MR1"},
	}

	enc := codec.NewStreamEncoder()
	require.NoError(t, records.EncodeComposition(enc, c))

	got, err := records.DecodeComposition(codec.NewStreamDecoder(enc.Items()))
	require.NoError(t, err)
	require.Equal(t, c.Author, got.Author)
	require.Equal(t, c.EventStart, got.EventStart)
	require.Equal(t, c.EventEnd, got.EventEnd)
	require.Equal(t, c.Beneficiary, got.Beneficiary)
	require.Equal(t, c.SectionRefs, got.SectionRefs)
}

func TestMedicationRoundTrips(t *testing.T) {
	m := records.Medication{
		ID:       "Med1",
		Code:     "06313728",
		Text:     "Ibuprofen 400mg",
		Form:     "Tablet",
		Quantity: "20",
	}

	enc := codec.NewStreamEncoder()
	require.NoError(t, records.EncodeMedication(enc, m))

	got, err := records.DecodeMedication(codec.NewStreamDecoder(enc.Items()))
	require.NoError(t, err)
	require.Equal(t, m.Code, got.Code)
	require.Equal(t, m.Text, got.Text)
	require.Equal(t, m.Form, got.Form)
	require.Equal(t, m.Quantity, got.Quantity)
}

func TestMedicationRequestRoundTrips(t *testing.T) {
	mr := records.MedicationRequest{
		ID:            "MR1",
		MedicationRef: "Medication/Med1",
		SubjectRef:    "Patient/X110406067",
		RequesterRef:  "Practitioner/1",
		AuthoredOn:    "2026-01-01T09:00:00Z",
		DosageText:    "1-0-1",
		Substitution:  true,
		Quantity:      "20",
	}

	enc := codec.NewStreamEncoder()
	require.NoError(t, records.EncodeMedicationRequest(enc, mr))

	got, err := records.DecodeMedicationRequest(codec.NewStreamDecoder(enc.Items()))
	require.NoError(t, err)
	require.Equal(t, mr.MedicationRef, got.MedicationRef)
	require.Equal(t, mr.SubjectRef, got.SubjectRef)
	require.Equal(t, mr.RequesterRef, got.RequesterRef)
	require.Equal(t, mr.AuthoredOn, got.AuthoredOn)
	require.Equal(t, mr.DosageText, got.DosageText)
	require.Equal(t, mr.Substitution, got.Substitution)
	require.Equal(t, mr.Quantity, got.Quantity)
}

func TestCapabilityStatementRoundTrips(t *testing.T) {
	cs, err := records.NewCapabilityStatement("1.4.0")
	require.NoError(t, err)

	enc := codec.NewStreamEncoder()
	require.NoError(t, records.EncodeCapabilityStatement(enc, cs))

	got, err := records.DecodeCapabilityStatement(codec.NewStreamDecoder(enc.Items()))
	require.NoError(t, err)
	require.Equal(t, cs.Software, got.Software)
	require.Equal(t, cs.Version, got.Version)
	require.Equal(t, cs.FHIRVersion, got.FHIRVersion)
	require.Equal(t, cs.Resources, got.Resources)
}

func TestNewCapabilityStatementRejectsMalformedVersion(t *testing.T) {
	_, err := records.NewCapabilityStatement("not-a-version")
	require.Error(t, err)
}

func TestBundleRoundTrips(t *testing.T) {
	medEnc := codec.NewStreamEncoder()
	require.NoError(t, records.EncodeMedication(medEnc, records.Medication{ID: "Med1", Code: "06313728", Text: "Ibuprofen"}))
	medItems := medEnc.Items()
	// strip the RootItem/EndElement wrapper EncodeBundle's Inline re-adds itself.
	medBody := medItems[1 : len(medItems)-1]

	b := records.Bundle{
		ID:   "Bundle1",
		Type: "document",
		Order: []string{
			"Medication/Med1",
		},
		Entries: map[string]records.BundleEntry{
			"Medication/Med1": {
				ResourceType: "Medication",
				FullURL:      "Medication/Med1",
				Items:        medBody,
			},
		},
	}

	enc := codec.NewStreamEncoder()
	require.NoError(t, records.EncodeBundle(enc, b))

	got, err := records.DecodeBundle(codec.NewStreamDecoder(enc.Items()))
	require.NoError(t, err)
	require.Equal(t, b.ID, got.ID)
	require.Equal(t, b.Type, got.Type)
	require.Equal(t, b.Order, got.Order)

	resolved, err := got.Resolve("Medication/Med1", func(dec *codec.StreamDecoder) (any, error) {
		return records.DecodeMedication(dec)
	})
	require.NoError(t, err)
	m, ok := resolved.(records.Medication)
	require.True(t, ok)
	require.Equal(t, "06313728", m.Code)
}
