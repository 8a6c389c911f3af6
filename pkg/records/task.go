package records

import (
	"fmt"

	"github.com/erx-dienst/erx-core/pkg/codec"
	"github.com/erx-dienst/erx-core/pkg/erx/task"
)

// taskProfiles lists the meta.profile values a Task resource may carry
// (§4.6 "documented set").
var taskProfiles = []string{
	"https://gematik.de/fhir/erp/StructureDefinition/GEM_ERP_PR_Task",
}

// taskStatusCodes additionally accepts the forward-compatible codec-level
// states named in §4.1, even though the engine never writes them.
var taskStatusCodes = []string{
	"draft", "ready", "in-progress", "completed", "cancelled",
	"requested", "received", "accepted", "rejected", "on-hold", "failed", "entered-in-error",
}

// DecodeTask decodes a Task resource from the neutral event stream.
func DecodeTask(dec *codec.StreamDecoder) (task.Snapshot, error) {
	var snap task.Snapshot

	if err := dec.Root("Task"); err != nil {
		return snap, err
	}

	fields := codec.NewFields("meta", "status", "identifier", "input", "output", "authoredOn", "lastModified")
	var profiles []string
	for {
		if name, ok := dec.PeekElement(); ok {
			switch name {
			case "meta":
				if err := fields.Next("meta"); err != nil {
					return snap, err
				}
				if _, err := dec.Element(); err != nil {
					return snap, err
				}
				v, err := dec.Value("profile")
				if err != nil {
					return snap, err
				}
				profiles = append(profiles, v)
				if err := dec.End(); err != nil {
					return snap, err
				}
			default:
				// Unhandled elements (identifier/input/output/etc.) are
				// consumed by callers needing the full resource; DecodeTask
				// focuses on the fields the state machine itself owns.
				if _, err := dec.Element(); err != nil {
					return snap, err
				}
				if err := skipSubtree(dec); err != nil {
					return snap, err
				}
			}
			continue
		}
		name, ok := dec.PeekField()
		if !ok {
			break
		}
		switch name {
		case "status":
			fields.Skip()
			v, err := dec.Value("status")
			if err != nil {
				return snap, err
			}
			if _, err := matchStatus(v); err != nil {
				return snap, err
			}
			snap.Status = task.Status(v)
		default:
			// Unhandled scalar fields (id/intent/timestamps/etc.) are
			// consumed by callers needing the full resource; DecodeTask
			// focuses on the fields the state machine itself owns.
			if _, err := dec.Value(""); err != nil {
				return snap, err
			}
		}
	}

	if err := CheckProfile(profiles, taskProfiles); err != nil {
		return snap, err
	}
	if err := dec.End(); err != nil {
		return snap, err
	}
	return snap, nil
}

func matchStatus(v string) (string, error) {
	for _, s := range taskStatusCodes {
		if s == v {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: task status %q", ErrInvalidValue, v)
}

// skipSubtree consumes one already-opened element's children through its
// matching End(), discarding them. Used by adapters that only care about
// a subset of a resource's fields.
func skipSubtree(dec *codec.StreamDecoder) error {
	depth := 1
	for depth > 0 {
		if _, ok := dec.PeekElement(); ok {
			if _, err := dec.Element(); err != nil {
				return err
			}
			depth++
			continue
		}
		// Either a Field or an EndElement is next.
		if err := dec.End(); err == nil {
			depth--
			continue
		}
		if _, err := dec.Value(""); err != nil {
			return err
		}
	}
	return nil
}

// EncodeTask writes snap as a Task resource.
func EncodeTask(enc *codec.StreamEncoder, snap task.Snapshot) error {
	if err := enc.Root("Task"); err != nil {
		return err
	}
	if err := enc.Element("meta"); err != nil {
		return err
	}
	if err := enc.Field("profile", taskProfiles[0]); err != nil {
		return err
	}
	if err := enc.End(); err != nil {
		return err
	}

	if err := enc.Field("id", snap.ID); err != nil {
		return err
	}
	if err := enc.Field("status", string(snap.Status)); err != nil {
		return err
	}
	if err := enc.Field("intent", "order"); err != nil {
		return err
	}

	if err := enc.Element("identifier"); err != nil {
		return err
	}
	if err := enc.Field("system", "https://gematik.de/fhir/erp/sid/prescriptionID"); err != nil {
		return err
	}
	if err := enc.Field("value", snap.PrescriptionID.String()); err != nil {
		return err
	}
	if err := enc.End(); err != nil {
		return err
	}

	if snap.PatientID != "" {
		if err := enc.Element("for"); err != nil {
			return err
		}
		if err := enc.Field("identifier", snap.PatientID.String()); err != nil {
			return err
		}
		if err := enc.End(); err != nil {
			return err
		}
	}

	if err := enc.Field("authoredOn", FormatDateTime(&snap.AuthoredOn)); err != nil {
		return err
	}
	if err := enc.Field("lastModified", FormatDateTime(&snap.LastModified)); err != nil {
		return err
	}
	if snap.AcceptDate != nil {
		if err := enc.Field("acceptDate", FormatDateTime(snap.AcceptDate)); err != nil {
			return err
		}
	}
	if snap.ExpiryDate != nil {
		if err := enc.Field("expiryDate", FormatDateTime(snap.ExpiryDate)); err != nil {
			return err
		}
	}

	if err := enc.Element("input"); err != nil {
		return err
	}
	if snap.Input.EPrescription != "" {
		if err := enc.Field("e-prescription", snap.Input.EPrescription); err != nil {
			return err
		}
	}
	if snap.Input.PatientReceipt != "" {
		if err := enc.Field("patientReceipt", snap.Input.PatientReceipt); err != nil {
			return err
		}
	}
	if err := enc.End(); err != nil {
		return err
	}

	if snap.Output.PharmacyReceipt != "" {
		if err := enc.Element("output"); err != nil {
			return err
		}
		if err := enc.Field("receipt", snap.Output.PharmacyReceipt); err != nil {
			return err
		}
		if err := enc.End(); err != nil {
			return err
		}
	}

	if snap.Performer != "" {
		if err := enc.Element("performer"); err != nil {
			return err
		}
		if err := enc.Field("type", string(snap.PerformerType)); err != nil {
			return err
		}
		if err := enc.Field("identifier", snap.Performer.String()); err != nil {
			return err
		}
		if err := enc.End(); err != nil {
			return err
		}
	}

	return enc.End()
}
