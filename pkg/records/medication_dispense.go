package records

import (
	"github.com/erx-dienst/erx-core/pkg/codec"
	"github.com/erx-dienst/erx-core/pkg/erx/dispense"
	"github.com/erx-dienst/erx-core/pkg/erx/ids"
)

var medicationDispenseProfiles = []string{
	"https://gematik.de/fhir/erp/StructureDefinition/GEM_ERP_PR_MedicationDispense",
}

// DecodeMedicationDispense decodes a MedicationDispense resource into the
// minimal shape task.Close needs (§4.1 close, §4.3).
func DecodeMedicationDispense(dec *codec.StreamDecoder) (dispense.Entry, error) {
	var entry dispense.Entry
	if err := dec.Root("MedicationDispense"); err != nil {
		return entry, err
	}

	var profiles []string
	for {
		if name, ok := dec.PeekElement(); ok {
			switch name {
			case "meta":
				if _, err := dec.Element(); err != nil {
					return entry, err
				}
				v, err := dec.Value("profile")
				if err != nil {
					return entry, err
				}
				profiles = append(profiles, v)
				if err := dec.End(); err != nil {
					return entry, err
				}
			case "identifier":
				if _, err := dec.Element(); err != nil {
					return entry, err
				}
				v, err := dec.Value("value")
				if err != nil {
					return entry, err
				}
				entry.PrescriptionID = ids.PrescriptionID(v)
				if err := dec.End(); err != nil {
					return entry, err
				}
			case "subject":
				if _, err := dec.Element(); err != nil {
					return entry, err
				}
				v, err := dec.Value("identifier")
				if err != nil {
					return entry, err
				}
				entry.Subject = ids.KVNR(v)
				if err := dec.End(); err != nil {
					return entry, err
				}
			case "performer":
				if _, err := dec.Element(); err != nil {
					return entry, err
				}
				v, err := dec.Value("identifier")
				if err != nil {
					return entry, err
				}
				entry.Performer = ids.TelematikID(v)
				if err := dec.End(); err != nil {
					return entry, err
				}
			case "supportingInformation":
				if _, err := dec.Element(); err != nil {
					return entry, err
				}
				v, err := dec.Value("reference")
				if err != nil {
					return entry, err
				}
				entry.SupportingTask = v
				if err := dec.End(); err != nil {
					return entry, err
				}
			default:
				if _, err := dec.Element(); err != nil {
					return entry, err
				}
				if err := skipSubtree(dec); err != nil {
					return entry, err
				}
			}
			continue
		}
		name, ok := dec.PeekField()
		if !ok {
			break
		}
		if _, err := dec.Value(name); err != nil {
			return entry, err
		}
	}

	if err := CheckProfile(profiles, medicationDispenseProfiles); err != nil {
		return entry, err
	}
	if err := dec.End(); err != nil {
		return entry, err
	}
	return entry, nil
}

// EncodeMedicationDispense writes entry as a MedicationDispense resource.
func EncodeMedicationDispense(enc *codec.StreamEncoder, entry dispense.Entry) error {
	if err := enc.Root("MedicationDispense"); err != nil {
		return err
	}
	if err := enc.Element("meta"); err != nil {
		return err
	}
	if err := enc.Field("profile", medicationDispenseProfiles[0]); err != nil {
		return err
	}
	if err := enc.End(); err != nil {
		return err
	}

	if err := enc.Field("id", entry.ID); err != nil {
		return err
	}
	if err := enc.Field("status", "completed"); err != nil {
		return err
	}

	if err := enc.Element("identifier"); err != nil {
		return err
	}
	if err := enc.Field("value", entry.PrescriptionID.String()); err != nil {
		return err
	}
	if err := enc.End(); err != nil {
		return err
	}

	if err := enc.Element("subject"); err != nil {
		return err
	}
	if err := enc.Field("identifier", entry.Subject.String()); err != nil {
		return err
	}
	if err := enc.End(); err != nil {
		return err
	}

	if err := enc.Element("performer"); err != nil {
		return err
	}
	if err := enc.Field("identifier", entry.Performer.String()); err != nil {
		return err
	}
	if err := enc.End(); err != nil {
		return err
	}

	if err := enc.Element("supportingInformation"); err != nil {
		return err
	}
	if err := enc.Field("reference", "Task/"+entry.SupportingTask); err != nil {
		return err
	}
	if err := enc.End(); err != nil {
		return err
	}

	if err := enc.Field("whenHandedOver", FormatDateTime(&entry.RecordedAt)); err != nil {
		return err
	}

	return enc.End()
}
