package records

import "github.com/erx-dienst/erx-core/pkg/codec"

var medicationProfiles = []string{
	"https://gematik.de/fhir/erp/StructureDefinition/GEM_ERP_PR_Medication_PZN",
	"https://gematik.de/fhir/erp/StructureDefinition/GEM_ERP_PR_Medication_Compounding",
	"https://gematik.de/fhir/erp/StructureDefinition/GEM_ERP_PR_Medication_FreeText",
	"https://gematik.de/fhir/erp/StructureDefinition/GEM_ERP_PR_Medication_Ingredient",
}

// Medication is the dispensed product a MedicationRequest/MedicationDispense
// references by id (§4.6 "cyclic references... Medication").
type Medication struct {
	ID       string
	Code     string // PZN or free-text code
	Text     string
	Form     string
	Quantity string
}

// DecodeMedication decodes a Medication resource.
func DecodeMedication(dec *codec.StreamDecoder) (Medication, error) {
	var m Medication
	if err := dec.Root("Medication"); err != nil {
		return m, err
	}

	var profiles []string
	for {
		if name, ok := dec.PeekElement(); ok {
			switch name {
			case "meta":
				if _, err := dec.Element(); err != nil {
					return m, err
				}
				v, err := dec.Value("profile")
				if err != nil {
					return m, err
				}
				profiles = append(profiles, v)
				if err := dec.End(); err != nil {
					return m, err
				}
			case "code":
				if _, err := dec.Element(); err != nil {
					return m, err
				}
				code, err := dec.Value("code")
				if err != nil {
					return m, err
				}
				text, err := dec.Value("text")
				if err != nil {
					return m, err
				}
				m.Code, m.Text = code, text
				if err := dec.End(); err != nil {
					return m, err
				}
			case "form":
				if _, err := dec.Element(); err != nil {
					return m, err
				}
				v, err := dec.Value("text")
				if err != nil {
					return m, err
				}
				m.Form = v
				if err := dec.End(); err != nil {
					return m, err
				}
			case "amount":
				if _, err := dec.Element(); err != nil {
					return m, err
				}
				v, err := dec.Value("quantity")
				if err != nil {
					return m, err
				}
				m.Quantity = v
				if err := dec.End(); err != nil {
					return m, err
				}
			default:
				if _, err := dec.Element(); err != nil {
					return m, err
				}
				if err := skipSubtree(dec); err != nil {
					return m, err
				}
			}
			continue
		}
		name, ok := dec.PeekField()
		if !ok {
			break
		}
		if _, err := dec.Value(name); err != nil {
			return m, err
		}
	}

	if err := CheckProfile(profiles, medicationProfiles); err != nil {
		return m, err
	}
	if err := dec.End(); err != nil {
		return m, err
	}
	return m, nil
}

// EncodeMedication writes m as a Medication resource under the PZN
// profile, the most common case in the catalog.
func EncodeMedication(enc *codec.StreamEncoder, m Medication) error {
	if err := enc.Root("Medication"); err != nil {
		return err
	}
	if err := enc.Element("meta"); err != nil {
		return err
	}
	if err := enc.Field("profile", medicationProfiles[0]); err != nil {
		return err
	}
	if err := enc.End(); err != nil {
		return err
	}

	if err := enc.Field("id", m.ID); err != nil {
		return err
	}

	if err := enc.Element("code"); err != nil {
		return err
	}
	if err := enc.Field("code", m.Code); err != nil {
		return err
	}
	if err := enc.Field("text", m.Text); err != nil {
		return err
	}
	if err := enc.End(); err != nil {
		return err
	}

	if m.Form != "" {
		if err := enc.Element("form"); err != nil {
			return err
		}
		if err := enc.Field("text", m.Form); err != nil {
			return err
		}
		if err := enc.End(); err != nil {
			return err
		}
	}

	if m.Quantity != "" {
		if err := enc.Element("amount"); err != nil {
			return err
		}
		if err := enc.Field("quantity", m.Quantity); err != nil {
			return err
		}
		if err := enc.End(); err != nil {
			return err
		}
	}

	return enc.End()
}
