package records

import "github.com/erx-dienst/erx-core/pkg/codec"

var medicationRequestProfiles = []string{
	"https://gematik.de/fhir/erp/StructureDefinition/GEM_ERP_PR_MedicationRequest",
}

// MedicationRequest is the prescriber's order embedded in the signed
// e-prescription bundle, referencing its Medication and subject by id
// (§4.6 "cyclic references... MedicationRequest -> Medication").
type MedicationRequest struct {
	ID             string
	MedicationRef  string
	SubjectRef     string
	RequesterRef   string
	AuthoredOn     string
	DosageText     string
	Substitution   bool
	Quantity       string
}

// DecodeMedicationRequest decodes a MedicationRequest resource.
func DecodeMedicationRequest(dec *codec.StreamDecoder) (MedicationRequest, error) {
	var mr MedicationRequest
	if err := dec.Root("MedicationRequest"); err != nil {
		return mr, err
	}

	var profiles []string
	for {
		if name, ok := dec.PeekElement(); ok {
			switch name {
			case "meta":
				if _, err := dec.Element(); err != nil {
					return mr, err
				}
				v, err := dec.Value("profile")
				if err != nil {
					return mr, err
				}
				profiles = append(profiles, v)
				if err := dec.End(); err != nil {
					return mr, err
				}
			case "medicationReference":
				if _, err := dec.Element(); err != nil {
					return mr, err
				}
				v, err := dec.Value("reference")
				if err != nil {
					return mr, err
				}
				mr.MedicationRef = v
				if err := dec.End(); err != nil {
					return mr, err
				}
			case "subject":
				if _, err := dec.Element(); err != nil {
					return mr, err
				}
				v, err := dec.Value("reference")
				if err != nil {
					return mr, err
				}
				mr.SubjectRef = v
				if err := dec.End(); err != nil {
					return mr, err
				}
			case "requester":
				if _, err := dec.Element(); err != nil {
					return mr, err
				}
				v, err := dec.Value("reference")
				if err != nil {
					return mr, err
				}
				mr.RequesterRef = v
				if err := dec.End(); err != nil {
					return mr, err
				}
			case "dosageInstruction":
				if _, err := dec.Element(); err != nil {
					return mr, err
				}
				v, err := dec.Value("text")
				if err != nil {
					return mr, err
				}
				mr.DosageText = v
				if err := dec.End(); err != nil {
					return mr, err
				}
			case "dispenseRequest":
				if _, err := dec.Element(); err != nil {
					return mr, err
				}
				v, err := dec.Value("quantity")
				if err != nil {
					return mr, err
				}
				mr.Quantity = v
				if err := dec.End(); err != nil {
					return mr, err
				}
			case "substitution":
				if _, err := dec.Element(); err != nil {
					return mr, err
				}
				v, err := dec.Value("allowedBoolean")
				if err != nil {
					return mr, err
				}
				mr.Substitution = v == "true"
				if err := dec.End(); err != nil {
					return mr, err
				}
			default:
				if _, err := dec.Element(); err != nil {
					return mr, err
				}
				if err := skipSubtree(dec); err != nil {
					return mr, err
				}
			}
			continue
		}
		name, ok := dec.PeekField()
		if !ok {
			break
		}
		switch name {
		case "authoredOn":
			v, err := dec.Value("authoredOn")
			if err != nil {
				return mr, err
			}
			mr.AuthoredOn = v
		default:
			if _, err := dec.Value(name); err != nil {
				return mr, err
			}
		}
	}

	if err := CheckProfile(profiles, medicationRequestProfiles); err != nil {
		return mr, err
	}
	if err := dec.End(); err != nil {
		return mr, err
	}
	return mr, nil
}

// EncodeMedicationRequest writes mr as a MedicationRequest resource.
func EncodeMedicationRequest(enc *codec.StreamEncoder, mr MedicationRequest) error {
	if err := enc.Root("MedicationRequest"); err != nil {
		return err
	}
	if err := enc.Element("meta"); err != nil {
		return err
	}
	if err := enc.Field("profile", medicationRequestProfiles[0]); err != nil {
		return err
	}
	if err := enc.End(); err != nil {
		return err
	}

	if err := enc.Field("id", mr.ID); err != nil {
		return err
	}
	if err := enc.Field("status", "active"); err != nil {
		return err
	}
	if err := enc.Field("intent", "order"); err != nil {
		return err
	}

	if err := enc.Element("medicationReference"); err != nil {
		return err
	}
	if err := enc.Field("reference", mr.MedicationRef); err != nil {
		return err
	}
	if err := enc.End(); err != nil {
		return err
	}

	if err := enc.Element("subject"); err != nil {
		return err
	}
	if err := enc.Field("reference", mr.SubjectRef); err != nil {
		return err
	}
	if err := enc.End(); err != nil {
		return err
	}

	if mr.RequesterRef != "" {
		if err := enc.Element("requester"); err != nil {
			return err
		}
		if err := enc.Field("reference", mr.RequesterRef); err != nil {
			return err
		}
		if err := enc.End(); err != nil {
			return err
		}
	}

	if mr.AuthoredOn != "" {
		if err := enc.Field("authoredOn", mr.AuthoredOn); err != nil {
			return err
		}
	}

	if mr.DosageText != "" {
		if err := enc.Element("dosageInstruction"); err != nil {
			return err
		}
		if err := enc.Field("text", mr.DosageText); err != nil {
			return err
		}
		if err := enc.End(); err != nil {
			return err
		}
	}

	if err := enc.Element("dispenseRequest"); err != nil {
		return err
	}
	if err := enc.Field("quantity", mr.Quantity); err != nil {
		return err
	}
	if err := enc.End(); err != nil {
		return err
	}

	if err := enc.Element("substitution"); err != nil {
		return err
	}
	allowed := "false"
	if mr.Substitution {
		allowed = "true"
	}
	if err := enc.Field("allowedBoolean", allowed); err != nil {
		return err
	}
	if err := enc.End(); err != nil {
		return err
	}

	return enc.End()
}
