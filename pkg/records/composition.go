package records

import "github.com/erx-dienst/erx-core/pkg/codec"

var compositionProfiles = []string{
	"https://gematik.de/fhir/erp/StructureDefinition/GEM_ERP_PR_Composition",
}

// Composition is the ErxReceipt's structured body (§4.3): beneficiary,
// author device, event start/end, plus the references a Bundle arena
// resolves (entry -> MedicationRequest -> Medication).
type Composition struct {
	ID          string
	Beneficiary string // identifier of the receipt's beneficiary; receipt.Generator sets the patient's KVNR
	Author      string // device reference id
	EventStart  string
	EventEnd    string
	SectionRefs []string // entry references, e.g. "MedicationRequest/..."
}

// DecodeComposition decodes a Composition resource.
func DecodeComposition(dec *codec.StreamDecoder) (Composition, error) {
	var c Composition
	if err := dec.Root("Composition"); err != nil {
		return c, err
	}

	var profiles []string
	for {
		if name, ok := dec.PeekElement(); ok {
			switch name {
			case "meta":
				if _, err := dec.Element(); err != nil {
					return c, err
				}
				v, err := dec.Value("profile")
				if err != nil {
					return c, err
				}
				profiles = append(profiles, v)
				if err := dec.End(); err != nil {
					return c, err
				}
			case "author":
				if _, err := dec.Element(); err != nil {
					return c, err
				}
				v, err := dec.Value("reference")
				if err != nil {
					return c, err
				}
				c.Author = v
				if err := dec.End(); err != nil {
					return c, err
				}
			case "event":
				if _, err := dec.Element(); err != nil {
					return c, err
				}
				start, err := dec.Value("start")
				if err != nil {
					return c, err
				}
				end, err := dec.Value("end")
				if err != nil {
					return c, err
				}
				c.EventStart, c.EventEnd = start, end
				if err := dec.End(); err != nil {
					return c, err
				}
			case "section":
				if _, err := dec.Element(); err != nil {
					return c, err
				}
				for {
					ename, ok := dec.PeekElement()
					if !ok {
						break
					}
					if ename != "entry" {
						if _, err := dec.Element(); err != nil {
							return c, err
						}
						if err := skipSubtree(dec); err != nil {
							return c, err
						}
						continue
					}
					if _, err := dec.Element(); err != nil {
						return c, err
					}
					ref, err := dec.Value("reference")
					if err != nil {
						return c, err
					}
					c.SectionRefs = append(c.SectionRefs, ref)
					if err := dec.End(); err != nil {
						return c, err
					}
				}
				if err := dec.End(); err != nil {
					return c, err
				}
			default:
				if _, err := dec.Element(); err != nil {
					return c, err
				}
				if err := skipSubtree(dec); err != nil {
					return c, err
				}
			}
			continue
		}
		name, ok := dec.PeekField()
		if !ok {
			break
		}
		switch name {
		case "beneficiary":
			v, err := dec.Value("beneficiary")
			if err != nil {
				return c, err
			}
			c.Beneficiary = v
		default:
			if _, err := dec.Value(name); err != nil {
				return c, err
			}
		}
	}

	if err := CheckProfile(profiles, compositionProfiles); err != nil {
		return c, err
	}
	if err := dec.End(); err != nil {
		return c, err
	}
	return c, nil
}

// EncodeComposition writes c as a Composition resource.
func EncodeComposition(enc *codec.StreamEncoder, c Composition) error {
	if err := enc.Root("Composition"); err != nil {
		return err
	}
	if err := enc.Element("meta"); err != nil {
		return err
	}
	if err := enc.Field("profile", compositionProfiles[0]); err != nil {
		return err
	}
	if err := enc.End(); err != nil {
		return err
	}

	if err := enc.Field("id", c.ID); err != nil {
		return err
	}
	if err := enc.Field("status", "final"); err != nil {
		return err
	}

	if err := enc.Element("author"); err != nil {
		return err
	}
	if err := enc.Field("reference", c.Author); err != nil {
		return err
	}
	if err := enc.End(); err != nil {
		return err
	}

	if err := enc.Element("event"); err != nil {
		return err
	}
	if err := enc.Field("start", c.EventStart); err != nil {
		return err
	}
	if err := enc.Field("end", c.EventEnd); err != nil {
		return err
	}
	if err := enc.End(); err != nil {
		return err
	}

	if err := enc.Field("beneficiary", c.Beneficiary); err != nil {
		return err
	}

	if err := enc.Element("section"); err != nil {
		return err
	}
	for _, ref := range c.SectionRefs {
		if err := enc.Element("entry"); err != nil {
			return err
		}
		if err := enc.Field("reference", ref); err != nil {
			return err
		}
		if err := enc.End(); err != nil {
			return err
		}
	}
	if err := enc.End(); err != nil {
		return err
	}

	return enc.End()
}
