package records

import (
	"github.com/erx-dienst/erx-core/pkg/codec"
	"github.com/erx-dienst/erx-core/pkg/erx/comm"
)

var communicationProfiles = []string{
	"https://gematik.de/fhir/erp/StructureDefinition/GEM_ERP_PR_Communication_DispReq",
	"https://gematik.de/fhir/erp/StructureDefinition/GEM_ERP_PR_Communication_Reply",
	"https://gematik.de/fhir/erp/StructureDefinition/GEM_ERP_PR_Communication_InfoReq",
	"https://gematik.de/fhir/erp/StructureDefinition/GEM_ERP_PR_Communication_Representative",
}

// DecodeCommunication decodes a Communication resource.
func DecodeCommunication(dec *codec.StreamDecoder) (comm.Message, error) {
	var msg comm.Message
	if err := dec.Root("Communication"); err != nil {
		return msg, err
	}

	var profiles []string
	for {
		if name, ok := dec.PeekElement(); ok {
			switch name {
			case "meta":
				if _, err := dec.Element(); err != nil {
					return msg, err
				}
				v, err := dec.Value("profile")
				if err != nil {
					return msg, err
				}
				profiles = append(profiles, v)
				if err := dec.End(); err != nil {
					return msg, err
				}
			case "basedOn":
				if _, err := dec.Element(); err != nil {
					return msg, err
				}
				v, err := dec.Value("reference")
				if err != nil {
					return msg, err
				}
				msg.BasedOn = v
				if err := dec.End(); err != nil {
					return msg, err
				}
			case "sender":
				if _, err := dec.Element(); err != nil {
					return msg, err
				}
				v, err := dec.Value("identifier")
				if err != nil {
					return msg, err
				}
				msg.Sender = v
				if err := dec.End(); err != nil {
					return msg, err
				}
			case "recipient":
				if _, err := dec.Element(); err != nil {
					return msg, err
				}
				v, err := dec.Value("identifier")
				if err != nil {
					return msg, err
				}
				msg.Recipient = v
				if err := dec.End(); err != nil {
					return msg, err
				}
			case "payload":
				if _, err := dec.Element(); err != nil {
					return msg, err
				}
				v, err := dec.Value("contentString")
				if err != nil {
					return msg, err
				}
				msg.Content = v
				if err := dec.End(); err != nil {
					return msg, err
				}
			default:
				if _, err := dec.Element(); err != nil {
					return msg, err
				}
				if err := skipSubtree(dec); err != nil {
					return msg, err
				}
			}
			continue
		}
		name, ok := dec.PeekField()
		if !ok {
			break
		}
		if _, err := dec.Value(name); err != nil {
			return msg, err
		}
	}

	if err := CheckProfile(profiles, communicationProfiles); err != nil {
		return msg, err
	}
	if err := dec.End(); err != nil {
		return msg, err
	}
	return msg, nil
}

// EncodeCommunication writes msg as a Communication resource.
func EncodeCommunication(enc *codec.StreamEncoder, msg comm.Message, profile string) error {
	if err := enc.Root("Communication"); err != nil {
		return err
	}
	if err := enc.Element("meta"); err != nil {
		return err
	}
	if err := enc.Field("profile", profile); err != nil {
		return err
	}
	if err := enc.End(); err != nil {
		return err
	}
	if err := enc.Field("id", msg.ID); err != nil {
		return err
	}
	if err := enc.Field("status", "unknown"); err != nil {
		return err
	}

	if msg.BasedOn != "" {
		if err := enc.Element("basedOn"); err != nil {
			return err
		}
		if err := enc.Field("reference", "Task/"+msg.BasedOn); err != nil {
			return err
		}
		if err := enc.End(); err != nil {
			return err
		}
	}

	if err := enc.Element("sender"); err != nil {
		return err
	}
	if err := enc.Field("identifier", msg.Sender); err != nil {
		return err
	}
	if err := enc.End(); err != nil {
		return err
	}

	if err := enc.Element("recipient"); err != nil {
		return err
	}
	if err := enc.Field("identifier", msg.Recipient); err != nil {
		return err
	}
	if err := enc.End(); err != nil {
		return err
	}

	if err := enc.Element("payload"); err != nil {
		return err
	}
	if err := enc.Field("contentString", msg.Content); err != nil {
		return err
	}
	if err := enc.End(); err != nil {
		return err
	}

	return enc.End()
}
