package records

import (
	"github.com/erx-dienst/erx-core/pkg/codec"
	"github.com/erx-dienst/erx-core/pkg/erx/audit"
)

var auditEventProfiles = []string{
	"https://gematik.de/fhir/erp/StructureDefinition/GEM_ERP_PR_AuditEvent",
}

// DecodeAuditEvent decodes an AuditEvent resource.
func DecodeAuditEvent(dec *codec.StreamDecoder) (audit.Event, error) {
	var evt audit.Event
	if err := dec.Root("AuditEvent"); err != nil {
		return evt, err
	}

	var profiles []string
	for {
		if name, ok := dec.PeekElement(); ok {
			switch name {
			case "meta":
				if _, err := dec.Element(); err != nil {
					return evt, err
				}
				v, err := dec.Value("profile")
				if err != nil {
					return evt, err
				}
				profiles = append(profiles, v)
				if err := dec.End(); err != nil {
					return evt, err
				}
			case "agent":
				if _, err := dec.Element(); err != nil {
					return evt, err
				}
				id, err := dec.Value("who")
				if err != nil {
					return evt, err
				}
				agentName, err := dec.Value("name")
				if err != nil {
					return evt, err
				}
				evt.Agent = audit.Agent{ActorID: id, Name: agentName}
				if err := dec.End(); err != nil {
					return evt, err
				}
			case "entity":
				if _, err := dec.Element(); err != nil {
					return evt, err
				}
				what, err := dec.Value("what")
				if err != nil {
					return evt, err
				}
				evt.What = what
				if err := skipSubtree(dec); err != nil {
					return evt, err
				}
			default:
				if _, err := dec.Element(); err != nil {
					return evt, err
				}
				if err := skipSubtree(dec); err != nil {
					return evt, err
				}
			}
			continue
		}
		name, ok := dec.PeekField()
		if !ok {
			break
		}
		if _, err := dec.Value(name); err != nil {
			return evt, err
		}
	}

	if err := CheckProfile(profiles, auditEventProfiles); err != nil {
		return evt, err
	}
	if err := dec.End(); err != nil {
		return evt, err
	}
	return evt, nil
}

// EncodeAuditEvent writes an audit entry as an AuditEvent resource.
func EncodeAuditEvent(enc *codec.StreamEncoder, entry audit.Entry) error {
	if err := enc.Root("AuditEvent"); err != nil {
		return err
	}
	if err := enc.Element("meta"); err != nil {
		return err
	}
	if err := enc.Field("profile", auditEventProfiles[0]); err != nil {
		return err
	}
	if err := enc.End(); err != nil {
		return err
	}

	if err := enc.Field("id", entry.EntryID); err != nil {
		return err
	}
	if err := enc.Field("type", string(entry.Event.Action)); err != nil {
		return err
	}
	if err := enc.Field("subtype", string(entry.Event.SubType)); err != nil {
		return err
	}
	if err := enc.Field("recorded", FormatDateTime(&entry.Timestamp)); err != nil {
		return err
	}
	if err := enc.Field("outcome", string(entry.Event.Outcome)); err != nil {
		return err
	}

	if err := enc.Element("agent"); err != nil {
		return err
	}
	if err := enc.Field("who", entry.Event.Agent.ActorID); err != nil {
		return err
	}
	if err := enc.Field("name", entry.Event.Agent.Name); err != nil {
		return err
	}
	if err := enc.End(); err != nil {
		return err
	}

	if entry.Event.What != "" {
		if err := enc.Element("entity"); err != nil {
			return err
		}
		if err := enc.Field("what", entry.Event.What); err != nil {
			return err
		}
		if entry.Event.Description != "" {
			if err := enc.Field("description", entry.Event.Description); err != nil {
				return err
			}
		}
		if err := enc.End(); err != nil {
			return err
		}
	}

	return enc.End()
}
