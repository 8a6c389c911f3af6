package records

import (
	"fmt"

	"github.com/Masterminds/semver/v3"

	"github.com/erx-dienst/erx-core/pkg/codec"
)

var capabilityStatementProfiles = []string{
	"https://gematik.de/fhir/erp/StructureDefinition/GEM_ERP_PR_CapabilityStatement",
}

// ResourceCapability names one supported resource type and the
// operations exposed on it, for the static /metadata document (§12
// supplemented feature — spec.md names CapabilityStatement in §4.6 but
// never exercises it in a scenario).
type ResourceCapability struct {
	Type       string
	Operations []string
}

// CapabilityStatement is the static, versioned description of this
// service's supported resource types and operations.
type CapabilityStatement struct {
	Software    string
	Version     string
	FHIRVersion string
	Resources   []ResourceCapability
}

// NewCapabilityStatement describes the engine implemented by this
// module (task, communication, medication-dispense, audit), rejecting a
// malformed version string up front rather than publishing a /metadata
// document client tooling can't parse for compatibility checks.
func NewCapabilityStatement(version string) (CapabilityStatement, error) {
	if _, err := semver.NewVersion(version); err != nil {
		return CapabilityStatement{}, fmt.Errorf("records: invalid capability statement version %q: %w", version, err)
	}
	return CapabilityStatement{
		Software:    "erx-core",
		Version:     version,
		FHIRVersion: "4.0.1",
		Resources: []ResourceCapability{
			{Type: "Task", Operations: []string{"create", "read", "activate", "accept", "reject", "close", "abort"}},
			{Type: "Communication", Operations: []string{"create", "read", "search", "delete"}},
			{Type: "MedicationDispense", Operations: []string{"read", "search"}},
			{Type: "AuditEvent", Operations: []string{"read", "search"}},
		},
	}, nil
}

// DecodeCapabilityStatement decodes a CapabilityStatement resource.
func DecodeCapabilityStatement(dec *codec.StreamDecoder) (CapabilityStatement, error) {
	var cs CapabilityStatement
	if err := dec.Root("CapabilityStatement"); err != nil {
		return cs, err
	}

	var profiles []string
	for {
		name, ok := dec.PeekElement()
		if ok {
			switch name {
			case "meta":
				if _, err := dec.Element(); err != nil {
					return cs, err
				}
				v, err := dec.Value("profile")
				if err != nil {
					return cs, err
				}
				profiles = append(profiles, v)
				if err := dec.End(); err != nil {
					return cs, err
				}
			case "software":
				if _, err := dec.Element(); err != nil {
					return cs, err
				}
				v, err := dec.Value("name")
				if err != nil {
					return cs, err
				}
				version, err := dec.Value("version")
				if err != nil {
					return cs, err
				}
				cs.Software, cs.Version = v, version
				if err := dec.End(); err != nil {
					return cs, err
				}
			case "rest":
				if _, err := dec.Element(); err != nil {
					return cs, err
				}
				for {
					if fname, ok := dec.PeekField(); ok {
						if _, err := dec.Value(fname); err != nil {
							return cs, err
						}
						continue
					}
					rname, ok := dec.PeekElement()
					if !ok || rname != "resource" {
						break
					}
					if _, err := dec.Element(); err != nil {
						return cs, err
					}
					rc, err := decodeResourceCapability(dec)
					if err != nil {
						return cs, err
					}
					cs.Resources = append(cs.Resources, rc)
					if err := dec.End(); err != nil {
						return cs, err
					}
				}
				if err := dec.End(); err != nil {
					return cs, err
				}
			default:
				if _, err := dec.Element(); err != nil {
					return cs, err
				}
				if err := skipSubtree(dec); err != nil {
					return cs, err
				}
			}
			continue
		}
		if fname, ok := dec.PeekField(); ok {
			v, err := dec.Value(fname)
			if err != nil {
				return cs, err
			}
			if fname == "fhirVersion" {
				cs.FHIRVersion = v
			}
			continue
		}
		break
	}

	if err := CheckProfile(profiles, capabilityStatementProfiles); err != nil {
		return cs, err
	}
	if err := dec.End(); err != nil {
		return cs, err
	}
	return cs, nil
}

func decodeResourceCapability(dec *codec.StreamDecoder) (ResourceCapability, error) {
	var rc ResourceCapability
	for {
		name, ok := dec.PeekElement()
		if ok {
			if name != "interaction" {
				if _, err := dec.Element(); err != nil {
					return rc, err
				}
				if err := skipSubtree(dec); err != nil {
					return rc, err
				}
				continue
			}
			if _, err := dec.Element(); err != nil {
				return rc, err
			}
			v, err := dec.Value("code")
			if err != nil {
				return rc, err
			}
			rc.Operations = append(rc.Operations, v)
			if err := dec.End(); err != nil {
				return rc, err
			}
			continue
		}
		if fname, ok := dec.PeekField(); ok {
			v, err := dec.Value(fname)
			if err != nil {
				return rc, err
			}
			if fname == "type" {
				rc.Type = v
			}
			continue
		}
		break
	}
	return rc, nil
}

// EncodeCapabilityStatement writes cs as a CapabilityStatement resource.
func EncodeCapabilityStatement(enc *codec.StreamEncoder, cs CapabilityStatement) error {
	if err := enc.Root("CapabilityStatement"); err != nil {
		return err
	}
	if err := enc.Element("meta"); err != nil {
		return err
	}
	if err := enc.Field("profile", capabilityStatementProfiles[0]); err != nil {
		return err
	}
	if err := enc.End(); err != nil {
		return err
	}

	if err := enc.Field("status", "active"); err != nil {
		return err
	}
	if err := enc.Field("kind", "instance"); err != nil {
		return err
	}
	if err := enc.Field("fhirVersion", cs.FHIRVersion); err != nil {
		return err
	}

	if err := enc.Element("software"); err != nil {
		return err
	}
	if err := enc.Field("name", cs.Software); err != nil {
		return err
	}
	if err := enc.Field("version", cs.Version); err != nil {
		return err
	}
	if err := enc.End(); err != nil {
		return err
	}

	if err := enc.Element("rest"); err != nil {
		return err
	}
	if err := enc.Field("mode", "server"); err != nil {
		return err
	}
	for _, rc := range cs.Resources {
		if err := enc.Element("resource"); err != nil {
			return err
		}
		if err := enc.Field("type", rc.Type); err != nil {
			return err
		}
		for _, op := range rc.Operations {
			if err := enc.Element("interaction"); err != nil {
				return err
			}
			if err := enc.Field("code", op); err != nil {
				return err
			}
			if err := enc.End(); err != nil {
				return err
			}
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
