// Package records declares the decode/encode procedures for every domain
// record against the neutral codec event model (spec §4.6): Task,
// Communication, MedicationDispense, AuditEvent, Bundle, Composition,
// Medication, MedicationRequest, CapabilityStatement, SignedData.
//
// Grounded on the teacher's core/pkg/contracts (typed records with
// explicit Decode/Encode procedures) generalized from a single JSON shape
// to the codec package's format-neutral Decoder/Encoder.
package records

import (
	"fmt"
	"strings"
	"time"

	"github.com/erx-dienst/erx-core/pkg/codec"
)

// ErrInvalidProfile is returned when meta.profile names none of the
// documented, expected profiles (§4.6).
var ErrInvalidProfile = fmt.Errorf("records: invalid profile")

// ErrInvalidValue is returned when a coded value doesn't match any known
// code in its system (§4.6).
var ErrInvalidValue = fmt.Errorf("records: invalid value")

// CheckProfile asserts that profiles contains at least one entry from
// expected, case-sensitively (profile URLs are versioned and exact).
func CheckProfile(profiles []string, expected []string) error {
	for _, p := range profiles {
		for _, e := range expected {
			if p == e {
				return nil
			}
		}
	}
	return fmt.Errorf("%w: got %v, want one of %v", ErrInvalidProfile, profiles, expected)
}

// fixed decodes a field and asserts it equals expected, case-sensitively
// (§4.6 "helper fixed(name, expected)").
func fixed(dec *codec.StreamDecoder, name, expected string) error {
	got, err := dec.Value(name)
	if err != nil {
		return err
	}
	if got != expected {
		return &codec.PathError{Path: dec.Path() + "/" + name, Err: fmt.Errorf("%w: want %q, got %q", ErrInvalidValue, expected, got)}
	}
	return nil
}

// ifixed is fixed's case-insensitive variant.
func ifixed(dec *codec.StreamDecoder, name, expected string) error {
	got, err := dec.Value(name)
	if err != nil {
		return err
	}
	if !strings.EqualFold(got, expected) {
		return &codec.PathError{Path: dec.Path() + "/" + name, Err: fmt.Errorf("%w: want %q, got %q", ErrInvalidValue, expected, got)}
	}
	return nil
}

// year9999Sentinel is the certificate-validity convention for "no
// expiry" (§4.6 Date/time).
const year9999Sentinel = "9999"

// ParseDateTime accepts RFC 3339 and the compact certificate-validity
// form YYYYMMDDHHMMSS[±HHMM|Z] (§4.6). A year-9999 sentinel decodes to a
// nil time, meaning "absent".
func ParseDateTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if strings.HasPrefix(s, year9999Sentinel) {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	for _, layout := range []string{"20060102150405Z0700", "20060102150405Z"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("records: unparseable date/time %q", s)
}

// FormatDateTime renders t as RFC 3339, or the year-9999 sentinel when t
// is nil (§4.6 "the year 9999 sentinel decodes to absent").
func FormatDateTime(t *time.Time) string {
	if t == nil {
		return year9999Sentinel + "-12-31T23:59:59Z"
	}
	return t.UTC().Format(time.RFC3339)
}

// matchCodeCaseInsensitive matches a code against a system's known set,
// case-insensitively by URL (§4.6 "Code systems").
func matchCodeCaseInsensitive(system, code string, known map[string][]string) (string, error) {
	for url, codes := range known {
		if !strings.EqualFold(url, system) {
			continue
		}
		for _, c := range codes {
			if strings.EqualFold(c, code) {
				return c, nil
			}
		}
		return "", fmt.Errorf("%w: %s#%s", ErrInvalidValue, system, code)
	}
	return "", fmt.Errorf("%w: unknown code system %s", ErrInvalidValue, system)
}
