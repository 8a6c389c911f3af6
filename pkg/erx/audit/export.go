package audit

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrEmptyBundle is returned by GeneratePack when no entries match the
// requested time range.
var ErrEmptyBundle = errors.New("audit: no entries in requested range")

// ExportRequest defines the time window to export (§9, supplementing
// spec.md with the teacher's evidence-pack convention).
type ExportRequest struct {
	StartTime time.Time
	EndTime   time.Time
}

// Exporter builds zip evidence packs from the audit store, grounded on the
// teacher's audit.Exporter/GeneratePack.
type Exporter struct {
	store *Store
}

// NewExporter creates an Exporter backed by store.
func NewExporter(store *Store) *Exporter {
	return &Exporter{store: store}
}

// GeneratePack zips every matching entry plus a manifest (chain head,
// entry count, period) and returns the archive bytes and its checksum.
func (e *Exporter) GeneratePack(req ExportRequest) ([]byte, string, error) {
	entries := e.store.All()
	var filtered []*Entry
	for _, entry := range entries {
		if !req.StartTime.IsZero() && entry.Timestamp.Before(req.StartTime) {
			continue
		}
		if !req.EndTime.IsZero() && entry.Timestamp.After(req.EndTime) {
			continue
		}
		filtered = append(filtered, entry)
	}
	if len(filtered) == 0 {
		return nil, "", ErrEmptyBundle
	}

	eventsJSON, err := json.MarshalIndent(filtered, "", "  ")
	if err != nil {
		return nil, "", fmt.Errorf("audit: marshal entries: %w", err)
	}

	manifest := map[string]any{
		"entry_count": len(filtered),
		"chain_head":  e.store.ChainHead(),
		"period": map[string]any{
			"start": req.StartTime,
			"end":   req.EndTime,
		},
	}
	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, "", fmt.Errorf("audit: marshal manifest: %w", err)
	}

	buf := new(bytes.Buffer)
	w := zip.NewWriter(buf)

	if err := writeZipFile(w, "events.json", eventsJSON); err != nil {
		return nil, "", err
	}
	if err := writeZipFile(w, "manifest.json", manifestJSON); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("audit: close zip: %w", err)
	}

	zipBytes := buf.Bytes()
	hash := sha256.Sum256(zipBytes)
	return zipBytes, hex.EncodeToString(hash[:]), nil
}

func writeZipFile(w *zip.Writer, name string, data []byte) error {
	f, err := w.Create(name)
	if err != nil {
		return fmt.Errorf("audit: create zip entry %s: %w", name, err)
	}
	_, err = f.Write(data)
	return err
}
