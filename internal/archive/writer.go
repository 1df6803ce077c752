package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
)

// SchemaVersion marks the archive layout for downstream tooling.
const SchemaVersion = "1.0"

// Fixed entry names.
const (
	ReadmeName     = "README.txt"
	ManifestName   = "manifest/manifest.json"
	FilesIndexName = "files/files_index.json"
)

var ErrClosed = errors.New("archive writer closed")

// Manifest describes an archive's provenance and scope.
type Manifest struct {
	JobToken      string    `json:"jobToken"`
	TenantID      string    `json:"tenantId"`
	TenantName    string    `json:"tenantName"`
	CreatedAt     time.Time `json:"createdAt"`
	CreatedBy     string    `json:"createdBy"`
	ExpiresAt     time.Time `json:"expiresAt"`
	Modules       []string  `json:"modules"`
	IncludeFiles  bool      `json:"includeFiles"`
	IncludePII    bool      `json:"includePII"`
	SchemaVersion string    `json:"schemaVersion"`
}

// ModuleOutput is one exported module ready to be written.
type ModuleOutput interface {
	ModuleName() string
	RecordCount() int
	AppliedFilter() any
	WriteJSON(w io.Writer) error
	WriteCSV(w io.Writer) error
}

// Summary is written to data/<module>/summary.json for every module.
type Summary struct {
	Module      string `json:"module"`
	RecordCount int    `json:"recordCount"`
	Filter      any    `json:"filter"`
}

// FilesIndex is the attachment index. Attachments are not exported yet so
// Files is always empty.
type FilesIndex struct {
	Files []string `json:"files"`
}

// Writer streams a backup archive. Entries are written in a fixed order:
// README, manifest, each module's data, then the files index.
type Writer struct {
	zw       *zip.Writer
	manifest Manifest
	closed   bool
}

// NewWriter starts an archive on w and writes the README and manifest.
func NewWriter(w io.Writer, manifest Manifest) (*Writer, error) {
	if manifest.SchemaVersion == "" {
		manifest.SchemaVersion = SchemaVersion
	}
	if manifest.Modules == nil {
		manifest.Modules = []string{}
	}

	aw := &Writer{zw: zip.NewWriter(w), manifest: manifest}

	if err := aw.writeEntry(ReadmeName, func(w io.Writer) error {
		_, err := io.WriteString(w, readme(manifest))
		return err
	}); err != nil {
		return nil, err
	}
	if err := aw.writeJSON(ManifestName, manifest); err != nil {
		return nil, err
	}
	return aw, nil
}

// AddModule writes records.json and records.csv when the module has records,
// and always writes summary.json.
func (aw *Writer) AddModule(m ModuleOutput) error {
	if aw.closed {
		return ErrClosed
	}
	dir := path.Join("data", m.ModuleName())

	if m.RecordCount() > 0 {
		if err := aw.writeEntry(path.Join(dir, "records.json"), m.WriteJSON); err != nil {
			return err
		}
		if err := aw.writeEntry(path.Join(dir, "records.csv"), m.WriteCSV); err != nil {
			return err
		}
	}

	return aw.writeJSON(path.Join(dir, "summary.json"), Summary{
		Module:      m.ModuleName(),
		RecordCount: m.RecordCount(),
		Filter:      m.AppliedFilter(),
	})
}

// Close writes the files index when requested and finalizes the zip. The
// archive is only complete once Close returns nil.
func (aw *Writer) Close() error {
	if aw.closed {
		return ErrClosed
	}
	aw.closed = true

	if aw.manifest.IncludeFiles {
		if err := aw.writeJSON(FilesIndexName, FilesIndex{Files: []string{}}); err != nil {
			return err
		}
	}
	if err := aw.zw.Close(); err != nil {
		return fmt.Errorf("finalize zip: %w", err)
	}
	return nil
}

func (aw *Writer) writeJSON(name string, v any) error {
	return aw.writeEntry(name, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	})
}

func (aw *Writer) writeEntry(name string, fn func(io.Writer) error) error {
	w, err := aw.zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: aw.manifest.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	if err := fn(w); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

func readme(m Manifest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Data export %s\n", m.JobToken)
	fmt.Fprintf(&b, "Company: %s (%s)\n", m.TenantName, m.TenantID)
	fmt.Fprintf(&b, "Created: %s\n", m.CreatedAt.UTC().Format(time.RFC3339))
	if !m.ExpiresAt.IsZero() {
		fmt.Fprintf(&b, "Available for download until: %s\n", m.ExpiresAt.UTC().Format(time.RFC3339))
	}
	b.WriteString(`
This archive contains your company data in two formats:

  data/<module>/records.json  Complete records as JSON, suitable for restoring
                              or importing into other systems. Identifiers are
                              kept as-is.
  data/<module>/records.csv   The same records formatted for spreadsheets.
                              References are shown by name and dates are
                              human readable.
  data/<module>/summary.json  Record count and the filter applied.

Modules without matching records only contain summary.json.
manifest/manifest.json describes when and by whom the export was made.
Passwords, tokens and API keys are never included.
`)
	if !m.IncludePII {
		b.WriteString("Personal data (emails, phone numbers, addresses, names) is masked.\n")
	}
	if m.IncludeFiles {
		b.WriteString("files/files_index.json lists attached files.\n")
	}
	return b.String()
}
