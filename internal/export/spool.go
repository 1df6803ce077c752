package export

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

// spool buffers one module's output on disk so neither the JSON array nor
// the CSV rows are held in memory.
type spool struct {
	recordsFile *os.File
	records     *bufio.Writer
	rowsFile    *os.File
	rows        *bufio.Writer
	rowsEnc     *json.Encoder
	columns     map[string]struct{}
	count       int
}

func newSpool(dir, module string) (*spool, error) {
	recordsFile, err := os.CreateTemp(dir, module+"-records-*.json")
	if err != nil {
		return nil, fmt.Errorf("create records spool: %w", err)
	}
	rowsFile, err := os.CreateTemp(dir, module+"-rows-*.jsonl")
	if err != nil {
		recordsFile.Close()
		os.Remove(recordsFile.Name())
		return nil, fmt.Errorf("create rows spool: %w", err)
	}

	s := &spool{
		recordsFile: recordsFile,
		records:     bufio.NewWriter(recordsFile),
		rowsFile:    rowsFile,
		rows:        bufio.NewWriter(rowsFile),
		columns:     make(map[string]struct{}),
	}
	s.rowsEnc = json.NewEncoder(s.rows)
	if err := s.records.WriteByte('['); err != nil {
		s.discard()
		return nil, fmt.Errorf("write records spool: %w", err)
	}
	return s, nil
}

func (s *spool) add(record map[string]any, row map[string]string) error {
	if s.count > 0 {
		if err := s.records.WriteByte(','); err != nil {
			return fmt.Errorf("write records spool: %w", err)
		}
	}
	b, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	if _, err := s.records.Write(b); err != nil {
		return fmt.Errorf("write records spool: %w", err)
	}
	if err := s.rowsEnc.Encode(row); err != nil {
		return fmt.Errorf("write rows spool: %w", err)
	}
	for k := range row {
		s.columns[k] = struct{}{}
	}
	s.count++
	return nil
}

// finish flushes and closes both files and returns the module result.
func (s *spool) finish(module string, filter AppliedFilter) (*ModuleResult, error) {
	if err := s.records.WriteByte(']'); err != nil {
		s.discard()
		return nil, fmt.Errorf("write records spool: %w", err)
	}
	for _, w := range []*bufio.Writer{s.records, s.rows} {
		if err := w.Flush(); err != nil {
			s.discard()
			return nil, fmt.Errorf("flush spool: %w", err)
		}
	}
	for _, f := range []*os.File{s.recordsFile, s.rowsFile} {
		if err := f.Close(); err != nil {
			s.discard()
			return nil, fmt.Errorf("close spool: %w", err)
		}
	}

	return &ModuleResult{
		Module:      module,
		Count:       s.count,
		Filter:      filter,
		Columns:     orderColumns(s.columns),
		recordsPath: s.recordsFile.Name(),
		rowsPath:    s.rowsFile.Name(),
	}, nil
}

func (s *spool) discard() {
	s.recordsFile.Close()
	s.rowsFile.Close()
	os.Remove(s.recordsFile.Name())
	os.Remove(s.rowsFile.Name())
}

// orderColumns sorts columns alphabetically with id first.
func orderColumns(set map[string]struct{}) []string {
	cols := make([]string, 0, len(set))
	_, hasID := set["id"]
	for k := range set {
		if k != "id" {
			cols = append(cols, k)
		}
	}
	sort.Strings(cols)
	if hasID {
		cols = append([]string{"id"}, cols...)
	}
	return cols
}

// ModuleResult is one module's spooled export. Callers must Cleanup.
type ModuleResult struct {
	Module  string
	Count   int
	Filter  AppliedFilter
	Columns []string

	recordsPath string
	rowsPath    string
}

func (r *ModuleResult) ModuleName() string { return r.Module }
func (r *ModuleResult) RecordCount() int   { return r.Count }
func (r *ModuleResult) AppliedFilter() any { return r.Filter }

// WriteJSON copies the sanitized record array to w.
func (r *ModuleResult) WriteJSON(w io.Writer) error {
	f, err := os.Open(r.recordsPath)
	if err != nil {
		return fmt.Errorf("open records spool: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("copy records: %w", err)
	}
	return nil
}

// WriteCSV writes the header and one human-formatted row per record.
func (r *ModuleResult) WriteCSV(w io.Writer) error {
	f, err := os.Open(r.rowsPath)
	if err != nil {
		return fmt.Errorf("open rows spool: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(w)
	if err := cw.Write(r.Columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	dec := json.NewDecoder(bufio.NewReader(f))
	line := make([]string, len(r.Columns))
	for {
		var row map[string]string
		if err := dec.Decode(&row); err == io.EOF {
			break
		} else if err != nil {
			return fmt.Errorf("read rows spool: %w", err)
		}
		for i, col := range r.Columns {
			line[i] = row[col]
		}
		if err := cw.Write(line); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// Cleanup removes the spool files.
func (r *ModuleResult) Cleanup() error {
	var firstErr error
	for _, p := range []string{r.recordsPath, r.rowsPath} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// spoolDir returns dir, or the system temp dir when dir is empty.
func spoolDir(dir string) string {
	if dir == "" {
		return os.TempDir()
	}
	return filepath.Clean(dir)
}
