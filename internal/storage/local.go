package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidName is returned for tenant ids or tokens that are not a single
// path element.
var ErrInvalidName = errors.New("invalid archive name")

// Local stores archives as <root>/<tenant_id>/<token>.zip.
type Local struct {
	root string
}

func NewLocal(root string) *Local {
	return &Local{root: filepath.Clean(root)}
}

func (l *Local) Root() string { return l.root }

// Path returns where the archive for a job lives.
func (l *Local) Path(tenantID, token string) (string, error) {
	if err := checkElement(tenantID); err != nil {
		return "", err
	}
	if err := checkElement(token); err != nil {
		return "", err
	}
	return filepath.Join(l.root, tenantID, token+".zip"), nil
}

// Create opens a new archive file for writing. It fails if the file already
// exists so two jobs can never share an output.
func (l *Local) Create(tenantID, token string) (*os.File, error) {
	p, err := l.Path(tenantID, token)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return nil, fmt.Errorf("create tenant backup dir: %w", err)
	}
	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return nil, fmt.Errorf("create archive %s: %w", p, err)
	}
	return f, nil
}

// Open opens a finished archive. The returned error wraps os.ErrNotExist
// when the file is gone.
func (l *Local) Open(path string) (*os.File, os.FileInfo, error) {
	if !l.contains(path) {
		return nil, nil, fmt.Errorf("open archive %s: %w", path, ErrInvalidName)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open archive: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("stat archive: %w", err)
	}
	return f, info, nil
}

// Remove deletes an archive. A missing file is not an error.
func (l *Local) Remove(path string) error {
	if path == "" {
		return nil
	}
	if !l.contains(path) {
		return fmt.Errorf("remove archive %s: %w", path, ErrInvalidName)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove archive: %w", err)
	}
	return nil
}

func (l *Local) contains(path string) bool {
	rel, err := filepath.Rel(l.root, filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

func checkElement(s string) error {
	if s == "" || s == "." || s == ".." || strings.ContainsAny(s, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidName, s)
	}
	return nil
}
