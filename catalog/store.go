package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/aluiziolira/catalog-harvester/models"
)

// ErrCorruptCatalog is returned when the persisted catalog cannot be decoded.
var ErrCorruptCatalog = errors.New("catalog: corrupt catalog file")

// Store persists the catalog as a JSON array on disk.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore returns a store backed by the file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the persisted catalog. A missing file is an empty catalog;
// any other failure is returned so the run can abort instead of merging
// against nothing.
func (s *Store) Load() ([]models.ProductRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []models.ProductRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read catalog %q: %w", s.path, err)
	}
	if len(data) == 0 {
		return []models.ProductRecord{}, nil
	}

	var records []models.ProductRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrCorruptCatalog, s.path, err)
	}
	return records, nil
}

// Save replaces the persisted catalog atomically.
func (s *Store) Save(records []models.ProductRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if records == nil {
		records = []models.ProductRecord{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".catalog-*.json")
	if err != nil {
		return fmt.Errorf("create temp catalog: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp catalog: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp catalog: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace catalog: %w", err)
	}
	return nil
}
