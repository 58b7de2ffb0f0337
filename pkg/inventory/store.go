package inventory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store persists inventories
type Store interface {
	// Load returns the stored inventory, or an empty one when nothing has
	// been stored yet
	Load(ctx context.Context) (*Inventory, error)

	// Save replaces the stored inventory
	Save(ctx context.Context, inv *Inventory) error

	// Close releases the store
	Close() error
}

// DefaultStoreURL is the store used when none is configured
const DefaultStoreURL = "file:clustergraph.state.json"

// OpenStore opens a store from a URL.
// Supported:
//   - file:<path>   JSON file, e.g. file:clustergraph.state.json
//   - sqlite:<dsn>  sqlite database, e.g. sqlite:./clustergraph.db or sqlite::memory:
//
// A URL without a scheme is treated as a file path.
func OpenStore(url string) (Store, error) {
	switch {
	case url == "":
		return OpenStore(DefaultStoreURL)
	case strings.HasPrefix(url, "file:"):
		path := strings.TrimPrefix(url, "file:")
		if path == "" {
			return nil, fmt.Errorf("file store requires a path")
		}
		return NewFileStore(path), nil
	case strings.HasPrefix(url, "sqlite:"):
		return OpenSQLStore(strings.TrimPrefix(url, "sqlite:"))
	case strings.Contains(url, "://"):
		return nil, fmt.Errorf("unsupported state store: %s", url)
	default:
		return NewFileStore(url), nil
	}
}

// FileStore keeps the inventory in a JSON file. The file holds secrets and
// is written with mode 0600.
type FileStore struct {
	path string
}

// NewFileStore creates a store backed by path
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the inventory file
func (s *FileStore) Load(_ context.Context) (*Inventory, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return NewInventory(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	tracker := NewTracker()
	if err := tracker.Deserialize(data); err != nil {
		return nil, err
	}
	return tracker.GetInventory(), nil
}

// Save writes the inventory file through a temporary file in the same
// directory
func (s *FileStore) Save(_ context.Context, inv *Inventory) error {
	data, err := NewTrackerFromInventory(inv).Serialize()
	if err != nil {
		return fmt.Errorf("failed to serialize inventory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), "."+filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	return nil
}

// Close implements Store
func (s *FileStore) Close() error { return nil }
