// Package trust provides a local store of pinned VA key sets.
// Pinned keys let a relying party verify compact records without network
// access; they are refreshed explicitly, never implicitly.
package trust

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/capiscio/hap-core/pkg/crypto"
)

// Common errors returned by this package.
var (
	ErrIssuerNotFound = errors.New("issuer not found in trust store")
	ErrInvalidKeySet  = errors.New("invalid key set")
)

// Store is the interface for a trust store.
type Store interface {
	// Pin stores the key set, replacing any set pinned for the same issuer.
	Pin(set *crypto.KeySet) error

	// Get retrieves the key set pinned for an issuer domain.
	Get(issuer string) (*crypto.KeySet, error)

	// List returns all pinned key sets, ordered by issuer.
	List() ([]crypto.KeySet, error)

	// Remove unpins an issuer.
	Remove(issuer string) error
}

// FileStore implements Store using one JSON file per issuer.
// Default location: ~/.hap/trust/
type FileStore struct {
	dir string
	mu  sync.RWMutex
}

// DefaultTrustDir returns the default trust store directory.
func DefaultTrustDir() string {
	if envPath := os.Getenv("HAP_TRUST_PATH"); envPath != "" {
		return envPath
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".hap/trust"
	}
	return filepath.Join(home, ".hap", "trust")
}

// NewFileStore creates a new file-based trust store.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		dir = DefaultTrustDir()
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create trust directory: %w", err)
	}

	return &FileStore{dir: dir}, nil
}

// Dir returns the directory backing the store.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) setPath(issuer string) string {
	return filepath.Join(s.dir, sanitizeFilename(issuer)+".json")
}

// Pin stores the key set. Every record must decode to an Ed25519 key.
func (s *FileStore) Pin(set *crypto.KeySet) error {
	if err := validate(set); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal key set: %w", err)
	}

	if err := os.WriteFile(s.setPath(set.Issuer), data, 0600); err != nil {
		return fmt.Errorf("failed to write key set: %w", err)
	}
	return nil
}

// Get retrieves the key set pinned for an issuer.
func (s *FileStore) Get(issuer string) (*crypto.KeySet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.read(s.setPath(issuer))
}

// List returns all pinned key sets, ordered by issuer.
func (s *FileStore) List() ([]crypto.KeySet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read trust directory: %w", err)
	}

	var sets []crypto.KeySet
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		set, err := s.read(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			continue // Skip unreadable files
		}
		sets = append(sets, *set)
	}

	sort.Slice(sets, func(i, j int) bool { return sets[i].Issuer < sets[j].Issuer })
	return sets, nil
}

// Remove unpins an issuer.
func (s *FileStore) Remove(issuer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.setPath(issuer)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return ErrIssuerNotFound
	}

	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to remove key set: %w", err)
	}
	return nil
}

func (s *FileStore) read(path string) (*crypto.KeySet, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, ErrIssuerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read key set: %w", err)
	}

	var set crypto.KeySet
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("failed to parse key set: %w", err)
	}
	return &set, nil
}

func validate(set *crypto.KeySet) error {
	if set == nil || set.Issuer == "" {
		return fmt.Errorf("%w: missing issuer", ErrInvalidKeySet)
	}
	if len(set.Keys) == 0 {
		return fmt.Errorf("%w: no keys", ErrInvalidKeySet)
	}
	for _, rec := range set.Keys {
		if rec.KeyID == "" {
			return fmt.Errorf("%w: key without kid", ErrInvalidKeySet)
		}
		if _, err := crypto.DecodePublicKey(rec); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidKeySet, err)
		}
	}
	return nil
}

// sanitizeFilename converts an issuer domain to a safe filename.
func sanitizeFilename(issuer string) string {
	var b strings.Builder
	for _, c := range []byte(issuer) {
		switch c {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			b.WriteByte('_')
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
