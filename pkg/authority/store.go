package authority

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/capiscio/hap-core/pkg/claim"
	"github.com/capiscio/hap-core/pkg/protocol"
)

// Common errors returned by claim stores.
var (
	ErrClaimNotFound  = errors.New("claim not found")
	ErrClaimExists    = errors.New("claim already exists")
	ErrAlreadyRevoked = errors.New("claim already revoked")
	ErrInvalidReason  = errors.New("invalid revocation reason")
)

// StoredClaim is a claim as the VA keeps it.
type StoredClaim struct {
	Claim   *claim.Claim `json:"claim"`
	JWS     string       `json:"jws"`
	Compact string       `json:"compact,omitempty"`

	Revoked          bool                      `json:"revoked,omitempty"`
	RevocationReason protocol.RevocationReason `json:"revocationReason,omitempty"`
	RevokedAt        *time.Time                `json:"revokedAt,omitempty"`
}

// Store is the interface for a VA claim store.
type Store interface {
	// Put records a newly issued claim. Ids are never reused.
	Put(sc *StoredClaim) error

	// Get returns the stored claim for id.
	Get(id string) (*StoredClaim, error)

	// Revoke marks id revoked. Revocation is terminal.
	Revoke(id string, reason protocol.RevocationReason, at time.Time) (*StoredClaim, error)
}

// MemoryStore implements Store in memory.
type MemoryStore struct {
	mu     sync.RWMutex
	claims map[string]*StoredClaim
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{claims: make(map[string]*StoredClaim)}
}

// Put records a claim.
func (s *MemoryStore) Put(sc *StoredClaim) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.put(sc)
}

func (s *MemoryStore) put(sc *StoredClaim) error {
	if sc == nil || sc.Claim == nil || sc.Claim.ID == "" {
		return errors.New("stored claim without id")
	}
	if _, ok := s.claims[sc.Claim.ID]; ok {
		return fmt.Errorf("%w: %s", ErrClaimExists, sc.Claim.ID)
	}
	cp := *sc
	s.claims[sc.Claim.ID] = &cp
	return nil
}

// Get returns a copy of the stored claim.
func (s *MemoryStore) Get(id string) (*StoredClaim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sc, ok := s.claims[id]
	if !ok {
		return nil, ErrClaimNotFound
	}
	cp := *sc
	return &cp, nil
}

// Revoke marks a claim revoked.
func (s *MemoryStore) Revoke(id string, reason protocol.RevocationReason, at time.Time) (*StoredClaim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revoke(id, reason, at)
}

func (s *MemoryStore) revoke(id string, reason protocol.RevocationReason, at time.Time) (*StoredClaim, error) {
	sc, ok := s.claims[id]
	if !ok {
		return nil, ErrClaimNotFound
	}
	if sc.Revoked {
		return nil, ErrAlreadyRevoked
	}

	sc.Revoked = true
	sc.RevocationReason = reason
	sc.RevokedAt = &at

	cp := *sc
	return &cp, nil
}

// storeData is the serialized store format.
type storeData struct {
	UpdatedAt time.Time      `json:"updatedAt"`
	Claims    []*StoredClaim `json:"claims"`
}

// FileStore implements Store in memory, persisted to a JSON file after
// every change.
type FileStore struct {
	mem  *MemoryStore
	path string
	now  func() time.Time
}

// NewFileStore opens (or creates) the store at path.
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	s := &FileStore{mem: NewMemoryStore(), path: path, now: time.Now}
	if err := s.load(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return s, nil
}

// Put records a claim and persists the store. A claim that cannot be
// persisted is not kept.
func (s *FileStore) Put(sc *StoredClaim) error {
	s.mem.mu.Lock()
	defer s.mem.mu.Unlock()

	if err := s.mem.put(sc); err != nil {
		return err
	}
	if err := s.save(); err != nil {
		delete(s.mem.claims, sc.Claim.ID)
		return err
	}
	return nil
}

// Get returns the stored claim for id.
func (s *FileStore) Get(id string) (*StoredClaim, error) {
	return s.mem.Get(id)
}

// Revoke marks a claim revoked and persists the store. If the store
// cannot be written the claim stays unrevoked.
func (s *FileStore) Revoke(id string, reason protocol.RevocationReason, at time.Time) (*StoredClaim, error) {
	s.mem.mu.Lock()
	defer s.mem.mu.Unlock()

	var prev StoredClaim
	if cur, ok := s.mem.claims[id]; ok {
		prev = *cur
	}

	sc, err := s.mem.revoke(id, reason, at)
	if err != nil {
		return nil, err
	}
	if err := s.save(); err != nil {
		s.mem.claims[id] = &prev
		return nil, err
	}
	return sc, nil
}

func (s *FileStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}

	var stored storeData
	if err := json.Unmarshal(data, &stored); err != nil {
		return fmt.Errorf("claim store %s is corrupt: %w", s.path, err)
	}

	for _, sc := range stored.Claims {
		if err := s.mem.put(sc); err != nil {
			return fmt.Errorf("claim store %s: %w", s.path, err)
		}
	}
	return nil
}

// save writes the store atomically. Callers hold the write lock.
func (s *FileStore) save() error {
	stored := storeData{
		UpdatedAt: s.now().UTC(),
		Claims:    make([]*StoredClaim, 0, len(s.mem.claims)),
	}
	for _, sc := range s.mem.claims {
		stored.Claims = append(stored.Claims, sc)
	}
	sort.Slice(stored.Claims, func(i, j int) bool { return stored.Claims[i].Claim.ID < stored.Claims[j].Claim.ID })

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal claim store: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write claim store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace claim store: %w", err)
	}
	return nil
}
