package storage

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"golang.org/x/exp/slices"
)

// InitialWatermark is the smallest candidate divisor in the search space and
// the watermark used when no usable persisted value exists.
const InitialWatermark int64 = 2

// ErrCorrupt is returned when a persisted artifact exists but cannot be
// decoded or holds a semantically invalid value.
var ErrCorrupt = errors.New("persisted state corrupt")

// Store defines the interface for coordinator persistence.
// All implementations must be thread-safe for concurrent access.
type Store interface {
	// LoadWatermark returns the persisted watermark.
	// A missing value is initialized to InitialWatermark and written back.
	// Returns an error wrapping ErrCorrupt if the stored value is unusable.
	LoadWatermark() (int64, error)

	// SaveWatermark replaces the persisted watermark.
	SaveWatermark(value int64) error

	// LoadLedger returns the persisted divisor ledger in append order.
	// A missing ledger yields an empty slice and no error.
	LoadLedger() ([]DivisorRecord, error)

	// SaveLedger replaces the persisted ledger with records.
	SaveLedger(records []DivisorRecord) error

	// Close releases any resources held by the store.
	Close() error
}

// Divisor is a claimed divisor of the target, kept as normalized base-10
// text so values of any magnitude survive persistence. It encodes as a bare
// JSON number and decodes from either a JSON number or a quoted integer.
type Divisor string

// ParseDivisor validates s as a positive base-10 integer and returns its
// normalized form.
func ParseDivisor(s string) (Divisor, error) {
	n, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return "", fmt.Errorf("divisor %q is not an integer", s)
	}
	if n.Sign() <= 0 {
		return "", fmt.Errorf("divisor %q must be positive", s)
	}
	return Divisor(n.String()), nil
}

// MarshalJSON encodes the divisor as a JSON number.
func (d Divisor) MarshalJSON() ([]byte, error) {
	if d == "" {
		return nil, errors.New("empty divisor")
	}
	return []byte(d), nil
}

// UnmarshalJSON accepts 17, "17" and arbitrarily long integer literals.
func (d *Divisor) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	v, err := ParseDivisor(s)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// String returns the decimal representation.
func (d Divisor) String() string { return string(d) }

// DivisorRecord is one entry in the append-only divisor ledger.
type DivisorRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Divisor   Divisor   `json:"divisor"`
	FoundBy   string    `json:"found_by"`
	Origin    string    `json:"origin"`
}

// MemoryStore implements Store with in-memory storage.
// Uses sync.RWMutex for thread-safe concurrent access.
type MemoryStore struct {
	ledger    []DivisorRecord
	watermark int64
	hasMark   bool
	mu        sync.RWMutex
}

// NewMemoryStore creates a new empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// LoadWatermark returns the stored watermark, initializing it on first use.
func (m *MemoryStore) LoadWatermark() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.hasMark {
		m.watermark = InitialWatermark
		m.hasMark = true
	}
	return m.watermark, nil
}

// SaveWatermark stores value.
func (m *MemoryStore) SaveWatermark(value int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.watermark = value
	m.hasMark = true
	return nil
}

// LoadLedger returns a copy of the stored ledger.
func (m *MemoryStore) LoadLedger() ([]DivisorRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return slices.Clone(m.ledger), nil
}

// SaveLedger stores a copy of records to prevent external modification.
func (m *MemoryStore) SaveLedger(records []DivisorRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ledger = slices.Clone(records)
	return nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
