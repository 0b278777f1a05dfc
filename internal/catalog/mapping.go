package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"quiz-checkout/internal/model"
)

// Mapping is the precomputed handle → variant ID table per store.
// It is regenerated offline and treated as a best-effort cache: the live
// storefront is authoritative, and entries found stale are forgotten.
type Mapping struct {
	mu          sync.RWMutex
	stores      map[string]map[string]string
	generatedAt time.Time
}

type mappingFile struct {
	SchemaVersion string                       `json:"schema_version"`
	GeneratedAt   time.Time                    `json:"generated_at"`
	Stores        map[string]map[string]string `json:"stores"`
}

// NewMapping builds a mapping from storeID → handle → variantID.
func NewMapping(stores map[string]map[string]string) *Mapping {
	m := &Mapping{stores: make(map[string]map[string]string, len(stores))}
	for storeID, handles := range stores {
		inner := make(map[string]string, len(handles))
		for h, v := range handles {
			inner[h] = model.NumericID(v)
		}
		m.stores[storeID] = inner
	}
	return m
}

// LoadMapping reads a mapping file. An empty path yields an empty mapping so
// every lookup goes live.
func LoadMapping(path string) (*Mapping, error) {
	if path == "" {
		return NewMapping(nil), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading variant mapping: %w", err)
	}

	var file mappingFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing variant mapping %s: %w", path, err)
	}
	if err := CheckSchemaVersion(file.SchemaVersion); err != nil {
		return nil, fmt.Errorf("variant mapping %s: %w", path, err)
	}

	m := NewMapping(file.Stores)
	m.generatedAt = file.GeneratedAt
	return m, nil
}

// FromCatalog builds a mapping from the variant IDs embedded in catalog
// store mappings. Used when no separate mapping file is configured.
func FromCatalog(products []model.CanonicalProduct) *Mapping {
	stores := make(map[string]map[string]string)
	for _, p := range products {
		for _, sm := range p.Stores {
			if sm.VariantID == "" {
				continue
			}
			if stores[sm.StoreID] == nil {
				stores[sm.StoreID] = make(map[string]string)
			}
			if _, exists := stores[sm.StoreID][p.Handle]; !exists {
				stores[sm.StoreID][p.Handle] = sm.VariantID
			}
		}
	}
	return NewMapping(stores)
}

// Lookup returns the mapped variant ID for handle on storeID.
func (m *Mapping) Lookup(storeID, handle string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.stores[storeID][handle]
	return v, ok && v != ""
}

// Forget removes an entry known to be stale. The file on disk is untouched.
func (m *Mapping) Forget(storeID, handle string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.stores[storeID], handle)
}

// Snapshot returns a copy of the table.
func (m *Mapping) Snapshot() map[string]map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]map[string]string, len(m.stores))
	for storeID, handles := range m.stores {
		inner := make(map[string]string, len(handles))
		for h, v := range handles {
			inner[h] = v
		}
		out[storeID] = inner
	}
	return out
}

// GeneratedAt is when the offline job produced the file (zero if unknown).
func (m *Mapping) GeneratedAt() time.Time {
	return m.generatedAt
}
