// Package catalog loads the unified product catalog and the offline
// handle → variant mapping table from local JSON files.
package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"golang.org/x/mod/semver"
	"golang.org/x/sync/singleflight"

	"quiz-checkout/internal/model"
)

// SupportedMajor is the only schema major version this build reads.
const SupportedMajor = "v1"

// Loader reads the catalog file once and memoizes it until Invalidate.
type Loader struct {
	path   string
	logger *slog.Logger

	mu       sync.RWMutex
	loaded   bool
	products []model.CanonicalProduct
	byHandle map[string]int

	reload singleflight.Group
}

// NewLoader creates a loader for the catalog at path. Nothing is read until
// the first call to All, ByHandle or Load.
func NewLoader(path string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{path: path, logger: logger}
}

// catalogFile is the on-disk format. A bare JSON array of products is also
// accepted for files produced by older export scripts.
type catalogFile struct {
	SchemaVersion string                   `json:"schema_version"`
	Products      []model.CanonicalProduct `json:"products"`
}

// Load reads and validates the catalog file, replacing any cached copy.
// app.Build calls this at startup so a malformed file fails fast.
func (l *Loader) Load() error {
	products, err := readCatalog(l.path)
	if err != nil {
		return err
	}

	index := make(map[string]int, len(products))
	for i, p := range products {
		index[p.Handle] = i
	}

	l.mu.Lock()
	l.products = products
	l.byHandle = index
	l.loaded = true
	l.mu.Unlock()

	l.logger.Info("catalog loaded",
		slog.String("path", l.path),
		slog.Int("products", len(products)),
	)
	return nil
}

// All returns every canonical product, loading the file on first use.
func (l *Loader) All() ([]model.CanonicalProduct, error) {
	if err := l.ensureLoaded(); err != nil {
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]model.CanonicalProduct(nil), l.products...), nil
}

// ByHandle returns the product with handle or a not-found error.
func (l *Loader) ByHandle(handle string) (model.CanonicalProduct, error) {
	if err := l.ensureLoaded(); err != nil {
		return model.CanonicalProduct{}, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	i, ok := l.byHandle[handle]
	if !ok {
		return model.CanonicalProduct{}, model.NewNotFoundError(fmt.Sprintf("product %q", handle))
	}
	return l.products[i], nil
}

// Invalidate drops the cached catalog; the next read reloads the file.
func (l *Loader) Invalidate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loaded = false
	l.products = nil
	l.byHandle = nil
}

func (l *Loader) ensureLoaded() error {
	l.mu.RLock()
	loaded := l.loaded
	l.mu.RUnlock()
	if loaded {
		return nil
	}

	// Readers racing after Invalidate share one reload.
	_, err, _ := l.reload.Do(l.path, func() (any, error) {
		l.mu.RLock()
		loaded := l.loaded
		l.mu.RUnlock()
		if loaded {
			return nil, nil
		}
		return nil, l.Load()
	})
	return err
}

func readCatalog(path string) ([]model.CanonicalProduct, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}

	var products []model.CanonicalProduct
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &products); err != nil {
			return nil, fmt.Errorf("parsing catalog %s: %w", path, err)
		}
	} else {
		var file catalogFile
		if err := json.Unmarshal(trimmed, &file); err != nil {
			return nil, fmt.Errorf("parsing catalog %s: %w", path, err)
		}
		if err := CheckSchemaVersion(file.SchemaVersion); err != nil {
			return nil, fmt.Errorf("catalog %s: %w", path, err)
		}
		products = file.Products
	}

	seen := make(map[string]bool, len(products))
	for i := range products {
		p := &products[i]
		p.Handle = strings.TrimSpace(p.Handle)
		if p.Handle == "" {
			return nil, fmt.Errorf("catalog %s: product %d has no handle", path, i)
		}
		if seen[p.Handle] {
			return nil, fmt.Errorf("catalog %s: duplicate handle %q", path, p.Handle)
		}
		seen[p.Handle] = true
	}

	return products, nil
}

// CheckSchemaVersion accepts an empty version (legacy files) or any semver
// with the supported major version.
func CheckSchemaVersion(v string) error {
	if v == "" {
		return nil
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return fmt.Errorf("invalid schema_version %q", v)
	}
	if semver.Major(v) != SupportedMajor {
		return fmt.Errorf("unsupported schema_version %s (want %s.x)", v, SupportedMajor)
	}
	return nil
}
