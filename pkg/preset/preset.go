// Package preset is the variant preset catalog: named partial feature
// selections that pin choices for a product configuration.
package preset

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrInvalidCatalog is returned for catalogs that cannot be decoded
var ErrInvalidCatalog = errors.New("invalid preset catalog")

// Preset maps feature names to fixed values
type Preset map[string]bool

// Features returns the pinned feature names in sorted order
func (p Preset) Features() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Catalog resolves variant identifiers. Lookup is total: unknown
// identifiers resolve to an empty preset.
type Catalog interface {
	Lookup(variant string) Preset
	// Has reports whether the variant is registered
	Has(variant string) bool
}

// Registry is a concurrency-safe Catalog
type Registry struct {
	mu       sync.RWMutex
	variants map[string]Preset
}

// NewRegistry creates a registry holding copies of the given presets
func NewRegistry(variants map[string]Preset) *Registry {
	r := &Registry{variants: make(map[string]Preset, len(variants))}
	for id, p := range variants {
		r.Register(id, p)
	}
	return r
}

// Default returns the built-in catalog of the security-stack variants
func Default() *Registry {
	return NewRegistry(map[string]Preset{
		"V1": {"CAN": true, "AES_128": true},
		"V2": {"CAN_FD": true, "AES_256": true},
		"V3": {"SecOC_Protection": true},
	})
}

// Register adds or replaces a variant
func (r *Registry) Register(variant string, p Preset) {
	cp := make(Preset, len(p))
	for k, v := range p {
		cp[k] = v
	}
	r.mu.Lock()
	r.variants[variant] = cp
	r.mu.Unlock()
}

// Lookup returns a copy of the variant's preset, or an empty preset
func (r *Registry) Lookup(variant string) Preset {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p := r.variants[variant]
	cp := make(Preset, len(p))
	for k, v := range p {
		cp[k] = v
	}
	return cp
}

// Has reports whether the variant is registered
func (r *Registry) Has(variant string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.variants[variant]
	return ok
}

// Variants returns the registered identifiers in sorted order
func (r *Registry) Variants() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.variants))
	for id := range r.variants {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Load decodes a YAML catalog of the form
//
//	variants:
//	  V1: {CAN: true, AES_128: true}
func Load(data []byte) (*Registry, error) {
	var doc struct {
		Variants map[string]Preset `yaml:"variants"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	if doc.Variants == nil {
		return nil, fmt.Errorf("%w: no variants key", ErrInvalidCatalog)
	}
	return NewRegistry(doc.Variants), nil
}
