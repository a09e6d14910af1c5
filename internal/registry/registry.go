// Package registry stores helpers per kind and arbitrates between helpers
// registered under the same key.
package registry

import (
	"fmt"
	"slices"
	"sync"

	"github.com/petrijr/weft/pkg/api"
)

// ConflictFunc is called when a registration conflicts with an existing one.
type ConflictFunc func(d api.Diagnostic)

// Registry holds the registered entries of every kind.
type Registry struct {
	mu     sync.RWMutex
	byKind map[api.Kind][]api.Entry
	next   map[api.Kind]int
	kinds  []api.Kind
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		byKind: make(map[api.Kind][]api.Entry),
		next:   make(map[api.Kind]int),
	}
}

// Validate checks the shape of h for registration under kind.
func Validate(h api.Helper, kind api.Kind, errf api.ErrorFactory) error {
	switch {
	case kind == "":
		return errf(api.CodeValidation, fmt.Sprintf("helper %q has no kind", h.Key))
	case h.Key == "":
		return errf(api.CodeValidation, fmt.Sprintf("helper of kind %q has an empty key", kind))
	case h.Kind != kind:
		return errf(api.CodeValidation, fmt.Sprintf("helper %q declares kind %q but was registered as %q", h.Key, h.Kind, kind))
	case h.Apply == nil:
		return errf(api.CodeValidation, fmt.Sprintf("helper %q has no apply function", h.Key))
	case !h.Mode.Valid():
		return errf(api.CodeValidation, fmt.Sprintf("helper %q has unknown mode %q", h.Key, h.Mode))
	case slices.Contains(h.DependsOn, h.Key):
		return errf(api.CodeValidation, fmt.Sprintf("helper %q depends on itself", h.Key))
	}
	return nil
}

// Register adds h under kind.
//
// Any number of extend (and merge) helpers may share a key. An override
// removes every earlier helper for its key; a second override for the same key
// is a conflict: flagConflict is called, an error is returned and nothing is
// added. Extend helpers registered after an override layer on top of it.
func (r *Registry) Register(h api.Helper, kind api.Kind, flagConflict ConflictFunc, errf api.ErrorFactory) (api.Entry, error) {
	if h.Mode == "" {
		h.Mode = api.ModeExtend
	}
	if err := Validate(h, kind, errf); err != nil {
		return api.Entry{}, err
	}
	h.DependsOn = slices.Clone(h.DependsOn)

	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.byKind[kind]
	if h.Mode == api.ModeOverride {
		for _, e := range entries {
			if e.Helper.Key == h.Key && e.Helper.Mode == api.ModeOverride {
				msg := fmt.Sprintf("helper %q of kind %q is already overridden by %s", h.Key, kind, e.ID)
				if flagConflict != nil {
					flagConflict(api.Diagnostic{
						Type:     api.DiagnosticConflict,
						Key:      h.Key,
						Kind:     kind,
						Message:  msg,
						HelperID: e.ID,
						Origin:   h.Origin,
					})
				}
				return api.Entry{}, errf(api.CodeValidation, msg)
			}
		}
		entries = slices.DeleteFunc(slices.Clone(entries), func(e api.Entry) bool {
			return e.Helper.Key == h.Key
		})
	}

	if _, seen := r.byKind[kind]; !seen {
		r.kinds = append(r.kinds, kind)
	}

	idx := r.next[kind]
	r.next[kind] = idx + 1
	entry := api.Entry{
		ID:     fmt.Sprintf("%s:%s#%d", kind, h.Key, idx),
		Index:  idx,
		Helper: h,
	}
	r.byKind[kind] = append(entries, entry)
	return entry, nil
}

// Entries returns a copy of the entries registered under kind, in
// registration order.
func (r *Registry) Entries(kind api.Kind) []api.Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.byKind[kind])
}

// Kinds returns every kind that has seen a registration, in first-seen order.
func (r *Registry) Kinds() []api.Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.kinds)
}

// Keys returns the distinct keys registered under kind.
func (r *Registry) Keys(kind api.Kind) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var keys []string
	for _, e := range r.byKind[kind] {
		if !slices.Contains(keys, e.Helper.Key) {
			keys = append(keys, e.Helper.Key)
		}
	}
	return keys
}
