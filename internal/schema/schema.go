package schema

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

type FieldType string

const (
	FieldText        FieldType = "text"
	FieldNumber      FieldType = "number"
	FieldSelect      FieldType = "select"
	FieldMultiSelect FieldType = "multiselect"
	FieldDate        FieldType = "date"
	FieldRating      FieldType = "rating"
)

// Standard field keys. Three lead every category schema, notes closes it.
// Their keys and positions are fixed; only the required flag of notes is
// user-editable.
const (
	KeySummary  = "summary"
	KeyTime     = "time"
	KeyDuration = "duration"
	KeyNotes    = "notes"
)

var (
	ErrUnknownCategory = errors.New("unknown category")
	ErrProtectedField  = errors.New("standard fields cannot be removed or renamed")
	ErrDuplicateKey    = errors.New("duplicate field key")
)

type FieldSchema struct {
	Key         string    `json:"key"`
	Label       string    `json:"label"`
	Type        FieldType `json:"type"`
	Required    bool      `json:"required"`
	Options     []string  `json:"options,omitempty"`
	Unit        string    `json:"unit,omitempty"`
	Placeholder string    `json:"placeholder,omitempty"`
}

// Registry maps category codes to ordered field lists. Defaults are
// built in; user edits are kept as overrides and persisted by the caller.
type Registry struct {
	mu        sync.RWMutex
	overrides map[string][]FieldSchema
}

func NewRegistry(overrides map[string][]FieldSchema) *Registry {
	cp := make(map[string][]FieldSchema, len(overrides))
	for cat, fields := range overrides {
		cp[cat] = cloneFields(fields)
	}
	return &Registry{overrides: cp}
}

func (r *Registry) Get(category string) ([]FieldSchema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if fields, ok := r.overrides[category]; ok {
		return cloneFields(fields), nil
	}
	if fields, ok := defaultSchemas[category]; ok {
		return cloneFields(fields), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, category)
}

// Set replaces a category's field list. The three leading standard
// fields and the trailing notes field must be present in their fixed
// positions with their keys untouched.
func (r *Registry) Set(category string, fields []FieldSchema) error {
	if _, ok := defaultSchemas[category]; !ok {
		r.mu.RLock()
		_, custom := r.overrides[category]
		r.mu.RUnlock()
		if !custom {
			return fmt.Errorf("%w: %q", ErrUnknownCategory, category)
		}
	}
	if err := validateFields(fields); err != nil {
		return err
	}
	r.mu.Lock()
	r.overrides[category] = cloneFields(fields)
	r.mu.Unlock()
	return nil
}

func (r *Registry) ResetToDefault(category string) error {
	if _, ok := defaultSchemas[category]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
	r.mu.Lock()
	delete(r.overrides, category)
	r.mu.Unlock()
	return nil
}

// Categories returns all known category codes, sorted.
func (r *Registry) Categories() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{}, len(defaultSchemas)+len(r.overrides))
	for cat := range defaultSchemas {
		seen[cat] = struct{}{}
	}
	for cat := range r.overrides {
		seen[cat] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for cat := range seen {
		out = append(out, cat)
	}
	sort.Strings(out)
	return out
}

// Overrides returns the user-edited schemas for persistence.
func (r *Registry) Overrides() map[string][]FieldSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cp := make(map[string][]FieldSchema, len(r.overrides))
	for cat, fields := range r.overrides {
		cp[cat] = cloneFields(fields)
	}
	return cp
}

func validateFields(fields []FieldSchema) error {
	if len(fields) < 4 {
		return ErrProtectedField
	}
	head := []string{KeySummary, KeyTime, KeyDuration}
	for i, key := range head {
		if fields[i].Key != key {
			return ErrProtectedField
		}
	}
	if fields[len(fields)-1].Key != KeyNotes {
		return ErrProtectedField
	}
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		key := strings.TrimSpace(f.Key)
		if key == "" {
			return fmt.Errorf("field key is empty")
		}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateKey, key)
		}
		seen[key] = struct{}{}
	}
	return nil
}

func cloneFields(fields []FieldSchema) []FieldSchema {
	out := make([]FieldSchema, len(fields))
	copy(out, fields)
	for i := range out {
		if len(out[i].Options) > 0 {
			opts := make([]string, len(out[i].Options))
			copy(opts, out[i].Options)
			out[i].Options = opts
		}
	}
	return out
}
