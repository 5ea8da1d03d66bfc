// Package audit holds the declarative data quality checks and the
// machinery that runs them against a branch.
package audit

import (
	"sync"

	"lakegate/internal/domain"
)

// Registry holds named audit checks in registration order. Safe for
// concurrent use.
type Registry struct {
	mu     sync.RWMutex
	order  []string
	checks map[string]domain.AuditCheck
}

// NewRegistry creates an empty check registry.
func NewRegistry() *Registry {
	return &Registry{checks: make(map[string]domain.AuditCheck)}
}

// Register adds a check to the registry. Returns a ValidationError for an
// incomplete definition and a ConflictError if a check with the same name
// is already registered.
func (r *Registry) Register(check domain.AuditCheck) error {
	if err := check.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.checks[check.Name]; exists {
		return domain.ErrConflict("check %q already registered", check.Name)
	}
	r.checks[check.Name] = check
	r.order = append(r.order, check.Name)
	return nil
}

// Get returns the named check, or a NotFoundError.
func (r *Registry) Get(name string) (domain.AuditCheck, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	check, ok := r.checks[name]
	if !ok {
		return domain.AuditCheck{}, domain.ErrNotFound("unknown check: %q", name)
	}
	return check, nil
}

// Resolve returns the named check's SQL rendered against tableRef, or a
// NotFoundError.
func (r *Registry) Resolve(name, tableRef string) (string, error) {
	check, err := r.Get(name)
	if err != nil {
		return "", err
	}
	return check.Render(tableRef), nil
}

// Names returns the check names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Checks returns all checks in registration order.
func (r *Registry) Checks() []domain.AuditCheck {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.AuditCheck, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.checks[name])
	}
	return out
}

// Len returns the number of registered checks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
