package config

import (
	"sync"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// Runtime holds the hot-swappable configuration consulted on every
// request. Handlers take the read side; the admin update verbs take the
// write side. Writes are rare.
type Runtime struct {
	mu sync.RWMutex

	pacing    PacingConfig
	admission AdmissionConfig
	include   map[string]struct{}
	exclude   map[string]struct{}

	logger zerolog.Logger
}

// NewRuntime seeds the runtime view from the static configuration.
func NewRuntime(cfg Config, logger zerolog.Logger) *Runtime {
	r := &Runtime{logger: logger}
	r.pacing = cfg.Pacing.Sanitize(logger)
	r.setAdmissionLocked(cfg.Admission)
	return r
}

func (r *Runtime) setAdmissionLocked(a AdmissionConfig) {
	r.admission = a
	r.include = lo.SliceToMap(a.IncludeHosts, func(h string) (string, struct{}) { return h, struct{}{} })
	r.exclude = lo.SliceToMap(a.ExcludeHosts, func(h string) (string, struct{}) { return h, struct{}{} })
}

// Pacing returns the current pacing configuration.
func (r *Runtime) Pacing() PacingConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pacing
}

// UpdatePacing swaps the pacing configuration, sanitizing it first.
func (r *Runtime) UpdatePacing(p PacingConfig) {
	sanitized := p.Sanitize(r.logger)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pacing = sanitized
}

// Admission returns the current admission configuration.
func (r *Runtime) Admission() AdmissionConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.admission
}

// UpdateAdmission swaps the admission lists and floors.
func (r *Runtime) UpdateAdmission(a AdmissionConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setAdmissionLocked(a)
}

// HostValid applies the include/exclude admission lists: a host on the
// exclude list is never valid; with a non-empty include list only listed
// hosts are valid.
func (r *Runtime) HostValid(host string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, excluded := r.exclude[host]; excluded {
		return false
	}
	if len(r.include) == 0 {
		return true
	}
	_, included := r.include[host]
	return included
}
