package plugins

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/sho7650/social-bridge/internal/core"
	"github.com/sho7650/social-bridge/internal/logger"
)

// PlatformState represents where a registered platform stands
type PlatformState string

const (
	StateRegistered   PlatformState = "registered"
	StateConfigured   PlatformState = "configured"
	StateUnconfigured PlatformState = "unconfigured"
	StateDisabled     PlatformState = "disabled"
	StateError        PlatformState = "error"
)

// PlatformStatus represents the current status of a platform
type PlatformStatus struct {
	State     PlatformState `json:"state"`
	Message   string        `json:"message,omitempty"`
	Error     error         `json:"-"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Settings is the per-platform slice of configuration handed to a client
type Settings struct {
	Enabled  bool
	Settings map[string]interface{}
}

type entry struct {
	platform core.Platform
	enabled  bool
	status   PlatformStatus
}

// Registry provides thread-safe platform registration and lookup
type Registry struct {
	mu        sync.RWMutex
	platforms map[string]*entry
	log       *slog.Logger
	now       func() time.Time
}

// NewRegistry creates an empty registry
func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		platforms: make(map[string]*entry),
		log:       logger.Or(log),
		now:       time.Now,
	}
}

// Register adds a platform client. New platforms start enabled.
func (r *Registry) Register(p core.Platform) error {
	if p == nil {
		return fmt.Errorf("platform cannot be nil")
	}

	meta := core.MetadataOf(p)
	if err := meta.Validate(); err != nil {
		return fmt.Errorf("invalid platform metadata: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.platforms[meta.ID]; exists {
		return NewPlatformError(meta.ID, "register", ErrPlatformExists)
	}

	r.platforms[meta.ID] = &entry{
		platform: p,
		enabled:  true,
		status:   PlatformStatus{State: StateRegistered, Message: "Platform registered", UpdatedAt: r.now()},
	}
	return nil
}

// Unregister removes a platform from the registry
func (r *Registry) Unregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.platforms[id]; !exists {
		return NewPlatformError(id, "unregister", ErrPlatformNotFound)
	}
	delete(r.platforms, id)
	return nil
}

// Get retrieves a platform by ID
func (r *Registry) Get(id string) (core.Platform, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, exists := r.platforms[id]
	if !exists {
		return nil, false
	}
	return e.platform, true
}

// Lookup retrieves a platform by ID, failing with INVALID_PLATFORM when it is unknown
func (r *Registry) Lookup(id string) (core.Platform, error) {
	p, ok := r.Get(id)
	if !ok {
		return nil, core.NewSyncError(core.KindInvalidPlatform, id, "lookup", ErrPlatformNotFound)
	}
	return p, nil
}

// Enabled reports whether the platform is registered and switched on
func (r *Registry) Enabled(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, exists := r.platforms[id]
	return exists && e.enabled
}

// List returns all registered platforms ordered by ID
func (r *Registry) List() []core.Platform {
	return r.collect(func(*entry) bool { return true })
}

// Active returns the enabled platforms ordered by ID
func (r *Registry) Active() []core.Platform {
	return r.collect(func(e *entry) bool { return e.enabled })
}

func (r *Registry) collect(keep func(*entry) bool) []core.Platform {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.platforms))
	for id, e := range r.platforms {
		if keep(e) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	out := make([]core.Platform, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.platforms[id].platform)
	}
	return out
}

// Configure hands settings to a platform client and records the outcome
func (r *Registry) Configure(id string, s Settings) error {
	r.mu.RLock()
	e, exists := r.platforms[id]
	r.mu.RUnlock()
	if !exists {
		return NewPlatformError(id, "configure", ErrPlatformNotFound)
	}

	if s.Settings != nil {
		if err := e.platform.Configure(s.Settings); err != nil {
			r.setStatus(id, StateError, "Failed to configure", err)
			return NewPlatformError(id, "configure", err)
		}
	}

	r.mu.Lock()
	e.enabled = s.Enabled
	r.mu.Unlock()

	switch {
	case !s.Enabled:
		r.setStatus(id, StateDisabled, "Platform disabled", nil)
	case e.platform.CheckConfiguration() != nil:
		err := e.platform.CheckConfiguration()
		r.setStatus(id, StateUnconfigured, "Credentials missing", err)
		r.log.Warn("platform_unconfigured", "platform", id, "error", err)
	default:
		r.setStatus(id, StateConfigured, "Platform configured", nil)
	}
	return nil
}

// ReportRun records the outcome of the platform's last orchestration pass
func (r *Registry) ReportRun(id string, err error) {
	if err != nil {
		r.setStatus(id, StateError, string(core.KindOf(err)), err)
		return
	}
	if r.Enabled(id) {
		r.setStatus(id, StateConfigured, "Last pass succeeded", nil)
	}
}

// Status returns the current status of a platform
func (r *Registry) Status(id string) (PlatformStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, exists := r.platforms[id]
	if !exists {
		return PlatformStatus{}, false
	}
	return e.status, true
}

// Statuses returns the status of all registered platforms
func (r *Registry) Statuses() map[string]PlatformStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	statuses := make(map[string]PlatformStatus, len(r.platforms))
	for id, e := range r.platforms {
		statuses[id] = e.status
	}
	return statuses
}

func (r *Registry) setStatus(id string, state PlatformState, message string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, exists := r.platforms[id]
	if !exists {
		return
	}
	e.status = PlatformStatus{
		State:     state,
		Message:   message,
		Error:     err,
		UpdatedAt: r.now(),
	}
}
