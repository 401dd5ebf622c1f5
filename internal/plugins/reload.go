package plugins

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/sho7650/social-bridge/internal/logger"
)

// ReloadPhase represents the phase of a reload operation
type ReloadPhase string

const (
	PhaseValidation ReloadPhase = "validation"
	PhaseSnapshot   ReloadPhase = "snapshot"
	PhaseApplying   ReloadPhase = "applying"
	PhaseComplete   ReloadPhase = "complete"
	PhaseRollback   ReloadPhase = "rollback"
	PhaseFailed     ReloadPhase = "failed"
)

// Reloader applies a new set of platform settings to the registry as one unit.
// When any platform rejects its settings, platforms already reconfigured in
// the same reload are restored to their previous settings.
type Reloader struct {
	registry *Registry
	log      *slog.Logger

	mu      sync.Mutex
	applied map[string]Settings
	onPhase func(ReloadPhase)
}

// NewReloader creates a reloader bound to a registry
func NewReloader(registry *Registry, log *slog.Logger) *Reloader {
	return &Reloader{
		registry: registry,
		log:      logger.Or(log),
		applied:  make(map[string]Settings),
	}
}

// SetPhaseCallback sets a callback for phase transitions
func (rl *Reloader) SetPhaseCallback(callback func(ReloadPhase)) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.onPhase = callback
}

// Apply reconfigures every registered platform named in next. Unknown
// platform IDs are logged and skipped.
func (rl *Reloader) Apply(next map[string]Settings) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	txnID := uuid.NewString()
	rl.notify(PhaseValidation)

	ids := make([]string, 0, len(next))
	for id := range next {
		if _, ok := rl.registry.Get(id); !ok {
			rl.log.Warn("platform_config_unknown", "platform", id, "reload", txnID)
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	rl.notify(PhaseSnapshot)
	snapshot := make(map[string]Settings, len(rl.applied))
	for id, s := range rl.applied {
		snapshot[id] = s
	}

	rl.notify(PhaseApplying)
	var done []string
	for _, id := range ids {
		if err := rl.registry.Configure(id, next[id]); err != nil {
			rl.notify(PhaseRollback)
			rollbackErr := rl.rollback(append(done, id), snapshot)
			rl.notify(PhaseFailed)
			rl.log.Error("platform_reload_failed", "platform", id, "reload", txnID, "error", err)
			if rollbackErr != nil {
				return fmt.Errorf("reload failed: %w, rollback failed: %w", err, rollbackErr)
			}
			return fmt.Errorf("reload failed and rolled back: %w", err)
		}
		done = append(done, id)
	}

	for _, id := range done {
		rl.applied[id] = next[id]
	}
	rl.notify(PhaseComplete)
	rl.log.Info("platform_reload_complete", "reload", txnID, "platforms", len(done))
	return nil
}

// Applied returns the settings last applied successfully for a platform
func (rl *Reloader) Applied(id string) (Settings, bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	s, ok := rl.applied[id]
	return s, ok
}

func (rl *Reloader) rollback(ids []string, snapshot map[string]Settings) error {
	var errs []error
	for _, id := range ids {
		prev, ok := snapshot[id]
		if !ok {
			// never configured before this reload; leave it switched off
			prev = Settings{Enabled: false}
		}
		if err := rl.registry.Configure(id, prev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (rl *Reloader) notify(phase ReloadPhase) {
	if rl.onPhase != nil {
		rl.onPhase(phase)
	}
}
