// Package orchestrator runs sync passes: for every configured platform and
// every content item registered on it, fetch, normalize and upsert.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sho7650/social-bridge/internal/content"
	"github.com/sho7650/social-bridge/internal/core"
	"github.com/sho7650/social-bridge/internal/lock"
	"github.com/sho7650/social-bridge/internal/logger"
	"github.com/sho7650/social-bridge/internal/metrics"
	"github.com/sho7650/social-bridge/internal/normalize"
	"github.com/sho7650/social-bridge/internal/storage"
)

const (
	DefaultPassTimeout    = 5 * time.Minute
	DefaultReleaseTimeout = 5 * time.Second
)

// Registry is the platform lookup the orchestrator depends on
type Registry interface {
	Active() []core.Platform
	Lookup(id string) (core.Platform, error)
	Enabled(id string) bool
	ReportRun(id string, err error)
}

// ManualResult is returned to the operator of a manual sync
type ManualResult struct {
	Counts  map[string]int    `json:"counts"`
	Errors  map[string]string `json:"errors,omitempty"`
	Summary core.SyncSummary  `json:"summary"`
}

// Orchestrator coordinates platform clients, the normalizer and the store under one lock
type Orchestrator struct {
	registry   Registry
	content    content.Source
	store      storage.InteractionStore
	lock       lock.Service
	normalizer *normalize.Normalizer
	metrics    *metrics.Metrics
	log        *slog.Logger

	now            func() time.Time
	newID          func() string
	passTimeout    time.Duration
	releaseTimeout time.Duration
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

func WithMetrics(m *metrics.Metrics) Option { return func(o *Orchestrator) { o.metrics = m } }
func WithLogger(l *slog.Logger) Option      { return func(o *Orchestrator) { o.log = l } }
func WithClock(now func() time.Time) Option { return func(o *Orchestrator) { o.now = now } }

// WithNormalizer replaces the default Bluesky/Mastodon normalizer
func WithNormalizer(n *normalize.Normalizer) Option {
	return func(o *Orchestrator) { o.normalizer = n }
}

// WithPassTimeout bounds the wall time of one pass
func WithPassTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.passTimeout = d
		}
	}
}

// New creates an orchestrator
func New(registry Registry, src content.Source, store storage.InteractionStore, lk lock.Service, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry:       registry,
		content:        src,
		store:          store,
		lock:           lk,
		normalizer:     normalize.Default(),
		now:            time.Now,
		newID:          uuid.NewString,
		passTimeout:    DefaultPassTimeout,
		releaseTimeout: DefaultReleaseTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.log = logger.Or(o.log)
	return o
}

// RunAll performs a scheduled pass over every active platform and every
// content item with a URL registered for it.
func (o *Orchestrator) RunAll(ctx context.Context) (core.SyncSummary, error) {
	items, err := o.content.List(ctx)
	if err != nil {
		return core.SyncSummary{}, fmt.Errorf("list content items: %w", err)
	}
	summary, _, err := o.pass(ctx, core.TriggerScheduled, o.registry.Active(), items)
	return summary, err
}

// ManualSync runs a pass scoped to one content item and one platform, or
// every active platform when platformID is empty.
func (o *Orchestrator) ManualSync(ctx context.Context, contentItemID int64, platformID string) (ManualResult, error) {
	item, err := o.content.Get(ctx, contentItemID)
	if err != nil {
		return ManualResult{}, err
	}

	platforms := o.registry.Active()
	if platformID != "" {
		p, err := o.registry.Lookup(platformID)
		if err != nil {
			return ManualResult{}, err
		}
		if !o.registry.Enabled(platformID) {
			return ManualResult{}, core.Errorf(core.KindInvalidPlatform, platformID, "manual_sync", "platform is disabled")
		}
		if err := p.CheckConfiguration(); err != nil {
			return ManualResult{}, core.NewSyncError(core.KindInvalidPlatform, platformID, "manual_sync", err)
		}
		platforms = []core.Platform{p}
	}

	summary, failures, err := o.pass(ctx, core.TriggerManual, platforms, []core.ContentItem{item})
	if err != nil {
		return ManualResult{}, err
	}

	result := ManualResult{
		Counts:  make(map[string]int),
		Summary: summary,
	}
	for id, stats := range summary.PerPlatform {
		if stats.Skipped {
			continue
		}
		result.Counts[id] = stats.Inserted
	}
	if len(failures) > 0 {
		result.Errors = make(map[string]string, len(failures))
		for id, ferr := range failures {
			result.Errors[id] = ferr.Error()
		}
	}
	if platformID != "" && item.URLFor(platformID) == "" {
		if result.Errors == nil {
			result.Errors = make(map[string]string, 1)
		}
		result.Errors[platformID] = core.Errorf(core.KindInvalidURL, platformID, "manual_sync",
			"content item %d has no URL on this platform", item.ID).Error()
	}
	return result, nil
}

// LastRunSummary returns the summary of the most recent pass, nil when none ran yet
func (o *Orchestrator) LastRunSummary(ctx context.Context) (*core.SyncSummary, error) {
	return o.store.GetLastSyncSummary(ctx)
}

// LockHolder reports who holds the sync lock, if anyone
func (o *Orchestrator) LockHolder(ctx context.Context) (lock.Holder, bool, error) {
	return o.lock.Holder(ctx)
}

// pass acquires the lock, runs every platform × item pair, records the
// summary and releases the lock on every exit path.
func (o *Orchestrator) pass(ctx context.Context, trigger core.SyncTrigger, platforms []core.Platform, items []core.ContentItem) (core.SyncSummary, map[string]error, error) {
	runID := o.newID()

	acquired, err := o.lock.TryAcquire(ctx, runID)
	if err != nil {
		return core.SyncSummary{}, nil, core.NewSyncError(core.KindTransient, "", "acquire_lock", err)
	}
	if !acquired {
		o.metrics.PassRejected(trigger)
		o.log.Info("sync_lock_rejected", "trigger", trigger, "run_id", runID)
		return core.SyncSummary{}, nil, core.NewSyncError(core.KindSyncInProgress, "", "acquire_lock", errors.New("a sync pass is already running"))
	}
	defer o.release(ctx, runID)

	// the pass outlives caller cancellation but not its own ceiling
	passCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.passTimeout)
	defer cancel()

	summary := core.SyncSummary{
		RunID:       runID,
		Trigger:     trigger,
		StartedAt:   o.now(),
		PerPlatform: make(map[string]core.PlatformRunStats),
	}
	o.log.Info("sync_pass_started", "run_id", runID, "trigger", trigger, "platforms", len(platforms), "items", len(items))

	failures := make(map[string]error)
	for _, p := range platforms {
		stats, firstErr := o.syncPlatform(passCtx, p, items)
		summary.PerPlatform[p.ID()] = stats
		if stats.Skipped {
			continue
		}
		summary.PlatformsProcessed++
		summary.ItemsProcessed += stats.ItemsProcessed
		summary.NewInteractions += stats.Inserted
		summary.UpdatedInteractions += stats.Updated
		summary.ErrorCount += stats.Errors
		if firstErr != nil {
			failures[p.ID()] = firstErr
		}
		o.registry.ReportRun(p.ID(), firstErr)
	}

	for _, p := range platforms {
		if r, ok := p.(core.SessionResetter); ok {
			r.ResetSession()
		}
	}

	summary.CompletedAt = o.now()
	saveCtx, saveCancel := context.WithTimeout(context.WithoutCancel(ctx), o.releaseTimeout)
	defer saveCancel()
	if err := o.store.SaveSyncSummary(saveCtx, summary); err != nil {
		o.log.Error("sync_summary_save_failed", "run_id", runID, "error", err)
	}

	o.metrics.PassCompleted(trigger, summary.Duration(), summary.CompletedAt)
	o.log.Info("sync_pass_completed",
		"run_id", runID,
		"trigger", trigger,
		"platforms", summary.PlatformsProcessed,
		"items", summary.ItemsProcessed,
		"new", summary.NewInteractions,
		"updated", summary.UpdatedInteractions,
		"errors", summary.ErrorCount,
		"duration", summary.Duration(),
	)
	return summary, failures, nil
}

func (o *Orchestrator) release(ctx context.Context, owner string) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.releaseTimeout)
	defer cancel()
	if err := o.lock.Release(releaseCtx, owner); err != nil {
		o.log.Error("sync_lock_release_failed", "run_id", owner, "error", err)
	}
}

// syncPlatform processes every item registered on p. The returned error is
// the first pair failure, for reporting only.
func (o *Orchestrator) syncPlatform(ctx context.Context, p core.Platform, items []core.ContentItem) (core.PlatformRunStats, error) {
	var stats core.PlatformRunStats
	id := p.ID()

	if err := p.CheckConfiguration(); err != nil {
		stats.Skipped = true
		o.log.Info("sync_platform_skipped", "platform", id, "error", err)
		return stats, nil
	}

	pairs := content.WithURLFor(items, id)
	if len(pairs) == 0 {
		return stats, nil
	}

	if _, err := p.Authenticate(ctx); err != nil {
		// every pair on this platform fails the same way
		for _, item := range pairs {
			o.pairFailed(&stats, id, item.ID, err)
		}
		return stats, err
	}

	var firstErr error
	for _, item := range pairs {
		if err := o.syncPair(ctx, p, item, &stats); err != nil {
			o.pairFailed(&stats, id, item.ID, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		stats.ItemsProcessed++
	}
	return stats, firstErr
}

func (o *Orchestrator) pairFailed(stats *core.PlatformRunStats, platform string, itemID int64, err error) {
	kind := core.KindOf(err)
	stats.Errors++
	o.metrics.Failed(platform, kind)
	o.log.Warn("sync_pair_failed", "platform", platform, "content_item_id", itemID, "kind", kind, "error", err)
}

// syncPair fetches everything for one item on one platform before writing
// anything, so a fetch failure leaves the store untouched for that pair.
func (o *Orchestrator) syncPair(ctx context.Context, p core.Platform, item core.ContentItem, stats *core.PlatformRunStats) error {
	ref, err := p.ResolvePostReference(item.URLFor(p.ID()))
	if err != nil {
		return err
	}

	thread, err := p.FetchThread(ctx, ref)
	if err != nil {
		return err
	}
	likes, err := p.FetchLikes(ctx, ref)
	if err != nil {
		return err
	}
	reposts, err := p.FetchReposts(ctx, ref)
	if err != nil {
		return err
	}
	if thread.Truncated {
		o.log.Debug("sync_thread_truncated", "platform", p.ID(), "content_item_id", item.ID)
	}

	records := make([]core.RawRecord, 0, len(thread.Replies)+len(likes)+len(reposts))
	records = append(records, thread.Replies...)
	records = append(records, likes...)
	records = append(records, reposts...)

	capturedAt := o.now()
	for _, rec := range records {
		interaction, err := o.normalizer.Normalize(rec, capturedAt)
		if err != nil {
			stats.Errors++
			o.metrics.Failed(p.ID(), core.KindOf(err))
			o.log.Warn("sync_record_malformed", "platform", p.ID(), "content_item_id", item.ID, "kind", rec.Kind, "error", err)
			continue
		}
		interaction.ContentItemID = item.ID

		result, err := o.store.Upsert(ctx, &interaction)
		if err != nil {
			return core.NewSyncError(core.KindTransient, p.ID(), "upsert", err)
		}
		o.metrics.Upserted(p.ID(), result)
		switch result {
		case core.UpsertInserted:
			stats.Inserted++
		case core.UpsertUpdated:
			stats.Updated++
		case core.UpsertUnchanged:
			stats.Unchanged++
		}
	}
	return nil
}
