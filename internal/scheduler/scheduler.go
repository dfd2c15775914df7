// Package scheduler drives periodic harvest cycles: fetching every
// eligible source, normalizing and reconciling the batch, applying the
// result to the cache, and notifying publishers. One Scheduler owns
// all harvest state; nothing here is global.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jwnews/jw-news-reader-api/internal/dedup"
	"github.com/jwnews/jw-news-reader-api/internal/domain"
	"github.com/jwnews/jw-news-reader-api/internal/logger"
	"github.com/jwnews/jw-news-reader-api/internal/normalize"
	"github.com/jwnews/jw-news-reader-api/internal/store"
	"github.com/jwnews/jw-news-reader-api/pkg/publishers"
	"github.com/jwnews/jw-news-reader-api/pkg/sources"
)

const (
	defaultSourceTimeout    = 15 * time.Second
	defaultConcurrency      = 4
	defaultFailureThreshold = 3
	defaultBackoffBase      = 20 * time.Minute
	defaultBackoffCap       = 6 * time.Hour
	defaultRetention        = 72 * time.Hour
)

// Enricher fills gaps in freshly inserted articles.
type Enricher interface {
	Enrich(ctx context.Context, articles []domain.Article) []domain.Article
}

// Options carry the harvest cadence and limits.
type Options struct {
	CronSpec         string
	StartupDelay     time.Duration
	SourceTimeout    time.Duration
	Concurrency      int
	FailureThreshold int
	BackoffBase      time.Duration
	BackoffCap       time.Duration
	Retention        time.Duration
	SnapshotPath     string
}

// Deps are the collaborators a Scheduler drives.
type Deps struct {
	Registry   sources.Registry
	Sources    []sources.Source
	Store      *store.Store
	Enricher   Enricher
	Publishers []publishers.Publisher
	Log        logger.Logger
}

// sourceState tracks per-source health across cycles.
type sourceState struct {
	src         sources.Source
	failures    int
	degraded    bool
	retryAt     time.Time
	lastSuccess time.Time
	lastError   string
}

// Scheduler runs harvest cycles on a cron cadence.
type Scheduler struct {
	opts       Options
	registry   sources.Registry
	store      *store.Store
	enricher   Enricher
	pubs       []publishers.Publisher
	log        logger.Logger
	cron       *cron.Cron
	priorities map[string]int
	now        func() time.Time

	mu     sync.Mutex
	cycle  uint64
	states map[string]*sourceState
	order  []string
	last   *CycleStats
}

// New builds a Scheduler. The cron spec must parse; everything else
// falls back to defaults when unset.
func New(deps Deps, opts Options) (*Scheduler, error) {
	if deps.Registry == nil {
		return nil, errors.New("scheduler requires a source registry")
	}
	if deps.Store == nil {
		return nil, errors.New("scheduler requires a store")
	}
	if deps.Log == nil {
		deps.Log = logger.NopLogger{}
	}
	if opts.SourceTimeout <= 0 {
		opts.SourceTimeout = defaultSourceTimeout
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = defaultFailureThreshold
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = defaultBackoffBase
	}
	if opts.BackoffCap <= 0 {
		opts.BackoffCap = defaultBackoffCap
	}
	if opts.Retention <= 0 {
		opts.Retention = defaultRetention
	}

	s := &Scheduler{
		opts:       opts,
		registry:   deps.Registry,
		store:      deps.Store,
		enricher:   deps.Enricher,
		pubs:       deps.Publishers,
		log:        deps.Log,
		priorities: sources.Priorities(deps.Sources),
		now:        time.Now,
		states:     make(map[string]*sourceState, len(deps.Sources)),
		order:      make([]string, 0, len(deps.Sources)),
	}
	for _, src := range deps.Sources {
		s.states[src.ID] = &sourceState{src: src}
		s.order = append(s.order, src.ID)
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{log: s.log})))
	if _, err := c.AddFunc(opts.CronSpec, func() { s.RunCycle(context.Background()) }); err != nil {
		return nil, fmt.Errorf("parse cron spec %q: %w", opts.CronSpec, err)
	}
	s.cron = c

	return s, nil
}

// Start begins the cron schedule and, after the startup delay, runs
// the first cycle without waiting for the cron boundary.
func (s *Scheduler) Start() {
	s.cron.Start()
	time.AfterFunc(s.opts.StartupDelay, func() { s.RunCycle(context.Background()) })
}

// Stop halts the schedule and waits for a running cycle to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// RunCycle executes one full harvest cycle and returns its stats. It
// is also the entry point for manual one-shot harvests.
func (s *Scheduler) RunCycle(ctx context.Context) CycleStats {
	started := s.now()

	s.mu.Lock()
	s.cycle++
	cycleN := s.cycle
	eligible := make([]sources.Source, 0, len(s.order))
	for _, id := range s.order {
		st := s.states[id]
		if !st.src.EnabledValue() {
			continue
		}
		if st.degraded && started.Before(st.retryAt) {
			continue
		}
		eligible = append(eligible, st.src)
	}
	s.mu.Unlock()

	s.log.InfoObj("harvest cycle started", "cycle_start", map[string]any{
		"cycle":   cycleN,
		"sources": len(eligible),
	})

	outcomes := s.fetchAll(ctx, eligible)

	perSource := make(map[string]*SourceStats, len(outcomes))
	var candidates []dedup.Candidate
	for _, oc := range outcomes {
		st := &SourceStats{}
		perSource[oc.sourceID] = st

		failures, degraded := s.applyOutcome(oc, started)
		if oc.err != nil {
			st.HardFailed = true
			st.Error = oc.err.Error()
			s.log.WarnObj("source fetch failed", "source_error", map[string]any{
				"cycle":    cycleN,
				"source":   oc.sourceID,
				"failures": failures,
				"degraded": degraded,
				"error":    oc.err.Error(),
			})
			continue
		}

		st.Fetched = len(oc.result.Items)
		st.SkippedMalformed = oc.result.SkippedMalformed
		for _, raw := range oc.result.Items {
			art, err := normalize.Normalize(raw)
			if err != nil {
				st.SkippedMalformed++
				s.log.DebugObj("raw item dropped", "normalize_drop", map[string]any{
					"cycle":  cycleN,
					"source": oc.sourceID,
					"error":  err.Error(),
				})
				continue
			}
			st.Normalized++
			candidates = append(candidates, dedup.Candidate{Article: art, SourceID: oc.sourceID})
		}
	}

	res := dedup.Reconcile(candidates, s.store.Snapshot(), started, s.priorities)
	for id, o := range res.BySource {
		st, ok := perSource[id]
		if !ok {
			st = &SourceStats{}
			perSource[id] = st
		}
		st.New = o.New
		st.Updated = o.Updated
		st.SkippedDuplicate = o.Duplicate
	}

	inserts := res.ToInsert
	if s.enricher != nil && len(inserts) > 0 {
		inserts = s.enricher.Enrich(ctx, inserts)
	}
	for _, art := range inserts {
		s.store.Upsert(art)
	}
	for _, art := range res.ToUpdate {
		s.store.Upsert(art)
	}

	evicted := s.store.EvictOlderThan(started.Add(-s.opts.Retention))

	stats := CycleStats{
		Cycle:      cycleN,
		StartedAt:  started,
		DurationMS: s.now().Sub(started).Milliseconds(),
		Inserted:   len(inserts),
		Updated:    len(res.ToUpdate),
		Evicted:    evicted,
		StoreSize:  s.store.Len(),
		Sources:    make(map[string]SourceStats, len(perSource)),
	}
	for id, st := range perSource {
		stats.Sources[id] = *st
	}

	s.mu.Lock()
	last := stats
	s.last = &last
	s.mu.Unlock()

	if len(inserts) > 0 && len(s.pubs) > 0 {
		evt := publishers.Event{Cycle: cycleN, EmittedAt: started, Articles: inserts}
		for _, pub := range s.pubs {
			if err := pub.Publish(ctx, evt); err != nil {
				s.log.WarnObj("publisher delivery failed", "publish_error", map[string]any{
					"cycle":     cycleN,
					"publisher": pub.ID(),
					"error":     err.Error(),
				})
			}
		}
	}

	if err := s.store.SaveFile(s.opts.SnapshotPath); err != nil {
		s.log.ErrorObj("snapshot save failed", "snapshot_error", map[string]any{
			"cycle": cycleN,
			"path":  s.opts.SnapshotPath,
			"error": err.Error(),
		})
	}

	s.log.InfoObj("harvest cycle finished", "cycle_done", map[string]any{
		"cycle":       cycleN,
		"duration_ms": stats.DurationMS,
		"inserted":    stats.Inserted,
		"updated":     stats.Updated,
		"evicted":     stats.Evicted,
		"store_size":  stats.StoreSize,
	})

	return stats
}

// sourceOutcome is one source's fetch result within a cycle.
type sourceOutcome struct {
	sourceID string
	result   sources.Result
	err      error
}

// fetchAll fans fetches out across the eligible sources, bounded by
// the concurrency cap. A failing source never disturbs the others.
func (s *Scheduler) fetchAll(ctx context.Context, eligible []sources.Source) []sourceOutcome {
	outcomes := make([]sourceOutcome, len(eligible))
	sem := make(chan struct{}, s.opts.Concurrency)
	var wg sync.WaitGroup

	for i, src := range eligible {
		wg.Add(1)
		go func(i int, src sources.Source) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			outcomes[i] = s.fetchOne(ctx, src)
		}(i, src)
	}
	wg.Wait()

	return outcomes
}

// fetchOne runs a single source fetch under its own timeout.
func (s *Scheduler) fetchOne(ctx context.Context, src sources.Source) sourceOutcome {
	adapter, err := s.registry.AdapterFor(src)
	if err != nil {
		return sourceOutcome{sourceID: src.ID, err: err}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.opts.SourceTimeout)
	defer cancel()

	res, err := adapter.Fetch(fetchCtx, src)
	if err != nil {
		return sourceOutcome{sourceID: src.ID, err: err}
	}
	return sourceOutcome{sourceID: src.ID, result: res}
}

// applyOutcome updates the source's failure counter and degradation
// window, returning the new counter and degraded flag.
func (s *Scheduler) applyOutcome(oc sourceOutcome, now time.Time) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[oc.sourceID]
	if !ok {
		return 0, false
	}
	if oc.err == nil {
		st.failures = 0
		st.degraded = false
		st.retryAt = time.Time{}
		st.lastError = ""
		st.lastSuccess = now
		return 0, false
	}

	st.failures++
	st.lastError = oc.err.Error()
	if st.failures >= s.opts.FailureThreshold {
		st.degraded = true
		st.retryAt = now.Add(backoffDelay(s.opts.BackoffBase, s.opts.BackoffCap, st.failures-s.opts.FailureThreshold))
	}
	return st.failures, st.degraded
}

// backoffDelay doubles the base for every failure past the threshold,
// capped so a flapping source is probed at a bounded interval.
func backoffDelay(base, ceiling time.Duration, over int) time.Duration {
	delay := base
	for i := 0; i < over; i++ {
		delay *= 2
		if delay >= ceiling {
			return ceiling
		}
	}
	if delay > ceiling {
		return ceiling
	}
	return delay
}

// cronLogger adapts the application logger to the cron logger surface.
type cronLogger struct {
	log logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.DebugObj(msg, "cron", kvFields(keysAndValues))
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	fields := kvFields(keysAndValues)
	fields["error"] = err.Error()
	c.log.ErrorObj(msg, "cron_error", fields)
}

func kvFields(kv []interface{}) map[string]any {
	fields := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		fields[key] = kv[i+1]
	}
	return fields
}
