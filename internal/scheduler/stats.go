package scheduler

import "time"

// SourceStats are one source's counts within a single cycle.
type SourceStats struct {
	Fetched          int    `json:"fetched"`
	Normalized       int    `json:"normalized"`
	New              int    `json:"new"`
	Updated          int    `json:"updated"`
	SkippedMalformed int    `json:"skippedMalformed"`
	SkippedDuplicate int    `json:"skippedDuplicate"`
	HardFailed       bool   `json:"hardFailed"`
	Error            string `json:"error,omitempty"`
}

// CycleStats summarizes one harvest cycle.
type CycleStats struct {
	Cycle      uint64                 `json:"cycle"`
	StartedAt  time.Time              `json:"startedAt"`
	DurationMS int64                  `json:"durationMs"`
	Inserted   int                    `json:"inserted"`
	Updated    int                    `json:"updated"`
	Evicted    int                    `json:"evicted"`
	StoreSize  int                    `json:"storeSize"`
	Sources    map[string]SourceStats `json:"sources"`
}

// SourceStatus is the live health view of one configured source.
type SourceStatus struct {
	ID          string     `json:"id"`
	Kind        string     `json:"kind"`
	URL         string     `json:"url"`
	Priority    int        `json:"priority"`
	Enabled     bool       `json:"enabled"`
	Degraded    bool       `json:"degraded"`
	Failures    int        `json:"consecutiveFailures"`
	RetryAt     *time.Time `json:"retryAt,omitempty"`
	LastSuccess *time.Time `json:"lastSuccess,omitempty"`
	LastError   string     `json:"lastError,omitempty"`
}

// Cycles returns how many cycles have run.
func (s *Scheduler) Cycles() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cycle
}

// LastCycle returns the newest cycle stats, if any cycle has run yet.
func (s *Scheduler) LastCycle() (CycleStats, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return CycleStats{}, false
	}
	out := *s.last
	out.Sources = make(map[string]SourceStats, len(s.last.Sources))
	for id, st := range s.last.Sources {
		out.Sources[id] = st
	}
	return out, true
}

// SourceStatuses reports the configured sources in file order.
func (s *Scheduler) SourceStatuses() []SourceStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]SourceStatus, 0, len(s.order))
	for _, id := range s.order {
		st := s.states[id]
		status := SourceStatus{
			ID:        st.src.ID,
			Kind:      st.src.Kind,
			URL:       st.src.URL,
			Priority:  st.src.Priority,
			Enabled:   st.src.EnabledValue(),
			Degraded:  st.degraded,
			Failures:  st.failures,
			LastError: st.lastError,
		}
		if !st.retryAt.IsZero() {
			retryAt := st.retryAt
			status.RetryAt = &retryAt
		}
		if !st.lastSuccess.IsZero() {
			lastSuccess := st.lastSuccess
			status.LastSuccess = &lastSuccess
		}
		out = append(out, status)
	}
	return out
}
