// Package blackboard holds the per-request working state the contributors
// collaborate on: the signals map, the evidence ledger, and the trigger
// predicates that gate contributor scheduling.
package blackboard

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scottgal/stylobot/pkg/models"
)

// Ledger is the append-only list of contributions for one request plus a
// running per-category rollup. Only State mutates it, under State's lock.
type Ledger struct {
	entries []models.DetectionContribution
	rollup  map[string]models.CategoryRollup
	topAbs  map[string]float64 // largest |weighted delta| seen per category
}

func newLedger() *Ledger {
	return &Ledger{
		rollup: make(map[string]models.CategoryRollup),
		topAbs: make(map[string]float64),
	}
}

func (l *Ledger) append(c models.DetectionContribution) {
	l.entries = append(l.entries, c)

	r := l.rollup[c.Category]
	r.Total += c.Weighted()
	r.Count++
	if abs := math.Abs(c.Weighted()); abs >= l.topAbs[c.Category] && c.Reason != "" {
		l.topAbs[c.Category] = abs
		r.TopReason = c.Reason
	}
	l.rollup[c.Category] = r
}

// State is the blackboard for a single request. The orchestrator owns it;
// contributors access it concurrently within a wave, so every accessor
// locks. Signals grow monotonically (last write wins per key) and
// contributions are only ever appended — a contribution's attached signals
// merge atomically with its append.
type State struct {
	mu sync.RWMutex

	request   *models.RequestSnapshot
	requestID string
	startedAt time.Time

	signals   map[string]any
	ledger    *Ledger
	failed    map[string]struct{}
	completed map[string]struct{}

	currentScore float64
	earlyExit    models.Verdict
	exitDetector string
}

// NewState builds a fresh blackboard around one request snapshot.
func NewState(req *models.RequestSnapshot) *State {
	id := ""
	if req != nil {
		id = req.RequestID
	}
	if id == "" {
		id = uuid.NewString()
	}
	return &State{
		request:      req,
		requestID:    id,
		startedAt:    time.Now(),
		signals:      make(map[string]any),
		ledger:       newLedger(),
		failed:       make(map[string]struct{}),
		completed:    make(map[string]struct{}),
		currentScore: 0.5, // no evidence yet
	}
}

func (s *State) Request() *models.RequestSnapshot { return s.request }
func (s *State) RequestID() string                { return s.requestID }
func (s *State) StartedAt() time.Time             { return s.startedAt }

// WriteSignal puts one signal onto the blackboard (append-or-overwrite).
func (s *State) WriteSignal(key string, value any) {
	s.mu.Lock()
	s.signals[key] = value
	s.mu.Unlock()
}

// WriteSignals merges a batch of signals in one critical section.
func (s *State) WriteSignals(values map[string]any) {
	if len(values) == 0 {
		return
	}
	s.mu.Lock()
	for k, v := range values {
		s.signals[k] = v
	}
	s.mu.Unlock()
}

// Signal returns the raw value for a key.
func (s *State) Signal(key string) (any, bool) {
	s.mu.RLock()
	v, ok := s.signals[key]
	s.mu.RUnlock()
	return v, ok
}

// HasSignal reports whether a key has been written.
func (s *State) HasSignal(key string) bool {
	_, ok := s.Signal(key)
	return ok
}

// SignalBool returns a bool signal; false when absent or mistyped.
func (s *State) SignalBool(key string) bool {
	v, ok := s.Signal(key)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// SignalInt returns an int signal, accepting int or float64 storage.
func (s *State) SignalInt(key string) (int, bool) {
	v, ok := s.Signal(key)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

// SignalFloat returns a float signal, accepting int or float64 storage.
func (s *State) SignalFloat(key string) (float64, bool) {
	v, ok := s.Signal(key)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// SignalString returns a string signal.
func (s *State) SignalString(key string) (string, bool) {
	v, ok := s.Signal(key)
	if !ok {
		return "", false
	}
	str, ok := v.(string)
	return str, ok
}

// Signals returns a copy of the signal map.
func (s *State) Signals() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.signals))
	for k, v := range s.signals {
		out[k] = v
	}
	return out
}

// Append records a completed contributor: its contributions land on the
// ledger in completion order, their attached signals merge in the same
// critical section, and the contributor joins the completed set.
func (s *State) Append(detector string, contribs []models.DetectionContribution) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range contribs {
		if c.Detector == "" {
			c.Detector = detector
		}
		s.ledger.append(c)
		for k, v := range c.Signals {
			s.signals[k] = v
		}
		if c.Verdict == models.VerdictVerifiedBot ||
			(c.Verdict == models.VerdictVerifiedGoodBot && s.earlyExit != models.VerdictVerifiedBot) {
			if s.earlyExit == models.VerdictNone || c.Verdict == models.VerdictVerifiedBot {
				s.earlyExit = c.Verdict
				s.exitDetector = detector
			}
		}
	}
	s.completed[detector] = struct{}{}
}

// MarkFailed records a contributor that errored, timed out, or was cancelled.
func (s *State) MarkFailed(detector string) {
	s.mu.Lock()
	delete(s.completed, detector)
	s.failed[detector] = struct{}{}
	s.mu.Unlock()
}

// CompletedCount returns how many contributors have finished successfully.
func (s *State) CompletedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.completed)
}

// Completed returns the sorted names of contributors that appended evidence.
func (s *State) Completed() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.completed)
}

// Failed returns the sorted names of failed contributors.
func (s *State) Failed() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.failed)
}

// Contributions returns a copy of the ledger in completion order.
func (s *State) Contributions() []models.DetectionContribution {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.DetectionContribution, len(s.ledger.entries))
	copy(out, s.ledger.entries)
	return out
}

// Rollups returns a copy of the per-category rollup.
func (s *State) Rollups() map[string]models.CategoryRollup {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]models.CategoryRollup, len(s.ledger.rollup))
	for k, v := range s.ledger.rollup {
		out[k] = v
	}
	return out
}

// CurrentScore is the aggregate bot probability as of the last completed
// wave. Later-wave triggers read it through RiskThreshold.
func (s *State) CurrentScore() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentScore
}

// SetCurrentScore is called by the orchestrator between waves.
func (s *State) SetCurrentScore(p float64) {
	s.mu.Lock()
	s.currentScore = p
	s.mu.Unlock()
}

// EarlyExit returns the early-exit verdict, if any contribution set one.
func (s *State) EarlyExit() (models.Verdict, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.earlyExit, s.exitDetector
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
