// Package history keeps the per-signature sliding windows the
// history-sensitive contributors read: recent request events, login
// attempts, stream activity and geo movement for each client signature.
package history

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/scottgal/stylobot/pkg/models"
)

// Event is one observed request in a signature's window.
type Event struct {
	Timestamp    time.Time           `json:"timestamp"`
	Path         string              `json:"path"`
	Method       string              `json:"method"`
	Status       int                 `json:"status,omitempty"`
	UserAgent    string              `json:"userAgent"`
	RefererHash  string              `json:"refererHash,omitempty"`
	ContentClass models.ContentClass `json:"contentClass"`
}

// LoginAttempt is one observed interaction with a login endpoint.
type LoginAttempt struct {
	Timestamp   time.Time `json:"timestamp"`
	Method      string    `json:"method"`
	Failed      bool      `json:"failed"`
	SawLoginGet bool      `json:"sawLoginGet"` // a GET of the login page preceded this POST
}

// entry is the live window for one signature. All fields are guarded by mu;
// readers get deep copies via snapshot().
type entry struct {
	mu sync.Mutex

	signature string
	firstSeen time.Time
	lastSeen  time.Time

	events        []Event
	logins        []LoginAttempt
	wsUpgrades    []time.Time
	sseReconnects []time.Time

	endpoints  map[string]struct{}
	userAgents map[string]struct{}

	pageCount, assetCount, apiCount, streamCount int

	lastCountry    string
	countries      []string
	countryChanges []time.Time
}

// Snapshot is a read-only deep copy of a signature's window.
type Snapshot struct {
	Signature     string
	FirstSeen     time.Time
	LastSeen      time.Time
	Events        []Event
	Logins        []LoginAttempt
	WSUpgrades    []time.Time
	SSEReconnects []time.Time
	Endpoints     int
	UserAgents    int
	PageCount     int
	AssetCount    int
	APICount      int
	StreamCount   int
	LastCountry   string
	Countries     []string
	CountryChanges []time.Time
}

// CountSince counts events newer than the cutoff.
func (s *Snapshot) CountSince(now time.Time, window time.Duration) int {
	cutoff := now.Add(-window)
	n := 0
	for _, ev := range s.Events {
		if ev.Timestamp.After(cutoff) {
			n++
		}
	}
	return n
}

// StoreConfig bounds the store.
type StoreConfig struct {
	Window        time.Duration // sliding expiration per entry
	CapPerEntry   int           // hard cap on events per signature
	MaxSignatures int           // total signature cap, enforced by Sweep
}

// DefaultStoreConfig returns the standard 30-minute / 100-event window.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Window:        30 * time.Minute,
		CapPerEntry:   100,
		MaxSignatures: 50_000,
	}
}

// Store is the concurrent sliding-window store, keyed by client signature.
type Store struct {
	cfg     StoreConfig
	entries sync.Map // signature -> *entry
}

// NewStore builds a store with the given bounds (zero values take defaults).
func NewStore(cfg StoreConfig) *Store {
	def := DefaultStoreConfig()
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.CapPerEntry <= 0 {
		cfg.CapPerEntry = def.CapPerEntry
	}
	if cfg.MaxSignatures <= 0 {
		cfg.MaxSignatures = def.MaxSignatures
	}
	return &Store{cfg: cfg}
}

func (s *Store) getOrCreate(sig string) *entry {
	if v, ok := s.entries.Load(sig); ok {
		return v.(*entry)
	}
	e := &entry{
		signature:  sig,
		firstSeen:  time.Now(),
		endpoints:  make(map[string]struct{}),
		userAgents: make(map[string]struct{}),
	}
	actual, _ := s.entries.LoadOrStore(sig, e)
	return actual.(*entry)
}

// Observe records the current request into the signature's window — prune
// expired events, append, cap — and returns the post-append snapshot the
// caller can analyze.
func (s *Store) Observe(sig string, ev Event) *Snapshot {
	e := s.getOrCreate(sig)
	e.mu.Lock()
	defer e.mu.Unlock()

	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	cutoff := ev.Timestamp.Add(-s.cfg.Window)

	e.events = pruneEvents(e.events, cutoff)
	e.events = append(e.events, ev)
	if len(e.events) > s.cfg.CapPerEntry {
		e.events = e.events[len(e.events)-s.cfg.CapPerEntry:]
	}

	e.lastSeen = ev.Timestamp
	if e.firstSeen.IsZero() {
		e.firstSeen = ev.Timestamp
	}
	e.endpoints[ev.Method+" "+ev.Path] = struct{}{}
	if ev.UserAgent != "" {
		e.userAgents[ev.UserAgent] = struct{}{}
	}
	switch ev.ContentClass {
	case models.ContentPage:
		e.pageCount++
	case models.ContentAsset:
		e.assetCount++
	case models.ContentAPI:
		e.apiCount++
	case models.ContentStream:
		e.streamCount++
	}

	return e.snapshotLocked()
}

// UpdateLast amends the most recent event — used once response headers are
// known to reclassify the content class from the actual Content-Type.
func (s *Store) UpdateLast(sig string, fn func(*Event)) {
	v, ok := s.entries.Load(sig)
	if !ok {
		return
	}
	e := v.(*entry)
	e.mu.Lock()
	if n := len(e.events); n > 0 {
		before := e.events[n-1].ContentClass
		fn(&e.events[n-1])
		after := e.events[n-1].ContentClass
		if before != after {
			e.declassLocked(before)
			e.reclassLocked(after)
		}
	}
	e.mu.Unlock()
}

func (e *entry) declassLocked(c models.ContentClass) {
	switch c {
	case models.ContentPage:
		e.pageCount--
	case models.ContentAsset:
		e.assetCount--
	case models.ContentAPI:
		e.apiCount--
	case models.ContentStream:
		e.streamCount--
	}
}

func (e *entry) reclassLocked(c models.ContentClass) {
	switch c {
	case models.ContentPage:
		e.pageCount++
	case models.ContentAsset:
		e.assetCount++
	case models.ContentAPI:
		e.apiCount++
	case models.ContentStream:
		e.streamCount++
	}
}

// RecordLogin appends a login attempt, pruned to the window.
func (s *Store) RecordLogin(sig string, la LoginAttempt) {
	e := s.getOrCreate(sig)
	e.mu.Lock()
	if la.Timestamp.IsZero() {
		la.Timestamp = time.Now()
	}
	cutoff := la.Timestamp.Add(-s.cfg.Window)
	kept := e.logins[:0]
	for _, old := range e.logins {
		if old.Timestamp.After(cutoff) {
			kept = append(kept, old)
		}
	}
	e.logins = append(kept, la)
	e.mu.Unlock()
}

// RecordWSUpgrade appends a WebSocket handshake timestamp.
func (s *Store) RecordWSUpgrade(sig string, t time.Time) {
	e := s.getOrCreate(sig)
	e.mu.Lock()
	e.wsUpgrades = pruneTimes(append(e.wsUpgrades, t), t.Add(-s.cfg.Window))
	e.mu.Unlock()
}

// RecordSSEReconnect appends an SSE reconnect timestamp.
func (s *Store) RecordSSEReconnect(sig string, t time.Time) {
	e := s.getOrCreate(sig)
	e.mu.Lock()
	e.sseReconnects = pruneTimes(append(e.sseReconnects, t), t.Add(-s.cfg.Window))
	e.mu.Unlock()
}

// RecordCountry notes the client's current country and reports whether it
// changed from the last observation, plus the distinct-country count.
func (s *Store) RecordCountry(sig, country string, t time.Time) (changed bool, distinct int) {
	if country == "" {
		return false, 0
	}
	e := s.getOrCreate(sig)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.lastCountry != "" && e.lastCountry != country {
		changed = true
		e.countryChanges = pruneTimes(append(e.countryChanges, t), t.Add(-s.cfg.Window))
	}
	e.lastCountry = country
	seen := false
	for _, c := range e.countries {
		if c == country {
			seen = true
			break
		}
	}
	if !seen {
		e.countries = append(e.countries, country)
	}
	return changed, len(e.countries)
}

// Get returns the snapshot for a signature, nil when unknown.
func (s *Store) Get(sig string) *Snapshot {
	v, ok := s.entries.Load(sig)
	if !ok {
		return nil
	}
	e := v.(*entry)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *entry) snapshotLocked() *Snapshot {
	snap := &Snapshot{
		Signature:      e.signature,
		FirstSeen:      e.firstSeen,
		LastSeen:       e.lastSeen,
		Events:         append([]Event(nil), e.events...),
		Logins:         append([]LoginAttempt(nil), e.logins...),
		WSUpgrades:     append([]time.Time(nil), e.wsUpgrades...),
		SSEReconnects:  append([]time.Time(nil), e.sseReconnects...),
		Endpoints:      len(e.endpoints),
		UserAgents:     len(e.userAgents),
		PageCount:      e.pageCount,
		AssetCount:     e.assetCount,
		APICount:       e.apiCount,
		StreamCount:    e.streamCount,
		LastCountry:    e.lastCountry,
		Countries:      append([]string(nil), e.countries...),
		CountryChanges: append([]time.Time(nil), e.countryChanges...),
	}
	return snap
}

// Sweep evicts signatures idle past the window and enforces the global
// signature cap. Returns the number evicted.
func (s *Store) Sweep(now time.Time) int {
	evicted := 0
	total := 0
	var oldest *entry
	var oldestSeen time.Time

	s.entries.Range(func(key, value any) bool {
		e := value.(*entry)
		e.mu.Lock()
		last := e.lastSeen
		e.mu.Unlock()

		if now.Sub(last) > s.cfg.Window {
			s.entries.Delete(key)
			evicted++
			return true
		}
		total++
		if oldest == nil || last.Before(oldestSeen) {
			oldest, oldestSeen = e, last
		}
		return true
	})

	// Over the global cap: drop oldest-seen signatures one sweep at a time.
	for total > s.cfg.MaxSignatures && oldest != nil {
		s.entries.Delete(oldest.signature)
		evicted++
		total--
		oldest = nil
		oldestSeen = time.Time{}
		s.entries.Range(func(key, value any) bool {
			e := value.(*entry)
			e.mu.Lock()
			last := e.lastSeen
			e.mu.Unlock()
			if oldest == nil || last.Before(oldestSeen) {
				oldest, oldestSeen = e, last
			}
			return true
		})
	}
	return evicted
}

// StartSweeper runs Sweep on the interval until the context ends.
func (s *Store) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if n := s.Sweep(now); n > 0 {
					log.Debug().Int("evicted", n).Msg("history sweep")
				}
			}
		}
	}()
}

// Len returns the current signature count.
func (s *Store) Len() int {
	n := 0
	s.entries.Range(func(_, _ any) bool { n++; return true })
	return n
}

func pruneEvents(events []Event, cutoff time.Time) []Event {
	kept := events[:0]
	for _, ev := range events {
		if ev.Timestamp.After(cutoff) {
			kept = append(kept, ev)
		}
	}
	return kept
}

func pruneTimes(times []time.Time, cutoff time.Time) []time.Time {
	kept := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}
