package history

import (
	"testing"
	"time"

	"github.com/scottgal/stylobot/pkg/models"
)

func testStore() *Store {
	return NewStore(StoreConfig{Window: 30 * time.Minute, CapPerEntry: 5, MaxSignatures: 100})
}

func TestObserve_PruneAndCap(t *testing.T) {
	s := testStore()
	base := time.Now()

	// One stale event, then seven fresh ones against a cap of five.
	s.Observe("sig", Event{Timestamp: base.Add(-time.Hour), Path: "/stale"})
	for i := 0; i < 7; i++ {
		s.Observe("sig", Event{Timestamp: base.Add(time.Duration(i) * time.Second), Path: "/p"})
	}

	snap := s.Get("sig")
	if len(snap.Events) != 5 {
		t.Errorf("expected cap of 5 events, got %d", len(snap.Events))
	}
	for _, ev := range snap.Events {
		if ev.Path == "/stale" {
			t.Errorf("stale event survived pruning")
		}
	}
}

func TestUpdateLast_ReclassifiesContentClass(t *testing.T) {
	s := testStore()
	now := time.Now()

	// Path said API; the response Content-Type says HTML page.
	s.Observe("sig", Event{Timestamp: now, Path: "/api/data", ContentClass: models.ContentAPI})
	if snap := s.Get("sig"); snap.APICount != 1 || snap.PageCount != 0 {
		t.Fatalf("setup counters wrong: api=%d page=%d", snap.APICount, snap.PageCount)
	}

	s.UpdateLast("sig", func(ev *Event) {
		ev.ContentClass = models.ContentPage
		ev.Status = 200
	})

	snap := s.Get("sig")
	if snap.APICount != 0 || snap.PageCount != 1 {
		t.Errorf("reclass counters wrong: api=%d page=%d", snap.APICount, snap.PageCount)
	}
	if snap.Events[len(snap.Events)-1].Status != 200 {
		t.Errorf("status amendment lost")
	}
}

func TestRecordCountry_TracksChanges(t *testing.T) {
	s := testStore()
	now := time.Now()

	changed, distinct := s.RecordCountry("sig", "DE", now)
	if changed || distinct != 1 {
		t.Errorf("first country: changed=%v distinct=%d", changed, distinct)
	}
	changed, distinct = s.RecordCountry("sig", "DE", now.Add(time.Minute))
	if changed {
		t.Errorf("same country flagged as change")
	}
	changed, distinct = s.RecordCountry("sig", "BR", now.Add(2*time.Minute))
	if !changed || distinct != 2 {
		t.Errorf("country switch: changed=%v distinct=%d", changed, distinct)
	}
	if snap := s.Get("sig"); len(snap.CountryChanges) != 1 {
		t.Errorf("expected 1 recorded change time, got %d", len(snap.CountryChanges))
	}
}

func TestRecordLogin_WindowPrune(t *testing.T) {
	s := testStore()
	now := time.Now()

	s.RecordLogin("sig", LoginAttempt{Timestamp: now.Add(-time.Hour), Failed: true})
	s.RecordLogin("sig", LoginAttempt{Timestamp: now, Failed: true})

	snap := s.Get("sig")
	if len(snap.Logins) != 1 {
		t.Errorf("expected stale login pruned, got %d", len(snap.Logins))
	}
}

func TestSweep_EvictsStaleSignatures(t *testing.T) {
	s := testStore()
	now := time.Now()

	s.Observe("old", Event{Timestamp: now.Add(-2 * time.Hour)})
	s.Observe("fresh", Event{Timestamp: now})

	evicted := s.Sweep(now)
	if evicted != 1 {
		t.Errorf("expected 1 eviction, got %d", evicted)
	}
	if s.Get("old") != nil {
		t.Errorf("stale signature survived sweep")
	}
	if s.Get("fresh") == nil {
		t.Errorf("fresh signature evicted")
	}
}

func TestSweep_EnforcesSignatureCap(t *testing.T) {
	s := NewStore(StoreConfig{Window: time.Hour, CapPerEntry: 10, MaxSignatures: 3})
	now := time.Now()

	for i, sig := range []string{"a", "b", "c", "d", "e"} {
		s.Observe(sig, Event{Timestamp: now.Add(time.Duration(i) * time.Minute)})
	}
	s.Sweep(now.Add(10 * time.Minute))

	if got := s.Len(); got > 3 {
		t.Errorf("cap not enforced: %d signatures remain", got)
	}
	if s.Get("e") == nil {
		t.Errorf("newest signature should survive the cap")
	}
}

func TestSnapshot_IsDeepCopy(t *testing.T) {
	s := testStore()
	now := time.Now()
	s.Observe("sig", Event{Timestamp: now, Path: "/a"})

	snap := s.Get("sig")
	snap.Events[0].Path = "/mutated"

	if s.Get("sig").Events[0].Path != "/a" {
		t.Errorf("snapshot mutation leaked into the store")
	}
}
