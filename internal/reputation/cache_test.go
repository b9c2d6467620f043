package reputation

import (
	"sync"
	"testing"

	"github.com/scottgal/stylobot/pkg/models"
)

func TestCache_GetSet(t *testing.T) {
	c := NewMemoryCache()

	if _, ok := c.Get("ua:deadbeef"); ok {
		t.Errorf("empty cache returned a record")
	}

	c.Set(&models.PatternReputation{PatternID: "ua:deadbeef", State: models.ReputationNeutral, BotScore: 0.4})
	rep, ok := c.Get("ua:deadbeef")
	if !ok || rep.BotScore != 0.4 {
		t.Errorf("round trip failed: %+v ok=%v", rep, ok)
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d", c.Len())
	}

	// Replacement, not duplication.
	c.Set(&models.PatternReputation{PatternID: "ua:deadbeef", State: models.ReputationSuspect, BotScore: 0.7})
	rep, _ = c.Get("ua:deadbeef")
	if rep.State != models.ReputationSuspect || c.Len() != 1 {
		t.Errorf("replacement failed: %+v len=%d", rep, c.Len())
	}
}

func TestCache_FastPathPredicates(t *testing.T) {
	c := NewMemoryCache()

	// Confirmed states need support; manual states do not.
	c.Set(&models.PatternReputation{PatternID: "ip:1.2.3.0/24", State: models.ReputationConfirmedGood, Support: 2})
	if c.TryFastAllow("ip:1.2.3.0/24") {
		t.Errorf("under-supported ConfirmedGood allowed fast path")
	}
	c.Set(&models.PatternReputation{PatternID: "ip:1.2.3.0/24", State: models.ReputationConfirmedGood, Support: 10})
	if !c.TryFastAllow("ip:1.2.3.0/24") {
		t.Errorf("well-supported ConfirmedGood denied fast path")
	}

	c.Set(&models.PatternReputation{PatternID: "ip:9.9.9.0/24", State: models.ReputationManuallyBlocked})
	if !c.TryFastAbort("ip:9.9.9.0/24") {
		t.Errorf("ManuallyBlocked must abort regardless of support")
	}
	if c.TryFastAbort("ip:unknown") {
		t.Errorf("unknown pattern aborted")
	}
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := NewMemoryCache()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			rep := &models.PatternReputation{PatternID: "ua:shared", BotScore: float64(n) / 32}
			c.Set(rep)
			c.Get("ua:shared")
			c.TryFastAllow("ua:shared")
		}(i)
	}
	wg.Wait()
	if c.Len() != 1 {
		t.Errorf("concurrent sets produced %d entries", c.Len())
	}
}
