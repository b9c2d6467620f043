package contributors

import (
	"net/http"
	"testing"
	"time"

	"github.com/scottgal/stylobot/internal/config"
	"github.com/scottgal/stylobot/internal/history"
	"github.com/scottgal/stylobot/internal/patterns"
	"github.com/scottgal/stylobot/internal/signals"
	"github.com/scottgal/stylobot/pkg/models"
)

func loginSnap(ip, ua string, at time.Time) *models.RequestSnapshot {
	h := http.Header{}
	h.Set("User-Agent", ua)
	return &models.RequestSnapshot{
		Method: "POST", Path: "/login", Protocol: "HTTP/1.1",
		ClientIP: ip, Headers: h, ReceivedAt: at,
	}
}

func TestAccountTakeover_CredentialStuffingBurst(t *testing.T) {
	// Scenario: 12 POSTs to /login within 3 minutes, all failing, from one
	// signature. Both the stuffing and brute-force contributions must fire
	// and ato.detected must land in signals.
	store := history.NewStore(history.DefaultStoreConfig())
	c := NewAccountTakeover(config.NewStatic(nil), store)

	ip, ua := "203.0.113.7", "curl/8.1.2"
	sig := patterns.Signature(ip, ua)
	base := time.Now().Add(-3 * time.Minute)

	for i := 0; i < 11; i++ {
		at := base.Add(time.Duration(i) * 15 * time.Second)
		store.Observe(sig, history.Event{Timestamp: at, Path: "/login", Method: "POST"})
		store.RecordLogin(sig, history.LoginAttempt{Timestamp: at, Method: "POST", Failed: true})
	}

	st := stateFor(loginSnap(ip, ua, base.Add(3*time.Minute)))
	st.WriteSignal(signals.RequestSignature, sig)
	out := run(t, c, st)

	var sawStuffer, sawBrute bool
	for _, contrib := range out {
		if contrib.BotName == "CredentialStuffer" {
			sawStuffer = true
			if contrib.BotType != models.BotTypeMalicious {
				t.Errorf("stuffer typed %s, want MaliciousBot", contrib.BotType)
			}
		}
		if hasReasonContaining([]models.DetectionContribution{contrib}, "failed authentications") {
			sawBrute = true
		}
	}
	if !sawStuffer {
		t.Errorf("credential-stuffing contribution missing: %v", reasons(out))
	}
	if !sawBrute {
		t.Errorf("brute-force contribution missing: %v", reasons(out))
	}
	if !st.SignalBool(signals.AtoDetected) {
		t.Errorf("ato.detected not set")
	}
	if !st.SignalBool(signals.AtoCredentialStuffing) {
		t.Errorf("ato.credential_stuffing not set")
	}
}

func TestAccountTakeover_BlindPosts(t *testing.T) {
	// POSTs that never loaded the login page first.
	store := history.NewStore(history.DefaultStoreConfig())
	c := NewAccountTakeover(config.NewStatic(nil), store)

	ip, ua := "203.0.113.8", "test-agent"
	sig := patterns.Signature(ip, ua)
	now := time.Now()
	for i := 0; i < 3; i++ {
		store.RecordLogin(sig, history.LoginAttempt{Timestamp: now.Add(time.Duration(i) * time.Second), Method: "POST"})
	}

	st := stateFor(loginSnap(ip, ua, now.Add(5*time.Second)))
	st.WriteSignal(signals.RequestSignature, sig)
	out := run(t, c, st)

	if !hasReasonContaining(out, "without a prior page view") {
		t.Errorf("blind-POST contribution missing: %v", reasons(out))
	}
}

func TestAccountTakeover_QuietSignatureIsInfo(t *testing.T) {
	store := history.NewStore(history.DefaultStoreConfig())
	c := NewAccountTakeover(config.NewStatic(nil), store)

	h := http.Header{}
	h.Set("User-Agent", "browser")
	st := stateFor(&models.RequestSnapshot{
		Method: "GET", Path: "/products", ClientIP: "203.0.113.9", Headers: h, ReceivedAt: time.Now(),
	})
	out := run(t, c, st)

	if len(out) != 1 || out[0].Weight != 0 {
		t.Errorf("no login activity should yield a zero-weight info record: %+v", out)
	}
}

func TestAccountTakeover_DriftAttenuatedByAbsence(t *testing.T) {
	// The same erratic window drifts less when it follows a long absence:
	// returning users are expected to look different.
	store := history.NewStore(history.StoreConfig{Window: 90 * 24 * time.Hour, CapPerEntry: 100})
	c := NewAccountTakeover(config.NewStatic(nil), store)

	now := time.Now()
	recent := &history.Snapshot{
		FirstSeen: now.Add(-10 * time.Minute),
		LastSeen:  now,
		Events: []history.Event{
			{Timestamp: now.Add(-2 * time.Second)},
			{Timestamp: now.Add(-1 * time.Second)},
			{Timestamp: now},
		},
		UserAgents:     3,
		CountryChanges: []time.Time{now},
	}
	returning := &history.Snapshot{
		FirstSeen: now.Add(-60 * 24 * time.Hour),
		LastSeen:  now,
		Events: []history.Event{
			{Timestamp: now.Add(-60 * 24 * time.Hour)},
			{Timestamp: now.Add(-45 * 24 * time.Hour)},
			{Timestamp: now},
		},
		UserAgents:     3,
		CountryChanges: []time.Time{now},
	}

	if c.driftScore(recent, now) <= c.driftScore(returning, now) {
		t.Errorf("drift after long absence should be attenuated: recent %.3f vs returning %.3f",
			c.driftScore(recent, now), c.driftScore(returning, now))
	}
}
