package contributors

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/scottgal/stylobot/internal/blackboard"
	"github.com/scottgal/stylobot/internal/config"
	"github.com/scottgal/stylobot/internal/history"
	"github.com/scottgal/stylobot/internal/patterns"
	"github.com/scottgal/stylobot/internal/signals"
	"github.com/scottgal/stylobot/pkg/models"
)

// Account Takeover Detection
//
// Watches per-signature login activity for the signatures of credential
// attacks:
//
//   - login POST with no prior GET of the login page (scripted clients
//     skip the form)
//   - credential stuffing: many POSTs in a short window
//   - brute force: repeated auth failures
//   - geo velocity: country changes inside the window
//   - behavioral drift: weighted composite of geo, fingerprint, timing,
//     path-diversity and velocity deltas against the session baseline
//
// Drift is attenuated by an exponential baseline-trust factor with a
// configurable half-life in days: a returning user after a long absence is
// EXPECTED to look different (new device, new network), so the longer the
// absence the smaller the drift penalty.

type AccountTakeoverContributor struct {
	base
	store *history.Store
}

// NewAccountTakeover builds the ATO analyzer over the shared history store.
func NewAccountTakeover(cfg config.Provider, store *history.Store) *AccountTakeoverContributor {
	return &AccountTakeoverContributor{
		base: base{
			name:     "AccountTakeover",
			cfg:      cfg,
			priority: 35,
			timeout:  100 * time.Millisecond,
		},
		store: store,
	}
}

func (c *AccountTakeoverContributor) loginPaths() []string {
	if list := c.cfg.StringList(c.name, "login_paths"); len(list) > 0 {
		return list
	}
	return []string{"/login", "/signin", "/auth", "/account/login", "/api/login", "/api/auth", "/session"}
}

func (c *AccountTakeoverContributor) isLoginPath(path string) bool {
	lower := strings.ToLower(path)
	for _, p := range c.loginPaths() {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

func (c *AccountTakeoverContributor) Contribute(_ context.Context, st *blackboard.State) ([]models.DetectionContribution, error) {
	req := st.Request()
	if c.store == nil || req.ClientIP == "" {
		return []models.DetectionContribution{
			Info(c.name, models.CategoryAccount, "No history store or client IP"),
		}, nil
	}

	sigKey, _ := st.SignalString(signals.RequestSignature)
	if sigKey == "" {
		sigKey = patterns.Signature(req.ClientIP, req.UserAgent())
	}

	// Record the current interaction before reading the window.
	if c.isLoginPath(req.Path) && strings.EqualFold(req.Method, "POST") {
		snapBefore := c.store.Get(sigKey)
		sawGet := false
		if snapBefore != nil {
			for _, ev := range snapBefore.Events {
				if strings.EqualFold(ev.Method, "GET") && c.isLoginPath(ev.Path) {
					sawGet = true
					break
				}
			}
		}
		c.store.RecordLogin(sigKey, history.LoginAttempt{
			Timestamp:   req.ReceivedAt,
			Method:      req.Method,
			SawLoginGet: sawGet,
		})
	}

	snap := c.store.Get(sigKey)
	if snap == nil || len(snap.Logins) == 0 {
		return []models.DetectionContribution{
			Info(c.name, models.CategoryAccount, "No login activity for this signature"),
		}, nil
	}

	conf := c.confidence()
	now := req.ReceivedAt
	if now.IsZero() {
		now = time.Now()
	}

	attempts := len(snap.Logins)
	failures := 0
	blindPosts := 0
	for _, la := range snap.Logins {
		if la.Failed {
			failures++
		}
		if !la.SawLoginGet {
			blindPosts++
		}
	}

	sig := map[string]any{
		signals.AtoLoginAttempts: attempts,
		signals.AtoAuthFailures:  failures,
	}
	var out []models.DetectionContribution
	ato := false

	// 1. Credential stuffing: attempt volume alone
	stuffingThreshold := c.cfg.Int(c.name, "stuffing_attempts", 8)
	if attempts >= stuffingThreshold {
		ato = true
		sig[signals.AtoCredentialStuffing] = true
		contrib := StrongBot(c.name, models.CategoryAccount, conf.StrongSignal,
			fmt.Sprintf("%d login attempts inside the window", attempts))
		contrib.BotType = models.BotTypeMalicious
		contrib.BotName = "CredentialStuffer"
		out = append(out, contrib)
	}

	// 2. Brute force: repeated failures
	bruteThreshold := c.cfg.Int(c.name, "brute_force_failures", 5)
	if failures >= bruteThreshold {
		ato = true
		contrib := Bot(c.name, models.CategoryAccount, conf.BotDetected,
			fmt.Sprintf("%d failed authentications inside the window", failures))
		contrib.BotType = models.BotTypeMalicious
		out = append(out, contrib)
	}

	// 3. POSTs that never loaded the form
	if blindPosts >= 2 {
		out = append(out, Bot(c.name, models.CategoryAccount, conf.BotDetected*0.8,
			fmt.Sprintf("%d login POSTs without a prior page view", blindPosts)))
	}

	// 4. Geo velocity
	if n := len(snap.CountryChanges); n >= 1 && attempts >= 2 {
		sig[signals.AtoGeoVelocity] = n
		mag := conf.BotDetected
		if n >= 2 {
			mag = conf.StrongSignal
			ato = true
		}
		out = append(out, Bot(c.name, models.CategoryAccount, mag,
			fmt.Sprintf("Login activity across %d country changes", n)))
	}

	// 5. Behavioral drift vs baseline, trust-attenuated
	drift := c.driftScore(snap, now)
	sig[signals.AtoDriftScore] = drift
	driftThreshold := c.cfg.Float(c.name, "drift_threshold", 0.60)
	if drift >= driftThreshold {
		ato = true
		out = append(out, Bot(c.name, models.CategoryAccount, conf.BotDetected,
			fmt.Sprintf("Session drift %.2f exceeds baseline tolerance", drift)))
	}

	sig[signals.AtoDetected] = ato
	if len(out) == 0 {
		contrib := Info(c.name, models.CategoryAccount,
			fmt.Sprintf("Login activity within normal bounds (%d attempts)", attempts))
		contrib.Signals = sig
		return []models.DetectionContribution{contrib}, nil
	}
	out[len(out)-1].Signals = mergeSignals(out[len(out)-1].Signals, sig)
	return out, nil
}

// driftScore composites the deltas between the session's baseline and its
// current behavior, each component bounded [0,1]:
//
//   geo 0.30 · fingerprint 0.20 · timing 0.20 · path 0.15 · velocity 0.15
//
// then attenuates by 0.5^(absenceDays/halfLife) — long absence, low penalty.
func (c *AccountTakeoverContributor) driftScore(snap *history.Snapshot, now time.Time) float64 {
	geo := 0.0
	if n := len(snap.CountryChanges); n > 0 {
		geo = math.Min(1, float64(n)/2)
	}

	fingerprint := 0.0
	if snap.UserAgents > 1 {
		fingerprint = math.Min(1, float64(snap.UserAgents-1)/2)
	}

	timing := 0.0
	if cv := interArrivalCV(snap.Events); cv >= 0 && cv < 0.3 {
		timing = 1 - cv/0.3
	}

	path := 0.0
	if len(snap.Events) >= 5 {
		diversity := float64(snap.Endpoints) / float64(len(snap.Events))
		if diversity > 0.8 {
			path = (diversity - 0.8) / 0.2
		}
	}

	velocity := 0.0
	if len(snap.Events) >= 2 {
		span := snap.LastSeen.Sub(snap.FirstSeen).Minutes()
		if span > 0 {
			perMin := float64(len(snap.Events)) / span
			velocity = math.Min(1, perMin/10)
		}
	}

	raw := 0.30*geo + 0.20*fingerprint + 0.20*timing + 0.15*path + 0.15*velocity

	halfLife := c.cfg.Float(c.name, "trust_half_life_days", 14)
	absenceDays := 0.0
	if len(snap.Events) >= 2 {
		// Gap between the previous visit and the current one.
		gap := snap.Events[len(snap.Events)-1].Timestamp.Sub(snap.Events[len(snap.Events)-2].Timestamp)
		absenceDays = gap.Hours() / 24
	}
	trust := math.Pow(0.5, absenceDays/halfLife)
	return raw * trust
}
