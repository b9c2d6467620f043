package aggregate

import (
	"github.com/scottgal/stylobot/internal/signals"
	"github.com/scottgal/stylobot/pkg/models"
)

// Threat scoring
//
// The threat score is orthogonal to bot probability: it grades the intent of
// the session, not the automation of the client. A verified crawler politely
// fetching pages is zero-threat; a human hand-typing /.env into a real
// browser is not.
//
// When the Intent contributor ran (it consults the known-intent similarity
// index), its signals are authoritative. Otherwise a rule ladder maps the
// attack/response/account signals already on the blackboard to an intent:
//
//   attacking      — live payloads or account-takeover activity
//   scanning       — path probing, 404 sweeps
//   reconnaissance — protocol poking, systematic traversal
//   browsing       — everything else

// IntentResult is the session-intent verdict.
type IntentResult struct {
	Score    float64
	Band     models.ThreatBand
	Category models.IntentCategory
}

// EvaluateIntent derives the threat verdict from the final signal map.
func EvaluateIntent(sig map[string]any) IntentResult {
	// Contributor-provided verdict wins.
	if score, ok := floatSignal(sig, signals.IntentThreatScore); ok {
		cat := models.IntentBrowsing
		if s, ok := sig[signals.IntentCategoryKey].(string); ok && s != "" {
			cat = models.IntentCategory(s)
		}
		return IntentResult{Score: score, Band: models.ThreatBandFor(score), Category: cat}
	}
	return ruleBasedIntent(sig)
}

func ruleBasedIntent(sig map[string]any) IntentResult {
	score := 0.05
	category := models.IntentBrowsing

	// 1. Active attack payloads or credential abuse
	if boolSignal(sig, signals.AtoCredentialStuffing) || boolSignal(sig, signals.AtoDetected) {
		score, category = 0.85, models.IntentAttacking
	}
	if boolSignal(sig, signals.AttackDetected) {
		n, _ := floatSignal(sig, signals.AttackCategoryCount)
		s := 0.65 + 0.1*minf(n, 3)
		if s > score {
			score, category = s, models.IntentAttacking
		}
	}

	// 2. Scanning: path probes and 404 sweeps
	if category != models.IntentAttacking {
		if boolSignal(sig, signals.AttackPathProbe) || boolSignal(sig, signals.ResponseScanPattern) {
			score, category = 0.70, models.IntentScanning
		} else if n, ok := floatSignal(sig, signals.Response404Count); ok && n >= 10 {
			score, category = 0.55, models.IntentScanning
		}
	}

	// 3. Reconnaissance: protocol poking, systematic traversal
	if category == models.IntentBrowsing {
		if n, ok := floatSignal(sig, signals.ProtoViolations); ok && n >= 2 {
			score, category = 0.45, models.IntentReconnaissance
		} else if boolSignal(sig, signals.BehaviorSequential) || boolSignal(sig, signals.BehaviorDepthFirst) {
			score, category = 0.35, models.IntentReconnaissance
		}
	}

	return IntentResult{Score: score, Band: models.ThreatBandFor(score), Category: category}
}

func boolSignal(sig map[string]any, key string) bool {
	b, _ := sig[key].(bool)
	return b
}

func floatSignal(sig map[string]any, key string) (float64, bool) {
	switch n := sig[key].(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
