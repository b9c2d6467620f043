package aggregate

import (
	"testing"

	"github.com/scottgal/stylobot/internal/signals"
	"github.com/scottgal/stylobot/pkg/models"
)

func TestEvaluateIntent_ContributorVerdictWins(t *testing.T) {
	sig := map[string]any{
		signals.IntentThreatScore: 0.72,
		signals.IntentCategoryKey: "reconnaissance",
		signals.AttackDetected:    true, // would map to attacking by rules
	}
	res := EvaluateIntent(sig)
	if res.Category != models.IntentReconnaissance {
		t.Errorf("contributor verdict overridden: got %s", res.Category)
	}
	if res.Score != 0.72 {
		t.Errorf("score = %v, want 0.72", res.Score)
	}
	if res.Band != models.ThreatHigh {
		t.Errorf("band = %s, want High", res.Band)
	}
}

func TestEvaluateIntent_RuleLadder(t *testing.T) {
	cases := []struct {
		name string
		sig  map[string]any
		want models.IntentCategory
		min  float64
	}{
		{
			name: "credential stuffing → attacking",
			sig:  map[string]any{signals.AtoCredentialStuffing: true},
			want: models.IntentAttacking, min: 0.8,
		},
		{
			name: "attack payloads → attacking",
			sig:  map[string]any{signals.AttackDetected: true, signals.AttackCategoryCount: 2},
			want: models.IntentAttacking, min: 0.8,
		},
		{
			name: "path probing → scanning",
			sig:  map[string]any{signals.AttackPathProbe: true},
			want: models.IntentScanning, min: 0.65,
		},
		{
			name: "404 sweep → scanning",
			sig:  map[string]any{signals.Response404Count: 15},
			want: models.IntentScanning, min: 0.5,
		},
		{
			name: "protocol poking → reconnaissance",
			sig:  map[string]any{signals.ProtoViolations: 3},
			want: models.IntentReconnaissance, min: 0.4,
		},
		{
			name: "clean session → browsing",
			sig:  map[string]any{},
			want: models.IntentBrowsing, min: 0,
		},
	}

	for _, tc := range cases {
		res := EvaluateIntent(tc.sig)
		if res.Category != tc.want {
			t.Errorf("%s: category = %s, want %s", tc.name, res.Category, tc.want)
		}
		if res.Score < tc.min {
			t.Errorf("%s: score %.2f below %.2f", tc.name, res.Score, tc.min)
		}
		if res.Band != models.ThreatBandFor(res.Score) {
			t.Errorf("%s: band inconsistent with score", tc.name)
		}
	}
}

func TestEvaluateIntent_AttackOutranksScanning(t *testing.T) {
	// A session doing both gets the attacking verdict.
	sig := map[string]any{
		signals.AttackDetected:      true,
		signals.AttackCategoryCount: 1,
		signals.AttackPathProbe:     true,
		signals.Response404Count:    30,
	}
	res := EvaluateIntent(sig)
	if res.Category != models.IntentAttacking {
		t.Errorf("got %s, want attacking", res.Category)
	}
}
