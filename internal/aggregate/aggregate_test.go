package aggregate

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scottgal/stylobot/pkg/models"
)

func contrib(delta, weight float64) models.DetectionContribution {
	return models.DetectionContribution{Category: "x", Delta: delta, Weight: weight}
}

func TestEvaluate_Bounds(t *testing.T) {
	cfg := DefaultConfig()
	ledgers := [][]models.DetectionContribution{
		nil,
		{contrib(1, 100)},
		{contrib(-1, 100)},
		{contrib(0.5, 1), contrib(-0.5, 1)},
		{{Category: "x", Delta: math.NaN(), Weight: 1}, contrib(0.3, 1)},
	}
	for i, ledger := range ledgers {
		res := Evaluate(ledger, 0, cfg)
		assert.GreaterOrEqual(t, res.Probability, 0.0, "ledger %d", i)
		assert.LessOrEqual(t, res.Probability, 1.0, "ledger %d", i)
		assert.GreaterOrEqual(t, res.Confidence, 0.0, "ledger %d", i)
		assert.LessOrEqual(t, res.Confidence, 1.0, "ledger %d", i)
	}
}

func TestEvaluate_EmptyLedgerIsAgnostic(t *testing.T) {
	res := Evaluate(nil, 0, DefaultConfig())
	assert.InDelta(t, 0.5, res.Probability, 1e-9, "no evidence → 0.5")
	assert.Zero(t, res.Confidence, "no evidence → no confidence")
}

func TestEvaluate_BandConsistency(t *testing.T) {
	// Band is always a pure function of the probability.
	cfg := DefaultConfig()
	for s := -5.0; s <= 5.0; s += 0.25 {
		res := Evaluate([]models.DetectionContribution{contrib(s/3, 3)}, 0, cfg)
		assert.Equal(t, models.RiskBandFor(res.Probability), res.Band)
	}
}

func TestEvaluate_VerdictClamps(t *testing.T) {
	cfg := DefaultConfig()

	good := []models.DetectionContribution{
		contrib(0.9, 3), // heavy bot evidence...
		{Category: "rep", Delta: -0.95, Weight: 3, Verdict: models.VerdictVerifiedGoodBot},
	}
	res := Evaluate(good, 0, cfg)
	assert.LessOrEqual(t, res.Probability, 0.10, "VerifiedGoodBot pins low")

	bad := []models.DetectionContribution{
		contrib(-0.9, 3), // heavy human evidence...
		{Category: "rep", Delta: 0.95, Weight: 3, Verdict: models.VerdictVerifiedBot},
	}
	res = Evaluate(bad, 0, cfg)
	assert.GreaterOrEqual(t, res.Probability, 0.95, "VerifiedBot pins high")

	// Both present: the bad verdict wins.
	both := append(append([]models.DetectionContribution{}, good...), bad...)
	res = Evaluate(both, 0, cfg)
	assert.GreaterOrEqual(t, res.Probability, 0.95)
}

func TestEvaluate_MonotoneInDelta(t *testing.T) {
	// Increasing any bot-leaning delta can never lower the probability.
	cfg := DefaultConfig()
	fixed := []models.DetectionContribution{contrib(-0.4, 1), contrib(0.2, 2)}

	prev := -1.0
	for d := 0.0; d <= 1.0; d += 0.05 {
		ledger := append(append([]models.DetectionContribution{}, fixed...), contrib(d, 1))
		res := Evaluate(ledger, 0, cfg)
		require.GreaterOrEqual(t, res.Probability+1e-12, prev, "delta %.2f", d)
		prev = res.Probability
	}
}

func TestEvaluate_PermutationInvariant(t *testing.T) {
	cfg := DefaultConfig()
	ledger := []models.DetectionContribution{
		{Category: "a", Delta: 0.7, Weight: 1.5, BotType: models.BotTypeScraper, BotName: "curl"},
		{Category: "b", Delta: -0.3, Weight: 1},
		{Category: "a", Delta: 0.2, Weight: 0.5, BotType: models.BotTypeScraper},
		{Category: "c", Delta: 0.9, Weight: 2, BotType: models.BotTypeMalicious, BotName: "sqlmap"},
		{Category: "b", Delta: 0.1, Weight: 0.25},
	}
	want := Evaluate(ledger, 0, cfg)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := append([]models.DetectionContribution{}, ledger...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		got := Evaluate(shuffled, 0, cfg)
		assert.InDelta(t, want.Probability, got.Probability, 1e-12)
		assert.InDelta(t, want.Confidence, got.Confidence, 1e-12)
		assert.Equal(t, want.BotType, got.BotType)
		assert.Equal(t, want.BotName, got.BotName)
	}
}

func TestEvaluate_PrimaryClassification(t *testing.T) {
	cfg := DefaultConfig()

	ledger := []models.DetectionContribution{
		{Category: "a", Delta: 0.5, Weight: 2, BotType: models.BotTypeScraper, BotName: "curl"},
		{Category: "a", Delta: 0.5, Weight: 1, BotType: models.BotTypeMalicious, BotName: "sqlmap"},
		{Category: "a", Delta: 0.5, Weight: 0.5, BotType: models.BotTypeScraper},
	}
	res := Evaluate(ledger, 0, cfg)
	assert.Equal(t, models.BotTypeScraper, res.BotType, "plurality by accumulated weight")
	assert.Equal(t, "curl", res.BotName)

	// Tie on accumulated weight → highest single-contribution weight wins.
	tied := []models.DetectionContribution{
		{Category: "a", Delta: 0.5, Weight: 2, BotType: models.BotTypeMalicious, BotName: "evil"},
		{Category: "a", Delta: 0.5, Weight: 1, BotType: models.BotTypeScraper},
		{Category: "a", Delta: 0.5, Weight: 1, BotType: models.BotTypeScraper},
	}
	res = Evaluate(tied, 0, cfg)
	assert.Equal(t, models.BotTypeMalicious, res.BotType)
}

func TestEvaluate_ConfidenceGrowsWithEvidence(t *testing.T) {
	cfg := DefaultConfig()
	small := Evaluate([]models.DetectionContribution{contrib(0.1, 1)}, 0, cfg)
	big := Evaluate([]models.DetectionContribution{
		contrib(0.1, 1), contrib(-0.1, 1), contrib(0.1, 1), contrib(0.1, 1),
	}, 0, cfg)
	assert.Greater(t, big.Confidence, small.Confidence)
}

func TestEvaluate_FailedFractionLowersConfidence(t *testing.T) {
	cfg := DefaultConfig()
	ledger := []models.DetectionContribution{contrib(0.4, 2), contrib(0.2, 1)}

	clean := Evaluate(ledger, 0, cfg)
	degraded := Evaluate(ledger, 0.5, cfg)
	assert.InDelta(t, clean.Confidence*0.5, degraded.Confidence, 1e-9)
	assert.InDelta(t, clean.Probability, degraded.Probability, 1e-9,
		"failures lower confidence, not the score")
}

func TestRiskBandThresholds(t *testing.T) {
	cases := []struct {
		p    float64
		want models.RiskBand
	}{
		{0.0, models.RiskNone}, {0.1499, models.RiskNone},
		{0.15, models.RiskLow}, {0.3499, models.RiskLow},
		{0.35, models.RiskElevated}, {0.5499, models.RiskElevated},
		{0.55, models.RiskMedium}, {0.7499, models.RiskMedium},
		{0.75, models.RiskHigh}, {0.8999, models.RiskHigh},
		{0.90, models.RiskCritical}, {1.0, models.RiskCritical},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, models.RiskBandFor(tc.p), "p=%v", tc.p)
	}
}
