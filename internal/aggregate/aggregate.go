// Package aggregate fuses the evidence ledger into the final verdict:
// bot probability, confidence, risk band and primary bot classification.
package aggregate

import (
	"math"
	"sort"

	"github.com/scottgal/stylobot/pkg/models"
)

// Score fusion
//
// Every contribution carries a signed confidence delta and a weight. Fusion:
//
//   1. Partition by category, sum weight*delta per category
//   2. S = sum of category totals, W = sum of |weight| over all contributions
//   3. probability = logistic(slope * S)  — monotone, symmetric (S=0 -> 0.5),
//      bounded in (0,1), linear near zero
//   4. confidence = W / (W + WRef), scaled down by the failed-detector
//      fraction: missing evidence is lowered confidence, never a hard error
//   5. risk band from fixed thresholds
//   6. primary bot type/name by weight plurality
//   7. verdict clamps: VerifiedGoodBot pins probability <= 0.10,
//      VerifiedBot pins >= 0.95 (and outranks a simultaneous good verdict)
//
// The slope default is tuned so a single verified-weight contribution
// (delta ~0.9, weight ~3) lands in the clamp region on its own.

// Config holds the fusion constants. All overridable via detector config.
type Config struct {
	Slope float64 // logistic steepness
	WRef  float64 // confidence reference weight
}

// DefaultConfig returns the tuned fusion defaults.
func DefaultConfig() Config {
	return Config{Slope: 1.1, WRef: 4.0}
}

// Result is the scalar outcome of one fusion pass.
type Result struct {
	Probability float64
	Confidence  float64
	Band        models.RiskBand
	BotType     models.BotType
	BotName     string
}

// Evaluate fuses the ledger. failedFraction is failed/(failed+contributing)
// detectors; 0 when nothing failed. Output is invariant under ledger
// permutation.
func Evaluate(contribs []models.DetectionContribution, failedFraction float64, cfg Config) Result {
	if cfg.Slope <= 0 {
		cfg.Slope = DefaultConfig().Slope
	}
	if cfg.WRef <= 0 {
		cfg.WRef = DefaultConfig().WRef
	}

	var signedSum, absWeight float64
	sawGood, sawBad := false, false
	for _, c := range contribs {
		if !finite(c.Delta) || !finite(c.Weight) {
			continue
		}
		signedSum += c.Weighted()
		absWeight += math.Abs(c.Weight)
		switch c.Verdict {
		case models.VerdictVerifiedGoodBot:
			sawGood = true
		case models.VerdictVerifiedBot:
			sawBad = true
		}
	}

	p := logistic(cfg.Slope * signedSum)

	// Verdict clamps. A confirmed-bad verification outranks a good one on
	// the same request (a spoofer can trip both paths, a real crawler can't).
	if sawBad {
		p = math.Max(p, 0.95)
	} else if sawGood {
		p = math.Min(p, 0.10)
	}

	conf := absWeight / (absWeight + cfg.WRef)
	if failedFraction > 0 {
		conf *= 1 - clamp01(failedFraction)
	}

	botType, botName := primaryClassification(contribs)

	return Result{
		Probability: clamp01(p),
		Confidence:  clamp01(conf),
		Band:        models.RiskBandFor(clamp01(p)),
		BotType:     botType,
		BotName:     botName,
	}
}

// primaryClassification picks the plurality bot type by accumulated weight
// among typed contributions; ties break on the highest single-contribution
// weight, then lexicographically so permuted ledgers agree.
func primaryClassification(contribs []models.DetectionContribution) (models.BotType, string) {
	typeWeight := map[models.BotType]float64{}
	typeMax := map[models.BotType]float64{}
	nameWeight := map[models.BotType]map[string]float64{}

	for _, c := range contribs {
		if c.BotType == "" || c.BotType == models.BotTypeUnknown {
			continue
		}
		typeWeight[c.BotType] += c.Weight
		if c.Weight > typeMax[c.BotType] {
			typeMax[c.BotType] = c.Weight
		}
		if c.BotName != "" {
			if nameWeight[c.BotType] == nil {
				nameWeight[c.BotType] = map[string]float64{}
			}
			nameWeight[c.BotType][c.BotName] += c.Weight
		}
	}
	if len(typeWeight) == 0 {
		return "", ""
	}

	types := make([]models.BotType, 0, len(typeWeight))
	for t := range typeWeight {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool {
		a, b := types[i], types[j]
		if typeWeight[a] != typeWeight[b] {
			return typeWeight[a] > typeWeight[b]
		}
		if typeMax[a] != typeMax[b] {
			return typeMax[a] > typeMax[b]
		}
		return a < b
	})
	winner := types[0]

	name := ""
	best := 0.0
	names := make([]string, 0, len(nameWeight[winner]))
	for n := range nameWeight[winner] {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		if w := nameWeight[winner][n]; w > best {
			best = w
			name = n
		}
	}
	return winner, name
}

func logistic(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
