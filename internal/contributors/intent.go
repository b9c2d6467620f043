package contributors

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/scottgal/stylobot/internal/blackboard"
	"github.com/scottgal/stylobot/internal/config"
	"github.com/scottgal/stylobot/internal/signals"
	"github.com/scottgal/stylobot/pkg/models"
)

// Session Intent
//
// Scores WHAT the session is doing, independently of whether a human or a
// program is doing it. Primary source: the known-intent index — sessions
// whose intent was established after the fact. The threat score is the
// similarity-weighted average of the neighbors' scores; the category is the
// plurality category.
//
// Without an index (or without enough neighbors) the aggregator's own rule
// ladder takes over at evidence-assembly time; in that case this
// contributor only reports availability.

type IntentContributor struct {
	base
	index IntentSearch
}

// NewIntent builds the intent scorer. It runs late so the vector reflects
// the full signal set.
func NewIntent(cfg config.Provider, index IntentSearch) *IntentContributor {
	return &IntentContributor{
		base: base{
			name:     "Intent",
			cfg:      cfg,
			priority: 60,
			timeout:  150 * time.Millisecond,
			triggers: []blackboard.Trigger{blackboard.DetectorCount(8)},
		},
		index: index,
	}
}

func (c *IntentContributor) Contribute(ctx context.Context, st *blackboard.State) ([]models.DetectionContribution, error) {
	if c.index == nil {
		return []models.DetectionContribution{
			Info(c.name, models.CategoryIntent, "Intent index not available, rule-based intent applies"),
		}, nil
	}

	topK := c.cfg.Int(c.name, "top_k", 10)
	minSim := c.cfg.Float(c.name, "min_similarity", 0.75)
	matches, err := c.index.FindSimilar(ctx, FeatureVector(st), topK, minSim)
	if err != nil {
		log.Debug().Err(err).Msg("intent search failed")
		return []models.DetectionContribution{
			Info(c.name, models.CategoryIntent, "Intent search failed, rule-based intent applies"),
		}, nil
	}
	if len(matches) < 3 {
		return []models.DetectionContribution{
			Info(c.name, models.CategoryIntent, "Too few intent neighbors, rule-based intent applies"),
		}, nil
	}

	// Similarity-weighted average threat; plurality category.
	var weightSum, scoreSum float64
	categoryVotes := map[models.IntentCategory]float64{}
	for _, m := range matches {
		w := 1 - m.Distance
		if w <= 0 {
			continue
		}
		weightSum += w
		scoreSum += w * m.ThreatScore
		categoryVotes[m.IntentCategory] += w
	}
	if weightSum == 0 {
		return []models.DetectionContribution{
			Info(c.name, models.CategoryIntent, "Intent neighbors carried no usable weight"),
		}, nil
	}
	threat := scoreSum / weightSum

	category := models.IntentBrowsing
	best := 0.0
	for cat, votes := range categoryVotes {
		if votes > best {
			best, category = votes, cat
		}
	}

	contrib := Info(c.name, models.CategoryIntent,
		fmt.Sprintf("Session resembles %s sessions (threat %.2f, %d neighbors)", category, threat, len(matches)))
	contrib.Signals = map[string]any{
		signals.IntentThreatScore: threat,
		signals.IntentCategoryKey: string(category),
	}
	return []models.DetectionContribution{contrib}, nil
}
