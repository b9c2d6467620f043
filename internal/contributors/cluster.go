package contributors

import (
	"context"
	"fmt"
	"time"

	"github.com/scottgal/stylobot/internal/blackboard"
	"github.com/scottgal/stylobot/internal/config"
	"github.com/scottgal/stylobot/internal/signals"
	"github.com/scottgal/stylobot/pkg/models"
)

// Cluster Membership
//
// Where Similarity asks "who does this request resemble?", Cluster asks
// "which campaign does it belong to?". The same ANN index is queried with a
// tighter similarity floor; a dense, predominantly-bot neighborhood is
// treated as an active campaign and its identity is published as signals
// (via WriteSignals, so downstream waves and the evidence object see the
// cluster even when the scoring lean is small).

type ClusterContributor struct {
	base
	index SimilaritySearch
}

// NewCluster builds the campaign-clustering contributor.
func NewCluster(cfg config.Provider, index SimilaritySearch) *ClusterContributor {
	return &ClusterContributor{
		base: base{
			name:     "Cluster",
			cfg:      cfg,
			priority: 52,
			timeout:  150 * time.Millisecond,
			triggers: []blackboard.Trigger{blackboard.DetectorCount(6)},
		},
		index: index,
	}
}

func (c *ClusterContributor) Contribute(ctx context.Context, st *blackboard.State) ([]models.DetectionContribution, error) {
	if c.index == nil || c.index.Count() == 0 {
		return []models.DetectionContribution{
			Info(c.name, models.CategorySimilarity, "Cluster index not available"),
		}, nil
	}

	minSim := c.cfg.Float(c.name, "min_similarity", 0.92)
	topK := c.cfg.Int(c.name, "top_k", 25)
	matches, err := c.index.FindSimilar(ctx, FeatureVector(st), topK, minSim)
	if err != nil || len(matches) < 5 {
		return []models.DetectionContribution{
			Info(c.name, models.CategorySimilarity, "No dense cluster around this signature"),
		}, nil
	}

	bots := 0
	clusterID := ""
	for _, m := range matches {
		if m.WasBot {
			bots++
		}
		if clusterID == "" && m.Metadata != nil {
			clusterID = m.Metadata["cluster"]
		}
	}
	botRatio := float64(bots) / float64(len(matches))

	st.WriteSignals(map[string]any{
		signals.ClusterID:       clusterID,
		signals.ClusterSize:     len(matches),
		signals.ClusterBotRatio: botRatio,
	})

	conf := c.confidence()
	if botRatio >= 0.9 {
		contrib := StrongBot(c.name, models.CategorySimilarity, conf.StrongSignal,
			fmt.Sprintf("Member of an active bot campaign (%d signatures, %.0f%% bot)", len(matches), botRatio*100))
		contrib.BotType = models.BotTypeMalicious
		return []models.DetectionContribution{contrib}, nil
	}
	return []models.DetectionContribution{
		Neutral(c.name, models.CategorySimilarity,
			fmt.Sprintf("Dense cluster of %d signatures, %.0f%% bot", len(matches), botRatio*100)),
	}, nil
}
