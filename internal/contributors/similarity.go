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

// Signature Similarity
//
// Projects the accumulated signal set into a feature vector and asks the
// approximate-nearest-neighbor index who this request resembles. If the
// neighborhood above the similarity floor is predominantly one class, the
// contribution biases toward that class, scaled by the majority share.
// The index itself lives outside the engine; only the search contract is
// consumed here.

type SimilarityContributor struct {
	base
	index SimilaritySearch
}

// NewSimilarity builds the ANN-bias contributor. It waits for the identity
// and behavioral waves so the vector has something to encode.
func NewSimilarity(cfg config.Provider, index SimilaritySearch) *SimilarityContributor {
	return &SimilarityContributor{
		base: base{
			name:     "Similarity",
			cfg:      cfg,
			priority: 50,
			timeout:  150 * time.Millisecond,
			triggers: []blackboard.Trigger{blackboard.DetectorCount(6)},
		},
		index: index,
	}
}

func (c *SimilarityContributor) Contribute(ctx context.Context, st *blackboard.State) ([]models.DetectionContribution, error) {
	if c.index == nil || c.index.Count() == 0 {
		return []models.DetectionContribution{
			Info(c.name, models.CategorySimilarity, "Similarity index not available"),
		}, nil
	}

	vector := FeatureVector(st)
	topK := c.cfg.Int(c.name, "top_k", 10)
	minSim := c.cfg.Float(c.name, "min_similarity", 0.80)

	matches, err := c.index.FindSimilar(ctx, vector, topK, minSim)
	if err != nil {
		log.Debug().Err(err).Msg("similarity search failed")
		return []models.DetectionContribution{
			Info(c.name, models.CategorySimilarity, "Similarity search failed"),
		}, nil
	}
	if len(matches) < 3 {
		return []models.DetectionContribution{
			Info(c.name, models.CategorySimilarity,
				fmt.Sprintf("Only %d neighbors above similarity floor", len(matches))),
		}, nil
	}

	bots := 0
	for _, m := range matches {
		if m.WasBot {
			bots++
		}
	}
	botRatio := float64(bots) / float64(len(matches))
	sig := map[string]any{
		signals.SimilarityNeighbors: len(matches),
		signals.SimilarityBotRatio:  botRatio,
	}

	conf := c.confidence()
	var contrib models.DetectionContribution
	switch {
	case botRatio >= 0.8:
		contrib = Bot(c.name, models.CategorySimilarity, conf.BotDetected*botRatio,
			fmt.Sprintf("%d/%d nearest known signatures were bots", bots, len(matches)))
	case botRatio <= 0.2:
		contrib = Human(c.name, models.CategorySimilarity, conf.HumanSignal*(1-botRatio),
			fmt.Sprintf("%d/%d nearest known signatures were human", len(matches)-bots, len(matches)))
	default:
		contrib = Neutral(c.name, models.CategorySimilarity,
			fmt.Sprintf("Mixed neighborhood (%d/%d bot)", bots, len(matches)))
	}
	contrib.Signals = sig
	return []models.DetectionContribution{contrib}, nil
}

// FeatureVector encodes the signal set into the fixed-order vector the
// similarity and intent indexes were built on. Order is part of the index
// contract — append, never reorder.
func FeatureVector(st *blackboard.State) []float64 {
	b2f := func(key string) float64 {
		if st.SignalBool(key) {
			return 1
		}
		return 0
	}
	f := func(key string) float64 {
		v, _ := st.SignalFloat(key)
		return v
	}

	headerCount, _ := st.SignalFloat(signals.HeaderCount)
	uaLen, _ := st.SignalFloat(signals.UALength)

	return []float64{
		b2f(signals.UAPresent),
		b2f(signals.UAIsBot),
		b2f(signals.UAIsHeadless),
		uaLen / 300,
		headerCount / 20,
		b2f(signals.HeaderHasAcceptLanguage),
		b2f(signals.HeaderHasSecChUA),
		b2f(signals.TLSPresent),
		b2f(signals.H2Present),
		b2f(signals.H3Present),
		b2f(signals.NetIsDatacenter),
		f(signals.BehaviorRegularityCV),
		f(signals.BehaviorBurst60s) / 60,
		f(signals.BehaviorPathDiversity),
		b2f(signals.BehaviorSequential),
		b2f(signals.AttackDetected),
		f(signals.AttackCategoryCount) / 5,
		f(signals.Response404Count) / 50,
		b2f(signals.AtoDetected),
		b2f(signals.ProtoWebSocket),
		b2f(signals.ProtoSSE),
	}
}
