package contributors

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/scottgal/stylobot/internal/blackboard"
	"github.com/scottgal/stylobot/internal/config"
	"github.com/scottgal/stylobot/internal/signals"
	"github.com/scottgal/stylobot/pkg/models"
)

// Learned-Model Heuristic
//
// Adapter between the orchestrator and a Detector implementation. Two
// placements of the same adapter ship by default:
//
//   Heuristic     — first wave, sees the bare request (it must run even
//                   with no UA, no signals, nothing)
//   HeuristicLate — after ten detectors, sees the half-built evidence
//                   view and refines
//
// The models themselves are external; BaselineHeuristic below is the
// in-process fallback wired when no model is injected, so the engine is
// never blind.

type HeuristicContributor struct {
	base
	detector  Detector
	signalKey string
}

// NewHeuristic builds the first-wave adapter.
func NewHeuristic(cfg config.Provider, detector Detector) *HeuristicContributor {
	if detector == nil {
		detector = BaselineHeuristic{}
	}
	return &HeuristicContributor{
		base: base{
			name:     "Heuristic",
			cfg:      cfg,
			priority: 28,
			timeout:  100 * time.Millisecond,
		},
		detector:  detector,
		signalKey: signals.HeuristicScore,
	}
}

// NewHeuristicLate builds the refinement-pass adapter.
func NewHeuristicLate(cfg config.Provider, detector Detector) *HeuristicContributor {
	if detector == nil {
		detector = BaselineHeuristic{}
	}
	return &HeuristicContributor{
		base: base{
			name:     "HeuristicLate",
			cfg:      cfg,
			priority: 70,
			timeout:  150 * time.Millisecond,
			triggers: []blackboard.Trigger{blackboard.DetectorCount(10)},
		},
		detector:  detector,
		signalKey: signals.HeuristicLateScore,
	}
}

func (c *HeuristicContributor) Contribute(ctx context.Context, st *blackboard.State) ([]models.DetectionContribution, error) {
	view := EvidenceView{
		Probability:   st.CurrentScore(),
		Contributions: len(st.Contributions()),
		Signals:       st.Signals(),
	}

	findings, err := c.detector.Detect(ctx, st.Request(), view)
	if err != nil {
		log.Debug().Err(err).Str("detector", c.detector.Name()).Msg("heuristic model failed")
		return []models.DetectionContribution{
			Info(c.name, models.CategoryLearned, "Model "+c.detector.Name()+" unavailable"),
		}, nil
	}
	if len(findings) == 0 {
		return []models.DetectionContribution{
			Info(c.name, models.CategoryLearned, "Model "+c.detector.Name()+" found nothing notable"),
		}, nil
	}

	weight := c.cfg.Float(c.name, "weight", 1.0)
	var out []models.DetectionContribution
	score := 0.0
	for _, f := range findings {
		contrib := models.DetectionContribution{
			Detector: c.name,
			Category: models.CategoryLearned,
			Delta:    clampSigned(f.Delta),
			Weight:   weight,
			Reason:   f.Reason,
			BotType:  f.BotType,
			BotName:  f.BotName,
		}
		score += contrib.Weighted()
		out = append(out, contrib)
	}
	out[len(out)-1].Signals = map[string]any{c.signalKey: score}
	return out, nil
}

func clampSigned(d float64) float64 {
	return math.Max(-1, math.Min(1, d))
}

// BaselineHeuristic is the zero-dependency fallback model: coarse request
// shape rules, intentionally mild so real models outrank it.
type BaselineHeuristic struct{}

func (BaselineHeuristic) Name() string { return "baseline" }

func (BaselineHeuristic) Detect(_ context.Context, req *models.RequestSnapshot, view EvidenceView) ([]DetectorFinding, error) {
	var out []DetectorFinding

	if req.UserAgent() == "" {
		out = append(out, DetectorFinding{Reason: "no user agent", Delta: 0.3, BotType: models.BotTypeScraper})
	}
	if req.HeaderCount() <= 3 {
		out = append(out, DetectorFinding{Reason: "nearly bare header set", Delta: 0.25})
	}
	if req.Method == "HEAD" {
		out = append(out, DetectorFinding{Reason: "HEAD probe", Delta: 0.15})
	}
	if req.Protocol == "HTTP/2" && req.HeaderCount() >= 8 {
		out = append(out, DetectorFinding{Reason: "rich h2 request", Delta: -0.15})
	}
	return out, nil
}
