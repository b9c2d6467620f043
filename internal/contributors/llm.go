package contributors

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/scottgal/stylobot/internal/blackboard"
	"github.com/scottgal/stylobot/internal/config"
	"github.com/scottgal/stylobot/internal/signals"
	"github.com/scottgal/stylobot/pkg/models"
)

// LLM Classifier Adapter
//
// The LLM detector is an availability indicator, not a scorer: its
// contributions carry ZERO weight. The actual classification is coordinated
// outside the request path (the model's verdicts feed the reputation
// updater asynchronously); in-request it only records that the model saw
// the request and what it said, so operators can audit model coverage.
//
// The remote call is circuit-broken: a flapping model endpoint must never
// consume its full timeout on every request. Only risky traffic is sent to
// the model at all (RiskThreshold gate).

type LlmContributor struct {
	base
	detector Detector
	breaker  *gobreaker.CircuitBreaker
}

// NewLlm builds the circuit-broken LLM adapter. detector may be nil.
func NewLlm(cfg config.Provider, detector Detector) *LlmContributor {
	settings := gobreaker.Settings{
		Name:        "llm-detector",
		MaxRequests: 2,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("llm breaker state change")
		},
	}
	return &LlmContributor{
		base: base{
			name:     "Llm",
			cfg:      cfg,
			priority: 75,
			timeout:  3 * time.Second, // the one contributor allowed seconds
			triggers: []blackboard.Trigger{blackboard.AllOf(
				blackboard.DetectorCount(8),
				blackboard.RiskThreshold(models.RiskElevated),
			)},
		},
		detector: detector,
		breaker:  gobreaker.NewCircuitBreaker(settings),
	}
}

func (c *LlmContributor) Contribute(ctx context.Context, st *blackboard.State) ([]models.DetectionContribution, error) {
	if c.detector == nil {
		contrib := Info(c.name, models.CategoryLearned, "LLM detector not configured")
		contrib.Signals = map[string]any{signals.LlmAvailable: false}
		return []models.DetectionContribution{contrib}, nil
	}

	view := EvidenceView{
		Probability:   st.CurrentScore(),
		Contributions: len(st.Contributions()),
		Signals:       st.Signals(),
	}

	result, err := c.breaker.Execute(func() (any, error) {
		return c.detector.Detect(ctx, st.Request(), view)
	})
	if err != nil {
		contrib := Info(c.name, models.CategoryLearned, "LLM detector unavailable: "+err.Error())
		contrib.Signals = map[string]any{signals.LlmAvailable: false}
		return []models.DetectionContribution{contrib}, nil
	}

	findings := result.([]DetectorFinding)
	out := []models.DetectionContribution{}
	for _, f := range findings {
		// Zero weight: observable, auditable, non-scoring.
		out = append(out, models.DetectionContribution{
			Detector: c.name,
			Category: models.CategoryLearned,
			Delta:    clampSigned(f.Delta),
			Weight:   0,
			Reason:   f.Reason,
			BotType:  f.BotType,
			BotName:  f.BotName,
			Verdict:  models.VerdictInfo,
		})
	}
	if len(out) == 0 {
		out = append(out, Info(c.name, models.CategoryLearned, "LLM detector returned no findings"))
	}
	out[len(out)-1].Signals = map[string]any{signals.LlmAvailable: true}
	return out, nil
}
