package contributors

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/scottgal/stylobot/internal/blackboard"
	"github.com/scottgal/stylobot/internal/config"
	"github.com/scottgal/stylobot/internal/signals"
	"github.com/scottgal/stylobot/pkg/models"
)

// Response Behavior Analysis
//
// The response coordinator watches what the server has been answering this
// client: 404 volume and spread, honeypot path hits, auth failures, error
// template matches and rate-limit trips. A client whose history is mostly
// "not found" is enumerating, not browsing — the server already told us.
//
// Contributions scale with both severity (honeypots outrank 404s) and
// frequency.

type ResponseBehaviorContributor struct {
	base
	coordinator ResponseCoordinator
}

// NewResponseBehavior builds the response-side analyzer.
func NewResponseBehavior(cfg config.Provider, coordinator ResponseCoordinator) *ResponseBehaviorContributor {
	return &ResponseBehaviorContributor{
		base: base{
			name:     "ResponseBehavior",
			cfg:      cfg,
			priority: 33,
			timeout:  100 * time.Millisecond,
		},
		coordinator: coordinator,
	}
}

func (c *ResponseBehaviorContributor) Contribute(ctx context.Context, st *blackboard.State) ([]models.DetectionContribution, error) {
	if c.coordinator == nil {
		return []models.DetectionContribution{
			Info(c.name, models.CategoryResponse, "Response coordinator not available"),
		}, nil
	}
	sigKey, _ := st.SignalString(signals.RequestSignature)
	if sigKey == "" {
		return []models.DetectionContribution{
			Info(c.name, models.CategoryResponse, "No client signature to look up"),
		}, nil
	}

	behavior, err := c.coordinator.GetClientBehavior(ctx, sigKey)
	if err != nil {
		log.Debug().Err(err).Msg("response coordinator lookup failed")
		return []models.DetectionContribution{
			Info(c.name, models.CategoryResponse, "Response history lookup failed"),
		}, nil
	}
	if behavior == nil || behavior.TotalResponses == 0 {
		return []models.DetectionContribution{
			Info(c.name, models.CategoryResponse, "No response history for this client"),
		}, nil
	}

	conf := c.confidence()
	sig := map[string]any{
		signals.Response404Count:     behavior.NotFoundCount,
		signals.ResponseUnique404:    behavior.UniqueNotFoundPaths,
		signals.ResponseHoneypotHits: behavior.HoneypotHits,
		signals.ResponseAuthFailures: behavior.AuthFailures,
		signals.ResponseScore:        behavior.ResponseScore,
	}
	var out []models.DetectionContribution

	// 1. Honeypots — no legitimate path leads there
	if behavior.HoneypotHits > 0 {
		contrib := StrongBot(c.name, models.CategoryResponse, conf.StrongSignal,
			fmt.Sprintf("%d honeypot path hits", behavior.HoneypotHits))
		contrib.BotType = models.BotTypeMalicious
		out = append(out, contrib)
	}

	// 2. 404 scan pattern: volume + spread
	notFoundRatio := float64(behavior.NotFoundCount) / float64(behavior.TotalResponses)
	scan404Min := c.cfg.Int(c.name, "scan_404_count", 10)
	if behavior.NotFoundCount >= scan404Min && behavior.UniqueNotFoundPaths >= scan404Min/2 {
		sig[signals.ResponseScanPattern] = true
		mag := math.Min(conf.StrongSignal, conf.BotDetected+notFoundRatio*0.4)
		contrib := Bot(c.name, models.CategoryResponse, mag,
			fmt.Sprintf("404 scan pattern: %d misses across %d distinct paths (%.0f%% of traffic)",
				behavior.NotFoundCount, behavior.UniqueNotFoundPaths, notFoundRatio*100))
		contrib.BotType = models.BotTypeMalicious
		out = append(out, contrib)
	} else if notFoundRatio > 0.5 && behavior.TotalResponses >= 6 {
		out = append(out, Bot(c.name, models.CategoryResponse, conf.BotDetected*0.7,
			fmt.Sprintf("%.0f%% of responses are 404s", notFoundRatio*100)))
	}

	// 3. Auth failures
	authMin := c.cfg.Int(c.name, "auth_failure_count", 5)
	if behavior.AuthFailures >= authMin {
		st.WriteSignal(signals.AtoAuthFailures, behavior.AuthFailures)
		out = append(out, Bot(c.name, models.CategoryResponse, conf.BotDetected,
			fmt.Sprintf("%d authentication failures in response history", behavior.AuthFailures)))
	}

	// 4. Rate-limit and error-template trips
	if behavior.RateLimitHits >= 3 {
		sig[signals.ResponseRateLimitHits] = behavior.RateLimitHits
		out = append(out, Bot(c.name, models.CategoryResponse, conf.BotDetected*0.8,
			fmt.Sprintf("Tripped rate limiting %d times", behavior.RateLimitHits)))
	}
	if behavior.ErrorTemplateHits >= 5 {
		out = append(out, Bot(c.name, models.CategoryResponse, conf.BotDetected*0.6,
			fmt.Sprintf("%d error-template responses", behavior.ErrorTemplateHits)))
	}

	if len(out) == 0 {
		contrib := Neutral(c.name, models.CategoryResponse,
			fmt.Sprintf("Response history clean over %d responses", behavior.TotalResponses))
		contrib.Signals = sig
		return []models.DetectionContribution{contrib}, nil
	}
	out[len(out)-1].Signals = mergeSignals(out[len(out)-1].Signals, sig)
	return out, nil
}
