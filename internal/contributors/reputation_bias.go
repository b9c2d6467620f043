package contributors

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/scottgal/stylobot/internal/blackboard"
	"github.com/scottgal/stylobot/internal/config"
	"github.com/scottgal/stylobot/internal/reputation"
	"github.com/scottgal/stylobot/internal/signals"
	"github.com/scottgal/stylobot/pkg/models"
)

// Reputation Bias
//
// Priority 45 — the fine-grained counterpart to FastPathReputation. Where
// the fast path only acts on confirmed states, this one converts
// Neutral-but-trending pattern scores and long-horizon time-series stats
// into proportional leans:
//
//   - combined (ua|ip|path) pattern score trending high or low
//   - Suspect state: mid-strength bot lean
//   - time-series bot ratio and last-hour velocity for the signature
//
// Everything here is a bias, never a verdict: trending evidence should tip
// a borderline request, not convict a clean one.

type ReputationBiasContributor struct {
	base
	cache      reputation.Cache
	timeSeries TimeSeriesReputationProvider
}

// NewReputationBias builds the trend-bias contributor.
func NewReputationBias(cfg config.Provider, cache reputation.Cache, ts TimeSeriesReputationProvider) *ReputationBiasContributor {
	return &ReputationBiasContributor{
		base: base{
			name:     "ReputationBias",
			cfg:      cfg,
			priority: 45,
			timeout:  100 * time.Millisecond,
			triggers: []blackboard.Trigger{blackboard.DetectorCount(6)},
		},
		cache:      cache,
		timeSeries: ts,
	}
}

func (c *ReputationBiasContributor) Contribute(ctx context.Context, st *blackboard.State) ([]models.DetectionContribution, error) {
	var out []models.DetectionContribution
	highTrend := c.cfg.Float(c.name, "high_trend_threshold", 0.70)
	lowTrend := c.cfg.Float(c.name, "low_trend_threshold", 0.30)

	if c.cache != nil {
		for _, key := range []string{signals.RequestCombinedPattern, signals.RequestUAPattern} {
			pattern, ok := st.SignalString(key)
			if !ok || pattern == "" {
				continue
			}
			rep, found := c.cache.Get(pattern)
			if !found || rep.Support < 3 {
				continue
			}
			switch {
			case rep.State == models.ReputationSuspect:
				out = append(out, Bot(c.name, models.CategoryReputation, 0.45,
					fmt.Sprintf("Pattern %s is under suspicion (score %.2f)", pattern, rep.BotScore)))
			case rep.State == models.ReputationNeutral && rep.BotScore >= highTrend:
				out = append(out, Bot(c.name, models.CategoryReputation, (rep.BotScore-0.5)*0.8,
					fmt.Sprintf("Pattern %s trending bot (score %.2f over %d observations)", pattern, rep.BotScore, rep.Support)))
			case rep.State == models.ReputationNeutral && rep.BotScore <= lowTrend:
				out = append(out, Human(c.name, models.CategoryReputation, (0.5-rep.BotScore)*0.8,
					fmt.Sprintf("Pattern %s trending human (score %.2f over %d observations)", pattern, rep.BotScore, rep.Support)))
			}
			break // first pattern with usable support wins
		}
	}

	if c.timeSeries != nil {
		if sigKey, ok := st.SignalString(signals.RequestSignature); ok && sigKey != "" {
			stats, err := c.timeSeries.GetReputation(ctx, sigKey)
			if err != nil {
				log.Debug().Err(err).Msg("time-series reputation unavailable")
			} else if stats != nil && stats.HitCount > 0 {
				st.WriteSignal(signals.RepTSBotRatio, stats.BotRatio)
				st.WriteSignal(signals.RepTSVelocity, stats.LastHourVelocity)

				highVelocity := c.cfg.Float(c.name, "high_velocity_per_hour", 50)
				if stats.BotRatio >= 0.8 && stats.HitCount >= 10 {
					out = append(out, Bot(c.name, models.CategoryReputation, 0.5,
						fmt.Sprintf("%.0f%% of %d historical requests judged bot", stats.BotRatio*100, stats.HitCount)))
				}
				if stats.LastHourVelocity >= highVelocity {
					out = append(out, Bot(c.name, models.CategoryReputation, 0.4,
						fmt.Sprintf("High request velocity: %.0f requests in the last hour", stats.LastHourVelocity)))
				}
				if stats.DaysActive >= 30 && stats.BotRatio <= 0.1 {
					out = append(out, Human(c.name, models.CategoryReputation, 0.35,
						fmt.Sprintf("Clean %d-day history", stats.DaysActive)))
				}
			}
		}
	}

	if len(out) == 0 {
		out = append(out, Info(c.name, models.CategoryReputation, "No reputation trend to apply"))
	}
	return out, nil
}
