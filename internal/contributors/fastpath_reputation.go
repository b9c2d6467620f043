package contributors

import (
	"context"
	"fmt"
	"time"

	"github.com/scottgal/stylobot/internal/blackboard"
	"github.com/scottgal/stylobot/internal/config"
	"github.com/scottgal/stylobot/internal/reputation"
	"github.com/scottgal/stylobot/internal/signals"
	"github.com/scottgal/stylobot/pkg/models"
)

// Fast-Path Reputation
//
// Priority 3 — the first thing that runs. Looks up the normalized UA and IP
// patterns in the reputation cache and converts confirmed knowledge into
// the cheapest possible verdict:
//
//   IP pattern ConfirmedGood/ManuallyAllowed → VerifiedGoodBot, early exit
//   IP pattern ConfirmedBad/ManuallyBlocked  → VerifiedBot, early exit
//   UA pattern good/bad                      → strong lean, NO early exit
//
// The asymmetry is deliberate: an IP block is one operator's address space,
// a UA pattern is shared by every client running that software. A confirmed
// bad UA still deserves a full analysis because the person behind it might
// be the one legitimate user of an abused client.

type FastPathReputationContributor struct {
	base
	cache reputation.Cache
}

// NewFastPathReputation builds the priority-3 cache lookup.
func NewFastPathReputation(cfg config.Provider, cache reputation.Cache) *FastPathReputationContributor {
	return &FastPathReputationContributor{
		base: base{
			name:     "FastPathReputation",
			cfg:      cfg,
			priority: 3,
			timeout:  30 * time.Millisecond,
		},
		cache: cache,
	}
}

func (c *FastPathReputationContributor) Contribute(_ context.Context, st *blackboard.State) ([]models.DetectionContribution, error) {
	if c.cache == nil {
		return []models.DetectionContribution{
			Info(c.name, models.CategoryReputation, "Reputation cache not available"),
		}, nil
	}

	var out []models.DetectionContribution
	sig := map[string]any{}

	// IP pattern — may early-exit either way
	if ipPattern, ok := st.SignalString(signals.RequestIPPattern); ok && ipPattern != "" {
		if rep, found := c.cache.Get(ipPattern); found {
			sig[signals.RepIPState] = string(rep.State)
			sig[signals.RepIPScore] = rep.BotScore

			switch {
			case rep.CanTriggerFastAllow():
				sig[signals.RepFastPathHit] = true
				contrib := VerifiedGoodBot(c.name, models.CategoryReputation, models.BotTypeGoodBot, "",
					fmt.Sprintf("IP pattern %s is %s (support %d)", ipPattern, rep.State, rep.Support))
				contrib.Signals = sig
				return append(out, contrib), nil
			case rep.CanTriggerFastAbort():
				sig[signals.RepFastPathHit] = true
				contrib := VerifiedBot(c.name, models.CategoryReputation, models.BotTypeMalicious, "",
					fmt.Sprintf("IP pattern %s is %s (support %d)", ipPattern, rep.State, rep.Support))
				contrib.Signals = sig
				return append(out, contrib), nil
			}
		}
	}

	// UA pattern — strong lean only, never an exit
	if uaPattern, ok := st.SignalString(signals.RequestUAPattern); ok && uaPattern != "" {
		if rep, found := c.cache.Get(uaPattern); found {
			sig[signals.RepUAState] = string(rep.State)
			sig[signals.RepUAScore] = rep.BotScore

			conf := c.confidence()
			switch rep.State {
			case models.ReputationConfirmedGood, models.ReputationManuallyAllowed:
				contrib := Human(c.name, models.CategoryReputation, conf.StrongSignal,
					fmt.Sprintf("UA pattern is %s (support %d)", rep.State, rep.Support))
				contrib.Weight = 1.5
				contrib.Signals = sig
				out = append(out, contrib)
			case models.ReputationConfirmedBad, models.ReputationManuallyBlocked:
				contrib := StrongBot(c.name, models.CategoryReputation, conf.StrongSignal,
					fmt.Sprintf("UA pattern is %s (support %d)", rep.State, rep.Support))
				contrib.Signals = sig
				out = append(out, contrib)
			}
		}
	}

	if len(out) == 0 {
		contrib := Info(c.name, models.CategoryReputation, "No actionable reputation for this client")
		if len(sig) > 0 {
			contrib.Signals = sig
		}
		out = append(out, contrib)
	}
	return out, nil
}
