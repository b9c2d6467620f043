package contributors

import (
	"context"
	"time"

	"github.com/scottgal/stylobot/internal/blackboard"
	"github.com/scottgal/stylobot/internal/botlist"
	"github.com/scottgal/stylobot/internal/config"
	"github.com/scottgal/stylobot/internal/signals"
	"github.com/scottgal/stylobot/pkg/models"
)

// Verified Bot Check
//
// Proves or disproves crawler identity claims. Runs in the wave after
// UserAgent (gated on ua.present) so the claim signals exist:
//
//   claim + published IP range or FCrDNS proof → VerifiedGoodBot, early exit
//   claim + failed verification               → "Spoofed-<Name>", near-
//     conclusive bot evidence (impersonating Googlebot has exactly one
//     purpose), but NOT an early exit — the rest of the waves still run and
//     the spoofer's other tells land on the ledger
//
// Search-engine and AI crawlers both verify through the same registry; the
// honest-bot rDNS path also covers operators without published ranges.

type VerifiedBotContributor struct {
	base
	registry botlist.Registry
}

// NewVerifiedBot builds the crawler-verification contributor.
func NewVerifiedBot(cfg config.Provider, registry botlist.Registry) *VerifiedBotContributor {
	return &VerifiedBotContributor{
		base: base{
			name:     "VerifiedBot",
			cfg:      cfg,
			priority: 8,
			timeout:  500 * time.Millisecond, // may do two DNS round trips
			triggers: []blackboard.Trigger{blackboard.SignalExists(signals.UAPresent)},
		},
		registry: registry,
	}
}

func (c *VerifiedBotContributor) Contribute(ctx context.Context, st *blackboard.State) ([]models.DetectionContribution, error) {
	req := st.Request()
	if c.registry == nil {
		return []models.DetectionContribution{
			Info(c.name, models.CategoryIdentity, "Verified-bot registry not available"),
		}, nil
	}

	ua := req.UserAgent()
	result, claimed := c.registry.VerifyBot(ctx, ua, req.ClientIP)
	if !claimed {
		return []models.DetectionContribution{
			Info(c.name, models.CategoryIdentity, "No known-crawler identity claimed"),
		}, nil
	}

	sig := map[string]any{
		signals.VerifiedBotName:     result.BotName,
		signals.VerifiedBotVerified: result.IsVerified,
	}

	if result.IsVerified {
		sig[signals.VerifiedBotMethod] = result.VerificationMethod
		botType := result.BotType
		if botType == "" {
			botType = models.BotTypeGoodBot
		}
		contrib := VerifiedGoodBot(c.name, models.CategoryIdentity, botType, result.BotName,
			result.BotName+" verified via "+result.VerificationMethod)
		contrib.Signals = sig
		return []models.DetectionContribution{contrib}, nil
	}

	if req.ClientIP == "" {
		contrib := Info(c.name, models.CategoryIdentity,
			"Crawler claim "+result.BotName+" unverifiable without a client IP")
		contrib.Signals = sig
		return []models.DetectionContribution{contrib}, nil
	}

	sig[signals.VerifiedBotSpoofed] = true
	conf := c.confidence()
	contrib := StrongBot(c.name, models.CategoryIdentity, conf.StrongSignal,
		"Client claims "+result.BotName+" but fails IP range and rDNS verification")
	contrib.Weight = 2.0
	contrib.BotType = models.BotTypeMalicious
	contrib.BotName = "Spoofed-" + result.BotName
	contrib.Signals = sig
	return []models.DetectionContribution{contrib}, nil
}
