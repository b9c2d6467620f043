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

// Security Tool & AI Scraper Matching
//
// Matches the UA against the fetched wildcard lists: offensive tooling
// (sqlmap, nuclei, gobuster...) is conclusive hostile automation; declared
// AI-training scrapers (GPTBot, CCBot, Bytespider...) are conclusive
// automation of a different temperament. Both lists refresh in the
// background via the fetcher.

type SecurityToolContributor struct {
	base
	fetcher botlist.Fetcher
}

// NewSecurityTool builds the list-matching contributor.
func NewSecurityTool(cfg config.Provider, fetcher botlist.Fetcher) *SecurityToolContributor {
	return &SecurityToolContributor{
		base: base{
			name:     "SecurityTool",
			cfg:      cfg,
			priority: 12,
			timeout:  50 * time.Millisecond,
		},
		fetcher: fetcher,
	}
}

func (c *SecurityToolContributor) Contribute(_ context.Context, st *blackboard.State) ([]models.DetectionContribution, error) {
	ua := st.Request().UserAgent()
	if ua == "" {
		return []models.DetectionContribution{
			Info(c.name, models.CategoryIdentity, "No user agent to match"),
		}, nil
	}
	if c.fetcher == nil {
		return []models.DetectionContribution{
			Info(c.name, models.CategoryIdentity, "Bot list fetcher not available"),
		}, nil
	}

	conf := c.confidence()

	if pattern, ok := botlist.MatchPattern(c.fetcher.SecurityToolPatterns(), ua); ok {
		contrib := StrongBot(c.name, models.CategoryIdentity, conf.StrongSignal,
			"User agent matches security tool pattern "+pattern)
		contrib.BotType = models.BotTypeMalicious
		contrib.Signals = map[string]any{signals.BotListSecurityTool: true}
		return []models.DetectionContribution{contrib}, nil
	}

	if pattern, ok := botlist.MatchPattern(c.fetcher.AiScraperPatterns(), ua); ok {
		contrib := Bot(c.name, models.CategoryIdentity, conf.StrongSignal,
			"User agent matches AI scraper pattern "+pattern)
		contrib.BotType = models.BotTypeAiBot
		contrib.Signals = map[string]any{signals.BotListAiScraper: true}
		return []models.DetectionContribution{contrib}, nil
	}

	return []models.DetectionContribution{
		Info(c.name, models.CategoryIdentity, "No tool or scraper list match"),
	}, nil
}
