package contributors

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/scottgal/stylobot/internal/blackboard"
	"github.com/scottgal/stylobot/internal/config"
	"github.com/scottgal/stylobot/internal/signals"
	"github.com/scottgal/stylobot/pkg/models"
)

// Header Analysis
//
// Browsers ship a dense, predictable header set; scripted clients ship a
// sparse one. Checks:
//
//   - overall header count vs the browser baseline
//   - Accept-Language (every interactive browser sends one)
//   - Accept / Accept-Encoding presence and shape
//   - sec-ch-ua client hints (Chromium-family claims should carry them)
//   - WebSocket upgrades are exempted from the count checks: an Upgrade
//     request legitimately carries a minimal header set, so judging it by
//     browser-navigation standards would flag every real-time client.

type HeaderContributor struct {
	base
}

// NewHeader builds the first-wave header analyzer.
func NewHeader(cfg config.Provider) *HeaderContributor {
	return &HeaderContributor{base: base{
		name:     "Header",
		cfg:      cfg,
		priority: 10,
		timeout:  50 * time.Millisecond,
	}}
}

func (c *HeaderContributor) Contribute(_ context.Context, st *blackboard.State) ([]models.DetectionContribution, error) {
	req := st.Request()
	conf := c.confidence()
	count := req.HeaderCount()

	isUpgrade := strings.EqualFold(req.Header("Upgrade"), "websocket") ||
		strings.Contains(strings.ToLower(req.Header("Connection")), "upgrade")

	hasAcceptLanguage := req.HasHeader("Accept-Language")
	hasSecChUA := req.HasHeader("Sec-Ch-Ua")

	sig := map[string]any{
		signals.HeaderCount:             count,
		signals.HeaderHasAcceptLanguage: hasAcceptLanguage,
		signals.HeaderHasSecChUA:        hasSecChUA,
		signals.HeaderWebSocketUpgrade:  isUpgrade,
	}
	if hasAcceptLanguage {
		sig[signals.HeaderAcceptLanguage] = req.Header("Accept-Language")
	}

	var out []models.DetectionContribution

	if isUpgrade {
		// Minimal headers are normal on an upgrade; protocol-level
		// validation belongs to TransportProtocol.
		contrib := Info(c.name, models.CategoryIdentity, "WebSocket upgrade request, header-count checks skipped")
		contrib.Signals = sig
		return []models.DetectionContribution{contrib}, nil
	}

	missing := []string{}
	if !hasAcceptLanguage {
		missing = append(missing, "Accept-Language")
	}
	if !req.HasHeader("Accept") {
		missing = append(missing, "Accept")
	}
	if !req.HasHeader("Accept-Encoding") {
		missing = append(missing, "Accept-Encoding")
	}

	minHeaders := c.cfg.Int(c.name, "min_browser_headers", 6)

	switch {
	case len(missing) >= 2 || count < minHeaders:
		sig[signals.HeaderMissingCommon] = true
		mag := conf.BotDetected
		if len(missing) >= 2 && count < minHeaders {
			mag = conf.StrongSignal
		}
		contrib := Bot(c.name, models.CategoryIdentity, mag,
			fmt.Sprintf("Sparse header set: %d headers, missing %s", count, strings.Join(missing, ", ")))
		contrib.BotType = models.BotTypeScraper
		contrib.Signals = sig
		out = append(out, contrib)

	case len(missing) == 1:
		contrib := Bot(c.name, models.CategoryIdentity, conf.BotDetected*0.5,
			"Missing "+missing[0]+" header")
		contrib.Signals = sig
		out = append(out, contrib)

	default:
		reason := "Full browser header set"
		mag := conf.HumanSignal * 0.5
		if hasSecChUA {
			reason = "Full browser header set with client hints"
			mag = conf.HumanSignal
		}
		contrib := Human(c.name, models.CategoryIdentity, mag, reason)
		contrib.Signals = sig
		out = append(out, contrib)
	}
	return out, nil
}
