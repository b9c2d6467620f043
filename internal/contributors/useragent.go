package contributors

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/scottgal/stylobot/internal/blackboard"
	"github.com/scottgal/stylobot/internal/config"
	"github.com/scottgal/stylobot/internal/signals"
	"github.com/scottgal/stylobot/pkg/models"
)

// User-Agent Analysis
//
// First-wave identity parsing. The UA string is trivially forgeable, so on
// its own it only produces leans — but the signals it writes (claimed
// browser, claimed OS, claimed bot identity) are what the verification and
// correlation contributors in later waves check against reality:
//
//   - no UA at all: strong bot signal (every browser sends one)
//   - raw HTTP clients (curl, wget, python-requests, Go-http-client): the
//     client is telling the truth about being a program
//   - headless browser markers
//   - claimed crawler identity → handed to VerifiedBot for FCrDNS proof
//   - plausible browser UA → mild human lean

type UserAgentContributor struct {
	base
}

var botNameRE = regexp.MustCompile(`(?i)([a-z0-9_-]*(?:bot|crawler|spider))[/ ]?([0-9.]*)`)

var rawClientTokens = []string{
	"curl", "wget", "python-requests", "python-urllib", "python/", "go-http-client",
	"java/", "okhttp", "libwww-perl", "httpie", "axios", "node-fetch", "scrapy", "aiohttp",
}

var headlessTokens = []string{"headlesschrome", "phantomjs", "puppeteer", "playwright", "selenium", "electron"}

// NewUserAgent builds the first-wave UA parser.
func NewUserAgent(cfg config.Provider) *UserAgentContributor {
	return &UserAgentContributor{base: base{
		name:     "UserAgent",
		cfg:      cfg,
		priority: 5,
		timeout:  50 * time.Millisecond,
	}}
}

func (c *UserAgentContributor) Contribute(_ context.Context, st *blackboard.State) ([]models.DetectionContribution, error) {
	req := st.Request()
	ua := req.UserAgent()
	conf := c.confidence()

	if strings.TrimSpace(ua) == "" {
		missing := c.cfg.Float(c.name, "missing_ua_confidence", 0.70)
		contrib := Bot(c.name, models.CategoryIdentity, missing, "Missing User-Agent header")
		contrib.BotType = models.BotTypeScraper
		contrib.Signals = map[string]any{
			signals.UAPresent: false,
			signals.UAIsBot:   true,
		}
		return []models.DetectionContribution{contrib}, nil
	}

	lower := strings.ToLower(ua)
	sig := map[string]any{
		signals.UAPresent: true,
		signals.UALength:  len(ua),
	}
	var out []models.DetectionContribution

	// 1. Raw HTTP clients — honest programs
	for _, tok := range rawClientTokens {
		if strings.Contains(lower, tok) {
			name := strings.TrimSuffix(strings.TrimSuffix(tok, "/"), "-")
			contrib := StrongBot(c.name, models.CategoryIdentity, conf.StrongSignal,
				fmt.Sprintf("Raw HTTP client user agent (%q)", name))
			contrib.BotType = models.BotTypeScraper
			contrib.BotName = name
			sig[signals.UAIsBot] = true
			sig[signals.UAAutomationToken] = name
			contrib.Signals = sig
			out = append(out, contrib)
			return out, nil
		}
	}

	// 2. Headless browsers
	for _, tok := range headlessTokens {
		if strings.Contains(lower, tok) {
			contrib := Bot(c.name, models.CategoryIdentity, conf.BotDetected,
				fmt.Sprintf("Headless browser marker (%q)", tok))
			contrib.BotType = models.BotTypeScraper
			sig[signals.UAIsHeadless] = true
			sig[signals.UAIsBot] = true
			contrib.Signals = sig
			out = append(out, contrib)
			return out, nil
		}
	}

	// 3. Declared crawlers — identity claim only; VerifiedBot proves or
	// disproves it in the next wave.
	if m := botNameRE.FindStringSubmatch(ua); m != nil {
		sig[signals.UAIsBot] = true
		sig[signals.UAClaimedBotName] = m[1]
		contrib := Bot(c.name, models.CategoryIdentity, conf.BotDetected,
			fmt.Sprintf("Self-declared crawler (%q)", m[1]))
		contrib.BotType = models.BotTypeGoodBot
		contrib.BotName = m[1]
		contrib.Signals = sig
		out = append(out, contrib)
		return out, nil
	}

	// 4. Browser claim — record what it says, lean mildly human
	browser, version := claimedBrowser(lower, ua)
	os := claimedOS(lower)
	if browser != "" {
		sig[signals.UABrowser] = browser
		sig[signals.UABrowserVersion] = version
	}
	if os != "" {
		sig[signals.UAOS] = os
	}

	if browser != "" && os != "" {
		contrib := Human(c.name, models.CategoryIdentity, conf.HumanSignal*0.5,
			fmt.Sprintf("Well-formed browser user agent (%s on %s)", browser, os))
		contrib.Signals = sig
		out = append(out, contrib)
	} else {
		contrib := Neutral(c.name, models.CategoryIdentity, "Unrecognized user agent shape")
		contrib.Signals = sig
		out = append(out, contrib)
	}
	return out, nil
}

func claimedBrowser(lower, raw string) (string, string) {
	type probe struct{ token, name string }
	// Order matters: Edge contains "chrome", Chrome contains "safari".
	for _, p := range []probe{
		{"edg/", "edge"}, {"edge/", "edge"},
		{"chrome/", "chrome"}, {"crios/", "chrome"},
		{"firefox/", "firefox"}, {"fxios/", "firefox"},
		{"version/", "safari"},
	} {
		if idx := strings.Index(lower, p.token); idx >= 0 {
			if p.name == "safari" && !strings.Contains(lower, "safari") {
				continue
			}
			rest := raw[idx+len(p.token):]
			end := strings.IndexAny(rest, " ;)")
			if end < 0 {
				end = len(rest)
			}
			return p.name, rest[:end]
		}
	}
	return "", ""
}

func claimedOS(lower string) string {
	switch {
	case strings.Contains(lower, "android"):
		return "android"
	case strings.Contains(lower, "iphone"), strings.Contains(lower, "ipad"):
		return "ios"
	case strings.Contains(lower, "windows"):
		return "windows"
	case strings.Contains(lower, "mac os"), strings.Contains(lower, "macintosh"):
		return "macos"
	case strings.Contains(lower, "linux"), strings.Contains(lower, "x11"):
		return "linux"
	}
	return ""
}
