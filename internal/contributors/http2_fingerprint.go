package contributors

import (
	"context"
	"strings"
	"time"

	"github.com/scottgal/stylobot/internal/blackboard"
	"github.com/scottgal/stylobot/internal/config"
	"github.com/scottgal/stylobot/internal/signals"
	"github.com/scottgal/stylobot/pkg/models"
)

// HTTP/2 Fingerprint (AKAMAI-style)
//
// The SETTINGS frame values, window sizes and pseudo-header order an HTTP/2
// client sends are a product of its networking library. Browsers cluster
// tightly; most scraping stacks either stay on HTTP/1.1 or expose a
// distinctive h2 shape. On an HTTP/1.1 request this contributor emits the
// mild "modern browsers speak h2" lean and stops.

type Http2FingerprintContributor struct {
	base
}

// Fingerprint prefixes rather than exact strings: window-size tweaks move
// the tail of the fingerprint but not the SETTINGS head.
var h2Profiles = []struct {
	prefix string
	label  string
	human  bool
}{
	{"1:65536;2:0;4:6291456;6:262144", "Chrome_Desktop", true},
	{"1:65536;4:131072;5:16384", "Firefox_Desktop", true},
	{"4:4194304;3:100", "Safari_Desktop", true},
	{"1:4096;2:0;3:100;4:65535", "Go_net_http", false},
	{"3:100;4:1048576", "python_httpx", false},
}

// NewHttp2Fingerprint builds the h2-layer analyzer.
func NewHttp2Fingerprint(cfg config.Provider) *Http2FingerprintContributor {
	return &Http2FingerprintContributor{base: base{
		name:     "Http2Fingerprint",
		cfg:      cfg,
		priority: 16,
		timeout:  50 * time.Millisecond,
	}}
}

func (c *Http2FingerprintContributor) Contribute(_ context.Context, st *blackboard.State) ([]models.DetectionContribution, error) {
	req := st.Request()
	conf := c.confidence()

	if req.Protocol == "HTTP/1.1" || req.Protocol == "HTTP/1.0" {
		// Real browsers have defaulted to h2/h3 for years. Not conclusive —
		// proxies downgrade — hence the reduced magnitude.
		return []models.DetectionContribution{
			Bot(c.name, models.CategoryIdentity, conf.BotDetected*0.4,
				"HTTP/1.1 connection where modern browsers negotiate HTTP/2"),
		}, nil
	}

	if req.Protocol != "HTTP/2" || req.H2 == nil {
		return []models.DetectionContribution{
			Info(c.name, models.CategoryIdentity, "No HTTP/2 fingerprint available"),
		}, nil
	}

	sig := map[string]any{
		signals.H2Present:     true,
		signals.H2Fingerprint: req.H2.Fingerprint,
	}

	for _, p := range h2Profiles {
		if strings.HasPrefix(req.H2.Fingerprint, p.prefix) {
			sig[signals.H2Match] = p.label
			if p.human {
				contrib := Human(c.name, models.CategoryIdentity, conf.HumanSignal,
					"HTTP/2 fingerprint matches "+p.label)
				contrib.Signals = sig
				return []models.DetectionContribution{contrib}, nil
			}
			contrib := Bot(c.name, models.CategoryIdentity, conf.BotDetected,
				"HTTP/2 fingerprint matches automation profile "+p.label)
			contrib.BotType = models.BotTypeScraper
			contrib.Signals = sig
			return []models.DetectionContribution{contrib}, nil
		}
	}

	// Unusual SETTINGS count is itself weak evidence of a hand-rolled stack.
	if req.H2.SettingsCount > 0 && req.H2.SettingsCount < 3 {
		contrib := Bot(c.name, models.CategoryIdentity, conf.BotDetected*0.5,
			"Sparse HTTP/2 SETTINGS frame")
		contrib.Signals = sig
		return []models.DetectionContribution{contrib}, nil
	}

	contrib := Info(c.name, models.CategoryIdentity, "HTTP/2 fingerprint unrecognized")
	contrib.Signals = sig
	return []models.DetectionContribution{contrib}, nil
}
