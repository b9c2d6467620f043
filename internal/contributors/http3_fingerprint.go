package contributors

import (
	"context"
	"time"

	"github.com/scottgal/stylobot/internal/blackboard"
	"github.com/scottgal/stylobot/internal/config"
	"github.com/scottgal/stylobot/internal/signals"
	"github.com/scottgal/stylobot/pkg/models"
)

// HTTP/3 / QUIC Transport Fingerprint
//
// QUIC transport parameters (idle timeout, max UDP payload, initial flow
// control) identify the QUIC implementation. Very few scraping stacks speak
// HTTP/3 at all, so the mere presence of a plausible h3 connection is a
// mild human lean; on non-h3 requests this contributor is Info-only (not
// speaking h3 is entirely normal).

type Http3FingerprintContributor struct {
	base
}

// NewHttp3Fingerprint builds the QUIC-layer analyzer.
func NewHttp3Fingerprint(cfg config.Provider) *Http3FingerprintContributor {
	return &Http3FingerprintContributor{base: base{
		name:     "Http3Fingerprint",
		cfg:      cfg,
		priority: 17,
		timeout:  50 * time.Millisecond,
	}}
}

func (c *Http3FingerprintContributor) Contribute(_ context.Context, st *blackboard.State) ([]models.DetectionContribution, error) {
	req := st.Request()
	conf := c.confidence()

	if req.Protocol != "HTTP/3" {
		return []models.DetectionContribution{
			Info(c.name, models.CategoryIdentity, "Not an HTTP/3 connection"),
		}, nil
	}

	if req.H3 == nil {
		return []models.DetectionContribution{
			Info(c.name, models.CategoryIdentity, "HTTP/3 connection without transport parameters"),
		}, nil
	}

	clientType := classifyQuicClient(req.H3)
	sig := map[string]any{
		signals.H3Present:     true,
		signals.H3Fingerprint: req.H3.Fingerprint,
		signals.H3ClientType:  clientType,
	}

	switch clientType {
	case "browser":
		contrib := Human(c.name, models.CategoryIdentity, conf.HumanSignal,
			"QUIC transport parameters consistent with a browser stack")
		contrib.Signals = sig
		return []models.DetectionContribution{contrib}, nil
	case "library":
		contrib := Bot(c.name, models.CategoryIdentity, conf.BotDetected*0.6,
			"QUIC transport parameters match a client library profile")
		contrib.Signals = sig
		return []models.DetectionContribution{contrib}, nil
	default:
		contrib := Info(c.name, models.CategoryIdentity, "HTTP/3 transport parameters unclassified")
		contrib.Signals = sig
		return []models.DetectionContribution{contrib}, nil
	}
}

// classifyQuicClient buckets the transport-parameter shape. Browser QUIC
// stacks advertise large flow-control windows and ~30s idle timeouts;
// quic-go and friends default much lower.
func classifyQuicClient(h3 *models.H3Fingerprint) string {
	if h3.InitialMaxData >= 10_000_000 && h3.MaxIdleTimeoutMS >= 25_000 {
		return "browser"
	}
	if h3.InitialMaxData > 0 && h3.InitialMaxData < 2_000_000 {
		return "library"
	}
	return "unknown"
}
