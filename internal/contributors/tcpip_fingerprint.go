package contributors

import (
	"context"
	"fmt"
	"time"

	"github.com/scottgal/stylobot/internal/blackboard"
	"github.com/scottgal/stylobot/internal/config"
	"github.com/scottgal/stylobot/internal/signals"
	"github.com/scottgal/stylobot/pkg/models"
)

// TCP/IP Stack Fingerprint
//
// Initial TTL and window size are set by the client's kernel, the one layer
// a user-space scraper cannot restyle. The inferred OS lands on the
// blackboard for the correlation wave: a "Windows" User-Agent arriving with
// a Linux TTL is one of the cheapest spoof catches available.
//
//   TTL ~64  → Linux/macOS/iOS/Android
//   TTL ~128 → Windows
//   TTL ~255 → network gear, some BSDs

type TcpIpFingerprintContributor struct {
	base
}

// NewTcpIpFingerprint builds the kernel-layer analyzer.
func NewTcpIpFingerprint(cfg config.Provider) *TcpIpFingerprintContributor {
	return &TcpIpFingerprintContributor{base: base{
		name:     "TcpIpFingerprint",
		cfg:      cfg,
		priority: 18,
		timeout:  50 * time.Millisecond,
	}}
}

func (c *TcpIpFingerprintContributor) Contribute(_ context.Context, st *blackboard.State) ([]models.DetectionContribution, error) {
	req := st.Request()

	if req.TCP == nil || req.TCP.TTL == 0 {
		return []models.DetectionContribution{
			Info(c.name, models.CategoryNetwork, "No TCP/IP fingerprint available"),
		}, nil
	}

	inferred := inferOSFromTTL(req.TCP.TTL)
	sig := map[string]any{
		signals.TCPTTL:        req.TCP.TTL,
		signals.TCPWindow:     req.TCP.WindowSize,
		signals.TCPInferredOS: inferred,
	}

	contrib := Info(c.name, models.CategoryNetwork,
		fmt.Sprintf("TCP TTL %d, window %d, stack resembles %s", req.TCP.TTL, req.TCP.WindowSize, inferred))
	contrib.Signals = sig
	return []models.DetectionContribution{contrib}, nil
}

// inferOSFromTTL buckets the observed TTL back to its likely initial value.
// Observed TTL = initial - hop count, so anything within 32 hops of a
// standard initial maps to it.
func inferOSFromTTL(ttl int) string {
	switch {
	case ttl > 128:
		return "network-device"
	case ttl > 96:
		return "windows"
	case ttl > 32:
		return "unix" // Linux, macOS, iOS, Android all start at 64
	default:
		return "unknown"
	}
}
