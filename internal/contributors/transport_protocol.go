package contributors

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/scottgal/stylobot/internal/blackboard"
	"github.com/scottgal/stylobot/internal/config"
	"github.com/scottgal/stylobot/internal/history"
	"github.com/scottgal/stylobot/internal/patterns"
	"github.com/scottgal/stylobot/internal/signals"
	"github.com/scottgal/stylobot/pkg/models"
)

// Transport Protocol Compliance
//
// Detects WebSocket / gRPC / GraphQL / SSE at the header layer and checks
// the RFC details real clients get right and hand-rolled clients get wrong:
//
//   WebSocket (RFC 6455): Sec-WebSocket-Key is 16 base64 bytes,
//     Sec-WebSocket-Version is exactly 13, and Origin must agree with Host
//     (a mismatch is the cross-site WebSocket hijacking shape)
//   gRPC: requires "te: trailers"
//   SSE: browsers send "Cache-Control: no-cache"; a Last-Event-ID on a
//     fresh connection is a history-replay attempt
//
// Detected streams are recorded into the history store so StreamAbuse can
// rate them across requests.

type TransportProtocolContributor struct {
	base
	store *history.Store
}

// NewTransportProtocol builds the protocol-compliance analyzer.
func NewTransportProtocol(cfg config.Provider, store *history.Store) *TransportProtocolContributor {
	return &TransportProtocolContributor{
		base: base{
			name:     "TransportProtocol",
			cfg:      cfg,
			priority: 22,
			timeout:  50 * time.Millisecond,
		},
		store: store,
	}
}

func (c *TransportProtocolContributor) Contribute(_ context.Context, st *blackboard.State) ([]models.DetectionContribution, error) {
	req := st.Request()
	conf := c.confidence()

	sigKey, _ := st.SignalString(signals.RequestSignature)
	if sigKey == "" && req.ClientIP != "" {
		sigKey = patterns.Signature(req.ClientIP, req.UserAgent())
	}

	isWS := strings.EqualFold(req.Header("Upgrade"), "websocket")
	isGRPC := strings.HasPrefix(strings.ToLower(req.Header("Content-Type")), "application/grpc")
	isGraphQL := strings.Contains(strings.ToLower(req.Path), "/graphql")
	isSSE := strings.Contains(strings.ToLower(req.Header("Accept")), "text/event-stream")

	if !isWS && !isGRPC && !isGraphQL && !isSSE {
		return []models.DetectionContribution{
			Info(c.name, models.CategoryProtocol, "Plain HTTP request, no stream protocol in play"),
		}, nil
	}

	sig := map[string]any{}
	violations := 0
	var out []models.DetectionContribution

	if isWS {
		sig[signals.ProtoWebSocket] = true
		if c.store != nil && sigKey != "" {
			c.store.RecordWSUpgrade(sigKey, req.ReceivedAt)
		}

		// Sec-WebSocket-Key: 16 random bytes, base64
		key := req.Header("Sec-Websocket-Key")
		if raw, err := base64.StdEncoding.DecodeString(key); err != nil || len(raw) != 16 {
			violations++
			out = append(out, Bot(c.name, models.CategoryProtocol, conf.BotDetected,
				"Malformed Sec-WebSocket-Key"))
		}
		if v := req.Header("Sec-Websocket-Version"); v != "13" {
			violations++
			out = append(out, Bot(c.name, models.CategoryProtocol, conf.BotDetected,
				fmt.Sprintf("Sec-WebSocket-Version %q, RFC 6455 requires 13", v)))
		}
		// CSWSH: Origin present but pointing elsewhere
		if origin := req.Header("Origin"); origin != "" {
			if u, err := url.Parse(origin); err == nil && u.Host != "" && !hostsMatch(u.Host, req.Host) {
				violations++
				out = append(out, StrongBot(c.name, models.CategoryProtocol, conf.StrongSignal,
					"WebSocket Origin/Host mismatch (cross-site hijacking shape)"))
			}
		}
	}

	if isGRPC {
		sig[signals.ProtoGRPC] = true
		if !strings.EqualFold(req.Header("Te"), "trailers") {
			violations++
			out = append(out, Bot(c.name, models.CategoryProtocol, conf.BotDetected,
				"gRPC request without te: trailers"))
		}
	}

	if isGraphQL {
		sig[signals.ProtoGraphQL] = true
	}

	if isSSE {
		sig[signals.ProtoSSE] = true
		reconnect := req.Header("Last-Event-Id") != ""
		if c.store != nil && sigKey != "" && reconnect {
			c.store.RecordSSEReconnect(sigKey, req.ReceivedAt)
		}
		if !strings.Contains(strings.ToLower(req.Header("Cache-Control")), "no-cache") {
			violations++
			out = append(out, Bot(c.name, models.CategoryProtocol, conf.BotDetected*0.6,
				"SSE request without Cache-Control: no-cache"))
		}
		if reconnect {
			// Legitimate reconnects replay the id of an event they received;
			// a replay on a signature with no prior SSE traffic is a probe.
			prior := 0
			if c.store != nil && sigKey != "" {
				if snap := c.store.Get(sigKey); snap != nil {
					prior = len(snap.SSEReconnects)
				}
			}
			if prior <= 1 {
				sig[signals.ProtoSSEReplay] = true
				out = append(out, Bot(c.name, models.CategoryProtocol, conf.BotDetected,
					"Last-Event-ID replay on a fresh SSE connection"))
			}
		}
	}

	sig[signals.ProtoViolations] = violations
	if len(out) == 0 {
		contrib := Neutral(c.name, models.CategoryProtocol, "Stream protocol request is RFC-compliant")
		contrib.Signals = sig
		return []models.DetectionContribution{contrib}, nil
	}
	out[len(out)-1].Signals = mergeSignals(out[len(out)-1].Signals, sig)
	return out, nil
}

func hostsMatch(a, b string) bool {
	strip := func(h string) string {
		if i := strings.LastIndex(h, ":"); i > 0 && !strings.Contains(h[i:], "]") {
			return h[:i]
		}
		return h
	}
	return strings.EqualFold(strip(a), strip(b))
}
