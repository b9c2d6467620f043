package contributors

import (
	"context"
	"fmt"
	"time"

	"github.com/scottgal/stylobot/internal/blackboard"
	"github.com/scottgal/stylobot/internal/config"
	"github.com/scottgal/stylobot/internal/history"
	"github.com/scottgal/stylobot/internal/signals"
	"github.com/scottgal/stylobot/pkg/models"
)

// Stream Abuse Detection
//
// Cross-request view of streaming behavior. Runs after TransportProtocol
// has tagged the request, and reads the signature's sliding window for:
//
//   - WebSocket handshake storms (reconnect loops, cookie farming)
//   - SSE reconnect-rate abuse (forcing history replays)
//   - concurrent streams fanned across many endpoints
//   - cross-endpoint mixing: heavy page scraping under cover of one
//     legitimate long-lived stream

type StreamAbuseContributor struct {
	base
	store *history.Store
}

// NewStreamAbuse builds the stream-abuse analyzer. Gated on the protocol
// signals so it never runs for plain HTTP traffic.
func NewStreamAbuse(cfg config.Provider, store *history.Store) *StreamAbuseContributor {
	return &StreamAbuseContributor{
		base: base{
			name:     "StreamAbuse",
			cfg:      cfg,
			priority: 42,
			timeout:  100 * time.Millisecond,
			triggers: []blackboard.Trigger{blackboard.AnyOf(
				blackboard.SignalExists(signals.ProtoWebSocket),
				blackboard.SignalExists(signals.ProtoSSE),
				blackboard.SignalExists(signals.ProtoGRPC),
			)},
		},
		store: store,
	}
}

func (c *StreamAbuseContributor) Contribute(_ context.Context, st *blackboard.State) ([]models.DetectionContribution, error) {
	sigKey, _ := st.SignalString(signals.RequestSignature)
	if c.store == nil || sigKey == "" {
		return []models.DetectionContribution{
			Info(c.name, models.CategoryStream, "No history store or signature"),
		}, nil
	}
	snap := c.store.Get(sigKey)
	if snap == nil {
		return []models.DetectionContribution{
			Info(c.name, models.CategoryStream, "No window for this signature yet"),
		}, nil
	}

	conf := c.confidence()
	now := st.Request().ReceivedAt
	if now.IsZero() {
		now = time.Now()
	}
	sig := map[string]any{}
	var out []models.DetectionContribution

	// 1. Handshake storm
	wsPerMinute := c.cfg.Int(c.name, "ws_storm_per_minute", 10)
	recent := countSince(snap.WSUpgrades, now, time.Minute)
	if recent >= wsPerMinute {
		sig[signals.StreamWSStorm] = true
		contrib := StrongBot(c.name, models.CategoryStream, conf.StrongSignal,
			fmt.Sprintf("%d WebSocket handshakes in the last minute", recent))
		contrib.BotType = models.BotTypeMalicious
		out = append(out, contrib)
	}

	// 2. SSE reconnect abuse
	ssePerFiveMin := c.cfg.Int(c.name, "sse_reconnects_per_5m", 20)
	reconnects := countSince(snap.SSEReconnects, now, 5*time.Minute)
	if reconnects >= ssePerFiveMin {
		sig[signals.StreamSSEAbuse] = true
		out = append(out, Bot(c.name, models.CategoryStream, conf.BotDetected,
			fmt.Sprintf("%d SSE reconnects in five minutes", reconnects)))
	}

	// 3. Concurrent streams across many endpoints
	streamEndpoints := c.cfg.Int(c.name, "concurrent_stream_endpoints", 5)
	streamEPs := map[string]struct{}{}
	for _, ev := range snap.Events {
		if ev.ContentClass == models.ContentStream {
			streamEPs[ev.Method+" "+ev.Path] = struct{}{}
		}
	}
	if len(streamEPs) >= streamEndpoints {
		sig[signals.StreamConcurrent] = len(streamEPs)
		out = append(out, Bot(c.name, models.CategoryStream, conf.BotDetected,
			fmt.Sprintf("Streams open against %d distinct endpoints", len(streamEPs))))
	}

	// 4. Cross-endpoint mixing: one live stream, heavy page pulls beside it
	pagesPerStream := c.cfg.Int(c.name, "mixing_page_threshold", 25)
	if (len(snap.WSUpgrades) > 0 || len(snap.SSEReconnects) > 0) && snap.PageCount >= pagesPerStream {
		sig[signals.StreamMixing] = true
		out = append(out, Bot(c.name, models.CategoryStream, conf.BotDetected,
			fmt.Sprintf("%d page fetches alongside an active stream", snap.PageCount)))
	}

	if len(out) == 0 {
		return []models.DetectionContribution{
			Neutral(c.name, models.CategoryStream, "Stream usage within normal bounds"),
		}, nil
	}
	out[len(out)-1].Signals = mergeSignals(out[len(out)-1].Signals, sig)
	return out, nil
}

func countSince(times []time.Time, now time.Time, window time.Duration) int {
	cutoff := now.Add(-window)
	n := 0
	for _, t := range times {
		if t.After(cutoff) {
			n++
		}
	}
	return n
}
