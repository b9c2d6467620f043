package contributors

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/scottgal/stylobot/internal/blackboard"
	"github.com/scottgal/stylobot/internal/config"
	"github.com/scottgal/stylobot/internal/history"
	"github.com/scottgal/stylobot/internal/patterns"
	"github.com/scottgal/stylobot/internal/signals"
	"github.com/scottgal/stylobot/pkg/models"
)

// Behavioral Waveform Analysis
//
// Request timing and navigation shape reveal automation that no single
// request can. Per client signature the sliding window yields:
//
//   1. Regularity: coefficient of variation of inter-arrival intervals.
//      Bots fire on timers (CV < 0.3); humans are bursty (CV 0.5-2.0)
//   2. Burst rates over 10s and 60s windows
//   3. Path diversity: distinct endpoints / total requests — scrapers
//      sweep, humans revisit
//   4. Sequential traversal: /page/1, /page/2, /page/3
//   5. Depth-first traversal: each request descends into the previous path
//   6. Content-class Markov transitions: browsers emit Page→Asset bursts
//      (a page pulls its resources); scrapers emit Page→Page chains
//   7. User-agent stability across the same IP
//
// The signature window is keyed by (IP, UA-hash); the UA-stability check
// uses a parallel bare-IP window, since a UA rotation by definition never
// shows up inside one signature's window.

type BehavioralWaveformContributor struct {
	base
	store *history.Store
}

var trailingNumberRE = regexp.MustCompile(`(\d+)/?$`)

// NewBehavioralWaveform builds the waveform analyzer over the shared
// history store.
func NewBehavioralWaveform(cfg config.Provider, store *history.Store) *BehavioralWaveformContributor {
	return &BehavioralWaveformContributor{
		base: base{
			name:     "BehavioralWaveform",
			cfg:      cfg,
			priority: 30,
			timeout:  100 * time.Millisecond,
		},
		store: store,
	}
}

func (c *BehavioralWaveformContributor) Contribute(_ context.Context, st *blackboard.State) ([]models.DetectionContribution, error) {
	req := st.Request()
	if c.store == nil || req.ClientIP == "" {
		return []models.DetectionContribution{
			Info(c.name, models.CategoryBehavioral, "No history store or client IP"),
		}, nil
	}

	sigKey, _ := st.SignalString(signals.RequestSignature)
	if sigKey == "" {
		sigKey = patterns.Signature(req.ClientIP, req.UserAgent())
	}

	ev := history.Event{
		Timestamp:    req.ReceivedAt,
		Path:         req.Path,
		Method:       req.Method,
		UserAgent:    req.UserAgent(),
		RefererHash:  patterns.ShortHash(req.Header("Referer")),
		ContentClass: models.ClassifyPath(req.Path),
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	snap := c.store.Observe(sigKey, ev)
	ipSnap := c.store.Observe(req.ClientIP, ev)

	conf := c.confidence()
	now := ev.Timestamp
	sig := map[string]any{
		signals.BehaviorRequestCount: len(snap.Events),
	}
	var out []models.DetectionContribution

	minRequests := c.cfg.Int(c.name, "min_requests", 5)
	if len(snap.Events) < minRequests {
		contrib := Info(c.name, models.CategoryBehavioral,
			fmt.Sprintf("Only %d requests in window, too few for waveform analysis", len(snap.Events)))
		contrib.Signals = sig
		return []models.DetectionContribution{contrib}, nil
	}

	// 1. Timing regularity
	cv := interArrivalCV(snap.Events)
	sig[signals.BehaviorRegularityCV] = cv
	regularityCV := c.cfg.Float(c.name, "regularity_cv_threshold", 0.3)
	if cv >= 0 && cv < regularityCV {
		out = append(out, StrongBot(c.name, models.CategoryBehavioral, conf.StrongSignal,
			fmt.Sprintf("Metronomic request timing (CV %.2f over %d requests)", cv, len(snap.Events))))
	} else if cv > 0.5 && cv < 3.0 {
		out = append(out, Human(c.name, models.CategoryBehavioral, conf.HumanSignal*0.5,
			fmt.Sprintf("Organic request timing (CV %.2f)", cv)))
	}

	// 2. Burst rates
	burst10 := snap.CountSince(now, 10*time.Second)
	burst60 := snap.CountSince(now, 60*time.Second)
	sig[signals.BehaviorBurst10s] = burst10
	sig[signals.BehaviorBurst60s] = burst60
	burst10Max := c.cfg.Int(c.name, "burst_10s_threshold", 15)
	burst60Max := c.cfg.Int(c.name, "burst_60s_threshold", 40)
	if burst10 >= burst10Max {
		out = append(out, Bot(c.name, models.CategoryBehavioral, conf.BotDetected,
			fmt.Sprintf("%d requests in 10s burst window", burst10)))
	}
	if burst60 >= burst60Max {
		out = append(out, Bot(c.name, models.CategoryBehavioral, conf.BotDetected,
			fmt.Sprintf("%d requests in 60s window", burst60)))
	}

	// 3. Path diversity
	diversity := float64(snap.Endpoints) / float64(len(snap.Events))
	sig[signals.BehaviorPathDiversity] = diversity
	if diversity > 0.9 && len(snap.Events) >= 15 {
		out = append(out, Bot(c.name, models.CategoryBehavioral, conf.BotDetected,
			fmt.Sprintf("Never revisits: %d distinct endpoints in %d requests", snap.Endpoints, len(snap.Events))))
	}

	// 4. Sequential traversal
	if run := longestSequentialRun(snap.Events); run >= 3 {
		sig[signals.BehaviorSequential] = true
		out = append(out, Bot(c.name, models.CategoryBehavioral, conf.BotDetected,
			fmt.Sprintf("Sequential path traversal (%d consecutively numbered paths)", run)))
	}

	// 5. Depth-first traversal
	if isDepthFirst(snap.Events) {
		sig[signals.BehaviorDepthFirst] = true
		out = append(out, Bot(c.name, models.CategoryBehavioral, conf.BotDetected*0.8,
			"Depth-first path descent"))
	}

	// 6. Content-class Markov transitions
	dominant, ratio := dominantTransition(snap.Events)
	if dominant != "" {
		sig[signals.BehaviorMarkovDominant] = dominant
	}
	if dominant == "page>page" && ratio > 0.6 {
		out = append(out, Bot(c.name, models.CategoryBehavioral, conf.BotDetected,
			fmt.Sprintf("Page-to-page chain dominates transitions (%.0f%%)", ratio*100)))
	} else if dominant == "page>asset" && ratio > 0.4 {
		out = append(out, Human(c.name, models.CategoryBehavioral, conf.HumanSignal*0.6,
			"Pages pull their assets, transition mix looks like a browser"))
	}

	// 7. UA stability per IP
	stable := ipSnap.UserAgents <= 1
	sig[signals.BehaviorUAStable] = stable
	if ipSnap.UserAgents >= 3 {
		out = append(out, Bot(c.name, models.CategoryBehavioral, conf.BotDetected,
			fmt.Sprintf("%d distinct user agents from one IP inside the window", ipSnap.UserAgents)))
	}

	if len(out) == 0 {
		out = append(out, Neutral(c.name, models.CategoryBehavioral, "No behavioral anomaly in window"))
	}
	out[len(out)-1].Signals = mergeSignals(out[len(out)-1].Signals, sig)
	return out, nil
}

// interArrivalCV returns stddev/mean of the gaps between events; -1 when
// undefined.
func interArrivalCV(events []history.Event) float64 {
	if len(events) < 3 {
		return -1
	}
	gaps := make([]float64, 0, len(events)-1)
	for i := 1; i < len(events); i++ {
		gaps = append(gaps, events[i].Timestamp.Sub(events[i-1].Timestamp).Seconds())
	}
	mean := 0.0
	for _, g := range gaps {
		mean += g
	}
	mean /= float64(len(gaps))
	if mean <= 0 {
		return 0
	}
	variance := 0.0
	for _, g := range gaps {
		variance += (g - mean) * (g - mean)
	}
	variance /= float64(len(gaps))
	return math.Sqrt(variance) / mean
}

// longestSequentialRun finds the longest run of paths whose trailing numbers
// each step up by one, counted in paths (/page/1 → /page/2 → /page/3 is 3).
func longestSequentialRun(events []history.Event) int {
	longest, run := 0, 0
	prev := math.MinInt64
	for _, ev := range events {
		m := trailingNumberRE.FindStringSubmatch(ev.Path)
		if m == nil {
			run, prev = 0, math.MinInt64
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			run, prev = 0, math.MinInt64
			continue
		}
		if n == prev+1 {
			run++
			if run > longest {
				longest = run
			}
		} else {
			run = 1
		}
		prev = n
	}
	return longest
}

// isDepthFirst reports whether the recent tail keeps descending into the
// previous request's path.
func isDepthFirst(events []history.Event) bool {
	if len(events) < 4 {
		return false
	}
	tail := events[len(events)-4:]
	descents := 0
	for i := 1; i < len(tail); i++ {
		prev, cur := tail[i-1].Path, tail[i].Path
		if strings.HasPrefix(cur, strings.TrimSuffix(prev, "/")+"/") && len(cur) > len(prev) {
			descents++
		}
	}
	return descents >= 3
}

// dominantTransition returns the most common content-class transition and
// its share of all transitions.
func dominantTransition(events []history.Event) (string, float64) {
	counts := map[string]int{}
	total := 0
	for i := 1; i < len(events); i++ {
		from, to := events[i-1].ContentClass, events[i].ContentClass
		if from == models.ContentUnknown || to == models.ContentUnknown {
			continue
		}
		key := string(from) + ">" + string(to)
		counts[key]++
		total++
	}
	if total < 4 {
		return "", 0
	}
	best, bestCount := "", 0
	for k, n := range counts {
		if n > bestCount {
			best, bestCount = k, n
		}
	}
	return best, float64(bestCount) / float64(total)
}

func mergeSignals(dst, src map[string]any) map[string]any {
	if dst == nil {
		return src
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
