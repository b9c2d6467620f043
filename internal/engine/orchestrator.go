// Package engine contains the blackboard orchestrator: the wave scheduler
// that runs the contributor roster against a per-request blackboard and
// assembles the final evidence.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/scottgal/stylobot/internal/aggregate"
	"github.com/scottgal/stylobot/internal/blackboard"
	"github.com/scottgal/stylobot/internal/contributors"
	"github.com/scottgal/stylobot/internal/history"
	"github.com/scottgal/stylobot/internal/metrics"
	"github.com/scottgal/stylobot/internal/patterns"
	"github.com/scottgal/stylobot/internal/signals"
	"github.com/scottgal/stylobot/pkg/models"
)

// Scheduling model
//
// Contributors are partitioned into waves by their trigger conditions:
// everything whose triggers hold under the current blackboard runs in the
// current wave, concurrently, each under its own timeout. After the wave
// joins, the aggregate score is recomputed so RiskThreshold and
// DetectorCount triggers can admit the next wave. Early exit fires on a
// VerifiedGoodBot / VerifiedBot verdict or on wall-clock budget expiry.
//
// Within a wave there is no ordering contract — a contributor sees the
// signals present at wave start plus whatever faster siblings already
// merged. Between waves visibility is strict.
//
// A contributor that errors, panics or overruns its timeout lands in
// failed_detectors and the request continues; Analyze never returns an
// error to the middleware.

// Config bounds one engine instance.
type Config struct {
	// WallClockBudget caps the whole analysis. Must exceed the largest
	// contributor timeout; zero derives 2x that maximum.
	WallClockBudget time.Duration
	// MaxWaves is a hard stop against scheduler loops.
	MaxWaves int
	// Aggregate holds the fusion constants.
	Aggregate aggregate.Config
}

// DefaultConfig returns the standard engine bounds.
func DefaultConfig() Config {
	return Config{
		MaxWaves:  8,
		Aggregate: aggregate.DefaultConfig(),
	}
}

// Engine is the orchestrator. Construct once, share across requests.
type Engine struct {
	cfg       Config
	roster    []contributors.Contributor
	countries *history.CountryTracker
	sinks     []func(*models.AggregatedEvidence)
}

// Option customizes engine construction.
type Option func(*Engine)

// WithCountryTracker wires the feedback loop that records each verdict
// against its origin country.
func WithCountryTracker(t *history.CountryTracker) Option {
	return func(e *Engine) { e.countries = t }
}

// WithEvidenceSink registers a callback invoked with every finished
// evidence object (dashboard hub, persistence, ...).
func WithEvidenceSink(sink func(*models.AggregatedEvidence)) Option {
	return func(e *Engine) { e.sinks = append(e.sinks, sink) }
}

// New builds an engine over a contributor roster.
func New(cfg Config, roster []contributors.Contributor, opts ...Option) *Engine {
	if cfg.MaxWaves <= 0 {
		cfg.MaxWaves = DefaultConfig().MaxWaves
	}
	var maxTimeout time.Duration
	for _, c := range roster {
		if t := c.Timeout(); t > maxTimeout {
			maxTimeout = t
		}
	}
	if cfg.WallClockBudget <= 0 {
		cfg.WallClockBudget = 2 * maxTimeout
	}
	// The budget must strictly exceed every contributor timeout, or a
	// single slow contributor would convert into a budget abort.
	if cfg.WallClockBudget <= maxTimeout {
		cfg.WallClockBudget = maxTimeout + maxTimeout/2
	}
	if cfg.WallClockBudget < time.Second {
		cfg.WallClockBudget = time.Second
	}
	e := &Engine{cfg: cfg, roster: roster}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type waveResult struct {
	contributor contributors.Contributor
	contribs    []models.DetectionContribution
	err         error
	panicked    bool
	elapsed     time.Duration
}

// Analyze runs the full wave schedule for one request and always returns an
// evidence object — degraded, never absent.
func (e *Engine) Analyze(ctx context.Context, snap *models.RequestSnapshot) *models.AggregatedEvidence {
	started := time.Now()
	st := blackboard.NewState(snap)
	e.seedNormalization(st, snap)

	budget := time.NewTimer(e.cfg.WallClockBudget)
	defer budget.Stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pending := append([]contributors.Contributor(nil), e.roster...)
	waves := 0
	budgetExpired := false

	for waves < e.cfg.MaxWaves && len(pending) > 0 && !budgetExpired {
		eligible, deferred := partition(pending, st)
		if len(eligible) == 0 {
			// Remaining contributors are gated on conditions this request
			// will never satisfy; they are skipped, not failed.
			break
		}
		pending = deferred
		waves++

		results := make(chan waveResult, len(eligible))
		for _, c := range eligible {
			go e.runContributor(ctx, c, st, results)
		}

		outstanding := len(eligible)
		for outstanding > 0 {
			select {
			case res := <-results:
				outstanding--
				e.absorb(st, res)
			case <-budget.C:
				budgetExpired = true
				cancel()
				// Drain what is already finished, fail the rest.
				for outstanding > 0 {
					select {
					case res := <-results:
						outstanding--
						e.absorb(st, res)
					case <-time.After(50 * time.Millisecond):
						for _, c := range eligible {
							if !contains(st.Completed(), c.Name()) && !contains(st.Failed(), c.Name()) {
								st.MarkFailed(c.Name())
								metrics.ObserveContributor(c.Name(), 0, "budget")
							}
						}
						outstanding = 0
					}
				}
			case <-ctx.Done():
				budgetExpired = true
				outstanding = 0
			}
		}

		// Recompute the running score so later triggers observe it.
		interim := aggregate.Evaluate(st.Contributions(), 0, e.cfg.Aggregate)
		st.SetCurrentScore(interim.Probability)

		if verdict, detector := st.EarlyExit(); verdict != models.VerdictNone {
			metrics.EarlyExits.WithLabelValues(string(verdict)).Inc()
			log.Debug().Str("verdict", string(verdict)).Str("detector", detector).
				Str("request", st.RequestID()).Msg("early exit")
			break
		}
	}

	evidence := e.assemble(st, waves, started, budgetExpired)
	for _, sink := range e.sinks {
		sink(evidence)
	}
	return evidence
}

// seedNormalization writes the request.* signals every wave-one contributor
// may rely on: signature and pattern IDs are orchestrator-owned.
func (e *Engine) seedNormalization(st *blackboard.State, snap *models.RequestSnapshot) {
	sig := map[string]any{
		signals.RequestProtocol: snap.Protocol,
		signals.NetIPPresent:    snap.ClientIP != "",
	}
	if snap.ClientIP != "" {
		sig[signals.RequestSignature] = patterns.Signature(snap.ClientIP, snap.UserAgent())
		if ipPattern := patterns.IPPatternID(snap.ClientIP); ipPattern != "" {
			sig[signals.RequestIPPattern] = ipPattern
		}
		sig[signals.RequestCombinedPattern] = patterns.CombinedPatternID(snap.UserAgent(), snap.ClientIP, snap.Path)
	}
	if snap.UserAgent() != "" {
		sig[signals.RequestUAPattern] = patterns.UAPatternID(snap.UserAgent())
	}
	st.WriteSignals(sig)
}

func partition(pending []contributors.Contributor, st *blackboard.State) (eligible, deferred []contributors.Contributor) {
	for _, c := range pending {
		if triggersSatisfied(c, st) {
			eligible = append(eligible, c)
		} else {
			deferred = append(deferred, c)
		}
	}
	return eligible, deferred
}

func triggersSatisfied(c contributors.Contributor, st *blackboard.State) bool {
	for _, t := range c.Triggers() {
		if !t.Satisfied(st) {
			return false
		}
	}
	return true
}

// runContributor executes one contributor under its own timeout with panic
// containment. The inner goroutine pattern bounds the wave even when a
// contributor ignores its context.
func (e *Engine) runContributor(ctx context.Context, c contributors.Contributor, st *blackboard.State, results chan<- waveResult) {
	started := time.Now()
	cctx, cancel := context.WithTimeout(ctx, c.Timeout())
	defer cancel()

	done := make(chan waveResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- waveResult{contributor: c, err: fmt.Errorf("panic: %v", r), panicked: true}
			}
		}()
		contribs, err := c.Contribute(cctx, st)
		done <- waveResult{contributor: c, contribs: contribs, err: err}
	}()

	select {
	case res := <-done:
		res.elapsed = time.Since(started)
		results <- res
	case <-cctx.Done():
		results <- waveResult{contributor: c, err: cctx.Err(), elapsed: time.Since(started)}
	}
}

func (e *Engine) absorb(st *blackboard.State, res waveResult) {
	name := res.contributor.Name()
	switch {
	case res.panicked:
		log.Error().Str("detector", name).Err(res.err).Msg("contributor panicked")
		st.MarkFailed(name)
		metrics.ObserveContributor(name, res.elapsed, "panic")
	case res.err != nil:
		kind := "error"
		if res.err == context.DeadlineExceeded {
			kind = "timeout"
		}
		log.Debug().Str("detector", name).Err(res.err).Msg("contributor failed")
		st.MarkFailed(name)
		metrics.ObserveContributor(name, res.elapsed, kind)
	default:
		st.Append(name, res.contribs)
		metrics.ObserveContributor(name, res.elapsed, "")
	}
}

func (e *Engine) assemble(st *blackboard.State, waves int, started time.Time, budgetExpired bool) *models.AggregatedEvidence {
	contribs := st.Contributions()
	completed := st.Completed()
	failed := st.Failed()

	failedFraction := 0.0
	if len(failed) > 0 {
		failedFraction = float64(len(failed)) / float64(len(failed)+len(completed))
	}

	final := aggregate.Evaluate(contribs, failedFraction, e.cfg.Aggregate)
	sig := st.Signals()
	intent := aggregate.EvaluateIntent(sig)
	verdict, _ := st.EarlyExit()

	evidence := &models.AggregatedEvidence{
		RequestID:             st.RequestID(),
		Ledger:                contribs,
		BotProbability:        final.Probability,
		Confidence:            final.Confidence,
		RiskBand:              final.Band,
		PrimaryBotType:        final.BotType,
		PrimaryBotName:        final.BotName,
		Signals:               sig,
		TotalProcessingMS:     float64(time.Since(started).Microseconds()) / 1000,
		CategoryBreakdown:     st.Rollups(),
		ContributingDetectors: completed,
		FailedDetectors:       failed,
		ThreatScore:           intent.Score,
		ThreatBand:            intent.Band,
		IntentCategory:        intent.Category,
		Waves:                 waves,
		EarlyExit:             verdict != models.VerdictNone || budgetExpired,
		AnalyzedAt:            started,
	}

	metrics.AnalysesTotal.WithLabelValues(string(evidence.RiskBand)).Inc()
	metrics.AnalysisDuration.Observe(time.Since(started).Seconds())
	metrics.Waves.Observe(float64(waves))

	if e.countries != nil {
		if country, ok := sig[signals.GeoCountry].(string); ok && country != "" {
			e.countries.RecordDetection(country, "", evidence.RiskBand.AtLeast(models.RiskHigh), evidence.BotProbability)
		}
	}
	return evidence
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
