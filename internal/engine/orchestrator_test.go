package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scottgal/stylobot/internal/blackboard"
	"github.com/scottgal/stylobot/internal/contributors"
	"github.com/scottgal/stylobot/pkg/models"
)

// fake is a scriptable contributor for scheduler tests.
type fake struct {
	name     string
	priority int
	timeout  time.Duration
	triggers []blackboard.Trigger
	fn       func(ctx context.Context, st *blackboard.State) ([]models.DetectionContribution, error)
}

func (f *fake) Name() string                     { return f.name }
func (f *fake) Priority() int                    { return f.priority }
func (f *fake) Triggers() []blackboard.Trigger   { return f.triggers }
func (f *fake) Timeout() time.Duration {
	if f.timeout > 0 {
		return f.timeout
	}
	return 100 * time.Millisecond
}
func (f *fake) Contribute(ctx context.Context, st *blackboard.State) ([]models.DetectionContribution, error) {
	return f.fn(ctx, st)
}

func emitBot(name string, delta float64, sig map[string]any) *fake {
	return &fake{name: name, fn: func(_ context.Context, _ *blackboard.State) ([]models.DetectionContribution, error) {
		return []models.DetectionContribution{{
			Category: "test", Delta: delta, Weight: 1, Reason: name, Signals: sig,
		}}, nil
	}}
}

func snap() *models.RequestSnapshot {
	return &models.RequestSnapshot{RequestID: "req-1", Method: "GET", Path: "/", Protocol: "HTTP/1.1"}
}

func TestAnalyze_WaveOrderingViaSignals(t *testing.T) {
	// B is gated on a signal A writes, so it must observe it — strict
	// inter-wave visibility.
	var sawSignal bool
	a := emitBot("A", 0.2, map[string]any{"test.flag": true})
	b := &fake{
		name:     "B",
		triggers: []blackboard.Trigger{blackboard.SignalExists("test.flag")},
		fn: func(_ context.Context, st *blackboard.State) ([]models.DetectionContribution, error) {
			sawSignal = st.SignalBool("test.flag")
			return []models.DetectionContribution{{Category: "test", Delta: 0.1, Weight: 1}}, nil
		},
	}

	eng := New(Config{}, []contributors.Contributor{a, b})
	ev := eng.Analyze(context.Background(), snap())

	require.True(t, sawSignal, "wave-2 contributor did not see wave-1 signal")
	assert.ElementsMatch(t, []string{"A", "B"}, ev.ContributingDetectors)
	assert.Equal(t, 2, ev.Waves)
}

func TestAnalyze_TimeoutBecomesFailure(t *testing.T) {
	slow := &fake{
		name:    "Slow",
		timeout: 20 * time.Millisecond,
		fn: func(ctx context.Context, _ *blackboard.State) ([]models.DetectionContribution, error) {
			select {
			case <-time.After(2 * time.Second):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			return nil, nil
		},
	}
	ok := emitBot("Ok", 0.3, nil)

	eng := New(Config{WallClockBudget: time.Second}, []contributors.Contributor{slow, ok})
	ev := eng.Analyze(context.Background(), snap())

	assert.Contains(t, ev.FailedDetectors, "Slow")
	assert.Contains(t, ev.ContributingDetectors, "Ok")
	assert.NotContains(t, ev.ContributingDetectors, "Slow", "sets must be disjoint")
}

func TestAnalyze_PanicContained(t *testing.T) {
	boom := &fake{name: "Boom", fn: func(_ context.Context, _ *blackboard.State) ([]models.DetectionContribution, error) {
		panic("contributor bug")
	}}
	ok := emitBot("Ok", 0.3, nil)

	eng := New(Config{}, []contributors.Contributor{boom, ok})
	ev := eng.Analyze(context.Background(), snap())

	assert.Contains(t, ev.FailedDetectors, "Boom")
	assert.GreaterOrEqual(t, ev.BotProbability, 0.0)
	assert.LessOrEqual(t, ev.Confidence, 1.0)
}

func TestAnalyze_EarlyExitStopsLaterWaves(t *testing.T) {
	exiter := &fake{name: "Exit", fn: func(_ context.Context, _ *blackboard.State) ([]models.DetectionContribution, error) {
		return []models.DetectionContribution{{
			Category: "reputation", Delta: -0.95, Weight: 3,
			Verdict: models.VerdictVerifiedGoodBot, Reason: "allowlisted",
		}}, nil
	}}
	late := &fake{
		name:     "Late",
		triggers: []blackboard.Trigger{blackboard.DetectorCount(1)},
		fn: func(_ context.Context, _ *blackboard.State) ([]models.DetectionContribution, error) {
			t.Errorf("late contributor ran after early exit")
			return nil, nil
		},
	}

	eng := New(Config{}, []contributors.Contributor{exiter, late})
	ev := eng.Analyze(context.Background(), snap())

	assert.True(t, ev.EarlyExit)
	assert.LessOrEqual(t, ev.BotProbability, 0.10)
	assert.NotContains(t, ev.ContributingDetectors, "Late")
	assert.NotContains(t, ev.FailedDetectors, "Late", "skipped is not failed")
}

func TestAnalyze_UnsatisfiedTriggersAreSkipped(t *testing.T) {
	a := emitBot("A", 0.2, nil)
	gated := &fake{
		name:     "Gated",
		triggers: []blackboard.Trigger{blackboard.SignalExists("never.written")},
		fn: func(_ context.Context, _ *blackboard.State) ([]models.DetectionContribution, error) {
			t.Errorf("gated contributor ran without its signal")
			return nil, nil
		},
	}

	eng := New(Config{}, []contributors.Contributor{a, gated})
	ev := eng.Analyze(context.Background(), snap())

	assert.NotContains(t, ev.ContributingDetectors, "Gated")
	assert.NotContains(t, ev.FailedDetectors, "Gated")
}

func TestAnalyze_RiskThresholdAdmitsLaterWave(t *testing.T) {
	heavy := emitBot("Heavy", 0.95, nil)
	hot := &fake{
		name:     "OnHighRisk",
		triggers: []blackboard.Trigger{blackboard.RiskThreshold(models.RiskMedium)},
		fn: func(_ context.Context, st *blackboard.State) ([]models.DetectionContribution, error) {
			return []models.DetectionContribution{{Category: "test", Delta: 0.1, Weight: 1}}, nil
		},
	}

	eng := New(Config{}, []contributors.Contributor{heavy, hot})
	ev := eng.Analyze(context.Background(), snap())
	assert.Contains(t, ev.ContributingDetectors, "OnHighRisk",
		"risk threshold should admit the contributor once the score crosses it")
}

func TestAnalyze_Deterministic(t *testing.T) {
	// Same snapshot, fresh engine → identical scalar outputs.
	build := func() *Engine {
		return New(Config{}, []contributors.Contributor{
			emitBot("A", 0.4, map[string]any{"x": true}),
			emitBot("B", -0.2, nil),
			emitBot("C", 0.1, nil),
		})
	}
	first := build().Analyze(context.Background(), snap())
	second := build().Analyze(context.Background(), snap())

	assert.Equal(t, first.BotProbability, second.BotProbability)
	assert.Equal(t, first.Confidence, second.Confidence)
	assert.Equal(t, first.RiskBand, second.RiskBand)
}

func TestAnalyze_AlwaysReturnsEvidence(t *testing.T) {
	// Even with an empty roster and a nil-ish snapshot the engine answers.
	eng := New(Config{}, nil)
	ev := eng.Analyze(context.Background(), &models.RequestSnapshot{})
	require.NotNil(t, ev)
	assert.Equal(t, models.RiskBandFor(ev.BotProbability), ev.RiskBand)
}
