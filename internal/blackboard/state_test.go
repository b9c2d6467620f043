package blackboard

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scottgal/stylobot/pkg/models"
)

func TestState_SignalsMonotone(t *testing.T) {
	st := NewState(&models.RequestSnapshot{RequestID: "r1"})

	st.WriteSignal("a.one", true)
	st.WriteSignals(map[string]any{"a.two": 2, "a.three": "x"})

	require.True(t, st.HasSignal("a.one"))
	require.True(t, st.HasSignal("a.two"))

	// Overwrite changes the value but the key never disappears.
	st.WriteSignal("a.two", 5)
	n, ok := st.SignalInt("a.two")
	require.True(t, ok)
	assert.Equal(t, 5, n)
	assert.Len(t, st.Signals(), 3)
}

func TestState_AppendMergesSignalsAtomically(t *testing.T) {
	st := NewState(&models.RequestSnapshot{})

	st.Append("DetA", []models.DetectionContribution{{
		Category: models.CategoryIdentity,
		Delta:    0.5, Weight: 1, Reason: "x",
		Signals: map[string]any{"det.a": true},
	}})

	assert.True(t, st.SignalBool("det.a"))
	assert.Equal(t, 1, st.CompletedCount())
	require.Len(t, st.Contributions(), 1)
	assert.Equal(t, "DetA", st.Contributions()[0].Detector, "detector name filled on append")
}

func TestState_RollupTracksTopReason(t *testing.T) {
	st := NewState(&models.RequestSnapshot{})
	st.Append("A", []models.DetectionContribution{
		{Category: "attack", Delta: 0.2, Weight: 1, Reason: "small"},
		{Category: "attack", Delta: 0.9, Weight: 1.5, Reason: "big"},
	})

	roll := st.Rollups()["attack"]
	assert.Equal(t, 2, roll.Count)
	assert.InDelta(t, 0.2+1.35, roll.Total, 1e-9)
	assert.Equal(t, "big", roll.TopReason)
}

func TestState_EarlyExitPrecedence(t *testing.T) {
	st := NewState(&models.RequestSnapshot{})

	st.Append("Good", []models.DetectionContribution{{
		Category: "reputation", Delta: -0.95, Weight: 3, Verdict: models.VerdictVerifiedGoodBot,
	}})
	verdict, _ := st.EarlyExit()
	require.Equal(t, models.VerdictVerifiedGoodBot, verdict)

	// A confirmed-bad verdict outranks the earlier good one.
	st.Append("Bad", []models.DetectionContribution{{
		Category: "reputation", Delta: 0.95, Weight: 3, Verdict: models.VerdictVerifiedBot,
	}})
	verdict, detector := st.EarlyExit()
	assert.Equal(t, models.VerdictVerifiedBot, verdict)
	assert.Equal(t, "Bad", detector)
}

func TestState_FailedAndCompletedDisjoint(t *testing.T) {
	st := NewState(&models.RequestSnapshot{})
	st.Append("A", nil)
	st.MarkFailed("B")

	assert.Equal(t, []string{"A"}, st.Completed())
	assert.Equal(t, []string{"B"}, st.Failed())
}

func TestState_ConcurrentWrites(t *testing.T) {
	st := NewState(&models.RequestSnapshot{})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			st.WriteSignal("shared.key", n)
			st.Append("det", []models.DetectionContribution{{Category: "x", Delta: 0.1, Weight: 1}})
			_ = st.Signals()
			_ = st.Contributions()
		}(i)
	}
	wg.Wait()
	assert.Len(t, st.Contributions(), 50)
}
