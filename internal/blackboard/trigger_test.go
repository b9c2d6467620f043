package blackboard

import (
	"testing"

	"github.com/scottgal/stylobot/pkg/models"
)

func TestTrigger_SignalExists(t *testing.T) {
	st := NewState(&models.RequestSnapshot{})
	trig := SignalExists("ua.present")

	if trig.Satisfied(st) {
		t.Errorf("trigger fired before the signal was written")
	}
	st.WriteSignal("ua.present", true)
	if !trig.Satisfied(st) {
		t.Errorf("trigger did not fire after the signal was written")
	}
}

func TestTrigger_Combinators(t *testing.T) {
	st := NewState(&models.RequestSnapshot{})
	st.WriteSignal("a", 1)

	all := AllOf(SignalExists("a"), SignalExists("b"))
	any := AnyOf(SignalExists("a"), SignalExists("b"))

	if all.Satisfied(st) {
		t.Errorf("AllOf satisfied with one child false")
	}
	if !any.Satisfied(st) {
		t.Errorf("AnyOf unsatisfied with one child true")
	}
	if !AllOf().Satisfied(st) {
		t.Errorf("empty AllOf must be vacuously true")
	}

	st.WriteSignal("b", 1)
	if !all.Satisfied(st) {
		t.Errorf("AllOf unsatisfied with both children true")
	}
}

func TestTrigger_DetectorCount(t *testing.T) {
	st := NewState(&models.RequestSnapshot{})
	trig := DetectorCount(2)

	st.Append("one", nil)
	if trig.Satisfied(st) {
		t.Errorf("DetectorCount(2) fired at one completion")
	}
	st.Append("two", nil)
	if !trig.Satisfied(st) {
		t.Errorf("DetectorCount(2) did not fire at two completions")
	}
}

func TestTrigger_RiskThreshold(t *testing.T) {
	st := NewState(&models.RequestSnapshot{})

	st.SetCurrentScore(0.10) // None
	if RiskThreshold(models.RiskElevated).Satisfied(st) {
		t.Errorf("Elevated threshold fired at probability 0.10")
	}

	st.SetCurrentScore(0.60) // Medium
	if !RiskThreshold(models.RiskElevated).Satisfied(st) {
		t.Errorf("Elevated threshold must fire at Medium — threshold is at-or-above")
	}
	if RiskThreshold(models.RiskCritical).Satisfied(st) {
		t.Errorf("Critical threshold fired at Medium")
	}
}

func TestTrigger_Deterministic(t *testing.T) {
	// Same state, same answer — evaluated many times.
	st := NewState(&models.RequestSnapshot{})
	st.WriteSignal("x", true)
	trig := AllOf(SignalExists("x"), DetectorCount(0))
	for i := 0; i < 100; i++ {
		if !trig.Satisfied(st) {
			t.Fatalf("trigger flapped on evaluation %d", i)
		}
	}
}
