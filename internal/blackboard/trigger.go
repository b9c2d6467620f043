package blackboard

import (
	"fmt"
	"strings"

	"github.com/scottgal/stylobot/pkg/models"
)

// Trigger is a pure predicate over the blackboard. The orchestrator
// evaluates a contributor's triggers before each wave; the contributor
// becomes eligible the first time they all hold. Evaluation is deterministic
// given the state: same state, same eligible set.
type Trigger interface {
	Satisfied(st *State) bool
	String() string
}

type signalExists struct{ key string }

// SignalExists is true once the key has been written onto the blackboard.
func SignalExists(key string) Trigger { return signalExists{key: key} }

func (t signalExists) Satisfied(st *State) bool { return st.HasSignal(t.key) }
func (t signalExists) String() string           { return "signal(" + t.key + ")" }

type allOf struct{ children []Trigger }

// AllOf is true when every child trigger is true. AllOf() is vacuously true.
func AllOf(children ...Trigger) Trigger { return allOf{children: children} }

func (t allOf) Satisfied(st *State) bool {
	for _, c := range t.children {
		if !c.Satisfied(st) {
			return false
		}
	}
	return true
}

func (t allOf) String() string { return "all(" + joinTriggers(t.children) + ")" }

type anyOf struct{ children []Trigger }

// AnyOf is true when at least one child trigger is true.
func AnyOf(children ...Trigger) Trigger { return anyOf{children: children} }

func (t anyOf) Satisfied(st *State) bool {
	for _, c := range t.children {
		if c.Satisfied(st) {
			return true
		}
	}
	return false
}

func (t anyOf) String() string { return "any(" + joinTriggers(t.children) + ")" }

type detectorCount struct{ n int }

// DetectorCount is true once at least n contributors have completed.
func DetectorCount(n int) Trigger { return detectorCount{n: n} }

func (t detectorCount) Satisfied(st *State) bool { return st.CompletedCount() >= t.n }
func (t detectorCount) String() string           { return fmt.Sprintf("detectors>=%d", t.n) }

type riskThreshold struct{ band models.RiskBand }

// RiskThreshold is true when the current aggregate probability has reached
// the given band or a more severe one.
func RiskThreshold(band models.RiskBand) Trigger { return riskThreshold{band: band} }

func (t riskThreshold) Satisfied(st *State) bool {
	return models.RiskBandFor(st.CurrentScore()).AtLeast(t.band)
}

func (t riskThreshold) String() string { return "risk>=" + string(t.band) }

func joinTriggers(ts []Trigger) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = t.String()
	}
	return strings.Join(parts, ",")
}
