// Package contributors holds the ~25 independent analyzers the orchestrator
// schedules against the blackboard. Each contributor reads the request
// snapshot and whatever signals earlier waves produced, and emits evidence
// contributions plus new signals; none ever references another contributor
// directly.
package contributors

import (
	"context"
	"time"

	"github.com/scottgal/stylobot/internal/blackboard"
	"github.com/scottgal/stylobot/internal/config"
	"github.com/scottgal/stylobot/pkg/models"
)

// Contributor is the contract every analyzer implements.
//
// Rules: idempotent within a request; respects ctx cancellation; never
// blocks unboundedly; may write signals (visible to later waves); should
// return at least one informational contribution so its run is observable;
// never mutates another contributor's output.
type Contributor interface {
	Name() string
	Priority() int
	Triggers() []blackboard.Trigger
	Timeout() time.Duration
	Contribute(ctx context.Context, st *blackboard.State) ([]models.DetectionContribution, error)
}

// base carries the config plumbing shared by every contributor. Priority
// and timeout defaults are overridable per detector via the manifest.
type base struct {
	name     string
	cfg      config.Provider
	priority int
	timeout  time.Duration
	triggers []blackboard.Trigger
}

func (b base) Name() string { return b.name }

func (b base) Priority() int {
	return b.cfg.Priority(b.name, b.priority)
}

func (b base) Timeout() time.Duration {
	return b.cfg.Timeout(b.name, b.timeout)
}

func (b base) Triggers() []blackboard.Trigger { return b.triggers }

func (b base) confidence() config.ConfidenceDefaults {
	return b.cfg.Confidence(b.name)
}

// Contribution factories — the canonical evidence shapes.

// Info is a zero-weight observability record: "I ran, here is what I saw".
func Info(detector, category, reason string) models.DetectionContribution {
	return models.DetectionContribution{
		Detector: detector, Category: category, Reason: reason,
		Verdict: models.VerdictInfo,
	}
}

// Neutral is observed-but-undecided: adds evidence mass without a lean.
func Neutral(detector, category, reason string) models.DetectionContribution {
	return models.DetectionContribution{
		Detector: detector, Category: category, Reason: reason,
		Weight: 0.25, Verdict: models.VerdictNormal,
	}
}

// Human leans human by magnitude (0,1].
func Human(detector, category string, magnitude float64, reason string) models.DetectionContribution {
	return models.DetectionContribution{
		Detector: detector, Category: category, Reason: reason,
		Delta: -clampMag(magnitude), Weight: 1.0,
	}
}

// Bot leans bot by magnitude (0,1].
func Bot(detector, category string, magnitude float64, reason string) models.DetectionContribution {
	return models.DetectionContribution{
		Detector: detector, Category: category, Reason: reason,
		Delta: clampMag(magnitude), Weight: 1.0,
	}
}

// StrongBot is conclusive single-source bot evidence: same delta scale,
// elevated weight.
func StrongBot(detector, category string, magnitude float64, reason string) models.DetectionContribution {
	return models.DetectionContribution{
		Detector: detector, Category: category, Reason: reason,
		Delta: clampMag(magnitude), Weight: 1.5,
	}
}

// VerifiedBot is the early-exit "confirmed hostile/automated" verdict.
func VerifiedBot(detector, category string, botType models.BotType, botName, reason string) models.DetectionContribution {
	return models.DetectionContribution{
		Detector: detector, Category: category, Reason: reason,
		Delta: 0.95, Weight: 3.0,
		BotType: botType, BotName: botName,
		Verdict: models.VerdictVerifiedBot,
	}
}

// VerifiedGoodBot is the early-exit "proven welcome crawler" verdict.
func VerifiedGoodBot(detector, category string, botType models.BotType, botName, reason string) models.DetectionContribution {
	return models.DetectionContribution{
		Detector: detector, Category: category, Reason: reason,
		Delta: -0.95, Weight: 3.0,
		BotType: botType, BotName: botName,
		Verdict: models.VerdictVerifiedGoodBot,
	}
}

func clampMag(m float64) float64 {
	if m < 0 {
		return 0
	}
	if m > 1 {
		return 1
	}
	return m
}

// External collaborator contracts. All are optional: a nil collaborator
// degrades the owning contributor to a zero-weight Info contribution.

// SimilarMatch is one approximate-nearest-neighbor hit.
type SimilarMatch struct {
	Distance float64
	WasBot   bool
	Metadata map[string]string
}

// SimilaritySearch is the ANN index over past request signatures.
type SimilaritySearch interface {
	FindSimilar(ctx context.Context, vector []float64, topK int, minSimilarity float64) ([]SimilarMatch, error)
	Count() int
}

// IntentMatch is one hit against the known-intent index.
type IntentMatch struct {
	Distance       float64
	ThreatScore    float64
	IntentCategory models.IntentCategory
}

// IntentSearch is the ANN index over known-intent sessions.
type IntentSearch interface {
	FindSimilar(ctx context.Context, vector []float64, topK int, minSimilarity float64) ([]IntentMatch, error)
}

// ResponseCoordinator reports how the server has been answering a client.
type ResponseCoordinator interface {
	GetClientBehavior(ctx context.Context, signature string) (*models.ClientResponseBehavior, error)
}

// TimeSeriesReputationProvider serves long-horizon per-signature stats.
type TimeSeriesReputationProvider interface {
	GetReputation(ctx context.Context, signature string) (*models.TimeSeriesStats, error)
}

// GeoResolver maps a client IP to an ISO country code.
type GeoResolver interface {
	Country(ip string) (string, bool)
}

// DatacenterResolver reports whether an IP belongs to hosting/cloud space.
type DatacenterResolver interface {
	IsDatacenter(ip string) bool
}

// EvidenceView is the read-only aggregate snapshot handed to learned-model
// detectors mid-analysis.
type EvidenceView struct {
	Probability   float64
	Contributions int
	Signals       map[string]any
}

// DetectorFinding is one reason a learned model emits.
type DetectorFinding struct {
	Reason  string
	Delta   float64 // signed confidence impact
	BotType models.BotType
	BotName string
}

// Detector is the contract for the heuristic and LLM models. Only the
// contract lives here; the models themselves are external.
type Detector interface {
	Name() string
	Detect(ctx context.Context, req *models.RequestSnapshot, view EvidenceView) ([]DetectorFinding, error)
}
