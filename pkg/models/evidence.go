package models

import "time"

// Risk & Threat Bands
//
// Two orthogonal assessments come out of every analysis:
//
//   RiskBand   — "how likely is this client automated?"  (bot probability)
//   ThreatBand — "how hostile is this session's intent?" (threat score)
//
// A verified search-engine crawler is high-probability/zero-threat; a human
// probing /.env and /phpmyadmin from a real browser is low-probability/
// high-threat. Callers are expected to treat the two independently.

// RiskBand is the discrete label derived from bot probability.
type RiskBand string

const (
	RiskNone     RiskBand = "None"
	RiskLow      RiskBand = "Low"
	RiskElevated RiskBand = "Elevated"
	RiskMedium   RiskBand = "Medium"
	RiskHigh     RiskBand = "High"
	RiskCritical RiskBand = "Critical"
)

// Risk band thresholds: None < 0.15 <= Low < 0.35 <= Elevated < 0.55 <=
// Medium < 0.75 <= High < 0.90 <= Critical.
func RiskBandFor(probability float64) RiskBand {
	switch {
	case probability < 0.15:
		return RiskNone
	case probability < 0.35:
		return RiskLow
	case probability < 0.55:
		return RiskElevated
	case probability < 0.75:
		return RiskMedium
	case probability < 0.90:
		return RiskHigh
	default:
		return RiskCritical
	}
}

var riskOrder = map[RiskBand]int{
	RiskNone:     0,
	RiskLow:      1,
	RiskElevated: 2,
	RiskMedium:   3,
	RiskHigh:     4,
	RiskCritical: 5,
}

// AtLeast reports whether b is the same band as other or a more severe one.
func (b RiskBand) AtLeast(other RiskBand) bool {
	return riskOrder[b] >= riskOrder[other]
}

// ThreatBand is the discrete label derived from the session threat score.
type ThreatBand string

const (
	ThreatNone     ThreatBand = "None"
	ThreatLow      ThreatBand = "Low"
	ThreatElevated ThreatBand = "Elevated"
	ThreatHigh     ThreatBand = "High"
	ThreatCritical ThreatBand = "Critical"
)

// Threat band thresholds: None < 0.15 <= Low < 0.40 <= Elevated < 0.65 <=
// High < 0.85 <= Critical.
func ThreatBandFor(score float64) ThreatBand {
	switch {
	case score < 0.15:
		return ThreatNone
	case score < 0.40:
		return ThreatLow
	case score < 0.65:
		return ThreatElevated
	case score < 0.85:
		return ThreatHigh
	default:
		return ThreatCritical
	}
}

var threatOrder = map[ThreatBand]int{
	ThreatNone:     0,
	ThreatLow:      1,
	ThreatElevated: 2,
	ThreatHigh:     3,
	ThreatCritical: 4,
}

// AtLeast reports whether b is the same band as other or a more severe one.
func (b ThreatBand) AtLeast(other ThreatBand) bool {
	return threatOrder[b] >= threatOrder[other]
}

// IntentCategory describes what the session appears to be doing.
type IntentCategory string

const (
	IntentBrowsing       IntentCategory = "browsing"
	IntentScanning       IntentCategory = "scanning"
	IntentReconnaissance IntentCategory = "reconnaissance"
	IntentAttacking      IntentCategory = "attacking"
)

// CategoryRollup is the per-category aggregation over the ledger.
type CategoryRollup struct {
	Total     float64 `json:"total"` // sum of signed weighted deltas
	Count     int     `json:"count"`
	TopReason string  `json:"topReason"` // reason of the largest |weighted delta|
}

// AggregatedEvidence is the engine's verdict for one request. This is what
// the middleware, the dashboard, and the persistence layer all consume.
type AggregatedEvidence struct {
	RequestID             string                    `json:"requestId"`
	Ledger                []DetectionContribution   `json:"ledger"` // completion order
	BotProbability        float64                   `json:"botProbability"`
	Confidence            float64                   `json:"confidence"`
	RiskBand              RiskBand                  `json:"riskBand"`
	PrimaryBotType        BotType                   `json:"primaryBotType,omitempty"`
	PrimaryBotName        string                    `json:"primaryBotName,omitempty"`
	Signals               map[string]any            `json:"signals"`
	TotalProcessingMS     float64                   `json:"totalProcessingMs"`
	CategoryBreakdown     map[string]CategoryRollup `json:"categoryBreakdown"`
	ContributingDetectors []string                  `json:"contributingDetectors"`
	FailedDetectors       []string                  `json:"failedDetectors"`
	ThreatScore           float64                   `json:"threatScore"`
	ThreatBand            ThreatBand                `json:"threatBand"`
	IntentCategory        IntentCategory            `json:"intentCategory"`
	Waves                 int                       `json:"waves"`
	EarlyExit             bool                      `json:"earlyExit"`
	AnalyzedAt            time.Time                 `json:"analyzedAt"`
}
