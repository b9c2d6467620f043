package api

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/scottgal/stylobot/internal/engine"
	"github.com/scottgal/stylobot/pkg/models"
)

// EvidenceContextKey is where the detection middleware stores the evidence
// for downstream handlers.
const EvidenceContextKey = "stylobot.evidence"

// DetectionMiddleware snapshots each request, runs the engine, annotates
// the response and exposes the evidence on the gin context. The verdict is
// advisory — classification, never blocking.
func DetectionMiddleware(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		snap := models.SnapshotFromHTTP(c.Request, uuid.NewString(), c.ClientIP())
		evidence := eng.Analyze(c.Request.Context(), snap)

		c.Set(EvidenceContextKey, evidence)
		c.Header("X-Stylobot-Request", evidence.RequestID)
		c.Header("X-Stylobot-Risk", string(evidence.RiskBand))
		c.Header("X-Stylobot-Threat", string(evidence.ThreatBand))

		c.Next()
	}
}

// EvidenceFrom retrieves the evidence the middleware attached, if any.
func EvidenceFrom(c *gin.Context) (*models.AggregatedEvidence, bool) {
	v, ok := c.Get(EvidenceContextKey)
	if !ok {
		return nil, false
	}
	ev, ok := v.(*models.AggregatedEvidence)
	return ev, ok
}
