package api

import (
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/scottgal/stylobot/internal/engine"
	"github.com/scottgal/stylobot/internal/history"
	"github.com/scottgal/stylobot/internal/reputation"
	"github.com/scottgal/stylobot/pkg/models"
)

// APIHandler bundles everything the inspection API serves.
type APIHandler struct {
	engine    *engine.Engine
	cache     reputation.Cache
	countries *history.CountryTracker
	recent    *RecentEvidence
	hub       *Hub
}

// SetupRouter builds the gin router: health, metrics, the inspection API
// and the dashboard WebSocket feed.
func SetupRouter(eng *engine.Engine, cache reputation.Cache, countries *history.CountryTracker, recent *RecentEvidence, hub *Hub) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	h := &APIHandler{engine: eng, cache: cache, countries: countries, recent: recent, hub: hub}

	// Health, metrics and the dashboard stream stay public; everything
	// under /api carries bearer auth and per-IP rate limiting.
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws", hub.Subscribe)

	ratePerMin, _ := strconv.Atoi(os.Getenv("STYLOBOT_API_RATE_PER_MIN"))
	limiter := NewRateLimiter(ratePerMin, 0)

	apiGroup := r.Group("/api", AuthMiddleware(), limiter.Middleware())
	{
		apiGroup.POST("/analyze", h.analyze)
		apiGroup.GET("/evidence/recent", h.recentEvidence)
		apiGroup.GET("/reputation/*pattern", h.reputationLookup)
		apiGroup.GET("/countries/top", h.topCountries)
	}
	return r
}

// analyzeRequest is the synthetic-snapshot body POST /api/analyze accepts,
// letting dashboards and tests drive the engine without real traffic.
type analyzeRequest struct {
	Method   string              `json:"method"`
	Path     string              `json:"path"`
	Query    string              `json:"query"`
	Protocol string              `json:"protocol"`
	ClientIP string              `json:"clientIp"`
	Headers  map[string][]string `json:"headers"`
}

func (h *APIHandler) analyze(c *gin.Context) {
	if !syntheticAnalysisEnabled() {
		c.JSON(http.StatusForbidden, gin.H{
			"error": "synthetic analysis disabled",
			"hint":  "set STYLOBOT_ENABLE_SYNTHETIC=true to allow fabricated snapshots",
		})
		return
	}
	var body analyzeRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if body.Method == "" {
		body.Method = "GET"
	}
	if body.Protocol == "" {
		body.Protocol = "HTTP/1.1"
	}

	snap := &models.RequestSnapshot{
		RequestID: uuid.NewString(),
		Method:    body.Method,
		Path:      body.Path,
		Query:     body.Query,
		Protocol:  body.Protocol,
		Scheme:    "https",
		ClientIP:  body.ClientIP,
		Headers:   http.Header{},
	}
	for name, values := range body.Headers {
		for _, v := range values {
			snap.Headers.Add(name, v)
		}
	}

	evidence := h.engine.Analyze(c.Request.Context(), snap)
	c.JSON(http.StatusOK, evidence)
}

func (h *APIHandler) recentEvidence(c *gin.Context) {
	n, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	c.JSON(http.StatusOK, h.recent.List(n))
}

func (h *APIHandler) reputationLookup(c *gin.Context) {
	pattern := c.Param("pattern")
	if len(pattern) > 0 && pattern[0] == '/' {
		pattern = pattern[1:]
	}
	rep, ok := h.cache.Get(pattern)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "pattern unknown", "pattern": pattern})
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (h *APIHandler) topCountries(c *gin.Context) {
	n, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	c.JSON(http.StatusOK, h.countries.GetTopBotCountries(n))
}
