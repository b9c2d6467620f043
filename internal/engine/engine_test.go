package engine

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scottgal/stylobot/internal/botlist"
	"github.com/scottgal/stylobot/internal/config"
	"github.com/scottgal/stylobot/internal/contributors"
	"github.com/scottgal/stylobot/internal/history"
	"github.com/scottgal/stylobot/internal/patterns"
	"github.com/scottgal/stylobot/internal/reputation"
	"github.com/scottgal/stylobot/internal/signals"
	"github.com/scottgal/stylobot/pkg/models"
)

// End-to-end scenarios over the full default roster with faked external
// collaborators. These are the engine's seed acceptance cases.

type staticResolver struct {
	ptrs    map[string][]string
	forward map[string][]string
}

func (r *staticResolver) LookupAddr(_ context.Context, addr string) ([]string, error) {
	if names, ok := r.ptrs[addr]; ok {
		return names, nil
	}
	return nil, errors.New("NXDOMAIN")
}

func (r *staticResolver) LookupHost(_ context.Context, host string) ([]string, error) {
	if addrs, ok := r.forward[host]; ok {
		return addrs, nil
	}
	return nil, errors.New("NXDOMAIN")
}

type staticResponses struct {
	behavior *models.ClientResponseBehavior
}

func (s *staticResponses) GetClientBehavior(_ context.Context, _ string) (*models.ClientResponseBehavior, error) {
	return s.behavior, nil
}

type harness struct {
	engine *Engine
	store  *history.Store
}

func newHarness(t *testing.T, mutate func(*contributors.Deps)) *harness {
	t.Helper()
	store := history.NewStore(history.DefaultStoreConfig())
	deps := contributors.Deps{
		Config:    config.NewStatic(nil),
		Cache:     reputation.NewMemoryCache(),
		History:   store,
		Countries: history.NewCountryTracker(),
		Registry:  botlist.NewKnownBotRegistryWithResolver(&staticResolver{}),
		Fetcher:   botlist.NewPatternFetcher("", 0),
	}
	if mutate != nil {
		mutate(&deps)
	}
	eng := New(Config{WallClockBudget: 5 * time.Second}, contributors.DefaultRoster(deps))
	return &harness{engine: eng, store: store}
}

func request(method, path, query, proto, ip string, headers map[string]string) *models.RequestSnapshot {
	h := http.Header{}
	for k, v := range headers {
		h.Set(k, v)
	}
	return &models.RequestSnapshot{
		RequestID: "test-" + path,
		Method:    method, Path: path, Query: query,
		Protocol: proto, Scheme: "https", Host: "example.com",
		ClientIP: ip, Headers: h, ReceivedAt: time.Now(),
	}
}

func ledgerReason(ev *models.AggregatedEvidence, detector, substr string) bool {
	for _, c := range ev.Ledger {
		if c.Detector == detector && strings.Contains(c.Reason, substr) {
			return true
		}
	}
	return false
}

func TestScenario_CurlBaseline(t *testing.T) {
	// GET / with curl's exact header set: UA and Accept, nothing else.
	h := newHarness(t, nil)
	ev := h.engine.Analyze(context.Background(), request("GET", "/", "", "HTTP/1.1", "198.51.100.10",
		map[string]string{"User-Agent": "curl/8.1.2", "Accept": "*/*"}))

	assert.GreaterOrEqual(t, ev.BotProbability, 0.85)
	assert.True(t, ev.RiskBand == models.RiskHigh || ev.RiskBand == models.RiskCritical,
		"band = %s", ev.RiskBand)
	assert.Equal(t, models.BotTypeScraper, ev.PrimaryBotType)
	assert.Equal(t, "curl", ev.PrimaryBotName)

	assert.True(t, ledgerReason(ev, "UserAgent", "curl"), "UserAgent evidence missing")
	assert.True(t, ledgerReason(ev, "Header", "missing") || ledgerReason(ev, "Header", "Sparse"),
		"Header evidence about the sparse set missing")
	// HTTP/1.1 boundary behavior: h2 leans mildly bot, h3 is info-only.
	assert.True(t, ledgerReason(ev, "Http2Fingerprint", "HTTP/1.1"))
	for _, c := range ev.Ledger {
		if c.Detector == "Http3Fingerprint" {
			assert.Zero(t, c.Weight, "Http3 must be info-only off HTTP/3")
		}
	}
}

func TestScenario_ChromiumOnBroadband(t *testing.T) {
	h := newHarness(t, nil)
	snap := request("GET", "/pricing", "", "HTTP/2", "198.51.100.23", map[string]string{
		"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		"Accept-Language": "en-US,en;q=0.9",
		"Accept-Encoding": "gzip, deflate, br",
		"Sec-Ch-Ua":       `"Chromium";v="120", "Google Chrome";v="120"`,
		"Sec-Fetch-Site":  "same-origin",
		"Referer":         "https://example.com/",
		"Cookie":          "session=abc123",
	})
	snap.TLS = &models.TLSInfo{Version: "TLS1.3", CipherSuite: "TLS_AES_128_GCM_SHA256", JA3: "579ccef312d18482fc42e2b822ca2430"}
	snap.H2 = &models.H2Fingerprint{Fingerprint: "1:65536;2:0;4:6291456;6:262144|15663105|0|m,a,s,p", SettingsCount: 4}
	snap.TCP = &models.TCPInfo{TTL: 117, WindowSize: 64240, MSS: 1460}

	ev := h.engine.Analyze(context.Background(), snap)

	assert.LessOrEqual(t, ev.BotProbability, 0.20)
	assert.True(t, ev.RiskBand == models.RiskNone || ev.RiskBand == models.RiskLow,
		"band = %s", ev.RiskBand)
	assert.True(t, ledgerReason(ev, "Inconsistency", "agree"),
		"consistency check should emit the all-layers-agree human contribution")
	match, _ := ev.Signals[signals.H2Match].(string)
	assert.True(t, strings.HasPrefix(match, "Chrome_Desktop"), "h2.match = %q", match)
}

func TestScenario_SpoofedGooglebot(t *testing.T) {
	// Googlebot UA from an address with no Google range and no rDNS.
	h := newHarness(t, nil)
	ev := h.engine.Analyze(context.Background(), request("GET", "/", "", "HTTP/1.1", "203.0.113.5",
		map[string]string{"User-Agent": "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"}))

	assert.GreaterOrEqual(t, ev.BotProbability, 0.9)
	assert.False(t, ev.EarlyExit, "a spoof must never take the verified-good fast path")

	var spoofed bool
	for _, c := range ev.Ledger {
		require.NotEqual(t, models.VerdictVerifiedGoodBot, c.Verdict)
		if c.BotName == "Spoofed-Googlebot" {
			spoofed = true
		}
	}
	assert.True(t, spoofed, "Spoofed-Googlebot contribution missing")
}

func TestScenario_VerifiedGooglebot(t *testing.T) {
	// Same UA from inside Google's published crawl range.
	h := newHarness(t, nil)
	ev := h.engine.Analyze(context.Background(), request("GET", "/", "", "HTTP/1.1", "66.249.66.1",
		map[string]string{"User-Agent": "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"}))

	assert.True(t, ev.EarlyExit, "verified crawler must take the fast path")
	assert.LessOrEqual(t, ev.BotProbability, 0.10)
	assert.Equal(t, models.RiskNone, ev.RiskBand)
	assert.LessOrEqual(t, ev.Waves, 2, "no further waves after the verification wave")
	assert.Equal(t, "Googlebot", ev.PrimaryBotName)
}

func TestScenario_CredentialStuffingBurst(t *testing.T) {
	// Twelve failing POSTs to /login within three minutes from one signature.
	h := newHarness(t, nil)
	ip, ua := "203.0.113.77", "python-requests/2.31.0"
	sig := patterns.Signature(ip, ua)
	base := time.Now().Add(-3 * time.Minute)
	for i := 0; i < 11; i++ {
		at := base.Add(time.Duration(i) * 15 * time.Second)
		h.store.Observe(sig, history.Event{Timestamp: at, Path: "/login", Method: "POST"})
		h.store.RecordLogin(sig, history.LoginAttempt{Timestamp: at, Method: "POST", Failed: true})
	}

	snap := request("POST", "/login", "", "HTTP/1.1", ip, map[string]string{"User-Agent": ua})
	ev := h.engine.Analyze(context.Background(), snap)

	assert.GreaterOrEqual(t, ev.BotProbability, 0.85)
	assert.Equal(t, models.BotTypeMalicious, ev.PrimaryBotType)
	detected, _ := ev.Signals[signals.AtoDetected].(bool)
	assert.True(t, detected, "ato.detected missing from signals")
	assert.True(t, ledgerReason(ev, "AccountTakeover", "login attempts"), "stuffing evidence missing")
	assert.True(t, ledgerReason(ev, "AccountTakeover", "failed authentications"), "brute-force evidence missing")
}

func TestScenario_PathScanningProbe(t *testing.T) {
	// Thirty probing GETs in two minutes with a browser-looking UA; the
	// response coordinator reports a heavy 404 trail.
	responses := &staticResponses{behavior: &models.ClientResponseBehavior{
		TotalResponses: 29, NotFoundCount: 24, UniqueNotFoundPaths: 20, AuthFailures: 0, ResponseScore: 0.8,
	}}
	h := newHarness(t, func(d *contributors.Deps) { d.Responses = responses })

	ip := "203.0.113.41"
	ua := "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36"
	sig := patterns.Signature(ip, ua)
	base := time.Now().Add(-2 * time.Minute)
	probePaths := []string{"/.env", "/wp-login.php", "/phpmyadmin/", "/actuator/env", "/backup.zip"}
	for i := 0; i < 29; i++ {
		h.store.Observe(sig, history.Event{
			Timestamp: base.Add(time.Duration(i) * 4 * time.Second),
			Path:      probePaths[i%len(probePaths)] + "x" + string(rune('a'+i)),
			Method:    "GET", UserAgent: ua,
			ContentClass: models.ContentPage,
		})
	}

	snap := request("GET", "/actuator/env", "", "HTTP/1.1", ip, map[string]string{
		"User-Agent": ua, "Accept": "*/*", "Accept-Language": "en-US",
	})
	ev := h.engine.Analyze(context.Background(), snap)

	assert.GreaterOrEqual(t, ev.BotProbability, 0.9)
	assert.True(t, ledgerReason(ev, "Haxxor", "Config/debug"), "probe-path evidence missing")
	assert.True(t, ledgerReason(ev, "ResponseBehavior", "404"), "404-scan evidence missing")
	assert.True(t, ev.ThreatBand.AtLeast(models.ThreatHigh), "threat band = %s", ev.ThreatBand)
	assert.True(t, ev.IntentCategory == models.IntentScanning || ev.IntentCategory == models.IntentAttacking,
		"intent = %s", ev.IntentCategory)
}

func TestAnalyze_ToleratesMissingEverything(t *testing.T) {
	// No UA, no IP, no headers: gated contributors skip, nothing throws,
	// and the probability still reflects the absent identity.
	h := newHarness(t, nil)
	ev := h.engine.Analyze(context.Background(), &models.RequestSnapshot{
		Method: "GET", Path: "/", Protocol: "HTTP/1.1", Headers: http.Header{}, ReceivedAt: time.Now(),
	})

	require.NotNil(t, ev)
	assert.Empty(t, ev.FailedDetectors, "missing input must not fail detectors: %v", ev.FailedDetectors)
	assert.True(t, ledgerReason(ev, "UserAgent", "Missing User-Agent"))
	assert.Contains(t, ev.ContributingDetectors, "Heuristic", "Heuristic must run even on empty input")
}

func TestAnalyze_RepeatableOnFreshState(t *testing.T) {
	// Same snapshot, empty caches and windows both times → identical
	// scalar outputs.
	snapFn := func() *models.RequestSnapshot {
		return request("GET", "/", "", "HTTP/1.1", "198.51.100.10",
			map[string]string{"User-Agent": "curl/8.1.2", "Accept": "*/*"})
	}
	first := newHarness(t, nil).engine.Analyze(context.Background(), snapFn())
	second := newHarness(t, nil).engine.Analyze(context.Background(), snapFn())

	assert.Equal(t, first.BotProbability, second.BotProbability)
	assert.Equal(t, first.Confidence, second.Confidence)
	assert.Equal(t, first.RiskBand, second.RiskBand)
}
