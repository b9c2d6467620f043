package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleManifest = `
Haxxor:
  priority: 20
  timing:
    timeout_ms: 80
  defaults:
    confidence:
      bot_detected: 0.65
      strong_signal: 0.9
  parameters:
    sqli_confidence: 0.92
    scan_404_count: 12
    enabled: true
    mode: strict
    login_paths:
      - /login
      - /signin
BehavioralWaveform:
  timing:
    timeout_ms: 120
`

func loadSample(t *testing.T) *ManifestProvider {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "detectors.yaml"), []byte(sampleManifest), 0o644))
	p, err := LoadDir(dir)
	require.NoError(t, err)
	return p
}

func TestLoadDir_ParsesManifests(t *testing.T) {
	p := loadSample(t)

	assert.Equal(t, 20, p.Priority("Haxxor", 99))
	assert.Equal(t, 80*time.Millisecond, p.Timeout("Haxxor", time.Second))
	assert.Equal(t, 120*time.Millisecond, p.Timeout("BehavioralWaveform", time.Second))

	conf := p.Confidence("Haxxor")
	assert.Equal(t, 0.65, conf.BotDetected)
	assert.Equal(t, 0.9, conf.StrongSignal)
	// Unset field falls through to the global default.
	assert.Equal(t, GlobalConfidenceDefaults.HumanSignal, conf.HumanSignal)
}

func TestProvider_TypedParameters(t *testing.T) {
	p := loadSample(t)

	assert.Equal(t, 0.92, p.Float("Haxxor", "sqli_confidence", 0.5))
	assert.Equal(t, 12, p.Int("Haxxor", "scan_404_count", 10))
	assert.Equal(t, 12.0, p.Float("Haxxor", "scan_404_count", 0), "int parameter readable as float")
	assert.True(t, p.Bool("Haxxor", "enabled", false))
	assert.Equal(t, "strict", p.String("Haxxor", "mode", "lax"))
	assert.Equal(t, []string{"/login", "/signin"}, p.StringList("Haxxor", "login_paths"))
}

func TestProvider_DefaultsWhenAbsent(t *testing.T) {
	p := loadSample(t)

	assert.Equal(t, 7, p.Priority("Unknown", 7))
	assert.Equal(t, time.Second, p.Timeout("Unknown", time.Second))
	assert.Equal(t, 0.5, p.Float("Haxxor", "missing", 0.5))
	assert.Nil(t, p.StringList("Haxxor", "missing"))
	assert.Equal(t, GlobalConfidenceDefaults, p.Confidence("Unknown"))
}

func TestLoadDir_MissingDirIsNotFatal(t *testing.T) {
	p, err := LoadDir("/nonexistent/config/dir")
	require.NoError(t, err)
	assert.Equal(t, 5, p.Priority("Anything", 5))
}

func TestNewStatic(t *testing.T) {
	p := NewStatic(map[string]Manifest{
		"X": {Priority: 3},
	})
	assert.Equal(t, 3, p.Priority("X", 1))
}
