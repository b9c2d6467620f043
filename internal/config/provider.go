// Package config supplies per-detector configuration: priority, execution
// timeout, confidence defaults and free-form parameters. Detectors never
// read files themselves — they see only the Provider interface, so tests can
// inject static manifests.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// ConfidenceDefaults are the canonical contribution magnitudes a detector
// draws from: bot_detected for ordinary bot evidence, strong_signal for
// conclusive evidence, human_signal for human-leaning evidence.
type ConfidenceDefaults struct {
	BotDetected  float64 `yaml:"bot_detected"`
	StrongSignal float64 `yaml:"strong_signal"`
	HumanSignal  float64 `yaml:"human_signal"`
}

// GlobalConfidenceDefaults apply wherever a manifest leaves a field unset.
var GlobalConfidenceDefaults = ConfidenceDefaults{
	BotDetected:  0.60,
	StrongSignal: 0.85,
	HumanSignal:  0.40,
}

// Manifest is one detector's configuration document.
type Manifest struct {
	Priority int `yaml:"priority"`
	Timing   struct {
		TimeoutMS int `yaml:"timeout_ms"`
	} `yaml:"timing"`
	Defaults struct {
		Confidence ConfidenceDefaults `yaml:"confidence"`
	} `yaml:"defaults"`
	Parameters map[string]any `yaml:"parameters"`
}

// Provider is the read surface detectors compose.
type Provider interface {
	Priority(detector string, def int) int
	Timeout(detector string, def time.Duration) time.Duration
	Confidence(detector string) ConfidenceDefaults
	Float(detector, name string, def float64) float64
	Int(detector, name string, def int) int
	Bool(detector, name string, def bool) bool
	String(detector, name, def string) string
	StringList(detector, name string) []string
}

// ManifestProvider serves manifests loaded from YAML or injected statically.
type ManifestProvider struct {
	mu        sync.RWMutex
	manifests map[string]Manifest
}

// NewStatic wraps a manifest map directly (test seam).
func NewStatic(manifests map[string]Manifest) *ManifestProvider {
	if manifests == nil {
		manifests = map[string]Manifest{}
	}
	return &ManifestProvider{manifests: manifests}
}

// LoadDir reads every *.yaml / *.yml in dir. Each file is a map from
// detector name to manifest, so related detectors can share a file.
// A missing directory is not an error — everything falls back to defaults.
func LoadDir(dir string) (*ManifestProvider, error) {
	p := NewStatic(nil)
	if dir == "" {
		return p, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn().Str("dir", dir).Msg("detector config directory missing, using defaults")
			return p, nil
		}
		return nil, fmt.Errorf("reading config dir %s: %w", dir, err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || (!strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml")) {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		var doc map[string]Manifest
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", name, err)
		}
		p.mu.Lock()
		for detector, m := range doc {
			p.manifests[detector] = m
		}
		p.mu.Unlock()
	}
	log.Info().Int("detectors", len(p.manifests)).Str("dir", dir).Msg("detector manifests loaded")
	return p, nil
}

func (p *ManifestProvider) manifest(detector string) (Manifest, bool) {
	p.mu.RLock()
	m, ok := p.manifests[detector]
	p.mu.RUnlock()
	return m, ok
}

// Priority returns the detector's configured priority or the default.
func (p *ManifestProvider) Priority(detector string, def int) int {
	if m, ok := p.manifest(detector); ok && m.Priority != 0 {
		return m.Priority
	}
	return def
}

// Timeout returns the detector's execution timeout or the default.
func (p *ManifestProvider) Timeout(detector string, def time.Duration) time.Duration {
	if m, ok := p.manifest(detector); ok && m.Timing.TimeoutMS > 0 {
		return time.Duration(m.Timing.TimeoutMS) * time.Millisecond
	}
	return def
}

// Confidence returns the detector's confidence defaults, field-filled from
// the global defaults.
func (p *ManifestProvider) Confidence(detector string) ConfidenceDefaults {
	out := GlobalConfidenceDefaults
	if m, ok := p.manifest(detector); ok {
		if c := m.Defaults.Confidence; c.BotDetected > 0 {
			out.BotDetected = c.BotDetected
		}
		if c := m.Defaults.Confidence; c.StrongSignal > 0 {
			out.StrongSignal = c.StrongSignal
		}
		if c := m.Defaults.Confidence; c.HumanSignal > 0 {
			out.HumanSignal = c.HumanSignal
		}
	}
	return out
}

func (p *ManifestProvider) param(detector, name string) (any, bool) {
	m, ok := p.manifest(detector)
	if !ok || m.Parameters == nil {
		return nil, false
	}
	v, ok := m.Parameters[name]
	return v, ok
}

// Float returns a numeric parameter.
func (p *ManifestProvider) Float(detector, name string, def float64) float64 {
	v, ok := p.param(detector, name)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return def
}

// Int returns an integer parameter.
func (p *ManifestProvider) Int(detector, name string, def int) int {
	v, ok := p.param(detector, name)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return def
}

// Bool returns a boolean parameter.
func (p *ManifestProvider) Bool(detector, name string, def bool) bool {
	v, ok := p.param(detector, name)
	if !ok {
		return def
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return def
}

// String returns a string parameter.
func (p *ManifestProvider) String(detector, name, def string) string {
	v, ok := p.param(detector, name)
	if !ok {
		return def
	}
	if s, ok := v.(string); ok {
		return s
	}
	return def
}

// StringList returns a list parameter; nil when absent or mistyped.
func (p *ManifestProvider) StringList(detector, name string) []string {
	v, ok := p.param(detector, name)
	if !ok {
		return nil
	}
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
