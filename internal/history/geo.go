package history

import (
	"sort"
	"sync"
)

// Country reputation
//
// Per-country detection outcomes accumulate across requests so the geo
// contributor can bias on origin: a country whose recent traffic is 90% bot
// adds a mild lean, it never convicts on its own.

// CountryStat is the aggregate for one country code.
type CountryStat struct {
	Code        string  `json:"code"`
	Name        string  `json:"name"`
	Total       int64   `json:"total"`
	BotCount    int64   `json:"botCount"`
	BotRate     float64 `json:"botRate"`
	AvgBotScore float64 `json:"avgBotScore"`
}

// CountryTracker accumulates detection outcomes per country.
type CountryTracker struct {
	mu    sync.RWMutex
	stats map[string]*CountryStat
}

// NewCountryTracker returns an empty tracker.
func NewCountryTracker() *CountryTracker {
	return &CountryTracker{stats: make(map[string]*CountryStat)}
}

// RecordDetection feeds one analysis outcome back into the tracker.
func (t *CountryTracker) RecordDetection(code, name string, isBot bool, probability float64) {
	if code == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.stats[code]
	if !ok {
		st = &CountryStat{Code: code, Name: name}
		t.stats[code] = st
	}
	st.Total++
	if isBot {
		st.BotCount++
	}
	st.BotRate = float64(st.BotCount) / float64(st.Total)
	// Running mean of bot probability.
	st.AvgBotScore += (probability - st.AvgBotScore) / float64(st.Total)
}

// GetCountryBotRate returns the observed bot rate for a country; ok is false
// until the country has enough samples to mean anything.
func (t *CountryTracker) GetCountryBotRate(code string) (float64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st, ok := t.stats[code]
	if !ok || st.Total < 20 {
		return 0, false
	}
	return st.BotRate, true
}

// GetTopBotCountries returns the n countries with the highest bot rate
// (minimum sample size applies).
func (t *CountryTracker) GetTopBotCountries(n int) []CountryStat {
	t.mu.RLock()
	out := make([]CountryStat, 0, len(t.stats))
	for _, st := range t.stats {
		if st.Total >= 20 {
			out = append(out, *st)
		}
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].BotRate != out[j].BotRate {
			return out[i].BotRate > out[j].BotRate
		}
		return out[i].Total > out[j].Total
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
