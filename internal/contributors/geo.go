package contributors

import (
	"context"
	"fmt"
	"time"

	"github.com/scottgal/stylobot/internal/blackboard"
	"github.com/scottgal/stylobot/internal/config"
	"github.com/scottgal/stylobot/internal/history"
	"github.com/scottgal/stylobot/internal/patterns"
	"github.com/scottgal/stylobot/internal/signals"
	"github.com/scottgal/stylobot/pkg/models"
)

// Geo Movement & Country Reputation
//
// Two distinct geo signals:
//
//   1. Velocity — the same signature arriving from a new country inside the
//      window. One change is a VPN toggle; several are a proxy rotation.
//   2. Origin reputation — the cross-request bot rate of the origin
//      country, fed back by the engine after every analysis. Only ever a
//      mild lean: geography is context, not evidence.

type GeoContributor struct {
	base
	resolver  GeoResolver
	store     *history.Store
	countries *history.CountryTracker
}

// NewGeo builds the geo analyzer.
func NewGeo(cfg config.Provider, resolver GeoResolver, store *history.Store, countries *history.CountryTracker) *GeoContributor {
	return &GeoContributor{
		base: base{
			name:     "Geo",
			cfg:      cfg,
			priority: 26,
			timeout:  100 * time.Millisecond,
		},
		resolver:  resolver,
		store:     store,
		countries: countries,
	}
}

func (c *GeoContributor) Contribute(_ context.Context, st *blackboard.State) ([]models.DetectionContribution, error) {
	req := st.Request()
	if c.resolver == nil || req.ClientIP == "" {
		return []models.DetectionContribution{
			Info(c.name, models.CategoryGeo, "No geo resolver or client IP"),
		}, nil
	}

	country, ok := c.resolver.Country(req.ClientIP)
	if !ok || country == "" {
		return []models.DetectionContribution{
			Info(c.name, models.CategoryGeo, "Origin country unresolved"),
		}, nil
	}

	sig := map[string]any{signals.GeoCountry: country}
	var out []models.DetectionContribution
	conf := c.confidence()

	if c.store != nil {
		sigKey, _ := st.SignalString(signals.RequestSignature)
		if sigKey == "" {
			sigKey = patterns.Signature(req.ClientIP, req.UserAgent())
		}
		changed, distinct := c.store.RecordCountry(sigKey, country, req.ReceivedAt)
		if changed {
			sig[signals.GeoCountryChange] = true
			sig[signals.GeoChangeCount] = distinct
			mag := conf.BotDetected * 0.7
			if distinct >= 3 {
				mag = conf.StrongSignal
			}
			out = append(out, Bot(c.name, models.CategoryGeo, mag,
				fmt.Sprintf("Signature moved countries mid-session (%d distinct origins)", distinct)))
		}
	}

	if c.countries != nil {
		if rate, ok := c.countries.GetCountryBotRate(country); ok {
			sig[signals.GeoCountryBotRate] = rate
			if rate >= c.cfg.Float(c.name, "high_bot_rate", 0.85) {
				out = append(out, Bot(c.name, models.CategoryGeo, 0.25,
					fmt.Sprintf("Origin %s runs %.0f%% bot in recent traffic", country, rate*100)))
			}
		}
	}

	if len(out) == 0 {
		contrib := Info(c.name, models.CategoryGeo, "Origin "+country+", no geo anomaly")
		contrib.Signals = sig
		return []models.DetectionContribution{contrib}, nil
	}
	out[len(out)-1].Signals = mergeSignals(out[len(out)-1].Signals, sig)
	return out, nil
}
