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

// Cache Behavior
//
// Browsers revalidate: repeat visits carry If-None-Match / If-Modified-Since
// and asset fetches lean on the HTTP cache. Scrapers re-download everything
// cold. A signature whose window holds many asset fetches and whose current
// request carries no validator is flagged. Validators are only seen on the
// request being analyzed; earlier requests' validators are not recorded.

type CacheBehaviorContributor struct {
	base
	store *history.Store
}

// NewCacheBehavior builds the cache-usage analyzer.
func NewCacheBehavior(cfg config.Provider, store *history.Store) *CacheBehaviorContributor {
	return &CacheBehaviorContributor{
		base: base{
			name:     "CacheBehavior",
			cfg:      cfg,
			priority: 32,
			timeout:  50 * time.Millisecond,
		},
		store: store,
	}
}

func (c *CacheBehaviorContributor) Contribute(_ context.Context, st *blackboard.State) ([]models.DetectionContribution, error) {
	req := st.Request()
	hasValidator := req.HasHeader("If-None-Match") || req.HasHeader("If-Modified-Since")

	if hasValidator {
		st.WriteSignal(signals.CacheValidatorSeen, true)
	}

	if c.store == nil || req.ClientIP == "" {
		if hasValidator {
			return []models.DetectionContribution{
				Human(c.name, models.CategoryBehavioral, c.confidence().HumanSignal*0.5,
					"Conditional request, client maintains a cache"),
			}, nil
		}
		return []models.DetectionContribution{
			Info(c.name, models.CategoryBehavioral, "No conditional headers on this request"),
		}, nil
	}

	sigKey, _ := st.SignalString(signals.RequestSignature)
	if sigKey == "" {
		sigKey = patterns.Signature(req.ClientIP, req.UserAgent())
	}
	snap := c.store.Get(sigKey)

	conf := c.confidence()
	validatorSeen := hasValidator || st.SignalBool(signals.CacheValidatorSeen)

	minAssets := c.cfg.Int(c.name, "min_asset_fetches", 10)
	if snap != nil && snap.AssetCount >= minAssets && !validatorSeen {
		contrib := Bot(c.name, models.CategoryBehavioral, conf.BotDetected*0.7,
			fmt.Sprintf("%d asset fetches, no cache validator on this request", snap.AssetCount))
		contrib.Signals = map[string]any{signals.CacheConditionalRatio: 0.0}
		return []models.DetectionContribution{contrib}, nil
	}

	if hasValidator {
		return []models.DetectionContribution{
			Human(c.name, models.CategoryBehavioral, conf.HumanSignal*0.5,
				"Conditional request, client maintains a cache"),
		}, nil
	}
	return []models.DetectionContribution{
		Info(c.name, models.CategoryBehavioral, "Cache behavior unremarkable"),
	}, nil
}
