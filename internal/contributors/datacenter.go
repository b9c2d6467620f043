package contributors

import (
	"context"
	"net"
	"time"

	"github.com/scottgal/stylobot/internal/blackboard"
	"github.com/scottgal/stylobot/internal/config"
	"github.com/scottgal/stylobot/internal/signals"
	"github.com/scottgal/stylobot/pkg/models"
)

// Datacenter Origin
//
// Classifies the client IP as hosting/cloud space or consumer space.
// Datacenter origin alone is only a mild lean — VPNs and corporate egress
// live there too — but the signal it writes is a key input to the
// correlation wave (datacenter + consumer browser claim) and to intent.
// An injected resolver (commercial IP intelligence) takes precedence; the
// built-in table covers the major cloud ranges.

type DatacenterContributor struct {
	base
	resolver DatacenterResolver
}

var builtinDatacenterCIDRs = func() []*net.IPNet {
	cidrs := []string{
		// AWS
		"3.0.0.0/8", "13.32.0.0/12", "18.128.0.0/9", "52.0.0.0/10", "54.64.0.0/11",
		// GCP
		"34.64.0.0/10", "35.184.0.0/13",
		// Azure
		"20.33.0.0/16", "40.64.0.0/10", "104.40.0.0/13",
		// DigitalOcean / Hetzner / OVH / Linode
		"64.225.0.0/16", "138.68.0.0/16", "167.99.0.0/16",
		"95.216.0.0/15", "116.202.0.0/15",
		"51.38.0.0/16", "51.68.0.0/16",
		"45.33.0.0/17", "172.104.0.0/15",
	}
	out := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, ipnet, err := net.ParseCIDR(c)
		if err == nil {
			out = append(out, ipnet)
		}
	}
	return out
}()

// NewDatacenter builds the origin classifier.
func NewDatacenter(cfg config.Provider, resolver DatacenterResolver) *DatacenterContributor {
	return &DatacenterContributor{
		base: base{
			name:     "Datacenter",
			cfg:      cfg,
			priority: 25,
			timeout:  50 * time.Millisecond,
		},
		resolver: resolver,
	}
}

func (c *DatacenterContributor) Contribute(_ context.Context, st *blackboard.State) ([]models.DetectionContribution, error) {
	req := st.Request()
	if req.ClientIP == "" {
		return []models.DetectionContribution{
			Info(c.name, models.CategoryNetwork, "No client IP to classify"),
		}, nil
	}

	isDC := false
	if c.resolver != nil {
		isDC = c.resolver.IsDatacenter(req.ClientIP)
	} else if ip := net.ParseIP(req.ClientIP); ip != nil {
		for _, cidr := range builtinDatacenterCIDRs {
			if cidr.Contains(ip) {
				isDC = true
				break
			}
		}
	}

	sig := map[string]any{signals.NetIsDatacenter: isDC}
	if !isDC {
		contrib := Info(c.name, models.CategoryNetwork, "Consumer/unclassified address space")
		contrib.Signals = sig
		return []models.DetectionContribution{contrib}, nil
	}

	conf := c.confidence()
	contrib := Bot(c.name, models.CategoryNetwork, conf.BotDetected*0.5,
		"Request originates from datacenter address space")
	contrib.Signals = sig
	return []models.DetectionContribution{contrib}, nil
}
