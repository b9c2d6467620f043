package contributors

import (
	"context"
	"strings"
	"time"

	"github.com/scottgal/stylobot/internal/blackboard"
	"github.com/scottgal/stylobot/internal/config"
	"github.com/scottgal/stylobot/internal/signals"
	"github.com/scottgal/stylobot/pkg/models"
)

// Multi-Layer Consistency Correlation
//
// Spoofing one layer is easy; spoofing every layer coherently is not. This
// contributor runs after the identity wave and cross-checks the claims the
// earlier contributors put on the blackboard:
//
//   1. OS claimed by the UA vs OS inferred from the TCP TTL
//   2. Browser claimed by the UA vs the HTTP/2 fingerprint match
//   3. Claimed modern browser vs negotiated TLS version
//   4. HTTP/3 client type vs claimed browser
//   5. Accept-Language region vs geo country
//   6. Datacenter IP paired with a consumer browser claim
//
// Contradictions are individually strong bot evidence; a full set of
// agreeing layers is one of the few genuinely strong human signals the
// engine has.

type InconsistencyContributor struct {
	base
}

// NewInconsistency builds the correlation contributor. It waits for the
// identity wave via DetectorCount.
func NewInconsistency(cfg config.Provider) *InconsistencyContributor {
	return &InconsistencyContributor{base: base{
		name:     "Inconsistency",
		cfg:      cfg,
		priority: 40,
		timeout:  50 * time.Millisecond,
		triggers: []blackboard.Trigger{blackboard.DetectorCount(5)},
	}}
}

func (c *InconsistencyContributor) Contribute(_ context.Context, st *blackboard.State) ([]models.DetectionContribution, error) {
	conf := c.confidence()
	var out []models.DetectionContribution
	checked := 0

	uaOS, _ := st.SignalString(signals.UAOS)
	uaBrowser, _ := st.SignalString(signals.UABrowser)

	// 1. UA OS vs TCP-inferred OS
	if tcpOS, ok := st.SignalString(signals.TCPInferredOS); ok && uaOS != "" && tcpOS != "unknown" {
		checked++
		if osContradicts(uaOS, tcpOS) {
			out = append(out, StrongBot(c.name, models.CategoryIdentity, conf.StrongSignal,
				"User-Agent claims "+uaOS+" but TCP stack resembles "+tcpOS))
		}
	}

	// 2. UA browser vs H2 fingerprint family
	if h2Match, ok := st.SignalString(signals.H2Match); ok && uaBrowser != "" {
		checked++
		if !strings.HasPrefix(strings.ToLower(h2Match), uaBrowser) && browserProfile(h2Match) != "" {
			out = append(out, StrongBot(c.name, models.CategoryIdentity, conf.StrongSignal,
				"User-Agent claims "+uaBrowser+" but HTTP/2 fingerprint matches "+h2Match))
		}
	}

	// 3. Modern browser claim on an obsolete TLS version
	if tlsVer, ok := st.SignalString(signals.TLSProtocol); ok && uaBrowser != "" {
		checked++
		if tlsVer == "TLS1.0" || tlsVer == "TLS1.1" {
			out = append(out, Bot(c.name, models.CategoryIdentity, conf.BotDetected,
				"Claimed "+uaBrowser+" negotiated "+tlsVer))
		}
	}

	// 4. HTTP/3 client type vs browser claim
	if h3Type, ok := st.SignalString(signals.H3ClientType); ok && uaBrowser != "" {
		checked++
		if h3Type == "library" {
			out = append(out, Bot(c.name, models.CategoryIdentity, conf.BotDetected,
				"Claimed "+uaBrowser+" but QUIC parameters match a client library"))
		}
	}

	// 5. Accept-Language vs geo country
	if lang, ok := st.SignalString(signals.HeaderAcceptLanguage); ok {
		if country, ok := st.SignalString(signals.GeoCountry); ok && country != "" {
			checked++
			if langMismatchesCountry(lang, country) {
				out = append(out, Bot(c.name, models.CategoryGeo, conf.BotDetected*0.5,
					"Accept-Language has no overlap with request origin "+country))
			}
		}
	}

	// 6. Datacenter IP with a consumer browser claim
	if st.SignalBool(signals.NetIsDatacenter) && uaBrowser != "" {
		checked++
		out = append(out, Bot(c.name, models.CategoryNetwork, conf.BotDetected,
			"Consumer browser user agent from datacenter address space"))
	}

	if len(out) == 0 {
		if checked >= 2 {
			out = append(out, Human(c.name, models.CategoryIdentity, conf.HumanSignal,
				"All observable identity layers agree"))
		} else {
			out = append(out, Info(c.name, models.CategoryIdentity, "Too few identity layers to correlate"))
		}
	}
	return out, nil
}

func osContradicts(claimed, inferred string) bool {
	switch inferred {
	case "windows":
		return claimed != "windows"
	case "unix":
		return claimed == "windows"
	}
	return false
}

func browserProfile(label string) string {
	l := strings.ToLower(label)
	for _, b := range []string{"chrome", "firefox", "safari", "edge"} {
		if strings.HasPrefix(l, b) {
			return b
		}
	}
	return ""
}

// langMismatchesCountry flags only the unambiguous cases: every language
// tag carries a region subtag and none of them matches the origin country.
func langMismatchesCountry(acceptLanguage, country string) bool {
	country = strings.ToUpper(country)
	sawRegion := false
	for _, part := range strings.Split(acceptLanguage, ",") {
		tag := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		pieces := strings.Split(tag, "-")
		if len(pieces) < 2 {
			continue // bare "en" etc. — no region claim, nothing to contradict
		}
		sawRegion = true
		if strings.ToUpper(pieces[len(pieces)-1]) == country {
			return false
		}
	}
	return sawRegion
}
