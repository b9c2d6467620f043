package contributors

import (
	"context"
	"time"

	"github.com/scottgal/stylobot/internal/blackboard"
	"github.com/scottgal/stylobot/internal/config"
	"github.com/scottgal/stylobot/internal/signals"
	"github.com/scottgal/stylobot/pkg/models"
)

// TLS Fingerprint (JA3-style)
//
// The ClientHello shape is set by the TLS library, not by whoever wrote the
// User-Agent header. Known automation JA3 hashes (Go crypto/tls, Python
// ssl, OpenSSL-as-curl) convict directly; obsolete protocol versions lean
// bot; a known browser hash leans human. The raw hash is published as a
// signal so the correlation wave can compare it with the claimed browser.

type TlsFingerprintContributor struct {
	base
}

// Default JA3 table: automation stacks on top, mainstream browser stacks
// below. Extendable via the known_bot_ja3 / known_browser_ja3 parameters.
var defaultBotJA3 = map[string]string{
	"473cd7cb9faa642487833865d516e578": "go-http-client",
	"3b5074b1b5d032e5620f69f9f700ff0e": "python-requests",
	"e7d705a3286e19ea42f587b344ee6865": "curl-openssl",
	"6734f37431670b3ab4292b8f60f29984": "scrapy",
}

var defaultBrowserJA3 = map[string]string{
	"579ccef312d18482fc42e2b822ca2430": "chrome",
	"b20b44b18b853ef29ab773e921b03422": "firefox",
	"773906b0efdefa24a7f2b8eb6985bf37": "safari",
}

// NewTlsFingerprint builds the TLS-layer identity analyzer.
func NewTlsFingerprint(cfg config.Provider) *TlsFingerprintContributor {
	return &TlsFingerprintContributor{base: base{
		name:     "TlsFingerprint",
		cfg:      cfg,
		priority: 15,
		timeout:  50 * time.Millisecond,
	}}
}

func (c *TlsFingerprintContributor) Contribute(_ context.Context, st *blackboard.State) ([]models.DetectionContribution, error) {
	req := st.Request()
	conf := c.confidence()

	if req.TLS == nil {
		return []models.DetectionContribution{
			Info(c.name, models.CategoryIdentity, "No TLS connection info available"),
		}, nil
	}

	sig := map[string]any{
		signals.TLSPresent:  true,
		signals.TLSProtocol: req.TLS.Version,
		signals.TLSCipher:   req.TLS.CipherSuite,
	}
	if req.TLS.JA3 != "" {
		sig[signals.TLSJA3] = req.TLS.JA3
	}

	var out []models.DetectionContribution

	if name, ok := lookupJA3(c, "known_bot_ja3", defaultBotJA3, req.TLS.JA3); ok {
		contrib := StrongBot(c.name, models.CategoryIdentity, conf.StrongSignal,
			"TLS fingerprint matches automation stack ("+name+")")
		contrib.BotType = models.BotTypeScraper
		contrib.BotName = name
		contrib.Signals = sig
		return append(out, contrib), nil
	}

	if name, ok := lookupJA3(c, "known_browser_ja3", defaultBrowserJA3, req.TLS.JA3); ok {
		contrib := Human(c.name, models.CategoryIdentity, conf.HumanSignal,
			"TLS fingerprint matches "+name)
		contrib.Signals = sig
		return append(out, contrib), nil
	}

	// Obsolete protocol versions: no current browser negotiates below 1.2.
	switch req.TLS.Version {
	case "TLS1.0", "TLS1.1":
		contrib := Bot(c.name, models.CategoryIdentity, conf.BotDetected,
			"Obsolete TLS version "+req.TLS.Version)
		contrib.Signals = sig
		out = append(out, contrib)
	default:
		contrib := Info(c.name, models.CategoryIdentity, "TLS "+req.TLS.Version+", fingerprint unrecognized")
		contrib.Signals = sig
		out = append(out, contrib)
	}
	return out, nil
}

// lookupJA3 checks the configured list first (entries "hash:name"), then the
// built-in table.
func lookupJA3(c *TlsFingerprintContributor, param string, builtin map[string]string, ja3 string) (string, bool) {
	if ja3 == "" {
		return "", false
	}
	for _, entry := range c.cfg.StringList(c.name, param) {
		if len(entry) > 33 && entry[:32] == ja3 && entry[32] == ':' {
			return entry[33:], true
		}
	}
	name, ok := builtin[ja3]
	return name, ok
}
