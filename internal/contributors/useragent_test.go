package contributors

import (
	"net/http"
	"testing"

	"github.com/scottgal/stylobot/internal/config"
	"github.com/scottgal/stylobot/internal/signals"
	"github.com/scottgal/stylobot/pkg/models"
)

func snapWithUA(ua string) *models.RequestSnapshot {
	h := http.Header{}
	if ua != "" {
		h.Set("User-Agent", ua)
	}
	return &models.RequestSnapshot{Method: "GET", Path: "/", Protocol: "HTTP/1.1", Headers: h}
}

func TestUserAgent_MissingUA(t *testing.T) {
	// Every browser sends a User-Agent; its absence is itself strong
	// evidence, at the configured magnitude.
	cfg := config.NewStatic(map[string]config.Manifest{
		"UserAgent": {Parameters: map[string]any{"missing_ua_confidence": 0.8}},
	})
	c := NewUserAgent(cfg)
	st := stateFor(snapWithUA(""))

	out := run(t, c, st)
	if len(out) != 1 || out[0].Delta < 0.8 {
		t.Errorf("missing UA: delta %.2f below configured 0.8", out[0].Delta)
	}
	if st.SignalBool(signals.UAPresent) {
		t.Errorf("ua.present should be false")
	}
}

func TestUserAgent_Curl(t *testing.T) {
	c := NewUserAgent(config.NewStatic(nil))
	st := stateFor(snapWithUA("curl/8.1.2"))

	out := run(t, c, st)
	if len(out) != 1 {
		t.Fatalf("expected one contribution, got %d", len(out))
	}
	if out[0].Delta <= 0 || out[0].BotType != models.BotTypeScraper || out[0].BotName != "curl" {
		t.Errorf("curl not classified as scraper: %+v", out[0])
	}
	if !st.SignalBool(signals.UAIsBot) {
		t.Errorf("ua.is_bot signal missing")
	}
}

func TestUserAgent_Chrome(t *testing.T) {
	c := NewUserAgent(config.NewStatic(nil))
	ua := "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	st := stateFor(snapWithUA(ua))

	out := run(t, c, st)
	if len(out) != 1 || out[0].Delta >= 0 {
		t.Errorf("well-formed browser UA should lean human: %+v", out)
	}
	if b, _ := st.SignalString(signals.UABrowser); b != "chrome" {
		t.Errorf("browser = %q, want chrome", b)
	}
	if o, _ := st.SignalString(signals.UAOS); o != "windows" {
		t.Errorf("os = %q, want windows", o)
	}
}

func TestUserAgent_DeclaredCrawler(t *testing.T) {
	c := NewUserAgent(config.NewStatic(nil))
	st := stateFor(snapWithUA("Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"))

	out := run(t, c, st)
	if len(out) != 1 || out[0].Delta <= 0 {
		t.Fatalf("declared crawler should lean bot pending verification: %+v", out)
	}
	if name, _ := st.SignalString(signals.UAClaimedBotName); name != "Googlebot" {
		t.Errorf("claimed bot name = %q", name)
	}
}

func TestUserAgent_Headless(t *testing.T) {
	c := NewUserAgent(config.NewStatic(nil))
	st := stateFor(snapWithUA("Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 HeadlessChrome/119.0.0.0 Safari/537.36"))

	out := run(t, c, st)
	if len(out) != 1 || out[0].Delta <= 0 {
		t.Errorf("headless marker should lean bot")
	}
	if !st.SignalBool(signals.UAIsHeadless) {
		t.Errorf("ua.is_headless signal missing")
	}
}
