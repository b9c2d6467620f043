package contributors

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/scottgal/stylobot/internal/blackboard"
	"github.com/scottgal/stylobot/internal/config"
	"github.com/scottgal/stylobot/internal/signals"
	"github.com/scottgal/stylobot/pkg/models"
)

// Attack Payload Scanner
//
// Scans path + query for injection payloads and scanner tooling paths.
// Categories: SQL injection, XSS, path traversal, command injection, SSRF,
// template injection, admin/backup/config/webshell/debug path probing, and
// encoding evasion.
//
// Performance contract: clean traffic must exit sub-millisecond. Two
// guards enforce it:
//
//   1. A fast-reject pre-pass scans for suspicious characters before any
//      regex runs; most requests never reach a pattern.
//   2. The pattern loop checks its deadline between patterns; if the budget
//      trips, remaining patterns are skipped for this request and logged.
//
// All patterns are compiled once at package init.

type attackRule struct {
	category string
	label    string
	severity float64 // base confidence magnitude
	patterns []*regexp.Regexp
}

var attackRules = []attackRule{
	{
		category: "sqli", label: "SQL injection", severity: 0.90,
		patterns: compileAll(
			`(?i)\b(union\s+(all\s+)?select|select\s+.+\s+from|insert\s+into|drop\s+(table|database)|alter\s+table|delete\s+from)\b`,
			`(?i)(\bor\b\s*['"]?\d+['"]?\s*=\s*['"]?\d+|'\s*or\s*'[^']*'\s*=\s*')`,
			`(?i)\b(sleep|benchmark|waitfor\s+delay|pg_sleep)\s*\(`,
			`(?i)('\s*--|--\s*$|;\s*(drop|exec|execute)\b)`,
		),
	},
	{
		category: "xss", label: "Cross-site scripting", severity: 0.85,
		patterns: compileAll(
			`(?i)<\s*script[^>]*>`,
			`(?i)\bon(error|load|click|mouseover|focus)\s*=`,
			`(?i)javascript\s*:`,
			`(?i)<\s*(img|svg|iframe|body)[^>]+\bon\w+\s*=`,
		),
	},
	{
		category: "path_traversal", label: "Path traversal", severity: 0.90,
		patterns: compileAll(
			`\.\./\.\./`,
			`(?i)(%2e%2e|\.\.%2f|%2e%2e%2f)`,
			`(?i)/(etc/(passwd|shadow)|proc/self|windows/win\.ini)`,
		),
	},
	{
		category: "cmd_injection", label: "Command injection", severity: 0.90,
		patterns: compileAll(
			`(?i)[;|\x60]\s*(cat|ls|id|whoami|wget|curl|nc|bash|sh|powershell|cmd(\.exe)?)\b`,
			`(?i)\$\((cat|id|whoami|uname)`,
			`(?i)&&\s*(cat|ls|id|whoami)\b`,
		),
	},
	{
		category: "ssrf", label: "Server-side request forgery", severity: 0.80,
		patterns: compileAll(
			`(?i)=\s*(https?|gopher|dict|file)://(127\.|0\.0\.0\.0|localhost|\[::1\]|169\.254\.169\.254|metadata)`,
			`(?i)\b169\.254\.169\.254\b`,
		),
	},
	{
		category: "template_injection", label: "Template injection", severity: 0.80,
		patterns: compileAll(
			`\{\{\s*[\d'"].{0,40}\}\}`,
			`\$\{.{0,40}\}`,
			`(?i)\{\{\s*(config|self|request|lipsum|cycler)\b`,
		),
	},
	{
		category: "encoding_evasion", label: "Encoding evasion", severity: 0.60,
		patterns: compileAll(
			`(?i)%25(2e|2f|3c|27)`, // double-encoded . / < '
			`(?i)(%00|\\x00|\\u00)`,
			`(?i)(%c0%af|%e0%80%af)`, // overlong UTF-8 slash
		),
	},
}

// probeRule covers scanner paths: individually harmless GETs whose target
// gives the game away.
type probeRule struct {
	category string
	label    string
	needles  []string
}

var probeRules = []probeRule{
	{"path_probes", "Environment/VCS file probe", []string{"/.env", "/.git", "/.svn", "/.hg", "/.DS_Store"}},
	{"admin_scan", "Admin panel scan", []string{"/wp-login.php", "/wp-admin", "/xmlrpc.php", "/phpmyadmin", "/adminer", "/admin.php", "/administrator/"}},
	{"config_exposure", "Config/debug endpoint probe", []string{"/actuator", "/_profiler", "/phpinfo", "/server-status", "/server-info", "/debug/pprof", "/telescope", "/.well-known/security"}},
	{"backup_probe", "Backup file probe", []string{".sql", ".bak", ".old", ".tar.gz", ".zip.bak", "backup.zip", "dump.sql"}},
	{"webshell", "Webshell probe", []string{"/shell.php", "/cmd.php", "/c99.php", "/r57.php", "/eval.php", "/wso.php"}},
}

// suspiciousChars triggers the regex pass at all. A request containing none
// of these cannot match any payload pattern.
const suspiciousChars = "<>'\"`;|{}$%(&\\"

type HaxxorContributor struct {
	base
}

// NewHaxxor builds the payload scanner.
func NewHaxxor(cfg config.Provider) *HaxxorContributor {
	return &HaxxorContributor{base: base{
		name:     "Haxxor",
		cfg:      cfg,
		priority: 20,
		timeout:  100 * time.Millisecond,
	}}
}

func (c *HaxxorContributor) Contribute(ctx context.Context, st *blackboard.State) ([]models.DetectionContribution, error) {
	req := st.Request()

	// Empty request line: nothing to scan, nothing to report.
	if req.Path == "" && req.Query == "" {
		return nil, nil
	}

	target := req.Path
	if req.Query != "" {
		target += "?" + req.Query
	}
	lower := strings.ToLower(target)

	conf := c.confidence()
	var out []models.DetectionContribution
	categories := []string{}
	pathProbe := false

	// 1. Probe paths — plain substring checks, always cheap
	for _, rule := range probeRules {
		for _, needle := range rule.needles {
			if strings.Contains(lower, needle) {
				categories = append(categories, rule.category)
				pathProbe = true
				contrib := Bot(c.name, models.CategoryAttack, conf.StrongSignal, rule.label+" ("+needle+")")
				contrib.BotType = models.BotTypeMalicious
				out = append(out, contrib)
				break
			}
		}
	}

	// 2. Fast reject: no suspicious characters, no payload patterns to run
	decoded := target
	if d, err := url.QueryUnescape(target); err == nil {
		decoded = d
	}
	if !strings.ContainsAny(target, suspiciousChars) && !strings.ContainsAny(decoded, suspiciousChars) {
		if len(out) == 0 {
			return []models.DetectionContribution{
				Info(c.name, models.CategoryAttack, "No attack indicators in request line"),
			}, nil
		}
		return c.finish(out, categories, pathProbe), nil
	}

	// 3. Payload patterns, deadline-guarded
	deadline := time.Now().Add(c.Timeout() / 2)
	for _, rule := range attackRules {
		if time.Now().After(deadline) {
			log.Warn().Str("category", rule.category).Msg("attack pattern budget exhausted, skipping remaining rules")
			break
		}
		if ctx.Err() != nil {
			break
		}
		for _, re := range rule.patterns {
			if re.MatchString(target) || re.MatchString(decoded) {
				categories = append(categories, rule.category)
				sev := c.cfg.Float(c.name, rule.category+"_confidence", rule.severity)
				contrib := StrongBot(c.name, models.CategoryAttack, sev, rule.label+" payload in request line")
				contrib.BotType = models.BotTypeMalicious
				out = append(out, contrib)
				break
			}
		}
	}

	if len(out) == 0 {
		return []models.DetectionContribution{
			Info(c.name, models.CategoryAttack, "Suspicious characters present but no pattern matched"),
		}, nil
	}
	return c.finish(out, categories, pathProbe), nil
}

func (c *HaxxorContributor) finish(out []models.DetectionContribution, categories []string, pathProbe bool) []models.DetectionContribution {
	sig := map[string]any{
		signals.AttackDetected:      true,
		signals.AttackCategories:    strings.Join(categories, ","),
		signals.AttackCategoryCount: len(categories),
	}
	if pathProbe {
		sig[signals.AttackPathProbe] = true
	}
	for _, cat := range categories {
		if cat == "encoding_evasion" {
			sig[signals.AttackEncodingEvade] = true
		}
	}
	if len(categories) > 1 {
		out = append(out, Bot(c.name, models.CategoryAttack, 0.5,
			fmt.Sprintf("Multiple attack categories in one request (%d)", len(categories))))
	}
	out[len(out)-1].Signals = mergeSignals(out[len(out)-1].Signals, sig)
	return out
}

func compileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, e := range exprs {
		out = append(out, regexp.MustCompile(e))
	}
	return out
}
