// Package patterns canonicalizes user agents, IPs and paths into stable
// pattern IDs. The same rules feed both the in-request fast-path lookup and
// the long-term reputation updater — if the two ever normalized differently,
// learned reputation would silently stop matching live traffic.
package patterns

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"regexp"
	"sort"
	"strings"
)

// Pattern ID formats:
//
//   ua:<hash16>        — tokenized user-agent class
//   ip:a.b.c.0/24      — IPv4 /24
//   ip:g1:g2:g3::/48   — IPv6 /48
//   combined:<hash16>  — hash of (uaNorm | ipNorm | pathNorm)
//
// The UA tokenizer deliberately discards version numbers: "Chrome/120" and
// "Chrome/121" collapse to the same indicator set, so one reputation record
// covers the whole browser family on that OS at that UA size.

var automationTokens = []string{"bot", "crawler", "spider", "scraper", "headless", "python", "curl", "wget"}

var (
	guidRE    = regexp.MustCompile(`(?i)[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)
	numericRE = regexp.MustCompile(`^\d+$`)
)

// NormalizeUA reduces a raw user agent to its sorted, comma-joined indicator
// set. Idempotent: feeding the output back in returns it unchanged.
func NormalizeUA(ua string) string {
	lower := strings.ToLower(strings.TrimSpace(ua))
	if lower == "" {
		return "empty"
	}
	if isNormalizedUA(lower) {
		return lower
	}

	set := map[string]struct{}{}

	// Browser family — precedence matters: an Edge UA contains "chrome" and
	// "safari", a Chrome UA contains "safari".
	switch {
	case strings.Contains(lower, "edg/") || strings.Contains(lower, "edge"):
		set["edge"] = struct{}{}
	case strings.Contains(lower, "chrome") || strings.Contains(lower, "chromium") || strings.Contains(lower, "crios"):
		set["chrome"] = struct{}{}
	case strings.Contains(lower, "firefox") || strings.Contains(lower, "fxios"):
		set["firefox"] = struct{}{}
	case strings.Contains(lower, "safari"):
		set["safari"] = struct{}{}
	}

	// OS family — android before linux (Android UAs contain "linux"),
	// ios before macos (iPad UAs may mention Mac OS).
	switch {
	case strings.Contains(lower, "android"):
		set["android"] = struct{}{}
	case strings.Contains(lower, "iphone") || strings.Contains(lower, "ipad") || strings.Contains(lower, "ios"):
		set["ios"] = struct{}{}
	case strings.Contains(lower, "windows"):
		set["windows"] = struct{}{}
	case strings.Contains(lower, "mac os") || strings.Contains(lower, "macintosh") || strings.Contains(lower, "macos"):
		set["macos"] = struct{}{}
	case strings.Contains(lower, "linux") || strings.Contains(lower, "x11"):
		set["linux"] = struct{}{}
	}

	for _, tok := range automationTokens {
		if strings.Contains(lower, tok) {
			set[tok] = struct{}{}
		}
	}

	set[lengthBucket(len(ua))] = struct{}{}

	indicators := make([]string, 0, len(set))
	for ind := range set {
		indicators = append(indicators, ind)
	}
	sort.Strings(indicators)
	return strings.Join(indicators, ",")
}

// isNormalizedUA reports whether s is already a sorted indicator list. This
// is what makes NormalizeUA idempotent.
func isNormalizedUA(s string) bool {
	if s == "empty" {
		return true
	}
	parts := strings.Split(s, ",")
	prev := ""
	for _, p := range parts {
		if !isKnownIndicator(p) || p < prev {
			return false
		}
		prev = p
	}
	return true
}

func isKnownIndicator(s string) bool {
	switch s {
	case "chrome", "firefox", "safari", "edge",
		"windows", "macos", "linux", "android", "ios":
		return true
	}
	for _, tok := range automationTokens {
		if s == tok {
			return true
		}
	}
	return strings.HasPrefix(s, "len:")
}

func lengthBucket(n int) string {
	switch {
	case n < 20:
		return "len:tiny"
	case n < 60:
		return "len:short"
	case n < 160:
		return "len:normal"
	case n < 300:
		return "len:long"
	default:
		return "len:huge"
	}
}

// UAPatternID returns the reputation key for a user agent.
func UAPatternID(ua string) string {
	return "ua:" + hash16(NormalizeUA(ua))
}

// NormalizeIP collapses an address to its /24 (IPv4) or /48 (IPv6) network
// in CIDR form. Returns "" for unparseable input.
func NormalizeIP(ip string) string {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return ""
	}
	if v4 := parsed.To4(); v4 != nil {
		masked := v4.Mask(net.CIDRMask(24, 32))
		return masked.String() + "/24"
	}
	masked := parsed.Mask(net.CIDRMask(48, 128))
	return masked.String() + "/48"
}

// IPPatternID returns the reputation key for a client IP.
func IPPatternID(ip string) string {
	norm := NormalizeIP(ip)
	if norm == "" {
		return ""
	}
	return "ip:" + norm
}

// NormalizePath replaces volatile path segments — GUIDs and bare numeric
// IDs — with placeholders so /users/42/orders and /users/97/orders share a
// pattern.
func NormalizePath(path string) string {
	path = guidRE.ReplaceAllString(path, "{guid}")
	segs := strings.Split(path, "/")
	for i, seg := range segs {
		if numericRE.MatchString(seg) {
			segs[i] = "{id}"
		}
	}
	return strings.Join(segs, "/")
}

// CombinedPatternID keys the (ua, ip, path) triple for fine-grained
// reputation on specific client/endpoint combinations.
func CombinedPatternID(ua, ip, path string) string {
	return "combined:" + hash16(NormalizeUA(ua)+"|"+NormalizeIP(ip)+"|"+NormalizePath(path))
}

// Signature derives the sliding-window store key for a client:
// "{clientIp}:{shortHash(userAgent)}".
func Signature(ip, ua string) string {
	return ip + ":" + ShortHash(ua)
}

// ShortHash is the first 8 hex chars of sha256(s).
func ShortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:8]
}

func hash16(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:16]
}
