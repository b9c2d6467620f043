// Package botlist identifies self-declared bots: the verified-bot registry
// proves (or disproves) crawler identity claims, and the list fetcher keeps
// the security-tool and AI-scraper user-agent patterns fresh.
package botlist

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/rs/dnscache"
	"github.com/rs/zerolog/log"

	"github.com/scottgal/stylobot/pkg/models"
)

// Crawler verification
//
// Anyone can put "Googlebot" in a user agent. Verification is two-step:
//
//   1. IP range — the operator publishes crawl ranges; an in-range client
//      is verified immediately.
//   2. Forward-confirmed reverse DNS — PTR(ip) must land in the operator's
//      domain AND that host must resolve back to the client IP. One-way
//      PTR spoofing fails the forward check.
//
// A UA match that fails both is a spoofed crawler, which is far stronger
// bot evidence than the UA alone.

// VerificationResult is the outcome of a VerifyBot call.
type VerificationResult struct {
	BotName            string `json:"botName"`
	BotType            models.BotType `json:"botType"`
	IsVerified         bool   `json:"isVerified"`
	VerificationMethod string `json:"verificationMethod"` // "ip_range" / "rdns" / ""
}

// Registry is the interface the verified-bot contributor consumes.
type Registry interface {
	MatchBotUserAgent(ua string) (string, bool)
	VerifyBot(ctx context.Context, ua, ip string) (*VerificationResult, bool)
}

type knownBot struct {
	name     string
	botType  models.BotType
	uaTokens []string
	cidrs    []*net.IPNet
	domains  []string // rDNS suffixes, dot-prefixed match
}

// Resolver is the DNS surface the registry needs; *dnscache.Resolver
// satisfies it, tests inject fakes.
type Resolver interface {
	LookupAddr(ctx context.Context, addr string) ([]string, error)
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// KnownBotRegistry verifies crawler claims against published IP ranges and
// forward-confirmed reverse DNS, with a caching resolver in front of DNS.
type KnownBotRegistry struct {
	resolver Resolver
	bots     []knownBot
	timeout  time.Duration
}

// NewKnownBotRegistry builds the registry with the built-in crawler table
// and a caching resolver.
func NewKnownBotRegistry() *KnownBotRegistry {
	return NewKnownBotRegistryWithResolver(&dnscache.Resolver{})
}

// NewKnownBotRegistryWithResolver builds the registry over a custom DNS
// resolver.
func NewKnownBotRegistryWithResolver(resolver Resolver) *KnownBotRegistry {
	return &KnownBotRegistry{
		resolver: resolver,
		bots:     builtinBots(),
		timeout:  400 * time.Millisecond,
	}
}

func builtinBots() []knownBot {
	return []knownBot{
		{
			name: "Googlebot", botType: models.BotTypeSearchEngine,
			uaTokens: []string{"googlebot"},
			cidrs:    mustCIDRs("66.249.64.0/19", "66.249.64.0/20", "64.233.160.0/19"),
			domains:  []string{".googlebot.com", ".google.com"},
		},
		{
			name: "Bingbot", botType: models.BotTypeSearchEngine,
			uaTokens: []string{"bingbot", "msnbot"},
			cidrs:    mustCIDRs("157.55.39.0/24", "207.46.13.0/24", "40.77.167.0/24"),
			domains:  []string{".search.msn.com"},
		},
		{
			name: "DuckDuckBot", botType: models.BotTypeSearchEngine,
			uaTokens: []string{"duckduckbot"},
			cidrs:    mustCIDRs("20.191.45.0/24", "40.88.21.0/24"),
			domains:  []string{".duckduckgo.com"},
		},
		{
			name: "Applebot", botType: models.BotTypeSearchEngine,
			uaTokens: []string{"applebot"},
			cidrs:    mustCIDRs("17.0.0.0/8"),
			domains:  []string{".applebot.apple.com"},
		},
		{
			name: "YandexBot", botType: models.BotTypeSearchEngine,
			uaTokens: []string{"yandexbot", "yandex.com/bots"},
			domains:  []string{".yandex.ru", ".yandex.net", ".yandex.com"},
		},
		{
			name: "Baiduspider", botType: models.BotTypeSearchEngine,
			uaTokens: []string{"baiduspider"},
			domains:  []string{".baidu.com", ".baidu.jp"},
		},
		{
			name: "GPTBot", botType: models.BotTypeAiBot,
			uaTokens: []string{"gptbot"},
			cidrs:    mustCIDRs("52.230.152.0/24", "20.171.206.0/24"),
			domains:  []string{".openai.com"},
		},
		{
			name: "ClaudeBot", botType: models.BotTypeAiBot,
			uaTokens: []string{"claudebot", "anthropic-ai"},
			domains:  []string{".anthropic.com"},
		},
		{
			name: "PerplexityBot", botType: models.BotTypeAiBot,
			uaTokens: []string{"perplexitybot"},
			domains:  []string{".perplexity.ai"},
		},
		{
			name: "FacebookBot", botType: models.BotTypeGoodBot,
			uaTokens: []string{"facebookexternalhit", "facebookbot"},
			cidrs:    mustCIDRs("69.63.176.0/20", "66.220.144.0/20"),
			domains:  []string{".facebook.com", ".fbsv.net"},
		},
		{
			name: "Twitterbot", botType: models.BotTypeGoodBot,
			uaTokens: []string{"twitterbot"},
			domains:  []string{".twttr.com", ".twitter.com"},
		},
		{
			name: "AhrefsBot", botType: models.BotTypeGoodBot,
			uaTokens: []string{"ahrefsbot"},
			domains:  []string{".ahrefs.com"},
		},
	}
}

func mustCIDRs(cidrs ...string) []*net.IPNet {
	out := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, ipnet, err := net.ParseCIDR(c)
		if err != nil {
			panic("botlist: bad builtin CIDR " + c)
		}
		out = append(out, ipnet)
	}
	return out
}

// MatchBotUserAgent returns the known-bot name a UA claims to be.
func (r *KnownBotRegistry) MatchBotUserAgent(ua string) (string, bool) {
	lower := strings.ToLower(ua)
	for _, bot := range r.bots {
		for _, tok := range bot.uaTokens {
			if strings.Contains(lower, tok) {
				return bot.name, true
			}
		}
	}
	return "", false
}

// VerifyBot checks whether a claimed crawler identity holds up. The second
// return is false when the UA claims no known bot at all.
func (r *KnownBotRegistry) VerifyBot(ctx context.Context, ua, ip string) (*VerificationResult, bool) {
	lower := strings.ToLower(ua)
	var claimed *knownBot
	for i := range r.bots {
		for _, tok := range r.bots[i].uaTokens {
			if strings.Contains(lower, tok) {
				claimed = &r.bots[i]
				break
			}
		}
		if claimed != nil {
			break
		}
	}
	if claimed == nil {
		return nil, false
	}

	result := &VerificationResult{BotName: claimed.name, BotType: claimed.botType}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return result, true
	}

	// 1. Published ranges
	for _, cidr := range claimed.cidrs {
		if cidr.Contains(parsed) {
			result.IsVerified = true
			result.VerificationMethod = "ip_range"
			return result, true
		}
	}

	// 2. Forward-confirmed reverse DNS
	if len(claimed.domains) > 0 && r.verifyRDNS(ctx, parsed, claimed.domains) {
		result.IsVerified = true
		result.VerificationMethod = "rdns"
	}
	return result, true
}

func (r *KnownBotRegistry) verifyRDNS(ctx context.Context, ip net.IP, domains []string) bool {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	ptrs, err := r.resolver.LookupAddr(ctx, ip.String())
	if err != nil {
		log.Debug().Err(err).Str("ip", ip.String()).Msg("rdns lookup failed")
		return false
	}
	for _, ptr := range ptrs {
		host := strings.TrimSuffix(strings.ToLower(ptr), ".")
		if !hostInDomains(host, domains) {
			continue
		}
		// Forward-confirm: the PTR host must resolve back to the client IP.
		addrs, err := r.resolver.LookupHost(ctx, host)
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if resolved := net.ParseIP(addr); resolved != nil && resolved.Equal(ip) {
				return true
			}
		}
	}
	return false
}

func hostInDomains(host string, domains []string) bool {
	for _, d := range domains {
		if strings.HasSuffix(host, d) || host == strings.TrimPrefix(d, ".") {
			return true
		}
	}
	return false
}
