package botlist

import (
	"context"
	"errors"
	"testing"
)

// fakeResolver scripts PTR and forward lookups for FCrDNS tests.
type fakeResolver struct {
	ptrs    map[string][]string
	forward map[string][]string
}

func (f *fakeResolver) LookupAddr(_ context.Context, addr string) ([]string, error) {
	if names, ok := f.ptrs[addr]; ok {
		return names, nil
	}
	return nil, errors.New("NXDOMAIN")
}

func (f *fakeResolver) LookupHost(_ context.Context, host string) ([]string, error) {
	if addrs, ok := f.forward[host]; ok {
		return addrs, nil
	}
	return nil, errors.New("NXDOMAIN")
}

const googlebotUA = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"

func TestMatchBotUserAgent(t *testing.T) {
	r := NewKnownBotRegistryWithResolver(&fakeResolver{})

	name, ok := r.MatchBotUserAgent(googlebotUA)
	if !ok || name != "Googlebot" {
		t.Errorf("googlebot UA: got %q/%v", name, ok)
	}
	if _, ok := r.MatchBotUserAgent("Mozilla/5.0 Chrome/120.0"); ok {
		t.Errorf("plain browser UA matched a known bot")
	}
}

func TestVerifyBot_PublishedRange(t *testing.T) {
	// 66.249.66.1 sits inside Google's published crawl range; no DNS needed.
	r := NewKnownBotRegistryWithResolver(&fakeResolver{})

	res, claimed := r.VerifyBot(context.Background(), googlebotUA, "66.249.66.1")
	if !claimed {
		t.Fatalf("claim not recognized")
	}
	if !res.IsVerified || res.VerificationMethod != "ip_range" {
		t.Errorf("in-range googlebot not verified: %+v", res)
	}
}

func TestVerifyBot_FCrDNS(t *testing.T) {
	// Out of range, but PTR lands in googlebot.com and forward-resolves
	// back to the client IP.
	r := NewKnownBotRegistryWithResolver(&fakeResolver{
		ptrs:    map[string][]string{"203.0.113.50": {"crawl-203-0-113-50.googlebot.com."}},
		forward: map[string][]string{"crawl-203-0-113-50.googlebot.com": {"203.0.113.50"}},
	})

	res, _ := r.VerifyBot(context.Background(), googlebotUA, "203.0.113.50")
	if !res.IsVerified || res.VerificationMethod != "rdns" {
		t.Errorf("FCrDNS verification failed: %+v", res)
	}
}

func TestVerifyBot_PTRSpoofFails(t *testing.T) {
	// PTR claims googlebot.com but the forward lookup points elsewhere —
	// one-way PTR spoofing must not verify.
	r := NewKnownBotRegistryWithResolver(&fakeResolver{
		ptrs:    map[string][]string{"203.0.113.66": {"crawl-fake.googlebot.com."}},
		forward: map[string][]string{"crawl-fake.googlebot.com": {"198.51.100.1"}},
	})

	res, _ := r.VerifyBot(context.Background(), googlebotUA, "203.0.113.66")
	if res.IsVerified {
		t.Errorf("PTR spoof verified: %+v", res)
	}
}

func TestVerifyBot_NoDNSNoRange(t *testing.T) {
	r := NewKnownBotRegistryWithResolver(&fakeResolver{})

	res, claimed := r.VerifyBot(context.Background(), googlebotUA, "203.0.113.99")
	if !claimed || res.IsVerified {
		t.Errorf("unverifiable claim must stay unverified: %+v claimed=%v", res, claimed)
	}

	if _, claimed := r.VerifyBot(context.Background(), "curl/8.1.2", "203.0.113.99"); claimed {
		t.Errorf("curl claimed a crawler identity")
	}
}

func TestPatternFetcher_Matching(t *testing.T) {
	f := NewPatternFetcher("", 0)

	if p, ok := MatchPattern(f.SecurityToolPatterns(), "sqlmap/1.7.2#stable (https://sqlmap.org)"); !ok {
		t.Errorf("sqlmap not matched")
	} else if p == "" {
		t.Errorf("empty pattern returned")
	}
	if _, ok := MatchPattern(f.AiScraperPatterns(), "GPTBot/1.0 (+https://openai.com/gptbot)"); !ok {
		t.Errorf("GPTBot not matched")
	}
	if _, ok := MatchPattern(f.SecurityToolPatterns(), "Mozilla/5.0 Chrome/120.0"); ok {
		t.Errorf("browser UA matched a security tool")
	}
}
