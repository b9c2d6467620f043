package botlist

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	wildcard "github.com/IGLOU-EU/go-wildcard/v2"
	"github.com/rs/zerolog/log"
)

// Fetcher serves the wildcard user-agent patterns for two client families
// the contributors match against: offensive security tooling and AI-training
// scrapers. Lists refresh on an interval from an optional remote source;
// the built-in lists always remain as the floor.
type Fetcher interface {
	SecurityToolPatterns() []string
	AiScraperPatterns() []string
	Refresh(ctx context.Context) error
	RefreshInterval() time.Duration
}

var defaultSecurityTools = []string{
	"*sqlmap*", "*nikto*", "*nmap*", "*masscan*", "*zgrab*", "*nuclei*",
	"*gobuster*", "*dirbuster*", "*wfuzz*", "*ffuf*", "*feroxbuster*",
	"*whatweb*", "*wpscan*", "*joomscan*", "*acunetix*", "*nessus*",
	"*openvas*", "*qualys*", "*burp*", "*zaproxy*", "*arachni*", "*httpx*",
}

var defaultAiScrapers = []string{
	"*gptbot*", "*ccbot*", "*claudebot*", "*anthropic-ai*", "*google-extended*",
	"*bytespider*", "*perplexitybot*", "*omgili*", "*diffbot*", "*cohere-ai*",
	"*timpibot*", "*imagesiftbot*", "*meta-externalagent*",
}

// PatternFetcher holds the live lists. Zero value is unusable; use
// NewPatternFetcher.
type PatternFetcher struct {
	mu            sync.RWMutex
	securityTools []string
	aiScrapers    []string

	remoteURL string // optional newline-delimited pattern source
	client    *http.Client
	interval  time.Duration
}

// NewPatternFetcher builds a fetcher seeded with the built-in lists.
// remoteURL may be empty; refreshes are then no-ops.
func NewPatternFetcher(remoteURL string, interval time.Duration) *PatternFetcher {
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	return &PatternFetcher{
		securityTools: append([]string(nil), defaultSecurityTools...),
		aiScrapers:    append([]string(nil), defaultAiScrapers...),
		remoteURL:     remoteURL,
		client:        &http.Client{Timeout: 10 * time.Second},
		interval:      interval,
	}
}

// SecurityToolPatterns returns the current security-tool pattern list.
func (f *PatternFetcher) SecurityToolPatterns() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]string(nil), f.securityTools...)
}

// AiScraperPatterns returns the current AI-scraper pattern list.
func (f *PatternFetcher) AiScraperPatterns() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]string(nil), f.aiScrapers...)
}

// RefreshInterval returns how often Refresh should run.
func (f *PatternFetcher) RefreshInterval() time.Duration { return f.interval }

// Refresh pulls the remote list when configured. Remote lines are
// "security:<pattern>" or "ai:<pattern>"; unknown prefixes are skipped.
// Remote patterns extend the built-ins, they never replace them.
func (f *PatternFetcher) Refresh(ctx context.Context) error {
	if f.remoteURL == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.remoteURL, nil)
	if err != nil {
		return err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetching bot list: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bot list fetch: status %d", resp.StatusCode)
	}

	security := append([]string(nil), defaultSecurityTools...)
	ai := append([]string(nil), defaultAiScrapers...)
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, "security:"):
			security = append(security, strings.TrimPrefix(line, "security:"))
		case strings.HasPrefix(line, "ai:"):
			ai = append(ai, strings.TrimPrefix(line, "ai:"))
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	f.securityTools = security
	f.aiScrapers = ai
	f.mu.Unlock()
	log.Info().Int("security", len(security)).Int("ai", len(ai)).Msg("bot lists refreshed")
	return nil
}

// StartRefresher refreshes on the interval until the context ends.
func (f *PatternFetcher) StartRefresher(ctx context.Context) {
	ticker := time.NewTicker(f.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := f.Refresh(ctx); err != nil {
					log.Warn().Err(err).Msg("bot list refresh failed")
				}
			}
		}
	}()
}

// MatchPattern reports the first wildcard pattern matching the (lowercased)
// user agent.
func MatchPattern(patterns []string, ua string) (string, bool) {
	lower := strings.ToLower(ua)
	for _, p := range patterns {
		if wildcard.Match(p, lower) {
			return p, true
		}
	}
	return "", false
}
