package contributors

import (
	"sort"

	"github.com/scottgal/stylobot/internal/botlist"
	"github.com/scottgal/stylobot/internal/config"
	"github.com/scottgal/stylobot/internal/history"
	"github.com/scottgal/stylobot/internal/reputation"
)

// Deps carries every collaborator the roster can consume. Optional fields
// may be nil; the owning contributor degrades to an Info contribution.
type Deps struct {
	Config    config.Provider
	Cache     reputation.Cache
	History   *history.Store
	Countries *history.CountryTracker
	Registry  botlist.Registry
	Fetcher   botlist.Fetcher

	Geo        GeoResolver
	Datacenter DatacenterResolver
	Similarity SimilaritySearch
	Intent     IntentSearch
	Responses  ResponseCoordinator
	TimeSeries TimeSeriesReputationProvider

	HeuristicModel Detector
	LateModel      Detector
	LlmModel       Detector
}

// DefaultRoster assembles the full contributor set, sorted by priority.
func DefaultRoster(d Deps) []Contributor {
	cfg := d.Config
	roster := []Contributor{
		NewFastPathReputation(cfg, d.Cache),
		NewUserAgent(cfg),
		NewVerifiedBot(cfg, d.Registry),
		NewHeader(cfg),
		NewSecurityTool(cfg, d.Fetcher),
		NewTlsFingerprint(cfg),
		NewHttp2Fingerprint(cfg),
		NewHttp3Fingerprint(cfg),
		NewTcpIpFingerprint(cfg),
		NewHaxxor(cfg),
		NewTransportProtocol(cfg, d.History),
		NewDatacenter(cfg, d.Datacenter),
		NewGeo(cfg, d.Geo, d.History, d.Countries),
		NewHeuristic(cfg, d.HeuristicModel),
		NewBehavioralWaveform(cfg, d.History),
		NewCacheBehavior(cfg, d.History),
		NewResponseBehavior(cfg, d.Responses),
		NewAccountTakeover(cfg, d.History),
		NewInconsistency(cfg),
		NewStreamAbuse(cfg, d.History),
		NewReputationBias(cfg, d.Cache, d.TimeSeries),
		NewSimilarity(cfg, d.Similarity),
		NewCluster(cfg, d.Similarity),
		NewIntent(cfg, d.Intent),
		NewHeuristicLate(cfg, d.LateModel),
		NewLlm(cfg, d.LlmModel),
	}
	sort.SliceStable(roster, func(i, j int) bool {
		return roster[i].Priority() < roster[j].Priority()
	})
	return roster
}
