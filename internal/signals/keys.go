// Package signals defines the closed, versioned vocabulary of blackboard
// signal keys. Contributors communicate exclusively through these keys —
// never through direct references to each other — so the dictionary is the
// real coupling surface of the engine. Keys are additive: new ones may be
// introduced, existing ones never change meaning.
package signals

// Request / normalization
const (
	RequestSignature       = "request.signature"
	RequestUAPattern       = "request.ua_pattern"
	RequestIPPattern       = "request.ip_pattern"
	RequestCombinedPattern = "request.combined_pattern"
	RequestProtocol        = "request.protocol"
)

// User-agent parsing
const (
	UAPresent         = "ua.present"
	UAIsBot           = "ua.is_bot"
	UABrowser         = "ua.browser"
	UABrowserVersion  = "ua.browser_version"
	UAOS              = "ua.os"
	UAIsHeadless      = "ua.is_headless"
	UAAutomationToken = "ua.automation_token"
	UALength          = "ua.length"
	UAClaimedBotName  = "ua.claimed_bot_name"
)

// Header analysis
const (
	HeaderCount             = "header.count"
	HeaderHasAcceptLanguage = "header.has_accept_language"
	HeaderAcceptLanguage    = "header.accept_language"
	HeaderHasSecChUA        = "header.has_sec_ch_ua"
	HeaderWebSocketUpgrade  = "header.is_websocket_upgrade"
	HeaderMissingCommon     = "header.missing_common"
)

// Connection fingerprints
const (
	TLSPresent    = "tls.present"
	TLSProtocol   = "tls.protocol"
	TLSJA3        = "tls.ja3"
	TLSCipher     = "tls.cipher"
	H2Present     = "h2.present"
	H2Fingerprint = "h2.fingerprint"
	H2Match       = "h2.match"
	H3Present     = "h3.present"
	H3Fingerprint = "h3.fingerprint"
	H3ClientType  = "h3.client_type"
	TCPTTL        = "tcp.ttl"
	TCPWindow     = "tcp.window"
	TCPInferredOS = "tcp.os_inferred"
)

// Network / geo
const (
	NetIPPresent      = "net.ip_present"
	NetIsDatacenter   = "net.is_datacenter"
	GeoCountry        = "geo.country"
	GeoCountryChange  = "geo.country_changed"
	GeoChangeCount    = "geo.change_count"
	GeoCountryBotRate = "geo.country_bot_rate"
)

// Reputation fast path
const (
	RepUAState     = "rep.ua_state"
	RepIPState     = "rep.ip_state"
	RepUAScore     = "rep.ua_score"
	RepIPScore     = "rep.ip_score"
	RepFastPathHit = "rep.fastpath_hit"
	RepTSBotRatio  = "rep.ts_bot_ratio"
	RepTSVelocity  = "rep.ts_velocity"
)

// Behavioral waveform
const (
	BehaviorRequestCount   = "behavior.request_count"
	BehaviorRegularityCV   = "behavior.regularity_cv"
	BehaviorBurst10s       = "behavior.burst_10s"
	BehaviorBurst60s       = "behavior.burst_60s"
	BehaviorPathDiversity  = "behavior.path_diversity"
	BehaviorSequential     = "behavior.sequential_paths"
	BehaviorDepthFirst     = "behavior.depth_first"
	BehaviorMarkovDominant = "behavior.markov_dominant"
	BehaviorUAStable       = "behavior.ua_stable"
)

// Response feedback
const (
	Response404Count      = "response.404_count"
	ResponseUnique404     = "response.unique_404_paths"
	ResponseHoneypotHits  = "response.honeypot_hits"
	ResponseAuthFailures  = "response.auth_failures"
	ResponseRateLimitHits = "response.rate_limit_hits"
	ResponseScanPattern   = "response.scan_pattern"
	ResponseScore         = "response.score"
)

// Attack payload (Haxxor)
const (
	AttackDetected      = "attack.detected"
	AttackCategories    = "attack.categories"
	AttackCategoryCount = "attack.category_count"
	AttackPathProbe     = "attack.path_probe"
	AttackEncodingEvade = "attack.encoding_evasion"
)

// Account takeover
const (
	AtoDetected           = "ato.detected"
	AtoDriftScore         = "ato.drift_score"
	AtoLoginAttempts      = "ato.login_attempts"
	AtoAuthFailures       = "ato.auth_failures"
	AtoCredentialStuffing = "ato.credential_stuffing"
	AtoGeoVelocity        = "ato.geo_velocity"
)

// Transport protocol compliance
const (
	ProtoWebSocket  = "protocol.websocket"
	ProtoGRPC       = "protocol.grpc"
	ProtoGraphQL    = "protocol.graphql"
	ProtoSSE        = "protocol.sse"
	ProtoViolations = "protocol.violations"
	ProtoSSEReplay  = "protocol.sse_replay"
)

// Stream abuse
const (
	StreamWSStorm    = "stream.ws_storm"
	StreamSSEAbuse   = "stream.sse_abuse"
	StreamConcurrent = "stream.concurrent_endpoints"
	StreamMixing     = "stream.cross_endpoint_mixing"
)

// Similarity / clustering
const (
	SimilarityNeighbors = "similarity.neighbors"
	SimilarityBotRatio  = "similarity.bot_ratio"
	ClusterID           = "cluster.id"
	ClusterSize         = "cluster.size"
	ClusterBotRatio     = "cluster.bot_ratio"
)

// Intent / threat
const (
	IntentCategoryKey = "intent.category"
	IntentThreatScore = "intent.threat_score"
)

// Verified bots & UA lists
const (
	VerifiedBotName     = "verifiedbot.name"
	VerifiedBotVerified = "verifiedbot.verified"
	VerifiedBotSpoofed  = "verifiedbot.spoofed"
	VerifiedBotMethod   = "verifiedbot.method"
	BotListSecurityTool = "botlist.security_tool"
	BotListAiScraper    = "botlist.ai_scraper"
)

// Cache behavior
const (
	CacheConditionalRatio = "cache.conditional_ratio"
	CacheValidatorSeen    = "cache.validator_seen"
)

// Learned models
const (
	LlmAvailable       = "llm.available"
	HeuristicScore     = "heuristic.score"
	HeuristicLateScore = "heuristic.late_score"
)
