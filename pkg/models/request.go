package models

import (
	"net"
	"net/http"
	"strings"
	"time"
)

// RequestSnapshot is the read-only view of one HTTP request handed to the
// detection engine by the host middleware. It is created once, after
// reverse-proxy client-IP resolution, and never mutated afterwards: every
// contributor in every wave reads the same snapshot.
type RequestSnapshot struct {
	RequestID  string         `json:"requestId"`
	Method     string         `json:"method"`
	Path       string         `json:"path"`
	Query      string         `json:"query"`
	Protocol   string         `json:"protocol"` // "HTTP/1.1" / "HTTP/2" / "HTTP/3"
	Scheme     string         `json:"scheme"`
	Host       string         `json:"host"`
	ClientIP   string         `json:"clientIp"` // post reverse-proxy resolution
	Headers    http.Header    `json:"headers"`
	TLS        *TLSInfo       `json:"tls,omitempty"`
	H2         *H2Fingerprint `json:"h2,omitempty"`
	H3         *H3Fingerprint `json:"h3,omitempty"`
	TCP        *TCPInfo       `json:"tcp,omitempty"`
	ReceivedAt time.Time      `json:"receivedAt"`
}

// TLSInfo carries the connection-level TLS observations (JA3-style).
type TLSInfo struct {
	Version     string `json:"version"` // "TLS1.2" / "TLS1.3"
	CipherSuite string `json:"cipherSuite"`
	JA3         string `json:"ja3,omitempty"` // md5 of the ClientHello shape
	ALPN        string `json:"alpn,omitempty"`
	ServerName  string `json:"serverName,omitempty"`
}

// H2Fingerprint is the AKAMAI-style HTTP/2 fingerprint taken from the
// client's SETTINGS frame, window update and priority behavior.
type H2Fingerprint struct {
	Fingerprint       string `json:"fingerprint"` // e.g. "1:65536;4:131072;5:16384|12517377|0|m,a,s,p"
	SettingsCount     int    `json:"settingsCount"`
	InitialWindowSize uint32 `json:"initialWindowSize"`
	HeaderTableSize   uint32 `json:"headerTableSize"`
	PseudoHeaderOrder string `json:"pseudoHeaderOrder,omitempty"` // e.g. "m,a,s,p"
}

// H3Fingerprint carries QUIC transport parameters observed on HTTP/3.
type H3Fingerprint struct {
	Fingerprint        string `json:"fingerprint"`
	MaxIdleTimeoutMS   uint64 `json:"maxIdleTimeoutMs"`
	MaxUDPPayloadSize  uint64 `json:"maxUdpPayloadSize"`
	InitialMaxData     uint64 `json:"initialMaxData"`
	ParameterOrderHash string `json:"parameterOrderHash,omitempty"`
}

// TCPInfo is the TCP/IP stack fingerprint for the connection.
type TCPInfo struct {
	TTL        int `json:"ttl"`
	WindowSize int `json:"windowSize"`
	MSS        int `json:"mss"`
}

// Header returns the first value for a header, case-insensitively.
func (r *RequestSnapshot) Header(name string) string {
	if r == nil || r.Headers == nil {
		return ""
	}
	return r.Headers.Get(name)
}

// HeaderValues returns all values for a header in wire order.
func (r *RequestSnapshot) HeaderValues(name string) []string {
	if r == nil || r.Headers == nil {
		return nil
	}
	return r.Headers.Values(name)
}

// HasHeader reports whether the header is present at all.
func (r *RequestSnapshot) HasHeader(name string) bool {
	if r == nil || r.Headers == nil {
		return false
	}
	_, ok := r.Headers[http.CanonicalHeaderKey(name)]
	return ok
}

// UserAgent returns the User-Agent header ("" when absent).
func (r *RequestSnapshot) UserAgent() string {
	return r.Header("User-Agent")
}

// HeaderCount returns the number of distinct header names.
func (r *RequestSnapshot) HeaderCount() int {
	if r == nil || r.Headers == nil {
		return 0
	}
	return len(r.Headers)
}

// SnapshotFromHTTP builds a snapshot from a live *http.Request. The caller
// supplies the resolved client IP (X-Forwarded-For handling is the reverse
// proxy's job, not ours).
func SnapshotFromHTTP(req *http.Request, requestID, clientIP string) *RequestSnapshot {
	scheme := "http"
	if req.TLS != nil {
		scheme = "https"
	}
	if clientIP == "" {
		if host, _, err := net.SplitHostPort(req.RemoteAddr); err == nil {
			clientIP = host
		} else {
			clientIP = req.RemoteAddr
		}
	}

	snap := &RequestSnapshot{
		RequestID:  requestID,
		Method:     req.Method,
		Path:       req.URL.Path,
		Query:      req.URL.RawQuery,
		Protocol:   req.Proto,
		Scheme:     scheme,
		Host:       req.Host,
		ClientIP:   clientIP,
		Headers:    req.Header.Clone(),
		ReceivedAt: time.Now(),
	}

	if req.TLS != nil {
		snap.TLS = &TLSInfo{
			Version:     tlsVersionName(req.TLS.Version),
			CipherSuite: tlsCipherName(req.TLS.CipherSuite),
			ALPN:        req.TLS.NegotiatedProtocol,
			ServerName:  req.TLS.ServerName,
		}
	}
	return snap
}

func tlsVersionName(v uint16) string {
	switch v {
	case 0x0301:
		return "TLS1.0"
	case 0x0302:
		return "TLS1.1"
	case 0x0303:
		return "TLS1.2"
	case 0x0304:
		return "TLS1.3"
	default:
		return "unknown"
	}
}

func tlsCipherName(c uint16) string {
	// Sufficient for fingerprint correlation; exotic suites fall through.
	switch c {
	case 0x1301:
		return "TLS_AES_128_GCM_SHA256"
	case 0x1302:
		return "TLS_AES_256_GCM_SHA384"
	case 0x1303:
		return "TLS_CHACHA20_POLY1305_SHA256"
	case 0xc02f:
		return "TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256"
	case 0xc030:
		return "TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384"
	default:
		return "other"
	}
}

// ContentClass is the coarse classification of what a request is for:
// Page (HTML navigation), Asset (JS/CSS/image/font), API (JSON/XML/GraphQL),
// Stream (WebSocket/SSE/gRPC). Used by the behavioral Markov analysis.
type ContentClass string

const (
	ContentPage    ContentClass = "page"
	ContentAsset   ContentClass = "asset"
	ContentAPI     ContentClass = "api"
	ContentStream  ContentClass = "stream"
	ContentUnknown ContentClass = "unknown"
)

// ClassifyPath derives a provisional content class from the request path
// alone. The history store may later amend it via UpdateLast once the
// response Content-Type is known.
func ClassifyPath(path string) ContentClass {
	p := strings.ToLower(path)
	for _, ext := range []string{".js", ".css", ".png", ".jpg", ".jpeg", ".gif", ".svg", ".ico", ".woff", ".woff2", ".ttf", ".eot", ".map", ".webp", ".avif", ".mp4", ".webm"} {
		if strings.HasSuffix(p, ext) {
			return ContentAsset
		}
	}
	if strings.HasPrefix(p, "/api/") || strings.HasSuffix(p, ".json") || strings.HasSuffix(p, ".xml") || strings.Contains(p, "/graphql") {
		return ContentAPI
	}
	if p == "" {
		return ContentUnknown
	}
	return ContentPage
}
