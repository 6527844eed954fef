package security

import (
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
)

var (
	// ErrForbidden is returned when a remote peer connects while remote access is disabled.
	// It is a hard boundary: token correctness is never consulted.
	ErrForbidden = errors.New("forbidden: remote access is disabled")
	// ErrUnauthorized is returned when a shared token is configured and the presented token does not match.
	ErrUnauthorized = errors.New("unauthorized: token mismatch")
)

// TokenHeader is the HTTP header (and gRPC metadata key, lowercased) that may carry the shared token
// when it is not passed as the token query parameter.
const TokenHeader = "X-OpenClaw-Token"

// Locality classifies where a connection originates.
type Locality int

const (
	// Remote is any peer that does not satisfy a locality rule.
	Remote Locality = iota
	// Local is a peer on the same machine per the address, host, or origin rule.
	Local
)

func (l Locality) String() string {
	if l == Local {
		return "local"
	}
	return "remote"
}

// Classify returns Local when any of the following holds, otherwise Remote:
//   - remoteAddr (host or host:port) is a loopback IP;
//   - host, with any port stripped, equals "localhost" or "127.0.0.1" (case-insensitive);
//   - the host component of origin contains "localhost" or "127.0.0.1".
func Classify(remoteAddr, host, origin string) Locality {
	if isLoopbackAddr(remoteAddr) {
		return Local
	}
	if h := strings.ToLower(stripPort(strings.TrimSpace(host))); h == "localhost" || h == "127.0.0.1" {
		return Local
	}
	if oh := originHost(origin); strings.Contains(oh, "localhost") || strings.Contains(oh, "127.0.0.1") {
		return Local
	}
	return Remote
}

// Authorize decides whether a classified peer may proceed.
// Remote peers are denied with ErrForbidden unless allowRemote is set. When configured is non-empty,
// presented must equal it exactly or ErrUnauthorized is returned, regardless of locality.
func Authorize(loc Locality, presented, configured string, allowRemote bool) error {
	if loc != Local && !allowRemote {
		return ErrForbidden
	}
	if configured == "" {
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(presented), []byte(configured)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// Peer is the connection metadata the gate needs, independent of transport.
type Peer struct {
	RemoteAddr string
	Host       string
	Origin     string
	Token      string
}

// PeerFromRequest extracts gate metadata from an HTTP request or websocket upgrade request.
// The token is read from the token query parameter, falling back to the X-OpenClaw-Token header.
func PeerFromRequest(r *http.Request) Peer {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = r.Header.Get(TokenHeader)
	}
	return Peer{
		RemoteAddr: r.RemoteAddr,
		Host:       r.Host,
		Origin:     r.Header.Get("Origin"),
		Token:      token,
	}
}

// Gate holds the configured trust policy. The zero value admits only local peers and checks no token.
type Gate struct {
	Token       string
	AllowRemote bool
}

// Check classifies p and authorizes it. It returns the locality even when access is denied so callers can log it.
func (g Gate) Check(p Peer) (Locality, error) {
	loc := Classify(p.RemoteAddr, p.Host, p.Origin)
	return loc, Authorize(loc, p.Token, g.Token, g.AllowRemote)
}

// CheckRequest is Check applied to PeerFromRequest(r).
func (g Gate) CheckRequest(r *http.Request) (Locality, error) {
	return g.Check(PeerFromRequest(r))
}

func isLoopbackAddr(addr string) bool {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return false
	}
	host := stripPort(addr)
	if i := strings.IndexByte(host, '%'); i >= 0 {
		host = host[:i] // zone, e.g. ::1%lo0
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// stripPort removes a trailing :port and IPv6 brackets. Bare IPv6 addresses are returned unchanged.
func stripPort(hostport string) string {
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		return h
	}
	return strings.TrimSuffix(strings.TrimPrefix(hostport, "["), "]")
}

func originHost(origin string) string {
	origin = strings.TrimSpace(origin)
	if origin == "" || origin == "null" {
		return ""
	}
	u, err := url.Parse(origin)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}
