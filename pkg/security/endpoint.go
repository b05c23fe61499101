// Package security checks the generation endpoints quill sends prompts to.
package security

import (
	"net/netip"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

var ErrInvalidEndpoint = errors.New("invalid endpoint")

// EndpointPolicy configures which endpoint URLs are accepted.
type EndpointPolicy struct {
	// AllowHTTP permits plain HTTP to any host. HTTPS is always allowed.
	AllowHTTP bool
	// AllowLocalHTTP permits plain HTTP to loopback, private and link-local
	// hosts, which is how local model servers are usually reached.
	AllowLocalHTTP bool
}

// ValidateEndpoint parses rawURL and checks it against p. It does no DNS
// lookups: a hostname counts as local only if it is localhost or ends in
// .localhost or .local.
func ValidateEndpoint(rawURL string, p EndpointPolicy) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.Wrapf(ErrInvalidEndpoint, "%q: %v", rawURL, err)
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return errors.Wrapf(ErrInvalidEndpoint, "%q: host is required", rawURL)
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		addr = addr.Unmap()
		if addr.IsUnspecified() || addr.IsMulticast() {
			return errors.Wrapf(ErrInvalidEndpoint, "%q: disallowed address", rawURL)
		}
	}

	switch parsed.Scheme {
	case "https":
		return nil
	case "http":
		if p.AllowHTTP || (p.AllowLocalHTTP && IsLocalHost(host)) {
			return nil
		}
		return errors.Wrapf(ErrInvalidEndpoint, "%q: plain http is only allowed for local hosts", rawURL)
	default:
		return errors.Wrapf(ErrInvalidEndpoint, "%q: unsupported scheme %q", rawURL, parsed.Scheme)
	}
}

// IsLocalHost reports whether host names this machine or a private network.
func IsLocalHost(host string) bool {
	host = strings.ToLower(host)
	if host == "localhost" || strings.HasSuffix(host, ".localhost") || strings.HasSuffix(host, ".local") {
		return true
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	return addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast()
}
