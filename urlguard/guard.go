// Package urlguard validates outbound URLs against SSRF risk and performs
// HTTP exchanges with manual, re-validated redirect following. A redirect
// from a vetted external URL must never be allowed to steer the engine at
// loopback, link-local, or RFC1918 targets.
package urlguard

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/agentpay/payflow/types"
)

// blockedSuffixes are hostname suffixes that resolve inside private
// infrastructure regardless of DNS.
var blockedSuffixes = []string{".local", ".internal", ".localhost"}

// ValidateURL rejects malformed URLs, non-http(s) schemes, and any host
// that addresses loopback, unspecified, link-local, or private network
// space, including IPv6-mapped-IPv4 forms.
func ValidateURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return types.NewEngineError(types.ErrBlockedURL, fmt.Sprintf("invalid URL: %v", err))
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return types.NewEngineError(types.ErrBlockedURL,
			fmt.Sprintf("protocol %q is not allowed, only http and https", parsed.Scheme))
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return types.NewEngineError(types.ErrBlockedURL, "URL has no host")
	}

	if host == "localhost" {
		return types.NewEngineError(types.ErrBlockedURL, "localhost is not allowed")
	}

	for _, suffix := range blockedSuffixes {
		if strings.HasSuffix(host, suffix) {
			return types.NewEngineError(types.ErrBlockedURL,
				fmt.Sprintf("hostname %q addresses internal infrastructure", host))
		}
	}

	if ip := net.ParseIP(host); ip != nil {
		if err := validateIP(ip, host); err != nil {
			return err
		}
	}

	return nil
}

// validateIP applies the address-level block rules. net.ParseIP normalizes
// ::ffff:a.b.c.d (and its hex spelling) to a form whose To4() yields the
// embedded IPv4 octets, so mapped addresses fall through to the IPv4 rules.
func validateIP(ip net.IP, host string) error {
	if ip.IsLoopback() {
		return blockedAddr(host, "loopback")
	}
	if ip.IsUnspecified() {
		return blockedAddr(host, "unspecified")
	}
	if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return blockedAddr(host, "link-local")
	}
	if ip.IsPrivate() {
		return blockedAddr(host, "private")
	}

	// 0.0.0.0/8 is not covered by IsUnspecified for non-zero hosts.
	if v4 := ip.To4(); v4 != nil && v4[0] == 0 {
		return blockedAddr(host, "0.0.0.0/8")
	}

	return nil
}

func blockedAddr(host, class string) error {
	return types.NewEngineError(types.ErrBlockedURL,
		fmt.Sprintf("address %q is blocked (%s)", host, class))
}
