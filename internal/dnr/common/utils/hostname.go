package utils

import (
	"strings"

	"golang.org/x/net/publicsuffix"
)

// CanonicalHost returns a hostname lowercased, trimmed, and without trailing dots.
func CanonicalHost(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	for strings.HasSuffix(name, ".") {
		name = strings.TrimSuffix(name, ".")
	}
	return name
}

// PatternHost extracts the leading hostname portion of a urlFilter pattern,
// e.g. "ads.example.com/banner" -> "ads.example.com". It returns "" when the
// pattern does not start with something that looks like a dotted hostname.
func PatternHost(pattern string) string {
	end := strings.IndexAny(pattern, "/:?*|^$")
	if end >= 0 {
		pattern = pattern[:end]
	}
	host := CanonicalHost(pattern)
	if host == "" || !strings.Contains(host, ".") || strings.HasPrefix(host, ".") {
		return ""
	}
	return host
}

// ApexDomain returns the registrable domain (eTLD+1) for host, falling back
// to the host itself when the public suffix list cannot resolve it.
func ApexDomain(host string) string {
	host = CanonicalHost(host)
	apex, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return apex
}
