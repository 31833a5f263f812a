package matcher

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// scheme, then an optional run of host labels ending in a dot
	domainAnchorPrefix = `^[a-z][a-z0-9+.\-]*://(?:[^/?#]*\.)?`
	// ^ matches one separator character or the end of the URL
	separatorClass = `(?:[^a-z0-9_\-.%]|$)`
)

// compileURLFilter converts a declarativeNetRequest urlFilter into a
// case-insensitive regular expression.
//
//	||  at the start anchors to the host or one of its subdomains
//	|   at the start or end anchors to the URL boundary
//	*   matches any run of characters
//	^   matches a separator or the end of the URL
//
// Anything else matches literally; an unanchored filter matches anywhere.
func compileURLFilter(filter string) (*regexp.Regexp, error) {
	if filter == "" {
		return nil, fmt.Errorf("empty urlFilter")
	}
	var b strings.Builder
	b.WriteString("(?i)")

	body := filter
	switch {
	case strings.HasPrefix(body, "||"):
		b.WriteString(domainAnchorPrefix)
		body = body[2:]
	case strings.HasPrefix(body, "|"):
		b.WriteString("^")
		body = body[1:]
	}
	endAnchor := false
	if strings.HasSuffix(body, "|") {
		endAnchor = true
		body = body[:len(body)-1]
	}

	for _, r := range body {
		switch r {
		case '*':
			b.WriteString(".*")
		case '^':
			b.WriteString(separatorClass)
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	if endAnchor {
		b.WriteString("$")
	}
	return regexp.Compile(b.String())
}
