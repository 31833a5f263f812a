package domain

import (
	"fmt"
	"strings"
)

// RawSource is one fetched filter-list text blob together with the locator
// it was fetched from. It is immutable once constructed.
type RawSource struct {
	Origin string // URL or filesystem path the text came from
	Text   string
}

// NewRawSource constructs a RawSource and validates the origin.
func NewRawSource(origin, text string) (RawSource, error) {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return RawSource{}, fmt.Errorf("source origin must not be empty")
	}
	return RawSource{Origin: origin, Text: text}, nil
}

// FilterDirective is the normalized block intent extracted from one
// filter-list line.
type FilterDirective struct {
	Pattern      string // hostname or URL fragment anchor, verbatim from the line
	SourceOrigin string // origin of the RawSource it came from
}

// NewFilterDirective constructs a FilterDirective. The pattern must be
// non-empty and carry no surrounding whitespace.
func NewFilterDirective(pattern, origin string) (FilterDirective, error) {
	if pattern == "" {
		return FilterDirective{}, fmt.Errorf("directive pattern must not be empty")
	}
	if strings.TrimSpace(pattern) != pattern {
		return FilterDirective{}, fmt.Errorf("directive pattern %q has surrounding whitespace", pattern)
	}
	return FilterDirective{Pattern: pattern, SourceOrigin: origin}, nil
}
