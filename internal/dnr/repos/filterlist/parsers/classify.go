package parsers

import "strings"

// LineClass describes how a single filter-list line was treated.
type LineClass uint8

const (
	// LineAnchor is a supported "||pattern^" domain-anchor rule.
	LineAnchor LineClass = iota
	LineEmpty
	LineComment
	// LineHeader is an "[Adblock Plus x.y]" style list header.
	LineHeader
	// LineException is an "@@" allow rule; exceptions are not supported.
	LineException
	// LineCosmetic is an element hiding or scriptlet rule (##, #@#, #?#, #$#, #%#).
	LineCosmetic
	// LineRegex is a "/.../" regular expression rule.
	LineRegex
	// LineUnsupported is anything else, including anchors without a terminator.
	LineUnsupported
)

func (c LineClass) String() string {
	switch c {
	case LineAnchor:
		return "anchor"
	case LineEmpty:
		return "empty"
	case LineComment:
		return "comment"
	case LineHeader:
		return "header"
	case LineException:
		return "exception"
	case LineCosmetic:
		return "cosmetic"
	case LineRegex:
		return "regex"
	default:
		return "unsupported"
	}
}

var cosmeticMarkers = []string{"##", "#@#", "#?#", "#$#", "#%#"}

// Classify decides which syntax class a trimmed line belongs to. Only
// LineAnchor lines can produce directives.
func Classify(line string) LineClass {
	switch {
	case line == "":
		return LineEmpty
	case strings.HasPrefix(line, "!"):
		return LineComment
	}
	if _, ok := extractAnchor(line); ok {
		return LineAnchor
	}
	switch {
	case strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]"):
		return LineHeader
	case strings.HasPrefix(line, "@@"):
		return LineException
	}
	for _, m := range cosmeticMarkers {
		if strings.Contains(line, m) {
			return LineCosmetic
		}
	}
	if len(line) > 1 && strings.HasPrefix(line, "/") && strings.HasSuffix(line, "/") {
		return LineRegex
	}
	return LineUnsupported
}

// extractAnchor matches the grammar "||" capture "^" where the capture is
// one or more characters other than '^'. Anything after the first '^'
// (separators, "$" options) is ignored.
func extractAnchor(line string) (string, bool) {
	if !strings.HasPrefix(line, "||") {
		return "", false
	}
	rest := line[2:]
	end := strings.IndexByte(rest, '^')
	if end <= 0 {
		return "", false
	}
	return rest[:end], true
}
