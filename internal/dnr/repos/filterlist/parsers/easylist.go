package parsers

import (
	"strings"

	logpkg "github.com/haukened/dnrc/internal/dnr/common/log"
	"github.com/haukened/dnrc/internal/dnr/domain"
)

// ParseEasyList extracts block directives from an EasyList-style filter list.
//
// Behavior:
//   - Splits on newlines and trims each line; a leading BOM is dropped
//   - Skips empty lines and "!" comments
//   - Emits one directive per "||pattern^" line, pattern taken verbatim
//   - Silently skips every other syntax (exceptions, cosmetic, regex, headers)
//   - Preserves input order and never fails; the worst case is an empty result
func ParseEasyList(src domain.RawSource, logger logpkg.Logger) []domain.FilterDirective {
	out := make([]domain.FilterDirective, 0, 256)
	skipped := make(map[string]int)
	logger.Debug(map[string]any{"source": src.Origin}, "parse_easylist_start")

	text := strings.TrimPrefix(src.Text, "\uFEFF")
	for i, raw := range strings.Split(text, "\n") {
		lineNum := i + 1
		line := strings.TrimSpace(raw)

		class := Classify(line)
		if class != LineAnchor {
			skipped[class.String()]++
			if class != LineEmpty && class != LineComment {
				logger.Debug(map[string]any{"line": lineNum, "class": class.String()}, "skip_line")
			}
			continue
		}

		pattern, _ := extractAnchor(line)
		d, err := domain.NewFilterDirective(pattern, src.Origin)
		if err != nil {
			skipped["invalid_pattern"]++
			logger.Debug(map[string]any{"line": lineNum, "error": err.Error()}, "skip_invalid_pattern")
			continue
		}
		out = append(out, d)
	}

	logger.Debug(map[string]any{
		"source":  src.Origin,
		"count":   len(out),
		"skipped": skipped,
	}, "parse_easylist_done")
	return out
}

// ParseAll parses every source in order, returning one directive sequence
// per source. Sources that yield nothing still get an (empty) entry.
func ParseAll(sources []domain.RawSource, logger logpkg.Logger) [][]domain.FilterDirective {
	out := make([][]domain.FilterDirective, len(sources))
	for i, src := range sources {
		out[i] = ParseEasyList(src, logger)
	}
	return out
}
