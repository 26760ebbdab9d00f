package privacy

import (
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/kagemask/kagemask/internal/config"
	"github.com/kagemask/kagemask/internal/logger"
	"github.com/kagemask/kagemask/internal/pii"
)

// Detector finds structured PII (phone numbers, postal codes, emails,
// national ID numbers, card numbers) with an ordered list of named
// regular expressions and replaces every match with the mask token.
type Detector struct {
	patterns  []Pattern
	maskToken string
	logger    *logger.Logger
}

// New creates a regex detector from the configured pattern file.
func New(cfg *config.Config, log *logger.Logger) (*Detector, error) {
	patterns, err := LoadPatterns(cfg.Patterns.File)
	if err != nil {
		return nil, err
	}

	detector := &Detector{
		patterns:  patterns,
		maskToken: cfg.Pipeline.MaskToken,
		logger:    log,
	}

	if len(patterns) == 0 {
		log.Warn("Pattern file defines no patterns, regex detection is a no-op",
			zap.String("file", cfg.Patterns.File))
	} else {
		log.Info("Regex detector initialized",
			zap.Int("patterns", len(patterns)),
			zap.String("file", cfg.Patterns.File))
	}

	return detector, nil
}

// Detect scans text with every pattern and returns the detected entities
// together with the masked text. Matches are replaced right-to-left so
// that earlier replacements cannot shift the offsets of later ones; the
// returned entities are ordered left-to-right with offsets into the raw
// input. Overlapping matches from different patterns are not deduplicated.
func (d *Detector) Detect(text string) ([]pii.Entity, string) {
	entities := make([]pii.Entity, 0)

	for _, pattern := range d.patterns {
		for _, span := range matchSpans(pattern.Regexp, text) {
			start, end := span[0], span[1]
			entities = append(entities, pii.Entity{
				Text:       text[start:end],
				Label:      pii.LabelForPattern(pattern.Name),
				Start:      start,
				End:        end,
				Confidence: 1.0,
			})
		}
	}

	sort.SliceStable(entities, func(i, j int) bool {
		return entities[i].Start < entities[j].Start
	})

	masked := text
	for i := len(entities) - 1; i >= 0; i-- {
		e := entities[i]
		// A replacement to the right of an overlapping span can leave
		// e.End past the end of the rewritten string.
		end := e.End
		if end > len(masked) {
			end = len(masked)
		}
		masked = masked[:e.Start] + d.maskToken + masked[end:]
		d.logger.Debug("PII matched",
			zap.String("label", string(e.Label)),
			zap.Int("start", e.Start),
			zap.Int("end", e.End))
	}

	return entities, masked
}

// matchSpans returns the byte spans of all matches. RE2 has no lookaround,
// so patterns that need a digit boundary consume the boundary characters
// and capture the value in group 1; for those the group span is the match.
func matchSpans(re *regexp.Regexp, text string) [][2]int {
	var spans [][2]int
	if re.NumSubexp() >= 1 {
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			if len(m) >= 4 && m[2] >= 0 {
				spans = append(spans, [2]int{m[2], m[3]})
			}
		}
		return spans
	}
	for _, m := range re.FindAllStringIndex(text, -1) {
		spans = append(spans, [2]int{m[0], m[1]})
	}
	return spans
}

// PatternNames returns the names of the loaded patterns in order.
func (d *Detector) PatternNames() []string {
	names := make([]string, len(d.patterns))
	for i, p := range d.patterns {
		names[i] = p.Name
	}
	return names
}

// MatchedTypes returns the distinct pattern type names among the given
// regex entities, lower-cased to the pattern naming convention.
func MatchedTypes(entities []pii.Entity) []string {
	seen := make(map[string]struct{})
	var types []string
	for _, e := range entities {
		name := strings.ToLower(string(e.Label))
		if _, ok := seen[name]; !ok {
			seen[name] = struct{}{}
			types = append(types, name)
		}
	}
	return types
}
