package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kagemask/kagemask/internal/pii"
)

// mergeEntities reconciles the two detector outputs. An NER entity whose
// span is fully contained in some regex entity's span is discarded: the
// regex match is the higher-confidence structured detection of the same
// region. It returns the canonical list (all regex entities plus surviving
// NER entities, sorted by start offset, regex first on ties) and the
// surviving NER entities on their own for scoring.
func mergeEntities(regexEntities, nerEntities []pii.Entity) (merged, surviving []pii.Entity) {
	for _, ner := range nerEntities {
		contained := false
		for _, re := range regexEntities {
			if ner.Start >= re.Start && ner.End <= re.End {
				contained = true
				break
			}
		}
		if !contained {
			surviving = append(surviving, ner)
		}
	}

	merged = make([]pii.Entity, 0, len(regexEntities)+len(surviving))
	merged = append(merged, regexEntities...)
	merged = append(merged, surviving...)
	pii.SortEntities(merged)
	return merged, surviving
}

// rewriteMasked applies NER spans over the regex-masked text, right to
// left so earlier splices cannot shift the offsets of later ones. A span
// that already contains the mask marker was handled by a previous rewrite
// and is skipped; an inverted or empty span is skipped the same way. A
// span pointing past the end of the text means the detector and the text
// disagree, which is an error rather than something to clamp.
func rewriteMasked(masked string, nerEntities []pii.Entity, maskToken string) (string, error) {
	ordered := make([]pii.Entity, len(nerEntities))
	copy(ordered, nerEntities)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Start > ordered[j].Start
	})

	for _, e := range ordered {
		if e.End <= e.Start {
			continue
		}
		if e.Start < 0 || e.Start >= len(masked) || e.End > len(masked) {
			return "", pii.NewProcessingError("rewrite",
				fmt.Sprintf("entity span [%d,%d) outside text of %d bytes", e.Start, e.End, len(masked)), nil)
		}
		if strings.Contains(masked[e.Start:e.End], maskToken) {
			continue
		}
		masked = masked[:e.Start] + maskToken + masked[e.End:]
	}
	return masked, nil
}
