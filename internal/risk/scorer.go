package risk

import (
	"github.com/kagemask/kagemask/internal/config"
	"github.com/kagemask/kagemask/internal/pii"
)

// Scorer computes the additive risk model over detected entities.
// Weights are fixed at construction; Score is pure and safe for
// concurrent use.
type Scorer struct {
	base         float64
	singlePerson float64
	multiPerson  float64
	perRegexType float64
}

// New creates a Scorer with the weights from cfg.
func New(cfg config.RiskConfig) *Scorer {
	return &Scorer{
		base:         cfg.BaseScore,
		singlePerson: cfg.SinglePersonWeight,
		multiPerson:  cfg.MultiPersonWeight,
		perRegexType: cfg.RegexTypeWeight,
	}
}

// Score returns base + person term + regex term, capped at 1.0. The person
// term is a step function of the person entity count: one person adds the
// single weight, two or more add the (larger) multi weight. The regex term
// grows linearly with the number of distinct pattern names matched.
func (s *Scorer) Score(regexEntities, nerEntities []pii.Entity, regexTypes []string) float64 {
	score := s.base

	personCount := countPersons(nerEntities)
	if personCount == 1 {
		score += s.singlePerson
	} else if personCount >= 2 {
		score += s.multiPerson
	}

	score += float64(distinctCount(regexTypes)) * s.perRegexType

	if score > 1.0 {
		return 1.0
	}
	return score
}

// Metrics returns the supplementary indicators reported alongside the
// score. They feed telemetry, never the score itself. textBytes is the
// length of the original input.
func (s *Scorer) Metrics(regexEntities, nerEntities []pii.Entity, regexTypes []string, textBytes int) pii.RiskMetrics {
	all := make([]pii.Entity, 0, len(regexEntities)+len(nerEntities))
	all = append(all, regexEntities...)
	all = append(all, nerEntities...)

	return pii.RiskMetrics{
		EntityCount:    len(all),
		PersonCount:    countPersons(nerEntities),
		RegexTypeCount: distinctCount(regexTypes),
		DiversityScore: diversityScore(all),
		DensityScore:   densityScore(textBytes, len(all)),
	}
}

func countPersons(entities []pii.Entity) int {
	n := 0
	for _, e := range entities {
		if e.Label == pii.LabelPerson {
			n++
		}
	}
	return n
}

func distinctCount(names []string) int {
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		seen[n] = struct{}{}
	}
	return len(seen)
}

// diversityScore scales with the number of distinct labels present,
// saturating at five.
func diversityScore(entities []pii.Entity) float64 {
	if len(entities) == 0 {
		return 0.0
	}
	labels := make(map[pii.Label]struct{}, len(entities))
	for _, e := range entities {
		labels[e.Label] = struct{}{}
	}
	score := float64(len(labels)) * 0.2
	if score > 1.0 {
		return 1.0
	}
	return score
}

// densityScore scales with entities per hundred bytes, saturating at one
// entity per twenty bytes.
func densityScore(textBytes, entityCount int) float64 {
	if textBytes == 0 {
		return 0.0
	}
	density := float64(entityCount) / float64(textBytes) * 100
	score := density * 0.2
	if score > 1.0 {
		return 1.0
	}
	return score
}
