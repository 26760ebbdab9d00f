package pii

import (
	"sort"
	"strings"
)

// Label identifies the category of a detected entity.
type Label string

// Entity labels produced by the NER detector.
const (
	LabelPerson       Label = "PERSON"
	LabelLocation     Label = "LOCATION"
	LabelOrganization Label = "ORGANIZATION"
	LabelOutside      Label = "O"
)

// Entity labels produced by the default regex pattern set.
const (
	LabelPhoneNumber Label = "PHONE_NUMBER"
	LabelPostalCode  Label = "POSTAL_CODE"
	LabelEmail       Label = "EMAIL"
	LabelMyNumber    Label = "MYNUMBER"
	LabelCreditCard  Label = "CREDIT_CARD"
	LabelDate        Label = "DATE"
	LabelBankAccount Label = "BANK_ACCOUNT"
)

// LabelForPattern derives an entity label from a regex pattern name.
func LabelForPattern(name string) Label {
	return Label(strings.ToUpper(name))
}

// Entity represents a detected piece of PII. Start and End are half-open
// byte offsets into the text version the detector operated on: the raw
// input for regex matches, the regex-masked text for NER matches.
type Entity struct {
	Text       string  `json:"text"`
	Label      Label   `json:"label"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Confidence float64 `json:"confidence"`
}

// MaskingResult is the outcome of one masking pipeline invocation.
// Entities are ordered by start offset. Results served from the cache
// carry no entities and have Cached set to true.
type MaskingResult struct {
	MaskedText string   `json:"masked_text"`
	Entities   []Entity `json:"entities"`
	RiskScore  float64  `json:"risk_score"`
	Cached     bool     `json:"cached"`
}

// RiskMetrics are supplementary indicators computed alongside the risk
// score. They are reported in telemetry events but do not feed the score.
type RiskMetrics struct {
	EntityCount    int     `json:"entity_count"`
	PersonCount    int     `json:"person_count"`
	RegexTypeCount int     `json:"regex_type_count"`
	DiversityScore float64 `json:"diversity_score"`
	DensityScore   float64 `json:"density_score"`
}

// SortEntities orders entities by start offset ascending, preserving the
// original order of entities that share a start offset.
func SortEntities(entities []Entity) {
	sort.SliceStable(entities, func(i, j int) bool {
		return entities[i].Start < entities[j].Start
	})
}
