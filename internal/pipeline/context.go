package pipeline

import (
	"time"

	"github.com/kagemask/kagemask/internal/pii"
	"github.com/kagemask/kagemask/internal/tokenize"
)

// ProcessingContext carries the intermediate artifacts of one Mask
// invocation between stages. Each invocation owns its own context; nothing
// here is shared or reused across requests.
//
// Offset systems differ by stage: RegexEntities are byte offsets into the
// raw input, NEREntities are byte offsets into RegexMasked.
type ProcessingContext struct {
	Text      string
	TextBytes int
	StartedAt time.Time

	RegexEntities []pii.Entity
	RegexMasked   string
	RegexTypes    []string

	Tokens      []tokenize.Token
	NEREntities []pii.Entity

	Merged     []pii.Entity
	MaskedText string
	RiskScore  float64
	Metrics    pii.RiskMetrics
}

func newProcessingContext(text string) *ProcessingContext {
	return &ProcessingContext{
		Text:      text,
		TextBytes: len(text),
		StartedAt: time.Now(),
	}
}
