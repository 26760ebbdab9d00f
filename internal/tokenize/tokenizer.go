package tokenize

import (
	"fmt"

	"go.uber.org/zap"
)

// Token is one surface segment of the input text. Start and End are
// half-open byte offsets; spans do not overlap and together cover the
// whole input.
type Token struct {
	Surface string `json:"surface"`
	Start   int    `json:"start"`
	End     int    `json:"end"`
}

// Tokenizer splits text into surface tokens with byte spans. The same
// input always yields the same spans.
type Tokenizer interface {
	Tokenize(text string) ([]Token, error)
}

// Backend identifies a tokenizer implementation
type Backend string

const (
	// SegmenterBackend groups runs of the same character class. Fast,
	// dependency-free, and sufficient for dictionary lookup.
	SegmenterBackend Backend = "segmenter"

	// KagomeBackend runs full morphological analysis with the bundled
	// IPA dictionary.
	KagomeBackend Backend = "kagome"
)

// New creates the configured tokenizer backend.
func New(backend Backend, maskToken string, logger *zap.Logger) (Tokenizer, error) {
	switch backend {
	case SegmenterBackend:
		logger.Info("Created segmenter tokenizer")
		return NewSegmenter(maskToken), nil
	case KagomeBackend:
		t, err := NewKagome(logger)
		if err != nil {
			return nil, err
		}
		logger.Info("Created kagome tokenizer")
		return t, nil
	default:
		return nil, fmt.Errorf("unknown tokenizer backend: %s (must be one of: segmenter, kagome)", backend)
	}
}
