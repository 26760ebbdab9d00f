package ner

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/kagemask/kagemask/internal/config"
	"github.com/kagemask/kagemask/internal/pii"
	"github.com/kagemask/kagemask/internal/tokenize"
)

// Detector turns backend predictions into byte-addressed entities using the
// token table from the same call. The pipeline is agnostic to which backend
// sits behind it.
type Detector struct {
	backend   Backend
	threshold float64
	logger    *zap.Logger
}

// New creates a Detector around the backend selected in cfg.
func New(cfg *config.Config, logger *zap.Logger) (*Detector, error) {
	backend, err := NewBackend(cfg, logger)
	if err != nil {
		return nil, err
	}
	return NewWithBackend(backend, cfg.NER.ConfidenceThreshold, logger), nil
}

// NewWithBackend wraps an already constructed backend.
func NewWithBackend(backend Backend, threshold float64, logger *zap.Logger) *Detector {
	return &Detector{backend: backend, threshold: threshold, logger: logger}
}

// Detect runs the backend over tokens and resolves surviving predictions to
// byte spans. Predictions labeled "O" or below the confidence threshold are
// dropped. A prediction whose token index is not covered by the token table
// means the backend and tokenizer disagree about the input; that is an
// error, never a span at offset 0.
func (d *Detector) Detect(tokens []tokenize.Token) ([]pii.Entity, error) {
	preds, err := d.backend.Infer(tokens)
	if err != nil {
		return nil, pii.NewProcessingError("ner", "inference failed", err)
	}

	var entities []pii.Entity
	for _, p := range preds {
		if p.Label == string(pii.LabelOutside) || p.Confidence < d.threshold {
			continue
		}
		if p.TokenIndex < 0 || p.TokenIndex >= len(tokens) {
			return nil, pii.NewProcessingError("ner",
				fmt.Sprintf("prediction references token %d of %d", p.TokenIndex, len(tokens)), nil)
		}
		tok := tokens[p.TokenIndex]
		entities = append(entities, pii.Entity{
			Text:       tok.Surface,
			Label:      pii.Label(p.Label),
			Start:      tok.Start,
			End:        tok.End,
			Confidence: p.Confidence,
		})
	}
	return entities, nil
}

// Close releases backend resources.
func (d *Detector) Close() error {
	return d.backend.Close()
}
