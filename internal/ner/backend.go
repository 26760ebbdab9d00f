package ner

import (
	"github.com/kagemask/kagemask/internal/tokenize"
)

// Prediction is one labeled token produced by a backend. TokenIndex refers
// to a position in the token slice passed to Infer.
type Prediction struct {
	TokenIndex int
	Label      string
	Confidence float64
}

// Backend defines a pluggable engine for per-token entity prediction.
// Implementations may use gazetteers, ONNX Runtime, or other engines; the
// ONNX variant is provided in build-tagged files (backend_onnx.go and
// backend_stub.go).
type Backend interface {
	// Infer returns predictions for tokens that belong to an entity.
	// Tokens outside any entity may be omitted or labeled "O".
	Infer(tokens []tokenize.Token) ([]Prediction, error)
	// Close releases any native resources.
	Close() error
}
