package ner

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/kagemask/kagemask/internal/config"
)

// BackendType represents the type of recognition backend
type BackendType string

const (
	// DictionaryBackend matches token surfaces against built-in gazetteers
	DictionaryBackend BackendType = "dictionary"

	// ONNXBackend runs a token-classification model via ONNX Runtime
	ONNXBackend BackendType = "onnx"
)

// NewBackend creates the backend selected by cfg.NER.Backend.
func NewBackend(cfg *config.Config, logger *zap.Logger) (Backend, error) {
	switch BackendType(cfg.NER.Backend) {
	case DictionaryBackend:
		logger.Info("Created dictionary NER backend")
		return NewDictionary(logger), nil
	case ONNXBackend:
		backend, err := NewONNX(cfg, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("Created ONNX NER backend", zap.String("model", cfg.NER.ModelPath))
		return backend, nil
	default:
		return nil, fmt.Errorf("unknown ner backend: %s (must be one of: dictionary, onnx)", cfg.NER.Backend)
	}
}
