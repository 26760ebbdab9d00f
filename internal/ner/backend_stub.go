//go:build !onnx
// +build !onnx

package ner

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/kagemask/kagemask/internal/config"
	"github.com/kagemask/kagemask/internal/pii"
)

// Stub used when the 'onnx' build tag is not set. Selecting the onnx
// backend in such a build fails at construction, not at first inference.
func NewONNX(cfg *config.Config, logger *zap.Logger) (Backend, error) {
	return nil, pii.NewModelLoadError(cfg.NER.ModelPath, fmt.Errorf("binary built without onnx support, rebuild with -tags onnx"))
}
