package pipeline

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kagemask/kagemask/internal/config"
	"github.com/kagemask/kagemask/internal/pii"
)

// Validator checks input text against the configured size bounds before
// any detector runs. Bounds are byte lengths of the UTF-8 encoding.
type Validator struct {
	minBytes int
	maxBytes int
}

// NewValidator creates a Validator with the bounds from cfg.
func NewValidator(cfg config.PipelineConfig) *Validator {
	return &Validator{
		minBytes: cfg.MinTextLength,
		maxBytes: cfg.MaxTextLength,
	}
}

// Validate returns a *pii.ValidationError when text is empty or
// whitespace only, outside the byte bounds, or not valid UTF-8.
// Whitespace-only text is rejected the same as empty regardless of
// length.
func (v *Validator) Validate(text string) error {
	if strings.TrimSpace(text) == "" {
		return pii.NewValidationError("text is required")
	}
	if len(text) < v.minBytes {
		return pii.NewValidationError(fmt.Sprintf("text is too short (minimum %d byte)", v.minBytes))
	}
	if len(text) > v.maxBytes {
		return pii.NewValidationError(fmt.Sprintf("text is too long (maximum %d bytes)", v.maxBytes))
	}
	if !utf8.ValidString(text) {
		return pii.NewValidationError("text must be valid UTF-8")
	}
	return nil
}
