package pii

import (
	"errors"
	"fmt"
	"testing"
)

func TestLabelForPattern(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		want    Label
	}{
		{"phone", "phone_number", LabelPhoneNumber},
		{"postal", "postal_code", LabelPostalCode},
		{"email", "email", LabelEmail},
		{"mynumber", "mynumber", LabelMyNumber},
		{"credit card", "credit_card", LabelCreditCard},
		{"already upper", "EMAIL", LabelEmail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LabelForPattern(tt.pattern); got != tt.want {
				t.Errorf("LabelForPattern(%q) = %q, want %q", tt.pattern, got, tt.want)
			}
		})
	}
}

func TestSortEntities(t *testing.T) {
	t.Run("orders by start offset", func(t *testing.T) {
		entities := []Entity{
			{Text: "c", Start: 20, End: 22},
			{Text: "a", Start: 0, End: 2},
			{Text: "b", Start: 10, End: 12},
		}
		SortEntities(entities)

		for i := 1; i < len(entities); i++ {
			if entities[i].Start < entities[i-1].Start {
				t.Errorf("entities out of order at %d: %d < %d", i, entities[i].Start, entities[i-1].Start)
			}
		}
		if entities[0].Text != "a" || entities[2].Text != "c" {
			t.Errorf("unexpected order: %+v", entities)
		}
	})

	t.Run("stable on equal start", func(t *testing.T) {
		entities := []Entity{
			{Text: "regex", Label: LabelPhoneNumber, Start: 5, End: 17},
			{Text: "ner", Label: LabelPerson, Start: 5, End: 8},
		}
		SortEntities(entities)

		if entities[0].Text != "regex" {
			t.Errorf("expected regex entity first on tie, got %q", entities[0].Text)
		}
	})
}

func TestErrorTaxonomy(t *testing.T) {
	t.Run("validation error", func(t *testing.T) {
		err := NewValidationError("text exceeds maximum length")

		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Fatal("expected errors.As to match *ValidationError")
		}
		if ve.Reason != "text exceeds maximum length" {
			t.Errorf("unexpected reason: %q", ve.Reason)
		}
	})

	t.Run("processing error unwraps cause", func(t *testing.T) {
		cause := errors.New("token index 12 out of range")
		err := NewProcessingError("ner", "span resolution failed", cause)

		if !errors.Is(err, cause) {
			t.Error("expected errors.Is to find the wrapped cause")
		}

		var pe *ProcessingError
		if !errors.As(err, &pe) {
			t.Fatal("expected errors.As to match *ProcessingError")
		}
		if pe.Stage != "ner" {
			t.Errorf("unexpected stage: %q", pe.Stage)
		}
	})

	t.Run("processing error through wrapping", func(t *testing.T) {
		inner := NewProcessingError("regex", "pattern file missing", nil)
		wrapped := fmt.Errorf("pipeline setup: %w", inner)

		var pe *ProcessingError
		if !errors.As(wrapped, &pe) {
			t.Fatal("expected *ProcessingError through fmt.Errorf wrap")
		}
	})

	t.Run("model load error", func(t *testing.T) {
		err := NewModelLoadError("models/distilbert-jp-int8.onnx", errors.New("no such file"))

		var me *ModelLoadError
		if !errors.As(err, &me) {
			t.Fatal("expected errors.As to match *ModelLoadError")
		}
		if me.Path != "models/distilbert-jp-int8.onnx" {
			t.Errorf("unexpected path: %q", me.Path)
		}
	})

	t.Run("cache error", func(t *testing.T) {
		err := NewCacheError("get", "failed to deserialize cached result", nil)

		var ce *CacheError
		if !errors.As(err, &ce) {
			t.Fatal("expected errors.As to match *CacheError")
		}
		if ce.Op != "get" {
			t.Errorf("unexpected op: %q", ce.Op)
		}
	})
}
