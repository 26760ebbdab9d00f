package risk

import (
	"math"
	"testing"

	"github.com/kagemask/kagemask/internal/config"
	"github.com/kagemask/kagemask/internal/pii"
)

func newDefaultScorer() *Scorer {
	return New(config.GetDefaults().Risk)
}

func approx(t *testing.T, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 0.001 {
		t.Errorf("score = %v, want %v", got, want)
	}
}

func person(text string) pii.Entity {
	return pii.Entity{Text: text, Label: pii.LabelPerson, Confidence: 0.9}
}

func TestScore(t *testing.T) {
	scorer := newDefaultScorer()

	t.Run("no entities is base only", func(t *testing.T) {
		approx(t, scorer.Score(nil, nil, nil), 0.2)
	})

	t.Run("single person", func(t *testing.T) {
		approx(t, scorer.Score(nil, []pii.Entity{person("田中")}, nil), 0.6)
	})

	t.Run("two persons use the multi weight", func(t *testing.T) {
		ner := []pii.Entity{person("田中"), person("佐藤")}
		approx(t, scorer.Score(nil, ner, nil), 0.9)
	})

	t.Run("three persons same as two", func(t *testing.T) {
		ner := []pii.Entity{person("田中"), person("佐藤"), person("鈴木")}
		approx(t, scorer.Score(nil, ner, nil), 0.9)
	})

	t.Run("non-person entities add nothing", func(t *testing.T) {
		ner := []pii.Entity{
			{Text: "東京", Label: pii.LabelLocation, Confidence: 0.9},
			{Text: "トヨタ", Label: pii.LabelOrganization, Confidence: 0.9},
		}
		approx(t, scorer.Score(nil, ner, nil), 0.2)
	})

	t.Run("one regex type", func(t *testing.T) {
		approx(t, scorer.Score(nil, nil, []string{"phone_number"}), 0.3)
	})

	t.Run("regex types counted distinct", func(t *testing.T) {
		types := []string{"phone_number", "phone_number", "postal_code"}
		approx(t, scorer.Score(nil, nil, types), 0.4)
	})

	t.Run("person and regex combined", func(t *testing.T) {
		ner := []pii.Entity{person("田中")}
		types := []string{"phone_number", "postal_code"}
		approx(t, scorer.Score(nil, ner, types), 0.8)
	})

	t.Run("capped at one", func(t *testing.T) {
		ner := []pii.Entity{person("田中"), person("佐藤"), person("鈴木")}
		types := []string{"phone_number", "postal_code", "email", "credit_card"}
		if got := scorer.Score(nil, ner, types); got != 1.0 {
			t.Errorf("score = %v, want exactly 1.0", got)
		}
	})

	t.Run("custom weights", func(t *testing.T) {
		scorer := New(config.RiskConfig{
			BaseScore:          0.1,
			SinglePersonWeight: 0.2,
			MultiPersonWeight:  0.5,
			RegexTypeWeight:    0.05,
		})
		approx(t, scorer.Score(nil, []pii.Entity{person("田中")}, []string{"email"}), 0.35)
	})
}

func TestMetrics(t *testing.T) {
	scorer := newDefaultScorer()

	t.Run("counts and supplementary scores", func(t *testing.T) {
		regex := []pii.Entity{
			{Text: "03-1234-5678", Label: pii.LabelPhoneNumber, Confidence: 1.0},
		}
		ner := []pii.Entity{person("田中"), {Text: "東京", Label: pii.LabelLocation, Confidence: 0.9}}
		m := scorer.Metrics(regex, ner, []string{"phone_number"}, 100)

		if m.EntityCount != 3 {
			t.Errorf("EntityCount = %d, want 3", m.EntityCount)
		}
		if m.PersonCount != 1 {
			t.Errorf("PersonCount = %d, want 1", m.PersonCount)
		}
		if m.RegexTypeCount != 1 {
			t.Errorf("RegexTypeCount = %d, want 1", m.RegexTypeCount)
		}
		// 3 distinct labels * 0.2
		if math.Abs(m.DiversityScore-0.6) > 0.001 {
			t.Errorf("DiversityScore = %v, want 0.6", m.DiversityScore)
		}
		// (3/100)*100*0.2
		if math.Abs(m.DensityScore-0.6) > 0.001 {
			t.Errorf("DensityScore = %v, want 0.6", m.DensityScore)
		}
	})

	t.Run("empty input", func(t *testing.T) {
		m := scorer.Metrics(nil, nil, nil, 0)
		if m.EntityCount != 0 || m.DiversityScore != 0 || m.DensityScore != 0 {
			t.Errorf("expected zero metrics, got %+v", m)
		}
	})

	t.Run("scores saturate", func(t *testing.T) {
		var ner []pii.Entity
		for _, label := range []pii.Label{
			pii.LabelPerson, pii.LabelLocation, pii.LabelOrganization,
			pii.LabelPhoneNumber, pii.LabelPostalCode, pii.LabelEmail,
		} {
			ner = append(ner, pii.Entity{Text: "x", Label: label})
		}
		m := scorer.Metrics(nil, ner, nil, 10)
		if m.DiversityScore != 1.0 {
			t.Errorf("DiversityScore = %v, want saturated 1.0", m.DiversityScore)
		}
		if m.DensityScore != 1.0 {
			t.Errorf("DensityScore = %v, want saturated 1.0", m.DensityScore)
		}
	})
}
