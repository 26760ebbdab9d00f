package privacy

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/kagemask/kagemask/internal/config"
	"github.com/kagemask/kagemask/internal/logger"
	"github.com/kagemask/kagemask/internal/pii"
)

const defaultPatternsYAML = `
patterns:
  - name: phone_number
    regex: '0\d{1,4}-\d{1,4}-\d{3,4}'
    description: Japanese phone numbers
  - name: postal_code
    regex: '(?:^|[^\d-])(\d{3}-\d{4})(?:[^\d-]|$)'
    description: Japanese postal codes
  - name: email
    regex: '[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}'
    description: Email addresses
  - name: mynumber
    regex: '(?:^|\D)(\d{12})(?:\D|$)'
    description: My Number identifiers
  - name: credit_card
    regex: '(?:^|\D)(\d{4}[- ]?\d{4}[- ]?\d{4}[- ]?\d{4})(?:\D|$)'
    description: Credit card numbers
`

func writePatterns(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "patterns.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write patterns fixture: %v", err)
	}
	return path
}

func newTestDetector(t *testing.T) *Detector {
	t.Helper()
	cfg := config.GetDefaults()
	cfg.Patterns.File = writePatterns(t, defaultPatternsYAML)

	d, err := New(cfg, logger.Nop())
	if err != nil {
		t.Fatalf("failed to create detector: %v", err)
	}
	return d
}

func TestDetectorLoadsPatterns(t *testing.T) {
	d := newTestDetector(t)

	names := d.PatternNames()
	if len(names) != 5 {
		t.Fatalf("loaded %d patterns, want 5", len(names))
	}
	want := []string{"phone_number", "postal_code", "email", "mynumber", "credit_card"}
	for i, name := range want {
		if names[i] != name {
			t.Errorf("pattern %d = %q, want %q", i, names[i], name)
		}
	}
}

func TestDetect(t *testing.T) {
	d := newTestDetector(t)

	tests := []struct {
		name       string
		text       string
		wantMasked string
		wantCount  int
		wantText   string
		wantLabel  pii.Label
	}{
		{
			name:       "phone number",
			text:       "連絡先は03-1234-5678です。",
			wantMasked: "連絡先は<MASK>です。",
			wantCount:  1,
			wantText:   "03-1234-5678",
			wantLabel:  pii.LabelPhoneNumber,
		},
		{
			name:       "postal code",
			text:       "郵便番号は150-0002です。",
			wantMasked: "郵便番号は<MASK>です。",
			wantCount:  1,
			wantText:   "150-0002",
			wantLabel:  pii.LabelPostalCode,
		},
		{
			name:       "email",
			text:       "メールアドレスはtest@example.comです。",
			wantMasked: "メールアドレスは<MASK>です。",
			wantCount:  1,
			wantText:   "test@example.com",
			wantLabel:  pii.LabelEmail,
		},
		{
			name:       "mynumber",
			text:       "マイナンバーは123456789012です。",
			wantMasked: "マイナンバーは<MASK>です。",
			wantCount:  1,
			wantText:   "123456789012",
			wantLabel:  pii.LabelMyNumber,
		},
		{
			name:       "credit card with spaces",
			text:       "カード番号: 1234 5678 9012 3456",
			wantMasked: "カード番号: <MASK>",
			wantCount:  1,
			wantText:   "1234 5678 9012 3456",
			wantLabel:  pii.LabelCreditCard,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entities, masked := d.Detect(tt.text)

			if masked != tt.wantMasked {
				t.Errorf("masked = %q, want %q", masked, tt.wantMasked)
			}
			if len(entities) != tt.wantCount {
				t.Fatalf("got %d entities, want %d: %+v", len(entities), tt.wantCount, entities)
			}
			e := entities[0]
			if e.Text != tt.wantText {
				t.Errorf("entity text = %q, want %q", e.Text, tt.wantText)
			}
			if e.Label != tt.wantLabel {
				t.Errorf("entity label = %q, want %q", e.Label, tt.wantLabel)
			}
			if tt.text[e.Start:e.End] != e.Text {
				t.Errorf("span [%d,%d) does not locate entity text in input", e.Start, e.End)
			}
		})
	}
}

func TestDetectMultiplePII(t *testing.T) {
	d := newTestDetector(t)

	text := "電話は03-1234-5678、郵便番号は150-0002です。"
	entities, masked := d.Detect(text)

	if masked != "電話は<MASK>、郵便番号は<MASK>です。" {
		t.Errorf("masked = %q", masked)
	}
	if len(entities) != 2 {
		t.Fatalf("got %d entities, want 2: %+v", len(entities), entities)
	}
	if entities[0].Start > entities[1].Start {
		t.Error("entities not in left-to-right order")
	}

	types := MatchedTypes(entities)
	if len(types) != 2 {
		t.Fatalf("got %d matched types, want 2: %v", len(types), types)
	}
	seen := map[string]bool{}
	for _, typ := range types {
		seen[typ] = true
	}
	if !seen["phone_number"] || !seen["postal_code"] {
		t.Errorf("matched types = %v, want phone_number and postal_code", types)
	}
}

func TestDetectOverlappingMatches(t *testing.T) {
	d := newTestDetector(t)

	// The phone number is also a valid email local part, so the phone and
	// email patterns match overlapping spans from the same offset.
	entities, masked := d.Detect("03-1234-5678@ex.com")

	if masked != "<MASK>" {
		t.Errorf("masked = %q, want %q", masked, "<MASK>")
	}
	if len(entities) != 2 {
		t.Fatalf("got %d entities, want 2: %+v", len(entities), entities)
	}
	labels := map[pii.Label]bool{}
	for _, e := range entities {
		labels[e.Label] = true
	}
	if !labels[pii.LabelPhoneNumber] || !labels[pii.LabelEmail] {
		t.Errorf("labels = %v, want phone number and email", labels)
	}
}

func TestDetectNoPII(t *testing.T) {
	d := newTestDetector(t)

	text := "これは個人情報を含まないテキストです。"
	entities, masked := d.Detect(text)

	if masked != text {
		t.Errorf("text without PII was modified: %q", masked)
	}
	if len(entities) != 0 {
		t.Errorf("got %d entities, want 0", len(entities))
	}
}

func TestDetectPostalInsidePhoneNotMatched(t *testing.T) {
	d := newTestDetector(t)

	// 234-5678 inside the phone number must not surface as a postal code.
	entities, _ := d.Detect("連絡先は03-1234-5678です。")
	for _, e := range entities {
		if e.Label == pii.LabelPostalCode {
			t.Errorf("postal code matched inside phone number: %+v", e)
		}
	}
}

func TestDetectMyNumberNotInsideCreditCard(t *testing.T) {
	d := newTestDetector(t)

	entities, masked := d.Detect("番号は1234567890123456です。")
	if len(entities) != 1 {
		t.Fatalf("got %d entities, want 1: %+v", len(entities), entities)
	}
	if entities[0].Label != pii.LabelCreditCard {
		t.Errorf("label = %q, want %q", entities[0].Label, pii.LabelCreditCard)
	}
	if masked != "番号は<MASK>です。" {
		t.Errorf("masked = %q", masked)
	}
}

func TestLoadPatternsErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadPatterns(filepath.Join(t.TempDir(), "nope.yaml"))
		if err == nil {
			t.Fatal("expected error for missing patterns file")
		}
		var pe *pii.ProcessingError
		if !errors.As(err, &pe) {
			t.Fatalf("expected *pii.ProcessingError, got %T", err)
		}
		if pe.Stage != "regex" {
			t.Errorf("stage = %q, want regex", pe.Stage)
		}
	})

	t.Run("invalid regex", func(t *testing.T) {
		path := writePatterns(t, `
patterns:
  - name: broken
    regex: '([unclosed'
`)
		_, err := LoadPatterns(path)
		if err == nil {
			t.Fatal("expected error for invalid regex")
		}
		var pe *pii.ProcessingError
		if !errors.As(err, &pe) {
			t.Fatalf("expected *pii.ProcessingError, got %T", err)
		}
	})

	t.Run("empty name", func(t *testing.T) {
		path := writePatterns(t, `
patterns:
  - regex: '\d+'
`)
		if _, err := LoadPatterns(path); err == nil {
			t.Fatal("expected error for pattern without a name")
		}
	})
}

func BenchmarkDetect(b *testing.B) {
	path := filepath.Join(b.TempDir(), "patterns.yaml")
	if err := os.WriteFile(path, []byte(defaultPatternsYAML), 0644); err != nil {
		b.Fatalf("failed to write patterns fixture: %v", err)
	}
	cfg := config.GetDefaults()
	cfg.Patterns.File = path
	d, err := New(cfg, logger.Nop())
	if err != nil {
		b.Fatalf("failed to create detector: %v", err)
	}

	text := "田中さんの電話番号は03-1234-5678、メールはtest@example.comです。"
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		d.Detect(text)
	}
}
