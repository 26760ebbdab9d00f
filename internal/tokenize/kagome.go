package tokenize

import (
	"fmt"
	"strings"

	"github.com/ikawaha/kagome-dict/ipa"
	"github.com/ikawaha/kagome/v2/tokenizer"
	"go.uber.org/zap"

	"github.com/kagemask/kagemask/internal/pii"
)

// Kagome tokenizes with morphological analysis backed by the bundled
// IPA dictionary. Byte spans are derived by aligning each surface form
// against the input in order, so analyzers that skip whitespace still
// produce covering spans: skipped runs are emitted as filler tokens.
type Kagome struct {
	tokenizer *tokenizer.Tokenizer
	logger    *zap.Logger
}

// NewKagome creates the morphological tokenizer.
func NewKagome(logger *zap.Logger) (*Kagome, error) {
	t, err := tokenizer.New(ipa.Dict(), tokenizer.OmitBosEos())
	if err != nil {
		return nil, pii.NewProcessingError("tokenize", "failed to initialize morphological analyzer", err)
	}
	return &Kagome{tokenizer: t, logger: logger}, nil
}

var _ Tokenizer = (*Kagome)(nil)

// Tokenize runs morphological analysis and maps every morpheme back to
// its byte span in the input.
func (k *Kagome) Tokenize(text string) ([]Token, error) {
	morphemes := k.tokenizer.Tokenize(text)
	tokens := make([]Token, 0, len(morphemes))

	cursor := 0
	for _, m := range morphemes {
		if m.Surface == "" {
			continue
		}
		rel := strings.Index(text[cursor:], m.Surface)
		if rel < 0 {
			return nil, pii.NewProcessingError("tokenize",
				fmt.Sprintf("morpheme alignment failed at byte %d", cursor), nil)
		}
		start := cursor + rel
		end := start + len(m.Surface)

		if start > cursor {
			tokens = append(tokens, Token{Surface: text[cursor:start], Start: cursor, End: start})
		}
		tokens = append(tokens, Token{Surface: m.Surface, Start: start, End: end})
		cursor = end
	}

	if cursor < len(text) {
		tokens = append(tokens, Token{Surface: text[cursor:], Start: cursor, End: len(text)})
	}

	return tokens, nil
}
