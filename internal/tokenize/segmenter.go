package tokenize

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kagemask/kagemask/internal/pii"
)

// Segmenter is the reference tokenizer. It groups consecutive runes of
// the same character class (kanji, hiragana, katakana, latin, digits,
// whitespace, punctuation) into tokens and always emits the mask token
// as a single token so masked regions survive tokenization intact.
type Segmenter struct {
	maskToken string
}

// NewSegmenter creates a segmenter that treats maskToken as atomic.
func NewSegmenter(maskToken string) *Segmenter {
	return &Segmenter{maskToken: maskToken}
}

var _ Tokenizer = (*Segmenter)(nil)

type runeClass int

const (
	classSpace runeClass = iota
	classHiragana
	classKatakana
	classKanji
	classLatin
	classDigit
	classOther
)

func classify(r rune) runeClass {
	switch {
	case unicode.IsSpace(r):
		return classSpace
	case r >= 0x3040 && r <= 0x309F:
		return classHiragana
	case r >= 0x30A0 && r <= 0x30FF:
		return classKatakana
	case unicode.Is(unicode.Han, r):
		return classKanji
	case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
		return classLatin
	case r >= '0' && r <= '9':
		return classDigit
	default:
		return classOther
	}
}

// Tokenize splits text into class runs. Returns a ProcessingError on
// invalid UTF-8 rather than emitting replacement-rune tokens.
func (s *Segmenter) Tokenize(text string) ([]Token, error) {
	tokens := make([]Token, 0, len(text)/3)

	i := 0
	for i < len(text) {
		if s.maskToken != "" && strings.HasPrefix(text[i:], s.maskToken) {
			end := i + len(s.maskToken)
			tokens = append(tokens, Token{Surface: s.maskToken, Start: i, End: end})
			i = end
			continue
		}

		r, size := utf8.DecodeRuneInString(text[i:])
		if r == utf8.RuneError && size == 1 {
			return nil, pii.NewProcessingError("tokenize", fmt.Sprintf("invalid UTF-8 at byte %d", i), nil)
		}
		class := classify(r)

		j := i + size
		for j < len(text) {
			if s.maskToken != "" && strings.HasPrefix(text[j:], s.maskToken) {
				break
			}
			next, nextSize := utf8.DecodeRuneInString(text[j:])
			if next == utf8.RuneError && nextSize == 1 {
				return nil, pii.NewProcessingError("tokenize", fmt.Sprintf("invalid UTF-8 at byte %d", j), nil)
			}
			if classify(next) != class {
				break
			}
			j += nextSize
		}

		tokens = append(tokens, Token{Surface: text[i:j], Start: i, End: j})
		i = j
	}

	return tokens, nil
}
