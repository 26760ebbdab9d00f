package ner

import (
	"go.uber.org/zap"

	"github.com/kagemask/kagemask/internal/pii"
	"github.com/kagemask/kagemask/internal/tokenize"
)

// dictionaryConfidence is the fixed confidence assigned to gazetteer hits.
const dictionaryConfidence = 0.9

var (
	personSurfaces = []string{"佐藤", "鈴木", "高橋", "田中", "山田", "渡辺", "伊藤", "中村"}

	locationSurfaces = []string{"東京", "大阪", "京都", "北海道", "沖縄", "福岡"}

	organizationSurfaces = []string{"トヨタ", "ソニー", "任天堂", "東京大学", "NHK"}
)

// Dictionary is a gazetteer-backed Backend. It labels tokens whose exact
// surface appears in one of the built-in name sets. Intended as the
// reference backend; production deployments select the ONNX backend.
type Dictionary struct {
	entries map[string]string
	logger  *zap.Logger
}

// NewDictionary builds the gazetteer backend with the built-in name sets.
func NewDictionary(logger *zap.Logger) *Dictionary {
	entries := make(map[string]string, len(personSurfaces)+len(locationSurfaces)+len(organizationSurfaces))
	for _, s := range personSurfaces {
		entries[s] = string(pii.LabelPerson)
	}
	for _, s := range locationSurfaces {
		entries[s] = string(pii.LabelLocation)
	}
	for _, s := range organizationSurfaces {
		entries[s] = string(pii.LabelOrganization)
	}
	return &Dictionary{entries: entries, logger: logger}
}

// Infer labels tokens found in a gazetteer. Tokens with no gazetteer entry
// produce no prediction.
func (d *Dictionary) Infer(tokens []tokenize.Token) ([]Prediction, error) {
	var preds []Prediction
	for i, tok := range tokens {
		label, ok := d.entries[tok.Surface]
		if !ok {
			continue
		}
		preds = append(preds, Prediction{
			TokenIndex: i,
			Label:      label,
			Confidence: dictionaryConfidence,
		})
	}
	return preds, nil
}

// Close is a no-op; the gazetteer holds no native resources.
func (d *Dictionary) Close() error {
	return nil
}
