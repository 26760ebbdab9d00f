//go:build onnx
// +build onnx

package ner

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"

	"github.com/kagemask/kagemask/internal/config"
	"github.com/kagemask/kagemask/internal/pii"
	"github.com/kagemask/kagemask/internal/tokenize"
)

// classLabels is the classification head order the model was exported with.
// Index 0 must be the outside label.
var classLabels = []string{
	string(pii.LabelOutside),
	string(pii.LabelPerson),
	string(pii.LabelLocation),
	string(pii.LabelOrganization),
}

// ONNX implements Backend using a token-classification model run through
// ONNX Runtime (via yalue/onnxruntime_go). One inference per call: tokens
// map 1:1 to model positions, so prediction indices line up with the input
// slice without offset bookkeeping.
type ONNX struct {
	session    *ort.DynamicAdvancedSession
	inputNames []string
	outputName string
	vocab      map[string]int64
	unkID      int64
	maxSeq     int
	logger     *zap.Logger
	mu         sync.Mutex
}

// NewONNX initializes the ONNX Runtime backend. Requires build tag 'onnx'.
func NewONNX(cfg *config.Config, logger *zap.Logger) (Backend, error) {
	modelPath := cfg.NER.ModelPath
	if _, err := os.Stat(modelPath); err != nil {
		return nil, pii.NewModelLoadError(modelPath, err)
	}

	vocab, err := loadVocab(cfg.NER.VocabPath)
	if err != nil {
		return nil, pii.NewModelLoadError(cfg.NER.VocabPath, err)
	}
	unkID, ok := vocab["[UNK]"]
	if !ok {
		return nil, pii.NewModelLoadError(cfg.NER.VocabPath, fmt.Errorf("vocab has no [UNK] entry"))
	}

	// Allow user to provide shared library path via environment variable.
	if shlib := os.Getenv("ONNXRUNTIME_SHARED_LIB"); shlib != "" {
		ort.SetSharedLibraryPath(shlib)
	} else if shlib := os.Getenv("ORT_SHLIB"); shlib != "" {
		ort.SetSharedLibraryPath(shlib)
	}

	if err := ort.InitializeEnvironment(); err != nil {
		return nil, pii.NewModelLoadError(modelPath, fmt.Errorf("onnx runtime init: %w", err))
	}

	// Inspect model IO to determine names
	inputsInfo, outputsInfo, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, pii.NewModelLoadError(modelPath, fmt.Errorf("inspect model io: %w", err))
	}

	// Prefer common transformer inputs order
	preferredInputs := []string{"input_ids", "attention_mask", "token_type_ids"}
	available := map[string]bool{}
	for _, ii := range inputsInfo {
		available[strings.ToLower(ii.Name)] = true
	}
	var inputNames []string
	for _, name := range preferredInputs {
		if available[name] {
			inputNames = append(inputNames, name)
		}
	}
	// If no preferred names matched, fall back to model-declared order
	if len(inputNames) == 0 && len(inputsInfo) > 0 {
		sorted := make([]string, 0, len(inputsInfo))
		for _, ii := range inputsInfo {
			sorted = append(sorted, ii.Name)
		}
		sort.Strings(sorted)
		inputNames = sorted
	}

	if len(outputsInfo) == 0 {
		return nil, pii.NewModelLoadError(modelPath, fmt.Errorf("model reports no outputs"))
	}
	outputName := outputsInfo[0].Name

	var opts *ort.SessionOptions
	if cfg.NER.IntraOpThreads > 0 {
		opts, err = ort.NewSessionOptions()
		if err != nil {
			return nil, pii.NewModelLoadError(modelPath, fmt.Errorf("session options: %w", err))
		}
		defer opts.Destroy()
		if err := opts.SetIntraOpNumThreads(cfg.NER.IntraOpThreads); err != nil {
			return nil, pii.NewModelLoadError(modelPath, fmt.Errorf("set intra-op threads: %w", err))
		}
	}

	sess, err := ort.NewDynamicAdvancedSession(modelPath, inputNames, []string{outputName}, opts)
	if err != nil {
		return nil, pii.NewModelLoadError(modelPath, fmt.Errorf("create session: %w", err))
	}

	logger.Info("ONNX Runtime backend ready",
		zap.String("model", modelPath),
		zap.Strings("inputs", inputNames),
		zap.String("output", outputName),
		zap.Int("vocab_size", len(vocab)))

	return &ONNX{
		session:    sess,
		inputNames: inputNames,
		outputName: outputName,
		vocab:      vocab,
		unkID:      unkID,
		maxSeq:     cfg.NER.MaxSequenceLength,
		logger:     logger,
	}, nil
}

// loadVocab reads a BERT-style vocab file: one token per line, the line
// number is the token ID.
func loadVocab(path string) (map[string]int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	vocab := make(map[string]int64)
	scanner := bufio.NewScanner(f)
	var id int64
	for scanner.Scan() {
		token := strings.TrimRight(scanner.Text(), "\r\n")
		if token != "" {
			vocab[token] = id
		}
		id++
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(vocab) == 0 {
		return nil, fmt.Errorf("vocab file is empty")
	}
	return vocab, nil
}

// Infer runs one token-classification pass. Tokens beyond the configured
// maximum sequence length are not classified.
func (b *ONNX) Infer(tokens []tokenize.Token) ([]Prediction, error) {
	if len(tokens) == 0 {
		return nil, nil
	}
	seqLen := len(tokens)
	if b.maxSeq > 0 && seqLen > b.maxSeq {
		seqLen = b.maxSeq
	}

	inputIDs := make([]int64, seqLen)
	attention := make([]int64, seqLen)
	for i := 0; i < seqLen; i++ {
		id, ok := b.vocab[tokens[i].Surface]
		if !ok {
			id = b.unkID
		}
		inputIDs[i] = id
		attention[i] = 1
	}

	shape := ort.NewShape(1, int64(seqLen))
	idsTensor, err := ort.NewTensor[int64](shape, inputIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	defer idsTensor.Destroy()
	maskTensor, err := ort.NewTensor[int64](shape, attention)
	if err != nil {
		return nil, fmt.Errorf("failed to create attention_mask tensor: %w", err)
	}
	defer maskTensor.Destroy()

	inputs := make([]ort.Value, 0, len(b.inputNames))
	for _, rawName := range b.inputNames {
		name := strings.ToLower(rawName)
		switch {
		case strings.Contains(name, "ids") && !strings.Contains(name, "token_type"):
			inputs = append(inputs, idsTensor)
		case strings.Contains(name, "attention") || strings.Contains(name, "mask"):
			inputs = append(inputs, maskTensor)
		default:
			// token_type_ids or an unrecognized input: feed zeros
			zeros, zerr := ort.NewTensor[int64](shape, make([]int64, seqLen))
			if zerr != nil {
				return nil, fmt.Errorf("failed to create placeholder tensor for %s: %w", rawName, zerr)
			}
			defer zeros.Destroy()
			inputs = append(inputs, zeros)
		}
	}

	// One output; let ORT allocate it. Sessions are not safe for
	// concurrent Run calls.
	outputs := make([]ort.Value, 1)
	b.mu.Lock()
	err = b.session.Run(inputs, outputs)
	b.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("onnx run failed: %w", err)
	}
	if len(outputs) == 0 || outputs[0] == nil {
		return nil, fmt.Errorf("onnx returned no outputs")
	}
	defer func() {
		if outputs[0] != nil {
			_ = outputs[0].Destroy()
		}
	}()

	outTensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output type (want float32 tensor)")
	}
	logits := outTensor.GetData()
	outShape := outTensor.GetShape()
	if len(outShape) != 3 {
		return nil, fmt.Errorf("unexpected output shape %v (want [batch, seq, labels])", outShape)
	}
	outSeq := int(outShape[1])
	numLabels := int(outShape[2])
	if numLabels != len(classLabels) {
		return nil, fmt.Errorf("model emits %d labels (want %d)", numLabels, len(classLabels))
	}
	if len(logits) != outSeq*numLabels {
		return nil, fmt.Errorf("unexpected flat data length %d for shape %v", len(logits), outShape)
	}

	limit := seqLen
	if outSeq < limit {
		limit = outSeq
	}

	var preds []Prediction
	for i := 0; i < limit; i++ {
		off := i * numLabels
		bestIdx := 0
		best := logits[off]
		for j := 1; j < numLabels; j++ {
			if logits[off+j] > best {
				best = logits[off+j]
				bestIdx = j
			}
		}
		if classLabels[bestIdx] == string(pii.LabelOutside) {
			continue
		}
		// Softmax probability of the argmax class
		var sum float64
		for j := 0; j < numLabels; j++ {
			sum += math.Exp(float64(logits[off+j] - best))
		}
		preds = append(preds, Prediction{
			TokenIndex: i,
			Label:      classLabels[bestIdx],
			Confidence: 1.0 / sum,
		})
	}
	return preds, nil
}

// Close releases session and environment resources.
func (b *ONNX) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session != nil {
		b.session.Destroy()
		b.session = nil
	}
	ort.DestroyEnvironment()
	return nil
}
