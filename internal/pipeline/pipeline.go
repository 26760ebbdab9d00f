package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kagemask/kagemask/internal/cache"
	"github.com/kagemask/kagemask/internal/config"
	"github.com/kagemask/kagemask/internal/events"
	"github.com/kagemask/kagemask/internal/logger"
	"github.com/kagemask/kagemask/internal/ner"
	"github.com/kagemask/kagemask/internal/pii"
	"github.com/kagemask/kagemask/internal/privacy"
	"github.com/kagemask/kagemask/internal/risk"
	"github.com/kagemask/kagemask/internal/tokenize"
)

// Pipeline orchestrates the masking stages in a fixed order: cache lookup,
// validation, regex detection on the raw text, tokenization of the
// regex-masked text, NER over the tokens, merge, rewrite, risk scoring.
// All shared state is read-only after construction, so concurrent Mask
// calls need no coordination.
type Pipeline struct {
	cfg       *config.Config
	log       *logger.Logger
	validator *Validator
	regex     *privacy.Detector
	tokenizer tokenize.Tokenizer
	ner       *ner.Detector
	scorer    *risk.Scorer

	cache     cache.ResultCache
	publisher *events.Publisher
	hub       *events.Hub
}

// Sinks are the optional fire-and-forget destinations a pipeline feeds
// after each uncached run. Any of them may be nil.
type Sinks struct {
	Cache     cache.ResultCache
	Publisher *events.Publisher
	Hub       *events.Hub
}

// New assembles a pipeline from configuration. Pattern and dictionary
// loading happen here; a missing patterns file or model is a construction
// error, never a per-request one.
func New(cfg *config.Config, log *logger.Logger, sinks Sinks) (*Pipeline, error) {
	regexDetector, err := privacy.New(cfg, log.WithComponent("privacy"))
	if err != nil {
		return nil, err
	}

	tokenizer, err := tokenize.New(tokenize.Backend(cfg.Tokenizer.Backend), cfg.Pipeline.MaskToken, log.WithComponent("tokenize").Logger)
	if err != nil {
		return nil, err
	}

	nerDetector, err := ner.New(cfg, log.WithComponent("ner").Logger)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		cfg:       cfg,
		log:       log,
		validator: NewValidator(cfg.Pipeline),
		regex:     regexDetector,
		tokenizer: tokenizer,
		ner:       nerDetector,
		scorer:    risk.New(cfg.Risk),
		cache:     sinks.Cache,
		publisher: sinks.Publisher,
		hub:       sinks.Hub,
	}, nil
}

// Mask runs the full pipeline over text. The cache fast path returns
// before validation; a corrupt cache entry is surfaced as a CacheError
// rather than recomputed over. Cache stores and telemetry run detached
// after the result is final, and their failures never reach the caller.
func (p *Pipeline) Mask(ctx context.Context, text string) (*pii.MaskingResult, error) {
	pctx := newProcessingContext(text)
	key := cache.Fingerprint(text, p.cfg.Cache.KeyPrefix)

	if p.cache != nil {
		cached, err := p.cache.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if cached != nil {
			p.log.Debug("Cache hit", zap.String("fingerprint", key))
			return cached, nil
		}
	}

	if err := p.validator.Validate(text); err != nil {
		return nil, err
	}

	pctx.RegexEntities, pctx.RegexMasked = p.regex.Detect(text)
	pctx.RegexTypes = privacy.MatchedTypes(pctx.RegexEntities)

	tokens, err := p.tokenizer.Tokenize(pctx.RegexMasked)
	if err != nil {
		return nil, err
	}
	pctx.Tokens = tokens

	nerEntities, err := p.ner.Detect(tokens)
	if err != nil {
		return nil, err
	}
	pctx.NEREntities = nerEntities

	merged, surviving := mergeEntities(pctx.RegexEntities, pctx.NEREntities)
	pctx.Merged = merged

	maskedText, err := rewriteMasked(pctx.RegexMasked, pctx.NEREntities, p.cfg.Pipeline.MaskToken)
	if err != nil {
		return nil, err
	}
	pctx.MaskedText = maskedText

	pctx.RiskScore = p.scorer.Score(pctx.RegexEntities, surviving, pctx.RegexTypes)
	pctx.Metrics = p.scorer.Metrics(pctx.RegexEntities, surviving, pctx.RegexTypes, pctx.TextBytes)

	result := &pii.MaskingResult{
		MaskedText: pctx.MaskedText,
		Entities:   pctx.Merged,
		RiskScore:  pctx.RiskScore,
		Cached:     false,
	}

	p.log.Debug("Masking completed",
		zap.String("fingerprint", key),
		zap.Int("entities", len(result.Entities)),
		zap.Float64("risk_score", result.RiskScore),
		zap.Duration("duration", time.Since(pctx.StartedAt)))

	p.dispatch(key, result, pctx)

	return result, nil
}

// dispatch stores the result and emits telemetry without blocking the
// request. Each destination gets its own bounded context; failures are
// logged and dropped.
func (p *Pipeline) dispatch(key string, result *pii.MaskingResult, pctx *ProcessingContext) {
	if p.cache != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), p.cfg.Cache.OpTimeout)
			defer cancel()
			if err := p.cache.Set(ctx, key, result, p.cfg.Cache.TTL); err != nil {
				p.log.Warn("Cache store failed", zap.Error(err))
			}
		}()
	}

	if p.publisher == nil && p.hub == nil {
		return
	}

	event := events.MaskingEvent{
		Fingerprint: key,
		MaskedText:  result.MaskedText,
		RiskScore:   result.RiskScore,
		RegexTypes:  pctx.RegexTypes,
		Metrics:     pctx.Metrics,
		DurationMS:  float64(time.Since(pctx.StartedAt).Microseconds()) / 1000.0,
		Timestamp:   time.Now(),
	}

	if p.publisher != nil {
		go func() {
			if err := p.publisher.Publish(context.Background(), event); err != nil {
				p.log.Warn("Risk queue publish failed", zap.Error(err))
			}
		}()
	}
	if p.hub != nil {
		p.hub.BroadcastMasking(event)
	}
}

// PatternNames exposes the loaded regex pattern names, mainly for startup
// logging and the health endpoint.
func (p *Pipeline) PatternNames() []string {
	return p.regex.PatternNames()
}

// Close releases detector resources such as the ONNX session.
func (p *Pipeline) Close() error {
	return p.ner.Close()
}
