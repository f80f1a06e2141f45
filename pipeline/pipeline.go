// Package pipeline sequences distillation and translation for a prompt and
// assembles token statistics for the run.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/use-agent/promptopt/distiller"
	"github.com/use-agent/promptopt/models"
	"github.com/use-agent/promptopt/tokens"
	"github.com/use-agent/promptopt/translator"
)

// Distiller rewrites a prompt into a shorter one.
type Distiller interface {
	Distill(ctx context.Context, prompt string, opts distiller.Options) (*distiller.Result, error)
}

// Translator converts text between languages.
type Translator interface {
	Translate(ctx context.Context, text, source, target string) (*translator.Result, error)
}

// TokenCounter counts tokens and never fails.
type TokenCounter interface {
	Count(ctx context.Context, text string) int
}

// Observer is notified about finished stages and runs.
type Observer interface {
	ObserveStage(stage string, d time.Duration)
	ObserveRun(o models.Outcome)
}

// Config holds pipeline-wide defaults.
type Config struct {
	// TargetLanguage is used when translation is on and Options names none.
	TargetLanguage string // default: "zh"

	// Concurrency is the batch chunk size when the caller passes none.
	Concurrency int // default: 3

	// Timeout bounds a single run. Zero means no bound.
	Timeout time.Duration
}

// DefaultConfig returns the stock pipeline settings.
func DefaultConfig() Config {
	return Config{TargetLanguage: "zh", Concurrency: 3, Timeout: 30 * time.Second}
}

// Merge returns c with every non-zero field of o applied on top.
func (c Config) Merge(o Config) Config {
	if o.TargetLanguage != "" {
		c.TargetLanguage = o.TargetLanguage
	}
	if o.Concurrency > 0 {
		c.Concurrency = o.Concurrency
	}
	if o.Timeout > 0 {
		c.Timeout = o.Timeout
	}
	return c
}

// Options control one run.
type Options struct {
	Model       string
	Temperature *float64
	MaxTokens   int
	Strategy    string

	// Translate toggles the translation stage. nil means on.
	Translate *bool

	// TargetLanguage overrides Config.TargetLanguage.
	TargetLanguage string

	// SourceLanguage is detected from the text when empty.
	SourceLanguage string
}

// Pipeline runs prompts through distill, translate and assemble.
type Pipeline struct {
	distiller  Distiller
	translator Translator
	counter    TokenCounter
	observer   Observer
	cfg        Config
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithObserver registers an Observer.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) { p.observer = o }
}

// New creates a Pipeline. tr may be nil, in which case every enabled
// translation falls back to the identity pass-through.
func New(d Distiller, tr Translator, counter TokenCounter, cfg Config, opts ...Option) *Pipeline {
	cfg = DefaultConfig().Merge(cfg)
	p := &Pipeline{distiller: d, translator: tr, counter: counter, cfg: cfg}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Config returns the effective configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// ProcessPrompt runs one prompt and returns *models.OptimizationResult or
// *models.OptimizationError. Only distillation failure and cancellation
// produce an error; translation and token counting degrade instead.
func (p *Pipeline) ProcessPrompt(ctx context.Context, prompt string, opts Options) models.Outcome {
	return p.safeProcess(ctx, newID("pipeline_"), prompt, opts)
}

func (p *Pipeline) safeProcess(ctx context.Context, id, prompt string, opts Options) (out models.Outcome) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("prompt processing panicked", "run_id", id, "panic", r)
			out = &models.OptimizationError{
				ID:               id,
				Error:            fmt.Sprintf("internal error: %v", r),
				Code:             models.ErrCodeInternal,
				Timestamp:        time.Now().UTC(),
				ProcessingTimeMs: time.Since(start).Milliseconds(),
				Input:            models.PromptTokens{Prompt: prompt, Tokens: tokens.Estimate(prompt)},
			}
		}
		if p.observer != nil {
			p.observer.ObserveRun(out)
		}
	}()
	return p.process(ctx, id, prompt, opts)
}

func (p *Pipeline) process(ctx context.Context, id, prompt string, opts Options) models.Outcome {
	start := time.Now()
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	inputTokens := p.counter.Count(ctx, prompt)
	fail := func(err error) models.Outcome {
		pe := models.AsPipelineError(err)
		if ctx.Err() != nil && pe.Code != models.ErrCodeCancelled {
			pe = models.NewPipelineError(models.ErrCodeCancelled, "run cancelled", err)
		}
		slog.Warn("pipeline run failed", "run_id", id, "code", pe.Code, "error", err)
		return &models.OptimizationError{
			ID:               id,
			Error:            errorMessage(pe),
			Code:             pe.Code,
			Timestamp:        time.Now().UTC(),
			ProcessingTimeMs: time.Since(start).Milliseconds(),
			Input:            models.PromptTokens{Prompt: prompt, Tokens: inputTokens},
		}
	}
	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	// ── Distill ─────────────────────────────────────────────────────
	stageStart := time.Now()
	dres, err := p.distiller.Distill(ctx, prompt, distiller.Options{
		Model:       opts.Model,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Strategy:    opts.Strategy,
	})
	distillDur := time.Since(stageStart)
	p.observeStage(models.StageDistillation, distillDur)
	if err != nil {
		return fail(err)
	}
	distilledTokens := p.counter.Count(ctx, dres.DistilledPrompt)

	// ── Translate (never fatal) ─────────────────────────────────────
	stageStart = time.Now()
	tres, note := p.translate(ctx, id, dres.DistilledPrompt, opts)
	translateDur := time.Since(stageStart)
	p.observeStage(models.StageTranslation, translateDur)
	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	finalTokens := distilledTokens
	if tres.TranslatedText != dres.DistilledPrompt {
		finalTokens = p.counter.Count(ctx, tres.TranslatedText)
	}

	// ── Assemble ────────────────────────────────────────────────────
	distillStats := tokens.Stats(models.StageDistillation, inputTokens, distilledTokens)
	translateStats := tokens.Stats(models.StageTranslation, distilledTokens, finalTokens)
	reduction := inputTokens - finalTokens

	outputLang := tres.TargetLanguage
	if tres.Provider == providerFallback {
		outputLang = tres.SourceLanguage
	}

	return &models.OptimizationResult{
		ID:               id,
		Success:          true,
		Timestamp:        time.Now().UTC(),
		ProcessingTimeMs: time.Since(start).Milliseconds(),
		Input:            models.PromptTokens{Prompt: prompt, Tokens: inputTokens},
		Distillation: models.DistillationStage{
			OriginalPrompt:  dres.OriginalPrompt,
			DistilledPrompt: dres.DistilledPrompt,
			Model:           dres.Model,
			Usage:           dres.Usage,
			TokenStats:      distillStats,
		},
		Translation: models.TranslationStage{
			OriginalText:   tres.OriginalText,
			TranslatedText: tres.TranslatedText,
			SourceLanguage: tres.SourceLanguage,
			TargetLanguage: tres.TargetLanguage,
			Confidence:     tres.Confidence,
			Provider:       tres.Provider,
			TokenStats:     translateStats,
		},
		Output: models.OutputStage{
			Prompt:   tres.TranslatedText,
			Tokens:   finalTokens,
			Language: outputLang,
		},
		Statistics: models.Statistics{
			TotalInputTokens:              inputTokens,
			TotalOutputTokens:             finalTokens,
			TotalTokenReduction:           reduction,
			TotalTokenReductionPercentage: tokens.Percent(reduction, inputTokens, 1),
			Stages: []models.StageSummary{
				{
					Stage:       models.StageInput,
					Tokens:      inputTokens,
					Description: "original prompt",
				},
				{
					Stage:               models.StageDistillation,
					Tokens:              distilledTokens,
					Reduction:           distillStats.Reduction,
					ReductionPercentage: distillStats.ReductionPercentage,
					Description:         "distilled with " + dres.Model,
					DurationMs:          distillDur.Milliseconds(),
				},
				{
					Stage:               models.StageTranslation,
					Tokens:              finalTokens,
					Reduction:           translateStats.Reduction,
					ReductionPercentage: translateStats.ReductionPercentage,
					Description:         note,
					DurationMs:          translateDur.Milliseconds(),
				},
			},
		},
	}
}

const providerFallback = "fallback"

// translate runs the translation stage and describes what happened.
func (p *Pipeline) translate(ctx context.Context, id, text string, opts Options) (*translator.Result, string) {
	source := opts.SourceLanguage
	if source == "" || source == "auto" {
		source = translator.DetectLanguage(text)
	}
	source = translator.Normalize(source)

	if opts.Translate != nil && !*opts.Translate {
		return translator.Identity(text, source, source, translator.ConfidenceIdentity, translator.ProviderNone), "translation skipped"
	}

	target := opts.TargetLanguage
	if target == "" {
		target = p.cfg.TargetLanguage
	}
	target = translator.Normalize(target)

	if p.translator == nil {
		return translator.Identity(text, source, target, translator.ConfidenceFallback, providerFallback),
			"no translator configured; original text kept"
	}

	res, err := p.translator.Translate(ctx, text, source, target)
	if err != nil {
		slog.Warn("translation failed, keeping distilled text", "run_id", id, "target", target, "error", err)
		return translator.Identity(text, source, target, translator.ConfidenceFallback, providerFallback),
			"translation failed; original text kept"
	}
	if res.SourceLanguage == res.TargetLanguage {
		return res, "already in " + res.TargetLanguage
	}
	return res, fmt.Sprintf("translated %s to %s via %s", res.SourceLanguage, res.TargetLanguage, res.Provider)
}

func (p *Pipeline) observeStage(stage string, d time.Duration) {
	if p.observer != nil {
		p.observer.ObserveStage(stage, d)
	}
}

func errorMessage(pe *models.PipelineError) string {
	if pe.Err != nil && pe.Err.Error() != pe.Message {
		return fmt.Sprintf("%s: %v", pe.Message, pe.Err)
	}
	return pe.Message
}

// newID returns prefix followed by a time-ordered UUID.
func newID(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		return prefix + uuid.NewString()
	}
	return prefix + id.String()
}
