package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/promptopt/distiller"
	"github.com/use-agent/promptopt/llm"
	"github.com/use-agent/promptopt/models"
	"github.com/use-agent/promptopt/tokens"
	"github.com/use-agent/promptopt/translator"
)

const sunset = "Please kindly create a beautiful sunset image"

// fakeDistiller maps prompts to rewrites; prompts missing from out fail.
type fakeDistiller struct {
	out    map[string]string
	panics map[string]bool
	delay  time.Duration

	mu     sync.Mutex
	events []string
}

func (f *fakeDistiller) record(ev string) {
	f.mu.Lock()
	f.events = append(f.events, ev)
	f.mu.Unlock()
}

func (f *fakeDistiller) Distill(ctx context.Context, prompt string, _ distiller.Options) (*distiller.Result, error) {
	f.record("start:" + prompt)
	defer f.record("end:" + prompt)
	if f.panics[prompt] {
		panic("boom")
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, models.NewPipelineError(models.ErrCodeCancelled, "distillation cancelled", ctx.Err())
		}
	}
	out, ok := f.out[prompt]
	if !ok {
		return nil, models.DistillationError("failed to generate distilled prompt", nil)
	}
	return &distiller.Result{OriginalPrompt: prompt, DistilledPrompt: out, Model: "fake-model"}, nil
}

func (f *fakeDistiller) Providers() []string { return []string{"fake"} }
func (f *fakeDistiller) Model() string       { return "fake-model" }

type fixedTranslator struct {
	out string
	err error
}

func (f fixedTranslator) Translate(_ context.Context, text, source, target string) (*translator.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &translator.Result{
		OriginalText:   text,
		TranslatedText: f.out,
		SourceLanguage: translator.Normalize(source),
		TargetLanguage: translator.Normalize(target),
		Confidence:     0.9,
		Provider:       "fixed",
	}, nil
}

func (f fixedTranslator) Backends() []string { return []string{"fixed"} }

func newTestPipeline(d Distiller, tr Translator) *Pipeline {
	return New(d, tr, tokens.NewCounter(), Config{TargetLanguage: "zh", Concurrency: 3})
}

func boolPtr(b bool) *bool { return &b }

func TestProcessPromptSuccess(t *testing.T) {
	d := &fakeDistiller{out: map[string]string{sunset: "Create sunset image"}}
	p := newTestPipeline(d, fixedTranslator{out: "创建日落图像"})

	out := p.ProcessPrompt(context.Background(), sunset, Options{})
	res, ok := out.(*models.OptimizationResult)
	require.True(t, ok, "expected success, got %#v", out)

	assert.True(t, res.Success)
	assert.True(t, strings.HasPrefix(res.ID, "pipeline_"))
	assert.Equal(t, models.PromptTokens{Prompt: sunset, Tokens: 12}, res.Input)

	assert.Equal(t, "Create sunset image", res.Distillation.DistilledPrompt)
	assert.Equal(t, models.TokenStats{Stage: "distillation", InputTokens: 12, OutputTokens: 5, Reduction: 7, ReductionPercentage: 58.33}, res.Distillation.TokenStats)

	assert.Equal(t, "en", res.Translation.SourceLanguage)
	assert.Equal(t, "zh-CN", res.Translation.TargetLanguage)
	assert.Equal(t, -1, res.Translation.TokenStats.Reduction)
	assert.Equal(t, -20.0, res.Translation.TokenStats.ReductionPercentage)

	assert.Equal(t, models.OutputStage{Prompt: "创建日落图像", Tokens: 6, Language: "zh-CN"}, res.Output)

	s := res.Statistics
	assert.Equal(t, 12, s.TotalInputTokens)
	assert.Equal(t, 6, s.TotalOutputTokens)
	assert.Equal(t, s.TotalInputTokens-s.TotalOutputTokens, s.TotalTokenReduction)
	assert.Equal(t, 50.0, s.TotalTokenReductionPercentage)
	require.Len(t, s.Stages, 3)
	assert.Equal(t, []string{"input", "distillation", "translation"}, []string{s.Stages[0].Stage, s.Stages[1].Stage, s.Stages[2].Stage})
	assert.Equal(t, 12, s.Stages[0].Tokens)
	assert.Equal(t, 6, s.Stages[2].Tokens)
}

func TestProcessPromptEmptyDistillation(t *testing.T) {
	gen := emptyGen{}
	d := distiller.New(gen, nil, distiller.DefaultConfig())
	p := newTestPipeline(d, fixedTranslator{out: "x"})

	out := p.ProcessPrompt(context.Background(), sunset, Options{})
	e, ok := out.(*models.OptimizationError)
	require.True(t, ok)
	assert.False(t, e.Success)
	assert.Contains(t, e.Error, "distilled prompt")
	assert.Equal(t, models.ErrCodeDistillation, e.Code)
	assert.Equal(t, 12, e.Input.Tokens)
	assert.Equal(t, sunset, e.Input.Prompt)
}

type emptyGen struct{}

func (emptyGen) Name() string { return "empty" }
func (emptyGen) Generate(context.Context, *llm.GenerateRequest) (*llm.GenerateResult, error) {
	return &llm.GenerateResult{Text: ""}, nil
}

func TestTranslationFailureIsNotFatal(t *testing.T) {
	d := &fakeDistiller{out: map[string]string{sunset: "Create sunset image"}}
	tr := fixedTranslator{err: models.TranslationError("all translation backends failed", errors.New("down"))}
	p := newTestPipeline(d, tr)

	out := p.ProcessPrompt(context.Background(), sunset, Options{})
	res, ok := out.(*models.OptimizationResult)
	require.True(t, ok)
	assert.LessOrEqual(t, res.Translation.Confidence, 0.5)
	assert.Equal(t, "Create sunset image", res.Translation.TranslatedText)
	assert.NotEmpty(t, res.Translation.TranslatedText)
	assert.Equal(t, "en", res.Output.Language)
	assert.Equal(t, 0, res.Translation.TokenStats.Reduction)
}

func TestNilTranslatorFallsBack(t *testing.T) {
	d := &fakeDistiller{out: map[string]string{sunset: "Create sunset image"}}
	p := New(d, nil, tokens.NewCounter(), Config{})

	res, ok := p.ProcessPrompt(context.Background(), sunset, Options{}).(*models.OptimizationResult)
	require.True(t, ok)
	assert.Equal(t, translator.ConfidenceFallback, res.Translation.Confidence)
	assert.Equal(t, "degraded", p.Health().Status)
}

func TestTranslationSkipped(t *testing.T) {
	d := &fakeDistiller{out: map[string]string{sunset: "Create sunset image"}}
	p := newTestPipeline(d, fixedTranslator{out: "never used"})

	res, ok := p.ProcessPrompt(context.Background(), sunset, Options{Translate: boolPtr(false)}).(*models.OptimizationResult)
	require.True(t, ok)
	tr := res.Translation
	assert.Equal(t, tr.SourceLanguage, tr.TargetLanguage)
	assert.Equal(t, 0, tr.TokenStats.Reduction)
	assert.Equal(t, 1.0, tr.Confidence)
	assert.Equal(t, "Create sunset image", res.Output.Prompt)
	require.Len(t, res.Statistics.Stages, 3)
	assert.Equal(t, "translation", res.Statistics.Stages[2].Stage)
}

func TestZeroInputTokens(t *testing.T) {
	d := &fakeDistiller{out: map[string]string{"": "x"}}
	p := newTestPipeline(d, fixedTranslator{out: "x"})

	res, ok := p.ProcessPrompt(context.Background(), "", Options{Translate: boolPtr(false)}).(*models.OptimizationResult)
	require.True(t, ok)
	assert.Equal(t, 0, res.Statistics.TotalInputTokens)
	assert.Equal(t, -1, res.Statistics.TotalTokenReduction)
	assert.Equal(t, 0.0, res.Statistics.TotalTokenReductionPercentage)
}

func TestCancelledRun(t *testing.T) {
	d := &fakeDistiller{out: map[string]string{sunset: "x"}, delay: time.Second}
	p := newTestPipeline(d, fixedTranslator{out: "x"})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	e, ok := p.ProcessPrompt(ctx, sunset, Options{}).(*models.OptimizationError)
	require.True(t, ok)
	assert.Equal(t, models.ErrCodeCancelled, e.Code)
	assert.Equal(t, 12, e.Input.Tokens)
}

func TestRunTimeout(t *testing.T) {
	d := &fakeDistiller{out: map[string]string{sunset: "x"}, delay: time.Second}
	p := New(d, fixedTranslator{out: "x"}, tokens.NewCounter(), Config{Timeout: 20 * time.Millisecond})

	e, ok := p.ProcessPrompt(context.Background(), sunset, Options{}).(*models.OptimizationError)
	require.True(t, ok)
	assert.Equal(t, models.ErrCodeCancelled, e.Code)
}

func TestBatchChunksAndPartition(t *testing.T) {
	d := &fakeDistiller{out: map[string]string{"a": "A", "c": "C"}, delay: 10 * time.Millisecond}
	p := newTestPipeline(d, fixedTranslator{out: "译"})

	res := p.ProcessBatch(context.Background(), []string{"a", "b", "c"}, Options{}, 2)

	require.Len(t, res.Results, 3)
	assert.Equal(t, 3, res.TotalPrompts)
	assert.Equal(t, 2, res.Successful)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, res.TotalPrompts, res.Successful+res.Failed)

	seen := map[string]bool{}
	for i, o := range res.Results {
		assert.Equal(t, ItemID(res.BatchID, i), o.RunID())
		assert.True(t, strings.HasPrefix(o.RunID(), res.BatchID+"_"))
		assert.False(t, seen[o.RunID()])
		seen[o.RunID()] = true
	}
	assert.False(t, res.Results[1].Succeeded())

	// Chunk [a,b] settles before c starts.
	idx := func(ev string) int {
		for i, e := range d.events {
			if e == ev {
				return i
			}
		}
		return -1
	}
	assert.Greater(t, idx("start:c"), idx("end:a"))
	assert.Greater(t, idx("start:c"), idx("end:b"))
}

func TestBatchStatistics(t *testing.T) {
	d := &fakeDistiller{out: map[string]string{sunset: "Create sunset image"}}
	p := newTestPipeline(d, fixedTranslator{out: "创建日落图像"})

	res := p.ProcessBatch(context.Background(), []string{sunset, sunset, "unknown"}, Options{}, 0)
	assert.Equal(t, 2, res.Successful)
	assert.Equal(t, 12, res.Statistics.TotalTokenReduction)
	assert.Equal(t, 6.0, res.Statistics.AverageTokenReduction)
	assert.InDelta(t, float64(res.Statistics.TotalProcessingTime)/3, res.Statistics.AverageProcessingTime, 1e-9)
}

func TestBatchAllFailed(t *testing.T) {
	p := newTestPipeline(&fakeDistiller{}, fixedTranslator{out: "x"})
	res := p.ProcessBatch(context.Background(), []string{"x", "y"}, Options{}, 5)
	assert.Equal(t, 0, res.Successful)
	assert.Equal(t, 2, res.Failed)
	assert.Equal(t, 0.0, res.Statistics.AverageTokenReduction)
}

func TestBatchEmpty(t *testing.T) {
	p := newTestPipeline(&fakeDistiller{}, fixedTranslator{})
	res := p.ProcessBatch(context.Background(), nil, Options{}, 2)
	assert.Equal(t, 0, res.TotalPrompts)
	assert.Empty(t, res.Results)
	assert.Equal(t, 0.0, res.Statistics.AverageProcessingTime)
}

func TestBatchRecoversPanics(t *testing.T) {
	d := &fakeDistiller{out: map[string]string{"ok": "OK"}, panics: map[string]bool{"bad": true}}
	p := newTestPipeline(d, fixedTranslator{out: "x"})

	res := p.ProcessBatch(context.Background(), []string{"ok", "bad", "ok"}, Options{}, 3)
	require.Len(t, res.Results, 3)
	assert.Equal(t, 2, res.Successful)
	e, ok := res.Results[1].(*models.OptimizationError)
	require.True(t, ok)
	assert.Equal(t, models.ErrCodeInternal, e.Code)
	assert.Contains(t, e.Error, "boom")
}

func TestBatchCancelledContext(t *testing.T) {
	d := &fakeDistiller{out: map[string]string{"a": "A", "b": "B"}}
	p := newTestPipeline(d, fixedTranslator{out: "x"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := p.ProcessBatch(ctx, []string{"a", "b"}, Options{}, 1)
	assert.Equal(t, 2, res.Failed)
	for _, o := range res.Results {
		assert.Equal(t, models.ErrCodeCancelled, o.(*models.OptimizationError).Code)
	}
}

type countingObserver struct {
	mu     sync.Mutex
	stages []string
	runs   int
}

func (c *countingObserver) ObserveStage(stage string, _ time.Duration) {
	c.mu.Lock()
	c.stages = append(c.stages, stage)
	c.mu.Unlock()
}

func (c *countingObserver) ObserveRun(models.Outcome) {
	c.mu.Lock()
	c.runs++
	c.mu.Unlock()
}

func TestObserver(t *testing.T) {
	obs := &countingObserver{}
	d := &fakeDistiller{out: map[string]string{"a": "A"}}
	p := New(d, fixedTranslator{out: "x"}, tokens.NewCounter(), Config{}, WithObserver(obs))

	p.ProcessPrompt(context.Background(), "a", Options{})
	assert.Equal(t, []string{"distillation", "translation"}, obs.stages)
	assert.Equal(t, 1, obs.runs)
}

func TestHealth(t *testing.T) {
	p := New(&fakeDistiller{}, fixedTranslator{}, tokens.NewCounter(), Config{TargetLanguage: "ja"})
	h := p.Health()
	assert.Equal(t, "healthy", h.Status)
	assert.Equal(t, []string{"fake"}, h.Distillers)
	assert.Equal(t, []string{"fixed"}, h.Translators)
	assert.Equal(t, []string{"estimate"}, h.TokenCounters)
	assert.Equal(t, "fake-model", h.DefaultModel)
	assert.Equal(t, "ja", h.TargetLanguage)
	assert.Equal(t, 3, h.Concurrency)
}

func TestConfigMerge(t *testing.T) {
	base := DefaultConfig()
	merged := base.Merge(Config{Concurrency: 5})
	assert.Equal(t, 5, merged.Concurrency)
	assert.Equal(t, "zh", merged.TargetLanguage)
	assert.Equal(t, 30*time.Second, merged.Timeout)
}
