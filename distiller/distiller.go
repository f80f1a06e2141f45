// Package distiller rewrites prompts into shorter equivalents through a
// text-generation model.
package distiller

import (
	"context"
	"errors"
	"strings"

	"github.com/use-agent/promptopt/llm"
	"github.com/use-agent/promptopt/models"
)

// Defaults used when Options leaves a field unset.
const (
	DefaultModel       = "claude-3-haiku-20240307"
	DefaultTemperature = 0.3
	DefaultMaxTokens   = 1000
)

const instruction = `You rewrite prompts for AI models so they use as few tokens as possible without losing meaning.

Remove:
- Politeness and pleasantries ("please kindly", "I would be grateful if", "could you", "thank you in advance").
- Hedged openers ("I would like", "I was wondering if you could").
- Stacked intensifiers. Keep at most one descriptor where several say the same thing ("absolutely stunning and incredibly beautiful" becomes "beautiful").
- Sentences that carry no requirement, such as closing thanks.

Keep:
- Every concrete requirement: subject, constraints, quantities, formats, styles, resolutions.
- Technical terms and named entities exactly as written.
- The original language of the prompt.

Prefer terse forms: "The resolution should be 8K" becomes "8K resolution"; lists of descriptors become comma-separated.

Output only the rewritten prompt. No preamble, quotes, explanations or notes.`

var strategyHints = map[string]string{
	models.StrategyConcise:      "Favor the shortest phrasing that keeps every requirement.",
	models.StrategyCreative:     "Keep evocative imagery that shapes the result; cut only filler.",
	models.StrategyTechnical:    "Preserve every parameter, unit, version and identifier verbatim.",
	models.StrategyMultilingual: "Use plain, unambiguous wording that translates cleanly.",
}

// Instruction returns the system instruction for a strategy. Unknown or
// empty strategies get the base instruction.
func Instruction(strategy string) string {
	if hint, ok := strategyHints[strategy]; ok {
		return instruction + "\n\n" + hint
	}
	return instruction
}

// Options are per-call overrides. Zero values select the defaults.
type Options struct {
	Model       string
	Temperature *float64
	MaxTokens   int
	Strategy    string
}

// Result is one distillation.
type Result struct {
	OriginalPrompt  string
	DistilledPrompt string
	Model           string
	Usage           models.Usage
}

// Preprocessor prepares raw prompt text before it is sent.
type Preprocessor interface {
	Prompt(text string) string
}

// Config holds the defaults a Distiller applies. Temperature is used as
// given; start from DefaultConfig to get 0.3.
type Config struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// DefaultConfig returns the low-cost model at temperature 0.3.
func DefaultConfig() Config {
	return Config{Model: DefaultModel, Temperature: DefaultTemperature, MaxTokens: DefaultMaxTokens}
}

// Distiller sends prompts to a Generator with a fixed rewriting policy.
type Distiller struct {
	gen llm.Generator
	pre Preprocessor
	cfg Config
}

// New creates a Distiller. pre may be nil to send prompts unchanged.
func New(gen llm.Generator, pre Preprocessor, cfg Config) *Distiller {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	return &Distiller{gen: gen, pre: pre, cfg: cfg}
}

// Model returns the model used when Options.Model is empty.
func (d *Distiller) Model() string { return d.cfg.Model }

// Distill rewrites prompt. It fails with a DISTILLATION_FAILED error when
// the model call fails or returns no text. There are no retries here.
func (d *Distiller) Distill(ctx context.Context, prompt string, opts Options) (*Result, error) {
	req := &llm.GenerateRequest{
		System:      Instruction(opts.Strategy),
		Prompt:      prompt,
		Model:       d.cfg.Model,
		Temperature: d.cfg.Temperature,
		MaxTokens:   d.cfg.MaxTokens,
	}
	if opts.Model != "" {
		req.Model = opts.Model
	}
	if opts.Temperature != nil {
		req.Temperature = *opts.Temperature
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = opts.MaxTokens
	}
	if d.pre != nil {
		if p := d.pre.Prompt(prompt); p != "" {
			req.Prompt = p
		}
	}

	res, err := d.gen.Generate(ctx, req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return nil, models.NewPipelineError(models.ErrCodeCancelled, "distillation cancelled", err)
		}
		return nil, models.DistillationError("distillation request failed", err)
	}

	distilled := strings.TrimSpace(res.Text)
	if distilled == "" {
		return nil, models.DistillationError("failed to generate distilled prompt", nil)
	}

	model := res.Model
	if model == "" {
		model = req.Model
	}
	return &Result{
		OriginalPrompt:  prompt,
		DistilledPrompt: distilled,
		Model:           model,
		Usage: models.Usage{
			InputTokens:  res.InputTokens,
			OutputTokens: res.OutputTokens,
		},
	}, nil
}

// Providers lists the generator names behind this Distiller.
func (d *Distiller) Providers() []string {
	if r, ok := d.gen.(*llm.Router); ok {
		return r.Providers()
	}
	return []string{d.gen.Name()}
}
