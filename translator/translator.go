// Package translator converts text between languages through an ordered
// chain of external translation services.
package translator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/use-agent/promptopt/models"
)

// Fixed confidence values for paths that report none of their own.
const (
	ConfidenceIdentity = 1.0
	ConfidenceBackend  = 0.9
	ConfidenceMock     = 0.8
	ConfidenceFallback = 0.5
)

// ProviderNone marks results where no backend was called.
const ProviderNone = "none"

// Backend is one translation service in the chain.
type Backend interface {
	Name() string
	// Translate returns the translated text and a confidence in [0,1].
	Translate(ctx context.Context, text, source, target string) (string, float64, error)
}

// Result is one translation.
type Result struct {
	OriginalText   string
	TranslatedText string
	SourceLanguage string
	TargetLanguage string
	Confidence     float64
	Provider       string
}

// Translator tries each backend in order until one succeeds. The backend
// list is built on first use and reused afterwards.
type Translator struct {
	build    func() []Backend
	once     sync.Once
	backends []Backend
}

// New creates a Translator whose backends come from build on first use.
func New(build func() []Backend) *Translator {
	return &Translator{build: build}
}

// NewWithBackends creates a Translator over a fixed backend list.
func NewWithBackends(backends ...Backend) *Translator {
	return New(func() []Backend { return backends })
}

func (t *Translator) chain() []Backend {
	t.once.Do(func() {
		if t.build != nil {
			t.backends = t.build()
		}
	})
	return t.backends
}

// Backends lists backend names in the order they are tried.
func (t *Translator) Backends() []string {
	chain := t.chain()
	names := make([]string, 0, len(chain))
	for _, b := range chain {
		names = append(names, b.Name())
	}
	return names
}

// Translate converts text from source to target. An empty or "auto" source
// is detected from the text. Equal languages short-circuit to an identity
// result. When every backend fails the error is a TRANSLATION_FAILED
// PipelineError joining each backend's cause.
func (t *Translator) Translate(ctx context.Context, text, source, target string) (*Result, error) {
	if source == "" || strings.EqualFold(source, "auto") {
		source = DetectLanguage(text)
	}
	source, target = Normalize(source), Normalize(target)

	if source == target || strings.TrimSpace(text) == "" {
		return Identity(text, source, target, ConfidenceIdentity, ProviderNone), nil
	}

	var errs []error
	for _, b := range t.chain() {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		out, conf, err := b.Translate(ctx, text, source, target)
		if err == nil && strings.TrimSpace(out) == "" {
			err = errors.New("empty translation")
		}
		if err != nil {
			slog.Warn("translation backend failed",
				"backend", b.Name(),
				"source", source,
				"target", target,
				"error", err,
			)
			errs = append(errs, fmt.Errorf("%s: %w", b.Name(), err))
			continue
		}
		return &Result{
			OriginalText:   text,
			TranslatedText: out,
			SourceLanguage: source,
			TargetLanguage: target,
			Confidence:     clamp(conf),
			Provider:       b.Name(),
		}, nil
	}

	if len(errs) == 0 {
		errs = append(errs, errors.New("no translation backends configured"))
	}
	return nil, models.TranslationError("all translation backends failed", errors.Join(errs...))
}

// Identity builds a pass-through result.
func Identity(text, source, target string, confidence float64, provider string) *Result {
	return &Result{
		OriginalText:   text,
		TranslatedText: text,
		SourceLanguage: source,
		TargetLanguage: target,
		Confidence:     confidence,
		Provider:       provider,
	}
}

func clamp(c float64) float64 {
	switch {
	case c <= 0:
		return ConfidenceBackend
	case c > 1:
		return 1
	default:
		return c
	}
}
