package tokens

import (
	"context"
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// TiktokenSource counts tokens locally with a BPE codec chosen by model.
type TiktokenSource struct {
	model string
}

// NewTiktokenSource creates a local BPE source for the given model name.
func NewTiktokenSource(model string) *TiktokenSource {
	return &TiktokenSource{model: model}
}

var codecCache sync.Map

// codecFor returns a cached codec for the model. Non-OpenAI models use
// o200k_base, the closest general-purpose vocabulary.
func codecFor(model string) (tokenizer.Codec, error) {
	if cached, ok := codecCache.Load(model); ok {
		return cached.(tokenizer.Codec), nil
	}

	var enc tokenizer.Codec
	var err error

	m := strings.ToLower(strings.TrimSpace(model))
	switch {
	case strings.HasPrefix(m, "gpt-4o"), strings.HasPrefix(m, "gpt-4.1"):
		enc, err = tokenizer.ForModel(tokenizer.GPT4o)
	case strings.HasPrefix(m, "gpt-4"):
		enc, err = tokenizer.ForModel(tokenizer.GPT4)
	case strings.HasPrefix(m, "gpt-3.5"):
		enc, err = tokenizer.ForModel(tokenizer.GPT35Turbo)
	default:
		enc, err = tokenizer.Get(tokenizer.O200kBase)
	}
	if err != nil {
		return nil, err
	}

	actual, _ := codecCache.LoadOrStore(model, enc)
	return actual.(tokenizer.Codec), nil
}

func (s *TiktokenSource) Name() string { return "tiktoken" }

func (s *TiktokenSource) Count(_ context.Context, text string) (int, error) {
	enc, err := codecFor(s.model)
	if err != nil {
		return 0, err
	}
	ids, _, err := enc.Encode(text)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}
