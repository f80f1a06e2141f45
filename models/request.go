package models

// Optimization strategies accepted by the API.
const (
	StrategyConcise      = "concise"
	StrategyCreative     = "creative"
	StrategyTechnical    = "technical"
	StrategyMultilingual = "multilingual"
)

// OptimizeRequest is the payload for POST /api/v1/optimize and
// POST /api/v1/optimize-enterprise.
type OptimizeRequest struct {
	// Prompt is the text to optimize. Required, 1..10000 characters.
	Prompt string `json:"prompt" binding:"required,min=1,max=10000"`

	// Strategy adds one emphasis line to the rewriting instruction.
	// Default: "concise".
	Strategy string `json:"strategy,omitempty" binding:"omitempty,oneof=concise creative technical multilingual"`

	// TargetLanguage is a two-letter code. When empty the prompt is not
	// translated.
	TargetLanguage string `json:"targetLanguage,omitempty" binding:"omitempty,len=2"`

	// Model overrides the distillation model.
	Model string `json:"model,omitempty"`

	// Temperature overrides the sampling temperature. 0..2, default 0.3.
	Temperature *float64 `json:"temperature,omitempty" binding:"omitempty,min=0,max=2"`

	// IncludeMetrics attaches token and savings metrics. Default: true.
	IncludeMetrics *bool `json:"includeMetrics,omitempty"`

	// Webhook receives an "optimization.completed" event when set.
	Webhook string `json:"webhook,omitempty" binding:"omitempty,url"`

	// UserName is recorded with the persisted optimization.
	UserName string `json:"userName,omitempty" binding:"omitempty,max=200"`
}

// Defaults applies default values to unset fields.
func (r *OptimizeRequest) Defaults() {
	if r.Strategy == "" {
		r.Strategy = StrategyConcise
	}
	if r.IncludeMetrics == nil {
		t := true
		r.IncludeMetrics = &t
	}
}

// BatchPrompt is one entry of a batch request.
type BatchPrompt struct {
	ID             string   `json:"id,omitempty"`
	Content        string   `json:"content" binding:"required,min=1,max=10000"`
	Strategy       string   `json:"strategy,omitempty" binding:"omitempty,oneof=concise creative technical multilingual"`
	TargetLanguage string   `json:"targetLanguage,omitempty" binding:"omitempty,len=2"`
	Model          string   `json:"model,omitempty"`
	Temperature    *float64 `json:"temperature,omitempty" binding:"omitempty,min=0,max=2"`
}

// BatchOptions are batch-wide execution settings.
type BatchOptions struct {
	// Parallel runs prompts concurrently. Default: true.
	Parallel *bool `json:"parallel,omitempty"`

	// MaxConcurrency is the chunk size when Parallel is true. 1..10, default 5.
	MaxConcurrency int `json:"maxConcurrency,omitempty" binding:"omitempty,min=1,max=10"`

	// Webhook receives a "batch.completed" event when set.
	Webhook string `json:"webhook,omitempty" binding:"omitempty,url"`
}

// BatchRequest is the payload for POST /api/v1/optimize/batch.
type BatchRequest struct {
	Prompts []BatchPrompt `json:"prompts" binding:"required,min=1,max=10,dive"`
	Options BatchOptions  `json:"options"`
}

// Defaults applies default values to unset fields.
func (r *BatchRequest) Defaults() {
	if r.Options.Parallel == nil {
		t := true
		r.Options.Parallel = &t
	}
	if r.Options.MaxConcurrency == 0 {
		r.Options.MaxConcurrency = 5
	}
	for i := range r.Prompts {
		if r.Prompts[i].Strategy == "" {
			r.Prompts[i].Strategy = StrategyConcise
		}
	}
}

// EffectiveConcurrency is the chunk size actually used for the batch.
func (r *BatchRequest) EffectiveConcurrency() int {
	if r.Options.Parallel != nil && !*r.Options.Parallel {
		return 1
	}
	return r.Options.MaxConcurrency
}

// UsageQuery is the query string for GET /api/v1/analytics/usage.
type UsageQuery struct {
	Period string `form:"period" binding:"omitempty,oneof=1d 7d 30d 90d"`
	UserID string `form:"userId"`
}
