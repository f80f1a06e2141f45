package models

import "time"

// Stage names used in TokenStats and StageSummary.
const (
	StageInput        = "input"
	StageDistillation = "distillation"
	StageTranslation  = "translation"
)

// Outcome is the result of one pipeline run: either *OptimizationResult or
// *OptimizationError. The JSON "success" field tells them apart.
type Outcome interface {
	RunID() string
	Succeeded() bool
	ElapsedMs() int64
	isOutcome()
}

// PromptTokens pairs a prompt with its token count.
type PromptTokens struct {
	Prompt string `json:"prompt"`
	Tokens int    `json:"tokens"`
}

// TokenStats is the before/after accounting for a single stage.
type TokenStats struct {
	Stage               string  `json:"stage"`
	InputTokens         int     `json:"inputTokens"`
	OutputTokens        int     `json:"outputTokens"`
	Reduction           int     `json:"reduction"`
	ReductionPercentage float64 `json:"reductionPercentage"`
}

// Usage is the token usage reported by the text-generation service.
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

// DistillationStage records the rewrite step.
type DistillationStage struct {
	OriginalPrompt  string     `json:"originalPrompt"`
	DistilledPrompt string     `json:"distilledPrompt"`
	Model           string     `json:"model"`
	Usage           Usage      `json:"usage"`
	TokenStats      TokenStats `json:"tokenStats"`
}

// TranslationStage records the translate step. When translation is
// skipped it is an identity record with SourceLanguage == TargetLanguage.
type TranslationStage struct {
	OriginalText   string     `json:"originalText"`
	TranslatedText string     `json:"translatedText"`
	SourceLanguage string     `json:"sourceLanguage"`
	TargetLanguage string     `json:"targetLanguage"`
	Confidence     float64    `json:"confidence"`
	Provider       string     `json:"provider"`
	TokenStats     TokenStats `json:"tokenStats"`
}

// OutputStage is the final prompt after every enabled stage.
type OutputStage struct {
	Prompt   string `json:"prompt"`
	Tokens   int    `json:"tokens"`
	Language string `json:"language"`
}

// StageSummary is one entry of Statistics.Stages.
type StageSummary struct {
	Stage               string  `json:"stage"`
	Tokens              int     `json:"tokens"`
	Reduction           int     `json:"reduction"`
	ReductionPercentage float64 `json:"reductionPercentage"`
	Description         string  `json:"description"`
	DurationMs          int64   `json:"durationMs"`
}

// Statistics aggregates the whole run.
type Statistics struct {
	TotalInputTokens              int            `json:"totalInputTokens"`
	TotalOutputTokens             int            `json:"totalOutputTokens"`
	TotalTokenReduction           int            `json:"totalTokenReduction"`
	TotalTokenReductionPercentage float64        `json:"totalTokenReductionPercentage"`
	Stages                        []StageSummary `json:"stages"`
}

// OptimizationResult is the success case of a pipeline run.
type OptimizationResult struct {
	ID               string            `json:"id"`
	Success          bool              `json:"success"`
	Timestamp        time.Time         `json:"timestamp"`
	ProcessingTimeMs int64             `json:"processingTimeMs"`
	Input            PromptTokens      `json:"input"`
	Distillation     DistillationStage `json:"distillationStage"`
	Translation      TranslationStage  `json:"translationStage"`
	Output           OutputStage       `json:"output"`
	Statistics       Statistics        `json:"statistics"`
}

func (r *OptimizationResult) RunID() string    { return r.ID }
func (r *OptimizationResult) Succeeded() bool  { return true }
func (r *OptimizationResult) ElapsedMs() int64 { return r.ProcessingTimeMs }
func (r *OptimizationResult) isOutcome()       {}

// OptimizationError is the failure case of a pipeline run. It carries the
// input token count but no partial stage data.
type OptimizationError struct {
	ID               string       `json:"id"`
	Success          bool         `json:"success"`
	Error            string       `json:"error"`
	Code             string       `json:"code"`
	Timestamp        time.Time    `json:"timestamp"`
	ProcessingTimeMs int64        `json:"processingTimeMs"`
	Input            PromptTokens `json:"input"`
}

func (e *OptimizationError) RunID() string    { return e.ID }
func (e *OptimizationError) Succeeded() bool  { return false }
func (e *OptimizationError) ElapsedMs() int64 { return e.ProcessingTimeMs }
func (e *OptimizationError) isOutcome()       {}

// BatchStatistics aggregates a batch run.
type BatchStatistics struct {
	TotalProcessingTime   int64   `json:"totalProcessingTime"`
	AverageProcessingTime float64 `json:"averageProcessingTime"`
	TotalTokenReduction   int     `json:"totalTokenReduction"`
	AverageTokenReduction float64 `json:"averageTokenReduction"`
}

// BatchResult groups the outcomes of a batch, in input order.
type BatchResult struct {
	BatchID      string          `json:"batchId"`
	TotalPrompts int             `json:"totalPrompts"`
	Successful   int             `json:"successful"`
	Failed       int             `json:"failed"`
	Results      []Outcome       `json:"results"`
	Statistics   BatchStatistics `json:"statistics"`
	Timestamp    time.Time       `json:"timestamp"`
}
