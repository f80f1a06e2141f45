package models

import "time"

// OptimizeMetrics is the token and savings summary attached to responses.
type OptimizeMetrics struct {
	OriginalTokens      int     `json:"originalTokens"`
	OptimizedTokens     int     `json:"optimizedTokens"`
	TokensSaved         int     `json:"tokensSaved"`
	ReductionPercentage float64 `json:"reductionPercentage"`
	MoneySaved          float64 `json:"moneySaved"`
	EnergySaved         float64 `json:"energySaved"`
	EmissionsSaved      float64 `json:"emissionsSaved"`
	ProcessingTimeMs    int64   `json:"processingTimeMs"`
	Model               string  `json:"model"`
}

// OptimizeResponse is the response for POST /api/v1/optimize.
type OptimizeResponse struct {
	Success         bool      `json:"success"`
	ID              string    `json:"id"`
	RequestID       string    `json:"requestId,omitempty"`
	OriginalPrompt  string    `json:"originalPrompt"`
	OptimizedPrompt string    `json:"optimizedPrompt,omitempty"`
	Strategy        string    `json:"strategy,omitempty"`
	Language        string    `json:"language,omitempty"`
	Status          string    `json:"status"`
	Timestamp       time.Time `json:"timestamp"`

	// CacheStatus is "hit" or "miss" when the result cache is enabled.
	CacheStatus string `json:"cacheStatus,omitempty"`

	Metrics *OptimizeMetrics `json:"metrics,omitempty"`

	// Input and Error are populated only when Success is false.
	Input *PromptTokens `json:"input,omitempty"`
	Error *ErrorDetail  `json:"error,omitempty"`
}

// ErrorResponse is the body of non-optimization error responses.
type ErrorResponse struct {
	Success bool         `json:"success"`
	Error   *ErrorDetail `json:"error"`
}

// UsageInfo reports the caller's monthly usage after the request.
type UsageInfo struct {
	APIKey       string `json:"apiKey"`
	CurrentUsage int    `json:"currentUsage"`
	MonthlyLimit int    `json:"monthlyLimit"`
}

// EnterpriseResponse is the response for POST /api/v1/optimize-enterprise.
type EnterpriseResponse struct {
	OptimizeResponse
	CostSaved float64    `json:"costSaved"`
	Usage     *UsageInfo `json:"usage,omitempty"`
}

// BatchResponse is the response for POST /api/v1/optimize/batch.
type BatchResponse struct {
	BatchID          string              `json:"batchId"`
	TotalPrompts     int                 `json:"totalPrompts"`
	Successful       int                 `json:"successful"`
	Failed           int                 `json:"failed"`
	ProcessingTimeMs int64               `json:"processingTimeMs"`
	Parallel         bool                `json:"parallel"`
	MaxConcurrency   int                 `json:"maxConcurrency"`
	Timestamp        time.Time           `json:"timestamp"`
	Results          []*OptimizeResponse `json:"results"`
	Statistics       BatchStatistics     `json:"statistics"`
}

// PipelineHealth describes the configured pipeline collaborators.
type PipelineHealth struct {
	Status         string   `json:"status"`
	Distillers     []string `json:"distillers"`
	Translators    []string `json:"translators"`
	TokenCounters  []string `json:"tokenCounters"`
	DefaultModel   string   `json:"defaultModel"`
	TargetLanguage string   `json:"targetLanguage"`
	Concurrency    int      `json:"concurrency"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status   string         `json:"status"`
	Uptime   string         `json:"uptime"`
	Version  string         `json:"version"`
	Pipeline PipelineHealth `json:"pipeline"`
	Store    string         `json:"store"`
}
