package models

import "time"

// OptimizationRecord is the persisted form of a completed optimization.
type OptimizationRecord struct {
	ID              string    `json:"id"`
	OriginalPrompt  string    `json:"original_prompt"`
	OptimizedPrompt string    `json:"optimized_prompt"`
	OriginalTokens  int       `json:"original_tokens"`
	OptimizedTokens int       `json:"optimized_tokens"`
	TokensSaved     int       `json:"tokens_saved"`
	MoneySaved      float64   `json:"money_saved"`
	EnergySaved     float64   `json:"energy_saved"`
	EmissionsSaved  float64   `json:"emissions_saved"`
	Strategy        string    `json:"strategy"`
	Model           string    `json:"model"`
	UserName        string    `json:"user_name"`
	APIKey          string    `json:"-"`
	CreatedAt       time.Time `json:"created_at"`
}

// UsageSummary is the response for GET /api/v1/analytics/usage.
type UsageSummary struct {
	Period              string       `json:"period"`
	Since               time.Time    `json:"since"`
	TotalOptimizations  int          `json:"totalOptimizations"`
	TotalTokensSaved    int          `json:"totalTokensSaved"`
	TotalMoneySaved     float64      `json:"totalMoneySaved"`
	TotalEnergySaved    float64      `json:"totalEnergySaved"`
	TotalEmissionsSaved float64      `json:"totalEmissionsSaved"`
	AverageReduction    float64      `json:"averageReduction"`
	TopUsers            []UserUsage  `json:"topUsers"`
	Daily               []DailyUsage `json:"daily"`
}

// UserUsage is one row of UsageSummary.TopUsers.
type UserUsage struct {
	UserName      string `json:"userName"`
	Optimizations int    `json:"optimizations"`
	TokensSaved   int    `json:"tokensSaved"`
}

// DailyUsage is one row of UsageSummary.Daily.
type DailyUsage struct {
	Date          string `json:"date"`
	Optimizations int    `json:"optimizations"`
	TokensSaved   int    `json:"tokensSaved"`
}
