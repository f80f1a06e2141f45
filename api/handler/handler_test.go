package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/promptopt/cache"
	"github.com/use-agent/promptopt/distiller"
	"github.com/use-agent/promptopt/models"
	"github.com/use-agent/promptopt/pipeline"
	"github.com/use-agent/promptopt/store"
	"github.com/use-agent/promptopt/tokens"
	"github.com/use-agent/promptopt/translator"
)

const sunset = "Please kindly create a beautiful sunset image"

// mapDistiller rewrites known prompts and fails on everything else.
type mapDistiller map[string]string

func (m mapDistiller) Distill(_ context.Context, prompt string, opts distiller.Options) (*distiller.Result, error) {
	out, ok := m[prompt]
	if !ok {
		return nil, models.DistillationError("failed to generate distilled prompt", nil)
	}
	model := opts.Model
	if model == "" {
		model = distiller.DefaultModel
	}
	return &distiller.Result{OriginalPrompt: prompt, DistilledPrompt: out, Model: model}, nil
}

func (m mapDistiller) Providers() []string { return []string{"fake"} }

func newDeps(t *testing.T) *Deps {
	t.Helper()
	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	p := pipeline.New(
		mapDistiller{sunset: "Create sunset image", "a": "A", "b": "B"},
		translator.NewWithBackends(translator.Mock{}),
		tokens.NewCounter(),
		pipeline.Config{},
	)
	return &Deps{
		Pipeline:  p,
		Cache:     cache.New(100, time.Minute),
		Store:     st,
		StartTime: time.Now(),
	}
}

func newEngine(d *Deps) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/optimize", Optimize(d))
	r.POST("/optimize/batch", OptimizeBatch(d))
	r.POST("/optimize-enterprise", Enterprise(d))
	r.GET("/optimize/:id", GetOptimization(d))
	r.GET("/analytics/usage", Usage(d))
	r.GET("/health", Health(d))
	r.GET("/docs", Docs())
	return r
}

func doJSON(r http.Handler, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestOptimize(t *testing.T) {
	d := newDeps(t)
	r := newEngine(d)

	w := doJSON(r, http.MethodPost, "/optimize", gin.H{"prompt": sunset})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[models.OptimizeResponse](t, w)
	assert.True(t, resp.Success)
	assert.Equal(t, "completed", resp.Status)
	assert.Equal(t, "Create sunset image", resp.OptimizedPrompt)
	assert.Equal(t, models.StrategyConcise, resp.Strategy)
	assert.Equal(t, "miss", resp.CacheStatus)
	require.NotNil(t, resp.Metrics)
	assert.Equal(t, 12, resp.Metrics.OriginalTokens)
	assert.Equal(t, 5, resp.Metrics.OptimizedTokens)
	assert.Equal(t, 7, resp.Metrics.TokensSaved)
	assert.Equal(t, 58.3, resp.Metrics.ReductionPercentage)
	assert.InDelta(t, 0.014, resp.Metrics.MoneySaved, 1e-12)
	assert.Equal(t, distiller.DefaultModel, resp.Metrics.Model)

	// Identical request is served from cache.
	w = doJSON(r, http.MethodPost, "/optimize", gin.H{"prompt": sunset})
	hit := decode[models.OptimizeResponse](t, w)
	assert.Equal(t, "hit", hit.CacheStatus)
	assert.Equal(t, resp.ID, hit.ID)

	// And it was persisted.
	w = doJSON(r, http.MethodGet, "/optimize/"+resp.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	rec := decode[models.OptimizationRecord](t, w)
	assert.Equal(t, sunset, rec.OriginalPrompt)
	assert.Equal(t, 7, rec.TokensSaved)
}

func TestOptimizeTranslatesWhenTargetSet(t *testing.T) {
	r := newEngine(newDeps(t))
	w := doJSON(r, http.MethodPost, "/optimize", gin.H{"prompt": sunset, "targetLanguage": "zh"})
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[models.OptimizeResponse](t, w)
	assert.Equal(t, "[zh-CN] Create sunset image", resp.OptimizedPrompt)
	assert.Equal(t, "zh-CN", resp.Language)
}

func TestOptimizeWithoutMetrics(t *testing.T) {
	r := newEngine(newDeps(t))
	w := doJSON(r, http.MethodPost, "/optimize", gin.H{"prompt": sunset, "includeMetrics": false})
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), `"metrics"`)

	// A cached response keeps its metrics for callers that want them.
	w = doJSON(r, http.MethodPost, "/optimize", gin.H{"prompt": sunset})
	resp := decode[models.OptimizeResponse](t, w)
	assert.Equal(t, "hit", resp.CacheStatus)
	assert.NotNil(t, resp.Metrics)
}

func TestOptimizeValidation(t *testing.T) {
	r := newEngine(newDeps(t))
	cases := []gin.H{
		{},
		{"prompt": ""},
		{"prompt": strings.Repeat("x", 10001)},
		{"prompt": "x", "strategy": "verbose"},
		{"prompt": "x", "temperature": 3},
		{"prompt": "x", "targetLanguage": "chinese"},
		{"prompt": "x", "webhook": "not a url"},
	}
	for _, body := range cases {
		w := doJSON(r, http.MethodPost, "/optimize", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, "%v", body)
		assert.Contains(t, w.Body.String(), models.ErrCodeInvalidInput)
	}
}

func TestOptimizeDistillationFailure(t *testing.T) {
	r := newEngine(newDeps(t))
	w := doJSON(r, http.MethodPost, "/optimize", gin.H{"prompt": "unknown prompt"})
	require.Equal(t, http.StatusBadGateway, w.Code)

	resp := decode[models.OptimizeResponse](t, w)
	assert.False(t, resp.Success)
	assert.Equal(t, "failed", resp.Status)
	assert.Equal(t, "unknown prompt", resp.OriginalPrompt)
	require.NotNil(t, resp.Input)
	assert.Equal(t, tokens.Estimate("unknown prompt"), resp.Input.Tokens)
	assert.Contains(t, resp.Error.Message, "distilled prompt")
}

func TestOptimizeBatch(t *testing.T) {
	r := newEngine(newDeps(t))
	body := gin.H{
		"prompts": []gin.H{
			{"id": "first", "content": "a"},
			{"content": "nope"},
			{"id": "third", "content": "b"},
		},
		"options": gin.H{"parallel": false, "maxConcurrency": 3},
	}
	w := doJSON(r, http.MethodPost, "/optimize/batch", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[models.BatchResponse](t, w)
	assert.Equal(t, 3, resp.TotalPrompts)
	assert.Equal(t, 2, resp.Successful)
	assert.Equal(t, 1, resp.Failed)
	assert.False(t, resp.Parallel)
	assert.Equal(t, 1, resp.MaxConcurrency)
	require.Len(t, resp.Results, 3)

	assert.Equal(t, "first", resp.Results[0].RequestID)
	assert.Equal(t, "A", resp.Results[0].OptimizedPrompt)
	assert.False(t, resp.Results[1].Success)
	assert.Equal(t, "third", resp.Results[2].RequestID)
	for i, res := range resp.Results {
		assert.Equal(t, pipeline.ItemID(resp.BatchID, i), res.ID)
	}
}

func TestOptimizeBatchValidation(t *testing.T) {
	r := newEngine(newDeps(t))

	prompts := make([]gin.H, 11)
	for i := range prompts {
		prompts[i] = gin.H{"content": "a"}
	}
	assert.Equal(t, http.StatusBadRequest, doJSON(r, http.MethodPost, "/optimize/batch", gin.H{"prompts": prompts}).Code)
	assert.Equal(t, http.StatusBadRequest, doJSON(r, http.MethodPost, "/optimize/batch", gin.H{"prompts": []gin.H{}}).Code)
	assert.Equal(t, http.StatusBadRequest, doJSON(r, http.MethodPost, "/optimize/batch", gin.H{
		"prompts": []gin.H{{"content": "a"}},
		"options": gin.H{"maxConcurrency": 11},
	}).Code)
}

func TestEnterprise(t *testing.T) {
	d := newDeps(t)
	d.MonthlyLimit = 1
	r := newEngine(d)
	body := gin.H{"prompt": sunset, "model": "claude-3-haiku-20240307", "userName": "ana"}

	w := doJSON(r, http.MethodPost, "/optimize-enterprise", body)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(r, http.MethodPost, "/optimize-enterprise", body, "Authorization", "Bearer key-1234567890")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[models.EnterpriseResponse](t, w)
	assert.True(t, resp.Success)
	assert.InDelta(t, 7*0.00000025, resp.CostSaved, 1e-15)
	require.NotNil(t, resp.Usage)
	assert.Equal(t, "key-****7890", resp.Usage.APIKey)
	assert.Equal(t, 1, resp.Usage.CurrentUsage)
	assert.Equal(t, 1, resp.Usage.MonthlyLimit)

	w = doJSON(r, http.MethodPost, "/optimize-enterprise", body, "Authorization", "Bearer key-1234567890")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), models.ErrCodeUsageExceeded)

	// Other keys have their own quota.
	w = doJSON(r, http.MethodPost, "/optimize-enterprise", body, "X-API-Key", "other-key-0000")
	assert.Equal(t, http.StatusOK, w.Code)
}

type gatedDistiller struct {
	started chan struct{}
	gate    chan struct{}
}

func (g gatedDistiller) Distill(_ context.Context, prompt string, _ distiller.Options) (*distiller.Result, error) {
	g.started <- struct{}{}
	<-g.gate
	return &distiller.Result{OriginalPrompt: prompt, DistilledPrompt: "short", Model: "m"}, nil
}

func TestEnterpriseQuotaCountsInFlightRuns(t *testing.T) {
	d := newDeps(t)
	g := gatedDistiller{started: make(chan struct{}, 1), gate: make(chan struct{})}
	d.Pipeline = pipeline.New(g, nil, tokens.NewCounter(), pipeline.Config{})
	d.MonthlyLimit = 1
	r := newEngine(d)
	body := gin.H{"prompt": sunset}

	first := make(chan int, 1)
	go func() {
		first <- doJSON(r, http.MethodPost, "/optimize-enterprise", body, "X-API-Key", "key-1234567890").Code
	}()
	<-g.started

	w := doJSON(r, http.MethodPost, "/optimize-enterprise", body, "X-API-Key", "key-1234567890")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	close(g.gate)
	assert.Equal(t, http.StatusOK, <-first)

	w = doJSON(r, http.MethodPost, "/optimize-enterprise", body, "X-API-Key", "key-1234567890")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestEnterpriseWithoutPersistence(t *testing.T) {
	d := newDeps(t)
	d.Store = nil
	d.MonthlyLimit = 5
	r := newEngine(d)
	body := gin.H{"prompt": sunset}

	w := doJSON(r, http.MethodPost, "/optimize-enterprise", body, "X-API-Key", "key-1234567890")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), models.ErrCodeUnavailable)

	d.MonthlyLimit = 0
	w = doJSON(r, http.MethodPost, "/optimize-enterprise", body, "X-API-Key", "key-1234567890")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[models.EnterpriseResponse](t, w)
	assert.True(t, resp.Success)
	assert.Nil(t, resp.Usage)
}

func TestGetOptimizationNotFound(t *testing.T) {
	r := newEngine(newDeps(t))
	w := doJSON(r, http.MethodGet, "/optimize/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), models.ErrCodeNotFound)
}

func TestPersistenceDisabled(t *testing.T) {
	d := newDeps(t)
	d.Store = nil
	r := newEngine(d)

	assert.Equal(t, http.StatusNotFound, doJSON(r, http.MethodGet, "/optimize/x", nil).Code)
	assert.Equal(t, http.StatusNotFound, doJSON(r, http.MethodGet, "/analytics/usage", nil).Code)

	// Optimization still works.
	assert.Equal(t, http.StatusOK, doJSON(r, http.MethodPost, "/optimize", gin.H{"prompt": sunset}).Code)
}

func TestUsage(t *testing.T) {
	r := newEngine(newDeps(t))
	doJSON(r, http.MethodPost, "/optimize", gin.H{"prompt": sunset, "userName": "ana"})
	doJSON(r, http.MethodPost, "/optimize", gin.H{"prompt": "a", "userName": "bo"})

	w := doJSON(r, http.MethodGet, "/analytics/usage?period=1d", nil)
	require.Equal(t, http.StatusOK, w.Code)
	sum := decode[models.UsageSummary](t, w)
	assert.Equal(t, "1d", sum.Period)
	assert.Equal(t, 2, sum.TotalOptimizations)
	assert.Len(t, sum.TopUsers, 2)

	w = doJSON(r, http.MethodGet, "/analytics/usage?userId=ana", nil)
	sum = decode[models.UsageSummary](t, w)
	assert.Equal(t, "7d", sum.Period)
	assert.Equal(t, 1, sum.TotalOptimizations)
	assert.Equal(t, 7, sum.TotalTokensSaved)

	assert.Equal(t, http.StatusBadRequest, doJSON(r, http.MethodGet, "/analytics/usage?period=2d", nil).Code)
}

func TestHealthAndDocs(t *testing.T) {
	r := newEngine(newDeps(t))

	w := doJSON(r, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	h := decode[models.HealthResponse](t, w)
	assert.Equal(t, "healthy", h.Status)
	assert.Equal(t, "ok", h.Store)
	assert.Equal(t, []string{"fake"}, h.Pipeline.Distillers)
	assert.Equal(t, []string{"mock"}, h.Pipeline.Translators)

	w = doJSON(r, http.MethodGet, "/docs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/api/v1/optimize/batch")
}

func TestMapErrorToStatus(t *testing.T) {
	cases := map[string]int{
		models.ErrCodeInvalidInput:   http.StatusBadRequest,
		models.ErrCodeUnauthorized:   http.StatusUnauthorized,
		models.ErrCodeNotFound:       http.StatusNotFound,
		models.ErrCodeCancelled:      http.StatusRequestTimeout,
		models.ErrCodeRateLimited:    http.StatusTooManyRequests,
		models.ErrCodeUsageExceeded:  http.StatusTooManyRequests,
		models.ErrCodeDistillation:   http.StatusBadGateway,
		models.ErrCodeUnavailable:    http.StatusServiceUnavailable,
		models.ErrCodeInternal:       http.StatusInternalServerError,
		models.ErrCodeLLMAuthFailure: http.StatusInternalServerError,
	}
	for code, status := range cases {
		assert.Equal(t, status, mapErrorToStatus(code), code)
	}
}

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "****", maskKey("short"))
	assert.Equal(t, "abcd****wxyz", maskKey("abcdefghwxyz"))
}

func TestMonthStart(t *testing.T) {
	got := monthStart(time.Date(2026, 10, 18, 15, 4, 5, 0, time.FixedZone("x", 3600)))
	assert.Equal(t, time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC), got)
}
