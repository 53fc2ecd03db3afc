package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	domain "github.com/llmeter/llmeter/internal/domain"
	logger "github.com/llmeter/llmeter/internal/logger"
	services "github.com/llmeter/llmeter/internal/services"
	storage "github.com/llmeter/llmeter/internal/storage"
)

// demoPreviewLimit caps how many outcomes a demo batch response carries.
const demoPreviewLimit = 10

// APIHandler handles HTTP API requests for the metrics service
type APIHandler struct {
	completions *services.CompletionService
	demo        *services.DemoService
	store       storage.OutcomeStore
}

// NewAPIHandler creates a new API handler
func NewAPIHandler(
	completions *services.CompletionService,
	demo *services.DemoService,
	store storage.OutcomeStore,
) *APIHandler {
	return &APIHandler{
		completions: completions,
		demo:        demo,
		store:       store,
	}
}

// writeJSON writes a JSON response and logs encoding errors
func (h *APIHandler) writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Failed to encode JSON response", "error", err)
	}
}

// HandleHealth handles health check requests
func (h *APIHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.store.Health(ctx); err != nil {
		logger.Error("Storage health check failed", "error", err)
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "unhealthy",
			"error":  err.Error(),
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleCompletions handles POST /v1/completions
func (h *APIHandler) HandleCompletions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req domain.CompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": "Invalid request body",
		})
		return
	}

	if strings.TrimSpace(req.Prompt) == "" {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": "prompt is required",
		})
		return
	}

	outcome, err := h.completions.Generate(r.Context(), req)
	if err != nil {
		logger.Error("Completion request failed", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error": "Internal server error",
		})
		return
	}

	h.writeJSON(w, http.StatusOK, completionResponse(outcome))
}

// completionResponse shapes the outcome for the generation endpoint.
func completionResponse(outcome *domain.CompletionOutcome) map[string]any {
	resp := map[string]any{
		"request_id": outcome.RequestID,
		"response":   outcome.Response,
		"model":      outcome.Model,
		"status":     outcome.Status,
		"metrics": map[string]any{
			"prompt_tokens":       outcome.PromptTokens,
			"completion_tokens":   outcome.CompletionTokens,
			"total_tokens":        outcome.TotalTokens,
			"time_to_first_token": outcome.TimeToFirstToken,
			"tokens_per_second":   outcome.TokensPerSecond,
			"total_duration":      outcome.TotalDuration,
			"cost_usd":            outcome.CostUSD,
		},
	}
	if outcome.ErrorMessage != "" {
		resp["error_message"] = outcome.ErrorMessage
	}
	return resp
}

// HandleMetricsSummary handles GET /v1/metrics/summary
func (h *APIHandler) HandleMetricsSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	timeRange := r.URL.Query().Get("timeRange")
	if timeRange == "" {
		timeRange = "1h"
	}
	model := r.URL.Query().Get("model")

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	summary, err := h.store.Summarize(ctx, timeRange, model)
	if err != nil {
		logger.Error("Failed to summarize metrics", "time_range", timeRange, "error", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error": "Failed to compute metrics summary",
		})
		return
	}

	h.writeJSON(w, http.StatusOK, summary)
}

// HandleMetricsCosts handles GET /v1/metrics/costs
func (h *APIHandler) HandleMetricsCosts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	timeRange := r.URL.Query().Get("timeRange")
	if timeRange == "" {
		timeRange = "24h"
	}
	groupBy := r.URL.Query().Get("groupBy")

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	breakdowns, err := h.store.CostBreakdown(ctx, timeRange, groupBy)
	if err != nil {
		logger.Error("Failed to compute cost breakdown", "time_range", timeRange, "error", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error": "Failed to compute cost breakdown",
		})
		return
	}

	if breakdowns == nil {
		breakdowns = []domain.CostBreakdown{}
	}

	h.writeJSON(w, http.StatusOK, breakdowns)
}

// HandleDemoGenerate handles POST /v1/demo/generate
func (h *APIHandler) HandleDemoGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Count         int  `json:"count"`
		IncludeErrors bool `json:"include_errors"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": "Invalid request body",
		})
		return
	}
	if req.Count <= 0 {
		req.Count = 10
	}

	outcomes := h.demo.Run(r.Context(), req.Count, req.IncludeErrors)

	errorCount := 0
	for _, outcome := range outcomes {
		if outcome.Status == domain.StatusError {
			errorCount++
		}
	}

	preview := outcomes
	if len(preview) > demoPreviewLimit {
		preview = preview[:demoPreviewLimit]
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"total":       len(outcomes),
		"error_count": errorCount,
		"results":     preview,
	})
}
