// Package api exposes the application over HTTP: a user-facing surface for
// the tracker and recommender, an admin surface for catalog management, and
// an MCP surface for assistant integrations.
package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"

	"github.com/mealwise/mealwise/internal/health"
	"github.com/mealwise/mealwise/internal/recommend"
	"github.com/mealwise/mealwise/internal/session"
	"github.com/mealwise/mealwise/internal/storage"
	"github.com/mealwise/mealwise/internal/vision"
)

const maxRequestBodySize = 1 << 20  // 1MB
const maxImageBodySize = 10 << 20   // 10MB

// VisionService abstracts the generative-AI client so handlers can be tested
// without a network. A nil service means the AI endpoints are unconfigured.
type VisionService interface {
	AnalyzeFood(ctx context.Context, image []byte, mimeType string) (vision.Analysis, error)
	EditImage(ctx context.Context, image []byte, mimeType, instruction string) ([]byte, string, error)
	NearbyHealthyFood(ctx context.Context, lat, lon float64, query string) (vision.Nearby, error)
}

type AppDeps struct {
	Session *session.Session
	Vision  VisionService
	Metrics *Metrics
}

// NewAppHandler returns the user-facing REST API. It is unauthenticated:
// the server binds to localhost and serves a single user.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.AllowAll().Handler)
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware)
	}

	r.Get("/health", handleHealth)
	r.Get("/targets", handleTargets(deps))
	r.Get("/profile", handleGetProfile(deps))
	r.Patch("/profile", handlePatchProfile(deps))
	r.Get("/recommendations", handleRecommendations(deps))
	r.Get("/filters", handleGetFilters(deps))
	r.Put("/filters", handleStageFilters(deps))
	r.Post("/filters/apply", handleApplyFilters(deps))
	r.Post("/filters/discard", handleDiscardFilters(deps))
	r.Post("/filters/reset", handleResetFilters(deps))
	r.Get("/stats", handleStats(deps))
	r.Post("/stats/water", handleAddWater(deps))
	r.Post("/stats/steps", handleAddSteps(deps))
	r.Get("/log", handleFoodLog(deps))
	r.Post("/log", handleLogFood(deps))
	r.Get("/weight-history", handleWeightHistory(deps))
	r.Post("/analyze", handleAnalyze(deps))
	r.Post("/edit-image", handleEditImage(deps))
	r.Get("/nearby", handleNearby(deps))

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleTargets(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		targets, err := deps.Session.Targets()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to compute targets: %v", err)
			return
		}
		writeJSON(w, targets)
	}
}

func handleGetProfile(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := deps.Session.Profile()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get profile: %v", err)
			return
		}
		writeJSON(w, p)
	}
}

func handlePatchProfile(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		current, err := deps.Session.Profile()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get profile: %v", err)
			return
		}

		// Partial update: decode over the current profile so absent fields
		// keep their values.
		updated := current
		if err := json.NewDecoder(r.Body).Decode(&updated); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		if err := deps.Session.UpdateProfile(updated); err != nil {
			var ipe *health.InvalidProfileError
			if errors.As(err, &ipe) {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid profile: %v", err)
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "failed to update profile: %v", err)
			return
		}
		writeJSON(w, updated)
	}
}

// RecommendationView decorates a catalog meal with its composite score and
// the display badge flag.
type RecommendationView struct {
	recommend.Meal
	Score       float64 `json:"score"`
	HighProtein bool    `json:"high_protein"`
}

func handleRecommendations(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meals, err := deps.Session.Recommendations()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to compute recommendations: %v", err)
			return
		}

		views := make([]RecommendationView, 0, len(meals))
		for _, m := range meals {
			views = append(views, RecommendationView{
				Meal:        m,
				Score:       recommend.Score(m),
				HighProtein: recommend.HighProteinBadge(m),
			})
		}
		if deps.Metrics != nil {
			deps.Metrics.RecommendationsServed.Inc()
		}

		budget, err := deps.Session.RemainingBudget()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to compute budget: %v", err)
			return
		}
		writeJSON(w, map[string]any{
			"remaining_budget": budget,
			"meals":            views,
		})
	}
}

func handleGetFilters(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]recommend.Filters{
			"committed": deps.Session.Filters(),
			"draft":     deps.Session.Draft(),
		})
	}
}

func handleStageFilters(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var f recommend.Filters
		if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		deps.Session.StageFilters(f)
		writeJSON(w, map[string]string{"status": "staged"})
	}
}

func handleApplyFilters(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deps.Session.ApplyFilters()
		writeJSON(w, deps.Session.Filters())
	}
}

func handleDiscardFilters(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deps.Session.DiscardDraft()
		writeJSON(w, deps.Session.Filters())
	}
}

func handleResetFilters(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deps.Session.ResetFilters()
		writeJSON(w, deps.Session.Filters())
	}
}

func handleStats(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := deps.Session.Stats()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get stats: %v", err)
			return
		}
		writeJSON(w, stats)
	}
}

func handleAddWater(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ML int `json:"ml"`
		}
		if err := decodeBody(w, r, &req); err != nil {
			return
		}
		if req.ML <= 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "ml must be positive")
			return
		}
		if err := deps.Session.AddWater(req.ML); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to add water: %v", err)
			return
		}
		writeJSON(w, map[string]string{"status": "recorded"})
	}
}

func handleAddSteps(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Steps int `json:"steps"`
		}
		if err := decodeBody(w, r, &req); err != nil {
			return
		}
		if req.Steps <= 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "steps must be positive")
			return
		}
		if err := deps.Session.AddSteps(req.Steps); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to add steps: %v", err)
			return
		}
		writeJSON(w, map[string]string{"status": "recorded"})
	}
}

func handleFoodLog(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := deps.Session.FoodLog()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list food log: %v", err)
			return
		}
		if entries == nil {
			entries = []storage.FoodLogEntry{}
		}
		writeJSON(w, entries)
	}
}

func handleLogFood(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name     string `json:"name"`
			Calories int    `json:"calories"`
			Source   string `json:"source"`
		}
		if err := decodeBody(w, r, &req); err != nil {
			return
		}
		if req.Name == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "name is required")
			return
		}
		if req.Calories <= 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "calories must be positive")
			return
		}

		entry, err := deps.Session.LogFood(req.Name, req.Calories, req.Source)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to log food: %v", err)
			return
		}
		if deps.Metrics != nil {
			deps.Metrics.FoodLogged.Inc()
		}
		writeJSON(w, entry)
	}
}

func handleWeightHistory(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 30, 365)
		entries, err := deps.Session.WeightHistory(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list weight history: %v", err)
			return
		}
		if entries == nil {
			entries = []storage.WeightEntry{}
		}
		writeJSON(w, entries)
	}
}

type imageRequest struct {
	Image       string `json:"image"` // base64
	MimeType    string `json:"mime_type"`
	Instruction string `json:"instruction,omitempty"`
}

func (req *imageRequest) decode(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImageBodySize)
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return nil, false
	}
	if req.MimeType == "" {
		req.MimeType = "image/jpeg"
	}
	raw, err := base64.StdEncoding.DecodeString(req.Image)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid base64 image")
		return nil, false
	}
	if len(raw) == 0 {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "image is required")
		return nil, false
	}
	return raw, true
}

func handleAnalyze(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Vision == nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "image analysis not configured: set a Gemini API key")
			return
		}

		var req imageRequest
		raw, ok := req.decode(w, r)
		if !ok {
			return
		}

		analysis, err := deps.Vision.AnalyzeFood(r.Context(), raw, req.MimeType)
		if err != nil {
			if deps.Metrics != nil {
				deps.Metrics.AnalysisRequests.WithLabelValues("error").Inc()
			}
			httpError(w, http.StatusBadGateway, "api_error", "analysis failed: %v", err)
			return
		}
		if deps.Metrics != nil {
			deps.Metrics.AnalysisRequests.WithLabelValues("ok").Inc()
		}
		writeJSON(w, analysis)
	}
}

func handleEditImage(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Vision == nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "image editing not configured: set a Gemini API key")
			return
		}

		var req imageRequest
		raw, ok := req.decode(w, r)
		if !ok {
			return
		}
		if req.Instruction == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "instruction is required")
			return
		}

		edited, mime, err := deps.Vision.EditImage(r.Context(), raw, req.MimeType, req.Instruction)
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "edit failed: %v", err)
			return
		}
		writeJSON(w, map[string]string{
			"image":     base64.StdEncoding.EncodeToString(edited),
			"mime_type": mime,
		})
	}
}

func handleNearby(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Vision == nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "nearby lookup not configured: set a Gemini API key")
			return
		}

		lat, err := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "lat is required and must be a number")
			return
		}
		lon, err := strconv.ParseFloat(r.URL.Query().Get("lon"), 64)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "lon is required and must be a number")
			return
		}

		nearby, err := deps.Vision.NearbyHealthyFood(r.Context(), lat, lon, r.URL.Query().Get("q"))
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "nearby lookup failed: %v", err)
			return
		}
		writeJSON(w, nearby)
	}
}

// --- shared helpers ---

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return err
	}
	return nil
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
