package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mealwise/mealwise/internal/importer"
	"github.com/mealwise/mealwise/internal/recommend"
	"github.com/mealwise/mealwise/internal/storage"
)

type AdminDeps struct {
	Store   *storage.Store
	Token   string
	Metrics *Metrics
}

// NewAdminHandler returns the token-protected admin API: catalog CRUD, menu
// imports, and the analytics snapshot.
func NewAdminHandler(deps AdminDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(BearerAuth(deps.Token))

	r.Get("/meals", handleListCatalog(deps))
	r.Post("/meals", handleCreateMeal(deps))
	r.Get("/meals/{id}", handleGetCatalogMeal(deps))
	r.Put("/meals/{id}", handleUpdateMeal(deps))
	r.Post("/menus", handleImportMenu(deps))
	r.Get("/menus/{id}", handleGetMenuDoc(deps))
	r.Get("/analytics", handleAnalytics(deps))

	return r
}

func handleListCatalog(deps AdminDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meals, err := deps.Store.ListMeals()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list meals: %v", err)
			return
		}
		if meals == nil {
			meals = []recommend.Meal{}
		}
		writeJSON(w, meals)
	}
}

func validateMeal(m recommend.Meal) string {
	switch {
	case m.Name == "":
		return "name is required"
	case m.Calories <= 0:
		return "calories must be positive"
	case m.Price < 0:
		return "price must not be negative"
	case m.DistanceKm < 0:
		return "distance must not be negative"
	}
	return ""
}

func handleCreateMeal(deps AdminDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var m recommend.Meal
		if err := decodeBody(w, r, &m); err != nil {
			return
		}
		if msg := validateMeal(m); msg != "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%s", msg)
			return
		}
		if m.ID == "" {
			m.ID = uuid.New().String()
		}
		if err := deps.Store.SaveMeal(m); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save meal: %v", err)
			return
		}
		w.WriteHeader(http.StatusCreated)
		writeJSON(w, m)
	}
}

func handleGetCatalogMeal(deps AdminDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meal, err := deps.Store.GetMeal(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "meal not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get meal: %v", err)
			return
		}
		writeJSON(w, meal)
	}
}

func handleUpdateMeal(deps AdminDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var m recommend.Meal
		if err := decodeBody(w, r, &m); err != nil {
			return
		}
		m.ID = chi.URLParam(r, "id")
		if msg := validateMeal(m); msg != "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%s", msg)
			return
		}
		err := deps.Store.UpdateMeal(m)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "meal not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to update meal: %v", err)
			return
		}
		writeJSON(w, m)
	}
}

type importMenuRequest struct {
	Merchant string `json:"merchant"`
	Format   string `json:"format"`  // "text" or "pdf"
	Content  string `json:"content"` // raw text, or base64 for pdf
}

func handleImportMenu(deps AdminDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxImageBodySize)
		var req importMenuRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Merchant == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "merchant is required")
			return
		}
		if req.Content == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "content is required")
			return
		}
		switch req.Format {
		case "":
			req.Format = "text"
		case "text":
		case "pdf":
			if _, err := base64.StdEncoding.DecodeString(req.Content); err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "pdf content must be base64")
				return
			}
		default:
			httpError(w, http.StatusBadRequest, "invalid_request_error", "format must be text or pdf")
			return
		}

		doc := storage.MenuDoc{
			ID:        uuid.New().String(),
			Merchant:  req.Merchant,
			Format:    req.Format,
			Content:   req.Content,
			CreatedAt: time.Now().UTC(),
		}
		if err := deps.Store.SaveMenuDoc(doc); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save menu doc: %v", err)
			return
		}

		job := storage.Job{
			ID:          uuid.New().String(),
			Type:        importer.JobType,
			PayloadJSON: importer.EnqueuePayload(doc.ID),
		}
		if err := deps.Store.EnqueueJob(job); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to enqueue import: %v", err)
			return
		}
		if deps.Metrics != nil {
			deps.Metrics.MenuImportsQueued.Inc()
		}

		w.WriteHeader(http.StatusAccepted)
		writeJSON(w, map[string]string{
			"id":     doc.ID,
			"status": "queued",
		})
	}
}

func handleGetMenuDoc(deps AdminDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc, err := deps.Store.GetMenuDoc(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "menu doc not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get menu doc: %v", err)
			return
		}
		// Content can be large (base64 PDFs); the status view omits it.
		writeJSON(w, map[string]any{
			"id":         doc.ID,
			"merchant":   doc.Merchant,
			"format":     doc.Format,
			"status":     doc.Status,
			"created_at": doc.CreatedAt,
		})
	}
}

// handleAnalytics serves the merchant-facing engagement snapshot. Traffic and
// engagement series come from the demo dataset until click tracking lands;
// catalog_size is live.
func handleAnalytics(deps AdminDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meals, err := deps.Store.ListMeals()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list meals: %v", err)
			return
		}

		writeJSON(w, map[string]any{
			"catalog_size": len(meals),
			"kpis": map[string]any{
				"impressions": 12500,
				"clicks":      850,
				"navigations": 120,
				"revenue":     24000,
			},
			"weekly_traffic": []int{45, 62, 58, 85, 92, 115, 128},
			"top_meals": []map[string]any{
				{"name": "舒肥雞胸沙拉", "clicks": 320, "growth": 12},
				{"name": "藜麥鮭魚碗", "clicks": 280, "growth": 8},
				{"name": "低脂雞腿便當", "clicks": 150, "growth": -2},
			},
		})
	}
}
