package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mealwise/mealwise/internal/importer"
	"github.com/mealwise/mealwise/internal/recommend"
	"github.com/mealwise/mealwise/internal/storage"
)

const testToken = "test-token-12345"

func setupAdmin(t *testing.T, token string) (http.Handler, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	handler := NewAdminHandler(AdminDeps{
		Store:   store,
		Token:   token,
		Metrics: NewMetrics(),
	})
	return handler, store
}

func adminReq(method, url, body, token string) *http.Request {
	req := jsonReq(method, url, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestAdmin_RequiresToken(t *testing.T) {
	h, _ := setupAdmin(t, testToken)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, adminReq(http.MethodGet, "/meals", "", ""))
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, adminReq(http.MethodGet, "/meals", "", "wrong-token"))
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("wrong token: status = %d, want 401", rr.Code)
	}
}

func TestAdmin_DisabledWithoutConfiguredToken(t *testing.T) {
	h, _ := setupAdmin(t, "")

	// An empty configured token must not accept "Bearer " with an empty
	// credential.
	rr := httptest.NewRecorder()
	req := adminReq(http.MethodGet, "/meals", "", "")
	req.Header.Set("Authorization", "Bearer ")
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403 when admin token unset", rr.Code)
	}
}

func TestAdmin_MealCRUD(t *testing.T) {
	h, _ := setupAdmin(t, testToken)

	body := `{"name":"舒肥雞胸便當","merchant":"健康廚房","calories":520,"price":120,"distance":0.8,"macros":{"protein":38,"fat":14,"carbs":55}}`
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, adminReq(http.MethodPost, "/meals", body, testToken))
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var created recommend.Meal
	json.NewDecoder(rr.Body).Decode(&created)
	if created.ID == "" {
		t.Fatal("created meal has no id")
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, adminReq(http.MethodGet, "/meals/"+created.ID, "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("get: status = %d", rr.Code)
	}

	update := `{"name":"舒肥雞胸便當","merchant":"健康廚房","calories":540,"price":130}`
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, adminReq(http.MethodPut, "/meals/"+created.ID, update, testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("update: status = %d, body = %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, adminReq(http.MethodGet, "/meals", "", testToken))
	var meals []recommend.Meal
	json.NewDecoder(rr.Body).Decode(&meals)
	if len(meals) != 1 || meals[0].Calories != 540 {
		t.Errorf("catalog = %+v, want one updated meal", meals)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, adminReq(http.MethodPut, "/meals/no-such-id", update, testToken))
	if rr.Code != http.StatusNotFound {
		t.Errorf("update missing: status = %d, want 404", rr.Code)
	}
}

func TestAdmin_CreateMealValidation(t *testing.T) {
	h, _ := setupAdmin(t, testToken)

	for _, body := range []string{
		`{"calories":500,"price":100}`,
		`{"name":"x","calories":0,"price":100}`,
		`{"name":"x","calories":500,"price":-1}`,
	} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, adminReq(http.MethodPost, "/meals", body, testToken))
		if rr.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, rr.Code)
		}
	}
}

func TestAdmin_ImportMenuQueuesJob(t *testing.T) {
	h, store := setupAdmin(t, testToken)

	body := `{"merchant":"小巷沙拉","format":"text","content":"凱薩雞肉沙拉 | 420 | 160"}`
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, adminReq(http.MethodPost, "/menus", body, testToken))
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var resp map[string]string
	json.NewDecoder(rr.Body).Decode(&resp)
	if resp["status"] != "queued" || resp["id"] == "" {
		t.Fatalf("response = %v", resp)
	}

	doc, err := store.GetMenuDoc(resp["id"])
	if err != nil {
		t.Fatalf("GetMenuDoc: %v", err)
	}
	if doc.Status != "queued" {
		t.Errorf("doc status = %q, want queued", doc.Status)
	}

	job, err := store.ClaimNextJob([]string{importer.JobType})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if job == nil {
		t.Fatal("no import job enqueued")
	}

	// Status view omits content.
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, adminReq(http.MethodGet, "/menus/"+resp["id"], "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("get doc: status = %d", rr.Code)
	}
	var view map[string]any
	json.NewDecoder(rr.Body).Decode(&view)
	if _, ok := view["content"]; ok {
		t.Error("menu doc view exposes raw content")
	}
}

func TestAdmin_ImportMenuValidation(t *testing.T) {
	h, _ := setupAdmin(t, testToken)

	cases := []string{
		`{"format":"text","content":"x | 1 | 2"}`,
		`{"merchant":"m","format":"text"}`,
		`{"merchant":"m","format":"docx","content":"x"}`,
		`{"merchant":"m","format":"pdf","content":"not base64!!!"}`,
	}
	for _, body := range cases {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, adminReq(http.MethodPost, "/menus", body, testToken))
		if rr.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, rr.Code)
		}
	}
}

func TestAdmin_Analytics(t *testing.T) {
	h, store := setupAdmin(t, testToken)
	seedMeal(t, store, "meal-a", 1, 20, 400, 100)
	seedMeal(t, store, "meal-b", 1, 20, 400, 100)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, adminReq(http.MethodGet, "/analytics", "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}

	var resp struct {
		CatalogSize   int            `json:"catalog_size"`
		KPIs          map[string]int `json:"kpis"`
		WeeklyTraffic []int          `json:"weekly_traffic"`
	}
	json.NewDecoder(rr.Body).Decode(&resp)
	if resp.CatalogSize != 2 {
		t.Errorf("catalog_size = %d, want 2", resp.CatalogSize)
	}
	if resp.KPIs["impressions"] != 12500 {
		t.Errorf("impressions = %d, want 12500", resp.KPIs["impressions"])
	}
	if len(resp.WeeklyTraffic) != 7 {
		t.Errorf("weekly_traffic has %d points, want 7", len(resp.WeeklyTraffic))
	}
}
