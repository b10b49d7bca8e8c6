package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mealwise/mealwise/internal/config"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		adminToken: "test-token",
		httpClient: ts.server.Client(),
	}
}

var ctx = context.Background()

func TestLogCommand_PostsEntry(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /log": `{"id":"e1","name":"雞胸沙拉","calories":420,"source":"cli"}`,
	})

	client := ts.client()
	resp, err := client.post(ctx, "/log", map[string]any{
		"name":     "雞胸沙拉",
		"calories": 420,
		"source":   "cli",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var entry struct {
		Name     string `json:"name"`
		Calories int    `json:"calories"`
	}
	if err := decodeJSON(resp, &entry); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if entry.Name != "雞胸沙拉" || entry.Calories != 420 {
		t.Errorf("entry = %+v, want 雞胸沙拉 / 420", entry)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	var sent map[string]any
	if err := json.Unmarshal([]byte(ts.requests[0].Body), &sent); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if sent["source"] != "cli" {
		t.Errorf("body.source = %v, want cli", sent["source"])
	}
}

func TestLogCommand_RejectsNonNumericCalories(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"log", "salad", "lots"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error for non-numeric calories")
	}
	if !strings.Contains(err.Error(), "number") {
		t.Errorf("error = %q, want it to mention 'number'", err.Error())
	}
}

func TestProfileValue_Types(t *testing.T) {
	tests := []struct {
		key, value string
		want       any
	}{
		{"age", "30", 30},
		{"height", "175.5", 175.5},
		{"weight", "70", 70.0},
		{"gender", "female", "female"},
		{"activity_level", "heavy", "heavy"},
		{"age", "abc", "abc"}, // left as-is; the server rejects it
	}
	for _, tt := range tests {
		got := profileValue(tt.key, tt.value)
		if got != tt.want {
			t.Errorf("profileValue(%q, %q) = %v (%T), want %v (%T)",
				tt.key, tt.value, got, got, tt.want, tt.want)
		}
	}
}

func TestProfileSet_SendsTypedJSON(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"PATCH /profile": `{"gender":"male","age":28,"height":175,"weight":65.5,"activity_level":"moderate"}`,
	})

	client := ts.client()
	resp, err := client.patch(ctx, "/profile", map[string]any{"weight": profileValue("weight", "65.5")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var updated map[string]any
	if err := decodeJSON(resp, &updated); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	var sent map[string]any
	if err := json.Unmarshal([]byte(ts.requests[0].Body), &sent); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	// JSON numbers decode as float64; the point is it was not sent as a string.
	if sent["weight"] != 65.5 {
		t.Errorf("body.weight = %v (%T), want 65.5", sent["weight"], sent["weight"])
	}
}

func TestTargetsResponseShape(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /targets": `{"bmr":1659,"tdee":2571,"daily_calories":2185,"macros":{"protein":164,"carbs":219,"fat":73}}`,
	})

	client := ts.client()
	resp, err := client.get(ctx, "/targets")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var targets struct {
		BMR           int `json:"bmr"`
		DailyCalories int `json:"daily_calories"`
		Macros        struct {
			Protein int `json:"protein"`
		} `json:"macros"`
	}
	if err := decodeJSON(resp, &targets); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if targets.BMR != 1659 || targets.DailyCalories != 2185 {
		t.Errorf("targets = %+v, want bmr 1659 / daily 2185", targets)
	}
	if targets.Macros.Protein != 164 {
		t.Errorf("protein = %d, want 164", targets.Macros.Protein)
	}
}

func TestRecommendResponseShape(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /recommendations": `{"remaining_budget":1800,"meals":[{"id":"m1","name":"舒肥雞胸沙拉","merchant":"健康廚房","calories":420,"price":160,"distance":0.8,"score":8,"high_protein":true}]}`,
	})

	client := ts.client()
	resp, err := client.get(ctx, "/recommendations")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result struct {
		RemainingBudget int `json:"remaining_budget"`
		Meals           []struct {
			Name        string `json:"name"`
			HighProtein bool   `json:"high_protein"`
		} `json:"meals"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if result.RemainingBudget != 1800 {
		t.Errorf("remaining_budget = %d, want 1800", result.RemainingBudget)
	}
	if len(result.Meals) != 1 || !result.Meals[0].HighProtein {
		t.Errorf("meals = %+v, want one high-protein meal", result.Meals)
	}
}

func TestStatsCommand_RecordsWater(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /stats/water": `{"status":"recorded"}`,
	})

	client := ts.client()
	resp, err := client.post(ctx, "/stats/water", map[string]int{"ml": 300})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var ack map[string]string
	if err := decodeJSON(resp, &ack); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if ack["status"] != "recorded" {
		t.Errorf("status = %q, want recorded", ack["status"])
	}

	var sent map[string]any
	if err := json.Unmarshal([]byte(ts.requests[0].Body), &sent); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if sent["ml"] != 300.0 {
		t.Errorf("body.ml = %v, want 300", sent["ml"])
	}
}

func TestMenuImport_MissingMerchant(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"menu", "import", "menu.txt"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error for missing --merchant")
	}
	if !strings.Contains(err.Error(), "merchant") {
		t.Errorf("error = %q, want it to mention 'merchant'", err.Error())
	}
}

func TestAPIClientAuth(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /admin/meals": `[]`,
	})

	client := ts.client()
	client.adminToken = "my-secret-token"

	resp, err := client.get(ctx, "/admin/meals")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	if ts.requests[0].Auth != "Bearer my-secret-token" {
		t.Errorf("auth = %q, want 'Bearer my-secret-token'", ts.requests[0].Auth)
	}
}

func TestAPIClient_NoTokenNoHeader(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /stats": `{}`,
	})

	client := ts.client()
	client.adminToken = ""

	resp, err := client.get(ctx, "/stats")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	if ts.requests[0].Auth != "" {
		t.Errorf("auth = %q, want empty when no admin token is configured", ts.requests[0].Auth)
	}
}

func TestDecodeJSON_ErrorResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(401)
		w.Write([]byte(`{"error":{"message":"unauthorized","type":"auth_error"}}`))
	}))
	defer ts.Close()

	client := &apiClient{
		baseURL:    ts.URL,
		adminToken: "bad-token",
		httpClient: ts.Client(),
	}

	resp, err := client.get(ctx, "/profile")
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}

	var result any
	err = decodeJSON(resp, &result)
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("error = %q, want it to contain '401'", err.Error())
	}
}

func TestStatusCommand_Stopped(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	ts.server.Close()

	client := ts.client()
	_, err := client.get(ctx, "/health")
	if err == nil {
		t.Fatal("expected error for stopped server")
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error = %q, want it to mention 'not reachable'", err.Error())
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", result)
	}
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestConfigShowAll(t *testing.T) {
	cfg := config.Config{}
	cfg.Server.Port = 4600
	cfg.Gemini.VisionModel = "gemini-3-pro-preview"

	keys := config.ShowAll(cfg)
	if len(keys) == 0 {
		t.Fatal("expected non-empty keys from ShowAll")
	}

	found := false
	for _, k := range keys {
		if k.Key == "server.port" && k.Value == "4600" {
			found = true
		}
	}
	if !found {
		t.Error("expected to find server.port=4600 in ShowAll output")
	}
}
