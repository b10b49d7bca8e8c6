package vision

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func fakeServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Options{BaseURL: srv.URL, APIKey: "test-key"})
}

func writeTextResponse(w http.ResponseWriter, text string) {
	resp := map[string]any{
		"candidates": []map[string]any{
			{"content": map[string]any{"parts": []map[string]any{{"text": text}}}},
		},
	}
	json.NewEncoder(w).Encode(resp)
}

func TestAnalyzeFood(t *testing.T) {
	var gotPath string
	var gotReq generateRequest
	c := fakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		writeTextResponse(w, `{"foodName":"舒肥雞胸肉沙拉","calories":"約 350 大卡","nutrients":"蛋白質 35g","advice":"很好的選擇"}`)
	})

	got, err := c.AnalyzeFood(context.Background(), []byte("fake-image"), "image/jpeg")
	if err != nil {
		t.Fatalf("AnalyzeFood: %v", err)
	}
	if got.FoodName != "舒肥雞胸肉沙拉" {
		t.Errorf("FoodName = %q", got.FoodName)
	}
	if got.Advice == "" {
		t.Error("Advice empty")
	}

	if !strings.Contains(gotPath, ":generateContent") {
		t.Errorf("path = %q, want generateContent endpoint", gotPath)
	}
	parts := gotReq.Contents[0].Parts
	if parts[0].InlineData == nil || parts[0].InlineData.MimeType != "image/jpeg" {
		t.Fatalf("first part = %+v, want inline image data", parts[0])
	}
	decoded, err := base64.StdEncoding.DecodeString(parts[0].InlineData.Data)
	if err != nil || string(decoded) != "fake-image" {
		t.Errorf("inline data round-trip failed: %v", err)
	}
	if gotReq.GenerationConfig == nil || gotReq.GenerationConfig.ResponseMimeType != "application/json" {
		t.Error("request missing JSON response config")
	}
}

func TestAnalyzeFood_ServerError(t *testing.T) {
	c := fakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"quota exceeded"}`, http.StatusTooManyRequests)
	})

	_, err := c.AnalyzeFood(context.Background(), []byte("x"), "image/png")
	if !errors.Is(err, ErrAnalysis) {
		t.Fatalf("err = %v, want ErrAnalysis", err)
	}
	if !strings.Contains(err.Error(), "429") {
		t.Errorf("err = %v, want status in message", err)
	}
}

func TestAnalyzeFood_MalformedResult(t *testing.T) {
	c := fakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeTextResponse(w, "not json at all")
	})

	_, err := c.AnalyzeFood(context.Background(), []byte("x"), "image/png")
	if !errors.Is(err, ErrAnalysis) {
		t.Fatalf("err = %v, want ErrAnalysis", err)
	}
}

func TestEditImage_ReturnsInlineImage(t *testing.T) {
	edited := []byte("edited-image-bytes")
	c := fakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]any{
					{"text": "here is your image"},
					{"inlineData": map[string]any{
						"mimeType": "image/png",
						"data":     base64.StdEncoding.EncodeToString(edited),
					}},
				}}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	})

	got, mime, err := c.EditImage(context.Background(), []byte("original"), "image/jpeg", "讓這份餐點看起來更豐盛")
	if err != nil {
		t.Fatalf("EditImage: %v", err)
	}
	if string(got) != string(edited) {
		t.Errorf("image bytes = %q, want %q", got, edited)
	}
	if mime != "image/png" {
		t.Errorf("mime = %q, want image/png", mime)
	}
}

func TestEditImage_NoImageInResponse(t *testing.T) {
	c := fakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeTextResponse(w, "sorry, text only")
	})

	_, _, err := c.EditImage(context.Background(), []byte("x"), "image/png", "edit")
	if !errors.Is(err, ErrEdit) {
		t.Fatalf("err = %v, want ErrEdit", err)
	}
}

func TestNearbyHealthyFood_CollectsCitations(t *testing.T) {
	var gotPrompt string
	c := fakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		json.NewDecoder(r.Body).Decode(&req)
		gotPrompt = req.Contents[0].Parts[0].Text
		fmt.Fprint(w, `{
			"candidates": [{
				"content": {"parts": [{"text": "附近有三家健康餐廳"}]},
				"groundingMetadata": {
					"groundingChunks": [
						{"web": {"uri": "https://maps.example/a", "title": "A店"}},
						{"web": {"uri": "https://maps.example/b", "title": "B店"}}
					]
				}
			}]
		}`)
	})

	got, err := c.NearbyHealthyFood(context.Background(), 25.033, 121.565, "")
	if err != nil {
		t.Fatalf("NearbyHealthyFood: %v", err)
	}
	if got.Text != "附近有三家健康餐廳" {
		t.Errorf("Text = %q", got.Text)
	}
	if len(got.Citations) != 2 || got.Citations[0] != "https://maps.example/a" {
		t.Errorf("Citations = %v, want both grounding URIs", got.Citations)
	}
	if !strings.Contains(gotPrompt, "25.033") {
		t.Errorf("prompt %q missing latitude", gotPrompt)
	}
}
