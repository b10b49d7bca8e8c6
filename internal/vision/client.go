// Package vision wraps the external generative-AI service used for food
// image analysis, image editing, and location-grounded suggestions. The
// client never retries; failures propagate to the caller, which owns the
// user-facing messaging.
package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Sentinel errors so callers can distinguish which capability failed.
var (
	ErrAnalysis = errors.New("image analysis failed")
	ErrEdit     = errors.New("image edit failed")
	ErrNearby   = errors.New("nearby lookup failed")
)

// Analysis is the structured nutrition result for a food photo.
type Analysis struct {
	FoodName  string `json:"foodName"`
	Calories  string `json:"calories"`
	Nutrients string `json:"nutrients"`
	Advice    string `json:"advice"`
}

// Nearby is a location-grounded recommendation: free text plus source
// citations from the grounding metadata.
type Nearby struct {
	Text      string   `json:"text"`
	Citations []string `json:"citations"`
}

// Client talks to a Gemini-style generateContent endpoint over HTTP.
type Client struct {
	baseURL     string
	apiKey      string
	visionModel string
	imageModel  string
	textModel   string
	httpClient  *http.Client
}

// Options configures a Client. Zero-value model names fall back to the
// service defaults below.
type Options struct {
	BaseURL     string
	APIKey      string
	VisionModel string
	ImageModel  string
	TextModel   string
}

const (
	defaultBaseURL     = "https://generativelanguage.googleapis.com"
	defaultVisionModel = "gemini-3-pro-preview"
	defaultImageModel  = "gemini-2.5-flash-image"
	defaultTextModel   = "gemini-2.5-flash"
)

// New creates a Client. Network timeouts are per-call via context.
func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.VisionModel == "" {
		opts.VisionModel = defaultVisionModel
	}
	if opts.ImageModel == "" {
		opts.ImageModel = defaultImageModel
	}
	if opts.TextModel == "" {
		opts.TextModel = defaultTextModel
	}
	return &Client{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		apiKey:      opts.APIKey,
		visionModel: opts.VisionModel,
		imageModel:  opts.ImageModel,
		textModel:   opts.TextModel,
		httpClient:  &http.Client{Timeout: 0},
	}
}

// --- wire types (generateContent request/response) ---

type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
	Tools            []tool            `json:"tools,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"` // base64
}

type generationConfig struct {
	ResponseMimeType string          `json:"responseMimeType,omitempty"`
	ResponseSchema   json.RawMessage `json:"responseSchema,omitempty"`
}

type tool struct {
	GoogleMaps *struct{} `json:"googleMaps,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content           content `json:"content"`
		GroundingMetadata *struct {
			GroundingChunks []struct {
				Web *struct {
					URI   string `json:"uri"`
					Title string `json:"title"`
				} `json:"web"`
			} `json:"groundingChunks"`
		} `json:"groundingMetadata"`
	} `json:"candidates"`
}

var analysisSchema = json.RawMessage(`{
	"type": "OBJECT",
	"properties": {
		"foodName": {"type": "STRING"},
		"calories": {"type": "STRING"},
		"nutrients": {"type": "STRING"},
		"advice": {"type": "STRING"}
	}
}`)

const analysisPrompt = "請分析這張圖片中的食物。請回傳一個 JSON 物件，包含以下欄位：" +
	"foodName (食物名稱), calories (預估熱量), nutrients (主要營養素簡述), " +
	"advice (給健康飲食者的簡短建議)。請使用繁體中文。"

// AnalyzeFood submits a food photo and returns structured nutrition data.
func (c *Client) AnalyzeFood(ctx context.Context, image []byte, mimeType string) (Analysis, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req := generateRequest{
		Contents: []content{{Parts: []part{
			{InlineData: &inlineData{MimeType: mimeType, Data: base64.StdEncoding.EncodeToString(image)}},
			{Text: analysisPrompt},
		}}},
		GenerationConfig: &generationConfig{
			ResponseMimeType: "application/json",
			ResponseSchema:   analysisSchema,
		},
	}

	resp, err := c.generate(ctx, c.visionModel, req)
	if err != nil {
		return Analysis{}, fmt.Errorf("%w: %v", ErrAnalysis, err)
	}

	text := firstText(resp)
	if text == "" {
		return Analysis{}, fmt.Errorf("%w: empty response", ErrAnalysis)
	}

	var a Analysis
	if err := json.Unmarshal([]byte(text), &a); err != nil {
		return Analysis{}, fmt.Errorf("%w: decoding result: %v", ErrAnalysis, err)
	}
	return a, nil
}

// EditImage submits an image plus an instruction and returns the edited
// image bytes and their mime type.
func (c *Client) EditImage(ctx context.Context, image []byte, mimeType, instruction string) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	req := generateRequest{
		Contents: []content{{Parts: []part{
			{InlineData: &inlineData{MimeType: mimeType, Data: base64.StdEncoding.EncodeToString(image)}},
			{Text: instruction},
		}}},
	}

	resp, err := c.generate(ctx, c.imageModel, req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrEdit, err)
	}

	for _, cand := range resp.Candidates {
		for _, p := range cand.Content.Parts {
			if p.InlineData == nil {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
			if err != nil {
				return nil, "", fmt.Errorf("%w: decoding image data: %v", ErrEdit, err)
			}
			return data, p.InlineData.MimeType, nil
		}
	}
	return nil, "", fmt.Errorf("%w: no image in response", ErrEdit)
}

// NearbyHealthyFood asks for restaurant suggestions grounded on the user's
// location. Optional capability — not wired into the ranking engine.
func (c *Client) NearbyHealthyFood(ctx context.Context, lat, lon float64, query string) (Nearby, error) {
	if query == "" {
		query = "健康的午餐選擇"
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	prompt := fmt.Sprintf("我在這個位置 (緯度: %g, 經度: %g)。%s。請推薦附近 3-5 家適合的餐廳。", lat, lon, query)
	req := generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
		Tools:    []tool{{GoogleMaps: &struct{}{}}},
	}

	resp, err := c.generate(ctx, c.textModel, req)
	if err != nil {
		return Nearby{}, fmt.Errorf("%w: %v", ErrNearby, err)
	}

	out := Nearby{Text: firstText(resp)}
	for _, cand := range resp.Candidates {
		if cand.GroundingMetadata == nil {
			continue
		}
		for _, chunk := range cand.GroundingMetadata.GroundingChunks {
			if chunk.Web != nil && chunk.Web.URI != "" {
				out.Citations = append(out.Citations, chunk.Web.URI)
			}
		}
	}
	return out, nil
}

func (c *Client) generate(ctx context.Context, model string, req generateRequest) (generateResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return generateResponse{}, fmt.Errorf("encoding request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.baseURL, model, c.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return generateResponse{}, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return generateResponse{}, fmt.Errorf("calling service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return generateResponse{}, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return generateResponse{}, fmt.Errorf("decoding response: %w", err)
	}
	return out, nil
}

func firstText(resp generateResponse) string {
	for _, cand := range resp.Candidates {
		for _, p := range cand.Content.Parts {
			if p.Text != "" {
				return p.Text
			}
		}
	}
	return ""
}
