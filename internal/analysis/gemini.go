package analysis

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com"
	DefaultGeminiModel   = "gemini-2.5-flash"
)

var errNoAPIKey = errors.New("gemini api key not set")

type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// Gemini calls the generateContent REST endpoint with a JSON response schema.
type Gemini struct {
	client *resty.Client
	apiKey string
	model  string
}

func NewGemini(cfg GeminiConfig) *Gemini {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultGeminiBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultGeminiModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	c := resty.New().
		SetBaseURL(strings.TrimRight(base, "/")).
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)
	return &Gemini{client: c, apiKey: cfg.APIKey, model: model}
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	ResponseMimeType string         `json:"responseMimeType"`
	ResponseSchema   map[string]any `json:"responseSchema"`
	Temperature      float64        `json:"temperature"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (g *Gemini) Infer(ctx context.Context, image []byte, mime string) Outcome {
	if g.apiKey == "" {
		return Transport(errNoAPIKey)
	}
	body := generateRequest{
		Contents: []content{{
			Role: "user",
			Parts: []part{
				{InlineData: &inlineData{MimeType: mime, Data: base64.StdEncoding.EncodeToString(image)}},
				{Text: Prompt},
			},
		}},
		GenerationConfig: generationConfig{
			ResponseMimeType: "application/json",
			ResponseSchema:   ResponseSchema,
			Temperature:      0.2,
		},
	}

	var out generateResponse
	var apiErr apiError
	resp, err := g.client.R().
		SetContext(ctx).
		SetHeader("x-goog-api-key", g.apiKey).
		SetPathParam("model", g.model).
		SetBody(&body).
		SetResult(&out).
		SetError(&apiErr).
		Post("/v1beta/models/{model}:generateContent")
	if err != nil {
		return Transport(fmt.Errorf("gemini request: %w", err))
	}
	if resp.StatusCode() != http.StatusOK {
		return Transport(fmt.Errorf("gemini status %d: %s", resp.StatusCode(), apiErr.Error.Message))
	}

	if out.PromptFeedback != nil && out.PromptFeedback.BlockReason != "" {
		return Violation(fmt.Errorf("prompt blocked: %s", out.PromptFeedback.BlockReason))
	}
	if len(out.Candidates) == 0 {
		return Violation(errors.New("no candidates"))
	}
	var text strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		text.WriteString(p.Text)
	}
	result, err := decodeResult(text.String())
	if err != nil {
		return Violation(err)
	}
	return Succeeded(result)
}
