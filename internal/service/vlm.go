package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/jsonschema-go/jsonschema"
	"github.com/timmy/imgfind/internal/domain"
	"github.com/timmy/imgfind/internal/prompts"
)

const defaultVLMTimeout = 120 * time.Second

// VLMService captions images through an OpenAI-compatible vision model
// using schema-constrained JSON output.
type VLMService struct {
	client    *resty.Client
	model     string
	endpoint  string
	maxTokens int
	schema    *jsonschema.Schema
}

// VLMConfig holds configuration for VLM service.
type VLMConfig struct {
	Model     string
	APIKey    string
	BaseURL   string
	Timeout   time.Duration
	MaxTokens int
}

// NewVLMService creates a new VLM service.
// Parameters:
//   - cfg: model, endpoint and timeout settings.
//
// Returns:
//   - *VLMService: initialized VLM client wrapper.
//   - error: non-nil if the response schema cannot be generated.
func NewVLMService(cfg *VLMConfig) (*VLMService, error) {
	schema, err := DescriptionSchema()
	if err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultVLMTimeout
	}

	client := resty.New()
	client.SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	}
	client.SetTimeout(timeout)

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "http://localhost:1234/v1"
	}

	return &VLMService{
		client:    client,
		model:     cfg.Model,
		endpoint:  baseURL + "/chat/completions",
		maxTokens: cfg.MaxTokens,
		schema:    schema,
	}, nil
}

// GetModel returns the model name being used.
func (s *VLMService) GetModel() string {
	return s.model
}

// DescriptionSchema builds the JSON schema of domain.Description sent in
// response_format.
func DescriptionSchema() (*jsonschema.Schema, error) {
	schema, err := jsonschema.For[domain.Description](nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build description schema: %w", err)
	}

	minLen, maxLen := 1, domain.MaxNameLength
	if p, ok := schema.Properties["description"]; ok {
		p.MinLength = &minLen
	}
	if p, ok := schema.Properties["name"]; ok {
		p.MinLength = &minLen
		p.MaxLength = &maxLen
	}
	return schema, nil
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []interface{} `json:"content"`
}

type textPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type imagePart struct {
	Type     string   `json:"type"`
	ImageURL imageURL `json:"image_url"`
}

type imageURL struct {
	URL string `json:"url"`
}

type responseFormat struct {
	Type       string            `json:"type"`
	JSONSchema *jsonSchemaFormat `json:"json_schema,omitempty"`
}

type jsonSchemaFormat struct {
	Name   string             `json:"name"`
	Strict bool               `json:"strict"`
	Schema *jsonschema.Schema `json:"schema"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type apiError struct {
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Describe captions one image.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - imageData: raw image bytes.
//   - format: image format extension (jpg, jpeg, png).
//
// Returns:
//   - *domain.Description: validated caption record.
//   - error: transport, HTTP, parse or validation failure.
func (s *VLMService) Describe(ctx context.Context, imageData []byte, format string) (*domain.Description, error) {
	if len(imageData) == 0 {
		return nil, fmt.Errorf("empty image data")
	}

	dataURL := fmt.Sprintf("data:%s;base64,%s", getMIMEType(format), base64.StdEncoding.EncodeToString(imageData))

	req := chatRequest{
		Model: s.model,
		Messages: []chatMessage{
			{
				Role: "user",
				Content: []interface{}{
					textPart{Type: "text", Text: prompts.CaptionUserPrompt},
					imagePart{Type: "image_url", ImageURL: imageURL{URL: dataURL}},
				},
			},
		},
		MaxTokens: s.maxTokens,
		ResponseFormat: &responseFormat{
			Type: "json_schema",
			JSONSchema: &jsonSchemaFormat{
				Name:   prompts.CaptionSchemaName,
				Strict: true,
				Schema: s.schema,
			},
		},
	}

	var resp chatResponse
	var errResp apiError
	httpResp, err := s.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		SetError(&errResp).
		Post(s.endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to call VLM API: %w", err)
	}

	if httpResp.IsError() {
		errorMsg := fmt.Sprintf("HTTP %d: %s", httpResp.StatusCode(), string(httpResp.Body()))
		if errResp.Error != nil && errResp.Error.Message != "" {
			errorMsg = fmt.Sprintf("HTTP %d: %s", httpResp.StatusCode(), errResp.Error.Message)
		}
		return nil, fmt.Errorf("VLM API returned error: %s", errorMsg)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in VLM response (status: %d)", httpResp.StatusCode())
	}

	desc, err := domain.ParseDescription(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse VLM output: %w", err)
	}
	return desc, nil
}

func getMIMEType(format string) string {
	switch strings.ToLower(strings.TrimPrefix(format, ".")) {
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
