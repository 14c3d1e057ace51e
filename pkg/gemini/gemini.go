// Package gemini wraps the Google generative AI client into a single text-in, text-out call.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/yusufsyaifudin/edumail/pkg/validator"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const DefaultModel = "gemini-1.5-pro"

var (
	ErrInvalidKey = errors.New("gemini api key invalid")
	ErrQuota      = errors.New("gemini quota exceeded")
	ErrEmpty      = errors.New("gemini returned empty content")
)

type Config struct {
	APIKey string `validate:"required"`
	Model  string `validate:"-"`
}

type Client struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

func New(ctx context.Context, cfg Config) (*Client, error) {
	if err := validator.Validate(cfg); err != nil {
		return nil, fmt.Errorf("gemini config validation error: %w", err)
	}

	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("gemini new client error: %w", err)
	}

	model := client.GenerativeModel(cfg.Model)
	configure(model)

	return &Client{
		client: client,
		model:  model,
	}, nil
}

// configure sets the sampling and safety parameters used for every draft.
func configure(model *genai.GenerativeModel) {
	model.SetTemperature(0.7)
	model.SetTopP(0.8)
	model.SetTopK(40)
	model.SetMaxOutputTokens(2048)

	categories := []genai.HarmCategory{
		genai.HarmCategoryHarassment,
		genai.HarmCategoryHateSpeech,
		genai.HarmCategorySexuallyExplicit,
		genai.HarmCategoryDangerousContent,
	}

	model.SafetySettings = make([]*genai.SafetySetting, 0, len(categories))
	for _, category := range categories {
		model.SafetySettings = append(model.SafetySettings, &genai.SafetySetting{
			Category:  category,
			Threshold: genai.HarmBlockMediumAndAbove,
		})
	}
}

// GenerateText returns the concatenated text parts of the first candidate.
// Errors match ErrInvalidKey, ErrQuota or ErrEmpty with errors.Is when applicable.
func (c *Client) GenerateText(ctx context.Context, prompt string) (string, error) {
	resp, err := c.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", classify(err)
	}

	text := responseText(resp)
	if strings.TrimSpace(text) == "" {
		return "", ErrEmpty
	}

	return text, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}

	cand := resp.Candidates[0]
	if cand == nil || cand.Content == nil {
		return ""
	}

	var sb strings.Builder
	for _, part := range cand.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}

	return sb.String()
}

func classify(err error) error {
	msg := err.Error()
	if strings.Contains(msg, "API_KEY_INVALID") {
		return fmt.Errorf("%w: %s", ErrInvalidKey, msg)
	}

	if strings.Contains(strings.ToLower(msg), "quota") {
		return fmt.Errorf("%w: %s", ErrQuota, msg)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %s", ErrInvalidKey, msg)
		case http.StatusTooManyRequests:
			return fmt.Errorf("%w: %s", ErrQuota, msg)
		}
	}

	return fmt.Errorf("gemini generate content error: %w", err)
}

// Disabled stands in when no API key is configured, every call fails as an invalid key.
type Disabled struct{}

func (Disabled) GenerateText(context.Context, string) (string, error) {
	return "", fmt.Errorf("%w: GEMINI_API_KEY is not set", ErrInvalidKey)
}
