package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"google.golang.org/genai"
)

var codeFenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// Client wraps the Gemini API for layout classification.
type Client struct {
	genai   *genai.Client
	model   string
	retries int
	log     *slog.Logger
}

// NewClient builds a Gemini-backed oracle client. retries is the number of
// additional attempts after a failed first call (each retry re-sends the
// prompt with RetryAmendment appended).
func NewClient(ctx context.Context, apiKey, model string, retries int, log *slog.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("oracle: missing API key")
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("oracle: create genai client: %w", err)
	}
	return &Client{genai: gc, model: model, retries: retries, log: log}, nil
}

// ProposeLayoutSchema sends the representative-page PDF plus prompt to the
// oracle and returns the corrected schema. Responses that fail decoding or
// structural validation trigger a bounded retry with an amended prompt.
func (c *Client) ProposeLayoutSchema(ctx context.Context, prompt string, samplePDF []byte) (*LayoutSchema, error) {
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		p := prompt
		if attempt > 0 {
			p = prompt + RetryAmendment
			c.log.Warn("oracle retry with amended prompt", "attempt", attempt, "error", lastErr)
		}

		raw, err := c.generate(ctx, p, samplePDF)
		if err != nil {
			lastErr = err
			continue
		}

		schema, err := DecodeResponse(raw)
		if err != nil {
			lastErr = err
			continue
		}
		if err := ValidateAndCorrect(schema, c.log); err != nil {
			lastErr = err
			continue
		}
		return schema, nil
	}
	return nil, fmt.Errorf("oracle: all attempts failed: %w", lastErr)
}

func (c *Client) generate(ctx context.Context, prompt string, samplePDF []byte) (string, error) {
	parts := []*genai.Part{
		genai.NewPartFromText(prompt),
		genai.NewPartFromBytes(samplePDF, "application/pdf"),
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := c.genai.Models.GenerateContent(ctx, c.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("oracle: generate content: %w", err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("oracle: empty response")
	}
	return text, nil
}

// DecodeResponse strips markdown fences and unmarshals the oracle's answer.
func DecodeResponse(raw string) (*LayoutSchema, error) {
	cleaned := stripCodeFence(raw)
	var schema LayoutSchema
	if err := json.Unmarshal([]byte(cleaned), &schema); err != nil {
		return nil, fmt.Errorf("oracle: decode response: %w", err)
	}
	return &schema, nil
}

func stripCodeFence(s string) string {
	if m := codeFenceRe.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return strings.TrimSpace(s)
}
