// Package classifier wraps the vision model that reads wallet-app
// screenshots. Its output is untrusted: callers must validate every field.
package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"household-ledger/pkg/logger"
)

// DefaultModel is the Gemini model used when none is configured
const DefaultModel = "gemini-2.5-flash"

// Record is one loosely typed transaction as returned by the model
type Record map[string]interface{}

// Config holds the classifier settings
type Config struct {
	Model  string `mapstructure:"model"`
	APIKey string `mapstructure:"api_key"`
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("classifier model cannot be empty")
	}
	return nil
}

const screenshotPrompt = "You read screenshots of Israeli peer-to-peer payment apps (BIT, Paybox, PayPal) " +
	"and bank or card notifications, in Hebrew or English.\n\n" +
	"Task:\n" +
	"- Extract EVERY transaction visible in the image.\n" +
	"- Output STRICT JSON only: a JSON array of objects.\n\n" +
	"Each object must have these fields:\n" +
	"- \"date\": string, ISO format \"YYYY-MM-DD\"\n" +
	"- \"merchant\": string or null (business name, if any)\n" +
	"- \"p2p_counterparty\": string or null (person paid or paid by)\n" +
	"- \"amount\": number, always positive\n" +
	"- \"type\": \"expense\" for money sent, \"income\" for money received\n" +
	"- \"p2p_direction\": \"sent\", \"received\" or \"withdrawal\" (transfer from the app to a bank account)\n" +
	"- \"currency\": string or null (e.g. \"ILS\")\n" +
	"- \"p2p_memo\": string or null (the note written with the payment)\n\n" +
	"Return ONLY valid raw JSON.\n" +
	"Do NOT wrap the response in code fences.\n" +
	"Output must begin with \"[\" and end with \"]\".\n"

// GeminiClassifier sends images to Gemini and decodes the JSON it returns
type GeminiClassifier struct {
	client *genai.Client
	model  string
	logger logger.Logger
}

// NewGeminiClassifier creates a classifier backed by the Gemini API
func NewGeminiClassifier(ctx context.Context, config Config) (*GeminiClassifier, error) {
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &GeminiClassifier{
		client: client,
		model:  config.Model,
		logger: logger.GetGlobalLogger().WithComponent("classifier"),
	}, nil
}

// Classify sends one image and returns the records the model found
func (g *GeminiClassifier) Classify(ctx context.Context, mimeType string, data []byte) ([]Record, error) {
	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: screenshotPrompt},
				{InlineData: &genai.Blob{MIMEType: mimeType, Data: data}},
			},
		},
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}

	raw := resp.Text()
	if raw == "" {
		return nil, fmt.Errorf("empty response from model")
	}

	records, err := DecodeRecords(raw)
	if err != nil {
		g.logger.WithError(err).WithField("raw_response", raw).Warn("Model returned invalid JSON")
		return nil, err
	}

	g.logger.WithFields(logger.Fields{
		"model":   g.model,
		"records": len(records),
	}).Debug("Classified image")
	return records, nil
}

// DecodeRecords parses model output into records. It accepts a bare array
// or an object holding a "transactions" array, with or without code fences.
func DecodeRecords(raw string) ([]Record, error) {
	clean := cleanModelJSON(raw)

	var parsed interface{}
	if err := json.Unmarshal([]byte(clean), &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal model JSON: %w", err)
	}

	if obj, ok := parsed.(map[string]interface{}); ok {
		parsed = obj["transactions"]
	}
	items, ok := parsed.([]interface{})
	if !ok {
		return nil, fmt.Errorf("model JSON is not an array of transactions")
	}

	records := make([]Record, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			// Kept as an empty record so the caller counts it as a bad row.
			records = append(records, Record{})
			continue
		}
		records = append(records, Record(obj))
	}
	return records, nil
}

// cleanModelJSON strips Markdown fences and text around the JSON payload
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		idx := strings.Index(s, "\n")
		if idx == -1 {
			return s
		}
		s = strings.TrimSpace(s[idx+1:])
	}

	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	// Keep the outermost array or object.
	opener, closer := "[", "]"
	if obj := strings.Index(s, "{"); obj != -1 && (!strings.Contains(s, "[") || obj < strings.Index(s, "[")) {
		opener, closer = "{", "}"
	}
	if start := strings.Index(s, opener); start != -1 {
		if end := strings.LastIndex(s, closer); end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}
	return s
}
