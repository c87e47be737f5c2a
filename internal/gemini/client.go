// Package gemini calls the Generative Language API for receipt extraction
// and spending advice.
package gemini

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	"google.golang.org/api/generativelanguage/v1beta"
	goption "google.golang.org/api/option"

	"struk/internal/ingest"
	"struk/internal/log"
	"struk/internal/services"
)

const (
	extractionMaxTokens = 2048
	adviceMaxTokens     = 1024
)

// ExtractionPrompt asks for the receipt fields as snake_case JSON.
const ExtractionPrompt = `Extract the following details from this receipt in JSON format.
Provide the output with these parameters:
- merchant_name (string): name of the store or merchant.
- transaction_date (string, format YYYY-MM-DD): date of the transaction.
- transaction_time (string, format HH:MM): time of the transaction.
- items (array of objects): purchased items.
    - item_name (string): name of the item.
    - quantity (number): quantity of the item.
    - unit_price (number): price per unit.
    - total_price_item (number): quantity * unit_price.
- subtotal (number): total before tax, discount or additional charges.
- discount_amount (number or null): total discounts applied.
- additional_charges (number or null): service charge, packaging fee and similar.
- tax_amount (number or null): total tax amount.
- final_total (number): grand total paid.
- tender_type (string or null): how the payment was made, e.g. "Cash" or "Card".
- amount_paid (number or null): amount given by the customer.
- change_given (number or null): change returned to the customer.
- category_spending (string or null): one spending category such as food, transport, groceries, bills, entertainment.

If a field is not found, use null for its value. Answer with the JSON object only.`

type Client struct {
	svc    *generativelanguage.Service
	model  string
	logger *log.Logger
}

var (
	_ ingest.Extractor = (*Client)(nil)
	_ services.Advisor = (*Client)(nil)
)

// New creates a client authenticated with an API key.
func New(ctx context.Context, apiKey, model string, logger *log.Logger) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("missing GEMINI_API_KEY")
	}
	svc, err := generativelanguage.NewService(ctx, goption.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("generative language service: %w", err)
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Client{
		svc:    svc,
		model:  modelName(model),
		logger: logger.WithComponent(log.ComponentGemini),
	}, nil
}

func modelName(model string) string {
	model = strings.TrimSpace(model)
	if model == "" {
		model = "gemini-2.0-flash"
	}
	if !strings.HasPrefix(model, "models/") {
		model = "models/" + model
	}
	return model
}

// Extract sends the image inline with the extraction prompt.
func (c *Client) Extract(ctx context.Context, imagePath, mimeType string) (string, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	req := &generativelanguage.GenerateContentRequest{
		Contents: []*generativelanguage.Content{{
			Role: "user",
			Parts: []*generativelanguage.Part{
				{InlineData: &generativelanguage.Blob{
					MimeType: mimeType,
					Data:     base64.StdEncoding.EncodeToString(data),
				}},
				{Text: ExtractionPrompt},
			},
		}},
		GenerationConfig: &generativelanguage.GenerationConfig{MaxOutputTokens: extractionMaxTokens},
	}
	return c.generate(ctx, log.OpExtract, req)
}

// Advise sends a text-only prompt.
func (c *Client) Advise(ctx context.Context, prompt string) (string, error) {
	req := &generativelanguage.GenerateContentRequest{
		Contents: []*generativelanguage.Content{{
			Role:  "user",
			Parts: []*generativelanguage.Part{{Text: prompt}},
		}},
		GenerationConfig: &generativelanguage.GenerationConfig{MaxOutputTokens: adviceMaxTokens},
	}
	return c.generate(ctx, "advise", req)
}

func (c *Client) generate(ctx context.Context, op string, req *generativelanguage.GenerateContentRequest) (string, error) {
	resp, err := c.svc.Models.GenerateContent(c.model, req).Context(ctx).Do()
	if err != nil {
		c.logger.ErrorContext(ctx, "Generate content failed",
			log.FieldOperation, op,
			"model", c.model,
			log.FieldError, err)
		return "", fmt.Errorf("generate content: %w", err)
	}
	text := ResponseText(resp)
	if text == "" {
		return "", errors.New("model returned no text")
	}
	c.logger.DebugContext(ctx, "Generate content completed",
		log.FieldOperation, op,
		"model", c.model,
		"chars", len(text))
	return text, nil
}

// ResponseText joins the text parts of the first candidate that has any.
func ResponseText(resp *generativelanguage.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		var b strings.Builder
		for _, part := range cand.Content.Parts {
			if part != nil {
				b.WriteString(part.Text)
			}
		}
		if b.Len() > 0 {
			return b.String()
		}
	}
	return ""
}
