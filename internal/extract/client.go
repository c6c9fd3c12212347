// Package extract turns raw invoice document text into a structured,
// schema-validated payment record by calling the extraction service (an
// OpenAI-compatible chat completions endpoint with function calling).
//
// The contract is strict: the service either returns a record that satisfies
// the schema, or the caller gets an explicit error. Missing required fields
// are never silently defaulted here; the pipeline's validation stage decides
// what a partial record means.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Mustafa-Esoofally/Invoice-payment-agent/internal/config"
	"github.com/Mustafa-Esoofally/Invoice-payment-agent/internal/domain"
)

// ErrNoExtraction indicates the service produced no usable structured output
// for the given text.
var ErrNoExtraction = errors.New("no valid extraction")

// systemPrompt encodes the extraction rules. Only explicitly stated
// information may be extracted; formatting rules keep the output inside the
// schema the pipeline validates against.
const systemPrompt = `Extract payment details from invoices with high precision.

Rules:
1. Only extract explicitly stated information
2. Use the final total with all taxes and fees as the amount
3. Format dates as YYYY-MM-DD
4. Remove currency symbols and thousands separators from amounts
5. Use "individual" or "business" for contact type
6. Use "checking" or "savings" for bank account type
7. Look for bank details: account holder name, account number, routing number, account type, bank name
8. Extract contact information: email, phone, full address, tax id if available
9. Use the payment section for payee details and the "BILLED TO" section for customer details`

// Client calls the extraction service.
type Client struct {
	apiKey  string
	baseURL string
	model   string
	http    *http.Client
}

// NewClient constructs a Client from extractor configuration.
func NewClient(cfg config.ExtractorConfig) *Client {
	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		http:    &http.Client{Timeout: cfg.Timeout},
	}
}

// Extract sends the document text to the extraction service and returns the
// normalized payment record. It returns ErrNoExtraction (possibly wrapped)
// when the service yields nothing usable, and the transport or provider error
// otherwise.
func (c *Client) Extract(ctx context.Context, text string) (*domain.ExtractedPayment, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrNoExtraction
	}

	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: "Extract payment details from this invoice:\n" + text},
		},
		Tools: []chatTool{{
			Type: "function",
			Function: chatFunction{
				Name:        "extract_payment_details",
				Description: "Extract payment details from invoice text",
				Parameters:  json.RawMessage(paymentSchema),
			},
		}},
		ToolChoice: toolChoice{
			Type:     "function",
			Function: toolChoiceFunction{Name: "extract_payment_details"},
		},
	}

	buf, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(res.Body, 2<<10))
		return nil, fmt.Errorf("extraction service: status %d: %s", res.StatusCode, strings.TrimSpace(string(raw)))
	}

	var cr chatResponse
	if err := json.NewDecoder(res.Body).Decode(&cr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoExtraction, err)
	}
	args, ok := cr.firstToolArguments()
	if !ok {
		return nil, ErrNoExtraction
	}

	var payload extractedPayload
	if err := json.Unmarshal([]byte(args), &payload); err != nil {
		return nil, fmt.Errorf("%w: malformed arguments: %v", ErrNoExtraction, err)
	}
	return payload.normalize()
}

// wire types (OpenAI chat completions subset)

type chatRequest struct {
	Model      string        `json:"model"`
	Messages   []chatMessage `json:"messages"`
	Tools      []chatTool    `json:"tools,omitempty"`
	ToolChoice toolChoice    `json:"tool_choice,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatTool struct {
	Type     string       `json:"type"`
	Function chatFunction `json:"function"`
}

type chatFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

type toolChoice struct {
	Type     string             `json:"type"`
	Function toolChoiceFunction `json:"function"`
}

type toolChoiceFunction struct {
	Name string `json:"name"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			ToolCalls []struct {
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
}

func (r *chatResponse) firstToolArguments() (string, bool) {
	if len(r.Choices) == 0 {
		return "", false
	}
	calls := r.Choices[0].Message.ToolCalls
	if len(calls) == 0 || strings.TrimSpace(calls[0].Function.Arguments) == "" {
		return "", false
	}
	return calls[0].Function.Arguments, true
}
