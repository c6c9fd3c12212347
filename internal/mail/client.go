// Package mail implements the messaging client used to reply on the email
// thread an invoice arrived from. The pipeline uses it for exactly one
// purpose: asking the sender for missing bank details.
package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Mustafa-Esoofally/Invoice-payment-agent/internal/config"
)

const replyActionPath = "/v2/actions/GMAIL_REPLY_TO_THREAD/execute"

// Client calls the messaging action API.
type Client struct {
	apiKey  string
	baseURL string
	userID  string
	http    *http.Client
}

// NewClient constructs a Client from mail configuration.
func NewClient(cfg config.MailConfig) *Client {
	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		userID:  cfg.UserID,
		http:    &http.Client{Timeout: cfg.Timeout},
	}
}

// ReplyToThread sends a plain-text reply on the given thread. A non-2xx
// response or an unsuccessful action result is returned as an error.
func (c *Client) ReplyToThread(ctx context.Context, threadID, recipientEmail, body string) error {
	payload := replyRequest{
		Input: replyInput{
			ThreadID:       threadID,
			MessageBody:    body,
			RecipientEmail: recipientEmail,
			UserID:         c.userID,
			IsHTML:         false,
		},
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+replyActionPath, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(res.Body, 2<<10))
		return fmt.Errorf("mail: reply failed: status %d: %s", res.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out replyResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return fmt.Errorf("mail: decode reply response: %w", err)
	}
	if !out.Successful {
		if out.Error == "" {
			out.Error = "action reported failure"
		}
		return fmt.Errorf("mail: reply failed: %s", out.Error)
	}
	return nil
}

type replyInput struct {
	ThreadID       string `json:"thread_id"`
	MessageBody    string `json:"message_body"`
	RecipientEmail string `json:"recipient_email"`
	UserID         string `json:"user_id"`
	IsHTML         bool   `json:"is_html"`
}

type replyRequest struct {
	Input replyInput `json:"input"`
}

type replyResponse struct {
	Successful bool   `json:"successful"`
	Error      string `json:"error,omitempty"`
}
