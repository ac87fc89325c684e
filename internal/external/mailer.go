package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type MailConfig struct {
	Enabled bool
	BaseURL string
	APIKey  string
	From    string
	Timeout time.Duration
}

// Mailer sends transactional email through a Resend-style HTTP API. A nil
// mailer silently drops everything, and send failures never propagate into
// the booking flow.
type Mailer struct {
	baseURL    string
	apiKey     string
	from       string
	httpClient *http.Client
}

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

func NewMailer(cfg MailConfig) *Mailer {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &Mailer{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		from:    cfg.From,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

func (m *Mailer) Send(ctx context.Context, to, subject, html string) error {
	if m == nil {
		return nil
	}

	payload, err := json.Marshal(sendRequest{
		From:    m.from,
		To:      []string{to},
		Subject: subject,
		HTML:    html,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/emails", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("mail API returned status %d", resp.StatusCode)
	}

	return nil
}
