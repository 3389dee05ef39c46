package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Config for the outbound email API client.
type Config struct {
	APIURL        string
	APIKey        string
	SenderAddress string
	SendTimeout   time.Duration
}

// Client posts messages to the configured email delivery API. It is the
// best-effort outbound channel behind the notification delivery worker;
// callers own retry policy.
type Client struct {
	httpClient *http.Client
	apiURL     string
	apiKey     string
	sender     string
	logger     *slog.Logger
}

func NewClient(config Config, logger *slog.Logger) *Client {
	timeout := config.SendTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		apiURL:     config.APIURL,
		apiKey:     config.APIKey,
		sender:     config.SenderAddress,
		logger:     logger,
	}
}

type sendRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (c *Client) Send(ctx context.Context, to, subject, body string) error {
	payload, err := json.Marshal(sendRequest{
		From:    c.sender,
		To:      to,
		Subject: subject,
		Body:    body,
	})
	if err != nil {
		return fmt.Errorf("marshal email request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/messages", c.apiURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("create email request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("email request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		c.logger.Warn("email API rejected message",
			"status", resp.StatusCode,
			"to", to,
			"response", string(respBody))
		return fmt.Errorf("email API returned status %d", resp.StatusCode)
	}

	return nil
}
