package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

type Config struct {
	BaseURL           string
	Username          string
	Password          string
	PinTemplateID     int
	WelcomeTemplateID int
}

// Client sends transactional mail through the listmonk /api/tx endpoint.
type Client struct {
	config Config
	http   *http.Client
}

func New(cfg Config) *Client {
	return &Client{
		config: cfg,
		http:   &http.Client{Timeout: 10 * time.Second},
	}
}

type txRequest struct {
	SubscriberEmail string            `json:"subscriber_email"`
	TemplateID      int               `json:"template_id"`
	Data            map[string]string `json:"data"`
	ContentType     string            `json:"content_type"`
}

func (c *Client) SendPin(ctx context.Context, toEmail, toName, pin string) error {
	if c.config.BaseURL == "" {
		slog.Info("email not configured, login pin generated", "email", toEmail)
		return nil
	}
	return c.send(ctx, txRequest{
		SubscriberEmail: toEmail,
		TemplateID:      c.config.PinTemplateID,
		Data: map[string]string{
			"name": toName,
			"pin":  pin,
		},
		ContentType: "html",
	})
}

func (c *Client) SendWelcome(ctx context.Context, toEmail, toName string) error {
	if c.config.BaseURL == "" || c.config.WelcomeTemplateID == 0 {
		return nil
	}
	return c.send(ctx, txRequest{
		SubscriberEmail: toEmail,
		TemplateID:      c.config.WelcomeTemplateID,
		Data:            map[string]string{"name": toName},
		ContentType:     "html",
	})
}

func (c *Client) send(ctx context.Context, body txRequest) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal email request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/api/tx", bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("create email request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.config.Username, c.config.Password)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("listmonk returned status %d", resp.StatusCode)
	}

	return nil
}
