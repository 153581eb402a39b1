// Package notify sends account credential emails through Brevo.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kozaktomas/school-attendance/internal/config"
	"github.com/sethvargo/go-retry"
)

const (
	defaultBrevoURL = "https://api.brevo.com/v3/smtp/email"
	sendTimeout     = 20 * time.Second
)

// ErrNotConfigured is returned when the API key or sender is missing.
var ErrNotConfigured = errors.New("brevo not configured")

// Credentials is the content of a new-account email.
type Credentials struct {
	ToEmail      string
	ToName       string
	RoleName     string // human readable, e.g. "School Admin"
	TempPassword string
}

// Result describes a send attempt.
type Result struct {
	Sent      bool   `json:"success"`
	MessageID string `json:"messageId,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Sender delivers credential emails.
type Sender interface {
	SendCredentials(ctx context.Context, c Credentials) (Result, error)
}

// BrevoClient sends transactional emails through the Brevo REST API
type BrevoClient struct {
	cfg     config.BrevoConfig
	url     string
	retries uint64
	client  *http.Client
}

// NewBrevoClient creates a Brevo client. A missing key is reported per send.
func NewBrevoClient(cfg config.BrevoConfig) *BrevoClient {
	return &BrevoClient{
		cfg:     cfg,
		url:     defaultBrevoURL,
		retries: 2,
		client:  &http.Client{Timeout: sendTimeout},
	}
}

// WithURL overrides the API endpoint. Used by tests.
func (b *BrevoClient) WithURL(url string) *BrevoClient {
	b.url = url
	return b
}

type brevoContact struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type brevoRequest struct {
	Sender      brevoContact   `json:"sender"`
	To          []brevoContact `json:"to"`
	Subject     string         `json:"subject"`
	HTMLContent string         `json:"htmlContent"`
	TextContent string         `json:"textContent"`
	Tags        []string       `json:"tags"`
}

type brevoResponse struct {
	MessageID string `json:"messageId"`
}

func buildRequest(cfg config.BrevoConfig, c Credentials) brevoRequest {
	name := html.EscapeString(c.ToName)
	email := html.EscapeString(c.ToEmail)
	pass := html.EscapeString(c.TempPassword)
	role := html.EscapeString(c.RoleName)

	var body strings.Builder
	body.WriteString("<h2>Welcome to Automated Attendance System</h2>\n")
	fmt.Fprintf(&body, "<p>Dear %s,</p>\n", name)
	fmt.Fprintf(&body, "<p>Your %s account has been created.</p>\n", role)
	body.WriteString("<ul>\n")
	fmt.Fprintf(&body, "  <li>Email: <b>%s</b></li>\n", email)
	fmt.Fprintf(&body, "  <li>Temporary Password: <b>%s</b></li>\n", pass)
	body.WriteString("</ul>\n")
	body.WriteString("<p>Please login and change your password immediately.</p>\n")

	return brevoRequest{
		Sender:      brevoContact{Email: cfg.SenderEmail, Name: cfg.SenderName},
		To:          []brevoContact{{Email: c.ToEmail, Name: c.ToName}},
		Subject:     fmt.Sprintf("Your %s account credentials", c.RoleName),
		HTMLContent: body.String(),
		TextContent: fmt.Sprintf("Email: %s\nTemporary Password: %s\n", c.ToEmail, c.TempPassword),
		Tags:        []string{"attendance", "credentials"},
	}
}

// SendCredentials emails the login details of a new or reset account.
// Server errors and transport failures are retried.
func (b *BrevoClient) SendCredentials(ctx context.Context, c Credentials) (Result, error) {
	if !b.cfg.Configured() {
		return Result{Error: ErrNotConfigured.Error()}, ErrNotConfigured
	}

	payload, err := json.Marshal(buildRequest(b.cfg, c))
	if err != nil {
		return Result{}, fmt.Errorf("marshal brevo request: %w", err)
	}

	var messageID string
	backoff := retry.WithMaxRetries(b.retries, retry.NewExponential(500*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		id, err := b.post(ctx, payload)
		if err != nil {
			return err
		}
		messageID = id
		return nil
	})
	if err != nil {
		return Result{Error: err.Error()}, err
	}
	return Result{Sent: true, MessageID: messageID}, nil
}

func (b *BrevoClient) post(ctx context.Context, payload []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("content-type", "application/json")
	req.Header.Set("api-key", b.cfg.APIKey)

	resp, err := b.client.Do(req)
	if err != nil {
		return "", retry.RetryableError(fmt.Errorf("brevo request failed: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		err := fmt.Errorf("brevo error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return "", retry.RetryableError(err)
		}
		return "", err
	}

	var out brevoResponse
	if len(body) > 0 {
		if err := json.Unmarshal(body, &out); err != nil {
			return "", fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return out.MessageID, nil
}
