package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/juju/clock"

	"github.com/tis24dev/notionsave/internal/logging"
	"github.com/tis24dev/notionsave/internal/types"
)

const (
	defaultWebhookTimeout    = 30 * time.Second
	defaultWebhookRetryDelay = 2 * time.Second
)

// WebhookConfig configures a single webhook endpoint.
type WebhookConfig struct {
	URL        string
	Format     string // generic, slack or discord
	Method     string
	Token      string // bearer token
	Secret     string // HMAC-SHA256 signing secret
	Headers    map[string]string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// Enabled reports whether an endpoint is configured.
func (c WebhookConfig) Enabled() bool {
	return strings.TrimSpace(c.URL) != ""
}

// WebhookNotifier posts run reports to a webhook endpoint
type WebhookNotifier struct {
	config WebhookConfig
	logger *logging.Logger
	client *http.Client
	clock  clock.Clock
}

// NewWebhookNotifier validates cfg and creates a notifier. A disabled config
// yields a notifier whose IsEnabled is false.
func NewWebhookNotifier(cfg WebhookConfig, logger *logging.Logger, clk clock.Clock) (*WebhookNotifier, error) {
	if logger == nil {
		logger = logging.GetDefaultLogger()
	}
	if clk == nil {
		clk = clock.WallClock
	}
	w := &WebhookNotifier{config: cfg, logger: logger, clock: clk}
	if !cfg.Enabled() {
		logger.Debug("Webhook notifications disabled in configuration")
		return w, nil
	}

	parsed, err := url.Parse(strings.TrimSpace(cfg.URL))
	if err != nil {
		return nil, fmt.Errorf("invalid webhook URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("invalid webhook URL scheme %q", parsed.Scheme)
	}
	w.config.URL = parsed.String()

	switch strings.ToLower(cfg.Format) {
	case "", "generic", "slack", "discord":
	default:
		return nil, fmt.Errorf("unknown webhook format %q", cfg.Format)
	}

	if w.config.Timeout <= 0 {
		w.config.Timeout = defaultWebhookTimeout
	}
	if w.config.MaxRetries < 0 {
		w.config.MaxRetries = 0
	}
	if w.config.RetryDelay <= 0 {
		w.config.RetryDelay = defaultWebhookRetryDelay
	}
	w.client = &http.Client{Timeout: w.config.Timeout}

	logger.Debug("Webhook configured: url=%s format=%s timeout=%s max_retries=%d",
		maskURL(w.config.URL), w.format(), w.config.Timeout, w.config.MaxRetries)
	return w, nil
}

// Name returns the notifier name
func (w *WebhookNotifier) Name() string {
	return "Webhook"
}

// IsEnabled returns whether webhook notifications are enabled
func (w *WebhookNotifier) IsEnabled() bool {
	return w != nil && w.client != nil && w.config.Enabled()
}

func (w *WebhookNotifier) format() string {
	if f := strings.ToLower(strings.TrimSpace(w.config.Format)); f != "" {
		return f
	}
	return "generic"
}

// Send posts data to the endpoint, retrying 429 and 5xx answers.
func (w *WebhookNotifier) Send(ctx context.Context, data *NotificationData) (*NotificationResult, error) {
	start := w.clock.Now()
	result := &NotificationResult{Method: "webhook"}
	if !w.IsEnabled() {
		result.Error = fmt.Errorf("webhook notifications not enabled")
		return result, nil
	}

	payload, err := json.Marshal(buildPayload(w.format(), data))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	w.logger.Debug("Webhook payload built: %d bytes (%s)", len(payload), w.format())

	status, err := w.deliver(ctx, payload, data.Version)
	result.Duration = w.clock.Now().Sub(start)
	result.Metadata = map[string]interface{}{"status_code": status}
	if err != nil {
		result.Error = err
		return result, nil
	}
	result.Success = true
	return result, nil
}

func (w *WebhookNotifier) deliver(ctx context.Context, payload []byte, version string) (int, error) {
	var lastErr error
	lastStatus := 0
	for attempt := 0; attempt <= w.config.MaxRetries; attempt++ {
		if attempt > 0 {
			w.logger.Debug("Retry attempt %d/%d after %s", attempt, w.config.MaxRetries, w.config.RetryDelay)
			select {
			case <-ctx.Done():
				return lastStatus, ctx.Err()
			case <-w.clock.After(w.config.RetryDelay):
			}
		}

		status, body, err := w.do(ctx, payload, version)
		lastStatus = status
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			w.logger.Warning("Webhook request failed (attempt %d/%d): %v", attempt+1, w.config.MaxRetries+1, err)
			if ctx.Err() != nil {
				return status, lastErr
			}
			continue
		}

		switch {
		case status >= 200 && status < 300:
			w.logger.Debug("Webhook accepted: HTTP %d", status)
			return status, nil
		case status == http.StatusTooManyRequests:
			lastErr = fmt.Errorf("rate limit exceeded (HTTP 429)")
		case status >= 500:
			lastErr = fmt.Errorf("server error (HTTP %d): %s", status, truncate(body, 200))
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			return status, fmt.Errorf("authentication failed (HTTP %d)", status)
		default:
			return status, fmt.Errorf("unexpected status (HTTP %d): %s", status, truncate(body, 200))
		}
		w.logger.Warning("Webhook answered HTTP %d (attempt %d/%d)", status, attempt+1, w.config.MaxRetries+1)
	}
	return lastStatus, fmt.Errorf("webhook failed after %d attempt(s): %w", w.config.MaxRetries+1, lastErr)
}

func (w *WebhookNotifier) do(ctx context.Context, payload []byte, version string) (int, string, error) {
	method := strings.ToUpper(strings.TrimSpace(w.config.Method))
	if method == "" {
		method = http.MethodPost
	}
	var body io.Reader
	if method != http.MethodGet && method != http.MethodHead {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, w.config.URL, body)
	if err != nil {
		return 0, "", err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", "notionsave/"+version)

	for k, v := range w.config.Headers {
		switch strings.ToLower(strings.TrimSpace(k)) {
		case "", "host", "content-length", "content-type", "transfer-encoding":
			w.logger.Warning("Skipped protected custom header %q", k)
			continue
		}
		req.Header.Set(k, v)
		w.logger.Debug("Custom header: %s = %s", k, maskHeaderValue(k, v))
	}
	if w.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+w.config.Token)
	}
	if w.config.Secret != "" {
		req.Header.Set("X-Signature", signPayload(payload, w.config.Secret))
		req.Header.Set("X-Signature-Algorithm", "hmac-sha256")
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return resp.StatusCode, "", err
	}
	if w.logger.GetLevel() >= types.LogLevelDebug && len(raw) > 0 {
		w.logger.Debug("Webhook response body: %s", truncate(string(raw), 500))
	}
	return resp.StatusCode, string(raw), nil
}

func signPayload(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// maskURL masks the path and query of a URL for logging
func maskURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "***INVALID_URL***"
	}
	var b strings.Builder
	b.WriteString(parsed.Scheme)
	b.WriteString("://")
	b.WriteString(parsed.Host)
	if parsed.Path != "" && parsed.Path != "/" {
		b.WriteString("/***MASKED***")
	}
	if parsed.RawQuery != "" {
		b.WriteString("?***MASKED***")
	}
	return b.String()
}

// maskHeaderValue masks sensitive header values for logging
func maskHeaderValue(key, value string) string {
	key = strings.ToLower(key)
	if strings.Contains(key, "auth") || strings.Contains(key, "token") || strings.Contains(key, "key") || strings.Contains(key, "secret") {
		if len(value) > 10 {
			return value[:4] + "***MASKED***"
		}
		return "***MASKED***"
	}
	return value
}
