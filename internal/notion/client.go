// Package notion talks to the private workspace API: one-time-code login,
// workspace enumeration and asynchronous export tasks.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tis24dev/notionsave/internal/config"
	"github.com/tis24dev/notionsave/internal/logging"
	"github.com/tis24dev/notionsave/internal/version"
)

const (
	cookieToken     = "token_v2"
	cookieFileToken = "file_token"
	cookieCSRF      = "csrf"

	maxResponseBytes = 32 << 20
)

// CredentialStore is the subset of config.Store the client needs.
type CredentialStore interface {
	Get(key string) (string, bool)
	Set(key, value string) error
}

// Client is a session-aware client for the private API.
type Client struct {
	apiRoot string
	http    *http.Client
	store   CredentialStore
	logger  *logging.Logger
}

// NewClient builds a client rooted at apiRoot (e.g. https://www.notion.so/api/v3).
// A nil httpClient gets a 60 second timeout.
func NewClient(apiRoot string, httpClient *http.Client, store CredentialStore, logger *logging.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if logger == nil {
		logger = logging.GetDefaultLogger()
	}
	return &Client{
		apiRoot: strings.TrimRight(apiRoot, "/"),
		http:    httpClient,
		store:   store,
		logger:  logger,
	}
}

// response is a fully read HTTP answer.
type response struct {
	status  int
	body    []byte
	cookies []*http.Cookie
}

func (r *response) cookie(name string) string {
	for _, c := range r.cookies {
		if c.Name == name && c.Value != "" {
			return c.Value
		}
	}
	return ""
}

// post sends body as JSON to apiRoot/path with the given cookies and reads the
// whole answer. Only transport failures are returned as errors.
func (c *Client) post(ctx context.Context, path string, body any, cookies ...*http.Cookie) (*response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%s: encode request: %w", path, err)
	}

	url := c.apiRoot + "/" + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "notionsave/"+version.String())
	for _, ck := range cookies {
		req.AddCookie(ck)
	}

	c.logger.Debug("POST %s (%d bytes)", path, len(payload))
	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Op: path, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &TransportError{Op: path, Err: fmt.Errorf("read response: %w", err)}
	}
	c.logger.Debug("%s answered HTTP %d in %dms (%d bytes)", path, resp.StatusCode, time.Since(started).Milliseconds(), len(data))

	return &response{status: resp.StatusCode, body: data, cookies: resp.Cookies()}, nil
}

// Call performs an authenticated call and decodes the JSON answer into out
// (which may be nil, or a *[]byte to receive the raw body).
func (c *Client) Call(ctx context.Context, path string, body any, out any) error {
	token, ok := c.store.Get(config.KeyToken)
	if !ok || strings.TrimSpace(token) == "" {
		return fmt.Errorf("%s: %w", path, ErrUnauthenticated)
	}

	resp, err := c.post(ctx, path, body, &http.Cookie{Name: cookieToken, Value: token})
	if err != nil {
		return err
	}
	c.captureFileToken(resp)

	if resp.status < 200 || resp.status > 299 {
		return &HTTPError{Op: path, StatusCode: resp.status, Body: string(resp.body), kind: classifyStatus(resp.status)}
	}

	switch dst := out.(type) {
	case nil:
		return nil
	case *[]byte:
		*dst = resp.body
		return nil
	default:
		if err := json.Unmarshal(resp.body, out); err != nil {
			return fmt.Errorf("%s: decode response: %w: %v", path, ErrUnexpectedResponse, err)
		}
		return nil
	}
}

// captureFileToken persists a rotated file_token cookie for later downloads.
func (c *Client) captureFileToken(resp *response) {
	ft := resp.cookie(cookieFileToken)
	if ft == "" {
		return
	}
	if current, _ := c.store.Get(config.KeyFileToken); current == ft {
		return
	}
	if err := c.store.Set(config.KeyFileToken, ft); err != nil {
		c.logger.Warning("Could not persist download token: %v", err)
		return
	}
	c.logger.Debug("Stored new download token %s", logging.MaskSecret(ft))
}
