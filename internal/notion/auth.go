package notion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tis24dev/notionsave/internal/config"
)

// CSRF is the pair returned by RequestOTP that ExchangeOTP must send back.
type CSRF struct {
	State  string
	Cookie string
}

// SessionState is the result of probing the stored token.
type SessionState int

const (
	SessionAbsent SessionState = iota
	SessionValid
	SessionExpired
)

func (s SessionState) String() string {
	switch s {
	case SessionValid:
		return "valid"
	case SessionExpired:
		return "expired"
	default:
		return "absent"
	}
}

type otpRequest struct {
	Email            string `json:"email"`
	DisableLoginLink bool   `json:"disableLoginLink"`
	Native           bool   `json:"native"`
	IsSignup         bool   `json:"isSignup"`
}

type otpLogin struct {
	State    string `json:"state"`
	Password string `json:"password"`
}

// RequestOTP asks the service to mail a one-time code to email.
func (c *Client) RequestOTP(ctx context.Context, email string) (CSRF, error) {
	const op = "sendTemporaryPassword"
	email = strings.TrimSpace(email)
	if email == "" {
		return CSRF{}, fmt.Errorf("%s: %w: empty email address", op, ErrAuthRequest)
	}

	resp, err := c.post(ctx, op, otpRequest{Email: email})
	if err != nil {
		return CSRF{}, err
	}
	if resp.status < 200 || resp.status > 299 {
		return CSRF{}, &HTTPError{Op: op, StatusCode: resp.status, Body: string(resp.body), kind: ErrAuthRequest}
	}

	var body struct {
		CSRFState string `json:"csrfState"`
	}
	if err := json.Unmarshal(resp.body, &body); err != nil || body.CSRFState == "" {
		return CSRF{}, fmt.Errorf("%s: %w: response has no csrfState", op, ErrAuthRequest)
	}
	cookie := resp.cookie(cookieCSRF)
	if cookie == "" {
		return CSRF{}, fmt.Errorf("%s: %w: response has no csrf cookie", op, ErrAuthRequest)
	}
	return CSRF{State: body.CSRFState, Cookie: cookie}, nil
}

// ExchangeOTP trades the mailed code for a session token. The token is
// returned, not stored; a file_token cookie on the answer is stored.
func (c *Client) ExchangeOTP(ctx context.Context, csrf CSRF, otp string) (string, error) {
	const op = "loginWithEmail"
	otp = strings.TrimSpace(otp)
	if otp == "" {
		return "", fmt.Errorf("%s: %w: empty code", op, ErrAuthExchange)
	}

	resp, err := c.post(ctx, op, otpLogin{State: csrf.State, Password: otp},
		&http.Cookie{Name: cookieCSRF, Value: csrf.Cookie})
	if err != nil {
		return "", err
	}
	if resp.status < 200 || resp.status > 299 {
		return "", &HTTPError{Op: op, StatusCode: resp.status, Body: string(resp.body), kind: ErrAuthExchange}
	}

	token := resp.cookie(cookieToken)
	if token == "" {
		return "", fmt.Errorf("%s: %w: no session cookie in response", op, ErrAuthExchange)
	}
	c.captureFileToken(resp)
	return token, nil
}

// CheckSession probes the stored token with loadUserContent.
func (c *Client) CheckSession(ctx context.Context) (SessionState, error) {
	if token, ok := c.store.Get(config.KeyToken); !ok || strings.TrimSpace(token) == "" {
		return SessionAbsent, nil
	}
	var raw []byte
	err := c.Call(ctx, "loadUserContent", struct{}{}, &raw)
	switch {
	case err == nil:
		return SessionValid, nil
	case errors.Is(err, ErrAuthExpired):
		return SessionExpired, nil
	default:
		return SessionAbsent, err
	}
}
