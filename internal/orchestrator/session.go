package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/tis24dev/notionsave/internal/config"
	"github.com/tis24dev/notionsave/internal/logging"
	"github.com/tis24dev/notionsave/internal/notion"
	"github.com/tis24dev/notionsave/internal/types"
)

// EnsureSession makes sure a usable token is stored. Without a token it logs
// in; an expired token triggers one fresh login, and a token that is still
// expired afterwards is fatal. A session verified once is not probed again.
func (o *Orchestrator) EnsureSession(ctx context.Context) (err error) {
	if o.sessionChecked {
		return nil
	}
	done := logging.DebugStart(o.logger, "ensure session", "")
	defer func() { done(err) }()

	relogged := false
	for {
		state, err := o.client.CheckSession(ctx)
		if err != nil {
			return phaseError(PhaseLogin, err, types.ExitAuthError)
		}
		o.logger.Debug("Session state: %s", state)

		switch state {
		case notion.SessionValid:
			o.sessionChecked = true
			return nil
		case notion.SessionExpired:
			if relogged {
				o.forgetSession()
				return phaseError(PhaseLogin, ErrSessionExpired, types.ExitAuthError)
			}
			o.logger.Warning("Credentials have expired, logging in again")
		default:
			if relogged {
				return phaseError(PhaseLogin, fmt.Errorf("login stored no token: %w", notion.ErrUnauthenticated), types.ExitAuthError)
			}
			o.logger.Info("No stored session, first time login")
		}

		if err := o.login(ctx); err != nil {
			return phaseError(PhaseLogin, err, types.ExitAuthError)
		}
		relogged = true
	}
}

// forgetSession drops a token the service rejected right after login, so the
// next run starts with a fresh login instead of probing it again.
func (o *Orchestrator) forgetSession() {
	for _, key := range []string{config.KeyToken, config.KeyFileToken} {
		if err := o.store.Delete(key); err != nil {
			o.logger.Warning("Could not clear %s: %v", key, err)
		}
	}
}

// login runs the one-time-code exchange and stores email and token.
func (o *Orchestrator) login(ctx context.Context) error {
	if o.ui == nil {
		return fmt.Errorf("login needs an email address and a one-time code: %w", ErrInteractionRequired)
	}

	current, _ := o.store.Get(config.KeyEmail)
	email, err := o.ui.PromptEmail(ctx, current)
	if err != nil {
		return err
	}
	email = strings.TrimSpace(email)
	if err := o.store.Set(config.KeyEmail, email); err != nil {
		return fmt.Errorf("store email: %w", err)
	}

	o.logger.Step("Requesting a temporary password for %s", email)
	csrf, err := o.client.RequestOTP(ctx, email)
	if err != nil {
		return err
	}

	otp, err := o.ui.PromptOTP(ctx, email)
	if err != nil {
		return err
	}
	token, err := o.client.ExchangeOTP(ctx, csrf, otp)
	if err != nil {
		return err
	}
	if err := o.store.Set(config.KeyToken, token); err != nil {
		return fmt.Errorf("store session token: %w", err)
	}
	o.logger.Info("Authenticated as %s (token %s)", email, logging.MaskSecret(token))
	return nil
}
