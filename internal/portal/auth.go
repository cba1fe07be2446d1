package portal

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"sync"

	"integration-school-portal/internal/config"
	"integration-school-portal/internal/logger"
	"integration-school-portal/internal/model"
	"integration-school-portal/internal/parser"
	perrors "integration-school-portal/pkg/errors"

	"github.com/rs/zerolog"
)

type AuthState int

const (
	StateUnauthenticated AuthState = iota
	StateTokenFetched
	StateSubmittingCredentials
	StateAuthenticated
	StateRejected
	StatePortalError
)

func (s AuthState) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateTokenFetched:
		return "token_fetched"
	case StateSubmittingCredentials:
		return "submitting_credentials"
	case StateAuthenticated:
		return "authenticated"
	case StateRejected:
		return "rejected"
	case StatePortalError:
		return "portal_error"
	default:
		return "unknown"
	}
}

// Status maps the terminal states onto the outward-facing auth status.
func (s AuthState) Status() model.AuthStatus {
	switch s {
	case StateAuthenticated:
		return model.AuthAuthenticated
	case StateRejected:
		return model.AuthRejected
	case StatePortalError:
		return model.AuthPortalError
	default:
		return model.AuthUnauthenticated
	}
}

// Authenticator drives one login handshake: fetch the form and its token,
// submit the credentials, then follow the post-login redirect once so the
// portal finishes setting up the session.
type Authenticator struct {
	transport *Transport
	cfg       config.PortalConfig
	mu        sync.RWMutex
	state     AuthState
	log       zerolog.Logger
}

func NewAuthenticator(transport *Transport, cfg config.PortalConfig) *Authenticator {
	return &Authenticator{
		transport: transport,
		cfg:       cfg,
		log:       logger.For("portal-auth"),
	}
}

func (a *Authenticator) State() AuthState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

func (a *Authenticator) setState(s AuthState) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

// Login returns nil once the session is authenticated. Otherwise the error
// is an AuthError: Rejected for bad or missing credentials, PortalError for
// anything the portal or the network did wrong.
func (a *Authenticator) Login(ctx context.Context, cred model.Credential) error {
	a.transport.Reset()
	a.setState(StateUnauthenticated)

	page, err := a.transport.Do(ctx, http.MethodGet, a.cfg.LoginPath, nil, nil)
	if err != nil {
		return a.fail(false, "login page unavailable", err)
	}
	if page.StatusCode >= http.StatusInternalServerError {
		return a.fail(false, "login page unavailable", perrors.FetchError{Resource: "login", StatusCode: page.StatusCode})
	}

	token := parser.ExtractToken(page.Body, a.cfg.TokenField)
	a.transport.Session().setToken(token)
	if token == "" {
		a.log.Debug().Msg("Login form carries no anti-forgery token")
	}
	a.setState(StateTokenFetched)

	form := url.Values{}
	form.Set(a.cfg.IdentifierField, cred.Identifier)
	form.Set(a.cfg.SecretField, cred.Secret)
	if token != "" {
		form.Set(a.cfg.TokenField, token)
	}

	a.setState(StateSubmittingCredentials)
	resp, err := a.transport.Do(ctx, http.MethodPost, a.cfg.LoginPath, form, map[string]string{
		"Origin": a.transport.base.Scheme + "://" + a.transport.base.Host,
	})
	if err != nil {
		return a.fail(false, "credential submission failed", err)
	}

	switch {
	case bytes.Contains(resp.Body, []byte(a.cfg.InvalidLoginMarker)):
		return a.fail(true, "invalid credentials", nil)
	case bytes.Contains(resp.Body, []byte(a.cfg.MissingCredentialsMarker)):
		return a.fail(true, "credentials missing", nil)
	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		if location := resp.Header.Get("Location"); location != "" {
			if err := a.follow(ctx, location); err != nil {
				return a.fail(false, "post-login redirect failed", err)
			}
		}
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	default:
		return a.fail(false, "unexpected login response", perrors.FetchError{Resource: "login", StatusCode: resp.StatusCode})
	}

	a.setState(StateAuthenticated)
	a.log.Info().Str("identifier", cred.Identifier).Msg("Portal login succeeded")
	return nil
}

func (a *Authenticator) follow(ctx context.Context, location string) error {
	resp, err := a.transport.Do(ctx, http.MethodGet, location, nil, nil)
	if err != nil {
		return err
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return perrors.FetchError{Resource: "redirect", StatusCode: resp.StatusCode}
	}
	return nil
}

func (a *Authenticator) fail(rejected bool, reason string, err error) error {
	state := StatePortalError
	if rejected {
		state = StateRejected
	}
	a.setState(state)
	a.log.Warn().Err(err).Str("state", state.String()).Str("reason", reason).Msg("Portal login failed")
	return perrors.AuthError{Rejected: rejected, Reason: reason, Err: err}
}
