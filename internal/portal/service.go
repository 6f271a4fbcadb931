// Package portal is the entry point used by the front end: login, logout,
// token and term accessors, and the authenticated page fetches. Every
// method returns a models.Result instead of an error.
package portal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/phuslu/log"

	"github.com/campusdesk/cli/internal/api"
	"github.com/campusdesk/cli/internal/auth"
	"github.com/campusdesk/cli/internal/models"
	"github.com/campusdesk/cli/internal/session"
	"github.com/campusdesk/cli/internal/store"
	"github.com/campusdesk/cli/internal/utils"
	"github.com/campusdesk/cli/internal/vault"
)

// Service wires the session core together.
type Service struct {
	client      *api.Client
	auth        *auth.Authenticator
	vault       *vault.Vault
	tokens      store.TokenStore
	terms       store.TermStore
	session     *session.Manager
	maxAttempts int
	now         func() time.Time
	logger      *log.Logger
	closers     []io.Closer
}

// Close releases the state store and log file.
func (s *Service) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Login authenticates userID, retrying wrong CAPTCHA guesses up to the
// configured bound. A wrong password ends the attempt immediately.
func (s *Service) Login(ctx context.Context, userID, secret string) models.Result {
	if err := utils.ValidateCredential(userID, secret); err != nil {
		return models.Fail(err)
	}

	var (
		tokens  *models.SessionTokens
		attempt int
	)
	policy := backoff.WithContext(backoff.WithMaxRetries(&backoff.ZeroBackOff{}, uint64(s.maxAttempts-1)), ctx)
	err := backoff.Retry(func() error {
		attempt++
		t, err := s.auth.Login(ctx, userID, secret)
		if err != nil {
			if !utils.IsRetryableLoginError(err) {
				return backoff.Permanent(err)
			}
			s.logger.Info().Int("attempt", attempt).Err(err).Msg("login attempt rejected, retrying")
			return err
		}
		tokens = t
		return nil
	}, policy)
	if err != nil {
		return models.Fail(err)
	}

	if err := s.tokens.SetTokens(ctx, *tokens); err != nil {
		return models.Fail(err)
	}
	if err := s.vault.StoreCredential(ctx, userID, secret); err != nil {
		// the session works without it; only silent recovery is lost
		s.logger.Warn().Err(err).Msg("credential not saved, automatic re-login disabled")
	}
	if err := s.vault.RecordLogin(ctx, strings.TrimSpace(userID)); err != nil {
		return models.Fail(err)
	}

	state, err := s.vault.AuthState(ctx)
	if err != nil {
		return models.Fail(err)
	}
	return models.OK(state)
}

// Logout ends the portal session and forgets the user locally. The
// selected term is kept unless clearTerm is set.
func (s *Service) Logout(ctx context.Context, clearTerm bool) models.Result {
	state, err := s.vault.AuthState(ctx)
	if err != nil {
		return models.Fail(err)
	}

	tokens, err := s.tokens.GetTokens(ctx)
	if err != nil {
		return models.Fail(err)
	}
	if tokens != nil {
		_, err := session.WithAuthRetry(ctx, s.session, func(ctx context.Context, t models.SessionTokens) (struct{}, error) {
			return struct{}{}, s.auth.Logout(ctx, t)
		})
		if err != nil {
			s.logger.Warn().Err(err).Msg("portal logout failed, clearing local session anyway")
		}
	}

	if state != nil {
		if err := s.vault.DeleteCredential(ctx, state.UserID); err != nil {
			return models.Fail(err)
		}
	}
	if err := s.tokens.ClearTokens(ctx); err != nil {
		return models.Fail(err)
	}
	if err := s.vault.ClearAuthState(ctx); err != nil {
		return models.Fail(err)
	}
	if clearTerm {
		if err := s.terms.ClearTerm(ctx); err != nil {
			return models.Fail(err)
		}
	}
	return models.OK(true)
}

// GetAuthState returns the recorded auth state; Data is nil when nobody is
// logged in.
func (s *Service) GetAuthState(ctx context.Context) models.Result {
	state, err := s.vault.AuthState(ctx)
	if err != nil {
		return models.Fail(err)
	}
	if state == nil {
		return models.OK(nil)
	}
	return models.OK(state)
}

// SetSessionTokens stores a complete token set
func (s *Service) SetSessionTokens(ctx context.Context, tokens models.SessionTokens) models.Result {
	if err := s.tokens.SetTokens(ctx, tokens); err != nil {
		return models.Fail(err)
	}
	return models.OK(true)
}

// GetSessionTokens returns the stored tokens, or nil Data
func (s *Service) GetSessionTokens(ctx context.Context) models.Result {
	tokens, err := s.tokens.GetTokens(ctx)
	if err != nil {
		return models.Fail(err)
	}
	if tokens == nil {
		return models.OK(nil)
	}
	return models.OK(tokens)
}

// DeleteSessionTokens clears the stored tokens
func (s *Service) DeleteSessionTokens(ctx context.Context) models.Result {
	if err := s.tokens.ClearTokens(ctx); err != nil {
		return models.Fail(err)
	}
	return models.OK(true)
}

// SetTerm selects the semester used by term scoped operations
func (s *Service) SetTerm(ctx context.Context, term models.Term) models.Result {
	if err := s.terms.SetTerm(ctx, term); err != nil {
		return models.Fail(err)
	}
	return models.OK(term)
}

// GetTerm returns the selected semester, or nil Data
func (s *Service) GetTerm(ctx context.Context) models.Result {
	term, err := s.terms.GetTerm(ctx)
	if err != nil {
		return models.Fail(err)
	}
	if term == nil {
		return models.OK(nil)
	}
	return models.OK(term)
}

// ClearTerm forgets the selected semester
func (s *Service) ClearTerm(ctx context.Context) models.Result {
	if err := s.terms.ClearTerm(ctx); err != nil {
		return models.Fail(err)
	}
	return models.OK(true)
}

// Fetch loads the named page; Data is the raw HTML for the parsers.
func (s *Service) Fetch(ctx context.Context, name string) models.Result {
	op, err := LookupOperation(name)
	if err != nil {
		return models.Fail(err)
	}
	body, err := s.FetchPage(ctx, op)
	if err != nil {
		return models.Fail(err)
	}
	return models.OK(string(body))
}

// FetchPage posts to op with the session form fields, recovering an
// expired session once.
func (s *Service) FetchPage(ctx context.Context, op Operation) ([]byte, error) {
	form := url.Values{}
	if op.NeedsTerm {
		term, err := s.terms.GetTerm(ctx)
		if err != nil {
			return nil, err
		}
		if term == nil {
			return nil, fmt.Errorf("%s needs a selected term", op.Name)
		}
		form.Set("semesterSubId", term.ID)
	}

	return session.WithAuthRetry(ctx, s.session, func(ctx context.Context, tokens models.SessionTokens) ([]byte, error) {
		req := url.Values{}
		for k, v := range form {
			req[k] = v
		}
		req.Set("_csrf", tokens.CSRF)
		req.Set("authorizedID", tokens.AuthorizedID)
		req.Set("x", s.now().UTC().Format(http.TimeFormat))

		resp, err := s.client.PostForm(ctx, op.Path, req, tokens.Cookies)
		if err != nil {
			return nil, err
		}
		s.refreshCSRF(ctx, tokens, resp.Body)
		return resp.Body, nil
	})
}

// refreshCSRF stores a CSRF token the portal regenerated on a response. The
// write is skipped when the store no longer holds tokens, so a session
// recovered meanwhile is never replaced by the old one.
func (s *Service) refreshCSRF(ctx context.Context, tokens models.SessionTokens, body []byte) {
	csrf := auth.ExtractCSRF(body)
	if csrf == "" || csrf == tokens.CSRF {
		return
	}
	swapped, err := s.tokens.SwapTokens(ctx, tokens, tokens.WithCSRF(csrf))
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to store refreshed csrf token")
		return
	}
	if !swapped {
		s.logger.Debug().Msg("session changed, csrf refresh dropped")
		return
	}
	s.logger.Debug().Msg("csrf token refreshed")
}
