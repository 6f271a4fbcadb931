// Package session applies the auth recovery policy to authenticated portal
// operations: when the portal reports an expired session, log in again with
// the stored credential and retry the operation once.
package session

import (
	"context"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	"github.com/phuslu/log"
	"golang.org/x/sync/singleflight"

	"github.com/campusdesk/cli/internal/models"
	"github.com/campusdesk/cli/internal/store"
	"github.com/campusdesk/cli/internal/utils"
)

// Authenticator performs a full portal login.
type Authenticator interface {
	Login(ctx context.Context, userID, secret string) (*models.SessionTokens, error)
}

// Credentials resolves the stored credential of the recorded user.
type Credentials interface {
	StoredSecret(ctx context.Context) (userID, secret string, err error)
	RecordLogin(ctx context.Context, userID string) error
}

// Manager owns session recovery. One Manager must be shared by every
// operation so that concurrent recoveries collapse into one login.
type Manager struct {
	tokens   store.TokenStore
	creds    Credentials
	auth     Authenticator
	attempts int
	group    singleflight.Group
	logger   *log.Logger
}

// NewManager creates a Manager. attempts bounds the logins of one recovery.
func NewManager(tokens store.TokenStore, creds Credentials, auth Authenticator, attempts int, logger *log.Logger) *Manager {
	if attempts < 1 {
		attempts = 1
	}
	return &Manager{
		tokens:   tokens,
		creds:    creds,
		auth:     auth,
		attempts: attempts,
		logger:   logger,
	}
}

// Operation is an authenticated portal call made with the given tokens.
type Operation[T any] func(ctx context.Context, tokens models.SessionTokens) (T, error)

// WithAuthRetry runs op with the stored tokens. If op fails with an auth
// class error (401, 403 or 404) the session is recovered and op runs once
// more with the fresh tokens. Any other error, and the original error when
// recovery fails, is returned unchanged.
func WithAuthRetry[T any](ctx context.Context, m *Manager, op Operation[T]) (T, error) {
	var zero T

	tokens, err := m.tokens.GetTokens(ctx)
	if err != nil {
		return zero, err
	}
	if tokens == nil {
		fresh, recErr := m.Recover(ctx, models.SessionTokens{})
		if recErr != nil {
			return zero, fmt.Errorf("%w: %w", utils.ErrNotLoggedIn, recErr)
		}
		tokens = fresh
	}

	result, err := op(ctx, *tokens)
	if err == nil || !utils.IsAuthError(err) {
		return result, err
	}

	m.logger.Info().Err(err).Msg("portal session expired, re-authenticating")
	fresh, recErr := m.Recover(ctx, *tokens)
	if recErr != nil {
		m.logger.Warn().Err(recErr).Msg("session recovery failed")
		return zero, err
	}

	return op(ctx, *fresh)
}

// Recover logs in again with the stored credential and stores the new
// tokens. stale are the tokens the caller saw fail; if the store already
// holds a different session (new cookies) another caller has recovered and
// those tokens are returned without a new login. Concurrent calls share one
// login.
//
// The login runs to completion even if ctx is cancelled, so the token store
// is never left behind by an abandoned caller.
func (m *Manager) Recover(ctx context.Context, stale models.SessionTokens) (*models.SessionTokens, error) {
	ch := m.group.DoChan("recover", func() (interface{}, error) {
		return m.recover(context.WithoutCancel(ctx), stale)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*models.SessionTokens), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Manager) recover(ctx context.Context, stale models.SessionTokens) (*models.SessionTokens, error) {
	current, err := m.tokens.GetTokens(ctx)
	if err != nil {
		return nil, err
	}
	// a CSRF rotation keeps the old session; only new cookies mean a login
	if current != nil && !sameSession(*current, stale) {
		m.logger.Debug().Msg("session already refreshed by another caller")
		return current, nil
	}

	userID, secret, err := m.creds.StoredSecret(ctx)
	if err != nil {
		return nil, err
	}

	var (
		tokens  *models.SessionTokens
		attempt int
	)
	policy := backoff.WithContext(backoff.WithMaxRetries(&backoff.ZeroBackOff{}, uint64(m.attempts-1)), ctx)
	err = backoff.Retry(func() error {
		attempt++
		t, err := m.auth.Login(ctx, userID, secret)
		if err == nil && !t.Complete() {
			err = utils.ErrIncompleteSession
		}
		if err != nil {
			if !utils.IsRetryableLoginError(err) {
				return backoff.Permanent(err)
			}
			m.logger.Debug().Err(err).Int("attempt", attempt).Msg("re-login attempt failed")
			return err
		}
		tokens = t
		return nil
	}, policy)
	if err != nil {
		return nil, err
	}

	if err := m.tokens.SetTokens(ctx, *tokens); err != nil {
		return nil, err
	}
	if err := m.creds.RecordLogin(ctx, userID); err != nil {
		m.logger.Warn().Err(err).Msg("failed to update auth state")
	}
	m.logger.Info().Str("user", userID).Int("attempt", attempt).Msg("session recovered")
	return tokens, nil
}

// sameSession reports whether a and b belong to the same portal login,
// ignoring CSRF rotation.
func sameSession(a, b models.SessionTokens) bool {
	return a.Cookies == b.Cookies && a.AuthorizedID == b.AuthorizedID
}
