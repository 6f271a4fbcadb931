// Package store persists the non-secret application state: the session
// token triple, the auth state and the selected term. Each record is
// written in a single transaction, so readers see either the previous or
// the new record, never a mix.
package store

import (
	"context"

	"github.com/campusdesk/cli/internal/models"
)

// Record keys of the general application state.
const (
	KeyAuth            = "auth"
	KeyAuthTokens      = "authTokens"
	KeyCurrentSemester = "currentSemester"
)

// TokenStore persists the live session tokens.
type TokenStore interface {
	// GetTokens returns nil when no complete token set is stored.
	GetTokens(ctx context.Context) (*models.SessionTokens, error)
	SetTokens(ctx context.Context, tokens models.SessionTokens) error
	// SwapTokens writes next only while the stored record equals old.
	SwapTokens(ctx context.Context, old, next models.SessionTokens) (bool, error)
	ClearTokens(ctx context.Context) error
}

// TermStore persists the selected term.
type TermStore interface {
	GetTerm(ctx context.Context) (*models.Term, error)
	SetTerm(ctx context.Context, term models.Term) error
	ClearTerm(ctx context.Context) error
}

// StateStore persists the auth state record.
type StateStore interface {
	GetAuthState(ctx context.Context) (*models.AuthState, error)
	SetAuthState(ctx context.Context, state models.AuthState) error
	ClearAuthState(ctx context.Context) error
}
