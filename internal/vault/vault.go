// Package vault keeps the portal password in the OS credential store and
// the non-secret auth state in the application store.
package vault

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/phuslu/log"
	"github.com/zalando/go-keyring"

	"github.com/campusdesk/cli/internal/models"
	"github.com/campusdesk/cli/internal/store"
	"github.com/campusdesk/cli/internal/utils"
)

// DefaultServiceName namespaces the keyring entries.
const DefaultServiceName = "campusdesk"

// Keyring is the subset of an OS secret store the vault needs.
type Keyring interface {
	Set(service, user, secret string) error
	Get(service, user string) (string, error)
	Delete(service, user string) error
}

// systemKeyring forwards to the platform keyring (Keychain, Secret Service,
// Windows Credential Manager).
type systemKeyring struct{}

func (systemKeyring) Set(service, user, secret string) error {
	return keyring.Set(service, user, secret)
}

func (systemKeyring) Get(service, user string) (string, error) {
	return keyring.Get(service, user)
}

func (systemKeyring) Delete(service, user string) error {
	return keyring.Delete(service, user)
}

// Vault stores credentials. The secret is write-only from the caller's
// point of view: it is never logged and never copied into the state store.
type Vault struct {
	service string
	ring    Keyring
	state   store.StateStore
	now     func() time.Time
	logger  *log.Logger
}

// Option configures the Vault.
type Option func(*Vault)

// WithKeyring replaces the platform keyring.
func WithKeyring(ring Keyring) Option {
	return func(v *Vault) {
		v.ring = ring
	}
}

// WithClock overrides the clock used for last login timestamps.
func WithClock(now func() time.Time) Option {
	return func(v *Vault) {
		v.now = now
	}
}

// New creates a vault under the given keyring service name.
func New(service string, state store.StateStore, logger *log.Logger, opts ...Option) *Vault {
	if service == "" {
		service = DefaultServiceName
	}
	v := &Vault{
		service: service,
		ring:    systemKeyring{},
		state:   state,
		now:     time.Now,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// StoreCredential writes secret for userID, replacing any previous value.
func (v *Vault) StoreCredential(ctx context.Context, userID, secret string) error {
	if err := utils.ValidateCredential(userID, secret); err != nil {
		return err
	}
	userID = strings.TrimSpace(userID)

	if err := v.ring.Set(v.service, userID, secret); err != nil {
		v.logger.Warn().Err(err).Str("user", userID).Msg("credential store unavailable")
		return fmt.Errorf("failed to store credential: %w", err)
	}
	v.logger.Debug().Str("user", userID).Msg("credential stored")
	return nil
}

// RetrieveCredential returns the stored secret, or utils.ErrNoStoredCredential.
func (v *Vault) RetrieveCredential(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", utils.ErrNoStoredCredential
	}
	secret, err := v.ring.Get(v.service, userID)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", utils.ErrNoStoredCredential
	}
	if err != nil {
		return "", fmt.Errorf("failed to read credential: %w", err)
	}
	return secret, nil
}

// DeleteCredential removes the entry for userID. Missing entries are not an
// error.
func (v *Vault) DeleteCredential(ctx context.Context, userID string) error {
	if userID == "" {
		return nil
	}
	err := v.ring.Delete(v.service, userID)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return nil
}

// RecordLogin marks userID as logged in now.
func (v *Vault) RecordLogin(ctx context.Context, userID string) error {
	return v.state.SetAuthState(ctx, models.AuthState{
		UserID:    userID,
		LoggedIn:  true,
		LastLogin: v.now().UTC(),
	})
}

// AuthState returns the persisted auth state, or nil.
func (v *Vault) AuthState(ctx context.Context) (*models.AuthState, error) {
	return v.state.GetAuthState(ctx)
}

// ClearAuthState forgets the logged in user.
func (v *Vault) ClearAuthState(ctx context.Context) error {
	return v.state.ClearAuthState(ctx)
}

// StoredSecret returns the credential of the currently recorded user.
func (v *Vault) StoredSecret(ctx context.Context) (userID, secret string, err error) {
	state, err := v.state.GetAuthState(ctx)
	if err != nil {
		return "", "", err
	}
	if state == nil || state.UserID == "" {
		return "", "", utils.ErrNoStoredCredential
	}
	secret, err = v.RetrieveCredential(ctx, state.UserID)
	if err != nil {
		return "", "", err
	}
	return state.UserID, secret, nil
}
