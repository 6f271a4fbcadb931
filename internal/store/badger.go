package store

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/phuslu/log"
	"github.com/timshannon/badgerhold/v4"

	"github.com/campusdesk/cli/internal/models"
	"github.com/campusdesk/cli/internal/utils"
)

// BadgerStore implements TokenStore, TermStore and StateStore on badgerhold.
type BadgerStore struct {
	db     *badgerhold.Store
	logger *log.Logger
}

var (
	_ TokenStore = (*BadgerStore)(nil)
	_ TermStore  = (*BadgerStore)(nil)
	_ StateStore = (*BadgerStore)(nil)
)

// Open opens (or creates) the store at path.
func Open(path string, logger *log.Logger) (*BadgerStore, error) {
	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	options := badgerhold.DefaultOptions
	options.Dir = path
	options.ValueDir = path
	options.Logger = nil

	return open(options, logger)
}

// OpenInMemory opens a store that lives only as long as the process.
func OpenInMemory(logger *log.Logger) (*BadgerStore, error) {
	options := badgerhold.DefaultOptions
	options.Options = badger.DefaultOptions("").WithInMemory(true)
	options.Logger = nil

	return open(options, logger)
}

func open(options badgerhold.Options, logger *log.Logger) (*BadgerStore, error) {
	db, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}
	logger.Debug().Str("path", options.Dir).Bool("in_memory", options.InMemory).Msg("state store opened")
	return &BadgerStore{db: db, logger: logger}, nil
}

// Close closes the database connection
func (s *BadgerStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// get loads key into out, reporting false when the key is absent.
func (s *BadgerStore) get(key string, out interface{}) (bool, error) {
	err := s.db.Get(key, out)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return true, nil
}

func (s *BadgerStore) put(key string, value interface{}) error {
	if err := s.db.Upsert(key, value); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// remove deletes key; deleting an absent key is not an error.
func (s *BadgerStore) remove(key string, dataType interface{}) error {
	err := s.db.Delete(key, dataType)
	if err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// GetTokens returns the stored session tokens. Incomplete records read as
// absent.
func (s *BadgerStore) GetTokens(ctx context.Context) (*models.SessionTokens, error) {
	var tokens models.SessionTokens
	found, err := s.get(KeyAuthTokens, &tokens)
	if err != nil || !found {
		return nil, err
	}
	if !tokens.Complete() {
		s.logger.Warn().Msg("ignoring incomplete session token record")
		return nil, nil
	}
	return &tokens, nil
}

// SetTokens replaces the session tokens. Incomplete sets are rejected and
// leave the previous record untouched.
func (s *BadgerStore) SetTokens(ctx context.Context, tokens models.SessionTokens) error {
	if err := utils.ValidateTokens(tokens); err != nil {
		return err
	}
	if err := s.put(KeyAuthTokens, tokens); err != nil {
		return err
	}
	s.logger.Debug().Int("cookie_len", len(tokens.Cookies)).Int("csrf_len", len(tokens.CSRF)).Msg("session tokens stored")
	return nil
}

// SwapTokens replaces the session tokens with next only if the store still
// holds old. It reports whether the write happened.
func (s *BadgerStore) SwapTokens(ctx context.Context, old, next models.SessionTokens) (bool, error) {
	if err := utils.ValidateTokens(next); err != nil {
		return false, err
	}

	swapped := false
	err := s.db.Badger().Update(func(tx *badger.Txn) error {
		var current models.SessionTokens
		err := s.db.TxGet(tx, KeyAuthTokens, &current)
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if current != old {
			return nil
		}
		if err := s.db.TxUpsert(tx, KeyAuthTokens, next); err != nil {
			return err
		}
		swapped = true
		return nil
	})
	if errors.Is(err, badger.ErrConflict) {
		// a concurrent writer won
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to swap %s: %w", KeyAuthTokens, err)
	}
	return swapped, nil
}

// ClearTokens deletes the session tokens
func (s *BadgerStore) ClearTokens(ctx context.Context) error {
	return s.remove(KeyAuthTokens, models.SessionTokens{})
}

// GetTerm returns the selected term, or nil
func (s *BadgerStore) GetTerm(ctx context.Context) (*models.Term, error) {
	var term models.Term
	found, err := s.get(KeyCurrentSemester, &term)
	if err != nil || !found {
		return nil, err
	}
	return &term, nil
}

// SetTerm stores the selected term
func (s *BadgerStore) SetTerm(ctx context.Context, term models.Term) error {
	if err := utils.ValidateTerm(term); err != nil {
		return err
	}
	return s.put(KeyCurrentSemester, term)
}

// ClearTerm deletes the selected term
func (s *BadgerStore) ClearTerm(ctx context.Context) error {
	return s.remove(KeyCurrentSemester, models.Term{})
}

// GetAuthState returns the auth state, or nil
func (s *BadgerStore) GetAuthState(ctx context.Context) (*models.AuthState, error) {
	var state models.AuthState
	found, err := s.get(KeyAuth, &state)
	if err != nil || !found {
		return nil, err
	}
	return &state, nil
}

// SetAuthState stores the auth state
func (s *BadgerStore) SetAuthState(ctx context.Context, state models.AuthState) error {
	if err := utils.ValidateRequired(state.UserID, "user_id"); err != nil {
		return err
	}
	return s.put(KeyAuth, state)
}

// ClearAuthState deletes the auth state
func (s *BadgerStore) ClearAuthState(ctx context.Context) error {
	return s.remove(KeyAuth, models.AuthState{})
}
