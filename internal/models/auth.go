package models

import "time"

// Credential pairs a portal user id with its password. The secret is never
// serialized.
type Credential struct {
	UserID string `json:"user_id" yaml:"user_id" validate:"required,max=64"`
	Secret string `json:"-" yaml:"-" validate:"required"`
}

// AuthState records whether a user is considered logged in, independent of
// whether the portal still honours the session tokens.
type AuthState struct {
	UserID    string    `json:"user_id" yaml:"user_id"`
	LoggedIn  bool      `json:"logged_in" yaml:"logged_in"`
	LastLogin time.Time `json:"last_login" yaml:"last_login"`
}

// SessionTokens is the live portal session. The three fields are always
// written and read together; a record missing any of them is treated as absent.
type SessionTokens struct {
	AuthorizedID string `json:"authorized_id" yaml:"authorized_id" validate:"required"`
	CSRF         string `json:"csrf" yaml:"csrf" validate:"required"`
	Cookies      string `json:"cookies" yaml:"cookies" validate:"required"`
}

// Complete reports whether every token field is populated.
func (t *SessionTokens) Complete() bool {
	return t != nil && t.AuthorizedID != "" && t.CSRF != "" && t.Cookies != ""
}

// WithCSRF returns a copy of the tokens carrying a regenerated CSRF token.
func (t SessionTokens) WithCSRF(csrf string) SessionTokens {
	t.CSRF = csrf
	return t
}

// Term is the selected academic semester.
type Term struct {
	ID   string `json:"id" yaml:"id" validate:"required"`
	Name string `json:"name" yaml:"name"`
}

// Challenge is one CAPTCHA round of a login attempt. It only lives in memory.
type Challenge struct {
	Image   []byte
	Cookies []string
	CSRF    string
}
