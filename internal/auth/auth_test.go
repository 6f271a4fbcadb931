package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusdesk/cli/internal/api"
	"github.com/campusdesk/cli/internal/logging"
	"github.com/campusdesk/cli/internal/portaltest"
	"github.com/campusdesk/cli/internal/utils"
)

// scriptedSolver answers with the given guesses in order, repeating the last.
type scriptedSolver struct {
	mu      sync.Mutex
	guesses []string
	images  [][]byte
}

func (s *scriptedSolver) Solve(image []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images = append(s.images, image)
	guess := s.guesses[0]
	if len(s.guesses) > 1 {
		s.guesses = s.guesses[1:]
	}
	return guess, nil
}

func testOptions() Options {
	return Options{
		SetupAttempts:     10,
		SetupDelay:        time.Millisecond,
		ChallengeAttempts: 5,
		ChallengeDelay:    time.Millisecond,
		DefaultLanding:    "/content",
	}
}

func newTestAuthenticator(t *testing.T, portal *portaltest.Server, solver Solver) *Authenticator {
	t.Helper()
	client, err := api.NewClient(portal.URL, api.WithInsecureTLS(true), api.WithRateLimit(0))
	require.NoError(t, err)
	return New(client, solver, testOptions(), logging.Nop())
}

func TestLoginSuccess(t *testing.T) {
	portal := portaltest.New(t)
	solver := &scriptedSolver{guesses: []string{portal.Captcha}}
	a := newTestAuthenticator(t, portal, solver)

	tokens, err := a.Login(context.Background(), portal.UserID, portal.Password)
	require.NoError(t, err)
	require.True(t, tokens.Complete())

	assert.Equal(t, portal.UserID, tokens.AuthorizedID)
	assert.Contains(t, tokens.Cookies, "JSESSIONID=")
	assert.Contains(t, tokens.Cookies, "loginUserType=vtopuser")
	assert.NotEmpty(t, tokens.CSRF)

	// the image was fetched and base64 encoded
	require.Len(t, solver.images, 1)
	raw, err := base64.StdEncoding.DecodeString(string(solver.images[0]))
	require.NoError(t, err)
	assert.Equal(t, portal.CaptchaImage, raw)
}

func TestLoginInlineCaptcha(t *testing.T) {
	portal := portaltest.New(t)
	portal.InlineCaptcha = true
	solver := &scriptedSolver{guesses: []string{portal.Captcha}}
	a := newTestAuthenticator(t, portal, solver)

	_, err := a.Login(context.Background(), portal.UserID, portal.Password)
	require.NoError(t, err)
	require.Len(t, solver.images, 1)
	assert.Contains(t, string(solver.images[0]), "data:image/png;base64,")
}

func TestLoginOutcomes(t *testing.T) {
	tests := []struct {
		name     string
		guess    string
		password string
		wantErr  error
	}{
		{"wrong captcha", "AAAAAA", "correct-horse", utils.ErrInvalidCaptcha},
		{"wrong password", "K7PX3M", "battery-staple", utils.ErrInvalidCredentials},
		// captcha errors are reported first, as the portal does
		{"both wrong", "AAAAAA", "battery-staple", utils.ErrInvalidCaptcha},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			portal := portaltest.New(t)
			a := newTestAuthenticator(t, portal, &scriptedSolver{guesses: []string{tt.guess}})

			tokens, err := a.Login(context.Background(), portal.UserID, tt.password)
			assert.Nil(t, tokens)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, 1, portal.LoginPosts())
		})
	}
}

func TestLoginRetriesMissingCSRF(t *testing.T) {
	portal := portaltest.New(t)
	portal.MissingCSRF = 3
	a := newTestAuthenticator(t, portal, &scriptedSolver{guesses: []string{portal.Captcha}})

	_, err := a.Login(context.Background(), portal.UserID, portal.Password)
	require.NoError(t, err)
}

func TestLoginGivesUpOnMissingCSRF(t *testing.T) {
	portal := portaltest.New(t)
	portal.MissingCSRF = 100
	a := newTestAuthenticator(t, portal, &scriptedSolver{guesses: []string{portal.Captcha}})

	_, err := a.Login(context.Background(), portal.UserID, portal.Password)
	assert.ErrorIs(t, err, utils.ErrCSRFTokenMissing)
	assert.Equal(t, 0, portal.LoginPosts())
}

func TestLoginRestartsOnRecaptcha(t *testing.T) {
	portal := portaltest.New(t)
	portal.Recaptcha = 2
	a := newTestAuthenticator(t, portal, &scriptedSolver{guesses: []string{portal.Captcha}})

	_, err := a.Login(context.Background(), portal.UserID, portal.Password)
	require.NoError(t, err)
	assert.Equal(t, 1, portal.LoginPosts())
}

func TestLoginRecaptchaExhausted(t *testing.T) {
	portal := portaltest.New(t)
	portal.Recaptcha = 100
	a := newTestAuthenticator(t, portal, &scriptedSolver{guesses: []string{portal.Captcha}})

	_, err := a.Login(context.Background(), portal.UserID, portal.Password)
	assert.ErrorIs(t, err, utils.ErrCaptchaUnsolvable)
	assert.Equal(t, 0, portal.LoginPosts())
}

func TestLoginWithoutRedirectUsesDefaultLanding(t *testing.T) {
	portal := portaltest.New(t)
	portal.NoRedirect = true
	a := newTestAuthenticator(t, portal, &scriptedSolver{guesses: []string{portal.Captcha}})

	tokens, err := a.Login(context.Background(), portal.UserID, portal.Password)
	require.NoError(t, err)
	assert.Equal(t, portal.UserID, tokens.AuthorizedID)
}

func TestLoginTransportErrorIsNotRetried(t *testing.T) {
	portal := portaltest.New(t)
	a := newTestAuthenticator(t, portal, &scriptedSolver{guesses: []string{"X"}})
	portal.Close()

	_, err := a.Login(context.Background(), "21BCE0001", "pw")
	require.Error(t, err)
	assert.False(t, errors.Is(err, utils.ErrCSRFTokenMissing))
}

func TestLoginValidatesInput(t *testing.T) {
	portal := portaltest.New(t)
	a := newTestAuthenticator(t, portal, &scriptedSolver{guesses: []string{"X"}})

	_, err := a.Login(context.Background(), "", "pw")
	var verr *utils.ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestLogout(t *testing.T) {
	portal := portaltest.New(t)
	a := newTestAuthenticator(t, portal, &scriptedSolver{guesses: []string{portal.Captcha}})

	tokens, err := a.Login(context.Background(), portal.UserID, portal.Password)
	require.NoError(t, err)

	require.NoError(t, a.Logout(context.Background(), *tokens))
	assert.Equal(t, 1, portal.Logouts())

	err = a.Logout(context.Background(), *tokens)
	assert.True(t, utils.IsAuthError(err))
}
