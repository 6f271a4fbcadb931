// Package auth runs the portal login handshake: setup, challenge, CAPTCHA
// solving, submission and outcome classification.
package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/phuslu/log"

	"github.com/campusdesk/cli/internal/api"
	"github.com/campusdesk/cli/internal/models"
	"github.com/campusdesk/cli/internal/utils"
)

// Portal endpoints used by the handshake.
const (
	PathSetup  = "/prelogin/setup"
	PathLogin  = "/login"
	PathLogout = "/logout"

	// portalFlag selects the student portal on the setup page.
	portalFlag = "VTOP"
)

// Solver guesses the text of a CAPTCHA image.
type Solver interface {
	Solve(image []byte) (string, error)
}

// Options bounds the retry loops of one login.
type Options struct {
	// SetupAttempts bounds refetches of the setup page when it omits the
	// CSRF token.
	SetupAttempts int
	SetupDelay    time.Duration
	// ChallengeAttempts bounds restarts from setup when the portal serves
	// an unsupported CAPTCHA kind.
	ChallengeAttempts int
	ChallengeDelay    time.Duration
	// DefaultLanding is fetched when the login response does not redirect.
	DefaultLanding string
}

// DefaultOptions returns the production retry bounds.
func DefaultOptions() Options {
	return Options{
		SetupAttempts:     10,
		SetupDelay:        500 * time.Millisecond,
		ChallengeAttempts: 5,
		ChallengeDelay:    time.Second,
		DefaultLanding:    "/content",
	}
}

// Authenticator logs users into the portal.
type Authenticator struct {
	client *api.Client
	solver Solver
	opts   Options
	logger *log.Logger
}

// New creates an Authenticator
func New(client *api.Client, solver Solver, opts Options, logger *log.Logger) *Authenticator {
	if opts.SetupAttempts < 1 {
		opts.SetupAttempts = 1
	}
	if opts.ChallengeAttempts < 1 {
		opts.ChallengeAttempts = 1
	}
	if opts.DefaultLanding == "" {
		opts.DefaultLanding = DefaultOptions().DefaultLanding
	}
	return &Authenticator{
		client: client,
		solver: solver,
		opts:   opts,
		logger: logger,
	}
}

// Login performs one full login. A wrong CAPTCHA guess is an expected
// outcome reported as utils.ErrInvalidCaptcha; callers decide whether to
// try again.
func (a *Authenticator) Login(ctx context.Context, userID, secret string) (*models.SessionTokens, error) {
	if err := utils.ValidateCredential(userID, secret); err != nil {
		return nil, err
	}
	userID = strings.TrimSpace(userID)

	attempt := uuid.NewString()
	start := time.Now()
	a.logger.Info().Str("attempt", attempt).Str("user", userID).Msg("login started")

	challenge, err := a.prepareChallenge(ctx, attempt)
	if err != nil {
		a.logger.Warn().Str("attempt", attempt).Err(err).Msg("login challenge unavailable")
		return nil, err
	}

	guess, err := a.solver.Solve(challenge.Image)
	if err != nil {
		return nil, fmt.Errorf("failed to solve captcha: %w", err)
	}
	a.logger.Debug().Str("attempt", attempt).Str("guess", guess).Msg("captcha solved")

	tokens, err := a.submit(ctx, challenge, userID, secret, guess)
	if err != nil {
		a.logger.Warn().Str("attempt", attempt).Err(err).Dur("elapsed", time.Since(start)).Msg("login failed")
		return nil, err
	}

	a.logger.Info().Str("attempt", attempt).Str("user", userID).Dur("elapsed", time.Since(start)).Msg("login succeeded")
	return tokens, nil
}

// prepareChallenge walks setup, flag selection and challenge fetch,
// starting over while the portal serves a CAPTCHA kind we cannot solve.
func (a *Authenticator) prepareChallenge(ctx context.Context, attempt string) (*models.Challenge, error) {
	var challenge *models.Challenge

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(a.opts.ChallengeDelay), uint64(a.opts.ChallengeAttempts-1)),
		ctx,
	)
	err := backoff.Retry(func() error {
		c, err := a.fetchChallenge(ctx, attempt)
		if errors.Is(err, utils.ErrCaptchaUnsolvable) {
			a.logger.Debug().Str("attempt", attempt).Msg("unsupported captcha served, restarting setup")
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		challenge = c
		return nil
	}, policy)
	if err != nil {
		return nil, err
	}
	return challenge, nil
}

func (a *Authenticator) fetchChallenge(ctx context.Context, attempt string) (*models.Challenge, error) {
	csrf, cookies, err := a.setup(ctx, attempt)
	if err != nil {
		return nil, err
	}

	// flag selection
	resp, err := a.client.PostForm(ctx, PathSetup, url.Values{
		"_csrf": {csrf},
		"flag":  {portalFlag},
	}, cookies)
	if err != nil {
		return nil, fmt.Errorf("portal selection failed: %w", err)
	}
	cookies = api.MergeCookies(cookies, resp.SetCookies()...)

	resp, err = a.client.Get(ctx, PathLogin, cookies)
	if err != nil {
		return nil, fmt.Errorf("failed to load login page: %w", err)
	}
	cookies = api.MergeCookies(cookies, resp.SetCookies()...)

	doc, err := parseHTML(resp.Body)
	if err != nil {
		return nil, err
	}
	if hasRecaptcha(doc) {
		return nil, utils.ErrCaptchaUnsolvable
	}
	if token := CSRFToken(doc); token != "" {
		csrf = token
	}

	src := captchaSource(doc)
	if src == "" {
		return nil, fmt.Errorf("%w: no captcha image on login page", utils.ErrCaptchaUnsolvable)
	}

	var image []byte
	if strings.HasPrefix(src, "data:") {
		image = []byte(src)
	} else {
		imgResp, err := a.client.Get(ctx, src, cookies)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch captcha image: %w", err)
		}
		cookies = api.MergeCookies(cookies, imgResp.SetCookies()...)
		image = []byte(base64.StdEncoding.EncodeToString(imgResp.Body))
	}

	return &models.Challenge{
		Image:   image,
		Cookies: splitCookies(cookies),
		CSRF:    csrf,
	}, nil
}

// setup fetches the pre-login page until it carries a CSRF token.
func (a *Authenticator) setup(ctx context.Context, attempt string) (csrf, cookies string, err error) {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(a.opts.SetupDelay), uint64(a.opts.SetupAttempts-1)),
		ctx,
	)
	err = backoff.Retry(func() error {
		resp, err := a.client.Get(ctx, PathSetup, "")
		if err != nil {
			return backoff.Permanent(fmt.Errorf("setup request failed: %w", err))
		}
		doc, err := parseHTML(resp.Body)
		if err != nil {
			return backoff.Permanent(err)
		}
		token := CSRFToken(doc)
		if token == "" {
			a.logger.Debug().Str("attempt", attempt).Msg("setup page without csrf token, retrying")
			return utils.ErrCSRFTokenMissing
		}
		csrf = token
		cookies = api.MergeCookies("", resp.SetCookies()...)
		return nil
	}, policy)
	return csrf, cookies, err
}

// submit posts the credentials, follows the landing page manually and
// classifies the outcome.
func (a *Authenticator) submit(ctx context.Context, challenge *models.Challenge, userID, secret, guess string) (*models.SessionTokens, error) {
	cookies := strings.Join(challenge.Cookies, "; ")

	resp, err := a.client.Do(ctx, &api.Request{
		Method: http.MethodPost,
		Path:   PathLogin,
		Form: url.Values{
			"_csrf":      {challenge.CSRF},
			"username":   {userID},
			"password":   {secret},
			"captchaStr": {guess},
		},
		Cookies:    cookies,
		NoRedirect: true,
	})
	if err != nil {
		return nil, fmt.Errorf("login request failed: %w", err)
	}
	cookies = api.MergeCookies(cookies, resp.SetCookies()...)

	landing := a.opts.DefaultLanding
	if loc := resp.Location(); loc != "" {
		landing = loc
	}

	page, err := a.client.Get(ctx, landing, cookies)
	if err != nil {
		return nil, fmt.Errorf("failed to load landing page: %w", err)
	}
	cookies = api.MergeCookies(cookies, page.SetCookies()...)

	doc, err := parseHTML(page.Body)
	if err != nil {
		return nil, err
	}

	id, err := classify(doc)
	if err != nil {
		return nil, err
	}

	csrf := CSRFToken(doc)
	if csrf == "" {
		csrf = challenge.CSRF
	}
	tokens := &models.SessionTokens{
		AuthorizedID: id,
		CSRF:         csrf,
		Cookies:      cookies,
	}
	if !tokens.Complete() {
		return nil, utils.ErrIncompleteSession
	}
	return tokens, nil
}

// Logout ends the portal session behind tokens.
func (a *Authenticator) Logout(ctx context.Context, tokens models.SessionTokens) error {
	_, err := a.client.PostForm(ctx, PathLogout, url.Values{
		"_csrf":        {tokens.CSRF},
		"authorizedID": {tokens.AuthorizedID},
	}, tokens.Cookies)
	if err != nil {
		return fmt.Errorf("logout request failed: %w", err)
	}
	return nil
}

func splitCookies(header string) []string {
	if header == "" {
		return nil
	}
	return strings.Split(header, "; ")
}
