package portal

import (
	"fmt"
	"io"
	"time"

	"github.com/phuslu/log"

	"github.com/campusdesk/cli/internal/api"
	"github.com/campusdesk/cli/internal/auth"
	"github.com/campusdesk/cli/internal/captcha"
	"github.com/campusdesk/cli/internal/config"
	"github.com/campusdesk/cli/internal/session"
	"github.com/campusdesk/cli/internal/store"
	"github.com/campusdesk/cli/internal/vault"
)

type openOptions struct {
	solver     auth.Solver
	store      *store.BadgerStore
	vaultOpts  []vault.Option
	clientOpts []api.ClientOption
	now        func() time.Time
}

// Option customises Open
type Option func(*openOptions)

// WithSolver replaces the CAPTCHA solver loaded from the model file
func WithSolver(solver auth.Solver) Option {
	return func(o *openOptions) { o.solver = solver }
}

// WithStore uses an already opened state store. The caller keeps ownership.
func WithStore(s *store.BadgerStore) Option {
	return func(o *openOptions) { o.store = s }
}

// WithVaultOptions passes options to the credential vault
func WithVaultOptions(opts ...vault.Option) Option {
	return func(o *openOptions) { o.vaultOpts = append(o.vaultOpts, opts...) }
}

// WithClientOptions passes extra options to the portal client
func WithClientOptions(opts ...api.ClientOption) Option {
	return func(o *openOptions) { o.clientOpts = append(o.clientOpts, opts...) }
}

// WithClock sets the time source for request stamps
func WithClock(now func() time.Time) Option {
	return func(o *openOptions) { o.now = now }
}

// Open builds a Service from configuration.
func Open(cfg *config.Config, logger *log.Logger, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := openOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	clientOpts := []api.ClientOption{
		api.WithTimeout(cfg.Portal.TimeoutDuration()),
		api.WithInsecureTLS(cfg.Portal.InsecureSkipVerify),
		api.WithRateLimit(cfg.Portal.RateLimit),
		api.WithLogger(logger),
	}
	if cfg.Portal.UserAgent != "" {
		clientOpts = append(clientOpts, api.WithUserAgent(cfg.Portal.UserAgent))
	}
	client, err := api.NewClient(cfg.Portal.BaseURL, append(clientOpts, o.clientOpts...)...)
	if err != nil {
		return nil, err
	}

	if o.solver == nil {
		o.solver = loadSolver(cfg.Captcha.ModelPath, logger)
	}

	var closers []io.Closer
	st := o.store
	if st == nil {
		st, err = store.Open(cfg.Storage.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open state store: %w", err)
		}
		closers = append(closers, st)
	}

	authOpts := auth.Options{
		SetupAttempts:     cfg.Login.SetupAttempts,
		SetupDelay:        cfg.Login.SetupDelayDuration(),
		ChallengeAttempts: cfg.Login.ChallengeAttempts,
		ChallengeDelay:    cfg.Login.ChallengeDelayDuration(),
		DefaultLanding:    cfg.Portal.DefaultLanding,
	}
	authenticator := auth.New(client, o.solver, authOpts, logger)
	v := vault.New(cfg.Vault.ServiceName, st, logger, o.vaultOpts...)

	return &Service{
		client:      client,
		auth:        authenticator,
		vault:       v,
		tokens:      st,
		terms:       st,
		session:     session.NewManager(st, v, authenticator, cfg.Login.RecoveryAttempts, logger),
		maxAttempts: cfg.Login.MaxAttempts,
		now:         o.now,
		logger:      logger,
		closers:     closers,
	}, nil
}

// loadSolver falls back to a solver that always fails when the model
// cannot be read, so commands that never log in still work.
func loadSolver(path string, logger *log.Logger) auth.Solver {
	model, err := captcha.LoadModelFile(path)
	if err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("captcha model unavailable")
		return unavailableSolver{err: err}
	}
	return captcha.NewSolver(model)
}

type unavailableSolver struct{ err error }

func (s unavailableSolver) Solve([]byte) (string, error) {
	return "", fmt.Errorf("captcha model unavailable: %w", s.err)
}
