package portal

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/campusdesk/cli/internal/config"
	"github.com/campusdesk/cli/internal/logging"
	"github.com/campusdesk/cli/internal/models"
	"github.com/campusdesk/cli/internal/portaltest"
	"github.com/campusdesk/cli/internal/store"
	"github.com/campusdesk/cli/internal/utils"
)

type scriptedSolver struct {
	mu      sync.Mutex
	guesses []string
}

func (s *scriptedSolver) Solve([]byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	guess := s.guesses[0]
	if len(s.guesses) > 1 {
		s.guesses = s.guesses[1:]
	}
	return guess, nil
}

func newTestService(t *testing.T, srv *portaltest.Server, guesses ...string) *Service {
	t.Helper()
	keyring.MockInit()

	cfg := config.Default(t.TempDir())
	cfg.Portal.BaseURL = srv.URL
	cfg.Portal.RateLimit = 0
	cfg.Login.SetupDelay = "1ms"
	cfg.Login.ChallengeDelay = "1ms"

	st, err := store.OpenInMemory(logging.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	if len(guesses) == 0 {
		guesses = []string{srv.Captcha}
	}
	svc, err := Open(cfg, logging.Nop(),
		WithStore(st),
		WithSolver(&scriptedSolver{guesses: guesses}),
		WithClock(func() time.Time { return time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC) }),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func login(t *testing.T, svc *Service, srv *portaltest.Server) {
	t.Helper()
	res := svc.Login(context.Background(), srv.UserID, srv.Password)
	require.True(t, res.Success, "login failed: %s", res.Error)
}

func TestLoginStoresSession(t *testing.T) {
	srv := portaltest.New(t)
	svc := newTestService(t, srv)
	ctx := context.Background()

	res := svc.Login(ctx, srv.UserID, srv.Password)
	require.True(t, res.Success, res.Error)

	state, ok := res.Data.(*models.AuthState)
	require.True(t, ok)
	assert.Equal(t, srv.UserID, state.UserID)
	assert.True(t, state.LoggedIn)

	tokens := svc.GetSessionTokens(ctx)
	require.True(t, tokens.Success)
	got := tokens.Data.(*models.SessionTokens)
	assert.True(t, got.Complete())
	assert.Equal(t, srv.UserID, got.AuthorizedID)

	secret, err := keyring.Get("campusdesk", srv.UserID)
	require.NoError(t, err)
	assert.Equal(t, srv.Password, secret)
}

func TestLoginRetriesWrongCaptcha(t *testing.T) {
	srv := portaltest.New(t)
	svc := newTestService(t, srv, "AAAAAA", "BBBBBB", srv.Captcha)

	res := svc.Login(context.Background(), srv.UserID, srv.Password)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, 3, srv.LoginPosts())
}

func TestLoginGivesUpAfterMaxAttempts(t *testing.T) {
	srv := portaltest.New(t)
	svc := newTestService(t, srv, "AAAAAA")

	res := svc.Login(context.Background(), srv.UserID, srv.Password)
	assert.False(t, res.Success)
	assert.Equal(t, utils.ErrInvalidCaptcha.Error(), res.Error)
	assert.Equal(t, 3, srv.LoginPosts())
}

func TestLoginDoesNotRetryBadPassword(t *testing.T) {
	srv := portaltest.New(t)
	svc := newTestService(t, srv)
	ctx := context.Background()

	res := svc.Login(ctx, srv.UserID, "wrong")
	assert.False(t, res.Success)
	assert.Equal(t, utils.ErrInvalidCredentials.Error(), res.Error)
	assert.Equal(t, 1, srv.LoginPosts())

	state := svc.GetAuthState(ctx)
	assert.True(t, state.Success)
	assert.Nil(t, state.Data)

	_, err := keyring.Get("campusdesk", srv.UserID)
	assert.ErrorIs(t, err, keyring.ErrNotFound)
}

func TestLoginValidatesInput(t *testing.T) {
	srv := portaltest.New(t)
	svc := newTestService(t, srv)

	res := svc.Login(context.Background(), "  ", "secret")
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "user_id")
	assert.Zero(t, srv.LoginPosts())
}

func TestFetchNeedsTerm(t *testing.T) {
	srv := portaltest.New(t)
	svc := newTestService(t, srv)
	login(t, svc, srv)

	res := svc.Fetch(context.Background(), "attendance")
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "needs a selected term")
	assert.Zero(t, srv.DataCalls("/processViewStudentAttendance"))
}

func TestFetchSendsSessionFields(t *testing.T) {
	srv := portaltest.New(t)
	svc := newTestService(t, srv)
	ctx := context.Background()
	login(t, svc, srv)

	require.True(t, svc.SetTerm(ctx, models.Term{ID: "VL20252601", Name: "Winter 2025-26"}).Success)

	res := svc.Fetch(ctx, "attendance")
	require.True(t, res.Success, res.Error)
	body := res.Data.(string)
	assert.Contains(t, body, `data-path="/processViewStudentAttendance"`)
	assert.Contains(t, body, `data-term="VL20252601"`)

	res = svc.Fetch(ctx, "profile")
	require.True(t, res.Success, res.Error)
	assert.Contains(t, res.Data.(string), `data-term=""`)
}

func TestFetchUnknownOperation(t *testing.T) {
	srv := portaltest.New(t)
	svc := newTestService(t, srv)

	res := svc.Fetch(context.Background(), "library")
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, `unknown operation "library"`)
}

func TestFetchRecoversExpiredSession(t *testing.T) {
	srv := portaltest.New(t)
	svc := newTestService(t, srv)
	ctx := context.Background()
	login(t, svc, srv)
	before := svc.GetSessionTokens(ctx).Data.(*models.SessionTokens)

	srv.ExpireSessions()

	res := svc.Fetch(ctx, "profile")
	require.True(t, res.Success, res.Error)
	assert.Equal(t, 2, srv.LoginPosts())
	assert.Equal(t, 2, srv.DataCalls("/studentsRecord/StudentProfileAllView"))

	after := svc.GetSessionTokens(ctx).Data.(*models.SessionTokens)
	assert.NotEqual(t, before.Cookies, after.Cookies)
}

func TestFetchRecoversForbiddenAndNotFound(t *testing.T) {
	for _, status := range []int{403, 404} {
		srv := portaltest.New(t)
		srv.ExpiredStatus = status
		svc := newTestService(t, srv)
		login(t, svc, srv)
		srv.ExpireSessions()

		res := svc.Fetch(context.Background(), "curriculum")
		require.True(t, res.Success, "status %d: %s", status, res.Error)
		assert.Equal(t, 2, srv.LoginPosts(), "status %d", status)
	}
}

func TestFetchConcurrentExpiryLogsInOnce(t *testing.T) {
	srv := portaltest.New(t)
	svc := newTestService(t, srv)
	ctx := context.Background()
	login(t, svc, srv)
	srv.ExpireSessions()

	var wg sync.WaitGroup
	results := make([]models.Result, 6)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = svc.Fetch(ctx, "receipts")
		}(i)
	}
	wg.Wait()

	for _, res := range results {
		assert.True(t, res.Success, res.Error)
	}
	assert.Equal(t, 2, srv.LoginPosts())
}

func TestFetchWithoutLogin(t *testing.T) {
	srv := portaltest.New(t)
	svc := newTestService(t, srv)

	res := svc.Fetch(context.Background(), "profile")
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, utils.ErrNotLoggedIn.Error())
	assert.Zero(t, srv.LoginPosts())
}

func TestFetchStoresRotatedCSRF(t *testing.T) {
	srv := portaltest.New(t)
	svc := newTestService(t, srv)
	ctx := context.Background()
	login(t, svc, srv)
	before := svc.GetSessionTokens(ctx).Data.(*models.SessionTokens)

	_, err := svc.FetchPage(ctx, Operation{Name: "rotate", Path: "/forms/rotate"})
	require.NoError(t, err)

	after := svc.GetSessionTokens(ctx).Data.(*models.SessionTokens)
	assert.NotEqual(t, before.CSRF, after.CSRF)
	assert.Equal(t, before.Cookies, after.Cookies)

	// the next request is accepted without a new login
	res := svc.Fetch(ctx, "profile")
	require.True(t, res.Success, res.Error)
	assert.Equal(t, 1, srv.LoginPosts())
}

func TestLogoutKeepsTermByDefault(t *testing.T) {
	srv := portaltest.New(t)
	svc := newTestService(t, srv)
	ctx := context.Background()
	login(t, svc, srv)
	require.True(t, svc.SetTerm(ctx, models.Term{ID: "VL20252601"}).Success)

	res := svc.Logout(ctx, false)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, 1, srv.Logouts())

	assert.Nil(t, svc.GetSessionTokens(ctx).Data)
	assert.Nil(t, svc.GetAuthState(ctx).Data)
	_, err := keyring.Get("campusdesk", srv.UserID)
	assert.ErrorIs(t, err, keyring.ErrNotFound)

	term := svc.GetTerm(ctx)
	require.True(t, term.Success)
	assert.Equal(t, "VL20252601", term.Data.(*models.Term).ID)
}

func TestLogoutAllClearsTerm(t *testing.T) {
	srv := portaltest.New(t)
	svc := newTestService(t, srv)
	ctx := context.Background()
	login(t, svc, srv)
	require.True(t, svc.SetTerm(ctx, models.Term{ID: "VL20252601"}).Success)

	require.True(t, svc.Logout(ctx, true).Success)
	assert.Nil(t, svc.GetTerm(ctx).Data)
}

func TestLogoutWhenNotLoggedIn(t *testing.T) {
	srv := portaltest.New(t)
	svc := newTestService(t, srv)

	res := svc.Logout(context.Background(), false)
	assert.True(t, res.Success, res.Error)
	assert.Zero(t, srv.Logouts())
}

func TestSessionTokenAccessors(t *testing.T) {
	srv := portaltest.New(t)
	svc := newTestService(t, srv)
	ctx := context.Background()

	res := svc.SetSessionTokens(ctx, models.SessionTokens{AuthorizedID: "21BCE0001"})
	assert.False(t, res.Success)
	assert.Nil(t, svc.GetSessionTokens(ctx).Data)

	tokens := models.SessionTokens{AuthorizedID: "21BCE0001", CSRF: "c", Cookies: "JSESSIONID=x"}
	require.True(t, svc.SetSessionTokens(ctx, tokens).Success)
	assert.Equal(t, &tokens, svc.GetSessionTokens(ctx).Data)

	require.True(t, svc.DeleteSessionTokens(ctx).Success)
	require.True(t, svc.DeleteSessionTokens(ctx).Success)
	assert.Nil(t, svc.GetSessionTokens(ctx).Data)
}

func TestTermAccessors(t *testing.T) {
	srv := portaltest.New(t)
	svc := newTestService(t, srv)
	ctx := context.Background()

	assert.Nil(t, svc.GetTerm(ctx).Data)
	assert.False(t, svc.SetTerm(ctx, models.Term{}).Success)

	require.True(t, svc.SetTerm(ctx, models.Term{ID: "VL1", Name: "Fall"}).Success)
	require.True(t, svc.SetTerm(ctx, models.Term{ID: "VL2", Name: "Winter"}).Success)
	assert.Equal(t, "VL2", svc.GetTerm(ctx).Data.(*models.Term).ID)

	require.True(t, svc.ClearTerm(ctx).Success)
	assert.Nil(t, svc.GetTerm(ctx).Data)
}

func TestOperationsCatalogue(t *testing.T) {
	ops := Operations()
	require.Len(t, ops, 10)
	for i := 1; i < len(ops); i++ {
		assert.Less(t, ops[i-1].Name, ops[i].Name)
	}

	op, err := LookupOperation("timetable")
	require.NoError(t, err)
	assert.True(t, op.NeedsTerm)

	op, err = LookupOperation("profile")
	require.NoError(t, err)
	assert.False(t, op.NeedsTerm)
}

func TestCSRFRefreshKeepsRecoveredSession(t *testing.T) {
	srv := portaltest.New(t)
	svc := newTestService(t, srv)
	ctx := context.Background()
	login(t, svc, srv)
	old := *svc.GetSessionTokens(ctx).Data.(*models.SessionTokens)

	recovered := models.SessionTokens{AuthorizedID: old.AuthorizedID, CSRF: "csrf-new", Cookies: "JSESSIONID=recovered"}
	require.True(t, svc.SetSessionTokens(ctx, recovered).Success)

	// a response of the old session arrives late with a rotated token
	svc.refreshCSRF(ctx, old, []byte(`<html><body><input type="hidden" name="_csrf" value="csrf-late"/></body></html>`))

	assert.Equal(t, &recovered, svc.GetSessionTokens(ctx).Data)
}

func TestFetchRecoversAfterCSRFRotationAndExpiry(t *testing.T) {
	srv := portaltest.New(t)
	svc := newTestService(t, srv)
	ctx := context.Background()
	login(t, svc, srv)

	_, err := svc.FetchPage(ctx, Operation{Name: "rotate", Path: "/forms/rotate"})
	require.NoError(t, err)
	srv.ExpireSessions()

	res := svc.Fetch(ctx, "profile")
	require.True(t, res.Success, res.Error)
	assert.Equal(t, 2, srv.LoginPosts())
}
