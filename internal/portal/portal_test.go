package portal

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"integration-school-portal/internal/model"
	"integration-school-portal/internal/portal/portaltest"
	perrors "integration-school-portal/pkg/errors"
)

var week = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func newClient(t *testing.T, p *portaltest.Portal) *Client {
	t.Helper()
	c, err := NewClient(p.Config(), nil)
	require.NoError(t, err)
	return c
}

func TestLoginFollowsRedirectOnce(t *testing.T) {
	p := portaltest.New(t)
	c := newClient(t, p)

	require.NoError(t, c.Auth.Login(context.Background(), p.Credential()))

	assert.Equal(t, StateAuthenticated, c.Auth.State())
	assert.Equal(t, model.AuthAuthenticated, c.Auth.State().Status())
	assert.Equal(t, 2, p.Hits("/loguj"))
	assert.Equal(t, 1, p.Hits("/uczen/index"))
	assert.NotEmpty(t, c.Transport.Session().Token())

	cookies := c.Transport.Session().Snapshot()
	assert.Contains(t, cookies, "DZIENNIKSID")
	assert.Contains(t, cookies, "SDZIENNIKSID")
}

func TestLoginAbsoluteRedirectStaysOnPortalHost(t *testing.T) {
	p := portaltest.New(t, portaltest.WithAbsoluteRedirect())
	c := newClient(t, p)

	require.NoError(t, c.Auth.Login(context.Background(), p.Credential()))
	assert.Equal(t, 1, p.Hits("/uczen/index"))

	body, err := c.Fetcher.FetchGrades(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, body)
}

func TestLoginWithoutTokenIsRefused(t *testing.T) {
	p := portaltest.New(t)
	cfg := p.Config()
	cfg.TokenField = "csrf_token"
	c, err := NewClient(cfg, nil)
	require.NoError(t, err)

	err = c.Auth.Login(context.Background(), p.Credential())

	require.Error(t, err)
	assert.True(t, errors.Is(err, perrors.ErrAuthPortal))
	assert.False(t, errors.Is(err, perrors.ErrAuthRejected))
	assert.Equal(t, StatePortalError, c.Auth.State())
	assert.Zero(t, p.ResourceHits())
}

func TestLoginAgainstTokenlessPortal(t *testing.T) {
	p := portaltest.New(t, portaltest.WithoutToken())
	c := newClient(t, p)

	require.NoError(t, c.Auth.Login(context.Background(), p.Credential()))
	assert.Empty(t, c.Transport.Session().Token())
	assert.Equal(t, StateAuthenticated, c.Auth.State())
}

func TestLoginRejected(t *testing.T) {
	tests := []struct {
		name string
		cred func(model.Credential) model.Credential
	}{
		{
			name: "wrong secret",
			cred: func(c model.Credential) model.Credential { c.Secret = "nope"; return c },
		},
		{
			name: "unknown identifier",
			cred: func(c model.Credential) model.Credential { c.Identifier = "ghost"; return c },
		},
		{
			name: "missing secret",
			cred: func(c model.Credential) model.Credential { c.Secret = ""; return c },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := portaltest.New(t)
			c := newClient(t, p)

			err := c.Auth.Login(context.Background(), tt.cred(p.Credential()))

			require.Error(t, err)
			assert.True(t, errors.Is(err, perrors.ErrAuthRejected))
			assert.False(t, perrors.IsRetryable(err))
			assert.Equal(t, StateRejected, c.Auth.State())
			assert.Equal(t, model.AuthRejected, c.Auth.State().Status())
			assert.Zero(t, p.Hits("/uczen/index"))
		})
	}
}

func TestLoginPortalFailure(t *testing.T) {
	p := portaltest.New(t, portaltest.WithLoginStatus(http.StatusServiceUnavailable))
	c := newClient(t, p)

	err := c.Auth.Login(context.Background(), p.Credential())

	require.Error(t, err)
	assert.True(t, errors.Is(err, perrors.ErrAuthPortal))
	assert.True(t, perrors.IsRetryable(err))
	assert.Equal(t, StatePortalError, c.Auth.State())
}

func TestLoginUnreachablePortal(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	p := portaltest.New(t)
	cfg := p.Config()
	cfg.BaseURL = base
	c, err := NewClient(cfg, nil)
	require.NoError(t, err)

	err = c.Auth.Login(context.Background(), p.Credential())

	require.Error(t, err)
	assert.True(t, errors.Is(err, perrors.ErrAuthPortal))
	assert.True(t, errors.Is(err, perrors.ErrTransport))
	assert.Equal(t, model.AuthPortalError, c.Auth.State().Status())
}

func TestLoginResetsSession(t *testing.T) {
	p := portaltest.New(t)
	c := newClient(t, p)

	c.Transport.Session().merge(map[string]string{"stale": "1"})
	require.NoError(t, c.Auth.Login(context.Background(), p.Credential()))

	assert.NotContains(t, c.Transport.Session().Snapshot(), "stale")
}

func TestFetchResources(t *testing.T) {
	for _, format := range []portaltest.Format{portaltest.FormatHTML, portaltest.FormatJSON} {
		p := portaltest.New(t, portaltest.WithFormat(format))
		c := newClient(t, p)
		ctx := context.Background()
		require.NoError(t, c.Auth.Login(ctx, p.Credential()))

		grades, err := c.Fetcher.FetchGrades(ctx)
		require.NoError(t, err)
		assert.NotEmpty(t, grades)

		tt, err := c.Fetcher.FetchTimetable(ctx, week.AddDate(0, 0, 3))
		require.NoError(t, err)
		assert.NotEmpty(t, tt)
		assert.Equal(t, []string{"2026-03-02"}, p.Weeks())

		att, err := c.Fetcher.FetchAttendance(ctx)
		require.NoError(t, err)
		assert.NotEmpty(t, att)
		assert.Equal(t, 3, p.ResourceHits())
	}
}

func TestFetchNonOKStatus(t *testing.T) {
	p := portaltest.New(t, portaltest.WithFailure(model.ResourceAttendance, http.StatusBadGateway))
	c := newClient(t, p)
	require.NoError(t, c.Auth.Login(context.Background(), p.Credential()))

	_, err := c.Fetcher.FetchAttendance(context.Background())

	require.Error(t, err)
	var fe perrors.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "attendance", fe.Resource)
	assert.Equal(t, http.StatusBadGateway, fe.StatusCode)
	assert.True(t, errors.Is(err, perrors.ErrFetchFailed))
}

func TestFetchStatusRetryability(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		retryable bool
	}{
		{name: "bad gateway", status: http.StatusBadGateway, retryable: true},
		{name: "service unavailable", status: http.StatusServiceUnavailable, retryable: true},
		{name: "too many requests", status: http.StatusTooManyRequests, retryable: true},
		{name: "not found", status: http.StatusNotFound, retryable: false},
		{name: "forbidden", status: http.StatusForbidden, retryable: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := portaltest.New(t, portaltest.WithFailure(model.ResourceGrades, tt.status))
			c := newClient(t, p)
			require.NoError(t, c.Auth.Login(context.Background(), p.Credential()))

			_, err := c.Fetcher.FetchGrades(context.Background())

			require.Error(t, err)
			assert.Equal(t, tt.retryable, perrors.IsRetryable(err))
			var re perrors.RetryableError
			assert.Equal(t, tt.retryable, errors.As(err, &re))
		})
	}
}

func TestFetchTimeout(t *testing.T) {
	p := portaltest.New(t, portaltest.WithDelay(model.ResourceGrades, time.Second))
	cfg := p.Config()
	cfg.Timeout = 100 * time.Millisecond
	c, err := NewClient(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, c.Auth.Login(context.Background(), p.Credential()))

	start := time.Now()
	_, err = c.Fetcher.FetchGrades(context.Background())

	require.Error(t, err)
	assert.True(t, errors.Is(err, perrors.ErrTimeout))
	assert.True(t, errors.Is(err, perrors.ErrFetchFailed))
	assert.Less(t, time.Since(start), 900*time.Millisecond)
}

func TestFetchDetectsExpiredSession(t *testing.T) {
	p := portaltest.New(t)
	c := newClient(t, p)
	require.NoError(t, c.Auth.Login(context.Background(), p.Credential()))

	p.ExpireSessions()
	_, err := c.Fetcher.FetchGrades(context.Background())

	require.Error(t, err)
	assert.True(t, errors.Is(err, perrors.ErrSessionExpired))
	assert.True(t, errors.Is(err, perrors.ErrFetchFailed))
}

func TestFetchWithoutLogin(t *testing.T) {
	p := portaltest.New(t)
	c := newClient(t, p)

	_, err := c.Fetcher.FetchTimetable(context.Background(), week)

	assert.True(t, errors.Is(err, perrors.ErrSessionExpired))
}

func TestTransportSendsBrowserHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		http.SetCookie(w, &http.Cookie{Name: "b", Value: "2"})
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	p := portaltest.New(t)
	cfg := p.Config()
	cfg.BaseURL = srv.URL
	tr, err := NewTransport(cfg, nil)
	require.NoError(t, err)
	tr.Session().merge(map[string]string{"a": "1"})

	resp, err := tr.Do(context.Background(), http.MethodPost, "/x", url.Values{"k": {"v"}}, nil)
	require.NoError(t, err)

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, cfg.UserAgent, got.Get("User-Agent"))
	assert.Equal(t, cfg.AcceptLanguage, got.Get("Accept-Language"))
	assert.Equal(t, srv.URL+"/", got.Get("Referer"))
	assert.Equal(t, "application/x-www-form-urlencoded", got.Get("Content-Type"))
	assert.Equal(t, "a=1", got.Get("Cookie"))
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, tr.Session().Snapshot())
}

func TestSessionMerge(t *testing.T) {
	s := NewSession()
	s.merge(map[string]string{"a": "1", "b": "2"})
	s.merge(map[string]string{"a": "3", "b": ""})

	assert.Equal(t, map[string]string{"a": "3"}, s.Snapshot())
	assert.Equal(t, "a=3", s.header())
}

func TestTransportResolve(t *testing.T) {
	tr, err := NewTransport(portaltest.New(t).Config(), nil)
	require.NoError(t, err)

	tests := []struct {
		in   string
		want string
	}{
		{"/loguj", tr.base.String() + "/loguj"},
		{"/plan?tydzien=2026-03-02", tr.base.String() + "/plan?tydzien=2026-03-02"},
		{"https://elsewhere.example/uczen/index?x=1", tr.base.String() + "/uczen/index?x=1"},
		{"//elsewhere.example/a", tr.base.String() + "/a"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tr.resolve(tt.in).String(), tt.in)
	}
}

func TestNewTransportRejectsBadBaseURL(t *testing.T) {
	cfg := portaltest.New(t).Config()
	cfg.BaseURL = "not a url"
	_, err := NewTransport(cfg, nil)
	assert.Error(t, err)
}
