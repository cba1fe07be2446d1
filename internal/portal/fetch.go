package portal

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"integration-school-portal/internal/config"
	"integration-school-portal/internal/logger"
	"integration-school-portal/internal/model"
	"integration-school-portal/internal/parser"
	perrors "integration-school-portal/pkg/errors"

	"github.com/rs/zerolog"
)

// Fetcher pulls the raw resource pages over an authenticated session.
// Every failure comes back as a FetchError naming the resource.
type Fetcher struct {
	transport *Transport
	cfg       config.PortalConfig
	log       zerolog.Logger
}

func NewFetcher(transport *Transport, cfg config.PortalConfig) *Fetcher {
	return &Fetcher{
		transport: transport,
		cfg:       cfg,
		log:       logger.For("portal-fetch"),
	}
}

func (f *Fetcher) FetchGrades(ctx context.Context) ([]byte, error) {
	return f.fetch(ctx, model.ResourceGrades, f.cfg.GradesPath)
}

// FetchTimetable asks for the week starting at weekStart.
func (f *Fetcher) FetchTimetable(ctx context.Context, weekStart time.Time) ([]byte, error) {
	q := url.Values{}
	q.Set(f.cfg.WeekParam, model.FormatDate(model.WeekStart(weekStart)))
	return f.fetch(ctx, model.ResourceTimetable, f.cfg.TimetablePath+"?"+q.Encode())
}

func (f *Fetcher) FetchAttendance(ctx context.Context) ([]byte, error) {
	return f.fetch(ctx, model.ResourceAttendance, f.cfg.AttendancePath)
}

func (f *Fetcher) fetch(ctx context.Context, resource model.Resource, path string) ([]byte, error) {
	resp, err := f.transport.Do(ctx, http.MethodGet, path, nil, map[string]string{
		"Accept": "application/json, text/html;q=0.9, */*;q=0.5",
	})
	if err != nil {
		return nil, perrors.FetchError{Resource: string(resource), Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		f.log.Warn().
			Str("resource", string(resource)).
			Int("status", resp.StatusCode).
			Msg("Portal returned non-OK status")
		fe := perrors.FetchError{Resource: string(resource), StatusCode: resp.StatusCode}
		if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
			fe.Err = perrors.NewRetryableError(fmt.Errorf("status %d", resp.StatusCode), "portal unavailable")
		}
		return nil, fe
	}

	if len(bytes.TrimSpace(resp.Body)) == 0 {
		return nil, perrors.FetchError{
			Resource:   string(resource),
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("empty body"),
		}
	}

	if parser.IsLoginForm(resp.Body, f.cfg.IdentifierField, f.cfg.SecretField) {
		f.log.Warn().Str("resource", string(resource)).Msg("Portal served the login form instead of data")
		return nil, perrors.FetchError{
			Resource:   string(resource),
			StatusCode: resp.StatusCode,
			Err:        perrors.ErrSessionExpired,
		}
	}

	f.log.Debug().Str("resource", string(resource)).Int("bytes", len(resp.Body)).Msg("Resource fetched")
	return resp.Body, nil
}

// Client bundles the pieces of one login conversation. A Client is built
// per retrieval and discarded afterwards.
type Client struct {
	Transport *Transport
	Auth      *Authenticator
	Fetcher   *Fetcher
}

func NewClient(cfg config.PortalConfig, httpClient *http.Client) (*Client, error) {
	t, err := NewTransport(cfg, httpClient)
	if err != nil {
		return nil, err
	}
	return &Client{
		Transport: t,
		Auth:      NewAuthenticator(t, cfg),
		Fetcher:   NewFetcher(t, cfg),
	}, nil
}
