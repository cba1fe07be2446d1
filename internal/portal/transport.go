// Package portal talks to the dean's-office portal: one cookie session per
// login, an authenticator driving the form handshake, and fetchers for the
// grades, timetable and attendance pages.
package portal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"integration-school-portal/internal/config"
	"integration-school-portal/internal/logger"
	perrors "integration-school-portal/pkg/errors"

	"github.com/rs/zerolog"
)

const maxBodySize = 8 << 20

type Response struct {
	StatusCode int
	Body       []byte
	Header     http.Header
	// Cookies set by this response; an empty value means the portal
	// expired the cookie.
	Cookies map[string]string
}

// Session is the cookie jar and anti-forgery token of one authenticated
// conversation. It is never persisted.
type Session struct {
	mu      sync.RWMutex
	cookies map[string]string
	token   string
}

func NewSession() *Session {
	return &Session{cookies: make(map[string]string)}
}

func (s *Session) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.cookies))
	for k, v := range s.cookies {
		out[k] = v
	}
	return out
}

func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Session) setToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// merge applies cookies last-writer-wins.
func (s *Session) merge(cookies map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range cookies {
		if v == "" {
			delete(s.cookies, k)
			continue
		}
		s.cookies[k] = v
	}
}

func (s *Session) header() string {
	snap := s.Snapshot()
	names := make([]string, 0, len(snap))
	for k := range snap {
		names = append(names, k)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, k := range names {
		parts = append(parts, k+"="+snap[k])
	}
	return strings.Join(parts, "; ")
}

// Transport issues requests against the portal host and carries the
// session cookies forward. It never follows redirects itself.
type Transport struct {
	cfg        config.PortalConfig
	base       *url.URL
	httpClient *http.Client
	mu         sync.RWMutex
	session    *Session
	log        zerolog.Logger
}

// NewTransport copies httpClient (nil means a fresh client) and disables
// its redirect handling and cookie jar.
func NewTransport(cfg config.PortalConfig, httpClient *http.Client) (*Transport, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid portal base url %q", cfg.BaseURL)
	}

	client := &http.Client{}
	if httpClient != nil {
		c := *httpClient
		client = &c
	}
	client.Jar = nil
	client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	return &Transport{
		cfg:        cfg,
		base:       base,
		httpClient: client,
		session:    NewSession(),
		log:        logger.For("portal-transport"),
	}, nil
}

func (t *Transport) Session() *Session {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.session
}

// Reset starts a new, empty session.
func (t *Transport) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.session = NewSession()
}

// Do sends one request. form, when non-nil, is sent url-encoded. Failures
// below HTTP come back as TimeoutError when the deadline (portal.timeout or
// the caller's) expired and as TransportError otherwise.
func (t *Transport) Do(ctx context.Context, method, path string, form url.Values, headers map[string]string) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	target := t.resolve(path)
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, perrors.TransportError{Op: method, Path: target.Path, Err: err}
	}

	session := t.Session()
	req.Header.Set("User-Agent", t.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,application/json;q=0.8,*/*;q=0.7")
	req.Header.Set("Accept-Language", t.cfg.AcceptLanguage)
	req.Header.Set("Referer", t.base.String()+"/")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if cookie := session.header(); cookie != "" {
		req.Header.Set("Cookie", cookie)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, t.classify(ctx, method, target.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, t.classify(ctx, method, target.Path, err)
	}

	cookies := make(map[string]string)
	for _, c := range resp.Cookies() {
		if c.MaxAge < 0 || (!c.Expires.IsZero() && c.Expires.Before(time.Now())) {
			cookies[c.Name] = ""
			continue
		}
		cookies[c.Name] = c.Value
	}
	session.merge(cookies)

	t.log.Debug().
		Str("method", method).
		Str("path", target.Path).
		Int("status", resp.StatusCode).
		Int("bytes", len(data)).
		Dur("duration", time.Since(start)).
		Msg("Portal request completed")

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       data,
		Header:     resp.Header,
		Cookies:    cookies,
	}, nil
}

// resolve keeps every request on the portal host: absolute URLs (e.g. a
// redirect Location) are reduced to their path and query.
func (t *Transport) resolve(path string) *url.URL {
	ref, err := url.Parse(path)
	if err != nil {
		ref = &url.URL{Path: path}
	}
	if ref.IsAbs() || ref.Host != "" {
		ref = &url.URL{Path: ref.Path, RawQuery: ref.RawQuery}
	}
	return t.base.ResolveReference(ref)
}

func (t *Transport) classify(ctx context.Context, method, path string, err error) error {
	var netErr net.Error
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		t.log.Warn().Str("method", method).Str("path", path).Msg("Portal request timed out")
		return perrors.TimeoutError{Op: method, Path: path, Err: err}
	}
	t.log.Warn().Err(err).Str("method", method).Str("path", path).Msg("Portal request failed")
	return perrors.TransportError{Op: method, Path: path, Err: err}
}
