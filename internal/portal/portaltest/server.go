// Package portaltest runs an in-process fake of the dean's-office portal
// for tests: a token-guarded login form, a post-login redirect that
// finishes the session, and the three resource pages rendered as HTML or
// JSON from a deterministic fixture.
package portaltest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"integration-school-portal/internal/config"
	"integration-school-portal/internal/model"
)

type Format int

const (
	FormatHTML Format = iota
	FormatJSON
)

const (
	sessionCookie = "DZIENNIKSID"
	readyCookie   = "SDZIENNIKSID"
	landingPath   = "/uczen/index"
)

type sessionState int

const (
	sessionAnonymous sessionState = iota
	sessionLoggedIn
	sessionReady
)

type Option func(*Portal)

func WithCredentials(identifier, secret string) Option {
	return func(p *Portal) { p.identifier, p.secret = identifier, secret }
}

func WithFormat(f Format) Option {
	return func(p *Portal) { p.format = f }
}

// WithoutToken serves a login form with no anti-forgery token and accepts
// submissions without one.
func WithoutToken() Option {
	return func(p *Portal) { p.tokenless = true }
}

// WithAbsoluteRedirect makes the post-login Location an absolute URL.
func WithAbsoluteRedirect() Option {
	return func(p *Portal) { p.absoluteRedirect = true }
}

// WithFailure makes the resource endpoint answer with status.
func WithFailure(r model.Resource, status int) Option {
	return func(p *Portal) { p.failures[r] = status }
}

// WithDelay stalls the resource endpoint for d before answering.
func WithDelay(r model.Resource, d time.Duration) Option {
	return func(p *Portal) { p.delays[r] = d }
}

// WithPayload serves body verbatim from the resource endpoint.
func WithPayload(r model.Resource, body string) Option {
	return func(p *Portal) { p.payloads[r] = body }
}

// WithLoginStatus makes credential submission answer with status and no
// marker, as an unhealthy portal would.
func WithLoginStatus(status int) Option {
	return func(p *Portal) { p.loginStatus = status }
}

type Portal struct {
	URL string

	server           *httptest.Server
	cfg              config.PortalConfig
	identifier       string
	secret           string
	format           Format
	tokenless        bool
	absoluteRedirect bool
	loginStatus      int
	failures         map[model.Resource]int
	delays           map[model.Resource]time.Duration
	payloads         map[model.Resource]string

	mu       sync.Mutex
	seq      int
	sessions map[string]sessionState
	tokens   map[string]string
	hits     map[string]int
	weeks    []string
}

// New starts the fake and registers its shutdown with t.
func New(t testing.TB, opts ...Option) *Portal {
	t.Helper()
	p := &Portal{
		cfg:        config.Default().Portal,
		identifier: "jan.kowalski",
		secret:     "tajne-haslo",
		failures:   make(map[model.Resource]int),
		delays:     make(map[model.Resource]time.Duration),
		payloads:   make(map[model.Resource]string),
		sessions:   make(map[string]sessionState),
		tokens:     make(map[string]string),
		hits:       make(map[string]int),
	}
	for _, opt := range opts {
		opt(p)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(p.cfg.LoginPath, p.handleLogin)
	mux.HandleFunc(landingPath, p.handleLanding)
	mux.HandleFunc(p.cfg.GradesPath, p.resource(model.ResourceGrades))
	mux.HandleFunc(p.cfg.TimetablePath, p.resource(model.ResourceTimetable))
	mux.HandleFunc(p.cfg.AttendancePath, p.resource(model.ResourceAttendance))

	p.server = httptest.NewServer(mux)
	p.URL = p.server.URL
	t.Cleanup(p.server.Close)
	return p
}

// Config returns portal settings pointing at the fake.
func (p *Portal) Config() config.PortalConfig {
	cfg := p.cfg
	cfg.BaseURL = p.URL
	cfg.Timeout = 2 * time.Second
	return cfg
}

func (p *Portal) Credential() model.Credential {
	return model.Credential{Identifier: p.identifier, Secret: p.secret}
}

func (p *Portal) Fixture() Fixture {
	return NewFixture(p.identifier)
}

// Hits counts requests to path, whatever their outcome.
func (p *Portal) Hits(path string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hits[path]
}

// ResourceHits counts requests to the three resource endpoints.
func (p *Portal) ResourceHits() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hits[p.cfg.GradesPath] + p.hits[p.cfg.TimetablePath] + p.hits[p.cfg.AttendancePath]
}

// Weeks lists the week parameters the timetable endpoint was asked for.
func (p *Portal) Weeks() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.weeks...)
}

// ExpireSessions drops every session; resource pages answer with the
// login form until the next login.
func (p *Portal) ExpireSessions() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions = make(map[string]sessionState)
}

func (p *Portal) hit(path string) {
	p.mu.Lock()
	p.hits[path]++
	p.mu.Unlock()
}

func (p *Portal) session(r *http.Request) (string, sessionState, bool) {
	c, err := r.Cookie(sessionCookie)
	if err != nil {
		return "", 0, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	state, ok := p.sessions[c.Value]
	return c.Value, state, ok
}

func (p *Portal) setState(id string, s sessionState) {
	p.mu.Lock()
	p.sessions[id] = s
	p.mu.Unlock()
}

func writeHTML(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func (p *Portal) handleLogin(w http.ResponseWriter, r *http.Request) {
	p.hit(r.URL.Path)
	switch r.Method {
	case http.MethodGet:
		p.mu.Lock()
		p.seq++
		id := fmt.Sprintf("sid-%d", p.seq)
		token := ""
		if !p.tokenless {
			token = fmt.Sprintf("tok-%d-%s", p.seq, strings.Repeat("x", 8))
		}
		p.sessions[id] = sessionAnonymous
		p.tokens[id] = token
		p.mu.Unlock()

		http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: id, Path: "/", HttpOnly: true})
		http.SetCookie(w, &http.Cookie{Name: readyCookie, Path: "/", MaxAge: -1})
		writeHTML(w, http.StatusOK, loginPage(token, ""))

	case http.MethodPost:
		id, _, ok := p.session(r)
		if !ok {
			writeHTML(w, http.StatusForbidden, "<html><body>Sesja wygasła</body></html>")
			return
		}
		if err := r.ParseForm(); err != nil {
			writeHTML(w, http.StatusBadRequest, "bad form")
			return
		}
		p.mu.Lock()
		want := p.tokens[id]
		p.mu.Unlock()
		if !p.tokenless && r.PostForm.Get(p.cfg.TokenField) != want {
			writeHTML(w, http.StatusForbidden, "<html><body>CSRF token mismatch</body></html>")
			return
		}
		if p.loginStatus != 0 {
			writeHTML(w, p.loginStatus, "<html><body>Serwis chwilowo niedostępny</body></html>")
			return
		}

		login, pass := r.PostForm.Get(p.cfg.IdentifierField), r.PostForm.Get(p.cfg.SecretField)
		switch {
		case login == "" || pass == "":
			writeHTML(w, http.StatusOK, loginPage(want, p.cfg.MissingCredentialsMarker+" i hasło"))
			return
		case login != p.identifier || pass != p.secret:
			writeHTML(w, http.StatusOK, loginPage(want, p.cfg.InvalidLoginMarker+" lub hasło"))
			return
		}

		p.setState(id, sessionLoggedIn)
		location := landingPath + "?from=login"
		if p.absoluteRedirect {
			location = "https://portal.invalid" + location
		}
		w.Header().Set("Location", location)
		w.WriteHeader(http.StatusFound)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleLanding completes the session. Resource pages only answer to
// sessions that went through here.
func (p *Portal) handleLanding(w http.ResponseWriter, r *http.Request) {
	p.hit(r.URL.Path)
	id, state, ok := p.session(r)
	if !ok || state == sessionAnonymous {
		w.Header().Set("Location", p.cfg.LoginPath)
		w.WriteHeader(http.StatusFound)
		return
	}
	p.setState(id, sessionReady)
	http.SetCookie(w, &http.Cookie{Name: readyCookie, Value: "ready-" + id, Path: "/"})
	writeHTML(w, http.StatusOK, "<html><body>Witaj w dzienniku</body></html>")
}

func (p *Portal) resource(res model.Resource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p.hit(r.URL.Path)

		if d := p.delays[res]; d > 0 {
			select {
			case <-time.After(d):
			case <-r.Context().Done():
				return
			}
		}
		if status := p.failures[res]; status != 0 {
			writeHTML(w, status, "<html><body>Błąd serwera</body></html>")
			return
		}

		id, state, ok := p.session(r)
		ready, err := r.Cookie(readyCookie)
		if !ok || state != sessionReady || err != nil || ready.Value != "ready-"+id {
			writeHTML(w, http.StatusOK, loginPage("", ""))
			return
		}

		if body, ok := p.payloads[res]; ok {
			writeHTML(w, http.StatusOK, body)
			return
		}

		fixture := p.Fixture()
		var (
			body []byte
			html string
		)
		switch res {
		case model.ResourceGrades:
			if p.format == FormatJSON {
				body, err = gradesJSON(fixture.Grades)
			} else {
				html = gradesHTML(fixture.Grades)
			}
		case model.ResourceTimetable:
			raw := r.URL.Query().Get(p.cfg.WeekParam)
			week, perr := model.ParseWeek(raw)
			if perr != nil {
				writeHTML(w, http.StatusBadRequest, "bad week")
				return
			}
			p.mu.Lock()
			p.weeks = append(p.weeks, raw)
			p.mu.Unlock()
			tt := fixture.Timetable(week)
			if p.format == FormatJSON {
				body, err = timetableJSON(tt, week)
			} else {
				html = timetableHTML(tt, week)
			}
		case model.ResourceAttendance:
			if p.format == FormatJSON {
				body, err = attendanceJSON(fixture.Attendance)
			} else {
				html = attendanceHTML(fixture.Attendance, fixture.Reported)
			}
		}
		if err != nil {
			writeHTML(w, http.StatusInternalServerError, err.Error())
			return
		}
		if body != nil {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write(body)
			return
		}
		writeHTML(w, http.StatusOK, html)
	}
}
