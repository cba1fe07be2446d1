// Package retrieval orchestrates one pass against the portal: log in, fetch
// and parse the three resources in parallel, and report each one's outcome
// separately so a failure in one never hides the others.
package retrieval

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"
	_ "time/tzdata"

	"integration-school-portal/internal/cache"
	"integration-school-portal/internal/config"
	"integration-school-portal/internal/logger"
	"integration-school-portal/internal/model"
	"integration-school-portal/internal/parser"
	"integration-school-portal/internal/portal"
	perrors "integration-school-portal/pkg/errors"

	"github.com/rs/zerolog"
)

// CredentialStore is the credential vault as seen by the orchestrator.
type CredentialStore interface {
	Save(ctx context.Context, cred model.Credential) error
	Load(ctx context.Context) (model.Credential, bool)
	Clear(ctx context.Context) error
	Has(ctx context.Context) bool
}

// Scheduler runs background jobs. Submit must not block.
type Scheduler interface {
	Submit(job func(context.Context) error) bool
}

type Option func(*Service)

// WithHTTPClient sets the client every portal session is built on.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Service) { s.httpClient = c }
}

// WithClock replaces time.Now for resolving the current week.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

type Service struct {
	cfg        config.PortalConfig
	vault      CredentialStore
	cache      cache.TimetableCache
	scheduler  Scheduler
	classifier *parser.Classifier
	httpClient *http.Client
	location   *time.Location
	now        func() time.Time

	mu       sync.Mutex
	inflight map[string]struct{}

	log zerolog.Logger
}

func NewService(cfg *config.Config, vault CredentialStore, tc cache.TimetableCache, scheduler Scheduler, opts ...Option) *Service {
	loc, err := time.LoadLocation(cfg.Portal.Location)
	if err != nil || cfg.Portal.Location == "" {
		loc = time.UTC
	}
	s := &Service{
		cfg:        cfg.Portal,
		vault:      vault,
		cache:      tc,
		scheduler:  scheduler,
		classifier: parser.NewClassifier(cfg.Attendance.Rules),
		location:   loc,
		now:        time.Now,
		inflight:   make(map[string]struct{}),
		log:        logger.For("retrieval"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CurrentWeek is the Monday of the current week in the portal's timezone.
func (s *Service) CurrentWeek() time.Time {
	t := s.now().In(s.location)
	return model.WeekStart(time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC))
}

func (s *Service) resolveWeek(week time.Time) time.Time {
	if week.IsZero() {
		return s.CurrentWeek()
	}
	return model.WeekStart(time.Date(week.Year(), week.Month(), week.Day(), 0, 0, 0, 0, time.UTC))
}

// Retrieve logs in with cred and fetches grades, the timetable of week (the
// current week when zero) and attendance. A failed login returns the result
// with its auth status together with the AuthError, and nothing is
// fetched. Once logged in, the error is always nil and per-resource
// failures are reported in the result.
func (s *Service) Retrieve(ctx context.Context, cred model.Credential, week time.Time, remember bool) (*model.RetrievalResult, error) {
	week = s.resolveWeek(week)
	weekKey := model.FormatDate(week)
	result := model.NewRetrievalResult()
	result.Identifier = cred.Identifier
	result.WeekStart = weekKey

	log := s.log.With().Str("identifier", cred.Identifier).Str("week", weekKey).Logger()

	client, err := portal.NewClient(s.cfg, s.httpClient)
	if err != nil {
		result.AuthStatus = model.AuthPortalError
		return result, perrors.AuthError{Reason: "portal client unavailable", Err: err}
	}

	if err := client.Auth.Login(ctx, cred); err != nil {
		result.AuthStatus = client.Auth.State().Status()
		log.Warn().Err(err).Str("auth_status", string(result.AuthStatus)).Msg("Retrieval stopped at login")
		return result, err
	}
	result.AuthStatus = model.AuthAuthenticated

	if remember {
		if err := s.vault.Save(ctx, cred); err != nil {
			log.Error().Err(err).Msg("Failed to store credentials")
		}
	}

	var (
		wg                          sync.WaitGroup
		gradesBody, ttBody, attBody []byte
		gradesErr, ttErr, attErr    error
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		gradesBody, gradesErr = client.Fetcher.FetchGrades(ctx)
	}()
	go func() {
		defer wg.Done()
		ttBody, ttErr = client.Fetcher.FetchTimetable(ctx, week)
	}()
	go func() {
		defer wg.Done()
		attBody, attErr = client.Fetcher.FetchAttendance(ctx)
	}()
	wg.Wait()

	if s.record(result, model.ResourceGrades, gradesErr) {
		grades, outcome := parser.ParseGrades(gradesBody)
		result.Grades = grades
		s.outcome(result, model.ResourceGrades, outcome)
	}

	if s.record(result, model.ResourceTimetable, ttErr) {
		tt, outcome := parser.ParseTimetable(ttBody, week)
		result.Timetable = tt
		s.outcome(result, model.ResourceTimetable, outcome)
		if !outcome.Degraded {
			if err := s.cache.Put(ctx, weekKey, tt); err != nil {
				log.Warn().Err(err).Msg("Failed to cache timetable week")
			}
		}
	}

	if s.record(result, model.ResourceAttendance, attErr) {
		records, summary, outcome := parser.ParseAttendance(attBody, s.classifier)
		result.AttendanceRecords = records
		result.Attendance = summary
		s.outcome(result, model.ResourceAttendance, outcome)
	}

	log.Info().
		Interface("status", result.Status).
		Int("grades", len(result.Grades)).
		Int("timetable_days", len(result.Timetable)).
		Int("attendance_records", result.Attendance.Total).
		Msg("Retrieval completed")

	s.PrefetchWeek(cred, model.NextWeek(week))
	return result, nil
}

// record stores a fetch failure and reports whether the body can be parsed.
func (s *Service) record(result *model.RetrievalResult, r model.Resource, err error) bool {
	if err == nil {
		return true
	}
	result.Status[r] = model.ResourceFailed
	result.Errors[r] = err.Error()
	return false
}

func (s *Service) outcome(result *model.RetrievalResult, r model.Resource, o parser.Outcome) {
	if o.Degraded {
		result.Status[r] = model.ResourceDegraded
		result.Errors[r] = perrors.ErrParseDegraded.Error()
		return
	}
	result.Status[r] = model.ResourceOK
}

// RetrieveStored runs Retrieve with the vault's credentials.
func (s *Service) RetrieveStored(ctx context.Context, week time.Time) (*model.RetrievalResult, error) {
	cred, ok := s.vault.Load(ctx)
	if !ok {
		return nil, perrors.ErrNoStoredCredentials
	}
	return s.Retrieve(ctx, cred, week, false)
}

// StoredIdentifier returns the identifier of the stored credentials.
func (s *Service) StoredIdentifier(ctx context.Context) (string, bool) {
	cred, ok := s.vault.Load(ctx)
	if !ok {
		return "", false
	}
	return cred.Identifier, true
}

func (s *Service) HasStoredCredentials(ctx context.Context) bool {
	return s.vault.Has(ctx)
}

func (s *Service) ForgetCredentials(ctx context.Context) error {
	return s.vault.Clear(ctx)
}

// CachedWeek returns the cached timetable of the week containing week.
func (s *Service) CachedWeek(ctx context.Context, week time.Time) (model.TimetableMap, bool) {
	return s.cache.Get(ctx, model.FormatDate(s.resolveWeek(week)))
}

// PrefetchStored schedules a prefetch of week with the vault's credentials.
func (s *Service) PrefetchStored(ctx context.Context, week time.Time) (bool, error) {
	cred, ok := s.vault.Load(ctx)
	if !ok {
		return false, perrors.ErrNoStoredCredentials
	}
	return s.PrefetchWeek(cred, week), nil
}

// PrefetchWeek schedules a background login and timetable fetch for week
// and returns immediately. It reports whether a job was scheduled: weeks
// already cached or already being fetched are skipped. The job outlives
// the caller's context.
func (s *Service) PrefetchWeek(cred model.Credential, week time.Time) bool {
	week = s.resolveWeek(week)
	weekKey := model.FormatDate(week)

	if _, ok := s.cache.Get(context.Background(), weekKey); ok {
		return false
	}

	s.mu.Lock()
	if _, busy := s.inflight[weekKey]; busy {
		s.mu.Unlock()
		return false
	}
	s.inflight[weekKey] = struct{}{}
	s.mu.Unlock()

	submitted := s.scheduler.Submit(func(ctx context.Context) error {
		defer s.done(weekKey)
		return s.prefetch(ctx, cred, week)
	})
	if !submitted {
		s.done(weekKey)
	}
	return submitted
}

func (s *Service) done(weekKey string) {
	s.mu.Lock()
	delete(s.inflight, weekKey)
	s.mu.Unlock()
}

func (s *Service) prefetch(ctx context.Context, cred model.Credential, week time.Time) error {
	weekKey := model.FormatDate(week)
	log := s.log.With().Str("week", weekKey).Logger()

	client, err := portal.NewClient(s.cfg, s.httpClient)
	if err != nil {
		return err
	}
	if err := client.Auth.Login(ctx, cred); err != nil {
		log.Warn().Err(err).Msg("Prefetch login failed")
		return err
	}
	body, err := client.Fetcher.FetchTimetable(ctx, week)
	if err != nil {
		log.Warn().Err(err).Msg("Prefetch fetch failed")
		return err
	}
	tt, outcome := parser.ParseTimetable(body, week)
	if outcome.Degraded {
		return fmt.Errorf("timetable week %s: %w", weekKey, perrors.ErrParseDegraded)
	}
	if err := s.cache.Put(ctx, weekKey, tt); err != nil {
		return err
	}
	log.Info().Int("days", len(tt)).Msg("Timetable week prefetched")
	return nil
}
