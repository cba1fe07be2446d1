package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"integration-school-portal/internal/config"
	"integration-school-portal/internal/db"
	"integration-school-portal/internal/excel"
	"integration-school-portal/internal/logger"
	"integration-school-portal/internal/model"
	perrors "integration-school-portal/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PortalService is the retrieval service as the HTTP layer uses it.
type PortalService interface {
	Retrieve(ctx context.Context, cred model.Credential, week time.Time, remember bool) (*model.RetrievalResult, error)
	RetrieveStored(ctx context.Context, week time.Time) (*model.RetrievalResult, error)
	HasStoredCredentials(ctx context.Context) bool
	StoredIdentifier(ctx context.Context) (string, bool)
	ForgetCredentials(ctx context.Context) error
	PrefetchStored(ctx context.Context, week time.Time) (bool, error)
	CachedWeek(ctx context.Context, week time.Time) (model.TimetableMap, bool)
}

type JobQueue interface {
	EnqueueRefreshJob(ctx context.Context, job model.RefreshJob) error
}

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// HealthCheckFunc reports whether a backing service is reachable.
type HealthCheckFunc func(ctx context.Context) error

type Handler struct {
	service  PortalService
	repo     db.Repository
	producer JobQueue
	exporter *excel.Exporter
	checks   map[string]HealthCheckFunc
	cfg      *config.Config
	log      zerolog.Logger
}

// NewHandler wires the handler. repo and producer may be nil when MySQL or
// Redis are not configured; their endpoints then answer 503.
func NewHandler(
	service PortalService,
	repo db.Repository,
	producer JobQueue,
	cfg *config.Config,
) *Handler {
	return &Handler{
		service:  service,
		repo:     repo,
		producer: producer,
		exporter: excel.NewExporter(),
		checks:   make(map[string]HealthCheckFunc),
		cfg:      cfg,
		log:      logger.For("api"),
	}
}

// WithHealthCheck adds a dependency to /health.
func (h *Handler) WithHealthCheck(name string, check HealthCheckFunc) *Handler {
	h.checks[name] = check
	return h
}

func (h *Handler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status, code := "ok", http.StatusOK
	deps := gin.H{}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.log.Warn().Err(err).Str("dependency", name).Msg("Health check failed")
			deps[name] = err.Error()
			status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}

	c.JSON(code, gin.H{
		"status":       status,
		"service":      h.cfg.App.Name,
		"version":      h.cfg.App.Version,
		"dependencies": deps,
	})
}

func parseOptionalWeek(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return model.ParseWeek(s)
}

// Retrieve logs in with the posted credentials, or with the stored ones
// when none are posted.
func (h *Handler) Retrieve(c *gin.Context) {
	var req model.RetrieveRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	week, err := parseOptionalWeek(req.Week)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	var result *model.RetrievalResult
	if req.Identifier == "" && req.Secret == "" {
		result, err = h.service.RetrieveStored(ctx, week)
	} else {
		cred := model.Credential{Identifier: req.Identifier, Secret: req.Secret}
		result, err = h.service.Retrieve(ctx, cred, week, req.Remember)
	}

	if err != nil {
		status := statusFor(err)
		h.log.Warn().Err(err).Int("status", status).Msg("Retrieval failed")
		body := gin.H{"error": err.Error()}
		if result != nil {
			body["auth_status"] = result.AuthStatus
		}
		c.JSON(status, body)
		return
	}

	c.JSON(http.StatusOK, result)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, perrors.ErrNoStoredCredentials), errors.Is(err, perrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, perrors.ErrAuthRejected):
		return http.StatusUnauthorized
	case errors.Is(err, perrors.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, perrors.ErrAuthPortal), errors.Is(err, perrors.ErrTransport):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) GetCredentials(c *gin.Context) {
	identifier, ok := h.service.StoredIdentifier(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"stored": ok, "identifier": identifier})
}

func (h *Handler) DeleteCredentials(c *gin.Context) {
	if err := h.service.ForgetCredentials(c.Request.Context()); err != nil {
		h.log.Error().Err(err).Msg("Failed to clear credentials")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear credentials"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) PrefetchTimetable(c *gin.Context) {
	var req model.PrefetchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	week, err := model.ParseWeek(req.Week)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	scheduled, err := h.service.PrefetchStored(c.Request.Context(), week)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"week": model.FormatDate(week), "scheduled": scheduled})
}

func (h *Handler) GetTimetable(c *gin.Context) {
	week, err := model.ParseWeek(c.Param("week"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tt, ok := h.service.CachedWeek(c.Request.Context(), week)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Week not cached", "week": model.FormatDate(week)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"week": model.FormatDate(week), "timetable": tt})
}

func (h *Handler) TriggerRefresh(c *gin.Context) {
	if h.producer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Refresh queue not configured"})
		return
	}
	var req model.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	ctx := c.Request.Context()
	if !h.service.HasStoredCredentials(ctx) {
		c.JSON(http.StatusNotFound, gin.H{"error": perrors.ErrNoStoredCredentials.Error()})
		return
	}

	job := model.RefreshJob{ID: uuid.NewString(), WeekStart: req.Week}
	if err := h.producer.EnqueueRefreshJob(ctx, job); err != nil {
		h.log.Error().Err(err).Msg("Failed to enqueue refresh job")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to queue refresh job"})
		return
	}

	h.log.Info().Str("job_id", job.ID).Str("week", job.WeekStart).Msg("Refresh job enqueued")
	c.JSON(http.StatusAccepted, gin.H{"message": "Refresh job queued", "job_id": job.ID})
}

// identifier resolves the ?identifier= query, defaulting to the stored
// credentials' identifier.
func (h *Handler) identifier(c *gin.Context) (string, bool) {
	if id := c.Query("identifier"); id != "" {
		return id, true
	}
	return h.service.StoredIdentifier(c.Request.Context())
}

func (h *Handler) latestSnapshot(c *gin.Context) (*model.Snapshot, bool) {
	if h.repo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Snapshot store not configured"})
		return nil, false
	}
	id, ok := h.identifier(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "identifier is required"})
		return nil, false
	}
	snapshot, err := h.repo.LatestSnapshot(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, perrors.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "No snapshot found"})
			return nil, false
		}
		h.log.Error().Err(err).Str("identifier", id).Msg("Failed to load snapshot")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return nil, false
	}
	return snapshot, true
}

func (h *Handler) GetLatestSnapshot(c *gin.Context) {
	snapshot, ok := h.latestSnapshot(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func (h *Handler) ListSnapshots(c *gin.Context) {
	if h.repo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Snapshot store not configured"})
		return
	}
	id, ok := h.identifier(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "identifier is required"})
		return
	}
	limit := 10
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > 100 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		limit = n
	}

	snapshots, err := h.repo.ListSnapshots(c.Request.Context(), id, limit)
	if err != nil {
		h.log.Error().Err(err).Str("identifier", id).Msg("Failed to list snapshots")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"identifier": id, "snapshots": snapshots})
}

func (h *Handler) ExportGrades(c *gin.Context) {
	snapshot, ok := h.latestSnapshot(c)
	if !ok {
		return
	}
	data, err := h.exporter.Export(snapshot)
	if err != nil {
		h.log.Error().Err(err).Int64("snapshot_id", snapshot.ID).Msg("Failed to export snapshot")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to export snapshot"})
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="grades-%s-%s.xlsx"`, snapshot.Identifier, snapshot.WeekStart))
	c.Data(http.StatusOK, xlsxContentType, data)
}
