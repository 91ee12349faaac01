package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/course-admin-api/internal/dto"
	"github.com/noah-isme/course-admin-api/internal/models"
	"github.com/noah-isme/course-admin-api/internal/repository"
	appErrors "github.com/noah-isme/course-admin-api/pkg/errors"
	"github.com/noah-isme/course-admin-api/pkg/jobs"
	"github.com/noah-isme/course-admin-api/pkg/storage"
)

type exportJobStore interface {
	Create(ctx context.Context, job *models.ExportJob) error
	FindByID(ctx context.Context, id string) (*models.ExportJob, error)
	Update(ctx context.Context, id string, params repository.UpdateExportJobParams) error
	ListQueued(ctx context.Context, limit int) ([]models.ExportJob, error)
	ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ExportJob, error)
}

type exportDispatcher interface {
	Enqueue(task jobs.Task[string]) error
}

type exportGenerator interface {
	Generate(ctx context.Context, job *models.ExportJob) (*ExportResult, error)
}

// ExportDownload is an opened export ready to stream.
type ExportDownload struct {
	File        *os.File
	Filename    string
	ContentType string
	ExpiresAt   time.Time
}

// CourseExportService manages the lifecycle of export jobs.
type CourseExportService struct {
	jobs      exportJobStore
	queue     exportDispatcher
	exporter  *ExportService
	validator *validator.Validate
	access    PermissionChecker
	identity  IdentityProvider
	logger    *zap.Logger
	clock     Clock
}

// NewCourseExportService constructs the service.
func NewCourseExportService(store exportJobStore, queue exportDispatcher, exporter *ExportService, access PermissionChecker, logger *zap.Logger) *CourseExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if access == nil {
		access = DefaultRolePermissions()
	}
	return &CourseExportService{
		jobs:      store,
		queue:     queue,
		exporter:  exporter,
		validator: NewCourseValidator(),
		access:    access,
		identity:  ContextIdentity{},
		logger:    logger,
		clock:     time.Now,
	}
}

// Request validates req, records a queued job and hands it to the workers.
func (s *CourseExportService) Request(ctx context.Context, req dto.CourseExportRequest) (*dto.ExportJobResponse, error) {
	req.Format = models.ExportFormat(strings.ToLower(strings.TrimSpace(string(req.Format))))
	req.Title = strings.TrimSpace(req.Title)
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError("invalid export request", err)
	}
	query, err := NormalizeCourseQuery(req.Query)
	if err != nil {
		return nil, err
	}
	if req.Title == "" {
		req.Title = DefaultExportTitle
	}

	job := &models.ExportJob{
		Format:    req.Format,
		Title:     req.Title,
		Query:     query,
		Status:    models.ExportStatusQueued,
		CreatedBy: s.identity.CurrentActorID(ctx),
		CreatedAt: s.clock().UTC(),
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create export job")
	}
	if err := s.queue.Enqueue(jobs.Task[string]{ID: job.ID, Payload: job.ID}); err != nil {
		failed := models.ExportStatusFailed
		msg := "failed to enqueue export"
		now := s.clock().UTC()
		if updateErr := s.jobs.Update(ctx, job.ID, repository.UpdateExportJobParams{
			Status: &failed, ErrorMessage: &msg, FinishedAt: &now,
		}); updateErr != nil {
			s.logger.Warn("failed to mark export failed", zap.String("export_id", job.ID), zap.Error(updateErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "export queue unavailable")
	}
	s.logger.Info("export queued", zap.String("export_id", job.ID), zap.String("format", string(job.Format)), zap.String("actor", job.CreatedBy))
	return &dto.ExportJobResponse{ID: job.ID, Status: job.Status}, nil
}

// Status reports job progress. Users without edit rights only see their own jobs.
func (s *CourseExportService) Status(ctx context.Context, id string) (*dto.ExportStatusResponse, error) {
	job, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.canSee(ctx, job) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export not found")
	}
	return &dto.ExportStatusResponse{
		ID:         job.ID,
		Status:     job.Status,
		Format:     job.Format,
		RowCount:   job.RowCount,
		ResultURL:  job.ResultURL,
		ExpiresAt:  job.ExpiresAt,
		Error:      job.ErrorMessage,
		CreatedAt:  job.CreatedAt,
		FinishedAt: job.FinishedAt,
	}, nil
}

// ResolveDownload validates token and opens the stored export.
func (s *CourseExportService) ResolveDownload(ctx context.Context, token string) (*ExportDownload, error) {
	claims, err := s.exporter.VerifyToken(token)
	if errors.Is(err, storage.ErrTokenExpired) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "download link expired")
	}
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid download token")
	}
	job, err := s.load(ctx, claims.ExportID)
	if err != nil {
		return nil, err
	}
	if job.Status != models.ExportStatusFinished || job.FilePath == "" || job.FilePath != claims.Path {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "export not available")
	}
	file, err := s.exporter.Open(job.FilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export file missing")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export file")
	}
	return &ExportDownload{
		File:        file,
		Filename:    filepath.Base(job.FilePath),
		ContentType: s.exporter.ContentType(job.Format),
		ExpiresAt:   claims.ExpiresAt,
	}, nil
}

// RecoverPendingJobs re-enqueues jobs left queued by a previous process.
func (s *CourseExportService) RecoverPendingJobs(ctx context.Context) {
	pending, err := s.jobs.ListQueued(ctx, 50)
	if err != nil {
		s.logger.Warn("failed to recover queued exports", zap.Error(err))
		return
	}
	for _, job := range pending {
		if err := s.queue.Enqueue(jobs.Task[string]{ID: job.ID, Payload: job.ID}); err != nil {
			s.logger.Warn("failed to requeue export", zap.String("export_id", job.ID), zap.Error(err))
		}
	}
}

// StartCleanup purges expired exports every interval until ctx ends.
func (s *CourseExportService) StartCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.CleanupExpired(ctx)
			}
		}
	}()
}

// CleanupExpired removes files whose download links have expired and detaches them from their jobs.
func (s *CourseExportService) CleanupExpired(ctx context.Context) int {
	cutoff := s.clock().Add(-s.exporter.ResultTTL())
	removed := 0
	for {
		expired, err := s.jobs.ListFinishedBefore(ctx, cutoff, 100)
		if err != nil {
			s.logger.Warn("export cleanup list failed", zap.Error(err))
			return removed
		}
		before := removed
		for _, job := range expired {
			if err := s.exporter.Remove(job.FilePath); err != nil {
				s.logger.Warn("export cleanup delete failed", zap.String("export_id", job.ID), zap.Error(err))
				continue
			}
			empty := ""
			if err := s.jobs.Update(ctx, job.ID, repository.UpdateExportJobParams{FilePath: &empty, ResultURL: &empty}); err != nil {
				s.logger.Warn("export cleanup update failed", zap.String("export_id", job.ID), zap.Error(err))
				return removed
			}
			removed++
		}
		if len(expired) < 100 || removed == before {
			break
		}
	}
	if orphans, err := s.exporter.Sweep(cutoff); err != nil {
		s.logger.Warn("export storage sweep failed", zap.Error(err))
	} else {
		removed += len(orphans)
	}
	if removed > 0 {
		s.logger.Info("expired exports removed", zap.Int("count", removed))
	}
	return removed
}

func (s *CourseExportService) load(ctx context.Context, id string) (*models.ExportJob, error) {
	job, err := s.jobs.FindByID(ctx, strings.TrimSpace(id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export job")
	}
	return job, nil
}

func (s *CourseExportService) canSee(ctx context.Context, job *models.ExportJob) bool {
	claims, ok := models.ClaimsFromContext(ctx)
	if !ok {
		return true
	}
	return claims.UserID == job.CreatedBy || s.access.HasPermission(claims.Role, models.PermissionEditCourses)
}

// ExportWorker bridges queued tasks to ExportService.
type ExportWorker struct {
	jobs      exportJobStore
	generator exportGenerator
	notifier  NotificationSink
	metrics   *MetricsService
	logger    *zap.Logger
	clock     Clock
}

// NewExportWorker constructs a worker. notifier and metrics may be nil.
func NewExportWorker(store exportJobStore, generator exportGenerator, notifier NotificationSink, metrics *MetricsService, logger *zap.Logger) *ExportWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &ExportWorker{
		jobs:      store,
		generator: generator,
		notifier:  notifier,
		metrics:   metrics,
		logger:    logger,
		clock:     time.Now,
	}
}

// Handle processes one export attempt. Errors are retried by the queue.
func (w *ExportWorker) Handle(ctx context.Context, task jobs.Task[string]) error {
	record, err := w.jobs.FindByID(ctx, task.Payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			w.logger.Warn("export job vanished", zap.String("export_id", task.Payload))
			return nil
		}
		return err
	}
	if record.Terminal() {
		return nil
	}

	processing := models.ExportStatusProcessing
	attempts := task.Attempt + 1
	if err := w.jobs.Update(ctx, record.ID, repository.UpdateExportJobParams{Status: &processing, Attempts: &attempts}); err != nil {
		return err
	}

	started := w.clock()
	result, err := w.generator.Generate(ctx, record)
	if err != nil {
		queued := models.ExportStatusQueued
		msg := err.Error()
		if updateErr := w.jobs.Update(ctx, record.ID, repository.UpdateExportJobParams{Status: &queued, ErrorMessage: &msg}); updateErr != nil {
			w.logger.Warn("failed to mark export queued", zap.String("export_id", record.ID), zap.Error(updateErr))
		}
		return err
	}

	finished := models.ExportStatusFinished
	now := w.clock().UTC()
	empty := ""
	if err := w.jobs.Update(ctx, record.ID, repository.UpdateExportJobParams{
		Status:       &finished,
		RowCount:     &result.RowCount,
		FilePath:     &result.RelativePath,
		ResultURL:    &result.URL,
		ExpiresAt:    &result.ExpiresAt,
		ErrorMessage: &empty,
		FinishedAt:   &now,
	}); err != nil {
		return fmt.Errorf("mark export finished: %w", err)
	}

	w.metrics.RecordExport(record.Format, nil, w.clock().Sub(started))
	w.notifier.Notify(onBehalfOf(ctx, record.CreatedBy), models.NotificationSuccess, "Export ready",
		fmt.Sprintf("%d courses exported as %s", result.RowCount, strings.ToUpper(string(record.Format))))
	w.logger.Info("export finished", zap.String("export_id", record.ID), zap.Int("rows", result.RowCount))
	return nil
}

// GiveUp marks a job failed once the queue stops retrying it.
func (w *ExportWorker) GiveUp(ctx context.Context, task jobs.Task[string], cause error) {
	failed := models.ExportStatusFailed
	msg := cause.Error()
	now := w.clock().UTC()
	if err := w.jobs.Update(ctx, task.Payload, repository.UpdateExportJobParams{
		Status: &failed, ErrorMessage: &msg, FinishedAt: &now,
	}); err != nil {
		w.logger.Warn("failed to mark export failed", zap.String("export_id", task.Payload), zap.Error(err))
	}
	format := models.ExportFormat("")
	if record, err := w.jobs.FindByID(ctx, task.Payload); err == nil {
		format = record.Format
		ctx = onBehalfOf(ctx, record.CreatedBy)
	}
	w.metrics.RecordExport(format, cause, 0)
	w.notifier.Notify(ctx, models.NotificationError, "Export failed", msg)
}

// onBehalfOf attributes background work to the user who requested it.
func onBehalfOf(ctx context.Context, actorID string) context.Context {
	if actorID == "" || actorID == SystemActor {
		return ctx
	}
	return models.WithClaims(ctx, &models.JWTClaims{UserID: actorID})
}
