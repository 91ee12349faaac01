package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/noah-isme/course-admin-api/internal/models"
)

// ExportJobMemoryRepository keeps export jobs in process memory.
type ExportJobMemoryRepository struct {
	mu   sync.RWMutex
	jobs map[string]models.ExportJob
}

// NewExportJobMemoryRepository returns an empty repository.
func NewExportJobMemoryRepository() *ExportJobMemoryRepository {
	return &ExportJobMemoryRepository{jobs: map[string]models.ExportJob{}}
}

// Create stores job, filling id, status and created_at when empty.
func (r *ExportJobMemoryRepository) Create(ctx context.Context, job *models.ExportJob) error {
	prepareExportJob(job)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.jobs[job.ID]; exists {
		return fmt.Errorf("create export job: duplicate id %s", job.ID)
	}
	r.jobs[job.ID] = cloneExportJob(*job)
	return nil
}

// FindByID returns a copy of the job or sql.ErrNoRows.
func (r *ExportJobMemoryRepository) FindByID(ctx context.Context, id string) (*models.ExportJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	out := cloneExportJob(job)
	return &out, nil
}

// Update applies params to the stored job.
func (r *ExportJobMemoryRepository) Update(ctx context.Context, id string, params UpdateExportJobParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return sql.ErrNoRows
	}
	if params.Status != nil {
		job.Status = *params.Status
	}
	if params.RowCount != nil {
		job.RowCount = *params.RowCount
	}
	if params.Attempts != nil {
		job.Attempts = *params.Attempts
	}
	if params.FilePath != nil {
		job.FilePath = *params.FilePath
	}
	if params.ResultURL != nil {
		job.ResultURL = nullIfEmpty(*params.ResultURL)
	}
	if params.ExpiresAt != nil {
		at := *params.ExpiresAt
		job.ExpiresAt = &at
	}
	if params.ErrorMessage != nil {
		job.ErrorMessage = nullIfEmpty(*params.ErrorMessage)
	}
	if params.FinishedAt != nil {
		at := *params.FinishedAt
		job.FinishedAt = &at
	}
	r.jobs[id] = job
	return nil
}

// ListQueued returns queued jobs oldest first.
func (r *ExportJobMemoryRepository) ListQueued(ctx context.Context, limit int) ([]models.ExportJob, error) {
	if limit <= 0 {
		limit = 20
	}
	return r.collect(limit, func(j models.ExportJob) bool {
		return j.Status == models.ExportStatusQueued
	}, func(j models.ExportJob) time.Time { return j.CreatedAt }), nil
}

// ListFinishedBefore returns finished jobs with files whose completion predates cutoff.
func (r *ExportJobMemoryRepository) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ExportJob, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.collect(limit, func(j models.ExportJob) bool {
		return j.Status == models.ExportStatusFinished && j.FilePath != "" && j.FinishedAt != nil && j.FinishedAt.Before(cutoff)
	}, func(j models.ExportJob) time.Time { return *j.FinishedAt }), nil
}

func (r *ExportJobMemoryRepository) collect(limit int, keep func(models.ExportJob) bool, key func(models.ExportJob) time.Time) []models.ExportJob {
	r.mu.RLock()
	out := []models.ExportJob{}
	for _, job := range r.jobs {
		if keep(job) {
			out = append(out, cloneExportJob(job))
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		ki, kj := key(out[i]), key(out[j])
		if ki.Equal(kj) {
			return out[i].ID < out[j].ID
		}
		return ki.Before(kj)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func cloneExportJob(j models.ExportJob) models.ExportJob {
	out := j
	if j.ResultURL != nil {
		v := *j.ResultURL
		out.ResultURL = &v
	}
	if j.ErrorMessage != nil {
		v := *j.ErrorMessage
		out.ErrorMessage = &v
	}
	if j.ExpiresAt != nil {
		v := *j.ExpiresAt
		out.ExpiresAt = &v
	}
	if j.FinishedAt != nil {
		v := *j.FinishedAt
		out.FinishedAt = &v
	}
	return out
}
