package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-admin-api/internal/models"
)

func TestExportJobMemoryRepositoryLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewExportJobMemoryRepository()

	job := &models.ExportJob{Format: models.ExportFormatPDF, CreatedBy: "admin-1"}
	require.NoError(t, repo.Create(ctx, job))
	require.NotEmpty(t, job.ID)
	assert.Error(t, repo.Create(ctx, job))

	finished := models.ExportStatusFinished
	path := "courses/x.pdf"
	url := "/download/x"
	at := time.Now().Add(-2 * time.Hour)
	require.NoError(t, repo.Update(ctx, job.ID, UpdateExportJobParams{
		Status: &finished, FilePath: &path, ResultURL: &url, FinishedAt: &at,
	}))

	got, err := repo.FindByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusFinished, got.Status)
	require.NotNil(t, got.ResultURL)
	*got.ResultURL = "mutated"

	again, err := repo.FindByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "/download/x", *again.ResultURL)

	old, err := repo.ListFinishedBefore(ctx, time.Now().Add(-time.Hour), 0)
	require.NoError(t, err)
	assert.Len(t, old, 1)
	recent, err := repo.ListFinishedBefore(ctx, time.Now().Add(-3*time.Hour), 0)
	require.NoError(t, err)
	assert.Empty(t, recent)

	clear := ""
	require.NoError(t, repo.Update(ctx, job.ID, UpdateExportJobParams{ResultURL: &clear}))
	again, err = repo.FindByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Nil(t, again.ResultURL)

	_, err = repo.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.ErrorIs(t, repo.Update(ctx, "missing", UpdateExportJobParams{}), sql.ErrNoRows)
}

func TestExportJobMemoryRepositoryListQueuedOrder(t *testing.T) {
	ctx := context.Background()
	repo := NewExportJobMemoryRepository()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Create(ctx, &models.ExportJob{ID: "b", CreatedAt: base.Add(time.Minute)}))
	require.NoError(t, repo.Create(ctx, &models.ExportJob{ID: "a", CreatedAt: base}))
	require.NoError(t, repo.Create(ctx, &models.ExportJob{ID: "c", CreatedAt: base, Status: models.ExportStatusFailed}))

	queued, err := repo.ListQueued(ctx, 0)
	require.NoError(t, err)
	require.Len(t, queued, 2)
	assert.Equal(t, "a", queued[0].ID)
	assert.Equal(t, "b", queued[1].ID)
}
