package dto

import (
	"time"

	"github.com/noah-isme/course-admin-api/internal/models"
)

// CourseExportRequest captures POST /courses/exports payload.
type CourseExportRequest struct {
	Format models.ExportFormat `json:"format" validate:"required,oneof=csv pdf"`
	Title  string              `json:"title" validate:"max=120"`
	Query  models.CourseQuery  `json:"query"`
}

// ExportJobResponse is returned after enqueueing an export.
type ExportJobResponse struct {
	ID     string              `json:"id"`
	Status models.ExportStatus `json:"status"`
}

// ExportStatusResponse exposes export progress metadata.
type ExportStatusResponse struct {
	ID         string              `json:"id"`
	Status     models.ExportStatus `json:"status"`
	Format     models.ExportFormat `json:"format"`
	RowCount   int                 `json:"row_count"`
	ResultURL  *string             `json:"result_url,omitempty"`
	ExpiresAt  *time.Time          `json:"expires_at,omitempty"`
	Error      *string             `json:"error,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
	FinishedAt *time.Time          `json:"finished_at,omitempty"`
}
