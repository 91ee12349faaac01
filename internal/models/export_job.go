package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ExportFormat enumerates supported roster export formats.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// ExportStatus captures background job lifecycle states.
type ExportStatus string

const (
	ExportStatusQueued     ExportStatus = "QUEUED"
	ExportStatusProcessing ExportStatus = "PROCESSING"
	ExportStatusFinished   ExportStatus = "FINISHED"
	ExportStatusFailed     ExportStatus = "FAILED"
)

// ExportJob tracks an asynchronous course roster export.
type ExportJob struct {
	ID           string       `db:"id" json:"id"`
	Format       ExportFormat `db:"format" json:"format"`
	Title        string       `db:"title" json:"title"`
	Query        CourseQuery  `db:"query" json:"query"`
	Status       ExportStatus `db:"status" json:"status"`
	RowCount     int          `db:"row_count" json:"row_count"`
	Attempts     int          `db:"attempts" json:"attempts"`
	FilePath     string       `db:"file_path" json:"-"`
	ResultURL    *string      `db:"result_url" json:"result_url,omitempty"`
	ExpiresAt    *time.Time   `db:"expires_at" json:"expires_at,omitempty"`
	ErrorMessage *string      `db:"error_message" json:"error_message,omitempty"`
	CreatedBy    string       `db:"created_by" json:"created_by"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
	FinishedAt   *time.Time   `db:"finished_at" json:"finished_at,omitempty"`
}

// Terminal reports whether the job will not change state anymore.
func (j ExportJob) Terminal() bool {
	return j.Status == ExportStatusFinished || j.Status == ExportStatusFailed
}

// Value stores the query as JSON.
func (q CourseQuery) Value() (driver.Value, error) {
	payload, err := json.Marshal(q)
	if err != nil {
		return nil, err
	}
	return string(payload), nil
}

// Scan loads the query from JSON.
func (q *CourseQuery) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*q = CourseQuery{}
		return nil
	case []byte:
		return json.Unmarshal(v, q)
	case string:
		return json.Unmarshal([]byte(v), q)
	default:
		return fmt.Errorf("unsupported type %T for CourseQuery", value)
	}
}
