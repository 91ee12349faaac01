package service

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/course-admin-api/internal/models"
	"github.com/noah-isme/course-admin-api/pkg/export"
	"github.com/noah-isme/course-admin-api/pkg/storage"
)

// DefaultExportTitle names exports requested without a title.
const DefaultExportTitle = "Course roster"

type courseQuerier interface {
	Query(ctx context.Context, q models.CourseQuery) ([]models.Course, error)
}

type fileStore interface {
	Put(name string, data []byte) (string, error)
	Open(name string) (*os.File, error)
	Remove(name string) error
	Sweep(cutoff time.Time) ([]string, error)
}

// ExportConfig tunes export generation.
type ExportConfig struct {
	APIPrefix string
}

// ExportResult describes a rendered and stored export.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	RowCount     int
	ExpiresAt    time.Time
}

// ExportService renders course listings and stores them behind signed download links.
type ExportService struct {
	courses   courseQuerier
	files     fileStore
	signer    *storage.URLSigner
	renderers map[models.ExportFormat]export.Renderer
	clock     Clock
	logger    *zap.Logger
	cfg       ExportConfig
}

// NewExportService constructs an ExportService with CSV and PDF renderers.
func NewExportService(courses courseQuerier, files fileStore, signer *storage.URLSigner, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}
	return &ExportService{
		courses: courses,
		files:   files,
		signer:  signer,
		renderers: map[models.ExportFormat]export.Renderer{
			models.ExportFormatCSV: export.NewCSVRenderer(),
			models.ExportFormatPDF: export.NewPDFRenderer(),
		},
		clock:  time.Now,
		logger: logger,
		cfg:    cfg,
	}
}

// WithClock overrides the time source used for file names and table stamps.
func (s *ExportService) WithClock(c Clock) *ExportService {
	if c != nil {
		s.clock = c
	}
	return s
}

// Supports reports whether format has a renderer.
func (s *ExportService) Supports(format models.ExportFormat) bool {
	_, ok := s.renderers[format]
	return ok
}

// ContentType returns the MIME type for format.
func (s *ExportService) ContentType(format models.ExportFormat) string {
	if r, ok := s.renderers[format]; ok {
		return r.ContentType()
	}
	return "application/octet-stream"
}

// Generate queries the courses selected by job, renders them and stores the result.
func (s *ExportService) Generate(ctx context.Context, job *models.ExportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("export job nil")
	}
	renderer, ok := s.renderers[job.Format]
	if !ok {
		return nil, fmt.Errorf("unsupported export format %q", job.Format)
	}
	courses, err := s.courses.Query(ctx, job.Query)
	if err != nil {
		return nil, err
	}

	now := s.clock().UTC()
	title := job.Title
	if title == "" {
		title = DefaultExportTitle
	}
	payload, err := renderer.Render(CourseTable(courses, title, now))
	if err != nil {
		return nil, err
	}

	name := fmt.Sprintf("courses/%s_%s.%s", now.Format("20060102_150405"), job.ID, renderer.Extension())
	rel, err := s.files.Put(name, payload)
	if err != nil {
		return nil, err
	}
	token, expiresAt, err := s.signer.Sign(job.ID, rel)
	if err != nil {
		_ = s.files.Remove(rel)
		return nil, err
	}
	s.logger.Debug("export stored", zap.String("export_id", job.ID), zap.String("path", rel), zap.Int("rows", len(courses)))

	return &ExportResult{
		RelativePath: rel,
		Token:        token,
		URL:          strings.TrimRight(s.cfg.APIPrefix, "/") + "/exports/download/" + token,
		RowCount:     len(courses),
		ExpiresAt:    expiresAt,
	}, nil
}

// VerifyToken checks a download token.
func (s *ExportService) VerifyToken(token string) (storage.DownloadClaims, error) {
	return s.signer.Verify(token)
}

// Open returns a handle to a stored export.
func (s *ExportService) Open(rel string) (*os.File, error) {
	return s.files.Open(rel)
}

// Remove deletes a stored export.
func (s *ExportService) Remove(rel string) error {
	return s.files.Remove(rel)
}

// Sweep removes stored exports last written before cutoff.
func (s *ExportService) Sweep(cutoff time.Time) ([]string, error) {
	return s.files.Sweep(cutoff)
}

// ResultTTL is how long download links stay valid.
func (s *ExportService) ResultTTL() time.Duration {
	return s.signer.TTL()
}

var courseTableHeaders = []string{
	"ID", "Name", "Level", "Lead teacher", "Room", "Days", "Start", "End",
	"Capacity", "Enrolled", "Occupancy %", "Enrollment fee", "Monthly fee",
	"Term start", "Term end", "Status",
}

// CourseTable lays courses out in the column order used by every export format.
func CourseTable(courses []models.Course, title string, generatedAt time.Time) export.Table {
	rows := make([][]string, 0, len(courses))
	for _, c := range courses {
		status := "Active"
		if !c.Active {
			status = "Inactive"
		}
		rows = append(rows, []string{
			strconv.FormatInt(c.ID, 10),
			c.Name,
			string(c.Level),
			c.LeadTeacherName,
			c.Room,
			c.DaysOfWeek.String(),
			c.StartTime,
			c.EndTime,
			strconv.Itoa(c.MaxCapacity),
			strconv.Itoa(c.EnrolledCount),
			strconv.FormatFloat(percentage(float64(c.EnrolledCount), float64(c.MaxCapacity)), 'f', 2, 64),
			strconv.FormatInt(c.EnrollmentFee, 10),
			strconv.FormatInt(c.MonthlyFee, 10),
			c.TermStart.Format(models.DateLayout),
			c.TermEnd.Format(models.DateLayout),
			status,
		})
	}
	return export.Table{
		Title:       title,
		GeneratedAt: generatedAt,
		Headers:     courseTableHeaders,
		Rows:        rows,
	}
}
