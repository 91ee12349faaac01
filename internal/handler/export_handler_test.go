package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-admin-api/internal/dto"
	"github.com/noah-isme/course-admin-api/internal/models"
	"github.com/noah-isme/course-admin-api/internal/service"
	appErrors "github.com/noah-isme/course-admin-api/pkg/errors"
)

type fakeExporter struct {
	lastReq   dto.CourseExportRequest
	reqErr    error
	status    *dto.ExportStatusResponse
	statusErr error
	path      string
	tokenErr  error
}

func (f *fakeExporter) Request(_ context.Context, req dto.CourseExportRequest) (*dto.ExportJobResponse, error) {
	f.lastReq = req
	if f.reqErr != nil {
		return nil, f.reqErr
	}
	return &dto.ExportJobResponse{ID: "job-1", Status: models.ExportStatusQueued}, nil
}

func (f *fakeExporter) Status(_ context.Context, id string) (*dto.ExportStatusResponse, error) {
	return f.status, f.statusErr
}

func (f *fakeExporter) ResolveDownload(_ context.Context, token string) (*service.ExportDownload, error) {
	if f.tokenErr != nil {
		return nil, f.tokenErr
	}
	file, err := os.Open(f.path)
	if err != nil {
		return nil, err
	}
	return &service.ExportDownload{File: file, Filename: filepath.Base(f.path), ContentType: "text/csv; charset=utf-8"}, nil
}

func TestExportHandlerRequestAccepted(t *testing.T) {
	gin.SetMode(gin.TestMode)
	exporter := &fakeExporter{}
	handler := NewExportHandler(exporter)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/courses/exports",
		strings.NewReader(`{"format":"csv","query":{"status":"active","sort_by":"room"}}`))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Request(c)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), `"job-1"`)
	assert.Equal(t, models.ExportFormatCSV, exporter.lastReq.Format)
	assert.Equal(t, "room", exporter.lastReq.Query.SortBy)
}

func TestExportHandlerRequestPropagatesErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewExportHandler(&fakeExporter{reqErr: appErrors.Clone(appErrors.ErrInvalidSortField, "unrecognized sort field")})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/courses/exports", strings.NewReader(`{"format":"csv"}`))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Request(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_SORT_FIELD")
}

func TestExportHandlerStatusNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewExportHandler(&fakeExporter{statusErr: appErrors.Clone(appErrors.ErrNotFound, "export not found")})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/courses/exports/missing", nil)
	c.Params = gin.Params{{Key: "id", Value: "missing"}}

	handler.Status(c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExportHandlerDownloadStreamsFile(t *testing.T) {
	gin.SetMode(gin.TestMode)
	path := filepath.Join(t.TempDir(), "courses.csv")
	require.NoError(t, os.WriteFile(path, []byte("ID,Name\n1,Chess\n"), 0o600))
	handler := NewExportHandler(&fakeExporter{path: path})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/exports/download/token", nil)
	c.Params = gin.Params{{Key: "token", Value: "token"}}

	handler.Download(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ID,Name\n1,Chess\n", rec.Body.String())
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename="courses.csv"`)
}

func TestExportHandlerDownloadRejectsExpiredLinks(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewExportHandler(&fakeExporter{tokenErr: appErrors.Clone(appErrors.ErrForbidden, "download link expired")})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/exports/download/old", nil)
	c.Params = gin.Params{{Key: "token", Value: "old"}}

	handler.Download(c)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "download link expired")
}
