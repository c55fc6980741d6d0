package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"schoolgate/internal/attendance"
	"schoolgate/internal/report"
)

type stubScanner struct {
	rec attendance.Record
	err error
}

func (s stubScanner) RecordScan(context.Context, string, string, time.Time) (attendance.Record, error) {
	return s.rec, s.err
}

type stubReporter struct{}

func (stubReporter) BuildReport(_ context.Context, f report.Filters) (report.Report, error) {
	return report.Report{Records: []attendance.Record{}, FiltersApplied: f}, nil
}
func (stubReporter) Stats(context.Context, string, string, string) (report.UserStats, error) {
	return report.UserStats{}, nil
}
func (stubReporter) GradeRollup(context.Context, string, string) (report.Rollup, error) {
	return report.Rollup{}, nil
}
func (stubReporter) Dashboard(context.Context, time.Time) (report.DashboardStats, error) {
	return report.DashboardStats{}, nil
}

func scanThrough(t *testing.T, s stubScanner, body string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h := New(nil, s, stubReporter{}, nil, "key", "iss", time.Minute, t.TempDir())
	r := gin.New()
	r.POST("/api/attendance", h.Scan)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/attendance", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestScanStatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantReason string
	}{
		{"ok", nil, http.StatusOK, ""},
		{"malformed", attendance.ErrMalformedCode, http.StatusBadRequest, "re-scan"},
		{"unregistered", attendance.ErrSubjectNotFound, http.StatusNotFound, "badge unregistered"},
		{"completed", attendance.ErrAlreadyCompleted, http.StatusConflict, "already completed today"},
		{"internal", errors.New("pg down"), http.StatusInternalServerError, "system error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := scanThrough(t, stubScanner{err: tt.err}, `{"code":"student-1","recorded_by":"gate"}`)
			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantReason != "" {
				assert.Contains(t, w.Body.String(), tt.wantReason)
			}
		})
	}
}

func TestScanRejectsMissingCode(t *testing.T) {
	w := scanThrough(t, stubScanner{}, `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestScanInternalErrorHidesDetail(t *testing.T) {
	w := scanThrough(t, stubScanner{err: errors.New("password=hunter2 connection refused")}, `{"code":"student-1"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "hunter2")
}
