package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"schoolgate/internal/attendance"
	"schoolgate/internal/report"
)

type scanRequest struct {
	Code       string `json:"code" binding:"required"`
	RecordedBy string `json:"recorded_by"`
}

// Scan submits a badge read to the attendance engine. The three failure modes
// a terminal operator must distinguish keep distinct messages: badge
// unregistered (re-register), already completed (ignore), system error
// (escalate).
func (h *Handler) Scan(c *gin.Context) {
	var req scanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		scansTotal.WithLabelValues("malformed").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed scan, please re-scan"})
		return
	}
	rec, err := h.engine.RecordScan(c.Request.Context(), req.Code, req.RecordedBy, time.Now())
	switch {
	case errors.Is(err, attendance.ErrMalformedCode):
		scansTotal.WithLabelValues("malformed").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed scan, please re-scan"})
	case errors.Is(err, attendance.ErrSubjectNotFound):
		scansTotal.WithLabelValues("not_found").Inc()
		c.JSON(http.StatusNotFound, gin.H{"error": "badge unregistered"})
	case errors.Is(err, attendance.ErrAlreadyCompleted):
		scansTotal.WithLabelValues("conflict").Inc()
		c.JSON(http.StatusConflict, gin.H{"error": "already completed today"})
	case err != nil:
		scansTotal.WithLabelValues("internal").Inc()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "system error"})
	default:
		scansTotal.WithLabelValues("ok").Inc()
		c.JSON(http.StatusOK, rec)
	}
}

// ListAttendance returns records filtered by ?user_id=&date=&role=.
func (h *Handler) ListAttendance(c *gin.Context) {
	date := c.Query("date")
	rep, err := h.reports.BuildReport(c.Request.Context(), report.Filters{
		UserID:   c.Query("user_id"),
		Role:     c.Query("role"),
		DateFrom: date,
		DateTo:   date,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list attendance"})
		return
	}
	c.JSON(http.StatusOK, rep.Records)
}

// UserStats summarizes one subject over ?start_date=&end_date=.
func (h *Handler) UserStats(c *gin.Context) {
	stats, err := h.reports.Stats(c.Request.Context(), c.Param("user_id"),
		c.Query("start_date"), c.Query("end_date"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}
