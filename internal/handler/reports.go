package handler

import (
	"bytes"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"schoolgate/internal/report"
)

func filtersFromQuery(c *gin.Context) report.Filters {
	return report.Filters{
		DateFrom: c.Query("date_from"),
		DateTo:   c.Query("date_to"),
		Group:    c.Query("group"),
		UserID:   c.Query("user_id"),
		Role:     c.Query("role"),
	}
}

// Report builds the filtered report: records, stats and the echoed filters.
func (h *Handler) Report(c *gin.Context) {
	rep, err := h.reports.BuildReport(c.Request.Context(), filtersFromQuery(c))
	if err != nil {
		log.Printf("build report failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build report"})
		return
	}
	c.JSON(http.StatusOK, rep)
}

// Rollup serves the roster-driven per-group report for one date. Students
// with no record for the date appear as absent. Omitting the date means
// today in the school's zone; the aggregator resolves it.
func (h *Handler) Rollup(c *gin.Context) {
	group := c.Query("group")
	if group == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "group is required"})
		return
	}
	rollup, err := h.reports.GradeRollup(c.Request.Context(), group, c.Query("date"))
	if err != nil {
		log.Printf("rollup failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build rollup"})
		return
	}
	c.JSON(http.StatusOK, rollup)
}

// ExportReport serializes the filtered report as CSV or PDF.
func (h *Handler) ExportReport(c *gin.Context) {
	rep, err := h.reports.BuildReport(c.Request.Context(), filtersFromQuery(c))
	if err != nil {
		log.Printf("build report failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build report"})
		return
	}
	stamp := time.Now().Format("2006-01-02")
	switch c.DefaultQuery("format", "csv") {
	case "pdf":
		data, err := report.PDF(rep, "Attendance Report")
		if err != nil {
			log.Printf("pdf export failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to render pdf"})
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=attendance_%s.pdf", stamp))
		c.Data(http.StatusOK, "application/pdf", data)
	case "csv":
		var buf bytes.Buffer
		if err := report.WriteCSV(&buf, rep); err != nil {
			log.Printf("csv export failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to render csv"})
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=attendance_%s.csv", stamp))
		c.Data(http.StatusOK, "text/csv", buf.Bytes())
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "format must be csv or pdf"})
	}
}
