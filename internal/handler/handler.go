package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"schoolgate/internal/attendance"
	"schoolgate/internal/card"
	"schoolgate/internal/identity"
	"schoolgate/internal/report"
)

// Scanner is the attendance engine surface the handlers call.
type Scanner interface {
	RecordScan(ctx context.Context, code, recordedBy string, now time.Time) (attendance.Record, error)
}

// Reporter is the aggregator surface the handlers call.
type Reporter interface {
	BuildReport(ctx context.Context, f report.Filters) (report.Report, error)
	Stats(ctx context.Context, userID, from, to string) (report.UserStats, error)
	GradeRollup(ctx context.Context, group, date string) (report.Rollup, error)
	Dashboard(ctx context.Context, now time.Time) (report.DashboardStats, error)
}

var scansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "schoolgate_scans_total",
	Help: "Badge scans by outcome.",
}, []string{"outcome"})

// Handler binds HTTP routes to the services.
type Handler struct {
	users   *identity.Service
	engine  Scanner
	reports Reporter
	cards   *card.Renderer

	signingKey string
	issuer     string
	accessTTL  time.Duration
	uploadDir  string
}

// New creates the handler set.
func New(users *identity.Service, engine Scanner, reports Reporter, cards *card.Renderer,
	signingKey, issuer string, accessTTL time.Duration, uploadDir string) *Handler {
	return &Handler{
		users:      users,
		engine:     engine,
		reports:    reports,
		cards:      cards,
		signingKey: signingKey,
		issuer:     issuer,
		accessTTL:  accessTTL,
		uploadDir:  uploadDir,
	}
}

// Dashboard serves today's headline numbers.
func (h *Handler) Dashboard(c *gin.Context) {
	stats, err := h.reports.Dashboard(c.Request.Context(), time.Now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}
