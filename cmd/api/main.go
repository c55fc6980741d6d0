package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"schoolgate/internal/attendance"
	"schoolgate/internal/auth"
	"schoolgate/internal/card"
	"schoolgate/internal/config"
	"schoolgate/internal/handler"
	"schoolgate/internal/httpmiddleware"
	"schoolgate/internal/identity"
	"schoolgate/internal/notify"
	"schoolgate/internal/queue"
	"schoolgate/internal/report"
	"schoolgate/internal/store"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := store.Migrate(context.Background(), db.Client); err != nil {
		return err
	}

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		// Single-process mode runs without the worker binary, so the queue
		// is drained here; otherwise the buffer fills and scans would wait
		// on it. Deliveries go to the log.
		mem := queue.NewInMemory(64)
		msgs, err := mem.Consume(context.Background())
		if err != nil {
			return err
		}
		go drainNotifications(msgs)
		q = mem
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "schoolgate:notifications")
	}

	userRepo := identity.NewRepository(db.Client)
	attRepo := attendance.NewRepository(db.Client)
	users := identity.NewService(userRepo, cfg.StudentIDTag)
	engine := attendance.NewEngine(attRepo, userRepo, q, cfg.Location(), cfg.LateCutoffHr)
	reports := report.NewAggregator(attRepo, userRepo, cfg.Location())
	cards := card.NewRenderer(cfg.SchoolName, cfg.LogoPath)

	h := handler.New(users, engine, reports, cards,
		cfg.JWTSigningKey, cfg.JWTIssuer, cfg.AccessTTL, cfg.UploadDir)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db.Client.PingContext(c.Request.Context()) == nil
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	api := r.Group("/api")
	api.POST("/auth/register", h.Register)
	api.POST("/auth/login", h.Login)

	authed := api.Group("", auth.UserAuth(cfg.JWTSigningKey, cfg.JWTIssuer))
	authed.GET("/users", h.ListUsers)
	authed.GET("/users/:id", h.GetUser)
	authed.PUT("/users/:id", h.UpdateUser)
	authed.DELETE("/users/:id", h.DeleteUser)
	authed.POST("/users/:id/photo", h.UploadPhoto)

	authed.POST("/parents", h.SaveParentLink)
	authed.GET("/parents/:user_id", h.GetParentLink)
	authed.GET("/parents/:user_id/students", h.GetParentStudents)

	authed.POST("/attendance", h.Scan)
	authed.GET("/attendance", h.ListAttendance)
	authed.GET("/attendance/stats/:user_id", h.UserStats)

	authed.GET("/reports", h.Report)
	authed.GET("/reports/rollup", h.Rollup)
	authed.GET("/reports/export", h.ExportReport)

	authed.GET("/cards/:id", h.Card)
	authed.GET("/cards/:id/qr", h.CardQR)

	authed.GET("/dashboard/stats", h.Dashboard)

	r.Static("/static", cfg.StaticDir)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server forced shutdown: %v", err)
	}

	log.Println("server exited")
	return nil
}

// drainNotifications delivers queued notifications to the log when no
// worker process is running.
func drainNotifications(msgs <-chan queue.Message) {
	dispatcher := notify.LogDispatcher{}
	for msg := range msgs {
		if msg.Type != "notify" {
			continue
		}
		var n notify.Notification
		if err := json.Unmarshal(msg.Body, &n); err != nil {
			log.Printf("notification decode failed: %v", err)
			continue
		}
		if err := dispatcher.Send(context.Background(), n); err != nil {
			log.Printf("notification dispatch failed: %v", err)
		}
	}
}

// CORS middleware for browser requests.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
