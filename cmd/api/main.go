package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rfidattend/internal/app"
	"rfidattend/internal/auth"
	"rfidattend/internal/config"
	"rfidattend/internal/handler"
	"rfidattend/internal/httpmiddleware"
	"rfidattend/internal/metrics"
	"rfidattend/internal/worker"
)

func main() {
	cfg := config.Load()

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := app.Open(ctx, cfg, 1024)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := deps.Close(closeCtx); err != nil {
			log.Printf("close backends: %v", err)
		}
	}()

	rec := metrics.New(nil)

	// With an in-memory queue nobody else can drain it.
	if cfg.QueueBackend == "memory" && deps.Queue != nil {
		go func() {
			if err := worker.Run(ctx, deps.Queue, deps.Service, rec); err != nil {
				log.Printf("in-process worker stopped: %v", err)
			}
		}()
	}

	var issuer *auth.Issuer
	if cfg.DeviceAuth {
		issuer = auth.NewIssuer(cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
	}

	h := handler.New(deps.Service, deps.Queue, issuer, rec, deps.Checks...)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(securityHeaders())
	r.Use(requestTimeout(cfg.RequestTimeout))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Scanners post from anywhere, so the device endpoints allow any origin.
	limiter := httpmiddleware.NewLimiter(cfg.RateLimitPerMin, cfg.RateLimitPerMin, httpmiddleware.ClientIP)
	if limiter == nil {
		log.Println("rate limiting disabled (RATE_LIMIT_PER_MIN <= 0)")
	}
	h.Register(r,
		cors.New(cors.Config{
			AllowAllOrigins: true,
			AllowMethods:    []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:    []string{"Content-Type", "Authorization"},
			MaxAge:          24 * time.Hour,
		}),
		limiter.Middleware(),
		auth.DeviceAuth(issuer),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("starting server on :%s (store=%s, queue=%s, device auth=%v)", cfg.HTTPPort, cfg.StoreBackend, cfg.QueueBackend, cfg.DeviceAuth)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Println("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server forced shutdown: %v", err)
	}
	log.Println("server exited")
	return nil
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}

// requestTimeout bounds the context handed to storage calls.
func requestTimeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
