package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"rfidattend/internal/attendance"
	"rfidattend/internal/auth"
	"rfidattend/internal/metrics"
	"rfidattend/internal/queue"
)

// HealthCheck reports whether one dependency is reachable.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) bool
}

// Handler serves the attendance HTTP API.
type Handler struct {
	svc     *attendance.Service
	queue   queue.Queue  // nil disables batch replay
	issuer  *auth.Issuer // nil when device auth is off
	metrics *metrics.Recorder
	checks  []HealthCheck
}

// New builds a Handler. q and issuer may be nil to disable batch replay and device tokens.
func New(svc *attendance.Service, q queue.Queue, issuer *auth.Issuer, m *metrics.Recorder, checks ...HealthCheck) *Handler {
	return &Handler{svc: svc, queue: q, issuer: issuer, metrics: m, checks: checks}
}

// Register mounts the API on r. device runs in front of the scan endpoints only.
func (h *Handler) Register(r gin.IRouter, device ...gin.HandlerFunc) {
	r.GET("/healthz", h.Healthz)

	api := r.Group("/api")

	scans := api.Group("/attendance", device...)
	scans.POST("", h.RecordScan)
	scans.OPTIONS("", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	scans.POST("/batch", h.EnqueueScans)

	api.GET("/attendance/records", h.ListRecords)
	api.GET("/dashboard/stats", h.DashboardStats)

	api.GET("/users", h.ListUsers)
	api.POST("/users/register", h.RegisterUser)
	api.PUT("/users", h.UpdateUser)
	api.DELETE("/users", h.DeleteUser)
	api.GET("/users/:id/attendance", h.UserAttendance)

	api.GET("/subjects", h.ListSubjects)
	api.POST("/subjects", h.CreateSubject)
	api.PUT("/subjects", h.UpdateSubject)
	api.DELETE("/subjects", h.DeleteSubject)

	api.GET("/selected-subject", h.GetSelectedSubject)
	api.POST("/selected-subject", h.SelectSubject)
	api.DELETE("/selected-subject", h.ClearSelectedSubject)

	api.GET("/unregistered", h.ListUnregistered)
	api.DELETE("/unregistered", h.DeleteUnregistered)

	if h.issuer != nil {
		api.POST("/devices/register", h.RegisterDevice)
	}
}

// Healthz reports every dependency check. Any failing check turns the status into 503.
func (h *Handler) Healthz(c *gin.Context) {
	status := http.StatusOK
	results := gin.H{}
	for _, hc := range h.checks {
		ok := hc.Check(c.Request.Context())
		results[hc.Name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
		}
	}
	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	c.JSON(status, gin.H{"status": state, "checks": results})
}

// fail writes the client-facing form of err. Unexpected errors are logged
// and hidden behind a generic message.
func fail(c *gin.Context, err error) {
	var aerr *attendance.Error
	msg := err.Error()
	field := ""
	if errors.As(err, &aerr) {
		msg = aerr.Msg
		field = aerr.Field
	}

	switch {
	case errors.Is(err, attendance.ErrValidation), errors.Is(err, attendance.ErrInvalidTime):
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
	case errors.Is(err, attendance.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": msg})
	case errors.Is(err, attendance.ErrConflict):
		body := gin.H{"error": msg}
		if field != "" {
			body["field"] = field
		}
		c.JSON(http.StatusConflict, body)
	default:
		log.Printf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

func queryInt(c *gin.Context, key string, fallback int) int {
	v := c.Query(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func pageQuery(c *gin.Context) attendance.Page {
	return attendance.Page{Page: queryInt(c, "page", 1), Limit: queryInt(c, "limit", 10)}
}
