package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rfidattend/internal/attendance"
)

// ListRecords serves the attendance log with page, limit, search and date filters.
func (h *Handler) ListRecords(c *gin.Context) {
	page, err := h.svc.ListRecords(c.Request.Context(), attendance.RecordQuery{
		Page:   queryInt(c, "page", 1),
		Limit:  queryInt(c, "limit", 10),
		Search: c.Query("search"),
		Date:   c.Query("date"),
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": page})
}

// DashboardStats serves totals, calendar windows, top users and recent activity.
func (h *Handler) DashboardStats(c *gin.Context) {
	d, err := h.svc.Dashboard(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": d})
}
