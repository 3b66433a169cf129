package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rfidattend/internal/attendance"
)

// ListUsers pages through registered and unregistered users side by side.
func (h *Handler) ListUsers(c *gin.Context) {
	dir, err := h.svc.ListUsers(c.Request.Context(), pageQuery(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": dir})
}

// RegisterUser creates a user from a credential pair and clears its pending entries.
func (h *Handler) RegisterUser(c *gin.Context) {
	var req attendance.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	u, err := h.svc.RegisterUser(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "message": "User registered successfully", "user": u})
}

// UpdateUser edits a user's name, employee id and email.
func (h *Handler) UpdateUser(c *gin.Context) {
	var req attendance.UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	u, err := h.svc.UpdateUser(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "User updated successfully", "user": u})
}

// DeleteUser removes the user named by ?id=. Their records stay.
func (h *Handler) DeleteUser(c *gin.Context) {
	if err := h.svc.DeleteUser(c.Request.Context(), c.Query("id")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "User deleted successfully"})
}

// UserAttendance returns one user's records grouped by subject.
func (h *Handler) UserAttendance(c *gin.Context) {
	report, err := h.svc.UserAttendance(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": report})
}

// ListUnregistered pages through credentials no user owns yet.
func (h *Handler) ListUnregistered(c *gin.Context) {
	page, err := h.svc.ListUnregistered(c.Request.Context(), pageQuery(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": page})
}

// DeleteUnregistered dismisses the pending credential named by ?id=.
func (h *Handler) DeleteUnregistered(c *gin.Context) {
	if err := h.svc.DeleteUnregistered(c.Request.Context(), c.Query("id")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Unregistered user removed"})
}
