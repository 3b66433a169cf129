package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rfidattend/internal/attendance"
)

// ListSubjects returns every subject, newest first.
func (h *Handler) ListSubjects(c *gin.Context) {
	subjects, err := h.svc.ListSubjects(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": subjects})
}

// CreateSubject adds a subject with a unique course code.
func (h *Handler) CreateSubject(c *gin.Context) {
	var in attendance.SubjectInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	in.ID = ""
	subj, err := h.svc.CreateSubject(c.Request.Context(), in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "message": "Subject created successfully", "subject": subj})
}

// UpdateSubject edits a subject. The current selection keeps its snapshot.
func (h *Handler) UpdateSubject(c *gin.Context) {
	var in attendance.SubjectInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	subj, err := h.svc.UpdateSubject(c.Request.Context(), in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Subject updated successfully", "subject": subj})
}

// DeleteSubject removes the subject named by ?id=.
func (h *Handler) DeleteSubject(c *gin.Context) {
	if err := h.svc.DeleteSubject(c.Request.Context(), c.Query("id")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Subject deleted successfully"})
}

// GetSelectedSubject returns the current selection; data is null when none is set.
func (h *Handler) GetSelectedSubject(c *gin.Context) {
	sel, err := h.svc.SelectedSubject(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": sel})
}

type selectBody struct {
	SubjectID string `json:"subjectId"`
}

// SelectSubject makes a subject the one new scans are attributed to.
func (h *Handler) SelectSubject(c *gin.Context) {
	var body selectBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	sel, err := h.svc.SelectSubject(c.Request.Context(), body.SubjectID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Subject selected successfully", "data": sel})
}

// ClearSelectedSubject stops attributing scans to a subject.
func (h *Handler) ClearSelectedSubject(c *gin.Context) {
	if err := h.svc.ClearSelectedSubject(c.Request.Context()); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Selected subject cleared successfully"})
}
