package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"rfidattend/internal/attendance"
	"rfidattend/internal/auth"
	"rfidattend/internal/queue"
)

const maxBatch = 500

// scanBody accepts "time" or "timestamp", as a string or a number.
type scanBody struct {
	RFID      string          `json:"rfid"`
	FingerID  string          `json:"fingerId"`
	Time      json.RawMessage `json:"time"`
	Timestamp json.RawMessage `json:"timestamp"`
}

func (b scanBody) request() (attendance.ScanRequest, error) {
	raw := b.Time
	if isNull(raw) {
		raw = b.Timestamp
	}
	t, err := rawTime(raw)
	if err != nil {
		return attendance.ScanRequest{}, err
	}
	return attendance.ScanRequest{RFID: b.RFID, FingerID: b.FingerID, Time: t}, nil
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

// rawTime flattens a JSON time value into the text form the parser takes.
func rawTime(raw json.RawMessage) (string, error) {
	if isNull(raw) {
		return "", nil
	}
	raw = bytes.TrimSpace(raw)
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	return string(raw), nil
}

// RecordScan applies one device scan.
func (h *Handler) RecordScan(c *gin.Context) {
	var body scanBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.metrics.ScanError("bad_request")
		badRequest(c, "invalid request body")
		return
	}
	req, err := body.request()
	if err != nil {
		h.metrics.ScanError("bad_request")
		badRequest(c, "invalid request body")
		return
	}

	start := time.Now()
	res, err := h.svc.RecordScan(c.Request.Context(), req)
	if err != nil {
		h.metrics.ScanError(errorReason(err))
		fail(c, err)
		return
	}
	kind := attendance.NewCredential(req.RFID, req.FingerID).Kind()
	h.metrics.Scan(string(res.Outcome), kind.String(), time.Since(start))
	if id := auth.DeviceID(c); id != "" {
		log.Printf("scan from device %s: %s", id, res.Outcome)
	}

	c.JSON(http.StatusOK, scanResponse(res))
}

func scanResponse(res attendance.ScanResult) gin.H {
	out := gin.H{"success": true, "timestamp": res.Timestamp}
	switch res.Outcome {
	case attendance.ScanRegistered:
		out["message"] = "Attendance recorded successfully"
		out["user"] = res.User
	case attendance.ScanUnregistered:
		out["message"] = "Unregistered user scanned"
		out["unregisteredUser"] = res.Unregistered
	case attendance.ScanMerged:
		out["message"] = "Credentials linked, registration pending"
		out["unregisteredUser"] = res.Unregistered
	}
	if res.Subject != nil {
		out["subject"] = res.Subject
	}
	return out
}

func errorReason(err error) string {
	switch {
	case errors.Is(err, attendance.ErrValidation):
		return "validation"
	case errors.Is(err, attendance.ErrInvalidTime):
		return "invalid_time"
	default:
		return "storage"
	}
}

type batchBody struct {
	Scans []scanBody `json:"scans"`
}

// EnqueueScans accepts scans a device buffered while offline. They are
// replayed in order by the worker with their original timestamps.
func (h *Handler) EnqueueScans(c *gin.Context) {
	if h.queue == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "scan replay is not configured"})
		return
	}
	var body batchBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if len(body.Scans) == 0 {
		badRequest(c, "scans are required")
		return
	}
	if len(body.Scans) > maxBatch {
		badRequest(c, fmt.Sprintf("at most %d scans per batch", maxBatch))
		return
	}

	msgs := make([]queue.Message, 0, len(body.Scans))
	for i, s := range body.Scans {
		req, err := s.request()
		if err != nil {
			badRequest(c, fmt.Sprintf("scans[%d]: invalid time", i))
			return
		}
		if attendance.NewCredential(req.RFID, req.FingerID).Kind() == attendance.CredentialNone {
			badRequest(c, fmt.Sprintf("scans[%d]: either rfid or fingerId is required", i))
			return
		}
		if _, err := attendance.ParseScanTime(req.Time, h.svc.Location()); err != nil {
			fail(c, err)
			return
		}
		payload, err := json.Marshal(req)
		if err != nil {
			fail(c, err)
			return
		}
		msgs = append(msgs, queue.Message{Type: queue.TypeScan, Body: payload})
	}

	for i, msg := range msgs {
		if err := h.queue.Publish(c.Request.Context(), msg); err != nil {
			h.metrics.Enqueued(i)
			log.Printf("enqueue scan %d of %d: %v", i+1, len(msgs), err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "scan queue unavailable", "accepted": i})
			return
		}
	}
	h.metrics.Enqueued(len(msgs))
	c.JSON(http.StatusAccepted, gin.H{"success": true, "accepted": len(msgs)})
}

type deviceBody struct {
	DeviceID string `json:"deviceId" binding:"required"`
}

// RegisterDevice issues a token pair for a scanner.
func (h *Handler) RegisterDevice(c *gin.Context) {
	var body deviceBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "deviceId is required")
		return
	}
	tokens, err := h.issuer.Issue(body.DeviceID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success":      true,
		"accessToken":  tokens.AccessToken,
		"refreshToken": tokens.RefreshToken,
		"expiresAt":    tokens.AccessExp.Unix(),
	})
}
