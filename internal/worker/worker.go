package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"rfidattend/internal/attendance"
	"rfidattend/internal/metrics"
	"rfidattend/internal/queue"
)

// Scanner applies one scan.
type Scanner interface {
	RecordScan(ctx context.Context, req attendance.ScanRequest) (attendance.ScanResult, error)
}

// Run replays buffered scans from q until ctx ends or the queue closes.
// Rejected scans are logged and dropped. Storage failures are logged too;
// replays are not retried because a scan is not idempotent.
func Run(ctx context.Context, q queue.Queue, svc Scanner, m *metrics.Recorder) error {
	messages, err := q.Consume(ctx)
	if err != nil {
		return err
	}
	for msg := range messages {
		Process(ctx, svc, m, msg)
	}
	return nil
}

// Process applies a single queue message.
func Process(ctx context.Context, svc Scanner, m *metrics.Recorder, msg queue.Message) {
	if msg.Type != queue.TypeScan {
		log.Printf("worker: skip message of type %q", msg.Type)
		return
	}
	var req attendance.ScanRequest
	if err := json.Unmarshal(msg.Body, &req); err != nil {
		log.Printf("worker: malformed scan: %v", err)
		m.Replayed("rejected")
		return
	}

	res, err := svc.RecordScan(ctx, req)
	switch {
	case err == nil:
		m.Replayed("ok")
		log.Printf("worker: replayed scan rfid=%q fingerId=%q at %s: %s", req.RFID, req.FingerID, res.Timestamp.Format(time.RFC3339), res.Outcome)
	case errors.Is(err, attendance.ErrValidation), errors.Is(err, attendance.ErrInvalidTime):
		m.Replayed("rejected")
		log.Printf("worker: rejected scan rfid=%q fingerId=%q: %v", req.RFID, req.FingerID, err)
	default:
		m.Replayed("failed")
		log.Printf("worker: scan rfid=%q fingerId=%q failed: %v", req.RFID, req.FingerID, err)
	}
}
