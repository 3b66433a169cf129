package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rfidattend/internal/attendance"
	"rfidattend/internal/metrics"
	"rfidattend/internal/queue"
)

type fakeScanner struct {
	mu   sync.Mutex
	seen []attendance.ScanRequest
	err  error
}

func (f *fakeScanner) RecordScan(_ context.Context, req attendance.ScanRequest) (attendance.ScanResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, req)
	if f.err != nil {
		return attendance.ScanResult{}, f.err
	}
	return attendance.ScanResult{Outcome: attendance.ScanRegistered, Timestamp: time.Now()}, nil
}

func (f *fakeScanner) requests() []attendance.ScanRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]attendance.ScanRequest(nil), f.seen...)
}

func TestProcess(t *testing.T) {
	tests := []struct {
		name       string
		msg        queue.Message
		scanErr    error
		wantCalls  int
		wantResult string
	}{
		{name: "ok", msg: queue.Message{Type: queue.TypeScan, Body: []byte(`{"rfid":"R1"}`)}, wantCalls: 1, wantResult: "ok"},
		{name: "malformed body", msg: queue.Message{Type: queue.TypeScan, Body: []byte(`{`)}, wantResult: "rejected"},
		{name: "validation", msg: queue.Message{Type: queue.TypeScan, Body: []byte(`{}`)}, scanErr: attendance.ErrValidation, wantCalls: 1, wantResult: "rejected"},
		{name: "bad time", msg: queue.Message{Type: queue.TypeScan, Body: []byte(`{"rfid":"R1","time":"x"}`)}, scanErr: attendance.ErrInvalidTime, wantCalls: 1, wantResult: "rejected"},
		{name: "storage", msg: queue.Message{Type: queue.TypeScan, Body: []byte(`{"rfid":"R1"}`)}, scanErr: errors.New("db down"), wantCalls: 1, wantResult: "failed"},
		{name: "other type", msg: queue.Message{Type: "email", Body: []byte(`{}`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := prometheus.NewRegistry()
			m := metrics.New(reg)
			sc := &fakeScanner{err: tt.scanErr}

			Process(context.Background(), sc, m, tt.msg)

			assert.Len(t, sc.requests(), tt.wantCalls)
			got := replayed(t, reg)
			if tt.wantResult == "" {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, map[string]float64{tt.wantResult: 1}, got)
		})
	}
}

// replayed returns the replay counter by result label.
func replayed(t *testing.T, reg *prometheus.Registry) map[string]float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	out := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != "attendance_scans_replayed_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "result" {
					out[lp.GetValue()] += m.GetCounter().GetValue()
				}
			}
		}
	}
	return out
}

func TestProcess_NilMetrics(t *testing.T) {
	sc := &fakeScanner{}
	Process(context.Background(), sc, nil, queue.Message{Type: queue.TypeScan, Body: []byte(`{"fingerId":"F1","time":"946684800"}`)})
	require.Len(t, sc.requests(), 1)
	assert.Equal(t, attendance.ScanRequest{FingerID: "F1", Time: "946684800"}, sc.requests()[0])
}

func TestRun_ReplaysInOrder(t *testing.T) {
	q := queue.NewInMemory(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for _, body := range []string{`{"rfid":"R1"}`, `{"rfid":"R2"}`, `{"rfid":"R3"}`} {
		require.NoError(t, q.Publish(ctx, queue.Message{Type: queue.TypeScan, Body: []byte(body)}))
	}

	sc := &fakeScanner{}
	done := make(chan error, 1)
	go func() { done <- Run(ctx, q, sc, nil) }()

	require.Eventually(t, func() bool { return len(sc.requests()) == 3 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	got := sc.requests()
	assert.Equal(t, "R1", got[0].RFID)
	assert.Equal(t, "R2", got[1].RFID)
	assert.Equal(t, "R3", got[2].RFID)
}

func TestRun_AgainstService(t *testing.T) {
	repo := attendance.NewMemoryRepository()
	svc := attendance.NewService(repo, repo, attendance.WithLocation(time.UTC))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	u, err := repo.CreateUser(ctx, attendance.User{RFID: "R1", Name: "Alice"})
	require.NoError(t, err)

	q := queue.NewInMemory(8)
	for _, body := range []string{`{"rfid":"R1","time":"2024-01-15T09:00:00Z"}`, `{"rfid":"R1","time":"2024-01-16T09:00:00Z"}`} {
		require.NoError(t, q.Publish(ctx, queue.Message{Type: queue.TypeScan, Body: []byte(body)}))
	}
	go func() { _ = Run(ctx, q, svc, nil) }()

	require.Eventually(t, func() bool {
		got, err := svc.GetUser(ctx, u.ID)
		return err == nil && got.Attendance == 2
	}, 2*time.Second, 10*time.Millisecond)

	page, err := svc.ListRecords(ctx, attendance.RecordQuery{})
	require.NoError(t, err)
	require.Len(t, page.Records, 2)
	assert.Equal(t, time.Date(2024, 1, 16, 9, 0, 0, 0, time.UTC), page.Records[0].Timestamp, "original scan time is kept")
}
