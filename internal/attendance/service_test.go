package attendance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// testClock is a settable clock shared by the service and the memory store.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Tick advances the clock so consecutive writes get distinct stamps.
func (c *testClock) Tick() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

// Wednesday.
var baseTime = time.Date(2024, time.January, 17, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc   *Service
	repo  *MemoryRepository
	clock *testClock
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	return newFixtureIn(t, time.UTC)
}

// newFixtureIn builds a fixture whose calendar runs in loc.
func newFixtureIn(t *testing.T, loc *time.Location) fixture {
	t.Helper()
	clock := &testClock{now: baseTime}
	repo := NewMemoryRepository()
	repo.SetClock(clock.Now)
	svc := NewService(repo, repo, WithLocation(loc), WithClock(clock.Now))
	return fixture{svc: svc, repo: repo, clock: clock}
}

func (f fixture) user(t *testing.T, name, rfid, fingerID string, attendance int) User {
	t.Helper()
	f.clock.Tick()
	u, err := f.repo.CreateUser(context.Background(), User{Name: name, RFID: rfid, FingerID: fingerID, Attendance: attendance})
	require.NoError(t, err)
	return u
}

func (f fixture) subject(t *testing.T, name, code, instructor string) Subject {
	t.Helper()
	f.clock.Tick()
	s, err := f.svc.CreateSubject(context.Background(), SubjectInput{Name: name, CourseCode: code, Instructor: instructor})
	require.NoError(t, err)
	return s
}

func (f fixture) scan(t *testing.T, rfid, fingerID, when string) ScanResult {
	t.Helper()
	res, err := f.svc.RecordScan(context.Background(), ScanRequest{RFID: rfid, FingerID: fingerID, Time: when})
	require.NoError(t, err)
	return res
}

// failingRecords rejects every record insert.
type failingRecords struct {
	*MemoryRepository
}

func (failingRecords) InsertRecord(context.Context, Record) (Record, error) {
	return Record{}, errors.New("disk full")
}
