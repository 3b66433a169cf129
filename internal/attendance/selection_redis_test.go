package attendance

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisSelection(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	key := "test:selected-subject:" + time.Now().Format("150405.000000")
	t.Cleanup(func() { client.Del(context.Background(), key) })
	sel := NewRedisSelection(client, key)

	got, err := sel.GetSelection(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	want := SelectedSubject{SubjectID: "s1", SubjectName: "Math", CourseCode: "M101", Instructor: "Dr X", SelectedAt: baseTime}
	require.NoError(t, sel.ReplaceSelection(ctx, want))
	got, err = sel.GetSelection(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "M101", got.CourseCode)
	assert.True(t, want.SelectedAt.Equal(got.SelectedAt))

	// The service works the same with the slot outside the main store.
	repo := NewMemoryRepository()
	svc := NewService(repo, sel, WithLocation(time.UTC))
	subj, err := svc.CreateSubject(ctx, SubjectInput{Name: "Art", CourseCode: "A1", Instructor: "Ms Z"})
	require.NoError(t, err)
	_, err = svc.SelectSubject(ctx, subj.ID)
	require.NoError(t, err)
	res, err := svc.RecordScan(ctx, ScanRequest{RFID: "R1"})
	require.NoError(t, err)
	require.NotNil(t, res.Record)
	assert.Equal(t, "A1", res.Record.CourseCode)

	require.NoError(t, sel.ClearSelection(ctx))
	got, err = sel.GetSelection(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}
