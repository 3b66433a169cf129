package queue

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scanMsg(rfid string) Message {
	body, _ := json.Marshal(map[string]string{"rfid": rfid})
	return Message{Type: TypeScan, Body: body}
}

func receive(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case msg, ok := <-ch:
		require.True(t, ok, "channel closed")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message")
	}
	return Message{}
}

func TestInMemory_Order(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := NewInMemory(4)

	for _, id := range []string{"R1", "R2", "R3"} {
		require.NoError(t, q.Publish(ctx, scanMsg(id)))
	}
	ch, err := q.Consume(ctx)
	require.NoError(t, err)
	for _, id := range []string{"R1", "R2", "R3"} {
		msg := receive(t, ch)
		assert.Equal(t, TypeScan, msg.Type)
		assert.JSONEq(t, `{"rfid":"`+id+`"}`, string(msg.Body))
	}
}

func TestInMemory_PublishRespectsContext(t *testing.T) {
	q := NewInMemory(1)
	require.NoError(t, q.Publish(context.Background(), scanMsg("R1")))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := q.Publish(ctx, scanMsg("R2"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestInMemory_ConsumeClosesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := NewInMemory(1).Consume(ctx)
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestRedisQueue(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	key := "test:scans:" + time.Now().Format("150405.000000")
	defer client.Del(context.Background(), key)

	q := NewRedisQueue(client, key)
	q.block = 100 * time.Millisecond
	require.NoError(t, q.Publish(ctx, scanMsg("R1")))
	require.NoError(t, client.LPush(ctx, key, "{not json").Err())
	require.NoError(t, q.Publish(ctx, scanMsg("R2")))

	ch, err := q.Consume(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"rfid":"R1"}`, string(receive(t, ch).Body))
	assert.JSONEq(t, `{"rfid":"R2"}`, string(receive(t, ch).Body), "malformed entries are dropped")
}
