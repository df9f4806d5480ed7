package events

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlecFritsch/inito/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.Init(logger.Config{Level: "error", Format: "text"})
	os.Exit(m.Run())
}

func TestRing_KeepsLastN(t *testing.T) {
	r := NewRing(3)
	for i := 0; i < 5; i++ {
		r.Emit("run1", Event{Type: TypeLog, Message: fmt.Sprintf("m%d", i)})
	}
	r.Emit("run2", Event{Type: TypeStatus, Message: "other"})

	got := r.Snapshot("run1")
	require.Len(t, got, 3)
	assert.Equal(t, "m2", got[0].Message)
	assert.Equal(t, "m4", got[2].Message)
	assert.False(t, got[0].Timestamp.IsZero())

	assert.Len(t, r.Snapshot("run2"), 1)
	assert.Empty(t, r.Snapshot("unknown"))
}

func TestRing_SnapshotIsCopy(t *testing.T) {
	r := NewRing(0)
	r.Emit("run", Event{Message: "a"})
	snap := r.Snapshot("run")
	snap[0].Message = "changed"
	assert.Equal(t, "a", r.Snapshot("run")[0].Message)
}

func TestRing_EvictsOldestRun(t *testing.T) {
	r := NewRing(2)
	r.maxRuns = 2
	r.Emit("a", Event{Message: "1"})
	r.Emit("b", Event{Message: "1"})
	r.Emit("c", Event{Message: "1"})

	assert.Empty(t, r.Snapshot("a"))
	assert.Len(t, r.Snapshot("b"), 1)
	assert.Len(t, r.Snapshot("c"), 1)

	r.Forget("b")
	assert.Empty(t, r.Snapshot("b"))
	assert.Equal(t, []string{"c"}, r.order)
}

type recordingSink struct{ got []Event }

func (s *recordingSink) Emit(_ string, ev Event) { s.got = append(s.got, ev) }

func TestMulti(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	Multi{a, nil, b, Discard{}}.Emit("run", Event{Type: TypeStage, Message: "plan"})

	require.Len(t, a.got, 1)
	require.Len(t, b.got, 1)
	assert.False(t, a.got[0].Timestamp.IsZero())
	assert.Equal(t, a.got[0], b.got[0])
}

func TestRedisStream_DropsWhenClosed(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 50 * time.Millisecond})
	defer client.Close()

	s := NewRedisStream(client, 0)
	s.Close()
	s.Emit("run", Event{Message: "late"})
	s.Close()
	assert.Zero(t, s.Dropped())
}

func TestRedisStream_Publishes(t *testing.T) {
	url := os.Getenv("HAVOC_TEST_REDIS_URL")
	if url == "" {
		t.Skip("HAVOC_TEST_REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	defer client.Close()

	runID := fmt.Sprintf("test-%d", time.Now().UnixNano())
	defer client.Del(context.Background(), StreamKey(runID))

	s := NewRedisStream(client, 10)
	s.Emit(runID, Event{Type: TypeStatus, Message: "cloning", Data: map[string]interface{}{"status": "cloning"}})
	s.Close()

	msgs, err := client.XRange(context.Background(), StreamKey(runID), "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "cloning", msgs[0].Values["message"])
	assert.Equal(t, `{"status":"cloning"}`, msgs[0].Values["data"])
}
