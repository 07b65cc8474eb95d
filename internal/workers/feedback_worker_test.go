package workers

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yoockh/hiready/internal/services"
	"github.com/yoockh/hiready/internal/utils"
)

type fakeFeedback struct {
	mu   sync.Mutex
	seen []string
	err  error
}

func (f *fakeFeedback) Generate(context.Context, string, string) (string, error) { return "", nil }

func (f *fakeFeedback) GenerateForSession(_ context.Context, id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, id)
	return "ok", f.err
}

func (f *fakeFeedback) ids() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.seen...)
}

func redisClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestFeedbackQueue_RequiresRedis(t *testing.T) {
	var q *FeedbackQueue
	require.Error(t, q.Enqueue(context.Background(), "sess-1"))
	require.Error(t, (&FeedbackQueue{}).Enqueue(context.Background(), "sess-1"))
}

func TestFeedbackWorkerPool_RequiresDeps(t *testing.T) {
	require.Error(t, (&FeedbackWorkerPool{}).Start(context.Background()))
}

func TestFeedbackWorkerPool_ConsumesQueue(t *testing.T) {
	rdb := redisClient(t)
	stream := "test:feedback:" + uuid.NewString()
	t.Cleanup(func() { _ = rdb.Del(context.Background(), stream).Err() })

	log := logrus.New()
	log.SetOutput(io.Discard)

	fb := &fakeFeedback{err: utils.E(utils.CodeInvalidArgument, "op", "interview never connected", nil)}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := &FeedbackWorkerPool{Redis: rdb, Feedback: fb, NumWorkers: 2, Logger: log, Stream: stream}
	require.NoError(t, pool.Start(ctx))

	q := &FeedbackQueue{Redis: rdb, Stream: stream}
	require.NoError(t, q.Enqueue(ctx, "sess-1"))
	require.NoError(t, q.Enqueue(ctx, "sess-2"))

	require.Eventually(t, func() bool { return len(fb.ids()) == 2 }, 10*time.Second, 50*time.Millisecond)
	assert.ElementsMatch(t, []string{"sess-1", "sess-2"}, fb.ids())

	require.Eventually(t, func() bool {
		p, err := rdb.XPending(context.Background(), stream, DefaultFeedbackGroup).Result()
		return err == nil && p.Count == 0
	}, 5*time.Second, 50*time.Millisecond)
}

// flakyFeedback fails the first fails calls with err.
type flakyFeedback struct {
	fakeFeedback
	fails int
}

func (f *flakyFeedback) GenerateForSession(ctx context.Context, id string) (string, error) {
	f.mu.Lock()
	f.seen = append(f.seen, id)
	fail := len(f.seen) <= f.fails
	f.mu.Unlock()
	if fail {
		return "", f.err
	}
	return "ok", nil
}

func quietPool(fb services.FeedbackService) *FeedbackWorkerPool {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return &FeedbackWorkerPool{Feedback: fb, Logger: log, MaxAttempts: 3, RetryBackoff: 10 * time.Millisecond}
}

func TestFeedbackWorkerPool_HandleMsgRetriesOnlyTransientFailures(t *testing.T) {
	msg := redis.XMessage{ID: "1-0", Values: map[string]any{"session_id": "sess-1"}}
	cases := []struct {
		name  string
		err   error
		retry bool
	}{
		{"stored", nil, false},
		{"never connected", utils.E(utils.CodeInvalidArgument, "op", "no conversation", nil), false},
		{"missing", utils.E(utils.CodeNotFound, "op", "gone", nil), false},
		{"llm down", utils.E(utils.CodeUnavailable, "op", "feedback model unavailable", nil), true},
		{"deadline", context.DeadlineExceeded, true},
		{"other", errors.New("boom"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := quietPool(&fakeFeedback{err: tc.err})
			assert.Equal(t, tc.retry, p.handleMsg(context.Background(), msg))
		})
	}
}

func TestFeedbackWorkerPool_RetryGivesUpAfterMaxAttempts(t *testing.T) {
	p := quietPool(&fakeFeedback{})
	msg := redis.XMessage{ID: "1-0", Values: map[string]any{"session_id": "sess-1", "attempt": "2"}}

	// attempt 3 of 3 is not re-added, so the message is acked
	assert.True(t, p.retry(context.Background(), msg))
	assert.Equal(t, 2, attemptOf(msg))
}

func TestFeedbackWorkerPool_RetriesUnavailableFeedback(t *testing.T) {
	rdb := redisClient(t)
	stream := "test:feedback:" + uuid.NewString()
	t.Cleanup(func() { _ = rdb.Del(context.Background(), stream).Err() })

	fb := &flakyFeedback{fails: 1}
	fb.err = utils.E(utils.CodeUnavailable, "op", "feedback model unavailable", nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := quietPool(fb)
	pool.Redis = rdb
	pool.Stream = stream
	pool.NumWorkers = 1
	require.NoError(t, pool.Start(ctx))

	require.NoError(t, (&FeedbackQueue{Redis: rdb, Stream: stream}).Enqueue(ctx, "sess-1"))

	require.Eventually(t, func() bool { return len(fb.ids()) == 2 }, 10*time.Second, 50*time.Millisecond)
	assert.Equal(t, []string{"sess-1", "sess-1"}, fb.ids())

	require.Eventually(t, func() bool {
		p, err := rdb.XPending(context.Background(), stream, DefaultFeedbackGroup).Result()
		return err == nil && p.Count == 0
	}, 5*time.Second, 50*time.Millisecond)
}

func TestFeedbackWorkerPool_ReclaimsStalePending(t *testing.T) {
	rdb := redisClient(t)
	stream := "test:feedback:" + uuid.NewString()
	t.Cleanup(func() { _ = rdb.Del(context.Background(), stream).Err() })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, rdb.XGroupCreateMkStream(ctx, stream, DefaultFeedbackGroup, "0").Err())
	require.NoError(t, (&FeedbackQueue{Redis: rdb, Stream: stream}).Enqueue(ctx, "sess-orphan"))

	// a consumer that reads and dies before acking
	_, err := rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    DefaultFeedbackGroup,
		Consumer: "gone",
		Streams:  []string{stream, ">"},
		Count:    1,
	}).Result()
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)

	fb := &fakeFeedback{}
	pool := quietPool(fb)
	pool.Redis = rdb
	pool.Stream = stream
	pool.NumWorkers = 1
	pool.ClaimIdle = 10 * time.Millisecond
	require.NoError(t, pool.Start(ctx))

	require.Eventually(t, func() bool { return len(fb.ids()) == 1 }, 10*time.Second, 50*time.Millisecond)
	assert.Equal(t, []string{"sess-orphan"}, fb.ids())

	require.Eventually(t, func() bool {
		p, err := rdb.XPending(context.Background(), stream, DefaultFeedbackGroup).Result()
		return err == nil && p.Count == 0
	}, 5*time.Second, 50*time.Millisecond)
}
