package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type trainPayload struct {
	Asset string `json:"asset"`
}

type recordingJob struct {
	fail  bool
	calls atomic.Int32
	seen  chan string
}

func (j *recordingJob) Name() string { return "recording" }
func (j *recordingJob) Type() string { return "train" }

func (j *recordingJob) Handle(_ context.Context, msg *Message) error {
	j.calls.Add(1)
	p, err := ParsePayload[trainPayload](msg)
	if err != nil {
		return err
	}
	if j.fail {
		return errors.New("boom")
	}
	j.seen <- msg.ID + "/" + p.Asset
	return nil
}

func newQueue(t *testing.T, cfg *QueueConfig) (*miniredis.Miniredis, *RedisQueue) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisQueue(nil, cfg, client, WithKeyPrefix("test:queue"))
}

func stop(t *testing.T, q *RedisQueue) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, q.Stop(ctx))
}

func TestQueueDeliversToJob(t *testing.T) {
	_, q := newQueue(t, &QueueConfig{Workers: 1})
	job := &recordingJob{seen: make(chan string, 1)}
	q.RegisterJob(job)
	require.NoError(t, q.Start())
	defer stop(t, q)

	id, err := q.Enqueue(context.Background(), "train", trainPayload{Asset: "BTC"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	select {
	case got := <-job.seen:
		assert.Equal(t, id+"/BTC", got)
	case <-time.After(5 * time.Second):
		t.Fatal("job was not called")
	}
}

func TestQueueFailedMessageGoesToDeadLetters(t *testing.T) {
	_, q := newQueue(t, &QueueConfig{Workers: 1, RetryLimit: 0})
	job := &recordingJob{fail: true, seen: make(chan string, 1)}
	q.RegisterJob(job)
	require.NoError(t, q.Start())
	defer stop(t, q)

	_, err := q.Enqueue(context.Background(), "train", trainPayload{})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		n, err := q.DeadLetters(context.Background())
		return err == nil && n == 1
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, int32(1), job.calls.Load())
}

func TestQueueRejectsUnknownTypeAndStopped(t *testing.T) {
	_, q := newQueue(t, &QueueConfig{Workers: 1})
	_, err := q.Enqueue(context.Background(), "train", nil)
	assert.Error(t, err, "not running")

	require.NoError(t, q.Start())
	defer stop(t, q)
	_, err = q.Enqueue(context.Background(), "other", nil)
	assert.Error(t, err)
}

func TestProducerOnlyQueueKeepsMessages(t *testing.T) {
	_, q := newQueue(t, &QueueConfig{})
	require.NoError(t, q.Start())
	defer stop(t, q)

	_, err := q.Enqueue(context.Background(), "anything", map[string]int{"n": 1})
	require.NoError(t, err)
	n, err := q.Pending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
