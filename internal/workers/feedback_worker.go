package workers

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/hiready/internal/services"
	"github.com/yoockh/hiready/internal/utils"
)

const (
	DefaultFeedbackStream = "feedback:stream"
	DefaultFeedbackGroup  = "feedback-workers"
)

// FeedbackQueue enqueues finished sessions for review generation.
type FeedbackQueue struct {
	Redis  *redis.Client
	Stream string
}

func (q *FeedbackQueue) Enqueue(ctx context.Context, sessionID string) error {
	if q == nil || q.Redis == nil {
		return errors.New("feedback queue is not configured")
	}
	stream := q.Stream
	if stream == "" {
		stream = DefaultFeedbackStream
	}
	return add(ctx, q.Redis, stream, sessionID, 0)
}

func add(ctx context.Context, rdb *redis.Client, stream, sessionID string, attempt int) error {
	return rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: 10000,
		Approx: true,
		Values: map[string]any{
			"session_id":  sessionID,
			"attempt":     attempt,
			"enqueued_at": time.Now().UTC().Format(time.RFC3339),
		},
	}).Err()
}

type FeedbackWorkerPool struct {
	Redis      *redis.Client
	Feedback   services.FeedbackService
	NumWorkers int

	Logger *logrus.Logger

	Stream         string
	Group          string
	ConsumerPrefix string

	// MaxAttempts bounds retries of transient failures; RetryBackoff is
	// multiplied by the attempt number before a message is re-added.
	MaxAttempts  int
	RetryBackoff time.Duration

	// ClaimIdle is how long a message must sit pending on another consumer
	// before a starting consumer takes it over.
	ClaimIdle time.Duration
}

func (p *FeedbackWorkerPool) Start(ctx context.Context) error {
	if p.Redis == nil || p.Feedback == nil {
		return errors.New("FeedbackWorkerPool missing dependency: Redis/Feedback must be set")
	}
	if p.Stream == "" {
		p.Stream = DefaultFeedbackStream
	}
	if p.Group == "" {
		p.Group = DefaultFeedbackGroup
	}
	if p.ConsumerPrefix == "" {
		p.ConsumerPrefix = "c"
	}
	if p.NumWorkers <= 0 {
		p.NumWorkers = 2
	}
	if p.Logger == nil {
		p.Logger = logrus.New()
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 5
	}
	if p.RetryBackoff <= 0 {
		p.RetryBackoff = 5 * time.Second
	}
	if p.ClaimIdle <= 0 {
		p.ClaimIdle = 5 * time.Minute
	}

	_ = p.Redis.XGroupCreateMkStream(ctx, p.Stream, p.Group, "0").Err() // ignore BUSYGROUP

	for i := 0; i < p.NumWorkers; i++ {
		go p.runConsumer(ctx, p.ConsumerPrefix+"-"+strconv.Itoa(i+1))
	}
	return nil
}

func (p *FeedbackWorkerPool) runConsumer(ctx context.Context, consumer string) {
	p.reclaim(ctx, consumer)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := p.Redis.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    p.Group,
			Consumer: consumer,
			Streams:  []string{p.Stream, ">"},
			Count:    4,
			Block:    5 * time.Second,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			time.Sleep(500 * time.Millisecond)
			continue
		}

		for _, stream := range res {
			for _, msg := range stream.Messages {
				p.process(ctx, msg)
			}
		}
	}
}

// process handles msg and acks it unless it has to stay pending for reclaim.
func (p *FeedbackWorkerPool) process(ctx context.Context, msg redis.XMessage) {
	if p.handleMsg(ctx, msg) && !p.retry(ctx, msg) {
		// left pending until a consumer reclaims it on start
		return
	}
	_ = p.Redis.XAck(ctx, p.Stream, p.Group, msg.ID).Err()
}

// reclaim takes over messages left pending longer than ClaimIdle, e.g. by a
// consumer that shut down mid-retry, and processes them before reading new ones.
func (p *FeedbackWorkerPool) reclaim(ctx context.Context, consumer string) {
	start := "0-0"
	for ctx.Err() == nil {
		msgs, next, err := p.Redis.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   p.Stream,
			Group:    p.Group,
			Consumer: consumer,
			MinIdle:  p.ClaimIdle,
			Start:    start,
			Count:    16,
		}).Result()
		if err != nil {
			if ctx.Err() == nil {
				p.Logger.WithError(err).WithField("consumer", consumer).Warn("feedback reclaim failed")
			}
			return
		}
		for _, msg := range msgs {
			p.process(ctx, msg)
		}
		if next == "0-0" || next == "" {
			return
		}
		start = next
	}
}

// handleMsg reports whether the message failed for a reason worth retrying.
func (p *FeedbackWorkerPool) handleMsg(ctx context.Context, msg redis.XMessage) bool {
	sessionID, _ := msg.Values["session_id"].(string)
	if sessionID == "" {
		return false
	}
	log := p.Logger.WithFields(logrus.Fields{
		"redis_id":   msg.ID,
		"session_id": sessionID,
		"attempt":    attemptOf(msg),
	})

	genCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	start := time.Now()
	if _, err := p.Feedback.GenerateForSession(genCtx, sessionID); err != nil {
		// sessions that never connected have nothing to review
		if utils.IsCode(err, utils.CodeInvalidArgument) || utils.IsCode(err, utils.CodeNotFound) {
			log.WithError(err).Info("feedback skipped")
			return false
		}
		if utils.IsCode(err, utils.CodeUnavailable) || utils.IsCode(err, utils.CodeTimeout) || errors.Is(err, context.DeadlineExceeded) {
			log.WithError(err).Warn("feedback generation failed, will retry")
			return true
		}
		log.WithError(err).Error("feedback generation failed")
		return false
	}
	log.WithField("processing_time_ms", time.Since(start).Milliseconds()).Info("feedback stored")
	return false
}

// retry re-adds msg with the next attempt number after a backoff. It returns
// false when msg must stay pending instead of being acked.
func (p *FeedbackWorkerPool) retry(ctx context.Context, msg redis.XMessage) bool {
	sessionID, _ := msg.Values["session_id"].(string)
	next := attemptOf(msg) + 1
	log := p.Logger.WithFields(logrus.Fields{"session_id": sessionID, "attempt": next})
	if next >= p.MaxAttempts {
		log.Error("feedback retries exhausted")
		return true
	}

	select {
	case <-time.After(time.Duration(next) * p.RetryBackoff):
	case <-ctx.Done():
		return false
	}
	if err := add(ctx, p.Redis, p.Stream, sessionID, next); err != nil {
		log.WithError(err).Warn("feedback requeue failed")
		return false
	}
	return true
}

func attemptOf(msg redis.XMessage) int {
	s, _ := msg.Values["attempt"].(string)
	n, _ := strconv.Atoi(s)
	return n
}
