package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"MycoCast/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// RedisQueue is a Redis-list-backed queue with delayed retries and a dead
// letter list. A publisher instance only pushes; a consumer instance runs
// workers that pop, dispatch to registered jobs, and reschedule failures.
type RedisQueue struct {
	logger      *logger.Logger
	config      *QueueConfig
	client      *redis.Client
	jobs        map[string]Job
	wg          sync.WaitGroup
	mu          sync.RWMutex
	isRunning   bool
	stopCh      chan struct{}
	publishOnly bool
	ctx         context.Context
	cancel      context.CancelFunc
	keyPrefix   string
}

// RedisQueueOption configures RedisQueue.
type RedisQueueOption func(*RedisQueue)

// WithKeyPrefix namespaces the queue, retry, and dead-letter keys.
func WithKeyPrefix(prefix string) RedisQueueOption {
	return func(r *RedisQueue) {
		r.keyPrefix = prefix
	}
}

func newRedisQueue(lgr *logger.Logger, config *QueueConfig, client *redis.Client, publishOnly bool, opts ...RedisQueueOption) *RedisQueue {
	if config == nil {
		config = &QueueConfig{}
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	rq := &RedisQueue{
		logger:      lgr,
		config:      config,
		client:      client,
		jobs:        make(map[string]Job),
		stopCh:      make(chan struct{}),
		publishOnly: publishOnly,
		ctx:         ctx,
		cancel:      cancel,
		keyPrefix:   "mycocast:queue",
	}

	for _, opt := range opts {
		opt(rq)
	}

	return rq
}

// NewRedisPublisher creates a push-only queue, started immediately.
func NewRedisPublisher(lgr *logger.Logger, client *redis.Client, opts ...RedisQueueOption) *RedisQueue {
	q := newRedisQueue(lgr, &QueueConfig{}, client, true, opts...)
	if err := q.Start(); err != nil {
		lgr.Error("redis publisher start failed", logger.Error(err))
	}
	return q
}

// NewRedisConsumer creates a consuming queue with the given jobs registered.
// Call Start to launch the workers.
func NewRedisConsumer(lgr *logger.Logger, config *QueueConfig, client *redis.Client, jobs []Job, opts ...RedisQueueOption) *RedisQueue {
	q := newRedisQueue(lgr, config, client, false, opts...)
	for _, job := range jobs {
		q.RegisterJob(job)
	}
	return q
}

// RegisterJob registers a job keyed by its message type.
func (r *RedisQueue) RegisterJob(job Job) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[job.Type()]; exists {
		r.logger.Warn("job already registered", logger.String("job", job.Name()))
		return
	}

	r.jobs[job.Type()] = job
	r.logger.Info("job registered",
		logger.String("job", job.Name()),
		logger.String("type", job.Type()))
}

// Start verifies the Redis connection and, for consumers, launches the
// worker pool and the retry mover.
func (r *RedisQueue) Start() error {
	r.mu.Lock()
	if r.isRunning {
		r.mu.Unlock()
		return fmt.Errorf("queue already running")
	}
	r.isRunning = true
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.client.Ping(ctx).Err(); err != nil {
		r.isRunning = false
		return fmt.Errorf("redis ping: %w", err)
	}

	if r.publishOnly {
		r.logger.Info("redis publisher started",
			logger.String("addr", r.client.Options().Addr))
		return nil
	}

	for i := 0; i < r.config.Workers; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}
	r.wg.Add(1)
	go r.retryProcessor()

	r.logger.Info("redis queue started",
		logger.Int("workers", r.config.Workers),
		logger.String("addr", r.client.Options().Addr),
		logger.String("prefix", r.keyPrefix))
	return nil
}

// Stop winds the queue down, waiting for in-flight handlers up to ctx.
func (r *RedisQueue) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.isRunning {
		r.mu.Unlock()
		return nil
	}
	r.isRunning = false
	r.logger.Info("stopping redis queue...")
	r.cancel()

	if !r.publishOnly {
		close(r.stopCh)
	}
	r.mu.Unlock()

	doneCh := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(doneCh)
	}()

	select {
	case <-ctx.Done():
		r.logger.Warn("timeout waiting for queue workers", logger.Error(ctx.Err()))
		return fmt.Errorf("timeout: %w", ctx.Err())
	case <-doneCh:
		r.logger.Info("redis queue stopped gracefully")
		return nil
	}
}

// PublishMessage pushes a message onto the queue (implements QueueService).
func (r *RedisQueue) PublishMessage(ctx context.Context, msgType string, payload interface{}) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.isRunning {
		return fmt.Errorf("queue not running")
	}
	if !r.publishOnly {
		if _, exists := r.jobs[msgType]; !exists {
			return fmt.Errorf("no job registered for type: %s", msgType)
		}
	}

	msg := Message{
		ID:        fmt.Sprintf("%d", time.Now().UnixNano()),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
	}
	msgData, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	if err := r.client.LPush(ctx, r.queueKey(), msgData).Err(); err != nil {
		return fmt.Errorf("lpush: %w", err)
	}
	return nil
}

func (r *RedisQueue) worker(id int) {
	defer r.wg.Done()
	r.logger.Info("queue worker started", logger.Int("worker_id", id))

	for {
		select {
		case <-r.stopCh:
			r.logger.Info("queue worker stopping", logger.Int("worker_id", id))
			return
		case <-r.ctx.Done():
			return
		default:
			r.popAndDispatch()
		}
	}
}

func (r *RedisQueue) popAndDispatch() {
	ctx, cancel := context.WithTimeout(r.ctx, 1*time.Second)
	defer cancel()

	result, err := r.client.BRPop(ctx, 1*time.Second, r.queueKey()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return
		}
		r.logger.Error("brpop error", logger.Error(err))
		time.Sleep(1 * time.Second)
		return
	}
	if len(result) < 2 {
		return
	}

	var msg Message
	if err := json.Unmarshal([]byte(result[1]), &msg); err != nil {
		r.logger.Error("unmarshal message", logger.Error(err))
		return
	}

	job, exists := r.jobs[msg.Type]
	if !exists {
		r.logger.Error("no job found",
			logger.String("type", msg.Type),
			logger.String("id", msg.ID))
		return
	}

	start := time.Now()
	err = job.Handle(r.ctx, normalizePayload(msg.Payload))
	if err == nil {
		return
	}
	if errors.Is(err, context.Canceled) {
		r.logger.Warn("message cancelled",
			logger.String("id", msg.ID),
			logger.String("job", job.Name()),
			logger.Int64("elapsed_ms", time.Since(start).Milliseconds()))
		return
	}
	r.handleFailure(msg, job, err)
}

// normalizePayload converts a decoded-JSON map back to raw JSON so jobs can
// parse it into their own payload type.
func normalizePayload(payload interface{}) interface{} {
	payloadMap, ok := payload.(map[string]interface{})
	if !ok {
		return payload
	}
	jsonBytes, err := json.Marshal(payloadMap)
	if err != nil {
		return payload
	}
	return json.RawMessage(jsonBytes)
}

func (r *RedisQueue) handleFailure(msg Message, job Job, err error) {
	r.logger.Error("message processing error",
		logger.String("id", msg.ID),
		logger.String("job", job.Name()),
		logger.Int("attempt", msg.Attempts+1),
		logger.Error(err))

	if msg.Attempts >= r.config.RetryLimit {
		r.logger.Error("max retries reached",
			logger.String("id", msg.ID),
			logger.String("job", job.Name()))
		r.pushDeadLetter(msg)
		return
	}

	msg.Attempts++
	retryAt := time.Now().Add(r.config.RetryDelay)
	msgData, merr := json.Marshal(msg)
	if merr != nil {
		r.logger.Error("marshal retry", logger.Error(merr))
		return
	}
	zerr := r.client.ZAdd(context.Background(), r.retryKey(), redis.Z{
		Score:  float64(retryAt.Unix()),
		Member: msgData,
	}).Err()
	if zerr != nil {
		r.logger.Error("zadd retry", logger.Error(zerr))
		return
	}
	r.logger.Info("scheduled retry",
		logger.String("id", msg.ID),
		logger.String("job", job.Name()),
		logger.Int("attempt", msg.Attempts),
		logger.String("retry_at", retryAt.Format(time.RFC3339)))
}

func (r *RedisQueue) pushDeadLetter(msg Message) {
	msgData, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("marshal dlq", logger.Error(err))
		return
	}
	if err := r.client.LPush(context.Background(), r.deadLetterKey(), msgData).Err(); err != nil {
		r.logger.Error("lpush dlq", logger.Error(err))
	}
}

// retryProcessor periodically moves due retries back onto the main queue.
func (r *RedisQueue) retryProcessor() {
	defer r.wg.Done()
	r.logger.Info("retry processor started")

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			r.logger.Info("retry processor stopping")
			return
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.moveDueRetries()
		}
	}
}

func (r *RedisQueue) moveDueRetries() {
	due, err := r.client.ZRangeByScoreWithScores(r.ctx, r.retryKey(), &redis.ZRangeBy{
		Min: "0",
		Max: strconv.FormatInt(time.Now().Unix(), 10),
	}).Result()
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		r.logger.Error("fetch retry messages", logger.Error(err))
		return
	}

	for _, z := range due {
		select {
		case <-r.ctx.Done():
			return
		default:
		}

		msgData := z.Member.(string)

		pipe := r.client.TxPipeline()
		pipe.ZRem(r.ctx, r.retryKey(), msgData)
		pipe.LPush(r.ctx, r.queueKey(), msgData)
		if _, err := pipe.Exec(r.ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			r.logger.Error("move retry to queue", logger.Error(err))
		}
	}
}

func (r *RedisQueue) queueKey() string {
	return r.keyPrefix + ":messages"
}

func (r *RedisQueue) retryKey() string {
	return r.keyPrefix + ":retry"
}

func (r *RedisQueue) deadLetterKey() string {
	return r.keyPrefix + ":dlq"
}
