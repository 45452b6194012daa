// Package processing implements C5, the derivation pipeline: a
// mime-dispatched state machine (Queued→Probing→Deriving→Indexing→
// Done|Failed) driven by a Redis-resident work queue, grounded on the
// teacher's LPush/RPop document worker.
package processing

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/docboxhq/docbox/internal/pkg/logger"
	pkgredis "github.com/docboxhq/docbox/internal/pkg/redis"
)

const (
	deriveQueueKey   = "queue:docbox:derive"
	processingSetKey = "set:docbox:deriving"
	maxRetries       = 3

	// fileLockPrefix namespaces the per-file logical lock from spec.md §5:
	// all derivations of the same file are linearized through it.
	fileLockPrefix   = "lock:docbox:file:"
	fileLockTTL      = 5 * time.Minute
	fileLockRetries  = 5
	fileLockRetryGap = 200 * time.Millisecond
)

// Stage names the derivation state machine's states, per spec.md §4.3.
type Stage string

const (
	StageQueued   Stage = "Queued"
	StageProbing  Stage = "Probing"
	StageDeriving Stage = "Deriving"
	StageIndexing Stage = "Indexing"
	StageDone     Stage = "Done"
	StageFailed   Stage = "Failed"
)

// Task is one unit of derivation work: process file FileID belonging to
// tenant TenantID, using the tenant's own database/bucket/index (resolved
// by the caller via internal/tenant before this task is handled).
type Task struct {
	TenantID   uuid.UUID `json:"tenant_id"`
	FileID     uuid.UUID `json:"file_id"`
	RetryCount int       `json:"retry_count"`
}

// Handler processes one Task end to end (probe mime, derive artifacts,
// index) and reports the terminal stage. The concrete implementation is
// DerivationHandler (derivation_handler.go), which cmd/server wires into
// the queue; Queue itself only sees this interface.
type Handler interface {
	Handle(ctx context.Context, task Task) (Stage, string, error)
}

// Queue is the Redis-backed derivation work queue.
type Queue struct {
	redis       *pkgredis.Client
	handler     Handler
	log         *logger.Logger
	workerCount int

	wg      sync.WaitGroup
	stopCh  chan struct{}
	mu      sync.Mutex
	running bool
}

// NewQueue builds a derivation Queue with workerCount pollers, mirroring
// the teacher's fixed-size worker pool over a single Redis list.
func NewQueue(rc *pkgredis.Client, handler Handler, log *logger.Logger, workerCount int) *Queue {
	return &Queue{
		redis:       rc,
		handler:     handler,
		log:         log,
		workerCount: workerCount,
		stopCh:      make(chan struct{}),
	}
}

// Enqueue pushes a new derivation task for fileID onto the queue.
func (q *Queue) Enqueue(ctx context.Context, tenantID, fileID uuid.UUID) error {
	task := Task{TenantID: tenantID, FileID: fileID}
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal derivation task: %w", err)
	}
	if _, err := q.redis.LPush(ctx, deriveQueueKey, string(body)); err != nil {
		return fmt.Errorf("enqueue derivation task: %w", err)
	}
	return nil
}

// Start spawns workerCount poll loops.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running {
		return fmt.Errorf("processing queue already running")
	}
	q.running = true

	for i := 0; i < q.workerCount; i++ {
		q.wg.Add(1)
		go q.pollLoop(ctx, i)
	}
	return nil
}

// Stop signals every poll loop to exit and waits for them to drain.
func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.running {
		return
	}
	close(q.stopCh)
	q.wg.Wait()
	q.running = false
}

func (q *Queue) pollLoop(ctx context.Context, workerID int) {
	defer q.wg.Done()

	log := q.log.With(zap.Int("worker_id", workerID))
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-q.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			body, err := q.redis.RPop(ctx, deriveQueueKey)
			if err != nil || body == "" {
				continue
			}

			var task Task
			if err := json.Unmarshal([]byte(body), &task); err != nil {
				log.Error("failed to decode derivation task", zap.Error(err))
				continue
			}
			q.process(ctx, task, log)
		}
	}
}

func (q *Queue) process(ctx context.Context, task Task, log *logger.Logger) {
	dedupeKey := task.FileID.String()
	if _, err := q.redis.SAdd(ctx, processingSetKey, dedupeKey); err != nil {
		log.Warn("failed to mark file as deriving", zap.Error(err))
	}
	defer func() { _, _ = q.redis.SRem(ctx, processingSetKey, dedupeKey) }()

	lockKey := fileLockPrefix + task.FileID.String()
	token, lockErr := q.redis.TryLock(ctx, lockKey, fileLockTTL, fileLockRetries, fileLockRetryGap)
	if lockErr != nil {
		// Another worker is already deriving this file; requeue rather than
		// running two derivations of the same file concurrently.
		log.Warn("file locked by another derivation, requeueing", zap.String("file_id", task.FileID.String()), zap.Error(lockErr))
		body, _ := json.Marshal(task)
		_, _ = q.redis.LPush(ctx, deriveQueueKey, string(body))
		return
	}
	defer func() {
		if err := q.redis.Unlock(ctx, lockKey, token); err != nil {
			log.Warn("failed to release file lock", zap.String("file_id", task.FileID.String()), zap.Error(err))
		}
	}()

	stage, reason, err := q.handler.Handle(ctx, task)
	if err != nil {
		log.Error("derivation failed",
			zap.String("file_id", task.FileID.String()),
			zap.Int("retry_count", task.RetryCount),
			zap.String("stage", string(stage)),
			zap.String("reason", reason),
			zap.Error(err),
		)
		if task.RetryCount < maxRetries {
			task.RetryCount++
			body, _ := json.Marshal(task)
			_, _ = q.redis.LPush(ctx, deriveQueueKey, string(body))
			return
		}
		log.Error("derivation exhausted retries", zap.String("file_id", task.FileID.String()))
		return
	}

	log.Info("derivation complete", zap.String("file_id", task.FileID.String()), zap.String("stage", string(stage)))
}

// QueueDepth reports the number of tasks waiting to be picked up.
func (q *Queue) QueueDepth(ctx context.Context) (int64, error) {
	return q.redis.LLen(ctx, deriveQueueKey)
}

// InFlight reports how many files are mid-derivation right now.
func (q *Queue) InFlight(ctx context.Context) (int64, error) {
	return q.redis.SCard(ctx, processingSetKey)
}
