// Package gormstorage implements the storage.Backend interface using GORM
// with internal queues and a background DB writer goroutine. The dialect
// (Postgres or SQLite) is decided by whoever opens the *gorm.DB.
package gormstorage

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"gorm.io/gorm"

	"github.com/OCAP2/rigsync/internal/database"
	"github.com/OCAP2/rigsync/internal/model"
	"github.com/OCAP2/rigsync/internal/model/convert"
	"github.com/OCAP2/rigsync/internal/queue"
	"github.com/OCAP2/rigsync/pkg/core"
)

const (
	defaultFlushInterval = 2 * time.Second
	defaultBatchSize     = 1000
)

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB            *gorm.DB // nil keeps records queued, for tests
	Logger        *slog.Logger
	FlushInterval time.Duration
	BatchSize     int
}

// queues holds all the write queues for batch DB insertion.
type queues struct {
	Lifecycle   *queue.Queue[model.LifecycleEvent]
	Poses       *queue.Queue[model.PoseSample]
	Performance *queue.Queue[model.FramePerformance]
}

func newQueues() *queues {
	return &queues{
		Lifecycle:   queue.New[model.LifecycleEvent](),
		Poses:       queue.New[model.PoseSample](),
		Performance: queue.New[model.FramePerformance](),
	}
}

// Backend implements storage.Backend with queue-based batch writes.
type Backend struct {
	deps   Dependencies
	logger *slog.Logger
	queues *queues

	sessionID atomic.Uint64
	lastFrame atomic.Uint64
	lastWrite atomic.Int64 // nanoseconds of the last flush

	flushMu  sync.Mutex
	stopChan chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = defaultFlushInterval
	}
	if deps.BatchSize <= 0 {
		deps.BatchSize = defaultBatchSize
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		deps:   deps,
		logger: logger.With("component", "storage", "backend", "gorm"),
	}
}

// Init creates internal queues, runs schema migration, and starts the DB writer goroutine.
func (b *Backend) Init() error {
	b.queues = newQueues()
	b.stopChan = make(chan struct{})
	b.done = make(chan struct{})

	if b.deps.DB == nil {
		b.logger.Warn("No database configured, records stay queued")
		close(b.done)
		return nil
	}

	b.logger.Info("Migrating schema", "dialect", b.deps.DB.Dialector.Name())
	if err := database.Migrate(b.deps.DB); err != nil {
		return fmt.Errorf("failed to setup DB: %w", err)
	}

	go b.writerLoop()
	return nil
}

// Close stops the DB writer goroutine and writes whatever is still queued.
func (b *Backend) Close() error {
	if b.stopChan == nil {
		return nil
	}
	b.stopOnce.Do(func() { close(b.stopChan) })
	<-b.done
	return b.Flush()
}

// StartSession inserts the session row synchronously so its ID can stamp
// every queued record.
func (b *Backend) StartSession(s *core.Session) error {
	if b.deps.DB == nil {
		return nil
	}

	row := convert.CoreToSession(*s)
	row.ID = 0
	if err := b.deps.DB.Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	s.ID = row.ID
	b.sessionID.Store(uint64(row.ID))
	b.lastFrame.Store(0)
	b.logger.Info("Session started", "sessionId", row.ID, "name", row.Name)
	return nil
}

// EndSession flushes the queues and stamps the session's end time and frame count.
func (b *Backend) EndSession() error {
	if err := b.Flush(); err != nil {
		return err
	}
	if b.deps.DB == nil {
		return nil
	}

	id := uint(b.sessionID.Load())
	if id == 0 {
		return errors.New("no session started")
	}

	now := time.Now()
	err := b.deps.DB.Model(&model.Session{}).Where("id = ?", id).Updates(map[string]any{
		"end_time": now,
		"frames":   b.lastFrame.Load(),
	}).Error
	if err != nil {
		return fmt.Errorf("failed to finalize session %d: %w", id, err)
	}
	return nil
}

func (b *Backend) seeFrame(frame uint64) {
	for {
		cur := b.lastFrame.Load()
		if frame <= cur || b.lastFrame.CompareAndSwap(cur, frame) {
			return
		}
	}
}

// RecordLifecycle converts and queues a lifecycle event.
func (b *Backend) RecordLifecycle(e *core.LifecycleEvent) error {
	b.seeFrame(e.Frame)
	b.queues.Lifecycle.Push(convert.CoreToLifecycleEvent(*e))
	return nil
}

// RecordPose converts and queues a pose sample.
func (b *Backend) RecordPose(s *core.PoseSample) error {
	row, err := convert.CoreToPoseSample(*s)
	if err != nil {
		return err
	}
	b.seeFrame(s.Frame)
	b.queues.Poses.Push(row)
	return nil
}

// RecordPerformance converts and queues a frame's metrics.
func (b *Backend) RecordPerformance(p *core.FramePerformance) error {
	b.seeFrame(p.Frame)
	b.queues.Performance.Push(convert.CoreToFramePerformance(*p))
	return nil
}

// GetLastDBWriteDuration returns how long the last flush took.
func (b *Backend) GetLastDBWriteDuration() time.Duration {
	return time.Duration(b.lastWrite.Load())
}

// Pending returns the number of records waiting to be written.
func (b *Backend) Pending() int {
	if b.queues == nil {
		return 0
	}
	return b.queues.Lifecycle.Len() + b.queues.Poses.Len() + b.queues.Performance.Len()
}

// Flush drains every queue into the database. Failed batches are pushed
// back and reported.
func (b *Backend) Flush() error {
	if b.deps.DB == nil || b.queues == nil {
		return nil
	}

	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	start := time.Now()
	sessionID := uint(b.sessionID.Load())

	err := errors.Join(
		writeQueue(b.deps.DB, b.queues.Lifecycle, b.deps.BatchSize, func(items []model.LifecycleEvent) {
			for i := range items {
				items[i].SessionID = sessionID
			}
		}),
		writeQueue(b.deps.DB, b.queues.Poses, b.deps.BatchSize, func(items []model.PoseSample) {
			for i := range items {
				items[i].SessionID = sessionID
			}
		}),
		writeQueue(b.deps.DB, b.queues.Performance, b.deps.BatchSize, func(items []model.FramePerformance) {
			for i := range items {
				items[i].SessionID = sessionID
			}
		}),
	)

	b.lastWrite.Store(int64(time.Since(start)))
	return err
}

// writeQueue writes all items from a queue to the database in a transaction.
// On failure the items go back to the head of the queue for the next flush.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], batchSize int, stamp func([]T)) error {
	if q.Empty() {
		return nil
	}

	items := q.GetAndEmpty()
	if stamp != nil {
		stamp(items)
	}
	err := db.Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(&items, batchSize).Error
	})
	if err != nil {
		q.Requeue(items...)
		return fmt.Errorf("writing %d %T rows: %w", len(items), items[0], err)
	}
	return nil
}

// writerLoop periodically drains the queues into the DB.
func (b *Backend) writerLoop() {
	defer close(b.done)

	ticker := time.NewTicker(b.deps.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			if err := b.Flush(); err != nil {
				b.logger.Error("DB write failed", "error", err, "pending", b.Pending())
			} else {
				b.logger.Debug("DB write complete", "duration", b.GetLastDBWriteDuration())
			}
		}
	}
}
