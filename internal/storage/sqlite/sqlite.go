// Package sqlitestorage implements the storage.Backend interface on SQLite.
// It wraps the GORM backend; the SQLite-specific concerns are opening the
// database (a file, or a private in-memory DB) and dumping an in-memory DB
// to disk via VACUUM INTO.
package sqlitestorage

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/OCAP2/rigsync/internal/database"
	gormstorage "github.com/OCAP2/rigsync/internal/storage/gorm"
)

// Config holds configuration for the SQLite storage backend.
type Config struct {
	Path          string // empty for an in-memory database
	DumpInterval  time.Duration
	DumpPath      string // target of VACUUM INTO dumps, in-memory only
	FlushInterval time.Duration
}

// Backend wraps the GORM backend for SQLite-specific behavior.
type Backend struct {
	*gormstorage.Backend
	db       *gorm.DB
	cfg      Config
	log      *slog.Logger
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a new SQLite storage backend.
func New(cfg Config, logger *slog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := database.GetSqliteDB(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite DB: %w", err)
	}

	gormBackend := gormstorage.New(gormstorage.Dependencies{
		DB:            db,
		Logger:        logger,
		FlushInterval: cfg.FlushInterval,
	})

	return &Backend{
		Backend:  gormBackend,
		db:       db,
		cfg:      cfg,
		log:      logger.With("component", "storage", "backend", "sqlite"),
		stopChan: make(chan struct{}),
	}, nil
}

// InMemory reports whether the database lives only in memory.
func (b *Backend) InMemory() bool {
	return b.cfg.Path == ""
}

func (b *Backend) dumps() bool {
	return b.InMemory() && b.cfg.DumpPath != ""
}

// Init initializes the embedded GORM backend and starts the dump goroutine.
func (b *Backend) Init() error {
	if err := b.Backend.Init(); err != nil {
		return err
	}

	if b.dumps() && b.cfg.DumpInterval > 0 {
		b.wg.Add(1)
		go b.dumpLoop()
	}

	return nil
}

// Close stops the dump goroutine, closes the embedded GORM backend and, for
// an in-memory database, writes a final dump.
func (b *Backend) Close() error {
	b.stopOnce.Do(func() { close(b.stopChan) })
	b.wg.Wait()

	if err := b.Backend.Close(); err != nil {
		return err
	}

	if b.dumps() {
		if err := b.Dump(); err != nil {
			return err
		}
	}
	return nil
}

// Dump writes a point-in-time snapshot of the database to DumpPath.
func (b *Backend) Dump() error {
	start := time.Now()
	if err := database.DumpMemoryDBToDisk(b.db, b.cfg.DumpPath); err != nil {
		return err
	}
	b.log.Debug("Dumped to disk", "path", b.cfg.DumpPath, "duration", time.Since(start))
	return nil
}

// GetExportedFilePath returns the dump file, if any.
func (b *Backend) GetExportedFilePath() string {
	if b.dumps() {
		return b.cfg.DumpPath
	}
	return b.cfg.Path
}

// dumpLoop periodically dumps the in-memory SQLite database to disk via VACUUM INTO.
// VACUUM INTO creates a point-in-time snapshot, so no pause mechanism is needed.
func (b *Backend) dumpLoop() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.cfg.DumpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			if err := b.Dump(); err != nil {
				b.log.Error("Error dumping to disk", "error", err)
			}
		}
	}
}
