package main

import (
	"fmt"
	"log/slog"

	"github.com/rs/zerolog"

	"github.com/OCAP2/rigsync/internal/config"
	"github.com/OCAP2/rigsync/internal/database"
	"github.com/OCAP2/rigsync/internal/storage"
	gormstorage "github.com/OCAP2/rigsync/internal/storage/gorm"
	"github.com/OCAP2/rigsync/internal/storage/memory"
	sqlitestorage "github.com/OCAP2/rigsync/internal/storage/sqlite"
)

// createStorageBackend builds the recording backend named by storageCfg.Type.
// It returns a nil backend for "none".
func createStorageBackend(storageCfg config.StorageConfig, logger *slog.Logger, zlog zerolog.Logger) (storage.Backend, error) {
	switch storageCfg.Type {
	case "none":
		logger.Info("Recording disabled")
		return nil, nil

	case "postgres":
		manager := database.NewManager(zlog)
		if err := manager.Connect(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := manager.Setup(); err != nil {
			return nil, err
		}
		if manager.ShouldSaveLocal {
			manager.SqliteFilePath = storageCfg.SQLite.DumpPath
		}
		logger.Info("Postgres storage backend initialized", "fallback", manager.ShouldSaveLocal)
		return &postgresBackend{
			Backend: gormstorage.New(gormstorage.Dependencies{
				DB:            manager.DB,
				Logger:        logger,
				FlushInterval: storageCfg.FlushInterval,
			}),
			manager: manager,
		}, nil

	case "sqlite":
		backend, err := sqlitestorage.New(sqlitestorage.Config{
			Path:          storageCfg.SQLite.Path,
			DumpInterval:  storageCfg.SQLite.DumpInterval,
			DumpPath:      storageCfg.SQLite.DumpPath,
			FlushInterval: storageCfg.FlushInterval,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite backend: %w", err)
		}
		logger.Info("SQLite storage backend initialized", "inMemory", backend.InMemory())
		return backend, nil

	case "memory", "":
		logger.Info("Memory storage backend initialized", "outputDir", storageCfg.Memory.OutputDir)
		return memory.New(storageCfg.Memory), nil

	default:
		return nil, fmt.Errorf("unknown storage type %q", storageCfg.Type)
	}
}

// postgresBackend is the GORM backend on the database manager's connection.
// When Postgres was unreachable the manager falls back to in-memory SQLite,
// which is dumped to disk on close.
type postgresBackend struct {
	*gormstorage.Backend
	manager *database.Manager
}

func (b *postgresBackend) Close() error {
	if err := b.Backend.Close(); err != nil {
		return err
	}
	if b.manager.ShouldSaveLocal && b.manager.SqliteFilePath != "" {
		return b.manager.DumpMemoryToDisk()
	}
	return nil
}
