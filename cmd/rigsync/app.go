package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/OCAP2/rigsync/internal/config"
	"github.com/OCAP2/rigsync/internal/logging"
	intOtel "github.com/OCAP2/rigsync/internal/otel"
)

// app holds the process-wide ambient stack shared by every command.
type app struct {
	Start time.Time

	SlogManager *logging.SlogManager
	Logger      *slog.Logger
	Zerolog     zerolog.Logger

	OTelProvider *intOtel.Provider

	LogFilePath string
	logFile     *os.File
}

// newApp loads the configuration and sets up logging and OTel.
func newApp() (*app, error) {
	a := &app{
		Start:       time.Now(),
		SlogManager: logging.NewSlogManager(),
	}

	cfgErr := config.Load(flagConfigDir)
	if cfgErr != nil && !errors.Is(cfgErr, config.ErrNotFound) {
		return nil, cfgErr
	}
	if flagLogLevel != "" {
		config.Set("logLevel", flagLogLevel)
	}
	level := config.GetString("logLevel")

	var logWriter io.Writer
	if logsDir := config.GetString("logsDir"); logsDir != "" {
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			return nil, fmt.Errorf("creating logs directory: %w", err)
		}
		a.LogFilePath = logging.LogFilePath(logsDir, logging.ServiceName, a.Start)
		f, err := os.OpenFile(a.LogFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		a.logFile = f
		logWriter = f
	}

	otelCfg := config.GetOTelConfig()
	provider, err := intOtel.New(intOtel.Config{
		Enabled:      otelCfg.Enabled,
		ServiceName:  otelCfg.ServiceName,
		BatchTimeout: otelCfg.BatchTimeout,
		LogWriter:    logWriter,
		Endpoint:     otelCfg.Endpoint,
		Insecure:     otelCfg.Insecure,
	})
	if err != nil {
		// Keep going without OTel; logging still works.
		fmt.Fprintf(os.Stderr, "Failed to initialize OTel provider: %s\n", err)
		provider, _ = intOtel.New(intOtel.Config{})
	}
	a.OTelProvider = provider

	a.SlogManager.Setup(logWriter, level, provider.LoggerProvider())
	a.Logger = a.SlogManager.Logger()
	a.Zerolog = logging.NewZerolog(logWriter, level)

	if errors.Is(cfgErr, config.ErrNotFound) {
		a.Logger.Warn("Config file not found, using defaults", "error", cfgErr)
	}
	if a.LogFilePath != "" {
		a.Logger.Info("Logging to file", "path", a.LogFilePath)
	}
	return a, nil
}

// withContext makes every subsequent log record carry the attributes from provider.
func (a *app) withContext(provider logging.ContextProvider) {
	a.SlogManager.WithContext(provider)
	a.Logger = a.SlogManager.Logger()
}

// logMetricsSummary logs the totals of every metric collected this session.
func (a *app) logMetricsSummary(ctx context.Context) {
	if !a.OTelProvider.Enabled() {
		return
	}
	rm, err := a.OTelProvider.CollectMetrics(ctx)
	if err != nil {
		a.Logger.Warn("Failed to collect metrics", "error", err)
		return
	}
	for name, total := range intOtel.MetricTotals(rm) {
		a.Logger.Info("Metric total", "metric", name, "value", total)
	}
}

// Close flushes and shuts down OTel and closes the log file.
func (a *app) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a.logMetricsSummary(ctx)
	a.Logger.Info("Shutting down", "uptime", time.Since(a.Start).Round(time.Millisecond))

	if err := a.SlogManager.Flush(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to flush logs: %s\n", err)
	}
	if err := a.OTelProvider.Shutdown(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to shut down OTel provider: %s\n", err)
	}
	if a.logFile != nil {
		_ = a.logFile.Close()
	}
}
