package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/johndauphine/retail-etl/internal/config"
	"github.com/johndauphine/retail-etl/internal/logging"
	"github.com/shirou/gopsutil/v3/disk"
	"golang.org/x/sync/errgroup"
)

// HealthCheckResult reports source connectivity and local resources.
type HealthCheckResult struct {
	Timestamp         string `json:"timestamp"`
	SourceType        string `json:"source_type"`
	SourceConnected   bool   `json:"source_connected"`
	SourceError       string `json:"source_error,omitempty"`
	SourceLatencyMs   int64  `json:"source_latency_ms"`
	SourceTableCount  int    `json:"source_table_count"`
	QuoteStyle        string `json:"quote_style,omitempty"`
	FreeDiskMB        int64  `json:"free_disk_mb"`
	AvailableMemoryMB int64  `json:"available_memory_mb"`
	Healthy           bool   `json:"healthy"`
}

// HealthCheck connects to the source and lists its tables.
func (o *Orchestrator) HealthCheck(ctx context.Context) (*HealthCheckResult, error) {
	result := &HealthCheckResult{
		Timestamp:         time.Now().Format(time.RFC3339),
		SourceType:        o.config.Source.Type,
		AvailableMemoryMB: config.AvailableMemoryMB(),
		FreeDiskMB:        -1,
	}

	const checkTimeout = 30 * time.Second
	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	// The source probe and the disk probe are independent.
	var g errgroup.Group
	g.Go(func() error {
		start := time.Now()
		defer func() { result.SourceLatencyMs = time.Since(start).Milliseconds() }()

		src, err := o.Source(checkCtx)
		if err != nil {
			result.SourceError = err.Error()
			return nil
		}
		result.SourceConnected = true
		result.QuoteStyle = src.QuoteStyle().String()
		tables, err := src.Tables(checkCtx)
		if err != nil {
			result.SourceError = err.Error()
			return nil
		}
		result.SourceTableCount = len(tables)
		return nil
	})
	g.Go(func() error {
		if free, err := freeDiskMB(existingDir(o.config.Export.OutputDir)); err == nil {
			result.FreeDiskMB = free
		}
		return nil
	})
	g.Wait()

	result.Healthy = result.SourceConnected && result.SourceError == ""
	return result, nil
}

// preflight fails when the output directory has less than minFreeMB free.
// A negative threshold disables the check.
func preflight(dir string, minFreeMB int64) error {
	logging.Debug("Available memory: %d MB", config.AvailableMemoryMB())
	if minFreeMB < 0 {
		return nil
	}
	free, err := freeDiskMB(dir)
	if err != nil {
		logging.Warn("Cannot determine free disk space for %s: %v", dir, err)
		return nil
	}
	if free < minFreeMB {
		return fmt.Errorf("only %d MB free in %s, need at least %d MB (export.min_free_disk_mb)", free, dir, minFreeMB)
	}
	logging.Debug("Free disk space in %s: %d MB", dir, free)
	return nil
}

func freeDiskMB(dir string) (int64, error) {
	usage, err := disk.Usage(dir)
	if err != nil {
		return 0, err
	}
	return int64(usage.Free / (1024 * 1024)), nil
}

// existingDir walks up from dir to the nearest directory that exists.
func existingDir(dir string) string {
	for {
		if fi, err := os.Stat(dir); err == nil && fi.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return dir
		}
		dir = parent
	}
}
