// Package archive spools old ledger events out of the live table into
// compressed files, keeping the hot database small.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/webrender/rphq-bot/internal/infra/storage"
	"github.com/webrender/rphq-bot/internal/platform/logger"
)

// batchSize bounds how many events one pass moves.
const batchSize = 5000

// Archiver moves events older than the retention window into gzip files
// under dir, one file per pass, then deletes them from the live table.
type Archiver struct {
	events    storage.EventStore
	dir       string
	retention time.Duration
	logger    *logger.Logger
}

// NewArchiver creates an archiver. Files land in dir as
// events-<timestamp>.json.gz with one JSON event per line.
func NewArchiver(events storage.EventStore, dir string, retention time.Duration, log *logger.Logger) *Archiver {
	return &Archiver{
		events:    events,
		dir:       dir,
		retention: retention,
		logger:    log,
	}
}

// Run archives on a fixed interval until the context is done.
func (a *Archiver) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("Event archiver stopped.")
			return
		case <-ticker.C:
			n, err := a.ArchiveOnce(ctx, time.Now())
			if err != nil {
				a.logger.Error("Event archive pass failed: %v", err)
				continue
			}
			if n > 0 {
				a.logger.Info("Archived %d ledger events", n)
			}
		}
	}
}

// ArchiveOnce moves one batch of expired events to disk. Events are deleted
// from the live table only after the archive file is fully flushed.
func (a *Archiver) ArchiveOnce(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-a.retention)
	expired, err := a.events.ListEventsBefore(ctx, cutoff, batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired events: %w", err)
	}
	if len(expired) == 0 {
		return 0, nil
	}

	if err := os.MkdirAll(a.dir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create archive directory: %w", err)
	}

	name := filepath.Join(a.dir, "events-"+now.UTC().Format("20060102T150405")+".json.gz")
	if err := a.writeFile(name, expired); err != nil {
		return 0, err
	}

	ids := make([]string, len(expired))
	for i, e := range expired {
		ids[i] = e.ID
	}
	if err := a.events.DeleteEvents(ctx, ids); err != nil {
		return 0, fmt.Errorf("failed to delete archived events: %w", err)
	}

	return len(expired), nil
}

func (a *Archiver) writeFile(name string, events []storage.Event) error {
	f, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer f.Close()

	zw := gzip.NewWriter(f)
	enc := json.NewEncoder(zw)
	for _, e := range events {
		if err := enc.Encode(e); err != nil {
			zw.Close()
			return fmt.Errorf("failed to encode event %s: %w", e.ID, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to flush archive file: %w", err)
	}
	return f.Sync()
}
