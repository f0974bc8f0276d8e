package indexer

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"time"

	"github.com/samuelharden/xapian/internal/indexer/segment"
)

const segmentGlob = "seg_*.spdx"

// StartFlushLoop writes the memory index out every FlushInterval and once
// more when ctx ends.
func (e *Engine) StartFlushLoop(ctx context.Context) {
	go e.every(ctx, e.cfg.FlushInterval, func() {
		if e.memIndex.Empty() && !e.hasFrozen() {
			return
		}
		if err := e.Flush(); err != nil {
			e.logger.Error("periodic flush failed", "error", err)
		}
	}, func() {
		if err := e.Flush(); err != nil {
			e.logger.Error("final flush failed", "error", err)
		}
	})
}

// StartReloadLoop periodically picks up segments flushed by another
// process sharing the data directory.
func (e *Engine) StartReloadLoop(ctx context.Context, interval time.Duration) {
	go e.every(ctx, interval, func() { e.ReloadSegments() }, nil)
}

func (e *Engine) every(ctx context.Context, interval time.Duration, tick, stop func()) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			tick()
		case <-ctx.Done():
			if stop != nil {
				stop()
			}
			return
		}
	}
}

// ReloadSegments opens segment files that appeared in the data directory
// since the last scan and returns how many were added.
func (e *Engine) ReloadSegments() int {
	n, err := e.discover()
	if err != nil {
		e.logger.Error("segment reload failed", "error", err)
	}
	if n > 0 {
		e.logger.Info("reloaded segments", "new_segments", n)
	}
	return n
}

// discover opens unseen segment files oldest first. Segment names embed
// their creation time, so lexical order is flush order. A file that fails
// to open is skipped and retried on the next scan.
func (e *Engine) discover() (int, error) {
	paths, err := filepath.Glob(filepath.Join(e.cfg.DataDir, segmentGlob))
	if err != nil {
		return 0, fmt.Errorf("listing segments: %w", err)
	}
	slices.Sort(paths)

	e.readerMu.RLock()
	known := make(map[string]bool, len(e.readers))
	for _, r := range e.readers {
		known[filepath.Base(r.Path())] = true
	}
	e.readerMu.RUnlock()

	opened := 0
	for _, path := range paths {
		if known[filepath.Base(path)] {
			continue
		}
		r, err := segment.OpenReader(path)
		if err != nil {
			e.logger.Error("skipping unreadable segment", "segment", path, "error", err)
			continue
		}
		r.DocLengths(e.stats.record)
		e.adopt(r, nil)
		opened++
		e.logger.Debug("segment opened",
			"segment", filepath.Base(path),
			"terms", r.Terms(),
			"bigrams", r.Bigrams(),
			"docs", r.DocCount(),
		)
	}
	return opened, nil
}

func (e *Engine) hasFrozen() bool {
	e.readerMu.RLock()
	defer e.readerMu.RUnlock()
	return len(e.frozen) > 0
}
