package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"dbmigrate/internal/document"
)

// BatchWriter persists one RecordSet per call into a single table and keeps
// running totals across calls. On every successful flush it logs a progress
// line with the instantaneous rows/sec since the previous flush.
type BatchWriter struct {
	w     Writer
	table string
	opts  SaveOptions
	log   *logrus.Entry

	total       int64
	batches     int64
	start       time.Time
	lastFlushTS time.Time
	lastTotal   int64
}

// NewBatchWriter returns a writer for table. log may be nil.
func NewBatchWriter(w Writer, table string, opts SaveOptions, log *logrus.Entry) *BatchWriter {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	now := time.Now()
	return &BatchWriter{
		w:           w,
		table:       table,
		opts:        opts,
		log:         log.WithField("table", table),
		start:       now,
		lastFlushTS: now,
	}
}

// Write saves set as one batch. Empty sets are skipped.
func (b *BatchWriter) Write(ctx context.Context, set *document.RecordSet) (int64, error) {
	if set == nil || set.Len() == 0 {
		return 0, nil
	}
	if set.Document().Name() != b.table {
		return 0, fmt.Errorf("storage: batch for %s written to %s", set.Document().Name(), b.table)
	}
	columns, rows := set.Rows()
	n, err := b.w.SaveBatch(ctx, b.table, columns, rows, b.opts)
	b.total += n
	if err != nil {
		b.log.WithError(err).Errorf("save failed after=%d total=%d", n, b.total)
		return n, err
	}

	b.batches++
	now := time.Now()
	sinceLast := now.Sub(b.lastFlushTS)
	rps := float64(0)
	if sinceLast > 0 {
		rps = float64(b.total-b.lastTotal) / sinceLast.Seconds()
	}
	b.log.Debugf(
		"batch #%d: rps=%.0f inserted=%d total_inserted=%d elapsed=%s since_last=%s",
		b.batches,
		rps,
		n,
		b.total,
		now.Sub(b.start).Truncate(time.Millisecond),
		sinceLast.Truncate(time.Millisecond),
	)
	b.lastFlushTS = now
	b.lastTotal = b.total
	return n, nil
}

// Total returns the rows written so far.
func (b *BatchWriter) Total() int64 { return b.total }

// Batches returns the number of successful flushes.
func (b *BatchWriter) Batches() int64 { return b.batches }
