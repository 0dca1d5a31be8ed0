// Package etl moves one source table into one destination table page by
// page, running every row through a transformer.
package etl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"dbmigrate/internal/document"
	"dbmigrate/internal/logging"
	"dbmigrate/internal/metrics"
	"dbmigrate/internal/progress"
	"dbmigrate/internal/storage"
	"dbmigrate/internal/transformer"
)

// PostPass runs after the last page. It returns the number of rows it
// wrote.
type PostPass func(ctx context.Context, dst storage.Writer) (int64, error)

// Job describes one paged copy.
type Job struct {
	// Entity labels logs and metrics.
	Entity string

	Source      storage.Reader
	Destination storage.Writer

	SourceDocument      *document.Document
	DestinationDocument *document.Document
	// SideDocuments receive records emitted through transformer.Side.
	SideDocuments []*document.Document

	Transformer transformer.Transformer
	// SaveOptions apply to destination document writes. Side documents are
	// always plain inserts.
	SaveOptions storage.SaveOptions

	PostPass PostPass
	Progress progress.Reporter
	Logger   *logrus.Entry
}

// Stats summarizes a finished job.
type Stats struct {
	Pages       int
	Read        int64
	Written     int64
	Side        map[string]int64
	Synthesized int64
	Elapsed     time.Duration
}

func (j *Job) validate() error {
	switch {
	case j.Source == nil || j.Destination == nil:
		return errors.New("etl: source and destination are required")
	case j.SourceDocument == nil || j.DestinationDocument == nil:
		return errors.New("etl: source and destination documents are required")
	case j.Transformer == nil:
		return errors.New("etl: transformer is required")
	}
	return nil
}

// Run clears the destination and side tables, streams every source page
// through the transformer, writes one batch per table per page and then
// runs the post-pass. A transformer touching an undeclared field aborts the
// job with a *document.FieldError.
func Run(ctx context.Context, job Job) (stats Stats, err error) {
	if err := job.validate(); err != nil {
		return Stats{}, err
	}
	log := job.Logger
	if log == nil {
		log = logging.Component("etl")
	}
	log = log.WithField("source", job.SourceDocument.Name())
	prog := job.Progress
	if prog == nil {
		prog = progress.Nop{}
	}
	defer func() {
		if r := recover(); r != nil {
			fe, ok := r.(*document.FieldError)
			if !ok {
				panic(r)
			}
			err = fmt.Errorf("etl: %s: %w", job.Entity, fe)
		}
	}()

	start := time.Now()
	srcName := job.SourceDocument.Name()
	dstName := job.DestinationDocument.Name()
	side := transformer.NewSide(job.SideDocuments...)

	for _, name := range append([]string{dstName}, docNames(side.Documents())...) {
		if err := job.Destination.Clear(ctx, name); err != nil {
			return Stats{}, err
		}
	}

	count, err := job.Source.RecordCount(ctx, srcName)
	if err != nil {
		return Stats{}, err
	}
	prog.Start(storage.PageCount(count, job.Source.PageSize(srcName)))

	main := storage.NewBatchWriter(job.Destination, dstName, job.SaveOptions, log)
	sideWriters := make(map[string]*storage.BatchWriter, len(job.SideDocuments))
	for _, d := range side.Documents() {
		sideWriters[d.Name()] = storage.NewBatchWriter(job.Destination, d.Name(), storage.SaveOptions{}, log)
	}

	stats.Side = make(map[string]int64, len(sideWriters))
	for index := 0; ; index++ {
		page, err := job.Source.Page(ctx, srcName, index)
		if err != nil {
			return stats, fmt.Errorf("etl: read %s page %d: %w", srcName, index, err)
		}
		if len(page) == 0 {
			break
		}
		stats.Pages++
		stats.Read += int64(len(page))

		out := document.NewRecordSet(job.DestinationDocument)
		side.Reset()
		for _, row := range page {
			src, err := document.NewRecordFrom(job.SourceDocument, row)
			if err != nil {
				return stats, fmt.Errorf("etl: %s page %d: %w", srcName, index, err)
			}
			dst := document.NewRecord(job.DestinationDocument)
			if err := job.Transformer.Transform(src, dst, side); err != nil {
				return stats, fmt.Errorf("etl: transform %s: %w", srcName, err)
			}
			if err := out.Add(dst); err != nil {
				return stats, err
			}
		}

		prog.Advance()
		n, err := main.Write(ctx, out)
		stats.Written += n
		if err != nil {
			return stats, err
		}
		metrics.RecordRows(job.Entity, dstName, n)
		for _, set := range side.Sets() {
			name := set.Document().Name()
			n, err := sideWriters[name].Write(ctx, set)
			stats.Side[name] += n
			if err != nil {
				return stats, err
			}
			metrics.RecordRows(job.Entity, name, n)
		}
	}

	batches := main.Batches()
	for _, w := range sideWriters {
		batches += w.Batches()
	}
	metrics.RecordBatches(job.Entity, batches)

	if job.PostPass != nil {
		n, err := job.PostPass(ctx, job.Destination)
		stats.Synthesized = n
		if err != nil {
			return stats, fmt.Errorf("etl: post-pass for %s: %w", dstName, err)
		}
		metrics.RecordRows(job.Entity, dstName, n)
	}
	prog.Finish()

	stats.Elapsed = time.Since(start)
	log.WithFields(logrus.Fields{
		"pages":       stats.Pages,
		"read":        stats.Read,
		"written":     stats.Written,
		"synthesized": stats.Synthesized,
	}).Infof("copied %s -> %s in %s", srcName, dstName, stats.Elapsed.Truncate(time.Millisecond))
	return stats, nil
}

func docNames(docs []*document.Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.Name()
	}
	return out
}
