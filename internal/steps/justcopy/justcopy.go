// Package justcopy copies tables whose layout is identical on both sides.
package justcopy

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"dbmigrate/internal/check"
	"dbmigrate/internal/config"
	"dbmigrate/internal/etl"
	"dbmigrate/internal/progress"
	"dbmigrate/internal/step"
	"dbmigrate/internal/storage"
	"dbmigrate/internal/transformer"
)

// Kind is the registered step kind.
const Kind = "justcopy"

// Step copies the documents of one entity verbatim.
type Step struct {
	name      string
	stage     step.Stage
	src       storage.Repository
	dst       storage.Repository
	documents []string
	progress  progress.Reporter
	log       *logrus.Entry
	errors    check.Collector
}

var _ step.Rollbacker = (*Step)(nil)

// New builds the step for one validated stage.
func New(deps step.Deps, e config.Entity, stage step.Stage) (step.Step, error) {
	if deps.Source == nil || deps.Destination == nil {
		return nil, fmt.Errorf("justcopy: %s: source and destination are required", e.Name)
	}
	docs := e.Documents
	if len(docs) == 0 && e.Source != "" {
		docs = []string{e.Source}
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("justcopy: %s: no documents", e.Name)
	}
	return &Step{
		name:      e.Name,
		stage:     stage,
		src:       deps.Source,
		dst:       deps.Destination,
		documents: append([]string(nil), docs...),
		progress:  deps.ProgressFor(e.Name, stage.Phase()),
		log:       deps.LoggerFor(e.Name, stage.Phase()),
	}, nil
}

func (s *Step) Name() string { return s.name }

func (s *Step) Perform(ctx context.Context) (bool, error) {
	return s.stage.Dispatch(ctx, step.Handlers{
		Integrity: s.integrity,
		Data:      s.data,
		Volume:    s.volume,
	})
}

// Rollback is a no-op; data replaces the tables wholesale.
func (s *Step) Rollback(context.Context) (bool, error) { return true, nil }

// Errors returns the messages collected so far.
func (s *Step) Errors() []string { return s.errors.Messages() }

func (s *Step) integrity(ctx context.Context) (bool, error) {
	s.progress.Start(len(s.documents))
	for _, doc := range s.documents {
		res, err := etl.Mirror(ctx, s.src, s.dst, doc)
		if err != nil {
			return false, err
		}
		s.errors.Add(res)
		s.progress.Advance()
	}
	s.progress.Finish()
	return step.Conclude(s.name, step.Integrity, &s.errors, s.log), nil
}

func (s *Step) data(ctx context.Context) (bool, error) {
	counts, err := etl.Counts(ctx, s.src, s.documents...)
	if err != nil {
		return false, err
	}
	pages := 0
	for i, doc := range s.documents {
		pages += storage.PageCount(counts[i], s.src.PageSize(doc))
	}
	s.progress.Start(pages)
	for _, doc := range s.documents {
		srcDoc, err := etl.Describe(ctx, s.src, doc)
		if err != nil {
			return false, err
		}
		dstDoc, err := etl.Describe(ctx, s.dst, doc)
		if err != nil {
			return false, err
		}
		_, err = etl.Run(ctx, etl.Job{
			Entity:              s.name,
			Source:              s.src,
			Destination:         s.dst,
			SourceDocument:      srcDoc,
			DestinationDocument: dstDoc,
			Transformer:         transformer.Identity,
			Progress:            progress.AdvanceOnly(s.progress),
			Logger:              s.log,
		})
		if err != nil {
			return false, err
		}
	}
	s.progress.Finish()
	return true, nil
}

func (s *Step) volume(ctx context.Context) (bool, error) {
	s.progress.Start(len(s.documents))
	src, err := etl.Counts(ctx, s.src, s.documents...)
	if err != nil {
		return false, err
	}
	dst, err := etl.Counts(ctx, s.dst, s.documents...)
	if err != nil {
		return false, err
	}
	for i, doc := range s.documents {
		s.errors.Add(check.Count(doc, src[i], dst[i]))
		s.progress.Advance()
	}
	s.progress.Finish()
	return step.Conclude(s.name, step.Volume, &s.errors, s.log), nil
}

func init() {
	step.Register(Kind, step.Registration{
		Phases: []step.Phase{step.Integrity, step.Data, step.Volume},
		New:    New,
	})
}
