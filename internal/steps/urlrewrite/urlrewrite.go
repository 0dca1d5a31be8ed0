// Package urlrewrite migrates legacy core_url_rewrite rows into url_rewrite
// and synthesizes rewrites for CMS pages that never had one.
package urlrewrite

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"dbmigrate/internal/check"
	"dbmigrate/internal/config"
	"dbmigrate/internal/document"
	"dbmigrate/internal/etl"
	"dbmigrate/internal/progress"
	"dbmigrate/internal/step"
	"dbmigrate/internal/storage"
)

// Kind is the registered step kind.
const Kind = "urlrewrite"

var sourceFields = []string{
	"url_rewrite_id",
	"store_id",
	"id_path",
	"request_path",
	"target_path",
	"is_system",
	"options",
	"description",
	"category_id",
	"product_id",
}

var destinationFields = []string{
	"url_rewrite_id",
	"entity_type",
	"entity_id",
	"request_path",
	"target_path",
	"redirect_type",
	"store_id",
	"description",
	"is_autogenerated",
	"metadata",
}

type tables struct {
	source          string
	destination     string
	productCategory string
	cmsPage         string
	cmsPageStore    string
}

func tablesFor(e config.Entity) tables {
	t := tables{
		source:          "core_url_rewrite",
		destination:     "url_rewrite",
		productCategory: "catalog_url_rewrite_product_category",
		cmsPage:         e.Options.String("cms_page_table", "cms_page"),
		cmsPageStore:    e.Options.String("cms_page_store_table", "cms_page_store"),
	}
	if e.Source != "" {
		t.source = e.Source
	}
	if len(e.Destinations) > 0 && e.Destinations[0] != "" {
		t.destination = e.Destinations[0]
	}
	if len(e.Destinations) > 1 && e.Destinations[1] != "" {
		t.productCategory = e.Destinations[1]
	}
	return t
}

// Step is the url rewrite migration for one phase.
type Step struct {
	name     string
	stage    step.Stage
	src      storage.Repository
	dst      storage.Repository
	tables   tables
	upsert   storage.SaveOptions
	progress progress.Reporter
	log      *logrus.Entry
	errors   check.Collector
}

var _ step.Rollbacker = (*Step)(nil)

// New builds the step for one validated stage.
func New(deps step.Deps, e config.Entity, stage step.Stage) (step.Step, error) {
	if deps.Source == nil || deps.Destination == nil {
		return nil, fmt.Errorf("urlrewrite: %s: source and destination are required", e.Name)
	}
	key := e.UpsertKey
	if len(key) == 0 {
		key = []string{"request_path", "store_id"}
	}
	return &Step{
		name:     e.Name,
		stage:    stage,
		src:      deps.Source,
		dst:      deps.Destination,
		tables:   tablesFor(e),
		upsert:   storage.SaveOptions{ConflictKey: key, UpdateColumns: []string{"request_path"}},
		progress: deps.ProgressFor(e.Name, stage.Phase()),
		log:      deps.LoggerFor(e.Name, stage.Phase()),
	}, nil
}

func (s *Step) Name() string { return s.name }

// Perform runs the selected phase.
func (s *Step) Perform(ctx context.Context) (bool, error) {
	return s.stage.Dispatch(ctx, step.Handlers{
		Integrity: s.integrity,
		Data:      s.data,
		Volume:    s.volume,
	})
}

// Rollback has nothing to undo: data clears and rebuilds the tables.
func (s *Step) Rollback(context.Context) (bool, error) { return true, nil }

// Errors returns the messages collected so far.
func (s *Step) Errors() []string { return s.errors.Messages() }

func (s *Step) integrity(ctx context.Context) (bool, error) {
	s.progress.Start(1)
	s.progress.Advance()
	src, err := etl.Integrity(ctx, check.SideSource, s.src, map[string][]string{s.tables.source: sourceFields})
	if err != nil {
		return false, err
	}
	dst, err := etl.Integrity(ctx, check.SideDestination, s.dst, map[string][]string{s.tables.destination: destinationFields})
	if err != nil {
		return false, err
	}
	s.errors.Add(src.Combine(dst))
	s.progress.Finish()
	return step.Conclude(s.name, step.Integrity, &s.errors, s.log), nil
}

func (s *Step) data(ctx context.Context) (bool, error) {
	srcDoc, err := etl.Describe(ctx, s.src, s.tables.source)
	if err != nil {
		return false, err
	}
	dstDoc, err := etl.Describe(ctx, s.dst, s.tables.destination)
	if err != nil {
		return false, err
	}
	linkDoc, err := etl.Describe(ctx, s.dst, s.tables.productCategory)
	if err != nil {
		return false, err
	}
	_, err = etl.Run(ctx, etl.Job{
		Entity:              s.name,
		Source:              s.src,
		Destination:         s.dst,
		SourceDocument:      srcDoc,
		DestinationDocument: dstDoc,
		SideDocuments:       []*document.Document{linkDoc},
		Transformer:         rewrite(s.tables.productCategory),
		PostPass: func(ctx context.Context, w storage.Writer) (int64, error) {
			return s.saveCMSRewrites(ctx, w, s.log)
		},
		Progress: s.progress,
		Logger:   s.log,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Step) volume(ctx context.Context) (bool, error) {
	s.progress.Start(1)
	srcCount, err := s.src.RecordCount(ctx, s.tables.source)
	if err != nil {
		return false, err
	}
	cms, err := s.cmsRewrites(ctx)
	if err != nil {
		return false, err
	}
	dstCount, err := s.dst.RecordCount(ctx, s.tables.destination)
	if err != nil {
		return false, err
	}
	s.errors.Add(check.Count(s.tables.destination, srcCount+int64(len(cms)), dstCount))
	s.progress.Advance()
	s.progress.Finish()
	return step.Conclude(s.name, step.Volume, &s.errors, s.log), nil
}

func init() {
	step.Register(Kind, step.Registration{
		Phases: []step.Phase{step.Integrity, step.Data, step.Volume},
		New:    New,
	})
}
