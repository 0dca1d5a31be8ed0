// Package eav validates migrated EAV attribute metadata: model class
// references must resolve, attribute codes must not change and attribute
// set and group totals must account for the rows the destination shipped
// with.
package eav

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"dbmigrate/internal/check"
	"dbmigrate/internal/config"
	"dbmigrate/internal/etl"
	"dbmigrate/internal/progress"
	"dbmigrate/internal/registry"
	"dbmigrate/internal/step"
	"dbmigrate/internal/storage"
	"dbmigrate/internal/transformer/builtin"
)

// Kind is the registered step kind.
const Kind = "eav"

const (
	attributeTable         = "eav_attribute"
	catalogAttributeTable  = "catalog_eav_attribute"
	customerAttributeTable = "customer_eav_attribute"
	attributeSetTable      = "eav_attribute_set"
	attributeGroupTable    = "eav_attribute_group"
)

// modelFields of eav_attribute name implementation classes.
var modelFields = []string{"attribute_model", "backend_model", "frontend_model", "source_model"}

var sourceStructure = map[string][]string{
	attributeTable:      {"attribute_id", "entity_type_id", "attribute_code"},
	attributeSetTable:   {"attribute_set_id", "entity_type_id", "attribute_set_name"},
	attributeGroupTable: {"attribute_group_id", "attribute_set_id", "attribute_group_name"},
}

var destinationStructure = map[string][]string{
	attributeTable:         append([]string{"attribute_id", "entity_type_id", "attribute_code"}, modelFields...),
	catalogAttributeTable:  {"attribute_id", "frontend_input_renderer"},
	customerAttributeTable: {"attribute_id", "data_model"},
	attributeSetTable:      {"attribute_set_id", "entity_type_id", "attribute_set_name"},
	attributeGroupTable:    {"attribute_group_id", "attribute_set_id", "attribute_group_name"},
}

// snapshotColumns names the id column captured per snapshotted table.
var snapshotColumns = map[string]string{
	attributeSetTable:   "attribute_set_id",
	attributeGroupTable: "attribute_group_id",
}

// Step validates one phase of the EAV entity.
type Step struct {
	name     string
	stage    step.Stage
	src      storage.Repository
	dst      storage.Repository
	models   *registry.Registry
	state    step.SnapshotStore
	justCopy []string
	progress progress.Reporter
	log      *logrus.Entry
	errors   check.Collector
}

// New builds the step for one validated stage.
func New(deps step.Deps, e config.Entity, stage step.Stage) (step.Step, error) {
	switch {
	case deps.Source == nil || deps.Destination == nil:
		return nil, fmt.Errorf("eav: %s: source and destination are required", e.Name)
	case deps.Registry == nil:
		return nil, fmt.Errorf("eav: %s: model registry is required", e.Name)
	}
	justCopy := e.Documents
	if len(justCopy) == 0 && deps.Map != nil {
		justCopy = deps.Map.JustCopyDocuments()
	}
	return &Step{
		name:     e.Name,
		stage:    stage,
		src:      deps.Source,
		dst:      deps.Destination,
		models:   deps.Registry,
		state:    deps.State,
		justCopy: append([]string(nil), justCopy...),
		progress: deps.ProgressFor(e.Name, stage.Phase()),
		log:      deps.LoggerFor(e.Name, stage.Phase()),
	}, nil
}

func (s *Step) Name() string { return s.name }

// Perform runs the selected phase.
func (s *Step) Perform(ctx context.Context) (bool, error) {
	return s.stage.Dispatch(ctx, step.Handlers{
		Integrity: s.integrity,
		Volume:    s.volume,
	})
}

// Errors returns the messages collected so far.
func (s *Step) Errors() []string { return s.errors.Messages() }

func (s *Step) integrity(ctx context.Context) (bool, error) {
	s.progress.Start(2 + len(s.justCopy))
	src, err := etl.Integrity(ctx, check.SideSource, s.src, sourceStructure)
	if err != nil {
		return false, err
	}
	s.progress.Advance()
	dst, err := etl.Integrity(ctx, check.SideDestination, s.dst, destinationStructure)
	if err != nil {
		return false, err
	}
	s.progress.Advance()
	s.errors.Add(src.Combine(dst))
	for _, doc := range s.justCopy {
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

func (s *Step) volume(ctx context.Context) (bool, error) {
	s.progress.Start(3)
	attrs, err := s.validateAttributes(ctx)
	if err != nil {
		return false, err
	}
	s.progress.Advance()
	sets, err := s.validateSetsAndGroups(ctx)
	if err != nil {
		return false, err
	}
	s.progress.Advance()
	copies, err := s.validateJustCopy(ctx)
	if err != nil {
		return false, err
	}
	s.progress.Advance()
	s.progress.Finish()

	s.errors.Add(check.All(attrs, sets, copies))
	return step.Conclude(s.name, step.Volume, &s.errors, s.log), nil
}

// validateAttributes checks model references of every destination
// attribute and that attributes carried over kept their code.
func (s *Step) validateAttributes(ctx context.Context) (check.Result, error) {
	sourceCodes := map[string]string{}
	err := etl.Each(ctx, s.src, attributeTable, func(r storage.Row) error {
		sourceCodes[builtin.Key(r["attribute_id"])] = builtin.Key(r["attribute_code"])
		return nil
	})
	if err != nil {
		return check.Result{}, err
	}

	res := check.OK()
	err = etl.Each(ctx, s.dst, attributeTable, func(r storage.Row) error {
		id := builtin.Key(r["attribute_id"])
		code := builtin.Key(r["attribute_code"])
		if srcCode, ok := sourceCodes[id]; ok && srcCode != code {
			res = res.Combine(check.Failf(attributeTable,
				"Source and Destination attributes mismatch. Attribute id: %s", id))
		}
		for _, f := range modelFields {
			if !s.resolves(r[f]) {
				res = res.Combine(check.Failf(attributeTable,
					"Incorrect value in: %s.%s for attribute_code=%s", attributeTable, f, code))
			}
		}
		return nil
	})
	if err != nil {
		return check.Result{}, err
	}

	err = etl.Each(ctx, s.dst, catalogAttributeTable, func(r storage.Row) error {
		if !s.resolves(r["frontend_input_renderer"]) {
			res = res.Combine(check.Failf(catalogAttributeTable,
				"Incorrect value in: %s.frontend_input_renderer for attribute_id=%s",
				catalogAttributeTable, builtin.Key(r["attribute_id"])))
		}
		return nil
	})
	if err != nil {
		return check.Result{}, err
	}

	err = etl.Each(ctx, s.dst, customerAttributeTable, func(r storage.Row) error {
		if !s.resolves(r["data_model"]) {
			res = res.Combine(check.Failf(customerAttributeTable,
				"Incorrect value: %s.data_model for attribute_id=%s",
				customerAttributeTable, builtin.Key(r["attribute_id"])))
		}
		return nil
	})
	if err != nil {
		return check.Result{}, err
	}
	return res, nil
}

// resolves reports whether a model reference is unset or registered.
func (s *Step) resolves(v any) bool {
	if v == nil {
		return true
	}
	err := s.models.Resolve(builtin.Key(v))
	var unresolved *registry.UnresolvedReferenceError
	if errors.As(err, &unresolved) {
		s.log.WithField("reference", unresolved.Name).Debug("unresolved model reference")
		return false
	}
	return err == nil
}

// validateSetsAndGroups expects every source set and group to have been
// added on top of the destination's initial rows.
func (s *Step) validateSetsAndGroups(ctx context.Context) (check.Result, error) {
	if s.state == nil {
		return check.Result{}, errors.New("eav: state store is required for volume checks")
	}
	res := check.OK()
	for _, table := range []string{attributeSetTable, attributeGroupTable} {
		initial, err := s.state.Snapshot(ctx, s.name, table)
		if err != nil {
			return check.Result{}, fmt.Errorf("eav: initial %s: %w", table, err)
		}
		src, err := s.src.RecordCount(ctx, table)
		if err != nil {
			return check.Result{}, err
		}
		dst, err := s.dst.RecordCount(ctx, table)
		if err != nil {
			return check.Result{}, err
		}
		res = res.Combine(check.Count(table, src+int64(len(initial)), dst))
	}
	return res, nil
}

// validateJustCopy compares row counts of tables copied verbatim.
func (s *Step) validateJustCopy(ctx context.Context) (check.Result, error) {
	src, err := etl.Counts(ctx, s.src, s.justCopy...)
	if err != nil {
		return check.Result{}, err
	}
	dst, err := etl.Counts(ctx, s.dst, s.justCopy...)
	if err != nil {
		return check.Result{}, err
	}
	res := check.OK()
	for i, doc := range s.justCopy {
		res = res.Combine(check.Count(doc, src[i], dst[i]))
	}
	return res, nil
}

// Snapshotter records the destination's own attribute sets and groups
// before any data is migrated.
type Snapshotter struct {
	dst storage.Reader
}

// NewSnapshotter returns the EAV snapshotter.
func NewSnapshotter(deps step.Deps, _ config.Entity) (step.Snapshotter, error) {
	if deps.Destination == nil {
		return nil, errors.New("eav: destination is required")
	}
	return &Snapshotter{dst: deps.Destination}, nil
}

// Snapshot returns the ids present in each snapshotted table.
func (s *Snapshotter) Snapshot(ctx context.Context) (map[string][]string, error) {
	out := make(map[string][]string, len(snapshotColumns))
	for table, col := range snapshotColumns {
		ids := []string{}
		err := etl.Each(ctx, s.dst, table, func(r storage.Row) error {
			ids = append(ids, builtin.Key(r[col]))
			return nil
		})
		if err != nil {
			return nil, err
		}
		out[table] = ids
	}
	return out, nil
}

func init() {
	step.Register(Kind, step.Registration{
		Phases:   []step.Phase{step.Integrity, step.Volume},
		New:      New,
		Snapshot: NewSnapshotter,
	})
}
