// Package main wires configuration, storage backends, the state store and
// the step runner together. Backend and step packages are only reached
// through their registries.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/sirupsen/logrus"

	"dbmigrate/internal/config"
	"dbmigrate/internal/logging"
	"dbmigrate/internal/mapping"
	"dbmigrate/internal/metrics"
	"dbmigrate/internal/metrics/datadog"
	"dbmigrate/internal/metrics/prompush"
	"dbmigrate/internal/progress"
	"dbmigrate/internal/registry"
	"dbmigrate/internal/runner"
	"dbmigrate/internal/state"
	"dbmigrate/internal/step"
	"dbmigrate/internal/storage"
)

const defaultStatePath = "dbmigrate-state.db"

// errInvalidConfig is returned when static validation finds errors.
var errInvalidConfig = errors.New("configuration is invalid")

// Function variables used to introduce test seams.
var (
	newRepositoryFn = storage.New
	openStateFn     = state.Open
)

// globalOptions are the persistent flags of the root command.
type globalOptions struct {
	configPath     string
	envFiles       []string
	verbose        bool
	metricsBackend string
	pushgatewayURL string
	statsdAddr     string
}

// loadConfig reads the env files and configuration, applies flag overrides
// and configures logging. Every issue is written to w; errors fail.
func loadConfig(opts globalOptions, w io.Writer) (config.Config, error) {
	if err := config.LoadEnv(opts.envFiles...); err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if opts.metricsBackend != "" {
		cfg.Metrics.Backend = opts.metricsBackend
	}
	if opts.pushgatewayURL != "" {
		cfg.Metrics.PushgatewayURL = opts.pushgatewayURL
	}
	if opts.statsdAddr != "" {
		cfg.Metrics.StatsdAddr = opts.statsdAddr
	}
	if opts.verbose {
		cfg.Log.Level = "debug"
	}
	logging.Setup(cfg.Log)

	issues := append(config.ValidateConfig(cfg), kindIssues(cfg)...)
	for _, iss := range issues {
		fmt.Fprintf(w, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		return cfg, fmt.Errorf("%w: %s", errInvalidConfig, opts.configPath)
	}
	applyEntityPageSizes(&cfg)
	return cfg, nil
}

// kindIssues reports entities whose kind has no registered step.
func kindIssues(cfg config.Config) []config.Issue {
	var out []config.Issue
	for i, e := range cfg.Entities {
		if e.Kind != "" && !step.Registered(e.Kind) {
			out = append(out, config.Issue{
				Severity: config.SeverityError,
				Path:     fmt.Sprintf("entities[%d].kind", i),
				Message:  fmt.Sprintf("unknown step kind %q (known: %v)", e.Kind, step.Kinds()),
			})
		}
	}
	return out
}

// applyEntityPageSizes copies entity page sizes onto the source tables the
// entity names explicitly.
func applyEntityPageSizes(cfg *config.Config) {
	for _, e := range cfg.Entities {
		if e.PageSize <= 0 {
			continue
		}
		if cfg.Source.PageSizes == nil {
			cfg.Source.PageSizes = map[string]int{}
		}
		tables := append([]string{}, e.Documents...)
		if e.Source != "" {
			tables = append(tables, e.Source)
		}
		for _, t := range tables {
			cfg.Source.PageSizes[t] = e.PageSize
		}
	}
}

func storageConfig(d config.Database) storage.Config {
	return storage.Config{
		Kind:      d.Kind,
		DSN:       d.DSN,
		Prefix:    d.Prefix,
		PageSize:  d.PageSize,
		PageSizes: d.PageSizes,
	}
}

// setupMetrics installs the configured metrics backend. Failures fall back
// to the nop backend.
func setupMetrics(m config.MetricsConfig) {
	log := logging.Component("metrics")
	switch m.Backend {
	case "pushgateway":
		url := m.PushgatewayURL
		if url == "" {
			url = os.Getenv("PUSHGATEWAY_URL")
		}
		if url == "" {
			url = "http://localhost:9091"
		}
		b, err := prompush.NewBackend(m.Job, url)
		if err != nil {
			log.WithError(err).Warn("failed to init prom push backend; using nop")
			return
		}
		log.Infof("url=%v backend=%v job_name=%v", url, m.Backend, m.Job)
		metrics.SetBackend(b)
	case "datadog":
		b, err := datadog.NewBackend(datadog.Config{Addr: m.StatsdAddr, Namespace: m.Namespace})
		if err != nil {
			log.WithError(err).Warn("failed to init datadog backend; using nop")
			return
		}
		log.Infof("addr=%v backend=%v", m.StatsdAddr, m.Backend)
		metrics.SetBackend(b)
	case "", "none":
		log.Debugf("disabled (backend=%q)", m.Backend)
	default:
		log.Warnf("unknown backend %q; metrics disabled", m.Backend)
	}
}

func loadRegistry(r config.RegistryConfig) (*registry.Registry, error) {
	reg := registry.New(r.Models...)
	if r.ModelsFile == "" {
		return reg, nil
	}
	f, err := os.Open(r.ModelsFile)
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	defer f.Close()
	fromFile, err := registry.Load(f)
	if err != nil {
		return nil, err
	}
	for _, n := range fromFile.Names() {
		reg.Register(n)
	}
	return reg, nil
}

// app holds the collaborators of one command invocation.
type app struct {
	cfg    config.Config
	src    storage.Repository
	dst    storage.Repository
	state  *state.Store
	runner *runner.Runner
	log    *logrus.Entry
}

// openState opens the state store configured in cfg.
func openState(ctx context.Context, cfg config.Config) (*state.Store, error) {
	path := cfg.State.Path
	if path == "" {
		path = defaultStatePath
	}
	return openStateFn(ctx, path)
}

// newApp connects to both databases and the state store.
func newApp(ctx context.Context, cfg config.Config, parallel int) (*app, error) {
	setupMetrics(cfg.Metrics)
	a := &app{cfg: cfg, log: logging.Component("migrate")}

	reg, err := loadRegistry(cfg.Registry)
	if err != nil {
		return nil, err
	}
	m, err := mapping.New(cfg.Entities)
	if err != nil {
		return nil, err
	}

	a.log.Debugf("connecting to source kind=%s", cfg.Source.Kind)
	if a.src, err = newRepositoryFn(ctx, storageConfig(cfg.Source)); err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	a.log.Debugf("connecting to destination kind=%s", cfg.Destination.Kind)
	if a.dst, err = newRepositoryFn(ctx, storageConfig(cfg.Destination)); err != nil {
		a.Close()
		return nil, fmt.Errorf("destination: %w", err)
	}
	if a.state, err = openState(ctx, cfg); err != nil {
		a.Close()
		return nil, err
	}

	if parallel <= 0 {
		parallel = cfg.Runtime.Parallel
	}
	if parallel <= 0 {
		parallel = runtime.NumCPU()
	}
	a.runner = &runner.Runner{
		Map: m,
		Deps: step.Deps{
			Source:      a.src,
			Destination: a.dst,
			Map:         m,
			Registry:    reg,
			State:       a.state,
			Progress: func(entity string, phase step.Phase) progress.Reporter {
				return progress.NewLog(logging.Step(entity, phase.String()))
			},
		},
		State:    a.state,
		Parallel: parallel,
		Logger:   logging.Component("runner"),
	}
	return a, nil
}

// Close releases every opened collaborator and flushes metrics.
func (a *app) Close() {
	if a.state != nil {
		if err := a.state.Close(); err != nil {
			a.log.WithError(err).Warn("close state")
		}
	}
	if a.dst != nil {
		a.dst.Close()
	}
	if a.src != nil {
		a.src.Close()
	}
	if err := metrics.Flush(); err != nil {
		a.log.WithError(err).Warn("metrics flush")
	}
}
