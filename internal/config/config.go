// Package config defines the configuration model for a migration run: the
// two database endpoints, the Entity Map and the ambient settings.
//
// Files are YAML; JSON is a subset of YAML and decodes the same way.
//
// Example (trimmed):
//
//	source:      { kind: mysql, dsn: "${SOURCE_DSN}", prefix: "m1_", page_size: 1000 }
//	destination: { kind: mysql, dsn: "${DEST_DSN}" }
//	runtime:     { parallel: 4 }
//	entities:
//	  - name: url_rewrite
//	    kind: urlrewrite
//	    upsert_key: [request_path, store_id]
//	  - name: eav
//	    kind: eav
//	    documents: [eav_attribute_label, eav_entity_type]
package config

import (
	"bytes"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"dbmigrate/internal/logging"
)

// Config is the top-level object decoded from a migration file.
type Config struct {
	Source      Database       `yaml:"source" json:"source"`
	Destination Database       `yaml:"destination" json:"destination"`
	Runtime     RuntimeConfig  `yaml:"runtime" json:"runtime"`
	Log         logging.Config `yaml:"log" json:"log"`
	Metrics     MetricsConfig  `yaml:"metrics" json:"metrics"`
	State       StateConfig    `yaml:"state" json:"state"`
	Registry    RegistryConfig `yaml:"registry" json:"registry"`

	// Entities is the Entity Map: exactly one entry per migrated entity.
	Entities []Entity `yaml:"entities" json:"entities"`
}

// Database configures one side of the migration.
type Database struct {
	// Kind selects the storage backend: mysql, postgres, mssql or sqlite.
	Kind string `yaml:"kind" json:"kind"`
	DSN  string `yaml:"dsn" json:"dsn"`

	// Prefix is prepended to every table name on this side.
	Prefix string `yaml:"prefix" json:"prefix"`

	// PageSize is the default number of rows per page when reading.
	PageSize int `yaml:"page_size" json:"page_size"`

	// PageSizes overrides PageSize per (unprefixed) table.
	PageSizes map[string]int `yaml:"page_sizes" json:"page_sizes"`
}

// RuntimeConfig controls concurrency across entities.
type RuntimeConfig struct {
	// Parallel bounds how many entities run at once. 0 means one per CPU.
	Parallel int `yaml:"parallel" json:"parallel"`
}

// MetricsConfig selects the metrics backend.
type MetricsConfig struct {
	Backend        string `yaml:"backend" json:"backend"` // "", "none", "pushgateway", "datadog"
	PushgatewayURL string `yaml:"pushgateway_url" json:"pushgateway_url"`
	StatsdAddr     string `yaml:"statsd_addr" json:"statsd_addr"`
	Namespace      string `yaml:"namespace" json:"namespace"`
	Job            string `yaml:"job" json:"job"`
}

// StateConfig locates the run-state database.
type StateConfig struct {
	Path string `yaml:"path" json:"path"`
}

// RegistryConfig lists model implementations known to the destination.
type RegistryConfig struct {
	Models     []string `yaml:"models" json:"models"`
	ModelsFile string   `yaml:"models_file" json:"models_file"`
}

// Entity is the migration policy for one logical entity.
type Entity struct {
	// Name identifies the entity on the command line and in state.
	Name string `yaml:"name" json:"name"`

	// Kind selects the registered step implementation.
	Kind string `yaml:"kind" json:"kind"`

	// Source and Destinations override the step's default document names.
	Source       string   `yaml:"source" json:"source"`
	Destinations []string `yaml:"destinations" json:"destinations"`

	// Documents lists tables copied verbatim in just-copy mode.
	Documents []string `yaml:"documents" json:"documents"`
	JustCopy  bool     `yaml:"just_copy" json:"just_copy"`

	// UpsertKey is the natural key used when saving synthesized rows.
	UpsertKey []string `yaml:"upsert_key" json:"upsert_key"`

	// PageSize overrides the source page size for this entity's tables.
	PageSize int `yaml:"page_size" json:"page_size"`

	// Options is interpreted by the step implementation.
	Options Options `yaml:"options" json:"options"`
}

// Load reads, expands and decodes the file at path. ${VAR} references in
// DSNs, prefixes and paths are expanded from the environment.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(b)
}

// Parse decodes a configuration document. Unknown keys are rejected.
func Parse(b []byte) (Config, error) {
	var c Config
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	c.expand()
	return c, nil
}

func (c *Config) expand() {
	for _, db := range []*Database{&c.Source, &c.Destination} {
		db.DSN = os.ExpandEnv(db.DSN)
		db.Prefix = os.ExpandEnv(db.Prefix)
	}
	c.State.Path = os.ExpandEnv(c.State.Path)
	c.Registry.ModelsFile = os.ExpandEnv(c.Registry.ModelsFile)
	c.Metrics.PushgatewayURL = os.ExpandEnv(c.Metrics.PushgatewayURL)
	c.Metrics.StatsdAddr = os.ExpandEnv(c.Metrics.StatsdAddr)
}

// PageSizeFor returns the configured page size for table, falling back to
// def when nothing is configured.
func (d Database) PageSizeFor(table string, def int) int {
	if n, ok := d.PageSizes[table]; ok && n > 0 {
		return n
	}
	if d.PageSize > 0 {
		return d.PageSize
	}
	return def
}

// LoadEnv loads KEY=VALUE pairs from files into the process environment
// without overriding variables that are already set. Missing files are
// skipped.
func LoadEnv(files ...string) error {
	for _, f := range files {
		if f == "" {
			continue
		}
		if _, err := os.Stat(f); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("config: load env %s: %w", f, err)
		}
	}
	return nil
}
