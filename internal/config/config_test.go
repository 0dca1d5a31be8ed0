package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParse_DecodesEntityMap(t *testing.T) {
	t.Setenv("SRC_DSN", "file:src.db")

	const doc = `
source:
  kind: sqlite
  dsn: ${SRC_DSN}
  prefix: m1_
  page_size: 500
  page_sizes:
    core_url_rewrite: 2000
destination:
  kind: sqlite
  dsn: file:dst.db
runtime:
  parallel: 3
log:
  level: debug
  format: json
entities:
  - name: url_rewrite
    kind: urlrewrite
    upsert_key: [request_path, store_id]
    options:
      default_store_id: 1
      cms_table: cms_page
  - name: eav
    kind: eav
    documents: [eav_entity_type, eav_attribute_label]
`
	c, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if c.Source.DSN != "file:src.db" {
		t.Errorf("source.dsn = %q, want expanded file:src.db", c.Source.DSN)
	}
	if got := c.Source.PageSizeFor("core_url_rewrite", 100); got != 2000 {
		t.Errorf("PageSizeFor(core_url_rewrite) = %d, want 2000", got)
	}
	if got := c.Source.PageSizeFor("cms_page", 100); got != 500 {
		t.Errorf("PageSizeFor(cms_page) = %d, want 500", got)
	}
	if got := c.Destination.PageSizeFor("x", 100); got != 100 {
		t.Errorf("destination PageSizeFor = %d, want default 100", got)
	}
	if c.Runtime.Parallel != 3 || c.Log.Level != "debug" || c.Log.Format != "json" {
		t.Errorf("runtime/log decoded = %+v %+v", c.Runtime, c.Log)
	}
	if len(c.Entities) != 2 {
		t.Fatalf("entities = %d, want 2", len(c.Entities))
	}
	ur := c.Entities[0]
	if len(ur.UpsertKey) != 2 || ur.UpsertKey[0] != "request_path" {
		t.Errorf("upsert_key = %v", ur.UpsertKey)
	}
	if got := ur.Options.Int("default_store_id", 0); got != 1 {
		t.Errorf("options.default_store_id = %d, want 1", got)
	}
	if got := ur.Options.String("cms_table", ""); got != "cms_page" {
		t.Errorf("options.cms_table = %q", got)
	}
	if got := c.Entities[1].Documents; len(got) != 2 || got[1] != "eav_attribute_label" {
		t.Errorf("documents = %v", got)
	}
}

func TestParse_RejectsUnknownKeys(t *testing.T) {
	if _, err := Parse([]byte("source:\n  kind: mysql\n  table: x\n")); err == nil {
		t.Fatalf("expected error for unknown key")
	}
}

func TestParse_AcceptsJSON(t *testing.T) {
	c, err := Parse([]byte(`{"source":{"kind":"mysql","dsn":"a"},"entities":[{"name":"x","kind":"justcopy","just_copy":true,"documents":["t"]}]}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !c.Entities[0].JustCopy || c.Entities[0].Documents[0] != "t" {
		t.Fatalf("decoded = %+v", c.Entities[0])
	}
}

func TestLoadEnv_DoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, ".env")
	if err := os.WriteFile(p, []byte("DBM_TEST_A=from_file\nDBM_TEST_B=from_file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DBM_TEST_A", "from_env")
	t.Cleanup(func() { os.Unsetenv("DBM_TEST_B") })

	if err := LoadEnv(p, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadEnv: %v", err)
	}
	if got := os.Getenv("DBM_TEST_A"); got != "from_env" {
		t.Errorf("DBM_TEST_A = %q, want from_env", got)
	}
	if got := os.Getenv("DBM_TEST_B"); got != "from_file" {
		t.Errorf("DBM_TEST_B = %q, want from_file", got)
	}
}

func TestOptions_TypedGetters(t *testing.T) {
	o := Options{
		"n":    float64(7),
		"s":    "x",
		"b":    true,
		"list": []any{"a", 1, "b"},
		"map":  map[string]any{"R": "302", "bad": 1},
	}
	if o.Int("n", 0) != 7 || o.String("s", "") != "x" || !o.Bool("b", false) {
		t.Fatalf("scalar getters failed")
	}
	if got := o.StringSlice("list"); len(got) != 2 || got[1] != "b" {
		t.Errorf("StringSlice = %v", got)
	}
	if got := o.StringMap("map"); len(got) != 1 || got["R"] != "302" {
		t.Errorf("StringMap = %v", got)
	}
	if o.Int("missing", 5) != 5 || o.Any("missing") != nil {
		t.Errorf("defaults not honored")
	}
}
