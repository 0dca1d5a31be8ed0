package postgres

import (
	"context"
	"os"
	"reflect"
	"sync/atomic"
	"testing"

	"github.com/jackc/pgx/v5"

	"dbmigrate/internal/storage"
)

// Test that init() registration works and that storage.New constructs the repo
// via our adapter. We stub newRepository to avoid a real DB connection.
func TestAdapterRegistrationAndClose(t *testing.T) {
	orig := newRepository
	defer func() { newRepository = orig }()

	var gotCfg storage.Config
	var closed int32
	newRepository = func(ctx context.Context, cfg storage.Config) (*Repository, func(), error) {
		gotCfg = cfg
		return &Repository{cfg: cfg}, func() { atomic.AddInt32(&closed, 1) }, nil
	}

	want := storage.Config{Kind: "postgres", DSN: "postgresql://u:p@localhost:5432/db", Prefix: "m2_"}
	repo, err := storage.New(context.Background(), want)
	if err != nil {
		t.Fatalf("storage.New() error = %v", err)
	}
	if !reflect.DeepEqual(gotCfg, want) {
		t.Fatalf("hook cfg = %+v, want %+v", gotCfg, want)
	}
	if got := repo.Table("public.url_rewrite"); got != `"public"."m2_url_rewrite"` {
		t.Fatalf("Table = %s", got)
	}
	repo.Close()
	if atomic.LoadInt32(&closed) != 1 {
		t.Fatalf("Close did not invoke closeFn")
	}
}

func TestUpsertSQL(t *testing.T) {
	got := upsertSQL(`"url_rewrite"`, []string{"request_path", "store_id"}, storage.SaveOptions{
		ConflictKey:   []string{"request_path", "store_id"},
		UpdateColumns: []string{"request_path"},
	})
	want := `INSERT INTO "url_rewrite" ("request_path", "store_id") VALUES ($1, $2) ON CONFLICT ("request_path", "store_id") DO UPDATE SET "request_path" = EXCLUDED."request_path"`
	if got != want {
		t.Fatalf("got:\n%s\nwant:\n%s", got, want)
	}

	got = upsertSQL(`"t"`, []string{"k"}, storage.SaveOptions{ConflictKey: []string{"k"}})
	if got != `INSERT INTO "t" ("k") VALUES ($1) ON CONFLICT ("k") DO NOTHING` {
		t.Fatalf("DO NOTHING form = %s", got)
	}
}

func TestSplitFQN(t *testing.T) {
	if got := splitFQN("public.url_rewrite"); !reflect.DeepEqual(got, pgx.Identifier{"public", "url_rewrite"}) {
		t.Fatalf("splitFQN = %v", got)
	}
	if got := splitFQN("url_rewrite"); !reflect.DeepEqual(got, pgx.Identifier{"url_rewrite"}) {
		t.Fatalf("splitFQN = %v", got)
	}
}

// TestRepository_Integration runs against a real database when
// DBMIGRATE_PG_DSN is set.
func TestRepository_Integration(t *testing.T) {
	dsn := os.Getenv("DBMIGRATE_PG_DSN")
	if dsn == "" {
		t.Skip("DBMIGRATE_PG_DSN not set")
	}
	ctx := context.Background()
	r, closeFn, err := NewRepository(ctx, storage.Config{DSN: dsn, PageSize: 2})
	if err != nil {
		t.Fatalf("NewRepository: %v", err)
	}
	defer closeFn()

	if _, err := r.pool.Exec(ctx, `DROP TABLE IF EXISTS dbm_it; CREATE TABLE dbm_it (id int PRIMARY KEY, path text UNIQUE)`); err != nil {
		t.Fatalf("setup: %v", err)
	}
	defer r.pool.Exec(ctx, `DROP TABLE IF EXISTS dbm_it`)

	if _, err := r.SaveBatch(ctx, "dbm_it", []string{"id", "path"}, [][]any{{2, "b"}, {1, "a"}, {3, "c"}}, storage.SaveOptions{}); err != nil {
		t.Fatalf("copy: %v", err)
	}
	if _, err := r.SaveBatch(ctx, "dbm_it", []string{"id", "path"}, [][]any{{4, "a"}}, storage.SaveOptions{ConflictKey: []string{"path"}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	fields, err := r.Fields(ctx, "dbm_it")
	if err != nil || !reflect.DeepEqual(fields, []string{"id", "path"}) {
		t.Fatalf("Fields = %v, %v", fields, err)
	}
	page, err := r.Page(ctx, "dbm_it", 0)
	if err != nil || len(page) != 2 || page[0]["path"] != "a" {
		t.Fatalf("Page(0) = %v, %v", page, err)
	}
	if n, _ := r.RecordCount(ctx, "dbm_it"); n != 3 {
		t.Fatalf("count = %d, want 3", n)
	}
}
