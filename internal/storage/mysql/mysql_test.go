package mysql

import (
	"context"
	"testing"

	"dbmigrate/internal/storage"
)

func TestInsertStatement(t *testing.T) {
	d := Dialect{}
	tests := []struct {
		name string
		opts storage.SaveOptions
		want string
	}{
		{"plain", storage.SaveOptions{}, "INSERT INTO `url_rewrite` (`request_path`, `store_id`) VALUES (?, ?)"},
		{"update", storage.SaveOptions{ConflictKey: []string{"request_path", "store_id"}, UpdateColumns: []string{"request_path"}},
			"INSERT INTO `url_rewrite` (`request_path`, `store_id`) VALUES (?, ?) ON DUPLICATE KEY UPDATE `request_path` = VALUES(`request_path`)"},
		{"keep", storage.SaveOptions{ConflictKey: []string{"store_id"}},
			"INSERT INTO `url_rewrite` (`request_path`, `store_id`) VALUES (?, ?) ON DUPLICATE KEY UPDATE `store_id` = VALUES(`store_id`)"},
	}
	for _, tt := range tests {
		got, err := d.InsertStatement("`url_rewrite`", []string{"request_path", "store_id"}, tt.opts)
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if got != tt.want {
			t.Errorf("%s:\n got %s\nwant %s", tt.name, got, tt.want)
		}
	}
}

func TestPaginateAndQuote(t *testing.T) {
	d := Dialect{}
	if got := d.Paginate("SELECT * FROM `t`", []string{"entity_id", "store_id"}, 50, 100); got != "SELECT * FROM `t` ORDER BY `entity_id`, `store_id` LIMIT 50 OFFSET 100" {
		t.Fatalf("Paginate = %s", got)
	}
	if got := d.Quote("a`b"); got != "`a``b`" {
		t.Fatalf("Quote = %s", got)
	}
}

func TestRegistrationUsesHook(t *testing.T) {
	orig := newRepository
	defer func() { newRepository = orig }()

	called := false
	newRepository = func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		called = true
		return nil, nil
	}
	if _, err := storage.New(context.Background(), storage.Config{Kind: "mysql", DSN: "u:p@tcp(db:3306)/m2"}); err != nil {
		t.Fatal(err)
	}
	if !called {
		t.Fatalf("hook not called")
	}
}

func TestOpen_RejectsBadDSN(t *testing.T) {
	if _, err := open(context.Background(), storage.Config{DSN: "not a dsn"}); err == nil {
		t.Fatalf("expected DSN error")
	}
}
