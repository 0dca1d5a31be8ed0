package config

import (
	"strings"
	"testing"
)

// hasIssue reports whether issues contains an Issue with the given severity,
// path, and a Message containing msgSubstr.
func hasIssue(t *testing.T, issues []Issue, sev IssueSeverity, path, msgSubstr string) bool {
	t.Helper()
	for _, iss := range issues {
		if iss.Severity == sev && iss.Path == path && strings.Contains(iss.Message, msgSubstr) {
			return true
		}
	}
	return false
}

func validConfig() Config {
	return Config{
		Source:      Database{Kind: "mysql", DSN: "user:pass@tcp(localhost:3306)/m1"},
		Destination: Database{Kind: "mysql", DSN: "user:pass@tcp(localhost:3306)/m2"},
		Runtime:     RuntimeConfig{Parallel: 2},
		Entities: []Entity{
			{Name: "url_rewrite", Kind: "urlrewrite"},
			{Name: "eav", Kind: "eav", Documents: []string{"eav_entity_type"}},
		},
	}
}

func TestValidateConfig_ValidMinimal(t *testing.T) {
	if issues := ValidateConfig(validConfig()); len(issues) != 0 {
		t.Fatalf("expected no issues, got %+v", issues)
	}
}

func TestValidateConfig_Databases(t *testing.T) {
	c := validConfig()
	c.Source.Kind = ""
	c.Destination.Kind = "oracle"
	c.Destination.DSN = " "

	issues := ValidateConfig(c)
	if !hasIssue(t, issues, SeverityError, "source.kind", "must not be empty") {
		t.Errorf("missing source.kind error; got %+v", issues)
	}
	if !hasIssue(t, issues, SeverityError, "destination.kind", `unknown storage kind "oracle"`) {
		t.Errorf("missing destination.kind error; got %+v", issues)
	}
	if !hasIssue(t, issues, SeverityError, "destination.dsn", "must not be empty") {
		t.Errorf("missing destination.dsn error; got %+v", issues)
	}
	if !HasErrors(issues) {
		t.Fatalf("HasErrors = false, want true")
	}
}

func TestValidateConfig_Entities(t *testing.T) {
	c := validConfig()
	c.Entities = append(c.Entities,
		Entity{Name: "url_rewrite", Kind: "urlrewrite"},
		Entity{Name: "copy", Kind: "justcopy", JustCopy: true},
		Entity{Name: "", Kind: ""},
	)

	issues := ValidateConfig(c)
	cases := []struct {
		path, msg string
	}{
		{"entities[2].name", `duplicate entity "url_rewrite" (first defined at entities[0])`},
		{"entities[3].documents", "just_copy entity needs at least one document"},
		{"entities[4].name", "must not be empty"},
		{"entities[4].kind", "must not be empty"},
	}
	for _, tc := range cases {
		if !hasIssue(t, issues, SeverityError, tc.path, tc.msg) {
			t.Errorf("expected error at %s containing %q; got %+v", tc.path, tc.msg, issues)
		}
	}
}

func TestValidateConfig_WarningsDoNotBlock(t *testing.T) {
	c := validConfig()
	c.Metrics.Backend = "graphite"
	c.Source.PageSizes = map[string]int{"core_url_rewrite": 0}

	issues := ValidateConfig(c)
	if HasErrors(issues) {
		t.Fatalf("unexpected errors: %+v", issues)
	}
	if !hasIssue(t, issues, SeverityWarning, "metrics.backend", "graphite") {
		t.Errorf("missing metrics warning; got %+v", issues)
	}
	if !hasIssue(t, issues, SeverityWarning, "source.page_sizes.core_url_rewrite", "ignored") {
		t.Errorf("missing page size warning; got %+v", issues)
	}
}

func TestValidateConfig_PushgatewayNeedsURL(t *testing.T) {
	c := validConfig()
	c.Metrics.Backend = "pushgateway"
	if !hasIssue(t, ValidateConfig(c), SeverityError, "metrics.pushgateway_url", "requires") {
		t.Fatalf("expected pushgateway_url error")
	}
}
