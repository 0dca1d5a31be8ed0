package urlrewrite

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"dbmigrate/internal/document"
	"dbmigrate/internal/storage"
	"dbmigrate/internal/transformer/builtin"
)

const (
	cmsEntityType  = "cms-page"
	cmsTargetPath  = "cms/page/view/page_id/"
	defaultStoreID = int64(1)
)

// cmsFields are the url_rewrite columns filled for synthesized CMS rows.
var cmsFields = []string{"entity_type", "entity_id", "request_path", "target_path", "store_id", "is_autogenerated"}

// cmsQuery selects CMS pages per store whose identifier has no legacy
// rewrite. The active flag is filtered in Go because its column type differs
// between backends (tinyint, bit, boolean). Rows are ordered so repeated runs
// agree and the lowest page id comes first within a store.
func (s *Step) cmsQuery() string {
	return fmt.Sprintf(`SELECT cp.page_id AS page_id, cp.identifier AS identifier, cps.store_id AS store_id, cp.is_active AS is_active
FROM %s cp
LEFT JOIN %s cps ON cps.page_id = cp.page_id
WHERE cp.identifier NOT IN (SELECT cur.request_path FROM %s cur WHERE cur.request_path IS NOT NULL)
ORDER BY cp.identifier, cps.store_id, cp.page_id`,
		s.src.Table(s.tables.cmsPage), s.src.Table(s.tables.cmsPageStore), s.src.Table(s.tables.source))
}

// cmsRewrites builds the synthesized rewrite rows from the source.
func (s *Step) cmsRewrites(ctx context.Context) ([]map[string]any, error) {
	rows, err := s.src.Query(ctx, s.cmsQuery())
	if err != nil {
		return nil, fmt.Errorf("urlrewrite: cms pages: %w", err)
	}
	return cmsRows(rows), nil
}

// cmsRows turns ordered page/store rows into url_rewrite rows. Inactive pages
// are dropped. Store 0 is the admin store and maps to the default store; the
// first page seen for an (identifier, store) pair after remapping wins.
func cmsRows(rows []storage.Row) []map[string]any {
	seen := make(map[string]struct{}, len(rows))
	out := make([]map[string]any, 0, len(rows))
	for _, r := range rows {
		if !builtin.Truthy(r["is_active"]) {
			continue
		}
		store := r["store_id"]
		if n, ok := builtin.Int64(store); ok {
			if n == 0 {
				n = defaultStoreID
			}
			store = n
		}
		key := builtin.Key(r["identifier"]) + "\x00" + builtin.Key(store)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, map[string]any{
			"entity_type":      cmsEntityType,
			"entity_id":        r["page_id"],
			"request_path":     r["identifier"],
			"target_path":      cmsTargetPath + builtin.Key(r["page_id"]),
			"store_id":         store,
			"is_autogenerated": 1,
		})
	}
	return out
}

// saveCMSRewrites upserts the synthesized rows on the natural key.
func (s *Step) saveCMSRewrites(ctx context.Context, w storage.Writer, log *logrus.Entry) (int64, error) {
	rows, err := s.cmsRewrites(ctx)
	if err != nil {
		return 0, err
	}
	doc := document.New(s.tables.destination, cmsFields)
	bw := storage.NewBatchWriter(w, s.tables.destination, s.upsert, log)
	size := s.dst.PageSize(s.tables.destination)
	for start := 0; start < len(rows); start += size {
		end := min(start+size, len(rows))
		set := document.NewRecordSet(doc)
		for _, r := range rows[start:end] {
			rec, err := document.NewRecordFrom(doc, r)
			if err != nil {
				return bw.Total(), err
			}
			if err := set.Add(rec); err != nil {
				return bw.Total(), err
			}
		}
		if _, err := bw.Write(ctx, set); err != nil {
			return bw.Total(), err
		}
	}
	log.Infof("synthesized %d cms page rewrites", len(rows))
	return int64(len(rows)), nil
}
