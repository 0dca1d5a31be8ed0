package urlrewrite

import (
	"encoding/json"

	"dbmigrate/internal/document"
	"dbmigrate/internal/transformer"
	"dbmigrate/internal/transformer/builtin"
)

// redirectTypes maps the legacy options column to an HTTP redirect code.
var redirectTypes = builtin.EnumMap{
	Values:  map[string]any{"": 0, "R": 302, "RP": 301},
	Default: "",
}

var copied = builtin.Copy(map[string]string{
	"url_rewrite_id": "url_rewrite_id",
	"store_id":       "store_id",
	"description":    "description",
	"request_path":   "request_path",
	"target_path":    "target_path",
	"is_system":      "is_autogenerated",
})

// rewrite converts one legacy rewrite row and, for system product rewrites
// inside a category, emits the product/category link on the side document.
func rewrite(productCategory string) transformer.Transformer {
	return transformer.Chain{
		copied,
		transformer.Func(func(src, dst *document.Record, side *transformer.Side) error {
			dst.SetValue("entity_type", entityType(src))
			dst.SetValue("entity_id", entityID(src))
			dst.SetValue("redirect_type", redirectTypes.Lookup(src.Value("options")))

			meta, err := metadata(src)
			if err != nil {
				return err
			}
			dst.SetValue("metadata", meta)

			if !linksCategory(src) || src.Value("request_path") == nil {
				return nil
			}
			link, err := side.New(productCategory)
			if err != nil {
				return err
			}
			link.SetValue("url_rewrite_id", src.Value("url_rewrite_id"))
			link.SetValue("category_id", src.Value("category_id"))
			link.SetValue("product_id", src.Value("product_id"))
			return nil
		}),
	}
}

// entityType prefers product over category. Rows with neither get nil.
func entityType(src *document.Record) any {
	switch {
	case builtin.Truthy(src.Value("product_id")):
		return "product"
	case builtin.Truthy(src.Value("category_id")):
		return "category"
	default:
		return nil
	}
}

// entityID is the product id when set, else the raw category id.
func entityID(src *document.Record) any {
	if p := src.Value("product_id"); builtin.Truthy(p) {
		return p
	}
	return src.Value("category_id")
}

func linksCategory(src *document.Record) bool {
	return builtin.Truthy(src.Value("is_system")) &&
		builtin.Truthy(src.Value("product_id")) &&
		builtin.Truthy(src.Value("category_id"))
}

// metadata is {"category_id":N} for system product rewrites inside a
// category and nil otherwise.
func metadata(src *document.Record) (any, error) {
	if !linksCategory(src) {
		return nil, nil
	}
	var id any = src.Value("category_id")
	if n, ok := builtin.Int64(id); ok {
		id = n
	}
	b, err := json.Marshal(map[string]any{"category_id": id})
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
