package builtin

import (
	"dbmigrate/internal/document"
	"dbmigrate/internal/transformer"
)

// Copy returns a transformer copying src fields to dst fields. Keys are
// source names, values destination names.
func Copy(fields map[string]string) transformer.Transformer {
	return transformer.Func(func(src, dst *document.Record, _ *transformer.Side) error {
		for from, to := range fields {
			dst.SetValue(to, src.Value(from))
		}
		return nil
	})
}

// Same is Copy with identical names on both sides.
func Same(fields ...string) transformer.Transformer {
	m := make(map[string]string, len(fields))
	for _, f := range fields {
		m[f] = f
	}
	return Copy(m)
}
