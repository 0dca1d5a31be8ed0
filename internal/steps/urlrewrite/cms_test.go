package urlrewrite

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"dbmigrate/internal/storage"
	"dbmigrate/internal/transformer/builtin"
)

func TestCMSRows_RemapsAdminStoreForEveryIntegerType(t *testing.T) {
	for _, zero := range []any{int64(0), int32(0), int16(0), int8(0), uint8(0), uint16(0), "0", []byte("0")} {
		out := cmsRows([]storage.Row{
			{"page_id": int64(2), "identifier": "home", "store_id": zero, "is_active": int64(1)},
		})
		if assert.Lenf(t, out, 1, "store %#v", zero) {
			assert.Equalf(t, defaultStoreID, out[0]["store_id"], "store %#v", zero)
		}
	}
}

func TestCMSRows_FirstPageWinsAfterRemap(t *testing.T) {
	out := cmsRows([]storage.Row{
		{"page_id": int16(4), "identifier": "contact", "store_id": int16(0), "is_active": true},
		{"page_id": int16(4), "identifier": "contact", "store_id": int16(1), "is_active": true},
		{"page_id": int16(2), "identifier": "home", "store_id": int16(3), "is_active": true},
		{"page_id": int16(5), "identifier": "home", "store_id": int16(3), "is_active": true},
	})
	var got []string
	for _, r := range out {
		got = append(got, r["request_path"].(string)+"@"+builtin.Key(r["store_id"])+"->"+r["target_path"].(string))
	}
	assert.Equal(t, []string{
		"contact@1->cms/page/view/page_id/4",
		"home@3->cms/page/view/page_id/2",
	}, got)
}

func TestCMSRows_SkipsInactivePages(t *testing.T) {
	out := cmsRows([]storage.Row{
		{"page_id": int64(1), "identifier": "a", "store_id": int64(1), "is_active": false},
		{"page_id": int64(2), "identifier": "b", "store_id": int64(1), "is_active": int64(0)},
		{"page_id": int64(3), "identifier": "c", "store_id": int64(1), "is_active": nil},
		{"page_id": int64(4), "identifier": "d", "store_id": int64(1), "is_active": true},
	})
	if assert.Len(t, out, 1) {
		assert.Equal(t, "d", out[0]["request_path"])
		assert.Equal(t, cmsEntityType, out[0]["entity_type"])
		assert.Equal(t, 1, out[0]["is_autogenerated"])
	}
}
