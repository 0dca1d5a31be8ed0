package builtin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbmigrate/internal/document"
)

func TestTruthy(t *testing.T) {
	tests := []struct {
		in   any
		want bool
	}{
		{nil, false},
		{false, false},
		{true, true},
		{0, false},
		{int64(0), false},
		{int64(12), true},
		{uint8(1), true},
		{0.0, false},
		{"", false},
		{"0", false},
		{" 0 ", false},
		{"1", true},
		{"abc", true},
		{[]byte("0"), false},
		{[]byte("7"), true},
	}
	for _, tt := range tests {
		assert.Equalf(t, tt.want, Truthy(tt.in), "Truthy(%#v)", tt.in)
	}
}

func TestInt64(t *testing.T) {
	tests := []struct {
		in     any
		want   int64
		wantOK bool
	}{
		{"42", 42, true},
		{" 42 ", 42, true},
		{[]byte("13"), 13, true},
		{int(1), 1, true},
		{int8(5), 5, true},
		{int16(0), 0, true},
		{int32(-3), -3, true},
		{int64(7), 7, true},
		{uint(9), 9, true},
		{uint8(3), 3, true},
		{uint16(7), 7, true},
		{uint32(11), 11, true},
		{uint64(12), 12, true},
		{float32(2), 2, true},
		{float64(4), 4, true},
		{"x", 0, false},
		{nil, 0, false},
		{true, 0, false},
	}
	for _, tt := range tests {
		n, ok := Int64(tt.in)
		assert.Equalf(t, tt.wantOK, ok, "Int64(%#v) ok", tt.in)
		assert.Equalf(t, tt.want, n, "Int64(%#v)", tt.in)
	}
}

func TestEnumMap_DefaultsUnknownCodes(t *testing.T) {
	m := EnumMap{Values: map[string]any{"": 0, "R": 302, "RP": 301}, Default: ""}
	assert.Equal(t, 302, m.Lookup("R"))
	assert.Equal(t, 301, m.Lookup([]byte("RP")))
	assert.Equal(t, 0, m.Lookup(nil))
	assert.Equal(t, 0, m.Lookup("X"))
	assert.Equal(t, 0, m.Lookup(""))
}

func TestCopyAndSame(t *testing.T) {
	src := document.New("core_url_rewrite", []string{"url_rewrite_id", "is_system", "description"})
	dst := document.New("url_rewrite", []string{"url_rewrite_id", "is_autogenerated", "description"})
	in, err := document.NewRecordFrom(src, map[string]any{"url_rewrite_id": int64(1), "is_system": int64(1), "description": nil})
	require.NoError(t, err)

	out := document.NewRecord(dst)
	require.NoError(t, Same("url_rewrite_id", "description").Transform(in, out, nil))
	require.NoError(t, Copy(map[string]string{"is_system": "is_autogenerated"}).Transform(in, out, nil))

	assert.Equal(t, map[string]any{"url_rewrite_id": int64(1), "is_autogenerated": int64(1), "description": nil}, out.Data())
}
