// Tests for parameter counting and value conversion.
package sqlite

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCountParams(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"no params", "SELECT 1", 0},
		{"positional", "INSERT INTO t (a, b) VALUES (?, ?)", 2},
		{"numbered uses highest index", "SELECT ?3, ?1", 3},
		{"numbered then anonymous", "SELECT ?2, ?", 3},
		{"named counted once", "SELECT :a, @b, $c, :a", 3},
		{"question mark in string", "SELECT '?' || ?", 1},
		{"escaped quote in string", "SELECT 'it''s ?', ?", 1},
		{"quoted identifier", `SELECT "a?b" FROM t WHERE x = ?`, 1},
		{"bracket identifier", "SELECT [a?] FROM t", 0},
		{"line comment", "SELECT ? -- and ?\n, ?", 2},
		{"block comment", "SELECT /* ? */ ?", 1},
		{"like escape literal", `SELECT * FROM t WHERE url LIKE ? ESCAPE '\'`, 1},
		{"colon without name", "SELECT ':'", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, countParams(tt.query))
		})
	}
}

func TestStatementKind(t *testing.T) {
	tests := map[string]string{
		"CREATE TABLE t (a)":          "ddl",
		"  alter table t add b":       "ddl",
		"DROP VIEW v":                 "ddl",
		"INSERT INTO t VALUES (1)":    "change",
		"update t set a = 1":          "change",
		"DELETE FROM t":               "change",
		"SELECT 1":                    "query",
		"WITH x AS (SELECT 1) SELECT": "query",
		"PRAGMA user_version":         "pragma",
		"BEGIN EXCLUSIVE":             "tx",
		"ROLLBACK":                    "tx",
		"VACUUM":                      "other",
	}
	for query, want := range tests {
		assert.Equal(t, want, statementKind(query), query)
	}
}

type visitCount int

func TestValueOf(t *testing.T) {
	s := "text"
	var nilPtr *int64

	tests := []struct {
		name string
		arg  any
		kind Kind
		ok   bool
	}{
		{"nil", nil, KindNull, true},
		{"int", 42, KindInteger, true},
		{"int32", int32(7), KindInteger, true},
		{"uint8", uint8(7), KindInteger, true},
		{"uint64 overflow", uint64(1 << 63), KindNull, false},
		{"float32", float32(1.5), KindReal, true},
		{"string", "x", KindText, true},
		{"bytes", []byte{1, 2}, KindBlob, true},
		{"bool", true, KindInteger, true},
		{"named int", visitCount(3), KindInteger, true},
		{"pointer", &s, KindText, true},
		{"nil pointer", nilPtr, KindNull, true},
		{"value", Real(2.5), KindReal, true},
		{"struct", struct{}{}, KindNull, false},
		{"map", map[string]int{}, KindNull, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, ok := ValueOf(tt.arg)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.kind, v.Kind())
			}
		})
	}
}

func TestValueAccessors(t *testing.T) {
	assert.Equal(t, int64(3), Text("3").Int64())
	assert.Equal(t, "42", Integer(42).String())
	assert.True(t, Integer(1).Bool())
	assert.False(t, Null().Bool())
	assert.Nil(t, Null().Any())

	b := Blob([]byte{1, 2, 3})
	out := b.Bytes()
	out[0] = 9
	assert.Equal(t, []byte{1, 2, 3}, b.Bytes(), "Bytes returns a copy")
	assert.True(t, Blob(nil).IsNull())
}
