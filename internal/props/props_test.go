package props

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		name, key, want string
	}{
		{"acme", "commandPort", "acme.commandPort"},
		{"acme", "acme.commandPort", "acme.commandPort"},
		{"acme", "DCServer.acme.commandPort", "DCServer.acme.commandPort"},
		{"acme", "acmex.port", "acme.acmex.port"},
		{"acme", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got := NormalizeKey(tt.name, tt.key)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, NormalizeKey(tt.name, got), "normalization must be idempotent")
		})
	}
}

func newCascade() (Cascade, *Scope, *Scope) {
	local := NewScope("default")
	global := NewScope("global")
	return Cascade{Name: "acme", Local: local, Global: global}, local, global
}

func TestCascade_GlobalLiteralOnly(t *testing.T) {
	c, _, global := newCascade()
	global.Set("timeout", IntValue(42))

	assert.Equal(t, 42, c.Int("timeout", 0))
}

func TestCascade_LocalLiteralWins(t *testing.T) {
	c, local, global := newCascade()
	local.Set("timeout", IntValue(1))
	local.Set("acme.timeout", IntValue(2))
	global.Set("acme.timeout", IntValue(3))
	global.Set("timeout", IntValue(4))

	assert.Equal(t, 1, c.Int("timeout", 0))
}

func TestCascade_LevelOrder(t *testing.T) {
	c, local, global := newCascade()
	global.Set("timeout", IntValue(4))
	assert.Equal(t, 4, c.Int("timeout", 0))

	global.Set("acme.timeout", IntValue(3))
	assert.Equal(t, 3, c.Int("timeout", 0))

	local.Set("acme.timeout", IntValue(2))
	assert.Equal(t, 2, c.Int("timeout", 0))

	local.Set("timeout", IntValue(1))
	assert.Equal(t, 1, c.Int("timeout", 0))
}

func TestCascade_DefaultWhenMissing(t *testing.T) {
	c, _, _ := newCascade()
	assert.Equal(t, "fallback", c.String("missing", "fallback"))
	assert.Equal(t, int64(7), c.Int64("missing", 7))
	assert.True(t, c.Bool("missing", true))
	assert.Nil(t, c.Strings("missing", nil))
}

func TestCascade_MultiKeyFirstPresentWins(t *testing.T) {
	c, local, _ := newCascade()
	local.Set("b", StringValue("B"))
	local.Set("c", StringValue("C"))

	assert.Equal(t, "C", c.StringOf([]string{"a", "c", "b"}, ""))
	assert.Equal(t, "B", c.StringOf([]string{"b", "c"}, ""))
}

func TestCascade_MultiKeyStopsAtFirstLevel(t *testing.T) {
	c, local, global := newCascade()
	global.Set("a", StringValue("global-a"))
	local.Set("acme.b", StringValue("local-b"))

	// level 2 holds "b" so level 4 is never consulted for "a"
	assert.Equal(t, "local-b", c.StringOf([]string{"a", "b"}, ""))
}

func TestValue_Coercion(t *testing.T) {
	n, ok := StringValue("0x10").Int()
	require.True(t, ok)
	assert.Equal(t, 16, n)

	f, ok := StringValue("2.5").Float64()
	require.True(t, ok)
	assert.Equal(t, 2.5, f)

	b, ok := StringValue("yes").Bool()
	require.True(t, ok)
	assert.True(t, b)

	_, ok = StringValue("maybe").Bool()
	assert.False(t, ok)

	assert.Equal(t, []string{"a", "b"}, StringValue("a, b").Strings())
	assert.Equal(t, "a,b", StringsValue([]string{"a", "b"}).String())
	assert.Equal(t, KindLong, ValueOf(int64(5)).Kind())
	assert.Equal(t, KindStrings, ValueOf([]any{"x", 1}).Kind())
}

func TestScope_OrderAndMerge(t *testing.T) {
	s := NewScope("s")
	s.Set("z", StringValue("1"))
	s.Set("a", StringValue("2"))
	s.Set("z", StringValue("3"))
	assert.Equal(t, []string{"z", "a"}, s.Keys())

	other := NewScope("o")
	other.Set("a", StringValue("other"))
	other.Set("n", StringValue("new"))

	assert.Equal(t, 1, s.Merge(other, false))
	v, _ := s.Get("a")
	assert.Equal(t, "2", v.String())
	v, _ = s.Get("n")
	assert.Equal(t, "new", v.String())
}
