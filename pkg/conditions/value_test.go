package conditions

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValue_Resolve(t *testing.T) {
	root := FromAny(map[string]any{
		"a": map[string]any{
			"b": []any{
				map[string]any{"c": "deep"},
			},
		},
		"nil": nil,
	})

	assert.Equal(t, "deep", root.Resolve("a.b.0.c").AsString())
	assert.Equal(t, KindNull, root.Resolve("nil").Kind())
	assert.True(t, root.Resolve("a.missing").IsAbsent())
	assert.True(t, root.Resolve("a.b.5").IsAbsent())
	assert.True(t, root.Resolve("a.b.-1").IsAbsent())
	assert.True(t, root.Resolve("nil.x").IsAbsent())
	assert.True(t, root.Resolve("").IsAbsent())
}

func TestValue_AbsentDiffersFromNull(t *testing.T) {
	assert.True(t, Absent.IsNullish())
	assert.True(t, Null().IsNullish())
	assert.False(t, Absent.Equal(Null()))
	assert.False(t, Absent.Equal(Absent))
	assert.True(t, Null().Equal(Null()))
}

func TestValue_Equal(t *testing.T) {
	assert.True(t, FromAny(int64(3)).Equal(FromAny(3.0)))
	assert.True(t, FromAny(json.Number("3")).Equal(Number(3)))
	assert.False(t, FromAny("3").Equal(Number(3)))
	assert.True(t, FromAny(map[string]any{"x": []any{1, "y"}}).Equal(FromAny(map[string]any{"x": []any{1.0, "y"}})))
	assert.False(t, FromAny(map[string]any{"x": 1}).Equal(FromAny(map[string]any{"y": 1})))
	assert.False(t, FromAny([]int{1, 2}).Equal(FromAny([]int{1})))
}

func TestValue_AsNumber(t *testing.T) {
	n, ok := String(" 4.5 ").AsNumber()
	assert.True(t, ok)
	assert.InDelta(t, 4.5, n, 0.0001)

	_, ok = String("four").AsNumber()
	assert.False(t, ok)

	_, ok = Bool(true).AsNumber()
	assert.False(t, ok)

	_, ok = Absent.AsNumber()
	assert.False(t, ok)
}

func TestValue_AsString(t *testing.T) {
	assert.Equal(t, "", Absent.AsString())
	assert.Equal(t, "", Null().AsString())
	assert.Equal(t, "true", Bool(true).AsString())
	assert.Equal(t, "10", Number(10).AsString())
	assert.Equal(t, "0.25", Number(0.25).AsString())
	assert.Equal(t, `["a",1]`, FromAny([]any{"a", 1}).AsString())
	assert.Equal(t, `{"k":"v"}`, FromAny(map[string]string{"k": "v"}).AsString())
}

func TestValue_Interface(t *testing.T) {
	in := map[string]any{"a": []any{"x", 2.0, true, nil}}

	assert.Equal(t, in, FromAny(in).Interface())
	assert.Nil(t, Absent.Interface())
}
