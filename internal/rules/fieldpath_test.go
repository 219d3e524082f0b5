package rules

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/solatis/labelkeeper/internal/types"
)

func mustParse(t *testing.T, data string) types.Value {
	t.Helper()
	v, err := types.ParseJSON([]byte(data))
	if err != nil {
		t.Fatalf("ParseJSON(%s) error = %v", data, err)
	}
	return v
}

// Test normal path resolution cases
func TestResolve_Normal(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		data     string
		expected types.Value
	}{
		{
			name:     "top-level key",
			path:     "Price",
			data:     `{"Product": "Chocolate", "Price": 1.5}`,
			expected: types.Number(1.5),
		},
		{
			name:     "nested object traversal",
			path:     "order.total.amount",
			data:     `{"order": {"total": {"amount": 42}}}`,
			expected: types.Number(42),
		},
		{
			name:     "array index access",
			path:     "items[0].price",
			data:     `{"items": [{"price": 10}, {"price": 20}]}`,
			expected: types.Number(10),
		},
		{
			name:     "last array index",
			path:     "items[1]",
			data:     `{"items": ["a", "b"]}`,
			expected: types.String("b"),
		},
		{
			name:     "leading and trailing separators skipped",
			path:     ".user..name.",
			data:     `{"user": {"name": "Alice"}}`,
			expected: types.String("Alice"),
		},
		{
			name:     "stored null resolves",
			path:     "user.email",
			data:     `{"user": {"email": null}}`,
			expected: types.Null(),
		},
		{
			name:     "resolves to object",
			path:     "user",
			data:     `{"user": {"id": 1}}`,
			expected: types.Object(map[string]types.Value{"id": types.Number(1)}),
		},
		{
			name:     "deep nesting",
			path:     "a.b.c.d",
			data:     `{"a": {"b": {"c": {"d": "deep"}}}}`,
			expected: types.String("deep"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Resolve(mustParse(t, tt.data), tt.path)
			if !result.Found {
				t.Fatalf("Resolve() Found = false, want true")
			}
			if !result.Value.Equal(tt.expected) {
				t.Errorf("Resolve() Value = %v, expected %v", result.Value, tt.expected)
			}
		})
	}
}

// Test paths that must resolve to Missing
func TestResolve_Missing(t *testing.T) {
	tests := []struct {
		name string
		path string
		data string
	}{
		{name: "empty object", path: "missing", data: `{}`},
		{name: "missing intermediate key", path: "a.b.c", data: `{"a": {"x": "wrong"}}`},
		{name: "null value at intermediate level", path: "user.name", data: `{"user": null}`},
		{name: "scalar value but path continues", path: "value.nested", data: `{"value": "scalar"}`},
		{name: "array index out of bounds", path: "items[5]", data: `{"items": [1, 2, 3]}`},
		{name: "negative array index", path: "items[-1]", data: `{"items": [1, 2, 3]}`},
		{name: "index into object", path: "items[0]", data: `{"items": {"0": "value"}}`},
		{name: "key on array", path: "items.price", data: `{"items": [{"price": 1}]}`},
		{name: "bracketed name absent", path: "other[0]", data: `{"items": [1]}`},
		{name: "non-integer index", path: "items[x]", data: `{"items": [1]}`},
		{name: "double index", path: "grid[0][1]", data: `{"grid": [[1, 2]]}`},
		{name: "unbalanced bracket", path: "items[0", data: `{"items": [1]}`},
		{name: "stray closing bracket", path: "items]", data: `{"items]": 1}`},
		{name: "top-level array record", path: "a", data: `[{"a": 1}]`},
		{name: "top-level scalar record", path: "a", data: `42`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Resolve(mustParse(t, tt.data), tt.path)
			if result.Found {
				t.Errorf("Resolve() Found = true (value %v), want Missing", result.Value)
			}
		})
	}
}

func TestResolve_MissingDistinctFromNull(t *testing.T) {
	record := mustParse(t, `{"present": null}`)

	present := Resolve(record, "present")
	absent := Resolve(record, "absent")

	if !present.Found || !present.Value.IsNull() {
		t.Errorf("present = %+v, want Found null", present)
	}
	if absent.Found {
		t.Errorf("absent Found = true, want false")
	}
}

func TestParsePath(t *testing.T) {
	segments, err := ParsePath("order.items[2].price")
	if err != nil {
		t.Fatalf("ParsePath() error = %v", err)
	}

	expected := []types.PathSegment{
		{Key: "order"},
		{Key: "items"},
		{Index: 2, IsIndex: true},
		{Key: "price"},
	}
	if len(segments) != len(expected) {
		t.Fatalf("ParsePath() len = %d, expected %d", len(segments), len(expected))
	}
	for i, seg := range segments {
		if seg != expected[i] {
			t.Errorf("segments[%d] = %+v, expected %+v", i, seg, expected[i])
		}
	}

	for _, bad := range []string{"a[", "a[]", "a[1]b", "a[1][2]", "a]", "a[one]", "a[-1]", "a[+1]", "a[ 1]"} {
		if _, err := ParsePath(bad); err == nil {
			t.Errorf("ParsePath(%q) error = nil, want error", bad)
		}
	}
}

func TestPathDepth(t *testing.T) {
	depth, err := PathDepth("a.b[0].c")
	if err != nil {
		t.Fatalf("PathDepth() error = %v", err)
	}
	if depth != 4 {
		t.Errorf("PathDepth() = %d, want 4", depth)
	}
	if depth, _ := PathDepth("..."); depth != 0 {
		t.Errorf("PathDepth(...) = %d, want 0", depth)
	}
}

// Property-based test: resolution never panics
func TestResolve_PropertyNeverPanics(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	record, err := types.ParseJSON([]byte(`{"key": [{"key": "value"}, null, 3], "k[0]": {"": 1}}`))
	if err != nil {
		t.Fatal(err)
	}

	properties.Property("resolution never panics regardless of path", prop.ForAll(
		func(path string) bool {
			defer func() {
				if r := recover(); r != nil {
					t.Errorf("Resolve(%q) panicked: %v", path, r)
				}
			}()
			_ = Resolve(record, path)
			return true
		},
		gen.AnyString(),
	))

	properties.Property("structured paths never panic", prop.ForAll(
		func(depth int, index int, useIndex bool) bool {
			path := ""
			for i := 0; i < depth; i++ {
				if i > 0 {
					path += "."
				}
				path += "key"
				if useIndex && i%2 == 0 {
					path += "[" + string(rune('0'+index%10)) + "]"
				}
			}
			_ = Resolve(record, path)
			return true
		},
		gen.IntRange(0, 20),
		gen.IntRange(-5, 20),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

// Property-based test: resolution is deterministic
func TestResolve_PropertyDeterministic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	record, err := types.ParseJSON([]byte(`{"z": {"value": 1}, "a": {"value": [2, 3]}}`))
	if err != nil {
		t.Fatal(err)
	}

	properties.Property("same path yields same result", prop.ForAll(
		func(key string, idx int) bool {
			path := key + ".value[" + string(rune('0'+idx)) + "]"
			r1 := Resolve(record, path)
			r2 := Resolve(record, path)
			return r1.Found == r2.Found && r1.Value.Equal(r2.Value)
		},
		gen.OneConstOf("a", "z", "m"),
		gen.IntRange(0, 3),
	))

	properties.TestingRun(t)
}
