package rules

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/solatis/labelkeeper/internal/types"
)

func TestAsNumber(t *testing.T) {
	tests := []struct {
		name   string
		value  types.Value
		want   float64
		wantOK bool
	}{
		{name: "number passthrough", value: types.Number(42.5), want: 42.5, wantOK: true},
		{name: "integer string", value: types.String("25"), want: 25, wantOK: true},
		{name: "decimal string", value: types.String("3.14159"), want: 3.14159, wantOK: true},
		{name: "negative string", value: types.String("-100"), want: -100, wantOK: true},
		{name: "scientific notation", value: types.String("1e10"), want: 1e10, wantOK: true},
		{name: "string with whitespace", value: types.String("  42  "), want: 42, wantOK: true},
		{name: "non-numeric string", value: types.String("abc"), wantOK: false},
		{name: "empty string", value: types.String(""), wantOK: false},
		{name: "whitespace-only string", value: types.String("   "), wantOK: false},
		{name: "trailing garbage", value: types.String("12abc"), wantOK: false},
		{name: "hex float rejected", value: types.String("0x1p4"), wantOK: false},
		{name: "signed hex rejected", value: types.String("-0X10"), wantOK: false},
		{name: "overflow is +Inf", value: types.String("1e400"), want: math.Inf(1), wantOK: true},
		{name: "negative overflow is -Inf", value: types.String("-1e400"), want: math.Inf(-1), wantOK: true},
		{name: "bool true rejected", value: types.Bool(true), wantOK: false},
		{name: "bool false rejected", value: types.Bool(false), wantOK: false},
		{name: "null rejected", value: types.Null(), wantOK: false},
		{name: "array rejected", value: types.Array(types.Number(1)), wantOK: false},
		{name: "object rejected", value: types.Object(nil), wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := AsNumber(tt.value)
			if ok != tt.wantOK {
				t.Fatalf("AsNumber() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got != tt.want && math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("AsNumber() = %v, want %v", got, tt.want)
			}
		})
	}
}

// Property-based test: numbers always coerce to themselves
func TestAsNumber_PropertyNumbersPassThrough(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("Number(f) coerces to f", prop.ForAll(
		func(f float64) bool {
			got, ok := AsNumber(types.Number(f))
			return ok && got == f
		},
		gen.Float64Range(-1e12, 1e12),
	))

	properties.Property("bools never coerce", prop.ForAll(
		func(b bool) bool {
			_, ok := AsNumber(types.Bool(b))
			return !ok
		},
		gen.Bool(),
	))

	properties.TestingRun(t)
}
