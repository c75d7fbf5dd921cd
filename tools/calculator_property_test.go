package tools

import (
	"fmt"
	"strconv"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"pgregory.net/rapid"
)

// 整数四则运算与 Go 的求值结果一致
func TestProperty_Evaluate_IntegerArithmetic(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		a := rapid.IntRange(-10000, 10000).Draw(rt, "a")
		b := rapid.IntRange(-10000, 10000).Draw(rt, "b")
		c := rapid.IntRange(-100, 100).Draw(rt, "c")

		expr := fmt.Sprintf("%d+%d*(%d)", a, b, c)
		got, err := Evaluate(expr)
		if err != nil {
			rt.Fatalf("evaluate %q: %v", expr, err)
		}
		if want := float64(a + b*c); got != want {
			rt.Fatalf("%q = %v, want %v", expr, got, want)
		}
	})
}

func TestProperty_FormatNumber_Integers(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)
	properties.Property("integral values print without a fractional part", prop.ForAll(
		func(n int64) bool {
			return FormatNumber(float64(n)) == strconv.FormatInt(n, 10)
		},
		gen.Int64Range(-1_000_000_000_000, 1_000_000_000_000),
	))
	properties.TestingRun(t)
}
