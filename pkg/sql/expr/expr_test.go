package expr

import (
	"testing"

	"github.com/cuemby/kvdb/pkg/errs"
	"github.com/cuemby/kvdb/pkg/sql/types"
)

func mustBool(t *testing.T, e *Expression, row types.Row) (bool, bool) {
	t.Helper()
	v, err := Evaluate(e, row)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if v.IsNull() {
		return false, true
	}
	return v.AsBoolean(), false
}

func TestKleeneAnd(t *testing.T) {
	tru := Constant(types.NewBoolean(true))
	fls := Constant(types.NewBoolean(false))
	null := Constant(types.Null())

	cases := []struct {
		l, r     *Expression
		wantNull bool
		want     bool
	}{
		{fls, null, false, false}, // False AND Null = False
		{null, fls, false, false},
		{tru, null, true, false}, // True AND Null = Null
		{tru, tru, false, true},
		{tru, fls, false, false},
	}
	for _, c := range cases {
		got, isNull := mustBool(t, And(c.l, c.r), nil)
		if isNull != c.wantNull {
			t.Fatalf("AND: null=%v want %v", isNull, c.wantNull)
		}
		if !isNull && got != c.want {
			t.Fatalf("AND: got %v want %v", got, c.want)
		}
	}
}

func TestKleeneOr(t *testing.T) {
	tru := Constant(types.NewBoolean(true))
	fls := Constant(types.NewBoolean(false))
	null := Constant(types.Null())

	got, isNull := mustBool(t, Or(tru, null), nil)
	if isNull || !got {
		t.Fatalf("True OR Null should be True, got null=%v val=%v", isNull, got)
	}
	_, isNull = mustBool(t, Or(fls, null), nil)
	if !isNull {
		t.Fatalf("False OR Null should be Null")
	}
}

func TestIsNullIsAlwaysBoolean(t *testing.T) {
	v, err := Evaluate(IsNull(Constant(types.Null())), nil)
	if err != nil || v.IsNull() || !v.AsBoolean() {
		t.Fatalf("IsNull(NULL) should be Boolean(true), got %v err=%v", v, err)
	}
	v, err = Evaluate(IsNull(Constant(types.NewInteger(1))), nil)
	if err != nil || v.IsNull() || v.AsBoolean() {
		t.Fatalf("IsNull(1) should be Boolean(false), got %v err=%v", v, err)
	}
}

func TestArithmeticNullPropagation(t *testing.T) {
	v, err := Evaluate(Add(Constant(types.NewInteger(1)), Constant(types.Null())), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v.IsNull() {
		t.Fatalf("expected NULL, got %v", v)
	}
}

func TestIntegerOverflow(t *testing.T) {
	maxVal := Constant(types.NewInteger(1<<63 - 1))
	_, err := Evaluate(Add(maxVal, Constant(types.NewInteger(1))), nil)
	if err == nil {
		t.Fatal("expected overflow error")
	}
	if errs.KindOf(err) != errs.KindValue {
		t.Fatalf("expected Value error, got %v", err)
	}
}

func TestMixedIntFloatPromotesToFloat(t *testing.T) {
	v, err := Evaluate(Add(Constant(types.NewInteger(1)), Constant(types.NewFloat(0.5))), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	dt, ok := v.DataType()
	if !ok || dt != types.Float {
		t.Fatalf("expected FLOAT, got %v", dt)
	}
	if v.AsFloat() != 1.5 {
		t.Fatalf("expected 1.5, got %v", v.AsFloat())
	}
}

func TestIntegerDivisionYieldsFloat(t *testing.T) {
	v, err := Evaluate(Div(Constant(types.NewInteger(7)), Constant(types.NewInteger(2))), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	dt, ok := v.DataType()
	if !ok || dt != types.Float {
		t.Fatalf("expected FLOAT division result, got %v", dt)
	}
	if v.AsFloat() != 3.5 {
		t.Fatalf("expected 3.5, got %v", v.AsFloat())
	}
}

func TestComparisonOfNullIsNull(t *testing.T) {
	v, err := Evaluate(Eq(Constant(types.NewInteger(1)), Constant(types.Null())), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v.IsNull() {
		t.Fatalf("expected NULL, got %v", v)
	}
}

func TestDerivedComparisons(t *testing.T) {
	one := Constant(types.NewInteger(1))
	two := Constant(types.NewInteger(2))

	v, _ := Evaluate(GTE(two, one), nil)
	if v.IsNull() || !v.AsBoolean() {
		t.Fatalf("2 >= 1 should be true")
	}
	v, _ = Evaluate(LTE(one, two), nil)
	if v.IsNull() || !v.AsBoolean() {
		t.Fatalf("1 <= 2 should be true")
	}
	v, _ = Evaluate(NotEq(one, two), nil)
	if v.IsNull() || !v.AsBoolean() {
		t.Fatalf("1 != 2 should be true")
	}
}

func TestLikePattern(t *testing.T) {
	cases := []struct {
		s, pattern string
		want       bool
	}{
		{"hello", "h%", true},
		{"hello", "h_llo", true},
		{"hello", "world", false},
		{"a.b", "a.b", true}, // literal '.' must not act as regex wildcard
		{"axb", "a.b", false},
	}
	for _, c := range cases {
		v, err := Evaluate(Like(Constant(types.NewString(c.s)), Constant(types.NewString(c.pattern))), nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if v.AsBoolean() != c.want {
			t.Fatalf("LIKE(%q, %q) = %v, want %v", c.s, c.pattern, v.AsBoolean(), c.want)
		}
	}
}

func TestFieldReferenceOutOfRangeIsNull(t *testing.T) {
	row := types.Row{types.NewInteger(1)}
	v, err := Evaluate(Field(5, "", "missing"), row)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v.IsNull() {
		t.Fatalf("expected NULL for out-of-range field, got %v", v)
	}
}

func TestFactorial(t *testing.T) {
	v, err := Evaluate(Factorial(Constant(types.NewInteger(5))), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.AsInteger() != 120 {
		t.Fatalf("expected 120, got %v", v.AsInteger())
	}
}

func TestNegativeFactorialFails(t *testing.T) {
	_, err := Evaluate(Factorial(Constant(types.NewInteger(-1))), nil)
	if err == nil {
		t.Fatal("expected error for negative factorial")
	}
}
