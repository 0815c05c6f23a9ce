// Package expr implements the expression evaluator: a tagged
// tree of constants, field references, logical/comparison/arithmetic
// operators and LIKE, evaluated against an optional row under Kleene
// three-valued logic.
package expr

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"sync"

	"github.com/cuemby/kvdb/pkg/errs"
	"github.com/cuemby/kvdb/pkg/sql/types"
)

// Expression is the evaluator's tagged tree. Exactly one of the typed
// fields is meaningful, selected by Kind.
type Expression struct {
	Kind Kind

	// Constant
	Value types.DataValue

	// Field
	FieldIndex int
	FieldTable string // optional (table, name) annotation, for error messages
	FieldName  string

	// Wildcard carries no payload.

	// unary/binary operators
	Left  *Expression
	Right *Expression

	// Like
	Pattern *Expression
}

// Kind discriminates Expression's variants.
type Kind int

const (
	KindConstant Kind = iota
	KindField
	KindWildcard
	KindAnd
	KindOr
	KindNot
	KindEq
	KindLt
	KindGt
	KindIsNull
	KindAdd
	KindSub
	KindMul
	KindDiv
	KindMod
	KindExp
	KindNeg
	KindFactorial
	KindAssert
	KindLike
)

// Constant builds a literal expression.
func Constant(v types.DataValue) *Expression { return &Expression{Kind: KindConstant, Value: v} }

// Field builds a field-reference expression naming a row index, with an
// optional (table, name) annotation used only for diagnostics.
func Field(index int, table, name string) *Expression {
	return &Expression{Kind: KindField, FieldIndex: index, FieldTable: table, FieldName: name}
}

// Wildcard builds the `*` expression used by SELECT *.
func Wildcard() *Expression { return &Expression{Kind: KindWildcard} }

func And(l, r *Expression) *Expression  { return &Expression{Kind: KindAnd, Left: l, Right: r} }
func Or(l, r *Expression) *Expression   { return &Expression{Kind: KindOr, Left: l, Right: r} }
func Not(e *Expression) *Expression     { return &Expression{Kind: KindNot, Left: e} }
func Eq(l, r *Expression) *Expression   { return &Expression{Kind: KindEq, Left: l, Right: r} }
func Lt(l, r *Expression) *Expression   { return &Expression{Kind: KindLt, Left: l, Right: r} }
func Gt(l, r *Expression) *Expression   { return &Expression{Kind: KindGt, Left: l, Right: r} }
func IsNull(e *Expression) *Expression  { return &Expression{Kind: KindIsNull, Left: e} }
func Add(l, r *Expression) *Expression  { return &Expression{Kind: KindAdd, Left: l, Right: r} }
func Sub(l, r *Expression) *Expression  { return &Expression{Kind: KindSub, Left: l, Right: r} }
func Mul(l, r *Expression) *Expression  { return &Expression{Kind: KindMul, Left: l, Right: r} }
func Div(l, r *Expression) *Expression  { return &Expression{Kind: KindDiv, Left: l, Right: r} }
func Mod(l, r *Expression) *Expression  { return &Expression{Kind: KindMod, Left: l, Right: r} }
func Exp(l, r *Expression) *Expression  { return &Expression{Kind: KindExp, Left: l, Right: r} }
func Neg(e *Expression) *Expression     { return &Expression{Kind: KindNeg, Left: e} }
func Factorial(e *Expression) *Expression {
	return &Expression{Kind: KindFactorial, Left: e}
}
func Assert(e *Expression) *Expression { return &Expression{Kind: KindAssert, Left: e} }
func Like(e, pattern *Expression) *Expression {
	return &Expression{Kind: KindLike, Left: e, Pattern: pattern}
}

// GTE, LTE and NotEq are derived comparisons.
func GTE(l, r *Expression) *Expression   { return Or(Gt(l, r), Eq(l, r)) }
func LTE(l, r *Expression) *Expression   { return Or(Lt(l, r), Eq(l, r)) }
func NotEq(l, r *Expression) *Expression { return Not(Eq(l, r)) }

// Evaluate computes e's value against row (nil for a rowless context, e.g.
// a CREATE TABLE default-value expression).
func Evaluate(e *Expression, row types.Row) (types.DataValue, error) {
	switch e.Kind {
	case KindConstant:
		return e.Value, nil

	case KindField:
		if row == nil || e.FieldIndex < 0 || e.FieldIndex >= len(row) {
			return types.Null(), nil
		}
		return row[e.FieldIndex], nil

	case KindWildcard:
		return types.Null(), errs.Internal("expr: wildcard has no scalar value")

	case KindAnd:
		return evalAnd(e, row)
	case KindOr:
		return evalOr(e, row)
	case KindNot:
		return evalNot(e, row)

	case KindEq:
		return evalEq(e, row)
	case KindLt:
		return evalCompare(e, row, func(c int) bool { return c < 0 })
	case KindGt:
		return evalCompare(e, row, func(c int) bool { return c > 0 })
	case KindIsNull:
		v, err := Evaluate(e.Left, row)
		if err != nil {
			return types.Null(), err
		}
		return types.NewBoolean(v.IsNull()), nil

	case KindAdd, KindSub, KindMul, KindDiv, KindMod, KindExp:
		return evalArith(e, row)
	case KindNeg:
		return evalNeg(e, row)
	case KindFactorial:
		return evalFactorial(e, row)
	case KindAssert:
		return evalAssert(e, row)
	case KindLike:
		return evalLike(e, row)
	}
	return types.Null(), errs.Internal("expr: unknown expression kind %d", e.Kind)
}

// triBool is a ternary value mirroring Kleene logic: known true/false, or
// unknown (NULL).
type triBool struct {
	known bool
	value bool
}

func toTriBool(v types.DataValue) (triBool, error) {
	if v.IsNull() {
		return triBool{known: false}, nil
	}
	dt, _ := v.DataType()
	if dt != types.Boolean {
		return triBool{}, errs.Value("expected BOOLEAN, got %s", dt)
	}
	return triBool{known: true, value: v.AsBoolean()}, nil
}

func fromTriBool(t triBool) types.DataValue {
	if !t.known {
		return types.Null()
	}
	return types.NewBoolean(t.value)
}

func evalAnd(e *Expression, row types.Row) (types.DataValue, error) {
	lv, err := Evaluate(e.Left, row)
	if err != nil {
		return types.Null(), err
	}
	l, err := toTriBool(lv)
	if err != nil {
		return types.Null(), err
	}
	if l.known && !l.value {
		return types.NewBoolean(false), nil // False AND anything = False
	}
	rv, err := Evaluate(e.Right, row)
	if err != nil {
		return types.Null(), err
	}
	r, err := toTriBool(rv)
	if err != nil {
		return types.Null(), err
	}
	if r.known && !r.value {
		return types.NewBoolean(false), nil
	}
	if l.known && r.known {
		return types.NewBoolean(true), nil
	}
	return types.Null(), nil
}

func evalOr(e *Expression, row types.Row) (types.DataValue, error) {
	lv, err := Evaluate(e.Left, row)
	if err != nil {
		return types.Null(), err
	}
	l, err := toTriBool(lv)
	if err != nil {
		return types.Null(), err
	}
	if l.known && l.value {
		return types.NewBoolean(true), nil // True OR anything = True
	}
	rv, err := Evaluate(e.Right, row)
	if err != nil {
		return types.Null(), err
	}
	r, err := toTriBool(rv)
	if err != nil {
		return types.Null(), err
	}
	if r.known && r.value {
		return types.NewBoolean(true), nil
	}
	if l.known && r.known {
		return types.NewBoolean(false), nil
	}
	return types.Null(), nil
}

func evalNot(e *Expression, row types.Row) (types.DataValue, error) {
	v, err := Evaluate(e.Left, row)
	if err != nil {
		return types.Null(), err
	}
	t, err := toTriBool(v)
	if err != nil {
		return types.Null(), err
	}
	if !t.known {
		return types.Null(), nil
	}
	return types.NewBoolean(!t.value), nil
}

func evalEq(e *Expression, row types.Row) (types.DataValue, error) {
	l, err := Evaluate(e.Left, row)
	if err != nil {
		return types.Null(), err
	}
	r, err := Evaluate(e.Right, row)
	if err != nil {
		return types.Null(), err
	}
	if l.IsNull() || r.IsNull() {
		return types.Null(), nil
	}
	lf, rf, ok, err := asComparableFloats(l, r)
	if err != nil {
		return types.Null(), err
	}
	if ok {
		return types.NewBoolean(lf == rf), nil
	}
	return types.NewBoolean(l.Equal(r)), nil
}

func evalCompare(e *Expression, row types.Row, pred func(int) bool) (types.DataValue, error) {
	l, err := Evaluate(e.Left, row)
	if err != nil {
		return types.Null(), err
	}
	r, err := Evaluate(e.Right, row)
	if err != nil {
		return types.Null(), err
	}
	if l.IsNull() || r.IsNull() {
		return types.Null(), nil
	}

	lt, lok := l.DataType()
	rt, rok := r.DataType()
	if !lok || !rok {
		return types.Null(), nil
	}

	switch {
	case lt == types.String && rt == types.String:
		return types.NewBoolean(pred(strings.Compare(l.AsString(), r.AsString()))), nil
	case lt == types.Boolean && rt == types.Boolean:
		lb, rb := boolOrd(l.AsBoolean()), boolOrd(r.AsBoolean())
		return types.NewBoolean(pred(lb - rb)), nil
	default:
		lf, rf, ok, err := asComparableFloats(l, r)
		if err != nil {
			return types.Null(), err
		}
		if !ok {
			return types.Null(), errs.Value("cannot compare %s and %s", lt, rt)
		}
		switch {
		case lf < rf:
			return types.NewBoolean(pred(-1)), nil
		case lf > rf:
			return types.NewBoolean(pred(1)), nil
		default:
			return types.NewBoolean(pred(0)), nil
		}
	}
}

func boolOrd(b bool) int {
	if b {
		return 1
	}
	return 0
}

// asComparableFloats promotes Integer/Float operands to float64 for
// ordering comparisons, mirroring the arithmetic Integer->Float promotion
// rule. ok is false when the pair isn't a numeric pair.
func asComparableFloats(l, r types.DataValue) (float64, float64, bool, error) {
	lt, lok := l.DataType()
	rt, rok := r.DataType()
	if !lok || !rok {
		return 0, 0, false, nil
	}
	numeric := func(t types.DataType) bool { return t == types.Integer || t == types.Float }
	if !numeric(lt) || !numeric(rt) {
		return 0, 0, false, nil
	}
	toF := func(v types.DataValue) float64 {
		dt, _ := v.DataType()
		if dt == types.Integer {
			return float64(v.AsInteger())
		}
		return v.AsFloat()
	}
	return toF(l), toF(r), true, nil
}

func evalArith(e *Expression, row types.Row) (types.DataValue, error) {
	l, err := Evaluate(e.Left, row)
	if err != nil {
		return types.Null(), err
	}
	r, err := Evaluate(e.Right, row)
	if err != nil {
		return types.Null(), err
	}
	if l.IsNull() || r.IsNull() {
		return types.Null(), nil
	}

	lt, lok := l.DataType()
	rt, rok := r.DataType()
	if !lok || !rok || !isNumeric(lt) || !isNumeric(rt) {
		return types.Null(), errs.Value("arithmetic requires numeric operands")
	}

	// Division always promotes to Float, even Integer/Integer.
	if e.Kind == KindDiv || lt == types.Float || rt == types.Float {
		lf := asFloat(l)
		rf := asFloat(r)
		switch e.Kind {
		case KindAdd:
			return types.NewFloat(lf + rf), nil
		case KindSub:
			return types.NewFloat(lf - rf), nil
		case KindMul:
			return types.NewFloat(lf * rf), nil
		case KindDiv:
			if rf == 0 {
				return types.Null(), errs.Value("division by zero")
			}
			return types.NewFloat(lf / rf), nil
		case KindMod:
			if rf == 0 {
				return types.Null(), errs.Value("division by zero")
			}
			return types.NewFloat(math.Mod(lf, rf)), nil
		case KindExp:
			return types.NewFloat(math.Pow(lf, rf)), nil
		}
	}

	li, ri := l.AsInteger(), r.AsInteger()
	switch e.Kind {
	case KindAdd:
		sum := li + ri
		if (ri > 0 && sum < li) || (ri < 0 && sum > li) {
			return types.Null(), errs.Value("overflow")
		}
		return types.NewInteger(sum), nil
	case KindSub:
		diff := li - ri
		if (ri < 0 && diff < li) || (ri > 0 && diff > li) {
			return types.Null(), errs.Value("overflow")
		}
		return types.NewInteger(diff), nil
	case KindMul:
		if li == 0 || ri == 0 {
			return types.NewInteger(0), nil
		}
		prod := li * ri
		if prod/ri != li {
			return types.Null(), errs.Value("overflow")
		}
		return types.NewInteger(prod), nil
	case KindMod:
		if ri == 0 {
			return types.Null(), errs.Value("division by zero")
		}
		return types.NewInteger(li % ri), nil
	case KindExp:
		res, err := checkedIntPow(li, ri)
		if err != nil {
			return types.Null(), err
		}
		return types.NewInteger(res), nil
	}
	return types.Null(), errs.Internal("expr: unreachable arithmetic kind %d", e.Kind)
}

func isNumeric(t types.DataType) bool { return t == types.Integer || t == types.Float }

func asFloat(v types.DataValue) float64 {
	dt, _ := v.DataType()
	if dt == types.Integer {
		return float64(v.AsInteger())
	}
	return v.AsFloat()
}

func checkedIntPow(base, exp int64) (int64, error) {
	if exp < 0 {
		return 0, errs.Value("negative exponent requires FLOAT operands")
	}
	result := int64(1)
	for i := int64(0); i < exp; i++ {
		if base != 0 && (result > math.MaxInt64/absInt64(base) || result < math.MinInt64/absInt64(base)) {
			return 0, errs.Value("overflow")
		}
		result *= base
	}
	return result, nil
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func evalNeg(e *Expression, row types.Row) (types.DataValue, error) {
	v, err := Evaluate(e.Left, row)
	if err != nil {
		return types.Null(), err
	}
	if v.IsNull() {
		return types.Null(), nil
	}
	dt, ok := v.DataType()
	if !ok || !isNumeric(dt) {
		return types.Null(), errs.Value("negation requires a numeric operand")
	}
	if dt == types.Float {
		return types.NewFloat(-v.AsFloat()), nil
	}
	i := v.AsInteger()
	if i == math.MinInt64 {
		return types.Null(), errs.Value("overflow")
	}
	return types.NewInteger(-i), nil
}

func evalFactorial(e *Expression, row types.Row) (types.DataValue, error) {
	v, err := Evaluate(e.Left, row)
	if err != nil {
		return types.Null(), err
	}
	if v.IsNull() {
		return types.Null(), nil
	}
	dt, ok := v.DataType()
	if !ok || dt != types.Integer {
		return types.Null(), errs.Value("factorial requires an INTEGER operand")
	}
	n := v.AsInteger()
	if n < 0 {
		return types.Null(), errs.Value("factorial requires a non-negative operand")
	}
	result := int64(1)
	for i := int64(2); i <= n; i++ {
		if result > math.MaxInt64/i {
			return types.Null(), errs.Value("overflow")
		}
		result *= i
	}
	return types.NewInteger(result), nil
}

// evalAssert evaluates its operand and fails unless it is Boolean(true).
// The planner never builds Assert expressions.
func evalAssert(e *Expression, row types.Row) (types.DataValue, error) {
	v, err := Evaluate(e.Left, row)
	if err != nil {
		return types.Null(), err
	}
	if v.IsNull() {
		return types.Null(), errs.Value("assertion failed: NULL")
	}
	dt, ok := v.DataType()
	if !ok || dt != types.Boolean || !v.AsBoolean() {
		return types.Null(), errs.Value("assertion failed")
	}
	return v, nil
}

var likeCache sync.Map // pattern string -> *regexp.Regexp

func evalLike(e *Expression, row types.Row) (types.DataValue, error) {
	v, err := Evaluate(e.Left, row)
	if err != nil {
		return types.Null(), err
	}
	p, err := Evaluate(e.Pattern, row)
	if err != nil {
		return types.Null(), err
	}
	if v.IsNull() || p.IsNull() {
		return types.Null(), nil
	}
	vt, vok := v.DataType()
	pt, pok := p.DataType()
	if !vok || !pok || vt != types.String || pt != types.String {
		return types.Null(), errs.Value("LIKE requires STRING operands")
	}

	re, err := likeRegexp(p.AsString())
	if err != nil {
		return types.Null(), err
	}
	return types.NewBoolean(re.MatchString(v.AsString())), nil
}

// likeRegexp compiles a SQL LIKE pattern ('%' = zero-or-more, '_' = exactly
// one) to an anchored regexp, caching by pattern text.
func likeRegexp(pattern string) (*regexp.Regexp, error) {
	if cached, ok := likeCache.Load(pattern); ok {
		return cached.(*regexp.Regexp), nil
	}

	var b strings.Builder
	b.WriteByte('^')
	for _, r := range pattern {
		switch r {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteByte('$')

	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, errs.Value("invalid LIKE pattern: %v", err)
	}
	likeCache.Store(pattern, re)
	return re, nil
}

// String renders e for EXPLAIN output.
func (e *Expression) String() string {
	switch e.Kind {
	case KindConstant:
		return e.Value.String()
	case KindField:
		if e.FieldTable != "" {
			return fmt.Sprintf("%s.%s", e.FieldTable, e.FieldName)
		}
		if e.FieldName != "" {
			return e.FieldName
		}
		return fmt.Sprintf("$%d", e.FieldIndex)
	case KindWildcard:
		return "*"
	case KindAnd:
		return fmt.Sprintf("(%s AND %s)", e.Left, e.Right)
	case KindOr:
		return fmt.Sprintf("(%s OR %s)", e.Left, e.Right)
	case KindNot:
		return fmt.Sprintf("NOT (%s)", e.Left)
	case KindEq:
		return fmt.Sprintf("(%s = %s)", e.Left, e.Right)
	case KindLt:
		return fmt.Sprintf("(%s < %s)", e.Left, e.Right)
	case KindGt:
		return fmt.Sprintf("(%s > %s)", e.Left, e.Right)
	case KindIsNull:
		return fmt.Sprintf("(%s IS NULL)", e.Left)
	case KindAdd:
		return fmt.Sprintf("(%s + %s)", e.Left, e.Right)
	case KindSub:
		return fmt.Sprintf("(%s - %s)", e.Left, e.Right)
	case KindMul:
		return fmt.Sprintf("(%s * %s)", e.Left, e.Right)
	case KindDiv:
		return fmt.Sprintf("(%s / %s)", e.Left, e.Right)
	case KindMod:
		return fmt.Sprintf("(%s %% %s)", e.Left, e.Right)
	case KindExp:
		return fmt.Sprintf("(%s ^ %s)", e.Left, e.Right)
	case KindNeg:
		return fmt.Sprintf("-(%s)", e.Left)
	case KindFactorial:
		return fmt.Sprintf("(%s)!", e.Left)
	case KindAssert:
		return fmt.Sprintf("ASSERT(%s)", e.Left)
	case KindLike:
		return fmt.Sprintf("(%s LIKE %s)", e.Left, e.Pattern)
	}
	return "?"
}
