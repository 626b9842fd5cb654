// Package expr provides the CEL-Go based expression evaluator used by rules
// and alert watches. Expressions are stored data, compiled into sandboxed
// pure programs; evaluation has no side effects and a failing expression
// never affects its siblings.
package expr

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Evaluator compiles and runs data-pool expressions.
type Evaluator struct {
	env *cel.Env
}

// New creates an evaluator with the Kestrel data-pool environment and the
// domain operators (containsAny, diffDays, diffMonths, inList) registered.
func New() (*Evaluator, error) {
	env, err := cel.NewEnv(
		// Merchant payloads mix ints and doubles freely.
		cel.CrossTypeNumericComparisons(true),

		// Data pool namespaces. Merchant payloads are arbitrary, so
		// everything nested is dyn; an absent key surfaces as an
		// isolated evaluation error, not a crash.
		cel.Variable("payload", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("enrichment", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("metrics", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("actors", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("user", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("internal", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("domain", cel.StringType),
		cel.Variable("actionType", cel.StringType),
		cel.Variable("ip", cel.StringType),
		cel.Variable("deviceId", cel.StringType),

		cel.Function("containsAny",
			cel.Overload("containsany_string_list", []*cel.Type{cel.StringType, cel.ListType(cel.DynType)}, cel.BoolType,
				cel.BinaryBinding(containsAny))),
		cel.Function("diffDays",
			cel.Overload("diffdays_dyn_dyn", []*cel.Type{cel.DynType, cel.DynType}, cel.IntType,
				cel.BinaryBinding(diffDays))),
		cel.Function("diffMonths",
			cel.Overload("diffmonths_dyn_dyn", []*cel.Type{cel.DynType, cel.DynType}, cel.IntType,
				cel.BinaryBinding(diffMonths))),
		cel.Function("inList",
			cel.Overload("inlist_dyn_string_list", []*cel.Type{cel.DynType, cel.StringType, cel.ListType(cel.DynType)}, cel.BoolType,
				cel.FunctionBinding(inList))),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Evaluator{env: env}, nil
}

// Compile parses and type-checks an expression. The expression must yield
// bool (dyn is accepted and checked at evaluation time).
func (e *Evaluator) Compile(src string) (cel.Program, error) {
	ast, issues := e.env.Compile(src)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile expression: %w", issues.Err())
	}

	outputType := ast.OutputType()
	if outputType != cel.BoolType && outputType != cel.DynType {
		return nil, fmt.Errorf("expression must return bool, got %s", outputType)
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program: %w", err)
	}
	return program, nil
}

// Evaluate runs a compiled program against a data pool. Any runtime failure
// (absent path, operator misuse) is returned as an EvaluationError scoped
// to this single evaluation.
func (e *Evaluator) Evaluate(program cel.Program, pool map[string]any) (bool, error) {
	out, _, err := program.Eval(withDefaults(pool))
	if err != nil {
		return false, domain.EvaluationErrorf("%v", err)
	}

	b, ok := out.(types.Bool)
	if !ok {
		return false, domain.EvaluationErrorf("expression yielded %s, want bool", out.Type().TypeName())
	}
	return bool(b), nil
}

// withDefaults fills the declared pool variables an activation is missing,
// so a thin pool (e.g. a SIMPLE watch) never fails on declaration lookup.
func withDefaults(pool map[string]any) map[string]any {
	merged := map[string]any{
		"payload":    map[string]any{},
		"enrichment": map[string]any{},
		"metrics":    map[string]any{},
		"actors":     map[string]any{},
		"user":       map[string]any{},
		"internal":   map[string]any{},
		"domain":     "",
		"actionType": "",
		"ip":         "",
		"deviceId":   "",
	}
	for k, v := range pool {
		if v != nil {
			merged[k] = v
		}
	}
	return merged
}

// containsAny reports whether text contains any keyword, case-insensitive.
func containsAny(lhs, rhs ref.Val) ref.Val {
	text, ok := lhs.Value().(string)
	if !ok || text == "" {
		return types.False
	}
	keywords, ok := rhs.(traits.Lister)
	if !ok {
		return types.False
	}

	lowered := strings.ToLower(text)
	it := keywords.Iterator()
	for it.HasNext() == types.True {
		kw, _ := it.Next().Value().(string)
		if kw != "" && strings.Contains(lowered, strings.ToLower(kw)) {
			return types.True
		}
	}
	return types.False
}

// diffDays returns the absolute whole-day difference between two dates.
// Either argument may be the literal "now".
func diffDays(lhs, rhs ref.Val) ref.Val {
	d1, err := toTime(lhs)
	if err != nil {
		return types.NewErr("diffDays: %v", err)
	}
	d2, err := toTime(rhs)
	if err != nil {
		return types.NewErr("diffDays: %v", err)
	}

	days := int64(d1.Sub(d2).Hours() / 24)
	if days < 0 {
		days = -days
	}
	return types.Int(days)
}

// diffMonths returns the absolute calendar-month difference between two
// dates, truncating partial months.
func diffMonths(lhs, rhs ref.Val) ref.Val {
	d1, err := toTime(lhs)
	if err != nil {
		return types.NewErr("diffMonths: %v", err)
	}
	d2, err := toTime(rhs)
	if err != nil {
		return types.NewErr("diffMonths: %v", err)
	}

	if d1.Before(d2) {
		d1, d2 = d2, d1
	}
	months := (d1.Year()-d2.Year())*12 + int(d1.Month()) - int(d2.Month())
	if d1.Day() < d2.Day() {
		months--
	}
	if months < 0 {
		months = 0
	}
	return types.Int(months)
}

// inList reports whether value appears in the supplied list-hit entries
// under the given list type.
func inList(args ...ref.Val) ref.Val {
	if len(args) != 3 {
		return types.NewErr("inList requires 3 arguments")
	}

	value := stringify(args[0])
	listType, _ := args[1].Value().(string)
	entries, ok := args[2].(traits.Lister)
	if !ok {
		return types.False
	}

	it := entries.Iterator()
	for it.HasNext() == types.True {
		entry, ok := it.Next().(traits.Mapper)
		if !ok {
			continue
		}
		v, found := entry.Find(types.String("value"))
		if !found {
			continue
		}
		t, found := entry.Find(types.String("listType"))
		if !found {
			continue
		}
		if stringify(v) == value && stringify(t) == listType {
			return types.True
		}
	}
	return types.False
}

func stringify(v ref.Val) string {
	if s, ok := v.Value().(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v.Value())
}

// toTime parses a date argument: a CEL timestamp, an RFC 3339 string, a
// plain date (2006-01-02), or the literal "now".
func toTime(v ref.Val) (time.Time, error) {
	switch val := v.Value().(type) {
	case time.Time:
		return val, nil
	case string:
		if val == "now" {
			return time.Now().UTC(), nil
		}
		if t, err := time.Parse(time.RFC3339, val); err == nil {
			return t, nil
		}
		if t, err := time.Parse("2006-01-02", val); err == nil {
			return t, nil
		}
		return time.Time{}, fmt.Errorf("unparseable date %q", val)
	default:
		return time.Time{}, fmt.Errorf("unsupported date type %T", val)
	}
}
