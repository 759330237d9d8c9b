package validate

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cori-do/cori/internal/permission"
)

// evaluateOnlyWhen implements OR over ow's condition sets, AND within
// each set, ported faithfully from the original constraint evaluator.
// Fail-closed: any unresolvable reference makes the enclosing condition,
// and therefore its whole AND-group, fail rather than silently pass.
func evaluateOnlyWhen(ow permission.OnlyWhen, current, args map[string]any) (bool, error) {
	var lastErr error
	for _, set := range ow {
		ok, err := evaluateConditionSet(set, current, args)
		if err != nil {
			lastErr = err
			continue
		}
		if ok {
			return true, nil
		}
	}
	if lastErr != nil {
		return false, lastErr
	}
	return false, nil
}

func evaluateConditionSet(set permission.ConditionMap, current, args map[string]any) (bool, error) {
	for key, cond := range set {
		scope, col, err := splitKey(key)
		if err != nil {
			return false, err
		}
		val, ok := resolveScoped(scope, col, current, args)
		if !ok {
			// Fail-closed: referenced row state unavailable.
			return false, nil
		}
		ok, err = checkCondition(cond, val, current, args)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func splitKey(key string) (scope, column string, err error) {
	switch {
	case strings.HasPrefix(key, "old."):
		return "old", strings.TrimPrefix(key, "old."), nil
	case strings.HasPrefix(key, "new."):
		return "new", strings.TrimPrefix(key, "new."), nil
	default:
		return "", "", fmt.Errorf("only_when key %q must be prefixed with old. or new.", key)
	}
}

func resolveScoped(scope, col string, current, args map[string]any) (any, bool) {
	switch scope {
	case "old":
		if current == nil {
			return nil, false
		}
		v, ok := current[col]
		return v, ok
	case "new":
		v, ok := args[col]
		return v, ok
	default:
		return nil, false
	}
}

// resolveRef resolves a value that may be a literal or an "old.x"/"new.x"
// column reference string. Fail-closed: an unresolvable reference
// returns ok=false.
func resolveRef(v any, current, args map[string]any) (any, bool) {
	s, isStr := v.(string)
	if !isStr {
		return v, true
	}
	scope, col, err := splitKey(s)
	if err != nil {
		return v, true // not a reference, a literal string
	}
	return resolveScoped(scope, col, current, args)
}

func checkCondition(cond permission.ColumnCondition, val any, current, args map[string]any) (bool, error) {
	switch {
	case cond.IsLiteral:
		return valuesEqual(val, cond.Literal), nil
	case cond.IsList:
		return memberOfAny(val, cond.ListVals), nil
	}

	if cond.Equals != nil {
		if !valuesEqual(val, *cond.Equals) {
			return false, nil
		}
	}
	if cond.NotEquals != nil {
		if valuesEqual(val, *cond.NotEquals) {
			return false, nil
		}
	}
	if cond.GreaterThan != nil {
		ok, cmpOK := compareNumeric(val, cond.GreaterThan, current, args, func(a, b float64) bool { return a > b })
		if !cmpOK || !ok {
			return false, nil
		}
	}
	if cond.GreaterThanOrEqual != nil {
		ok, cmpOK := compareNumeric(val, cond.GreaterThanOrEqual, current, args, func(a, b float64) bool { return a >= b })
		if !cmpOK || !ok {
			return false, nil
		}
	}
	if cond.LowerThan != nil {
		ok, cmpOK := compareNumeric(val, cond.LowerThan, current, args, func(a, b float64) bool { return a < b })
		if !cmpOK || !ok {
			return false, nil
		}
	}
	if cond.LowerThanOrEqual != nil {
		ok, cmpOK := compareNumeric(val, cond.LowerThanOrEqual, current, args, func(a, b float64) bool { return a <= b })
		if !cmpOK || !ok {
			return false, nil
		}
	}
	if cond.In != nil {
		if !memberOfAny(val, cond.In) {
			return false, nil
		}
	}
	if cond.NotIn != nil {
		if memberOfAny(val, cond.NotIn) {
			return false, nil
		}
	}
	if cond.HasNotNull {
		isNil := val == nil
		want := cond.NotNull
		if want && isNil {
			return false, nil
		}
		if !want && !isNil {
			return false, nil
		}
	}
	if cond.HasIsNull {
		isNil := val == nil
		want := cond.IsNull
		if want && !isNil {
			return false, nil
		}
		if !want && isNil {
			return false, nil
		}
	}
	if cond.StartsWith != nil {
		ref, ok := resolveRef(cond.StartsWith, current, args)
		if !ok {
			return false, nil
		}
		prefix, ok1 := toString(ref)
		str, ok2 := toString(val)
		if !ok1 || !ok2 || !strings.HasPrefix(str, prefix) {
			return false, nil
		}
	}
	return true, nil
}

// compareNumeric resolves ref (literal number or old./new. column
// reference) and compares it against val using cmp. The second return
// value is false if either side could not be resolved to a number
// (fail-closed).
func compareNumeric(val, ref any, current, args map[string]any, cmp func(a, b float64) bool) (bool, bool) {
	resolved, ok := resolveRef(ref, current, args)
	if !ok {
		return false, false
	}
	a, ok1 := toFloat(val)
	b, ok2 := toFloat(resolved)
	if !ok1 || !ok2 {
		return false, false
	}
	return cmp(a, b), true
}

func memberOfAny(val any, set []any) bool {
	for _, v := range set {
		if valuesEqual(val, v) {
			return true
		}
	}
	return false
}

func valuesEqual(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
	}
	as, aok := toString(a)
	bs, bok := toString(b)
	if aok && bok {
		return as == bs
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func toString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case nil:
		return "", false
	default:
		return fmt.Sprintf("%v", s), true
	}
}
