package approval

import "fmt"

// ValidateSnapshot implements P3: compares the row's current state
// (freshly re-fetched by the caller under the same tenant) to the
// snapshot captured when the request was created, column by column.
// A mismatch on any snapshotted column is refused with DataChanged;
// this is the one correctness-critical check this package enforces.
func ValidateSnapshot(original, current map[string]any) error {
	for col, want := range original {
		got, ok := current[col]
		if !ok || !valuesEqual(want, got) {
			return &Error{Kind: DataChanged, ID: fmt.Sprintf("column %q changed", col)}
		}
	}
	return nil
}

func valuesEqual(a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
