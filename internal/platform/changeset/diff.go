package changeset

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
)

// DiffOptions controls which keys are considered by Diff.
type DiffOptions struct {
	// ExcludeKeys are never included in the output, even when changed.
	// Used for immutable foreign keys and other fields callers must not
	// silently rewrite.
	ExcludeKeys []string
}

// Diff compares a prior entity snapshot against a sparse update payload and
// returns the set of fields that meaningfully changed. Only keys present in
// after are considered: an absent key means "leave unchanged". Diff has no
// side effects and is safe to call speculatively.
func Diff(before, after map[string]interface{}, opts DiffOptions) ChangeSet {
	excluded := make(map[string]struct{}, len(opts.ExcludeKeys))
	for _, k := range opts.ExcludeKeys {
		excluded[k] = struct{}{}
	}

	out := ChangeSet{}
	for key, newVal := range after {
		if _, skip := excluded[key]; skip {
			continue
		}
		oldVal := before[key]
		if valuesEqual(oldVal, newVal) {
			continue
		}
		out[key] = Change{Before: normalize(oldVal), After: normalize(newVal)}
	}
	return out
}

// valuesEqual applies the semantic equality rules in priority order:
// empty-equivalence, ordered array equality, normalized object equality,
// coerced numeric equality, then string comparison.
func valuesEqual(a, b interface{}) bool {
	a, b = normalize(a), normalize(b)

	aEmpty, bEmpty := isEmpty(a), isEmpty(b)
	if aEmpty || bEmpty {
		return aEmpty && bEmpty
	}

	if as, ok := asSlice(a); ok {
		bs, ok := asSlice(b)
		if !ok || len(as) != len(bs) {
			return false
		}
		for i := range as {
			if !valuesEqual(as[i], bs[i]) {
				return false
			}
		}
		return true
	}

	if am, ok := asMap(a); ok {
		bm, ok := asMap(b)
		if !ok || len(am) != len(bm) {
			return false
		}
		for k, av := range am {
			bv, present := bm[k]
			if !present || !valuesEqual(av, bv) {
				return false
			}
		}
		return true
	}

	if af, ok := asNumber(a); ok {
		if bf, ok := asNumber(b); ok {
			return af == bf
		}
	}

	return stringify(a) == stringify(b)
}

// normalize dereferences pointers so that optional struct fields compare the
// same as plain values. A nil pointer normalizes to nil.
func normalize(v interface{}) interface{} {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	return rv.Interface()
}

// isEmpty treats nil and the empty string as the same "unset" state.
func isEmpty(v interface{}) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

func asSlice(v interface{}) ([]interface{}, bool) {
	if s, ok := v.([]interface{}); ok {
		return s, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return nil, false
	}
	out := make([]interface{}, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	m, ok := v.(map[string]interface{})
	return m, ok
}

// asNumber coerces numeric types and string-encoded numbers to float64.
// The backing store returns decimal columns as strings, so "101.5" must
// compare equal to 101.5.
func asNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

func stringify(v interface{}) string {
	return fmt.Sprintf("%v", v)
}
