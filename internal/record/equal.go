package record

// Equal compares two normalized values. Numbers compare by numeric value
// across int64 and float64; lists compare element-wise; objects compare
// by key set and values.
func Equal(a, b any) bool {
	switch av := a.(type) {
	case nil:
		return b == nil
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case int64, float64, int:
		return numericEqual(a, b)
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Record:
		return mapEqual(av, b)
	case map[string]any:
		return mapEqual(av, b)
	default:
		return false
	}
}

func mapEqual(a map[string]any, b any) bool {
	var bm map[string]any
	switch bv := b.(type) {
	case Record:
		bm = bv
	case map[string]any:
		bm = bv
	default:
		return false
	}
	if len(a) != len(bm) {
		return false
	}
	for k, v := range a {
		w, ok := bm[k]
		if !ok || !Equal(v, w) {
			return false
		}
	}
	return true
}

func numericEqual(a, b any) bool {
	af, aInt, aOK := numeric(a)
	bf, bInt, bOK := numeric(b)
	if !aOK || !bOK {
		return false
	}
	if aInt != nil && bInt != nil {
		return *aInt == *bInt
	}
	return af == bf
}

func numeric(v any) (float64, *int64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), &n, true
	case int:
		i := int64(n)
		return float64(n), &i, true
	case float64:
		return n, nil, true
	default:
		return 0, nil, false
	}
}
