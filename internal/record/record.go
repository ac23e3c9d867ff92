package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strings"
	"unicode/utf16"
)

// ReservedPrefix marks field names owned by the store.
const ReservedPrefix = "_"

// System field names.
const (
	FieldVersion          = "_version"
	FieldTimestamp        = "_timestamp"
	FieldUser             = "_user"
	FieldHead             = "_head"
	FieldArchivedVersions = "_archived_versions"
	FieldArchivedKeys     = "_archived_keys"
)

// Record is a single annotation record.
type Record map[string]any

// Decode parses a JSON object into a Record.
func Decode(data []byte) (Record, error) {
	v, err := decodeValue(data)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("decode record: expected JSON object, got %T", v)
	}
	return Record(obj), nil
}

// DecodeMany parses either a single JSON object or a list of objects.
// The bool result reports whether the input was a list.
func DecodeMany(data []byte) ([]Record, bool, error) {
	v, err := decodeValue(data)
	if err != nil {
		return nil, false, err
	}
	switch val := v.(type) {
	case map[string]any:
		return []Record{val}, false, nil
	case []any:
		out := make([]Record, 0, len(val))
		for i, elem := range val {
			obj, ok := elem.(map[string]any)
			if !ok {
				return nil, true, fmt.Errorf("decode record: element %d: expected JSON object, got %T", i, elem)
			}
			out = append(out, Record(obj))
		}
		return out, true, nil
	default:
		return nil, false, fmt.Errorf("decode record: expected JSON object or list, got %T", v)
	}
}

func decodeValue(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("decode record: trailing data after JSON value")
	}
	return Normalize(raw)
}

// UnmarshalJSON implements json.Unmarshaler with integer preservation.
func (r *Record) UnmarshalJSON(data []byte) error {
	rec, err := Decode(data)
	if err != nil {
		return err
	}
	*r = rec
	return nil
}

// MarshalJSON implements json.Marshaler using canonical JSON.
func (r Record) MarshalJSON() ([]byte, error) {
	return MarshalCanonical(map[string]any(r))
}

// Normalize converts a decoded or caller-built value into the normalized
// value set. json.Number and all Go integer kinds become int64; integral
// numbers written with a fraction or exponent stay float64.
func Normalize(v any) (any, error) {
	switch val := v.(type) {
	case nil, bool, string, int64, float64:
		return val, nil
	case Record:
		return normalizeMap(val)
	case map[string]any:
		return normalizeMap(val)
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			n, err := Normalize(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = n
		}
		return out, nil
	case []string:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out, nil
	case []int64:
		out := make([]any, len(val))
		for i, n := range val {
			out[i] = n
		}
		return out, nil
	case json.Number:
		s := string(val)
		if !strings.ContainsAny(s, ".eE") {
			if n, err := val.Int64(); err == nil {
				return n, nil
			}
		}
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("number %s: %w", s, err)
		}
		return f, nil
	case int:
		return int64(val), nil
	case int8:
		return int64(val), nil
	case int16:
		return int64(val), nil
	case int32:
		return int64(val), nil
	case uint8:
		return int64(val), nil
	case uint16:
		return int64(val), nil
	case uint32:
		return int64(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, fmt.Errorf("integer %d out of int64 range", val)
		}
		return int64(val), nil
	case float32:
		return float64(val), nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

func normalizeMap(m map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(m))
	for k, elem := range m {
		n, err := Normalize(elem)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", k, err)
		}
		out[k] = n
	}
	return out, nil
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	return Record(cloneMap(r))
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case Record:
		return cloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = cloneValue(elem)
		}
		return out
	default:
		return val
	}
}

// SortedKeys returns field names in canonical order (UTF-16 code units).
func (r Record) SortedKeys() []string {
	return sortedKeys(r)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	return keys
}

// compareUTF16 orders strings by UTF-16 code units. Go's native string
// comparison is by UTF-8 bytes, which disagrees for supplementary planes.
func compareUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}

// IsReserved reports whether a field name is owned by the store.
func IsReserved(field string) bool {
	return strings.HasPrefix(field, ReservedPrefix)
}

// ReservedFields returns the sorted reserved field names present in r.
func (r Record) ReservedFields() []string {
	var out []string
	for _, k := range r.SortedKeys() {
		if IsReserved(k) {
			out = append(out, k)
		}
	}
	return out
}

// UserFields returns a deep copy of r without any reserved fields.
func (r Record) UserFields() Record {
	out := make(Record, len(r))
	for k, v := range r {
		if !IsReserved(k) {
			out[k] = cloneValue(v)
		}
	}
	return out
}

// Public returns a deep copy of r without the chain navigation fields and
// the head discriminator. This is the shape returned to readers.
func (r Record) Public() Record {
	out := r.Clone()
	delete(out, FieldHead)
	delete(out, FieldArchivedVersions)
	delete(out, FieldArchivedKeys)
	return out
}

// Int64 returns the field as an integer, accepting integral floats.
func (r Record) Int64(field string) (int64, bool) {
	v, ok := r[field]
	if !ok {
		return 0, false
	}
	return ToInt64(v)
}

// Version returns the encoded _version, or 0 when absent.
func (r Record) Version() int64 {
	v, _ := r.Int64(FieldVersion)
	return v
}

// Timestamp returns _timestamp in unix nanoseconds, or 0 when absent.
func (r Record) Timestamp() int64 {
	v, _ := r.Int64(FieldTimestamp)
	return v
}

// User returns the writer identity.
func (r Record) User() string {
	s, _ := r[FieldUser].(string)
	return s
}

// IsHead reports whether r is a Head record.
func (r Record) IsHead() bool {
	b, _ := r[FieldHead].(bool)
	return b
}

// ArchivedVersions returns the chain versions of a Head record.
func (r Record) ArchivedVersions() ([]int64, error) {
	raw, ok := r[FieldArchivedVersions]
	if !ok || raw == nil {
		return []int64{}, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%s: expected list, got %T", FieldArchivedVersions, raw)
	}
	out := make([]int64, len(list))
	for i, elem := range list {
		n, ok := ToInt64(elem)
		if !ok {
			return nil, fmt.Errorf("%s[%d]: expected integer, got %T", FieldArchivedVersions, i, elem)
		}
		out[i] = n
	}
	return out, nil
}

// ArchivedKeys returns the chain keys of a Head record.
func (r Record) ArchivedKeys() ([]string, error) {
	raw, ok := r[FieldArchivedKeys]
	if !ok || raw == nil {
		return []string{}, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%s: expected list, got %T", FieldArchivedKeys, raw)
	}
	out := make([]string, len(list))
	for i, elem := range list {
		s, ok := elem.(string)
		if !ok {
			return nil, fmt.Errorf("%s[%d]: expected string, got %T", FieldArchivedKeys, i, elem)
		}
		out[i] = s
	}
	return out, nil
}

// SetChain stores the chain arrays in normalized form.
func (r Record) SetChain(versions []int64, keys []string) {
	vs := make([]any, len(versions))
	for i, v := range versions {
		vs[i] = v
	}
	ks := make([]any, len(keys))
	for i, k := range keys {
		ks[i] = k
	}
	r[FieldArchivedVersions] = vs
	r[FieldArchivedKeys] = ks
}

// ToInt64 converts a normalized numeric value to int64. Floats are accepted
// only when integral.
func ToInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		if n != math.Trunc(n) || n > math.MaxInt64 || n < math.MinInt64 {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}

// IsEmpty reports whether a value counts as unset: nil, "", an empty list
// or an empty object.
func IsEmpty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case []any:
		return len(val) == 0
	case map[string]any:
		return len(val) == 0
	case Record:
		return len(val) == 0
	default:
		return false
	}
}
