package sqlitestore

import (
	"fmt"
	"strings"

	"github.com/roach88/annostore/internal/docstore"
)

// compileQuery converts a predicate over one collection to parameterized SQL.
//
// Every query orders by key with COLLATE BINARY so results are stable.
// Values are always bound as parameters. Field names are validated by
// docstore.Validate and inlined as JSON paths.
func compileQuery(collection string, pred docstore.Predicate) (string, []any, error) {
	where, params, err := compilePredicate(pred)
	if err != nil {
		return "", nil, err
	}
	query := "SELECT key, body FROM documents WHERE collection = ?"
	if where != "" {
		query += " AND " + where
	}
	query += " ORDER BY key ASC COLLATE BINARY"
	return query, append([]any{collection}, params...), nil
}

// compilePredicate returns a WHERE fragment, or "" for an always-true predicate.
func compilePredicate(p docstore.Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case nil:
		return "", nil, nil
	case docstore.Equals:
		return compileIn(pred.Field, []any{pred.Value})
	case *docstore.Equals:
		return compileIn(pred.Field, []any{pred.Value})
	case docstore.In:
		return compileIn(pred.Field, pred.Values)
	case *docstore.In:
		return compileIn(pred.Field, pred.Values)
	case docstore.And:
		return compileAnd(pred)
	case *docstore.And:
		return compileAnd(*pred)
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func compileAnd(and docstore.And) (string, []any, error) {
	var parts []string
	var params []any
	for _, pred := range and.Predicates {
		sql, ps, err := compilePredicate(pred)
		if err != nil {
			return "", nil, err
		}
		if sql == "" {
			continue
		}
		parts = append(parts, sql)
		params = append(params, ps...)
	}
	return strings.Join(parts, " AND "), params, nil
}

// compileIn matches a field against a set of scalar values.
//
// JSON type is checked alongside the value because json_extract maps
// true/false to 1/0 and would otherwise equal integer parameters.
// Values group by JSON type and the groups are ORed.
func compileIn(field string, values []any) (string, []any, error) {
	path := jsonPath(field)

	var (
		numbers []any
		texts   []any
		bools   = map[bool]bool{}
		null    bool
	)
	for _, v := range values {
		switch val := v.(type) {
		case nil:
			null = true
		case bool:
			bools[val] = true
		case string:
			texts = append(texts, val)
		case int64, float64:
			numbers = append(numbers, val)
		case int:
			numbers = append(numbers, int64(val))
		default:
			return "", nil, fmt.Errorf("field %q: cannot compare against %T", field, v)
		}
	}

	var parts []string
	var params []any
	if len(numbers) > 0 {
		parts = append(parts, fmt.Sprintf("(json_type(body, %s) IN ('integer', 'real') AND json_extract(body, %s) %s)",
			path, path, membership(len(numbers))))
		params = append(params, numbers...)
	}
	if len(texts) > 0 {
		parts = append(parts, fmt.Sprintf("(json_type(body, %s) = 'text' AND json_extract(body, %s) %s)",
			path, path, membership(len(texts))))
		params = append(params, texts...)
	}
	if bools[true] {
		parts = append(parts, fmt.Sprintf("json_type(body, %s) = 'true'", path))
	}
	if bools[false] {
		parts = append(parts, fmt.Sprintf("json_type(body, %s) = 'false'", path))
	}
	if null {
		parts = append(parts, fmt.Sprintf("json_type(body, %s) = 'null'", path))
	}

	switch len(parts) {
	case 0:
		return "0 = 1", nil, nil
	case 1:
		return parts[0], params, nil
	}
	return "(" + strings.Join(parts, " OR ") + ")", params, nil
}

// membership renders "= ?" for one value and "IN (?, ...)" otherwise.
func membership(n int) string {
	if n == 1 {
		return "= ?"
	}
	return "IN (" + strings.TrimSuffix(strings.Repeat("?, ", n), ", ") + ")"
}

// jsonPath renders the SQL literal addressing a top-level member.
func jsonPath(field string) string {
	return `'$."` + field + `"'`
}
