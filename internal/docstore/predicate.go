package docstore

import (
	"fmt"
	"strings"

	"github.com/roach88/annostore/internal/record"
)

// Predicate is a filter over document fields.
//
// This is a sealed interface. Backends switch exhaustively over:
//   - Equals: field == value
//   - In: field equals one of values
//   - And: all predicates hold (empty And is always true)
type Predicate interface {
	predicateNode()
}

// Equals matches documents whose field equals Value.
//
// Values are normalized record values (see package record). Numbers
// compare numerically, so 3 and 3.0 are equal.
type Equals struct {
	Field string
	Value any
}

func (Equals) predicateNode() {}

// In matches documents whose field equals any of Values.
type In struct {
	Field  string
	Values []any
}

func (In) predicateNode() {}

// And is a conjunction of predicates.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Eq is shorthand for an Equals predicate.
func Eq(field string, value any) Equals {
	return Equals{Field: field, Value: value}
}

// AllOf is shorthand for an And predicate.
func AllOf(preds ...Predicate) And {
	return And{Predicates: preds}
}

// Validate checks field names and the membership cap.
func Validate(p Predicate, maxIn int) error {
	switch pred := p.(type) {
	case nil:
		return nil
	case Equals:
		return validateField(pred.Field)
	case *Equals:
		return validateField(pred.Field)
	case In:
		return validateIn(pred, maxIn)
	case *In:
		return validateIn(*pred, maxIn)
	case And:
		return validateAnd(pred, maxIn)
	case *And:
		return validateAnd(*pred, maxIn)
	default:
		return fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func validateIn(in In, maxIn int) error {
	if err := validateField(in.Field); err != nil {
		return err
	}
	if len(in.Values) == 0 {
		return fmt.Errorf("field %q: membership predicate needs at least one value", in.Field)
	}
	if maxIn > 0 && len(in.Values) > maxIn {
		return fmt.Errorf("field %q: %w (%d > %d)", in.Field, ErrTooManyValues, len(in.Values), maxIn)
	}
	return nil
}

func validateAnd(and And, maxIn int) error {
	for _, p := range and.Predicates {
		if err := Validate(p, maxIn); err != nil {
			return err
		}
	}
	return nil
}

// validateField rejects names that cannot be addressed as a single
// top-level JSON member.
func validateField(field string) error {
	if field == "" {
		return fmt.Errorf("empty field name")
	}
	if strings.ContainsAny(field, "\"'\\") {
		return fmt.Errorf("field %q: quotes and backslashes are not allowed", field)
	}
	return nil
}

// Match evaluates p against a document in process. Backends without a
// native query language filter scans with it.
func Match(p Predicate, doc record.Record) bool {
	switch pred := p.(type) {
	case nil:
		return true
	case Equals:
		return matchEquals(pred, doc)
	case *Equals:
		return matchEquals(*pred, doc)
	case In:
		return matchIn(pred, doc)
	case *In:
		return matchIn(*pred, doc)
	case And:
		return matchAnd(pred, doc)
	case *And:
		return matchAnd(*pred, doc)
	default:
		return false
	}
}

func matchEquals(eq Equals, doc record.Record) bool {
	v, ok := doc[eq.Field]
	if !ok {
		return false
	}
	return record.Equal(v, eq.Value)
}

func matchIn(in In, doc record.Record) bool {
	v, ok := doc[in.Field]
	if !ok {
		return false
	}
	for _, want := range in.Values {
		if record.Equal(v, want) {
			return true
		}
	}
	return false
}

func matchAnd(and And, doc record.Record) bool {
	for _, p := range and.Predicates {
		if !Match(p, doc) {
			return false
		}
	}
	return true
}
