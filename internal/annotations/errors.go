package annotations

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// CodeInvalidVersion indicates a version tag that does not parse.
	CodeInvalidVersion ErrorCode = "INVALID_VERSION"

	// CodeMissingIDField indicates a payload without the id field.
	CodeMissingIDField ErrorCode = "MISSING_ID_FIELD"

	// CodeReservedFieldConflict indicates a payload carrying a system field.
	CodeReservedFieldConflict ErrorCode = "RESERVED_FIELD_CONFLICT"

	// CodeTooManyQueryValues indicates a membership list over the backend cap.
	CodeTooManyQueryValues ErrorCode = "TOO_MANY_QUERY_VALUES"

	// CodeInvalidRequest indicates a malformed scope, id or query value.
	CodeInvalidRequest ErrorCode = "INVALID_REQUEST"

	// CodeWriteConflict indicates the store gave up retrying a transaction.
	// Callers may retry the whole write.
	CodeWriteConflict ErrorCode = "WRITE_CONFLICT"

	// CodeNotFound indicates an unknown id.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeChainConsistency indicates a chain reference that does not resolve.
	CodeChainConsistency ErrorCode = "CHAIN_CONSISTENCY"

	// CodeStorage wraps any other backend failure.
	CodeStorage ErrorCode = "STORAGE"
)

// Sentinels for errors.Is. Matching compares codes only.
var (
	ErrInvalidVersion        = &Error{Code: CodeInvalidVersion}
	ErrMissingIDField        = &Error{Code: CodeMissingIDField}
	ErrReservedFieldConflict = &Error{Code: CodeReservedFieldConflict}
	ErrTooManyQueryValues    = &Error{Code: CodeTooManyQueryValues}
	ErrInvalidRequest        = &Error{Code: CodeInvalidRequest}
	ErrWriteConflict         = &Error{Code: CodeWriteConflict}
	ErrNotFound              = &Error{Code: CodeNotFound}
	ErrChainConsistency      = &Error{Code: CodeChainConsistency}
	ErrStorage               = &Error{Code: CodeStorage}
)

// Error is the single error type returned by the engine.
//
// Op names the engine operation ("write", "get", "changes", "query",
// "delete"). ID and Field are set when the failure concerns one record or
// one payload field, so callers can correct the request.
type Error struct {
	Code    ErrorCode
	Op      string
	ID      string
	Field   string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	if e.Op != "" {
		b.WriteString(": ")
		b.WriteString(e.Op)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	var ctx []string
	if e.ID != "" {
		ctx = append(ctx, "id="+e.ID)
	}
	if e.Field != "" {
		ctx = append(ctx, "field="+e.Field)
	}
	if len(ctx) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(ctx, ", "))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsNotFound returns true if err is a NOT_FOUND error.
func IsNotFound(err error) bool {
	return CodeOf(err) == CodeNotFound
}

// IsWriteConflict returns true if err is a WRITE_CONFLICT error.
func IsWriteConflict(err error) bool {
	return CodeOf(err) == CodeWriteConflict
}

// IsValidation returns true for errors caused by the request itself.
func IsValidation(err error) bool {
	switch CodeOf(err) {
	case CodeInvalidVersion, CodeMissingIDField, CodeReservedFieldConflict,
		CodeTooManyQueryValues, CodeInvalidRequest:
		return true
	}
	return false
}

// storageError wraps a backend failure unless it is already typed.
func storageError(op, id string, err error) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Code: CodeStorage, Op: op, ID: id, Message: "storage failure", Err: err}
}
