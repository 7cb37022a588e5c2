// internal/verify/errors.go
package verify

import (
	"errors"
	"fmt"
)

// ErrorCode classifies why a verification run failed.
type ErrorCode string

const (
	// -- Check failures --
	CodeNavigation  ErrorCode = "NAVIGATION_ERROR"
	CodeTimeout     ErrorCode = "TIMEOUT_ERROR"
	CodeAssertion   ErrorCode = "ASSERTION_ERROR"
	CodePageRuntime ErrorCode = "PAGE_RUNTIME_ERROR"

	// -- Harness failures --
	CodeInvalidPlan ErrorCode = "INVALID_PLAN"
	CodeBrowser     ErrorCode = "BROWSER_ERROR"
	CodeArtifact    ErrorCode = "ARTIFACT_ERROR"
)

// Sentinels for errors.Is. Any *Error with the matching code compares equal.
var (
	ErrNavigation  = &Error{Code: CodeNavigation}
	ErrTimeout     = &Error{Code: CodeTimeout}
	ErrAssertion   = &Error{Code: CodeAssertion}
	ErrPageRuntime = &Error{Code: CodePageRuntime}
)

// Error is a classified run failure.
type Error struct {
	Code ErrorCode
	// Op names the step that failed, e.g. "wait for .atlas-tile-loaded".
	Op  string
	Err error
}

func newError(code ErrorCode, op string, err error) *Error {
	return &Error{Code: code, Op: op, Err: err}
}

func (e *Error) Error() string {
	switch {
	case e.Op == "" && e.Err == nil:
		return string(e.Code)
	case e.Err == nil:
		return fmt.Sprintf("%s: %s", e.Code, e.Op)
	case e.Op == "":
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	default:
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Op, e.Err)
	}
}

// Unwrap provides the underlying error for use with errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on code, so errors.Is(err, ErrTimeout) holds for any timeout.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// CodeOf returns the code of the first *Error in err's chain, or "" if there is none.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
