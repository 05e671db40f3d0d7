package docindex

import (
	"errors"
	"fmt"
)

var ErrIndexNotFound = errors.New("index not found")

const (
	CodeValidation = "validation"
	CodeNotFound   = "not_found"
	CodeInternal   = "internal"
)

// Error is a request failure with its HTTP status already decided.
type Error struct {
	Code    string
	Message string
	Status  int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func statusForCode(code string) int {
	switch code {
	case CodeValidation:
		return 400
	case CodeNotFound:
		return 404
	default:
		return 500
	}
}

func newError(code, message string) *Error {
	return &Error{Code: code, Message: message, Status: statusForCode(code)}
}
