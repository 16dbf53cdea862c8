// Package apperr is the shared request-scoped error model. Every failure in
// the circulation core maps to one Code; handlers translate the code to an
// HTTP status and never leak raw SQL errors to clients.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeNotFound        Code = "NOT_FOUND"
	CodeConflict        Code = "CONFLICT"
	CodeInternal        Code = "INTERNAL"

	CodeInvalidDateRange        Code = "INVALID_DATE_RANGE"
	CodeEmptyRequest            Code = "EMPTY_REQUEST"
	CodeDocumentArchived        Code = "DOCUMENT_ARCHIVED"
	CodeNoCopiesSelected        Code = "NO_COPIES_SELECTED"
	CodeNoCopiesAvailable       Code = "NO_COPIES_AVAILABLE"
	CodeCopiesNoLongerAvailable Code = "COPIES_NO_LONGER_AVAILABLE"
	CodeCopyCurrentlyLoaned     Code = "COPY_CURRENTLY_LOANED"
	CodeDocumentHasOpenLoans    Code = "DOCUMENT_HAS_OPEN_LOANS"
)

type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

func New(code Code, msg string) *Error { return &Error{Code: code, Message: msg} }

func Invalid(msg string) *Error  { return New(CodeInvalidArgument, msg) }
func NotFound(msg string) *Error { return New(CodeNotFound, msg) }
func Conflict(msg string) *Error { return New(CodeConflict, msg) }
func Internal(msg string) *Error { return New(CodeInternal, msg) }

func InvalidDateRange(msg string) *Error  { return New(CodeInvalidDateRange, msg) }
func EmptyRequest(msg string) *Error      { return New(CodeEmptyRequest, msg) }
func DocumentArchived(msg string) *Error  { return New(CodeDocumentArchived, msg) }
func NoCopiesSelected(msg string) *Error  { return New(CodeNoCopiesSelected, msg) }
func NoCopiesAvailable(msg string) *Error { return New(CodeNoCopiesAvailable, msg) }
func CopiesNoLongerAvailable(msg string) *Error {
	return New(CodeCopiesNoLongerAvailable, msg)
}
func CopyCurrentlyLoaned(msg string) *Error  { return New(CodeCopyCurrentlyLoaned, msg) }
func DocumentHasOpenLoans(msg string) *Error { return New(CodeDocumentHasOpenLoans, msg) }

// CodeOf extracts the Code from err, or CodeInternal for unknown errors.
func CodeOf(err error) Code {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeInternal
}

func ToHTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeInvalidArgument, CodeInvalidDateRange, CodeEmptyRequest, CodeNoCopiesSelected:
		return http.StatusUnprocessableEntity
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeDocumentArchived, CodeNoCopiesAvailable,
		CodeCopiesNoLongerAvailable, CodeCopyCurrentlyLoaned, CodeDocumentHasOpenLoans:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
