package patch

import "fmt"

// Stable error codes surfaced to callers and audit.
const (
	CodeFieldNotAllowed = "PATCH_FIELD_NOT_ALLOWED"
	CodeIndexOutOfRange = "PATCH_INDEX_OUT_OF_RANGE"
	CodeInvalidValue    = "PATCH_INVALID_VALUE"
	CodeUnknownListOp   = "PATCH_UNKNOWN_LIST_OP"
)

// Error is a structural patch rejection. Any Error fails the whole patch
// atomically; the draft is never partially updated.
type Error struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: field %q: %s", e.Code, e.Field, e.Message)
	}

	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newError(code, field, message string) *Error {
	return &Error{Code: code, Field: field, Message: message}
}
