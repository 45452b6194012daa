package apperrors

import "fmt"

// Code represents an error kind with its default message.
type Code struct {
	Code    int
	Message string
}

// The ten error kinds surfaced by the core, per spec.md §7. These are not
// transport-specific; a caller mapping them to HTTP or gRPC status codes
// does so at a layer outside Core.
const (
	ErrNotFound          = 1000
	ErrConflict          = 1001
	ErrValidationFailed  = 1002
	ErrTenantUnavailable = 1003
	ErrStorageFailure    = 1004
	ErrProcessingFailure = 1005
	ErrIndexFailure      = 1006
	ErrTooBusy           = 1007
	ErrExpired           = 1008
	ErrInternal          = 1009
)

var codeMap = map[int]Code{
	ErrNotFound:          {ErrNotFound, "subject not found"},
	ErrConflict:          {ErrConflict, "invariant violation at write time"},
	ErrValidationFailed:  {ErrValidationFailed, "caller-provided value out of range"},
	ErrTenantUnavailable: {ErrTenantUnavailable, "tenant registry lookup failed"},
	ErrStorageFailure:    {ErrStorageFailure, "object store operation failed"},
	ErrProcessingFailure: {ErrProcessingFailure, "external processor failed"},
	ErrIndexFailure:      {ErrIndexFailure, "search index unavailable"},
	ErrTooBusy:           {ErrTooBusy, "bounded queue full"},
	ErrExpired:           {ErrExpired, "presigned task past deadline"},
	ErrInternal:          {ErrInternal, "unclassified internal error"},
}

// GetCode returns the Code for a given error code, falling back to Internal.
func GetCode(code int) Code {
	if c, ok := codeMap[code]; ok {
		return c
	}
	return codeMap[ErrInternal]
}

// GetMessage returns the message for a given error code.
func GetMessage(code int) string {
	return GetCode(code).Message
}

// FormatError formats an error message with code.
func FormatError(code int, details ...string) string {
	msg := GetMessage(code)
	if len(details) > 0 && details[0] != "" {
		return fmt.Sprintf("%s: %s", msg, details[0])
	}
	return msg
}
