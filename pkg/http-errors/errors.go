package httpErrors

import (
	"errors"
	"net/http"

	dErrors "verigate/pkg/domain-errors"
)

// ToHTTPStatus maps a domain error code to the HTTP status the transport
// layer must return for it.
func ToHTTPStatus(code dErrors.Code) int {
	switch code {
	case dErrors.CodeInvalidInput, dErrors.CodeBadRequest, dErrors.CodeValidation:
		return http.StatusBadRequest
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden:
		return http.StatusForbidden
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// StatusFor resolves any error to an HTTP status, defaulting to 500 for
// errors that carry no domain code.
func StatusFor(err error) int {
	var e *dErrors.Error
	if errors.As(err, &e) {
		return ToHTTPStatus(e.Code)
	}
	return http.StatusInternalServerError
}

// CodeFor returns the domain code for an error, or internal_error.
func CodeFor(err error) dErrors.Code {
	var e *dErrors.Error
	if errors.As(err, &e) {
		return e.Code
	}
	return dErrors.CodeInternal
}
