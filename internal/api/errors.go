package api

import (
	"errors"
	"net/http"

	"lakerunner/internal/domain"
)

// httpStatusFromDomainError maps domain errors to HTTP status codes.
func httpStatusFromDomainError(err error) int {
	var notFound *domain.NotFoundError
	var notReady *domain.NotReadyError
	var unknownEngine *domain.UnknownEngineError
	var unsupported *domain.UnsupportedTypeError
	var validation *domain.ValidationError
	var conflict *domain.ConflictError

	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &unknownEngine):
		return http.StatusNotFound
	case errors.As(err, &notReady):
		return http.StatusConflict
	case errors.As(err, &unsupported):
		return http.StatusBadRequest
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &conflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
