package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors mapped to HTTP statuses by RespondError.
var (
	ErrNotFound   = errors.New("resource not found")
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("conflict")
)

// RespondError maps domain errors onto the {success,message} envelope.
// When devMode is false the underlying message of unexpected errors is
// withheld and a generic one is returned instead.
func RespondError(w http.ResponseWriter, err error, devMode bool) {
	switch {
	case errors.Is(err, ErrNotFound):
		Fail(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrValidation):
		Fail(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrConflict):
		Fail(w, http.StatusConflict, err.Error())
	default:
		if devMode {
			Fail(w, http.StatusInternalServerError, err.Error())
			return
		}
		Fail(w, http.StatusInternalServerError, "internal error")
	}
}
