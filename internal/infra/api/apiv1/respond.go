package apiv1

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"

	"jesusia-companion/internal/domain"
	"jesusia-companion/internal/infra/logging"
)

type errorBody struct {
	Error string `json:"error"`
}

type listBody[T any] struct {
	Items []T `json:"items"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// fail maps use case errors onto status codes.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		writeErr(w, http.StatusBadRequest, "invalid argument")
	case errors.Is(err, domain.ErrNotFound):
		writeErr(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrInsufficientCredits):
		writeErr(w, http.StatusPaymentRequired, "insufficient credits")
	case errors.Is(err, domain.ErrUnsupportedSchema):
		writeErr(w, http.StatusConflict, "stored data written by a newer version")
	case errors.Is(err, domain.ErrStorageRead), errors.Is(err, domain.ErrStorageWrite):
		logging.With(r.Context(), s.log).Error().Err(err).Msg("storage failure")
		writeErr(w, http.StatusServiceUnavailable, "storage unavailable")
	default:
		logging.With(r.Context(), s.log).Error().Err(err).Msg("unhandled error")
		writeErr(w, http.StatusInternalServerError, "internal error")
	}
}

// decode reads a JSON body into dst and runs struct validation.
// It writes the error response itself and reports whether to continue.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil {
		writeErr(w, http.StatusBadRequest, "missing body")
		return false
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			writeErr(w, http.StatusUnprocessableEntity, "invalid field: "+verrs[0].Field())
			return false
		}
		writeErr(w, http.StatusUnprocessableEntity, err.Error())
		return false
	}
	return true
}
