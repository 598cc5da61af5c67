package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/gwatkins2090/portfolio/internal/cart"
	"github.com/gwatkins2090/portfolio/internal/content"
	"github.com/gwatkins2090/portfolio/internal/domain"
)

// apiError — ошибка с HTTP-статусом и машинно-читаемым кодом.
type apiError struct {
	Status  int
	Code    string
	Message string
}

func (e *apiError) Error() string {
	return e.Message
}

func errorf(status int, code, format string, args ...any) *apiError {
	return &apiError{Status: status, Code: code, Message: fmt.Sprintf(format, args...)}
}

type errorBody struct {
	Error errorPayload `json:"error"`
}

type errorPayload struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// translateError переводит доменные ошибки в HTTP. Единственное место такого сопоставления.
func translateError(err error) *apiError {
	var apiErr *apiError
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case domain.IsPrecondition(err):
		return errorf(http.StatusUnprocessableEntity, "invalid_artwork", "%s", err.Error())
	case errors.Is(err, domain.ErrArtworkNotFound), errors.Is(err, domain.ErrContentNotFound):
		return errorf(http.StatusNotFound, "not_found", "%s", err.Error())
	case errors.Is(err, domain.ErrCartEmpty):
		return errorf(http.StatusConflict, "cart_empty", "%s", err.Error())
	case errors.Is(err, cart.ErrSessionRequired):
		return errorf(http.StatusBadRequest, "session_required", "%s", err.Error())
	case errors.Is(err, domain.ErrDraftSecretInvalid), errors.Is(err, content.ErrRevalidateUnauthorized):
		return errorf(http.StatusUnauthorized, "unauthorized", "%s", err.Error())
	case errors.Is(err, content.ErrRevalidateInvalid):
		return errorf(http.StatusBadRequest, "invalid_request", "%s", err.Error())
	case errors.Is(err, domain.ErrPreviewTokenRequired):
		return errorf(http.StatusServiceUnavailable, "preview_unavailable", "%s", err.Error())
	case errors.Is(err, domain.ErrUnknownQuery):
		return errorf(http.StatusInternalServerError, "internal", "internal error")
	default:
		return errorf(http.StatusBadGateway, "content_unavailable", "content source is unavailable")
	}
}

func (a *api) writeError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := translateError(err)
	if apiErr.Status >= http.StatusInternalServerError {
		a.logger.WithError(err).WithFields(log.Fields{
			"path":       r.URL.Path,
			"request_id": chimw.GetReqID(r.Context()),
		}).Warn("request failed")
	}
	writeAPIError(w, r, apiErr)
}

func writeAPIError(w http.ResponseWriter, r *http.Request, apiErr *apiError) {
	writeJSON(w, apiErr.Status, errorBody{Error: errorPayload{
		Code:      apiErr.Code,
		Message:   apiErr.Message,
		RequestID: chimw.GetReqID(r.Context()),
	}})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return errorf(http.StatusBadRequest, "invalid_json", "invalid request body: %v", err)
	}
	return nil
}
