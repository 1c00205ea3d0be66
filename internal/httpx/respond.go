package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/safar/go-sql-shop/internal/auth"
	"github.com/safar/go-sql-shop/internal/database"
	"github.com/sirupsen/logrus"
)

var errBadRequest = errors.New("invalid request body")

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func respondSuccess(w http.ResponseWriter, code int, data any) {
	writeJSON(w, code, map[string]any{"status": "success", "data": data})
}

// respondFail reports a client error.
func respondFail(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]any{
		"status": "fail",
		"data":   map[string]string{"message": message},
	})
}

func respondError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]any{"status": "error", "message": message})
}

// statusFor maps domain errors to HTTP status codes. Zero means unknown.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, database.ErrInvalidQuantity),
		errors.Is(err, database.ErrInvalidStatus),
		errors.Is(err, database.ErrNothingToUpdate),
		errors.Is(err, database.ErrInvalidCursor),
		errors.Is(err, database.ErrInvalidPageRequest),
		errors.Is(err, database.ErrCartEmpty):
		return http.StatusBadRequest

	case errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized

	case errors.Is(err, database.ErrUserNotFound),
		errors.Is(err, database.ErrProductNotFound),
		errors.Is(err, database.ErrVariantNotFound),
		errors.Is(err, database.ErrOrderNotFound),
		errors.Is(err, database.ErrCartItemNotFound),
		errors.Is(err, database.ErrNotificationNotFound),
		errors.Is(err, database.ErrDeviceNotFound):
		return http.StatusNotFound

	case errors.Is(err, database.ErrWrongStatus),
		errors.Is(err, database.ErrInvalidTransition),
		errors.Is(err, database.ErrDeadlinePassed),
		errors.Is(err, database.ErrOrderNotCancelled),
		errors.Is(err, database.ErrDuplicateVariant),
		errors.Is(err, database.ErrVariantInUse),
		errors.Is(err, database.ErrDuplicateSlug),
		errors.Is(err, database.ErrDuplicateEmail):
		return http.StatusConflict

	case errors.Is(err, database.ErrInsufficientStock),
		errors.Is(err, database.ErrItemUnavailable):
		return http.StatusUnprocessableEntity

	case errors.Is(err, database.ErrOrderNumberTaken),
		errors.Is(err, database.ErrLockTimeout),
		database.IsRetryable(err):
		return http.StatusServiceUnavailable
	}
	return 0
}

// writeError renders err in the response envelope. Unknown errors are logged
// and hidden behind a generic message.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	switch {
	case code == 0:
		h.requestLog(r).WithError(err).Error("Request failed")
		respondError(w, http.StatusInternalServerError, "internal server error")
	case code == http.StatusServiceUnavailable:
		h.requestLog(r).WithError(err).Warn("Request hit contention")
		respondError(w, code, "please retry")
	default:
		respondFail(w, code, err.Error())
	}
}

func (h *Handler) requestLog(r *http.Request) logrus.FieldLogger {
	return h.Log.WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
	})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return errBadRequest
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

// pageParams reads page and page_size, falling back to 1 and 20.
func pageParams(r *http.Request) (page, pageSize int) {
	q := r.URL.Query()
	page, _ = strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ = strconv.Atoi(q.Get("page_size"))
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}
