package api

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/placebook/placebook/internal/pkg/httputil"
	"github.com/placebook/placebook/internal/pkg/logger"
	"github.com/placebook/placebook/internal/service/place"
)

// =============================================================================
// ERROR SANITIZER
// Internal errors (driver messages, upstream bodies, file paths) never reach
// API consumers. Clients get the failure's stable message and kind; the
// cause is logged server-side with the request id.
// =============================================================================

var kindStatus = map[place.Kind]int{
	place.KindValidation:           http.StatusUnprocessableEntity,
	place.KindAddressNotResolvable: http.StatusUnprocessableEntity,
	place.KindNotFound:             http.StatusNotFound,
	place.KindNoPlacesFound:        http.StatusNotFound,
	place.KindOwnerNotFound:        http.StatusNotFound,
	place.KindForbidden:            http.StatusUnauthorized,
	place.KindUpstreamUnavailable:  http.StatusServiceUnavailable,
	place.KindStoreUnavailable:     http.StatusServiceUnavailable,
	place.KindCreateFailed:         http.StatusInternalServerError,
	place.KindUpdateFailed:         http.StatusInternalServerError,
	place.KindDeleteFailed:         http.StatusInternalServerError,
}

// statusForKind returns the HTTP status for k, 500 for unknown kinds.
func statusForKind(k place.Kind) int {
	if status, ok := kindStatus[k]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// respondFailure writes err as a sanitized error envelope.
func respondFailure(w http.ResponseWriter, r *http.Request, err error) {
	f := place.Translate(err)
	status := statusForKind(f.Kind)
	respondSafeError(w, r, status, string(f.Kind), f.Err, f.Message)
}

// respondSafeError logs the full internal error and sends publicMsg. 5xx
// causes are logged at error level, the rest at debug.
func respondSafeError(w http.ResponseWriter, r *http.Request, status int, code string, internalErr error, publicMsg string) {
	if internalErr != nil {
		fields := []interface{}{
			"status", status,
			"code", code,
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", internalErr,
		}
		if status >= http.StatusInternalServerError {
			logger.Error("request failed", fields...)
		} else {
			logger.Debug("request rejected", fields...)
		}
	}
	httputil.Error(w, status, code, publicMsg)
}
