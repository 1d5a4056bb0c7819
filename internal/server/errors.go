package server

import (
	"errors"
	"net/http"

	"github.com/vincentbai/stepcoach/internal/blobstore"
	"github.com/vincentbai/stepcoach/internal/database"
	"github.com/vincentbai/stepcoach/internal/guide"
	"github.com/vincentbai/stepcoach/internal/httputil"
	"github.com/vincentbai/stepcoach/internal/logging"
)

// writeError maps service errors onto status codes. Anything unrecognised is
// logged and reported as a 500 without detail.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, httputil.ErrBodyTooLarge), errors.Is(err, blobstore.ErrTooLarge):
		httputil.ErrorWithCode(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, database.ErrNotFound):
		httputil.NotFound(w, err.Error())
	case errors.Is(err, database.ErrShared),
		errors.Is(err, database.ErrNotReady),
		errors.Is(err, database.ErrFinished):
		httputil.Conflict(w, err.Error())
	case errors.Is(err, database.ErrInvalid),
		errors.Is(err, database.ErrEmptySession),
		errors.Is(err, guide.ErrStepOutOfRange),
		errors.Is(err, guide.ErrEmptyQuestion):
		httputil.BadRequest(w, err.Error())
	default:
		logging.Errorf("%s %s: %v", r.Method, r.URL.Path, err)
		httputil.InternalError(w, "")
	}
}

// parseBody decodes the request and writes 400 or 413 on failure.
func parseBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := httputil.Parse(r, v); err != nil {
		if errors.Is(err, httputil.ErrBodyTooLarge) {
			httputil.ErrorWithCode(w, http.StatusRequestEntityTooLarge, err.Error())
			return false
		}
		httputil.BadRequest(w, "invalid JSON format")
		return false
	}
	return true
}
