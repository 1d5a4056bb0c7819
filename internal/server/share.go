package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/vincentbai/stepcoach/internal/blobstore"
	"github.com/vincentbai/stepcoach/internal/database"
	"github.com/vincentbai/stepcoach/internal/httputil"
	"github.com/vincentbai/stepcoach/internal/models"
)

// handleSharedWalkthrough serves a walkthrough to anyone holding its share
// token. Walkthroughs that are not ready, or were never shared, look missing.
func (s *Server) handleSharedWalkthrough(w http.ResponseWriter, r *http.Request) {
	shared, err := s.Auth.Share(httputil.PathVar(r, "token"))
	if err != nil {
		httputil.NotFound(w, "")
		return
	}
	walkthrough, err := s.db.GetOrgWalkthrough(r.Context(), shared.OrgID, shared.WalkthroughID)
	if errors.Is(err, database.ErrNotFound) || (err == nil && !publicVisible(walkthrough)) {
		httputil.NotFound(w, "")
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.OkJSON(w, walkthrough)
}

func publicVisible(walkthrough *models.Walkthrough) bool {
	return walkthrough.Status == models.StatusReady && walkthrough.IsShared()
}

func (s *Server) handleScreenshot(w http.ResponseWriter, r *http.Request) {
	key := httputil.PathVar(r, "key")
	file, err := s.Blobs.Open(key)
	if errors.Is(err, blobstore.ErrNotFound) || errors.Is(err, blobstore.ErrInvalidKey) {
		httputil.NotFound(w, "")
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer file.Close()

	w.Header().Set("Content-Type", blobstore.MediaType(key))
	// Keys are content hashes so the bytes behind one never change.
	w.Header().Set("Cache-Control", "private, max-age=31536000, immutable")
	http.ServeContent(w, r, key, time.Time{}, file)
}
