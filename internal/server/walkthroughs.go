package server

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vincentbai/stepcoach/internal/database"
	"github.com/vincentbai/stepcoach/internal/httputil"
	"github.com/vincentbai/stepcoach/internal/logging"
	"github.com/vincentbai/stepcoach/internal/models"
)

type listQuery struct {
	Status   string `form:"status"`
	Category string `form:"category"`
	Limit    int    `form:"limit"`
	Offset   int    `form:"offset"`
}

func listFilter(r *http.Request) database.ListFilter {
	var query listQuery
	httputil.Bind(r, &query)
	return database.ListFilter{
		OrgID:    principal(r).OrgID,
		Status:   query.Status,
		Category: query.Category,
		Limit:    query.Limit,
		Offset:   query.Offset,
	}
}

func sameHost(a, b string) bool {
	first, err := url.Parse(a)
	if err != nil || first.Host == "" {
		return false
	}
	second, err := url.Parse(b)
	if err != nil {
		return false
	}
	return strings.EqualFold(first.Hostname(), second.Hostname())
}

func (s *Server) handleListWalkthroughs(w http.ResponseWriter, r *http.Request) {
	filter := listFilter(r)
	if filter.Status != "" && filter.Status != models.StatusProcessing && filter.Status != models.StatusReady {
		httputil.BadRequest(w, "status must be processing or ready")
		return
	}
	walkthroughs, err := s.db.ListWalkthroughs(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.OkJSON(w, walkthroughs)
}

func (s *Server) handleGetWalkthrough(w http.ResponseWriter, r *http.Request) {
	walkthrough, err := s.db.GetOrgWalkthrough(r.Context(), principal(r).OrgID, httputil.PathVar(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.OkJSON(w, walkthrough)
}

func (s *Server) handleUpdateWalkthrough(w http.ResponseWriter, r *http.Request) {
	var update database.MetadataUpdate
	if !parseBody(w, r, &update) {
		return
	}
	walkthrough, err := s.db.UpdateWalkthrough(r.Context(), principal(r).OrgID, httputil.PathVar(r, "id"), update)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.OkJSON(w, walkthrough)
}

func (s *Server) handleDeleteWalkthrough(w http.ResponseWriter, r *http.Request) {
	if err := s.db.DeleteWalkthrough(r.Context(), principal(r).OrgID, httputil.PathVar(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReplaceSteps(w http.ResponseWriter, r *http.Request) {
	var batch models.Batch
	if !parseBody(w, r, &batch) {
		return
	}
	for position := range batch.Steps {
		stored, err := s.Recorder.StoreScreenshot(batch.Steps[position].Screenshot)
		if err != nil {
			writeError(w, r, fmt.Errorf("step %d: %w", position, err))
			return
		}
		batch.Steps[position].Screenshot = stored
	}
	walkthrough, err := s.db.ReplaceSteps(r.Context(), principal(r).OrgID, httputil.PathVar(r, "id"), batch.Steps)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.OkJSON(w, walkthrough)
}

func (s *Server) handleUpdateStep(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(httputil.PathVar(r, "index"))
	if err != nil {
		httputil.BadRequest(w, "step index must be a number")
		return
	}
	var update database.StepUpdate
	if !parseBody(w, r, &update) {
		return
	}
	if update.Screenshot != nil {
		stored, err := s.Recorder.StoreScreenshot(*update.Screenshot)
		if err != nil {
			writeError(w, r, err)
			return
		}
		update.Screenshot = &stored
	}
	walkthrough, err := s.db.UpdateStep(r.Context(), principal(r).OrgID, httputil.PathVar(r, "id"), index, update)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.OkJSON(w, walkthrough)
}

// handleProcess queues a walkthrough for (re)processing. Steps that already
// carry an instruction keep it.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	walkthrough, err := s.db.GetOrgWalkthrough(r.Context(), principal(r).OrgID, httputil.PathVar(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if walkthrough.IsShared() {
		writeError(w, r, database.ErrShared)
		return
	}
	if walkthrough.Status != models.StatusProcessing {
		if err := s.db.SetStatus(r.Context(), walkthrough.ID, models.StatusProcessing); err != nil {
			writeError(w, r, err)
			return
		}
		walkthrough.Status = models.StatusProcessing
	}
	if !s.Queue.Enqueue(walkthrough.ID) {
		logging.Warnf("processing queue full, walkthrough %s left for the sweeper", walkthrough.ID)
	}
	httputil.WriteJSON(w, http.StatusAccepted, walkthrough)
}

type shareResponse struct {
	Token    string     `json:"token"`
	URL      string     `json:"url"`
	SharedAt *time.Time `json:"shared_at"`
}

func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	caller := principal(r)
	walkthrough, err := s.db.MarkShared(r.Context(), caller.OrgID, httputil.PathVar(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	token, err := s.Auth.Signer().ShareToken(walkthrough.ID, walkthrough.OrgID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.OkJSON(w, shareResponse{Token: token, URL: "/api/share/" + token, SharedAt: walkthrough.SharedAt})
}

type extensionTokenRequest struct {
	TTL string `json:"ttl"`
}

type extensionTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Server) handleExtensionToken(w http.ResponseWriter, r *http.Request) {
	var req extensionTokenRequest
	if !parseBody(w, r, &req) {
		return
	}
	ttl := s.ExtensionTokenTTL
	if req.TTL != "" {
		parsed, err := time.ParseDuration(req.TTL)
		if err != nil || parsed <= 0 {
			httputil.BadRequest(w, "ttl must be a positive duration such as 720h")
			return
		}
		ttl = parsed
	}
	caller := principal(r)
	issuedAt := time.Now()
	token, err := s.Auth.Signer().ExtensionToken(caller.UserID, caller.OrgID, ttl)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, extensionTokenResponse{
		Token:     token,
		ExpiresAt: issuedAt.Add(ttl).UTC().Truncate(time.Millisecond),
	})
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	analytics, err := s.db.Analytics(r.Context(), principal(r).OrgID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.OkJSON(w, analytics)
}
