package server

import (
	"net/http"
	"strings"

	"github.com/vincentbai/stepcoach/internal/auth"
	"github.com/vincentbai/stepcoach/internal/database"
	"github.com/vincentbai/stepcoach/internal/guide"
	"github.com/vincentbai/stepcoach/internal/httputil"
	"github.com/vincentbai/stepcoach/internal/models"
	"github.com/vincentbai/stepcoach/internal/recording"
)

func principal(r *http.Request) auth.Principal {
	p, _ := auth.FromContext(r.Context())
	return p
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	httputil.OkJSON(w, principal(r))
}

type startSessionRequest struct {
	TargetURL string `json:"target_url"`
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if !parseBody(w, r, &req) {
		return
	}
	caller := principal(r)
	session, err := s.Recorder.Start(r.Context(), caller.OrgID, caller.UserID, req.TargetURL)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, session)
}

type sessionProgress struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	StepCount int    `json:"step_count"`
}

// handleAppendSteps takes a batch of buffered steps from the recorder.
func (s *Server) handleAppendSteps(w http.ResponseWriter, r *http.Request) {
	var batch models.Batch
	if !parseBody(w, r, &batch) {
		return
	}
	if len(batch.Steps) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	session, err := s.Recorder.Append(r.Context(), principal(r).OrgID, httputil.PathVar(r, "id"), batch.Steps)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.OkJSON(w, sessionProgress{ID: session.ID, Status: session.Status, StepCount: len(session.Steps)})
}

func (s *Server) handleFinishSession(w http.ResponseWriter, r *http.Request) {
	var req recording.FinishRequest
	if !parseBody(w, r, &req) {
		return
	}
	walkthrough, err := s.Recorder.Finish(r.Context(), principal(r).OrgID, httputil.PathVar(r, "id"), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, walkthrough)
}

// handleExtensionListWalkthroughs lists what the player can run: ready
// walkthroughs unless a status is asked for.
func (s *Server) handleExtensionListWalkthroughs(w http.ResponseWriter, r *http.Request) {
	filter := listFilter(r)
	if filter.Status == "" {
		filter.Status = models.StatusReady
	}
	if url := strings.TrimSpace(r.URL.Query().Get("url")); url != "" {
		s.listForURL(w, r, filter, url)
		return
	}
	walkthroughs, err := s.db.ListWalkthroughs(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.OkJSON(w, walkthroughs)
}

// listForURL keeps walkthroughs whose target shares the host of the page the
// extension is on.
func (s *Server) listForURL(w http.ResponseWriter, r *http.Request, filter database.ListFilter, pageURL string) {
	filter.Limit = 200
	walkthroughs, err := s.db.ListWalkthroughs(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	matching := []models.Walkthrough{}
	for _, walkthrough := range walkthroughs {
		if sameHost(walkthrough.TargetURL, pageURL) {
			matching = append(matching, walkthrough)
		}
	}
	httputil.OkJSON(w, matching)
}

type instructionRequest struct {
	Step models.Step `json:"step"`
}

type instructionResponse struct {
	Instruction string `json:"instruction"`
}

func (s *Server) handleInstruction(w http.ResponseWriter, r *http.Request) {
	var req instructionRequest
	if !parseBody(w, r, &req) {
		return
	}
	if err := s.db.ValidateStep(req.Step); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	instruction, err := s.Processor.Instruction(r.Context(), req.Step)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.OkJSON(w, instructionResponse{Instruction: instruction})
}

type chatRequest struct {
	WalkthroughID string       `json:"walkthrough_id"`
	StepIndex     int          `json:"step_index"`
	History       []guide.Turn `json:"history"`
	Question      string       `json:"question"`
}

type chatResponse struct {
	Answer string `json:"answer"`
}

func (s *Server) handleGuideChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !parseBody(w, r, &req) {
		return
	}
	walkthrough, err := s.db.GetOrgWalkthrough(r.Context(), principal(r).OrgID, req.WalkthroughID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	answer, err := s.Guide.Chat(r.Context(), walkthrough, req.StepIndex, req.History, req.Question)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.OkJSON(w, chatResponse{Answer: answer})
}

type playbackRequest struct {
	SessionID string `json:"session_id"`
	StepIndex int    `json:"step_index"`
	Kind      string `json:"kind"`
}

func (s *Server) handlePlayback(w http.ResponseWriter, r *http.Request) {
	var req playbackRequest
	if !parseBody(w, r, &req) {
		return
	}
	caller := principal(r)
	walkthrough, err := s.db.GetOrgWalkthrough(r.Context(), caller.OrgID, httputil.PathVar(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if req.StepIndex >= len(walkthrough.Steps) {
		httputil.BadRequest(w, "step index out of range")
		return
	}
	err = s.db.RecordPlayback(r.Context(), models.PlaybackEvent{
		WalkthroughID: walkthrough.ID,
		OrgID:         caller.OrgID,
		UserID:        caller.UserID,
		SessionID:     req.SessionID,
		StepIndex:     req.StepIndex,
		Kind:          req.Kind,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
