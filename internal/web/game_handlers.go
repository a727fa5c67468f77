package web

import (
	"encoding/base64"
	"net/http"
	"strconv"

	"github.com/writeright/writeright/internal/engine"
	"github.com/writeright/writeright/internal/game"
	"github.com/writeright/writeright/internal/question"
)

type startResponse struct {
	GameID    string               `json:"game_id"`
	Questions []*question.Question `json:"questions"`
}

// handleGameStart selects questions for a round and opens a session.
// qCount defaults to 5 and is capped by the engine's round limit.
func (s *Server) handleGameStart(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	if r.PathValue("user_id") != user.ID {
		writeError(w, http.StatusUnauthorized, "session does not match user")
		return
	}

	count := 5
	if v := r.URL.Query().Get("qCount"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > engine.MaxPerRound {
			writeError(w, http.StatusBadRequest, "qCount must be between 1 and 20")
			return
		}
		count = n
	}

	qs, err := s.selector.Select(r.Context(), user.ID, count)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	sess, err := s.games.Create(r.Context(), user.ID, qs)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, startResponse{GameID: sess.GameID, Questions: qs})
}

func (s *Server) handleGameSubmit(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	var req game.SubmitRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.GameID == "" || len(req.Answers) == 0 {
		writeError(w, http.StatusBadRequest, "game_id and answers are required")
		return
	}
	result, err := s.games.Submit(r.Context(), user.ID, req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type flagRequest struct {
	Flags []game.FlagItem `json:"flags"`
}

func (s *Server) handleFlagQuestions(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	var req flagRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Flags) == 0 {
		writeError(w, http.StatusBadRequest, "flags are required")
		return
	}
	ids, err := s.games.Flag(r.Context(), user.ID, req.Flags)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string][]string{"flag_ids": ids})
}

type checkHandwriteRequest struct {
	Target string `json:"target"`
	Image  string `json:"image"` // base64
}

// handleCheckHandwrite sends a handwriting image to the recognizer
// and reports the verdict, including the archived wrong-answer image
// when the stroke missed.
func (s *Server) handleCheckHandwrite(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireUser(w, r); !ok {
		return
	}
	var req checkHandwriteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if _, err := question.CodePoint(req.Target); err != nil {
		writeError(w, http.StatusBadRequest, "target must be a single Chinese character")
		return
	}
	image, err := base64.StdEncoding.DecodeString(req.Image)
	if err != nil || len(image) == 0 {
		writeError(w, http.StatusBadRequest, "image must be non-empty base64")
		return
	}

	result, err := s.recognizer.RecognizeHandwriting(r.Context(), image, req.Target)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
