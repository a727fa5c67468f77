package web

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"

	"github.com/writeright/writeright/internal/game"
	"github.com/writeright/writeright/internal/store"
	"github.com/writeright/writeright/internal/words"
)

// handleProfile returns the full account of the session user.
func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type userStatus struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Exp    int64  `json:"exp"`
	Level  int64  `json:"level"`
}

// handleUserStatus returns the condensed progress view of the session
// user.
func (s *Server) handleUserStatus(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, userStatus{
		UserID: user.ID,
		Name:   user.Name,
		Exp:    user.Exp,
		Level:  user.Level,
	})
}

type userRegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

// handleUserRegister creates a password-less account for the
// profile-managed flow.
func (s *Server) handleUserRegister(w http.ResponseWriter, r *http.Request) {
	var req userRegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := s.auth.CreateUser(r.Context(), req.Username, req.Email)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	tasks, err := s.games.Today(r.Context(), user.ID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]game.Task{"tasks": tasks})
}

type progressRequest struct {
	TaskID   string `json:"task_id"`
	Progress int64  `json:"progress"`
}

func (s *Server) handleTaskProgress(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	var req progressRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.TaskID == "" {
		writeError(w, http.StatusBadRequest, "task_id is required")
		return
	}
	if req.Progress < 0 {
		writeError(w, http.StatusBadRequest, "progress must be non-negative")
		return
	}
	result, err := s.games.SetProgress(r.Context(), user.ID, req.TaskID, req.Progress)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSettingsGet(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	settings, err := s.games.GetSettings(r.Context(), user.ID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

type settingsUpdateRequest struct {
	Language *string        `json:"language"`
	Theme    *string        `json:"theme"`
	Extra    map[string]any `json:"settings"`
}

// handleSettingsPost partially updates the user's settings: only the
// fields present in the body change.
func (s *Server) handleSettingsPost(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	var req settingsUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Language == nil && req.Theme == nil && req.Extra == nil {
		writeError(w, http.StatusBadRequest, "no fields to update")
		return
	}

	current, err := s.games.GetSettings(r.Context(), user.ID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.writeServiceError(w, err)
			return
		}
		current = &game.Settings{}
	}
	if req.Language != nil {
		current.Language = *req.Language
	}
	if req.Theme != nil {
		current.Theme = *req.Theme
	}
	if req.Extra != nil {
		current.Extra = req.Extra
	}

	settings, err := s.games.SaveSettings(r.Context(), user.ID, *current)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// handleWrongWordsList pages through the dictionary, or continues a
// keyset walk when after_ts and after_word_id are given.
func (s *Server) handleWrongWordsList(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	if q.Get("after_ts") != "" {
		ts, err1 := strconv.ParseInt(q.Get("after_ts"), 10, 64)
		wordID, err2 := strconv.ParseInt(q.Get("after_word_id"), 10, 64)
		if err1 != nil || err2 != nil {
			writeError(w, http.StatusBadRequest, "after_ts and after_word_id must be integers")
			return
		}
		ww, err := s.wrongWords.After(r.Context(), user.ID, ts, wordID)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string][]words.WrongWord{"wrong_words": ww})
		return
	}

	limit, offset := 50, 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
		offset = n
	}
	ww, err := s.wrongWords.Dictionary(r.Context(), user.ID, limit, offset)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]words.WrongWord{"wrong_words": ww})
}

func (s *Server) handleWrongWordsCount(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	count, err := s.wrongWords.Count(r.Context(), user.ID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": count})
}

type wrongWordsAddRequest struct {
	Items []words.WrongItem `json:"items"`
}

func (s *Server) handleWrongWordsAdd(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	var req wrongWordsAddRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, "items are required")
		return
	}
	ww, err := s.wrongWords.BatchAdd(r.Context(), user.ID, req.Items)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]words.WrongWord{"wrong_words": ww})
}

type scanRequest struct {
	Image string `json:"image"` // base64
}

type scanResponse struct {
	WrongWords []words.WrongWord `json:"wrong_words"`
	NotFound   map[string]string `json:"not_found,omitempty"`
}

// handleWrongWordsScan runs a photographed page through the
// recognizer and records every character it resolves as a wrong word,
// keeping the cropped image the recognizer stored for each one. Marks
// the recognizer could not resolve come back under not_found.
func (s *Server) handleWrongWordsScan(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	var req scanRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	image, err := base64.StdEncoding.DecodeString(req.Image)
	if err != nil || len(image) == 0 {
		writeError(w, http.StatusBadRequest, "image must be non-empty base64")
		return
	}

	scan, err := s.recognizer.ScanWrongWords(r.Context(), image)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if len(scan.Items) == 0 && len(scan.NotFound) == 0 {
		writeError(w, http.StatusUnprocessableEntity, "no characters detected in the image")
		return
	}

	items := make([]words.WrongItem, 0, len(scan.Items))
	for _, it := range scan.Items {
		items = append(items, words.WrongItem{Char: it.Char, ImageURL: it.WrongImageURL})
	}
	var ww []words.WrongWord
	if len(items) > 0 {
		ww, err = s.wrongWords.BatchAdd(r.Context(), user.ID, items)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
	}
	notFound := make(map[string]string, len(scan.NotFound))
	for _, it := range scan.NotFound {
		notFound[it.Char] = it.WrongImageURL
	}
	writeJSON(w, http.StatusOK, scanResponse{WrongWords: ww, NotFound: notFound})
}
