// Package web is the HTTP surface of the service: auth, game rounds,
// user data, and file proxying, all JSON over a single ServeMux.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/writeright/writeright/api"
	"github.com/writeright/writeright/internal/auth"
	"github.com/writeright/writeright/internal/game"
	"github.com/writeright/writeright/internal/question"
	"github.com/writeright/writeright/internal/storage"
	"github.com/writeright/writeright/internal/words"
)

// AuthService is the credential and session surface the server needs.
type AuthService interface {
	Register(ctx context.Context, name, email, password string) (*auth.User, error)
	CreateUser(ctx context.Context, name, email string) (*auth.User, error)
	Login(ctx context.Context, email, password string) (*auth.Session, *auth.User, error)
	Logout(ctx context.Context, sessionID string) error
	Verify(ctx context.Context, sessionID string) (*auth.User, error)
}

// Selector picks the questions for a round.
type Selector interface {
	Select(ctx context.Context, userID string, n int) ([]*question.Question, error)
}

// GameService runs sessions, tasks, and settings.
type GameService interface {
	Create(ctx context.Context, userID string, qs []*question.Question) (*game.Session, error)
	Submit(ctx context.Context, userID string, req game.SubmitRequest) (*game.Result, error)
	Flag(ctx context.Context, userID string, items []game.FlagItem) ([]string, error)
	Today(ctx context.Context, userID string) ([]game.Task, error)
	SetProgress(ctx context.Context, userID, taskID string, progress int64) (*game.TaskProgress, error)
	GetSettings(ctx context.Context, userID string) (*game.Settings, error)
	SaveSettings(ctx context.Context, userID string, in game.Settings) (*game.Settings, error)
}

// WrongWordService tracks mis-written characters per user.
type WrongWordService interface {
	BatchAdd(ctx context.Context, userID string, items []words.WrongItem) ([]words.WrongWord, error)
	Dictionary(ctx context.Context, userID string, limit, offset int) ([]words.WrongWord, error)
	After(ctx context.Context, userID string, ts, wordID int64) ([]words.WrongWord, error)
	Count(ctx context.Context, userID string) (int64, error)
}

// FileStore proxies to the external blob store.
type FileStore interface {
	UploadImage(ctx context.Context, data []byte, filename string) (*storage.UploadResult, error)
	Info(ctx context.Context, fileID string) (*storage.FileInfo, error)
	Delete(ctx context.Context, fileID string) error
}

// Recognizer judges handwriting images.
type Recognizer interface {
	RecognizeHandwriting(ctx context.Context, image []byte, target string) (*storage.HandwriteResult, error)
	ScanWrongWords(ctx context.Context, image []byte) (*storage.ScanResult, error)
}

// Pinger reports database liveness for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the HTTP server for the learning backend.
type Server struct {
	auth       AuthService
	selector   Selector
	games      GameService
	wrongWords WrongWordService
	files      FileStore
	recognizer Recognizer
	db         Pinger

	mux    *http.ServeMux
	server *http.Server

	// buildRevision resolves the deployed revision for the health
	// surface; swapped out in tests.
	buildRevision func() (string, bool)
}

// Deps bundles the services the server routes to.
type Deps struct {
	Auth       AuthService
	Selector   Selector
	Games      GameService
	WrongWords WrongWordService
	Files      FileStore
	Recognizer Recognizer
	DB         Pinger
}

// New creates the server on the given port.
func New(port int, deps Deps) *Server {
	s := &Server{
		auth:       deps.Auth,
		selector:   deps.Selector,
		games:      deps.Games,
		wrongWords: deps.WrongWords,
		files:      deps.Files,
		recognizer: deps.Recognizer,
		db:         deps.DB,
		mux:        http.NewServeMux(),

		buildRevision: vcsRevision,
	}
	s.registerRoutes()
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start begins serving HTTP requests. It blocks until the server is
// shut down.
func (s *Server) Start() error {
	log.Printf("api listening on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /health/database", s.handleHealthDB)
	s.mux.HandleFunc("GET /health/git", s.handleHealthGit)
	s.mux.HandleFunc("GET /api/openapi.yaml", s.handleOpenAPISpec)

	s.mux.HandleFunc("POST /auth/register", s.handleRegister)
	s.mux.HandleFunc("POST /auth/login", s.handleLogin)
	s.mux.HandleFunc("POST /auth/sso-login", s.handleSSOLogin)
	s.mux.HandleFunc("GET /auth/logout", s.handleLogout)
	s.mux.HandleFunc("GET /auth/verify", s.handleVerify)

	s.mux.HandleFunc("GET /game/start/{user_id}", s.handleGameStart)
	s.mux.HandleFunc("POST /game/submit-result", s.handleGameSubmit)
	s.mux.HandleFunc("POST /game/flag-questions", s.handleFlagQuestions)
	s.mux.HandleFunc("POST /game/check-handwrite-answer", s.handleCheckHandwrite)

	s.mux.HandleFunc("GET /user/profile", s.handleProfile)
	s.mux.HandleFunc("GET /user/status", s.handleUserStatus)
	s.mux.HandleFunc("POST /user/register", s.handleUserRegister)
	s.mux.HandleFunc("GET /user/tasks/current", s.handleTasks)
	s.mux.HandleFunc("POST /user/tasks/progress", s.handleTaskProgress)
	s.mux.HandleFunc("GET /user/settings", s.handleSettingsGet)
	s.mux.HandleFunc("POST /user/settings", s.handleSettingsPost)
	s.mux.HandleFunc("GET /user/wrong-words", s.handleWrongWordsList)
	s.mux.HandleFunc("GET /user/wrong-words/count", s.handleWrongWordsCount)
	s.mux.HandleFunc("POST /user/wrong-words", s.handleWrongWordsAdd)
	s.mux.HandleFunc("POST /user/wrong-words/scanning", s.handleWrongWordsScan)

	s.mux.HandleFunc("POST /files/upload", s.handleFileUpload)
	s.mux.HandleFunc("GET /files/limits", s.handleFileLimits)
	s.mux.HandleFunc("GET /files/info/{file_id}", s.handleFileInfo)
	s.mux.HandleFunc("DELETE /files/{file_id}", s.handleFileDelete)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleHealthDB(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if err := s.db.Ping(r.Context()); err != nil {
		log.Printf("handleHealthDB: %v", err)
		writeError(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"latency_ms": time.Since(start).Milliseconds(),
	})
}

// handleHealthGit reports which revision is deployed. Binaries built
// without VCS metadata cannot answer.
func (s *Server) handleHealthGit(w http.ResponseWriter, r *http.Request) {
	rev, ok := s.buildRevision()
	if !ok {
		writeError(w, http.StatusInternalServerError, "version information unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"revision": rev})
}

// vcsRevision reads the revision stamped into the binary, once.
var vcsRevision = sync.OnceValues(func() (string, bool) {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "", false
	}
	var rev, modified string
	for _, kv := range info.Settings {
		switch kv.Key {
		case "vcs.revision":
			rev = kv.Value
		case "vcs.modified":
			modified = kv.Value
		}
	}
	if rev == "" {
		return "", false
	}
	if modified == "true" {
		rev += "-dirty"
	}
	return rev, true
})

func (s *Server) handleOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(api.OpenAPISpec)
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("writeJSON: encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(ct, "application/json") {
		writeError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "malformed JSON body")
		return false
	}
	return true
}

// sessionToken pulls the session id from the Authorization header
// (Bearer scheme) or the X-Session-Token header.
func sessionToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return token
		}
	}
	return r.Header.Get("X-Session-Token")
}

// requireUser resolves the request's session to a user, writing the
// 401 itself when that fails.
func (s *Server) requireUser(w http.ResponseWriter, r *http.Request) (*auth.User, bool) {
	user, err := s.auth.Verify(r.Context(), sessionToken(r))
	if err != nil {
		s.writeServiceError(w, err)
		return nil, false
	}
	return user, true
}
