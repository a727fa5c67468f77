// Package game runs a learning round end to end: a session pins the
// selected questions, a submission marks the answers and settles
// experience, and flags route bad questions out of future selection.
package game

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/writeright/writeright/internal/question"
	"github.com/writeright/writeright/internal/store"
)

var (
	// ErrSessionClosed rejects submissions for a session that already
	// settled.
	ErrSessionClosed = errors.New("game: session is not in progress")

	// ErrUnknownQuestion rejects answers for questions outside the
	// session.
	ErrUnknownQuestion = errors.New("game: answer references a question outside this session")
)

// Store is the slice of the relational adapter the game service uses.
type Store interface {
	Insert(ctx context.Context, table string, row store.Row) (store.Row, error)
	InsertMany(ctx context.Context, table string, rows []store.Row) ([]store.Row, error)
	Select(ctx context.Context, table string, where store.Row, opts *store.SelectOpts) ([]store.Row, error)
	SelectOne(ctx context.Context, table string, where store.Row) (store.Row, error)
	Update(ctx context.Context, table string, values, where store.Row) (int64, error)
	CallProc(ctx context.Context, name string, args ...any) ([]store.Row, error)
}

// BlobStore supplies the submit endpoint for rebuilt writing
// questions.
type BlobStore interface {
	SubmitURL() string
}

// Service coordinates sessions, tasks, and settings.
type Service struct {
	store Store
	blob  BlobStore
}

// New builds the game service.
func New(st Store, blob BlobStore) *Service {
	return &Service{store: st, blob: blob}
}

// Session is one started round.
type Session struct {
	GameID      string   `json:"game_id"`
	UserID      string   `json:"user_id"`
	QuestionIDs []string `json:"question_ids"`
	StartedAt   int64    `json:"started_at"`
	Status      string   `json:"status"`
}

// Create persists an in-progress session holding the round's question
// ids in order.
func (s *Service) Create(ctx context.Context, userID string, qs []*question.Question) (*Session, error) {
	if len(qs) == 0 {
		return nil, fmt.Errorf("game: a session needs at least one question")
	}
	ids := make([]string, len(qs))
	for i, q := range qs {
		if q.ID == uuid.Nil {
			return nil, fmt.Errorf("game: question %d has no id; persist before starting", i)
		}
		ids[i] = q.ID.String()
	}
	row, err := s.store.Insert(ctx, "game_sessions", store.Row{
		"user_id":      userID,
		"question_ids": ids,
		"status":       "in_progress",
	})
	if err != nil {
		return nil, fmt.Errorf("game: create session: %w", err)
	}
	return sessionFromRow(row), nil
}

func sessionFromRow(r store.Row) *Session {
	return &Session{
		GameID:      store.String(r, "game_id"),
		UserID:      store.String(r, "user_id"),
		QuestionIDs: store.Strings(r, "question_ids"),
		StartedAt:   store.Int64(r, "started_at"),
		Status:      store.String(r, "status"),
	}
}

// Answer is one submitted answer keyed by question id.
type Answer struct {
	QuestionID     string  `json:"question_id"`
	Choices        []int   `json:"choices,omitempty"`
	Pairs          [][]int `json:"pairs,omitempty"`
	WritingVerdict *bool   `json:"writing_verdict,omitempty"`
}

// SubmitRequest is the full result of a played round.
type SubmitRequest struct {
	GameID          string   `json:"game_id"`
	Answers         []Answer `json:"answers"`
	TimeSpent       int64    `json:"time_spent"`
	TotalScore      int64    `json:"total_score"`
	RemainingHearts int      `json:"remaining_hearts"`
}

// AnswerResult reports the marking of one answer.
type AnswerResult struct {
	QuestionID string `json:"question_id"`
	Correct    bool   `json:"correct"`
}

// Result is the settled outcome of a round.
type Result struct {
	GameID       string         `json:"game_id"`
	EarnedExp    int64          `json:"earned_exp"`
	NewExp       int64          `json:"new_exp"`
	NewLevel     int64          `json:"new_level"`
	CorrectCount int            `json:"correct_count"`
	Total        int            `json:"total"`
	Answers      []AnswerResult `json:"answers"`
}

// Submit marks the answers, updates per-question stats and the user's
// experience, records the round, and completes the session. A session
// settles at most once.
func (s *Service) Submit(ctx context.Context, userID string, req SubmitRequest) (*Result, error) {
	row, err := s.store.SelectOne(ctx, "game_sessions", store.Row{"game_id": req.GameID})
	if err != nil {
		return nil, fmt.Errorf("game: load session: %w", err)
	}
	sess := sessionFromRow(row)
	if sess.UserID != userID {
		// Do not reveal other users' sessions.
		return nil, fmt.Errorf("game: load session: %w", store.ErrNotFound)
	}
	if sess.Status != "in_progress" {
		return nil, ErrSessionClosed
	}

	inSession := make(map[string]bool, len(sess.QuestionIDs))
	for _, id := range sess.QuestionIDs {
		inSession[id] = true
	}
	for _, a := range req.Answers {
		if !inSession[a.QuestionID] {
			return nil, fmt.Errorf("%w: %s", ErrUnknownQuestion, a.QuestionID)
		}
	}

	questions, err := s.loadQuestions(ctx, sess.QuestionIDs)
	if err != nil {
		return nil, err
	}

	result := &Result{GameID: sess.GameID, Total: len(req.Answers)}
	var answered, wrong []string
	var earned int64
	for _, a := range req.Answers {
		q, ok := questions[a.QuestionID]
		if !ok {
			return nil, fmt.Errorf("game: question %s no longer exists", a.QuestionID)
		}
		correct, err := q.IsCorrect(question.Submission{
			Choices:        a.Choices,
			Pairs:          a.Pairs,
			WritingVerdict: a.WritingVerdict,
		})
		if err != nil {
			return nil, fmt.Errorf("game: mark %s: %w", a.QuestionID, err)
		}
		answered = append(answered, a.QuestionID)
		if correct {
			earned += int64(q.Exp)
			result.CorrectCount++
		} else {
			wrong = append(wrong, a.QuestionID)
		}
		result.Answers = append(result.Answers, AnswerResult{QuestionID: a.QuestionID, Correct: correct})
	}

	// Settle exactly once: the conditional completion claims the
	// session before any experience is granted, so the loser of a
	// concurrent duplicate submit stops here.
	n, err := s.store.Update(ctx, "game_sessions",
		store.Row{"status": "completed"},
		store.Row{"game_id": sess.GameID, "status": "in_progress"})
	if err != nil {
		return nil, fmt.Errorf("game: complete session: %w", err)
	}
	if n == 0 {
		return nil, ErrSessionClosed
	}

	if len(answered) > 0 {
		if _, err := s.store.CallProc(ctx, "update_question_stats", answered, wrong); err != nil {
			return nil, fmt.Errorf("game: update question stats: %w", err)
		}
	}

	expRows, err := s.store.CallProc(ctx, "update_user_experience", userID, earned)
	if err != nil {
		return nil, fmt.Errorf("game: grant experience: %w", err)
	}
	if len(expRows) > 0 {
		result.NewExp = store.Int64(expRows[0], "new_exp")
		result.NewLevel = store.Int64(expRows[0], "new_level")
	}
	result.EarnedExp = earned

	if err := s.recordRound(ctx, sess, req, result); err != nil {
		return nil, err
	}

	// Finishing a round is the daily adventure; task failures must not
	// undo a settled submission.
	if err := s.bumpDailyAdventure(ctx, userID); err != nil {
		log.Printf("game: advance daily task for %s: %v", userID, err)
	}
	return result, nil
}

func (s *Service) recordRound(ctx context.Context, sess *Session, req SubmitRequest, result *Result) error {
	_, err := s.store.Insert(ctx, "game_data", store.Row{
		"game_id":          sess.GameID,
		"user_id":          sess.UserID,
		"earned_exp":       result.EarnedExp,
		"time_spent":       req.TimeSpent,
		"total_score":      req.TotalScore,
		"question_count":   len(sess.QuestionIDs),
		"remaining_hearts": req.RemainingHearts,
		"correct_count":    result.CorrectCount,
	})
	if err != nil {
		return fmt.Errorf("game: record round: %w", err)
	}

	if len(req.Answers) == 0 {
		return nil
	}
	rows := make([]store.Row, len(req.Answers))
	for i, a := range req.Answers {
		rows[i] = store.Row{
			"game_id":     sess.GameID,
			"user_id":     sess.UserID,
			"question_id": a.QuestionID,
			"answer": map[string]any{
				"choices":         a.Choices,
				"pairs":           a.Pairs,
				"writing_verdict": a.WritingVerdict,
			},
			"is_correct": result.Answers[i].Correct,
		}
	}
	if _, err := s.store.InsertMany(ctx, "game_qa_history", rows); err != nil {
		return fmt.Errorf("game: record answers: %w", err)
	}
	return nil
}

func (s *Service) loadQuestions(ctx context.Context, ids []string) (map[string]*question.Question, error) {
	rows, err := s.store.Select(ctx, "questions", store.Row{"question_id": ids}, nil)
	if err != nil {
		return nil, fmt.Errorf("game: load questions: %w", err)
	}
	out := make(map[string]*question.Question, len(rows))
	for _, row := range rows {
		entry, err := question.EntryFromRow(row)
		if err != nil {
			return nil, fmt.Errorf("game: decode question row: %w", err)
		}
		q, err := entry.ToQuestion(s.blob.SubmitURL())
		if err != nil {
			return nil, fmt.Errorf("game: rebuild question: %w", err)
		}
		out[q.ID.String()] = &q
	}
	return out, nil
}

// FlagItem is one reported question.
type FlagItem struct {
	QuestionID string `json:"question_id"`
	Reason     string `json:"reason"`
	Notes      string `json:"notes,omitempty"`
}

// Flag records question reports for review. Each flag starts pending;
// flagged questions drop out of selection immediately.
func (s *Service) Flag(ctx context.Context, userID string, items []FlagItem) ([]string, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("game: nothing to flag")
	}
	flagIDs := make([]string, 0, len(items))
	for _, it := range items {
		if it.Reason == "" {
			return nil, fmt.Errorf("game: flag for %s needs a reason", it.QuestionID)
		}
		if _, err := uuid.Parse(it.QuestionID); err != nil {
			return nil, fmt.Errorf("game: bad question id %q", it.QuestionID)
		}
		row := store.Row{
			"question_id": it.QuestionID,
			"user_id":     userID,
			"reason":      it.Reason,
			"status":      "pending",
		}
		if it.Notes != "" {
			row["notes"] = it.Notes
		}
		stored, err := s.store.Insert(ctx, "flagged_questions", row)
		if err != nil {
			return nil, fmt.Errorf("game: flag %s: %w", it.QuestionID, err)
		}
		flagIDs = append(flagIDs, store.String(stored, "flag_id"))
	}
	return flagIDs, nil
}
