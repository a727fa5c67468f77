package game

import (
	"context"
	"fmt"

	"github.com/writeright/writeright/internal/store"
)

// dailyAdventureType is the task the daily rotation seeds for every
// user.
const dailyAdventureType = "daily_adventure"

// Task is one entry of a user's task list.
type Task struct {
	TaskID      string `json:"task_id"`
	TaskClass   string `json:"task_class"`
	TaskType    string `json:"task_type"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Priority    int64  `json:"priority"`
	UntilAt     int64  `json:"until_at,omitempty"`
	Status      string `json:"status"`
	Target      int64  `json:"target"`
	Progress    int64  `json:"progress"`
	Exp         int64  `json:"exp"`
	CreatedAt   int64  `json:"created_at"`
	CompletedAt int64  `json:"completed_at,omitempty"`
}

func taskFromRow(r store.Row) Task {
	return Task{
		TaskID:      store.String(r, "task_id"),
		TaskClass:   store.String(r, "task_class"),
		TaskType:    store.String(r, "task_type"),
		Title:       store.String(r, "title"),
		Description: store.String(r, "description"),
		Priority:    store.Int64(r, "priority"),
		UntilAt:     store.Int64(r, "until_at"),
		Status:      store.String(r, "status"),
		Target:      store.Int64(r, "target"),
		Progress:    store.Int64(r, "progress"),
		Exp:         store.Int64(r, "exp"),
		CreatedAt:   store.Int64(r, "created_at"),
		CompletedAt: store.Int64(r, "completed_at"),
	}
}

// Today returns the user's current tasks, seeding the day's adventure
// task on first call. Days roll over at midnight UTC+8.
func (s *Service) Today(ctx context.Context, userID string) ([]Task, error) {
	rows, err := s.store.CallProc(ctx, "get_or_create_today_tasks", userID)
	if err != nil {
		return nil, fmt.Errorf("game: today's tasks: %w", err)
	}
	out := make([]Task, len(rows))
	for i, r := range rows {
		out[i] = taskFromRow(r)
	}
	return out, nil
}

// TaskProgress is the outcome of a progress update.
type TaskProgress struct {
	Updated    bool  `json:"updated"`
	GrantedExp int64 `json:"granted_exp"`
}

// SetProgress moves a task's progress. Crossing the target completes
// the task and grants its experience exactly once; later calls keep
// updating progress without granting again.
func (s *Service) SetProgress(ctx context.Context, userID, taskID string, progress int64) (*TaskProgress, error) {
	rows, err := s.store.CallProc(ctx, "set_task_progress", userID, taskID, progress)
	if err != nil {
		return nil, fmt.Errorf("game: set task progress: %w", err)
	}
	if len(rows) == 0 || !store.Bool(rows[0], "updated") {
		return nil, fmt.Errorf("game: task %s: %w", taskID, store.ErrNotFound)
	}
	return &TaskProgress{
		Updated:    true,
		GrantedExp: store.Int64(rows[0], "granted_exp"),
	}, nil
}

// bumpDailyAdventure advances the day's adventure task by one round.
func (s *Service) bumpDailyAdventure(ctx context.Context, userID string) error {
	tasks, err := s.Today(ctx, userID)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		if t.TaskType != dailyAdventureType || t.Status != "ongoing" {
			continue
		}
		_, err := s.SetProgress(ctx, userID, t.TaskID, t.Progress+1)
		return err
	}
	return nil
}
