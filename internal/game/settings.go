package game

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/writeright/writeright/internal/store"
)

// defaultLanguage is applied when a settings row is created without
// one.
const defaultLanguage = "zh-hk"

// Settings is a user's preference record.
type Settings struct {
	UserID    string         `json:"user_id"`
	Language  string         `json:"language"`
	Theme     string         `json:"theme,omitempty"`
	Extra     map[string]any `json:"settings,omitempty"`
	UpdatedAt int64          `json:"updated_at"`
}

func settingsFromRow(r store.Row) *Settings {
	s := &Settings{
		UserID:    store.String(r, "user_id"),
		Language:  store.String(r, "language"),
		Theme:     store.String(r, "theme"),
		UpdatedAt: store.Int64(r, "updated_at"),
	}
	if extra, ok := r["settings"].(map[string]any); ok {
		s.Extra = extra
	}
	return s
}

// GetSettings returns the user's settings, or store.ErrNotFound if
// none were ever saved.
func (s *Service) GetSettings(ctx context.Context, userID string) (*Settings, error) {
	row, err := s.store.SelectOne(ctx, "user_settings", store.Row{"user_id": userID})
	if err != nil {
		return nil, fmt.Errorf("game: load settings: %w", err)
	}
	return settingsFromRow(row), nil
}

// SaveSettings creates or replaces the user's settings. A missing
// language falls back to the default.
func (s *Service) SaveSettings(ctx context.Context, userID string, in Settings) (*Settings, error) {
	if in.Language == "" {
		in.Language = defaultLanguage
	}
	values := store.Row{
		"language":   in.Language,
		"theme":      in.Theme,
		"updated_at": time.Now().Unix(),
	}
	if in.Extra != nil {
		values["settings"] = in.Extra
	}

	n, err := s.store.Update(ctx, "user_settings", values, store.Row{"user_id": userID})
	if err != nil {
		return nil, fmt.Errorf("game: update settings: %w", err)
	}
	if n == 0 {
		insert := store.Row{"user_id": userID}
		for k, v := range values {
			insert[k] = v
		}
		if _, err := s.store.Insert(ctx, "user_settings", insert); err != nil {
			// A concurrent first save wins the insert; retry as an
			// update.
			var ce *store.ConstraintError
			if !errors.As(err, &ce) {
				return nil, fmt.Errorf("game: create settings: %w", err)
			}
			if _, err := s.store.Update(ctx, "user_settings", values, store.Row{"user_id": userID}); err != nil {
				return nil, fmt.Errorf("game: update settings after race: %w", err)
			}
		}
	}
	return s.GetSettings(ctx, userID)
}
