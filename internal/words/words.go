package words

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/writeright/writeright/internal/question"
	"github.com/writeright/writeright/internal/store"
)

// Store is the slice of the relational adapter the word services use.
type Store interface {
	Insert(ctx context.Context, table string, row store.Row) (store.Row, error)
	FetchAll(ctx context.Context, query string, params map[string]any) ([]store.Row, error)
	Count(ctx context.Context, table string, where store.Row) (int64, error)
	CallProc(ctx context.Context, name string, args ...any) ([]store.Row, error)
}

// Word is a catalog entry keyed by the character's Unicode code point.
type Word struct {
	WordID           int64  `json:"word_id"`
	Word             string `json:"word"`
	Description      string `json:"description,omitempty"`
	ImageURL         string `json:"image_url,omitempty"`
	PronunciationURL string `json:"pronunciation_url,omitempty"`
	StrokeURL        string `json:"stroke_url,omitempty"`
	CreatedAt        int64  `json:"created_at,omitempty"`
}

func wordFromRow(r store.Row) Word {
	return Word{
		WordID:           store.Int64(r, "word_id"),
		Word:             store.String(r, "word"),
		Description:      store.String(r, "description"),
		ImageURL:         store.String(r, "image_url"),
		PronunciationURL: store.String(r, "pronunciation_url"),
		StrokeURL:        store.String(r, "stroke_url"),
		CreatedAt:        store.Int64(r, "created_at"),
	}
}

// Service resolves characters against the catalog, scraping the
// dictionary for first sightings.
type Service struct {
	store   Store
	scraper Scraper
}

// NewService builds a word service.
func NewService(st Store, scraper Scraper) *Service {
	return &Service{store: st, scraper: scraper}
}

// CreateIfMissing returns the catalog entry for char, scraping and
// inserting it on first sighting. A concurrent first sighting is
// resolved by the primary key: the loser re-reads the winner's row.
func (s *Service) CreateIfMissing(ctx context.Context, char string) (*Word, error) {
	id, err := question.CodePoint(char)
	if err != nil {
		return nil, err
	}

	existing, err := s.Existing(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return &existing[0], nil
	}

	info, err := s.scraper.Lookup(ctx, char)
	if err != nil {
		return nil, fmt.Errorf("scrape %q: %w", char, err)
	}
	w := Word{
		WordID:      id,
		Word:        char,
		Description: info.English,
		StrokeURL:   info.StrokeGIF,
	}
	if len(info.Pingyin.Cantonese) > 0 {
		w.PronunciationURL = s.scraper.PronunciationURL(info.Pingyin.Cantonese[0].Code)
	}

	row, err := s.store.Insert(ctx, "words", store.Row{
		"word_id":           w.WordID,
		"word":              w.Word,
		"description":       w.Description,
		"pronunciation_url": w.PronunciationURL,
		"stroke_url":        w.StrokeURL,
	})
	if err != nil {
		var ce *store.ConstraintError
		if errors.As(err, &ce) {
			log.Printf("words: %q created concurrently, re-reading", char)
			again, rerr := s.Existing(ctx, []int64{id})
			if rerr == nil && len(again) > 0 {
				return &again[0], nil
			}
		}
		return nil, fmt.Errorf("insert word %q: %w", char, err)
	}
	created := wordFromRow(row)
	return &created, nil
}

// Random draws n random catalog entries.
func (s *Service) Random(ctx context.Context, n int) ([]Word, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.store.CallProc(ctx, "get_random_words", n)
	if err != nil {
		return nil, fmt.Errorf("random words: %w", err)
	}
	out := make([]Word, len(rows))
	for i, r := range rows {
		out[i] = wordFromRow(r)
	}
	return out, nil
}

// Existing returns the subset of ids present in the catalog.
func (s *Service) Existing(ctx context.Context, ids []int64) ([]Word, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.store.CallProc(ctx, "get_existing_words", ids)
	if err != nil {
		return nil, fmt.Errorf("existing words: %w", err)
	}
	out := make([]Word, len(rows))
	for i, r := range rows {
		out[i] = wordFromRow(r)
	}
	return out, nil
}
