package words

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/writeright/writeright/internal/question"
	"github.com/writeright/writeright/internal/store"
)

// WrongWord is a (user, word) edge joined with its catalog entry.
type WrongWord struct {
	WordID           int64  `json:"word_id"`
	Word             string `json:"word"`
	WrongCount       int64  `json:"wrong_count"`
	LastWrongAt      int64  `json:"last_wrong_at"`
	WrongImageURL    string `json:"wrong_image_url,omitempty"`
	PronunciationURL string `json:"pronunciation_url,omitempty"`
	StrokeURL        string `json:"stroke_url,omitempty"`
}

func wrongWordFromRow(r store.Row) WrongWord {
	return WrongWord{
		WordID:           store.Int64(r, "word_id"),
		Word:             store.String(r, "word"),
		WrongCount:       store.Int64(r, "wrong_count"),
		LastWrongAt:      store.Int64(r, "last_wrong_at"),
		WrongImageURL:    store.String(r, "wrong_image_url"),
		PronunciationURL: store.String(r, "pronunciation_url"),
		StrokeURL:        store.String(r, "stroke_url"),
	}
}

// WrongItem is one sighting of a mis-written character.
type WrongItem struct {
	Char     string `json:"char"`
	ImageURL string `json:"wrong_image_url,omitempty"`
}

// WrongWordService tracks per-user mis-written characters.
type WrongWordService struct {
	store Store
	words *Service
}

// NewWrongWordService builds the wrong-word tracker on top of the word
// catalog.
func NewWrongWordService(st Store, words *Service) *WrongWordService {
	return &WrongWordService{store: st, words: words}
}

// Add records one wrong sighting: the edge is created with count 1, or
// its count bumped if it already exists. The insert/increment race is
// resolved by the unique constraint; the losing insert is retried as
// an increment.
func (s *WrongWordService) Add(ctx context.Context, userID, char, imageURL string) error {
	w, err := s.words.CreateIfMissing(ctx, char)
	if err != nil {
		return err
	}
	return s.addEdge(ctx, userID, w.WordID, imageURL)
}

func (s *WrongWordService) addEdge(ctx context.Context, userID string, wordID int64, imageURL string) error {
	row := store.Row{
		"user_id":     userID,
		"word_id":     wordID,
		"wrong_count": int64(1),
	}
	if imageURL != "" {
		row["wrong_image_url"] = imageURL
	}
	_, err := s.store.Insert(ctx, "past_wrong_words", row)
	if err == nil {
		return nil
	}
	var ce *store.ConstraintError
	if !errors.As(err, &ce) {
		return fmt.Errorf("add wrong word %d: %w", wordID, err)
	}
	if _, err := s.store.CallProc(ctx, "increment_wrong_count_for_user", userID, []int64{wordID}); err != nil {
		return fmt.Errorf("increment wrong word %d: %w", wordID, err)
	}
	return nil
}

// BatchAdd records many sightings at once: a single atomic increment
// covers the edges that already exist, and the new edges are inserted
// in parallel. Individual insert failures are logged; the batch fails
// only when every item does.
func (s *WrongWordService) BatchAdd(ctx context.Context, userID string, items []WrongItem) ([]WrongWord, error) {
	if len(items) == 0 {
		return nil, nil
	}

	type resolved struct {
		wordID   int64
		imageURL string
	}
	byID := make(map[int64]resolved, len(items))
	ids := make([]int64, 0, len(items))
	for _, it := range items {
		id, err := question.CodePoint(it.Char)
		if err != nil {
			return nil, err
		}
		if _, dup := byID[id]; !dup {
			ids = append(ids, id)
		}
		byID[id] = resolved{wordID: id, imageURL: it.ImageURL}
	}

	// First sightings need catalog entries before edges can reference
	// them.
	known, err := s.words.Existing(ctx, ids)
	if err != nil {
		return nil, err
	}
	knownSet := make(map[int64]bool, len(known))
	for _, w := range known {
		knownSet[w.WordID] = true
	}
	for _, it := range items {
		id, _ := question.CodePoint(it.Char)
		if knownSet[id] {
			continue
		}
		if _, err := s.words.CreateIfMissing(ctx, it.Char); err != nil {
			return nil, err
		}
		knownSet[id] = true
	}

	existingRows, err := s.store.CallProc(ctx, "get_existing_wrong_word_ids", userID, ids)
	if err != nil {
		return nil, fmt.Errorf("split wrong words: %w", err)
	}
	existing := make(map[int64]bool, len(existingRows))
	for _, r := range existingRows {
		existing[store.Int64(r, "word_id")] = true
	}

	var toBump []int64
	var toInsert []resolved
	for _, id := range ids {
		if existing[id] {
			toBump = append(toBump, id)
		} else {
			toInsert = append(toInsert, byID[id])
		}
	}

	if len(toBump) > 0 {
		if _, err := s.store.CallProc(ctx, "increment_wrong_count_for_user", userID, toBump); err != nil {
			return nil, fmt.Errorf("increment wrong words: %w", err)
		}
	}

	var mu sync.Mutex
	failures := 0
	g, gctx := errgroup.WithContext(ctx)
	for _, r := range toInsert {
		g.Go(func() error {
			if err := s.addEdge(gctx, userID, r.wordID, r.imageURL); err != nil {
				log.Printf("words: insert wrong word %d for %s: %v", r.wordID, userID, err)
				mu.Lock()
				failures++
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	if len(toBump) == 0 && len(toInsert) > 0 && failures == len(toInsert) {
		return nil, fmt.Errorf("batch add wrong words: all %d inserts failed", failures)
	}

	// Read back joined with the catalog so the batch result carries
	// the same fields as the dictionary listing.
	const readback = `
SELECT w.word_id, w.word, pw.wrong_count, pw.last_wrong_at,
       pw.wrong_image_url, w.pronunciation_url, w.stroke_url
  FROM past_wrong_words pw
  JOIN words w ON w.word_id = pw.word_id
 WHERE pw.user_id = $user_id
   AND pw.word_id = ANY($word_ids::bigint[])
 ORDER BY pw.last_wrong_at DESC, pw.word_id DESC`

	rows, err := s.store.FetchAll(ctx, readback, map[string]any{
		"user_id":  userID,
		"word_ids": ids,
	})
	if err != nil {
		return nil, fmt.Errorf("read back wrong words: %w", err)
	}
	out := make([]WrongWord, len(rows))
	for i, r := range rows {
		out[i] = wrongWordFromRow(r)
	}
	return out, nil
}

// Dictionary pages through the user's wrong words, most recent first.
func (s *WrongWordService) Dictionary(ctx context.Context, userID string, limit, offset int) ([]WrongWord, error) {
	rows, err := s.store.CallProc(ctx, "get_past_wrong_words_by_user", userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("wrong-word dictionary: %w", err)
	}
	out := make([]WrongWord, len(rows))
	for i, r := range rows {
		out[i] = wrongWordFromRow(r)
	}
	return out, nil
}

// After continues a keyset walk below the (last_wrong_at, word_id)
// cursor.
func (s *WrongWordService) After(ctx context.Context, userID string, ts, wordID int64) ([]WrongWord, error) {
	rows, err := s.store.CallProc(ctx, "get_wrong_words_by_user_after", userID, ts, wordID)
	if err != nil {
		return nil, fmt.Errorf("wrong words after cursor: %w", err)
	}
	out := make([]WrongWord, len(rows))
	for i, r := range rows {
		out[i] = wrongWordFromRow(r)
	}
	return out, nil
}

// Count reports how many wrong words the user has accumulated.
func (s *WrongWordService) Count(ctx context.Context, userID string) (int64, error) {
	return s.store.Count(ctx, "past_wrong_words", store.Row{"user_id": userID})
}
