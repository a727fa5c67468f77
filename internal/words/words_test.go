package words

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/writeright/writeright/internal/store"
)

type fakeStore struct {
	words      map[int64]store.Row
	edges      map[int64]store.Row // keyed by word_id, single test user
	insertErr  error
	procCalls  []string
	bumpedWith []int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{words: map[int64]store.Row{}, edges: map[int64]store.Row{}}
}

func (f *fakeStore) Insert(ctx context.Context, table string, row store.Row) (store.Row, error) {
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	switch table {
	case "words":
		id := row["word_id"].(int64)
		if _, ok := f.words[id]; ok {
			return nil, constraintErr()
		}
		f.words[id] = row
		return row, nil
	case "past_wrong_words":
		id := row["word_id"].(int64)
		if _, ok := f.edges[id]; ok {
			return nil, constraintErr()
		}
		f.edges[id] = row
		return row, nil
	}
	return nil, fmt.Errorf("unexpected table %s", table)
}

// FetchAll serves the joined read-back: each edge merged with its
// catalog row.
func (f *fakeStore) FetchAll(ctx context.Context, query string, params map[string]any) ([]store.Row, error) {
	var out []store.Row
	for _, id := range params["word_ids"].([]int64) {
		e, ok := f.edges[id]
		if !ok {
			continue
		}
		joined := store.Row{}
		for k, v := range e {
			joined[k] = v
		}
		if w, ok := f.words[id]; ok {
			joined["word"] = w["word"]
			joined["pronunciation_url"] = w["pronunciation_url"]
			joined["stroke_url"] = w["stroke_url"]
		}
		out = append(out, joined)
	}
	return out, nil
}

func (f *fakeStore) Count(ctx context.Context, table string, where store.Row) (int64, error) {
	return int64(len(f.edges)), nil
}

func (f *fakeStore) CallProc(ctx context.Context, name string, args ...any) ([]store.Row, error) {
	f.procCalls = append(f.procCalls, name)
	switch name {
	case "get_existing_words":
		var out []store.Row
		for _, id := range args[0].([]int64) {
			if r, ok := f.words[id]; ok {
				out = append(out, r)
			}
		}
		return out, nil
	case "get_existing_wrong_word_ids":
		var out []store.Row
		for _, id := range args[1].([]int64) {
			if _, ok := f.edges[id]; ok {
				out = append(out, store.Row{"word_id": id})
			}
		}
		return out, nil
	case "increment_wrong_count_for_user":
		ids := args[1].([]int64)
		f.bumpedWith = append(f.bumpedWith, ids...)
		for _, id := range ids {
			if r, ok := f.edges[id]; ok {
				r["wrong_count"] = r["wrong_count"].(int64) + 1
			}
		}
		return nil, nil
	case "get_random_words":
		var out []store.Row
		for _, r := range f.words {
			out = append(out, r)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unexpected proc %s", name)
}

// constraintErr stands in for the adapter's SQLSTATE 23xxx mapping.
func constraintErr() error {
	return &store.ConstraintError{Constraint: "pk"}
}

type fakeScraper struct {
	calls int
	fail  bool
}

func (f *fakeScraper) Lookup(ctx context.Context, word string) (*WordInfo, error) {
	f.calls++
	if f.fail {
		return nil, errors.New("dictionary down")
	}
	info := &WordInfo{Word: word, English: "horse", StrokeGIF: "https://dict.example/stroke.gif"}
	info.Pingyin.Cantonese = []PronunciationEntry{{Display: "maa5", Code: "maa5"}}
	return info, nil
}

func (f *fakeScraper) PronunciationURL(code string) string {
	return "https://dict.example/audio/" + code + ".mp3"
}

func TestCreateIfMissingScrapesOnce(t *testing.T) {
	st := newFakeStore()
	sc := &fakeScraper{}
	svc := NewService(st, sc)

	w, err := svc.CreateIfMissing(context.Background(), "馬")
	if err != nil {
		t.Fatalf("CreateIfMissing: %v", err)
	}
	if w.WordID != int64('馬') {
		t.Fatalf("word id = %d, want the code point %d", w.WordID, int64('馬'))
	}
	if w.PronunciationURL != "https://dict.example/audio/maa5.mp3" {
		t.Fatalf("pronunciation url = %q", w.PronunciationURL)
	}

	// Second sighting hits the catalog, not the dictionary.
	if _, err := svc.CreateIfMissing(context.Background(), "馬"); err != nil {
		t.Fatalf("second CreateIfMissing: %v", err)
	}
	if sc.calls != 1 {
		t.Fatalf("scraper called %d times, want 1", sc.calls)
	}
}

func TestCreateIfMissingRejectsNonCJK(t *testing.T) {
	svc := NewService(newFakeStore(), &fakeScraper{})
	if _, err := svc.CreateIfMissing(context.Background(), "a"); err == nil {
		t.Fatal("expected error for a non-CJK character")
	}
}

func TestCreateIfMissingSurfacesScrapeFailure(t *testing.T) {
	svc := NewService(newFakeStore(), &fakeScraper{fail: true})
	if _, err := svc.CreateIfMissing(context.Background(), "馬"); err == nil {
		t.Fatal("expected error when the dictionary is down")
	}
}

func TestAddRetriesConflictAsIncrement(t *testing.T) {
	st := newFakeStore()
	svc := NewWrongWordService(st, NewService(st, &fakeScraper{}))
	uid := "user-1"

	if err := svc.Add(context.Background(), uid, "馬", ""); err != nil {
		t.Fatalf("first Add: %v", err)
	}
	if err := svc.Add(context.Background(), uid, "馬", ""); err != nil {
		t.Fatalf("second Add: %v", err)
	}
	id := int64('馬')
	if got := st.edges[id]["wrong_count"].(int64); got != 2 {
		t.Fatalf("wrong_count = %d, want 2 after insert-then-increment", got)
	}
	if len(st.bumpedWith) != 1 || st.bumpedWith[0] != id {
		t.Fatalf("increment proc called with %v, want [%d]", st.bumpedWith, id)
	}
}

func TestBatchAddSplitsExistingAndNew(t *testing.T) {
	st := newFakeStore()
	svc := NewWrongWordService(st, NewService(st, &fakeScraper{}))
	uid := "user-1"

	// Seed one existing edge.
	if err := svc.Add(context.Background(), uid, "馬", ""); err != nil {
		t.Fatalf("seed: %v", err)
	}

	merged, err := svc.BatchAdd(context.Background(), uid, []WrongItem{
		{Char: "馬"},
		{Char: "中", ImageURL: "https://blob.example/wrong.png"},
	})
	if err != nil {
		t.Fatalf("BatchAdd: %v", err)
	}
	if len(merged) != 2 {
		t.Fatalf("merged = %d edges, want 2", len(merged))
	}
	// The batch result carries catalog fields, like the dictionary.
	for _, ww := range merged {
		if ww.Word == "" {
			t.Fatalf("merged edge %d has no word text", ww.WordID)
		}
		if ww.PronunciationURL == "" {
			t.Fatalf("merged edge %q has no pronunciation url", ww.Word)
		}
	}
	if got := st.edges[int64('馬')]["wrong_count"].(int64); got != 2 {
		t.Fatalf("existing edge count = %d, want 2 (incremented)", got)
	}
	if got := st.edges[int64('中')]["wrong_count"].(int64); got != 1 {
		t.Fatalf("new edge count = %d, want 1 (inserted)", got)
	}
}

func TestStripJSONP(t *testing.T) {
	in := `wordCallBack({"word":"馬"})`
	if got := stripJSONP(in); got != `{"word":"馬"}` {
		t.Fatalf("stripJSONP = %q", got)
	}
	if got := stripJSONP(`{"word":"馬"}`); got != `{"word":"馬"}` {
		t.Fatalf("stripJSONP on bare json = %q", got)
	}
}
