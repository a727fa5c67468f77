package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/writeright/writeright/internal/batch"
	"github.com/writeright/writeright/internal/question"
	"github.com/writeright/writeright/internal/store"
	"github.com/writeright/writeright/internal/words"
)

type fakeLLM struct {
	response string
	err      error
	calls    int
}

func (f *fakeLLM) GenerateStructured(ctx context.Context, systemPrompt, userPrompt string, maxTokens int64, out any) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	return json.Unmarshal([]byte(f.response), out)
}

type fakeStore struct {
	inserted  [][]store.Row
	insertErr error
	short     bool
	procRows  []store.Row
}

func (f *fakeStore) CallProc(ctx context.Context, name string, args ...any) ([]store.Row, error) {
	return f.procRows, nil
}

func (f *fakeStore) Insert(ctx context.Context, table string, row store.Row) (store.Row, error) {
	rows, err := f.InsertMany(ctx, table, []store.Row{row})
	if err != nil {
		return nil, err
	}
	return rows[0], nil
}

func (f *fakeStore) InsertMany(ctx context.Context, table string, rows []store.Row) ([]store.Row, error) {
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	f.inserted = append(f.inserted, rows)
	out := make([]store.Row, 0, len(rows))
	for _, r := range rows {
		stored := store.Row{}
		for k, v := range r {
			stored[k] = v
		}
		stored["question_id"] = uuid.New().String()
		stored["created_at"] = int64(1700000000)
		out = append(out, stored)
	}
	if f.short && len(out) > 0 {
		out = out[:len(out)-1]
	}
	return out, nil
}

type fakeCatalog struct{}

func (fakeCatalog) CreateIfMissing(ctx context.Context, char string) (*words.Word, error) {
	id, err := question.CodePoint(char)
	if err != nil {
		return nil, err
	}
	return &words.Word{
		WordID:           id,
		Word:             char,
		PronunciationURL: fmt.Sprintf("https://dict.example/audio/%d.mp3", id),
		StrokeURL:        fmt.Sprintf("https://dict.example/stroke/%d.gif", id),
	}, nil
}

type fakeBlob struct{}

func (fakeBlob) SubmitURL() string { return "https://blob.example/files/upload" }

func newGenerator(t *testing.T, gen *fakeLLM, st *fakeStore) *Generator {
	t.Helper()
	g, err := New(st, fakeCatalog{}, gen, fakeBlob{}, batch.NewManager(), 5, 200*time.Millisecond, 300)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { g.Shutdown(context.Background()) })
	return g
}

func TestGenerateCopyStroke(t *testing.T) {
	g := newGenerator(t, &fakeLLM{}, &fakeStore{})
	q, err := g.Generate(context.Background(), "中", question.KindCopyStroke)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if q.Kind != question.KindCopyStroke || q.TargetWord != "中" {
		t.Fatalf("question = %s/%s", q.Kind, q.TargetWord)
	}
	if q.Writing.SubmitURL != "https://blob.example/files/upload" {
		t.Fatalf("submit url = %q", q.Writing.SubmitURL)
	}
	if q.Writing.HandwriteTarget != "中" {
		t.Fatalf("handwrite target = %q", q.Writing.HandwriteTarget)
	}
}

func TestGenerateListening(t *testing.T) {
	g := newGenerator(t, &fakeLLM{}, &fakeStore{})
	q, err := g.Generate(context.Background(), "馬", question.KindListening)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(q.MultiChoice.Choices) != 4 {
		t.Fatalf("choices = %d, want 4", len(q.MultiChoice.Choices))
	}
	if q.MultiChoice.Choices[0].Text != "馬" {
		t.Fatalf("first choice = %q, want the target", q.MultiChoice.Choices[0].Text)
	}
	// The target also being a stock distractor must not duplicate it.
	for _, c := range q.MultiChoice.Choices[1:] {
		if c.Text == "馬" {
			t.Fatalf("target appears twice in choices")
		}
	}
	if len(q.Given) != 1 || q.Given[0].SoundURL == "" {
		t.Fatalf("given = %+v, want one sound material", q.Given)
	}
}

func TestGenerateAIKind(t *testing.T) {
	gen := &fakeLLM{response: `{"questions":[{"given_char":"請","vocabularies":["請求","請假"],"similar_characters":["情","清","精"]}]}`}
	g := newGenerator(t, gen, &fakeStore{})

	q, err := g.Generate(context.Background(), "請", question.KindFillInVocab)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if q.Kind != question.KindFillInVocab || q.TargetWord != "請" {
		t.Fatalf("question = %s/%s", q.Kind, q.TargetWord)
	}
}

func TestGenerateAIKindModelSkippedChar(t *testing.T) {
	// The model answered for a different character entirely.
	gen := &fakeLLM{response: `{"questions":[{"given_char":"上","vocabularies":["上面"],"similar_characters":["尚","卜","卡"]}]}`}
	g := newGenerator(t, gen, &fakeStore{})

	if _, err := g.Generate(context.Background(), "請", question.KindFillInVocab); err == nil {
		t.Fatal("expected error when the model skips the requested character")
	}
}

func TestGenerateAndSaveBindsID(t *testing.T) {
	st := &fakeStore{}
	g := newGenerator(t, &fakeLLM{}, st)

	q, err := g.GenerateAndSave(context.Background(), "中", question.KindCopyStroke)
	if err != nil {
		t.Fatalf("GenerateAndSave: %v", err)
	}
	if q.ID == uuid.Nil {
		t.Fatal("question id not bound")
	}
	if q.CreatedAt.Unix() != 1700000000 {
		t.Fatalf("created_at = %v, want the stored timestamp", q.CreatedAt)
	}
	if len(st.inserted) != 1 || len(st.inserted[0]) != 1 {
		t.Fatalf("inserts = %+v, want one single-row insert", st.inserted)
	}
}

func TestSaveAllShortfallFailsWhole(t *testing.T) {
	st := &fakeStore{short: true}
	g := newGenerator(t, &fakeLLM{}, st)

	q1, err := g.Generate(context.Background(), "中", question.KindCopyStroke)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	q2, err := g.Generate(context.Background(), "馬", question.KindCopyStroke)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if err := g.SaveAll(context.Background(), []*question.Question{q1, q2}); !errors.Is(err, ErrPersist) {
		t.Fatalf("error = %v, want ErrPersist", err)
	}
}

func TestSaveAllMixedKindsShareColumns(t *testing.T) {
	st := &fakeStore{}
	g := newGenerator(t, &fakeLLM{}, st)

	writing, err := g.Generate(context.Background(), "中", question.KindCopyStroke)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	listening, err := g.Generate(context.Background(), "馬", question.KindListening)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if err := g.SaveAll(context.Background(), []*question.Question{writing, listening}); err != nil {
		t.Fatalf("SaveAll: %v", err)
	}

	rows := st.inserted[0]
	for col := range rows[0] {
		if _, ok := rows[1][col]; !ok {
			t.Fatalf("column %q missing from the second row; batch inserts need one column set", col)
		}
	}
}

func TestBankCounts(t *testing.T) {
	st := &fakeStore{procRows: []store.Row{
		{"question_type": "copy_stroke", "count": int64(5)},
		{"question_type": "fill_in_vocab", "count": int64(2)},
	}}
	g := newGenerator(t, &fakeLLM{}, st)

	counts, err := g.BankCounts(context.Background(), 20013)
	if err != nil {
		t.Fatalf("BankCounts: %v", err)
	}
	if counts[question.KindCopyStroke] != 5 || counts[question.KindFillInVocab] != 2 {
		t.Fatalf("counts = %v", counts)
	}
}
