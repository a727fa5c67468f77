// Package generator produces a single question of a given kind for a
// character. AI-backed kinds go through the coalescing queue manager;
// copy_stroke and listening are assembled locally from catalog data.
package generator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/writeright/writeright/internal/batch"
	"github.com/writeright/writeright/internal/llm"
	"github.com/writeright/writeright/internal/question"
	"github.com/writeright/writeright/internal/store"
	"github.com/writeright/writeright/internal/words"
)

// ErrPersist marks a generated question that could not be written to
// the store; the in-memory object is discarded.
var ErrPersist = errors.New("generator: question could not be persisted")

// Store is the slice of the relational adapter the generator writes
// through.
type Store interface {
	Insert(ctx context.Context, table string, row store.Row) (store.Row, error)
	InsertMany(ctx context.Context, table string, rows []store.Row) ([]store.Row, error)
	CallProc(ctx context.Context, name string, args ...any) ([]store.Row, error)
}

// Catalog resolves characters to word records.
type Catalog interface {
	CreateIfMissing(ctx context.Context, char string) (*words.Word, error)
}

// BlobStore supplies the endpoint handwriting submissions upload to.
type BlobStore interface {
	SubmitURL() string
}

// listeningDistractors are the fixed wrong options for listening
// questions; the target character always leads the choice list.
var listeningDistractors = []string{"的", "是", "草", "馬"}

// Generator is stateless per call; the queue processors it owns hold
// the only long-lived state.
type Generator struct {
	store     Store
	words     Catalog
	llm       llm.Generator
	blob      BlobStore
	maxTokens int64

	procs map[question.Kind]*batch.Processor[string, *question.Question]
}

// New builds a generator and registers one queue processor per
// AI-backed kind with the manager. Registration is idempotent; an
// already-registered kind keeps its existing processor.
func New(st Store, catalog Catalog, gen llm.Generator, blob BlobStore, mgr *batch.Manager, batchSize int, maxWait time.Duration, maxTokens int64) (*Generator, error) {
	g := &Generator{
		store:     st,
		words:     catalog,
		llm:       gen,
		blob:      blob,
		maxTokens: maxTokens,
		procs:     make(map[question.Kind]*batch.Processor[string, *question.Question]),
	}

	fns := map[question.Kind]batch.Func[string, *question.Question]{
		question.KindFillInVocab:    g.batchFillInVocab,
		question.KindFillInSentence: g.batchFillInSentence,
		question.KindPairingCards:   g.batchPairingCards,
	}
	for kind, fn := range fns {
		p, err := batch.NewProcessor(string(kind), fn, batchSize, maxWait)
		if err != nil {
			return nil, err
		}
		if mgr != nil && !mgr.Register(p) {
			p.Shutdown(context.Background())
			return nil, fmt.Errorf("generator: processor %s already registered", kind)
		}
		g.procs[kind] = p
	}
	return g, nil
}

// Kinds lists the question kinds this generator can produce.
func (g *Generator) Kinds() []question.Kind {
	return []question.Kind{
		question.KindFillInVocab,
		question.KindFillInSentence,
		question.KindPairingCards,
		question.KindCopyStroke,
		question.KindListening,
	}
}

// Generate produces one unsaved question of the given kind for char.
func (g *Generator) Generate(ctx context.Context, char string, kind question.Kind) (*question.Question, error) {
	switch {
	case kind == question.KindCopyStroke:
		return g.copyStroke(ctx, char)
	case kind == question.KindListening:
		return g.listening(ctx, char)
	case question.IsAIKind(kind):
		proc, ok := g.procs[kind]
		if !ok {
			return nil, fmt.Errorf("generator: no processor for kind %q", kind)
		}
		q, err := proc.Submit(ctx, char, map[string]any{"max_tokens": g.maxTokens})
		if err != nil {
			return nil, err
		}
		if q == nil {
			return nil, fmt.Errorf("generator: model produced no %s question for %q", kind, char)
		}
		return q, nil
	default:
		return nil, fmt.Errorf("generator: kind %q cannot be generated", kind)
	}
}

// GenerateAndSave generates a question, persists it, and binds the
// store-assigned id onto the returned object.
func (g *Generator) GenerateAndSave(ctx context.Context, char string, kind question.Kind) (*question.Question, error) {
	q, err := g.Generate(ctx, char, kind)
	if err != nil {
		return nil, err
	}
	if err := g.SaveAll(ctx, []*question.Question{q}); err != nil {
		return nil, err
	}
	return q, nil
}

// SaveAll persists questions in one batch insert and binds the
// store-assigned ids and timestamps in order. Best-effort is not
// attempted: any shortfall fails the whole set.
func (g *Generator) SaveAll(ctx context.Context, qs []*question.Question) error {
	if len(qs) == 0 {
		return nil
	}
	rows := make([]store.Row, len(qs))
	for i, q := range qs {
		entry, err := question.EntryFromQuestion(*q)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPersist, err)
		}
		rows[i] = entry.Row()
	}

	inserted, err := g.store.InsertMany(ctx, "questions", rows)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	if len(inserted) != len(qs) {
		return fmt.Errorf("%w: stored %d of %d questions", ErrPersist, len(inserted), len(qs))
	}
	for i, row := range inserted {
		id, err := uuid.Parse(store.String(row, "question_id"))
		if err != nil {
			return fmt.Errorf("%w: bad stored id: %v", ErrPersist, err)
		}
		qs[i].ID = id
		if created := store.Int64(row, "created_at"); created != 0 {
			qs[i].CreatedAt = time.Unix(created, 0).UTC()
		}
	}
	return nil
}

// BankCounts reports how many stored questions of each kind exist for
// a word. Useful for deciding whether a word's bank is worth reusing.
func (g *Generator) BankCounts(ctx context.Context, wordID int64) (map[question.Kind]int64, error) {
	rows, err := g.store.CallProc(ctx, "count_question_types", wordID)
	if err != nil {
		return nil, fmt.Errorf("generator: count bank for word %d: %w", wordID, err)
	}
	counts := make(map[question.Kind]int64, len(rows))
	for _, r := range rows {
		counts[question.Kind(store.String(r, "question_type"))] = store.Int64(r, "count")
	}
	return counts, nil
}

// Shutdown drains the AI processors.
func (g *Generator) Shutdown(ctx context.Context) {
	for _, p := range g.procs {
		p.Shutdown(ctx)
	}
}

func (g *Generator) copyStroke(ctx context.Context, char string) (*question.Question, error) {
	word, err := g.words.CreateIfMissing(ctx, char)
	if err != nil {
		return nil, err
	}
	b := question.NewWriting(question.KindCopyStroke).
		TargetWord(char).
		HandwriteTarget(char).
		SubmitURL(g.blob.SubmitURL())
	if word.StrokeURL != "" {
		b = b.BackgroundImage(word.StrokeURL)
	}
	q, err := b.Build()
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (g *Generator) listening(ctx context.Context, char string) (*question.Question, error) {
	word, err := g.words.CreateIfMissing(ctx, char)
	if err != nil {
		return nil, err
	}
	if word.PronunciationURL == "" {
		return nil, fmt.Errorf("generator: no pronunciation for %q", char)
	}

	choices := []string{char}
	mask := []bool{true}
	for _, d := range listeningDistractors {
		if d == char {
			continue
		}
		choices = append(choices, d)
		mask = append(mask, false)
		if len(choices) == 4 {
			break
		}
	}

	q, err := question.NewMCQ(question.KindListening).
		TargetWord(char).
		GivenSound(word.PronunciationURL).
		Choices(choices, mask).
		Build()
	if err != nil {
		return nil, err
	}
	return &q, nil
}
