// Package engine selects the questions for a game round. Selection
// runs in six stages: pick revision words from the user's wrong-word
// history, fetch recent existing questions per word, score and
// classify them, serve the best per word, generate for words with no
// usable question, and recover remaining shortfall by retrying or
// recycling. The engine never mutates user state; it only reads
// history and writes newly generated questions.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/writeright/writeright/internal/question"
	"github.com/writeright/writeright/internal/store"
	"github.com/writeright/writeright/internal/words"
)

// ErrNoQuestions is terminal for a round: nothing could be selected,
// generated, or recycled.
var ErrNoQuestions = errors.New("engine: no questions available")

// MaxPerRound bounds how many questions one round may request.
const MaxPerRound = 20

// dictionaryFetchLimit bounds the wrong-word history read in stage 1.
const dictionaryFetchLimit = 1000

// Store is the slice of the relational adapter the engine reads
// through.
type Store interface {
	FetchAll(ctx context.Context, query string, params map[string]any) ([]store.Row, error)
}

// WrongWords supplies the user's mis-written characters.
type WrongWords interface {
	Dictionary(ctx context.Context, userID string, limit, offset int) ([]words.WrongWord, error)
}

// Catalog supplies filler words for users with thin history.
type Catalog interface {
	Random(ctx context.Context, n int) ([]words.Word, error)
}

// QuestionSource produces and persists new questions.
type QuestionSource interface {
	Generate(ctx context.Context, char string, kind question.Kind) (*question.Question, error)
	SaveAll(ctx context.Context, qs []*question.Question) error
	Kinds() []question.Kind
}

// BlobStore supplies the submit endpoint rebuilt writing questions
// need.
type BlobStore interface {
	SubmitURL() string
}

// Engine runs the selection pipeline. Safe for concurrent use.
type Engine struct {
	cfg     Config
	store   Store
	wrong   WrongWords
	catalog Catalog
	gen     QuestionSource
	blob    BlobStore

	now func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// New builds an engine with the given tuning.
func New(cfg Config, st Store, wrong WrongWords, catalog Catalog, gen QuestionSource, blob BlobStore) *Engine {
	return &Engine{
		cfg:     cfg,
		store:   st,
		wrong:   wrong,
		catalog: catalog,
		gen:     gen,
		blob:    blob,
		now:     time.Now,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// candidate is one revision word under consideration.
type candidate struct {
	wordID   int64
	char     string
	priority float64
}

// scored is an existing question with its suitability draw.
type scored struct {
	q     *question.Question
	score float64
	good  bool
}

// Select picks n questions for the user. The result has exactly n
// questions unless the pool is exhausted, in which case fewer are
// returned; an empty result is ErrNoQuestions.
func (e *Engine) Select(ctx context.Context, userID string, n int) ([]*question.Question, error) {
	if n < 1 || n > MaxPerRound {
		return nil, fmt.Errorf("engine: question count %d out of range [1, %d]", n, MaxPerRound)
	}

	cands, err := e.revisionWords(ctx, userID, n)
	if err != nil {
		return nil, err
	}

	existing, err := e.fetchExisting(ctx, cands)
	if err != nil {
		return nil, err
	}

	// Word order is randomized once; stages 4 through 6 walk it.
	e.shuffleCandidates(cands)

	var (
		selected    []*question.Question
		usedIDs     = make(map[string]bool)
		neverCount  = 0
		unserved    []candidate
		notGoodByID = make(map[int64][]scored)
	)

	for _, c := range cands {
		if len(selected) >= n {
			break
		}
		batch := e.scoreBatch(existing[c.wordID])
		var goods, notGoods []scored
		for _, s := range batch {
			if s.good {
				goods = append(goods, s)
			} else {
				notGoods = append(notGoods, s)
			}
		}
		sort.Slice(goods, func(i, j int) bool { return goods[i].score > goods[j].score })
		sort.Slice(notGoods, func(i, j int) bool { return notGoods[i].score > notGoods[j].score })
		notGoodByID[c.wordID] = notGoods

		pick := e.pickGood(goods, neverCount)
		if pick == nil {
			unserved = append(unserved, c)
			continue
		}
		selected = append(selected, pick)
		usedIDs[pick.ID.String()] = true
		if question.NeverOutdated(pick.Kind) {
			neverCount++
		}
	}

	// Stage 5: generate in parallel for words no existing question
	// served. One batch insert persists every success.
	failed := e.generateFor(ctx, unserved, n-len(selected), &selected, usedIDs)

	// Stage 6: recover remaining shortfall per word, by coin flip:
	// heads retries generation then falls back to recycling, tails
	// recycles then falls back to generation. At most one generation
	// per word here.
	for _, c := range failed {
		if len(selected) >= n {
			break
		}
		var pick *question.Question
		if e.coin() {
			pick = e.generateOne(ctx, c)
			if pick == nil {
				pick = recycle(notGoodByID[c.wordID], usedIDs)
			}
		} else {
			pick = recycle(notGoodByID[c.wordID], usedIDs)
			if pick == nil {
				pick = e.generateOne(ctx, c)
			}
		}
		if pick == nil {
			continue
		}
		selected = append(selected, pick)
		usedIDs[pick.ID.String()] = true
	}

	// Last resort: any recent unflagged question across the candidate
	// words.
	if len(selected) < n {
		more, err := e.fallback(ctx, cands, usedIDs, n-len(selected))
		if err != nil {
			log.Printf("engine: fallback query: %v", err)
		} else {
			selected = append(selected, more...)
		}
	}

	if len(selected) == 0 {
		return nil, ErrNoQuestions
	}
	if len(selected) > n {
		selected = selected[:n]
	}
	return selected, nil
}

// revisionWords is stage 1: priority-weighted sampling over the user's
// wrong words, padded with random catalog words when history is thin.
func (e *Engine) revisionWords(ctx context.Context, userID string, n int) ([]candidate, error) {
	edges, err := e.wrong.Dictionary(ctx, userID, dictionaryFetchLimit, 0)
	if err != nil {
		return nil, fmt.Errorf("engine: wrong-word history: %w", err)
	}

	max := e.cfg.MaxWords
	if lim := n * 2; lim < max {
		max = lim
	}

	now := e.now()
	cands := make([]candidate, 0, len(edges))
	for _, w := range edges {
		hours := now.Sub(time.Unix(w.LastWrongAt, 0)).Hours()
		if hours < 0 {
			hours = 0
		}
		cands = append(cands, candidate{
			wordID: w.WordID,
			char:   w.Word,
			priority: hours*e.cfg.TimeWeight +
				float64(w.WrongCount)*e.cfg.CountWeight +
				e.normal(e.cfg.JitterMean, e.cfg.JitterStd),
		})
	}

	if len(cands) > max {
		weights := make([]float64, len(cands))
		for i, c := range cands {
			weights[i] = c.priority
		}
		e.mu.Lock()
		idx := weightedSample(weights, max, e.rng)
		e.mu.Unlock()
		sampled := make([]candidate, len(idx))
		for i, j := range idx {
			sampled[i] = cands[j]
		}
		return sampled, nil
	}

	if len(cands) < max {
		fill, err := e.catalog.Random(ctx, max-len(cands))
		if err != nil {
			return nil, fmt.Errorf("engine: filler words: %w", err)
		}
		seen := make(map[int64]bool, len(cands))
		for _, c := range cands {
			seen[c.wordID] = true
		}
		for _, w := range fill {
			if seen[w.WordID] {
				continue
			}
			seen[w.WordID] = true
			// Fillers carry no revision urgency; they only lose
			// weighted draws against real history.
			cands = append(cands, candidate{
				wordID: w.WordID,
				char:   w.Word,
			})
		}
	}
	return cands, nil
}

// fetchExisting is stage 2: the most recent unflagged questions per
// candidate word, one round trip.
func (e *Engine) fetchExisting(ctx context.Context, cands []candidate) (map[int64][]*question.Question, error) {
	if len(cands) == 0 {
		return nil, nil
	}
	ids := make([]int64, len(cands))
	for i, c := range cands {
		ids[i] = c.wordID
	}

	const query = `
SELECT q.*
FROM unnest($word_ids::bigint[]) AS w(word_id)
CROSS JOIN LATERAL (
    SELECT *
    FROM questions qs
    WHERE qs.target_word_id = w.word_id
      AND NOT EXISTS (
          SELECT 1 FROM flagged_questions f
          WHERE f.question_id = qs.question_id
      )
    ORDER BY qs.created_at DESC
    LIMIT $per_word
) q`

	rows, err := e.store.FetchAll(ctx, query, map[string]any{
		"word_ids": ids,
		"per_word": e.cfg.FetchPerWord,
	})
	if err != nil {
		return nil, fmt.Errorf("engine: fetch existing questions: %w", err)
	}

	out := make(map[int64][]*question.Question, len(cands))
	for _, row := range rows {
		q, ok := e.questionFromRow(row)
		if !ok {
			continue
		}
		wordID, err := q.TargetWordID()
		if err != nil {
			continue
		}
		out[wordID] = append(out[wordID], q)
	}
	return out, nil
}

// scoreBatch is stage 3 for one word's questions.
func (e *Engine) scoreBatch(qs []*question.Question) []scored {
	if len(qs) == 0 {
		return nil
	}
	now := e.now()
	out := make([]scored, len(qs))
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, q := range qs {
		age := now.Sub(q.CreatedAt).Hours()
		if age < 0 {
			age = 0
		}
		s := e.cfg.score(q, age, e.rng)
		out[i] = scored{q: q, score: s, good: e.cfg.classify(s, e.rng)}
	}
	return out
}

// pickGood is stage 4 for one word: the best good question, honoring
// the never-outdated cap.
func (e *Engine) pickGood(goods []scored, neverCount int) *question.Question {
	for _, s := range goods {
		if question.NeverOutdated(s.q.Kind) && neverCount >= e.cfg.NeverOutdatedCap {
			continue
		}
		return s.q
	}
	return nil
}

// generateFor is stage 5: parallel generation for up to want unserved
// words, persisted in one batch. Returns the words still unserved.
func (e *Engine) generateFor(ctx context.Context, unserved []candidate, want int, selected *[]*question.Question, usedIDs map[string]bool) []candidate {
	if want <= 0 || len(unserved) == 0 {
		return unserved
	}
	jobs := unserved
	if len(jobs) > want {
		jobs = jobs[:want]
	}

	kinds := e.gen.Kinds()
	chosen := make([]question.Kind, len(jobs))
	for i := range jobs {
		chosen[i] = kinds[e.intn(len(kinds))]
	}

	results := make([]*question.Question, len(jobs))
	var g errgroup.Group
	for i, c := range jobs {
		g.Go(func() error {
			q, err := e.gen.Generate(ctx, c.char, chosen[i])
			if err != nil {
				log.Printf("engine: generate %s for %q: %v", chosen[i], c.char, err)
				return nil
			}
			if q.TargetWord != c.char {
				log.Printf("engine: generated question targets %q, wanted %q; dropped", q.TargetWord, c.char)
				return nil
			}
			results[i] = q
			return nil
		})
	}
	_ = g.Wait()

	var ok []*question.Question
	for _, q := range results {
		if q != nil {
			ok = append(ok, q)
		}
	}
	if len(ok) > 0 {
		if err := e.gen.SaveAll(ctx, ok); err != nil {
			log.Printf("engine: persist generated questions: %v", err)
			for i := range results {
				results[i] = nil
			}
		}
	}

	var failed []candidate
	for i, c := range jobs {
		if results[i] == nil {
			failed = append(failed, c)
			continue
		}
		*selected = append(*selected, results[i])
		usedIDs[results[i].ID.String()] = true
	}
	return append(failed, unserved[len(jobs):]...)
}

// generateOne is the stage-6 single-shot generation path.
func (e *Engine) generateOne(ctx context.Context, c candidate) *question.Question {
	kinds := e.gen.Kinds()
	kind := kinds[e.intn(len(kinds))]
	q, err := e.gen.Generate(ctx, c.char, kind)
	if err != nil {
		log.Printf("engine: retry generate %s for %q: %v", kind, c.char, err)
		return nil
	}
	if q.TargetWord != c.char {
		log.Printf("engine: retried question targets %q, wanted %q; dropped", q.TargetWord, c.char)
		return nil
	}
	if err := e.gen.SaveAll(ctx, []*question.Question{q}); err != nil {
		log.Printf("engine: persist retried question for %q: %v", c.char, err)
		return nil
	}
	return q
}

// recycle returns the best-scored not-good question not already in the
// round.
func recycle(notGoods []scored, usedIDs map[string]bool) *question.Question {
	for _, s := range notGoods {
		if !usedIDs[s.q.ID.String()] {
			return s.q
		}
	}
	return nil
}

// fallback reads any recent unflagged questions for the candidate
// words, skipping ones already selected.
func (e *Engine) fallback(ctx context.Context, cands []candidate, usedIDs map[string]bool, want int) ([]*question.Question, error) {
	if want <= 0 || len(cands) == 0 {
		return nil, nil
	}
	ids := make([]int64, len(cands))
	for i, c := range cands {
		ids[i] = c.wordID
	}
	exclude := make([]string, 0, len(usedIDs))
	for id := range usedIDs {
		exclude = append(exclude, id)
	}
	sort.Strings(exclude)

	const query = `
SELECT q.*
FROM questions q
WHERE q.target_word_id = ANY($word_ids::bigint[])
  AND NOT (q.question_id = ANY($exclude::uuid[]))
  AND NOT EXISTS (
      SELECT 1 FROM flagged_questions f
      WHERE f.question_id = q.question_id
  )
ORDER BY q.created_at DESC
LIMIT $limit`

	rows, err := e.store.FetchAll(ctx, query, map[string]any{
		"word_ids": ids,
		"exclude":  exclude,
		"limit":    want,
	})
	if err != nil {
		return nil, err
	}
	var out []*question.Question
	for _, row := range rows {
		if q, ok := e.questionFromRow(row); ok {
			out = append(out, q)
		}
	}
	return out, nil
}

// questionFromRow rebuilds a question, dropping rows that no longer
// decode rather than failing the round.
func (e *Engine) questionFromRow(row store.Row) (*question.Question, bool) {
	entry, err := question.EntryFromRow(row)
	if err != nil {
		log.Printf("engine: decode question row: %v", err)
		return nil, false
	}
	q, err := entry.ToQuestion(e.blob.SubmitURL())
	if err != nil {
		log.Printf("engine: rebuild question %s: %v", entry.QuestionID, err)
		return nil, false
	}
	return &q, true
}

func (e *Engine) shuffleCandidates(cands []candidate) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rng.Shuffle(len(cands), func(i, j int) {
		cands[i], cands[j] = cands[j], cands[i]
	})
}

func (e *Engine) normal(mean, std float64) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rng.NormFloat64()*std + mean
}

func (e *Engine) intn(n int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rng.Intn(n)
}

func (e *Engine) coin() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rng.Intn(2) == 0
}
