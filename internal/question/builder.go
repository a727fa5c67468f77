package question

import (
	"fmt"

	"github.com/google/uuid"
)

// The builders below produce validated Question values, one builder
// per answer shape. Errors are collected and reported once at Build.

// MCQBuilder assembles a multi-choice question.
type MCQBuilder struct {
	q       Question
	mc      MultiChoice
	err     error
	choices int
	answers int
	givens  int
}

// NewMCQ starts a multi-choice question of the given kind.
func NewMCQ(kind Kind) *MCQBuilder {
	b := &MCQBuilder{
		q: Question{
			ID:     uuid.New(),
			Kind:   kind,
			Shape:  ShapeMultiChoice,
			Exp:    10,
			Prompt: "Select the correct answer",
		},
		mc: MultiChoice{
			MinChoices: 1,
			MaxChoices: 1,
			Randomize:  true,
			Display:    Display{Type: DisplayList, Rows: 4},
		},
	}
	if shape, err := ShapeOf(kind); err != nil || shape != ShapeMultiChoice {
		b.err = fmt.Errorf("kind %q is not a multi-choice kind", kind)
	}
	return b
}

func (b *MCQBuilder) TargetWord(char string) *MCQBuilder {
	b.q.TargetWord = char
	return b
}

func (b *MCQBuilder) Prompt(p string) *MCQBuilder {
	b.q.Prompt = p
	return b
}

func (b *MCQBuilder) TimeLimit(seconds int) *MCQBuilder {
	if seconds <= 0 && b.err == nil {
		b.err = fmt.Errorf("time limit must be positive")
	}
	b.mc.TimeLimit = seconds
	return b
}

// Choice appends one option; option ids are assigned sequentially
// starting at 1. A true isAnswer records a single-choice answer tuple.
func (b *MCQBuilder) Choice(text, image string, isAnswer bool) *MCQBuilder {
	if text == "" && image == "" {
		if b.err == nil {
			b.err = fmt.Errorf("choice needs text or an image")
		}
		return b
	}
	b.choices++
	b.mc.Choices = append(b.mc.Choices, Option{ID: b.choices, Text: text, Image: image})
	if isAnswer {
		b.answers++
		b.mc.Answers = append(b.mc.Answers, Answer{ID: b.answers, Choices: []int{b.choices}})
	}
	return b
}

// Choices appends text options in bulk with a parallel answer mask.
func (b *MCQBuilder) Choices(texts []string, isAnswers []bool) *MCQBuilder {
	if len(texts) != len(isAnswers) {
		if b.err == nil {
			b.err = fmt.Errorf("choices and answer mask length mismatch: %d vs %d", len(texts), len(isAnswers))
		}
		return b
	}
	for i, t := range texts {
		b.Choice(t, "", isAnswers[i])
	}
	return b
}

func (b *MCQBuilder) GivenText(text string, long bool) *MCQBuilder {
	if text == "" {
		if b.err == nil {
			b.err = fmt.Errorf("given text must not be empty")
		}
		return b
	}
	mt := MaterialTextShort
	if long {
		mt = MaterialTextLong
	}
	b.givens++
	b.q.Given = append(b.q.Given, Material{Type: mt, ID: b.givens, Text: text})
	return b
}

func (b *MCQBuilder) GivenImage(url, alt string) *MCQBuilder {
	if url == "" {
		if b.err == nil {
			b.err = fmt.Errorf("given image URL must not be empty")
		}
		return b
	}
	b.givens++
	b.q.Given = append(b.q.Given, Material{Type: MaterialImage, ID: b.givens, ImageURL: url, AltText: alt})
	return b
}

func (b *MCQBuilder) GivenSound(url string) *MCQBuilder {
	if url == "" {
		if b.err == nil {
			b.err = fmt.Errorf("given sound URL must not be empty")
		}
		return b
	}
	b.givens++
	b.q.Given = append(b.q.Given, Material{Type: MaterialSound, ID: b.givens, SoundURL: url})
	return b
}

func (b *MCQBuilder) StrictOrder(strict bool) *MCQBuilder {
	b.mc.StrictOrder = strict
	return b
}

func (b *MCQBuilder) Randomize(r bool) *MCQBuilder {
	b.mc.Randomize = r
	return b
}

func (b *MCQBuilder) Display(t DisplayType, rows, columns int) *MCQBuilder {
	b.mc.Display = Display{Type: t, Rows: rows, Columns: columns}
	return b
}

func (b *MCQBuilder) MinChoices(n int) *MCQBuilder {
	b.mc.MinChoices = n
	return b
}

func (b *MCQBuilder) MaxChoices(n int) *MCQBuilder {
	b.mc.MaxChoices = n
	return b
}

func (b *MCQBuilder) Build() (Question, error) {
	if b.err != nil {
		return Question{}, b.err
	}
	q := b.q
	mc := b.mc
	q.MultiChoice = &mc
	if err := q.Validate(); err != nil {
		return Question{}, err
	}
	return q, nil
}

// WritingBuilder assembles a handwriting question.
type WritingBuilder struct {
	q      Question
	w      Writing
	err    error
	givens int
}

// NewWriting starts a writing question of the given kind.
func NewWriting(kind Kind) *WritingBuilder {
	b := &WritingBuilder{
		q: Question{
			ID:     uuid.New(),
			Kind:   kind,
			Shape:  ShapeWriting,
			Exp:    10,
			Prompt: "Write the character below",
		},
	}
	if shape, err := ShapeOf(kind); err != nil || shape != ShapeWriting {
		b.err = fmt.Errorf("kind %q is not a writing kind", kind)
	}
	return b
}

func (b *WritingBuilder) TargetWord(char string) *WritingBuilder {
	b.q.TargetWord = char
	return b
}

func (b *WritingBuilder) Prompt(p string) *WritingBuilder {
	b.q.Prompt = p
	return b
}

func (b *WritingBuilder) TimeLimit(seconds int) *WritingBuilder {
	if seconds <= 0 && b.err == nil {
		b.err = fmt.Errorf("time limit must be positive")
	}
	b.w.TimeLimit = seconds
	return b
}

func (b *WritingBuilder) HandwriteTarget(char string) *WritingBuilder {
	b.w.HandwriteTarget = char
	return b
}

func (b *WritingBuilder) SubmitURL(url string) *WritingBuilder {
	b.w.SubmitURL = url
	return b
}

func (b *WritingBuilder) BackgroundImage(url string) *WritingBuilder {
	b.w.BackgroundImage = url
	return b
}

func (b *WritingBuilder) GivenImage(url, alt string) *WritingBuilder {
	if url == "" {
		if b.err == nil {
			b.err = fmt.Errorf("given image URL must not be empty")
		}
		return b
	}
	b.givens++
	b.q.Given = append(b.q.Given, Material{Type: MaterialImage, ID: b.givens, ImageURL: url, AltText: alt})
	return b
}

func (b *WritingBuilder) Build() (Question, error) {
	if b.err != nil {
		return Question{}, b.err
	}
	if b.w.SubmitURL == "" {
		return Question{}, fmt.Errorf("submit URL must be set")
	}
	q := b.q
	w := b.w
	q.Writing = &w
	if err := q.Validate(); err != nil {
		return Question{}, err
	}
	return q, nil
}

// PairingBuilder assembles a pairing question. Pair N (zero-based)
// gets option ids 2N+1 and 2N+2, keeping option ids globally unique
// within the question.
type PairingBuilder struct {
	q     Question
	p     Pairing
	err   error
	pairs int
}

// NewPairing starts a pairing question of the given kind.
func NewPairing(kind Kind) *PairingBuilder {
	b := &PairingBuilder{
		q: Question{
			ID:     uuid.New(),
			Kind:   kind,
			Shape:  ShapePairing,
			Exp:    10,
			Prompt: "Match the items below",
		},
		p: Pairing{
			Randomize: true,
			Display:   Display{Type: DisplayGrid, Rows: 2, Columns: 2},
		},
	}
	if shape, err := ShapeOf(kind); err != nil || shape != ShapePairing {
		b.err = fmt.Errorf("kind %q is not a pairing kind", kind)
	}
	return b
}

func (b *PairingBuilder) TargetWord(char string) *PairingBuilder {
	b.q.TargetWord = char
	return b
}

func (b *PairingBuilder) Prompt(p string) *PairingBuilder {
	b.q.Prompt = p
	return b
}

func (b *PairingBuilder) TimeLimit(seconds int) *PairingBuilder {
	if seconds <= 0 && b.err == nil {
		b.err = fmt.Errorf("time limit must be positive")
	}
	b.p.TimeLimit = seconds
	return b
}

func (b *PairingBuilder) Randomize(r bool) *PairingBuilder {
	b.p.Randomize = r
	return b
}

func (b *PairingBuilder) Display(t DisplayType, rows, columns int) *PairingBuilder {
	b.p.Display = Display{Type: t, Rows: rows, Columns: columns}
	return b
}

// AddPair appends one matched pair of text options.
func (b *PairingBuilder) AddPair(text1, text2 string) *PairingBuilder {
	if text1 == "" || text2 == "" {
		if b.err == nil {
			b.err = fmt.Errorf("both pair items need text")
		}
		return b
	}
	b.p.Pairs = append(b.p.Pairs, Pair{
		ID: b.pairs + 1,
		Items: []Option{
			{ID: b.pairs*2 + 1, Text: text1},
			{ID: b.pairs*2 + 2, Text: text2},
		},
	})
	b.pairs++
	return b
}

func (b *PairingBuilder) Build() (Question, error) {
	if b.err != nil {
		return Question{}, b.err
	}
	q := b.q
	p := b.p
	q.Pairing = &p
	if err := q.Validate(); err != nil {
		return Question{}, err
	}
	return q, nil
}
