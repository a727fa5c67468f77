// Package question holds the canonical in-memory question model: a tagged
// variant over three answer shapes (multi-choice, writing, pairing), the
// correctness predicates used by the submission path, builders for each
// shape, and the adaptors that turn LLM output into questions.
package question

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Kind identifies what the question asks the learner to do.
type Kind string

const (
	KindPairingCards           Kind = "pairing_cards"
	KindMatchPic               Kind = "match_pic"
	KindCombineRadical         Kind = "combine_radical"
	KindCombineRadicalWithHint Kind = "combine_radical_with_hint"
	KindFillInSentence         Kind = "fill_in_sentence"
	KindListening              Kind = "listening"
	KindFillInVocab            Kind = "fill_in_vocab"
	KindIdentMirrored          Kind = "ident_mirrored"
	KindIdentWrong             Kind = "ident_wrong"
	KindCopyStroke             Kind = "copy_stroke"
	KindFillInRadical          Kind = "fill_in_radical"
)

// Shape identifies how the learner answers.
type Shape string

const (
	ShapeMultiChoice Shape = "mcq"
	ShapeWriting     Shape = "writing"
	ShapePairing     Shape = "pairing"
)

// shapeByKind maps every kind to its single answer shape.
var shapeByKind = map[Kind]Shape{
	KindPairingCards:           ShapePairing,
	KindMatchPic:               ShapeMultiChoice,
	KindCombineRadical:         ShapeMultiChoice,
	KindCombineRadicalWithHint: ShapeMultiChoice,
	KindFillInSentence:         ShapeMultiChoice,
	KindListening:              ShapeMultiChoice,
	KindFillInVocab:            ShapeMultiChoice,
	KindIdentMirrored:          ShapeMultiChoice,
	KindIdentWrong:             ShapeMultiChoice,
	KindCopyStroke:             ShapeWriting,
	KindFillInRadical:          ShapeWriting,
}

// ShapeOf returns the answer shape for a kind, or an error for an
// unknown kind.
func ShapeOf(k Kind) (Shape, error) {
	s, ok := shapeByKind[k]
	if !ok {
		return "", fmt.Errorf("unknown question kind %q", k)
	}
	return s, nil
}

// AIKinds are the kinds produced through the external generator.
var AIKinds = []Kind{KindFillInVocab, KindFillInSentence, KindPairingCards}

// IsAIKind reports whether questions of this kind come from the
// external generator.
func IsAIKind(k Kind) bool {
	for _, ai := range AIKinds {
		if k == ai {
			return true
		}
	}
	return false
}

// NeverOutdated reports whether age should not reduce a question's
// selection score. Only copy_stroke today.
func NeverOutdated(k Kind) bool { return k == KindCopyStroke }

// MaterialType classifies a given material.
type MaterialType string

const (
	MaterialTextLong  MaterialType = "text_long"
	MaterialTextShort MaterialType = "text_short"
	MaterialImage     MaterialType = "image"
	MaterialSound     MaterialType = "sound"
)

// Material is a piece of context shown with the question: a text
// fragment, an image, or a sound clip.
type Material struct {
	Type     MaterialType `json:"material_type"`
	ID       int          `json:"material_id"`
	ImageURL string       `json:"image_url,omitempty"`
	AltText  string       `json:"alt_text,omitempty"`
	SoundURL string       `json:"sound_url,omitempty"`
	Text     string       `json:"text,omitempty"`
}

// DisplayType is how multi-choice or pairing options are laid out.
type DisplayType string

const (
	DisplayGrid DisplayType = "grid"
	DisplayList DisplayType = "list"
)

// Display is the layout hint for choices.
type Display struct {
	Type    DisplayType `json:"display_type"`
	Rows    int         `json:"rows"`
	Columns int         `json:"columns,omitempty"`
}

func (d Display) validate() error {
	switch d.Type {
	case DisplayGrid:
		if d.Columns <= 0 {
			return fmt.Errorf("grid display requires columns > 0")
		}
	case DisplayList:
		if d.Columns != 0 {
			return fmt.Errorf("list display must not set columns")
		}
	default:
		return fmt.Errorf("unknown display type %q", d.Type)
	}
	return nil
}

// Option is one selectable choice. Either text or image must be set.
type Option struct {
	ID    int    `json:"option_id"`
	Text  string `json:"text,omitempty"`
	Image string `json:"image,omitempty"`
}

// Answer is one valid combination of option ids. Order matters only
// when the enclosing multi-choice is strict-order.
type Answer struct {
	ID      int   `json:"answer_id"`
	Choices []int `json:"choices"`
}

// MultiChoice is the mcq answer payload.
type MultiChoice struct {
	MinChoices  int      `json:"min_choices"`
	MaxChoices  int      `json:"max_choices"`
	Choices     []Option `json:"choices"`
	Answers     []Answer `json:"answers"`
	StrictOrder bool     `json:"strict_order"`
	Randomize   bool     `json:"randomize"`
	Display     Display  `json:"display"`
	TimeLimit   int      `json:"time_limit"`
}

// Writing is the handwriting answer payload.
type Writing struct {
	HandwriteTarget string `json:"handwrite_target"`
	SubmitURL       string `json:"submit_url"`
	BackgroundImage string `json:"background_image,omitempty"`
	TimeLimit       int    `json:"time_limit"`
}

// Pair is one matched group of two options. Option ids are unique
// across all pairs of a question.
type Pair struct {
	ID    int      `json:"pair_id"`
	Items []Option `json:"items"`
}

// Pairing is the pairing answer payload.
type Pairing struct {
	Pairs     []Pair  `json:"pairs"`
	Randomize bool    `json:"randomize"`
	Display   Display `json:"display"`
	TimeLimit int     `json:"time_limit"`
}

// Question is the canonical representation. Exactly one of
// MultiChoice, Writing, Pairing is non-nil, matching Shape.
type Question struct {
	ID         uuid.UUID
	Kind       Kind
	Shape      Shape
	Exp        int
	TargetWord string
	Prompt     string
	Given      []Material
	CreatedAt  time.Time
	UseCount   int
	CorrectCnt int

	MultiChoice *MultiChoice
	Writing     *Writing
	Pairing     *Pairing
}

// TargetWordID is the Unicode code point of the target character.
func (q *Question) TargetWordID() (int64, error) {
	return CodePoint(q.TargetWord)
}

// Validate checks the structural invariants of the question.
func (q *Question) Validate() error {
	shape, err := ShapeOf(q.Kind)
	if err != nil {
		return err
	}
	if shape != q.Shape {
		return fmt.Errorf("kind %s requires shape %s, got %s", q.Kind, shape, q.Shape)
	}
	populated := 0
	if q.MultiChoice != nil {
		populated++
	}
	if q.Writing != nil {
		populated++
	}
	if q.Pairing != nil {
		populated++
	}
	if populated != 1 {
		return fmt.Errorf("exactly one answer payload must be populated, got %d", populated)
	}
	if q.Exp < 0 {
		return fmt.Errorf("exp must be non-negative")
	}
	if q.CorrectCnt < 0 || q.CorrectCnt > q.UseCount {
		return fmt.Errorf("correct count %d out of range [0, %d]", q.CorrectCnt, q.UseCount)
	}
	if _, err := CodePoint(q.TargetWord); err != nil {
		return err
	}

	switch q.Shape {
	case ShapeMultiChoice:
		if q.MultiChoice == nil {
			return fmt.Errorf("mcq shape requires a multi-choice payload")
		}
		if err := q.validateMultiChoice(); err != nil {
			return err
		}
	case ShapeWriting:
		if q.Writing == nil {
			return fmt.Errorf("writing shape requires a writing payload")
		}
		if q.Writing.HandwriteTarget == "" {
			return fmt.Errorf("writing payload requires a handwrite target")
		}
	case ShapePairing:
		if q.Pairing == nil {
			return fmt.Errorf("pairing shape requires a pairing payload")
		}
		if err := q.validatePairing(); err != nil {
			return err
		}
	}
	return q.validateKind()
}

func (q *Question) validateMultiChoice() error {
	mc := q.MultiChoice
	if mc.MinChoices < 1 || mc.MaxChoices < mc.MinChoices {
		return fmt.Errorf("require max_choices >= min_choices >= 1, got min=%d max=%d", mc.MinChoices, mc.MaxChoices)
	}
	if err := mc.Display.validate(); err != nil {
		return err
	}
	seen := make(map[int]bool, len(mc.Choices))
	for _, opt := range mc.Choices {
		if opt.Text == "" && opt.Image == "" {
			return fmt.Errorf("option %d has neither text nor image", opt.ID)
		}
		if seen[opt.ID] {
			return fmt.Errorf("duplicate option id %d", opt.ID)
		}
		seen[opt.ID] = true
	}
	for _, ans := range mc.Answers {
		for _, c := range ans.Choices {
			if !seen[c] {
				return fmt.Errorf("answer %d references unknown option id %d", ans.ID, c)
			}
		}
	}
	return nil
}

func (q *Question) validatePairing() error {
	p := q.Pairing
	if len(p.Pairs) == 0 {
		return fmt.Errorf("pairing requires at least one pair")
	}
	if err := p.Display.validate(); err != nil {
		return err
	}
	pairSeen := make(map[int]bool, len(p.Pairs))
	optSeen := make(map[int]bool)
	for _, pair := range p.Pairs {
		if pairSeen[pair.ID] {
			return fmt.Errorf("duplicate pair id %d", pair.ID)
		}
		pairSeen[pair.ID] = true
		if len(pair.Items) != 2 {
			return fmt.Errorf("pair %d must have exactly 2 items, got %d", pair.ID, len(pair.Items))
		}
		for _, opt := range pair.Items {
			if opt.Text == "" && opt.Image == "" {
				return fmt.Errorf("pair %d option %d has neither text nor image", pair.ID, opt.ID)
			}
			if optSeen[opt.ID] {
				return fmt.Errorf("duplicate option id %d across pairs", opt.ID)
			}
			optSeen[opt.ID] = true
		}
	}
	return nil
}

// validateKind enforces the kind-specific given-material rules.
func (q *Question) validateKind() error {
	images := 0
	for _, m := range q.Given {
		if m.Type == MaterialImage {
			images++
		}
	}
	switch q.Kind {
	case KindCombineRadical, KindCombineRadicalWithHint:
		if !q.MultiChoice.StrictOrder {
			return fmt.Errorf("%s requires strict order", q.Kind)
		}
		if q.Kind == KindCombineRadicalWithHint && images < 2 {
			return fmt.Errorf("%s requires at least 2 given images", q.Kind)
		}
	case KindIdentMirrored:
		if images < 2 {
			return fmt.Errorf("%s requires at least 2 given images", q.Kind)
		}
	case KindFillInRadical:
		if images != 1 {
			return fmt.Errorf("%s requires exactly one given image", q.Kind)
		}
	}
	return nil
}

const (
	cjkFirst = 0x4E00
	cjkLast  = 0x9FFF
)

// CodePoint returns the Unicode code point of a single Chinese
// character in the CJK Unified Ideographs block.
func CodePoint(char string) (int64, error) {
	r, size := utf8.DecodeRuneInString(char)
	if r == utf8.RuneError || size != len(char) {
		return 0, fmt.Errorf("%q is not a single character", char)
	}
	if r < cjkFirst || r > cjkLast {
		return 0, fmt.Errorf("%q (U+%04X) is outside the CJK ideograph range", char, r)
	}
	return int64(r), nil
}

// CharFromCodePoint is the inverse of CodePoint.
func CharFromCodePoint(cp int64) (string, error) {
	if cp < cjkFirst || cp > cjkLast {
		return "", fmt.Errorf("code point U+%04X is outside the CJK ideograph range", cp)
	}
	return string(rune(cp)), nil
}
