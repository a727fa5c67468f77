package question

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Entry is the flattened store-row shape of a question: one column per
// payload family instead of the tagged in-memory variant. Conversion
// between the two happens only here.
type Entry struct {
	QuestionID         uuid.UUID  `json:"question_id"`
	Kind               Kind       `json:"question_type"`
	Shape              Shape      `json:"answer_type"`
	Given              []Material `json:"given_material,omitempty"`
	TargetWordID       int64      `json:"target_word_id"`
	Prompt             string     `json:"prompt"`
	MCChoices          []Option   `json:"mc_choices,omitempty"`
	MCAnswers          []Answer   `json:"mc_answers,omitempty"`
	Pairs              []Pair     `json:"pairs,omitempty"`
	PairingDisplay     *Display   `json:"pairing_display,omitempty"`
	HandwriteTarget    string     `json:"handwrite_target,omitempty"`
	BackgroundImageURL string     `json:"background_image_url,omitempty"`
	CreatedAt          int64      `json:"created_at"`
	UseCount           int        `json:"use_count"`
	CorrectCount       int        `json:"correct_count"`
}

// EntryFromQuestion flattens a canonical question into its row shape.
func EntryFromQuestion(q Question) (Entry, error) {
	wordID, err := q.TargetWordID()
	if err != nil {
		return Entry{}, err
	}
	e := Entry{
		QuestionID:   q.ID,
		Kind:         q.Kind,
		Shape:        q.Shape,
		Given:        q.Given,
		TargetWordID: wordID,
		Prompt:       q.Prompt,
		CreatedAt:    q.CreatedAt.Unix(),
		UseCount:     q.UseCount,
		CorrectCount: q.CorrectCnt,
	}
	if q.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().Unix()
	}
	switch q.Shape {
	case ShapeMultiChoice:
		if q.MultiChoice == nil {
			return Entry{}, fmt.Errorf("mcq question %s has no multi-choice payload", q.ID)
		}
		e.MCChoices = q.MultiChoice.Choices
		e.MCAnswers = q.MultiChoice.Answers
	case ShapeWriting:
		if q.Writing == nil {
			return Entry{}, fmt.Errorf("writing question %s has no writing payload", q.ID)
		}
		e.HandwriteTarget = q.Writing.HandwriteTarget
		e.BackgroundImageURL = q.Writing.BackgroundImage
	case ShapePairing:
		if q.Pairing == nil {
			return Entry{}, fmt.Errorf("pairing question %s has no pairing payload", q.ID)
		}
		e.Pairs = q.Pairing.Pairs
		d := q.Pairing.Display
		e.PairingDisplay = &d
	default:
		return Entry{}, fmt.Errorf("question %s has unknown shape %q", q.ID, q.Shape)
	}
	return e, nil
}

// ToQuestion rebuilds the canonical representation. A submit URL is
// required for writing questions because it is never persisted.
func (e Entry) ToQuestion(submitURL string) (Question, error) {
	char, err := CharFromCodePoint(e.TargetWordID)
	if err != nil {
		return Question{}, err
	}
	q := Question{
		ID:         e.QuestionID,
		Kind:       e.Kind,
		Shape:      e.Shape,
		Exp:        10,
		TargetWord: char,
		Prompt:     e.Prompt,
		Given:      e.Given,
		CreatedAt:  time.Unix(e.CreatedAt, 0).UTC(),
		UseCount:   e.UseCount,
		CorrectCnt: e.CorrectCount,
	}
	switch e.Shape {
	case ShapeMultiChoice:
		if len(e.MCChoices) == 0 || len(e.MCAnswers) == 0 {
			return Question{}, fmt.Errorf("question %s: multi-choice row missing choices or answers", e.QuestionID)
		}
		strict := e.Kind == KindCombineRadical || e.Kind == KindCombineRadicalWithHint
		q.MultiChoice = &MultiChoice{
			MinChoices:  1,
			MaxChoices:  1,
			Choices:     e.MCChoices,
			Answers:     e.MCAnswers,
			StrictOrder: strict,
			Randomize:   true,
			Display:     Display{Type: DisplayList, Rows: 4},
		}
	case ShapeWriting:
		if e.HandwriteTarget == "" {
			return Question{}, fmt.Errorf("question %s: writing row missing handwrite target", e.QuestionID)
		}
		if submitURL == "" {
			return Question{}, fmt.Errorf("question %s: writing question requires a submit URL", e.QuestionID)
		}
		q.Writing = &Writing{
			HandwriteTarget: e.HandwriteTarget,
			SubmitURL:       submitURL,
			BackgroundImage: e.BackgroundImageURL,
		}
	case ShapePairing:
		if len(e.Pairs) == 0 {
			return Question{}, fmt.Errorf("question %s: pairing row missing pairs", e.QuestionID)
		}
		display := Display{Type: DisplayGrid, Rows: 2, Columns: 2}
		if e.PairingDisplay != nil {
			display = *e.PairingDisplay
		}
		q.Pairing = &Pairing{
			Pairs:     e.Pairs,
			Randomize: true,
			Display:   display,
		}
	default:
		return Question{}, fmt.Errorf("question %s: unknown answer shape %q", e.QuestionID, e.Shape)
	}
	if err := q.Validate(); err != nil {
		return Question{}, fmt.Errorf("question %s: %w", e.QuestionID, err)
	}
	return q, nil
}

// Row flattens the entry into a store row keyed by column name. All
// payload columns are always present (nil when the payload family does
// not apply) so entries of mixed kinds share one column set and can go
// through a single batch insert. Zero-value id and created_at columns
// are omitted so the store can assign them.
func (e Entry) Row() map[string]any {
	row := map[string]any{
		"question_type":        string(e.Kind),
		"answer_type":          string(e.Shape),
		"target_word_id":       e.TargetWordID,
		"prompt":               e.Prompt,
		"use_count":            e.UseCount,
		"correct_count":        e.CorrectCount,
		"given_material":       nil,
		"mc_choices":           nil,
		"mc_answers":           nil,
		"pairs":                nil,
		"pairing_display":      nil,
		"handwrite_target":     nil,
		"background_image_url": nil,
	}
	if e.QuestionID != uuid.Nil {
		row["question_id"] = e.QuestionID.String()
	}
	if e.CreatedAt != 0 {
		row["created_at"] = e.CreatedAt
	}
	if e.Given != nil {
		row["given_material"] = e.Given
	}
	if e.MCChoices != nil {
		row["mc_choices"] = e.MCChoices
	}
	if e.MCAnswers != nil {
		row["mc_answers"] = e.MCAnswers
	}
	if e.Pairs != nil {
		row["pairs"] = e.Pairs
	}
	if e.PairingDisplay != nil {
		row["pairing_display"] = e.PairingDisplay
	}
	if e.HandwriteTarget != "" {
		row["handwrite_target"] = e.HandwriteTarget
	}
	if e.BackgroundImageURL != "" {
		row["background_image_url"] = e.BackgroundImageURL
	}
	return row
}

// EntryFromRow decodes a store row into an Entry. The store has
// already parsed JSON columns into generic values, so a JSON
// round-trip is the decoding seam.
func EntryFromRow(row map[string]any) (Entry, error) {
	raw, err := json.Marshal(row)
	if err != nil {
		return Entry{}, fmt.Errorf("encode question row: %w", err)
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, fmt.Errorf("decode question row: %w", err)
	}
	return e, nil
}
