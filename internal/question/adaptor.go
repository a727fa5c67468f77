package question

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"unicode/utf8"
)

// The formats below mirror the JSON shapes the external generator
// returns; the adaptors convert them into canonical questions.

// VocabFormat is one fill_in_vocab item from the generator.
type VocabFormat struct {
	GivenChar         string   `json:"given_char"`
	Vocabularies      []string `json:"vocabularies"`
	SimilarCharacters []string `json:"similar_characters"`
}

// SentenceFormat is one fill_in_sentence item from the generator.
type SentenceFormat struct {
	GivenChar         string   `json:"given_char"`
	Sentence          string   `json:"sentence"`
	SimilarCharacters []string `json:"similar_characters"`
}

// PairingFormat is one pairing_cards item from the generator.
type PairingFormat struct {
	TargetChar string   `json:"target_char"`
	N          int      `json:"n"`
	Words      []string `json:"words"`
}

// FromFillInVocab picks a random vocabulary containing the target
// character, blanks the first occurrence with "?", and offers the
// similar characters plus the target as four choices.
func FromFillInVocab(f VocabFormat) (Question, error) {
	var valid []string
	for _, v := range f.Vocabularies {
		if strings.Contains(v, f.GivenChar) {
			valid = append(valid, v)
		}
	}
	if len(valid) == 0 {
		return Question{}, fmt.Errorf("no vocabulary contains the target character %q", f.GivenChar)
	}
	vocab := valid[rand.IntN(len(valid))]
	blanked := strings.Replace(vocab, f.GivenChar, "?", 1)

	choices, mask := choicesWithTarget(f.SimilarCharacters, f.GivenChar)

	return NewMCQ(KindFillInVocab).
		Prompt("Fill in the blank").
		TargetWord(f.GivenChar).
		GivenText(blanked, false).
		Choices(choices, mask).
		Randomize(true).
		Display(DisplayGrid, 2, 2).
		TimeLimit(30).
		Build()
}

// FromFillInSentence blanks every occurrence of the target character
// in the sentence and offers the similar characters plus the target.
func FromFillInSentence(f SentenceFormat) (Question, error) {
	if !strings.Contains(f.Sentence, f.GivenChar) {
		return Question{}, fmt.Errorf("target character %q not found in sentence", f.GivenChar)
	}
	blanked := strings.ReplaceAll(f.Sentence, f.GivenChar, "?")

	choices, mask := choicesWithTarget(f.SimilarCharacters, f.GivenChar)

	return NewMCQ(KindFillInSentence).
		Prompt("Fill in the sentence").
		TargetWord(f.GivenChar).
		GivenText(blanked, false).
		Choices(choices, mask).
		Randomize(true).
		Display(DisplayGrid, 2, 2).
		TimeLimit(30).
		Build()
}

// choicesWithTarget appends the target to the distractors, dropping
// distractors that repeat the target so it is a choice exactly once.
func choicesWithTarget(similar []string, target string) ([]string, []bool) {
	choices := make([]string, 0, len(similar)+1)
	for _, c := range similar {
		if c == target {
			continue
		}
		choices = append(choices, c)
	}
	choices = append(choices, target)

	mask := make([]bool, len(choices))
	mask[len(mask)-1] = true
	return choices, mask
}

// FromPairingCards splits each two-character word into halves, each
// half pair becoming one pairing option. Words whose length is not
// two characters are discarded.
func FromPairingCards(f PairingFormat) (Question, error) {
	b := NewPairing(KindPairingCards).
		Prompt("Match the items below").
		TargetWord(f.TargetChar).
		Randomize(true).
		Display(DisplayGrid, 2, 2)

	for _, word := range f.Words {
		if utf8.RuneCountInString(word) != 2 {
			continue
		}
		runes := []rune(word)
		b.AddPair(string(runes[0]), string(runes[1]))
	}
	return b.Build()
}
