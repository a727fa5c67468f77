package generator

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/writeright/writeright/internal/question"
)

// Response wrappers for the structured-output prompts.

type vocabList struct {
	Questions []question.VocabFormat `json:"questions"`
}

type sentenceList struct {
	Questions []question.SentenceFormat `json:"questions"`
}

type pairingList struct {
	Questions []question.PairingFormat `json:"questions"`
}

// auxMaxTokens reads the per-batch token budget from the head item's
// auxiliary arguments, falling back to the generator default.
func (g *Generator) auxMaxTokens(aux map[string]any) int64 {
	if aux != nil {
		switch v := aux["max_tokens"].(type) {
		case int64:
			return v
		case int:
			return int64(v)
		}
	}
	return g.maxTokens
}

// batchFillInVocab is the batch function behind the fill_in_vocab
// processor. Results are aligned to the input characters; a character
// the model skipped or whose adaptation failed yields a nil slot.
func (g *Generator) batchFillInVocab(ctx context.Context, chars []string, aux map[string]any) ([]*question.Question, error) {
	var resp vocabList
	err := g.llm.GenerateStructured(ctx, promptFillInVocab, strings.Join(chars, ", "), g.auxMaxTokens(aux), &resp)
	if err != nil {
		return nil, fmt.Errorf("fill_in_vocab batch: %w", err)
	}

	byChar := make(map[string]question.VocabFormat, len(resp.Questions))
	for _, f := range resp.Questions {
		byChar[f.GivenChar] = f
	}
	out := make([]*question.Question, len(chars))
	for i, c := range chars {
		f, ok := byChar[c]
		if !ok {
			log.Printf("generator: fill_in_vocab batch returned nothing for %q", c)
			continue
		}
		q, err := question.FromFillInVocab(f)
		if err != nil {
			log.Printf("generator: adapt fill_in_vocab for %q: %v", c, err)
			continue
		}
		out[i] = &q
	}
	return out, nil
}

// batchFillInSentence is the batch function behind the
// fill_in_sentence processor.
func (g *Generator) batchFillInSentence(ctx context.Context, chars []string, aux map[string]any) ([]*question.Question, error) {
	var resp sentenceList
	err := g.llm.GenerateStructured(ctx, promptFillInSentence, strings.Join(chars, ", "), g.auxMaxTokens(aux), &resp)
	if err != nil {
		return nil, fmt.Errorf("fill_in_sentence batch: %w", err)
	}

	byChar := make(map[string]question.SentenceFormat, len(resp.Questions))
	for _, f := range resp.Questions {
		byChar[f.GivenChar] = f
	}
	out := make([]*question.Question, len(chars))
	for i, c := range chars {
		f, ok := byChar[c]
		if !ok {
			log.Printf("generator: fill_in_sentence batch returned nothing for %q", c)
			continue
		}
		q, err := question.FromFillInSentence(f)
		if err != nil {
			log.Printf("generator: adapt fill_in_sentence for %q: %v", c, err)
			continue
		}
		out[i] = &q
	}
	return out, nil
}

// batchPairingCards is the batch function behind the pairing_cards
// processor. Each character is requested as a (char, n=2, k=4) tuple.
func (g *Generator) batchPairingCards(ctx context.Context, chars []string, aux map[string]any) ([]*question.Question, error) {
	parts := make([]string, len(chars))
	for i, c := range chars {
		parts[i] = fmt.Sprintf("(%s, n=2, k=4)", c)
	}

	var resp pairingList
	err := g.llm.GenerateStructured(ctx, promptPairingCards, strings.Join(parts, ", "), g.auxMaxTokens(aux), &resp)
	if err != nil {
		return nil, fmt.Errorf("pairing_cards batch: %w", err)
	}

	byChar := make(map[string]question.PairingFormat, len(resp.Questions))
	for _, f := range resp.Questions {
		byChar[f.TargetChar] = f
	}
	out := make([]*question.Question, len(chars))
	for i, c := range chars {
		f, ok := byChar[c]
		if !ok {
			log.Printf("generator: pairing_cards batch returned nothing for %q", c)
			continue
		}
		q, err := question.FromPairingCards(f)
		if err != nil {
			log.Printf("generator: adapt pairing_cards for %q: %v", c, err)
			continue
		}
		out[i] = &q
	}
	return out, nil
}
