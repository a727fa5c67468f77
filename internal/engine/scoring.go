package engine

import (
	"math"
	"math/rand"

	"github.com/writeright/writeright/internal/question"
)

// Config carries the tunables of the selection pipeline. Defaults
// reproduce the production behavior.
type Config struct {
	// Stage 1: revision-word priority weights and jitter.
	TimeWeight  float64
	CountWeight float64
	JitterMean  float64
	JitterStd   float64
	MaxWords    int

	// Stage 2: questions fetched per candidate word.
	FetchPerWord int

	// Stage 3: scoring and classification.
	DecayHours   float64
	UseAccuracy  bool
	SigmoidK     float64
	SigmoidTheta float64

	// Stage 4: cap on never-outdated questions per batch.
	NeverOutdatedCap int
}

// DefaultConfig returns the production tuning.
func DefaultConfig() Config {
	return Config{
		TimeWeight:       1.0,
		CountWeight:      2.0,
		JitterMean:       50,
		JitterStd:        10,
		MaxWords:         20,
		FetchPerWord:     50,
		DecayHours:       168,
		UseAccuracy:      false,
		SigmoidK:         10,
		SigmoidTheta:     0.6,
		NeverOutdatedCap: 3,
	}
}

// neverOutdatedAge is the fixed midrange age factor for kinds whose
// age does not reduce their suitability.
var neverOutdatedAge = math.Exp(-0.5)

// score computes the [0,1] suitability of an existing question.
// ageHours is the question's age at selection time.
func (c Config) score(q *question.Question, ageHours float64, rng *rand.Rand) float64 {
	var age float64
	if question.NeverOutdated(q.Kind) {
		age = neverOutdatedAge
	} else {
		age = math.Exp(-ageHours / c.DecayHours)
	}
	usage := 1 - math.Min(float64(q.UseCount)/100, 1)
	accuracy := 1.0
	if c.UseAccuracy && q.UseCount > 0 {
		accuracy = float64(q.CorrectCnt) / float64(q.UseCount)
	}
	return 0.3*age + 0.2*rng.Float64() + 0.3*usage + 0.2*accuracy
}

// classify Bernoulli-draws a question into good or not-good using the
// sigmoid of its score.
func (c Config) classify(score float64, rng *rand.Rand) bool {
	p := sigmoid(c.SigmoidK * (score - c.SigmoidTheta))
	return rng.Float64() < p
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// weightedSample draws k distinct indices from weights, probability
// proportional to weight. Weights are shifted to non-negative; an
// all-zero shifted set degrades to uniform.
func weightedSample(weights []float64, k int, rng *rand.Rand) []int {
	n := len(weights)
	if k >= n {
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out
	}

	shifted := make([]float64, n)
	min := weights[0]
	for _, w := range weights {
		if w < min {
			min = w
		}
	}
	total := 0.0
	for i, w := range weights {
		if min < 0 {
			shifted[i] = w - min
		} else {
			shifted[i] = w
		}
		total += shifted[i]
	}
	if total == 0 {
		for i := range shifted {
			shifted[i] = 1
		}
		total = float64(n)
	}

	picked := make([]int, 0, k)
	taken := make([]bool, n)
	for len(picked) < k {
		r := rng.Float64() * total
		for i, w := range shifted {
			if taken[i] {
				continue
			}
			r -= w
			if r <= 0 {
				picked = append(picked, i)
				taken[i] = true
				total -= w
				break
			}
		}
	}
	return picked
}
