package question

import (
	"fmt"
	"sort"
)

// Submission carries a learner's answer for one question. Exactly one
// field group is meaningful depending on the question's shape:
// Choices for mcq, Pairs for pairing, WritingVerdict for writing
// (supplied by the handwriting recognizer).
type Submission struct {
	Choices        []int
	Pairs          [][]int
	WritingVerdict *bool
}

// IsCorrect evaluates the submission against the question's canonical
// answers. It is pure and deterministic given the verdict for writing
// questions.
func (q *Question) IsCorrect(sub Submission) (bool, error) {
	switch q.Shape {
	case ShapeMultiChoice:
		if q.MultiChoice == nil {
			return false, fmt.Errorf("question %s has no multi-choice payload", q.ID)
		}
		return q.markMultiChoice(sub.Choices), nil
	case ShapePairing:
		if q.Pairing == nil {
			return false, fmt.Errorf("question %s has no pairing payload", q.ID)
		}
		return q.markPairing(sub.Pairs), nil
	case ShapeWriting:
		if sub.WritingVerdict == nil {
			return false, fmt.Errorf("question %s requires a handwriting verdict", q.ID)
		}
		return *sub.WritingVerdict, nil
	}
	return false, fmt.Errorf("question %s has unknown shape %q", q.ID, q.Shape)
}

func (q *Question) markMultiChoice(submitted []int) bool {
	if len(submitted) == 0 {
		return false
	}
	if q.MultiChoice.StrictOrder {
		for _, ans := range q.MultiChoice.Answers {
			if intSlicesEqual(submitted, ans.Choices) {
				return true
			}
		}
		return false
	}
	subSet := intSet(submitted)
	for _, ans := range q.MultiChoice.Answers {
		if setsEqual(subSet, intSet(ans.Choices)) {
			return true
		}
	}
	return false
}

// markPairing compares the multiset of option-id groupings, ignoring
// pair ids and the ordering of both pairs and options within a pair.
func (q *Question) markPairing(submitted [][]int) bool {
	if len(submitted) == 0 || len(submitted) != len(q.Pairing.Pairs) {
		return false
	}
	canonical := make([]string, 0, len(q.Pairing.Pairs))
	for _, pair := range q.Pairing.Pairs {
		ids := make([]int, 0, len(pair.Items))
		for _, opt := range pair.Items {
			ids = append(ids, opt.ID)
		}
		canonical = append(canonical, groupKey(ids))
	}
	got := make([]string, 0, len(submitted))
	for _, grp := range submitted {
		got = append(got, groupKey(grp))
	}
	sort.Strings(canonical)
	sort.Strings(got)
	for i := range canonical {
		if canonical[i] != got[i] {
			return false
		}
	}
	return true
}

func groupKey(ids []int) string {
	sorted := append([]int(nil), ids...)
	sort.Ints(sorted)
	key := ""
	for _, id := range sorted {
		key += fmt.Sprintf("%d,", id)
	}
	return key
}

func intSlicesEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func intSet(xs []int) map[int]bool {
	s := make(map[int]bool, len(xs))
	for _, x := range xs {
		s[x] = true
	}
	return s
}

func setsEqual(a, b map[int]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}
