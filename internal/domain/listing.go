package domain

import (
	"cmp"
	"slices"
)

// SortForDisplay orders questions for the dashboard: Escalated first, then
// newest first, then higher ID first so equal timestamps still sort totally.
func SortForDisplay(questions []Question) {
	slices.SortStableFunc(questions, compareForDisplay)
}

func compareForDisplay(a, b Question) int {
	if c := cmp.Compare(priority(a.Status), priority(b.Status)); c != 0 {
		return c
	}
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(b.ID, a.ID)
}

func priority(status QuestionStatus) int {
	if status == StatusEscalated {
		return 0
	}
	return 1
}

