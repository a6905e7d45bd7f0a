package domain

import "context"

// Classifier returns a one-word sentiment label for text. The label is raw
// model output and must be normalized by the caller.
type Classifier interface {
	Classify(ctx context.Context, text string) (string, error)
}

// Suggester drafts an answer to a question.
type Suggester interface {
	Suggest(ctx context.Context, question string) (string, error)
}
