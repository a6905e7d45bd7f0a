package domain

import (
	"context"
	"time"
)

type EventType string

const (
	EventNewQuestion  EventType = "new_question"
	EventNewAnswer    EventType = "new_answer"
	EventStatusUpdate EventType = "status_update"
)

// Event is the frame sent to every live viewer. Events are never persisted.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

type NewQuestionData struct {
	ID          int64          `json:"id"`
	Content     string         `json:"content"`
	CreatedAt   time.Time      `json:"created_at"`
	Status      QuestionStatus `json:"status"`
	IsAnonymous bool           `json:"is_anonymous"`
	Sentiment   Sentiment      `json:"sentiment"`
}

type NewAnswerData struct {
	QuestionID int64     `json:"question_id"`
	ID         int64     `json:"id"`
	Content    string    `json:"content"`
	UserID     int64     `json:"user_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// StatusUpdateData carries only the fields that changed. Viewers treat an
// absent field as unchanged.
type StatusUpdateData struct {
	ID        int64           `json:"id"`
	Status    *QuestionStatus `json:"status,omitempty"`
	Sentiment *Sentiment      `json:"sentiment,omitempty"`
}

func NewQuestionEvent(q *Question) Event {
	return Event{Type: EventNewQuestion, Data: NewQuestionData{
		ID:          q.ID,
		Content:     q.Content,
		CreatedAt:   q.CreatedAt,
		Status:      q.Status,
		IsAnonymous: q.IsAnonymous,
		Sentiment:   q.Sentiment,
	}}
}

func NewAnswerEvent(a *Answer) Event {
	return Event{Type: EventNewAnswer, Data: NewAnswerData{
		QuestionID: a.QuestionID,
		ID:         a.ID,
		Content:    a.Content,
		UserID:     a.UserID,
		CreatedAt:  a.CreatedAt,
	}}
}

func StatusChangedEvent(id int64, status QuestionStatus) Event {
	return Event{Type: EventStatusUpdate, Data: StatusUpdateData{ID: id, Status: &status}}
}

func SentimentSettledEvent(id int64, sentiment Sentiment) Event {
	return Event{Type: EventStatusUpdate, Data: StatusUpdateData{ID: id, Sentiment: &sentiment}}
}

// EventPublisher fans an event out to live viewers. Delivery is best effort and
// failures are never reported to the caller.
type EventPublisher interface {
	Publish(ctx context.Context, event Event)
}
