package events

import (
	"time"
)

const (
	QuestionCreated = "question.created"
	QuestionDeleted = "question.deleted"
	AnswerCreated   = "answer.created"
	QuestionLiked   = "question.liked"
	QuestionUnliked = "question.unliked"
)

type QuestionCreatedEvent struct {
	QuestionID string    `json:"question_id"`
	AuthorID   uint      `json:"author_id"`
	Title      string    `json:"title"`
	CreatedAt  time.Time `json:"created_at"`
}

type QuestionDeletedEvent struct {
	QuestionID string    `json:"question_id"`
	DeletedBy  uint      `json:"deleted_by"`
	DeletedAt  time.Time `json:"deleted_at"`
}

type AnswerCreatedEvent struct {
	AnswerID         string    `json:"answer_id"`
	QuestionID       string    `json:"question_id"`
	QuestionAuthorID uint      `json:"question_author_id"`
	AuthorID         uint      `json:"author_id"`
	FirstAnswer      bool      `json:"first_answer"`
	CreatedAt        time.Time `json:"created_at"`
}

type LikeEvent struct {
	QuestionID string    `json:"question_id"`
	UserID     uint      `json:"user_id"`
	LikesCount int64     `json:"likes_count"`
	At         time.Time `json:"at"`
}
