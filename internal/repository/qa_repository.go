package repository

import (
	"context"
	"errors"
	"student_services_backend/internal/model"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

type QuestionSort string

const (
	SortPopular QuestionSort = "popular"
	SortNew     QuestionSort = "new"
)

// QuestionQuery 列表查询条件，Search 已去除首尾空白
type QuestionQuery struct {
	Sort   QuestionSort
	Search string
	Offset int
	Limit  int
}

// QuestionStats 问题行加上聚合出来的回答数和点赞数
type QuestionStats struct {
	model.Question
	AnswersCount int64 `gorm:"column:answers_count" json:"answersCount"`
	LikesCount   int64 `gorm:"column:likes_count" json:"likesCount"`
}

// QARepository is the persistence boundary of the Q&A core. Every method
// runs on the transaction it was obtained from when called inside
// Transaction; counts are always aggregated from child rows.
type QARepository interface {
	// Transaction commits only if fn returns nil. Nothing fn wrote is
	// visible to others before commit.
	Transaction(ctx context.Context, fn func(repo QARepository) error) error

	FindQuestions(ctx context.Context, q QuestionQuery) ([]QuestionStats, int64, error)
	FindQuestionByID(ctx context.Context, id string) (*model.Question, error)
	// LockQuestion reads the question with a row lock held until the
	// surrounding transaction ends.
	LockQuestion(ctx context.Context, id string) (*model.Question, error)
	CreateQuestion(ctx context.Context, question *model.Question) error
	MarkAnswered(ctx context.Context, id string) error
	DeleteQuestion(ctx context.Context, id string) error

	CreateAnswer(ctx context.Context, answer *model.Answer) error
	FindAnswers(ctx context.Context, questionID string) ([]model.Answer, error)
	DeleteAnswers(ctx context.Context, questionID string) (int64, error)

	CreateLike(ctx context.Context, like *model.QuestionLike) error
	DeleteLike(ctx context.Context, questionID string, userID uint) error
	CountLikes(ctx context.Context, questionID string) (int64, error)
	FindLikerIDs(ctx context.Context, questionID string) ([]uint, error)
	FindLikedQuestionIDs(ctx context.Context, userID uint, questionIDs []string) ([]string, error)
	DeleteLikes(ctx context.Context, questionID string) (int64, error)
}
