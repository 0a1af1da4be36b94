package service

import (
	"strings"
	"student_services_backend/internal/model"
	"student_services_backend/internal/repository"
	"student_services_backend/internal/util"
	"time"
)

// Clock returns the current time. Services take one so labels and
// timestamps can be pinned in tests.
type Clock func() time.Time

type CreateQuestionRequest struct {
	Title       string `json:"title" validate:"trimmed_min=5,max=255"`
	Description string `json:"description" validate:"max=5000"`
}

type CreateAnswerRequest struct {
	Content string `json:"content" validate:"trimmed_min=2,max=10000"`
}

// ListParams 列表查询参数，Page/Limit 越界时由服务端修正
type ListParams struct {
	Sort     string
	Search   string
	Page     int
	Limit    int
	ViewerID uint
}

type QuestionView struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	AuthorID     uint      `json:"authorId"`
	IsAnswered   bool      `json:"isAnswered"`
	IsLiked      bool      `json:"isLiked"`
	CreatedAt    time.Time `json:"createdAt"`
	AnswersCount int64     `json:"answersCount"`
	LikesCount   int64     `json:"likesCount"`
	TimeLabel    string    `json:"timeLabel"`
}

type AnswerView struct {
	ID         string    `json:"id"`
	QuestionID string    `json:"questionId"`
	AuthorID   uint      `json:"authorId"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"createdAt"`
	TimeLabel  string    `json:"timeLabel"`
}

type QuestionDetail struct {
	QuestionView
	Answers        []AnswerView `json:"answers"`
	LikedByUserIDs []uint       `json:"likedByUserIds"`
}

type QuestionPage struct {
	Questions []QuestionView `json:"questions"`
	HasMore   bool           `json:"hasMore"`
	Total     int64          `json:"total"`
	Page      int            `json:"page"`
	Limit     int            `json:"limit"`
}

type LikeResult struct {
	LikesCount int64 `json:"likesCount"`
	IsLiked    bool  `json:"isLiked"`
}

// ParseSort maps the query value to a sort mode; empty means popular.
func ParseSort(raw string) (repository.QuestionSort, error) {
	switch repository.QuestionSort(strings.ToLower(strings.TrimSpace(raw))) {
	case "", repository.SortPopular:
		return repository.SortPopular, nil
	case repository.SortNew:
		return repository.SortNew, nil
	}
	return "", util.NewValidationError("sort", "sort must be one of popular, new")
}

func newQuestionView(s repository.QuestionStats, now time.Time) QuestionView {
	return QuestionView{
		ID:           s.ID,
		Title:        s.Title,
		Description:  s.Description,
		AuthorID:     s.AuthorID,
		IsAnswered:   s.IsAnswered,
		CreatedAt:    s.CreatedAt,
		AnswersCount: s.AnswersCount,
		LikesCount:   s.LikesCount,
		TimeLabel:    util.TimeLabel(s.CreatedAt, now),
	}
}

func newAnswerView(a model.Answer, now time.Time) AnswerView {
	return AnswerView{
		ID:         a.ID,
		QuestionID: a.QuestionID,
		AuthorID:   a.AuthorID,
		Content:    a.Content,
		CreatedAt:  a.CreatedAt,
		TimeLabel:  util.TimeLabel(a.CreatedAt, now),
	}
}
