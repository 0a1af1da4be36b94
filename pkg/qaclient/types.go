package qaclient

import "time"

type QuestionItem struct {
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

type Answer struct {
	ID         string    `json:"id"`
	QuestionID string    `json:"questionId"`
	AuthorID   uint      `json:"authorId"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"createdAt"`
	TimeLabel  string    `json:"timeLabel"`
}

type QuestionDetail struct {
	QuestionItem
	Answers        []Answer `json:"answers"`
	LikedByUserIDs []uint   `json:"likedByUserIds"`
}

type LikeResult struct {
	LikesCount int64 `json:"likesCount"`
	IsLiked    bool  `json:"isLiked"`
}

type Page struct {
	Questions []QuestionItem
	Page      int
	Limit     int
	Total     int64
	HasMore   bool
}

type ListOptions struct {
	Sort   string
	Search string
	Page   int
	Limit  int
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}
