package model

import (
	"time"
)

// Question 社区提问。IsAnswered 是 answers 表的缓存派生值，只能由回答流程置为 true。
type Question struct {
	UUIDBase
	Title       string `gorm:"size:255;not null" json:"title"`
	Description string `gorm:"type:text" json:"description"`
	AuthorID    uint   `gorm:"index;type:bigint unsigned;not null" json:"authorId"`
	IsAnswered  bool   `gorm:"not null;default:false" json:"isAnswered"`
}

func (Question) TableName() string {
	return "questions"
}

// Answer 只追加，不修改；随问题级联删除
type Answer struct {
	UUIDBase
	QuestionID string    `gorm:"index;type:varchar(36);not null" json:"questionId"`
	Question   *Question `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	AuthorID   uint      `gorm:"index;type:bigint unsigned;not null" json:"authorId"`
	Content    string    `gorm:"type:text;not null" json:"content"`
}

func (Answer) TableName() string {
	return "answers"
}

// QuestionLike 每个 (question_id, user_id) 至多一行，由唯一索引保证
type QuestionLike struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"-"`
	QuestionID string    `gorm:"uniqueIndex:uk_question_user,priority:1;type:varchar(36);not null" json:"questionId"`
	Question   *Question `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	UserID     uint      `gorm:"uniqueIndex:uk_question_user,priority:2;index;type:bigint unsigned;not null" json:"userId"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (QuestionLike) TableName() string {
	return "question_likes"
}
