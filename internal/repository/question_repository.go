package repository

import (
	"context"
	"errors"
	"strings"
	"student_services_backend/internal/model"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	mysqlDuplicateEntry  = 1062
	mysqlNoReferencedRow = 1452
	answersCountSubquery = "(SELECT COUNT(*) FROM answers WHERE answers.question_id = questions.id) AS answers_count"
	likesCountSubquery   = "(SELECT COUNT(*) FROM question_likes WHERE question_likes.question_id = questions.id) AS likes_count"
	orderPopular         = "likes_count DESC, questions.created_at DESC, questions.id ASC"
	orderNew             = "questions.created_at DESC, questions.id ASC"
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// QuestionRepository is the MySQL implementation of QARepository.
type QuestionRepository struct {
	DB *gorm.DB
}

func NewQuestionRepository(db *gorm.DB) *QuestionRepository {
	return &QuestionRepository{DB: db}
}

// translateError 把驱动错误映射为仓储层错误
func translateError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return ErrNotFound
	}

	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlDuplicateEntry:
			return ErrDuplicate
		case mysqlNoReferencedRow:
			return ErrNotFound
		}
	}
	return err
}

func (r *QuestionRepository) Transaction(ctx context.Context, fn func(repo QARepository) error) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&QuestionRepository{DB: tx})
	})
}

func (r *QuestionRepository) filtered(ctx context.Context, search string) *gorm.DB {
	query := r.DB.WithContext(ctx).Model(&model.Question{})
	if search != "" {
		pattern := "%" + likeEscaper.Replace(strings.ToLower(search)) + "%"
		query = query.Where("LOWER(questions.title) LIKE ? OR LOWER(questions.description) LIKE ?", pattern, pattern)
	}
	return query
}

func (r *QuestionRepository) FindQuestions(ctx context.Context, q QuestionQuery) ([]QuestionStats, int64, error) {
	var total int64
	if err := r.filtered(ctx, q.Search).Count(&total).Error; err != nil {
		return nil, 0, translateError(err)
	}

	order := orderNew
	if q.Sort == SortPopular {
		order = orderPopular
	}

	rows := make([]QuestionStats, 0, q.Limit)
	err := r.filtered(ctx, q.Search).
		Select("questions.*, " + answersCountSubquery + ", " + likesCountSubquery).
		Order(order).
		Offset(q.Offset).
		Limit(q.Limit).
		Scan(&rows).Error
	if err != nil {
		return nil, 0, translateError(err)
	}

	return rows, total, nil
}

func (r *QuestionRepository) FindQuestionByID(ctx context.Context, id string) (*model.Question, error) {
	var question model.Question
	err := r.DB.WithContext(ctx).First(&question, "id = ?", id).Error
	if err != nil {
		return nil, translateError(err)
	}
	return &question, nil
}

func (r *QuestionRepository) LockQuestion(ctx context.Context, id string) (*model.Question, error) {
	var question model.Question
	err := r.DB.WithContext(ctx).
		Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate}).
		First(&question, "id = ?", id).Error
	if err != nil {
		return nil, translateError(err)
	}
	return &question, nil
}

func (r *QuestionRepository) CreateQuestion(ctx context.Context, question *model.Question) error {
	return translateError(r.DB.WithContext(ctx).Create(question).Error)
}

// MarkAnswered 幂等：已是 true 时不报错
func (r *QuestionRepository) MarkAnswered(ctx context.Context, id string) error {
	res := r.DB.WithContext(ctx).Model(&model.Question{}).
		Where("id = ?", id).
		Update("is_answered", true)
	return translateError(res.Error)
}

func (r *QuestionRepository) DeleteQuestion(ctx context.Context, id string) error {
	res := r.DB.WithContext(ctx).Delete(&model.Question{}, "id = ?", id)
	if res.Error != nil {
		return translateError(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *QuestionRepository) CreateAnswer(ctx context.Context, answer *model.Answer) error {
	return translateError(r.DB.WithContext(ctx).Omit("Question").Create(answer).Error)
}

func (r *QuestionRepository) FindAnswers(ctx context.Context, questionID string) ([]model.Answer, error) {
	answers := []model.Answer{}
	err := r.DB.WithContext(ctx).
		Where("question_id = ?", questionID).
		Order("created_at ASC, id ASC").
		Find(&answers).Error
	return answers, translateError(err)
}

func (r *QuestionRepository) DeleteAnswers(ctx context.Context, questionID string) (int64, error) {
	res := r.DB.WithContext(ctx).Where("question_id = ?", questionID).Delete(&model.Answer{})
	return res.RowsAffected, translateError(res.Error)
}

// CreateLike 依赖 uk_question_user 唯一索引，重复时返回 ErrDuplicate
func (r *QuestionRepository) CreateLike(ctx context.Context, like *model.QuestionLike) error {
	return translateError(r.DB.WithContext(ctx).Omit("Question").Create(like).Error)
}

func (r *QuestionRepository) DeleteLike(ctx context.Context, questionID string, userID uint) error {
	res := r.DB.WithContext(ctx).
		Where("question_id = ? AND user_id = ?", questionID, userID).
		Delete(&model.QuestionLike{})
	if res.Error != nil {
		return translateError(res.Error)
	}
	// 未删除任何行
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *QuestionRepository) CountLikes(ctx context.Context, questionID string) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.QuestionLike{}).
		Where("question_id = ?", questionID).
		Count(&count).Error
	return count, translateError(err)
}

func (r *QuestionRepository) FindLikerIDs(ctx context.Context, questionID string) ([]uint, error) {
	ids := []uint{}
	err := r.DB.WithContext(ctx).Model(&model.QuestionLike{}).
		Where("question_id = ?", questionID).
		Order("created_at ASC, user_id ASC").
		Pluck("user_id", &ids).Error
	return ids, translateError(err)
}

func (r *QuestionRepository) FindLikedQuestionIDs(ctx context.Context, userID uint, questionIDs []string) ([]string, error) {
	ids := []string{}
	if userID == 0 || len(questionIDs) == 0 {
		return ids, nil
	}
	err := r.DB.WithContext(ctx).Model(&model.QuestionLike{}).
		Where("user_id = ? AND question_id IN ?", userID, questionIDs).
		Pluck("question_id", &ids).Error
	return ids, translateError(err)
}

func (r *QuestionRepository) DeleteLikes(ctx context.Context, questionID string) (int64, error) {
	res := r.DB.WithContext(ctx).Where("question_id = ?", questionID).Delete(&model.QuestionLike{})
	return res.RowsAffected, translateError(res.Error)
}
