package service

import (
	"context"
	"errors"
	"strings"
	"student_services_backend/internal/model"
	"student_services_backend/internal/repository"
	"student_services_backend/internal/util"
	"student_services_backend/pkg/cache"
	"student_services_backend/pkg/events"
	"student_services_backend/pkg/logger"
	"student_services_backend/pkg/monitoring"
	"student_services_backend/pkg/tracing"
	"time"

	"go.uber.org/zap"
)

type AnswerService struct {
	Repo      repository.QARepository
	Cache     cache.Cache
	Publisher events.Publisher
	Clock     Clock
}

func NewAnswerService(repo repository.QARepository, listCache cache.Cache, publisher events.Publisher) *AnswerService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &AnswerService{
		Repo:      repo,
		Cache:     listCache,
		Publisher: publisher,
		Clock:     time.Now,
	}
}

func (s *AnswerService) now() time.Time {
	if s.Clock == nil {
		return time.Now()
	}
	return s.Clock()
}

// Create appends an answer and marks the question answered in the same
// transaction. The question row stays locked until commit.
func (s *AnswerService) Create(ctx context.Context, authorID uint, questionID string, req CreateAnswerRequest) (view *AnswerView, err error) {
	ctx, span := tracing.StartSpan(ctx, "AnswerService.Create")
	defer func() { tracing.EndSpan(span, err) }()

	answer := &model.Answer{
		UUIDBase: model.UUIDBase{
			ID:        model.GenerateUUID(),
			CreatedAt: s.now().Truncate(time.Millisecond),
		},
		QuestionID: questionID,
		AuthorID:   authorID,
		Content:    strings.TrimSpace(req.Content),
	}

	var question *model.Question
	err = s.Repo.Transaction(ctx, func(repo repository.QARepository) error {
		var err error
		if question, err = repo.LockQuestion(ctx, questionID); err != nil {
			return err
		}
		if err := validateStruct(req); err != nil {
			return err
		}
		if err := repo.CreateAnswer(ctx, answer); err != nil {
			return err
		}
		// 已回答时不再更新，标记只会从 false 变为 true
		if !question.IsAnswered {
			return repo.MarkAnswered(ctx, questionID)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, util.ErrQuestionNotFound
		}
		return nil, util.WrapStoreError("answer.create", err)
	}

	monitoring.AnswersCreated.Inc()
	logger.Log.Info("Answer created",
		zap.String("answer_id", answer.ID),
		zap.String("question_id", questionID),
		zap.Uint("user_id", authorID),
	)

	invalidateLists(ctx, s.Cache)
	publish(ctx, s.Publisher, events.AnswerCreated, events.AnswerCreatedEvent{
		AnswerID:         answer.ID,
		QuestionID:       questionID,
		QuestionAuthorID: question.AuthorID,
		AuthorID:         authorID,
		FirstAnswer:      !question.IsAnswered,
		CreatedAt:        answer.CreatedAt,
	})

	v := newAnswerView(*answer, s.now())
	return &v, nil
}
