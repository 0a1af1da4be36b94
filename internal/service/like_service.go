package service

import (
	"context"
	"errors"
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

// LikeService toggles likes. The (question_id, user_id) unique index is the
// source of truth; counts are re-aggregated after every change.
type LikeService struct {
	Repo      repository.QARepository
	Cache     cache.Cache
	Publisher events.Publisher
	Clock     Clock
}

func NewLikeService(repo repository.QARepository, listCache cache.Cache, publisher events.Publisher) *LikeService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &LikeService{
		Repo:      repo,
		Cache:     listCache,
		Publisher: publisher,
		Clock:     time.Now,
	}
}

func (s *LikeService) now() time.Time {
	if s.Clock == nil {
		return time.Now()
	}
	return s.Clock()
}

func (s *LikeService) Like(ctx context.Context, userID uint, questionID string) (result *LikeResult, err error) {
	ctx, span := tracing.StartSpan(ctx, "LikeService.Like")
	defer func() { tracing.EndSpan(span, err) }()

	var count int64
	err = s.Repo.Transaction(ctx, func(repo repository.QARepository) error {
		if _, err := repo.LockQuestion(ctx, questionID); err != nil {
			return err
		}
		like := &model.QuestionLike{
			QuestionID: questionID,
			UserID:     userID,
			CreatedAt:  s.now().Truncate(time.Millisecond),
		}
		if err := repo.CreateLike(ctx, like); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return util.ErrAlreadyLiked
			}
			return err
		}
		var err error
		count, err = repo.CountLikes(ctx, questionID)
		return err
	})
	if err != nil {
		err = likeError("question.like", err)
		monitoring.LikeOperations.WithLabelValues("like", likeOutcome(err)).Inc()
		return nil, err
	}

	monitoring.LikeOperations.WithLabelValues("like", "ok").Inc()
	logger.Log.Debug("Question liked",
		zap.String("question_id", questionID),
		zap.Uint("user_id", userID),
		zap.Int64("likes", count),
	)

	invalidateLists(ctx, s.Cache)
	publish(ctx, s.Publisher, events.QuestionLiked, events.LikeEvent{
		QuestionID: questionID,
		UserID:     userID,
		LikesCount: count,
		At:         s.now(),
	})
	return &LikeResult{LikesCount: count, IsLiked: true}, nil
}

func (s *LikeService) Unlike(ctx context.Context, userID uint, questionID string) (result *LikeResult, err error) {
	ctx, span := tracing.StartSpan(ctx, "LikeService.Unlike")
	defer func() { tracing.EndSpan(span, err) }()

	var count int64
	err = s.Repo.Transaction(ctx, func(repo repository.QARepository) error {
		if _, err := repo.LockQuestion(ctx, questionID); err != nil {
			return err
		}
		if err := repo.DeleteLike(ctx, questionID, userID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return util.ErrLikeNotFound
			}
			return err
		}
		var err error
		count, err = repo.CountLikes(ctx, questionID)
		return err
	})
	if err != nil {
		err = likeError("question.unlike", err)
		monitoring.LikeOperations.WithLabelValues("unlike", likeOutcome(err)).Inc()
		return nil, err
	}

	monitoring.LikeOperations.WithLabelValues("unlike", "ok").Inc()
	logger.Log.Debug("Question unliked",
		zap.String("question_id", questionID),
		zap.Uint("user_id", userID),
		zap.Int64("likes", count),
	)

	invalidateLists(ctx, s.Cache)
	publish(ctx, s.Publisher, events.QuestionUnliked, events.LikeEvent{
		QuestionID: questionID,
		UserID:     userID,
		LikesCount: count,
		At:         s.now(),
	})
	return &LikeResult{LikesCount: count, IsLiked: false}, nil
}

func likeError(op string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return util.ErrQuestionNotFound
	}
	return util.WrapStoreError(op, err)
}

func likeOutcome(err error) string {
	switch {
	case errors.Is(err, util.ErrAlreadyLiked):
		return "already_liked"
	case errors.Is(err, util.ErrLikeNotFound):
		return "no_like"
	case errors.Is(err, util.ErrQuestionNotFound):
		return "not_found"
	}
	return "error"
}
