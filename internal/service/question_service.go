package service

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
	"student_services_backend/internal/config"
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

const listCachePrefix = "qa:questions:list:"

// cachedList 只缓存存储层的行和总数，timeLabel 与 isLiked 读取时计算
type cachedList struct {
	Rows  []repository.QuestionStats `json:"rows"`
	Total int64                      `json:"total"`
}

type QuestionService struct {
	Repo      repository.QARepository
	Cache     cache.Cache
	Publisher events.Publisher
	Clock     Clock

	ListTTL      time.Duration
	DefaultLimit int
	MaxLimit     int
}

func NewQuestionService(
	repo repository.QARepository,
	listCache cache.Cache,
	publisher events.Publisher,
	qaCfg config.QAConfig,
	listTTL time.Duration,
) *QuestionService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &QuestionService{
		Repo:         repo,
		Cache:        listCache,
		Publisher:    publisher,
		Clock:        time.Now,
		ListTTL:      listTTL,
		DefaultLimit: qaCfg.DefaultPageSize,
		MaxLimit:     qaCfg.MaxPageSize,
	}
}

func (s *QuestionService) now() time.Time {
	if s.Clock == nil {
		return time.Now()
	}
	return s.Clock()
}

func (s *QuestionService) normalize(p ListParams) (repository.QuestionQuery, int, int, error) {
	sort, err := ParseSort(p.Sort)
	if err != nil {
		return repository.QuestionQuery{}, 0, 0, err
	}

	maxLimit := s.MaxLimit
	if maxLimit <= 0 || maxLimit > util.MaxPageSize {
		maxLimit = util.MaxPageSize
	}
	defaultLimit := s.DefaultLimit
	if defaultLimit <= 0 {
		defaultLimit = util.DefaultPageSize
	}
	if defaultLimit > maxLimit {
		defaultLimit = maxLimit
	}

	page := p.Page
	if page < 1 {
		page = 1
	}
	limit := p.Limit
	switch {
	case limit <= 0:
		limit = defaultLimit
	case limit > maxLimit:
		limit = maxLimit
	}
	// 超大页码会让偏移量溢出，截到 page*limit 仍可表示的范围
	if page > math.MaxInt/limit {
		page = math.MaxInt / limit
	}

	return repository.QuestionQuery{
		Sort:   sort,
		Search: strings.TrimSpace(p.Search),
		Offset: (page - 1) * limit,
		Limit:  limit,
	}, page, limit, nil
}

func listCacheKey(q repository.QuestionQuery) string {
	return listCachePrefix + cache.Signature("GET", "/questions", map[string]string{
		"sort":   string(q.Sort),
		"search": strings.ToLower(q.Search),
		"offset": strconv.Itoa(q.Offset),
		"limit":  strconv.Itoa(q.Limit),
	})
}

// List returns one page of questions with counts aggregated from child rows.
func (s *QuestionService) List(ctx context.Context, p ListParams) (page *QuestionPage, err error) {
	ctx, span := tracing.StartSpan(ctx, "QuestionService.List")
	defer func() { tracing.EndSpan(span, err) }()

	query, pageNum, limit, err := s.normalize(p)
	if err != nil {
		return nil, err
	}

	list, err := s.loadList(ctx, query)
	if err != nil {
		return nil, util.WrapStoreError("question.list", err)
	}

	liked := map[string]bool{}
	if p.ViewerID != 0 && len(list.Rows) > 0 {
		ids := make([]string, len(list.Rows))
		for i, row := range list.Rows {
			ids[i] = row.ID
		}
		likedIDs, err := s.Repo.FindLikedQuestionIDs(ctx, p.ViewerID, ids)
		if err != nil {
			return nil, util.WrapStoreError("question.list", err)
		}
		for _, id := range likedIDs {
			liked[id] = true
		}
	}

	now := s.now()
	views := make([]QuestionView, len(list.Rows))
	for i, row := range list.Rows {
		views[i] = newQuestionView(row, now)
		views[i].IsLiked = liked[row.ID]
	}

	return &QuestionPage{
		Questions: views,
		HasMore:   int64(pageNum)*int64(limit) < list.Total,
		Total:     list.Total,
		Page:      pageNum,
		Limit:     limit,
	}, nil
}

func (s *QuestionService) loadList(ctx context.Context, query repository.QuestionQuery) (*cachedList, error) {
	key := listCacheKey(query)
	if s.Cache != nil {
		entry, ok, err := s.Cache.Get(ctx, key)
		switch {
		case err != nil:
			monitoring.ListCacheLookups.WithLabelValues("error").Inc()
			logger.Log.Warn("List cache read failed", zap.String("key", key), zap.Error(err))
		case ok:
			var cached cachedList
			if err := json.Unmarshal(entry.Data, &cached); err == nil {
				monitoring.ListCacheLookups.WithLabelValues("hit").Inc()
				return &cached, nil
			}
			monitoring.ListCacheLookups.WithLabelValues("error").Inc()
		default:
			monitoring.ListCacheLookups.WithLabelValues("miss").Inc()
		}
	}

	// Count 与分页在同一事务中读取，保证 total 与行一致
	list := &cachedList{}
	err := s.Repo.Transaction(ctx, func(repo repository.QARepository) error {
		rows, total, err := repo.FindQuestions(ctx, query)
		if err != nil {
			return err
		}
		list.Rows = rows
		list.Total = total
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.Cache != nil {
		if data, err := json.Marshal(list); err == nil {
			if err := s.Cache.Set(ctx, key, data, s.ListTTL); err != nil {
				logger.Log.Warn("List cache write failed", zap.String("key", key), zap.Error(err))
			}
		}
	}
	return list, nil
}

// Get returns the question with its answers (oldest first) and the ids of
// users who like it. viewerID 0 means anonymous.
func (s *QuestionService) Get(ctx context.Context, id string, viewerID uint) (detail *QuestionDetail, err error) {
	ctx, span := tracing.StartSpan(ctx, "QuestionService.Get")
	defer func() { tracing.EndSpan(span, err) }()

	var (
		question *model.Question
		answers  []model.Answer
		likers   []uint
	)
	err = s.Repo.Transaction(ctx, func(repo repository.QARepository) error {
		var err error
		if question, err = repo.FindQuestionByID(ctx, id); err != nil {
			return err
		}
		if answers, err = repo.FindAnswers(ctx, id); err != nil {
			return err
		}
		likers, err = repo.FindLikerIDs(ctx, id)
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, util.ErrQuestionNotFound
		}
		return nil, util.WrapStoreError("question.get", err)
	}

	now := s.now()
	detail = &QuestionDetail{
		QuestionView: newQuestionView(repository.QuestionStats{
			Question:     *question,
			AnswersCount: int64(len(answers)),
			LikesCount:   int64(len(likers)),
		}, now),
		Answers:        make([]AnswerView, len(answers)),
		LikedByUserIDs: likers,
	}
	for i, a := range answers {
		detail.Answers[i] = newAnswerView(a, now)
	}
	for _, uid := range likers {
		if viewerID != 0 && uid == viewerID {
			detail.IsLiked = true
			break
		}
	}
	return detail, nil
}

func (s *QuestionService) Create(ctx context.Context, authorID uint, req CreateQuestionRequest) (view *QuestionView, err error) {
	ctx, span := tracing.StartSpan(ctx, "QuestionService.Create")
	defer func() { tracing.EndSpan(span, err) }()

	if err := validateStruct(req); err != nil {
		return nil, err
	}

	question := &model.Question{
		UUIDBase: model.UUIDBase{
			ID:        model.GenerateUUID(),
			CreatedAt: s.now().Truncate(time.Millisecond),
		},
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		AuthorID:    authorID,
	}
	if err := s.Repo.CreateQuestion(ctx, question); err != nil {
		return nil, util.WrapStoreError("question.create", err)
	}

	monitoring.QuestionsCreated.Inc()
	logger.Log.Info("Question created",
		zap.String("question_id", question.ID),
		zap.Uint("user_id", authorID),
	)

	invalidateLists(ctx, s.Cache)
	publish(ctx, s.Publisher, events.QuestionCreated, events.QuestionCreatedEvent{
		QuestionID: question.ID,
		AuthorID:   authorID,
		Title:      question.Title,
		CreatedAt:  question.CreatedAt,
	})

	v := newQuestionView(repository.QuestionStats{Question: *question}, s.now())
	return &v, nil
}

// Delete removes the question together with its answers and likes in one
// transaction. Only the author or an admin may delete.
func (s *QuestionService) Delete(ctx context.Context, requesterID uint, role model.UserRole, id string) (err error) {
	ctx, span := tracing.StartSpan(ctx, "QuestionService.Delete")
	defer func() { tracing.EndSpan(span, err) }()

	var removedAnswers, removedLikes int64
	err = s.Repo.Transaction(ctx, func(repo repository.QARepository) error {
		question, err := repo.LockQuestion(ctx, id)
		if err != nil {
			return err
		}
		if question.AuthorID != requesterID && !role.IsAdmin() {
			return util.ErrPermissionDenied
		}

		if removedLikes, err = repo.DeleteLikes(ctx, id); err != nil {
			return err
		}
		if removedAnswers, err = repo.DeleteAnswers(ctx, id); err != nil {
			return err
		}
		return repo.DeleteQuestion(ctx, id)
	})
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrNotFound):
		return util.ErrQuestionNotFound
	case errors.Is(err, util.ErrPermissionDenied):
		logger.Log.Warn("Question delete denied",
			zap.String("question_id", id),
			zap.Uint("user_id", requesterID),
			zap.String("role", string(role)),
		)
		return err
	default:
		return util.WrapStoreError("question.delete", err)
	}

	monitoring.QuestionsDeleted.Inc()
	logger.Log.Info("Question deleted",
		zap.String("question_id", id),
		zap.Uint("user_id", requesterID),
		zap.Int64("answers", removedAnswers),
		zap.Int64("likes", removedLikes),
	)

	invalidateLists(ctx, s.Cache)
	publish(ctx, s.Publisher, events.QuestionDeleted, events.QuestionDeletedEvent{
		QuestionID: id,
		DeletedBy:  requesterID,
		DeletedAt:  s.now(),
	})
	return nil
}

// invalidateLists 写操作提交后清除列表缓存，失败只记录日志
func invalidateLists(ctx context.Context, c cache.Cache) {
	if c == nil {
		return
	}
	if err := c.Invalidate(ctx, listCachePrefix); err != nil {
		logger.Log.Warn("List cache invalidation failed", zap.Error(err))
	}
}

// publish 事件发送失败不影响已提交的事务
func publish(ctx context.Context, p events.Publisher, event string, payload interface{}) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, event, payload); err != nil {
		logger.Log.Warn("Event publish failed", zap.String("event", event), zap.Error(err))
	}
}
