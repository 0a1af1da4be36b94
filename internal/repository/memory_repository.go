package repository

import (
	"context"
	"sort"
	"strings"
	"student_services_backend/internal/model"
	"sync"
	"time"
)

type likeKey struct {
	questionID string
	userID     uint
}

type memoryState struct {
	questions map[string]model.Question
	answers   map[string]model.Answer
	likes     map[likeKey]model.QuestionLike
	nextLike  uint
}

func newMemoryState() *memoryState {
	return &memoryState{
		questions: make(map[string]model.Question),
		answers:   make(map[string]model.Answer),
		likes:     make(map[likeKey]model.QuestionLike),
	}
}

func (s *memoryState) clone() *memoryState {
	c := &memoryState{
		questions: make(map[string]model.Question, len(s.questions)),
		answers:   make(map[string]model.Answer, len(s.answers)),
		likes:     make(map[likeKey]model.QuestionLike, len(s.likes)),
		nextLike:  s.nextLike,
	}
	for k, v := range s.questions {
		c.questions[k] = v
	}
	for k, v := range s.answers {
		c.answers[k] = v
	}
	for k, v := range s.likes {
		c.likes[k] = v
	}
	return c
}

// MemoryRepository is an in-process QARepository. Transactions run
// serialized on a private copy of the state that replaces the shared state
// only when fn succeeds, so a failed transaction leaves no trace.
type MemoryRepository struct {
	mu    *sync.Mutex
	state *memoryState
	inTx  bool
	now   func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		mu:    &sync.Mutex{},
		state: newMemoryState(),
		now:   time.Now,
	}
}

// lock 事务内已持有锁，直接返回
func (r *MemoryRepository) lock() func() {
	if r.inTx {
		return func() {}
	}
	r.mu.Lock()
	return r.mu.Unlock
}

func (r *MemoryRepository) Transaction(ctx context.Context, fn func(repo QARepository) error) error {
	if r.inTx {
		return fn(r)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tx := &MemoryRepository{mu: r.mu, state: r.state.clone(), inTx: true, now: r.now}
	if err := fn(tx); err != nil {
		return err
	}
	// 提交前取消视为回滚
	if err := ctx.Err(); err != nil {
		return err
	}
	*r.state = *tx.state
	return nil
}

func (r *MemoryRepository) stats(q model.Question) QuestionStats {
	st := QuestionStats{Question: q}
	for _, a := range r.state.answers {
		if a.QuestionID == q.ID {
			st.AnswersCount++
		}
	}
	for k := range r.state.likes {
		if k.questionID == q.ID {
			st.LikesCount++
		}
	}
	return st
}

func (r *MemoryRepository) FindQuestions(ctx context.Context, q QuestionQuery) ([]QuestionStats, int64, error) {
	defer r.lock()()
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	search := strings.ToLower(q.Search)
	matched := make([]QuestionStats, 0, len(r.state.questions))
	for _, question := range r.state.questions {
		if search != "" &&
			!strings.Contains(strings.ToLower(question.Title), search) &&
			!strings.Contains(strings.ToLower(question.Description), search) {
			continue
		}
		matched = append(matched, r.stats(question))
	}

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if q.Sort == SortPopular && a.LikesCount != b.LikesCount {
			return a.LikesCount > b.LikesCount
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	total := int64(len(matched))
	if q.Offset < 0 || q.Offset >= len(matched) {
		return []QuestionStats{}, total, nil
	}
	end := q.Offset + q.Limit
	if q.Limit <= 0 || end > len(matched) {
		end = len(matched)
	}
	return matched[q.Offset:end], total, nil
}

func (r *MemoryRepository) FindQuestionByID(ctx context.Context, id string) (*model.Question, error) {
	defer r.lock()()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q, ok := r.state.questions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &q, nil
}

func (r *MemoryRepository) LockQuestion(ctx context.Context, id string) (*model.Question, error) {
	return r.FindQuestionByID(ctx, id)
}

func (r *MemoryRepository) CreateQuestion(ctx context.Context, question *model.Question) error {
	defer r.lock()()
	if err := ctx.Err(); err != nil {
		return err
	}
	if question.ID == "" {
		question.ID = model.GenerateUUID()
	}
	if _, exists := r.state.questions[question.ID]; exists {
		return ErrDuplicate
	}
	if question.CreatedAt.IsZero() {
		question.CreatedAt = r.now()
	}
	r.state.questions[question.ID] = *question
	return nil
}

func (r *MemoryRepository) MarkAnswered(ctx context.Context, id string) error {
	defer r.lock()()
	if err := ctx.Err(); err != nil {
		return err
	}
	q, ok := r.state.questions[id]
	if !ok {
		return nil
	}
	q.IsAnswered = true
	r.state.questions[id] = q
	return nil
}

// DeleteQuestion 与外键 ON DELETE CASCADE 一致，同时删除子行
func (r *MemoryRepository) DeleteQuestion(ctx context.Context, id string) error {
	defer r.lock()()
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := r.state.questions[id]; !ok {
		return ErrNotFound
	}
	delete(r.state.questions, id)
	for k, a := range r.state.answers {
		if a.QuestionID == id {
			delete(r.state.answers, k)
		}
	}
	for k := range r.state.likes {
		if k.questionID == id {
			delete(r.state.likes, k)
		}
	}
	return nil
}

func (r *MemoryRepository) CreateAnswer(ctx context.Context, answer *model.Answer) error {
	defer r.lock()()
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := r.state.questions[answer.QuestionID]; !ok {
		return ErrNotFound
	}
	if answer.ID == "" {
		answer.ID = model.GenerateUUID()
	}
	if answer.CreatedAt.IsZero() {
		answer.CreatedAt = r.now()
	}
	r.state.answers[answer.ID] = *answer
	return nil
}

func (r *MemoryRepository) FindAnswers(ctx context.Context, questionID string) ([]model.Answer, error) {
	defer r.lock()()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	answers := []model.Answer{}
	for _, a := range r.state.answers {
		if a.QuestionID == questionID {
			answers = append(answers, a)
		}
	}
	sort.Slice(answers, func(i, j int) bool {
		if !answers[i].CreatedAt.Equal(answers[j].CreatedAt) {
			return answers[i].CreatedAt.Before(answers[j].CreatedAt)
		}
		return answers[i].ID < answers[j].ID
	})
	return answers, nil
}

func (r *MemoryRepository) DeleteAnswers(ctx context.Context, questionID string) (int64, error) {
	defer r.lock()()
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var n int64
	for k, a := range r.state.answers {
		if a.QuestionID == questionID {
			delete(r.state.answers, k)
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) CreateLike(ctx context.Context, like *model.QuestionLike) error {
	defer r.lock()()
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := r.state.questions[like.QuestionID]; !ok {
		return ErrNotFound
	}
	key := likeKey{questionID: like.QuestionID, userID: like.UserID}
	if _, exists := r.state.likes[key]; exists {
		return ErrDuplicate
	}
	r.state.nextLike++
	like.ID = r.state.nextLike
	if like.CreatedAt.IsZero() {
		like.CreatedAt = r.now()
	}
	r.state.likes[key] = *like
	return nil
}

func (r *MemoryRepository) DeleteLike(ctx context.Context, questionID string, userID uint) error {
	defer r.lock()()
	if err := ctx.Err(); err != nil {
		return err
	}
	key := likeKey{questionID: questionID, userID: userID}
	if _, exists := r.state.likes[key]; !exists {
		return ErrNotFound
	}
	delete(r.state.likes, key)
	return nil
}

func (r *MemoryRepository) CountLikes(ctx context.Context, questionID string) (int64, error) {
	defer r.lock()()
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var n int64
	for k := range r.state.likes {
		if k.questionID == questionID {
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) FindLikerIDs(ctx context.Context, questionID string) ([]uint, error) {
	defer r.lock()()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	likes := make([]model.QuestionLike, 0)
	for k, l := range r.state.likes {
		if k.questionID == questionID {
			likes = append(likes, l)
		}
	}
	sort.Slice(likes, func(i, j int) bool {
		if !likes[i].CreatedAt.Equal(likes[j].CreatedAt) {
			return likes[i].CreatedAt.Before(likes[j].CreatedAt)
		}
		return likes[i].UserID < likes[j].UserID
	})
	ids := make([]uint, len(likes))
	for i, l := range likes {
		ids[i] = l.UserID
	}
	return ids, nil
}

func (r *MemoryRepository) FindLikedQuestionIDs(ctx context.Context, userID uint, questionIDs []string) ([]string, error) {
	defer r.lock()()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ids := []string{}
	for _, id := range questionIDs {
		if _, ok := r.state.likes[likeKey{questionID: id, userID: userID}]; ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *MemoryRepository) DeleteLikes(ctx context.Context, questionID string) (int64, error) {
	defer r.lock()()
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var n int64
	for k := range r.state.likes {
		if k.questionID == questionID {
			delete(r.state.likes, k)
			n++
		}
	}
	return n, nil
}

// RowCounts reports stored rows for one question, read outside any transaction.
func (r *MemoryRepository) RowCounts(questionID string) (questions, answers, likes int) {
	defer r.lock()()
	if _, ok := r.state.questions[questionID]; ok {
		questions = 1
	}
	for _, a := range r.state.answers {
		if a.QuestionID == questionID {
			answers++
		}
	}
	for k := range r.state.likes {
		if k.questionID == questionID {
			likes++
		}
	}
	return
}
