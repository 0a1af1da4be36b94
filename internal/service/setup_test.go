package service

import (
	"context"
	"errors"
	"student_services_backend/internal/config"
	"student_services_backend/internal/repository"
	"student_services_backend/pkg/cache"
	"student_services_backend/pkg/events"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	repo      *repository.MemoryRepository
	cache     *cache.MemoryCache
	publisher *events.RecordingPublisher
	clock     *fakeClock

	questions *QuestionService
	answers   *AnswerService
	likes     *LikeService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	repo := repository.NewMemoryRepository()
	return wireTestEnv(repo, repo)
}

// wireTestEnv lets tests wrap the store the services see while still
// inspecting the underlying memory repository.
func wireTestEnv(store *repository.MemoryRepository, seen repository.QARepository) *testEnv {
	env := &testEnv{
		repo:      store,
		cache:     cache.NewMemoryCache(),
		publisher: &events.RecordingPublisher{},
		clock:     newFakeClock(),
	}
	qaCfg := config.QAConfig{DefaultPageSize: 20, MaxPageSize: 100}

	env.questions = NewQuestionService(seen, env.cache, env.publisher, qaCfg, time.Minute)
	env.questions.Clock = env.clock.Now
	env.answers = NewAnswerService(seen, env.cache, env.publisher)
	env.answers.Clock = env.clock.Now
	env.likes = NewLikeService(seen, env.cache, env.publisher)
	env.likes.Clock = env.clock.Now
	return env
}

func (e *testEnv) createQuestion(t *testing.T, authorID uint, title string) *QuestionView {
	t.Helper()
	q, err := e.questions.Create(context.Background(), authorID, CreateQuestionRequest{Title: title})
	require.NoError(t, err)
	return q
}

func (e *testEnv) answer(t *testing.T, authorID uint, questionID, content string) *AnswerView {
	t.Helper()
	a, err := e.answers.Create(context.Background(), authorID, questionID, CreateAnswerRequest{Content: content})
	require.NoError(t, err)
	return a
}

var errInjected = errors.New("connection reset by peer")

// crashingRepo fails DeleteQuestion after the child rows are already gone,
// simulating a crash in the middle of the cascade.
type crashingRepo struct {
	repository.QARepository
}

func (r *crashingRepo) Transaction(ctx context.Context, fn func(repo repository.QARepository) error) error {
	return r.QARepository.Transaction(ctx, func(tx repository.QARepository) error {
		return fn(&crashingRepo{QARepository: tx})
	})
}

func (r *crashingRepo) DeleteQuestion(context.Context, string) error {
	return errInjected
}
