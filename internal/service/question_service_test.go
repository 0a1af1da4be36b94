package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"student_services_backend/internal/model"
	"student_services_backend/internal/repository"
	"student_services_backend/internal/util"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateQuestionValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name  string
		req   CreateQuestionRequest
		field string
	}{
		{"short title", CreateQuestionRequest{Title: "abcd"}, "title"},
		{"padded short title", CreateQuestionRequest{Title: "   abc   "}, "title"},
		{"long title", CreateQuestionRequest{Title: strings.Repeat("x", 256)}, "title"},
		{"long description", CreateQuestionRequest{Title: "Valid title", Description: strings.Repeat("d", 5001)}, "description"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.questions.Create(context.Background(), 1, tt.req)
			var ve *util.ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.Equal(t, tt.field, ve.Field)
			assert.NotEmpty(t, ve.Message)
		})
	}

	page, err := env.questions.List(context.Background(), ListParams{})
	require.NoError(t, err)
	assert.Zero(t, page.Total)
}

func TestCreateQuestion(t *testing.T) {
	env := newTestEnv(t)

	q, err := env.questions.Create(context.Background(), 3, CreateQuestionRequest{
		Title:       "  How to extend registration?  ",
		Description: " Need a stamp ",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, q.ID)
	assert.Equal(t, "How to extend registration?", q.Title)
	assert.Equal(t, "Need a stamp", q.Description)
	assert.Equal(t, uint(3), q.AuthorID)
	assert.False(t, q.IsAnswered)
	assert.Zero(t, q.AnswersCount)
	assert.Zero(t, q.LikesCount)
	assert.Equal(t, "just now", q.TimeLabel)
	assert.Equal(t, env.clock.Now(), q.CreatedAt)
}

func TestGetQuestion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	q := env.createQuestion(t, 1, "Bus pass for students")

	env.clock.Advance(time.Minute)
	env.answer(t, 2, q.ID, "First answer")
	env.clock.Advance(time.Minute)
	env.answer(t, 3, q.ID, "Second answer")
	_, err := env.likes.Like(ctx, 4, q.ID)
	require.NoError(t, err)
	env.clock.Advance(2 * time.Hour)

	detail, err := env.questions.Get(ctx, q.ID, 4)
	require.NoError(t, err)
	assert.True(t, detail.IsAnswered)
	assert.True(t, detail.IsLiked)
	assert.Equal(t, int64(2), detail.AnswersCount)
	assert.Equal(t, int64(1), detail.LikesCount)
	assert.Equal(t, []uint{4}, detail.LikedByUserIDs)
	assert.Equal(t, "2 h. ago", detail.TimeLabel)
	require.Len(t, detail.Answers, 2)
	assert.Equal(t, "First answer", detail.Answers[0].Content)
	assert.Equal(t, "Second answer", detail.Answers[1].Content)

	anon, err := env.questions.Get(ctx, q.ID, 0)
	require.NoError(t, err)
	assert.False(t, anon.IsLiked)

	_, err = env.questions.Get(ctx, "missing", 0)
	assert.ErrorIs(t, err, util.ErrQuestionNotFound)
}

func TestListPagination(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		env.createQuestion(t, 1, "Question number "+string(rune('A'+i)))
		env.clock.Advance(time.Minute)
	}
	// 两条同一时刻的问题按 id 升序
	env.createQuestion(t, 1, "Same instant one")
	env.createQuestion(t, 1, "Same instant two")

	full, err := env.questions.List(ctx, ListParams{Sort: "new", Page: 1, Limit: 100})
	require.NoError(t, err)
	require.Len(t, full.Questions, 5)

	var paged []string
	for page := 1; page <= 3; page++ {
		res, err := env.questions.List(ctx, ListParams{Sort: "new", Page: page, Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, int64(5), res.Total)
		assert.Equal(t, page < 3, res.HasMore, "page %d", page)
		for _, q := range res.Questions {
			paged = append(paged, q.ID)
		}
	}

	var want []string
	for _, q := range full.Questions {
		want = append(want, q.ID)
	}
	assert.Equal(t, want, paged)

	assert.Less(t, full.Questions[0].ID, full.Questions[1].ID)
	assert.True(t, full.Questions[0].CreatedAt.Equal(full.Questions[1].CreatedAt))
}

func TestListSortAndSearch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	older := env.createQuestion(t, 1, "Library opening hours")
	env.clock.Advance(time.Minute)
	newer := env.createQuestion(t, 1, "Gym schedule for 50% discount")

	_, err := env.likes.Like(ctx, 2, older.ID)
	require.NoError(t, err)

	popular, err := env.questions.List(ctx, ListParams{Sort: "popular"})
	require.NoError(t, err)
	require.Len(t, popular.Questions, 2)
	assert.Equal(t, older.ID, popular.Questions[0].ID)
	assert.Equal(t, int64(1), popular.Questions[0].LikesCount)

	recent, err := env.questions.List(ctx, ListParams{Sort: "new"})
	require.NoError(t, err)
	assert.Equal(t, newer.ID, recent.Questions[0].ID)

	found, err := env.questions.List(ctx, ListParams{Search: "  LIBRARY "})
	require.NoError(t, err)
	require.Len(t, found.Questions, 1)
	assert.Equal(t, older.ID, found.Questions[0].ID)

	literal, err := env.questions.List(ctx, ListParams{Search: "50%"})
	require.NoError(t, err)
	require.Len(t, literal.Questions, 1)
	assert.Equal(t, newer.ID, literal.Questions[0].ID)

	_, err = env.questions.List(ctx, ListParams{Sort: "oldest"})
	var ve *util.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "sort", ve.Field)
}

func TestListLimitClamp(t *testing.T) {
	env := newTestEnv(t)
	env.questions.MaxLimit = 3
	for i := 0; i < 5; i++ {
		env.createQuestion(t, 1, "Clamped question")
	}

	page, err := env.questions.List(context.Background(), ListParams{Page: -2, Limit: 50})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 3, page.Limit)
	assert.Len(t, page.Questions, 3)
	assert.True(t, page.HasMore)
}

func TestListHugePageIsEmpty(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 3; i++ {
		env.createQuestion(t, 1, "Paged question")
	}

	tests := []struct {
		name  string
		page  int
		limit int
	}{
		{"max int page", math.MaxInt, 20},
		{"max int page tenth", math.MaxInt / 10, 20},
		{"max int page default limit", math.MaxInt, 0},
		{"max int page limit one", math.MaxInt, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var page *QuestionPage
			var err error
			require.NotPanics(t, func() {
				page, err = env.questions.List(context.Background(), ListParams{Sort: "new", Page: tt.page, Limit: tt.limit})
			})
			require.NoError(t, err)
			assert.Empty(t, page.Questions)
			assert.False(t, page.HasMore)
			assert.Equal(t, int64(3), page.Total)
			assert.GreaterOrEqual(t, page.Page, 1)
		})
	}
}

func TestListViewerIsLiked(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.createQuestion(t, 1, "First question")
	b := env.createQuestion(t, 1, "Second question")

	_, err := env.likes.Like(ctx, 9, b.ID)
	require.NoError(t, err)

	page, err := env.questions.List(ctx, ListParams{ViewerID: 9})
	require.NoError(t, err)
	liked := map[string]bool{}
	for _, q := range page.Questions {
		liked[q.ID] = q.IsLiked
	}
	assert.False(t, liked[a.ID])
	assert.True(t, liked[b.ID])
}

func TestListCacheInvalidatedByMutations(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	q := env.createQuestion(t, 1, "Cached question")

	first, err := env.questions.List(ctx, ListParams{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), first.Questions[0].LikesCount)
	assert.Equal(t, 1, env.cache.Len())

	_, err = env.likes.Like(ctx, 2, q.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, env.cache.Len())

	second, err := env.questions.List(ctx, ListParams{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), second.Questions[0].LikesCount)

	// 命中缓存时 timeLabel 仍按当前时间计算
	env.clock.Advance(5 * time.Minute)
	third, err := env.questions.List(ctx, ListParams{})
	require.NoError(t, err)
	assert.Equal(t, "5 min. ago", third.Questions[0].TimeLabel)
}

func TestDeleteQuestionPermissions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	q := env.createQuestion(t, 1, "Who can delete this?")

	err := env.questions.Delete(ctx, 2, model.Student, q.ID)
	assert.ErrorIs(t, err, util.ErrPermissionDenied)

	err = env.questions.Delete(ctx, 99, model.Admin, q.ID)
	require.NoError(t, err)

	err = env.questions.Delete(ctx, 1, model.Student, q.ID)
	assert.ErrorIs(t, err, util.ErrQuestionNotFound)

	mine := env.createQuestion(t, 1, "Author deletes this")
	require.NoError(t, env.questions.Delete(ctx, 1, model.Student, mine.ID))
}

func TestDeleteCascade(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	q := env.createQuestion(t, 1, "Cascade me please")
	for i := 0; i < 3; i++ {
		env.answer(t, uint(10+i), q.ID, "Answer text")
	}
	for _, uid := range []uint{20, 21} {
		_, err := env.likes.Like(ctx, uid, q.ID)
		require.NoError(t, err)
	}

	questions, answers, likes := env.repo.RowCounts(q.ID)
	require.Equal(t, []int{1, 3, 2}, []int{questions, answers, likes})

	require.NoError(t, env.questions.Delete(ctx, 1, model.Student, q.ID))

	questions, answers, likes = env.repo.RowCounts(q.ID)
	assert.Equal(t, []int{0, 0, 0}, []int{questions, answers, likes})
}

func TestDeleteCascadeCrashLeavesAllRows(t *testing.T) {
	store := repository.NewMemoryRepository()
	env := wireTestEnv(store, store)
	ctx := context.Background()

	q := env.createQuestion(t, 1, "Crash during delete")
	for i := 0; i < 3; i++ {
		env.answer(t, uint(10+i), q.ID, "Answer text")
	}
	for _, uid := range []uint{20, 21} {
		_, err := env.likes.Like(ctx, uid, q.ID)
		require.NoError(t, err)
	}

	crashing := wireTestEnv(store, &crashingRepo{QARepository: store})
	err := crashing.questions.Delete(ctx, 1, model.Student, q.ID)

	var storeErr *util.StoreError
	require.True(t, errors.As(err, &storeErr), "got %v", err)
	assert.ErrorIs(t, err, errInjected)

	questions, answers, likes := store.RowCounts(q.ID)
	assert.Equal(t, []int{1, 3, 2}, []int{questions, answers, likes})

	detail, err := env.questions.Get(ctx, q.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), detail.AnswersCount)
	assert.Equal(t, int64(2), detail.LikesCount)
}

func TestQuestionLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	const (
		author uint = 1
		userA  uint = 2
		userB  uint = 3
	)

	q := env.createQuestion(t, author, "How to extend registration?")
	assert.False(t, q.IsAnswered)
	assert.Zero(t, q.LikesCount)

	liked, err := env.likes.Like(ctx, userA, q.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), liked.LikesCount)

	env.answer(t, userB, q.ID, "Visit the international office.")
	detail, err := env.questions.Get(ctx, q.ID, 0)
	require.NoError(t, err)
	assert.True(t, detail.IsAnswered)
	assert.Equal(t, int64(1), detail.AnswersCount)

	unliked, err := env.likes.Unlike(ctx, userA, q.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), unliked.LikesCount)

	err = env.questions.Delete(ctx, userB, model.Student, q.ID)
	assert.ErrorIs(t, err, util.ErrPermissionDenied)

	require.NoError(t, env.questions.Delete(ctx, author, model.Student, q.ID))

	page, err := env.questions.List(ctx, ListParams{Sort: "new"})
	require.NoError(t, err)
	assert.Empty(t, page.Questions)
	_, answers, _ := env.repo.RowCounts(q.ID)
	assert.Zero(t, answers)
}
