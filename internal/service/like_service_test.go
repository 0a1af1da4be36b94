package service

import (
	"context"
	"errors"
	"student_services_backend/internal/util"
	"student_services_backend/pkg/events"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLikeConcurrentSameUser(t *testing.T) {
	env := newTestEnv(t)
	q := env.createQuestion(t, 1, "How to extend registration?")

	const attempts = 50
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.likes.Like(context.Background(), 7, q.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, util.ErrAlreadyLiked):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, attempts-1, conflicts)

	_, _, likes := env.repo.RowCounts(q.ID)
	assert.Equal(t, 1, likes)
}

func TestLikeConcurrentDifferentUsers(t *testing.T) {
	env := newTestEnv(t)
	q := env.createQuestion(t, 1, "Where is the library?")

	const users = 25
	var wg sync.WaitGroup
	errs := make(chan error, users)
	for uid := uint(1); uid <= users; uid++ {
		wg.Add(1)
		go func(uid uint) {
			defer wg.Done()
			if _, err := env.likes.Like(context.Background(), uid, q.ID); err != nil {
				errs <- err
			}
		}(uid)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("like failed: %v", err)
	}

	detail, err := env.questions.Get(context.Background(), q.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(users), detail.LikesCount)
	assert.Len(t, detail.LikedByUserIDs, users)
}

func TestLikeCountMatchesRows(t *testing.T) {
	env := newTestEnv(t)
	q := env.createQuestion(t, 1, "Dormitory check-in times")
	ctx := context.Background()

	steps := []struct {
		like bool
		user uint
	}{
		{true, 1}, {true, 2}, {true, 3}, {false, 2}, {true, 2}, {false, 1}, {false, 3}, {true, 4},
	}
	for _, step := range steps {
		var (
			res *LikeResult
			err error
		)
		if step.like {
			res, err = env.likes.Like(ctx, step.user, q.ID)
		} else {
			res, err = env.likes.Unlike(ctx, step.user, q.ID)
		}
		require.NoError(t, err)
		assert.Equal(t, step.like, res.IsLiked)

		_, _, rows := env.repo.RowCounts(q.ID)
		assert.Equal(t, int64(rows), res.LikesCount)
	}
}

func TestUnlikeTwice(t *testing.T) {
	env := newTestEnv(t)
	q := env.createQuestion(t, 1, "Visa paperwork deadline")
	ctx := context.Background()

	_, err := env.likes.Like(ctx, 5, q.ID)
	require.NoError(t, err)

	res, err := env.likes.Unlike(ctx, 5, q.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.LikesCount)
	assert.False(t, res.IsLiked)

	_, err = env.likes.Unlike(ctx, 5, q.ID)
	assert.ErrorIs(t, err, util.ErrLikeNotFound)
}

func TestLikeMissingQuestion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.likes.Like(ctx, 1, "missing")
	assert.ErrorIs(t, err, util.ErrQuestionNotFound)

	_, err = env.likes.Unlike(ctx, 1, "missing")
	assert.ErrorIs(t, err, util.ErrQuestionNotFound)
}

func TestLikePublishesAfterCommit(t *testing.T) {
	env := newTestEnv(t)
	q := env.createQuestion(t, 1, "Sports center membership")
	ctx := context.Background()

	_, err := env.likes.Like(ctx, 2, q.ID)
	require.NoError(t, err)
	_, err = env.likes.Like(ctx, 2, q.ID)
	require.ErrorIs(t, err, util.ErrAlreadyLiked)
	_, err = env.likes.Unlike(ctx, 2, q.ID)
	require.NoError(t, err)

	var names []string
	for _, e := range env.publisher.Events() {
		names = append(names, e.Event)
	}
	assert.Equal(t, []string{events.QuestionCreated, events.QuestionLiked, events.QuestionUnliked}, names)

	liked := env.publisher.Events()[1].Payload.(events.LikeEvent)
	assert.Equal(t, int64(1), liked.LikesCount)
	assert.Equal(t, uint(2), liked.UserID)
}

func TestLikeCancelledContextLeavesNoRow(t *testing.T) {
	env := newTestEnv(t)
	q := env.createQuestion(t, 1, "Cafeteria opening hours")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := env.likes.Like(ctx, 3, q.ID)
	require.Error(t, err)

	var storeErr *util.StoreError
	assert.True(t, errors.As(err, &storeErr))

	_, _, likes := env.repo.RowCounts(q.ID)
	assert.Equal(t, 0, likes)
}
