package qaclient

import (
	"context"
	"errors"
	"sync"
)

// API is the part of Client a QuestionFeed needs.
type API interface {
	ListQuestions(ctx context.Context, opts ListOptions) (*Page, error)
	GetQuestion(ctx context.Context, id string) (*QuestionDetail, error)
	CreateQuestion(ctx context.Context, title, description string) (*QuestionItem, error)
	AddAnswer(ctx context.Context, questionID, content string) (*Answer, error)
	Like(ctx context.Context, questionID string) (*LikeResult, error)
	Unlike(ctx context.Context, questionID string) (*LikeResult, error)
	DeleteQuestion(ctx context.Context, id string) error
}

// FeedState is what a UI renders. It is always subordinate to the server:
// counts come from server responses, never from local arithmetic on likes.
type FeedState struct {
	Questions     []QuestionItem
	Page          int
	HasMore       bool
	TotalCount    int64
	IsLoading     bool
	IsLoadingMore bool
	Error         string
}

// QuestionFeed keeps one ordered page list for the current sort and search.
type QuestionFeed struct {
	api   API
	limit int

	mu    sync.Mutex
	state FeedState
}

func NewQuestionFeed(api API, limit int) *QuestionFeed {
	return &QuestionFeed{api: api, limit: limit}
}

// State returns a copy of the current state.
func (f *QuestionFeed) State() FeedState {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.state
	s.Questions = append([]QuestionItem(nil), f.state.Questions...)
	return s
}

// FetchQuestions replaces the list for page 1 and appends for later pages.
func (f *QuestionFeed) FetchQuestions(ctx context.Context, sort, search string, page int) error {
	if page < 1 {
		page = 1
	}

	f.mu.Lock()
	if page == 1 {
		f.state.IsLoading = true
	} else {
		f.state.IsLoadingMore = true
	}
	f.state.Error = ""
	f.mu.Unlock()

	res, err := f.api.ListQuestions(ctx, ListOptions{Sort: sort, Search: search, Page: page, Limit: f.limit})

	f.mu.Lock()
	defer f.mu.Unlock()
	if page == 1 {
		f.state.IsLoading = false
	} else {
		f.state.IsLoadingMore = false
	}
	if err != nil {
		f.state.Error = err.Error()
		return err
	}

	if page == 1 {
		f.state.Questions = append(make([]QuestionItem, 0, len(res.Questions)), res.Questions...)
	} else {
		// 翻页期间有新问题插入时，后一页可能与已有数据重叠
		seen := make(map[string]bool, len(f.state.Questions))
		for _, q := range f.state.Questions {
			seen[q.ID] = true
		}
		for _, q := range res.Questions {
			if !seen[q.ID] {
				f.state.Questions = append(f.state.Questions, q)
			}
		}
	}
	f.state.Page = page
	f.state.HasMore = res.HasMore
	f.state.TotalCount = res.Total
	return nil
}

// LoadMore fetches the page after the current one. It is a no-op while a
// fetch is running or when the server reported no more pages.
func (f *QuestionFeed) LoadMore(ctx context.Context, sort, search string) error {
	f.mu.Lock()
	next := f.state.Page + 1
	idle := !f.state.IsLoading && !f.state.IsLoadingMore
	more := f.state.Page == 0 || f.state.HasMore
	f.mu.Unlock()

	if !idle || !more {
		return nil
	}
	return f.FetchQuestions(ctx, sort, search, next)
}

func (f *QuestionFeed) CreateQuestion(ctx context.Context, title, description string) Result[QuestionItem] {
	f.clearError()

	q, err := f.api.CreateQuestion(ctx, title, description)
	if err != nil {
		f.fail(err)
		return Result[QuestionItem]{Err: err}
	}

	f.mu.Lock()
	f.state.Questions = append([]QuestionItem{*q}, f.state.Questions...)
	f.state.TotalCount++
	f.mu.Unlock()
	return Result[QuestionItem]{Value: *q}
}

// AddAnswer bumps the answer count and the answered flag before the call
// and restores the row if the server rejects the answer.
func (f *QuestionFeed) AddAnswer(ctx context.Context, questionID, content string) Result[Answer] {
	snap := f.apply(questionID, func(q *QuestionItem) {
		q.AnswersCount++
		q.IsAnswered = true
	})

	a, err := f.api.AddAnswer(ctx, questionID, content)
	if err != nil {
		f.rollback(snap, err)
		return Result[Answer]{Err: err}
	}
	return Result[Answer]{Value: *a}
}

func (f *QuestionFeed) LikeQuestion(ctx context.Context, questionID string) Result[LikeResult] {
	return f.toggleLike(ctx, questionID, true)
}

func (f *QuestionFeed) UnlikeQuestion(ctx context.Context, questionID string) Result[LikeResult] {
	return f.toggleLike(ctx, questionID, false)
}

func (f *QuestionFeed) toggleLike(ctx context.Context, questionID string, like bool) Result[LikeResult] {
	snap := f.apply(questionID, func(q *QuestionItem) {
		q.IsLiked = like
	})

	var (
		res     *LikeResult
		err     error
		settled error
	)
	if like {
		res, err = f.api.Like(ctx, questionID)
		settled = ErrAlreadyLiked
	} else {
		res, err = f.api.Unlike(ctx, questionID)
		settled = ErrNoLike
	}

	switch {
	case err == nil:
		f.reconcile(questionID, func(q *QuestionItem) {
			q.LikesCount = res.LikesCount
			q.IsLiked = res.IsLiked
		})
		return resultOf(*res, nil)
	case errors.Is(err, settled):
		// 服务端已处于目标状态，不提示错误；计数以服务端为准
		return f.refreshLike(ctx, questionID, err)
	default:
		f.rollback(snap, err)
		return Result[LikeResult]{Err: err}
	}
}

// refreshLike re-reads the row after a like conflict so the count is the
// server's. If the read fails the optimistic flag stays and the count is
// left for the next fetch.
func (f *QuestionFeed) refreshLike(ctx context.Context, questionID string, conflict error) Result[LikeResult] {
	detail, err := f.api.GetQuestion(ctx, questionID)
	if err != nil {
		return Result[LikeResult]{Err: conflict}
	}

	res := LikeResult{LikesCount: detail.LikesCount, IsLiked: detail.IsLiked}
	f.reconcile(questionID, func(q *QuestionItem) {
		q.LikesCount = res.LikesCount
		q.IsLiked = res.IsLiked
	})
	return Result[LikeResult]{Value: res, Err: conflict}
}

// DeleteQuestion removes the row first and puts it back in place if the
// server refuses.
func (f *QuestionFeed) DeleteQuestion(ctx context.Context, questionID string) Result[string] {
	snap := f.remove(questionID)

	if err := f.api.DeleteQuestion(ctx, questionID); err != nil {
		f.rollback(snap, err)
		return Result[string]{Err: err}
	}
	return Result[string]{Value: questionID}
}

// rowSnapshot 乐观更新前的行，用于回滚
type rowSnapshot struct {
	index   int
	item    QuestionItem
	found   bool
	removed bool
}

func (f *QuestionFeed) indexOf(id string) int {
	for i, q := range f.state.Questions {
		if q.ID == id {
			return i
		}
	}
	return -1
}

func (f *QuestionFeed) apply(id string, change func(*QuestionItem)) rowSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.state.Error = ""
	idx := f.indexOf(id)
	if idx < 0 {
		return rowSnapshot{}
	}
	snap := rowSnapshot{index: idx, item: f.state.Questions[idx], found: true}
	change(&f.state.Questions[idx])
	return snap
}

func (f *QuestionFeed) remove(id string) rowSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.state.Error = ""
	idx := f.indexOf(id)
	if idx < 0 {
		return rowSnapshot{}
	}
	snap := rowSnapshot{index: idx, item: f.state.Questions[idx], found: true, removed: true}
	f.state.Questions = append(f.state.Questions[:idx:idx], f.state.Questions[idx+1:]...)
	f.state.TotalCount--
	return snap
}

func (f *QuestionFeed) reconcile(id string, change func(*QuestionItem)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if idx := f.indexOf(id); idx >= 0 {
		change(&f.state.Questions[idx])
	}
}

func (f *QuestionFeed) rollback(snap rowSnapshot, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.state.Error = err.Error()
	if !snap.found {
		return
	}
	if idx := f.indexOf(snap.item.ID); idx >= 0 {
		f.state.Questions[idx] = snap.item
		return
	}
	if !snap.removed {
		return
	}

	idx := snap.index
	if idx > len(f.state.Questions) {
		idx = len(f.state.Questions)
	}
	f.state.Questions = append(f.state.Questions[:idx:idx], append([]QuestionItem{snap.item}, f.state.Questions[idx:]...)...)
	f.state.TotalCount++
}

func (f *QuestionFeed) clearError() {
	f.mu.Lock()
	f.state.Error = ""
	f.mu.Unlock()
}

func (f *QuestionFeed) fail(err error) {
	f.mu.Lock()
	f.state.Error = err.Error()
	f.mu.Unlock()
}
