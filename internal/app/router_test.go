package app

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"student_services_backend/internal/config"
	"student_services_backend/internal/model"
	"student_services_backend/internal/util"
	"student_services_backend/pkg/events"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "router-test-secret-with-enough-length"

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func testConfig() *config.Config {
	return &config.Config{
		Server:    config.ServerConfig{Port: "0", Mode: gin.TestMode},
		JWT:       config.JWTConfig{Secret: testSecret},
		Cache:     config.CacheConfig{ListTTLSeconds: 30},
		RateLimit: config.RateLimitConfig{MaxRequests: 100000, WindowMinutes: 1},
		QA:        config.QAConfig{DefaultPageSize: 20, MaxPageSize: 100},
	}
}

type envelope struct {
	Success bool                    `json:"success"`
	Data    json.RawMessage         `json:"data"`
	Message string                  `json:"message"`
	Errors  []*util.ValidationError `json:"errors"`
	Meta    *util.PageMeta          `json:"meta"`
}

type testServer struct {
	t      *testing.T
	router *gin.Engine
}

func newTestServer(t *testing.T, cfg *config.Config, deps Dependencies) *testServer {
	t.Helper()
	return &testServer{t: t, router: New(cfg, deps).Router}
}

func token(t *testing.T, userID uint, role model.UserRole) string {
	t.Helper()
	tok, err := util.GenerateJWT(userID, role, testSecret, time.Hour)
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(method, path, tok string, body interface{}) (int, envelope) {
	s.t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func decode(t *testing.T, raw json.RawMessage, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(raw, v))
}

type questionJSON struct {
	ID             string `json:"id"`
	IsAnswered     bool   `json:"isAnswered"`
	IsLiked        bool   `json:"isLiked"`
	AnswersCount   int64  `json:"answersCount"`
	LikesCount     int64  `json:"likesCount"`
	TimeLabel      string `json:"timeLabel"`
	LikedByUserIDs []uint `json:"likedByUserIds"`
}

type likeJSON struct {
	LikesCount int64 `json:"likesCount"`
	IsLiked    bool  `json:"isLiked"`
}

func TestQuestionScenario(t *testing.T) {
	srv := newTestServer(t, testConfig(), Dependencies{})
	author := token(t, 1, model.Student)
	userA := token(t, 2, model.Student)
	userB := token(t, 3, model.Student)

	code, res := srv.do(http.MethodPost, "/api/questions", author, map[string]string{
		"title": "How to extend registration?",
	})
	require.Equal(t, http.StatusCreated, code, res.Message)
	var q questionJSON
	decode(t, res.Data, &q)
	assert.False(t, q.IsAnswered)
	assert.Zero(t, q.LikesCount)
	assert.Equal(t, "just now", q.TimeLabel)

	code, res = srv.do(http.MethodPost, "/api/questions/"+q.ID+"/like", userA, nil)
	require.Equal(t, http.StatusOK, code)
	var like likeJSON
	decode(t, res.Data, &like)
	assert.Equal(t, likeJSON{LikesCount: 1, IsLiked: true}, like)

	code, _ = srv.do(http.MethodPost, "/api/questions/"+q.ID+"/answers", userB, map[string]string{
		"content": "Visit the international office.",
	})
	require.Equal(t, http.StatusCreated, code)

	code, res = srv.do(http.MethodGet, "/api/questions/"+q.ID, "", nil)
	require.Equal(t, http.StatusOK, code)
	var detail questionJSON
	decode(t, res.Data, &detail)
	assert.True(t, detail.IsAnswered)
	assert.Equal(t, int64(1), detail.AnswersCount)
	assert.Equal(t, []uint{2}, detail.LikedByUserIDs)

	code, res = srv.do(http.MethodDelete, "/api/questions/"+q.ID+"/like", userA, nil)
	require.Equal(t, http.StatusOK, code)
	decode(t, res.Data, &like)
	assert.Equal(t, likeJSON{LikesCount: 0, IsLiked: false}, like)

	code, _ = srv.do(http.MethodDelete, "/api/questions/"+q.ID, userB, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = srv.do(http.MethodDelete, "/api/questions/"+q.ID, author, nil)
	assert.Equal(t, http.StatusOK, code)

	code, res = srv.do(http.MethodGet, "/api/questions?sort=new", "", nil)
	require.Equal(t, http.StatusOK, code)
	var list []questionJSON
	decode(t, res.Data, &list)
	assert.Empty(t, list)
	assert.Equal(t, int64(0), res.Meta.Total)

	code, _ = srv.do(http.MethodGet, "/api/questions/"+q.ID, "", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestQuestionErrors(t *testing.T) {
	srv := newTestServer(t, testConfig(), Dependencies{})
	user := token(t, 1, model.Student)

	code, res := srv.do(http.MethodPost, "/api/questions", "", map[string]string{"title": "Valid title"})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.False(t, res.Success)

	code, _ = srv.do(http.MethodPost, "/api/questions", "not-a-token", map[string]string{"title": "Valid title"})
	assert.Equal(t, http.StatusUnauthorized, code)

	// 令牌只从 Authorization 头读取
	code, _ = srv.do(http.MethodPost, "/api/questions?token="+user, "", map[string]string{"title": "Valid title"})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, res = srv.do(http.MethodPost, "/api/questions", user, map[string]string{"title": " ab "})
	assert.Equal(t, http.StatusBadRequest, code)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "title", res.Errors[0].Field)
	assert.Equal(t, res.Errors[0].Message, res.Message)

	code, _ = srv.do(http.MethodGet, "/api/questions?sort=random", "", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = srv.do(http.MethodGet, "/api/questions/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = srv.do(http.MethodPost, "/api/questions/missing/answers", user, map[string]string{"content": "Some answer"})
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = srv.do(http.MethodPost, "/api/questions/missing/like", user, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestLikeConflicts(t *testing.T) {
	srv := newTestServer(t, testConfig(), Dependencies{})
	user := token(t, 5, model.Student)

	_, res := srv.do(http.MethodPost, "/api/questions", user, map[string]string{"title": "Library card renewal"})
	var q questionJSON
	decode(t, res.Data, &q)

	code, _ := srv.do(http.MethodPost, "/api/questions/"+q.ID+"/like", user, nil)
	require.Equal(t, http.StatusOK, code)

	code, res = srv.do(http.MethodPost, "/api/questions/"+q.ID+"/like", user, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "already liked", res.Message)

	code, _ = srv.do(http.MethodDelete, "/api/questions/"+q.ID+"/like", user, nil)
	require.Equal(t, http.StatusOK, code)

	code, res = srv.do(http.MethodDelete, "/api/questions/"+q.ID+"/like", user, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "no like found", res.Message)
}

func TestListPaginationMeta(t *testing.T) {
	srv := newTestServer(t, testConfig(), Dependencies{})
	user := token(t, 1, model.Student)
	for _, title := range []string{"First question", "Second question", "Third question"} {
		code, _ := srv.do(http.MethodPost, "/api/questions", user, map[string]string{"title": title})
		require.Equal(t, http.StatusCreated, code)
	}

	code, res := srv.do(http.MethodGet, "/api/questions?sort=new&page=1&limit=2", "", nil)
	require.Equal(t, http.StatusOK, code)
	require.NotNil(t, res.Meta)
	assert.Equal(t, util.PageMeta{Page: 1, Limit: 2, Total: 3, HasMore: true}, *res.Meta)

	code, res = srv.do(http.MethodGet, "/api/questions?sort=new&page=2&limit=2", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.False(t, res.Meta.HasMore)
	var list []questionJSON
	decode(t, res.Data, &list)
	assert.Len(t, list, 1)

	code, res = srv.do(http.MethodGet, "/api/questions?page=9223372036854775807&limit=20", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.False(t, res.Meta.HasMore)
	assert.Equal(t, int64(3), res.Meta.Total)
	decode(t, res.Data, &list)
	assert.Empty(t, list)
}

func TestOptionalAuthMarksLiked(t *testing.T) {
	srv := newTestServer(t, testConfig(), Dependencies{})
	user := token(t, 8, model.Student)

	_, res := srv.do(http.MethodPost, "/api/questions", user, map[string]string{"title": "Parking permits"})
	var q questionJSON
	decode(t, res.Data, &q)
	srv.do(http.MethodPost, "/api/questions/"+q.ID+"/like", user, nil)

	_, res = srv.do(http.MethodGet, "/api/questions/"+q.ID, user, nil)
	var detail questionJSON
	decode(t, res.Data, &detail)
	assert.True(t, detail.IsLiked)

	_, res = srv.do(http.MethodGet, "/api/questions", user, nil)
	var list []questionJSON
	decode(t, res.Data, &list)
	require.Len(t, list, 1)
	assert.True(t, list[0].IsLiked)

	code, res := srv.do(http.MethodGet, "/api/questions/"+q.ID+"?token="+user, "", nil)
	require.Equal(t, http.StatusOK, code)
	decode(t, res.Data, &detail)
	assert.False(t, detail.IsLiked)

	// 无效令牌按游客处理
	code, res = srv.do(http.MethodGet, "/api/questions/"+q.ID, "garbage", nil)
	require.Equal(t, http.StatusOK, code)
	decode(t, res.Data, &detail)
	assert.False(t, detail.IsLiked)
}

func TestAdminCanDelete(t *testing.T) {
	publisher := &events.RecordingPublisher{}
	srv := newTestServer(t, testConfig(), Dependencies{Publisher: publisher})
	author := token(t, 1, model.Student)
	admin := token(t, 100, model.Admin)

	_, res := srv.do(http.MethodPost, "/api/questions", author, map[string]string{"title": "Remove me please"})
	var q questionJSON
	decode(t, res.Data, &q)

	code, _ := srv.do(http.MethodDelete, "/api/questions/"+q.ID, admin, nil)
	assert.Equal(t, http.StatusOK, code)

	recorded := publisher.Events()
	require.Len(t, recorded, 2)
	deleted := recorded[1].Payload.(events.QuestionDeletedEvent)
	assert.Equal(t, q.ID, deleted.QuestionID)
	assert.Equal(t, uint(100), deleted.DeletedBy)
}

func TestMutationRateLimitReload(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.MutationsPerMinute = 2
	application := New(cfg, Dependencies{})
	srv := &testServer{t: t, router: application.Router}
	user := token(t, 1, model.Student)

	_, res := srv.do(http.MethodPost, "/api/questions", user, map[string]string{"title": "Rate limited question"})
	var q questionJSON
	decode(t, res.Data, &q)

	code, _ := srv.do(http.MethodPost, "/api/questions/"+q.ID+"/like", user, nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = srv.do(http.MethodDelete, "/api/questions/"+q.ID+"/like", user, nil)
	assert.Equal(t, http.StatusOK, code)
	code, res = srv.do(http.MethodPost, "/api/questions/"+q.ID+"/like", user, nil)
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.False(t, res.Success)

	// 其他用户不受影响
	other := token(t, 2, model.Student)
	code, _ = srv.do(http.MethodPost, "/api/questions/"+q.ID+"/like", other, nil)
	assert.Equal(t, http.StatusOK, code)

	reloaded := testConfig()
	reloaded.RateLimit.MutationsPerMinute = 0
	application.ApplyConfig(reloaded)

	code, _ = srv.do(http.MethodPost, "/api/questions/"+q.ID+"/like", user, nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestHealthCheck(t *testing.T) {
	srv := newTestServer(t, testConfig(), Dependencies{})

	code, res := srv.do(http.MethodGet, "/api/health", "", nil)
	require.Equal(t, http.StatusOK, code)
	var body struct {
		Status     string            `json:"status"`
		Components map[string]string `json:"components"`
	}
	decode(t, res.Data, &body)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "memory", body.Components["database"])
}
