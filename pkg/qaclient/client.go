// Package qaclient is a typed client for the questions API together with
// QuestionFeed, the list state a UI keeps between calls.
package qaclient

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"student_services_backend/pkg/cache"
	"student_services_backend/pkg/logger"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
)

const questionsPath = "/api/questions"

var (
	ErrNotFound     = errors.New("not found")
	ErrNoLike       = errors.New("no like found")
	ErrAlreadyLiked = errors.New("already liked")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
	ErrValidation   = errors.New("validation failed")
)

type ErrorKind string

const (
	KindValidation   ErrorKind = "validation"
	KindNotFound     ErrorKind = "not_found"
	KindForbidden    ErrorKind = "forbidden"
	KindConflict     ErrorKind = "conflict"
	KindUnauthorized ErrorKind = "unauthorized"
	KindFailure      ErrorKind = "failure"
)

// APIError is a non-2xx response. Match it with errors.Is against the
// package sentinels, or read Kind directly.
type APIError struct {
	Status  int
	Message string
	Kind    ErrorKind
	Fields  []FieldError
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed with status %d", e.Status)
	}
	return e.Message
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrNoLike:
		return e.Kind == KindNotFound && e.Message == ErrNoLike.Error()
	case ErrAlreadyLiked:
		return e.Kind == KindConflict
	case ErrForbidden:
		return e.Kind == KindForbidden
	case ErrUnauthorized:
		return e.Kind == KindUnauthorized
	case ErrValidation:
		return e.Kind == KindValidation
	}
	return false
}

func classify(status int, message string) ErrorKind {
	switch status {
	case http.StatusBadRequest:
		// 重复点赞是预期的冲突，不是输入错误
		if message == ErrAlreadyLiked.Error() {
			return KindConflict
		}
		return KindValidation
	case http.StatusUnauthorized:
		return KindUnauthorized
	case http.StatusForbidden:
		return KindForbidden
	case http.StatusNotFound:
		return KindNotFound
	}
	return KindFailure
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Errors  []FieldError    `json:"errors"`
	Meta    *struct {
		Page    int   `json:"page"`
		Limit   int   `json:"limit"`
		Total   int64 `json:"total"`
		HasMore bool  `json:"hasMore"`
	} `json:"meta"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
	identity   string
	cache      cache.Cache
	cacheTTL   time.Duration
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithToken sets the bearer token issued by the identity service.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithCache caches GET responses by request signature and caller identity
// for ttl, so one cache can back clients holding different tokens. Accepted
// mutations, and likes rejected because the server state moved on, drop
// every cached questions response.
func WithCache(responses cache.Cache, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = responses
		c.cacheTTL = ttl
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.identity = tokenIdentity(c.token)
	return c
}

// tokenIdentity 令牌摘要，避免缓存键里出现原始令牌
func tokenIdentity(token string) string {
	if token == "" {
		return "anonymous"
	}
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:16])
}

func (c *Client) ListQuestions(ctx context.Context, opts ListOptions) (*Page, error) {
	query := map[string]string{}
	if opts.Sort != "" {
		query["sort"] = opts.Sort
	}
	if opts.Search != "" {
		query["search"] = opts.Search
	}
	if opts.Page > 0 {
		query["page"] = strconv.Itoa(opts.Page)
	}
	if opts.Limit > 0 {
		query["limit"] = strconv.Itoa(opts.Limit)
	}

	env, err := c.do(ctx, http.MethodGet, questionsPath, query, nil)
	if err != nil {
		return nil, err
	}

	page := &Page{}
	if err := decodeData(env, &page.Questions); err != nil {
		return nil, err
	}
	if env.Meta != nil {
		page.Page = env.Meta.Page
		page.Limit = env.Meta.Limit
		page.Total = env.Meta.Total
		page.HasMore = env.Meta.HasMore
	}
	return page, nil
}

func (c *Client) GetQuestion(ctx context.Context, id string) (*QuestionDetail, error) {
	env, err := c.do(ctx, http.MethodGet, questionsPath+"/"+url.PathEscape(id), nil, nil)
	if err != nil {
		return nil, err
	}
	var detail QuestionDetail
	if err := decodeData(env, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

func (c *Client) CreateQuestion(ctx context.Context, title, description string) (*QuestionItem, error) {
	body := map[string]string{"title": title, "description": description}
	env, err := c.mutate(ctx, http.MethodPost, questionsPath, body)
	if err != nil {
		return nil, err
	}
	var q QuestionItem
	if err := decodeData(env, &q); err != nil {
		return nil, err
	}
	return &q, nil
}

func (c *Client) DeleteQuestion(ctx context.Context, id string) error {
	_, err := c.mutate(ctx, http.MethodDelete, questionsPath+"/"+url.PathEscape(id), nil)
	return err
}

func (c *Client) AddAnswer(ctx context.Context, questionID, content string) (*Answer, error) {
	body := map[string]string{"content": content}
	env, err := c.mutate(ctx, http.MethodPost, questionsPath+"/"+url.PathEscape(questionID)+"/answers", body)
	if err != nil {
		return nil, err
	}
	var a Answer
	if err := decodeData(env, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (c *Client) Like(ctx context.Context, questionID string) (*LikeResult, error) {
	return c.like(ctx, http.MethodPost, questionID)
}

func (c *Client) Unlike(ctx context.Context, questionID string) (*LikeResult, error) {
	return c.like(ctx, http.MethodDelete, questionID)
}

func (c *Client) like(ctx context.Context, method, questionID string) (*LikeResult, error) {
	env, err := c.mutate(ctx, method, questionsPath+"/"+url.PathEscape(questionID)+"/like", nil)
	if err != nil {
		return nil, err
	}
	var res LikeResult
	if err := decodeData(env, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// mutate sends a write and drops cached reads once the server accepted it.
func (c *Client) mutate(ctx context.Context, method, path string, body interface{}) (*envelope, error) {
	env, err := c.do(ctx, method, path, nil, body)
	if err == nil || staleView(err) {
		c.invalidate(ctx)
	}
	if err != nil {
		return nil, err
	}
	return env, nil
}

// staleView 冲突和找不到说明本地缓存的视图已经过期
func staleView(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Kind == KindConflict || apiErr.Kind == KindNotFound
}

// invalidate 缓存失效失败只会导致读到旧数据，不影响写入结果，记录后继续
func (c *Client) invalidate(ctx context.Context) {
	if c.cache == nil {
		return
	}
	prefix := cache.Signature(http.MethodGet, questionsPath, nil)
	if err := c.cache.Invalidate(ctx, prefix); err != nil {
		logger.Log.Warn("Client cache invalidation failed", zap.String("prefix", prefix), zap.Error(err))
	}
}

func (c *Client) do(ctx context.Context, method, path string, query map[string]string, body interface{}) (*envelope, error) {
	key := ""
	if method == http.MethodGet && c.cache != nil {
		key = cache.Signature(method, path, query) + "#" + c.identity
		entry, ok, err := c.cache.Get(ctx, key)
		if err != nil {
			logger.Log.Warn("Client cache read failed", zap.String("key", key), zap.Error(err))
		}
		if err == nil && ok {
			var env envelope
			if err := json.Unmarshal(entry.Data, &env); err == nil {
				return &env, nil
			}
		}
	}

	target := c.baseURL + path
	if len(query) > 0 {
		values := url.Values{}
		for k, v := range query {
			values.Set(k, v)
		}
		target += "?" + values.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw)), Kind: classify(resp.StatusCode, "")}
	}
	if resp.StatusCode >= http.StatusBadRequest || !env.Success {
		return nil, &APIError{
			Status:  resp.StatusCode,
			Message: env.Message,
			Kind:    classify(resp.StatusCode, env.Message),
			Fields:  env.Errors,
		}
	}

	if key != "" {
		if err := c.cache.Set(ctx, key, raw, c.cacheTTL); err != nil {
			logger.Log.Warn("Client cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return &env, nil
}

func decodeData(env *envelope, out interface{}) error {
	if len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}
