package monitoring

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	QuestionsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "qa_questions_created_total",
			Help: "Questions created",
		},
	)

	QuestionsDeleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "qa_questions_deleted_total",
			Help: "Questions deleted together with their answers and likes",
		},
	)

	AnswersCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "qa_answers_created_total",
			Help: "Answers created",
		},
	)

	LikeOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qa_like_operations_total",
			Help: "Like and unlike attempts by outcome",
		},
		[]string{"op", "result"},
	)

	ListCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qa_list_cache_lookups_total",
			Help: "Question list cache lookups",
		},
		[]string{"result"},
	)
)

var initOnce sync.Once

func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			RequestCounter,
			RequestDuration,
			QuestionsCreated,
			QuestionsDeleted,
			AnswersCreated,
			LikeOperations,
			ListCacheLookups,
		)
	})
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
