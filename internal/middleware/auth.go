package middleware

import (
	"strconv"
	"strings"
	"student_services_backend/internal/config"
	"student_services_backend/internal/util"
	"student_services_backend/pkg/logger"
	"student_services_backend/pkg/security"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// extractToken 只接受 Authorization 头，查询参数中的令牌会进入访问日志
func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
}

// AuthMiddleware 强制认证，令牌由外部身份服务签发
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractToken(c)
		if tokenString == "" {
			util.Unauthorized(c)
			c.Abort()
			return
		}

		claims, err := util.ParseJWT(tokenString, cfg.JWT.Secret)
		if err != nil {
			logger.Log.Debug("JWT parse failed", zap.Error(err))
			util.Unauthorized(c)
			c.Abort()
			return
		}

		c.Set(util.ContextUserKey, claims)
		c.Next()
	}
}

// TryAuthMiddleware 可选认证：令牌有效时设置用户，否则按游客处理
func TryAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokenString := extractToken(c); tokenString != "" {
			if claims, err := util.ParseJWT(tokenString, cfg.JWT.Secret); err == nil {
				c.Set(util.ContextUserKey, claims)
			}
		}
		c.Next()
	}
}

// UserRateLimit 按用户限制写操作频率，必须放在 AuthMiddleware 之后
func UserRateLimit(limiter *security.KeyedLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := util.GetUserFromContext(c)
		if user == nil {
			util.Unauthorized(c)
			c.Abort()
			return
		}

		if !limiter.Allow("user:" + strconv.FormatUint(uint64(user.UserID), 10)) {
			logger.Log.Warn("Mutation rate limit exceeded", zap.Uint("user_id", user.UserID))
			util.TooManyRequests(c)
			c.Abort()
			return
		}
		c.Next()
	}
}
