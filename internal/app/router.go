package app

import (
	"student_services_backend/docs"
	"student_services_backend/internal/config"
	"student_services_backend/internal/middleware"
	"student_services_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
	}

	// 2. 问答模块
	a.registerQuestionRoutes(router, c, cfg)
}

func (a *App) registerQuestionRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	questions := router.Group("/api/questions")
	{
		// 读接口：可选认证，登录用户返回 isLiked
		questions.GET("", middleware.TryAuthMiddleware(cfg), c.qa.ListQuestions)
		questions.GET("/:id", middleware.TryAuthMiddleware(cfg), c.qa.GetQuestion)

		// 写接口：强制认证
		authorized := questions.Group("")
		authorized.Use(middleware.AuthMiddleware(cfg))
		{
			authorized.POST("", c.qa.CreateQuestion)
			authorized.DELETE("/:id", c.qa.DeleteQuestion)

			// 回答和点赞按用户限流
			limited := authorized.Group("")
			limited.Use(middleware.UserRateLimit(a.limiters.mutation))
			{
				limited.POST("/:id/answers", c.qa.CreateAnswer)
				limited.POST("/:id/like", c.qa.LikeQuestion)
				limited.DELETE("/:id/like", c.qa.UnlikeQuestion)
			}
		}
	}
}
