package controller

import (
	"errors"
	"student_services_backend/internal/service"
	"student_services_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type QAController struct {
	QuestionService *service.QuestionService
	AnswerService   *service.AnswerService
	LikeService     *service.LikeService
}

func NewQAController(
	questionService *service.QuestionService,
	answerService *service.AnswerService,
	likeService *service.LikeService,
) *QAController {
	return &QAController{
		QuestionService: questionService,
		AnswerService:   answerService,
		LikeService:     likeService,
	}
}

// respondError 把服务层错误映射为 HTTP 状态码
func respondError(ctx *gin.Context, err error) {
	var ve *util.ValidationError
	switch {
	case errors.As(err, &ve):
		util.ValidationFailed(ctx, ve)
	case errors.Is(err, util.ErrQuestionNotFound):
		util.NotFound(ctx, "question not found")
	case errors.Is(err, util.ErrLikeNotFound):
		util.NotFound(ctx, "no like found")
	case errors.Is(err, util.ErrAlreadyLiked):
		util.BadRequest(ctx, "already liked")
	case errors.Is(err, util.ErrPermissionDenied):
		util.Forbidden(ctx)
	default:
		util.LogInternalError(ctx, err)
	}
}

// @Summary 获取问题列表
// @Description 分页获取问题，附带回答数、点赞数和相对时间
// @Tags 问答
// @Produce json
// @Security BearerAuth
// @Param sort query string false "排序方式" Enums(popular, new) default(popular)
// @Param search query string false "标题或描述关键字"
// @Param page query int false "页码" default(1)
// @Param limit query int false "每页数量" default(20)
// @Success 200 {object} util.Response{data=[]service.QuestionView,meta=util.PageMeta}
// @Failure 400 {object} util.Response
// @Failure 500 {object} util.Response
// @Router /questions [get]
func (c *QAController) ListQuestions(ctx *gin.Context) {
	page := util.QueryInt(ctx.Query("page"), 1)
	limit := util.QueryInt(ctx.Query("limit"), 0)

	result, err := c.QuestionService.List(ctx.Request.Context(), service.ListParams{
		Sort:     ctx.Query("sort"),
		Search:   ctx.Query("search"),
		Page:     page,
		Limit:    limit,
		ViewerID: util.ViewerID(ctx),
	})
	if err != nil {
		respondError(ctx, err)
		return
	}

	util.SuccessWithMeta(ctx, result.Questions, &util.PageMeta{
		Page:    result.Page,
		Limit:   result.Limit,
		Total:   result.Total,
		HasMore: result.HasMore,
	})
}

// @Summary 获取问题详情
// @Description 返回问题、全部回答（按时间正序）以及点赞用户 ID
// @Tags 问答
// @Produce json
// @Security BearerAuth
// @Param id path string true "问题ID"
// @Success 200 {object} util.Response{data=service.QuestionDetail}
// @Failure 404 {object} util.Response
// @Router /questions/{id} [get]
func (c *QAController) GetQuestion(ctx *gin.Context) {
	detail, err := c.QuestionService.Get(ctx.Request.Context(), ctx.Param("id"), util.ViewerID(ctx))
	if err != nil {
		respondError(ctx, err)
		return
	}

	util.Success(ctx, detail)
}

// @Summary 创建问题
// @Tags 问答
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param question body service.CreateQuestionRequest true "问题内容"
// @Success 201 {object} util.Response{data=service.QuestionView}
// @Failure 400 {object} util.Response
// @Failure 401 {object} util.Response
// @Router /questions [post]
func (c *QAController) CreateQuestion(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req service.CreateQuestionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, "invalid request body")
		return
	}

	question, err := c.QuestionService.Create(ctx.Request.Context(), user.UserID, req)
	if err != nil {
		respondError(ctx, err)
		return
	}

	util.Created(ctx, question)
}

// @Summary 删除问题
// @Description 作者或管理员可删除，回答和点赞一并删除
// @Tags 问答
// @Produce json
// @Security BearerAuth
// @Param id path string true "问题ID"
// @Success 200 {object} util.Response
// @Failure 403 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /questions/{id} [delete]
func (c *QAController) DeleteQuestion(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	id := ctx.Param("id")
	if err := c.QuestionService.Delete(ctx.Request.Context(), user.UserID, user.Role, id); err != nil {
		respondError(ctx, err)
		return
	}

	util.Success(ctx, gin.H{"id": id})
}

// @Summary 回答问题
// @Tags 问答
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "问题ID"
// @Param answer body service.CreateAnswerRequest true "回答内容"
// @Success 201 {object} util.Response{data=service.AnswerView}
// @Failure 400 {object} util.Response
// @Failure 404 {object} util.Response
// @Failure 429 {object} util.Response
// @Router /questions/{id}/answers [post]
func (c *QAController) CreateAnswer(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req service.CreateAnswerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, "invalid request body")
		return
	}

	answer, err := c.AnswerService.Create(ctx.Request.Context(), user.UserID, ctx.Param("id"), req)
	if err != nil {
		respondError(ctx, err)
		return
	}

	util.Created(ctx, answer)
}

// @Summary 点赞问题
// @Tags 问答
// @Produce json
// @Security BearerAuth
// @Param id path string true "问题ID"
// @Success 200 {object} util.Response{data=service.LikeResult}
// @Failure 400 {object} util.Response "already liked"
// @Failure 404 {object} util.Response
// @Failure 429 {object} util.Response
// @Router /questions/{id}/like [post]
func (c *QAController) LikeQuestion(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	result, err := c.LikeService.Like(ctx.Request.Context(), user.UserID, ctx.Param("id"))
	if err != nil {
		respondError(ctx, err)
		return
	}

	util.Success(ctx, result)
}

// @Summary 取消点赞
// @Tags 问答
// @Produce json
// @Security BearerAuth
// @Param id path string true "问题ID"
// @Success 200 {object} util.Response{data=service.LikeResult}
// @Failure 404 {object} util.Response "no like found"
// @Failure 429 {object} util.Response
// @Router /questions/{id}/like [delete]
func (c *QAController) UnlikeQuestion(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	result, err := c.LikeService.Unlike(ctx.Request.Context(), user.UserID, ctx.Param("id"))
	if err != nil {
		respondError(ctx, err)
		return
	}

	util.Success(ctx, result)
}
