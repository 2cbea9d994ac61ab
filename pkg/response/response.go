package response

import (
	"go-storefront/pkg/apperr"

	"github.com/gin-gonic/gin"
)

// ErrorBody 错误详情
type ErrorBody struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Details    any    `json:"details"`
}

// ErrorResponse 失败时的统一结构，成功响应不包装
type ErrorResponse struct {
	Success bool      `json:"success"`
	Error   ErrorBody `json:"error"`
}

// Page 分页列表
type Page[T any] struct {
	Count    int64 `json:"count"`
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
	Results  []T   `json:"results"`
}

func NewPage[T any](results []T, count int64, page, pageSize int) Page[T] {
	if results == nil {
		results = []T{}
	}
	return Page[T]{Count: count, Page: page, PageSize: pageSize, Results: results}
}

// Success 直接返回资源本身
func Success(ctx *gin.Context, status int, body any) {
	if body == nil {
		ctx.Status(status)
		return
	}
	ctx.JSON(status, body)
}

// Error 翻译错误并输出统一错误结构
// 原始错误挂到 ctx.Errors，由日志中间件记录
func Error(ctx *gin.Context, err error) {
	appErr := apperr.From(err)
	_ = ctx.Error(err)

	details := appErr.Details
	if details == nil {
		details = gin.H{}
	}
	ctx.AbortWithStatusJSON(appErr.Status, ErrorResponse{
		Success: false,
		Error: ErrorBody{
			StatusCode: appErr.Status,
			Message:    appErr.Message,
			Details:    details,
		},
	})
}

// NotFoundRoute 未匹配路由也使用错误结构
func NotFoundRoute(ctx *gin.Context) {
	Error(ctx, apperr.NotFound())
}
