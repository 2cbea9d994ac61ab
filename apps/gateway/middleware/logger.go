package middleware

import (
	"crypto/subtle"
	"strconv"
	"time"

	"go-storefront/pkg/apperr"
	"go-storefront/pkg/logger"
	"go-storefront/pkg/metrics"
	"go-storefront/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AccessLog 记录每个请求并上报 HTTP 指标
// 5xx 响应同时记录挂在 ctx.Errors 上的原始错误
func AccessLog(log *zap.Logger, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)
		m.HTTPRequest(c.Request.Method, route, strconv.Itoa(status), elapsed)

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("latency", elapsed),
			zap.String("client_ip", c.ClientIP()),
		}
		reqLog := logger.WithTrace(c.Request.Context(), log)
		switch {
		case status >= 500:
			if len(c.Errors) > 0 {
				fields = append(fields, zap.String("error", c.Errors.String()))
			}
			reqLog.Error("request failed", fields...)
		case status >= 400:
			reqLog.Info("request rejected", fields...)
		default:
			reqLog.Info("request", fields...)
		}
	}
}

// Recovery panic 时返回 500 错误结构
func Recovery(log *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		log.Error("panic recovered",
			zap.Any("panic", recovered),
			zap.String("path", c.Request.URL.Path),
			zap.Stack("stack"))
		response.Error(c, apperr.Internal(nil))
	})
}

// WebhookHeader 支付回调携带的共享密钥
const WebhookHeader = "X-Webhook-Secret"

// WebhookSecret 校验支付回调的共享密钥，未配置密钥时拒绝所有回调
func WebhookSecret(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader(WebhookHeader)
		if secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			response.Error(c, apperr.Forbidden("Invalid webhook signature."))
			return
		}
		c.Next()
	}
}
