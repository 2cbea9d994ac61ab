package middleware

import (
	"context"
	"strings"

	"go-storefront/pkg/apperr"
	"go-storefront/pkg/authz"
	"go-storefront/pkg/response"

	"github.com/gin-gonic/gin"
)

const (
	actorKey      = "actor"
	SessionHeader = "X-Session-ID"
)

// ActorResolver 把 access token 解析成调用方
type ActorResolver interface {
	Actor(ctx context.Context, accessToken, sessionID string) (authz.Actor, error)
}

// Auth 解析调用方并存入 Context，没有 token 时为匿名调用方
func Auth(resolver ActorResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 1. 获取 Header 里的 Authorization
		var token string
		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			// 2. 格式必须是 "Bearer <token>"
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
				response.Error(c, apperr.Unauthorized("Authorization header format must be Bearer {token}."))
				return
			}
			token = parts[1]
		}

		// 3. 解析 Token
		actor, err := resolver.Actor(c.Request.Context(), token, c.GetHeader(SessionHeader))
		if err != nil {
			response.Error(c, err)
			return
		}

		// 4. 存入 Context，供后续 Handler 使用
		c.Set(actorKey, actor)
		c.Next()
	}
}

// RequireAuth 匿名调用方直接返回 401
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if CurrentActor(c).IsAnonymous() {
			response.Error(c, apperr.Unauthorized(authz.ReasonLoginRequired))
			return
		}
		c.Next()
	}
}

// CurrentActor 未经过 Auth 时返回匿名调用方
func CurrentActor(c *gin.Context) authz.Actor {
	if v, ok := c.Get(actorKey); ok {
		if actor, ok := v.(authz.Actor); ok {
			return actor
		}
	}
	return authz.Anonymous(c.GetHeader(SessionHeader))
}
