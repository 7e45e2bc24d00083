package api

import (
	"net/http"
	"strings"

	"learnhub/internal/session"

	"github.com/gin-gonic/gin"
)

const claimsKey = "claims"

// bearerToken 从 Authorization 头读取令牌
func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
}

// authRequired 要求有效的 Bearer 令牌
func (h *Handler) authRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Not authorized, no token"})
			return
		}
		claims, err := session.VerifyToken(h.cfg.Auth.JWTSecret, token)
		if err != nil {
			h.logger.Debug("JWT解析错误: %v", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Not authorized, token failed"})
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// authOptional 携带有效令牌时识别用户，否则按匿名访问处理
func (h *Handler) authOptional() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := bearerToken(c); token != "" {
			if claims, err := session.VerifyToken(h.cfg.Auth.JWTSecret, token); err == nil {
				c.Set(claimsKey, claims)
			} else {
				h.logger.Debug("ignore invalid token on optional route: %v", err)
			}
		}
		c.Next()
	}
}

// currentUser 返回当前请求的用户ID
func currentUser(c *gin.Context) (string, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return "", false
	}
	claims, ok := v.(*session.Claims)
	if !ok || claims.Subject == "" {
		return "", false
	}
	return claims.Subject, true
}

// currentClaims 返回当前请求的令牌声明
func currentClaims(c *gin.Context) (*session.Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*session.Claims)
	return claims, ok && claims.Subject != ""
}

// adminRequired 要求管理员角色，需在 authRequired 之后使用
func (h *Handler) adminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := currentClaims(c)
		if !ok || claims.Role != "admin" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
			return
		}
		c.Next()
	}
}
