// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides bearer-token authentication and role checks. Failures
// are recorded as errors for ErrorHandler; verification errors from the jwt
// library are passed through untouched and classified by the token
// translator ("Token expirado" / "Token inválido").
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-clinic-api/internal/apperr"
	"github.com/tbourn/go-clinic-api/internal/auth"
)

const (
	// userIDKey holds the authenticated user's id (also read by KeyByUserOrIP).
	userIDKey = "userID"
	// claimsKey holds the verified *auth.Claims.
	claimsKey = "claims"
)

// TokenVerifier verifies a raw bearer token. *auth.Tokens satisfies it.
type TokenVerifier interface {
	Verify(raw string) (*auth.Claims, error)
}

// Authenticate requires "Authorization: Bearer <jwt>" and stores the claims
// on the context.
func Authenticate(v TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c.GetHeader("Authorization"))
		if raw == "" {
			Fail(c, apperr.Unauthorized("Token de acceso requerido"))
			return
		}
		claims, err := v.Verify(raw)
		if err != nil {
			Fail(c, err)
			return
		}
		c.Set(userIDKey, claims.UserID)
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// OptionalAuthenticate behaves like Authenticate when an Authorization
// header is present and lets anonymous requests through otherwise. A
// malformed or invalid token is still rejected.
func OptionalAuthenticate(v TokenVerifier) gin.HandlerFunc {
	required := Authenticate(v)
	return func(c *gin.Context) {
		if strings.TrimSpace(c.GetHeader("Authorization")) == "" {
			c.Next()
			return
		}
		required(c)
	}
}

// RequireRole allows the request only when the authenticated role is one of
// roles. It must run after Authenticate.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := ClaimsFrom(c)
		if claims == nil {
			Fail(c, apperr.Unauthorized(""))
			return
		}
		for _, r := range roles {
			if strings.EqualFold(claims.Role, r) {
				c.Next()
				return
			}
		}
		Fail(c, apperr.Forbidden("No tiene permisos para realizar esta acción"))
	}
}

// ClaimsFrom returns the claims stored by Authenticate, or nil.
func ClaimsFrom(c *gin.Context) *auth.Claims {
	if v, ok := c.Get(claimsKey); ok {
		if cl, ok := v.(*auth.Claims); ok {
			return cl
		}
	}
	return nil
}

func bearerToken(h string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(h), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
