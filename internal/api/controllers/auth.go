package controllers

import (
	"crypto/subtle"
	"net/http"

	"webstar/noturno-leadfinder-worker/internal/dto"
	"webstar/noturno-leadfinder-worker/internal/logging"

	"github.com/gin-gonic/gin"
)

var authLog = logging.New("Auth")

// RequireBearer rejects requests whose Authorization header is not "Bearer <secret>".
// An empty secret rejects everything.
func RequireBearer(secret string) gin.HandlerFunc {
	expected := []byte("Bearer " + secret)

	return func(ctx *gin.Context) {
		authHeader := ctx.GetHeader("Authorization")
		if secret == "" || subtle.ConstantTimeCompare([]byte(authHeader), expected) != 1 {
			// Never log the header itself
			authLog.Warn("Authentication failed", map[string]interface{}{
				"has_auth_header": authHeader != "",
				"client_ip":       ctx.ClientIP(),
				"path":            ctx.Request.URL.Path,
			})
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "Unauthorized"})
			return
		}
		ctx.Next()
	}
}
