package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/relaypacs/internal/common"
	"github.com/dmitrijs2005/relaypacs/internal/logging"
	"github.com/dmitrijs2005/relaypacs/internal/protocol"
	"github.com/dmitrijs2005/relaypacs/internal/server/auth"
	"github.com/gin-gonic/gin"
)

const (
	claimsKey       = "claims"
	requestIDHeader = "X-Request-ID"
)

func abort(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, protocol.ErrorResponse{Detail: detail})
}

func requireToken(issuer *auth.Issuer, typ string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader(common.AuthorizationHeader)
		token, ok := strings.CutPrefix(header, common.BearerPrefix)
		if !ok || token == "" {
			abort(c, http.StatusUnauthorized, "Not authenticated")
			return
		}

		claims, err := issuer.Parse(token, typ)
		switch {
		case errors.Is(err, common.ErrTokenExpired):
			abort(c, http.StatusUnauthorized, "Token expired")
			return
		case errors.Is(err, auth.ErrWrongTokenType):
			abort(c, http.StatusUnauthorized, "Wrong token type")
			return
		case err != nil:
			abort(c, http.StatusUnauthorized, "Invalid token")
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

// uploadScope rejects upload tokens issued for another session.
func uploadScope() gin.HandlerFunc {
	return func(c *gin.Context) {
		if claimsFrom(c).Subject != c.Param("id") {
			abort(c, http.StatusForbidden, "Token mismatch for this upload session")
			return
		}
		c.Next()
	}
}

func claimsFrom(c *gin.Context) *auth.Claims {
	v, _ := c.Get(claimsKey)
	claims, _ := v.(*auth.Claims)
	if claims == nil {
		return &auth.Claims{}
	}
	return claims
}

func requestLogger(log logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id, _ = common.MakeRandHexString(8)
		}
		c.Header(requestIDHeader, id)
		c.Next()

		args := []any{
			"request_id", id,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			args = append(args, "error", c.Errors.String())
		}

		ctx := c.Request.Context()
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			log.Error(ctx, "request failed", args...)
		case c.Writer.Status() >= http.StatusBadRequest:
			log.Warn(ctx, "request rejected", args...)
		default:
			log.Debug(ctx, "request", args...)
		}
	}
}
