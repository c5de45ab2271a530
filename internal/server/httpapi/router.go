// Package httpapi exposes the upload protocol over HTTP with gin.
package httpapi

import (
	"github.com/dmitrijs2005/relaypacs/internal/logging"
	"github.com/dmitrijs2005/relaypacs/internal/protocol"
	"github.com/dmitrijs2005/relaypacs/internal/server/auth"
	"github.com/gin-gonic/gin"
)

// NewRouter wires every protocol route. Upload routes take an upload token
// scoped to the :id path parameter; init and refresh take an access token.
func NewRouter(h *Handler, issuer *auth.Issuer, log logging.Logger) *gin.Engine {
	if log == nil {
		log = logging.NewNop()
	}
	r := gin.New()
	r.Use(requestLogger(log), gin.Recovery())

	r.GET(protocol.PathHealth, h.Health)
	r.POST(protocol.PathLogin, h.Login)

	user := requireToken(issuer, protocol.TokenTypeAccess)
	r.POST(protocol.PathRefreshToken, user, h.RefreshToken)
	r.POST(protocol.PathInit, user, h.Init)

	upload := r.Group("/upload/:id", requireToken(issuer, protocol.TokenTypeUpload), uploadScope())
	{
		upload.PUT("/chunk", h.PutChunk)
		upload.POST("/complete", h.Complete)
		upload.GET("/status", h.Status)
	}
	return r
}
