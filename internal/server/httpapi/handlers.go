package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/relaypacs/internal/common"
	"github.com/dmitrijs2005/relaypacs/internal/protocol"
	"github.com/dmitrijs2005/relaypacs/internal/server/services"
	"github.com/gin-gonic/gin"
)

type Handler struct {
	uploads *services.UploadService
	users   *services.UserService
}

func NewHandler(uploads *services.UploadService, users *services.UserService) *Handler {
	return &Handler{uploads: uploads, users: users}
}

// writeError maps service errors onto status codes. Unknown errors are
// recorded on the context for the request logger and hidden from clients.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrPayloadTooLarge):
		abort(c, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, services.ErrInvalidRequest),
		errors.Is(err, services.ErrEmptyChunk),
		errors.Is(err, services.ErrUploadIncomplete):
		abort(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, common.ErrNotFound):
		abort(c, http.StatusNotFound, "Upload session not found")
	case errors.Is(err, services.ErrForbidden):
		abort(c, http.StatusForbidden, "Not authorized for this upload session")
	case errors.Is(err, services.ErrUnauthorized):
		abort(c, http.StatusUnauthorized, "Incorrect username or password")
	default:
		_ = c.Error(err)
		abort(c, http.StatusInternalServerError, "Internal server error")
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, protocol.HealthResponse{Status: "ok"})
}

func (h *Handler) Login(c *gin.Context) {
	var req protocol.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Username == "" {
		abort(c, http.StatusBadRequest, "username and password are required")
		return
	}
	token, err := h.users.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, protocol.LoginResponse{AccessToken: token})
}

func (h *Handler) Init(c *gin.Context) {
	var req protocol.InitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "malformed request body")
		return
	}
	resp, err := h.uploads.Init(c.Request.Context(), claimsFrom(c).Subject, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) RefreshToken(c *gin.Context) {
	id := c.Query("upload_id")
	if id == "" {
		abort(c, http.StatusBadRequest, "upload_id is required")
		return
	}
	resp, err := h.uploads.RefreshToken(c.Request.Context(), claimsFrom(c).Subject, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) PutChunk(c *gin.Context) {
	index, err := strconv.Atoi(c.Query("chunk_index"))
	if err != nil {
		abort(c, http.StatusBadRequest, "chunk_index must be an integer")
		return
	}
	fileID := c.Query("file_id")
	if fileID == "" {
		abort(c, http.StatusBadRequest, "file_id is required")
		return
	}
	total := 0
	if v := c.Query("total_chunks"); v != "" {
		if total, err = strconv.Atoi(v); err != nil {
			abort(c, http.StatusBadRequest, "total_chunks must be an integer")
			return
		}
	}

	// One byte past the limit is enough for the service to reject it.
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, h.uploads.MaxChunkBytes()+1))
	if err != nil {
		abort(c, http.StatusBadRequest, "error reading body")
		return
	}

	resp, err := h.uploads.PutChunk(c.Request.Context(), c.Param("id"), fileID, index, total, body)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) Complete(c *gin.Context) {
	resp, err := h.uploads.Complete(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) Status(c *gin.Context) {
	resp, err := h.uploads.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
