package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/relaypacs/internal/common"
	"github.com/dmitrijs2005/relaypacs/internal/netx"
	"github.com/dmitrijs2005/relaypacs/internal/protocol"
)

// UploadAPI is the client side of the upload protocol.
type UploadAPI interface {
	InitUpload(ctx context.Context, req protocol.InitRequest) (*protocol.InitResponse, error)
	PutChunk(ctx context.Context, uploadID, token string, chunk Chunk) (*protocol.ChunkResponse, error)
	Complete(ctx context.Context, uploadID, token string) (*protocol.CompleteResponse, error)
	Status(ctx context.Context, uploadID, token string) (*protocol.StatusResponse, error)
	RefreshUploadToken(ctx context.Context, uploadID string) (token string, expiresAt time.Time, err error)
	Ping(ctx context.Context) error
}

// Chunk addresses one byte window of one staged file.
type Chunk struct {
	FileRef     string
	Index       int
	TotalChunks int
	Data        []byte
}

// HTTPClient implements UploadAPI over net/http.
type HTTPClient struct {
	baseURL string
	hc      *http.Client
	auth    Authenticator
}

func NewHTTPClient(baseURL string, hc *http.Client, auth Authenticator) *HTTPClient {
	if hc == nil {
		hc = &http.Client{Timeout: 60 * time.Second}
	}
	return &HTTPClient{baseURL: strings.TrimRight(baseURL, "/"), hc: hc, auth: auth}
}

func newJSONRequest(ctx context.Context, method, url, bearer string, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if bearer != "" {
		req.Header.Set(common.AuthorizationHeader, common.BearerPrefix+bearer)
	}
	return req, nil
}

func transportError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// call performs one JSON round trip and decodes a 2xx body into out.
func (c *HTTPClient) call(ctx context.Context, method, path, bearer string, in, out any) error {
	var body []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = b
	}
	req, err := newJSONRequest(ctx, method, c.baseURL+path, bearer, body)
	if err != nil {
		return err
	}
	resp, err := netx.Do(c.hc, req)
	if err != nil {
		return transportError(ctx, err)
	}
	return decode(resp, out)
}

func decode(resp *netx.Response, out any) error {
	if !resp.OK() {
		return newAPIError(resp.StatusCode, resp.Body)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// callAsUser runs call with the user bearer and retries once with a fresh
// bearer when the first one is rejected.
func (c *HTTPClient) callAsUser(ctx context.Context, method, path string, in, out any) error {
	if c.auth == nil {
		return fmt.Errorf("%w: no authenticator configured", ErrUnauthorized)
	}
	token, err := c.auth.Token(ctx)
	if err != nil {
		return err
	}
	err = c.call(ctx, method, path, token, in, out)
	if !errors.Is(err, ErrUnauthorized) || !c.auth.Invalidate() {
		return err
	}
	token, err = c.auth.Token(ctx)
	if err != nil {
		return err
	}
	return c.call(ctx, method, path, token, in, out)
}

func (c *HTTPClient) InitUpload(ctx context.Context, req protocol.InitRequest) (*protocol.InitResponse, error) {
	var resp protocol.InitResponse
	if err := c.callAsUser(ctx, http.MethodPost, protocol.PathInit, req, &resp); err != nil {
		return nil, err
	}
	if resp.UploadID == "" || resp.UploadToken == "" || resp.ChunkSize <= 0 {
		return nil, fmt.Errorf("%w: incomplete init response", ErrRejected)
	}
	return &resp, nil
}

func (c *HTTPClient) PutChunk(ctx context.Context, uploadID, token string, chunk Chunk) (*protocol.ChunkResponse, error) {
	url := c.baseURL + protocol.ChunkPath(uploadID, chunk.FileRef, chunk.Index, chunk.TotalChunks)
	resp, err := netx.PutOctetStream(ctx, c.hc, url, token, chunk.Data)
	if err != nil {
		return nil, transportError(ctx, err)
	}
	var out protocol.ChunkResponse
	if err := decode(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) Complete(ctx context.Context, uploadID, token string) (*protocol.CompleteResponse, error) {
	var out protocol.CompleteResponse
	if err := c.call(ctx, http.MethodPost, protocol.CompletePath(uploadID), token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) Status(ctx context.Context, uploadID, token string) (*protocol.StatusResponse, error) {
	var out protocol.StatusResponse
	if err := c.call(ctx, http.MethodGet, protocol.StatusPath(uploadID), token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) RefreshUploadToken(ctx context.Context, uploadID string) (string, time.Time, error) {
	var out protocol.RefreshResponse
	if err := c.callAsUser(ctx, http.MethodPost, protocol.RefreshPath(uploadID), nil, &out); err != nil {
		return "", time.Time{}, err
	}
	if out.UploadToken == "" {
		return "", time.Time{}, fmt.Errorf("%w: empty upload token", ErrRejected)
	}
	if out.ExpiresAt != nil {
		return out.UploadToken, *out.ExpiresAt, nil
	}
	exp, err := TokenExpiry(out.UploadToken)
	if err != nil {
		return "", time.Time{}, err
	}
	return out.UploadToken, exp, nil
}

func (c *HTTPClient) Ping(ctx context.Context) error {
	var out protocol.HealthResponse
	if err := c.call(ctx, http.MethodGet, protocol.PathHealth, "", nil, &out); err != nil {
		return err
	}
	if out.Status != "ok" {
		return fmt.Errorf("%w: health status %s", ErrUnavailable, strconv.Quote(out.Status))
	}
	return nil
}
