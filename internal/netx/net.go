// Package netx contains low-level HTTP helpers for binary transfers.
package netx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/dmitrijs2005/relaypacs/internal/common"
)

// maxResponseBody bounds how much of a response is buffered.
const maxResponseBody = 1 << 20

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Body       []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// PutOctetStream sends body with PUT as application/octet-stream. When
// bearer is non-empty it is sent in the Authorization header. Transport
// errors are returned as-is; HTTP error statuses are not errors here.
func PutOctetStream(ctx context.Context, hc *http.Client, url, bearer string, body []byte) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", common.OctetStream)
	req.ContentLength = int64(len(body))
	if bearer != "" {
		req.Header.Set(common.AuthorizationHeader, common.BearerPrefix+bearer)
	}
	return Do(hc, req)
}

// Do executes req and reads up to 1 MiB of the response body.
func Do(hc *http.Client, req *http.Request) (*Response, error) {
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return &Response{StatusCode: resp.StatusCode, Body: b}, nil
}
