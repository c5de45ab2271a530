package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/relaypacs/internal/netx"
	"github.com/dmitrijs2005/relaypacs/internal/protocol"
	"github.com/golang-jwt/jwt/v5"
)

// Authenticator supplies the user bearer for session init and token refresh.
type Authenticator interface {
	// Token returns a bearer, logging in first if needed.
	Token(ctx context.Context) (string, error)
	// Invalidate drops a cached bearer after the server rejected it. It
	// reports whether a fresh Token call may yield a different bearer.
	Invalidate() bool
}

// StaticToken is a bearer obtained out of band.
type StaticToken string

func (s StaticToken) Token(context.Context) (string, error) {
	if s == "" {
		return "", ErrUnauthorized
	}
	return string(s), nil
}

func (StaticToken) Invalidate() bool { return false }

// PasswordLogin exchanges a username and password for an access token via
// POST /auth/login and caches it until the server rejects it.
type PasswordLogin struct {
	baseURL  string
	hc       *http.Client
	username string
	password string

	mu    sync.Mutex
	token string
}

func NewPasswordLogin(baseURL string, hc *http.Client, username, password string) *PasswordLogin {
	return &PasswordLogin{
		baseURL:  strings.TrimRight(baseURL, "/"),
		hc:       hc,
		username: username,
		password: password,
	}
}

func (p *PasswordLogin) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token != "" {
		return p.token, nil
	}

	body, err := json.Marshal(protocol.LoginRequest{Username: p.username, Password: p.password})
	if err != nil {
		return "", err
	}
	req, err := newJSONRequest(ctx, http.MethodPost, p.baseURL+protocol.PathLogin, "", body)
	if err != nil {
		return "", err
	}
	resp, err := netx.Do(p.hc, req)
	if err != nil {
		return "", transportError(ctx, err)
	}
	if !resp.OK() {
		return "", newAPIError(resp.StatusCode, resp.Body)
	}

	var lr protocol.LoginResponse
	if err := json.Unmarshal(resp.Body, &lr); err != nil {
		return "", fmt.Errorf("decode login response: %w", err)
	}
	if lr.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", ErrUnauthorized)
	}
	p.token = lr.AccessToken
	return p.token, nil
}

func (p *PasswordLogin) Invalidate() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.token = ""
	return true
}

// TokenExpiry reads the exp claim of a JWT without verifying it. The client
// cannot verify upload tokens; it only needs to know when to refresh.
func TokenExpiry(token string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, fmt.Errorf("parse token: %w", err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("token exp: %w", err)
	}
	if exp == nil {
		return time.Time{}, errors.New("token has no exp claim")
	}
	return exp.Time, nil
}
