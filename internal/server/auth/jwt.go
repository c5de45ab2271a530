// Package auth issues and verifies the server's HS256 tokens. Access tokens
// identify a user; upload tokens are scoped to one upload session through
// their subject.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/relaypacs/internal/common"
	"github.com/dmitrijs2005/relaypacs/internal/protocol"
	"github.com/golang-jwt/jwt/v5"
)

var ErrWrongTokenType = errors.New("wrong token type")

// Claims carries the token type next to the standard claims. For access
// tokens Subject is the user name; for upload tokens it is the upload id
// and Owner names the user.
type Claims struct {
	jwt.RegisteredClaims
	Type  string `json:"typ"`
	Owner string `json:"owner,omitempty"`
}

type Issuer struct {
	secret    []byte
	accessTTL time.Duration
	uploadTTL time.Duration
	now       func() time.Time
}

func NewIssuer(secret []byte, accessTTL, uploadTTL time.Duration) *Issuer {
	return &Issuer{secret: secret, accessTTL: accessTTL, uploadTTL: uploadTTL, now: time.Now}
}

func (i *Issuer) sign(c Claims, ttl time.Duration) (string, time.Time, error) {
	now := i.now()
	exp := now.Add(ttl)
	c.IssuedAt = jwt.NewNumericDate(now)
	c.ExpiresAt = jwt.NewNumericDate(exp)

	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return s, exp.Truncate(time.Second), nil
}

// AccessToken signs a user token.
func (i *Issuer) AccessToken(username string) (string, time.Time, error) {
	return i.sign(Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: username},
		Type:             protocol.TokenTypeAccess,
	}, i.accessTTL)
}

// UploadToken signs a token that only opens uploadID.
func (i *Issuer) UploadToken(uploadID, owner string) (string, time.Time, error) {
	return i.sign(Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: uploadID},
		Type:             protocol.TokenTypeUpload,
		Owner:            owner,
	}, i.uploadTTL)
}

// Parse verifies token and checks that it is of type typ. Expired tokens
// yield common.ErrTokenExpired, everything else common.ErrInvalidToken or
// ErrWrongTokenType.
func (i *Issuer) Parse(token, typ string) (*Claims, error) {
	claims := &Claims{}
	t, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
	)
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, common.ErrTokenExpired
	}
	if err != nil || !t.Valid {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}
	if claims.Type != typ {
		return nil, ErrWrongTokenType
	}
	return claims, nil
}
