// Package auth はアクセストークンの検証を提供する。
// トークンの発行は認証基盤側で行い、このパッケージは署名と有効期限の確認だけを行う。
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken はトークンの形式・署名・有効期限のいずれかが不正であることを表す。
	ErrInvalidToken = errors.New("invalid token")
	// ErrMissingSubject はsubクレーム（メールアドレス）が含まれないことを表す。
	ErrMissingSubject = errors.New("token has no subject")
)

// Verifier はHS256で署名されたアクセストークンを検証する。
type Verifier struct {
	secret []byte
	leeway time.Duration
	now    func() time.Time
}

// NewVerifier はVerifierを生成する。
func NewVerifier(secret string) *Verifier {
	return &Verifier{
		secret: []byte(secret),
		leeway: 30 * time.Second,
		now:    time.Now,
	}
}

// Verify はトークンを検証し、subクレームのメールアドレスを返す。
func (v *Verifier) Verify(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrInvalidToken
	}

	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (interface{}, error) {
			return v.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return "", ErrInvalidToken
	}

	email := strings.TrimSpace(claims.Subject)
	if email == "" {
		return "", ErrMissingSubject
	}
	return email, nil
}
