// Package token はベアラートークンの発行と検証を提供する。
// トークンはHS256で署名したJWTで、サブジェクトにユーザーIDを持つ。
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultTTL はトークンのデフォルト有効期間（7日）。
const DefaultTTL = 7 * 24 * time.Hour

// ErrorKind はトークン検証失敗の種別を表す。
type ErrorKind int

const (
	// KindMalformed は形式不正・必須クレーム欠落。
	KindMalformed ErrorKind = iota
	// KindInvalidSignature は署名不一致、または許可されていない署名方式。
	KindInvalidSignature
	// KindExpired は有効期限切れ。
	KindExpired
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidSignature:
		return "invalid_signature"
	case KindExpired:
		return "expired"
	default:
		return "malformed"
	}
}

// Error はトークン検証エラーを表す。
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("token %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Codec はトークンの発行と検証を行う。副作用を持たない。
type Codec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewCodec は新しいCodecを生成する。ttlが0以下の場合はDefaultTTLを使う。
func NewCodec(secret string, ttl time.Duration) *Codec {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Codec{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// WithClock はテスト用に現在時刻の取得関数を差し替えたCodecを返す。
func (c *Codec) WithClock(now func() time.Time) *Codec {
	cp := *c
	cp.now = now
	return &cp
}

// TTL はトークンの有効期間を返す。
func (c *Codec) TTL() time.Duration {
	return c.ttl
}

// Issue はサブジェクトに対する署名済みトークンと有効期限を返す。
// 同一サブジェクト・同一秒の発行でもjtiにより異なるトークンになる。
func (c *Codec) Issue(subject string) (string, time.Time, error) {
	if subject == "" {
		return "", time.Time{}, errors.New("subject is required")
	}

	now := c.now()
	expiresAt := now.Add(c.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		ID:        uuid.New().String(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify はトークンを検証し、サブジェクトを返す。
// 解析・署名・クレームのいずれかで失敗した場合は*Errorを返す。
func (c *Codec) Verify(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) {
			return c.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return "", classify(err)
	}
	if !parsed.Valid {
		return "", &Error{Kind: KindMalformed, Err: errors.New("token is not valid")}
	}
	if claims.Subject == "" {
		return "", &Error{Kind: KindMalformed, Err: errors.New("subject claim is missing")}
	}
	return claims.Subject, nil
}

func classify(err error) *Error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return &Error{Kind: KindExpired, Err: err}
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return &Error{Kind: KindInvalidSignature, Err: err}
	default:
		return &Error{Kind: KindMalformed, Err: err}
	}
}
