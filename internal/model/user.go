// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// PasswordHashはAPIレスポンスに含めてはならない。
type User struct {
	ID           string
	Email        string
	Name         string
	Avatar       string
	PasswordHash string `json:"-"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity はリクエスト単位で解決される認証済みユーザー情報を表す。
// 永続化されず、認証ガードがリクエストコンテキストに格納する。
type Identity struct {
	ID    string
	Email string
	Name  string
}

// Session はベアラートークンとユーザーを結びつけるサーバー側のレコードを表す。
// トークン自体の有効期限とは独立に、ExpiresAtが有効性の正となる。
type Session struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsExpired は指定時刻時点でセッションが期限切れかどうかを返す。
func (s *Session) IsExpired(now time.Time) bool {
	return s.ExpiresAt.Before(now)
}

// SessionWithUser はセッションと所有ユーザーを結合したモデル。
// sessionsテーブルとusersテーブルをJOINして取得される。
type SessionWithUser struct {
	Session
	User User
}

// Identity はセッションの所有ユーザーからIdentityを生成する。
func (s *SessionWithUser) Identity() Identity {
	return Identity{
		ID:    s.User.ID,
		Email: s.User.Email,
		Name:  s.User.Name,
	}
}
