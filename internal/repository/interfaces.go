// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/ideaarchitect/internal/model"
)

// ErrDuplicate は一意制約違反を表す。
// ドライバー固有のエラーはリポジトリ内で変換し、呼び出し側には漏らさない。
var ErrDuplicate = errors.New("duplicate key")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。メールアドレスが重複する場合はErrDuplicateを返す。
	Create(ctx context.Context, user *model.User) error

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するsessions、ideasはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error

	// FindByToken はトークンに対応するセッションを所有ユーザーとともに取得する。
	// 見つからない場合はnilを返す。期限切れのセッションもそのまま返し、
	// 有効期限の判定は呼び出し側が行う。
	FindByToken(ctx context.Context, token string) (*model.SessionWithUser, error)

	// DeleteByToken はトークンに対応するセッションを削除する。
	// 存在しない場合もエラーにしない。
	DeleteByToken(ctx context.Context, token string) error

	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// ExpiredSessionPurger は期限切れセッションの一括削除インターフェース。
type ExpiredSessionPurger interface {
	// DeleteExpired はbeforeより前に期限切れとなったセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// IdeaRepository はアイデアデータの永続化インターフェース。
// 所有者を伴う操作はすべて id と user_id を同時に条件とする単一ステートメントで実行する。
type IdeaRepository interface {
	// Create はアイデアを作成する。
	Create(ctx context.Context, idea *model.Idea) error

	// FindByIDAndOwner は指定ユーザーが所有するアイデアを取得する。
	// 存在しない場合と他ユーザーの所有である場合はいずれもnilを返す。
	FindByIDAndOwner(ctx context.Context, id, userID string) (*model.Idea, error)

	// List は絞り込み条件に合うアイデアを並び順に従って取得する。
	List(ctx context.Context, filter model.IdeaFilter, order model.IdeaOrder, limit, offset int) ([]*model.Idea, error)

	// Count は絞り込み条件に合うアイデアの件数を返す。
	Count(ctx context.Context, filter model.IdeaFilter) (int, error)

	// Update は汎用フィールドを更新し、更新後のアイデアを返す。
	// ai_analysisは更新しない。対象行がない場合はnilを返す。
	Update(ctx context.Context, id, userID string, update model.IdeaUpdate) (*model.Idea, error)

	// SetStatus はステータスのみを更新する。対象行がない場合はfalseを返す。
	SetStatus(ctx context.Context, id, userID string, status model.IdeaStatus) (bool, error)

	// SetAnalysis はAI分析結果とステータスを同時に更新し、更新後のアイデアを返す。
	// 対象行がない場合はnilを返す。
	SetAnalysis(ctx context.Context, id, userID string, result *model.AnalysisResult, status model.IdeaStatus) (*model.Idea, error)

	// Delete は指定ユーザーが所有するアイデアを削除する。対象行がない場合はfalseを返す。
	// tasks、mind_mapsはCASCADE削除される。
	Delete(ctx context.Context, id, userID string) (bool, error)

	// DeleteByUserID は指定ユーザーの全アイデアを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}
