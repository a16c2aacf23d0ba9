// Package user はアカウント退会を扱う。
package user

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/ideaarchitect/internal/model"
	"github.com/hitoshi/ideaarchitect/internal/repository"
)

// OwnedDataDeleter はユーザーが所有するデータを一括削除する。
// セッションストアとアイデアストアの両方が満たす。
type OwnedDataDeleter interface {
	DeleteByUserID(ctx context.Context, userID string) error
}

// Service は退会処理を行う。
type Service struct {
	users    repository.UserRepository
	sessions OwnedDataDeleter
	ideas    OwnedDataDeleter
	logger   *slog.Logger
}

// NewService はServiceを生成する。loggerがnilの場合はslog.Default()を使う。
func NewService(users repository.UserRepository, sessions, ideas OwnedDataDeleter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{users: users, sessions: sessions, ideas: ideas, logger: logger}
}

// Withdraw はユーザーと所有データを削除する。
//
// 最初にセッションを失効させ、以降そのユーザーのトークンは認証を通らない。
// 続いてアイデア、最後にユーザー本体を削除する。途中で失敗した場合はユーザーを残す。
// セッションキャッシュがあるとCASCADEでは無効化されないため、セッションは明示的に削除する。
func (s *Service) Withdraw(ctx context.Context, userID string) error {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}
	if u == nil {
		return model.NewUserNotFoundError()
	}

	steps := []struct {
		name string
		del  OwnedDataDeleter
	}{
		{"sessions", s.sessions},
		{"ideas", s.ideas},
	}
	for _, step := range steps {
		if step.del == nil {
			continue
		}
		if err := step.del.DeleteByUserID(ctx, userID); err != nil {
			s.logger.Error("withdrawal aborted",
				slog.String("user_id", userID),
				slog.String("step", step.name),
				slog.String("error", err.Error()),
			)
			return fmt.Errorf("failed to delete %s: %w", step.name, err)
		}
	}

	if err := s.users.DeleteByID(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	s.logger.Info("user withdrawn", slog.String("user_id", userID))
	return nil
}
