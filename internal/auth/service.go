// Package auth はメールアドレスとパスワードによる認証、セッションの発行と破棄を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/ideaarchitect/internal/model"
	"github.com/hitoshi/ideaarchitect/internal/repository"
)

// TokenIssuer はベアラートークンを発行するインターフェース。
type TokenIssuer interface {
	Issue(subject string) (string, time.Time, error)
}

// SessionIssueRecorder はセッション発行をメトリクスに記録する。
type SessionIssueRecorder interface {
	RecordSessionIssued()
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge time.Duration
	BcryptCost    int
}

// RegisterInput はユーザー登録の入力。
type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

// AuthResult は登録・ログイン・リフレッシュの結果。
type AuthResult struct {
	User      *model.User
	Token     string
	ExpiresAt time.Time
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	tokens      TokenIssuer
	metrics     SessionIssueRecorder
	config      ServiceConfig
	now         func() time.Time

	// 未登録メールアドレスでのログインでも比較処理を行うためのダミーハッシュ
	dummyHashOnce sync.Once
	dummyHash     []byte
}

// NewService はServiceを生成する。metricsはnilでもよい。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	tokens TokenIssuer,
	metrics SessionIssueRecorder,
	config ServiceConfig,
) *Service {
	if config.BcryptCost == 0 {
		config.BcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		tokens:      tokens,
		metrics:     metrics,
		config:      config,
		now:         time.Now,
	}
}

// Register はユーザーを作成し、セッションを発行する。
// 登録済みのメールアドレスの場合はEMAIL_EXISTSを返す。
func (s *Service) Register(ctx context.Context, input RegisterInput) (*AuthResult, error) {
	email := normalizeEmail(input.Email)

	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	if existing != nil {
		return nil, model.NewEmailExistsError()
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.config.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now()
	user := &model.User{
		ID:           uuid.New().String(),
		Email:        email,
		Name:         strings.TrimSpace(input.Name),
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		// 確認後の同時登録は一意制約で検出する
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewEmailExistsError()
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	result, err := s.issueSession(ctx, user)
	if err != nil {
		return nil, err
	}

	slog.Info("user registered", slog.String("user_id", user.ID))
	return result, nil
}

// Login はメールアドレスとパスワードを検証し、セッションを発行する。
// メールアドレスとパスワードのどちらが誤っているかは区別しない。
func (s *Service) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	user, err := s.userRepo.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}

	if user == nil {
		_ = bcrypt.CompareHashAndPassword(s.getDummyHash(), []byte(password))
		return nil, model.NewInvalidCredentialsError()
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, model.NewInvalidCredentialsError()
	}

	result, err := s.issueSession(ctx, user)
	if err != nil {
		return nil, err
	}

	slog.Info("user logged in", slog.String("user_id", user.ID))
	return result, nil
}

// Logout は提示されたトークンのセッションを破棄する。
// セッションが既に存在しない場合も成功とする。
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return model.NewTokenRequiredError()
	}

	if err := s.sessionRepo.DeleteByToken(ctx, token); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	return nil
}

// Refresh は新しいトークンとセッションを発行し、古いセッションを破棄する。
func (s *Service) Refresh(ctx context.Context, userID, oldToken string) (*AuthResult, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	result, err := s.issueSession(ctx, user)
	if err != nil {
		return nil, err
	}

	if err := s.sessionRepo.DeleteByToken(ctx, oldToken); err != nil {
		return nil, fmt.Errorf("failed to delete old session: %w", err)
	}

	return result, nil
}

// Me は現在のユーザーを返す。
func (s *Service) Me(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// issueSession はトークンを発行し、対応するセッションを永続化する。
// 応答の有効期限はトークンとセッションのうち早い方とする。
func (s *Service) issueSession(ctx context.Context, user *model.User) (*AuthResult, error) {
	token, tokenExpiresAt, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	now := s.now()
	session := &model.Session{
		Token:     token,
		UserID:    user.ID,
		ExpiresAt: now.Add(s.config.SessionMaxAge),
		CreatedAt: now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordSessionIssued()
	}

	expiresAt := session.ExpiresAt
	if tokenExpiresAt.Before(expiresAt) {
		expiresAt = tokenExpiresAt
	}

	return &AuthResult{
		User:      user,
		Token:     token,
		ExpiresAt: expiresAt,
	}, nil
}

func (s *Service) getDummyHash() []byte {
	s.dummyHashOnce.Do(func() {
		s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("dummy-password"), s.config.BcryptCost)
	})
	return s.dummyHash
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
