package handler

import (
	"context"
	"time"

	"github.com/hitoshi/ideaarchitect/internal/auth"
	"github.com/hitoshi/ideaarchitect/internal/idea"
	"github.com/hitoshi/ideaarchitect/internal/model"
	"github.com/hitoshi/ideaarchitect/internal/user"
)

// --- レスポンス型 ---

// userResponse はユーザー情報のAPIレスポンス。パスワードハッシュは含めない。
type userResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Avatar    string    `json:"avatar,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// authResponse は登録・ログイン・リフレッシュのAPIレスポンス。
type authResponse struct {
	User      *userResponse `json:"user,omitempty"`
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expiresAt"`
}

// ideaResponse はアイデアのAPIレスポンス。
type ideaResponse struct {
	ID          string                `json:"id"`
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Category    *string               `json:"category"`
	Tags        []string              `json:"tags"`
	Status      model.IdeaStatus      `json:"status"`
	AIAnalysis  *model.AnalysisResult `json:"aiAnalysis"`
	UserID      string                `json:"userId"`
	CreatedAt   time.Time             `json:"createdAt"`
	UpdatedAt   time.Time             `json:"updatedAt"`
}

// paginationResponse はページング情報。
type paginationResponse struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// ideaListResponse はアイデア一覧のAPIレスポンス。
type ideaListResponse struct {
	Ideas      []ideaResponse     `json:"ideas"`
	Pagination paginationResponse `json:"pagination"`
}

func toUserResponse(u *model.User) *userResponse {
	return &userResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Avatar:    u.Avatar,
		CreatedAt: u.CreatedAt,
	}
}

func toIdeaResponse(i *model.Idea) *ideaResponse {
	tags := i.Tags
	if tags == nil {
		tags = []string{}
	}
	return &ideaResponse{
		ID:          i.ID,
		Title:       i.Title,
		Description: i.Description,
		Category:    i.Category,
		Tags:        tags,
		Status:      i.Status,
		AIAnalysis:  i.AIAnalysis,
		UserID:      i.UserID,
		CreatedAt:   i.CreatedAt,
		UpdatedAt:   i.UpdatedAt,
	}
}

// --- 認証 ---

// AuthServiceAdapter は auth.Service を AuthServiceInterface に適合させるアダプタ。
type AuthServiceAdapter struct {
	svc *auth.Service
}

// NewAuthServiceAdapter はAuthServiceAdapterを生成する。
func NewAuthServiceAdapter(svc *auth.Service) *AuthServiceAdapter {
	return &AuthServiceAdapter{svc: svc}
}

// Register はユーザーを登録しhandlerレスポンス型で返す。
func (a *AuthServiceAdapter) Register(ctx context.Context, email, password, name string) (*authResponse, error) {
	result, err := a.svc.Register(ctx, auth.RegisterInput{Email: email, Password: password, Name: name})
	if err != nil {
		return nil, err
	}
	return toAuthResponse(result), nil
}

// Login はログインしhandlerレスポンス型で返す。
func (a *AuthServiceAdapter) Login(ctx context.Context, email, password string) (*authResponse, error) {
	result, err := a.svc.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return toAuthResponse(result), nil
}

// Logout はセッションを破棄する。
func (a *AuthServiceAdapter) Logout(ctx context.Context, token string) error {
	return a.svc.Logout(ctx, token)
}

// Refresh はトークンを再発行する。レスポンスにユーザー情報は含めない。
func (a *AuthServiceAdapter) Refresh(ctx context.Context, userID, token string) (*authResponse, error) {
	result, err := a.svc.Refresh(ctx, userID, token)
	if err != nil {
		return nil, err
	}
	return &authResponse{Token: result.Token, ExpiresAt: result.ExpiresAt}, nil
}

// Me は現在のユーザーをhandlerレスポンス型で返す。
func (a *AuthServiceAdapter) Me(ctx context.Context, userID string) (*userResponse, error) {
	u, err := a.svc.Me(ctx, userID)
	if err != nil {
		return nil, err
	}
	return toUserResponse(u), nil
}

func toAuthResponse(result *auth.AuthResult) *authResponse {
	return &authResponse{
		User:      toUserResponse(result.User),
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt,
	}
}

// --- アイデア ---

// IdeaServiceAdapter は idea.Service を IdeaServiceInterface に適合させるアダプタ。
type IdeaServiceAdapter struct {
	svc *idea.Service
}

// NewIdeaServiceAdapter はIdeaServiceAdapterを生成する。
func NewIdeaServiceAdapter(svc *idea.Service) *IdeaServiceAdapter {
	return &IdeaServiceAdapter{svc: svc}
}

// Create はアイデアを作成しhandlerレスポンス型で返す。
func (a *IdeaServiceAdapter) Create(ctx context.Context, userID string, input model.NewIdea) (*ideaResponse, error) {
	return wrapIdea(a.svc.Create(ctx, userID, input))
}

// List はアイデア一覧をhandlerレスポンス型で返す。
func (a *IdeaServiceAdapter) List(ctx context.Context, userID string, query idea.ListQuery) (*ideaListResponse, error) {
	page, err := a.svc.List(ctx, userID, query)
	if err != nil {
		return nil, err
	}

	ideas := make([]ideaResponse, len(page.Ideas))
	for i, it := range page.Ideas {
		ideas[i] = *toIdeaResponse(it)
	}

	return &ideaListResponse{
		Ideas: ideas,
		Pagination: paginationResponse{
			Page:       page.Page,
			Limit:      page.Limit,
			Total:      page.Total,
			TotalPages: page.TotalPages,
		},
	}, nil
}

// Get はアイデアをhandlerレスポンス型で返す。
func (a *IdeaServiceAdapter) Get(ctx context.Context, id, userID string) (*ideaResponse, error) {
	return wrapIdea(a.svc.Get(ctx, id, userID))
}

// Update はアイデアを更新しhandlerレスポンス型で返す。
func (a *IdeaServiceAdapter) Update(ctx context.Context, id, userID string, update model.IdeaUpdate) (*ideaResponse, error) {
	return wrapIdea(a.svc.Update(ctx, id, userID, update))
}

// Delete はアイデアを削除する。
func (a *IdeaServiceAdapter) Delete(ctx context.Context, id, userID string) error {
	return a.svc.Delete(ctx, id, userID)
}

// Analyze はアイデアを分析しhandlerレスポンス型で返す。
func (a *IdeaServiceAdapter) Analyze(ctx context.Context, id, userID string) (*ideaResponse, error) {
	return wrapIdea(a.svc.Analyze(ctx, id, userID))
}

// Expand は拡張提案を返す。
func (a *IdeaServiceAdapter) Expand(ctx context.Context, id, userID string) ([]string, error) {
	return a.svc.Expand(ctx, id, userID)
}

func wrapIdea(i *model.Idea, err error) (*ideaResponse, error) {
	if err != nil {
		return nil, err
	}
	return toIdeaResponse(i), nil
}

// --- ユーザー ---

// UserServiceAdapter は user.Service を UserServiceInterface に適合させるアダプタ。
type UserServiceAdapter struct {
	svc *user.Service
}

// NewUserServiceAdapter はUserServiceAdapterを生成する。
func NewUserServiceAdapter(svc *user.Service) *UserServiceAdapter {
	return &UserServiceAdapter{svc: svc}
}

// Withdraw はユーザーの退会処理を実行する。
func (a *UserServiceAdapter) Withdraw(ctx context.Context, userID string) error {
	return a.svc.Withdraw(ctx, userID)
}

// --- compile-time interface checks ---

var _ AuthServiceInterface = (*AuthServiceAdapter)(nil)
var _ IdeaServiceInterface = (*IdeaServiceAdapter)(nil)
var _ UserServiceInterface = (*UserServiceAdapter)(nil)
