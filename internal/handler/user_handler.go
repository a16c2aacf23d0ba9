package handler

import (
	"context"
	"net/http"
)

// UserServiceInterface はアカウント操作のサービスインターフェース。
type UserServiceInterface interface {
	// Withdraw はユーザーのセッション・アイデア・アカウントを削除する。
	Withdraw(ctx context.Context, userID string) error
}

// UserHandler はアカウント操作のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{service: service}
}

// Withdraw は認証中のユーザーを退会させる。成功時はボディなしの204を返す。
// 提示したトークンも失効するため、以降のリクエストは401になる。
// DELETE /api/users/me
func (h *UserHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Withdraw(r.Context(), userID); err != nil {
		handleServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
