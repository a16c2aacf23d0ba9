// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/hitoshi/ideaarchitect/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
	userIDContextKey = contextKey("user_id")
	// identityContextKey は認証済みユーザーのIdentityを格納するためのキー。
	identityContextKey = contextKey("identity")
	// tokenContextKey は提示されたBearerトークンを格納するためのキー。
	tokenContextKey = contextKey("token")
)

// 認証拒否理由（メトリクスラベル）
const (
	rejectTokenRequired = "token_required"
	rejectInvalidToken  = "invalid_token"
	rejectInvalidOrExp  = "invalid_or_expired"
	rejectStoreError    = "store_error"
)

// SessionFinder はセッションの検索に必要なインターフェース。
// repository.SessionRepositoryの部分集合として定義する。
type SessionFinder interface {
	FindByToken(ctx context.Context, token string) (*model.SessionWithUser, error)
}

// TokenVerifier はトークンの署名と有効期限を検証し、subjectを返す。
// token.Codecが実装する。
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// AuthRejectionRecorder は認証拒否をメトリクスに記録する。
type AuthRejectionRecorder interface {
	RecordAuthRejected(reason string)
}

// AuthGuard はBearerトークンからリクエストの認証済みIdentityを解決する。
// 結果は(ヘッダー, セッションストアの状態, 現在時刻)のみで決まる。
type AuthGuard struct {
	sessions SessionFinder
	verifier TokenVerifier
	now      func() time.Time
	metrics  AuthRejectionRecorder
}

// NewAuthGuard はAuthGuardを生成する。
// nowがnilの場合はtime.Nowを使用する。metricsはnilでもよい。
func NewAuthGuard(sessions SessionFinder, verifier TokenVerifier, now func() time.Time, metrics AuthRejectionRecorder) *AuthGuard {
	if now == nil {
		now = time.Now
	}
	return &AuthGuard{
		sessions: sessions,
		verifier: verifier,
		now:      now,
		metrics:  metrics,
	}
}

// Required は認証必須のミドルウェアを返す。
// 認証に失敗した場合はハンドラーを呼ばずにエラーレスポンスを返す。
//   - トークンなし / Bearer以外 → 401 TOKEN_REQUIRED
//   - 署名・形式・期限の検証失敗 → 403 INVALID_TOKEN
//   - セッションなし / 期限切れ → 401 INVALID_OR_EXPIRED
//   - セッションストア障害 → 500 INTERNAL_ERROR
func (g *AuthGuard) Required() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, token, apiErr, reason := g.resolve(r)
			if apiErr != nil {
				if g.metrics != nil {
					g.metrics.RecordAuthRejected(reason)
				}
				WriteErrorResponse(w, apiErr)
				return
			}

			next.ServeHTTP(w, r.WithContext(contextWithSession(r.Context(), session, token)))
		})
	}
}

// Optional は認証任意のミドルウェアを返す。
// 解決に成功した場合のみIdentityを注入し、失敗しても常に次のハンドラーへ進む。
// 自身はレスポンスを書き込まない。
func (g *AuthGuard) Optional() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if session, token, ok := g.tryResolve(r); ok {
				ctx = contextWithSession(ctx, session, token)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// tryResolve は解決中のpanicを握りつぶし、未認証として扱う。
func (g *AuthGuard) tryResolve(r *http.Request) (session *model.SessionWithUser, token string, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("panic recovered in optional auth",
				slog.Any("panic", rec),
				slog.String("path", r.URL.Path),
				slog.String("stack", string(debug.Stack())),
			)
			session, token, ok = nil, "", false
		}
	}()

	session, token, apiErr, _ := g.resolve(r)
	return session, token, apiErr == nil
}

// resolve はリクエストからセッションを解決する。
// 失敗時はAPIErrorと拒否理由を返す。
func (g *AuthGuard) resolve(r *http.Request) (*model.SessionWithUser, string, *model.APIError, string) {
	// 1. Authorizationヘッダーからトークンを取得
	token := bearerToken(r)
	if token == "" {
		return nil, "", model.NewTokenRequiredError(), rejectTokenRequired
	}

	// 2. 署名と有効期限を検証
	subject, err := g.verifier.Verify(token)
	if err != nil {
		return nil, "", model.NewInvalidTokenError(), rejectInvalidToken
	}

	// 3. セッションを検索
	session, err := g.sessions.FindByToken(r.Context(), token)
	if err != nil {
		slog.Error("failed to find session",
			slog.String("error", err.Error()),
		)
		return nil, "", model.NewInternalError(), rejectStoreError
	}

	// 4. セッションの存在・期限・所有者を確認
	if session == nil || session.IsExpired(g.now()) || session.UserID != subject {
		return nil, "", model.NewInvalidOrExpiredSessionError(), rejectInvalidOrExp
	}

	return session, token, nil, ""
}

// bearerToken は "Authorization: Bearer <token>" からトークンを取り出す。
// 形式が異なる場合は空文字を返す。
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func contextWithSession(ctx context.Context, session *model.SessionWithUser, token string) context.Context {
	ctx = ContextWithIdentity(ctx, session.Identity())
	ctx = ContextWithToken(ctx, token)
	return ctx
}

// IdentityFromContext はリクエストコンテキストから認証済みIdentityを取得する。
func IdentityFromContext(ctx context.Context) (model.Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(model.Identity)
	return identity, ok
}

// ContextWithIdentity はコンテキストにIdentityとそのユーザーIDを注入する。
func ContextWithIdentity(ctx context.Context, identity model.Identity) context.Context {
	ctx = context.WithValue(ctx, identityContextKey, identity)
	return ContextWithUserID(ctx, identity.ID)
}

// TokenFromContext は認証に使われたトークンを取得する。
func TokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(tokenContextKey).(string)
	return token, ok && token != ""
}

// ContextWithToken はコンテキストにトークンを注入する。
func ContextWithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenContextKey, token)
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// 認証ガードを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// 外側のロギングミドルウェアにもユーザーIDを伝える。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	if info, ok := ctx.Value(requestInfoContextKey).(*requestInfo); ok {
		info.userID = userID
	}
	return context.WithValue(ctx, userIDContextKey, userID)
}
