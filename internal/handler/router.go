package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/ideaarchitect/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	AuthGuard         *middleware.AuthGuard
	RateLimiter       *middleware.RateLimiter
	CORSAllowedOrigin string
	Logger            *slog.Logger

	// /metrics を公開するハンドラー。nilの場合はルートを登録しない。
	MetricsHandler http.Handler

	AuthService AuthServiceInterface
	IdeaService IdeaServiceInterface
	UserService UserServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → (保護ルート) AuthGuard → RateLimit(General)
//
// analyze と expand は外部LLMを呼び出すため、さらに AnalysisMiddleware を通る。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(logger))

	healthHandler := NewHealthHandler()
	authHandler := NewAuthHandler(deps.AuthService)
	ideaHandler := NewIdeaHandler(deps.IdeaService)
	userHandler := NewUserHandler(deps.UserService)

	// --- 認証不要のルート ---
	r.Get("/health", healthHandler.Health)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}
	r.Post("/api/auth/register", authHandler.Register)
	r.Post("/api/auth/login", authHandler.Login)

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(deps.AuthGuard.Required())
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Route("/api/auth", func(r chi.Router) {
			r.Post("/logout", authHandler.Logout)
			r.Post("/refresh", authHandler.Refresh)
			r.Get("/me", authHandler.Me)
		})

		r.Route("/api/ideas", func(r chi.Router) {
			r.Get("/", ideaHandler.List)
			r.Post("/", ideaHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", ideaHandler.Get)
				r.Put("/", ideaHandler.Update)
				r.Delete("/", ideaHandler.Delete)

				r.With(deps.RateLimiter.AnalysisMiddleware()).Post("/analyze", ideaHandler.Analyze)
				r.With(deps.RateLimiter.AnalysisMiddleware()).Post("/expand", ideaHandler.Expand)
			})
		})

		r.Route("/api/users", func(r chi.Router) {
			r.Delete("/me", userHandler.Withdraw)
		})
	})

	return r
}
