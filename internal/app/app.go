package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/ideaarchitect/internal/analysis"
	"github.com/hitoshi/ideaarchitect/internal/auth"
	"github.com/hitoshi/ideaarchitect/internal/config"
	"github.com/hitoshi/ideaarchitect/internal/database"
	"github.com/hitoshi/ideaarchitect/internal/handler"
	"github.com/hitoshi/ideaarchitect/internal/idea"
	"github.com/hitoshi/ideaarchitect/internal/logger"
	"github.com/hitoshi/ideaarchitect/internal/metrics"
	"github.com/hitoshi/ideaarchitect/internal/middleware"
	"github.com/hitoshi/ideaarchitect/internal/repository"
	"github.com/hitoshi/ideaarchitect/internal/security"
	"github.com/hitoshi/ideaarchitect/internal/token"
	"github.com/hitoshi/ideaarchitect/internal/user"
	"github.com/hitoshi/ideaarchitect/internal/worker/cleanup"
	"github.com/hitoshi/ideaarchitect/internal/worker/enrich"
)

const (
	defaultServerPort = "3001"
	shutdownTimeout   = 30 * time.Second
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = defaultServerPort
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg, ParseMigrateAction(args))
	default:
		return runServe(ctx, cfg)
	}
}

// openDatabase は設定のプール値でDB接続を開き、疎通確認を行う。
func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	return database.Connect(ctx, cfg.DatabaseURL, database.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーとバックグラウンド分析のワーカープールを起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	// 1. DB接続
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 2. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 3. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	ideaRepo := repository.NewPostgresIdeaRepo(db)
	var sessionRepo repository.SessionRepository = repository.NewPostgresSessionRepo(db)

	// REDIS_URLが設定されている場合のみセッション参照をキャッシュする
	if cfg.RedisURL != "" {
		redisClient, err := repository.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer redisClient.Close()

		sessionRepo = repository.NewCachedSessionRepo(sessionRepo, redisClient, cfg.SessionCacheTTL)
		slog.Info("session cache enabled", slog.Duration("ttl", cfg.SessionCacheTTL))
	}

	// 4. トークン・セキュリティ・分析プロバイダー
	codec := token.NewCodec(cfg.JWTSecret, cfg.JWTExpiresIn)
	sanitizer := security.NewTextSanitizer()
	provider := analysis.NewOpenAIProvider(analysis.OpenAIConfig{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.OpenAIModel,
		Timeout: cfg.AnalysisTimeout,
	}, nil, sanitizer)

	if cfg.OpenAIAPIKey == "" {
		slog.Warn("OPENAI_API_KEY is not set; AI analysis requests will fail")
	}

	// 5. バックグラウンド分析のワーカープール
	pool := enrich.NewPool(enrich.Config{
		Workers:   cfg.EnrichWorkers,
		QueueSize: cfg.EnrichQueueSize,
		Timeout:   cfg.AnalysisTimeout,
	}, slog.Default(), collector)
	pool.Start()

	// 6. ドメインサービスの初期化
	authService := auth.NewService(userRepo, sessionRepo, codec, collector, auth.ServiceConfig{
		SessionMaxAge: cfg.SessionMaxAge,
		BcryptCost:    cfg.BcryptCost,
	})
	lifecycle := idea.NewLifecycle(ideaRepo, provider, pool, collector, slog.Default(), cfg.AnalysisTimeout)
	ideaService := idea.NewService(ideaRepo, lifecycle, sanitizer)
	userService := user.NewService(userRepo, sessionRepo, ideaRepo, slog.Default())

	// 7. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitAnalysis),
	)
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		AuthGuard:         middleware.NewAuthGuard(sessionRepo, codec, time.Now, collector),
		RateLimiter:       rateLimiter,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		Logger:            slog.Default(),
		MetricsHandler:    metrics.Handler(registry),

		AuthService: handler.NewAuthServiceAdapter(authService),
		IdeaService: handler.NewIdeaServiceAdapter(ideaService),
		UserService: handler.NewUserServiceAdapter(userService),
	})

	// 8. HTTPサーバーの起動
	// WriteTimeoutは明示的なAI分析の待ち時間を含めて設定する
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.AnalysisTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down API server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		// 新規リクエストを止めてから、投入済みの分析ジョブを待つ
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		if err := pool.Shutdown(shutdownCtx); err != nil {
			slog.Warn("enrich pool did not drain before shutdown timeout",
				slog.Int("queued", pool.QueueLength()),
				slog.String("error", err.Error()),
			)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 期限切れセッションのクリーンアップジョブを定期実行する。
// ctxがキャンセルされるとシャットダウンする。
func runWorker(ctx context.Context, cfg *config.Config) error {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	// ワーカーはスクレイプ対象ではないため、メトリクスはプロセス内のレジストリに記録するのみ
	collector := metrics.NewCollector(prometheus.NewRegistry())

	sessionRepo := repository.NewPostgresSessionRepo(db)
	job := cleanup.NewSessionPurgeJob(sessionRepo, slog.Default(), collector)

	slog.Info("worker starting",
		slog.Duration("session_cleanup_interval", cfg.SessionCleanupInterval),
	)

	// メインgoroutineで実行（ブロッキング）
	job.Start(ctx, cfg.SessionCleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを操作する。
// upはすべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config, action MigrateAction) error {
	slog.Info("running database migrations",
		slog.String("action", string(action)),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	switch action {
	case MigrateDown:
		if err := database.RollbackMigration(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration rollback failed: %w", err)
		}
		slog.Info("rolled back the latest migration")
	case MigrateStatus:
		status, err := database.Status(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("migration status failed: %w", err)
		}
		slog.Info("migration status",
			slog.Bool("applied", status.Applied),
			slog.Uint64("version", uint64(status.Version)),
			slog.Bool("dirty", status.Dirty),
		)
	default:
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		slog.Info("database migrations completed successfully")
	}

	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
