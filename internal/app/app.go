package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/tourneyreg/internal/admin"
	"github.com/hitoshi/tourneyreg/internal/auth"
	"github.com/hitoshi/tourneyreg/internal/config"
	"github.com/hitoshi/tourneyreg/internal/database"
	"github.com/hitoshi/tourneyreg/internal/handler"
	"github.com/hitoshi/tourneyreg/internal/logger"
	"github.com/hitoshi/tourneyreg/internal/mail"
	"github.com/hitoshi/tourneyreg/internal/metrics"
	"github.com/hitoshi/tourneyreg/internal/middleware"
	"github.com/hitoshi/tourneyreg/internal/repository"
	"github.com/hitoshi/tourneyreg/internal/security"
	"github.com/hitoshi/tourneyreg/internal/sms"
	"github.com/hitoshi/tourneyreg/internal/token"
	"github.com/hitoshi/tourneyreg/internal/worker/cleanup"
)

const (
	shutdownTimeout = 30 * time.Second
	dbPingTimeout   = 5 * time.Second
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// .env でLOG_LEVELが指定されている場合に備えて設定値で再初期化する
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("PORT")
		if port == "" {
			port = "3000"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.Port),
		slog.String("app_base_url", cfg.AppBaseURL),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg, MigrateDirectionArg(args))
	default:
		return runServe(cfg)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := database.Ping(context.Background(), db, dbPingTimeout); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

// newAttestationStore は電話番号確認記録の保存先を返す。
// REDIS_URLが設定されていればRedis、なければPostgreSQLを使う。
// 返却するcloseはRedis接続を閉じる（PostgreSQLの場合は何もしない）。
func newAttestationStore(ctx context.Context, cfg *config.Config, db *sql.DB) (repository.PhoneAttestationRepository, func(), error) {
	if cfg.RedisURL == "" {
		return repository.NewPostgresPhoneAttestationRepo(db), func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, dbPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	slog.Info("phone attestations stored in redis", slog.String("addr", opts.Addr))
	return repository.NewRedisPhoneAttestationRepo(client), func() { client.Close() }, nil
}

// newMailer はSMTPが設定されていればSMTP送信、なければログ出力のSenderを返す。
func newMailer(cfg *config.Config) mail.Sender {
	if !cfg.MailEnabled() {
		slog.Warn("SMTP_HOST is not set; password reset links will only be logged")
		return mail.NewLogSender(slog.Default())
	}
	return mail.NewSMTPSender(mail.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.MailFrom,
		LinkTTL:  cfg.ResetTokenTTL,
	}, slog.Default())
}

// newRegistry はアプリケーション用のPrometheusレジストリを生成する。
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx := context.Background()

	// 1. DB接続
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	resetRepo := repository.NewPostgresPasswordResetRepo(db)
	attestations, closeAttestations, err := newAttestationStore(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer closeAttestations()

	// 3. セキュリティ・トークン
	sanitizer := security.NewTextSanitizer()
	hasher := security.NewBcryptHasher(cfg.BcryptCost)
	issuer := token.NewIssuer(cfg.JWTSecret, cfg.UserTokenTTL, cfg.AdminTokenTTL, nil)

	// 4. メトリクス
	reg := newRegistry()
	collector := metrics.NewCollector(reg)

	// 5. 外部サービス
	gateway := sms.NewTwilioGateway(
		security.NewOutboundClient(cfg.TwilioTimeout),
		sms.TwilioConfig{
			AccountSID: cfg.TwilioAccountSID,
			AuthToken:  cfg.TwilioAuthToken,
			ServiceSID: cfg.TwilioVerifySID,
		},
		slog.Default(),
	)
	mailer := newMailer(cfg)

	// 6. ドメインサービスの初期化
	smsService := sms.NewService(gateway, attestations, cfg.PhoneAttestationTTL, collector, slog.Default())
	authService := auth.NewService(auth.Deps{
		Users:        userRepo,
		Resets:       resetRepo,
		Attestations: attestations,
		Hasher:       hasher,
		Tokens:       issuer,
		Sanitizer:    sanitizer,
		Mailer:       mailer,
		Events:       collector,
		Logger:       slog.Default(),
	}, auth.ServiceConfig{
		ResetTokenTTL:           cfg.ResetTokenTTL,
		AppBaseURL:              cfg.AppBaseURL,
		RequirePhoneAttestation: cfg.RequirePhoneAttestation,
	})
	adminService := admin.NewService(
		userRepo, issuer, sanitizer,
		admin.Credentials{Login: cfg.AdminLogin, Password: cfg.AdminPassword},
		collector, slog.Default(),
	)

	// 7. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(rateLimiterConfig(cfg), collector)
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:         slog.Default(),
		TokenVerifier:  issuer,
		CORS:           corsConfig(cfg),
		RateLimiter:    rateLimiter,
		Metrics:        collector,
		MetricsHandler: metrics.Handler(reg),
		HealthChecker:  db,
		AuthService:    authService,
		SMSService:     smsService,
		AdminService:   adminService,
	})

	// 8. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen error: %w", err)
	case <-stop:
	}
	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// rateLimiterConfig は設定値（req/min/IP）からレート制限設定を組み立てる。
func rateLimiterConfig(cfg *config.Config) middleware.RateLimiterConfig {
	rlCfg := middleware.DefaultRateLimiterConfig()
	rlCfg.SMSRate, rlCfg.SMSBurst = middleware.PerMinute(cfg.RateLimitSMS)
	rlCfg.AuthRate, rlCfg.AuthBurst = middleware.PerMinute(cfg.RateLimitAuth)
	return rlCfg
}

// corsConfig は許可オリジンの設定を組み立てる。未指定の場合は既定の一覧を使う。
func corsConfig(cfg *config.Config) middleware.CORSConfig {
	origins := cfg.CORSAllowedOrigins
	if len(origins) == 0 {
		origins = middleware.DefaultAllowedOrigins
	}
	return middleware.CORSConfig{
		AllowedOrigins:   origins,
		AllowGitHubPages: cfg.CORSAllowGitHubPages,
	}
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、クリーンアップジョブを定期実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	cleanupJob := cleanup.NewCleanupJob(db, slog.Default(), cfg.ResetRetention)
	// Redis保存時はTTLで失効するためphone_attestationsは対象外
	cleanupJob.PurgeAttestations = cfg.RedisURL == ""

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
		slog.Duration("reset_retention", cfg.ResetRetention),
	)

	cleanupJob.RunEvery(ctx, cfg.CleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// directionは "up"（デフォルト）または "down"。
func runMigrate(cfg *config.Config, direction string) error {
	dir, err := database.ParseDirection(direction)
	if err != nil {
		return err
	}

	slog.Info("running database migrations",
		slog.String("direction", string(dir)),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.Migrate(cfg.DatabaseURL, dir); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
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
// URLとして解釈できない場合は全体を伏せる。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	if u.User != nil {
		u.User = url.User("***")
	}
	u.RawQuery = ""
	return u.String()
}
