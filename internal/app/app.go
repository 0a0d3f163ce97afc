package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/shortsmith/internal/asset"
	"github.com/hitoshi/shortsmith/internal/auth"
	"github.com/hitoshi/shortsmith/internal/config"
	"github.com/hitoshi/shortsmith/internal/database"
	"github.com/hitoshi/shortsmith/internal/handler"
	"github.com/hitoshi/shortsmith/internal/imagegen"
	"github.com/hitoshi/shortsmith/internal/llm"
	"github.com/hitoshi/shortsmith/internal/logger"
	"github.com/hitoshi/shortsmith/internal/metrics"
	"github.com/hitoshi/shortsmith/internal/middleware"
	"github.com/hitoshi/shortsmith/internal/repository"
	"github.com/hitoshi/shortsmith/internal/security"
	"github.com/hitoshi/shortsmith/internal/storage"
	"github.com/hitoshi/shortsmith/internal/tts"
	"github.com/hitoshi/shortsmith/internal/user"
	"github.com/hitoshi/shortsmith/internal/video"
	"github.com/hitoshi/shortsmith/internal/worker/cleanup"
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

	// .envで指定されたLOG_LEVELを反映する
	logger.SetupDefault(w)

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
			port = "8080"
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
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx := context.Background()
	log := slog.Default()

	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := database.Ping(ctx, db, 5*time.Second); err != nil {
		return err
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	identRepo := repository.NewPostgresIdentityRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	assetRepo := repository.NewPostgresAssetHistoryRepo(db)

	// 3. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	// 4. ストレージ
	store, closeStore, err := openObjectStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	// 5. セキュリティサービスの初期化
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewTextSanitizer()

	// 6. 生成ベンダーの初期化
	textGenerator := llm.NewOpenAIClient(llm.Config{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.OpenAIModel,
		Timeout: cfg.VendorTimeout,
	}, sanitizer, collector, log)

	imageGenerator, err := imagegen.NewGeminiGenerator(ctx, imagegen.GeminiConfig{
		APIKey:  cfg.GeminiAPIKey,
		Model:   cfg.ImageModel,
		Timeout: cfg.VendorTimeout,
	}, collector, log)
	if err != nil {
		return fmt.Errorf("failed to create image generator: %w", err)
	}
	imageService := imagegen.NewService(imageGenerator, store, assetRepo, collector, cfg.ImageModel, cfg.ImageGenConcurrency, log)

	// 読み上げは音声をストリームで中継するため、全体のタイムアウトを持つvendorClientは使わない
	synthesizer := tts.NewElevenLabsClient(tts.Config{
		APIKey:        cfg.ElevenLabsAPIKey,
		VoiceID:       cfg.ElevenLabsVoiceID,
		ModelID:       cfg.ElevenLabsModelID,
		HeaderTimeout: cfg.VendorTimeout,
	}, collector, log)

	vendorClient := &http.Client{Timeout: cfg.VendorTimeout}

	videoService, closeCache, err := newVideoService(cfg, vendorClient, ssrfGuard, store, collector, log)
	if err != nil {
		return err
	}
	defer closeCache()

	// 7. ドメインサービスの初期化
	oauthProvider := auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	})
	authService := auth.NewService(
		oauthProvider, userRepo, identRepo, sessionRepo,
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
	)
	assetService := asset.NewService(assetRepo, store, collector, log)
	userService := user.NewService(userRepo, sessionRepo, assetRepo, store)

	// 8. ルーターの構築
	cookies := middleware.CookieConfig{Domain: cfg.CookieDomain, Secure: cfg.CookieSecure}
	deps := &handler.RouterDeps{
		Logger:          log,
		SessionFinder:   sessionRepo,
		SessionExtender: authService,
		Freshness: middleware.FreshnessConfig{
			RefreshThreshold: cfg.SessionRefreshThreshold,
			CheckInterval:    cfg.SessionCheckInterval,
			SessionMaxAge:    cfg.SessionMaxAge,
			Cookies:          cookies,
		},
		Cookies:           cookies,
		CSRFConfig:        middleware.CSRFConfig{CookieSecure: cfg.CookieSecure, CookieDomain: cfg.CookieDomain},
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		// configはreq/min単位のため、PerMinuteConfigでreq/secに変換する
		RateLimiter: middleware.NewRateLimiter(middleware.PerMinuteConfig(cfg.RateLimitGeneral, cfg.RateLimitGeneration)),

		HealthChecker:  db,
		StatusRecorder: collector,
		MetricsHandler: metrics.Handler(reg),

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL:       cfg.BaseURL,
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		AssetService: assetService,

		TextGenerator: textGenerator,
		ImageService:  imageService,
		Synthesizer:   synthesizer,
		VideoService:  videoService,

		SSRFGuard:     ssrfGuard,
		Proxy:         handler.ProxyConfig{Timeout: cfg.ProxyTimeout, MaxSize: cfg.ProxyMaxSize},
		FileStore:     store,
		UploadMaxSize: cfg.UploadMaxSize,

		UserService: userService,
	}

	router := handler.NewRouter(deps)

	// 9. HTTPサーバーの起動
	// 生成系とプロキシはベンダーの応答を待つため、書き込みタイムアウトを長めに取る
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: max(cfg.VendorTimeout, cfg.ProxyTimeout) + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return serveUntilSignal(server)
}

// openObjectStore はGCSクライアントを生成し、ObjectStoreとクローズ関数を返す。
func openObjectStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (*storage.GCSStore, func(), error) {
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	store := storage.NewGCSStore(client, cfg.GCSBucket, cfg.GCSPublicBaseURL, storage.Signer{
		Email:      cfg.GCSSignerEmail,
		PrivateKey: cfg.GCSSignerPrivateKey,
	}, log)
	return store, func() { client.Close() }, nil
}

// newVideoService は設定済みのベンダーだけを登録した動画サービスを生成する。
// REDIS_URLが設定されている場合はタスク状態と所有者をRedisにキャッシュする。
func newVideoService(cfg *config.Config, client *http.Client, guard security.SSRFGuardService, store storage.ObjectStore, recorder metrics.VendorRecorder, log *slog.Logger) (*video.Service, func(), error) {
	var providers []video.Provider
	if cfg.KlingEnabled() {
		providers = append(providers, video.NewKlingClient(video.KlingConfig{
			AccessKey:  cfg.KlingAccessKey,
			SecretKey:  cfg.KlingSecretKey,
			BaseURL:    cfg.KlingBaseURL,
			Model:      cfg.KlingModel,
			HTTPClient: client,
		}, recorder, log))
	}
	if cfg.SeedanceEnabled() {
		providers = append(providers, video.NewSeedanceClient(video.SeedanceConfig{
			APIKey:     cfg.SeedanceAPIKey,
			BaseURL:    cfg.SeedanceBaseURL,
			Model:      cfg.SeedanceModel,
			HTTPClient: client,
		}, recorder, log))
	}
	if len(providers) == 0 {
		log.Warn("no video vendor is configured")
	}

	closeFn := func() {}
	var cache video.StatusCache
	if cfg.RedisURL != "" {
		rdb, err := video.NewRedisClient(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		cache = video.NewRedisStatusCache(rdb)
		closeFn = func() { rdb.Close() }
	}

	return video.NewService(providers, cache, guard, store, cfg.VideoStatusCacheTTL, log), closeFn, nil
}

// serveUntilSignal はサーバーを起動し、SIGINTまたはSIGTERMを受信したらグレースフルシャットダウンする。
func serveUntilSignal(server *http.Server) error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("HTTP server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down HTTP server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("HTTP server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 期限切れセッションと保持期間を過ぎたアセット履歴を定期的に削除する。
// /metricsはSERVER_PORTで公開する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	log := slog.Default()

	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := database.Ping(context.Background(), db, 5*time.Second); err != nil {
		return err
	}

	slog.Info("database connection established (worker)")

	// 2. リポジトリとストレージの初期化
	sessionRepo := repository.NewPostgresSessionRepo(db)
	assetRepo := repository.NewPostgresAssetHistoryRepo(db)

	store, closeStore, err := openObjectStore(context.Background(), cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	// 3. ジョブの登録
	scheduler := cleanup.NewScheduler(log)
	jobs := []cleanup.Job{
		cleanup.NewSessionJob(sessionRepo, collector, log),
		cleanup.NewAssetRetentionJob(assetRepo, store, cfg.AssetRetentionDays, collector, log),
	}
	for _, job := range jobs {
		if err := scheduler.Add(cfg.CleanupSchedule, job); err != nil {
			return err
		}
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	metricsServer := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           metrics.SetupMetricsRoute(reg),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server error", slog.String("error", err.Error()))
		}
	}()

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.String("schedule", cfg.CleanupSchedule),
		slog.Int("asset_retention_days", cfg.AssetRetentionDays),
	)

	// スケジューラをメインgoroutineで実行（ブロッキング）
	scheduler.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("metrics server shutdown failed", slog.String("error", err.Error()))
	}

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("version", uint64(version)),
	)
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
