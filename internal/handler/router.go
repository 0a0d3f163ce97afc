package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/shortsmith/internal/llm"
	"github.com/hitoshi/shortsmith/internal/middleware"
	"github.com/hitoshi/shortsmith/internal/model"
	"github.com/hitoshi/shortsmith/internal/security"
	"github.com/hitoshi/shortsmith/internal/tts"
)

// authRoutes は/auth配下のOAuthフローとセッション操作を登録する。
// セッションミドルウェアの外側に置くため、各ハンドラーがCookieを直接読む。
func authRoutes(h *AuthHandler) func(chi.Router) {
	return func(r chi.Router) {
		r.Get("/google/login", h.Login)
		r.Get("/google/callback", h.Callback)
		r.Post("/logout", h.Logout)
		r.Get("/me", h.Me)
	}
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	SessionFinder     middleware.SessionFinder
	SessionExtender   middleware.SessionExtender
	Freshness         middleware.FreshnessConfig
	Cookies           middleware.CookieConfig
	CSRFConfig        middleware.CSRFConfig
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// 運用
	HealthChecker  HealthChecker
	StatusRecorder middleware.StatusRecorder
	MetricsHandler http.Handler

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// アセット履歴
	AssetService AssetServiceInterface

	// 生成
	TextGenerator llm.Generator
	ImageService  ImageServiceInterface
	Synthesizer   tts.Synthesizer
	VideoService  VideoServiceInterface

	// プロキシとファイル
	SSRFGuard     security.SSRFGuardService
	Proxy         ProxyConfig
	FileStore     FileStore
	UploadMaxSize int64

	// ユーザー
	UserService UserServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → Logging → Metrics → CORS
//	  → Session → Freshness → RateLimit(General) → CSRF
//	  → RateLimit(Generation)（生成系ルートのみ）
//
// 認証ルート（/auth/*）、/health、/metrics、/api/csrf-token はセッションチェーンの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// panicから変換された500もログとメトリクスに残すため、Recoveryはその内側に置く
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.StatusRecorder != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.StatusRecorder))
	}
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	assetHandler := NewAssetHandler(deps.AssetService)
	genHandler := NewGenerationHandler(deps.TextGenerator, deps.ImageService)
	narrationHandler := NewNarrationHandler(deps.Synthesizer)
	videoHandler := NewVideoHandler(deps.VideoService)
	userHandler := NewUserHandler(deps.UserService, deps.Cookies)

	// --- 認証不要のルート ---

	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}
	r.Handle("/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	r.Route("/auth", authRoutes(authHandler))

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder, deps.Cookies))
		if deps.SessionExtender != nil {
			r.Use(middleware.NewFreshnessMiddleware(deps.SessionExtender, deps.Freshness, nil))
		}
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		generation := deps.RateLimiter.GenerationMiddleware()

		// アセット履歴
		r.Route("/asset-history", func(r chi.Router) {
			r.Get("/", assetHandler.List)
			r.Post("/", assetHandler.Create)
			r.Get("/recent", assetHandler.Recent)
			r.Get("/search", assetHandler.Search)
			r.Get("/stats", assetHandler.Stats)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", assetHandler.Get)
				r.Patch("/", assetHandler.Update)
				r.Delete("/", assetHandler.Delete)
			})
		})

		r.Route("/api", func(r chi.Router) {
			// テキスト生成
			r.With(generation).Post("/scenes", genHandler.Scenes)
			r.With(generation).Post("/captions", genHandler.Captions)
			r.With(generation).Post("/replies", genHandler.Replies)

			// 画像生成
			r.Route("/image-gen", func(r chi.Router) {
				r.Post("/prompt", genHandler.ImagePrompt)
				r.With(generation).Post("/generate", genHandler.GenerateImage)
				r.With(generation).Post("/batch", genHandler.GenerateImageBatch)
			})

			// ナレーション
			r.With(generation).Post("/narration", narrationHandler.Narrate)

			// 動画生成（完了はクライアントがポーリングする）
			for _, vendor := range []model.VideoVendor{model.VideoVendorKling, model.VideoVendorSeedance} {
				r.Route("/"+string(vendor), func(r chi.Router) {
					r.With(generation).Post("/", videoHandler.Submit(vendor))
					r.Get("/{id}", videoHandler.Status(vendor))
				})
			}

			// プロキシとファイル
			if deps.SSRFGuard != nil {
				proxyHandler := NewProxyHandler(deps.SSRFGuard, deps.Proxy)
				r.Get("/proxy", proxyHandler.Proxy)
			}
			if deps.FileStore != nil {
				fileHandler := NewFileHandler(deps.FileStore, deps.UploadMaxSize)
				r.Post("/uploads", fileHandler.Upload)
				r.Get("/files/*", fileHandler.Serve)
			}

			// ユーザー管理
			r.Delete("/users/me", userHandler.Withdraw)
		})
	})

	return r
}
