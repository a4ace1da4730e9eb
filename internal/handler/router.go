package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/authman/internal/metrics"
	"github.com/hitoshi/authman/internal/middleware"
)

// HealthChecker はヘルスチェックのためのDB疎通確認インターフェース。
// *sql.DB がそのまま実装を満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger         *slog.Logger
	HealthChecker  HealthChecker
	RateLimiter    *middleware.RateLimiter
	Metrics        metrics.MetricsCollector
	MetricsHandler http.Handler

	IntentService     IntentServiceInterface
	CredentialService CredentialServiceInterface
	SessionService    SessionServiceInterface
	Cleanup           CleanupRunner
}

// NewRouter は全RPCエンドポイントのルーティングとミドルウェアチェーンを構成した
// chi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RecoveryMiddleware → LoggingMiddleware → RateLimitMiddleware(GeneralMiddleware)
//
// /health と /metrics はレート制限の外に配置する。
// インテント発行RPCにはメール送信を伴うため、発行専用レート制限を追加で適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.Metrics))

	authHandler := NewAuthHandler(
		deps.IntentService,
		deps.CredentialService,
		deps.SessionService,
		deps.Cleanup,
		deps.Metrics,
	)

	// --- 運用エンドポイント ---

	r.Get("/health", newHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- RPCエンドポイント ---

	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Route("/rpc", func(r chi.Router) {
			r.Post("/fetch_account", authHandler.FetchAccount)
			r.Post("/login_with_email_login", authHandler.LoginWithEmailLogin)
			r.Post("/login_with_new_pass_login", authHandler.LoginWithNewPassLogin)
			r.Post("/create_with_password", authHandler.CreateWithPassword)
			r.Post("/login_with_password", authHandler.LoginWithPassword)
			r.Post("/cleanup_db", authHandler.CleanupDB)

			// インテント発行はメール送信を伴うため、発行専用レート制限を追加
			r.With(deps.RateLimiter.IntentCreationMiddleware()).
				Post("/create_email_login_intent", authHandler.CreateEmailLoginIntent)
			r.With(deps.RateLimiter.IntentCreationMiddleware()).
				Post("/create_new_pass_login_intent", authHandler.CreateNewPassLoginIntent)
		})
	})

	return r
}

// newHealthHandler はDB疎通を確認するヘルスチェックハンドラーを返す。
// GET /health
func newHealthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := checker.PingContext(r.Context()); err != nil {
			slog.Error("health check failed", slog.String("error", err.Error()))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy"})
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}
