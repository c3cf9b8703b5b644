package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-wallet-auth/internal/application/auth"
	"github.com/go-wallet-auth/internal/application/authorizer"
	"github.com/go-wallet-auth/internal/application/signature"
	"github.com/go-wallet-auth/internal/application/user"
	"github.com/go-wallet-auth/internal/config"
	"github.com/go-wallet-auth/internal/transport/http/handler"
	appmiddleware "github.com/go-wallet-auth/internal/transport/http/middleware"
	"golang.org/x/time/rate"
)

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	if cfg.TrustProxyHeaders {
		r.Use(chimiddleware.RealIP)
	}
	r.Use(appmiddleware.RequestContext)
	r.Use(appmiddleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(cfg.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true, // refresh cookie
		MaxAge:           300,
	}))

	sensitiveRL := appmiddleware.NewRateLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)

	authSvc := auth.NewService(auth.ServiceDeps{
		UserRepo:      deps.UserRepo,
		Tokens:        deps.Tokens,
		Verifier:      signature.NewVerifier(),
		Validator:     deps.Validator,
		Events:        deps.Events,
		UnverifiedTTL: cfg.UnverifiedUserTTL,
		VerifiedTTL:   cfg.VerifiedUserTTL,
	})
	userSvc := user.NewService(deps.UserRepo)
	authz := authorizer.New(deps.Tokens)

	healthH := handler.NewHealthHandler()
	authH := handler.NewAuthHandler(authSvc, handler.CookieConfig{
		Name:   cfg.RefreshCookieName,
		Domain: cfg.CookieDomain,
		Path:   cfg.CookiePath,
		MaxAge: cfg.RefreshTokenExpiry,
	}, cfg.AccessTokenExpiry)
	userH := handler.NewUserHandler(userSvc)

	r.Route("/v1", func(r chi.Router) {
		// ── Public routes (no auth) ──────────────────────────────────────────
		r.Get("/health-check/{action}", healthH.Ping)
		r.Post("/health-check/{action}", healthH.Ping)
		r.With(sensitiveRL.Limit).Post("/users", authH.CreateUser)
		r.With(sensitiveRL.Limit).Get("/users/{walletId}/nonce", authH.GetNonce)
		r.With(sensitiveRL.Limit).Post("/auth/login", authH.Login)
		r.With(sensitiveRL.Limit).Post("/auth/refresh", authH.Refresh)
		r.Post("/auth/logout", authH.Logout)

		// ── Authorized routes ────────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(appmiddleware.Authorize(authz))

			r.Get("/users/me", userH.Me)

			// Admin-only routes
			r.Group(func(r chi.Router) {
				r.Use(appmiddleware.RequireAdmin)

				r.Get("/users/{userId}", userH.Get)
				r.Put("/users/{userId}/admin", userH.SetAdmin)
			})
		})
	})

	return r
}
