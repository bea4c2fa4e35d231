package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
)

// RouterOptions configures the HTTP surface
type RouterOptions struct {
	AllowedOrigins []string
	// RateLimit is the number of requests per minute allowed per client IP.
	// Zero disables limiting.
	RateLimit int
}

// NewRouter mounts every route under /api
func NewRouter(h *Handler, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.loggingMiddleware)
	r.Use(securityHeaders)
	if opts.RateLimit > 0 {
		r.Use(httprate.Limit(opts.RateLimit, time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
				writeMessage(w, http.StatusTooManyRequests, "Too many requests from this IP, please try again later.")
			}),
		))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))

			r.Get("/health", h.Health)

			r.Route("/auth", func(r chi.Router) {
				r.Post("/signup", h.Signup)
				r.Post("/verify-otp", h.VerifyOTP)
				r.Post("/resend-otp", h.ResendOTP)
				r.Post("/login", h.Login)
				r.Post("/forgot-password", h.ForgotPassword)
				r.Post("/reset-password", h.ResetPassword)
				r.With(h.JWTAuthMiddleware).Get("/me", h.Me)
			})
		})

		r.Route("/stocks", func(r chi.Router) {
			// websocket connections outlive any request timeout
			if h.hub != nil {
				r.Get("/ws", h.Stream)
			}

			r.Group(func(r chi.Router) {
				r.Use(middleware.Timeout(30 * time.Second))
				r.Use(h.JWTAuthMiddleware)
				r.Get("/portfolio", h.GetPortfolio)
				r.Put("/portfolio/balance", h.SetBalance)
				r.Post("/place-order", h.PlaceOrder)
				r.Get("/orders", h.GetOrders)
				r.Get("/positions", h.GetPositions)
			})
		})
	})

	return r
}
