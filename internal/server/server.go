// internal/server/server.go

package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"wimbli/internal/config"
	"wimbli/internal/domain/docstore"
	"wimbli/internal/domain/localstore"
	"wimbli/internal/server/handlers"
	chatService "wimbli/internal/service/chat"
	feedService "wimbli/internal/service/feed"
	profileService "wimbli/internal/service/profile"
)

// Dependencies are the services the HTTP server exposes
type Dependencies struct {
	Store    docstore.Store
	Local    localstore.Factory
	Auth     handlers.AuthService
	Profiles *profileService.Service
	Posts    *feedService.PostService
	Feeds    *feedService.Service
	Groups   *chatService.GroupService
	Chats    *chatService.Service
}

// Server represents the HTTP server
type Server struct {
	server  *http.Server
	router  *chi.Mux
	limiter *handlers.LimiterStore
}

// NewServer creates a new HTTP server
func NewServer(cfg config.Config, deps Dependencies, logger *slog.Logger) *Server {
	router := chi.NewRouter()

	// Middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(handlers.RequestLogger(logger))
	router.Use(middleware.Recoverer)

	// CORS configuration
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.CorsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", handlers.DeviceHeader},
		ExposedHeaders:   []string{"Link", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	limiter := handlers.NewLimiterStore(cfg.Messaging.RatePerSecond, cfg.Messaging.Burst, time.Minute)
	authenticate := handlers.Authenticate(deps.Auth)

	// Create handler dependencies
	authHandler := handlers.NewAuthHandler(deps.Auth)
	profileHandler := handlers.NewProfileHandler(deps.Profiles)
	postHandler := handlers.NewPostHandler(deps.Posts, deps.Store, logger)
	chatHandler := handlers.NewChatHandler(deps.Groups, deps.Chats, deps.Local)
	streamHandler := handlers.NewStreamHandler(deps.Feeds, deps.Chats, deps.Local, limiter, logger)

	// Routes
	router.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(cfg.Server.RequestTimeout))

		// Health check
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("OK"))
		})

		// API version
		r.Route("/v1", func(r chi.Router) {
			// Auth API
			r.Route("/auth", func(r chi.Router) {
				r.Post("/signup", authHandler.SignUp)
				r.Post("/signin", authHandler.SignIn)
				r.Post("/reset", authHandler.ResetPassword)

				r.Group(func(r chi.Router) {
					r.Use(authenticate)
					r.Post("/signout", authHandler.SignOut)
					r.Post("/reauthenticate", authHandler.Reauthenticate)
					r.Delete("/account", authHandler.DeleteAccount)
				})
			})

			r.Group(func(r chi.Router) {
				r.Use(authenticate)

				// Profile API
				r.Route("/profile", func(r chi.Router) {
					r.Get("/", profileHandler.GetProfile)
					r.Put("/", profileHandler.UpdateProfile)
					r.Put("/interests", profileHandler.SetInterests)
					r.Post("/picture", profileHandler.UploadPicture)
				})

				// Posts API
				r.Route("/posts", func(r chi.Router) {
					r.Post("/", postHandler.CreatePost)
					r.Get("/{id}", postHandler.GetPost)
					r.Put("/{id}", postHandler.UpdatePost)
				})

				// Saved posts API
				r.Route("/saved", func(r chi.Router) {
					r.Get("/", postHandler.ListSaved)
					r.Post("/{postID}/toggle", postHandler.ToggleSaved)
				})

				// Chats API
				r.Post("/chats/join", chatHandler.JoinChat)
				r.Route("/groups/{id}", func(r chi.Router) {
					r.Use(handlers.RequireDevice)
					r.With(handlers.RateLimit(limiter)).Post("/messages", chatHandler.SendMessage)
					r.Post("/messages/{mid}/like", chatHandler.ToggleLike)
					r.Post("/seen", chatHandler.MarkSeen)
				})
			})
		})
	})

	// WebSocket endpoints for live views
	router.Route("/ws", func(r chi.Router) {
		r.Use(authenticate)
		r.Get("/feed", streamHandler.Feed)
		r.With(handlers.RequireDevice).Get("/groups", streamHandler.Groups)
		r.With(handlers.RequireDevice).Get("/groups/{id}", streamHandler.Conversation)
	})

	router.Handle("/metrics", promhttp.Handler())

	// Create HTTP server
	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &Server{
		server:  httpServer,
		router:  router,
		limiter: limiter,
	}
}

// Handler returns the router, for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.limiter.Stop()
	return s.server.Shutdown(ctx)
}
