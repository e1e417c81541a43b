// Package api provides the HTTP server of the reference book server: the
// books and notes endpoints the sync engine talks to, image uploads and health.
package api

import (
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/listenupapp/shelfsync/internal/assets"
	"github.com/listenupapp/shelfsync/internal/ratelimit"
	"github.com/listenupapp/shelfsync/internal/remote"
	"github.com/listenupapp/shelfsync/internal/service"
)

// UploadsPath is where stored images are served from.
const UploadsPath = "/uploads"

// Server holds dependencies for HTTP handlers.
type Server struct {
	books   *service.BookService
	uploads *assets.DiskStore
	limiter *ratelimit.KeyedRateLimiter
	router  *chi.Mux
	api     huma.API
	logger  *slog.Logger
}

// NewServer creates a new HTTP server with all routes configured.
// A nil limiter disables rate limiting; a nil uploads store disables /upload.
func NewServer(books *service.BookService, uploads *assets.DiskStore, limiter *ratelimit.KeyedRateLimiter, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	router := chi.NewRouter()
	s := &Server{
		books:   books,
		uploads: uploads,
		limiter: limiter,
		router:  router,
		logger:  logger,
	}
	s.setupMiddleware()

	humaConfig := huma.DefaultConfig("ShelfSync Book Server", "1.0.0")
	humaConfig.Info.Description = "Books and notes storage for ShelfSync clients."
	s.api = humachi.New(router, humaConfig)
	RegisterErrorHandler()

	s.registerHealthRoutes()
	s.registerBookRoutes()
	s.registerNoteRoutes()
	s.registerUploadRoutes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// API returns the huma API for tests and spec generation.
func (s *Server) API() huma.API {
	return s.api
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", remote.HeaderIdempotencyKey, remote.HeaderClientID},
		MaxAge:         300,
	}))
	if s.limiter != nil {
		s.router.Use(RateLimitMiddleware(s.limiter, s.logger))
	}
}

// requestLogger logs each request at debug level with its outcome.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"client_id", r.Header.Get(remote.HeaderClientID),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
