package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/screen3/screen3/internal/auth"
	"github.com/screen3/screen3/internal/events"
	"github.com/screen3/screen3/internal/httputil"
	"github.com/screen3/screen3/internal/ratelimit"
	"github.com/screen3/screen3/internal/space"
	"github.com/screen3/screen3/internal/video"
)

const healthPath = "/api/health"

type Pinger interface {
	Ping(ctx context.Context) error
}

// PingerFunc adapts a function to Pinger.
type PingerFunc func(ctx context.Context) error

func (f PingerFunc) Ping(ctx context.Context) error { return f(ctx) }

type Config struct {
	DB             video.DB
	Pinger         Pinger
	Redis          Pinger
	JWTSecret      string
	BaseURL        string
	AllowedOrigins []string
	MaxUploadBytes int64
	TempVideoDir   string
	PinStore       auth.PinStore
	Publisher      events.Publisher
	Locator        auth.Locator
	Pipeline       video.Launcher
}

type Server struct {
	router       chi.Router
	pinger       Pinger
	redis        Pinger
	authHandler  *auth.Handler
	spaceHandler *space.Handler
	videoHandler *video.Handler
	limiters     []*ratelimit.Limiter
}

func New(cfg Config) (*Server, error) {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(slogMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders(SecurityConfig{BaseURL: cfg.BaseURL}))
	r.Use(cors(cfg.AllowedOrigins))

	s := &Server{router: r, pinger: cfg.Pinger, redis: cfg.Redis}

	if cfg.DB != nil {
		if cfg.JWTSecret == "" {
			return nil, errors.New("JWT_SECRET is required")
		}

		secureCookies := strings.HasPrefix(cfg.BaseURL, "https://")
		s.authHandler = auth.NewHandler(cfg.DB, cfg.JWTSecret, secureCookies)
		if cfg.PinStore != nil {
			s.authHandler.SetPinStore(cfg.PinStore)
		}
		if cfg.Publisher != nil {
			s.authHandler.SetPublisher(cfg.Publisher)
		}
		if cfg.Locator != nil {
			s.authHandler.SetLocator(cfg.Locator)
		}

		s.spaceHandler = space.NewHandler(cfg.DB)

		s.videoHandler = video.NewHandler(cfg.DB, cfg.TempVideoDir, cfg.MaxUploadBytes)
		if cfg.Pipeline != nil {
			s.videoHandler.SetPipeline(cfg.Pipeline)
		}
		if cfg.Publisher != nil {
			s.videoHandler.SetPublisher(cfg.Publisher)
		}
	}

	s.routes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close stops the rate limiters' background goroutines.
func (s *Server) Close() {
	for _, l := range s.limiters {
		l.Stop()
	}
}

func (s *Server) newLimiter(rps float64, burst int) *ratelimit.Limiter {
	l := ratelimit.NewLimiter(rps, burst)
	s.limiters = append(s.limiters, l)
	return l
}

func (s *Server) routes() {
	s.router.Get(healthPath, s.handleHealth)
	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteError(w, http.StatusNotFound, "not found")
	})
	s.router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	if s.authHandler == nil {
		return
	}

	authLimiter := s.newLimiter(0.5, 5)
	s.router.Route("/api/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(authLimiter.Middleware)
			r.Post("/register", s.authHandler.Register)
			r.Post("/login", s.authHandler.Login)
			r.Post("/pin", s.authHandler.RequestPin)
			r.Post("/pin/verify", s.authHandler.VerifyPin)
			r.Post("/refresh", s.authHandler.Refresh)
			r.Post("/logout", s.authHandler.Logout)
		})
		r.With(s.authHandler.Middleware).Get("/sessions", s.authHandler.Sessions)
	})

	s.router.With(s.authHandler.Middleware).Get("/api/user/me", s.authHandler.Me)

	s.router.Route("/api/spaces", func(r chi.Router) {
		r.Use(s.authHandler.Middleware)
		r.Post("/", s.spaceHandler.Create)
		r.Get("/", s.spaceHandler.List)
		r.Post("/{id}/members", s.spaceHandler.AddMember)
	})

	videoLimiter := s.newLimiter(5, 20)
	s.router.Route("/api/video", func(r chi.Router) {
		r.Use(videoLimiter.Middleware)
		r.Use(s.authHandler.Middleware)
		r.Post("/save", s.videoHandler.Save)
		r.Post("/upload", s.videoHandler.Upload)
		r.Get("/list", s.videoHandler.List)
		r.Get("/{id}", s.videoHandler.Show)
		r.Patch("/{id}", s.videoHandler.Update)
		r.Put("/{id}/collaborators", s.videoHandler.SetCollaborators)
	})
}

type healthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		if err := s.pinger.Ping(r.Context()); err != nil {
			httputil.WriteJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unhealthy", Error: "database unreachable"})
			return
		}
	}
	if s.redis != nil {
		if err := s.redis.Ping(r.Context()); err != nil {
			httputil.WriteJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unhealthy", Error: "redis unreachable"})
			return
		}
	}
	httputil.WriteJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}
