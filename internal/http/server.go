package httpapi

import (
	"context"
	"net/http"
	"time"

	"linova-go/internal/config"
	"linova-go/internal/logger"
	"linova-go/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jmoiron/sqlx"
)

type Server struct {
	DB      *sqlx.DB
	Config  config.Config
	Tokens  services.TokenService
	Changes *services.ChangeHub
	// Publisher receives every table mutation. It is the hub itself on a
	// single instance, or the Redis bus when instances share changes.
	Publisher services.Publisher
	Log       *logger.Logger
}

func NewServer(db *sqlx.DB, cfg config.Config, hub *services.ChangeHub, publisher services.Publisher, log *logger.Logger) *Server {
	tokens := services.TokenService{
		Secret:     []byte(cfg.JWTSecret),
		Issuer:     cfg.JWTIssuer,
		AccessTTL:  time.Duration(cfg.AccessTTLSeconds) * time.Second,
		RefreshTTL: time.Duration(cfg.RefreshTTLSeconds) * time.Second,
	}
	if log == nil {
		log = logger.Nop()
	}
	if publisher == nil && hub != nil {
		publisher = hub
	}
	return &Server{
		DB:        db,
		Config:    cfg,
		Tokens:    tokens,
		Changes:   hub,
		Publisher: publisher,
		Log:       log,
	}
}

func (s *Server) Router(ctx context.Context) http.Handler {
	r := chi.NewRouter()
	r.Use(RequestLogger(s.Log))
	if len(s.Config.CorsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.Config.CorsOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Prefer"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	r.Route("/auth/v1", func(auth chi.Router) {
		auth.Post("/signup", s.SignUp)
		auth.Post("/token", s.Token)
		auth.Post("/recover", s.Recover)
		auth.Post("/verify", s.Verify)

		auth.Group(func(me chi.Router) {
			me.Use(WithAuth(s.Tokens))
			me.Post("/logout", s.Logout)
			me.Get("/user", s.GetUser)
			me.Put("/user", s.UpdateUser)
			me.Delete("/user", s.DeleteUser)
		})
	})

	r.Route("/rest/v1/{table}", func(tables chi.Router) {
		tables.Use(WithOptionalAuth(s.Tokens))
		tables.Get("/", s.SelectTable)
		tables.Post("/", s.UpsertTable)
		tables.Delete("/", s.DeleteTable)
	})

	r.Get("/realtime/v1/websocket", s.RealtimeSocket)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return r
}
