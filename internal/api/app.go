package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/gorilla/handlers"
	"github.com/webchat-dev/webchat/internal/config"
	"github.com/webchat-dev/webchat/internal/database"
	"github.com/webchat-dev/webchat/internal/server"
)

type ChatApp struct {
	log               *log.Logger
	db                database.ChatRepository
	srv               *http.Server
	cs                *server.ChatServer
	signingKey        []byte
	allowedOrigins    []string
	pageSize          int
	requireMembership bool
}

func NewChatApp(logger *log.Logger, cs *server.ChatServer, db database.ChatRepository, cfg *config.Config, statsMux *http.ServeMux) *ChatApp {
	s := &ChatApp{
		log:               logger,
		db:                db,
		cs:                cs,
		signingKey:        cfg.SigningKey,
		allowedOrigins:    cfg.AllowedOrigins,
		pageSize:          cfg.PageSize,
		requireMembership: cfg.RequireMembership,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.health)
	mux.HandleFunc("POST /api/auth/register", s.createAccount)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.HandleFunc("GET /api/auth/session", s.authMiddleware(s.session))
	mux.HandleFunc("GET /api/auth/logout", s.authMiddleware(s.logout))
	mux.HandleFunc("POST /api/rooms", s.authMiddleware(s.createRoom))
	mux.HandleFunc("POST /api/rooms/join", s.authMiddleware(s.joinRoom))
	mux.HandleFunc("GET /api/rooms", s.authMiddleware(s.getRoom))
	mux.HandleFunc("GET /api/subscriptions", s.authMiddleware(s.getSubscriptions))
	mux.HandleFunc("GET /api/messages", s.authMiddleware(s.getMessages))
	mux.HandleFunc("GET /ws", s.authMiddleware(s.serveWs))

	if statsMux != nil {
		mux.Handle("GET /debug/vars", statsMux)
	}

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-Id"}),
		handlers.AllowCredentials(),
	)(mux)

	h = handlers.CombinedLoggingHandler(os.Stdout, h)
	h = requestId(h)
	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.srv = srv
	return s
}

func (s *ChatApp) Start() error {
	s.log.Printf("starting server on %s\n", s.srv.Addr)
	return s.srv.ListenAndServe()
}

func (s *ChatApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
