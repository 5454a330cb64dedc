package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/npezzotti/go-teamchat/internal/config"
	"github.com/npezzotti/go-teamchat/internal/database"
	"github.com/npezzotti/go-teamchat/internal/realtime"
	"github.com/npezzotti/go-teamchat/internal/stats"
)

type TeamChatApp struct {
	log            *log.Logger
	db             database.TeamChatRepository
	mux            *http.Server
	rt             *realtime.RealtimeServer
	stats          stats.StatsProvider
	signingKey     []byte
	allowedOrigins []string
}

func NewTeamChatApp(mux *http.ServeMux, logger *log.Logger, rt *realtime.RealtimeServer,
	db database.TeamChatRepository, su stats.StatsProvider, cfg *config.Config) *TeamChatApp {
	s := &TeamChatApp{
		log:            logger,
		db:             db,
		rt:             rt,
		stats:          su,
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.Handle("GET /ws", s.authMiddleware(s.serveWs))
	mux.Handle("GET /api/presence", s.authMiddleware(s.getPresence))
	mux.HandleFunc("GET /healthz", s.healthz)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *TeamChatApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *TeamChatApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
