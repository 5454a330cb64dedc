package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/npezzotti/go-teamchat/internal/api"
	"github.com/npezzotti/go-teamchat/internal/config"
	"github.com/npezzotti/go-teamchat/internal/database"
	"github.com/npezzotti/go-teamchat/internal/events"
	"github.com/npezzotti/go-teamchat/internal/realtime"
	"github.com/npezzotti/go-teamchat/internal/stats"
)

const defaultSigningKey = "wT0phFUusHZIrDhL9bUKPUhwaxKhpi/SaI6PtgB+MgU="

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	addr           string
	dsn            string
	signingKey     string
	allowedOrigins stringSliceFlag
)

func main() {
	flag.StringVar(&addr, "addr", "localhost:8000", "server address")
	flag.StringVar(&dsn, "dsn", "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable", "database connection string")
	flag.StringVar(&signingKey, "signing-key", defaultSigningKey, "base64 encoded signing key shared with the auth service")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.Parse()

	logger := log.New(os.Stderr, "[teamchat] ", log.LstdFlags)

	cfg, err := config.NewConfig(addr, dsn, signingKey, allowedOrigins)
	if err != nil {
		logger.Fatal("config:", err)
	}

	dbConn, err := database.NewPgTeamChatRepository(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db open:", err)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Fatal("db close:", err)
		}
	}()

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	realtimeServer, err := realtime.NewRealtimeServer(logger, statsUpdater, cfg)
	if err != nil {
		logger.Fatal("new realtime server:", err)
	}

	listener, err := events.NewListener(cfg.DatabaseDSN, logger, realtimeServer.HandleChangeEvent)
	if err != nil {
		logger.Fatal("change-event listener:", err)
	}

	srv := api.NewTeamChatApp(mux, logger, realtimeServer, dbConn, statsUpdater, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	go realtimeServer.Run()
	go listener.Run()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("HTTP server shutdown:", err)
	}

	logger.Println("shutting down change-event listener...")
	if err := listener.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("change-event listener shutdown:", err)
	}

	logger.Println("shutting down realtime server...")
	if err := realtimeServer.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("realtime server shutdown:", err)
	}

	logger.Println("shutdown complete")
}
