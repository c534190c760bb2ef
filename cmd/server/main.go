package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/webchat-dev/webchat/internal/api"
	"github.com/webchat-dev/webchat/internal/config"
	"github.com/webchat-dev/webchat/internal/database"
	"github.com/webchat-dev/webchat/internal/server"
	"github.com/webchat-dev/webchat/internal/stats"
)

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

var (
	addr              string
	dsn               string
	signingKey        string
	allowedOrigins    stringSliceFlag
	pageSize          int
	requireMembership bool
	skipMigrations    bool
)

func main() {
	// missing .env is fine, flags and real env still apply
	godotenv.Load()

	defaultPageSize := config.DefaultPageSize
	if v, err := strconv.Atoi(os.Getenv("WEBCHAT_PAGE_SIZE")); err == nil {
		defaultPageSize = v
	}

	flag.StringVar(&addr, "addr", envOr("WEBCHAT_ADDR", "localhost:8000"), "server address")
	flag.StringVar(&dsn, "dsn", envOr("WEBCHAT_DSN", "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable"), "database connection string")
	flag.StringVar(&signingKey, "signing-key", os.Getenv("WEBCHAT_SIGNING_KEY"), "base64 encoded signing key")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.IntVar(&pageSize, "page-size", defaultPageSize, "number of messages per history page")
	flag.BoolVar(&requireMembership, "require-membership", true, "require room membership to subscribe")
	flag.BoolVar(&skipMigrations, "skip-migrations", false, "do not run database migrations on startup")
	flag.Parse()

	if len(allowedOrigins) == 0 {
		if origins := os.Getenv("WEBCHAT_ALLOWED_ORIGINS"); origins != "" {
			allowedOrigins.Set(origins)
		}
	}

	logger := log.New(os.Stderr, "[webchat] ", log.LstdFlags)

	cfg, err := config.NewConfig(addr, dsn, signingKey, allowedOrigins, pageSize, requireMembership)
	if err != nil {
		logger.Fatal("config: ", err)
	}

	dbConn, err := database.NewPgChatRepository(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db open: ", err)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Fatal("db close: ", err)
		}
	}()

	if !skipMigrations {
		if err := dbConn.Migrate(); err != nil {
			logger.Fatal("migrate: ", err)
		}
	}

	statsMux := http.NewServeMux()
	statsUpdater := stats.NewStatsUpdater(statsMux)

	chatServer := server.NewChatServer(dbConn, logger, statsUpdater, cfg)

	srv := api.NewChatApp(logger, chatServer, dbConn, cfg, statsMux)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	go chatServer.Run()

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

	logger.Println("shutting down chat server...")
	if err := chatServer.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("chat server shutdown:", err)
	}

	logger.Println("shutdown complete")
}
