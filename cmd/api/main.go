package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"trustledger/arbitrator"
	"trustledger/auth"
	"trustledger/chain"
	"trustledger/db"
	"trustledger/dispute"
	"trustledger/httpapi"
	"trustledger/outbox"
	"trustledger/params"
	"trustledger/resolution"
	"trustledger/token"
	"trustledger/voting"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	owner := os.Getenv("OWNER_ACCOUNT")
	if owner == "" {
		logger.Error("OWNER_ACCOUNT is required")
		os.Exit(1)
	}
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		logger.Error("JWT_SECRET is required")
		os.Exit(1)
	}
	port := getEnv("PORT", "8080")

	genesis := time.Unix(getEnvInt64(logger, "GENESIS_UNIX", 0), 0)
	interval := time.Duration(getEnvInt64(logger, "BLOCK_INTERVAL_SECONDS", 600)) * time.Second
	clock := chain.NewClock(genesis, interval)

	ctx := context.Background()
	pool, err := db.NewPool(ctx, os.Getenv("DATABASE_URL"))
	if err != nil {
		logger.Error("bootstrap database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	facts := outbox.NewWriter()
	disputeRepo := dispute.NewRepository(pool)
	votingRepo := voting.NewRepository(pool)
	arbRepo := arbitrator.NewRepository(pool)

	authSvc := auth.NewService(auth.NewRepository(pool), jwtSecret)
	disputeSvc := dispute.NewService(pool, disputeRepo, arbRepo, facts, clock, owner)
	votingSvc := voting.NewService(pool, votingRepo, disputeRepo, facts, clock)
	resolutionSvc := resolution.NewService(pool, disputeRepo, votingRepo, arbRepo, facts, clock, owner)
	arbitratorSvc := arbitrator.NewService(pool, arbRepo, facts, clock, owner)
	tokenSvc := token.NewService(pool, owner)
	paramsSvc := params.NewService(pool, owner)

	server := httpapi.NewServer(authSvc, disputeSvc, votingSvc, resolutionSvc, arbitratorSvc, tokenSvc, paramsSvc)
	httpServer := &http.Server{
		Addr:    ":" + port,
		Handler: server.Router(),
	}

	dispatcher := outbox.NewDispatcher(pool, &outbox.LogPublisher{Logger: logger}, logger)

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		logger.Info("http server listening", "port", port, "owner", owner)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		err := dispatcher.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt64(logger *slog.Logger, key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		logger.Warn("ignoring unparsable environment value", "key", key, "value", v, "fallback", fallback)
		return fallback
	}
	return n
}
