package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/drewstaylor/fomo/internal/cache"
	"github.com/drewstaylor/fomo/internal/config"
	"github.com/drewstaylor/fomo/internal/game"
	"github.com/drewstaylor/fomo/internal/identity"
	"github.com/drewstaylor/fomo/internal/leaderboard"
	"github.com/drewstaylor/fomo/internal/ledger"
	"github.com/drewstaylor/fomo/internal/server"
	"github.com/drewstaylor/fomo/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("load config", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := store.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("connect db", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := store.EnsureSchema(ctx, db); err != nil {
		logger.Error("ensure schema", "err", err)
		os.Exit(1)
	}

	rdb, err := cache.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Error("connect redis", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	// Stores
	gameStore := store.NewGameStore(db, cfg.Custody, cfg.Denom)
	accounts := store.NewAccountStore(db)
	txStore := store.NewTransactionStore(db)
	history := store.NewHistoryStore(db)
	transfers := store.NewTransferStore(db)

	// Caches
	snapshot := cache.NewStateCache(rdb, cfg.StateCacheTTL)
	board := leaderboard.NewService(rdb)

	// Identity gate; without an endpoint a configured registry fails closed
	var resolver game.NameResolver
	if cfg.IdentityEndpoint != "" {
		resolver = identity.NewCachedResolver(
			identity.NewClient(cfg.IdentityEndpoint, cfg.IdentityTimeout),
			identity.NewRedisNameCache(rdb),
			cfg.IdentityCacheTTL,
			logger,
		)
	}

	metrics := server.NewMetrics()
	hub := server.NewHub(server.HubOptions{
		PingInterval:       cfg.WSPingInterval,
		ReadLimit:          cfg.WSReadLimit,
		InsecureSkipVerify: cfg.IsDevelopment(),
	}, metrics, logger)

	settler := ledger.NewSettler(transfers, cfg.SettleBuffer, cfg.SettleInterval, logger)
	settler.OnSettle(func(game.Transfer) { metrics.IncrSettled() })
	go settler.Run(ctx)

	// Post-commit fan-out. The commit is already durable; failures here
	// only degrade caches and notifications.
	onCommit := func(c *game.Commit, resp *game.Response) {
		sideCtx, sideCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer sideCancel()

		metrics.Observe(c.Action)

		if err := snapshot.Set(sideCtx, c.State); err != nil {
			logger.Warn("cache state", "err", err)
		}

		for _, tr := range c.Transfers {
			if err := board.RecordWin(sideCtx, tr.Amount.Denom, tr.To, tr.Amount.Amount); err != nil {
				logger.Warn("record win", "round", c.Round, "err", err)
			}
			if err := board.RecordRound(sideCtx, tr.Amount.Denom, c.Round, tr.Amount.Amount); err != nil {
				logger.Warn("record round", "round", c.Round, "err", err)
			}
		}
		settler.Enqueue(c.Transfers...)

		msg, err := server.NewEvent(c, resp)
		if err != nil {
			logger.Error("build event", "action", c.Action, "err", err)
			return
		}
		hub.Broadcast(msg)
	}

	engine := game.NewEngine(gameStore, resolver, game.Options{
		Denom:   cfg.Denom,
		Custody: cfg.Custody,
	}, logger, onCommit)

	hub.SetWelcome(func(ctx context.Context) (server.WSMessage, error) {
		st, err := engine.Game(ctx)
		if err != nil {
			return server.WSMessage{}, err
		}
		return server.StateMessage(st)
	})

	srv := server.New(cfg, server.Deps{
		Game:        engine,
		Bank:        ledger.NewBank(accounts, txStore, cfg.Denom, cfg.Custody, cfg.FaucetEnabled),
		Leaderboard: board,
		History:     history,
		Snapshot:    snapshot,
		Health: map[string]func(context.Context) error{
			"db":    db.Ping,
			"redis": func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		},
	}, hub, metrics, logger)

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "addr", cfg.HTTPAddr, "denom", cfg.Denom)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("listen", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutCancel()
	if err := httpSrv.Shutdown(shutCtx); err != nil {
		logger.Error("shutdown", "err", err)
	}
	cancel()
}
