package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/punchamoorthee/fundops/internal/api"
	"github.com/punchamoorthee/fundops/internal/config"
	"github.com/punchamoorthee/fundops/internal/logger"
	"github.com/punchamoorthee/fundops/internal/service"
	"github.com/punchamoorthee/fundops/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	zl := logger.New(logger.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	defer zl.Sync()
	zl = zl.With(zap.String("env", cfg.Env))

	ctx := context.Background()
	s, closeStore, err := openStore(ctx, cfg, zl)
	if err != nil {
		zl.Fatal("store init failed", zap.Error(err))
	}
	defer closeStore()

	// Balances and the transaction log are persisted with every settlement and
	// rebuilt from the store on start.
	l, err := service.LoadLedger(ctx, s)
	if err != nil {
		zl.Fatal("ledger init failed", zap.Error(err))
	}
	txs, err := service.LoadLog(ctx, s)
	if err != nil {
		zl.Fatal("transaction log init failed", zap.Error(err))
	}
	zl.Info("ledger restored", zap.Int("wallets", len(l.Entries())), zap.Int("transactions", txs.Len()))

	// Initialize Layers
	transfers := service.NewTransferService(l, txs, s, zl)
	handler := api.NewHandler(
		service.NewRequestService(s, zl),
		service.NewContractService(s, transfers, zl),
		transfers,
		zl,
	)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: api.NewRouter(handler),
	}

	go func() {
		zl.Info("server starting", zap.String("addr", srv.Addr), zap.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Error("graceful shutdown failed", zap.Error(err))
	}
	zl.Info("server stopped")
}

func openStore(ctx context.Context, cfg *config.Config, zl *zap.Logger) (store.Store, func(), error) {
	if cfg.StoreDriver == config.DriverPostgres {
		pg, err := store.NewPostgresStore(ctx, cfg.DBSource)
		if err != nil {
			return nil, nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, nil, err
		}
		return pg, pg.Close, nil
	}

	mem := store.NewMemoryStore()
	for _, w := range cfg.SeedWallets {
		if err := mem.CreateWallet(ctx, store.Wallet{ID: w.ID, ProfileID: w.ProfileID, Balance: w.Balance}); err != nil {
			return nil, nil, err
		}
	}
	zl.Info("memory store seeded", zap.Int("wallets", len(cfg.SeedWallets)))
	return mem, func() {}, nil
}
