package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chachabrian/mooveit-freight/internal/config"
	"github.com/chachabrian/mooveit-freight/internal/database"
	"github.com/chachabrian/mooveit-freight/internal/handlers"
	"github.com/chachabrian/mooveit-freight/internal/logger"
	"github.com/chachabrian/mooveit-freight/internal/models"
	"github.com/chachabrian/mooveit-freight/internal/services"
	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	lg := logger.New(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(lg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, lg); err != nil {
		lg.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, lg *slog.Logger) error {
	var store services.Store
	switch cfg.Store.Driver {
	case "memory":
		lg.Warn("using in-memory store, data is lost on restart")
		store = services.NewMemoryStore()
	default:
		db, err := database.InitDB(cfg, lg)
		if err != nil {
			return err
		}
		if sqlDB, err := db.DB(); err == nil {
			defer sqlDB.Close()
		}
		store = services.NewGormStore(db)
	}

	var cache *services.RedisCache
	if cfg.Redis.URL != "" {
		c, err := services.NewRedisCache(ctx, cfg.Redis.URL)
		if err != nil {
			return err
		}
		defer c.Close()
		cache = c
	} else {
		lg.Warn("REDIS_URL not set, driver locations are not cached and events are not mirrored")
	}

	var pusher services.Pusher
	if p, err := services.NewFCMPusher(ctx, cfg.Firebase.ServiceAccountPath, lg); err != nil {
		lg.Warn("firebase initialization failed, push notifications disabled", "error", err)
	} else if p != nil {
		pusher = p
	}

	var distance services.DistanceEstimator = services.HaversineEstimator{}
	if cfg.Maps.APIKey != "" {
		m, err := services.NewMapsEstimator(cfg.Maps.APIKey, lg)
		if err != nil {
			return err
		}
		distance = m
	}

	archive, err := services.NewReceiptArchive(cfg.AWS.Region, cfg.AWS.AccessKey, cfg.AWS.SecretKey, cfg.AWS.Bucket, cfg.ReceiptDir, lg)
	if err != nil {
		return err
	}
	receipts := services.NewReceiptService(archive, cfg.PublicBaseURL, lg)

	verifier := services.NewCredentialVerifier(cfg.Auth.TokenTTL,
		services.Credential{Role: models.RoleCustomer, Secret: cfg.Auth.UserSecret},
		services.Credential{Role: models.RoleDriver, Secret: cfg.Auth.DriverSecret},
		services.Credential{Role: models.RoleAdmin, Secret: cfg.Auth.AdminSecret},
	)
	rules := services.BiddingRules{LockWindow: cfg.Bidding.LockWindow, CeilingPercent: cfg.Bidding.CeilingPercent}

	users := services.NewUserService(store, verifier, lg)
	registry := services.NewChannelRegistry(lg)
	events := services.NewFanout(registry, cache, pusher, users, lg)
	gateway := services.NewGateway(registry, verifier, cfg.CORSOrigins, lg)

	gin.SetMode(gin.ReleaseMode)
	router := handlers.NewRouter(handlers.Deps{
		Verifier:      verifier,
		Users:         users,
		Bookings:      services.NewBookingService(store, rules, distance, receipts, events, lg),
		Bids:          services.NewBidLedger(store, rules, events, lg),
		Confirmations: services.NewConfirmationService(store, rules, services.ReferencePaymentVerifier{}, events, lg),
		Locations:     services.NewLocationService(store, cache, events, lg),
		Receipts:      receipts,
		Distance:      distance,
		Rules:         rules,
		Gateway:       gateway,
		Log:           lg,
		CORSOrigins:   cfg.CORSOrigins,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		lg.Info("server listening", "addr", srv.Addr, "store", cfg.Store.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	lg.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := gateway.Shutdown(shutdownCtx); err != nil {
		lg.Warn("websocket shutdown", "error", err)
	}
	registry.Close()
	return srv.Shutdown(shutdownCtx)
}
