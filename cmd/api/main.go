package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"paylink/internal/config"
	"paylink/internal/crypto"
	httpx "paylink/internal/http"
	"paylink/internal/notify/whatsapp"
	"paylink/internal/provider"
	"paylink/internal/provider/cardcom"
	"paylink/internal/provider/meshulam"
	"paylink/internal/provider/paypal"
	"paylink/internal/provider/stripe"
	"paylink/internal/provider/tranzila"
	"paylink/internal/services/payment"
	"paylink/internal/services/providers"
	"paylink/internal/store/memory"
	"paylink/internal/store/postgres"
	redisstore "paylink/internal/store/redis"
	"paylink/internal/store/repositories"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type stores struct {
	businesses repositories.BusinessRepository
	providers  repositories.ProviderRepository
	orders     repositories.OrderRepository
}

func main() {
	cfg := config.Load()
	setupLogger(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, closeStore := openStore(ctx, cfg)
	defer closeStore()

	vault, err := crypto.NewVault(cfg.Sec.EncryptionKey)
	if err != nil {
		log.Fatal().Err(err).Msg("vault init fail")
	}

	adapters := provider.NewRegistry(
		stripe.New(cfg.Providers.Stripe, cfg.Timeouts.Provider),
		paypal.New(cfg.Providers.PayPal, cfg.Timeouts.Provider),
		tranzila.New(cfg.Providers.Tranzila),
		meshulam.New(cfg.Providers.Meshulam, cfg.Timeouts.Provider),
		cardcom.New(cfg.Providers.Cardcom, cfg.Timeouts.Provider),
	)

	// the delivery log is an optimisation; run without it when redis is down
	var deliveries payment.DeliveryLog
	rdb, err := redisstore.Connect(ctx, cfg.Redis.Addr)
	switch {
	case err != nil:
		log.Warn().Err(err).Msg("webhook delivery log disabled")
	case rdb != nil:
		defer rdb.Close()
		deliveries = redisstore.NewDeliveryLog(rdb, cfg.Webhook.DedupTTL)
	}

	notifier := whatsapp.New(whatsapp.Config{
		APIURL:        cfg.WhatsApp.APIURL,
		Token:         cfg.WhatsApp.Token,
		PhoneNumberID: cfg.WhatsApp.PhoneNumberID,
		Timeout:       cfg.Timeouts.Webhook / 2,
	})
	if !notifier.Enabled() {
		log.Warn().Msg("whatsapp not configured, payment confirmations disabled")
	}

	payments := payment.NewService(payment.Deps{
		Businesses:      st.businesses,
		Providers:       st.providers,
		Orders:          st.orders,
		Adapters:        adapters,
		Vault:           vault,
		Notifier:        notifier,
		Deliveries:      deliveries,
		Admins:          cfg.Admins,
		ProviderTimeout: cfg.Timeouts.Provider,
		BaseURL:         cfg.App.BaseURL,
	})
	registry := providers.NewService(st.businesses, st.providers, vault, cfg.Admins)

	r := httpx.NewRouter(httpx.RouterDependencies{
		JWTSecret:      cfg.Sec.JWTSecret,
		WebhookTimeout: cfg.Timeouts.Webhook,
		Payments:       payments,
		Providers:      registry,
		Adapters:       adapters,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.Timeouts.Provider + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Info().
			Str("env", cfg.App.Env).
			Str("store", cfg.DB.Driver).
			Interface("providers", adapters.Kinds()).
			Msgf("Paylink API listening on :%s", cfg.App.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	cancel()
	ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	log.Info().Msg("server stopped")
}

func setupLogger(cfg config.Cfg) {
	level, err := zerolog.ParseLevel(cfg.App.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if cfg.IsDevelopment() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func openStore(ctx context.Context, cfg config.Cfg) (stores, func()) {
	if cfg.DB.Driver == "memory" {
		log.Warn().Msg("using in-memory store, data is lost on restart")
		m := memory.New()
		return stores{m.Businesses(), m.Providers(), m.Orders()}, func() {}
	}
	pool := postgres.MustOpen(ctx, cfg.DB.DSN)
	pg := postgres.NewStore(pool)
	return stores{pg.Businesses(), pg.Providers(), pg.Orders()}, pool.Close
}
