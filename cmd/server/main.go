package main // Entry point package

import (
	"context"
	"log"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/marina-payment-relay/internal/checkout"
	"github.com/iliyamo/marina-payment-relay/internal/config"
	"github.com/iliyamo/marina-payment-relay/internal/database"
	"github.com/iliyamo/marina-payment-relay/internal/handler"
	"github.com/iliyamo/marina-payment-relay/internal/ledger"
	"github.com/iliyamo/marina-payment-relay/internal/middleware"
	"github.com/iliyamo/marina-payment-relay/internal/processor"
	"github.com/iliyamo/marina-payment-relay/internal/queue"
	"github.com/iliyamo/marina-payment-relay/internal/reconcile"
	"github.com/iliyamo/marina-payment-relay/internal/repository"
	"github.com/iliyamo/marina-payment-relay/internal/router"
	queue_publisher "github.com/iliyamo/marina-payment-relay/internal/service"
)

func main() {
	_ = godotenv.Load() // .env is optional; real deployments use the environment
	cfg := config.Load()

	ledgerClient := ledger.New(cfg.LedgerBaseURL, cfg.LedgerToken)
	proc := processor.NewStripeClient(cfg.StripeSecretKey)

	// Optional webhook event journal; without it deduplication is disabled.
	var journal reconcile.Journal
	if cfg.JournalEnabled() {
		db, err := database.Open(cfg.JournalDBUser, cfg.JournalDBPass, cfg.JournalDBHost, cfg.JournalDBPort, cfg.JournalDBName)
		if err != nil {
			log.Printf("journal disabled: %v", err)
		} else {
			j := repository.NewEventJournal(db)
			if err := j.EnsureSchema(context.Background()); err != nil {
				log.Printf("journal disabled: ensure schema: %v", err)
			} else {
				journal = j
			}
		}
	}

	// Optional status event publisher and log consumer.
	var publisher reconcile.Publisher
	if cfg.AMQPURL != "" {
		publisher = queue_publisher.New(cfg.AMQPURL)
		go func() {
			if err := queue.StartStatusConsumer(cfg.AMQPURL); err != nil {
				log.Printf("status consumer stopped: %v", err)
			}
		}()
	}

	engine := reconcile.New(ledgerClient, proc, journal, publisher, cfg)
	factory := checkout.NewFactory(proc, ledgerClient, cfg)

	e := echo.New()
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.AllowedOrigins,
		AllowMethods: []string{echo.GET, echo.POST, echo.OPTIONS},
	}))

	limiter := middleware.NewTokenBucket(config.LoadRateLimitConfig(), config.NewRedisClient())
	router.RegisterRoutes(e, router.Handlers{
		Checkout: handler.NewCheckoutHandler(factory, engine),
		Payment:  handler.NewPaymentHandler(engine),
		Connect:  handler.NewConnectHandler(ledgerClient, proc, cfg),
		Webhook:  handler.NewWebhookHandler(cfg.WebhookSecret, engine),
	}, cfg.AdminJWTSecret, limiter)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s, flow=%s)", addr, cfg.Env, cfg.FlowMode)

	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
