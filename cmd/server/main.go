package main

import (
	"context"
	"log"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/zealicon/zealicon-backend/internal/config"
	"github.com/zealicon/zealicon-backend/internal/database"
	"github.com/zealicon/zealicon-backend/internal/enroll"
	"github.com/zealicon/zealicon-backend/internal/handler"
	"github.com/zealicon/zealicon-backend/internal/mailer"
	"github.com/zealicon/zealicon-backend/internal/middleware"
	"github.com/zealicon/zealicon-backend/internal/payment"
	"github.com/zealicon/zealicon-backend/internal/queue"
	"github.com/zealicon/zealicon-backend/internal/repository"
	"github.com/zealicon/zealicon-backend/internal/router"
	"github.com/zealicon/zealicon-backend/internal/sheets"
	queue_publisher "github.com/zealicon/zealicon-backend/internal/service"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	db, err := database.Open(cfg)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Println("redis unavailable: rate limiting and response cache disabled")
	}

	users := repository.NewUserRepo(db)
	merch := repository.NewMerchRepo(db)
	orders := repository.NewOrderRepo(db)
	events := repository.NewEventRepo(db)

	roster, err := sheets.New(context.Background(), cfg.GoogleCredsJSON)
	if err != nil {
		log.Fatalf("sheets: %v", err)
	}

	gateway := payment.NewRazorpayGateway(cfg.RazorpayKeyID, cfg.RazorpayAPISecret)
	paySvc := payment.NewService(gateway, users,
		repository.NewPaymentStore(orders, merch),
		queue_publisher.Publisher{},
		cfg.RazorpayAPISecret, cfg.RazorpayWebhookSecret)

	enrollSvc := enroll.NewService(events, enroll.NewRepositoryLedger(repository.NewEnrollmentLedger(events)), roster)

	go func() {
		if err := queue.StartPaymentConsumer(); err != nil {
			log.Printf("payment consumer stopped: %v", err)
		}
	}()

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))

	router.Register(e, router.Deps{
		Cfg:    cfg,
		Redis:  rdb,
		Auth:   handler.NewAuthHandler(users, mailer.New(cfg), cfg),
		Zeal:   handler.NewZealHandler(users, paySvc, cfg),
		Merch:  handler.NewMerchHandler(merch, orders, paySvc, cfg),
		Events: handler.NewEventHandler(events, users, enrollSvc, roster),
	})

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
