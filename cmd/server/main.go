package main

import (
	"context"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"

	"github.com/example/stagelink/internal/config"
	"github.com/example/stagelink/internal/database"
	"github.com/example/stagelink/internal/directory"
	"github.com/example/stagelink/internal/events"
	"github.com/example/stagelink/internal/logger"
	"github.com/example/stagelink/internal/routes"
	"github.com/example/stagelink/internal/session"
	"github.com/example/stagelink/internal/store"
	"github.com/example/stagelink/internal/token"
)

func main() {
	cfg := config.Load()

	zlog, err := logger.New(cfg.Development())
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer zlog.Sync()

	db := database.Connect(cfg.DatabaseURL)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		zlog.Fatalw("redis ping failed", "addr", cfg.RedisAddr, "error", err)
	}

	publisher := events.NewPublisher(cfg.KafkaBrokers, cfg.KafkaSmsTopic, cfg.KafkaPushTopic, zlog)
	defer publisher.Close()

	mgr := session.NewManager(session.Options{
		Directory:             directory.New(db),
		Otps:                  store.NewRedisOtpStore(rdb, cfg.OtpTTL),
		Sessions:              store.NewRedisSessionStore(rdb, 0),
		Profiles:              store.NewRedisProfileCache(rdb, cfg.ProfileCacheTTL),
		Revocations:           store.NewRedisRevocationStore(rdb, cfg.RevocationTTL),
		Issuer:                token.NewIssuer(cfg.JWTSecret, cfg.AccessTokenTTL),
		Deliverer:             publisher,
		Logger:                zlog,
		InactivityLimit:       cfg.SessionInactivityMax,
		CheckAccessRevocation: cfg.CheckAccessRevocation,
	})

	app := fiber.New(fiber.Config{
		AppName: "Stagelink Backend",
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New())
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: time.Minute,
	}))

	routes.Register(app, mgr, publisher, zlog)

	zlog.Infow("starting server", "port", cfg.AppPort)
	if err := app.Listen(":" + cfg.AppPort); err != nil {
		zlog.Fatalw("fiber listen failed", "error", err)
	}
}
