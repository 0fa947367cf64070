package main

import (
	"context"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/chamadopro/backend/internal/config"
	"github.com/chamadopro/backend/internal/db"
	"github.com/chamadopro/backend/internal/handlers"
	"github.com/chamadopro/backend/internal/middleware"
	"github.com/chamadopro/backend/internal/models"
	"github.com/chamadopro/backend/internal/realtime"
	"github.com/chamadopro/backend/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()

	// Durable store when the database is reachable, in-memory
	// otherwise. Business rules are identical on both.
	var st store.Store
	if cfg.DBDSN != "" {
		gdb, err := db.Connect(cfg.DBDSN)
		if err != nil {
			log.Println("Database unreachable, falling back to in-memory store:", err)
			st = store.NewMemoryStore()
		} else {
			if err := gdb.AutoMigrate(
				&models.User{},
				&models.ProfessionalProfile{},
				&models.Proposal{},
				&models.NegotiationSession{},
				&models.Message{},
				&models.Review{},
				&models.WalletTransaction{},
			); err != nil {
				log.Fatal(err)
			}
			st = store.NewGormStore(gdb)
		}
	} else {
		log.Println("DB_DSN not set, using in-memory store")
		st = store.NewMemoryStore()
	}

	var rdb *redis.Client
	{
		candidate := realtime.NewRedis(cfg.RedisAddr, cfg.RedisPassword)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := candidate.Ping(ctx).Err(); err != nil {
			log.Println("Redis unreachable, notification mirroring disabled:", err)
		} else {
			rdb = candidate
		}
	}

	hub := realtime.NewHub()

	authH := &handlers.AuthHandler{
		Store:     st,
		JWTSecret: cfg.JWTSecret,
		Expires:   cfg.JWTExpiresMin,
	}
	proposalH := handlers.NewProposalHandler(st, hub, rdb)
	chatH := handlers.NewChatHandler(st, hub, rdb, cfg.JWTSecret)
	reviewH := handlers.NewReviewHandler(st)
	walletH := handlers.NewWalletHandler(st)

	app := fiber.New()

	app.Use(cors.New(cors.Config{
		AllowOrigins:     "http://127.0.0.1:3000, http://localhost:3000",
		AllowMethods:     "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		ExposeHeaders:    "Content-Length",
		AllowCredentials: true,
	}))
	app.Use(logger.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	// public
	api.Post("/auth/register", authH.Register)
	api.Post("/auth/login", authH.Login)

	// protected (JWT)
	protected := api.Group("/",
		middleware.JWTFromHeader(cfg.JWTSecret),
		middleware.AttachJWTLocals(),
	)

	protected.Get("/proposals", proposalH.List)
	protected.Get("/proposals/:id", proposalH.Get)
	protected.Post("/proposals",
		middleware.RequireRoles("contractor"),
		proposalH.Create,
	)
	protected.Post("/proposals/:id/accept",
		middleware.RequireRoles("professional"),
		proposalH.Accept,
	)
	protected.Post("/proposals/:id/complete",
		middleware.RequireRoles("contractor"),
		proposalH.Complete,
	)

	protected.Post("/reviews",
		middleware.RequireRoles("contractor"),
		reviewH.Create,
	)

	protected.Get("/wallet",
		middleware.RequireRoles("professional"),
		walletH.Get,
	)
	protected.Post("/wallet/withdraw",
		middleware.RequireRoles("professional"),
		walletH.Withdraw,
	)

	protected.Get("/chats", chatH.GetSessions)
	protected.Get("/chats/:id/messages", chatH.GetMessages)
	protected.Post("/messages", chatH.SendMessage)
	protected.Put("/messages/:id/status", chatH.UpdateMessageStatus)

	// WebSocket endpoint; handshake is authenticated via ?token=
	app.Use("/ws/chat", chatH.WebSocketUpgrade)
	app.Get("/ws/chat", websocket.New(chatH.WebSocketHandler))

	log.Fatal(app.Listen(":" + cfg.AppPort))
}
