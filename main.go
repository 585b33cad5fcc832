package main

import (
	"log"

	"tradechat_backend/config"
	"tradechat_backend/handlers"
	"tradechat_backend/internal/audit"
	"tradechat_backend/internal/chat"
	"tradechat_backend/internal/negotiation"
	"tradechat_backend/internal/ws"
	"tradechat_backend/middleware"
	"tradechat_backend/utils"

	"github.com/gofiber/fiber/v2"
)

func main() {
	cfg := config.LoadConfig()

	db, err := config.ConnectDatabase(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	if err := config.Migrate(db); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}
	config.SeedUsers(db)
	config.SeedListings(db)

	auditLog := audit.NewNopLogger()
	mongoClient, err := config.ConnectMongo(cfg)
	if err != nil {
		log.Printf("Audit store unavailable, continuing without audit: %v", err)
	} else if mongoClient != nil {
		auditLog = audit.NewMongoLogger(mongoClient)
	}

	hub := ws.NewHub()
	go hub.Run()

	chatService := chat.NewService(db)
	engine := negotiation.NewEngine(db, negotiation.GormRegions{}, auditLog)

	chatHandler := handlers.NewChatHandler(hub, chatService, engine)
	tradeHandler := handlers.NewTradeHandler(db)
	uploadHandler := handlers.NewUploadHandler()

	app := fiber.New(fiber.Config{
		AppName:      "Tradechat Backend",
		ServerHeader: "Tradechat Backend Server/1.0",
		ErrorHandler: middleware.ErrorHandler,
	})

	middleware.SetupMiddleware(app)

	// Health Check Endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status":  "success",
			"message": "API is healthy",
		})
	})

	// Uploaded chat images
	app.Static("/uploads", "./uploads")

	// Real-time relay
	app.Use("/ws", chatHandler.WebSocketUpgradeMiddleware)
	app.Get("/ws", chatHandler.WebSocketHandler())

	api := app.Group("/api", utils.AuthMiddleware)

	chatRoutes := api.Group("/chat")
	chatRoutes.Post("/rooms", chatHandler.CreateChatRoom)
	chatRoutes.Get("/rooms", chatHandler.GetMyChatRooms)
	chatRoutes.Get("/rooms/:tradeId", chatHandler.GetChatRoomDetail)
	chatRoutes.Get("/rooms/:tradeId/messages", chatHandler.GetChatMessages)
	chatRoutes.Post("/rooms/:tradeId/messages", chatHandler.SendMessage)
	chatRoutes.Post("/rooms/:tradeId/status-requests", chatHandler.CreateStatusRequest)
	chatRoutes.Post("/rooms/:tradeId/status-requests/:messageId/approve", chatHandler.ApproveStatusRequest)
	chatRoutes.Post("/rooms/:tradeId/status-requests/:messageId/reject", chatHandler.RejectStatusRequest)
	chatRoutes.Patch("/rooms/:tradeId/status", chatHandler.UpdateTradeStatus)

	api.Get("/trades", tradeHandler.GetMyTrades)
	api.Get("/trades/count", tradeHandler.GetMyTradeCount)
	api.Post("/upload", uploadHandler.UploadImage)

	log.Printf("🚀 Server starting on host %s in port %s mode", cfg.Host, cfg.AppPort)

	if err := app.Listen(cfg.Host + ":" + cfg.AppPort); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
