package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/chatflow/server/internal/chat"
	"github.com/chatflow/server/internal/channel"
	"github.com/chatflow/server/internal/config"
	"github.com/chatflow/server/internal/handlers"
	"github.com/chatflow/server/internal/services"
	ws "github.com/chatflow/server/internal/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func main() {
	// Load configuration from environment
	cfg := config.Load()

	// The broker is the shared channel every session's gateway speaks over
	broker := channel.NewBroker()
	go broker.Run()

	opts := chat.Options{TypingTimeout: cfg.TypingTimeout}

	// Fold-only gateway: the server's own view of converged state, used by
	// the polling API and the presence sweeper
	serverGateway, err := chat.NewGateway("", broker, opts)
	if err != nil {
		log.Fatalf("failed to start server gateway: %v", err)
	}

	// Start background presence expiry
	sweeper := services.NewPresenceSweeper(serverGateway, broker, cfg.PresenceSweepInterval, cfg.PresenceTTL)
	go sweeper.Start()

	// Initialize handlers
	chatHandler := handlers.NewChatHandler(serverGateway)
	wsHandler := ws.NewHandler(broker, opts)

	// Set up router with middleware
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	log.Printf("CORS allowed origins: %v", cfg.CORSOrigins)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoint
	r.Get("/health", chatHandler.Health)

	// Realtime endpoint
	r.Get("/ws", wsHandler.ServeWS)

	// Polling fallback API
	r.Route("/api", func(r chi.Router) {
		r.Get("/users", chatHandler.GetUsers)
		r.Get("/messages", chatHandler.GetMessages)
		r.Post("/messages", chatHandler.SendMessage)
	})

	// Start server
	addr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("ChatFlow server starting on %s", addr)
	log.Fatal(http.ListenAndServe(addr, r))
}
