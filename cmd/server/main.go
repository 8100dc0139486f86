package main

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/joho/godotenv"

	"github.com/emilyats/authmed/internal/config"
	"github.com/emilyats/authmed/internal/database"
	"github.com/emilyats/authmed/internal/handlers"
	"github.com/emilyats/authmed/internal/history"
	"github.com/emilyats/authmed/internal/identity"
	"github.com/emilyats/authmed/internal/middleware"
	"github.com/emilyats/authmed/internal/routes"
	"github.com/emilyats/authmed/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

func main() {
	// Load env
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found")
	}
	// Load configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration: ", err)
	}

	// Connect to PostgreSQL (identity accounts + tokens)
	log.Printf("Connecting to PostgreSQL...")
	if err := database.ConnectPostgres(cfg.PostgresURI); err != nil {
		log.Fatal("Failed to connect to PostgreSQL:", err)
	}
	defer database.DisconnectPostgres()

	// Connect to Redis (sessions, rate limiting, asset cache)
	log.Printf("Connecting to Redis...")
	if err := database.ConnectRedis(cfg.RedisURI); err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer database.DisconnectRedis()

	// Log connection attempt (without showing password)
	log.Printf("Connecting to MongoDB...")
	if cfg.MongoURI != "" {
		maskedURI := cfg.MongoURI
		if strings.Contains(maskedURI, "@") {
			parts := strings.Split(maskedURI, "@")
			if len(parts) > 0 && strings.Contains(parts[0], ":") {
				userPass := strings.Split(parts[0], ":")
				if len(userPass) >= 3 {
					maskedURI = strings.Replace(maskedURI, userPass[2], "***", 1)
				}
			}
		}
		log.Printf("MongoDB URI: %s", maskedURI)
	}

	// Connect to MongoDB (scan history)
	if err := database.Connect(cfg.MongoURI); err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer database.Disconnect()

	// Ensure MongoDB indexes for scan history
	if err := history.Scans.EnsureIndexes(context.Background()); err != nil {
		log.Printf("⚠️  WARNING: failed to ensure MongoDB scan history indexes: %v", err)
	} else {
		log.Println("✅ MongoDB scan history indexes ensured")
	}

	// Initialize Cloudinary service
	if cfg.CloudinaryName != "" && cfg.CloudinaryAPIKey != "" && cfg.CloudinaryAPISecret != "" {
		if err := handlers.InitCloudinaryService(cfg); err != nil {
			log.Printf("Warning: Failed to initialize Cloudinary: %v", err)
			log.Println("Scan photo uploads will not be available")
		} else {
			log.Println("✅ Cloudinary service initialized")
		}
	} else {
		log.Println("Warning: Cloudinary credentials not found. Scan photo uploads will not be available")
	}

	// Wire the identity gateway: Postgres accounts + Redis sessions
	provider := identity.NewPostgresProvider(identity.LogMailer{})
	gateway := identity.NewGateway(provider, services.Sessions)
	handlers.InitAuth(gateway, provider)
	log.Println("✅ Identity gateway initialized")

	// Wire the detection client
	handlers.InitScan(cfg)
	log.Printf("✅ Detection client initialized (%s)", cfg.DetectionBaseURL)

	// Preload the home-screen background so clients never wait on it
	if cfg.BackgroundImageURL != "" {
		if err := services.PreloadBackgroundImage(context.Background(), cfg.BackgroundImageURL); err != nil {
			log.Printf("⚠️  WARNING: failed to preload background image: %v", err)
		}
	}

	// Setup router
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Use(middleware.RateLimit)

	// Health check (no auth)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	// Setup routes
	routes.SetupRoutes(r)

	log.Println("📋 Registered routes:")
	log.Println("  GET  /health")
	log.Println("  POST /api/auth/signup")
	log.Println("  POST /api/auth/signin")
	log.Println("  POST /api/auth/signout")
	log.Println("  GET  /api/auth/me")
	log.Println("  GET  /api/auth/verify-email")
	log.Println("  POST /api/auth/forgot-password")
	log.Println("  POST /api/auth/reset-password")
	log.Println("  POST /api/auth/change-password")
	log.Println("  POST /api/scan/analyze")
	log.Println("  POST /api/history")
	log.Println("  GET  /api/history")
	log.Println("  GET  /api/history/scan")
	log.Println("  PUT  /api/history/note")
	log.Println("  DELETE /api/history/scan")
	log.Println("  GET  /api/assets/background")
	log.Println("  GET  /ws/scan")

	log.Printf("🚀 AuthMed backend running on :%s", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
