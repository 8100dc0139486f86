package routes

import (
	"github.com/emilyats/authmed/internal/handlers"
	"github.com/go-chi/chi/v5"
)

func SetupRoutes(r *chi.Mux) {
	// Auth routes
	r.Post("/api/auth/signup", handlers.Signup)
	r.Post("/api/auth/signin", handlers.Signin)
	r.Post("/api/auth/signout", handlers.Signout)
	r.Get("/api/auth/me", handlers.GetMe)
	r.Get("/api/auth/verify-email", handlers.VerifyEmail)
	r.Post("/api/auth/forgot-password", handlers.ForgotPassword)
	r.Post("/api/auth/reset-password", handlers.ResetPassword)
	r.Post("/api/auth/change-password", handlers.ChangePassword)

	// Scan routes (analyze does not write history; saving is explicit)
	r.Post("/api/scan/analyze", handlers.AnalyzeScan)

	// Scan history routes
	r.Post("/api/history", handlers.SaveScan)
	r.Get("/api/history", handlers.ListScans)
	r.Get("/api/history/scan", handlers.GetScan)
	r.Put("/api/history/note", handlers.UpdateScanNote)
	r.Delete("/api/history/scan", handlers.DeleteScan)

	// Static assets preloaded at startup
	r.Get("/api/assets/background", handlers.BackgroundImage)

	// WebSocket endpoint driving the interactive scan pipeline
	r.Get("/ws/scan", handlers.ScanWebSocket)
}
