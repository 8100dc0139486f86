package handlers

import (
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/emilyats/authmed/internal/capture"
	"github.com/emilyats/authmed/internal/config"
	"github.com/emilyats/authmed/internal/detection"
	"github.com/emilyats/authmed/internal/services"
)

var (
	detectionClient   *detection.Client
	cloudinaryService *services.CloudinaryService
)

// InitScan wires the detection client from configuration.
func InitScan(cfg *config.Config) {
	detectionClient = detection.NewClient(cfg.DetectionBaseURL, cfg.DetectionTimeout, cfg.MinConfidence)
}

// InitCloudinaryService initializes the upload service for scan photos.
func InitCloudinaryService(cfg *config.Config) error {
	service, err := services.NewCloudinaryService(
		cfg.CloudinaryName,
		cfg.CloudinaryAPIKey,
		cfg.CloudinaryAPISecret,
	)
	if err != nil {
		return err
	}
	cloudinaryService = service
	return nil
}

type ScanResponse struct {
	Success      bool              `json:"success"`
	Inconclusive bool              `json:"inconclusive,omitempty"`
	Message      string            `json:"message,omitempty"`
	Result       *detection.Result `json:"result,omitempty"`
	PhotoURL     string            `json:"photo_url,omitempty"`
}

// AnalyzeScan accepts a captured photo, normalizes it, proxies it to the
// detection service, and returns the verdict. Nothing is written to history
// here; saving is a separate, explicit call.
func AnalyzeScan(w http.ResponseWriter, r *http.Request) {
	if _, authStatus := requireAuth(r); authStatus != 0 {
		writeJSON(w, authStatus, ScanResponse{
			Success: false,
			Message: authFailureMessage(authStatus),
		})
		return
	}

	if err := r.ParseMultipartForm(10 << 20); err != nil { // 10MB
		http.Error(w, "Invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "No file provided: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Failed to read file", http.StatusBadRequest)
		return
	}

	normalized, err := services.NormalizeScanImage(raw, services.MaxDetectionDimension)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ScanResponse{
			Success: false,
			Message: "Could not read the photo. Please try another image.",
		})
		return
	}

	// Stable copy of the original photo for the history record; the scan
	// still proceeds if the upload is unavailable.
	var photoURL string
	if cloudinaryService != nil {
		photoURL, err = cloudinaryService.UploadBytes(r.Context(), raw, "authmed/scans")
		if err != nil {
			log.Printf("scan photo upload failed: %v", err)
			photoURL = ""
		}
	}

	result, err := detectionClient.Detect(r.Context(), &capture.Image{Bytes: normalized})
	if err != nil {
		if detection.Inconclusive(err) {
			writeJSON(w, http.StatusOK, ScanResponse{
				Success:      false,
				Inconclusive: true,
				Message:      failureText(err),
			})
			return
		}
		writeJSON(w, http.StatusBadGateway, ScanResponse{
			Success: false,
			Message: failureText(err),
		})
		return
	}

	writeJSON(w, http.StatusOK, ScanResponse{
		Success:  true,
		Result:   result,
		PhotoURL: photoURL,
	})
}

// BackgroundImage serves the preloaded home-screen background.
func BackgroundImage(w http.ResponseWriter, r *http.Request) {
	data, ok := services.BackgroundImage(r.Context())
	if !ok {
		http.Error(w, "Background image not loaded", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Write(data)
}

func failureText(err error) string {
	var f *detection.Failure
	if errors.As(err, &f) {
		return f.Message
	}
	return "Error detecting medicine. Please try again."
}
