package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/emilyats/authmed/internal/detection"
	"github.com/emilyats/authmed/internal/history"
	"github.com/emilyats/authmed/internal/models"
)

// scanStore is the history surface the handlers touch. Production uses the
// Mongo-backed store; tests swap in a fake.
type scanStore interface {
	Save(ctx context.Context, userID string, result *detection.Result, note string) (*models.ScanRecord, error)
	List(ctx context.Context, userID string) ([]models.ScanRecord, error)
	Get(ctx context.Context, scanID string) (*models.ScanRecord, error)
	UpdateNote(ctx context.Context, scanID, note string) error
	Delete(ctx context.Context, scanID string) error
}

var scans scanStore = history.Scans

type SaveScanRequest struct {
	MedicineName           string  `json:"medicine_name"`
	Confidence             float64 `json:"confidence"`
	Authenticity           string  `json:"authenticity"`
	AuthenticityConfidence float64 `json:"authenticity_confidence"`
	ImageURL               string  `json:"image_url"`
	Note                   string  `json:"note"`
}

type UpdateNoteRequest struct {
	ScanID string `json:"scan_id"`
	Note   string `json:"note"`
}

type ScanRecordResponse struct {
	Success bool               `json:"success"`
	Message string             `json:"message,omitempty"`
	Scan    *models.ScanRecord `json:"scan,omitempty"`
}

type ScanListResponse struct {
	Success bool                `json:"success"`
	Message string              `json:"message,omitempty"`
	Scans   []models.ScanRecord `json:"scans"`
}

// SaveScan persists a detection result to the user's history. Saving is an
// explicit user action; every call creates a new record.
func SaveScan(w http.ResponseWriter, r *http.Request) {
	userID, authStatus := requireAuth(r)
	if authStatus != 0 {
		writeJSON(w, authStatus, ScanRecordResponse{
			Success: false,
			Message: authFailureMessage(authStatus),
		})
		return
	}

	var req SaveScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.MedicineName == "" {
		http.Error(w, "Medicine name is required", http.StatusBadRequest)
		return
	}

	result := &detection.Result{
		Class:      req.MedicineName,
		Confidence: req.Confidence,
		Authenticity: detection.Authenticity{
			Status:     detection.ParseAuthenticityStatus(req.Authenticity),
			Confidence: req.AuthenticityConfidence,
		},
		CroppedImageURL: req.ImageURL,
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	record, err := scans.Save(ctx, userID, result, req.Note)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ScanRecordResponse{
			Success: false,
			Message: "Failed to save scan",
		})
		return
	}

	writeJSON(w, http.StatusCreated, ScanRecordResponse{
		Success: true,
		Message: "Scan saved to history",
		Scan:    record,
	})
}

// ListScans returns the user's scan history, newest first. No records is a
// valid, empty response.
func ListScans(w http.ResponseWriter, r *http.Request) {
	userID, authStatus := requireAuth(r)
	if authStatus != 0 {
		writeJSON(w, authStatus, ScanListResponse{
			Success: false,
			Message: authFailureMessage(authStatus),
			Scans:   []models.ScanRecord{},
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	records, err := scans.List(ctx, userID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ScanListResponse{
			Success: false,
			Message: "Failed to load history",
			Scans:   []models.ScanRecord{},
		})
		return
	}

	writeJSON(w, http.StatusOK, ScanListResponse{
		Success: true,
		Scans:   records,
	})
}

// GetScan returns one scan record by id.
func GetScan(w http.ResponseWriter, r *http.Request) {
	userID, authStatus := requireAuth(r)
	if authStatus != 0 {
		writeJSON(w, authStatus, ScanRecordResponse{
			Success: false,
			Message: authFailureMessage(authStatus),
		})
		return
	}

	scanID := r.URL.Query().Get("id")
	if scanID == "" {
		http.Error(w, "Scan id is required", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	record, err := fetchOwnedScan(ctx, scanID, userID)
	if err != nil {
		writeScanError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ScanRecordResponse{
		Success: true,
		Scan:    record,
	})
}

// UpdateScanNote overwrites the note on a scan record; no other field is
// touched.
func UpdateScanNote(w http.ResponseWriter, r *http.Request) {
	userID, authStatus := requireAuth(r)
	if authStatus != 0 {
		writeJSON(w, authStatus, ScanRecordResponse{
			Success: false,
			Message: authFailureMessage(authStatus),
		})
		return
	}

	var req UpdateNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.ScanID == "" {
		http.Error(w, "Scan id is required", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if _, err := fetchOwnedScan(ctx, req.ScanID, userID); err != nil {
		writeScanError(w, err)
		return
	}

	if err := scans.UpdateNote(ctx, req.ScanID, req.Note); err != nil {
		writeScanError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ScanRecordResponse{
		Success: true,
		Message: "Note updated",
	})
}

// DeleteScan irreversibly removes a scan record. The confirmation dialog is
// the client's responsibility; the API deletes on request.
func DeleteScan(w http.ResponseWriter, r *http.Request) {
	userID, authStatus := requireAuth(r)
	if authStatus != 0 {
		writeJSON(w, authStatus, ScanRecordResponse{
			Success: false,
			Message: authFailureMessage(authStatus),
		})
		return
	}

	scanID := r.URL.Query().Get("id")
	if scanID == "" {
		http.Error(w, "Scan id is required", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if _, err := fetchOwnedScan(ctx, scanID, userID); err != nil {
		writeScanError(w, err)
		return
	}

	if err := scans.Delete(ctx, scanID); err != nil {
		writeScanError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ScanRecordResponse{
		Success: true,
		Message: "Scan deleted",
	})
}

// fetchOwnedScan loads a record and hides other users' records behind
// not-found.
func fetchOwnedScan(ctx context.Context, scanID, userID string) (*models.ScanRecord, error) {
	record, err := scans.Get(ctx, scanID)
	if err != nil {
		return nil, err
	}
	if record.UserID != userID {
		return nil, history.ErrNotFound
	}
	return record, nil
}

func writeScanError(w http.ResponseWriter, err error) {
	if errors.Is(err, history.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, ScanRecordResponse{
			Success: false,
			Message: "Scan not found",
		})
		return
	}
	writeJSON(w, http.StatusInternalServerError, ScanRecordResponse{
		Success: false,
		Message: "Something went wrong. Please try again.",
	})
}
