package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/emilyats/authmed/internal/capture"
	"github.com/emilyats/authmed/internal/detection"
	"github.com/emilyats/authmed/internal/flow"
	"github.com/emilyats/authmed/internal/services"
)

var scanUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// CORS for WebSocket is handled at the HTTP layer already.
		return true
	},
}

// ScanClientMessage represents messages coming from the app over WebSocket.
type ScanClientMessage struct {
	Type string `json:"type"` // "scan", "cancel", "ping"
	// Image is the captured photo as base64 JPEG for "scan" messages.
	Image string `json:"image,omitempty"`
}

// ScanEvent is pushed to the app as the scan pipeline advances.
type ScanEvent struct {
	Type      string            `json:"type"` // "analyzing", "result", "inconclusive", "failed", "canceled", "error", "pong"
	Result    *detection.Result `json:"result,omitempty"`
	Message   string            `json:"message,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// ScanWebSocket drives one scan pipeline per connection: the app sends a
// captured photo, the server pushes "analyzing" and then exactly one
// terminal event. Canceling mid-analysis discards the late outcome instead
// of delivering it.
func ScanWebSocket(w http.ResponseWriter, r *http.Request) {
	token := extractBearerToken(r.Header.Get("Authorization"))
	if token == "" {
		// Browser WebSocket clients can't set headers.
		token = r.URL.Query().Get("token")
		if token == "" {
			http.Error(w, "missing session token", http.StatusUnauthorized)
			return
		}
	}

	_, ok, err := services.Sessions.Resolve(r.Context(), token)
	if err != nil {
		http.Error(w, "session lookup failed", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "invalid session token", http.StatusUnauthorized)
		return
	}

	conn, err := scanUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	session := flow.NewSession(detectionClient)

	var writeMu sync.Mutex
	send := func(evt ScanEvent) {
		evt.Timestamp = time.Now().UTC()
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.WriteJSON(evt)
	}

	conn.SetReadLimit(16 << 20) // photos come through this channel
	_ = conn.SetReadDeadline(time.Now().Add(90 * time.Second))
	conn.SetPongHandler(func(appData string) error {
		_ = conn.SetReadDeadline(time.Now().Add(90 * time.Second))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			session.Cancel()
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(90 * time.Second))

		var msg ScanClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case "scan":
			handleScanMessage(session, msg, send)
		case "cancel":
			session.Cancel()
			send(ScanEvent{Type: "canceled"})
		case "ping":
			send(ScanEvent{Type: "pong"})
		default:
			// Ignore unknown types
		}
	}
}

// handleScanMessage validates the photo, walks the flow session through
// capture, and runs the detection asynchronously so cancel messages keep
// being read.
func handleScanMessage(session *flow.Session, msg ScanClientMessage, send func(ScanEvent)) {
	raw, err := base64.StdEncoding.DecodeString(msg.Image)
	if err != nil || len(raw) == 0 {
		send(ScanEvent{Type: "error", Message: "Invalid image payload"})
		return
	}

	normalized, err := services.NormalizeScanImage(raw, services.MaxDetectionDimension)
	if err != nil {
		send(ScanEvent{Type: "error", Message: "Could not read the photo. Please try another image."})
		return
	}

	if err := session.BeginCapture(); err != nil {
		send(ScanEvent{Type: "error", Message: "A scan is already in progress"})
		return
	}
	if err := session.Captured(&capture.Image{Bytes: normalized}); err != nil {
		send(ScanEvent{Type: "error", Message: "A scan is already in progress"})
		return
	}

	send(ScanEvent{Type: "analyzing"})

	go func() {
		result, err := session.Analyze(context.Background())
		if err != nil {
			if errors.Is(err, flow.ErrSuperseded) {
				// Canceled while analyzing; the outcome no longer
				// represents this session.
				return
			}
			if detection.Inconclusive(err) {
				send(ScanEvent{Type: "inconclusive", Message: session.FailureMessage()})
				return
			}
			send(ScanEvent{Type: "failed", Message: session.FailureMessage()})
			return
		}
		send(ScanEvent{Type: "result", Result: result})
	}()
}
