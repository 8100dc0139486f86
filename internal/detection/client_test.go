package detection

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/emilyats/authmed/internal/capture"
)

func testImage() *capture.Image {
	return &capture.Image{Bytes: []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x01, 0x02}}
}

func TestDetectSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/predict_roboflow" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("missing file part: %v", err)
		}
		defer file.Close()
		if header.Filename != "photo.jpg" {
			t.Errorf("filename = %q, want photo.jpg", header.Filename)
		}

		json.NewEncoder(w).Encode(map[string]interface{}{
			"class":      "Biogesic 500mg",
			"confidence": 0.93,
			"authenticity": map[string]interface{}{
				"status":     "authentic",
				"confidence": 0.88,
			},
			"cropped_image_url": "/static/crops/abc.jpg",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second, 0.5)
	result, err := client.Detect(context.Background(), testImage())
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	if result.Class != "Biogesic 500mg" {
		t.Errorf("class = %q", result.Class)
	}
	if result.Confidence != 0.93 {
		t.Errorf("confidence = %v", result.Confidence)
	}
	if result.Authenticity.Status != StatusAuthentic {
		t.Errorf("authenticity = %q", result.Authenticity.Status)
	}
	// Relative crop path must be resolved against the service base URL.
	if want := server.URL + "/static/crops/abc.jpg"; result.CroppedImageURL != want {
		t.Errorf("cropped url = %q, want %q", result.CroppedImageURL, want)
	}
}

func TestDetectLowConfidenceIsInconclusive(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"class":      "Biogesic 500mg",
			"confidence": 0.42,
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second, 0.5)
	_, err := client.Detect(context.Background(), testImage())
	if !Inconclusive(err) {
		t.Fatalf("expected inconclusive, got %v", err)
	}
	f := err.(*Failure)
	if f.Message != "No medicine detected or image is too blurry. Please try again." {
		t.Errorf("message = %q", f.Message)
	}
}

func TestDetectInconclusivePrefersServerMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"class":      "unknown",
			"confidence": 0.1,
			"message":    "Image is too dark to analyze.",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second, 0.5)
	_, err := client.Detect(context.Background(), testImage())
	if !Inconclusive(err) {
		t.Fatalf("expected inconclusive, got %v", err)
	}
	if f := err.(*Failure); f.Message != "Image is too dark to analyze." {
		t.Errorf("message = %q, want the server's own message", f.Message)
	}
}

func TestDetectUnknownClassIsInconclusive(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"class":      "unknown",
			"confidence": 0.95,
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second, 0.5)
	_, err := client.Detect(context.Background(), testImage())
	if !Inconclusive(err) {
		t.Fatalf("expected inconclusive even at high confidence, got %v", err)
	}
}

func TestDetectServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model unavailable", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second, 0.5)
	_, err := client.Detect(context.Background(), testImage())
	f, ok := err.(*Failure)
	if !ok || f.Reason != ReasonServer {
		t.Fatalf("expected server failure, got %v", err)
	}
	if Inconclusive(err) {
		t.Error("server failure must not read as inconclusive")
	}
}

func TestDetectBadJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second, 0.5)
	_, err := client.Detect(context.Background(), testImage())
	f, ok := err.(*Failure)
	if !ok || f.Reason != ReasonBadResponse {
		t.Fatalf("expected bad-response failure, got %v", err)
	}
}

func TestDetectNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // nothing listening anymore

	client := NewClient(server.URL, 2*time.Second, 0.5)
	_, err := client.Detect(context.Background(), testImage())
	f, ok := err.(*Failure)
	if !ok || f.Reason != ReasonNetwork {
		t.Fatalf("expected network failure, got %v", err)
	}
	if f.Message != "Error detecting medicine. Please try again." {
		t.Errorf("message = %q", f.Message)
	}
}

func TestDetectEmptyImage(t *testing.T) {
	client := NewClient("http://localhost:0", time.Second, 0.5)
	if _, err := client.Detect(context.Background(), nil); err == nil {
		t.Error("nil image must fail")
	}
	if _, err := client.Detect(context.Background(), &capture.Image{}); err == nil {
		t.Error("empty image must fail")
	}
}

func TestDetectAbsoluteCroppedURLUntouched(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"class":             "Alaxan FR",
			"confidence":        0.81,
			"cropped_image_url": "https://cdn.example.com/crops/x.jpg",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second, 0.5)
	result, err := client.Detect(context.Background(), testImage())
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if result.CroppedImageURL != "https://cdn.example.com/crops/x.jpg" {
		t.Errorf("absolute url was rewritten: %q", result.CroppedImageURL)
	}
	// Service omitted the authenticity block; status falls back to unknown.
	if result.Authenticity.Status != StatusUnknown {
		t.Errorf("authenticity = %q, want unknown", result.Authenticity.Status)
	}
}

func TestParseAuthenticityStatus(t *testing.T) {
	cases := map[string]AuthenticityStatus{
		"authentic":             StatusAuthentic,
		"suspected counterfeit": StatusSuspectedCounterfeit,
		"counterfeit":           StatusCounterfeit,
		"unknown":               StatusUnknown,
		"":                      StatusUnknown,
		"something else":        StatusUnknown,
	}
	for in, want := range cases {
		if got := ParseAuthenticityStatus(in); got != want {
			t.Errorf("ParseAuthenticityStatus(%q) = %q, want %q", in, got, want)
		}
	}
}
