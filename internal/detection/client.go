package detection

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/emilyats/authmed/internal/capture"
)

// predictPath is the fixed endpoint on the detection service.
const predictPath = "/predict_roboflow"

// wireResponse is the detection service's JSON body.
type wireResponse struct {
	Class        string  `json:"class"`
	Confidence   float64 `json:"confidence"`
	Message      string  `json:"message,omitempty"`
	Authenticity *struct {
		Status     string  `json:"status"`
		Confidence float64 `json:"confidence"`
	} `json:"authenticity,omitempty"`
	CroppedImageURL string `json:"cropped_image_url,omitempty"`
}

// Client posts captured images to the external detection service and
// normalizes its responses. One POST per Detect call; no automatic retry.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	minConfidence float64
}

// NewClient builds a detection client. timeout 0 leaves the platform
// default in place. minConfidence is the threshold under which a detection
// is inconclusive.
func NewClient(baseURL string, timeout time.Duration, minConfidence float64) *Client {
	return &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		httpClient:    &http.Client{Timeout: timeout},
		minConfidence: minConfidence,
	}
}

// Detect uploads the image and returns the normalized result. Transport
// errors, non-2xx responses and undecodable bodies all come back as a
// *Failure; an unknown class or sub-threshold confidence comes back as the
// distinct inconclusive failure.
func (c *Client) Detect(ctx context.Context, img *capture.Image) (*Result, error) {
	if img == nil || len(img.Bytes) == 0 {
		return nil, &Failure{Reason: ReasonBadResponse, Message: "No image to analyze."}
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="photo.jpg"`)
	header.Set("Content-Type", "image/jpeg")
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, &Failure{Reason: ReasonBadResponse, Message: "Could not prepare the image upload.", Err: err}
	}
	if _, err := part.Write(img.Bytes); err != nil {
		return nil, &Failure{Reason: ReasonBadResponse, Message: "Could not prepare the image upload.", Err: err}
	}
	if err := writer.Close(); err != nil {
		return nil, &Failure{Reason: ReasonBadResponse, Message: "Could not prepare the image upload.", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+predictPath, body)
	if err != nil {
		return nil, &Failure{Reason: ReasonBadResponse, Message: "Could not reach the detection service.", Err: err}
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Failure{Reason: ReasonNetwork, Message: "Error detecting medicine. Please try again.", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Failure{Reason: ReasonNetwork, Message: "Error detecting medicine. Please try again.", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Failure{
			Reason:  ReasonServer,
			Message: "Error detecting medicine. Please try again.",
			Err:     fmt.Errorf("detection service returned status %d: %s", resp.StatusCode, string(respBody)),
		}
	}

	var wire wireResponse
	if err := json.Unmarshal(respBody, &wire); err != nil {
		return nil, &Failure{Reason: ReasonBadResponse, Message: "Unexpected response from the detection service.", Err: err}
	}

	// Unknown class or low confidence means no medicine was recognized;
	// the flow must not proceed to the result stage. The service's own
	// message, when it sends one, beats the generic fallback.
	if wire.Class == "" || wire.Class == "unknown" || wire.Confidence < c.minConfidence {
		message := wire.Message
		if message == "" {
			message = "No medicine detected or image is too blurry. Please try again."
		}
		return nil, &Failure{
			Reason:  ReasonInconclusive,
			Message: message,
		}
	}

	result := &Result{
		Class:           wire.Class,
		Confidence:      wire.Confidence,
		Authenticity:    Authenticity{Status: StatusUnknown},
		CroppedImageURL: c.resolveURL(wire.CroppedImageURL),
	}
	if wire.Authenticity != nil {
		result.Authenticity = Authenticity{
			Status:     ParseAuthenticityStatus(wire.Authenticity.Status),
			Confidence: wire.Authenticity.Confidence,
		}
	}

	return result, nil
}

// resolveURL turns the service's relative cropped-image path into an
// absolute URL against the configured base. The prefix concatenation is a
// contract shared with the server.
func (c *Client) resolveURL(relative string) string {
	if relative == "" {
		return ""
	}
	if strings.HasPrefix(relative, "http://") || strings.HasPrefix(relative, "https://") {
		return relative
	}
	if !strings.HasPrefix(relative, "/") {
		relative = "/" + relative
	}
	return c.baseURL + relative
}
