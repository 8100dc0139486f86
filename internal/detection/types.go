package detection

import "fmt"

// AuthenticityStatus is the classification the detection service assigns to
// a recognized medicine.
type AuthenticityStatus string

const (
	StatusAuthentic            AuthenticityStatus = "authentic"
	StatusSuspectedCounterfeit AuthenticityStatus = "suspected counterfeit"
	StatusCounterfeit          AuthenticityStatus = "counterfeit"
	StatusUnknown              AuthenticityStatus = "unknown"
)

// ParseAuthenticityStatus maps a service-reported status onto the known
// set, defaulting to unknown.
func ParseAuthenticityStatus(s string) AuthenticityStatus {
	switch AuthenticityStatus(s) {
	case StatusAuthentic, StatusSuspectedCounterfeit, StatusCounterfeit:
		return AuthenticityStatus(s)
	default:
		return StatusUnknown
	}
}

// Authenticity is the service's authenticity verdict for a detection.
type Authenticity struct {
	Status     AuthenticityStatus `json:"status"`
	Confidence float64            `json:"confidence"`
}

// Result is a normalized detection service response. It lives only within
// one scan flow until the user chooses to persist it as a scan record.
type Result struct {
	// Class is the predicted medicine label.
	Class string `json:"class"`
	// Confidence is the detection confidence in [0,1].
	Confidence float64 `json:"confidence"`
	// Authenticity is the authenticity verdict; status unknown with zero
	// confidence when the service omitted it.
	Authenticity Authenticity `json:"authenticity"`
	// CroppedImageURL is the absolute URL of the server-cropped packshot.
	CroppedImageURL string `json:"cropped_image_url"`
}

// FailureReason distinguishes the broad classes of detection failure.
type FailureReason string

const (
	ReasonNetwork      FailureReason = "network"
	ReasonServer       FailureReason = "server"
	ReasonBadResponse  FailureReason = "bad_response"
	ReasonInconclusive FailureReason = "inconclusive"
)

// Failure is a typed detection failure. Message is safe to show to the
// user; there is never a silent fallback result.
type Failure struct {
	Reason  FailureReason
	Message string
	Err     error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("detection %s: %s: %v", f.Reason, f.Message, f.Err)
	}
	return fmt.Sprintf("detection %s: %s", f.Reason, f.Message)
}

func (f *Failure) Unwrap() error { return f.Err }

// Inconclusive reports whether err is the "no medicine detected" outcome,
// which blocks the result stage but is not a transport failure.
func Inconclusive(err error) bool {
	if f, ok := err.(*Failure); ok {
		return f.Reason == ReasonInconclusive
	}
	return false
}
