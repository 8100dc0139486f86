package flow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/emilyats/authmed/internal/capture"
	"github.com/emilyats/authmed/internal/detection"
)

// Phase is the scan pipeline state, replacing the ad hoc boolean flags the
// screens used to juggle.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseCapturing
	PhaseCaptured
	PhaseDetecting
	PhaseResult
	PhaseInconclusive
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseCapturing:
		return "capturing"
	case PhaseCaptured:
		return "captured"
	case PhaseDetecting:
		return "detecting"
	case PhaseResult:
		return "result"
	case PhaseInconclusive:
		return "inconclusive"
	case PhaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

var (
	// ErrBadPhase means the requested transition is invalid from the
	// current phase.
	ErrBadPhase = errors.New("invalid phase for this action")
	// ErrScanInFlight means a detection is already pending for this session.
	ErrScanInFlight = errors.New("a scan is already in progress")
	// ErrSuperseded means a detection settled after its session was
	// canceled; its outcome has been discarded.
	ErrSuperseded = errors.New("scan superseded")
)

// Detector is the remote detection dependency.
type Detector interface {
	Detect(ctx context.Context, img *capture.Image) (*detection.Result, error)
}

// Session sequences one capture-to-result pipeline: capture → analyzing →
// result. One detection in flight at most; canceling while analyzing
// discards the late outcome instead of applying it.
type Session struct {
	mu       sync.Mutex
	detector Detector

	phase   Phase
	gen     uint64
	image   *capture.Image
	result  *detection.Result
	failure string
}

func NewSession(detector Detector) *Session {
	return &Session{detector: detector, phase: PhaseIdle}
}

func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// BeginCapture opens the camera stage. Valid from Idle or after a failed or
// inconclusive scan (retry).
func (s *Session) BeginCapture() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.phase {
	case PhaseIdle, PhaseFailed, PhaseInconclusive, PhaseResult:
		s.phase = PhaseCapturing
		s.image = nil
		s.result = nil
		s.failure = ""
		return nil
	case PhaseDetecting:
		return ErrScanInFlight
	default:
		return ErrBadPhase
	}
}

// Captured records the capture controller's terminal output and arms the
// analyze stage. A detection can only start once an image is in hand.
func (s *Session) Captured(img *capture.Image) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseCapturing {
		return ErrBadPhase
	}
	if img == nil {
		return errors.New("captured image is nil")
	}
	s.image = img
	s.phase = PhaseCaptured
	return nil
}

// Analyze runs the remote detection for the captured image. The call is
// synchronous; cancellation happens through Cancel from another goroutine,
// after which a late-settling outcome is discarded and ErrSuperseded
// returned instead.
func (s *Session) Analyze(ctx context.Context) (*detection.Result, error) {
	s.mu.Lock()
	if s.phase == PhaseDetecting {
		s.mu.Unlock()
		return nil, ErrScanInFlight
	}
	if s.phase != PhaseCaptured {
		s.mu.Unlock()
		return nil, ErrBadPhase
	}
	s.phase = PhaseDetecting
	gen := s.gen
	img := s.image
	s.mu.Unlock()

	result, err := s.detector.Detect(ctx, img)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		// Canceled while detecting; this outcome no longer represents
		// the session and must not apply any effect.
		return nil, ErrSuperseded
	}

	if err != nil {
		if detection.Inconclusive(err) {
			s.phase = PhaseInconclusive
		} else {
			s.phase = PhaseFailed
		}
		s.failure = failureMessage(err)
		return nil, err
	}

	s.result = result
	s.phase = PhaseResult
	return result, nil
}

// Cancel abandons the session and returns it to Idle. An in-flight
// detection keeps running but its outcome is discarded on arrival.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.phase = PhaseIdle
	s.image = nil
	s.result = nil
	s.failure = ""
}

// Result returns the detection result once the session reached it. Saving
// to history is only legal while this returns ok.
func (s *Session) Result() (*detection.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseResult {
		return nil, false
	}
	return s.result, true
}

// Image returns the captured image reference carried across the capture →
// result transition.
func (s *Session) Image() *capture.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.image
}

// FailureMessage is the user-facing message for a failed or inconclusive
// scan, empty otherwise.
func (s *Session) FailureMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure
}

func failureMessage(err error) string {
	var f *detection.Failure
	if errors.As(err, &f) {
		return f.Message
	}
	return "Error detecting medicine. Please try again."
}
