package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// State is the capture session state. A session moves
// RequestingPermission → (Denied | Ready) → Capturing → Captured.
type State int

const (
	StateRequestingPermission State = iota
	StateDenied
	StateReady
	StateCapturing
	StateCaptured
)

func (s State) String() string {
	switch s {
	case StateRequestingPermission:
		return "requesting_permission"
	case StateDenied:
		return "denied"
	case StateReady:
		return "ready"
	case StateCapturing:
		return "capturing"
	case StateCaptured:
		return "captured"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Facing selects the camera sensor.
type Facing int

const (
	FacingBack Facing = iota
	FacingFront
)

// Settings are the adjustable camera controls available from Ready.
type Settings struct {
	Facing Facing
	Flash  bool
	// Zoom is in [0,1].
	Zoom float64
}

// ZoomStep is the fixed increment applied by ZoomIn/ZoomOut.
const ZoomStep = 0.1

var (
	// ErrPermissionDenied means the user refused camera access. Terminal
	// for the session; the app never re-requests on its own.
	ErrPermissionDenied = errors.New("camera permission denied")
	// ErrCanceled means the user backed out of the camera or picker.
	ErrCanceled = errors.New("capture canceled")
	// ErrNotReady means the requested action is invalid in the current state.
	ErrNotReady = errors.New("capture session not ready")
	// ErrCaptureInFlight means a capture is already pending.
	ErrCaptureInFlight = errors.New("capture already in flight")
)

// Device abstracts the platform camera and photo library. The mobile shell
// provides the real implementation; Device methods return ErrCanceled when
// the user backs out.
type Device interface {
	RequestPermission(ctx context.Context) (granted bool, err error)
	TakePhoto(ctx context.Context, settings Settings) (*Image, error)
	PickFromLibrary(ctx context.Context) (*Image, error)
}

// Controller owns one capture session. At most one capture is in flight at
// a time; the trigger is rejected while one is pending.
type Controller struct {
	mu       sync.Mutex
	device   Device
	state    State
	settings Settings
	image    *Image
}

func NewController(device Device) *Controller {
	return &Controller{device: device, state: StateRequestingPermission}
}

// Start acquires the camera permission. Denial is terminal for this
// session; the user has to grant access in OS settings and start over.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateRequestingPermission {
		c.mu.Unlock()
		return ErrNotReady
	}
	c.mu.Unlock()

	granted, err := c.device.RequestPermission(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil || !granted {
		c.state = StateDenied
		if err != nil {
			return fmt.Errorf("requesting camera permission: %w", err)
		}
		return ErrPermissionDenied
	}
	c.state = StateReady
	return nil
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Settings() Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// ToggleFacing flips between front and back sensor.
func (c *Controller) ToggleFacing() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateReady {
		return ErrNotReady
	}
	if c.settings.Facing == FacingBack {
		c.settings.Facing = FacingFront
	} else {
		c.settings.Facing = FacingBack
	}
	return nil
}

// ToggleFlash flips the flash on or off.
func (c *Controller) ToggleFlash() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateReady {
		return ErrNotReady
	}
	c.settings.Flash = !c.settings.Flash
	return nil
}

// SetZoom sets the zoom from continuous slider input, clamped to [0,1].
func (c *Controller) SetZoom(zoom float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateReady {
		return ErrNotReady
	}
	c.settings.Zoom = clampZoom(zoom)
	return nil
}

// ZoomIn raises the zoom by one fixed step.
func (c *Controller) ZoomIn() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateReady {
		return ErrNotReady
	}
	c.settings.Zoom = clampZoom(c.settings.Zoom + ZoomStep)
	return nil
}

// ZoomOut lowers the zoom by one fixed step.
func (c *Controller) ZoomOut() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateReady {
		return ErrNotReady
	}
	c.settings.Zoom = clampZoom(c.settings.Zoom - ZoomStep)
	return nil
}

// TakePhoto captures a still with the device camera. Cancellation does not
// advance the session; an I/O failure returns it to Ready for retry.
func (c *Controller) TakePhoto(ctx context.Context) (*Image, error) {
	if err := c.beginCapture(); err != nil {
		return nil, err
	}
	img, err := c.device.TakePhoto(ctx, c.Settings())
	return c.finishCapture(img, err)
}

// PickFromLibrary takes a photo from the gallery instead of the camera.
// Same terminal semantics as TakePhoto.
func (c *Controller) PickFromLibrary(ctx context.Context) (*Image, error) {
	if err := c.beginCapture(); err != nil {
		return nil, err
	}
	img, err := c.device.PickFromLibrary(ctx)
	return c.finishCapture(img, err)
}

// Image returns the captured photo, if the session reached Captured.
func (c *Controller) Image() (*Image, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateCaptured {
		return nil, false
	}
	return c.image, true
}

// Retake discards the captured photo and returns the session to Ready.
func (c *Controller) Retake() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateCaptured {
		return ErrNotReady
	}
	c.image = nil
	c.state = StateReady
	return nil
}

func (c *Controller) beginCapture() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateCapturing:
		return ErrCaptureInFlight
	case StateReady:
		c.state = StateCapturing
		return nil
	default:
		return ErrNotReady
	}
}

func (c *Controller) finishCapture(img *Image, err error) (*Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		// Both cancellation and device I/O failures leave the session
		// in Ready for another attempt.
		c.state = StateReady
		if errors.Is(err, ErrCanceled) {
			return nil, ErrCanceled
		}
		return nil, fmt.Errorf("capturing photo: %w", err)
	}
	if img == nil {
		c.state = StateReady
		return nil, ErrCanceled
	}

	c.image = img
	c.state = StateCaptured
	return img, nil
}

func clampZoom(zoom float64) float64 {
	if zoom < 0 {
		return 0
	}
	if zoom > 1 {
		return 1
	}
	return zoom
}
