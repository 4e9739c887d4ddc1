// Package core provides the shared device model types for anchor-runner.
package core

import "fmt"

// Transport executes primitive commands on a device.
// Implementations: adb (pkg/device), test fakes.
// The engine owns polling and matching; the transport only executes.
// All calls are blocking and synchronous.
type Transport interface {
	// ExecuteShell runs a shell command on the device and returns its output
	ExecuteShell(args ...string) (string, error)

	// Push copies a host file to the device
	Push(localPath, remotePath string) error

	// Pull copies a device file to the host
	Pull(remotePath, localPath string) error

	// Remove deletes a device file
	Remove(remotePath string) error

	// CaptureScreenTo writes a PNG screenshot to a device path
	CaptureScreenTo(remotePath string) error

	// Input injection
	InjectTap(x, y int) error
	InjectSwipe(x1, y1, x2, y2 int) error
	InjectText(text string) error
	InjectKeyEvent(code string) error
}

// LocaleTextInjector is implemented by transports that can type text outside
// the ASCII range through a device-side input method.
type LocaleTextInjector interface {
	InjectLocaleText(text string) error
}

// AppController is implemented by transports that start and stop
// applications themselves.
type AppController interface {
	StartActivity(pkg, activity string) error
	ForceStop(pkg string) error
}

// Android key codes used by the engine
const (
	KeyBack  = "KEYCODE_BACK"
	KeyHome  = "KEYCODE_HOME"
	KeySpace = "KEYCODE_SPACE"
	KeyDel   = "KEYCODE_DEL"
)

// Point is a screen coordinate in pixels.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (p Point) String() string {
	return fmt.Sprintf("(%d,%d)", p.X, p.Y)
}

// Resolution is a display size in pixels.
type Resolution struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// Valid reports whether both dimensions are positive.
func (r Resolution) Valid() bool {
	return r.Width > 0 && r.Height > 0
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// ParseResolution parses "WIDTHxHEIGHT".
func ParseResolution(s string) (Resolution, error) {
	var r Resolution
	if _, err := fmt.Sscanf(s, "%dx%d", &r.Width, &r.Height); err != nil {
		return Resolution{}, ErrInvalidArgument.WithMessage(fmt.Sprintf("invalid resolution %q", s)).WithCause(err)
	}
	if !r.Valid() {
		return Resolution{}, ErrInvalidArgument.WithMessage(fmt.Sprintf("resolution %q must be positive", s))
	}
	return r, nil
}

// Rect is an axis-aligned rectangle; Right and Bottom are exclusive.
type Rect struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
}

// Width returns the rectangle width
func (r Rect) Width() int { return r.Right - r.Left }

// Height returns the rectangle height
func (r Rect) Height() int { return r.Bottom - r.Top }
