// Package mock provides an in-memory core.Transport for testing without a
// real device.
package mock

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Operation names recorded in Call.Op and accepted by Config.FailOn.
const (
	OpShell      = "shell"
	OpPush       = "push"
	OpPull       = "pull"
	OpRemove     = "remove"
	OpCapture    = "capture"
	OpTap        = "tap"
	OpSwipe      = "swipe"
	OpText       = "text"
	OpLocaleText = "locale_text"
	OpKey        = "key"
	OpStart      = "start"
	OpForceStop  = "force_stop"
)

// Call is one recorded transport invocation.
type Call struct {
	Op   string
	Args []string
}

// Config configures mock transport behavior.
type Config struct {
	// Screen is encoded as PNG by CaptureScreenTo. Nil yields a 1x1 image.
	Screen image.Image
	// Shell answers ExecuteShell. Nil returns "".
	Shell func(args []string) (string, error)
	// FailOn makes an operation fail with the given error.
	FailOn map[string]error
}

// Transport is a mock implementation of core.Transport.
type Transport struct {
	Config Config

	mu    sync.Mutex
	calls []Call
	files map[string][]byte // device-side files
}

// New creates a new mock transport.
func New(cfg Config) *Transport {
	return &Transport{Config: cfg, files: make(map[string][]byte)}
}

// SetScreen replaces the image served by subsequent captures.
func (t *Transport) SetScreen(img image.Image) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Config.Screen = img
}

// SetFail makes op fail with err; a nil err clears it.
func (t *Transport) SetFail(op string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Config.FailOn == nil {
		t.Config.FailOn = make(map[string]error)
	}
	if err == nil {
		delete(t.Config.FailOn, op)
		return
	}
	t.Config.FailOn[op] = err
}

// Calls returns a copy of all recorded calls.
func (t *Transport) Calls() []Call {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Call, len(t.calls))
	copy(out, t.calls)
	return out
}

// CallsOf returns the recorded calls of one operation.
func (t *Transport) CallsOf(op string) []Call {
	var out []Call
	for _, c := range t.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Count returns how many times op was called.
func (t *Transport) Count(op string) int {
	return len(t.CallsOf(op))
}

// DeviceFiles lists paths currently stored on the fake device.
func (t *Transport) DeviceFiles() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.files))
	for p := range t.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// PutFile stores a file on the fake device.
func (t *Transport) PutFile(remotePath string, data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.files[remotePath] = data
}

func (t *Transport) record(op string, args ...string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, Call{Op: op, Args: args})
	return t.Config.FailOn[op]
}

// ExecuteShell records the command and answers from Config.Shell.
func (t *Transport) ExecuteShell(args ...string) (string, error) {
	if err := t.record(OpShell, args...); err != nil {
		return "", err
	}
	if t.Config.Shell == nil {
		return "", nil
	}
	return t.Config.Shell(args)
}

// Push copies a host file onto the fake device.
func (t *Transport) Push(localPath, remotePath string) error {
	if err := t.record(OpPush, localPath, remotePath); err != nil {
		return err
	}
	data, err := os.ReadFile(localPath) //#nosec G304 -- test helper
	if err != nil {
		return fmt.Errorf("push: %w", err)
	}
	t.PutFile(remotePath, data)
	return nil
}

// Pull copies a fake device file to the host.
func (t *Transport) Pull(remotePath, localPath string) error {
	if err := t.record(OpPull, remotePath, localPath); err != nil {
		return err
	}
	t.mu.Lock()
	data, ok := t.files[remotePath]
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("pull: remote object '%s' does not exist", remotePath)
	}
	return os.WriteFile(localPath, data, 0o600)
}

// Remove deletes a fake device file.
func (t *Transport) Remove(remotePath string) error {
	if err := t.record(OpRemove, remotePath); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.files, remotePath)
	return nil
}

// CaptureScreenTo stores the configured screen as PNG at remotePath.
func (t *Transport) CaptureScreenTo(remotePath string) error {
	if err := t.record(OpCapture, remotePath); err != nil {
		return err
	}
	t.mu.Lock()
	img := t.Config.Screen
	t.mu.Unlock()
	if img == nil {
		img = image.NewRGBA(image.Rect(0, 0, 1, 1))
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return err
	}
	t.PutFile(remotePath, buf.Bytes())
	return nil
}

// InjectTap records a tap.
func (t *Transport) InjectTap(x, y int) error {
	return t.record(OpTap, strconv.Itoa(x), strconv.Itoa(y))
}

// InjectSwipe records a swipe.
func (t *Transport) InjectSwipe(x1, y1, x2, y2 int) error {
	return t.record(OpSwipe, strconv.Itoa(x1), strconv.Itoa(y1), strconv.Itoa(x2), strconv.Itoa(y2))
}

// InjectText records typed text.
func (t *Transport) InjectText(text string) error {
	return t.record(OpText, text)
}

// InjectLocaleText records text typed through the locale input path.
func (t *Transport) InjectLocaleText(text string) error {
	return t.record(OpLocaleText, text)
}

// InjectKeyEvent records a key event.
func (t *Transport) InjectKeyEvent(code string) error {
	return t.record(OpKey, code)
}

// StartActivity records an application launch.
func (t *Transport) StartActivity(pkg, activity string) error {
	return t.record(OpStart, pkg, activity)
}

// ForceStop records an application stop.
func (t *Transport) ForceStop(pkg string) error {
	return t.record(OpForceStop, pkg)
}

// Taps returns the recorded tap points as "x,y" strings.
func (t *Transport) Taps() []string {
	var out []string
	for _, c := range t.CallsOf(OpTap) {
		out = append(out, strings.Join(c.Args, ","))
	}
	return out
}
