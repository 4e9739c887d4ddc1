// Package engine drives a device through image-anchored actions.
//
// The Engine combines a core.Transport for input injection, a match.Strategy
// chosen once per session, and a hook.Hub that observes every public action.
// Actions are serialized per engine: at most one wrapped action is open at a
// time.
package engine

import (
	"fmt"
	"image"
	"strings"
	"sync"
	"time"

	"github.com/devicelab-dev/anchor-runner/pkg/core"
	"github.com/devicelab-dev/anchor-runner/pkg/hook"
	"github.com/devicelab-dev/anchor-runner/pkg/match"
	"github.com/devicelab-dev/anchor-runner/pkg/screen"
)

// Defaults
const (
	DefaultSettleDelay  = 300 * time.Millisecond
	DefaultTimeout      = 15 * time.Second
	DefaultPollInterval = 200 * time.Millisecond
	DefaultClearCount   = 20
)

// Engine is an interaction session against one device.
type Engine struct {
	transport core.Transport
	strategy  match.Strategy
	capturer  *screen.Capturer
	hub       *hook.Hub

	settle  time.Duration
	timeout time.Duration
	poll    time.Duration

	appPackage   string
	appActivity  string
	resourcePath string

	now   func() time.Time
	sleep func(time.Duration)

	mu sync.Mutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithHub attaches the event hub that observes actions.
func WithHub(h *hook.Hub) Option {
	return func(e *Engine) { e.hub = h }
}

// WithSettleDelay sets the pause after taps, swipes and key presses.
func WithSettleDelay(d time.Duration) Option {
	return func(e *Engine) { e.settle = d }
}

// WithTimeout sets the default polling budget.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// WithPollInterval sets the default pause between polls.
func WithPollInterval(d time.Duration) Option {
	return func(e *Engine) { e.poll = d }
}

// WithApp sets the application under test.
func WithApp(pkg, activity string) Option {
	return func(e *Engine) {
		e.appPackage = pkg
		e.appActivity = activity
	}
}

// WithResourcePath sets the template used to resolve image keys, for example
// "res/{package}/{key}@auto.png".
func WithResourcePath(template string) Option {
	return func(e *Engine) { e.resourcePath = template }
}

// WithClock replaces time.Now and time.Sleep.
func WithClock(now func() time.Time, sleep func(time.Duration)) Option {
	return func(e *Engine) {
		e.now = now
		e.sleep = sleep
	}
}

// New creates an engine. The capturer may be nil when screenshots are not
// needed; the strategy may be nil when image actions are not used.
func New(t core.Transport, s match.Strategy, c *screen.Capturer, opts ...Option) *Engine {
	e := &Engine{
		transport: t,
		strategy:  s,
		capturer:  c,
		settle:    DefaultSettleDelay,
		timeout:   DefaultTimeout,
		poll:      DefaultPollInterval,
		now:       time.Now,
		sleep:     time.Sleep,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Hub returns the engine's event hub (possibly nil).
func (e *Engine) Hub() *hook.Hub { return e.hub }

// Strategy returns the session's match strategy.
func (e *Engine) Strategy() match.Strategy { return e.strategy }

// ImageRef names a target image by resource key, host path or bitmap.
type ImageRef struct {
	Key   string
	Path  string
	Image image.Image
}

// ByKey refers to an image in the resource directory.
func ByKey(key string) ImageRef { return ImageRef{Key: key} }

// ByPath refers to an image file on the host.
func ByPath(path string) ImageRef { return ImageRef{Path: path} }

// ByImage refers to an in-memory image.
func ByImage(img image.Image) ImageRef { return ImageRef{Image: img} }

func (r ImageRef) String() string {
	switch {
	case r.Key != "":
		return "key:" + r.Key
	case r.Path != "":
		return r.Path
	case r.Image != nil:
		return fmt.Sprintf("image %v", r.Image.Bounds().Size())
	default:
		return "<none>"
	}
}

// target resolves a reference. A key wins over a path when a resource
// template is configured.
func (e *Engine) target(ref ImageRef) (match.Target, error) {
	switch {
	case ref.Key != "" && e.resourcePath != "":
		return match.Target{Path: e.ResourcePath(ref.Key)}, nil
	case ref.Path != "":
		return match.Target{Path: ref.Path}, nil
	case ref.Image != nil:
		return match.Target{Image: ref.Image}, nil
	case ref.Key != "":
		return match.Target{}, core.ErrInvalidArgument.WithMessage(fmt.Sprintf("image key %q given but no resource path configured", ref.Key))
	default:
		return match.Target{}, core.ErrInvalidArgument.WithMessage("image action needs a key, a path or an image")
	}
}

// ResourcePath expands the resource template for key.
func (e *Engine) ResourcePath(key string) string {
	r := strings.NewReplacer("{package}", e.appPackage, "{key}", key)
	return r.Replace(e.resourcePath)
}

func (e *Engine) budget(timeout, poll time.Duration) (time.Duration, time.Duration) {
	if timeout <= 0 {
		timeout = e.timeout
	}
	if poll <= 0 {
		poll = e.poll
	}
	return timeout, poll
}

func (e *Engine) settleDown() {
	if e.settle > 0 {
		e.sleep(e.settle)
	}
}

func (e *Engine) requireStrategy() error {
	if e.strategy == nil {
		return core.ErrInvalidArgument.WithMessage("no match strategy configured")
	}
	return nil
}
