package engine

import (
	"image"
	"strings"
	"unicode/utf8"

	"github.com/devicelab-dev/anchor-runner/pkg/core"
	"github.com/devicelab-dev/anchor-runner/pkg/hook"
	"github.com/devicelab-dev/anchor-runner/pkg/logger"
	"github.com/devicelab-dev/anchor-runner/pkg/screen"
)

// SpaceToken in typed text is sent as a space key event.
const SpaceToken = "%s"

// Tap injects a tap at (x, y) as given; plain taps are never remapped.
func (e *Engine) Tap(x, y int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return hook.Do(e.hub, hook.EventClick, hook.Call{
		Action: "tap",
		Args:   []interface{}{x, y},
	}, func() error {
		return e.tap(x, y)
	})
}

// Click is an alias for Tap.
func (e *Engine) Click(x, y int) error {
	return e.Tap(x, y)
}

func (e *Engine) tap(x, y int) error {
	logger.Debug("tap %d,%d", x, y)
	if err := e.transport.InjectTap(x, y); err != nil {
		return err
	}
	e.settleDown()
	return nil
}

// Type enters text. Each SpaceToken is sent as a KEYCODE_SPACE key event
// between the surrounding segments; non-ASCII segments use the locale input
// path when the transport supports it.
func (e *Engine) Type(text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return hook.Do(e.hub, hook.EventType, hook.Call{
		Action: "type",
		Args:   []interface{}{text},
	}, func() error {
		return e.typeText(text)
	})
}

func (e *Engine) typeText(text string) error {
	for i, seg := range strings.Split(text, SpaceToken) {
		if i > 0 {
			if err := e.transport.InjectKeyEvent(core.KeySpace); err != nil {
				return err
			}
		}
		if seg == "" {
			continue
		}
		if err := e.injectSegment(seg); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) injectSegment(seg string) error {
	if isASCII(seg) {
		return e.transport.InjectText(seg)
	}
	if li, ok := e.transport.(core.LocaleTextInjector); ok {
		return li.InjectLocaleText(seg)
	}
	logger.Warn("transport has no locale input; sending %q as plain text", seg)
	return e.transport.InjectText(seg)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// ClearText presses delete count times (DefaultClearCount when count <= 0).
func (e *Engine) ClearText(count int) error {
	if count <= 0 {
		count = DefaultClearCount
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	return hook.Do(e.hub, hook.EventType, hook.Call{
		Action: "clear_text",
		Args:   []interface{}{count},
	}, func() error {
		for i := 0; i < count; i++ {
			if err := e.transport.InjectKeyEvent(core.KeyDel); err != nil {
				return err
			}
		}
		return nil
	})
}

// Swipe drags from (x1, y1) to (x2, y2).
func (e *Engine) Swipe(x1, y1, x2, y2 int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return hook.Do(e.hub, hook.EventSwipe, hook.Call{
		Action: "swipe",
		Args:   []interface{}{x1, y1, x2, y2},
	}, func() error {
		if err := e.transport.InjectSwipe(x1, y1, x2, y2); err != nil {
			return err
		}
		e.settleDown()
		return nil
	})
}

// Back presses the back key.
func (e *Engine) Back() error {
	return e.key("back", core.KeyBack)
}

// Home presses the home key.
func (e *Engine) Home() error {
	return e.key("home", core.KeyHome)
}

func (e *Engine) key(action, code string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return hook.Do(e.hub, hook.EventKey, hook.Call{
		Action: action,
		Args:   []interface{}{code},
	}, func() error {
		if err := e.transport.InjectKeyEvent(code); err != nil {
			return err
		}
		e.settleDown()
		return nil
	})
}

// Screenshot captures the screen and, when path is not empty, saves it as PNG.
func (e *Engine) Screenshot(path string) (image.Image, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return hook.Wrap(e.hub, hook.EventScreenshot, hook.Call{
		Action: "screenshot",
		Args:   []interface{}{path},
	}, func() (image.Image, error) {
		img, err := e.screenImage()
		if err != nil {
			return nil, err
		}
		if path != "" {
			if err := screen.Save(img, path); err != nil {
				return nil, err
			}
		}
		return img, nil
	})
}

// ScreenImage captures the screen without emitting events.
func (e *Engine) ScreenImage() (image.Image, error) {
	return e.screenImage()
}

func (e *Engine) screenImage() (image.Image, error) {
	if e.capturer == nil {
		return nil, core.ErrInvalidArgument.WithMessage("no screen capturer configured")
	}
	return e.capturer.Capture()
}
