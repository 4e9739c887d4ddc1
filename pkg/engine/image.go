package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/devicelab-dev/anchor-runner/pkg/core"
	"github.com/devicelab-dev/anchor-runner/pkg/hook"
	"github.com/devicelab-dev/anchor-runner/pkg/logger"
	"github.com/devicelab-dev/anchor-runner/pkg/match"
)

// imageCall describes an image action for listeners. The path is the
// resolved one, so key lookups report the file actually matched.
func imageCall(action string, ref ImageRef, target match.Target, timeout, poll time.Duration) hook.Call {
	call := hook.Call{
		Action: action,
		Kwargs: map[string]interface{}{},
	}
	if ref.Key != "" {
		call.Kwargs["key"] = ref.Key
	}
	if target.Path != "" {
		call.Kwargs["path"] = target.Path
	}
	if target.Image != nil {
		call.Kwargs["image"] = target.Image
	}
	if timeout > 0 {
		call.Kwargs["timeout"] = timeout
		call.Kwargs["poll"] = poll
	}
	return call
}

// prepare resolves ref and checks that image actions can run, before any
// event is dispatched or the transport is touched.
func (e *Engine) prepare(ref ImageRef) (match.Target, error) {
	target, err := e.target(ref)
	if err != nil {
		return match.Target{}, err
	}
	if err := e.requireStrategy(); err != nil {
		return match.Target{}, err
	}
	return target, nil
}

// TapImage polls until the image is on screen, then taps its centre once and
// returns the tapped point, in the same override space the strategy reports.
// Zero timeout or poll use the engine defaults. Returns
// core.ErrImageNotFound when the budget runs out.
func (e *Engine) TapImage(ref ImageRef, timeout, poll time.Duration) (core.Point, error) {
	timeout, poll = e.budget(timeout, poll)
	target, err := e.prepare(ref)
	if err != nil {
		return core.Point{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	return hook.Wrap(e.hub, hook.EventClickImage, imageCall("tap_image", ref, target, timeout, poll), func() (core.Point, error) {
		attempts := 0
		for start := e.now(); e.now().Sub(start) < timeout; {
			attempts++
			out, err := e.locate(target)
			if err != nil {
				return core.Point{}, err
			}
			if out.Found() {
				p := out.Point()
				if err := e.tap(p.X, p.Y); err != nil {
					return core.Point{}, err
				}
				return p, nil
			}
			e.sleep(poll)
		}
		return core.Point{}, core.ErrImageNotFound.
			WithMessage(fmt.Sprintf("image %s not found within %s", ref, timeout)).
			WithDetails(map[string]interface{}{"attempts": attempts, "strategy": e.strategy.Name()})
	})
}

// ClickImage is an alias for TapImage with the default budget.
func (e *Engine) ClickImage(ref ImageRef) (core.Point, error) {
	return e.TapImage(ref, 0, 0)
}

// locate runs one match attempt. A malformed matcher payload counts as not
// found; transport and argument errors are returned.
func (e *Engine) locate(target match.Target) (core.MatchOutcome, error) {
	out, err := e.strategy.Locate(target)
	if errors.Is(err, core.ErrInvalidFormat) {
		logger.Warn("%s matcher: %v", e.strategy.Name(), err)
		return core.NotFound(), nil
	}
	return out, err
}

// Exists reports whether the image is on screen right now.
func (e *Engine) Exists(ref ImageRef) (bool, error) {
	target, err := e.prepare(ref)
	if err != nil {
		return false, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	return hook.Wrap(e.hub, hook.EventAssertExists, imageCall("exists", ref, target, 0, 0), func() (bool, error) {
		out, err := e.locate(target)
		if err != nil {
			return false, err
		}
		return out.Found(), nil
	})
}

// WaitForAppearance polls Exists until it is true. Returns
// core.ErrImageNotFound when the budget runs out.
func (e *Engine) WaitForAppearance(ref ImageRef, timeout, poll time.Duration) error {
	timeout, poll = e.budget(timeout, poll)
	ok, err := e.waitFor(ref, true, timeout, poll)
	if err != nil {
		return err
	}
	if !ok {
		return core.ErrImageNotFound.WithMessage(fmt.Sprintf("image %s did not appear within %s", ref, timeout))
	}
	return nil
}

// WaitForDisappearance polls Exists until it is false. Returns
// core.ErrWaitTimeout when the image is still there after the budget.
func (e *Engine) WaitForDisappearance(ref ImageRef, timeout, poll time.Duration) error {
	timeout, poll = e.budget(timeout, poll)
	ok, err := e.waitFor(ref, false, timeout, poll)
	if err != nil {
		return err
	}
	if !ok {
		return core.ErrWaitTimeout.WithMessage(fmt.Sprintf("image %s still visible after %s", ref, timeout))
	}
	return nil
}

// AwaitAppearance is WaitForAppearance that reports a timeout as false
// instead of an error.
func (e *Engine) AwaitAppearance(ref ImageRef, timeout, poll time.Duration) (bool, error) {
	timeout, poll = e.budget(timeout, poll)
	return e.waitFor(ref, true, timeout, poll)
}

// AwaitDisappearance is WaitForDisappearance that reports a timeout as false
// instead of an error.
func (e *Engine) AwaitDisappearance(ref ImageRef, timeout, poll time.Duration) (bool, error) {
	timeout, poll = e.budget(timeout, poll)
	return e.waitFor(ref, false, timeout, poll)
}

func (e *Engine) waitFor(ref ImageRef, want bool, timeout, poll time.Duration) (bool, error) {
	if _, err := e.prepare(ref); err != nil {
		return false, err
	}
	for start := e.now(); e.now().Sub(start) < timeout; {
		found, err := e.Exists(ref)
		if err != nil {
			return false, err
		}
		if found == want {
			return true, nil
		}
		e.sleep(poll)
	}
	return false, nil
}
