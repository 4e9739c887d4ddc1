package match

import (
	"image"

	"github.com/devicelab-dev/anchor-runner/pkg/core"
	"github.com/devicelab-dev/anchor-runner/pkg/logger"
	"github.com/devicelab-dev/anchor-runner/pkg/mapping"
	"github.com/devicelab-dev/anchor-runner/pkg/screen"
)

// Local matches on the host against a freshly captured screenshot.
type Local struct {
	capturer  *screen.Capturer
	matcher   TemplateMatcher
	mapper    *mapping.Mapper
	threshold float64
}

// NewLocal creates a host-side strategy. A threshold <= 0 uses
// core.MatchThreshold.
func NewLocal(c *screen.Capturer, tm TemplateMatcher, m *mapping.Mapper, threshold float64) *Local {
	if m == nil {
		m = mapping.Identity()
	}
	if threshold <= 0 {
		threshold = core.MatchThreshold
	}
	return &Local{capturer: c, matcher: tm, mapper: m, threshold: threshold}
}

// Name returns "local".
func (l *Local) Name() string { return "local" }

// Locate captures the screen and searches it for the target.
func (l *Local) Locate(target Target) (core.MatchOutcome, error) {
	if err := target.Validate(); err != nil {
		return core.NotFound(), err
	}
	if target.Image == nil && target.Path == "" {
		return core.NotFound(), core.ErrInvalidArgument.WithMessage("local matching needs a host image, got " + target.String())
	}

	img := target.Image
	if img == nil {
		loaded, err := screen.Decode(target.Path)
		if err != nil {
			return core.NotFound(), core.ErrInvalidArgument.WithMessage("cannot read target " + target.Path).WithCause(err)
		}
		img = loaded
	}

	scanner, err := l.capturer.Capture()
	if err != nil {
		return core.NotFound(), err
	}
	return l.match(scanner, img)
}

func (l *Local) match(scanner, target image.Image) (core.MatchOutcome, error) {
	x, y, confidence, err := l.matcher.Match(scanner, target)
	if err != nil {
		return core.NotFound(), err
	}
	if confidence <= l.threshold {
		logger.Debug("local match below threshold: %.3f <= %.2f", confidence, l.threshold)
		return core.NotFound(), nil
	}
	ox, oy := l.mapper.ToPhysical(x, y)
	return core.Found(ox, oy, confidence), nil
}
