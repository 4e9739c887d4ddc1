// Package mapping converts between the override resolution test scripts are
// written against and the physical resolution of the device panel.
//
// The override resolution is fitted to the full physical height, keeping its
// aspect ratio, and centered horizontally. That centered sub-rectangle is the
// visible area: screenshots are cropped to it before local matching, and
// points returned by an on-device matcher are offset by it.
package mapping

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/devicelab-dev/anchor-runner/pkg/core"
)

// minRemotePoints is the number of correspondences an on-device matcher must
// report before its average is trusted.
const minRemotePoints = 4

// Mapper converts coordinates for one session. It is immutable.
type Mapper struct {
	enabled  bool
	physical core.Resolution
	override core.Resolution
}

// New creates a Mapper. Resolutions are only validated when remapping is
// enabled; a disabled mapper is the identity.
func New(enabled bool, physical, override core.Resolution) (*Mapper, error) {
	if enabled {
		if !physical.Valid() {
			return nil, core.ErrInvalidArgument.WithMessage(fmt.Sprintf("physical resolution %s must be positive", physical))
		}
		if !override.Valid() {
			return nil, core.ErrInvalidArgument.WithMessage(fmt.Sprintf("override resolution %s must be positive", override))
		}
	}
	m := &Mapper{enabled: enabled, physical: physical, override: override}
	if enabled && m.MappingSize().Width == 0 {
		return nil, core.ErrInvalidArgument.WithMessage(fmt.Sprintf("override resolution %s is too narrow for %s", override, physical))
	}
	return m, nil
}

// Identity returns a disabled mapper.
func Identity() *Mapper {
	return &Mapper{}
}

// Enabled reports whether remapping is active.
func (m *Mapper) Enabled() bool {
	return m != nil && m.enabled
}

// Physical returns the device panel resolution.
func (m *Mapper) Physical() core.Resolution { return m.physical }

// Override returns the authored resolution.
func (m *Mapper) Override() core.Resolution { return m.override }

// MappingSize is the override resolution scaled to the full physical height.
func (m *Mapper) MappingSize() core.Resolution {
	return core.Resolution{
		Width:  m.override.Width * m.physical.Height / m.override.Height,
		Height: m.physical.Height,
	}
}

// VisibleArea returns the physical sub-rectangle that corresponds to the
// override resolution. When disabled it is the whole physical screen, or the
// empty rectangle if the physical size is unknown.
func (m *Mapper) VisibleArea() core.Rect {
	if !m.Enabled() {
		p := m.physicalOrZero()
		return core.Rect{Right: p.Width, Bottom: p.Height}
	}
	ms := m.MappingSize()
	left := (m.physical.Width - ms.Width) / 2
	return core.Rect{Left: left, Top: 0, Right: left + ms.Width, Bottom: ms.Height}
}

func (m *Mapper) physicalOrZero() core.Resolution {
	if m == nil {
		return core.Resolution{}
	}
	return m.physical
}

// ToPhysical scales a point measured inside the visible area (a match on
// the cropped screenshot) to the tap coordinate space:
// x' = x * override.Width / mapping.Width, truncated.
func (m *Mapper) ToPhysical(x, y int) (int, int) {
	if !m.Enabled() {
		return x, y
	}
	ms := m.MappingSize()
	return x * m.override.Width / ms.Width, y * m.override.Height / ms.Height
}

// ToOverride maps a full-screen physical point, as reported by the
// on-device matcher: the visible area's offset is removed first, then the
// point is scaled like ToPhysical.
func (m *Mapper) ToOverride(x, y int) (int, int) {
	if !m.Enabled() {
		return x, y
	}
	va := m.VisibleArea()
	return m.ToPhysical(x-va.Left, y-va.Top)
}

// ToVisible is the truncating inverse of ToPhysical: it places a tap
// coordinate on the cropped screenshot.
func (m *Mapper) ToVisible(x, y int) (int, int) {
	if !m.Enabled() {
		return x, y
	}
	ms := m.MappingSize()
	return x * ms.Width / m.override.Width, y * ms.Height / m.override.Height
}

// ParseRemoteMatch decodes the on-device matcher output: a pipe-delimited
// list of "x,y" points in physical coordinates. The points are averaged and
// mapped to override space. An empty payload or fewer than four points is
// NotFound; anything that is not a list of integer pairs is ErrInvalidFormat.
func (m *Mapper) ParseRemoteMatch(raw string) (core.MatchOutcome, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return core.NotFound(), nil
	}

	var sumX, sumY, count int
	for _, seg := range strings.Split(raw, "|") {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		x, y, err := parsePair(seg)
		if err != nil {
			return core.NotFound(), core.ErrInvalidFormat.WithMessage(fmt.Sprintf("invalid match point %q", seg)).WithCause(err)
		}
		sumX += x
		sumY += y
		count++
	}
	if count < minRemotePoints {
		return core.NotFound(), nil
	}

	ox, oy := m.ToOverride(sumX/count, sumY/count)
	return core.Found(ox, oy, 1), nil
}

func parsePair(seg string) (int, int, error) {
	xs, ys, ok := strings.Cut(seg, ",")
	if !ok {
		return 0, 0, fmt.Errorf("missing comma")
	}
	x, err := strconv.Atoi(strings.TrimSpace(xs))
	if err != nil {
		return 0, 0, err
	}
	y, err := strconv.Atoi(strings.TrimSpace(ys))
	if err != nil {
		return 0, 0, err
	}
	return x, y, nil
}
