package match

import (
	"fmt"
	"strings"

	"github.com/devicelab-dev/anchor-runner/pkg/core"
	"github.com/devicelab-dev/anchor-runner/pkg/logger"
	"github.com/devicelab-dev/anchor-runner/pkg/mapping"
	"github.com/devicelab-dev/anchor-runner/pkg/screen"
)

// Mode selects the matching strategy.
type Mode string

// Mode values
const (
	ModeAuto   Mode = "auto"   // probe the device once
	ModeLocal  Mode = "local"  // always match on the host
	ModeRemote Mode = "remote" // always match on the device
)

// ParseMode validates a mode name; empty means auto.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeAuto:
		return ModeAuto, nil
	case ModeLocal:
		return ModeLocal, nil
	case ModeRemote:
		return ModeRemote, nil
	default:
		return "", core.ErrInvalidArgument.WithMessage(fmt.Sprintf("unknown matcher mode %q (auto, local, remote)", s))
	}
}

// Probe reports whether the device exposes the on-device matcher.
func Probe(t core.Transport) (bool, error) {
	out, err := t.ExecuteShell("which", MatcherCommand)
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) != "", nil
}

// Session bundles what a strategy needs.
type Session struct {
	Transport core.Transport
	Capturer  *screen.Capturer
	Mapper    *mapping.Mapper
	Matcher   TemplateMatcher // required for local matching
	Threshold float64
	RemoteDir string
}

// Select builds the strategy for a session. In auto mode the device is
// probed once; the result is fixed for the session.
func Select(mode Mode, s Session) (Strategy, error) {
	if mode == ModeAuto {
		remote, err := Probe(s.Transport)
		if err != nil {
			return nil, err
		}
		mode = ModeLocal
		if remote {
			mode = ModeRemote
		}
		logger.Info("matcher probe: on-device matcher available=%v, using %s", remote, mode)
	}

	switch mode {
	case ModeRemote:
		return NewRemote(s.Transport, s.Mapper, s.RemoteDir), nil
	case ModeLocal:
		if s.Matcher == nil {
			return nil, core.ErrInvalidArgument.WithMessage("local matching needs a template matcher")
		}
		return NewLocal(s.Capturer, s.Matcher, s.Mapper, s.Threshold), nil
	default:
		return nil, core.ErrInvalidArgument.WithMessage(fmt.Sprintf("unknown matcher mode %q", mode))
	}
}
