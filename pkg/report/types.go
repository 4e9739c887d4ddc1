// Package report records engine actions into a JSON step log.
//
// A Reporter is a hook.Listener. Before events cache the start time (and,
// depending on the level, a screenshot and the foreground activity) under the
// event tag; After events consume that entry and append a Step. Save writes
// result.json next to an images/ directory holding the referenced screenshots.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/devicelab-dev/anchor-runner/pkg/core"
)

// Level selects what is captured around each action.
type Level int

// Report levels; combine with |.
const (
	LevelDefault Level = 1 << 0 // timing and outcome only
	LevelScreens Level = 1 << 1 // before/after screenshots
	LevelStack   Level = 1 << 2 // foreground activity

	LevelFull = LevelDefault | LevelScreens | LevelStack
)

// ParseLevel accepts "default", "screens", "stack", "full" or a
// comma-separated combination.
func ParseLevel(s string) (Level, error) {
	if strings.TrimSpace(s) == "" {
		return LevelDefault, nil
	}
	var l Level
	for _, part := range strings.Split(s, ",") {
		switch strings.ToLower(strings.TrimSpace(part)) {
		case "default":
			l |= LevelDefault
		case "screens":
			l |= LevelScreens
		case "stack":
			l |= LevelStack
		case "full":
			l |= LevelFull
		default:
			return 0, core.ErrInvalidArgument.WithMessage(fmt.Sprintf("unknown report level %q", part))
		}
	}
	return l, nil
}

// Result is the content of result.json.
type Result struct {
	Device DeviceInfo `json:"device"`
	Steps  []Step     `json:"steps"`
}

// DeviceInfo describes the device the run was recorded on.
type DeviceInfo struct {
	Serial    string          `json:"serial"`
	Display   core.Resolution `json:"display"`
	StartTime time.Time       `json:"startTime"`
}

// Step is one recorded action.
type Step struct {
	Action       string      `json:"action"`
	Success      bool        `json:"success"`
	Status       string      `json:"status"`
	Error        string      `json:"error,omitempty"`
	Traceback    string      `json:"traceback,omitempty"`
	Description  string      `json:"description,omitempty"`
	Position     *core.Point `json:"position,omitempty"`
	Target       string      `json:"target,omitempty"`
	ScreenBefore string      `json:"screenBefore,omitempty"`
	ScreenAfter  string      `json:"screenAfter,omitempty"`
	Screenshot   string      `json:"screenshot,omitempty"`
	Activity     string      `json:"activity,omitempty"`
	Time         float64     `json:"time"` // seconds, one decimal
}
