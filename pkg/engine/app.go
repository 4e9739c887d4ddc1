package engine

import (
	"regexp"
	"strconv"

	"github.com/devicelab-dev/anchor-runner/pkg/core"
)

// App identifies the foreground application.
type App struct {
	Package  string `json:"package"`
	Activity string `json:"activity"`
	PID      int    `json:"pid,omitempty"`
}

var (
	topActivityRE = regexp.MustCompile(`ACTIVITY (?P<package>[^/]+)/(?P<activity>[^/\s]+) \w+ pid=(?P<pid>\d+)`)
	focusedAppRE  = regexp.MustCompile(`mFocusedApp=.*ActivityRecord\{\w+ \w+ (?P<package>[^/\s]+)/(?P<activity>\S+)`)
)

func (e *Engine) requireApp() error {
	if e.appPackage == "" {
		return core.ErrInvalidArgument.WithMessage("no application configured")
	}
	return nil
}

// Launch starts the configured activity. Without an activity the package's
// launcher entry is started through monkey.
func (e *Engine) Launch() error {
	if err := e.requireApp(); err != nil {
		return err
	}
	if e.appActivity == "" {
		_, err := e.transport.ExecuteShell("monkey", "-p", e.appPackage, "-c", "android.intent.category.LAUNCHER", "1")
		return err
	}
	if ac, ok := e.transport.(core.AppController); ok {
		return ac.StartActivity(e.appPackage, e.appActivity)
	}
	_, err := e.transport.ExecuteShell("am", "start", "-n", e.appPackage+"/"+e.appActivity)
	return err
}

// Stop force-stops the configured application.
func (e *Engine) Stop() error {
	if err := e.requireApp(); err != nil {
		return err
	}
	if ac, ok := e.transport.(core.AppController); ok {
		return ac.ForceStop(e.appPackage)
	}
	_, err := e.transport.ExecuteShell("am", "force-stop", e.appPackage)
	return err
}

// CurrentApp returns the foreground application, read from dumpsys.
func (e *Engine) CurrentApp() (App, error) {
	out, err := e.transport.ExecuteShell("dumpsys", "activity", "top")
	if err != nil {
		return App{}, err
	}
	if app, ok := parseTopActivity(out); ok {
		return app, nil
	}

	out, err = e.transport.ExecuteShell("dumpsys", "window", "windows")
	if err != nil {
		return App{}, err
	}
	if app, ok := parseFocusedApp(out); ok {
		return app, nil
	}
	return App{}, core.ErrTransport.WithMessage("could not determine the focused app")
}

// CurrentActivity returns "package/activity" of the foreground app.
func (e *Engine) CurrentActivity() (string, error) {
	app, err := e.CurrentApp()
	if err != nil {
		return "", err
	}
	return app.Package + "/" + app.Activity, nil
}

// AssertActivity reports whether name is the foreground activity.
func (e *Engine) AssertActivity(name string) (bool, error) {
	cur, err := e.CurrentActivity()
	if err != nil {
		return false, err
	}
	return cur == name, nil
}

func parseTopActivity(out string) (App, bool) {
	m := topActivityRE.FindStringSubmatch(out)
	if m == nil {
		return App{}, false
	}
	pid, _ := strconv.Atoi(m[3])
	return App{Package: m[1], Activity: m[2], PID: pid}, true
}

func parseFocusedApp(out string) (App, bool) {
	m := focusedAppRE.FindStringSubmatch(out)
	if m == nil {
		return App{}, false
	}
	return App{Package: m[1], Activity: m[2]}, true
}
