package report

import (
	"encoding/json"
	"fmt"
	"image"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/devicelab-dev/anchor-runner/pkg/core"
	"github.com/devicelab-dev/anchor-runner/pkg/hook"
	"github.com/devicelab-dev/anchor-runner/pkg/logger"
	"github.com/devicelab-dev/anchor-runner/pkg/mapping"
	"github.com/devicelab-dev/anchor-runner/pkg/screen"
)

// ResultFile is the report file name inside the report directory.
const ResultFile = "result.json"

// Source supplies device state. *engine.Engine implements it.
type Source interface {
	ScreenImage() (image.Image, error)
	CurrentActivity() (string, error)
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithDevice records the device serial and display size in the header.
func WithDevice(serial string, display core.Resolution) Option {
	return func(r *Reporter) {
		r.result.Device.Serial = serial
		r.result.Device.Display = display
	}
}

// WithMapper converts tapped override-space points to positions on the
// cropped screenshots.
func WithMapper(m *mapping.Mapper) Option {
	return func(r *Reporter) { r.mapper = m }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Reporter) { r.now = now }
}

type before struct {
	start    time.Time
	screen   image.Image
	activity string
}

// Reporter builds a Result from hook events.
type Reporter struct {
	source Source
	dir    string
	level  Level
	mapper *mapping.Mapper
	now    func() time.Time

	mu     sync.Mutex
	cache  map[string]*before
	result Result
	seq    int
}

// New creates a reporter writing into dir. Images go to dir/images.
func New(source Source, dir string, level Level, opts ...Option) (*Reporter, error) {
	if level == 0 {
		level = LevelDefault
	}
	if level&(LevelScreens|LevelStack) != 0 && source == nil {
		return nil, core.ErrInvalidArgument.WithMessage("report level needs a device source")
	}
	r := &Reporter{
		source: source,
		dir:    dir,
		level:  level,
		mapper: mapping.Identity(),
		now:    time.Now,
		cache:  make(map[string]*before),
	}
	for _, o := range opts {
		o(r)
	}
	if err := os.MkdirAll(r.imagesDir(), 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}
	r.result.Device.StartTime = r.now()
	r.result.Steps = []Step{}
	return r, nil
}

// Attach registers the reporter for every event category.
func (r *Reporter) Attach(h *hook.Hub) {
	h.Register(r, hook.EventAll)
}

// Detach removes the registration made by Attach.
func (r *Reporter) Detach(h *hook.Hub) {
	h.Unregister(r, hook.EventAll)
}

// OnEvent implements hook.Listener.
func (r *Reporter) OnEvent(e hook.Event) {
	if e.Phase == hook.Before {
		r.onBefore(e)
		return
	}
	r.onAfter(e)
}

func (r *Reporter) onBefore(e hook.Event) {
	b := &before{start: r.now()}
	if r.screens() {
		b.screen = r.capture()
	}
	if r.level&LevelStack != 0 {
		b.activity = r.activity()
	}

	r.mu.Lock()
	r.cache[e.Tag] = b
	r.mu.Unlock()
}

func (r *Reporter) onAfter(e hook.Event) {
	r.mu.Lock()
	b, ok := r.cache[e.Tag]
	delete(r.cache, e.Tag)
	r.mu.Unlock()
	if !ok {
		logger.Warn("report: after event %s without before", e.Tag)
		b = &before{start: e.Start}
	}

	step := Step{
		Action:  e.Category.String(),
		Success: !e.Failed(),
		Status:  core.StatusFromError(failureErr(e)).String(),
		Time:    math.Round(r.now().Sub(b.start).Seconds()*10) / 10,
	}
	if e.Failed() {
		step.Error = e.Failure.Err.Error()
		step.Traceback = e.Failure.Stack
	}

	if r.screens() {
		r.attachScreens(&step, e, b.screen)
	}
	switch e.Category {
	case hook.EventClick:
		step.Position = pointArgs(e.Args)
	case hook.EventClickImage:
		if p, ok := e.Result.(core.Point); ok && !e.Failed() {
			step.Position = &p
		}
	case hook.EventType:
		if len(e.Args) > 0 {
			step.Description = fmt.Sprint(e.Args[0])
		}
	case hook.EventAssertExists:
		found, _ := e.Result.(bool)
		step.Success = !e.Failed() && found
		if !e.Failed() && !found {
			step.Status = core.StatusFailed.String()
		}
	}
	if r.level&LevelStack != 0 {
		step.Activity = r.activity()
	}

	r.mu.Lock()
	r.result.Steps = append(r.result.Steps, step)
	r.mu.Unlock()
}

func failureErr(e hook.Event) error {
	if e.Failure == nil {
		return nil
	}
	return e.Failure.Err
}

func pointArgs(args []interface{}) *core.Point {
	if len(args) < 2 {
		return nil
	}
	x, okX := args[0].(int)
	y, okY := args[1].(int)
	if !okX || !okY {
		return nil
	}
	return &core.Point{X: x, Y: y}
}

func (r *Reporter) attachScreens(step *Step, e hook.Event, last image.Image) {
	current := r.capture()

	switch e.Category {
	case hook.EventClick, hook.EventClickImage:
		if e.Category == hook.EventClickImage {
			step.Target = r.saveTarget(e.Kwargs)
		}
		var p *core.Point
		if e.Category == hook.EventClick {
			p = pointArgs(e.Args)
		} else if pt, ok := e.Result.(core.Point); ok && !e.Failed() {
			p = &pt
		}
		if last != nil {
			if p != nil {
				step.ScreenBefore = r.saveImage("before_tap", markPoint(last, r.onScreen(*p)))
			} else {
				step.ScreenBefore = r.saveImage("before_tap", last)
			}
		}
		if current != nil {
			step.ScreenAfter = r.saveImage("after_tap", current)
		}
	case hook.EventType, hook.EventSwipe, hook.EventKey:
		if last != nil {
			step.ScreenBefore = r.saveImage("before_"+e.Action, last)
		}
		if current != nil {
			step.ScreenAfter = r.saveImage("after_"+e.Action, current)
		}
	case hook.EventAssertExists, hook.EventScreenshot:
		if current != nil {
			step.Screenshot = r.saveImage(e.Action, current)
		}
	}
}

// onScreen converts a tapped point, in override space, to a position on a
// captured screenshot, which is cropped to the visible area.
func (r *Reporter) onScreen(p core.Point) image.Point {
	return image.Pt(r.mapper.ToVisible(p.X, p.Y))
}

func (r *Reporter) saveTarget(kwargs map[string]interface{}) string {
	if img, ok := kwargs["image"].(image.Image); ok {
		return r.saveImage("target", img)
	}
	path, ok := kwargs["path"].(string)
	if !ok || path == "" {
		return ""
	}
	name := r.nextName("target")
	if err := copyFile(path, filepath.Join(r.dir, name)); err != nil {
		logger.Warn("report: copy target %s: %v", path, err)
		return ""
	}
	return filepath.ToSlash(name)
}

// saveImage writes img under images/ and returns its path relative to the
// report directory, or "" on failure.
func (r *Reporter) saveImage(prefix string, img image.Image) string {
	name := r.nextName(prefix)
	if err := screen.Save(img, filepath.Join(r.dir, name)); err != nil {
		logger.Warn("report: save %s: %v", name, err)
		return ""
	}
	return filepath.ToSlash(name)
}

func (r *Reporter) nextName(prefix string) string {
	r.mu.Lock()
	r.seq++
	n := r.seq
	r.mu.Unlock()
	return filepath.Join("images", fmt.Sprintf("%03d_%s.png", n, prefix))
}

func (r *Reporter) screens() bool {
	return r.level&LevelScreens != 0
}

func (r *Reporter) capture() image.Image {
	img, err := r.source.ScreenImage()
	if err != nil {
		logger.Warn("report: screenshot failed: %v", err)
		return nil
	}
	return img
}

func (r *Reporter) activity() string {
	a, err := r.source.CurrentActivity()
	if err != nil {
		logger.Warn("report: current activity: %v", err)
		return ""
	}
	return a
}

func (r *Reporter) imagesDir() string {
	return filepath.Join(r.dir, "images")
}

// Result returns a copy of the recorded report.
func (r *Reporter) Result() Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.result
	out.Steps = append([]Step(nil), r.result.Steps...)
	return out
}

// Pending returns how many actions have started but not finished.
func (r *Reporter) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cache)
}

// Save writes result.json. It fails while an action is still in flight.
func (r *Reporter) Save() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.cache) > 0 {
		return fmt.Errorf("report has %d unfinished actions", len(r.cache))
	}
	return writeJSONAtomic(filepath.Join(r.dir, ResultFile), r.result)
}

// writeJSONAtomic writes v to path through a temp file and rename, so
// readers never see a partial file.
func writeJSONAtomic(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".result-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src) //#nosec G304 -- target image chosen by the test author
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst) //#nosec G304 -- inside the report directory
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
