package engine

import (
	"errors"
	"image"
	"image/color"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/devicelab-dev/anchor-runner/pkg/core"
	"github.com/devicelab-dev/anchor-runner/pkg/device/mock"
	"github.com/devicelab-dev/anchor-runner/pkg/hook"
	"github.com/devicelab-dev/anchor-runner/pkg/mapping"
	"github.com/devicelab-dev/anchor-runner/pkg/match"
	"github.com/devicelab-dev/anchor-runner/pkg/screen"
)

type fakeClock struct {
	t      time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Sleep(d time.Duration) {
	c.sleeps = append(c.sleeps, d)
	c.t = c.t.Add(d)
}

// scripted returns outcomes (or errors) in order, then NotFound.
type scripted struct {
	outcomes []core.MatchOutcome
	errs     []error
	targets  []match.Target
}

func (s *scripted) Name() string { return "scripted" }

func (s *scripted) Locate(t match.Target) (core.MatchOutcome, error) {
	i := len(s.targets)
	s.targets = append(s.targets, t)
	if i < len(s.errs) && s.errs[i] != nil {
		return core.NotFound(), s.errs[i]
	}
	if i < len(s.outcomes) {
		return s.outcomes[i], nil
	}
	return core.NotFound(), nil
}

func (s *scripted) calls() int { return len(s.targets) }

type events struct {
	got []hook.Event
}

func (r *events) OnEvent(e hook.Event) { r.got = append(r.got, e) }

func newTestEngine(strategy match.Strategy, opts ...Option) (*Engine, *mock.Transport, *fakeClock) {
	tr := mock.New(mock.Config{})
	clock := newFakeClock()
	opts = append([]Option{WithClock(clock.Now, clock.Sleep)}, opts...)
	return New(tr, strategy, nil, opts...), tr, clock
}

func TestTapImage_FoundOnThirdPoll(t *testing.T) {
	s := &scripted{outcomes: []core.MatchOutcome{core.NotFound(), core.NotFound(), core.Found(50, 100, 0.9)}}
	e, tr, clock := newTestEngine(s)

	p, err := e.TapImage(ByPath("ok.png"), 5*time.Second, 200*time.Millisecond)
	if err != nil {
		t.Fatalf("TapImage failed: %v", err)
	}
	if s.calls() != 3 {
		t.Errorf("locate calls = %d, want 3", s.calls())
	}
	if p != (core.Point{X: 50, Y: 100}) {
		t.Errorf("returned %v, want (50,100)", p)
	}
	taps := tr.Taps()
	if len(taps) != 1 || taps[0] != "50,100" {
		t.Errorf("taps = %v, want [50,100]", taps)
	}
	if last := clock.sleeps[len(clock.sleeps)-1]; last != DefaultSettleDelay {
		t.Errorf("last sleep = %v, want settle delay", last)
	}
}

type fixedMatcher struct {
	x, y       int
	confidence float64
}

func (f fixedMatcher) Match(scanner, target image.Image) (int, int, float64, error) {
	return f.x, f.y, f.confidence, nil
}

// A portrait script on a landscape panel: the match on the cropped
// screenshot is scaled into override space and tapped there unchanged.
func TestTapImage_LocalMatchTappedInOverrideSpace(t *testing.T) {
	m, err := mapping.New(true, core.Resolution{Width: 200, Height: 100}, core.Resolution{Width: 100, Height: 200})
	if err != nil {
		t.Fatal(err)
	}
	tr := mock.New(mock.Config{Screen: image.NewRGBA(image.Rect(0, 0, 200, 100))})
	clock := newFakeClock()
	c := screen.New(tr, m, screen.WithLocalDir(t.TempDir()))
	local := match.NewLocal(c, fixedMatcher{x: 25, y: 50, confidence: 0.95}, m, 0)
	e := New(tr, local, c, WithClock(clock.Now, clock.Sleep))

	p, err := e.TapImage(ByImage(image.NewRGBA(image.Rect(0, 0, 4, 4))), time.Second, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("TapImage failed: %v", err)
	}
	if p != (core.Point{X: 50, Y: 100}) {
		t.Errorf("returned %v, want (50,100)", p)
	}
	if taps := tr.Taps(); len(taps) != 1 || taps[0] != "50,100" {
		t.Errorf("taps = %v, want [50,100]", taps)
	}
}

func TestTapImage_NeverFound(t *testing.T) {
	s := &scripted{}
	e, tr, _ := newTestEngine(s)

	_, err := e.TapImage(ByPath("missing.png"), time.Second, 200*time.Millisecond)
	if !errors.Is(err, core.ErrImageNotFound) {
		t.Fatalf("error = %v, want ErrImageNotFound", err)
	}
	if s.calls() != 5 {
		t.Errorf("attempts = %d, want 5", s.calls())
	}
	if tr.Count(mock.OpTap) != 0 {
		t.Errorf("taps = %v, want none", tr.Taps())
	}
}

func TestTapImage_InvalidFormatRetried(t *testing.T) {
	s := &scripted{
		errs:     []error{core.ErrInvalidFormat.WithMessage("garbage")},
		outcomes: []core.MatchOutcome{core.NotFound(), core.Found(3, 4, 1)},
	}
	e, tr, _ := newTestEngine(s)

	if _, err := e.TapImage(ByPath("ok.png"), time.Second, 100*time.Millisecond); err != nil {
		t.Fatalf("TapImage failed: %v", err)
	}
	if taps := tr.Taps(); len(taps) != 1 || taps[0] != "3,4" {
		t.Errorf("taps = %v", taps)
	}
}

func TestTapImage_TransportErrorPropagates(t *testing.T) {
	s := &scripted{errs: []error{core.ErrTransport.WithMessage("adb gone")}}
	e, _, _ := newTestEngine(s)

	_, err := e.TapImage(ByPath("ok.png"), 10*time.Second, 0)
	if !errors.Is(err, core.ErrTransport) {
		t.Fatalf("error = %v, want ErrTransport", err)
	}
	if s.calls() != 1 {
		t.Errorf("attempts = %d, want 1", s.calls())
	}
}

func TestImageActions_InvalidArgumentBeforeTransport(t *testing.T) {
	s := &scripted{}
	e, tr, _ := newTestEngine(s)

	if _, err := e.TapImage(ImageRef{}, time.Second, 0); !errors.Is(err, core.ErrInvalidArgument) {
		t.Errorf("TapImage: %v", err)
	}
	if _, err := e.Exists(ImageRef{}); !errors.Is(err, core.ErrInvalidArgument) {
		t.Errorf("Exists: %v", err)
	}
	if err := e.WaitForAppearance(ImageRef{}, time.Second, 0); !errors.Is(err, core.ErrInvalidArgument) {
		t.Errorf("WaitForAppearance: %v", err)
	}
	if _, err := e.TapImage(ByKey("login"), time.Second, 0); !errors.Is(err, core.ErrInvalidArgument) {
		t.Errorf("key without resource path: %v", err)
	}
	if len(tr.Calls()) != 0 || s.calls() != 0 {
		t.Errorf("transport or matcher used: %v, %d", tr.Calls(), s.calls())
	}
}

func TestImageActions_InvalidArgumentDispatchesNothing(t *testing.T) {
	h := hook.NewHub()
	rec := &events{}
	h.Register(rec, hook.EventAll)
	tr := mock.New(mock.Config{})
	c := screen.New(tr, nil, screen.WithLocalDir(t.TempDir()))
	e := New(tr, match.NewLocal(c, fixedMatcher{}, nil, 0), c, WithHub(h))

	if _, err := e.TapImage(ImageRef{}, time.Second, 0); !errors.Is(err, core.ErrInvalidArgument) {
		t.Errorf("TapImage: %v", err)
	}
	if _, err := e.Exists(ImageRef{}); !errors.Is(err, core.ErrInvalidArgument) {
		t.Errorf("Exists: %v", err)
	}
	if ok, err := e.AwaitAppearance(ImageRef{}, time.Second, 0); ok || !errors.Is(err, core.ErrInvalidArgument) {
		t.Errorf("AwaitAppearance = %v, %v", ok, err)
	}
	if len(rec.got) != 0 {
		t.Errorf("events = %+v, want none", rec.got)
	}
	if len(tr.Calls()) != 0 {
		t.Errorf("transport calls = %v, want none", tr.Calls())
	}
}

func TestImageRef_KeyResolution(t *testing.T) {
	s := &scripted{outcomes: []core.MatchOutcome{core.Found(1, 1, 1)}}
	e, _, _ := newTestEngine(s, WithApp("com.example", ".Main"), WithResourcePath("res/{package}/{key}@auto.png"))

	if _, err := e.Exists(ByKey("login")); err != nil {
		t.Fatal(err)
	}
	if got := s.targets[0].Path; got != "res/com.example/login@auto.png" {
		t.Errorf("resolved path = %q", got)
	}
}

func TestExists(t *testing.T) {
	s := &scripted{
		outcomes: []core.MatchOutcome{core.Found(1, 1, 1), core.NotFound()},
		errs:     []error{nil, nil, core.ErrInvalidFormat, core.ErrTransport},
	}
	e, tr, _ := newTestEngine(s)

	for i, want := range []bool{true, false, false} {
		got, err := e.Exists(ByPath("x.png"))
		if err != nil || got != want {
			t.Errorf("attempt %d: Exists = %v, %v; want %v", i, got, err, want)
		}
	}
	if _, err := e.Exists(ByPath("x.png")); !errors.Is(err, core.ErrTransport) {
		t.Errorf("transport failure: %v", err)
	}
	if s.calls() != 4 {
		t.Errorf("locate calls = %d, want 4 (single attempt each)", s.calls())
	}
	if tr.Count(mock.OpTap) != 0 {
		t.Error("Exists tapped")
	}
}

func TestWaits(t *testing.T) {
	found := core.Found(1, 1, 1)
	tests := []struct {
		name     string
		outcomes []core.MatchOutcome
		run      func(e *Engine) error
		wantErr  error
		want     int // locate calls
	}{
		{
			name:     "appears on second poll",
			outcomes: []core.MatchOutcome{core.NotFound(), found},
			run: func(e *Engine) error {
				return e.WaitForAppearance(ByPath("x.png"), time.Second, 200*time.Millisecond)
			},
			want: 2,
		},
		{
			name: "never appears",
			run: func(e *Engine) error {
				return e.WaitForAppearance(ByPath("x.png"), time.Second, 200*time.Millisecond)
			},
			wantErr: core.ErrImageNotFound,
			want:    5,
		},
		{
			name:     "disappears",
			outcomes: []core.MatchOutcome{found, found},
			run: func(e *Engine) error {
				return e.WaitForDisappearance(ByPath("x.png"), time.Second, 200*time.Millisecond)
			},
			want: 3,
		},
		{
			name:     "never disappears",
			outcomes: []core.MatchOutcome{found, found, found, found, found, found},
			run: func(e *Engine) error {
				return e.WaitForDisappearance(ByPath("x.png"), time.Second, 200*time.Millisecond)
			},
			wantErr: core.ErrWaitTimeout,
			want:    5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &scripted{outcomes: tt.outcomes}
			e, _, _ := newTestEngine(s)
			err := tt.run(e)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if s.calls() != tt.want {
				t.Errorf("locate calls = %d, want %d", s.calls(), tt.want)
			}
		})
	}
}

func TestAwait_TimeoutIsNotAnError(t *testing.T) {
	e, _, _ := newTestEngine(&scripted{})
	ok, err := e.AwaitAppearance(ByPath("x.png"), time.Second, 250*time.Millisecond)
	if ok || err != nil {
		t.Errorf("AwaitAppearance = %v, %v; want false, nil", ok, err)
	}

	gone := &scripted{outcomes: []core.MatchOutcome{core.Found(1, 1, 1)}}
	e, _, _ = newTestEngine(gone)
	ok, err = e.AwaitDisappearance(ByPath("x.png"), time.Second, 250*time.Millisecond)
	if !ok || err != nil {
		t.Errorf("AwaitDisappearance = %v, %v; want true, nil", ok, err)
	}
}

func TestWaits_DefaultBudget(t *testing.T) {
	e, _, clock := newTestEngine(&scripted{}, WithTimeout(time.Second), WithPollInterval(500*time.Millisecond))
	start := clock.Now()
	if ok, _ := e.AwaitAppearance(ByPath("x.png"), 0, 0); ok {
		t.Fatal("unexpected appearance")
	}
	if elapsed := clock.Now().Sub(start); elapsed != time.Second {
		t.Errorf("elapsed = %v, want 1s", elapsed)
	}
}

func TestType_SpaceToken(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"a%sb", []string{"text:a", "key:KEYCODE_SPACE", "text:b"}},
		{"hello", []string{"text:hello"}},
		{"%sx%s", []string{"key:KEYCODE_SPACE", "text:x", "key:KEYCODE_SPACE"}},
		{"héllo%s世界", []string{"locale_text:héllo", "key:KEYCODE_SPACE", "locale_text:世界"}},
	}
	for _, tt := range tests {
		e, tr, _ := newTestEngine(nil)
		if err := e.Type(tt.in); err != nil {
			t.Fatalf("Type(%q) failed: %v", tt.in, err)
		}
		var got []string
		for _, c := range tr.Calls() {
			got = append(got, c.Op+":"+strings.Join(c.Args, " "))
		}
		if strings.Join(got, "|") != strings.Join(tt.want, "|") {
			t.Errorf("Type(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestTap_Settles(t *testing.T) {
	e, tr, clock := newTestEngine(nil, WithSettleDelay(50*time.Millisecond))

	if err := e.Click(10, 20); err != nil {
		t.Fatal(err)
	}
	if taps := tr.Taps(); len(taps) != 1 || taps[0] != "10,20" {
		t.Errorf("taps = %v, want [10,20]", taps)
	}
	if len(clock.sleeps) != 1 || clock.sleeps[0] != 50*time.Millisecond {
		t.Errorf("sleeps = %v", clock.sleeps)
	}
}

func TestKeysSwipeAndClear(t *testing.T) {
	e, tr, _ := newTestEngine(nil)

	if err := e.Back(); err != nil {
		t.Fatal(err)
	}
	if err := e.Home(); err != nil {
		t.Fatal(err)
	}
	if err := e.Swipe(1, 2, 3, 4); err != nil {
		t.Fatal(err)
	}
	if err := e.ClearText(0); err != nil {
		t.Fatal(err)
	}

	keys := tr.CallsOf(mock.OpKey)
	if len(keys) != 2+DefaultClearCount {
		t.Fatalf("key events = %d", len(keys))
	}
	if keys[0].Args[0] != core.KeyBack || keys[1].Args[0] != core.KeyHome || keys[2].Args[0] != core.KeyDel {
		t.Errorf("key order = %v", keys[:3])
	}
	if sw := tr.CallsOf(mock.OpSwipe); len(sw) != 1 || strings.Join(sw[0].Args, ",") != "1,2,3,4" {
		t.Errorf("swipe calls = %v", sw)
	}
}

func TestActions_TransportFailure(t *testing.T) {
	e, tr, clock := newTestEngine(nil)
	tr.SetFail(mock.OpTap, core.ErrTransport)

	if err := e.Tap(1, 1); !errors.Is(err, core.ErrTransport) {
		t.Errorf("Tap error = %v", err)
	}
	if len(clock.sleeps) != 0 {
		t.Error("settled after failed tap")
	}
}

func TestActions_EmitEvents(t *testing.T) {
	h := hook.NewHub()
	rec := &events{}
	h.Register(rec, hook.EventAll)

	s := &scripted{}
	e, _, _ := newTestEngine(s, WithHub(h))

	_ = e.Tap(5, 6)
	_, err := e.TapImage(ByPath("x.png"), 200*time.Millisecond, 100*time.Millisecond)

	if len(rec.got) != 4 {
		t.Fatalf("events = %d, want 4", len(rec.got))
	}
	tap, img := rec.got[1], rec.got[3]
	if tap.Category != hook.EventClick || tap.Action != "tap" || tap.Failure != nil {
		t.Errorf("tap after = %+v", tap)
	}
	if img.Category != hook.EventClickImage || img.Failure == nil || img.Failure.Err != err {
		t.Errorf("tap_image after = %+v", img)
	}
	if img.Kwargs["path"] != "x.png" {
		t.Errorf("kwargs = %v", img.Kwargs)
	}
}

func TestWait_EmitsExistsPerPoll(t *testing.T) {
	h := hook.NewHub()
	rec := &events{}
	h.Register(rec, hook.EventAssertExists)

	s := &scripted{outcomes: []core.MatchOutcome{core.NotFound(), core.Found(1, 1, 1)}}
	e, _, _ := newTestEngine(s, WithHub(h))
	if err := e.WaitForAppearance(ByPath("x.png"), time.Second, 0); err != nil {
		t.Fatal(err)
	}
	if len(rec.got) != 4 {
		t.Errorf("exists events = %d, want 4", len(rec.got))
	}
}

func TestScreenshot_Saves(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 6))
	img.Set(1, 1, color.White)
	tr := mock.New(mock.Config{Screen: img})
	e := New(tr, nil, screen.New(tr, nil, screen.WithLocalDir(t.TempDir())))

	out := filepath.Join(t.TempDir(), "shots", "home.png")
	got, err := e.Screenshot(out)
	if err != nil {
		t.Fatalf("Screenshot failed: %v", err)
	}
	if got.Bounds().Dx() != 8 {
		t.Errorf("size = %v", got.Bounds())
	}
	saved, err := screen.Decode(out)
	if err != nil || saved.Bounds().Dy() != 6 {
		t.Errorf("saved file: %v, %v", saved, err)
	}
}

func TestScreenshot_NoCapturer(t *testing.T) {
	e, _, _ := newTestEngine(nil)
	if _, err := e.Screenshot(""); !errors.Is(err, core.ErrInvalidArgument) {
		t.Errorf("error = %v", err)
	}
}
