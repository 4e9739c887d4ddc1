// Package hook is the instrumentation bus around engine actions.
//
// Every wrapped action produces exactly two events, Before and After, that
// share a correlation tag. Listeners subscribe with a category mask and are
// called synchronously, in registration order, on the goroutine running the
// action.
package hook

import (
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/devicelab-dev/anchor-runner/pkg/logger"
)

// Category is a bitmask of action kinds.
type Category uint32

// Event categories
const (
	EventScreenshot   Category = 1 << 1
	EventClick        Category = 1 << 2
	EventSwipe        Category = 1 << 3
	EventType         Category = 1 << 4
	EventClickImage   Category = 1 << 5
	EventAssertExists Category = 1 << 6
	EventKey          Category = 1 << 7

	EventAll = EventScreenshot | EventClick | EventSwipe | EventType | EventClickImage | EventAssertExists | EventKey
)

var categoryNames = []struct {
	c    Category
	name string
}{
	{EventScreenshot, "screenshot"},
	{EventClick, "click"},
	{EventSwipe, "swipe"},
	{EventType, "type"},
	{EventClickImage, "click_image"},
	{EventAssertExists, "assert_exists"},
	{EventKey, "key"},
}

func (c Category) String() string {
	var parts []string
	for _, n := range categoryNames {
		if c&n.c != 0 {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// Phase says which side of the action an event describes.
type Phase int

// Phases
const (
	Before Phase = iota
	After
)

func (p Phase) String() string {
	if p == Before {
		return "before"
	}
	return "after"
}

// Call describes an action invocation: its name and arguments.
type Call struct {
	Action string
	Args   []interface{}
	Kwargs map[string]interface{}
}

// Failure records why a wrapped action failed.
type Failure struct {
	Err   error
	Panic interface{} // non-nil when the action panicked
	Stack string
}

// Event is delivered to listeners.
type Event struct {
	Tag      string
	Category Category
	Phase    Phase
	Action   string
	Args     []interface{}
	Kwargs   map[string]interface{}
	Result   interface{}
	Failure  *Failure
	Start    time.Time
	Duration time.Duration // zero for Before
}

// Failed reports whether an After event carries a failure.
func (e Event) Failed() bool { return e.Failure != nil }

// Listener receives events. Implementations must be comparable (typically a
// pointer) so they can be unregistered.
type Listener interface {
	OnEvent(Event)
}

// FuncListener adapts a function to Listener. Use ListenerFunc to get a
// pointer that can be unregistered later.
type FuncListener struct {
	fn func(Event)
}

// ListenerFunc wraps fn as a Listener.
func ListenerFunc(fn func(Event)) *FuncListener {
	return &FuncListener{fn: fn}
}

// OnEvent calls the wrapped function.
func (f *FuncListener) OnEvent(e Event) { f.fn(e) }

type registration struct {
	listener Listener
	mask     Category
}

// Hub holds listener registrations. The zero value is ready to use and a nil
// *Hub dispatches nothing.
type Hub struct {
	mu        sync.Mutex
	listeners []registration
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{}
}

// Register subscribes l to every category in mask. Registering the same pair
// twice delivers events twice.
func (h *Hub) Register(l Listener, mask Category) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, registration{listener: l, mask: mask})
}

// Unregister removes the first registration of exactly (l, mask). Removing a
// pair that was never registered does nothing.
func (h *Hub) Unregister(l Listener, mask Category) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, r := range h.listeners {
		if r.listener == l && r.mask == mask {
			h.listeners = append(h.listeners[:i:i], h.listeners[i+1:]...)
			return
		}
	}
}

// Len returns the number of registrations.
func (h *Hub) Len() int {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners)
}

// Dispatch delivers e to every listener whose mask intersects e.Category.
// A panicking listener is logged and skipped; the others still run.
func (h *Hub) Dispatch(e Event) {
	if h == nil {
		return
	}
	h.mu.Lock()
	snapshot := make([]registration, len(h.listeners))
	copy(snapshot, h.listeners)
	h.mu.Unlock()

	for _, r := range snapshot {
		if r.mask&e.Category == 0 {
			continue
		}
		deliver(r.listener, e)
	}
}

func deliver(l Listener, e Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("listener %T panicked on %s %s: %v", l, e.Phase, e.Action, r)
		}
	}()
	l.OnEvent(e)
}

// pending is the in-flight state of one wrapped call, created on entry and
// consumed on exit.
type pending struct {
	hub      *Hub
	tag      string
	category Category
	call     Call
	start    time.Time
}

func (h *Hub) begin(category Category, call Call) *pending {
	p := &pending{
		hub:      h,
		tag:      uuid.New().String(),
		category: category,
		call:     call,
		start:    time.Now(),
	}
	h.Dispatch(p.event(Before))
	return p
}

func (p *pending) event(phase Phase) Event {
	return Event{
		Tag:      p.tag,
		Category: p.category,
		Phase:    phase,
		Action:   p.call.Action,
		Args:     p.call.Args,
		Kwargs:   p.call.Kwargs,
		Start:    p.start,
	}
}

func (p *pending) finish(result interface{}, failure *Failure) {
	e := p.event(After)
	e.Result = result
	e.Failure = failure
	e.Duration = time.Since(p.start)
	p.hub.Dispatch(e)
}

// ErrGoexit is the Failure reported when fn ends its goroutine with
// runtime.Goexit.
var ErrGoexit = errors.New("runtime.Goexit called")

// Wrap runs fn between a Before and an After event. The After event is sent
// whether fn returns an error, succeeds, panics or calls runtime.Goexit;
// errors are returned and panics re-raised unchanged.
func Wrap[T any](h *Hub, category Category, call Call, fn func() (T, error)) (result T, err error) {
	p := h.begin(category, call)

	completed := false
	defer func() {
		if completed {
			return
		}
		r := recover()
		if r == nil {
			// Goexit keeps unwinding on its own; panicking here would replace it.
			p.finish(nil, &Failure{Err: ErrGoexit, Stack: string(debug.Stack())})
			return
		}
		p.finish(nil, &Failure{
			Err:   fmt.Errorf("panic: %v", r),
			Panic: r,
			Stack: string(debug.Stack()),
		})
		panic(r)
	}()

	result, err = fn()
	completed = true

	if err != nil {
		p.finish(nil, &Failure{Err: err, Stack: string(debug.Stack())})
		return result, err
	}
	p.finish(result, nil)
	return result, nil
}

// Do is Wrap for actions without a result.
func Do(h *Hub, category Category, call Call, fn func() error) error {
	_, err := Wrap(h, category, call, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}
