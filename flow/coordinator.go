package flow

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	meridia "github.com/yoku-app/MERIDIA"
)

type Status uint32

const (
	StatusIdle Status = iota
	StatusPending
	StatusSuccess
	StatusFailure
	StatusRejected
	StatusStale
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusPending:
		return "pending"
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	case StatusRejected:
		return "rejected"
	case StatusStale:
		return "stale"
	}
	return "unknown"
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(b []byte) error {
	for v := StatusIdle; v <= StatusStale; v++ {
		if v.String() == string(b) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", b)
}

// Result is what the UI layer renders after a submission.
type Result struct {
	Status  Status          `json:"status"`
	Step    Step            `json:"step"`
	Field   string          `json:"field,omitempty"`
	Message string          `json:"message,omitempty"`
	Kind    ErrorKind       `json:"-"`
	Errors  ValidationError `json:"errors,omitempty"`
	Err     error           `json:"-"`
}

func (r Result) OK() bool { return r.Status == StatusSuccess }

type Option func(*options)

type options struct {
	log       *zap.Logger
	now       func() time.Time
	hook      func(flow string, r Result)
	onSession func(meridia.Session)
	onProfile func(meridia.User)
}

func newOptions(opts []Option) options {
	o := options{log: zap.NewNop(), now: time.Now}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

func WithLogger(l *zap.Logger) Option { return func(o *options) { o.log = l } }

// WithClock replaces time.Now, which bounds dates of birth and stamps the
// onboarding completion.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// WithHook is called after every submission with the flow name and result.
func WithHook(fn func(flow string, r Result)) Option { return func(o *options) { o.hook = fn } }

// WithSessionHook receives the session of a confirmed registration.
func WithSessionHook(fn func(meridia.Session)) Option { return func(o *options) { o.onSession = fn } }

// WithProfileHook receives the user saved at the end of onboarding.
func WithProfileHook(fn func(meridia.User)) Option { return func(o *options) { o.onProfile = fn } }

// Coordinator runs the remote operation of a step. At most one submission
// per flow is in flight; a second one is rejected rather than queued.
type Coordinator struct {
	name     string
	steps    *Controller
	form     *Form
	opts     options
	inflight atomic.Bool
	status   atomic.Uint32
}

func NewCoordinator(name string, steps *Controller, form *Form, opts ...Option) *Coordinator {
	return &Coordinator{name: name, steps: steps, form: form, opts: newOptions(opts)}
}

func (c *Coordinator) Status() Status { return Status(c.status.Load()) }

func (c *Coordinator) Busy() bool { return c.inflight.Load() }

// expect rejects a submission made from a step other than the active one.
func (c *Coordinator) expect(step Step) (Result, bool) {
	if cur := c.steps.Step(); cur != step {
		return Result{Status: StatusRejected, Step: cur, Err: ErrWrongStep, Message: "This step is no longer active"}, false
	}
	return Result{}, true
}

// invalid reports a local validation failure. Nothing reached the network.
func (c *Coordinator) invalid(step Step, errs ValidationError) Result {
	return c.finish(Result{
		Status:  StatusFailure,
		Step:    step,
		Field:   errs[0].Field,
		Message: errs[0].Message,
		Kind:    KindValidation,
		Errors:  errs,
		Err:     errs,
	})
}

func (c *Coordinator) finish(r Result) Result {
	if r.Status != StatusRejected {
		c.status.Store(uint32(r.Status))
	}
	c.opts.log.Debug("submission finished",
		zap.String("flow", c.name),
		zap.String("step", string(r.Step)),
		zap.Stringer("status", r.Status),
		zap.String("field", r.Field),
		zap.Error(r.Err),
	)
	if c.opts.hook != nil {
		c.opts.hook(c.name, r)
	}
	return r
}

// Submit runs op for step and, if it succeeds while the flow is still where
// it was when op started, runs apply and moves the flow to next. A failure
// attaches its message to the implicated field (or the banner) and leaves
// the flow in place. Completions that arrive after the flow has moved on
// are discarded.
func Submit[T any](ctx context.Context, c *Coordinator, step, next Step, op func(context.Context) Response[T], apply func(T)) Result {
	return c.hold(step, func() Result { return run(ctx, c, step, next, op, apply) })
}

// hold runs fn as the one submission in flight for step. Calls made from
// another step or while a submission is running are rejected before fn
// runs, so fn may write the form freely.
func (c *Coordinator) hold(step Step, fn func() Result) Result {
	if r, ok := c.expect(step); !ok {
		return r
	}
	if !c.inflight.CompareAndSwap(false, true) {
		return Result{Status: StatusRejected, Step: step, Err: ErrSubmissionInFlight, Message: "A submission is already in progress"}
	}
	defer c.inflight.Store(false)
	return fn()
}

// run is Submit for a caller that already holds the coordinator.
func run[T any](ctx context.Context, c *Coordinator, step, next Step, op func(context.Context) Response[T], apply func(T)) Result {
	gen := c.steps.Generation()
	c.status.Store(uint32(StatusPending))

	resp := invoke(ctx, op)
	if !resp.OK {
		info := resp.Error
		if info == nil {
			info = NetworkError(nil)
		}
		if !c.steps.at(step, gen, func() { c.form.SetError(info.Field, info.Message) }) {
			return c.finish(Result{Status: StatusStale, Step: step, Err: errStale})
		}
		return c.finish(Result{
			Status:  StatusFailure,
			Step:    step,
			Field:   info.Field,
			Message: info.Message,
			Kind:    info.Kind,
			Err:     info,
		})
	}

	var mutate func()
	if apply != nil {
		mutate = func() { apply(resp.Data) }
	}
	if err := c.steps.commit(step, gen, next, mutate); err != nil {
		if err == errStale {
			return c.finish(Result{Status: StatusStale, Step: step, Err: err})
		}
		return c.finish(Result{Status: StatusFailure, Step: step, Err: err, Message: genericFailure})
	}
	return c.finish(Result{Status: StatusSuccess, Step: step})
}

func invoke[T any](ctx context.Context, op func(context.Context) Response[T]) (resp Response[T]) {
	defer func() {
		if r := recover(); r != nil {
			resp = Fail[T](NetworkError(fmt.Errorf("remote operation panicked: %v", r)))
		}
	}()
	return op(ctx)
}
