package flow

import (
	"slices"
	"sync"
)

type Step string

const (
	StepCredentials       Step = "credentials"
	StepConfirmation      Step = "confirmation"
	StepUserDetails       Step = "user-details"
	StepPhoneConfirmation Step = "phone-confirmation"
	StepComplete          Step = "complete"
)

var progress = map[Step]int{
	StepCredentials:       10,
	StepConfirmation:      60,
	StepUserDetails:       10,
	StepPhoneConfirmation: 60,
	StepComplete:          100,
}

// Progress is the fixed progress indicator value of the step.
func (s Step) Progress() int { return progress[s] }

type State struct {
	Step     Step `json:"step"`
	Progress int  `json:"progress"`
}

func stateOf(s Step) State { return State{Step: s, Progress: s.Progress()} }

// Graph lists the valid transitions of a flow.
type Graph struct {
	Name    string
	Initial Step
	edges   map[Step][]Step
}

var (
	RegistrationGraph = Graph{
		Name:    "registration",
		Initial: StepCredentials,
		edges: map[Step][]Step{
			StepCredentials:  {StepConfirmation},
			StepConfirmation: {StepCredentials, StepComplete},
		},
	}
	OnboardingGraph = Graph{
		Name:    "onboarding",
		Initial: StepUserDetails,
		edges: map[Step][]Step{
			StepUserDetails:       {StepPhoneConfirmation, StepComplete},
			StepPhoneConfirmation: {StepUserDetails, StepComplete},
		},
	}
)

func (g Graph) allows(from, to Step) bool {
	for _, s := range g.edges[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Controller tracks the active step of one flow instance. Every transition
// bumps a generation counter so that late completions can tell whether the
// flow has moved on since they started.
type Controller struct {
	mu        sync.Mutex
	graph     Graph
	step      Step
	gen       uint64
	observers []func(State)
}

func NewController(g Graph) *Controller {
	return &Controller{graph: g, step: g.Initial}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return stateOf(c.step)
}

func (c *Controller) Step() Step {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.step
}

func (c *Controller) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

func (c *Controller) Done() bool { return c.Step() == StepComplete }

// Observe registers fn to be called with the new state after every
// transition.
func (c *Controller) Observe(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

func (c *Controller) Transition(to Step) error { return c.Move(to, nil) }

// Move transitions to the step and runs mutate under the controller lock
// right before the step changes. Moving to the current step is a no-op.
// mutate must not call back into the controller.
func (c *Controller) Move(to Step, mutate func()) error {
	c.mu.Lock()
	if c.step == to {
		c.mu.Unlock()
		return nil
	}
	if !c.graph.allows(c.step, to) {
		c.mu.Unlock()
		return ErrInvalidTransition
	}
	return c.commitLocked(to, mutate)
}

// commit is the stale-guarded variant used by the coordinator: it applies
// only while the flow is still at from with generation gen. to may equal
// from, in which case only mutate runs.
func (c *Controller) commit(from Step, gen uint64, to Step, mutate func()) error {
	c.mu.Lock()
	if c.step != from || c.gen != gen {
		c.mu.Unlock()
		return errStale
	}
	if to == from {
		if mutate != nil {
			mutate()
		}
		c.mu.Unlock()
		return nil
	}
	if !c.graph.allows(from, to) {
		c.mu.Unlock()
		return ErrInvalidTransition
	}
	return c.commitLocked(to, mutate)
}

// commitLocked is entered with c.mu held and releases it.
func (c *Controller) commitLocked(to Step, mutate func()) error {
	if mutate != nil {
		mutate()
	}
	c.step = to
	c.gen++
	st := stateOf(to)
	observers := slices.Clone(c.observers)
	c.mu.Unlock()

	for _, fn := range observers {
		fn(st)
	}
	return nil
}

// at runs fn under the controller lock if the flow is still at step with
// generation gen, and reports whether it did.
func (c *Controller) at(step Step, gen uint64, fn func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.step != step || c.gen != gen {
		return false
	}
	fn()
	return true
}
