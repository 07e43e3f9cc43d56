package poll

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
)

// State is the controller's lifecycle position.
type State string

const (
	StateIdle    State = "idle"
	StatePending State = "pending"
	StateSuccess State = "success"
	StateError   State = "error"
)

// ErrAlreadyStarted is returned by Start on a controller that has left idle.
var ErrAlreadyStarted = eris.New("poll: controller already started")

// InitiateFunc starts the remote job and returns its correlation id.
type InitiateFunc func(ctx context.Context) (string, error)

// Controller runs initiate-then-poll as a state machine:
// idle → pending → success | error.
type Controller[T any] struct {
	initiate InitiateFunc
	check    CheckFunc[T]
	opts     []Option

	mu        sync.Mutex
	state     State
	jobID     string
	result    Result[T]
	future    *Future[T]
	cancel    context.CancelFunc
	stopped   bool
	onResolve func(Result[T])

	// cbMu serialises resolution callbacks against Stop.
	cbMu sync.Mutex
	once sync.Once
	done chan struct{}
}

// NewController creates an idle controller.
func NewController[T any](initiate InitiateFunc, check CheckFunc[T], opts ...Option) *Controller[T] {
	return &Controller[T]{
		initiate: initiate,
		check:    check,
		opts:     opts,
		state:    StateIdle,
		done:     make(chan struct{}),
	}
}

// OnResolve registers fn to run once on a terminal state. fn is never called
// after Stop returns and must not call Stop itself.
func (c *Controller[T]) OnResolve(fn func(Result[T])) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onResolve = fn
}

// Start moves the controller to pending, calls initiate and begins polling.
// It returns once the work is running; use Wait for the outcome.
func (c *Controller[T]) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle || c.stopped {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	ctx, cancel := context.WithCancel(ctx)
	c.state = StatePending
	c.cancel = cancel
	c.mu.Unlock()

	go c.run(ctx)
	return nil
}

func (c *Controller[T]) run(ctx context.Context) {
	id, err := c.initiate(ctx)
	if err != nil {
		c.finish(Result[T]{Err: err})
		return
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		c.finish(Result[T]{Err: ErrCancelled})
		return
	}
	c.jobID = id
	f := Wait(ctx, id, c.check, c.opts...)
	c.future = f
	c.mu.Unlock()

	<-f.Done()
	r, _ := f.Result()
	c.finish(r)
}

func (c *Controller[T]) finish(r Result[T]) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()

	c.mu.Lock()
	resolved := false
	c.once.Do(func() {
		resolved = true
		c.result = r
		if r.Err != nil {
			c.state = StateError
		} else {
			c.state = StateSuccess
		}
		close(c.done)
	})
	cb := c.onResolve
	stopped := c.stopped
	c.mu.Unlock()

	if resolved && !stopped && cb != nil {
		cb(r)
	}
}

// State returns the current state.
func (c *Controller[T]) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// JobID returns the id issued by initiate, once known.
func (c *Controller[T]) JobID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.jobID
}

// Wait blocks until the controller reaches a terminal state or ctx is done.
func (c *Controller[T]) Wait(ctx context.Context) (Result[T], error) {
	select {
	case <-c.done:
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.result, nil
	case <-ctx.Done():
		return Result[T]{}, ctx.Err()
	}
}

// Stop tears the controller down: timers stop and no resolution callback
// runs after Stop returns. A controller stopped before resolving ends in
// the error state with ErrCancelled.
func (c *Controller[T]) Stop() {
	c.mu.Lock()
	c.stopped = true
	cancel := c.cancel
	f := c.future
	idle := c.state == StateIdle
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if f != nil {
		f.Cancel()
	}
	if idle {
		c.finish(Result[T]{Err: ErrCancelled})
	}

	// Wait out any callback already in flight.
	c.cbMu.Lock()
	c.cbMu.Unlock() //nolint:staticcheck
}
