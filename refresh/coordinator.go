package refresh

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is the coordinator's refresh state.
type State int32

const (
	Idle State = iota
	Refreshing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Refreshing:
		return "refreshing"
	default:
		return "unknown"
	}
}

// Observer receives coordinator lifecycle callbacks. Implementations must
// be cheap and non-blocking.
type Observer interface {
	RefreshStarted()
	RefreshFinished(elapsed time.Duration, err error)
	Queued(depth int)
	Replayed(err error)
	SkippedRotated()
	TornDown(cause error)
}

type noopObserver struct{}

func (noopObserver) RefreshStarted()                       {}
func (noopObserver) RefreshFinished(time.Duration, error) {}
func (noopObserver) Queued(int)                            {}
func (noopObserver) Replayed(error)                        {}
func (noopObserver) SkippedRotated()                       {}
func (noopObserver) TornDown(error)                        {}

// Deps wires a Coordinator to its environment.
type Deps[Req, Resp any] struct {
	// Refresh performs the refresh network call and, on success, stores the
	// new credentials before returning.
	Refresh func(ctx context.Context) error
	// Terminal reports whether a Refresh error ends the session.
	Terminal func(err error) bool
	// Replay re-executes a request with the current credentials.
	Replay func(ctx context.Context, req Req) (Resp, error)
	// Teardown clears the session. ctx is the triggering caller's context.
	Teardown func(ctx context.Context, cause error)
	// CurrentToken returns the access token now held, if any. When it
	// differs from the token a failed request carried, the request is
	// replayed without another refresh. Optional.
	CurrentToken func() string
	// Timeout bounds the refresh call. Zero means no bound.
	Timeout  time.Duration
	Observer Observer
}

type result[Resp any] struct {
	resp Resp
	err  error
}

type pending[Req, Resp any] struct {
	ctx  context.Context
	req  Req
	done chan result[Resp]
}

// Coordinator serializes refreshes for one client.
type Coordinator[Req, Resp any] struct {
	deps Deps[Req, Resp]

	mu      sync.Mutex
	state   State
	waiters []*pending[Req, Resp]
}

// New validates deps and returns an Idle coordinator.
func New[Req, Resp any](deps Deps[Req, Resp]) (*Coordinator[Req, Resp], error) {
	if deps.Refresh == nil {
		return nil, errors.New("refresh func is required")
	}
	if deps.Replay == nil {
		return nil, errors.New("replay func is required")
	}
	if deps.Terminal == nil {
		deps.Terminal = func(error) bool { return false }
	}
	if deps.Teardown == nil {
		deps.Teardown = func(context.Context, error) {}
	}
	if deps.Observer == nil {
		deps.Observer = noopObserver{}
	}
	return &Coordinator[Req, Resp]{deps: deps}, nil
}

// State returns the current state.
func (c *Coordinator[Req, Resp]) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Waiting returns the number of queued requests.
func (c *Coordinator[Req, Resp]) Waiting() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// HandleExpiry resolves a request that failed because its access token
// expired. staleToken is the token the failed attempt carried.
func (c *Coordinator[Req, Resp]) HandleExpiry(ctx context.Context, req Req, staleToken string) (Resp, error) {
	c.mu.Lock()

	if c.state == Refreshing {
		p := &pending[Req, Resp]{ctx: ctx, req: req, done: make(chan result[Resp], 1)}
		c.waiters = append(c.waiters, p)
		depth := len(c.waiters)
		c.mu.Unlock()

		c.deps.Observer.Queued(depth)
		r := <-p.done
		return r.resp, r.err
	}

	if c.rotatedSince(staleToken) {
		c.mu.Unlock()
		c.deps.Observer.SkippedRotated()
		resp, err := c.deps.Replay(ctx, req)
		c.deps.Observer.Replayed(err)
		return resp, err
	}

	c.state = Refreshing
	c.mu.Unlock()

	err := c.runRefresh(ctx)

	// Teardown runs while still Refreshing so that requests arriving
	// meanwhile queue up and share this failure.
	terminal := err != nil && c.deps.Terminal(err)
	if terminal {
		c.deps.Teardown(ctx, err)
		c.deps.Observer.TornDown(err)
	}

	c.mu.Lock()
	waiters := c.waiters
	c.waiters = nil
	c.state = Idle
	c.mu.Unlock()

	if err != nil {
		for _, w := range waiters {
			w.done <- result[Resp]{err: err}
		}
		var zero Resp
		return zero, err
	}

	for _, w := range waiters {
		go c.replay(w)
	}

	resp, err := c.deps.Replay(ctx, req)
	c.deps.Observer.Replayed(err)
	return resp, err
}

// caller holds c.mu
func (c *Coordinator[Req, Resp]) rotatedSince(staleToken string) bool {
	if staleToken == "" || c.deps.CurrentToken == nil {
		return false
	}
	current := c.deps.CurrentToken()
	return current != "" && current != staleToken
}

func (c *Coordinator[Req, Resp]) runRefresh(ctx context.Context) error {
	rctx := context.WithoutCancel(ctx)
	if c.deps.Timeout > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(rctx, c.deps.Timeout)
		defer cancel()
	}

	c.deps.Observer.RefreshStarted()
	start := time.Now()
	err := c.deps.Refresh(rctx)
	c.deps.Observer.RefreshFinished(time.Since(start), err)
	return err
}

func (c *Coordinator[Req, Resp]) replay(w *pending[Req, Resp]) {
	resp, err := c.deps.Replay(w.ctx, w.req)
	c.deps.Observer.Replayed(err)
	w.done <- result[Resp]{resp: resp, err: err}
}
