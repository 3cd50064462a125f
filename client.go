package authpipe

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/studyclub/authpipe/endpoint"
	"github.com/studyclub/authpipe/internal/flows"
	"github.com/studyclub/authpipe/refresh"
	"github.com/studyclub/authpipe/session"
	"github.com/studyclub/authpipe/transport"
)

// RequestIDHeader carries the per-request correlation ID.
const RequestIDHeader = "X-Request-ID"

// Client performs authenticated calls and resolves access-token expiry
// with a single-flight refresh shared by all concurrent callers.
//
// A Client is safe for concurrent use. Build one per remote API and
// session; Close it when done.
type Client struct {
	config Config
	log    logrus.FieldLogger

	store         *session.Store
	transport     transport.Transport
	refresher     endpoint.Refresher
	authenticator endpoint.Authenticator
	navigator     Navigator

	coord    *refresh.Coordinator[flows.Attempt, *transport.Response]
	flowDeps flows.Deps

	events  *eventDispatcher
	metrics *Metrics

	stopWatch context.CancelFunc
	closed    atomic.Bool
}

// Do sends req with the current access token. When the token turns out to
// be expired the call waits for a refresh (starting one if none is running)
// and replays req once with the new token.
//
// Non-success responses are returned together with a *StatusError. A
// refresh that ends the session returns an error matching
// ErrSessionTerminated; the store is already empty when it is returned.
func (c *Client) Do(ctx context.Context, req transport.Request) (*transport.Response, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	if ctx == nil {
		ctx = context.Background()
	}

	start := time.Now()
	c.metrics.Inc(MetricRequestTotal)

	requestID := requestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
		ctx = WithRequestID(ctx, requestID)
	}
	attempt := flows.Attempt{
		Request:   req.WithHeader(RequestIDHeader, requestID),
		RequestID: requestID,
	}

	log := c.log.WithFields(logrus.Fields{
		"request_id": requestID,
		"method":     methodOf(req),
		"path":       req.Path,
	})

	var (
		resp *transport.Response
		err  error
	)
	res := flows.RunExecute(ctx, attempt, c.flowDeps.Execute)
	if res.Outcome == flows.OutcomeExpired {
		c.metrics.Inc(MetricAccessExpired)
		if res.Proactive {
			c.metrics.Inc(MetricProactiveExpiry)
		}
		log.WithFields(logrus.Fields{
			"proactive": res.Proactive,
			"state":     c.coord.State().String(),
		}).Debug("access token expired")
		resp, err = c.coord.HandleExpiry(ctx, attempt, res.Token)
	} else {
		resp, err = c.finish(ctx, attempt, res)
	}

	c.metrics.Observe(MetricRequestLatency, time.Since(start))
	if err != nil {
		log.WithError(err).Debug("request failed")
	}
	return resp, err
}

// Get is Do with a GET request.
func (c *Client) Get(ctx context.Context, path string) (*transport.Response, error) {
	return c.Do(ctx, transport.Request{Method: http.MethodGet, Path: path})
}

// Post is Do with a POST request and a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any) (*transport.Response, error) {
	return c.Do(ctx, transport.Request{
		Method: http.MethodPost,
		Path:   path,
		Header: map[string]string{"Content-Type": "application/json"},
		Body:   body,
	})
}

// Login exchanges credentials for a session and stores it.
func (c *Client) Login(ctx context.Context, username, password string) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	if ctx == nil {
		ctx = context.Background()
	}

	res := flows.RunLogin(ctx, username, password, c.flowDeps.Login)
	switch res.Failure {
	case flows.LoginFailureNone:
		c.metrics.Inc(MetricLogin)
		c.emitEvent(ctx, EventLogin, map[string]string{"username": username}, nil)
		c.log.WithField("username", username).Info("logged in")
		return nil
	case flows.LoginFailureInput, flows.LoginFailureCredentials:
		c.metrics.Inc(MetricLoginFailure)
		c.emitEvent(ctx, EventLogin, map[string]string{"username": username}, res.Err)
		return ErrInvalidCredentials
	default:
		c.metrics.Inc(MetricLoginFailure)
		c.emitEvent(ctx, EventLogin, map[string]string{"username": username}, res.Err)
		return errors.Join(ErrLoginUnavailable, res.Err)
	}
}

// Logout clears the session without emitting a navigation. It reports
// ErrNoSession when nothing was stored.
func (c *Client) Logout(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	if ctx == nil {
		ctx = context.Background()
	}

	_, had := c.store.Get()
	c.store.Clear()
	if !had {
		return ErrNoSession
	}

	c.metrics.Inc(MetricLogout)
	c.emitEvent(ctx, EventLogout, nil, nil)
	c.log.Info("logged out")
	return nil
}

// Session returns the current session.
func (c *Client) Session() (session.Session, bool) {
	return c.store.Get()
}

// Store exposes the session store shared by the client's components.
func (c *Client) Store() *session.Store {
	return c.store
}

// RefreshState reports whether a refresh is in flight.
func (c *Client) RefreshState() refresh.State {
	return c.coord.State()
}

// Waiting returns the number of requests queued behind the current refresh.
func (c *Client) Waiting() int {
	return c.coord.Waiting()
}

func (c *Client) MetricsSnapshot() MetricsSnapshot {
	return c.metrics.Snapshot()
}

// EventsDropped returns the number of lifecycle events dropped because the
// dispatcher buffer was full.
func (c *Client) EventsDropped() uint64 {
	return c.events.Dropped()
}

// Close stops the session file watch and flushes pending events. Requests
// in flight are not interrupted.
func (c *Client) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	if c.stopWatch != nil {
		c.stopWatch()
	}
	c.events.Close()
}

// finish maps a non-expired execution result to the caller-facing result.
func (c *Client) finish(ctx context.Context, attempt flows.Attempt, res flows.ExecuteResult) (*transport.Response, error) {
	switch res.Outcome {
	case flows.OutcomeOK:
		return res.Response, nil
	case flows.OutcomeTransport:
		c.metrics.Inc(MetricTransportFailure)
		return nil, transportError(res.Err)
	}

	status := &StatusError{
		Method:  methodOf(attempt.Request),
		Path:    attempt.Request.Path,
		Retried: attempt.Retried,
	}
	if res.Response != nil {
		status.StatusCode = res.Response.StatusCode
		status.Body = res.Response.Body
	}
	c.metrics.Inc(MetricRequestFailure)
	if res.RetryExhausted {
		c.metrics.Inc(MetricRetryExhausted)
		c.emitEvent(ctx, EventRetryExhausted, map[string]string{
			"method": status.Method,
			"path":   status.Path,
		}, status)
	}
	return res.Response, status
}

func (c *Client) replay(ctx context.Context, attempt flows.Attempt) (*transport.Response, error) {
	retry := attempt.Retry()
	res := flows.RunExecute(ctx, retry, c.flowDeps.Execute)
	return c.finish(ctx, retry, res)
}

func (c *Client) refreshSession(ctx context.Context) error {
	res := flows.RunRefresh(ctx, c.flowDeps.Refresh)
	switch res.Failure {
	case flows.RefreshFailureNone:
		return nil
	case flows.RefreshFailureNoSession:
		return newSessionError(ErrRefreshTokenInvalid, ErrNoSession)
	case flows.RefreshFailureRejected:
		return newSessionError(ErrRefreshTokenInvalid, res.Err)
	case flows.RefreshFailureMalformed:
		return newSessionError(ErrRefreshTokenMalformed, res.Err)
	default:
		return transportError(res.Err)
	}
}

func (c *Client) teardownAfterRefresh(ctx context.Context, cause error) {
	c.log.WithError(cause).Warn("refresh failed; ending session")
	c.endSession(ctx, returnPathFromContext(ctx), true)
}

// emitEvent queues an event raised on a caller's request path.
func (c *Client) emitEvent(ctx context.Context, typ EventType, metadata map[string]string, err error) {
	if c.events == nil {
		return
	}
	c.events.Emit(ctx, c.newEvent(ctx, typ, metadata, err))
}

// offerEvent queues an event raised on the refresh path. It never waits:
// queued requests are released only after the path returns.
func (c *Client) offerEvent(ctx context.Context, typ EventType, metadata map[string]string, err error) {
	if c.events == nil {
		return
	}
	c.events.Offer(c.newEvent(ctx, typ, metadata, err))
}

func (c *Client) newEvent(ctx context.Context, typ EventType, metadata map[string]string, err error) Event {
	ev := Event{
		Timestamp: time.Now(),
		Type:      typ,
		RequestID: requestIDFromContext(ctx),
		Success:   err == nil,
		Metadata:  metadata,
	}
	if c.coord != nil {
		ev.RefreshState = c.coord.State().String()
	}
	if err != nil {
		ev.Error = err.Error()
	}
	return ev
}

func methodOf(req transport.Request) string {
	if req.Method == "" {
		return http.MethodGet
	}
	return req.Method
}

// coordinatorObserver feeds coordinator callbacks into metrics, events and
// logs.
type coordinatorObserver struct {
	c *Client
}

func (o coordinatorObserver) RefreshStarted() {
	o.c.metrics.Inc(MetricRefreshStarted)
	o.c.log.Debug("refresh started")
}

func (o coordinatorObserver) RefreshFinished(elapsed time.Duration, err error) {
	m := o.c.metrics
	m.Observe(MetricRefreshLatency, elapsed)

	switch {
	case err == nil:
		m.Inc(MetricRefreshSuccess)
	case errors.Is(err, ErrRefreshTokenMalformed):
		m.Inc(MetricRefreshMalformed)
	case errors.Is(err, ErrRefreshTokenInvalid):
		m.Inc(MetricRefreshInvalid)
	default:
		m.Inc(MetricRefreshTransport)
	}

	log := o.c.log.WithField("elapsed", elapsed)
	if err != nil {
		log.WithError(err).Warn("refresh failed")
	} else {
		log.Debug("refresh succeeded")
	}
	o.c.offerEvent(context.Background(), EventRefresh, nil, err)
}

func (o coordinatorObserver) Queued(depth int) {
	o.c.metrics.Inc(MetricRequestQueued)
	o.c.log.WithField("depth", depth).Debug("request queued behind refresh")
}

func (o coordinatorObserver) Replayed(err error) {
	o.c.metrics.Inc(MetricRequestReplayed)
	if err != nil {
		o.c.metrics.Inc(MetricReplayFailure)
	}
}

func (o coordinatorObserver) SkippedRotated() {
	o.c.metrics.Inc(MetricRefreshSkippedRotated)
	o.c.log.Debug("token already rotated; replaying without refresh")
}

func (o coordinatorObserver) TornDown(cause error) {
	o.c.log.WithError(cause).Debug("session torn down")
}
