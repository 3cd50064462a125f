package authpipe

import (
	"context"
	"net/url"

	"github.com/sirupsen/logrus"
)

// Navigation instructs the hosting application to send the user to the
// login entry point, returning to ReturnPath afterwards.
type Navigation struct {
	LoginPath   string
	ReturnPath  string
	ReturnParam string
}

// Location renders the navigation as a relative URL, e.g.
// "/login?next=%2Fteams%2F4".
func (n Navigation) Location() string {
	if n.ReturnPath == "" || n.ReturnParam == "" {
		return n.LoginPath
	}
	q := url.Values{}
	q.Set(n.ReturnParam, n.ReturnPath)
	return n.LoginPath + "?" + q.Encode()
}

// Navigator receives navigation instructions. Navigate must not block for
// long; it runs on the goroutine of the request that ended the session.
type Navigator interface {
	Navigate(ctx context.Context, nav Navigation)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(ctx context.Context, nav Navigation)

func (f NavigatorFunc) Navigate(ctx context.Context, nav Navigation) {
	f(ctx, nav)
}

// ChannelNavigator publishes navigations on a buffered channel. A
// navigation is dropped when the buffer is full.
type ChannelNavigator struct {
	ch chan Navigation
}

func NewChannelNavigator(buffer int) *ChannelNavigator {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelNavigator{ch: make(chan Navigation, buffer)}
}

func (n *ChannelNavigator) Navigate(_ context.Context, nav Navigation) {
	select {
	case n.ch <- nav:
	default:
	}
}

func (n *ChannelNavigator) Navigations() <-chan Navigation {
	return n.ch
}

type logNavigator struct {
	log logrus.FieldLogger
}

func (n logNavigator) Navigate(_ context.Context, nav Navigation) {
	n.log.WithField("location", nav.Location()).Warn("session ended; login required")
}

// Teardown clears the session and emits one navigation to the login entry
// point carrying returnPath. Clearing is idempotent; the navigation is sent
// on every call.
func (c *Client) Teardown(ctx context.Context, returnPath string) {
	c.endSession(ctx, returnPath, false)
}

// endSession is Teardown. onRefresh marks a teardown run by the refresh
// coordinator, whose event must not wait on the sink.
func (c *Client) endSession(ctx context.Context, returnPath string, onRefresh bool) {
	if ctx == nil {
		ctx = context.Background()
	}
	if returnPath == "" {
		returnPath = "/"
	}

	c.store.Clear()

	nav := Navigation{
		LoginPath:   c.config.Teardown.LoginPath,
		ReturnPath:  returnPath,
		ReturnParam: c.config.Teardown.ReturnParam,
	}
	c.metrics.Inc(MetricTeardown)
	meta := map[string]string{"location": nav.Location()}
	if onRefresh {
		c.offerEvent(ctx, EventTeardown, meta, nil)
	} else {
		c.emitEvent(ctx, EventTeardown, meta, nil)
	}
	c.navigator.Navigate(ctx, nav)
}
