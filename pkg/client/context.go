package client

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pvaccess-protocol/pva-go/pkg/config"
	"github.com/pvaccess-protocol/pva-go/pkg/log"
	"github.com/pvaccess-protocol/pva-go/pkg/pvdata"
	"github.com/pvaccess-protocol/pva-go/pkg/transport"
	"github.com/pvaccess-protocol/pva-go/pkg/wire"
)

// ContextOption configures a Context at construction.
type ContextOption func(*Context)

// WithLogger installs a protocol logger on every link.
func WithLogger(logger log.Logger) ContextOption {
	return func(c *Context) {
		c.logger = logger
	}
}

// WithKeepAlive overrides the liveness probing applied to every link.
// Zero fields take the transport defaults.
func WithKeepAlive(ka transport.KeepAliveConfig) ContextOption {
	return func(c *Context) {
		c.keepAlive = ka
	}
}

// Context is a client handle: one lazily dialed link per configured
// server address, shared by all operations issued through it.
//
// A Context is not safe for concurrent calls from multiple goroutines;
// use one Context per goroutine. Values returned from calls are
// immutable and safe to share.
type Context struct {
	cfg       config.Client
	logger    log.Logger
	keepAlive transport.KeepAliveConfig

	tc    *transport.Client
	links []*link

	closed atomic.Bool
}

// NewContext creates a client for the configured server addresses.
// Connections are dialed on first use.
func NewContext(cfg config.Client, opts ...ContextOption) (*Context, error) {
	if len(cfg.AddrList) == 0 {
		cfg = config.DefaultClient()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = config.DefaultRequestTimeout
	}

	c := &Context{cfg: cfg}
	for _, opt := range opts {
		opt(c)
	}

	tc, err := transport.NewClient(transport.ClientConfig{KeepAlive: c.keepAlive})
	if err != nil {
		return nil, err
	}
	c.tc = tc

	for _, addr := range cfg.AddrList {
		c.links = append(c.links, newLink(addr, tc, c.logger))
	}
	return c, nil
}

// FromEnv creates a client configured from the environment.
func FromEnv(opts ...ContextOption) (*Context, error) {
	cfg, err := config.ClientFromEnv()
	if err != nil {
		return nil, err
	}
	return NewContext(cfg, opts...)
}

// Close tears down every link. Further calls fail with
// ErrContextClosed. Close is idempotent.
func (c *Context) Close() {
	if c.closed.Swap(true) {
		return
	}
	for _, l := range c.links {
		l.close()
	}
}

// RequestTimeout returns the timeout applied to synchronous calls.
func (c *Context) RequestTimeout() time.Duration {
	return c.cfg.RequestTimeout
}

// call resolves the PV by asking each configured server in order.
func (c *Context) call(op wire.Operation, pv string, payload any) (*wire.Response, error) {
	return c.callWithTimeout(op, pv, payload, c.cfg.RequestTimeout)
}

func (c *Context) callWithTimeout(op wire.Operation, pv string, payload any, timeout time.Duration) (*wire.Response, error) {
	if c.closed.Load() {
		return nil, ErrContextClosed
	}

	lastErr := fmt.Errorf("%w: %q", ErrNoSuchPV, pv)
	for _, l := range c.links {
		resp, err := l.request(&wire.Request{Operation: op, PV: pv, Payload: payload}, timeout)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.Status == wire.StatusNoSuchPV {
			lastErr = statusError(resp, pv)
			continue
		}
		return resp, nil
	}
	return nil, lastErr
}

// callValue performs a call whose success response carries a value.
func (c *Context) callValue(op wire.Operation, pv string, payload any) (*pvdata.Value, error) {
	resp, err := c.call(op, pv, payload)
	if err != nil {
		return nil, err
	}
	if resp.Status.IsError() {
		return nil, statusError(resp, pv)
	}

	var vp wire.ValuePayload
	ok, err := wire.DecodePayload(resp.Payload, &vp)
	if err != nil {
		return nil, err
	}
	if !ok || vp.Value == nil {
		return nil, fmt.Errorf("%s response for %q: missing value", op, pv)
	}
	value, err := vp.Value.ToValue()
	if err != nil {
		return nil, err
	}
	return &value, nil
}

// Get reads the PV's current value.
func (c *Context) Get(pv string) (*pvdata.Value, error) {
	return c.callValue(wire.OpGet, pv, nil)
}

// GetField reads one field of the PV by dot-separated path.
func (c *Context) GetField(pv, field string) (*pvdata.Value, error) {
	return c.callValue(wire.OpGet, pv, &wire.GetPayload{Field: field})
}

// Info reads the PV's full structure including metadata sections.
func (c *Context) Info(pv string) (*pvdata.Value, error) {
	return c.callValue(wire.OpInfo, pv, nil)
}

// PutValue writes a value to the PV's primary field. The server
// applies the usual coercion rules; readonly PVs reject the write.
func (c *Context) PutValue(pv string, value pvdata.Value) error {
	wv, err := wire.FromValue(value)
	if err != nil {
		return err
	}
	resp, err := c.call(wire.OpPut, pv, &wire.PutPayload{Value: wv})
	if err != nil {
		return err
	}
	return statusError(resp, pv)
}

// PutDouble writes a double to the PV.
func (c *Context) PutDouble(pv string, v float64) error {
	return c.PutValue(pv, pvdata.NewDouble(v))
}

// PutInt32 writes an int32 to the PV. On an enum PV the value
// addresses the choice index.
func (c *Context) PutInt32(pv string, v int32) error {
	return c.PutValue(pv, pvdata.NewInt32(v))
}

// PutString writes a string to the PV. Numeric PVs reject strings.
func (c *Context) PutString(pv string, v string) error {
	return c.PutValue(pv, pvdata.NewString(v))
}

// GetAsync starts a get and returns a pollable handle.
func (c *Context) GetAsync(pv string) *Operation {
	return c.async(wire.OpGet, pv, func() (*pvdata.Value, error) {
		return c.Get(pv)
	})
}

// InfoAsync starts an info call and returns a pollable handle.
func (c *Context) InfoAsync(pv string) *Operation {
	return c.async(wire.OpInfo, pv, func() (*pvdata.Value, error) {
		return c.Info(pv)
	})
}

// PutDoubleAsync starts a double put and returns a pollable handle.
// The completed operation carries a nil value.
func (c *Context) PutDoubleAsync(pv string, v float64) *Operation {
	return c.async(wire.OpPut, pv, func() (*pvdata.Value, error) {
		return nil, c.PutDouble(pv, v)
	})
}

// async runs fn in the background behind an Operation handle.
func (c *Context) async(kind wire.Operation, pv string, fn func() (*pvdata.Value, error)) *Operation {
	op := newOperation(kind, pv)
	go func() {
		op.complete(fn())
	}()
	return op
}

// RPC starts building a remote procedure call against the PV.
func (c *Context) RPC(pv string) *RpcCall {
	return &RpcCall{ctx: c, pv: pv}
}

// Monitor starts building a subscription to the PV.
func (c *Context) Monitor(pv string) *MonitorBuilder {
	return &MonitorBuilder{ctx: c, name: pv}
}

// execMonitor issues the subscription built by b. When every server is
// unreachable the monitor is returned disconnected and bound to the
// first link, which redials in the background and replays the
// subscription on connect.
func (c *Context) execMonitor(b *MonitorBuilder) (*Monitor, error) {
	if c.closed.Load() {
		return nil, ErrContextClosed
	}

	m := &Monitor{
		name:             b.name,
		maskConnected:    b.maskConnected,
		maskDisconnected: b.maskDisconnected,
		callback:         b.callback,
		armed:            true,
	}

	var lastErr error
	for _, l := range c.links {
		m.link = l
		err := l.subscribe(m, c.cfg.RequestTimeout)
		if err == nil {
			return m, nil
		}
		lastErr = err
		if isRemoteRejection(err) {
			continue
		}

		// Transport-level failure: keep the subscription bound to this
		// link for replay once its background redial succeeds.
		l.adopt(m)
		return m, nil
	}

	return nil, lastErr
}

// isRemoteRejection reports whether a subscribe error came from a
// reachable server refusing the request rather than transport failure.
func isRemoteRejection(err error) bool {
	var remote *RemoteError
	if errors.As(err, &remote) {
		return true
	}
	return errors.Is(err, ErrNoSuchPV) ||
		errors.Is(err, pvdata.ErrNoSuchField) ||
		errors.Is(err, pvdata.ErrTypeMismatch) ||
		errors.Is(err, pvdata.ErrNotAnArray) ||
		errors.Is(err, pvdata.ErrInvalidValue)
}
