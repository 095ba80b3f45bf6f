package client

import (
	"time"

	"github.com/pvaccess-protocol/pva-go/pkg/pvdata"
	"github.com/pvaccess-protocol/pva-go/pkg/wire"
)

// RpcCall accumulates named arguments for a remote procedure call and
// executes it once. After Execute or Submit the builder is consumed;
// reuse fails with ClientError.
type RpcCall struct {
	ctx      *Context
	pv       string
	args     []pvdata.Field
	consumed bool
}

// ArgString adds a string argument.
func (r *RpcCall) ArgString(name, v string) *RpcCall {
	return r.arg(name, pvdata.NewString(v))
}

// ArgDouble adds a double argument.
func (r *RpcCall) ArgDouble(name string, v float64) *RpcCall {
	return r.arg(name, pvdata.NewDouble(v))
}

// ArgInt32 adds an int32 argument.
func (r *RpcCall) ArgInt32(name string, v int32) *RpcCall {
	return r.arg(name, pvdata.NewInt32(v))
}

// ArgBool adds a boolean argument, carried as int32 0 or 1.
func (r *RpcCall) ArgBool(name string, v bool) *RpcCall {
	i := int32(0)
	if v {
		i = 1
	}
	return r.arg(name, pvdata.NewInt32(i))
}

// arg appends or replaces the named argument.
func (r *RpcCall) arg(name string, value pvdata.Value) *RpcCall {
	for i, f := range r.args {
		if f.Name == name {
			r.args[i].Value = value
			return r
		}
	}
	r.args = append(r.args, pvdata.Field{Name: name, Value: value})
	return r
}

// Execute sends the call and blocks for the result. One-shot: the
// builder cannot be reused afterwards.
func (r *RpcCall) Execute(timeout time.Duration) (*pvdata.Value, error) {
	payload, err := r.consume()
	if err != nil {
		return nil, err
	}

	if timeout <= 0 {
		timeout = r.ctx.cfg.RequestTimeout
	}

	resp, err := r.ctx.callWithTimeout(wire.OpRpc, r.pv, payload, timeout)
	if err != nil {
		return nil, err
	}
	if resp.Status.IsError() {
		return nil, statusError(resp, r.pv)
	}

	var vp wire.ValuePayload
	ok, err := wire.DecodePayload(resp.Payload, &vp)
	if err != nil {
		return nil, err
	}
	if !ok || vp.Value == nil {
		return nil, nil
	}
	value, err := vp.Value.ToValue()
	if err != nil {
		return nil, err
	}
	return &value, nil
}

// Submit sends the call in the background. One-shot like Execute.
func (r *RpcCall) Submit() (*Operation, error) {
	payload, err := r.consume()
	if err != nil {
		return nil, err
	}

	op := newOperation(wire.OpRpc, r.pv)
	timeout := r.ctx.cfg.RequestTimeout
	go func() {
		resp, err := r.ctx.callWithTimeout(wire.OpRpc, r.pv, payload, timeout)
		if err != nil {
			op.complete(nil, err)
			return
		}
		if resp.Status.IsError() {
			op.complete(nil, statusError(resp, r.pv))
			return
		}
		var vp wire.ValuePayload
		ok, err := wire.DecodePayload(resp.Payload, &vp)
		if err != nil {
			op.complete(nil, err)
			return
		}
		if !ok || vp.Value == nil {
			op.complete(nil, nil)
			return
		}
		value, err := vp.Value.ToValue()
		if err != nil {
			op.complete(nil, err)
			return
		}
		op.complete(&value, nil)
	}()
	return op, nil
}

// consume marks the builder used and materializes the argument struct.
func (r *RpcCall) consume() (*wire.ValuePayload, error) {
	if r.consumed {
		return nil, ClientError("rpc call already executed")
	}
	r.consumed = true

	wv, err := wire.FromValue(pvdata.NewStruct(r.args...))
	if err != nil {
		return nil, err
	}
	return &wire.ValuePayload{Value: wv}, nil
}
