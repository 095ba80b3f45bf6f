package client

import (
	"sync"
	"time"

	"github.com/pvaccess-protocol/pva-go/pkg/pvdata"
	"github.com/pvaccess-protocol/pva-go/pkg/wire"
)

// Operation is a pollable handle over one in-flight get/put/info/rpc
// call. The recommended consumption pattern is a cooperative poll
// loop: check IsDone, sleep briefly if not, then read Result.
type Operation struct {
	kind wire.Operation
	pv   string

	mu     sync.Mutex
	done   bool
	result *pvdata.Value
	err    error
	doneCh chan struct{}
}

func newOperation(kind wire.Operation, pv string) *Operation {
	return &Operation{
		kind:   kind,
		pv:     pv,
		doneCh: make(chan struct{}),
	}
}

// Kind returns the operation kind.
func (o *Operation) Kind() wire.Operation {
	return o.kind
}

// PV returns the target PV name.
func (o *Operation) PV() string {
	return o.pv
}

// IsDone reports whether the operation has completed. Non-blocking and
// safe to call repeatedly.
func (o *Operation) IsDone() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.done
}

// Result returns the outcome. While the operation is pending it
// returns ErrNotReady instead of blocking; poll IsDone or use
// WaitForCompletion first. Put operations complete with a nil value.
func (o *Operation) Result() (*pvdata.Value, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.done {
		return nil, ErrNotReady
	}
	return o.result, o.err
}

// Cancel completes the operation with ErrCancelled. Best-effort: the
// underlying call may still run to completion on the server, but its
// result is discarded.
func (o *Operation) Cancel() {
	o.complete(nil, ErrCancelled)
}

// WaitForCompletion blocks until the operation completes or the
// timeout elapses, reporting whether it completed.
func (o *Operation) WaitForCompletion(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-o.doneCh:
		return true
	case <-timer.C:
		return false
	}
}

// complete records the outcome once; later completions are dropped.
func (o *Operation) complete(result *pvdata.Value, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.done {
		return
	}
	o.done = true
	o.result = result
	o.err = err
	close(o.doneCh)
}
