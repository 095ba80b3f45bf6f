package server

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pvaccess-protocol/pva-go/pkg/pvdata"
	"github.com/pvaccess-protocol/pva-go/pkg/wire"
)

// SharedPV lifecycle errors.
var (
	// ErrNotOpen indicates a fetch or post on a closed PV.
	ErrNotOpen = errors.New("pv is not open")

	// ErrAlreadyOpen indicates a second open without an intervening close.
	ErrAlreadyOpen = errors.New("pv is already open")

	// ErrReadOnly indicates a client put on a readonly PV.
	ErrReadOnly = errors.New("pv is read-only")

	// ErrEmptyArray indicates an array open or post with no elements.
	ErrEmptyArray = errors.New("empty array")

	// ErrNoRPCHandler indicates an rpc request on a PV without a handler.
	ErrNoRPCHandler = errors.New("pv has no rpc handler")
)

// pvUpdate is delivered to each attached subscription when the PV
// posts a new value, closes, or fails.
type pvUpdate struct {
	Kind   wire.EventKind
	Value  pvdata.Value
	Reason string
}

// RPCHandler services rpc requests against a PV. The argument value is
// the client's accumulated argument struct; the returned value is sent
// back verbatim.
type RPCHandler func(args pvdata.Value) (pvdata.Value, error)

// SharedPV is a server-side named variable. A mailbox PV accepts client
// puts; a readonly PV only changes through server-side posts. The zero
// value is not usable; construct with NewMailbox or NewReadonly.
type SharedPV struct {
	mu      sync.RWMutex
	mailbox bool

	open    bool
	kind    pvdata.Kind
	choices []string
	meta    pvdata.Metadata
	current pvdata.Value

	rpc  RPCHandler
	subs map[uint32]func(pvUpdate)
}

// NewMailbox creates a closed PV that accepts client puts once open.
func NewMailbox() *SharedPV {
	return &SharedPV{mailbox: true, subs: make(map[uint32]func(pvUpdate))}
}

// NewReadonly creates a closed PV that rejects client puts.
func NewReadonly() *SharedPV {
	return &SharedPV{subs: make(map[uint32]func(pvUpdate))}
}

// IsOpen reports whether the PV currently holds a value.
func (pv *SharedPV) IsOpen() bool {
	pv.mu.RLock()
	defer pv.mu.RUnlock()
	return pv.open
}

// IsMailbox reports whether clients may put to this PV.
func (pv *SharedPV) IsMailbox() bool {
	return pv.mailbox
}

// OnRPC registers the handler invoked for rpc requests against this PV.
func (pv *SharedPV) OnRPC(handler RPCHandler) {
	pv.mu.Lock()
	defer pv.mu.Unlock()
	pv.rpc = handler
}

// openScalar transitions Closed -> Open with the given primary value.
func (pv *SharedPV) openScalar(value pvdata.Value, meta pvdata.Metadata) error {
	pv.mu.Lock()
	defer pv.mu.Unlock()

	if pv.open {
		return ErrAlreadyOpen
	}

	snapshot, err := pvdata.NTScalar(value, meta)
	if err != nil {
		return err
	}

	pv.open = true
	pv.kind = value.Kind()
	pv.choices = nil
	pv.meta = meta
	pv.current = snapshot
	return nil
}

// OpenDouble opens the PV with a double primary value.
func (pv *SharedPV) OpenDouble(initial float64, meta pvdata.Metadata) error {
	return pv.openScalar(pvdata.NewDouble(initial), meta)
}

// OpenInt32 opens the PV with an int32 primary value.
func (pv *SharedPV) OpenInt32(initial int32, meta pvdata.Metadata) error {
	return pv.openScalar(pvdata.NewInt32(initial), meta)
}

// OpenString opens the PV with a string primary value.
func (pv *SharedPV) OpenString(initial string, meta pvdata.Metadata) error {
	return pv.openScalar(pvdata.NewString(initial), meta)
}

// OpenDoubleArray opens the PV with a double array primary value.
// Empty arrays are rejected.
func (pv *SharedPV) OpenDoubleArray(initial []float64, meta pvdata.Metadata) error {
	if len(initial) == 0 {
		return ErrEmptyArray
	}
	return pv.openScalar(pvdata.NewDoubleArray(initial), meta)
}

// OpenInt32Array opens the PV with an int32 array primary value.
func (pv *SharedPV) OpenInt32Array(initial []int32, meta pvdata.Metadata) error {
	if len(initial) == 0 {
		return ErrEmptyArray
	}
	return pv.openScalar(pvdata.NewInt32Array(initial), meta)
}

// OpenStringArray opens the PV with a string array primary value.
func (pv *SharedPV) OpenStringArray(initial []string, meta pvdata.Metadata) error {
	if len(initial) == 0 {
		return ErrEmptyArray
	}
	return pv.openScalar(pvdata.NewStringArray(initial), meta)
}

// OpenEnum opens the PV with an enum primary value. The index must
// address an existing choice.
func (pv *SharedPV) OpenEnum(index int16, choices []string, meta pvdata.Metadata) error {
	pv.mu.Lock()
	defer pv.mu.Unlock()

	if pv.open {
		return ErrAlreadyOpen
	}

	snapshot, err := pvdata.NTEnum(index, choices, meta)
	if err != nil {
		return err
	}

	pv.open = true
	pv.kind = pvdata.KindEnum
	pv.choices = append([]string(nil), choices...)
	pv.meta = meta
	pv.current = snapshot
	return nil
}

// post replaces the snapshot with a new primary value. The value is
// coerced to the PV's declared kind; failure leaves the snapshot
// unchanged. Subscribers are notified after the snapshot is swapped.
func (pv *SharedPV) post(value pvdata.Value, alarm *pvdata.Alarm) error {
	pv.mu.Lock()

	if !pv.open {
		pv.mu.Unlock()
		return ErrNotOpen
	}

	if value.Kind().IsArray() {
		empty := len(value.DoubleArray())+len(value.Int32Array())+len(value.StringArray()) == 0
		if empty {
			pv.mu.Unlock()
			return ErrEmptyArray
		}
	}

	coerced, err := pvdata.Coerce(value, pv.kind)
	if err != nil {
		pv.mu.Unlock()
		return err
	}

	meta := pv.meta
	if alarm != nil {
		meta.Alarm = *alarm
	}
	meta.TimeStamp = pvdata.Now()

	snapshot, err := pvdata.NTScalar(coerced, meta)
	if err != nil {
		pv.mu.Unlock()
		return err
	}

	pv.current = snapshot
	// Notify while holding the lock so concurrent posts reach every
	// subscription in snapshot order. Callbacks enqueue only; they must
	// not block or call back into the PV.
	for _, fn := range pv.subs {
		fn(pvUpdate{Kind: wire.EventData, Value: snapshot})
	}
	pv.mu.Unlock()
	return nil
}

// PostDouble posts a double value.
func (pv *SharedPV) PostDouble(v float64) error {
	return pv.post(pvdata.NewDouble(v), nil)
}

// PostDoubleWithAlarm posts a double value with alarm annotation.
func (pv *SharedPV) PostDoubleWithAlarm(v float64, alarm pvdata.Alarm) error {
	if err := alarm.Validate(); err != nil {
		return err
	}
	return pv.post(pvdata.NewDouble(v), &alarm)
}

// PostInt32 posts an int32 value.
func (pv *SharedPV) PostInt32(v int32) error {
	return pv.post(pvdata.NewInt32(v), nil)
}

// PostInt32WithAlarm posts an int32 value with alarm annotation.
func (pv *SharedPV) PostInt32WithAlarm(v int32, alarm pvdata.Alarm) error {
	if err := alarm.Validate(); err != nil {
		return err
	}
	return pv.post(pvdata.NewInt32(v), &alarm)
}

// PostString posts a string value. Numeric PVs always reject strings.
func (pv *SharedPV) PostString(v string) error {
	return pv.post(pvdata.NewString(v), nil)
}

// PostStringWithAlarm posts a string value with alarm annotation.
func (pv *SharedPV) PostStringWithAlarm(v string, alarm pvdata.Alarm) error {
	if err := alarm.Validate(); err != nil {
		return err
	}
	return pv.post(pvdata.NewString(v), &alarm)
}

// PostDoubleArray posts a double array value.
func (pv *SharedPV) PostDoubleArray(v []float64) error {
	return pv.post(pvdata.NewDoubleArray(v), nil)
}

// PostInt32Array posts an int32 array value.
func (pv *SharedPV) PostInt32Array(v []int32) error {
	return pv.post(pvdata.NewInt32Array(v), nil)
}

// PostStringArray posts a string array value.
func (pv *SharedPV) PostStringArray(v []string) error {
	return pv.post(pvdata.NewStringArray(v), nil)
}

// PostEnum posts a new enum index. The index must address an existing
// choice; failure leaves the snapshot unchanged.
func (pv *SharedPV) PostEnum(index int16) error {
	pv.mu.Lock()

	if !pv.open {
		pv.mu.Unlock()
		return ErrNotOpen
	}
	if pv.kind != pvdata.KindEnum {
		pv.mu.Unlock()
		return fmt.Errorf("%w: pv is %s, posted enum", pvdata.ErrTypeMismatch, pv.kind)
	}
	if index < 0 || int(index) >= len(pv.choices) {
		pv.mu.Unlock()
		return fmt.Errorf("%w: enum index %d out of range [0,%d)",
			pvdata.ErrInvalidValue, index, len(pv.choices))
	}

	meta := pv.meta
	meta.TimeStamp = pvdata.Now()

	snapshot, err := pvdata.NTEnum(index, pv.choices, meta)
	if err != nil {
		pv.mu.Unlock()
		return err
	}

	pv.current = snapshot
	for _, fn := range pv.subs {
		fn(pvUpdate{Kind: wire.EventData, Value: snapshot})
	}
	pv.mu.Unlock()
	return nil
}

// Fetch returns the current snapshot. Values are immutable, so the
// returned tree is safe to hold across later posts.
func (pv *SharedPV) Fetch() (pvdata.Value, error) {
	pv.mu.RLock()
	defer pv.mu.RUnlock()

	if !pv.open {
		return pvdata.Value{}, ErrNotOpen
	}
	return pv.current, nil
}

// Close transitions Open -> Closed. Attached subscriptions receive a
// finished event and are detached. Closing a closed PV is a no-op.
func (pv *SharedPV) Close() {
	pv.mu.Lock()

	if !pv.open {
		pv.mu.Unlock()
		return
	}

	pv.open = false
	pv.current = pvdata.Value{}
	for _, fn := range pv.subs {
		fn(pvUpdate{Kind: wire.EventFinished, Reason: "pv closed"})
	}
	pv.subs = make(map[uint32]func(pvUpdate))
	pv.mu.Unlock()
}

// callRPC invokes the registered handler.
func (pv *SharedPV) callRPC(args pvdata.Value) (pvdata.Value, error) {
	pv.mu.RLock()
	handler := pv.rpc
	pv.mu.RUnlock()

	if handler == nil {
		return pvdata.Value{}, ErrNoRPCHandler
	}
	return handler(args)
}

// applyPut is the client-put path: readonly PVs reject it, mailbox PVs
// post with the usual coercion rules.
func (pv *SharedPV) applyPut(value pvdata.Value) error {
	if !pv.mailbox {
		return ErrReadOnly
	}

	if value.Kind() == pvdata.KindEnum {
		return pv.PostEnum(value.EnumIndex())
	}

	pv.mu.RLock()
	isEnum := pv.open && pv.kind == pvdata.KindEnum
	pv.mu.RUnlock()

	// Integer puts to an enum PV address the index.
	if isEnum {
		idx, err := pvdata.Coerce(value, pvdata.KindInt32)
		if err != nil {
			return err
		}
		return pv.PostEnum(int16(idx.Int32()))
	}

	return pv.post(value, nil)
}

// attach registers a subscription callback. prime runs under the PV
// lock with the current snapshot, so whatever it records is ordered
// ahead of notifications from later posts. Both callbacks run under
// the PV lock: they must not block or call back into the PV.
func (pv *SharedPV) attach(subID uint32, notify func(pvUpdate), prime func(current pvdata.Value, open bool)) {
	pv.mu.Lock()
	defer pv.mu.Unlock()

	pv.subs[subID] = notify
	prime(pv.current, pv.open)
}

// detach removes a subscription callback. Unknown IDs are ignored.
func (pv *SharedPV) detach(subID uint32) {
	pv.mu.Lock()
	defer pv.mu.Unlock()
	delete(pv.subs, subID)
}
