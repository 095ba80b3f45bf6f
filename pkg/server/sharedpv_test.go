package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pvaccess-protocol/pva-go/pkg/pvdata"
	"github.com/pvaccess-protocol/pva-go/pkg/wire"
)

func TestSharedPVLifecycle(t *testing.T) {
	pv := NewMailbox()
	assert.False(t, pv.IsOpen())
	assert.True(t, pv.IsMailbox())

	_, err := pv.Fetch()
	assert.ErrorIs(t, err, ErrNotOpen)

	err = pv.PostDouble(1.0)
	assert.ErrorIs(t, err, ErrNotOpen)

	require.NoError(t, pv.OpenDouble(42.0, pvdata.Metadata{}))
	assert.True(t, pv.IsOpen())

	err = pv.OpenDouble(1.0, pvdata.Metadata{})
	assert.ErrorIs(t, err, ErrAlreadyOpen)

	val, err := pv.Fetch()
	require.NoError(t, err)
	d, err := val.GetDouble("value")
	require.NoError(t, err)
	assert.Equal(t, 42.0, d)

	pv.Close()
	assert.False(t, pv.IsOpen())
	_, err = pv.Fetch()
	assert.ErrorIs(t, err, ErrNotOpen)

	// Close is idempotent and the PV can reopen.
	pv.Close()
	require.NoError(t, pv.OpenInt32(7, pvdata.Metadata{}))
	assert.True(t, pv.IsOpen())
}

func TestSharedPVPostCoercion(t *testing.T) {
	pv := NewMailbox()
	require.NoError(t, pv.OpenDouble(0, pvdata.Metadata{}))

	// Int posted to a double PV widens.
	require.NoError(t, pv.PostInt32(5))
	val, err := pv.Fetch()
	require.NoError(t, err)
	d, err := val.GetDouble("value")
	require.NoError(t, err)
	assert.Equal(t, 5.0, d)

	// Strings never coerce to numerics.
	err = pv.PostString("5.0")
	assert.ErrorIs(t, err, pvdata.ErrTypeMismatch)

	// The failed post left the snapshot alone.
	val, err = pv.Fetch()
	require.NoError(t, err)
	d, err = val.GetDouble("value")
	require.NoError(t, err)
	assert.Equal(t, 5.0, d)
}

func TestSharedPVPostTruncation(t *testing.T) {
	pv := NewMailbox()
	require.NoError(t, pv.OpenInt32(0, pvdata.Metadata{}))

	// Doubles truncate toward zero on an int32 PV.
	require.NoError(t, pv.PostDouble(-3.9))
	val, err := pv.Fetch()
	require.NoError(t, err)
	i, err := val.GetInt32("value")
	require.NoError(t, err)
	assert.Equal(t, int32(-3), i)
}

func TestSharedPVPostWithAlarm(t *testing.T) {
	pv := NewReadonly()
	require.NoError(t, pv.OpenDouble(1.0, pvdata.Metadata{}))

	alarm := pvdata.Alarm{
		Severity: pvdata.SeverityMajor,
		Status:   1,
		Message:  "over limit",
	}
	require.NoError(t, pv.PostDoubleWithAlarm(99.5, alarm))

	val, err := pv.Fetch()
	require.NoError(t, err)
	sev, err := val.GetInt32("alarm.severity")
	require.NoError(t, err)
	assert.Equal(t, pvdata.SeverityMajor, sev)
	msg, err := val.GetString("alarm.message")
	require.NoError(t, err)
	assert.Equal(t, "over limit", msg)

	// Severity out of range is rejected before the snapshot changes.
	err = pv.PostDoubleWithAlarm(1.0, pvdata.Alarm{Severity: 9})
	assert.ErrorIs(t, err, pvdata.ErrInvalidValue)
	val, err = pv.Fetch()
	require.NoError(t, err)
	d, err := val.GetDouble("value")
	require.NoError(t, err)
	assert.Equal(t, 99.5, d)
}

func TestSharedPVEmptyArrays(t *testing.T) {
	pv := NewMailbox()

	err := pv.OpenDoubleArray(nil, pvdata.Metadata{})
	assert.ErrorIs(t, err, ErrEmptyArray)
	err = pv.OpenStringArray([]string{}, pvdata.Metadata{})
	assert.ErrorIs(t, err, ErrEmptyArray)

	require.NoError(t, pv.OpenDoubleArray([]float64{1, 2, 3}, pvdata.Metadata{}))

	err = pv.PostDoubleArray(nil)
	assert.ErrorIs(t, err, ErrEmptyArray)

	val, err := pv.Fetch()
	require.NoError(t, err)
	arr, err := val.GetDoubleArray("value")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, arr)
}

func TestSharedPVEnum(t *testing.T) {
	pv := NewMailbox()
	choices := []string{"OFF", "ON", "FAULT"}

	err := pv.OpenEnum(3, choices, pvdata.Metadata{})
	assert.ErrorIs(t, err, pvdata.ErrInvalidValue)

	require.NoError(t, pv.OpenEnum(1, choices, pvdata.Metadata{}))

	val, err := pv.Fetch()
	require.NoError(t, err)
	idx, err := val.GetEnum("value")
	require.NoError(t, err)
	assert.Equal(t, int16(1), idx)
	got, err := val.EnumChoices("value")
	require.NoError(t, err)
	assert.Equal(t, choices, got)

	require.NoError(t, pv.PostEnum(2))
	val, err = pv.Fetch()
	require.NoError(t, err)
	idx, err = val.GetEnum("value")
	require.NoError(t, err)
	assert.Equal(t, int16(2), idx)

	// Index out of range leaves the snapshot unchanged.
	err = pv.PostEnum(5)
	assert.ErrorIs(t, err, pvdata.ErrInvalidValue)
	val, err = pv.Fetch()
	require.NoError(t, err)
	idx, err = val.GetEnum("value")
	require.NoError(t, err)
	assert.Equal(t, int16(2), idx)
}

func TestSharedPVApplyPut(t *testing.T) {
	ro := NewReadonly()
	require.NoError(t, ro.OpenDouble(1.0, pvdata.Metadata{}))
	err := ro.applyPut(pvdata.NewDouble(2.0))
	assert.ErrorIs(t, err, ErrReadOnly)

	mb := NewMailbox()
	require.NoError(t, mb.OpenDouble(1.0, pvdata.Metadata{}))
	require.NoError(t, mb.applyPut(pvdata.NewInt32(3)))

	val, err := mb.Fetch()
	require.NoError(t, err)
	d, err := val.GetDouble("value")
	require.NoError(t, err)
	assert.Equal(t, 3.0, d)
}

func TestSharedPVApplyPutEnumIndex(t *testing.T) {
	pv := NewMailbox()
	require.NoError(t, pv.OpenEnum(0, []string{"STOP", "RUN"}, pvdata.Metadata{}))

	// Integer puts to an enum PV address the index.
	require.NoError(t, pv.applyPut(pvdata.NewInt32(1)))
	val, err := pv.Fetch()
	require.NoError(t, err)
	idx, err := val.GetEnum("value")
	require.NoError(t, err)
	assert.Equal(t, int16(1), idx)

	// So do whole enum values.
	require.NoError(t, pv.applyPut(pvdata.NewEnum(0, nil)))
	val, err = pv.Fetch()
	require.NoError(t, err)
	idx, err = val.GetEnum("value")
	require.NoError(t, err)
	assert.Equal(t, int16(0), idx)
}

func TestSharedPVRPC(t *testing.T) {
	pv := NewReadonly()

	_, err := pv.callRPC(pvdata.Value{})
	assert.ErrorIs(t, err, ErrNoRPCHandler)

	pv.OnRPC(func(args pvdata.Value) (pvdata.Value, error) {
		a, err := args.GetDouble("a")
		if err != nil {
			return pvdata.Value{}, err
		}
		b, err := args.GetDouble("b")
		if err != nil {
			return pvdata.Value{}, err
		}
		return pvdata.NewDouble(a + b), nil
	})

	args := pvdata.NewStruct(
		pvdata.Field{Name: "a", Value: pvdata.NewDouble(2)},
		pvdata.Field{Name: "b", Value: pvdata.NewDouble(3)},
	)
	result, err := pv.callRPC(args)
	require.NoError(t, err)
	assert.Equal(t, 5.0, result.Double())
}

func TestSharedPVSubscriptions(t *testing.T) {
	pv := NewMailbox()
	require.NoError(t, pv.OpenDouble(1.0, pvdata.Metadata{}))

	var events []pvUpdate
	pv.attach(1, func(u pvUpdate) {
		events = append(events, u)
	}, func(current pvdata.Value, open bool) {
		require.True(t, open)
		d, err := current.GetDouble("value")
		require.NoError(t, err)
		assert.Equal(t, 1.0, d)
	})

	require.NoError(t, pv.PostDouble(2.0))
	require.NoError(t, pv.PostDouble(3.0))

	require.Len(t, events, 2)
	for i, want := range []float64{2.0, 3.0} {
		assert.Equal(t, wire.EventData, events[i].Kind)
		d, err := events[i].Value.GetDouble("value")
		require.NoError(t, err)
		assert.Equal(t, want, d)
	}

	// Detached subscriptions see nothing further.
	pv.detach(1)
	require.NoError(t, pv.PostDouble(4.0))
	assert.Len(t, events, 2)
}

func TestSharedPVCloseNotifiesSubscribers(t *testing.T) {
	pv := NewMailbox()
	require.NoError(t, pv.OpenDouble(1.0, pvdata.Metadata{}))

	var events []pvUpdate
	pv.attach(7, func(u pvUpdate) {
		events = append(events, u)
	}, func(pvdata.Value, bool) {})

	pv.Close()

	require.Len(t, events, 1)
	assert.Equal(t, wire.EventFinished, events[0].Kind)
	assert.Equal(t, "pv closed", events[0].Reason)

	// The close detached the subscription.
	require.NoError(t, pv.OpenDouble(2.0, pvdata.Metadata{}))
	require.NoError(t, pv.PostDouble(3.0))
	assert.Len(t, events, 1)
}
