package client_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pvaccess-protocol/pva-go/pkg/client"
	"github.com/pvaccess-protocol/pva-go/pkg/config"
	"github.com/pvaccess-protocol/pva-go/pkg/pvdata"
	"github.com/pvaccess-protocol/pva-go/pkg/server"
)

// popData drains the monitor until a data value arrives, failing after
// the deadline.
func popData(t *testing.T, mon *client.Monitor) *pvdata.Value {
	t.Helper()

	value, err := mon.GetUpdate(2 * time.Second)
	require.NoError(t, err)
	require.NotNil(t, value)
	return value
}

func TestMonitorPrimingAndUpdates(t *testing.T) {
	srv, cfg := startServer(t)

	pv := server.NewMailbox()
	require.NoError(t, pv.OpenDouble(1.0, pvdata.Metadata{}))
	srv.AddPV("mon:pv", pv)

	ctx := newClient(t, cfg)

	mon, err := ctx.Monitor("mon:pv").Exec()
	require.NoError(t, err)
	defer mon.Stop()

	assert.Equal(t, "mon:pv", mon.Name())

	// First entry is the connection signal, then the priming snapshot.
	_, err = mon.Pop()
	var evt *client.EventError
	require.ErrorAs(t, err, &evt)
	assert.Equal(t, client.EventConnected, evt.Kind)
	assert.True(t, mon.IsConnected())

	value, err := mon.Pop()
	require.NoError(t, err)
	require.NotNil(t, value)
	d, err := value.GetDouble("value")
	require.NoError(t, err)
	assert.Equal(t, 1.0, d)

	// Empty queue reads as (nil, nil).
	value, err = mon.Pop()
	require.NoError(t, err)
	assert.Nil(t, value)

	require.NoError(t, pv.PostDouble(2.0))
	value = popData(t, mon)
	d, err = value.GetDouble("value")
	require.NoError(t, err)
	assert.Equal(t, 2.0, d)
}

func TestMonitorMasks(t *testing.T) {
	srv, cfg := startServer(t)

	pv := server.NewMailbox()
	require.NoError(t, pv.OpenInt32(10, pvdata.Metadata{}))
	srv.AddPV("mon:masked", pv)

	ctx := newClient(t, cfg)

	mon, err := ctx.Monitor("mon:masked").
		MaskConnected(true).
		MaskDisconnected(true).
		Exec()
	require.NoError(t, err)
	defer mon.Stop()

	// Masked connect still updates IsConnected but never queues.
	assert.True(t, mon.IsConnected())

	value, err := mon.Pop()
	require.NoError(t, err)
	require.NotNil(t, value)
	i, err := value.GetInt32("value")
	require.NoError(t, err)
	assert.Equal(t, int32(10), i)
}

func TestMonitorFIFOOrder(t *testing.T) {
	srv, cfg := startServer(t)

	pv := server.NewMailbox()
	require.NoError(t, pv.OpenInt32(0, pvdata.Metadata{}))
	srv.AddPV("mon:fifo", pv)

	ctx := newClient(t, cfg)

	mon, err := ctx.Monitor("mon:fifo").
		MaskConnected(true).
		MaskDisconnected(true).
		Exec()
	require.NoError(t, err)
	defer mon.Stop()

	// Drop the priming snapshot.
	popData(t, mon)

	for i := int32(1); i <= 5; i++ {
		require.NoError(t, pv.PostInt32(i))
	}

	for want := int32(1); want <= 5; want++ {
		value := popData(t, mon)
		got, err := value.GetInt32("value")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestMonitorPopAfterStop(t *testing.T) {
	srv, cfg := startServer(t)

	pv := server.NewMailbox()
	require.NoError(t, pv.OpenDouble(1.0, pvdata.Metadata{}))
	srv.AddPV("mon:stopped", pv)

	ctx := newClient(t, cfg)

	mon, err := ctx.Monitor("mon:stopped").Exec()
	require.NoError(t, err)

	mon.Stop()
	mon.Stop()

	_, err = mon.Pop()
	var cerr client.ClientError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, `"mon:stopped" doesn't have an active monitor`, string(cerr))

	// Every subsequent read fails the same way, never (nil, nil).
	for i := 0; i < 3; i++ {
		_, err = mon.Pop()
		assert.ErrorAs(t, err, &cerr)
	}

	assert.False(t, mon.HasUpdate())
}

func TestMonitorStartStopCycle(t *testing.T) {
	srv, cfg := startServer(t)

	pv := server.NewMailbox()
	require.NoError(t, pv.OpenInt32(7, pvdata.Metadata{}))
	srv.AddPV("mon:cycle", pv)

	ctx := newClient(t, cfg)

	mon, err := ctx.Monitor("mon:cycle").
		MaskConnected(true).
		MaskDisconnected(true).
		Exec()
	require.NoError(t, err)
	defer mon.Stop()

	// Exec leaves the monitor running; Start on a running monitor is a
	// no-op and must not queue a second priming snapshot.
	assert.True(t, mon.IsRunning())
	require.NoError(t, mon.Start())

	popData(t, mon)
	value, err := mon.TryGetUpdate()
	require.NoError(t, err)
	assert.Nil(t, value)

	mon.Stop()
	assert.False(t, mon.IsRunning())

	_, err = mon.Pop()
	var cerr client.ClientError
	require.ErrorAs(t, err, &cerr)

	// Posts while stopped are not queued.
	require.NoError(t, pv.PostInt32(8))

	// Start re-subscribes: a fresh priming snapshot carries the current
	// value, not the missed updates.
	require.NoError(t, mon.Start())
	assert.True(t, mon.IsRunning())

	value = popData(t, mon)
	got, err := value.GetInt32("value")
	require.NoError(t, err)
	assert.Equal(t, int32(8), got)

	require.NoError(t, pv.PostInt32(9))
	value = popData(t, mon)
	got, err = value.GetInt32("value")
	require.NoError(t, err)
	assert.Equal(t, int32(9), got)
}

func TestMonitorFinishedOnPVClose(t *testing.T) {
	srv, cfg := startServer(t)

	pv := server.NewMailbox()
	require.NoError(t, pv.OpenDouble(1.0, pvdata.Metadata{}))
	srv.AddPV("mon:closing", pv)

	ctx := newClient(t, cfg)

	mon, err := ctx.Monitor("mon:closing").
		MaskConnected(true).
		MaskDisconnected(true).
		Exec()
	require.NoError(t, err)
	defer mon.Stop()

	popData(t, mon)

	pv.Close()

	deadline := time.Now().Add(2 * time.Second)
	for {
		_, err := mon.Pop()
		var evt *client.EventError
		if errors.As(err, &evt) {
			assert.Equal(t, client.EventFinished, evt.Kind)
			assert.Equal(t, "pv closed", evt.Reason)
			return
		}
		require.NoError(t, err)
		if time.Now().After(deadline) {
			t.Fatal("no finished event before deadline")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestMonitorEdgeTriggeredCallback(t *testing.T) {
	srv, cfg := startServer(t)

	pv := server.NewMailbox()
	require.NoError(t, pv.OpenInt32(0, pvdata.Metadata{}))
	srv.AddPV("mon:edge", pv)

	ctx := newClient(t, cfg)

	var fires atomic.Int32
	mon, err := ctx.Monitor("mon:edge").
		MaskConnected(true).
		MaskDisconnected(true).
		Event(func() { fires.Add(1) }).
		Exec()
	require.NoError(t, err)
	defer mon.Stop()

	// The priming snapshot is the first empty-to-non-empty edge.
	require.Eventually(t, func() bool { return fires.Load() == 1 }, time.Second, 10*time.Millisecond)

	// Further posts while the queue is non-empty do not fire again.
	require.NoError(t, pv.PostInt32(1))
	require.NoError(t, pv.PostInt32(2))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), fires.Load())

	// Draining to empty re-arms the edge.
	for {
		value, err := mon.Pop()
		require.NoError(t, err)
		if value == nil {
			break
		}
	}

	require.NoError(t, pv.PostInt32(3))
	require.Eventually(t, func() bool { return fires.Load() == 2 }, time.Second, 10*time.Millisecond)
}

func TestMonitorLegacyAccessors(t *testing.T) {
	srv, cfg := startServer(t)

	pv := server.NewMailbox()
	require.NoError(t, pv.OpenString("a", pvdata.Metadata{}))
	srv.AddPV("mon:legacy", pv)

	ctx := newClient(t, cfg)

	// Connection events are queued but the legacy accessors swallow
	// them.
	mon, err := ctx.Monitor("mon:legacy").Exec()
	require.NoError(t, err)
	defer mon.Stop()

	value, err := mon.GetUpdate(2 * time.Second)
	require.NoError(t, err)
	require.NotNil(t, value)
	s, err := value.GetString("value")
	require.NoError(t, err)
	assert.Equal(t, "a", s)

	// Queue drained: TryGetUpdate reports no data.
	value, err = mon.TryGetUpdate()
	require.NoError(t, err)
	assert.Nil(t, value)
	assert.False(t, mon.HasUpdate())

	require.NoError(t, pv.PostString("b"))
	require.Eventually(t, mon.HasUpdate, time.Second, 10*time.Millisecond)
}

func TestMonitorConnectivityAcrossRestart(t *testing.T) {
	if testing.Short() {
		t.Skip("restart scenario waits on reconnect backoff")
	}

	srv, cfg := startServer(t)
	port := srv.TCPPort()

	pv := server.NewMailbox()
	require.NoError(t, pv.OpenDouble(1.0, pvdata.Metadata{}))
	srv.AddPV("mon:restart", pv)

	ctx := newClient(t, cfg)

	mon, err := ctx.Monitor("mon:restart").Exec()
	require.NoError(t, err)
	defer mon.Stop()

	require.Eventually(t, mon.IsConnected, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, srv.Stop())
	require.Eventually(t, func() bool { return !mon.IsConnected() }, 5*time.Second, 20*time.Millisecond)

	// A replacement server on the same port picks the monitor back up
	// through the link's redial.
	srv2 := server.New(config.Server{Address: fmt.Sprintf("127.0.0.1:%d", port)})
	pv2 := server.NewMailbox()
	require.NoError(t, pv2.OpenDouble(2.0, pvdata.Metadata{}))
	srv2.AddPV("mon:restart", pv2)
	require.NoError(t, srv2.Start(context.Background()))
	defer srv2.Stop()

	require.Eventually(t, mon.IsConnected, 15*time.Second, 50*time.Millisecond)
}
