package client_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pvaccess-protocol/pva-go/pkg/client"
	"github.com/pvaccess-protocol/pva-go/pkg/config"
	"github.com/pvaccess-protocol/pva-go/pkg/pvdata"
	"github.com/pvaccess-protocol/pva-go/pkg/server"
	"github.com/pvaccess-protocol/pva-go/pkg/wire"
)

// startServer runs an isolated server and returns a client config
// pointing at it.
func startServer(t *testing.T) (*server.Server, config.Client) {
	t.Helper()

	srv := server.NewIsolated()
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() { srv.Stop() })

	cfg := config.Client{
		AddrList:       []string{fmt.Sprintf("127.0.0.1:%d", srv.TCPPort())},
		RequestTimeout: 2 * time.Second,
	}
	return srv, cfg
}

func newClient(t *testing.T, cfg config.Client) *client.Context {
	t.Helper()

	ctx, err := client.NewContext(cfg)
	require.NoError(t, err)
	t.Cleanup(ctx.Close)
	return ctx
}

func TestContextGetPut(t *testing.T) {
	srv, cfg := startServer(t)

	pv := server.NewMailbox()
	require.NoError(t, pv.OpenDouble(3.14159, pvdata.Metadata{}))
	srv.AddPV("temp:water", pv)

	ctx := newClient(t, cfg)

	value, err := ctx.Get("temp:water")
	require.NoError(t, err)
	d, err := value.GetDouble("value")
	require.NoError(t, err)
	assert.InDelta(t, 3.14159, d, 1e-14)

	// Int puts widen on a double PV.
	require.NoError(t, ctx.PutInt32("temp:water", 42))
	value, err = ctx.Get("temp:water")
	require.NoError(t, err)
	d, err = value.GetDouble("value")
	require.NoError(t, err)
	assert.Equal(t, 42.0, d)

	// String puts to a numeric PV fail and leave the value unchanged.
	err = ctx.PutString("temp:water", "x")
	assert.ErrorIs(t, err, pvdata.ErrTypeMismatch)

	value, err = ctx.Get("temp:water")
	require.NoError(t, err)
	d, err = value.GetDouble("value")
	require.NoError(t, err)
	assert.Equal(t, 42.0, d)
}

func TestContextGetUnknownPV(t *testing.T) {
	_, cfg := startServer(t)
	ctx := newClient(t, cfg)

	_, err := ctx.Get("no:such:pv")
	assert.ErrorIs(t, err, client.ErrNoSuchPV)
}

func TestContextPutReadonly(t *testing.T) {
	srv, cfg := startServer(t)

	_, err := srv.CreateReadonlyDouble("const:c", 299792458, pvdata.Metadata{})
	require.NoError(t, err)

	ctx := newClient(t, cfg)

	err = ctx.PutDouble("const:c", 1.0)
	var remote *client.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, wire.StatusReadOnly, remote.Status)
}

func TestContextGetField(t *testing.T) {
	srv, cfg := startServer(t)

	pv := server.NewMailbox()
	require.NoError(t, pv.OpenEnum(1, []string{"OFF", "ON"}, pvdata.Metadata{}))
	srv.AddPV("sw:main", pv)

	ctx := newClient(t, cfg)

	idx, err := ctx.GetField("sw:main", "value.index")
	require.NoError(t, err)
	assert.Equal(t, int32(1), idx.Int32())

	choices, err := ctx.GetField("sw:main", "value.choices")
	require.NoError(t, err)
	assert.Equal(t, []string{"OFF", "ON"}, choices.StringArray())

	_, err = ctx.GetField("sw:main", "nope")
	assert.ErrorIs(t, err, pvdata.ErrNoSuchField)
}

func TestContextInfo(t *testing.T) {
	srv, cfg := startServer(t)

	pv := server.NewReadonly()
	meta := pvdata.Metadata{Display: &pvdata.Display{Units: "V", Precision: 3}}
	require.NoError(t, pv.OpenDouble(5.0, meta))
	srv.AddPV("psu:out", pv)

	ctx := newClient(t, cfg)

	value, err := ctx.Info("psu:out")
	require.NoError(t, err)

	units, err := value.GetString("display.units")
	require.NoError(t, err)
	assert.Equal(t, "V", units)
	prec, err := value.GetInt32("display.precision")
	require.NoError(t, err)
	assert.Equal(t, int32(3), prec)
}

func TestContextClosed(t *testing.T) {
	_, cfg := startServer(t)

	ctx, err := client.NewContext(cfg)
	require.NoError(t, err)
	ctx.Close()
	ctx.Close()

	_, err = ctx.Get("temp:water")
	assert.ErrorIs(t, err, client.ErrContextClosed)

	err = ctx.PutDouble("temp:water", 1.0)
	assert.ErrorIs(t, err, client.ErrContextClosed)
}

func TestContextDefaults(t *testing.T) {
	ctx, err := client.NewContext(config.Client{})
	require.NoError(t, err)
	defer ctx.Close()

	assert.Equal(t, config.DefaultRequestTimeout, ctx.RequestTimeout())
}
