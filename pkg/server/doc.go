// Package server hosts process variables over the pva wire protocol.
//
// The building blocks mirror the client side:
//
//   - SharedPV: a single named variable with an open/post/fetch/close
//     lifecycle. Mailbox PVs accept client puts; readonly PVs reject them.
//   - StaticSource: a name-indexed collection of SharedPVs.
//   - Server: the network front end. It owns a transport listener,
//     dispatches get/put/info/rpc requests to the resolved PV, and fans
//     posted updates out to monitor subscriptions.
//
// A minimal server:
//
//	srv := server.NewIsolated()
//	pv := server.NewMailbox()
//	pv.OpenDouble(3.14, pvdata.Metadata{})
//	srv.AddPV("demo:value", pv)
//	srv.Start(ctx)
//	defer srv.Stop()
//
// Posts while the server runs are broadcast to every active monitor of
// the PV in FIFO order per subscription.
package server
