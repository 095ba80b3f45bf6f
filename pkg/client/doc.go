// Package client provides the process-variable client: synchronous
// get/put/info calls, asynchronous pollable operations, rpc calls with
// typed argument builders, and monitor subscriptions with a pollable
// event queue.
//
// A Context holds one link per configured server address. Links dial
// lazily, correlate requests with responses, and redial with backoff
// after an established connection is lost; active monitors are
// replayed on reconnect. Individual calls are never retried.
//
//	cfg := config.DefaultClient()
//	ctx, err := client.NewContext(cfg)
//	if err != nil {
//		return err
//	}
//	defer ctx.Close()
//
//	value, err := ctx.Get("temp:water")
//	if err != nil {
//		return err
//	}
//	d, _ := value.GetDouble("value")
//
//	mon, err := ctx.Monitor("temp:water").Exec()
//	if err != nil {
//		return err
//	}
//	defer mon.Stop()
//	for {
//		v, err := mon.Pop()
//		...
//	}
package client
