// Package log captures protocol traffic as structured events.
//
// Protocol capture is separate from operational logging: an slog line
// tells an operator something happened, while a capture event records
// the complete machine-readable trace of what crossed the wire. Events
// are produced at three layers: raw frames (transport), decoded
// messages (wire), and PV/monitor lifecycle (service).
//
// A Logger implementation decides where events go:
//
//	// Development: mirror protocol traffic onto the console.
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// Production: append to a binary capture file.
//	fl, err := log.NewFileLogger("/var/log/pva/server.pvlog")
//
//	// Both at once.
//	cfg.ProtocolLogger = log.NewMultiLogger(log.NewSlogAdapter(slog.Default()), fl)
//
// Capture files are a bare concatenation of CBOR-encoded events,
// conventionally with a .pvlog extension. Reader streams them back,
// optionally filtered by connection, PV, layer, direction, or time
// window; the pvlog tool builds on it.
package log
