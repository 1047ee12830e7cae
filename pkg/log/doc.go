// Package log is the structured logging layer used across tokenkit.
//
// Components receive a Logger explicitly (usually through their Config) and
// derive named children from it:
//
//	lg := log.NewZapLogger(log.Config{Format: "logfmt", Level: log.LevelDebug})
//	signerLog := lg.WithName("txsigner").WithKV("kind", "ledger")
//	signerLog.Info("device connected", "address", addr)
//
// A logger can travel in a context. When the context carries a recording
// OpenTelemetry span, SetContextLogger wraps the logger so every record is
// also added to the span as an event:
//
//	ctx, span := tracer.Start(ctx, "sign")
//	defer span.End()
//	ctx = log.SetContextLogger(ctx, signerLog)
//	log.FromContext(ctx).Debug("resolving fields")
//
// Tests use NewNoopLogger.
//
// Config is read from the environment by cleanenv:
//
//   - LOG_FORMAT: console, logfmt or json
//   - LOG_LEVEL: debug, info, warn, error or fatal
//   - LOG_OUTPUT: stderr, stdout or a file path
package log
