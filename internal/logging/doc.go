// Package logging wraps zap for signald.
//
// The Logger adds correlation fields found on the context (trace and span
// ids, workspace, signal and request ids) to every entry, redacts sensitive
// keys and patterns at the encoder, samples chatty levels and can mirror
// entries to an OpenTelemetry log provider.
//
//	logger, err := logging.NewLogger(logging.NewDefaultConfig(), nil)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithSignalID(ctx, id)
//	logger.Info(ctx, "signal processed", zap.Duration("took", d))
//
// Pipeline components accept a plain *zap.Logger; pass Underlying() to them.
// In tests, NewTestLogger records every entry for assertions.
package logging
