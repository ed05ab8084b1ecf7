// Package telemetry sets up OpenTelemetry tracing and metrics for signald.
//
// New installs global tracer and meter providers exporting over OTLP (gRPC or
// HTTP). When disabled, the globals stay no-op and instrumented code pays
// nothing. Failures to build an exporter mark the instance degraded instead
// of failing startup.
//
//	tel, err := telemetry.New(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
// NewTestTelemetry wires in-memory recorders for assertions in tests.
package telemetry
