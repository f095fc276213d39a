// Package telemetry provides logging, tracing and metrics for up.
//
// Logging is structured with zerolog and goes to stderr by default, leaving
// stdout to task output. Tracing uses OpenTelemetry with a span per run and
// a child span per task; spans can be exported over OTLP/gRPC or printed.
// Metrics are Prometheus collectors on a private registry and are written
// once at the end of a run in the node_exporter textfile format, since a
// run is too short-lived to be scraped.
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//		return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	log := tel.Logger.NewComponentLogger("scheduler").WithRunID(runID)
//	log.Infof("running %d tasks", n)
//
// Components given a nil *Telemetry fall back to NewNop, which records
// nothing.
package telemetry
