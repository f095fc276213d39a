package telemetry

import (
	"context"
	"errors"
)

// Telemetry bundles the logger, tracer and metrics of one process. It is
// created once in main and passed explicitly to the components that need it.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Config  *Config
}

// NewTelemetry creates a new telemetry instance from configuration.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion)
	if err != nil {
		return nil, err
	}

	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics,
		Config:  cfg,
	}, nil
}

// NewNop returns telemetry that records nothing. Used by tests and by
// components constructed without a telemetry handle.
func NewNop() *Telemetry {
	cfg := DefaultConfig()
	tracer, _ := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion)
	metrics, _ := NewMetrics(cfg.Metrics)
	return &Telemetry{
		Logger:  Nop(),
		Tracer:  tracer,
		Metrics: metrics,
		Config:  cfg,
	}
}

// Shutdown flushes spans and writes the metrics textfile. A log file
// opened for the logger is closed last.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	if t.Tracer != nil {
		if err := t.Tracer.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if t.Metrics != nil {
		if err := t.Metrics.WriteTextfile(); err != nil {
			errs = append(errs, err)
		}
	}
	if t.Logger != nil {
		if err := t.Logger.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
