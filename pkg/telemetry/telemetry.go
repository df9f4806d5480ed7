// Package telemetry wires havoc's OpenTelemetry traces and metrics.
//
// Run, stage and LLM spans go to an OTLP collector when one is configured.
// Run metrics are served in the Prometheus text format on their own port.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
	"go.uber.org/zap"

	"github.com/AlecFritsch/inito/consts"
	"github.com/AlecFritsch/inito/pkg/logger"
)

const (
	exporterDialTimeout   = 10 * time.Second
	metricsRequestTimeout = 10 * time.Second
	defaultPrometheusPort = 9090
)

// Config holds the telemetry configuration
type Config struct {
	// Enabled turns on span and metric collection
	Enabled bool `yaml:"enabled"`
	// ServiceName is reported as service.name, defaults to "havoc"
	ServiceName string `yaml:"service_name"`
	// OTLP configures span export
	OTLP OTLPConfig `yaml:"otlp"`
	// Prometheus configures the metrics endpoint
	Prometheus PrometheusConfig `yaml:"prometheus"`
}

// OTLPConfig holds the OTLP gRPC span exporter settings
type OTLPConfig struct {
	Enabled bool `yaml:"enabled"`
	// Endpoint is the collector address, e.g. "localhost:4317"
	Endpoint string `yaml:"endpoint"`
	// Insecure disables TLS towards the collector
	Insecure bool `yaml:"insecure"`
}

// PrometheusConfig holds the metrics endpoint settings
type PrometheusConfig struct {
	Enabled bool `yaml:"enabled"`
	// Port serves GET /metrics, defaults to 9090
	Port int `yaml:"port"`
}

// Telemetry owns the installed providers and the metrics listener
type Telemetry struct {
	shutdowns []func(context.Context) error
}

// New installs the global tracer and meter providers described by cfg.
// A disabled config installs nothing and returns a Telemetry whose Shutdown
// is a no-op. A metrics port that cannot be bound is an error.
func New(cfg Config) (*Telemetry, error) {
	t := &Telemetry{}
	if !cfg.Enabled {
		logger.Info("Telemetry is disabled")
		return t, nil
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = consts.ServiceName
	}
	if cfg.Prometheus.Port == 0 {
		cfg.Prometheus.Port = defaultPrometheusPort
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(consts.Version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create telemetry resource: %w", err)
	}

	tp, err := newTracerProvider(res, cfg.OTLP)
	if err != nil {
		return nil, err
	}
	otel.SetTracerProvider(tp)
	t.shutdowns = append(t.shutdowns, tp.Shutdown)

	if err := t.startMetrics(res, cfg.Prometheus); err != nil {
		_ = t.Shutdown(context.Background())
		return nil, err
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("Telemetry initialized",
		zap.String("service_name", cfg.ServiceName),
		zap.Bool("otlp_enabled", cfg.OTLP.Enabled),
		zap.Bool("prometheus_enabled", cfg.Prometheus.Enabled))
	return t, nil
}

func newTracerProvider(res *resource.Resource, cfg OTLPConfig) (*sdktrace.TracerProvider, error) {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	}

	if cfg.Enabled && cfg.Endpoint != "" {
		ctx, cancel := context.WithTimeout(context.Background(), exporterDialTimeout)
		defer cancel()

		exporterOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			exporterOpts = append(exporterOpts, otlptracegrpc.WithInsecure())
		}
		exporter, err := otlptracegrpc.New(ctx, exporterOpts...)
		if err != nil {
			return nil, fmt.Errorf("create OTLP span exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
		logger.Info("Exporting spans over OTLP", zap.String("endpoint", cfg.Endpoint))
	}

	return sdktrace.NewTracerProvider(opts...), nil
}

// startMetrics installs the meter provider. With Prometheus enabled the
// exporter gets its own registry, served on the configured port.
func (t *Telemetry) startMetrics(res *resource.Resource, cfg PrometheusConfig) error {
	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}

	var srv *http.Server
	if cfg.Enabled {
		registry := prometheus.NewRegistry()
		exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
		if err != nil {
			return fmt.Errorf("create prometheus exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(exporter))

		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
		if err != nil {
			return fmt.Errorf("bind metrics port %d: %w", cfg.Port, err)
		}

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		srv = &http.Server{
			Handler:      mux,
			ReadTimeout:  metricsRequestTimeout,
			WriteTimeout: metricsRequestTimeout,
		}
		go func() {
			logger.Info("Serving metrics", zap.String("addr", ln.Addr().String()))
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server stopped", zap.Error(err))
			}
		}()
	}

	mp := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(mp)
	t.shutdowns = append(t.shutdowns, mp.Shutdown)
	if srv != nil {
		t.shutdowns = append(t.shutdowns, srv.Shutdown)
	}
	return nil
}

// Shutdown flushes pending spans and stops the metrics endpoint. Every
// component is stopped even when an earlier one fails.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if len(t.shutdowns) == 0 {
		return nil
	}
	logger.Info("Shutting down telemetry")

	var errs []error
	for _, stop := range t.shutdowns {
		if err := stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	t.shutdowns = nil
	return errors.Join(errs...)
}
