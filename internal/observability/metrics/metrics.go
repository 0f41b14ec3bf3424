package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes identity instruments. A nil *Metrics records nothing.
type Metrics struct {
	resolutions     metric.Int64Counter
	logins          metric.Int64Counter
	logouts         metric.Int64Counter
	rejectedWrites  metric.Int64Counter
	sessionsExpired metric.Int64Counter
	userTransitions metric.Int64Counter
	hookFailures    metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return provider.Shutdown(ctx)
			},
		})
	}
	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}
	return provider, nil
}

// New configures the identity instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "identity"
	}
	meter := provider.Meter(name)

	var (
		m   Metrics
		err error
	)
	counters := []struct {
		target *metric.Int64Counter
		name   string
		desc   string
	}{
		{&m.resolutions, "identity_resolutions_total", "Caller resolutions by winning strategy."},
		{&m.logins, "identity_logins_total", "Logins by persistence."},
		{&m.logouts, "identity_logouts_total", "Logouts by scope."},
		{&m.rejectedWrites, "identity_session_writes_rejected_total", "Session writes refused by the store."},
		{&m.sessionsExpired, "identity_sessions_expired_total", "Session rows removed by garbage collection."},
		{&m.userTransitions, "identity_user_transitions_total", "User lifecycle transitions."},
		{&m.hookFailures, "identity_hook_failures_total", "Lifecycle hook invocations that returned an error."},
	}
	for _, c := range counters {
		*c.target, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", c.name, err)
		}
	}
	return &m, nil
}

// NewNop returns instruments backed by a no-op provider.
func NewNop() *Metrics {
	m, _ := New(Config{}, noop.NewMeterProvider())
	return m
}

func (m *Metrics) RecordResolution(ctx context.Context, strategy string) {
	if m == nil {
		return
	}
	m.resolutions.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("strategy", strings.TrimSpace(strategy)),
	)...))
}

func (m *Metrics) RecordLogin(ctx context.Context, persistent bool) {
	if m == nil {
		return
	}
	m.logins.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.Bool("persistent", persistent),
	)...))
}

func (m *Metrics) RecordLogout(ctx context.Context, everywhere bool) {
	if m == nil {
		return
	}
	m.logouts.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.Bool("everywhere", everywhere),
	)...))
}

func (m *Metrics) RecordRejectedWrite(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.rejectedWrites.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("reason", strings.TrimSpace(reason)),
	)...))
}

func (m *Metrics) RecordSessionsExpired(ctx context.Context, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.sessionsExpired.Add(ctx, n)
}

func (m *Metrics) RecordUserTransition(ctx context.Context, from, to string) {
	if m == nil {
		return
	}
	m.userTransitions.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	)...))
}

func (m *Metrics) RecordHookFailure(ctx context.Context, event string) {
	if m == nil {
		return
	}
	m.hookFailures.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("event", strings.TrimSpace(event)),
	)...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"strategy":   {},
	"persistent": {},
	"everywhere": {},
	"reason":     {},
	"from":       {},
	"to":         {},
	"event":      {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
