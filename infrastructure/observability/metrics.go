package observability

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"

	"eodmarker/config"
)

// MetricsProvider manages OpenTelemetry metrics for the service
type MetricsProvider struct {
	config        *config.Config
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter
	initialized   bool
	enabled       bool
	mu            sync.RWMutex

	// Metric instruments
	lockAttemptsCounter          metric.Int64Counter
	jobRunsCounter               metric.Int64Counter
	jobRunDurationHist           metric.Float64Histogram
	marksCounter                 metric.Int64Counter
	natsMessagesPublishedCounter metric.Int64Counter
	statusRequestsCounter        metric.Int64Counter
}

// NewMetricsProvider creates a new metrics provider
func NewMetricsProvider(cfg *config.Config) *MetricsProvider {
	return &MetricsProvider{
		config: cfg,
	}
}

// Initialize sets up the OpenTelemetry metrics provider
func (mp *MetricsProvider) Initialize(ctx context.Context) error {
	return mp.initialize(ctx, nil)
}

// InitializeWithReader sets up the provider with a caller-supplied reader,
// bypassing the configured exporter
func (mp *MetricsProvider) InitializeWithReader(ctx context.Context, reader sdkmetric.Reader) error {
	return mp.initialize(ctx, reader)
}

func (mp *MetricsProvider) initialize(ctx context.Context, reader sdkmetric.Reader) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if mp.initialized {
		log.Info("Metrics provider already initialized")
		return nil
	}

	if !mp.config.OTelEnabled {
		log.Info("OpenTelemetry metrics disabled")
		mp.initialized = true
		return nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(mp.config.OTelServiceName),
			attribute.String("service.instance.id", mp.config.InstanceID),
			attribute.String("environment", mp.config.Environment),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	if reader == nil {
		var exporter sdkmetric.Exporter
		switch mp.config.OTelExporterType {
		case "console":
			exporter, err = stdoutmetric.New()
			if err != nil {
				return fmt.Errorf("failed to create console exporter: %w", err)
			}
			log.Info("Using console metric exporter")

		case "otlp":
			ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()

			exporter, err = otlpmetricgrpc.New(ctx,
				otlpmetricgrpc.WithEndpoint(mp.config.OTelOTLPEndpoint),
				otlpmetricgrpc.WithInsecure(),
			)
			if err != nil {
				return fmt.Errorf("failed to create OTLP exporter: %w", err)
			}
			log.WithField("endpoint", mp.config.OTelOTLPEndpoint).Info("Using OTLP metric exporter")

		case "none":
			log.Info("Metrics export disabled (exporter_type='none')")
			mp.initialized = true
			return nil

		default:
			return fmt.Errorf("unknown exporter type: %s", mp.config.OTelExporterType)
		}

		reader = sdkmetric.NewPeriodicReader(
			exporter,
			sdkmetric.WithInterval(time.Duration(mp.config.OTelExportIntervalMillis)*time.Millisecond),
		)
	}

	mp.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(mp.meterProvider)
	mp.meter = mp.meterProvider.Meter("eodmarker")

	if err := mp.createInstruments(); err != nil {
		return fmt.Errorf("failed to create instruments: %w", err)
	}

	mp.initialized = true
	mp.enabled = true
	log.Info("Metrics provider initialized successfully")
	return nil
}

// createInstruments creates all metric instruments
func (mp *MetricsProvider) createInstruments() error {
	var err error

	mp.lockAttemptsCounter, err = mp.meter.Int64Counter(
		LockAttemptsTotal,
		metric.WithDescription("Lock acquisition attempts by result"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create lock attempts counter: %w", err)
	}

	mp.jobRunsCounter, err = mp.meter.Int64Counter(
		JobRunsTotal,
		metric.WithDescription("Executed job runs by outcome"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create job runs counter: %w", err)
	}

	mp.jobRunDurationHist, err = mp.meter.Float64Histogram(
		JobRunDuration,
		metric.WithDescription("Duration of executed job runs in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0),
	)
	if err != nil {
		return fmt.Errorf("failed to create job run duration histogram: %w", err)
	}

	mp.marksCounter, err = mp.meter.Int64Counter(
		MarksTotal,
		metric.WithDescription("EOD mark attempts by outcome"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create marks counter: %w", err)
	}

	mp.natsMessagesPublishedCounter, err = mp.meter.Int64Counter(
		NATSMessagesPublishedTotal,
		metric.WithDescription("Total number of NATS messages published"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create NATS messages published counter: %w", err)
	}

	mp.statusRequestsCounter, err = mp.meter.Int64Counter(
		StatusRequestsTotal,
		metric.WithDescription("Status endpoint requests by response code"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create status requests counter: %w", err)
	}

	return nil
}

// Shutdown flushes and shuts down the metrics provider
func (mp *MetricsProvider) Shutdown(ctx context.Context) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.enabled = false
	if mp.meterProvider != nil {
		return mp.meterProvider.Shutdown(ctx)
	}
	return nil
}

// RecordLockAttempt records a lock acquisition attempt
func (mp *MetricsProvider) RecordLockAttempt(lockName, result string) {
	if !mp.isEnabled() {
		return
	}

	mp.lockAttemptsCounter.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String(LabelLock, lockName),
			attribute.String(LabelResult, result),
		),
	)
}

// RecordJobRun records an executed job run
func (mp *MetricsProvider) RecordJobRun(lockName, outcome string, duration time.Duration) {
	if !mp.isEnabled() {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(LabelLock, lockName),
		attribute.String(LabelOutcome, outcome),
	)
	mp.jobRunsCounter.Add(context.Background(), 1, attrs)
	mp.jobRunDurationHist.Record(context.Background(), duration.Seconds(), attrs)
}

// RecordMark records the outcome of an EOD mark attempt
func (mp *MetricsProvider) RecordMark(outcome string) {
	if !mp.isEnabled() {
		return
	}

	mp.marksCounter.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String(LabelOutcome, outcome),
		),
	)
}

// RecordNATSMessagePublished records a NATS message being published
func (mp *MetricsProvider) RecordNATSMessagePublished(eventType string) {
	if !mp.isEnabled() {
		return
	}

	mp.natsMessagesPublishedCounter.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String(LabelEventType, eventType),
		),
	)
}

// RecordStatusRequest records a status endpoint response
func (mp *MetricsProvider) RecordStatusRequest(code int) {
	if !mp.isEnabled() {
		return
	}

	mp.statusRequestsCounter.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String(LabelCode, strconv.Itoa(code)),
		),
	)
}

// isEnabled checks if instruments exist and the provider is live
func (mp *MetricsProvider) isEnabled() bool {
	if mp == nil {
		return false
	}
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	return mp.enabled
}
