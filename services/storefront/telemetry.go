package main

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "storefront-service"

func initTracer(cfg *Config) (*sdktrace.TracerProvider, error) {
	ctx := context.Background()

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.OTel.Endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	otel.SetTracerProvider(tp)

	return tp, nil
}

func initMetrics(cfg *Config) (*sdkmetric.MeterProvider, error) {
	ctx := context.Background()

	exporter, err := otlpmetrichttp.New(ctx,
		otlpmetrichttp.WithEndpoint(cfg.OTel.Endpoint),
		otlpmetrichttp.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
		sdkmetric.WithResource(res),
	)

	otel.SetMeterProvider(mp)

	return mp, nil
}

func newResource(ctx context.Context, cfg *Config) (*resource.Resource, error) {
	return resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion("1.0.0"),
		),
	)
}

// StoreMetrics agrupa os contadores de negócio do serviço
type StoreMetrics struct {
	ordersCreated   metric.Int64Counter
	stockDecrements metric.Int64Counter
	stockOversell   metric.Int64Counter
	webhookEvents   metric.Int64Counter
	emailsSent      metric.Int64Counter
}

// NewStoreMetrics cria os contadores a partir de um meter
func NewStoreMetrics(meter metric.Meter) (*StoreMetrics, error) {
	var (
		m   StoreMetrics
		err error
	)

	if m.ordersCreated, err = meter.Int64Counter("storefront.orders.created",
		metric.WithDescription("Orders recorded from completed checkouts")); err != nil {
		return nil, err
	}
	if m.stockDecrements, err = meter.Int64Counter("storefront.stock.decrements",
		metric.WithDescription("Variation stock decrements applied")); err != nil {
		return nil, err
	}
	if m.stockOversell, err = meter.Int64Counter("storefront.stock.oversell",
		metric.WithDescription("Units sold beyond the available stock (clamped at zero)")); err != nil {
		return nil, err
	}
	if m.webhookEvents, err = meter.Int64Counter("storefront.webhook.events",
		metric.WithDescription("Payment webhook events by type and outcome")); err != nil {
		return nil, err
	}
	if m.emailsSent, err = meter.Int64Counter("storefront.emails.sent",
		metric.WithDescription("Transactional emails dispatched")); err != nil {
		return nil, err
	}

	return &m, nil
}

// newNoopMetrics é usado em testes e quando o meter não está disponível
func newNoopMetrics() *StoreMetrics {
	m, _ := NewStoreMetrics(noop.NewMeterProvider().Meter(instrumentationName))
	return m
}

func (m *StoreMetrics) webhookEvent(ctx context.Context, eventType, outcome string) {
	m.webhookEvents.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", eventType),
		attribute.String("outcome", outcome),
	))
}

// startSpan abre um span filho usando o tracer global
func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}
