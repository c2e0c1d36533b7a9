// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package otel

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds OpenTelemetry metric instruments for the MQTT agent.
type Metrics struct {
	meter metric.Meter

	operationsTotal    metric.Int64Counter
	eventsTotal        metric.Int64Counter
	connectionsCurrent metric.Int64UpDownCounter
	operationDuration  metric.Float64Histogram
}

// NewMetrics creates a new Metrics instance with all instruments initialized.
func NewMetrics() (*Metrics, error) {
	m := &Metrics{
		meter: otel.Meter("mqtt-agent"),
	}

	var err error

	m.operationsTotal, err = m.meter.Int64Counter(
		"agent.operations.total",
		metric.WithDescription("Total MQTT operations by kind and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create operationsTotal counter: %w", err)
	}

	m.eventsTotal, err = m.meter.Int64Counter(
		"agent.events.total",
		metric.WithDescription("Total notifier events by kind and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create eventsTotal counter: %w", err)
	}

	m.connectionsCurrent, err = m.meter.Int64UpDownCounter(
		"agent.connections.current",
		metric.WithDescription("Current number of registered MQTT connections"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create connectionsCurrent gauge: %w", err)
	}

	m.operationDuration, err = m.meter.Float64Histogram(
		"agent.operation.duration.ms",
		metric.WithDescription("MQTT operation duration in milliseconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create operationDuration histogram: %w", err)
	}

	return m, nil
}

// RecordOperation records one control-plane operation.
func (m *Metrics) RecordOperation(ctx context.Context, op string, success bool, d time.Duration) {
	outcome := "ok"
	if !success {
		outcome = "error"
	}
	m.operationsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("outcome", outcome),
	))
	m.operationDuration.Record(ctx, float64(d.Milliseconds()), metric.WithAttributes(
		attribute.String("operation", op),
	))
}

// RecordEvent records one notifier event delivery attempt.
func (m *Metrics) RecordEvent(ctx context.Context, kind string, delivered bool) {
	outcome := "delivered"
	if !delivered {
		outcome = "dropped"
	}
	m.eventsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("outcome", outcome),
	))
}

// AddConnections adjusts the registered connections gauge.
func (m *Metrics) AddConnections(ctx context.Context, delta int64) {
	m.connectionsCurrent.Add(ctx, delta)
}
