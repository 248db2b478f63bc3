// Package observability exposes Prometheus metrics for workflow runs: role
// and skill invocations, replans, malformed replies and task outcomes. The
// meter is OpenTelemetry, exported through the Prometheus bridge so the
// /metrics endpoint speaks the usual exposition format.
package observability

import (
	"context"
	"fmt"
	"net/http"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/ameenalkhaldi/Automation-Framework/pkg/workflow"
)

// Metrics implements workflow.Metrics over an OTel meter. The zero value (and
// NoopMetrics) records nothing.
type Metrics struct {
	enabled  bool
	registry *prom.Registry

	roleCalls  metric.Int64Counter
	skillCalls metric.Int64Counter
	replans    metric.Int64Counter
	malformed  metric.Int64Counter
	outcomes   metric.Int64Counter
}

var _ workflow.Metrics = (*Metrics)(nil)

// NoopMetrics returns a disabled recorder.
func NoopMetrics() *Metrics {
	return &Metrics{}
}

// InitMetrics builds the meter and its Prometheus registry.
func InitMetrics() (*Metrics, error) {
	registry := prom.NewRegistry()

	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)
	meter := meterProvider.Meter("automation")

	m := &Metrics{enabled: true, registry: registry}

	if m.roleCalls, err = meter.Int64Counter(
		"automation_role_invocations_total",
		metric.WithDescription("Total role invocations by role"),
	); err != nil {
		return nil, fmt.Errorf("failed to create role invocations counter: %w", err)
	}

	if m.skillCalls, err = meter.Int64Counter(
		"automation_skill_invocations_total",
		metric.WithDescription("Total skill invocations by skill and status"),
	); err != nil {
		return nil, fmt.Errorf("failed to create skill invocations counter: %w", err)
	}

	if m.replans, err = meter.Int64Counter(
		"automation_replans_total",
		metric.WithDescription("Total plan revisions consumed"),
	); err != nil {
		return nil, fmt.Errorf("failed to create replans counter: %w", err)
	}

	if m.malformed, err = meter.Int64Counter(
		"automation_malformed_replies_total",
		metric.WithDescription("Total malformed model replies by role"),
	); err != nil {
		return nil, fmt.Errorf("failed to create malformed replies counter: %w", err)
	}

	if m.outcomes, err = meter.Int64Counter(
		"automation_task_outcomes_total",
		metric.WithDescription("Total finished tasks by status"),
	); err != nil {
		return nil, fmt.Errorf("failed to create task outcomes counter: %w", err)
	}

	return m, nil
}

// RoleInvocation counts one role exchange.
func (m *Metrics) RoleInvocation(role string) {
	if !m.enabled {
		return
	}
	m.roleCalls.Add(context.Background(), 1, metric.WithAttributes(attribute.String("role", role)))
}

// SkillInvocation counts one skill dispatch.
func (m *Metrics) SkillInvocation(skill string, ok bool) {
	if !m.enabled {
		return
	}
	status := "ok"
	if !ok {
		status = "error"
	}
	m.skillCalls.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("skill", skill),
		attribute.String("status", status),
	))
}

// Replan counts one consumed plan revision.
func (m *Metrics) Replan() {
	if !m.enabled {
		return
	}
	m.replans.Add(context.Background(), 1)
}

// MalformedReply counts one unusable model reply.
func (m *Metrics) MalformedReply(role string) {
	if !m.enabled {
		return
	}
	m.malformed.Add(context.Background(), 1, metric.WithAttributes(attribute.String("role", role)))
}

// TaskOutcome counts one finished task.
func (m *Metrics) TaskOutcome(status workflow.RunStatus) {
	if !m.enabled {
		return
	}
	m.outcomes.Add(context.Background(), 1, metric.WithAttributes(attribute.String("status", string(status))))
}

// Handler returns the /metrics exposition handler. Nil when disabled.
func (m *Metrics) Handler() http.Handler {
	if !m.enabled {
		return nil
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve starts a metrics listener on addr. The returned server is already
// listening in a goroutine; the caller owns its shutdown.
func (m *Metrics) Serve(addr string) *http.Server {
	if !m.enabled || addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		// http.ErrServerClosed after shutdown is the normal path.
		_ = server.ListenAndServe()
	}()
	return server
}
