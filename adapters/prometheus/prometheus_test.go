package prometheus_test

import (
	"context"
	"errors"
	"testing"

	containerprom "github.com/goliatone/go-container/adapters/prometheus"
	"github.com/goliatone/go-container/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorder_CountersShareVectorAcrossLabelValues(t *testing.T) {
	registry := prometheus.NewRegistry()
	recorder := containerprom.NewRecorder(registry)
	ctx := context.Background()

	recorder.IncCounter(ctx, "container.invoke.total", 1, map[string]string{"outcome": "success", "method": "business.ping"})
	recorder.IncCounter(ctx, "container.invoke.total", 2, map[string]string{"method": "business.ping", "outcome": "success"})
	recorder.IncCounter(ctx, "container.invoke.total", 1, map[string]string{"method": "business.ping", "outcome": "bad_input"})

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) != 1 || families[0].GetName() != "container_invoke_total" {
		t.Fatalf("expected single container_invoke_total family, got %#v", families)
	}
	var success float64
	for _, metric := range families[0].GetMetric() {
		for _, label := range metric.GetLabel() {
			if label.GetName() == "outcome" && label.GetValue() == "success" {
				success = metric.GetCounter().GetValue()
			}
		}
	}
	if success != 3 {
		t.Fatalf("expected success count 3, got %v", success)
	}
}

func TestRecorder_NamespaceAndSanitizing(t *testing.T) {
	registry := prometheus.NewRegistry()
	recorder := containerprom.NewRecorder(registry, containerprom.WithNamespace("ejb"))

	recorder.ObserveHistogram(context.Background(), "pool.acquire-wait ms", 4, map[string]string{"component.id": "accounts"})

	count, err := testutil.GatherAndCount(registry, "ejb_pool_acquire_wait_ms")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one sanitized histogram series, got %d", count)
	}
}

func TestRecorder_ReportsConflictingLabelSets(t *testing.T) {
	registry := prometheus.NewRegistry()
	var reported error
	recorder := containerprom.NewRecorder(registry, containerprom.WithErrorHandler(func(err error) {
		reported = err
	}))
	ctx := context.Background()

	recorder.IncCounter(ctx, "container.invoke.total", 1, map[string]string{"outcome": "success"})
	recorder.IncCounter(ctx, "container.invoke.total", 1, map[string]string{"method": "business.ping"})

	if reported == nil {
		t.Fatalf("expected registration conflict to be reported")
	}
}

func TestRecorder_ReusesPreviouslyRegisteredVector(t *testing.T) {
	registry := prometheus.NewRegistry()
	first := containerprom.NewRecorder(registry)
	second := containerprom.NewRecorder(registry)
	ctx := context.Background()
	tags := map[string]string{"outcome": "success"}

	first.IncCounter(ctx, "container.invoke.total", 1, tags)
	second.IncCounter(ctx, "container.invoke.total", 1, tags)

	count, err := testutil.GatherAndCount(registry, "container_invoke_total")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected shared series, got %d", count)
	}
}

func TestContainerMetricsAndPoolCollector(t *testing.T) {
	registry := prometheus.NewRegistry()
	container, err := core.NewContainer(core.DefaultConfig(), core.WithMetricsRecorder(containerprom.NewRecorder(registry)))
	if err != nil {
		t.Fatalf("new container: %v", err)
	}
	defer container.Close()
	if err := registry.Register(containerprom.NewPoolCollector(container)); err != nil {
		t.Fatalf("register pool collector: %v", err)
	}

	if _, err := container.Deploy(context.Background(), core.DeploymentSpec{
		ID:      "echo",
		Factory: func(context.Context) (any, error) { return &struct{}{}, nil },
		Methods: []core.MethodSpec{
			{
				Name: "ping",
				Handle: core.Handler0(func(context.Context, *struct{}) (string, error) {
					return "pong", nil
				}),
			},
			{
				Name: "refuse",
				Handle: core.Handler0(func(context.Context, *struct{}) (string, error) {
					return "", errors.New("refused")
				}),
			},
		},
	}); err != nil {
		t.Fatalf("deploy: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := container.Invoke(context.Background(), core.InvokeRequest{
			ComponentID: "echo",
			Method:      core.BusinessMethod("ping"),
		}); err != nil {
			t.Fatalf("invoke: %v", err)
		}
	}
	_, _ = container.Invoke(context.Background(), core.InvokeRequest{
		ComponentID: "echo",
		Method:      core.BusinessMethod("refuse"),
	})

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	byName := map[string]float64{}
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			outcome := ""
			for _, label := range metric.GetLabel() {
				if label.GetName() == "outcome" {
					outcome = label.GetValue()
				}
			}
			switch {
			case metric.GetCounter() != nil:
				byName[family.GetName()+"/"+outcome] += metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				byName[family.GetName()] = metric.GetGauge().GetValue()
			case metric.GetHistogram() != nil:
				byName[family.GetName()+"/"+outcome] += float64(metric.GetHistogram().GetSampleCount())
			}
		}
	}

	if got := byName["container_invoke_total/success"]; got != 2 {
		t.Fatalf("expected 2 successful invocations, got %v", got)
	}
	if got := byName["container_invoke_total/application_fault"]; got != 1 {
		t.Fatalf("expected 1 application fault, got %v", got)
	}
	if got := byName["container_invoke_duration_ms/success"]; got != 2 {
		t.Fatalf("expected 2 duration samples, got %v", got)
	}
	if got := byName["container_pool_acquired_instances"]; got != 0 {
		t.Fatalf("expected no acquired instances after calls, got %v", got)
	}
	if got := byName["container_pool_created_total/"]; got < 1 {
		t.Fatalf("expected pool to report created instances, got %v", got)
	}
	if got := byName["container_pool_released_total/"]; got != 3 {
		t.Fatalf("expected 3 releases, got %v", got)
	}
}

func TestPoolCollector_EmptySource(t *testing.T) {
	if count := testutil.CollectAndCount(containerprom.NewPoolCollector(nil)); count != 0 {
		t.Fatalf("expected no metrics without a source, got %d", count)
	}
}
