package otel

import "go.opentelemetry.io/otel/metric"

// Metrics holds all chatdo metric instruments.
type Metrics struct {
	RequestDuration metric.Float64Histogram
	RouteDuration   metric.Float64Histogram
	IntentTotal     metric.Int64Counter
	ToolCallErrors  metric.Int64Counter
	TasksCreated    metric.Int64Counter
	TasksCompleted  metric.Int64Counter
}

// NewMetrics creates all metric instruments from the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.RequestDuration, err = meter.Float64Histogram("chatdo.request.duration",
		metric.WithDescription("Gateway request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.RouteDuration, err = meter.Float64Histogram("chatdo.route.duration",
		metric.WithDescription("Chat routing duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.IntentTotal, err = meter.Int64Counter("chatdo.intent.total",
		metric.WithDescription("Classified chat intents by kind"),
	)
	if err != nil {
		return nil, err
	}

	m.ToolCallErrors, err = meter.Int64Counter("chatdo.tool.errors",
		metric.WithDescription("Tool invocations that returned a failed result"),
	)
	if err != nil {
		return nil, err
	}

	m.TasksCreated, err = meter.Int64Counter("chatdo.tasks.created",
		metric.WithDescription("Tasks created across all channels"),
	)
	if err != nil {
		return nil, err
	}

	m.TasksCompleted, err = meter.Int64Counter("chatdo.tasks.completed",
		metric.WithDescription("Tasks marked completed across all channels"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}
