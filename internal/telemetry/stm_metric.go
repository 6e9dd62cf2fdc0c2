package internaltelemetry

import (
	"go.opentelemetry.io/otel/metric"
)

// STMMetrics holds all the metric instruments for the STM runtime.
type STMMetrics struct {
	CommitsCounter      metric.Int64Counter
	ConflictsCounter    metric.Int64Counter
	RetriesCounter      metric.Int64Counter
	WakeupsCounter      metric.Int64Counter
	AbortsCounter       metric.Int64Counter
	AttemptsHistogram   metric.Int64Histogram
	ParkedUpDownCounter metric.Int64UpDownCounter
}

// NewSTMMetrics creates and registers all the metrics for the STM runtime.
func NewSTMMetrics(meter metric.Meter) (*STMMetrics, error) {
	commitsCounter, err := meter.Int64Counter(
		"gojostm.stm.commits_total",
		metric.WithDescription("Total number of transactions committed."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	conflictsCounter, err := meter.Int64Counter(
		"gojostm.stm.conflicts_total",
		metric.WithDescription("Total number of attempts discarded because a read was stale at commit."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	retriesCounter, err := meter.Int64Counter(
		"gojostm.stm.retries_total",
		metric.WithDescription("Total number of attempts that requested a retry and parked."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	wakeupsCounter, err := meter.Int64Counter(
		"gojostm.stm.wakeups_total",
		metric.WithDescription("Total number of parked transactions woken by a commit."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	abortsCounter, err := meter.Int64Counter(
		"gojostm.stm.aborts_total",
		metric.WithDescription("Total number of transactions that failed with an application error."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	attemptsHistogram, err := meter.Int64Histogram(
		"gojostm.stm.attempts",
		metric.WithDescription("Interpretation attempts needed per finished transaction."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	parkedUpDownCounter, err := meter.Int64UpDownCounter(
		"gojostm.stm.parked",
		metric.WithDescription("Number of transactions currently parked on a retry."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	return &STMMetrics{
		CommitsCounter:      commitsCounter,
		ConflictsCounter:    conflictsCounter,
		RetriesCounter:      retriesCounter,
		WakeupsCounter:      wakeupsCounter,
		AbortsCounter:       abortsCounter,
		AttemptsHistogram:   attemptsHistogram,
		ParkedUpDownCounter: parkedUpDownCounter,
	}, nil
}
