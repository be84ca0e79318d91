package metrics

import (
	"context"
	"time"

	prometheusmetrics "github.com/deathowl/go-metrics-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	gometrics "github.com/rcrowley/go-metrics"
)

// Bridge exports a go-metrics registry (sarama reports producer metrics
// there) as Prometheus gauges under the "dealtrail_kafka" prefix.
type Bridge struct {
	provider *prometheusmetrics.PrometheusConfig
	period   time.Duration
}

func NewBridge(src gometrics.Registry, reg prometheus.Registerer, period time.Duration) *Bridge {
	if period <= 0 {
		period = 5 * time.Second
	}
	return &Bridge{
		provider: prometheusmetrics.NewPrometheusProvider(src, namespace, "kafka", reg, period),
		period:   period,
	}
}

// Flush copies the current go-metrics values once.
func (b *Bridge) Flush() error {
	return b.provider.UpdatePrometheusMetricsOnce()
}

// Run flushes every period until ctx is done.
func (b *Bridge) Run(ctx context.Context) {
	ticker := time.NewTicker(b.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = b.Flush()
		}
	}
}
