package dealtrail

import (
	"fmt"
	"log/slog"
	"os"

	"dealtrail/internal/config"
	"dealtrail/internal/domain"
	"dealtrail/internal/eventlog"
	"dealtrail/internal/metrics"
	"dealtrail/internal/output"
	"dealtrail/internal/output/amqp"
	"dealtrail/internal/output/console"
	"dealtrail/internal/output/hub"
	"dealtrail/internal/output/kafka"
	"dealtrail/internal/output/redis"
	"dealtrail/internal/store"
	"dealtrail/internal/store/storesql"
	"dealtrail/internal/worker/manager"

	gometrics "github.com/rcrowley/go-metrics"
)

// GetManager wires the change feed relay for the tables the schema
// generator set up.
func GetManager(cfg config.Summary, storage store.IChangelogStorage, out output.IOutput, m metrics.IMetrics) *manager.WorkerManager {
	return manager.NewWorkerManager(manager.Deps{
		Storage:     storage,
		Output:      out,
		Metrics:     m,
		SchemaCfg:   cfg.Schema,
		ProducerCfg: cfg.Producer,
		ConsumerCfg: cfg.Consumer,
	})
}

// GetOutput builds the relay output. Kafka producer metrics are reported into
// kafkaMetrics.
func GetOutput(cfg config.OutputConfig, eventHub *eventlog.Hub, kafkaMetrics gometrics.Registry) (output.IOutput, error) {
	outType, ok := domain.OutDriverNameToType[cfg.DriverName]
	if !ok {
		return nil, fmt.Errorf("%s: %w", cfg.DriverName, domain.ErrorUnknownDriverName)
	}
	switch outType {
	case domain.Kafka:
		producer, err := kafka.NewSyncProducer(cfg, kafkaMetrics)
		if err != nil {
			return nil, err
		}
		return kafka.NewOutput(producer, cfg), nil
	case domain.Redis:
		return redis.NewOutput(redis.NewClient(cfg), cfg), nil
	case domain.AMQP:
		return amqp.Dial(cfg)
	case domain.Hub:
		return hub.NewOutput(eventHub, storesql.EventsTable), nil
	default:
		slog.Info("relay: console output configured")
		return console.NewOutput(cfg, os.Stdout), nil
	}
}
