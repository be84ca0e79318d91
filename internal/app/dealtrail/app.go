// Package dealtrail assembles the CRM core from configuration: storage,
// event log, validator, automation, projections and the change feed relay.
package dealtrail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"dealtrail/internal/automation"
	"dealtrail/internal/config"
	"dealtrail/internal/derive"
	"dealtrail/internal/eventlog"
	"dealtrail/internal/metrics"
	"dealtrail/internal/output"
	"dealtrail/internal/projection/timeline"
	"dealtrail/internal/registry"
	"dealtrail/internal/schema"
	"dealtrail/internal/store"
	"dealtrail/internal/store/memstore"
	"dealtrail/internal/store/storesql"
	"dealtrail/internal/tracing"
	"dealtrail/internal/validator"
	"dealtrail/internal/worker/manager"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	gometrics "github.com/rcrowley/go-metrics"
)

type App struct {
	Config   config.Summary
	Registry *registry.Registry
	Service  *Service
	Manager  *manager.WorkerManager
	Metrics  *prometheus.Registry

	db        *sqlx.DB
	generator schema.ISchemaGenerator
	output    output.IOutput
	bridge    *metrics.Bridge
	tracer    *tracing.Provider
	logger    *slog.Logger
}

// New builds the application. Nothing runs until Run.
func New(ctx context.Context, cfg config.Summary) (*App, error) {
	a := &App{
		Config:  cfg,
		Metrics: prometheus.NewRegistry(),
		logger:  slog.Default().With("component", "app"),
	}
	a.Metrics.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err := a.init(ctx); err != nil {
		if cErr := a.Close(context.Background()); cErr != nil {
			a.logger.Warn("app: cleanup after failed start", "error", cErr)
		}
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	var err error
	a.tracer, err = tracing.Setup(ctx, a.Config.Tracing)
	if err != nil {
		return fmt.Errorf("tracing.Setup: %w", err)
	}

	a.Registry, err = loadRegistry(a.Config.Registry)
	if err != nil {
		return err
	}
	sink := metrics.NewPrometheusSink(a.Metrics)

	storage, err := a.bootstrapStorage(ctx)
	if err != nil {
		return err
	}

	hub := eventlog.NewHub()
	log := eventlog.New(eventlog.Deps{Storage: storage, Hub: hub, Metrics: sink})
	v := validator.New(a.Registry)
	a.Service = NewService(ServiceDeps{
		Log:       log,
		Validator: v,
		Engine:    automation.NewEngine(),
		Executor: automation.NewExecutor(automation.Deps{
			Tasks:     storage,
			Log:       log,
			Validator: v,
			Metrics:   sink,
		}),
		Tasks:    storage,
		Timeline: timeline.NewProjector(timeline.DefaultTemplates()),
		Catalog:  derive.DefaultCatalog(a.Registry),
		Metrics:  sink,
		Automate: a.Config.Automation.Enabled,
	})

	if a.generator == nil || !a.Config.Drivers.Db.ChangeFeed {
		return nil
	}
	kafkaMetrics := gometrics.NewRegistry()
	a.output, err = GetOutput(a.Config.Drivers.Output, hub, kafkaMetrics)
	if err != nil {
		return fmt.Errorf("GetOutput: %w", err)
	}
	a.bridge = metrics.NewBridge(kafkaMetrics, a.Metrics, 0)
	a.Manager = GetManager(a.Config, storage, a.output, sink)
	return nil
}

func loadRegistry(cfg config.RegistryConfig) (*registry.Registry, error) {
	var (
		reg *registry.Registry
		err error
	)
	if cfg.CatalogPath != "" {
		reg, err = registry.LoadFile(cfg.CatalogPath)
	} else {
		reg, err = registry.Default()
	}
	if err != nil {
		return nil, fmt.Errorf("load registry: %w", err)
	}
	if cfg.MinVersion != "" {
		if err := reg.RequireVersion(cfg.MinVersion); err != nil {
			return nil, fmt.Errorf("registry version: %w", err)
		}
	}
	return reg, nil
}

func (a *App) bootstrapStorage(ctx context.Context) (store.IStorage, error) {
	dbCfg := a.Config.Drivers.Db
	db, ph, err := BootstrapDatabase(ctx, dbCfg)
	if err != nil {
		return nil, fmt.Errorf("BootstrapDatabase: %w", err)
	}
	if db == nil {
		a.logger.Info("app: using in-memory storage, change feed disabled")
		a.Config.Drivers.Db.ChangeFeed = false
		return memstore.New(), nil
	}
	a.db = db

	a.generator, err = GetSchemaGeneratorByDriverName(db, dbCfg.DriverName, dbCfg)
	if err != nil {
		return nil, err
	}
	if err := a.generator.Start(ctx); err != nil {
		return nil, fmt.Errorf("generator.Start: %w", err)
	}
	a.Config.Schema = a.generator.GetConfig()

	opts := []storesql.Option{storesql.WithPlaceholder(ph)}
	if a.Config.Schema.DlqTableName != "" {
		opts = append(opts, storesql.WithDlqTable(a.Config.Schema.DlqTableName))
	}
	return storesql.NewStorage(db, opts...), nil
}

// Run starts the change feed relay, if configured, and blocks until ctx is
// done or a relay worker fails.
func (a *App) Run(ctx context.Context) error {
	if a.Manager == nil {
		<-ctx.Done()
		return nil
	}
	go a.bridge.Run(ctx)
	errCh := a.Manager.Start(ctx)
	select {
	case <-ctx.Done():
		a.Manager.Stop()
		return nil
	case err := <-errCh:
		a.Manager.Stop()
		return fmt.Errorf("change feed: %w", err)
	}
}

// Close releases outputs, the database and the tracer. The domain tables
// stay; only the change feed objects are dropped.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.output != nil {
		if err := a.output.Close(); err != nil {
			errs = append(errs, fmt.Errorf("output.Close: %w", err))
		}
	}
	if a.generator != nil && a.Config.Drivers.Db.ChangeFeed {
		if err := a.generator.Drop(); err != nil {
			errs = append(errs, fmt.Errorf("drop change feed: %w", err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("db.Close: %w", err))
		}
	}
	if err := a.tracer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("tracer.Shutdown: %w", err))
	}
	return errors.Join(errs...)
}
