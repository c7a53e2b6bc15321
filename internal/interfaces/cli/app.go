package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/erp/channelsync/internal/application/discovery"
	applink "github.com/erp/channelsync/internal/application/link"
	"github.com/erp/channelsync/internal/application/inheritance"
	"github.com/erp/channelsync/internal/application/integrity"
	"github.com/erp/channelsync/internal/application/linkmigration"
	apptaxonomy "github.com/erp/channelsync/internal/application/taxonomy"
	"github.com/erp/channelsync/internal/domain/channel"
	"github.com/erp/channelsync/internal/domain/taxonomy"
	"github.com/erp/channelsync/internal/infrastructure/cache"
	adapters "github.com/erp/channelsync/internal/infrastructure/channel"
	"github.com/erp/channelsync/internal/infrastructure/config"
	"github.com/erp/channelsync/internal/infrastructure/persistence"
	"github.com/erp/channelsync/internal/infrastructure/telemetry"
)

// App wires the repositories and services used by the commands
type App struct {
	Config *config.Config
	Logger *zap.Logger
	DB     *persistence.Database

	Accounts    *persistence.GormAccountRepository
	Catalog     *persistence.GormCatalogRepository
	Links       *persistence.GormLinkRepository
	Legacy      *persistence.GormLegacyMappingRepository
	Definitions *persistence.GormDefinitionRepository
	Assignments *persistence.GormAssignmentRepository
	Entries     *persistence.GormTaxonomyRepository
	TxManager   *persistence.GormTxManager

	Store        *apptaxonomy.Store
	Orchestrator *discovery.Orchestrator
	Registry     *applink.Registry
	Publisher    *applink.Publisher
	Engine       *inheritance.Engine
	InheritJob   *inheritance.SyncJob
	Validator    *integrity.Validator
	LinkMigrator *linkmigration.Migrator

	valueCache     taxonomy.ValueListCache
	meterProvider  *telemetry.MeterProvider
	tracerProvider *telemetry.TracerProvider
	loggerProvider *telemetry.LoggerProvider
}

// NewApp opens the database and builds every service. sqlite databases get
// their schema from the models; postgres schemas come from `db migrate up`.
func NewApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	app := &App{Config: cfg, Logger: log}

	metrics, err := app.initTelemetry(ctx)
	if err != nil {
		return nil, err
	}
	log = app.Logger

	db, err := persistence.NewDatabase(&cfg.Database, log)
	if err != nil {
		app.Close(ctx)
		return nil, err
	}
	app.DB = db
	if cfg.Telemetry.Enabled && cfg.Telemetry.TraceSQL {
		if err := telemetry.RegisterDBTracing(db.DB, telemetry.DBTracingConfig{DBSystem: dbSystem(cfg.Database.Driver)}, log); err != nil {
			app.Close(ctx)
			return nil, fmt.Errorf("failed to enable database tracing: %w", err)
		}
	}
	if cfg.Database.Driver == "sqlite" {
		if err := db.AutoMigrate(); err != nil {
			app.Close(ctx)
			return nil, fmt.Errorf("failed to migrate sqlite schema: %w", err)
		}
	}

	app.valueCache, err = cache.NewValueListCache(cfg.Redis, cache.WithLogger(log))
	if err != nil {
		app.Close(ctx)
		return nil, err
	}

	gdb := db.DB
	app.Accounts = persistence.NewGormAccountRepository(gdb)
	app.Catalog = persistence.NewGormCatalogRepository(gdb)
	app.Links = persistence.NewGormLinkRepository(gdb)
	app.Legacy = persistence.NewGormLegacyMappingRepository(gdb)
	app.Definitions = persistence.NewGormDefinitionRepository(gdb)
	app.Assignments = persistence.NewGormAssignmentRepository(gdb)
	app.Entries = persistence.NewGormTaxonomyRepository(gdb)
	app.TxManager = persistence.NewGormTxManager(gdb)

	app.Store = apptaxonomy.NewStore(app.Accounts, app.Entries, app.TxManager,
		apptaxonomy.WithValueListCache(app.valueCache, cfg.Redis.ValueListTTL),
		apptaxonomy.WithStaleAfter(cfg.Taxonomy.StaleAfter),
		apptaxonomy.WithMetrics(metrics),
		apptaxonomy.WithLogger(log),
	)

	taobao := adapters.NewTaobaoAdapter(0)
	files := adapters.NewFileDiscoveryAdapter(cfg.Discovery.SchemaDir)
	app.Orchestrator = discovery.NewOrchestrator(app.Accounts, app.Store, discovery.Config{
		FreshnessWindow: cfg.Discovery.FreshnessWindow,
		MaxConcurrency:  cfg.Discovery.MaxConcurrency,
	}, log)
	app.Orchestrator.SetMetrics(metrics)
	for _, t := range []channel.Type{channel.TypeShopify, channel.TypeEbay, channel.TypeAmazon, channel.TypeMirakl, channel.TypeDouyin} {
		app.Orchestrator.RegisterAdapter(t, files)
	}
	app.Orchestrator.RegisterAdapter(channel.TypeTaobao, taobao)

	app.Registry = applink.NewRegistry(app.Links, app.Catalog, app.Accounts, app.TxManager, log)
	app.Registry.SetMetrics(metrics)
	app.Publisher = applink.NewPublisher(app.Registry)
	app.Publisher.RegisterAdapter(channel.TypeTaobao, taobao)

	app.Engine = inheritance.NewEngine(app.Catalog, app.Definitions, app.Assignments, app.TxManager, log)
	app.Engine.SetTaxonomyValidator(app.Store)
	app.Engine.SetMetrics(metrics)
	app.InheritJob = inheritance.NewSyncJob(app.Engine)

	app.Validator = integrity.NewValidator(app.Catalog, app.Definitions, app.Assignments, app.Links, app.Engine, app.TxManager, log)
	app.Validator.SetMetrics(metrics)

	app.LinkMigrator = linkmigration.NewMigrator(app.Accounts, app.Legacy, app.Links, app.Catalog, app.TxManager, log)
	app.LinkMigrator.SetMetrics(metrics)

	return app, nil
}

func (a *App) initTelemetry(ctx context.Context) (*telemetry.SyncMetrics, error) {
	tc := a.Config.Telemetry
	if !tc.Enabled {
		return nil, nil
	}

	tp, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           true,
		CollectorEndpoint: tc.CollectorEndpoint,
		SamplingRatio:     tc.SamplingRatio,
		ServiceName:       tc.ServiceName,
		Insecure:          tc.Insecure,
	}, a.Logger)
	if err != nil {
		return nil, err
	}
	a.tracerProvider = tp

	mp, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           true,
		CollectorEndpoint: tc.CollectorEndpoint,
		ExportInterval:    tc.ExportInterval,
		ServiceName:       tc.ServiceName,
		Insecure:          tc.Insecure,
	}, a.Logger)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.meterProvider = mp

	metrics, err := telemetry.NewSyncMetrics(mp.Meter(tc.ServiceName))
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	lp, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           tc.ExportLogs,
		CollectorEndpoint: tc.CollectorEndpoint,
		ServiceName:       tc.ServiceName,
		Insecure:          tc.Insecure,
	}, a.Logger)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.loggerProvider = lp
	a.Logger = lp.Bridge(a.Logger, tc.ServiceName)
	return metrics, nil
}

func dbSystem(driver string) string {
	if driver == "postgres" {
		return "postgresql"
	}
	return driver
}

// Close releases the database, the cache and flushes telemetry
func (a *App) Close(ctx context.Context) {
	if a.valueCache != nil {
		if err := a.valueCache.Close(); err != nil {
			a.Logger.Warn("Failed to close value list cache", zap.Error(err))
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Warn("Failed to close database", zap.Error(err))
		}
	}
	if a.meterProvider != nil {
		_ = a.meterProvider.Shutdown(ctx)
	}
	if a.tracerProvider != nil {
		_ = a.tracerProvider.Shutdown(ctx)
	}
	if a.loggerProvider != nil {
		_ = a.loggerProvider.Shutdown(ctx)
	}
}

// ResolveAccounts maps account names or ids to ids. Every reference must
// exist.
func (a *App) ResolveAccounts(ctx context.Context, refs []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(refs))
	var missing []string
	for _, ref := range refs {
		ref = strings.TrimSpace(ref)
		if id, err := uuid.Parse(ref); err == nil {
			if _, err := a.Accounts.FindByID(ctx, id); err != nil {
				if errors.Is(err, channel.ErrAccountNotFound) {
					missing = append(missing, ref)
					continue
				}
				return nil, err
			}
			ids = append(ids, id)
			continue
		}
		acc, err := a.Accounts.FindByName(ctx, ref)
		if err != nil {
			if errors.Is(err, channel.ErrAccountNotFound) {
				missing = append(missing, ref)
				continue
			}
			return nil, err
		}
		ids = append(ids, acc.ID)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", channel.ErrAccountNotFound, strings.Join(missing, ", "))
	}
	return ids, nil
}

// ParseIDs parses a list of UUIDs, naming the flag in the error
func ParseIDs(flag string, values []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(values))
	for _, v := range values {
		id, err := uuid.Parse(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("invalid --%s %q: %w", flag, v, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
