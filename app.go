package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/TFMV/estateflow/chaos"
	"github.com/TFMV/estateflow/domain"
	"github.com/TFMV/estateflow/gateway"
	"github.com/TFMV/estateflow/logger"
	"github.com/TFMV/estateflow/metrics"
	"github.com/TFMV/estateflow/pgstore"
	"github.com/TFMV/estateflow/redisindex"
	"github.com/TFMV/estateflow/router"
	"github.com/TFMV/estateflow/span"
	"github.com/TFMV/estateflow/storage"
	"github.com/TFMV/estateflow/workflow"
)

// app is the wired process: collaborators, registry, both runtimes and the router
type app struct {
	config       *AppConfig
	logger       *logger.Logger
	metrics      *metrics.Metrics
	registry     *workflow.Registry
	direct       *workflow.DirectExecutor
	orchestrator *workflow.Orchestrator
	router       *router.Router
	closers      []func() error
}

// newApp builds every component from config. reg receives the metrics.
func newApp(ctx context.Context, config *AppConfig, l *logger.Logger, reg prometheus.Registerer) (*app, error) {
	a := &app{config: config, logger: l, metrics: metrics.NewMetrics(reg)}

	deps, err := a.dependencies(ctx, reg)
	if err != nil {
		a.Close()
		return nil, err
	}

	var engine *chaos.Engine
	if config.Chaos.Enabled {
		engine = chaos.NewEngine(config.Chaos)
		l.Warn("Chaos testing enabled", "fault_probability", config.Chaos.FaultProbability)
	}

	a.registry = workflow.NewRegistry(engine, a.metrics)
	workflow.NewActivities(deps).Register(a.registry)
	workflow.RegisterWorkflows(a.registry)

	a.direct = workflow.NewDirectExecutor(a.registry, l, a.metrics).WithRetention(config.Router.RunRetention)
	a.closers = append(a.closers, func() error { a.direct.Close(); return nil })

	a.orchestrator, err = workflow.NewOrchestrator(config.Temporal, l)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, func() error { a.orchestrator.Close(); return nil })

	a.router, err = router.NewRouter(config.Router, a.orchestrator, a.direct, a.metrics, l)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, func() error { a.router.Close(); return nil })
	return a, nil
}

func (a *app) dependencies(ctx context.Context, reg prometheus.Registerer) (workflow.Dependencies, error) {
	deps := workflow.Dependencies{
		Fulfillment: workflow.NewLogFulfillment(a.logger),
		Scorer:      workflow.NewSimpleQualityScorer(),
		Reviewers:   a.config.Workflows.Reviewers,
		Metrics:     a.metrics,
	}

	switch a.config.Database.Driver {
	case "postgres":
		store, err := pgstore.Open(a.config.Database.Config)
		if err != nil {
			return deps, err
		}
		a.closers = append(a.closers, store.Close)
		if err := seedInventory(ctx, store.Inventory(), a.config.Workflows.Inventory); err != nil {
			return deps, err
		}
		deps.Drafts = store.Drafts()
		deps.Entities = store.Entities()
		deps.Orders = store.Orders()
		deps.Inventory = store.Inventory()
		deps.Approvals = store.Approvals()
		deps.Ledger = store.Ledger()
		a.logger.Info("Using Postgres stores")
	default:
		deps.Drafts = storage.NewMemoryDrafts()
		deps.Entities = storage.NewMemoryEntityStores()
		deps.Orders = storage.NewMemoryOrders()
		deps.Inventory = storage.NewMemoryInventory(a.config.Workflows.Inventory)
		deps.Approvals = storage.NewMemoryApprovals()
		deps.Ledger = storage.NewMemoryLedger()
		a.logger.Warn("Using in-memory stores; state is lost on exit")
	}

	if dir := a.config.Workflows.OutboxDir; dir != "" {
		n, err := workflow.NewOutboxNotifier(dir)
		if err != nil {
			return deps, err
		}
		deps.Notifier = n
	} else {
		deps.Notifier = workflow.NewLogNotifier(a.logger)
	}

	if a.config.Gateway.Enabled {
		deps.Gateway = gateway.NewClient(a.config.Gateway.Client, a.logger)
	}

	var indexes workflow.MultiIndex
	sx, err := span.NewIndex(ctx, a.config.Spanner, reg, a.logger)
	if err != nil {
		return deps, err
	}
	if sx != nil {
		a.closers = append(a.closers, sx.Close)
		indexes = append(indexes, sx)
	}
	rx, err := redisindex.New(ctx, a.config.Redis, a.logger)
	if err != nil {
		return deps, err
	}
	if rx != nil {
		a.closers = append(a.closers, rx.Close)
		indexes = append(indexes, rx)
	}
	switch len(indexes) {
	case 0:
		a.logger.Warn("No search index configured; approved listings are not indexed")
	case 1:
		deps.SearchIndex = indexes[0]
	default:
		deps.SearchIndex = indexes
	}
	return deps, nil
}

func seedInventory(ctx context.Context, inv *pgstore.Inventory, stock map[string]int) error {
	items := make([]domain.InventoryItem, 0, len(stock))
	for sku, n := range stock {
		items = append(items, domain.InventoryItem{SKU: sku, Available: n})
	}
	if err := inv.Stock(ctx, items...); err != nil {
		return fmt.Errorf("seed inventory: %w", err)
	}
	return nil
}

// startWorker registers the registry on a Temporal worker and starts polling
func (a *app) startWorker() error {
	if !a.orchestrator.Enabled() {
		return fmt.Errorf("temporal is not enabled; set temporal.enabled or TEMPORAL_ADDRESS")
	}
	if err := a.orchestrator.RegisterWorker(a.registry); err != nil {
		return err
	}
	return a.orchestrator.Start()
}

// Close releases components in reverse order of creation
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("Error during shutdown", "error", err)
		}
	}
	a.closers = nil
}
