package app

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/saraya-erp/saraya-erp/internal/accounting"
	"github.com/saraya-erp/saraya-erp/internal/accounting/accounts"
	"github.com/saraya-erp/saraya-erp/internal/accounting/mappings"
	"github.com/saraya-erp/saraya-erp/internal/accounting/periods"
	"github.com/saraya-erp/saraya-erp/internal/accounting/reports"
	"github.com/saraya-erp/saraya-erp/internal/billing"
	"github.com/saraya-erp/saraya-erp/internal/cashier"
	"github.com/saraya-erp/saraya-erp/internal/claims"
	"github.com/saraya-erp/saraya-erp/internal/coverage"
	"github.com/saraya-erp/saraya-erp/internal/events"
	"github.com/saraya-erp/saraya-erp/internal/integration"
	"github.com/saraya-erp/saraya-erp/internal/observability"
	"github.com/saraya-erp/saraya-erp/internal/platform/cache"
	"github.com/saraya-erp/saraya-erp/internal/shared"
)

// Finance holds the wired services shared by the API server and the worker.
type Finance struct {
	Ledger   *accounting.Service
	Calendar *periods.Calendar
	Accounts *accounts.Service
	Mappings *mappings.Registry
	Reports  *reports.Service
	Billing  *billing.Service
	Claims   *claims.Service
	Cashier  *cashier.Service
	Coverage *coverage.Service
	Locker   *shared.Locker
	Audit    *shared.AuditLogger
}

// NewFinance wires every finance service on top of pool and redisClient.
func NewFinance(cfg *Config, pool *pgxpool.Pool, redisClient *redis.Client, metrics *observability.Metrics, logger *slog.Logger) (*Finance, error) {
	tolerance, err := cfg.Tolerance()
	if err != nil {
		return nil, err
	}
	audit := shared.NewAuditLogger(pool)

	ledger := accounting.NewService(accounting.NewRepository(pool), audit, logger)
	ledger.WithMetrics(metrics)

	reportService := reports.NewService(reports.NewStore(pool), cache.NewVersioned(redisClient, cfg.ReportCacheTTL), logger)
	ledger.Subscribe(reportService)

	settlements := claims.NewService(billing.NewUnitOfWork(pool), ledger, tolerance, audit, logger)
	settlements.WithMetrics(metrics)
	settlements.WithReports(reportService)

	return &Finance{
		Ledger:   ledger,
		Calendar: periods.NewCalendar(periods.NewTxRunner(pool), audit, logger),
		Accounts: accounts.NewService(accounts.NewRepository(pool), audit),
		Mappings: mappings.NewRegistry(mappings.NewStore(pool), audit),
		Reports:  reportService,
		Billing:  billing.NewService(billing.NewUnitOfWork(pool), ledger, tolerance, logger),
		Claims:   settlements,
		Cashier:  cashier.NewService(cashier.NewUnitOfWork(pool), ledger, tolerance, audit, logger),
		Coverage: coverage.NewService(coverage.NewStore(pool), logger),
		Locker:   shared.NewLocker(redisClient),
		Audit:    audit,
	}, nil
}

// Handlers returns the HTTP handlers mounted under APIPrefix.
func (f *Finance) Handlers(logger *slog.Logger) []RouteMounter {
	return []RouteMounter{
		accounting.NewHandler(logger, f.Ledger),
		accounts.NewHandler(logger, f.Accounts),
		mappings.NewHandler(logger, f.Mappings),
		periods.NewHandler(logger, f.Calendar),
		reports.NewHandler(logger, f.Reports),
		claims.NewHandler(logger, f.Claims),
		cashier.NewHandler(logger, f.Cashier),
		coverage.NewHandler(logger, f.Coverage),
	}
}

// EventBus builds the dispatcher that routes finance events into the services.
func (f *Finance) EventBus(cfg *Config, redisClient *redis.Client, metrics *observability.Metrics, logger *slog.Logger) *events.Bus {
	bus := events.NewBus(events.NewGuard(redisClient, cfg.EventGuardTTL), logger)
	bus.WithMetrics(metrics)
	integration.NewHooks(f.Ledger, f.Billing, f.Claims, f.Cashier, logger).Register(bus)
	return bus
}
