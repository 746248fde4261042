package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	billingapp "github.com/dentalclinic/backend/internal/application/billing"
	"github.com/dentalclinic/backend/internal/infrastructure/cache"
	"github.com/dentalclinic/backend/internal/infrastructure/config"
	"github.com/dentalclinic/backend/internal/infrastructure/logger"
	"github.com/dentalclinic/backend/internal/infrastructure/persistence"
)

func main() {
	var (
		tenantFlag string
		timeoutStr string
	)

	flag.StringVar(&tenantFlag, "tenant", "", "Run jobs for a single tenant (UUID); default is all tenants")
	flag.StringVar(&timeoutStr, "timeout", "10m", "Overall timeout for the job run")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil {
		log.Fatal("Invalid timeout", zap.String("value", timeoutStr))
	}

	log.Info("Starting billing jobs",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
	)

	gormLogLevel := logger.MapGormLogLevel(cfg.Log.Level)
	gormLog := logger.NewGormLogger(log, gormLogLevel)

	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Failed to close database", zap.Error(err))
		}
	}()

	txManager := persistence.NewGormTransactionManager(db.DB)
	invoiceRepo := persistence.NewGormInvoiceRepository(db.DB)
	ledgerRepo := persistence.NewGormLedgerRepository(db.DB)
	planRepo := persistence.NewGormPaymentPlanRepository(db.DB)
	paymentRepo := persistence.NewGormPaymentRepository(db.DB)
	patientRepo := persistence.NewGormPatientRepository(db.DB)
	procedureRepo := persistence.NewGormProcedureRepository(db.DB)

	balanceCache, err := cache.NewBalanceCacheFactory(cfg.Redis, cfg.Cache.BalanceTTL,
		cache.WithLogger(log),
		cache.WithInMemoryFallback(true),
	).Create()
	if err != nil {
		log.Fatal("Failed to create balance cache", zap.Error(err))
	}

	invoiceService := billingapp.NewInvoiceService(
		invoiceRepo, patientRepo, procedureRepo, ledgerRepo, txManager, balanceCache, log,
	)
	planService := billingapp.NewPaymentPlanService(planRepo, invoiceRepo, paymentRepo, txManager, log)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	tenants, err := resolveTenants(ctx, tenantFlag, invoiceRepo)
	if err != nil {
		log.Fatal("Failed to resolve tenants", zap.Error(err))
	}
	if len(tenants) == 0 {
		log.Info("No tenants to process")
		return
	}

	now := time.Now()
	failed := false
	for _, tenantID := range tenants {
		marked, err := invoiceService.MarkOverdueInvoices(ctx, tenantID, now, cfg.Jobs.OverdueBatchSize)
		if err != nil {
			log.Error("Overdue invoice sweep failed",
				zap.String("tenant_id", tenantID.String()),
				zap.Error(err),
			)
			failed = true
		} else if marked > 0 {
			log.Info("Marked overdue invoices",
				zap.String("tenant_id", tenantID.String()),
				zap.Int("count", marked),
			)
		}

		touched, err := planService.RefreshOverduePlans(ctx, tenantID, now)
		if err != nil {
			log.Error("Payment plan refresh failed",
				zap.String("tenant_id", tenantID.String()),
				zap.Error(err),
			)
			failed = true
		} else if touched > 0 {
			log.Info("Refreshed overdue payment plans",
				zap.String("tenant_id", tenantID.String()),
				zap.Int("count", touched),
			)
		}
	}

	log.Info("Billing jobs finished", zap.Int("tenants", len(tenants)))
	if failed {
		os.Exit(1)
	}
}

func resolveTenants(ctx context.Context, tenantFlag string, invoiceRepo *persistence.GormInvoiceRepository) ([]uuid.UUID, error) {
	if tenantFlag != "" {
		tenantID, err := uuid.Parse(tenantFlag)
		if err != nil {
			return nil, fmt.Errorf("invalid tenant id %q: %w", tenantFlag, err)
		}
		return []uuid.UUID{tenantID}, nil
	}
	return invoiceRepo.DistinctTenantIDs(ctx)
}
