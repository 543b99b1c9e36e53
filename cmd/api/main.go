package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	httpadp "collateral-loan-service/internal/adapter/http"
	"collateral-loan-service/internal/adapter/middleware"
	"collateral-loan-service/internal/adapter/repository/memory"
	"collateral-loan-service/internal/adapter/repository/mysql"
	"collateral-loan-service/internal/config"
	"collateral-loan-service/internal/domain/assessment"
	"collateral-loan-service/internal/domain/collateral"
	"collateral-loan-service/internal/domain/loan"
	"collateral-loan-service/internal/entitylock"
	"collateral-loan-service/internal/event"
	"collateral-loan-service/internal/infrastructure/cache"
	"collateral-loan-service/internal/infrastructure/db"
	"collateral-loan-service/internal/monitor"
	"collateral-loan-service/internal/provider"
	"collateral-loan-service/internal/provider/sim"
	"collateral-loan-service/internal/risk"
	"collateral-loan-service/internal/usecase/health"
	"collateral-loan-service/internal/usecase/loanbook"
	"collateral-loan-service/internal/usecase/underwriting"
)

func main() {
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal("config", zap.Error(err))
	}
	policy, err := risk.PolicyByName(cfg.RiskPolicy)
	if err != nil {
		log.Fatal("config", zap.Error(err))
	}

	// storage: mysql when configured, in-memory otherwise
	var (
		loans       loan.Repository
		positions   collateral.Repository
		assessments assessment.Repository
	)
	if cfg.MySQLHost != "" {
		gdb, err := db.OpenGorm(cfg.MySQLDSN(), log)
		if err != nil {
			log.Fatal("mysql", zap.Error(err))
		}
		if err := db.AutoMigrate(gdb); err != nil {
			log.Fatal("migrate", zap.Error(err))
		}
		loans = mysql.NewLoanRepository(gdb)
		positions = mysql.NewPositionRepository(gdb)
		assessments = mysql.NewAssessmentRepository(gdb)
	} else {
		log.Info("mysql not configured, using in-memory storage")
		loans = memory.NewLoanRepository()
		positions = memory.NewPositionRepository()
		assessments = memory.NewAssessmentRepository()
	}

	// external collaborators (in-process venues until real integrations land)
	registry := provider.NewRegistry()
	registry.Register(sim.NewLender("primelend", 0.08, 0.70))
	registry.Register(sim.NewLender("swiftlend", 0.11, 0.80))
	oracle := sim.NewOracle()
	bureau := sim.NewBureau()
	market := sim.NewMarket()

	retry := provider.RetryConfig{
		Attempts:    cfg.RetryAttempts,
		PerCallTime: time.Duration(cfg.RetryTimeoutMs) * time.Millisecond,
		BaseBackoff: time.Duration(cfg.RetryBackoffMs) * time.Millisecond,
	}

	bus := event.NewBus(log)
	bus.Subscribe(func(ev event.Event) {
		log.Info("event", zap.String("type", string(ev.Type)), zap.String("loan_id", ev.LoanID))
	})

	underwritingUC := underwriting.NewUsecase(assessments, bureau, oracle, market, bus, log, retry, underwriting.Config{
		Policy:          policy,
		StressLadder:    cfg.StressScenarios,
		CreditStaleness: time.Duration(cfg.CreditStalenessHours) * time.Hour,
		DecisionTTL:     time.Duration(cfg.AssessmentTTLHours) * time.Hour,
	})
	// one lock registry for API and monitor, so loan writes never interleave
	locks := entitylock.New()
	loanbookUC := loanbook.NewUsecase(loans, positions, assessments, registry, oracle, market, bus, log, retry, locks)
	healthUC := health.NewUsecase(loans, positions, registry, log, health.Config{
		RefinanceAdvantage: cfg.RefinanceAdvantage,
	})

	mon := monitor.New(loans, positions, registry, oracle, market, bus, log, monitor.RealClock(), retry, monitor.Config{
		DefaultInterval: time.Duration(cfg.MonitorIntervalSecs) * time.Second,
		VolatilitySpike: cfg.VolatilitySpike,
	}, locks)
	mon.Start(context.Background())

	e := echo.New()
	e.HideBanner = true
	e.Validator = httpadp.NewValidator()
	e.Use(echomw.Logger(), echomw.Recover())

	if cfg.RedisAddr != "" {
		rdb, err := cache.OpenRedis(cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			log.Fatal("redis", zap.Error(err))
		}
		e.Use(middleware.Idempotency(rdb, time.Duration(cfg.IdempTTLSecs)*time.Second, log))
	} else {
		log.Info("redis not configured, idempotency layer disabled")
	}

	h := httpadp.NewHandler(registry)
	ah := httpadp.NewAssessmentHandler(underwritingUC)
	lh := httpadp.NewLoanHandler(loanbookUC, healthUC)

	e.GET("/health", h.Health)

	e.POST("/assessments", ah.CreateAssessment)
	e.GET("/assessments/:assessment_id", ah.GetAssessment)

	e.POST("/loans", lh.CreateLoan)
	e.GET("/loans/:loan_id", lh.GetLoan)
	e.GET("/users/:user_id/loans", lh.ListUserLoans)
	e.GET("/loans/:loan_id/position", lh.GetPosition)
	e.GET("/loans/:loan_id/health", lh.CheckHealth)
	e.POST("/loans/:loan_id/repayments", lh.Repay)
	e.POST("/loans/:loan_id/collateral", lh.AddCollateral)
	e.POST("/loans/:loan_id/collateral/withdrawals", lh.WithdrawCollateral)
	e.POST("/loans/:loan_id/alerts/:alert_id/ack", lh.AcknowledgeAlert)
	e.POST("/loans/:loan_id/cancel", lh.CancelLoan)
	e.POST("/loans/:loan_id/default", lh.MarkDefaulted)

	go func() {
		if err := e.Start(":" + cfg.AppPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server", zap.Error(err))
		}
	}()
	log.Info("listening", zap.String("port", cfg.AppPort), zap.String("policy", cfg.RiskPolicy))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	mon.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Error("shutdown", zap.Error(err))
	}
	bus.Drain()
}
