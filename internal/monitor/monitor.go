// Package monitor runs the periodic collateral checks: one goroutine per
// monitored position, each on its own interval. A check refreshes prices,
// re-projects the position, raises edge-triggered alerts, drives the loan
// state machine and fires automated top-ups. One failing position never
// stops the others.
package monitor

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"collateral-loan-service/internal/domain/collateral"
	"collateral-loan-service/internal/domain/loan"
	"collateral-loan-service/internal/entitylock"
	"collateral-loan-service/internal/event"
	"collateral-loan-service/internal/provider"
	"collateral-loan-service/pkg/id"
)

type Config struct {
	// DefaultInterval applies to positions whose Monitoring.IntervalSec is 0.
	DefaultInterval time.Duration
	// RescanInterval is how often the supervisor looks for new positions.
	RescanInterval time.Duration
	// VolatilitySpike is the annualized volatility above which an info alert
	// is raised.
	VolatilitySpike float64
	// ConcentrationLimit is the single-asset weight above which an info alert
	// is raised.
	ConcentrationLimit float64
}

func (c Config) withDefaults() Config {
	if c.DefaultInterval <= 0 {
		c.DefaultInterval = 60 * time.Second
	}
	if c.RescanInterval <= 0 {
		c.RescanInterval = 30 * time.Second
	}
	if c.VolatilitySpike <= 0 {
		c.VolatilitySpike = 1.0
	}
	if c.ConcentrationLimit <= 0 {
		c.ConcentrationLimit = 0.8
	}
	return c
}

type Monitor struct {
	loans     loan.Repository
	positions collateral.Repository
	registry  *provider.Registry
	oracle    provider.PriceOracle
	market    provider.MarketData
	bus       *event.Bus
	log       *zap.Logger
	clock     Clock
	retry     provider.RetryConfig
	cfg       Config
	locks     *entitylock.Registry

	mu     sync.Mutex
	tasks  map[string]*task
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// task carries the per-position state that makes info alerts edge-triggered.
type task struct {
	positionID   string
	spiking      bool
	concentrated bool
	cancel       context.CancelFunc
}

// New builds a monitor. locks must be the registry the loanbook usecase
// mutates loans under, so a check never races a user-facing write; nil gets
// a private registry.
func New(loans loan.Repository, positions collateral.Repository, registry *provider.Registry, oracle provider.PriceOracle, market provider.MarketData, bus *event.Bus, log *zap.Logger, clock Clock, retry provider.RetryConfig, cfg Config, locks *entitylock.Registry) *Monitor {
	if log == nil {
		log = zap.NewNop()
	}
	if clock == nil {
		clock = RealClock()
	}
	if locks == nil {
		locks = entitylock.New()
	}
	return &Monitor{
		loans: loans, positions: positions, registry: registry,
		oracle: oracle, market: market, bus: bus, log: log,
		clock: clock, retry: retry, cfg: cfg.withDefaults(),
		locks: locks,
		tasks: make(map[string]*task),
	}
}

// Start launches the supervisor. It returns immediately; Stop shuts the
// monitor down and waits for in-flight checks.
func (m *Monitor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancel = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.rescan(ctx)
		ticker := m.clock.NewTicker(m.cfg.RescanInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C():
				m.rescan(ctx)
			}
		}
	}()
}

func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
}

// rescan starts a watch loop for every monitored position that does not have
// one yet. Loops exit on their own when monitoring is disabled or the loan
// reaches a terminal state.
func (m *Monitor) rescan(ctx context.Context) {
	ps, err := m.positions.ListMonitored(ctx)
	if err != nil {
		m.log.Warn("monitor rescan failed", zap.Error(err))
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range ps {
		if _, running := m.tasks[p.PositionID]; running {
			continue
		}
		tctx, cancel := context.WithCancel(ctx)
		t := &task{positionID: p.PositionID, cancel: cancel}
		m.tasks[p.PositionID] = t
		m.wg.Add(1)
		go m.watch(tctx, t, m.interval(p))
	}
}

func (m *Monitor) interval(p *collateral.Position) time.Duration {
	if p.Monitoring.IntervalSec > 0 {
		return time.Duration(p.Monitoring.IntervalSec) * time.Second
	}
	return m.cfg.DefaultInterval
}

func (m *Monitor) watch(ctx context.Context, t *task, interval time.Duration) {
	defer m.wg.Done()
	defer func() {
		m.mu.Lock()
		delete(m.tasks, t.positionID)
		m.mu.Unlock()
	}()
	ticker := m.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			keep, err := m.check(ctx, t)
			if err != nil {
				m.log.Warn("position check failed",
					zap.String("position_id", t.positionID), zap.Error(err))
				continue
			}
			if !keep {
				return
			}
		}
	}
}

// check runs one monitoring pass over a position. The returned bool reports
// whether the watch loop should keep running.
func (m *Monitor) check(ctx context.Context, t *task) (bool, error) {
	p, err := m.positions.GetByPositionID(ctx, t.positionID)
	if err != nil {
		return false, err
	}

	// Hold the loan's lock for the whole pass and reload both entities
	// under it. A repayment or collateral change landing mid-check would
	// otherwise be clobbered by the whole-entity saves below.
	unlock := m.locks.Lock(p.LoanID)
	defer unlock()

	p, err = m.positions.GetByPositionID(ctx, t.positionID)
	if err != nil {
		return false, err
	}
	if !p.Monitoring.Enabled || p.Status == collateral.StatusLiquidated {
		return false, nil
	}
	l, err := m.loans.GetByLoanID(ctx, p.LoanID)
	if err != nil {
		return false, err
	}
	if l.Status.Terminal() {
		return false, nil
	}

	prices, err := m.fetchPrices(ctx, p.Symbols())
	if err != nil {
		// skip the cycle, keep watching
		return true, err
	}
	vols, verr := m.market.Volatility24h(ctx, p.Symbols())
	if verr != nil {
		m.log.Debug("volatility feed unavailable", zap.Error(verr))
	}

	prevStatus := p.Status
	for i := range p.Assets {
		if px, ok := prices[p.Assets[i].Symbol]; ok && px > 0 {
			p.Assets[i].PriceUSD = px
		}
		if v, ok := vols[p.Assets[i].Symbol]; ok && v > 0 {
			p.Assets[i].Volatility = v
		}
	}
	p.Recompute(l.Principal.Remaining)

	loanDirty := false
	if p.Status.Rank() > prevStatus.Rank() {
		m.raiseBucketAlert(l, p)
		loanDirty = true
	}
	if err := m.syncLoanStatus(ctx, l, p); err != nil {
		return true, err
	}

	if m.shouldTopUp(l, p) {
		if err := m.topUp(ctx, l, p); err != nil {
			m.log.Warn("auto top-up failed",
				zap.String("loan_id", l.LoanID), zap.Error(err))
		}
	}

	if dirty := m.raiseInfoAlerts(t, l, p); dirty {
		loanDirty = true
	}

	now := m.clock.Now()
	p.Monitoring.LastCheck = now
	p.Monitoring.NextCheck = now.Add(m.interval(p))
	// The loan lands first: bucket alerts are edge-triggered off the stored
	// position status, so persisting the advanced bucket without its alert
	// would silence the alert forever. This order re-raises on retry instead.
	if loanDirty {
		if err := m.loans.Save(ctx, l); err != nil {
			return true, err
		}
	}
	if err := m.positions.Save(ctx, p); err != nil {
		return true, err
	}
	return true, nil
}

func (m *Monitor) fetchPrices(ctx context.Context, symbols []string) (map[string]float64, error) {
	var prices map[string]float64
	err := provider.Do(ctx, m.retry, "oracle.GetPrices", func(ctx context.Context) error {
		var err error
		prices, err = m.oracle.GetPrices(ctx, symbols)
		return err
	})
	return prices, err
}

// raiseBucketAlert fires exactly one alert per transition into a worse LTV
// bucket. Re-checking an unchanged position raises nothing.
func (m *Monitor) raiseBucketAlert(l *loan.Loan, p *collateral.Position) {
	var (
		typ string
		sev loan.Severity
	)
	switch p.Status {
	case collateral.StatusWarning:
		typ, sev = "margin_warning", loan.SeverityWarning
	case collateral.StatusCritical:
		typ, sev = "margin_critical", loan.SeverityCritical
	case collateral.StatusLiquidating:
		typ, sev = "liquidation_imminent", loan.SeverityCritical
	default:
		return
	}
	a := loan.Alert{
		AlertID:   id.NewShortID(),
		Type:      typ,
		Severity:  sev,
		Message:   fmt.Sprintf("LTV %.4f crossed into %s (margin call %.2f, liquidation %.2f)", p.CurrentLTV, p.Status, p.Thresholds.MarginCall, p.Thresholds.Liquidation),
		CreatedAt: m.clock.Now(),
	}
	l.AppendAlert(a)
	m.publish(event.Event{Type: event.AlertTriggered, LoanID: l.LoanID, PositionID: p.PositionID, UserID: l.UserID, Payload: map[string]any{
		"alert_id": a.AlertID,
		"type":     typ,
		"severity": string(sev),
		"ltv":      p.CurrentLTV,
	}})
	m.log.Info("alert raised",
		zap.String("loan_id", l.LoanID),
		zap.String("type", typ),
		zap.Float64("ltv", p.CurrentLTV))
}

// syncLoanStatus drives the loan state machine from the position's bucket.
// All moves go through compare-and-swap; a lost race is left for the next
// cycle to reconcile.
func (m *Monitor) syncLoanStatus(ctx context.Context, l *loan.Loan, p *collateral.Position) error {
	switch {
	case p.Status == collateral.StatusLiquidating:
		if l.Status == loan.StatusActive {
			if _, err := m.loans.CompareAndSwapStatus(ctx, l.LoanID, loan.StatusActive, loan.StatusMarginCall); err != nil {
				return err
			}
			l.Status = loan.StatusMarginCall
			m.publish(event.Event{Type: event.MarginCallTriggered, LoanID: l.LoanID, PositionID: p.PositionID, UserID: l.UserID, Payload: map[string]any{"ltv": p.CurrentLTV}})
		}
		if l.Status == loan.StatusMarginCall {
			if _, err := m.loans.CompareAndSwapStatus(ctx, l.LoanID, loan.StatusMarginCall, loan.StatusLiquidationPending); err != nil {
				return err
			}
			l.Status = loan.StatusLiquidationPending
			m.publish(event.Event{Type: event.LiquidationTriggered, LoanID: l.LoanID, PositionID: p.PositionID, UserID: l.UserID, Payload: map[string]any{"ltv": p.CurrentLTV}})
			m.log.Warn("liquidation triggered",
				zap.String("loan_id", l.LoanID), zap.Float64("ltv", p.CurrentLTV))
		}
	case p.Status == collateral.StatusCritical && l.Status == loan.StatusActive:
		if _, err := m.loans.CompareAndSwapStatus(ctx, l.LoanID, loan.StatusActive, loan.StatusMarginCall); err != nil {
			return err
		}
		l.Status = loan.StatusMarginCall
		m.publish(event.Event{Type: event.MarginCallTriggered, LoanID: l.LoanID, PositionID: p.PositionID, UserID: l.UserID, Payload: map[string]any{"ltv": p.CurrentLTV}})
	case p.Status.Rank() < collateral.StatusCritical.Rank() && l.Status == loan.StatusMarginCall:
		if _, err := m.loans.CompareAndSwapStatus(ctx, l.LoanID, loan.StatusMarginCall, loan.StatusActive); err != nil {
			return err
		}
		l.Status = loan.StatusActive
		m.publish(event.Event{Type: event.MarginCallResolved, LoanID: l.LoanID, PositionID: p.PositionID, UserID: l.UserID, Payload: map[string]any{"ltv": p.CurrentLTV}})
	}
	return nil
}

func (m *Monitor) shouldTopUp(l *loan.Loan, p *collateral.Position) bool {
	cfg := p.Automation.TopUp
	return cfg.Enabled &&
		p.CurrentLTV >= cfg.TriggerLTV &&
		l.Status != loan.StatusLiquidationPending &&
		p.Status != collateral.StatusLiquidated
}

// topUp deposits enough of the configured asset to pull the LTV back to the
// safe zone, bounded by the per-event min and max.
func (m *Monitor) topUp(ctx context.Context, l *loan.Loan, p *collateral.Position) error {
	cfg := p.Automation.TopUp
	prices, err := m.fetchPrices(ctx, []string{cfg.Asset})
	if err != nil {
		return err
	}
	px, ok := prices[cfg.Asset]
	if !ok || px <= 0 {
		return fmt.Errorf("top-up asset %s has no price", cfg.Asset)
	}

	target := p.Thresholds.SafeZone
	if target <= 0 {
		target = cfg.TriggerLTV
	}
	neededUSD := l.Principal.Remaining/target - p.TotalValueUSD
	amount := neededUSD / px
	amount = math.Max(amount, cfg.MinAmount)
	if cfg.MaxAmount > 0 {
		amount = math.Min(amount, cfg.MaxAmount)
	}
	if amount <= 0 {
		return nil
	}

	adapter, err := m.registry.Get(l.ProviderID)
	if err != nil {
		return err
	}
	err = provider.Do(ctx, m.retry, "adapter.AddCollateral", func(ctx context.Context) error {
		return adapter.AddCollateral(ctx, l.ProviderLoanID, cfg.Asset, amount)
	})
	if err != nil {
		return err
	}

	added := false
	for i := range p.Assets {
		if p.Assets[i].Symbol == cfg.Asset {
			p.Assets[i].Amount += amount
			p.Assets[i].PriceUSD = px
			added = true
			break
		}
	}
	if !added {
		p.Assets = append(p.Assets, collateral.Asset{Symbol: cfg.Asset, Amount: amount, PriceUSD: px})
	}
	p.Recompute(l.Principal.Remaining)
	p.AppendHistory(m.clock.Now(), "auto_top_up", cfg.Asset, amount, fmt.Sprintf("ltv now %.4f", p.CurrentLTV))

	m.publish(event.Event{Type: event.CollateralToppedUp, LoanID: l.LoanID, PositionID: p.PositionID, UserID: l.UserID, Payload: map[string]any{
		"symbol": cfg.Asset,
		"amount": amount,
		"ltv":    p.CurrentLTV,
	}})
	m.log.Info("auto top-up executed",
		zap.String("loan_id", l.LoanID),
		zap.String("asset", cfg.Asset),
		zap.Float64("amount", amount),
		zap.Float64("ltv", p.CurrentLTV))
	return nil
}

// raiseInfoAlerts covers volatility spikes and single-asset concentration.
// Both are edge-triggered through the task state so a sustained condition
// alerts once, not every cycle.
func (m *Monitor) raiseInfoAlerts(t *task, l *loan.Loan, p *collateral.Position) bool {
	dirty := false
	now := m.clock.Now()

	spiking := p.AvgVolatility() >= m.cfg.VolatilitySpike
	if spiking && !t.spiking {
		l.AppendAlert(loan.Alert{
			AlertID:   id.NewShortID(),
			Type:      "volatility_spike",
			Severity:  loan.SeverityInfo,
			Message:   fmt.Sprintf("collateral volatility %.2f exceeds %.2f", p.AvgVolatility(), m.cfg.VolatilitySpike),
			CreatedAt: now,
		})
		dirty = true
	}
	t.spiking = spiking

	concentrated := false
	var heavy collateral.Asset
	for _, a := range p.Assets {
		if a.Weight > m.cfg.ConcentrationLimit {
			concentrated, heavy = true, a
		}
	}
	if concentrated && !t.concentrated {
		l.AppendAlert(loan.Alert{
			AlertID:   id.NewShortID(),
			Type:      "concentration",
			Severity:  loan.SeverityInfo,
			Message:   fmt.Sprintf("%s is %.0f%% of the collateral basket", heavy.Symbol, heavy.Weight*100),
			CreatedAt: now,
		})
		dirty = true
	}
	t.concentrated = concentrated
	return dirty
}

func (m *Monitor) publish(ev event.Event) {
	if m.bus != nil {
		m.bus.Publish(ev)
	}
}
