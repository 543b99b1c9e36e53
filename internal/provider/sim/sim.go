// Package sim holds in-process implementations of the provider contracts.
// They back local runs and deployments where the real integrations are not
// configured yet. Prices random-walk around fixed anchors so monitoring has
// something to react to.
package sim

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"collateral-loan-service/internal/provider"
)

// Oracle serves USD prices with a small random walk per call.
type Oracle struct {
	mu     sync.Mutex
	prices map[string]float64
	rng    *rand.Rand
}

func NewOracle() *Oracle {
	return &Oracle{
		prices: map[string]float64{
			"BTC":  64_000,
			"ETH":  3_100,
			"SOL":  145,
			"BNB":  580,
			"USDT": 1,
			"USDC": 1,
		},
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (o *Oracle) GetPrices(ctx context.Context, symbols []string) (map[string]float64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string]float64, len(symbols))
	for _, s := range symbols {
		p, ok := o.prices[strings.ToUpper(s)]
		if !ok {
			continue
		}
		if p > 1.5 { // stables stay pinned
			p *= 1 + (o.rng.Float64()-0.5)*0.01
			o.prices[strings.ToUpper(s)] = p
		}
		out[strings.ToUpper(s)] = p
	}
	return out, nil
}

// Bureau derives a stable score from the user id so repeated calls agree.
type Bureau struct{}

func NewBureau() *Bureau { return &Bureau{} }

func (b *Bureau) GetScore(ctx context.Context, userID string) (*provider.CreditScore, error) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	score := 300 + int(h.Sum32()%551) // 300..850
	grade := "D"
	switch {
	case score >= 750:
		grade = "A"
	case score >= 650:
		grade = "B"
	case score >= 500:
		grade = "C"
	}
	return &provider.CreditScore{Score: score, Grade: grade, RetrievedAt: time.Now().UTC()}, nil
}

// Market serves fixed annualized volatility estimates.
type Market struct {
	vols map[string]float64
	risk float64
}

func NewMarket() *Market {
	return &Market{
		vols: map[string]float64{
			"BTC": 0.55, "ETH": 0.70, "SOL": 0.95, "BNB": 0.65,
			"USDT": 0.01, "USDC": 0.01,
		},
		risk: 0.35,
	}
}

func (m *Market) Volatility24h(ctx context.Context, symbols []string) (map[string]float64, error) {
	out := make(map[string]float64, len(symbols))
	for _, s := range symbols {
		if v, ok := m.vols[strings.ToUpper(s)]; ok {
			out[strings.ToUpper(s)] = v
		}
	}
	return out, nil
}

func (m *Market) MarketRiskIndex(ctx context.Context) (float64, error) { return m.risk, nil }

// Lender is an in-process lending venue.
type Lender struct {
	id     string
	apr    float64
	maxLTV float64
	seq    atomic.Int64
}

func NewLender(id string, apr, maxLTV float64) *Lender {
	return &Lender{id: id, apr: apr, maxLTV: maxLTV}
}

func (l *Lender) ID() string                           { return l.id }
func (l *Lender) Connect(ctx context.Context) error    { return nil }
func (l *Lender) HealthCheck(ctx context.Context) bool { return true }

func (l *Lender) GetQuote(ctx context.Context, collateralAsset string, amount float64, borrowAsset string, ltv float64) (*provider.Quote, error) {
	if ltv > l.maxLTV {
		return nil, provider.NewTerminal("get_quote", fmt.Errorf("%s: ltv %.2f above venue max %.2f", l.id, ltv, l.maxLTV))
	}
	return &provider.Quote{
		ProviderID:      l.id,
		CollateralAsset: collateralAsset,
		BorrowAsset:     borrowAsset,
		Amount:          amount,
		InterestAPR:     l.apr,
		MaxLTV:          l.maxLTV,
		ExpiresAt:       time.Now().UTC().Add(5 * time.Minute),
	}, nil
}

func (l *Lender) CreateLoan(ctx context.Context, req provider.LoanRequest) (*provider.CreatedLoan, error) {
	if req.Amount <= 0 {
		return nil, provider.NewTerminal("create_loan", fmt.Errorf("%s: non-positive amount", l.id))
	}
	n := l.seq.Add(1)
	return &provider.CreatedLoan{
		ProviderLoanID: fmt.Sprintf("%s-%06d", l.id, n),
		InterestAPR:    l.apr,
	}, nil
}

func (l *Lender) Repay(ctx context.Context, providerLoanID string, amount float64) error {
	return l.checkLoanID("repay", providerLoanID)
}

func (l *Lender) AddCollateral(ctx context.Context, providerLoanID, asset string, amount float64) error {
	return l.checkLoanID("add_collateral", providerLoanID)
}

func (l *Lender) WithdrawCollateral(ctx context.Context, providerLoanID, asset string, amount float64) error {
	return l.checkLoanID("withdraw_collateral", providerLoanID)
}

func (l *Lender) checkLoanID(op, providerLoanID string) error {
	if !strings.HasPrefix(providerLoanID, l.id+"-") {
		return provider.NewTerminal(op, fmt.Errorf("%s: unknown loan %q", l.id, providerLoanID))
	}
	return nil
}
