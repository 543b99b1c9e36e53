package collateral

import (
	"reflect"
	"testing"
)

var testThresholds = Thresholds{SafeZone: 0.7, MarginCall: 0.8, Liquidation: 0.85}

func TestStatusForLTV_StepFunction(t *testing.T) {
	cases := []struct {
		ltv  float64
		want Status
	}{
		{0, StatusHealthy},
		{0.5, StatusHealthy},
		{0.6999, StatusHealthy},
		{0.7, StatusWarning},
		{0.7999, StatusWarning},
		{0.8, StatusCritical},
		{0.82, StatusCritical},
		{0.8499, StatusCritical},
		{0.85, StatusLiquidating},
		{1.2, StatusLiquidating},
	}
	for _, c := range cases {
		if got := StatusForLTV(c.ltv, testThresholds); got != c.want {
			t.Errorf("StatusForLTV(%v) = %s, want %s", c.ltv, got, c.want)
		}
	}
}

func TestStatusForLTV_MonotonicSeverity(t *testing.T) {
	prev := -1
	for ltv := 0.0; ltv <= 1.5; ltv += 0.01 {
		r := StatusForLTV(ltv, testThresholds).Rank()
		if r < prev {
			t.Fatalf("severity decreased at ltv=%v", ltv)
		}
		prev = r
	}
}

func testPosition() *Position {
	return &Position{
		PositionID: "p1",
		LoanID:     "l1",
		Assets: []Asset{
			{Symbol: "BTC", Amount: 0.5, PriceUSD: 40000, Volatility: 0.6},
			{Symbol: "ETH", Amount: 5, PriceUSD: 2000, Volatility: 0.8},
		},
		Thresholds: testThresholds,
	}
}

func TestRecompute(t *testing.T) {
	p := testPosition()
	p.Recompute(15000)

	if p.TotalValueUSD != 30000 {
		t.Fatalf("total = %v, want 30000", p.TotalValueUSD)
	}
	if p.CurrentLTV != 0.5 {
		t.Fatalf("ltv = %v, want 0.5", p.CurrentLTV)
	}
	if p.Status != StatusHealthy {
		t.Fatalf("status = %s, want healthy", p.Status)
	}
	// Σ weights ≈ 1
	var sum float64
	for _, a := range p.Assets {
		sum += a.Weight
	}
	if sum < 0.999999 || sum > 1.000001 {
		t.Fatalf("weights sum = %v, want 1", sum)
	}
}

func TestRecompute_Idempotent(t *testing.T) {
	a := testPosition()
	a.Recompute(15000)
	snapshot := *a.Clone()
	a.Recompute(15000)
	if !reflect.DeepEqual(*a.Clone(), snapshot) {
		t.Fatal("recompute with unchanged inputs must be bit-identical")
	}
}

func TestRecompute_PriceDropDrivesStatus(t *testing.T) {
	p := testPosition()
	p.Recompute(15000)
	if p.Status != StatusHealthy {
		t.Fatalf("status = %s, want healthy", p.Status)
	}

	// crash prices so LTV lands in the critical bucket
	for i := range p.Assets {
		p.Assets[i].PriceUSD *= 0.6097 // LTV ≈ 0.82
	}
	p.Recompute(15000)
	if p.Status != StatusCritical {
		t.Fatalf("status = %s (ltv=%v), want critical", p.Status, p.CurrentLTV)
	}
}

func TestRecompute_ZeroDebt(t *testing.T) {
	p := testPosition()
	p.Recompute(0)
	if p.CurrentLTV != 0 {
		t.Fatalf("ltv = %v, want 0", p.CurrentLTV)
	}
	if p.Status != StatusHealthy {
		t.Fatalf("status = %s, want healthy", p.Status)
	}
}

func TestRecompute_LiquidatedIsFrozen(t *testing.T) {
	p := testPosition()
	p.Status = StatusLiquidated
	p.Recompute(15000)
	if p.Status != StatusLiquidated {
		t.Fatalf("status = %s, liquidated positions must stay liquidated", p.Status)
	}
}

func TestCanTransitionTable(t *testing.T) {
	// quick sanity on the loan state machine lives in the loan package; here we
	// only check position severity ranks are strictly ordered.
	if !(StatusHealthy.Rank() < StatusWarning.Rank() &&
		StatusWarning.Rank() < StatusCritical.Rank() &&
		StatusCritical.Rank() < StatusLiquidating.Rank()) {
		t.Fatal("status ranks must be strictly increasing")
	}
}
