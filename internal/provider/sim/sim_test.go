package sim

import (
	"context"
	"strings"
	"testing"

	"collateral-loan-service/internal/provider"
)

func TestOracle_KnownAndUnknownSymbols(t *testing.T) {
	o := NewOracle()
	got, err := o.GetPrices(context.Background(), []string{"BTC", "USDT", "NOPE"})
	if err != nil {
		t.Fatalf("GetPrices: %v", err)
	}
	if _, ok := got["NOPE"]; ok {
		t.Fatal("unknown symbol should be absent, not zero")
	}
	if got["BTC"] <= 0 {
		t.Fatalf("BTC price = %v", got["BTC"])
	}
	if got["USDT"] != 1 {
		t.Fatalf("stablecoin drifted: %v", got["USDT"])
	}
}

func TestBureau_StableScore(t *testing.T) {
	b := NewBureau()
	user := strings.Repeat("a", 32)
	s1, err := b.GetScore(context.Background(), user)
	if err != nil {
		t.Fatalf("GetScore: %v", err)
	}
	s2, _ := b.GetScore(context.Background(), user)
	if s1.Score != s2.Score {
		t.Fatalf("score not stable: %d vs %d", s1.Score, s2.Score)
	}
	if s1.Score < 300 || s1.Score > 850 {
		t.Fatalf("score out of band: %d", s1.Score)
	}
	if s1.Grade == "" || s1.RetrievedAt.IsZero() {
		t.Fatalf("incomplete score: %+v", s1)
	}
}

func TestLender_LoanLifecycle(t *testing.T) {
	l := NewLender("primelend", 0.08, 0.7)
	ctx := context.Background()

	created, err := l.CreateLoan(ctx, provider.LoanRequest{Amount: 1000})
	if err != nil {
		t.Fatalf("CreateLoan: %v", err)
	}
	if !strings.HasPrefix(created.ProviderLoanID, "primelend-") {
		t.Fatalf("loan id %q", created.ProviderLoanID)
	}
	if err := l.Repay(ctx, created.ProviderLoanID, 100); err != nil {
		t.Fatalf("Repay: %v", err)
	}
	if err := l.Repay(ctx, "otherlend-000001", 100); err == nil {
		t.Fatal("expected unknown-loan error")
	}

	if _, err := l.GetQuote(ctx, "BTC", 1000, "USDT", 0.9); err == nil {
		t.Fatal("expected quote refusal above max ltv")
	}
	q, err := l.GetQuote(ctx, "BTC", 1000, "USDT", 0.5)
	if err != nil {
		t.Fatalf("GetQuote: %v", err)
	}
	if q.InterestAPR != 0.08 || q.ProviderID != "primelend" {
		t.Fatalf("quote = %+v", q)
	}
}
