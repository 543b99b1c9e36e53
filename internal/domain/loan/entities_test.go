package loan

import (
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{StatusPending, StatusActive},
		{StatusActive, StatusMarginCall},
		{StatusActive, StatusClosed},
		{StatusMarginCall, StatusActive},
		{StatusMarginCall, StatusLiquidationPending},
		{StatusLiquidationPending, StatusPartiallyLiquidated},
		{StatusLiquidationPending, StatusFullyLiquidated},
		{StatusPartiallyLiquidated, StatusActive},
		{StatusFullyLiquidated, StatusClosed},
		{StatusActive, StatusDefaulted},
		{StatusPending, StatusCancelled},
	}
	for _, c := range allowed {
		if !CanTransition(c.from, c.to) {
			t.Errorf("%s → %s should be allowed", c.from, c.to)
		}
	}

	denied := []struct{ from, to Status }{
		{StatusPending, StatusMarginCall},
		{StatusActive, StatusLiquidationPending}, // must pass through margin_call
		{StatusClosed, StatusActive},
		{StatusClosed, StatusDefaulted},
		{StatusDefaulted, StatusActive},
		{StatusCancelled, StatusCancelled},
		{StatusLiquidationPending, StatusClosed},
	}
	for _, c := range denied {
		if CanTransition(c.from, c.to) {
			t.Errorf("%s → %s should be denied", c.from, c.to)
		}
	}
}

func TestTerminal(t *testing.T) {
	for _, s := range []Status{StatusClosed, StatusDefaulted, StatusCancelled} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []Status{StatusPending, StatusActive, StatusMarginCall, StatusLiquidationPending} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestOpenAlerts(t *testing.T) {
	now := time.Now().UTC()
	l := &Loan{}
	l.AppendAlert(Alert{AlertID: "a1", Severity: SeverityWarning, CreatedAt: now})
	ack := now.Add(time.Minute)
	l.AppendAlert(Alert{AlertID: "a2", Severity: SeverityCritical, CreatedAt: now, AcknowledgedAt: &ack})

	open := l.OpenAlerts()
	if len(open) != 1 || open[0].AlertID != "a1" {
		t.Fatalf("open alerts = %+v, want just a1", open)
	}
}

func TestClone_NoAliasing(t *testing.T) {
	l := &Loan{LoanID: "x"}
	l.AppendHistory(time.Now(), "created", 0, "", "")
	c := l.Clone()
	c.AppendHistory(time.Now(), "repayment", 100, "USDT", "")
	if len(l.History) != 1 {
		t.Fatalf("clone mutated original history: %d entries", len(l.History))
	}
}

func TestSeverityRank(t *testing.T) {
	if !(SeverityInfo.Rank() < SeverityWarning.Rank() && SeverityWarning.Rank() < SeverityCritical.Rank()) {
		t.Fatal("severity ranks must be strictly increasing")
	}
}
