package loan

import (
	"time"

	"gorm.io/gorm"
)

type Status string

const (
	StatusPending             Status = "pending"
	StatusActive              Status = "active"
	StatusMarginCall          Status = "margin_call"
	StatusLiquidationPending  Status = "liquidation_pending"
	StatusPartiallyLiquidated Status = "partially_liquidated"
	StatusFullyLiquidated     Status = "fully_liquidated"
	StatusClosed              Status = "closed"
	StatusDefaulted           Status = "defaulted"
	StatusCancelled           Status = "cancelled"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	switch s {
	case StatusClosed, StatusDefaulted, StatusCancelled:
		return true
	}
	return false
}

// validNext is the loan state machine. defaulted/cancelled are reachable from
// any non-terminal state and handled in CanTransition directly.
var validNext = map[Status][]Status{
	StatusPending:             {StatusActive},
	StatusActive:              {StatusMarginCall, StatusClosed},
	StatusMarginCall:          {StatusActive, StatusLiquidationPending, StatusClosed},
	StatusLiquidationPending:  {StatusPartiallyLiquidated, StatusFullyLiquidated},
	StatusPartiallyLiquidated: {StatusActive, StatusMarginCall, StatusClosed},
	StatusFullyLiquidated:     {StatusClosed},
}

// CanTransition reports whether from → to is a legal move.
func CanTransition(from, to Status) bool {
	if from.Terminal() {
		return false
	}
	if to == StatusDefaulted || to == StatusCancelled {
		return true
	}
	for _, n := range validNext[from] {
		if n == to {
			return true
		}
	}
	return false
}

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Rank orders severities for alert sorting (most severe first).
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 2
	case SeverityWarning:
		return 1
	}
	return 0
}

// Alert is immutable once created except for the acknowledgment timestamp.
// Alerts are appended, never deleted.
type Alert struct {
	AlertID        string     `json:"alert_id"`
	Type           string     `json:"type"`
	Severity       Severity   `json:"severity"`
	Message        string     `json:"message"`
	CreatedAt      time.Time  `json:"created_at"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
}

// HistoryEntry records one mutation of the loan (append-only).
type HistoryEntry struct {
	At     time.Time `json:"at"`
	Kind   string    `json:"kind"`
	Amount float64   `json:"amount,omitempty"`
	Asset  string    `json:"asset,omitempty"`
	Detail string    `json:"detail,omitempty"`
}

type Principal struct {
	Asset     string  `gorm:"size:16" json:"asset"`
	Amount    float64 `gorm:"type:decimal(18,2)" json:"amount"`
	Remaining float64 `gorm:"type:decimal(18,2)" json:"remaining"`
}

type Interest struct {
	RateAPR float64 `gorm:"type:decimal(8,6)" json:"rate_apr"`
	Accrued float64 `gorm:"type:decimal(18,2)" json:"accrued"`
	Paid    float64 `gorm:"type:decimal(18,2)" json:"paid"`
}

// LTVInfo carries the loan's own thresholds; fractions in [0,1] with
// SafeZone < MarginCall < Liquidation by configuration.
type LTVInfo struct {
	Current     float64 `gorm:"type:decimal(8,6)" json:"current"`
	Initial     float64 `gorm:"type:decimal(8,6)" json:"initial"`
	Max         float64 `gorm:"type:decimal(8,6)" json:"max"`
	Liquidation float64 `gorm:"type:decimal(8,6)" json:"liquidation"`
	MarginCall  float64 `gorm:"type:decimal(8,6)" json:"margin_call"`
	SafeZone    float64 `gorm:"type:decimal(8,6)" json:"safe_zone"`
}

type ScheduleEntry struct {
	DueAt  time.Time `json:"due_at"`
	Amount float64   `json:"amount"`
	Paid   bool      `json:"paid"`
}

type Loan struct {
	ID              uint64          `gorm:"primaryKey;column:id" json:"-"`
	LoanID          string          `gorm:"size:32;uniqueIndex:ux_loans_loan_id_active" json:"loan_id"`
	UserID          string          `gorm:"size:32;index:idx_loans_user" json:"user_id"`
	ProviderID      string          `gorm:"size:64" json:"provider_id"`
	ProviderLoanID  string          `gorm:"size:64" json:"provider_loan_id"`
	AssessmentID    string          `gorm:"size:32" json:"assessment_id"`
	Status          Status          `gorm:"size:32;index" json:"status"`
	Principal       Principal       `gorm:"embedded;embeddedPrefix:principal_" json:"principal"`
	Interest        Interest        `gorm:"embedded;embeddedPrefix:interest_" json:"interest"`
	LTV             LTVInfo         `gorm:"embedded;embeddedPrefix:ltv_" json:"ltv"`
	Schedule        []ScheduleEntry `gorm:"serializer:json" json:"schedule,omitempty"`
	History         []HistoryEntry  `gorm:"serializer:json" json:"history,omitempty"`
	Alerts          []Alert         `gorm:"serializer:json" json:"alerts,omitempty"`
	StatusUpdatedAt time.Time       `gorm:"autoCreateTime" json:"status_updated_at"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt       gorm.DeletedAt  `gorm:"index" json:"-"`
}

func (Loan) TableName() string { return "loans" }

// AppendHistory adds an entry stamped at t.
func (l *Loan) AppendHistory(t time.Time, kind string, amount float64, asset, detail string) {
	l.History = append(l.History, HistoryEntry{At: t, Kind: kind, Amount: amount, Asset: asset, Detail: detail})
}

// AppendAlert adds an alert; the caller assigns the id.
func (l *Loan) AppendAlert(a Alert) { l.Alerts = append(l.Alerts, a) }

// OpenAlerts returns unacknowledged alerts.
func (l *Loan) OpenAlerts() []Alert {
	var out []Alert
	for _, a := range l.Alerts {
		if a.AcknowledgedAt == nil {
			out = append(out, a)
		}
	}
	return out
}

// Clone returns a deep copy so in-memory storage never aliases caller state.
func (l *Loan) Clone() *Loan {
	c := *l
	c.Schedule = append([]ScheduleEntry(nil), l.Schedule...)
	c.History = append([]HistoryEntry(nil), l.History...)
	c.Alerts = append([]Alert(nil), l.Alerts...)
	for i, a := range l.Alerts {
		if a.AcknowledgedAt != nil {
			ts := *a.AcknowledgedAt
			c.Alerts[i].AcknowledgedAt = &ts
		}
	}
	return &c
}
