package loanbook

import (
	"errors"

	"collateral-loan-service/internal/domain/collateral"
)

var (
	ErrInvalidRequest         = errors.New("invalid loan request")
	ErrAssessmentUnusable     = errors.New("assessment is not an unexpired approval")
	ErrAmountExceedsApproval  = errors.New("amount exceeds approved amount")
	ErrLoanNotOpen            = errors.New("loan status does not allow this operation")
	ErrInvalidAmount          = errors.New("amount must be positive and within bounds")
	ErrInsufficientCollateral = errors.New("position does not hold that much of the asset")
	ErrPolicyViolation        = errors.New("operation would breach the safe zone threshold")
	ErrAlertNotFound          = errors.New("alert not found")
)

// CreateLoanRequest executes an approved assessment against one provider.
// Amount of zero means the full approved amount.
type CreateLoanRequest struct {
	UserID             string                `json:"user_id"`
	AssessmentID       string                `json:"assessment_id"`
	ProviderID         string                `json:"provider_id"`
	Amount             float64               `json:"amount,omitempty"`
	MonitorIntervalSec int                   `json:"monitor_interval_sec,omitempty"`
	Automation         collateral.Automation `json:"automation"`
}

type RepayRequest struct {
	LoanID string  `json:"loan_id"`
	Amount float64 `json:"amount"`
}

// CollateralChangeRequest covers both adding and withdrawing collateral.
type CollateralChangeRequest struct {
	LoanID string  `json:"loan_id"`
	Symbol string  `json:"symbol"`
	Amount float64 `json:"amount"`
}
