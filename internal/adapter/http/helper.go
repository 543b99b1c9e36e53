package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"collateral-loan-service/internal/domain/assessment"
	"collateral-loan-service/internal/domain/collateral"
	"collateral-loan-service/internal/domain/loan"
	"collateral-loan-service/internal/provider"
	"collateral-loan-service/internal/usecase/loanbook"
	"collateral-loan-service/internal/usecase/underwriting"
)

// errStatus maps domain errors onto HTTP status codes. Anything unknown is a
// 500 so new error values fail loudly instead of leaking as false 4xx.
func errStatus(err error) int {
	switch {
	case errors.Is(err, loan.ErrNotFound),
		errors.Is(err, collateral.ErrNotFound),
		errors.Is(err, assessment.ErrNotFound),
		errors.Is(err, loanbook.ErrAlertNotFound):
		return http.StatusNotFound
	case errors.Is(err, loanbook.ErrPolicyViolation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, loan.ErrInvalidTransition),
		errors.Is(err, loan.ErrStatusConflict),
		errors.Is(err, collateral.ErrStatusConflict),
		errors.Is(err, loanbook.ErrLoanNotOpen),
		errors.Is(err, loanbook.ErrAssessmentUnusable):
		return http.StatusConflict
	case errors.Is(err, loanbook.ErrInvalidRequest),
		errors.Is(err, loanbook.ErrInvalidAmount),
		errors.Is(err, loanbook.ErrInsufficientCollateral),
		errors.Is(err, loanbook.ErrAmountExceedsApproval),
		errors.Is(err, underwriting.ErrInvalidRequest),
		errors.Is(err, provider.ErrUnknownProvider):
		return http.StatusBadRequest
	case errors.Is(err, underwriting.ErrStaleCreditScore),
		errors.Is(err, underwriting.ErrPriceUnavailable):
		return http.StatusBadGateway
	}
	var pe *provider.Error
	if errors.As(err, &pe) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func jsonError(c echo.Context, err error) error {
	return c.JSON(errStatus(err), ErrorResponse{Error: err.Error()})
}

// ---- helpers ----

func containsFieldMsg(list []FieldError, field, substr string) bool {
	for _, e := range list {
		if e.Field == field && strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}
