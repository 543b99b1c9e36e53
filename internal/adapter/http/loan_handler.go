package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"collateral-loan-service/internal/domain/collateral"
	"collateral-loan-service/internal/usecase/health"
	"collateral-loan-service/internal/usecase/loanbook"
)

type LoanHandler struct {
	uc     *loanbook.Usecase
	health *health.Usecase
}

func NewLoanHandler(uc *loanbook.Usecase, healthUC *health.Usecase) *LoanHandler {
	return &LoanHandler{uc: uc, health: healthUC}
}

type topUpReq struct {
	Enabled    bool    `json:"enabled"`
	TriggerLTV float64 `json:"trigger_ltv" validate:"omitempty,gt=0,lte=1"`
	MinAmount  float64 `json:"min_amount"  validate:"omitempty,gt=0"`
	MaxAmount  float64 `json:"max_amount"  validate:"omitempty,gt=0"`
	Asset      string  `json:"asset"       validate:"omitempty,symbol"`
}

type createLoanReq struct {
	UserID             string   `json:"user_id"              validate:"required,hex32"`
	AssessmentID       string   `json:"assessment_id"        validate:"required,hex32"`
	ProviderID         string   `json:"provider_id"          validate:"required"`
	Amount             float64  `json:"amount"               validate:"omitempty,gt=0,dec2"`
	MonitorIntervalSec int      `json:"monitor_interval_sec" validate:"omitempty,gte=1"`
	AutoTopUp          topUpReq `json:"auto_top_up"`
}

func (h *LoanHandler) CreateLoan(c echo.Context) error {
	var req createLoanReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "validation failed",
			Details: ToFieldErrors(err),
		})
	}
	l, err := h.uc.CreateLoan(c.Request().Context(), loanbook.CreateLoanRequest{
		UserID:             req.UserID,
		AssessmentID:       req.AssessmentID,
		ProviderID:         req.ProviderID,
		Amount:             req.Amount,
		MonitorIntervalSec: req.MonitorIntervalSec,
		Automation: collateral.Automation{
			TopUp: collateral.TopUpConfig{
				Enabled:    req.AutoTopUp.Enabled,
				TriggerLTV: req.AutoTopUp.TriggerLTV,
				MinAmount:  req.AutoTopUp.MinAmount,
				MaxAmount:  req.AutoTopUp.MaxAmount,
				Asset:      req.AutoTopUp.Asset,
			},
		},
	})
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(http.StatusCreated, l)
}

func (h *LoanHandler) GetLoan(c echo.Context) error {
	l, err := h.uc.Get(c.Request().Context(), c.Param("loan_id"))
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(http.StatusOK, l)
}

func (h *LoanHandler) ListUserLoans(c echo.Context) error {
	ls, err := h.uc.ListByUser(c.Request().Context(), c.Param("user_id"))
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(http.StatusOK, ls)
}

func (h *LoanHandler) GetPosition(c echo.Context) error {
	p, err := h.uc.GetPosition(c.Request().Context(), c.Param("loan_id"))
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

type repayReq struct {
	Amount float64 `json:"amount" validate:"required,gt=0,dec2"`
}

func (h *LoanHandler) Repay(c echo.Context) error {
	var req repayReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "validation failed",
			Details: ToFieldErrors(err),
		})
	}
	l, err := h.uc.Repay(c.Request().Context(), loanbook.RepayRequest{
		LoanID: c.Param("loan_id"),
		Amount: req.Amount,
	})
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(http.StatusOK, l)
}

type collateralChangeReq struct {
	Symbol string  `json:"symbol" validate:"required,symbol"`
	Amount float64 `json:"amount" validate:"required,gt=0"`
}

func (h *LoanHandler) AddCollateral(c echo.Context) error {
	var req collateralChangeReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "validation failed",
			Details: ToFieldErrors(err),
		})
	}
	p, err := h.uc.AddCollateral(c.Request().Context(), loanbook.CollateralChangeRequest{
		LoanID: c.Param("loan_id"), Symbol: req.Symbol, Amount: req.Amount,
	})
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *LoanHandler) WithdrawCollateral(c echo.Context) error {
	var req collateralChangeReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "validation failed",
			Details: ToFieldErrors(err),
		})
	}
	p, err := h.uc.WithdrawCollateral(c.Request().Context(), loanbook.CollateralChangeRequest{
		LoanID: c.Param("loan_id"), Symbol: req.Symbol, Amount: req.Amount,
	})
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *LoanHandler) CheckHealth(c echo.Context) error {
	r, err := h.health.CheckLoanHealth(c.Request().Context(), c.Param("loan_id"))
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *LoanHandler) AcknowledgeAlert(c echo.Context) error {
	l, err := h.uc.AcknowledgeAlert(c.Request().Context(), c.Param("loan_id"), c.Param("alert_id"))
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(http.StatusOK, l)
}

func (h *LoanHandler) CancelLoan(c echo.Context) error {
	if err := h.uc.Cancel(c.Request().Context(), c.Param("loan_id")); err != nil {
		return jsonError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "cancelled"})
}

type defaultReq struct {
	Reason string `json:"reason" validate:"required"`
}

func (h *LoanHandler) MarkDefaulted(c echo.Context) error {
	var req defaultReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "validation failed",
			Details: ToFieldErrors(err),
		})
	}
	if err := h.uc.MarkDefaulted(c.Request().Context(), c.Param("loan_id"), req.Reason); err != nil {
		return jsonError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "defaulted"})
}
