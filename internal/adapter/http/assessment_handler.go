package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"collateral-loan-service/internal/usecase/underwriting"
)

type AssessmentHandler struct{ uc *underwriting.Usecase }

func NewAssessmentHandler(uc *underwriting.Usecase) *AssessmentHandler {
	return &AssessmentHandler{uc: uc}
}

type collateralOfferReq struct {
	Symbol string  `json:"symbol" validate:"required,symbol"`
	Amount float64 `json:"amount" validate:"required,gt=0"`
}

type createAssessmentReq struct {
	UserID     string               `json:"user_id"    validate:"required,hex32"`
	Amount     float64              `json:"amount"     validate:"required,gt=0,dec2"`
	Asset      string               `json:"asset"      validate:"required,symbol"`
	Collateral []collateralOfferReq `json:"collateral" validate:"required,min=1,dive"`
}

func (h *AssessmentHandler) CreateAssessment(c echo.Context) error {
	var req createAssessmentReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "validation failed",
			Details: ToFieldErrors(err),
		})
	}

	in := underwriting.AssessRequest{
		UserID: req.UserID,
		Amount: req.Amount,
		Asset:  req.Asset,
	}
	for _, co := range req.Collateral {
		in.Collateral = append(in.Collateral, underwriting.CollateralInput{Symbol: co.Symbol, Amount: co.Amount})
	}
	a, err := h.uc.Assess(c.Request().Context(), in)
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *AssessmentHandler) GetAssessment(c echo.Context) error {
	a, err := h.uc.Get(c.Request().Context(), c.Param("assessment_id"))
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(http.StatusOK, a)
}
