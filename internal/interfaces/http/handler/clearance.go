package handler

import (
	"errors"
	"time"

	appreconciliation "github.com/erp/bankrec/internal/application/reconciliation"
	"github.com/erp/bankrec/internal/domain/reconciliation"
	"github.com/erp/bankrec/internal/infrastructure/jobs"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ClearanceHandler serves the clearance validation endpoints
type ClearanceHandler struct {
	BaseHandler
	svc    *appreconciliation.ClearanceService
	logger *zap.Logger
}

// NewClearanceHandler creates a new ClearanceHandler
func NewClearanceHandler(svc *appreconciliation.ClearanceService, logger *zap.Logger) *ClearanceHandler {
	return &ClearanceHandler{svc: svc, logger: logger}
}

// RegisterRoutes registers clearance routes
func (h *ClearanceHandler) RegisterRoutes(rg *gin.RouterGroup) {
	group := rg.Group("/reconciliation")
	{
		group.POST("/bank-transactions/:id/validate", h.ValidateTransaction)
		group.POST("/validate-batch", h.ValidateBatch)
	}
}

// ValidateTransaction handles POST /reconciliation/bank-transactions/:id/validate.
// The evaluation runs as a named background job; a resubmission while the job
// is queued or running reports queued=false.
func (h *ClearanceHandler) ValidateTransaction(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	queued, err := h.svc.ValidateTransactionAsync(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, jobs.ErrQueueFull) {
			h.TooManyRequests(c, "Validation queue is full, retry later")
			return
		}
		h.HandleError(c, err)
		return
	}
	h.Accepted(c, gin.H{"queued": queued})
}

// ValidateBatchRequest sweeps a date window for stale clearance state
type ValidateBatchRequest struct {
	BankAccountID uuid.UUID  `json:"bank_account_id"`
	FromDate      *time.Time `json:"from_date"`
	ToDate        *time.Time `json:"to_date"`
	Limit         int        `json:"limit"`
}

// ValidateBatch handles POST /reconciliation/validate-batch
func (h *ClearanceHandler) ValidateBatch(c *gin.Context) {
	var req ValidateBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	result, err := h.svc.BatchValidate(c.Request.Context(), reconciliation.BankTransactionFilter{
		BankAccountID: req.BankAccountID,
		FromDate:      req.FromDate,
		ToDate:        req.ToDate,
		Limit:         req.Limit,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}
