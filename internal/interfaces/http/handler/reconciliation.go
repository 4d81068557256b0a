package handler

import (
	"strconv"
	"time"

	appreconciliation "github.com/erp/bankrec/internal/application/reconciliation"
	"github.com/erp/bankrec/internal/domain/reconciliation"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ReconciliationHandler serves the voucher matching and allocation endpoints
type ReconciliationHandler struct {
	BaseHandler
	svc    *appreconciliation.ReconciliationService
	logger *zap.Logger
}

// NewReconciliationHandler creates a new ReconciliationHandler
func NewReconciliationHandler(svc *appreconciliation.ReconciliationService, logger *zap.Logger) *ReconciliationHandler {
	return &ReconciliationHandler{svc: svc, logger: logger}
}

// RegisterRoutes registers reconciliation routes
func (h *ReconciliationHandler) RegisterRoutes(rg *gin.RouterGroup) {
	group := rg.Group("/reconciliation")
	{
		group.GET("/bank-transactions", h.ListTransactions)
		group.GET("/bank-transactions/:id/candidates", h.GetCandidates)
		group.POST("/bank-transactions/:id/allocations", h.Reconcile)
		group.DELETE("/bank-transactions/:id/allocations", h.RemoveAllocations)
		group.PUT("/bank-transactions/:id", h.UpdateTransaction)
		group.POST("/auto-reconcile", h.AutoReconcile)
	}
}

// ListTransactions handles GET /reconciliation/bank-transactions
func (h *ReconciliationHandler) ListTransactions(c *gin.Context) {
	bankAccountID, err := queryUUID(c, "bank_account_id")
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	fromDate, err := queryDate(c, "from_date")
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	toDate, err := queryDate(c, "to_date")
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	txs, err := h.svc.GetBankTransactions(c.Request.Context(), appreconciliation.ListTransactionsRequest{
		BankAccountID: bankAccountID,
		FromDate:      fromDate,
		ToDate:        toDate,
		Reconciled:    c.Query("reconciled") == "true",
		Limit:         limit,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, txs)
}

// GetCandidates handles GET /reconciliation/bank-transactions/:id/candidates
func (h *ReconciliationHandler) GetCandidates(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	rawTypes := c.QueryArray("voucher_type")
	voucherTypes := make([]reconciliation.VoucherType, 0, len(rawTypes))
	for _, t := range rawTypes {
		voucherTypes = append(voucherTypes, reconciliation.VoucherType(t))
	}

	fromDate, err := queryDate(c, "from_date")
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	toDate, err := queryDate(c, "to_date")
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	candidates, err := h.svc.GetLinkedPayments(c.Request.Context(), appreconciliation.LinkedPaymentsRequest{
		TransactionID:    id,
		VoucherTypes:     voucherTypes,
		FromDate:         fromDate,
		ToDate:           toDate,
		FilterByRefDate:  c.Query("filter_by_reference_date") == "true",
		ExactMatch:       c.Query("exact_match") == "true",
		RequireReference: c.Query("require_reference") == "true",
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, candidates)
}

// AllocationRequest is one voucher allocation in an API request
type AllocationRequest struct {
	VoucherType string          `json:"voucher_type" binding:"required"`
	VoucherID   uuid.UUID       `json:"voucher_id" binding:"required"`
	Amount      decimal.Decimal `json:"amount" binding:"required"`
}

// ReconcileRequest allocates vouchers against a transaction
type ReconcileRequest struct {
	Vouchers []AllocationRequest `json:"vouchers" binding:"required,min=1,dive"`
}

// Reconcile handles POST /reconciliation/bank-transactions/:id/allocations
func (h *ReconciliationHandler) Reconcile(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	var req ReconcileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	vouchers := make([]appreconciliation.VoucherAllocationRequest, 0, len(req.Vouchers))
	for _, v := range req.Vouchers {
		vouchers = append(vouchers, appreconciliation.VoucherAllocationRequest{
			VoucherType: reconciliation.VoucherType(v.VoucherType),
			VoucherID:   v.VoucherID,
			Amount:      v.Amount,
		})
	}

	tx, err := h.svc.ReconcileVouchers(c.Request.Context(), appreconciliation.ReconcileRequest{
		TransactionID: id,
		Vouchers:      vouchers,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, tx)
}

// VoucherRefRequest identifies one voucher in an API request
type VoucherRefRequest struct {
	VoucherType string    `json:"voucher_type" binding:"required"`
	VoucherID   uuid.UUID `json:"voucher_id" binding:"required"`
}

// RemoveAllocationsRequest detaches vouchers from a transaction
type RemoveAllocationsRequest struct {
	Vouchers []VoucherRefRequest `json:"vouchers" binding:"required,min=1,dive"`
}

// RemoveAllocations handles DELETE /reconciliation/bank-transactions/:id/allocations
func (h *ReconciliationHandler) RemoveAllocations(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	var req RemoveAllocationsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	refs := make([]reconciliation.VoucherRef, 0, len(req.Vouchers))
	for _, v := range req.Vouchers {
		refs = append(refs, reconciliation.VoucherRef{
			Type: reconciliation.VoucherType(v.VoucherType),
			ID:   v.VoucherID,
		})
	}

	tx, err := h.svc.RemoveAllocations(c.Request.Context(), appreconciliation.RemoveAllocationsRequest{
		TransactionID: id,
		Vouchers:      refs,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, tx)
}

// UpdateTransactionRequest supplements descriptive transaction fields
type UpdateTransactionRequest struct {
	ReferenceNumber *string `json:"reference_number"`
	PartyType       *string `json:"party_type"`
	Party           *string `json:"party"`
}

// UpdateTransaction handles PUT /reconciliation/bank-transactions/:id
func (h *ReconciliationHandler) UpdateTransaction(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	var req UpdateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	tx, err := h.svc.UpdateBankTransaction(c.Request.Context(), appreconciliation.UpdateTransactionRequest{
		TransactionID:   id,
		ReferenceNumber: req.ReferenceNumber,
		PartyType:       req.PartyType,
		Party:           req.Party,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, tx)
}

// AutoReconcileRequest sweeps a bank account for exact matches
type AutoReconcileRequest struct {
	BankAccountID uuid.UUID  `json:"bank_account_id" binding:"required"`
	FromDate      *time.Time `json:"from_date"`
	ToDate        *time.Time `json:"to_date"`
}

// AutoReconcile handles POST /reconciliation/auto-reconcile
func (h *ReconciliationHandler) AutoReconcile(c *gin.Context) {
	var req AutoReconcileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	result, err := h.svc.AutoReconcileVouchers(c.Request.Context(), appreconciliation.AutoReconcileRequest{
		BankAccountID: req.BankAccountID,
		FromDate:      req.FromDate,
		ToDate:        req.ToDate,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}
