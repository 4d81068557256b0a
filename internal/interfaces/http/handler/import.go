package handler

import (
	"errors"

	"github.com/erp/bankrec/internal/application/statementimport"
	"github.com/erp/bankrec/internal/infrastructure/tabular"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ImportHandler serves the statement import endpoints
type ImportHandler struct {
	BaseHandler
	svc    *statementimport.ImportService
	logger *zap.Logger
}

// NewImportHandler creates a new ImportHandler
func NewImportHandler(svc *statementimport.ImportService, logger *zap.Logger) *ImportHandler {
	return &ImportHandler{svc: svc, logger: logger}
}

// RegisterRoutes registers import routes
func (h *ImportHandler) RegisterRoutes(rg *gin.RouterGroup) {
	group := rg.Group("/import")
	{
		group.POST("/start", h.Start)
		group.POST("/map", h.MapFields)
		group.POST("/publish", h.Publish)
		group.GET("/last-transaction", h.LastTransaction)
	}
}

// Start handles POST /import/start. The statement file arrives as multipart
// form data under "file", the target account as "bank_account_id".
func (h *ImportHandler) Start(c *gin.Context) {
	bankAccountID, err := formUUID(c, "bank_account_id")
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		h.BadRequest(c, "A statement file is required")
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		h.BadRequest(c, "Failed to read the uploaded file")
		return
	}
	defer file.Close()

	result, err := h.svc.StartImport(c.Request.Context(), statementimport.StartImportRequest{
		BankAccountID: bankAccountID,
		Filename:      fileHeader.Filename,
		File:          file,
	})
	if err != nil {
		if errors.Is(err, tabular.ErrEmptyFile) || errors.Is(err, tabular.ErrInvalidEncoding) {
			h.BadRequest(c, err.Error())
			return
		}
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// MapFields handles POST /import/map
func (h *ImportHandler) MapFields(c *gin.Context) {
	var req statementimport.MapFieldsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	rows, err := h.svc.MapFields(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, rows)
}

// Publish handles POST /import/publish
func (h *ImportHandler) Publish(c *gin.Context) {
	var req statementimport.PublishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	result, err := h.svc.PublishRecords(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, result)
}

// LastTransaction handles GET /import/last-transaction
func (h *ImportHandler) LastTransaction(c *gin.Context) {
	bankAccountID, err := queryUUID(c, "bank_account_id")
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	last, err := h.svc.GetLastTransaction(c.Request.Context(), bankAccountID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, last)
}
