// internal/server/negotiation_handlers.go
package server

import (
	"net/http"

	"dealdesk/internal/catalog"
	"dealdesk/internal/common/errors"
	"dealdesk/internal/common/logger"
	"dealdesk/internal/common/validation"
	"dealdesk/internal/models"
	"dealdesk/internal/negotiation"

	"github.com/gin-gonic/gin"
)

type NegotiationHandler struct {
	initiator *negotiation.Initiator
	approved  *catalog.Synchronizer
	errs      *errors.ErrorHandler
	logger    logger.Logger
}

func NewNegotiationHandler(initiator *negotiation.Initiator, approved *catalog.Synchronizer, errs *errors.ErrorHandler, log logger.Logger) *NegotiationHandler {
	return &NegotiationHandler{
		initiator: initiator,
		approved:  approved,
		errs:      errs,
		logger:    log.WithFields(map[string]interface{}{"handler": "negotiations"}),
	}
}

type createNegotiationRequest struct {
	DealID string           `json:"dealId"`
	Form   negotiation.Form `json:"form"`
}

// Create opens a negotiation against a deal in the current approved
// catalog. The form is schema checked, then field validated by the
// initiator; only a fully valid proposal reaches the store.
func (h *NegotiationHandler) Create(c *gin.Context) {
	var req createNegotiationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errs.Respond(c, errors.NewValidationError("body", "malformed request body"))
		return
	}

	if err := validation.ValidateProposalForm(map[string]interface{}{
		"amount":          req.Form.Amount,
		"returnRate":      req.Form.ReturnRate,
		"fundingType":     req.Form.FundingType,
		"exitStrategy":    req.Form.ExitStrategy,
		"lengthOfFunding": req.Form.LengthOfFunding,
	}); err != nil {
		h.errs.Respond(c, errors.NewValidationError("form", err.Error()))
		return
	}

	deal, ok := h.findDeal(req.DealID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "deal not found in the approved catalog"})
		return
	}

	identity := identityFrom(c)
	id, err := h.initiator.ProposeFunding(c.Request.Context(), deal, identity, req.Form)
	if err != nil {
		h.errs.Respond(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"negotiationId": id})
}

func (h *NegotiationHandler) findDeal(dealID string) (models.Deal, bool) {
	deals, loaded := h.approved.Snapshot()
	if !loaded {
		return models.Deal{}, false
	}
	for _, d := range deals {
		if d.ID == dealID {
			return d, true
		}
	}
	return models.Deal{}, false
}
