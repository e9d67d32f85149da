// internal/server/deal_handlers.go
package server

import (
	"net/http"

	"dealdesk/internal/backend"
	"dealdesk/internal/catalog"
	"dealdesk/internal/common/errors"
	"dealdesk/internal/common/logger"
	"dealdesk/internal/guard"
	"dealdesk/internal/models"
	"dealdesk/internal/query"

	"github.com/gin-gonic/gin"
)

// DealHandler serves catalog reads. Lender-facing reads come from the
// live approved-deals mirror; the submitter dashboard reads its own deals
// straight from the store.
type DealHandler struct {
	approved *catalog.Synchronizer
	store    *backend.Store
	errs     *errors.ErrorHandler
	logger   logger.Logger
}

func NewDealHandler(approved *catalog.Synchronizer, store *backend.Store, errs *errors.ErrorHandler, log logger.Logger) *DealHandler {
	return &DealHandler{
		approved: approved,
		store:    store,
		errs:     errs,
		logger:   log.WithFields(map[string]interface{}{"handler": "deals"}),
	}
}

type dealListResponse struct {
	Deals []models.Deal `json:"deals"`
	Total int           `json:"total"`
	// Error carries the feed failure when the catalog went stale: the
	// last snapshot is still served, flagged unavailable rather than
	// silently ever-older.
	Error string `json:"error,omitempty"`
}

// List returns the filtered, sorted view of the approved-deal catalog.
// Query params: search, fundingType, returnRange, amountRange, sort.
func (h *DealHandler) List(c *gin.Context) {
	deals, loaded := h.approved.Snapshot()
	if !loaded {
		if err := h.approved.Err(); err != nil {
			h.errs.Respond(c, err)
			return
		}
		c.Header("Retry-After", "1")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "loading"})
		return
	}

	filters := query.ParseFilters(
		c.Query("fundingType"),
		c.Query("returnRange"),
		c.Query("amountRange"),
	)
	view := query.Display(deals, c.Query("search"), filters, c.Query("sort"))

	resp := dealListResponse{Deals: view, Total: len(view)}
	if serr := h.approved.Err(); serr != nil {
		resp.Error = serr.Error()
	}
	c.JSON(http.StatusOK, resp)
}

// ListMine returns the requesting identity's own deals, with the same
// search, filter and sort surface as the catalog view.
func (h *DealHandler) ListMine(c *gin.Context) {
	identity := identityFrom(c)
	if identity == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no identity"})
		return
	}

	deals, err := h.store.LoadDealsBySubmitter(c.Request.Context(), identity.ID)
	if err != nil {
		h.errs.Respond(c, errors.NewSubscriptionError("", err))
		return
	}

	filters := query.ParseFilters(
		c.Query("fundingType"),
		c.Query("returnRange"),
		c.Query("amountRange"),
	)
	view := query.Display(deals, c.Query("search"), filters, c.Query("sort"))

	c.JSON(http.StatusOK, dealListResponse{Deals: view, Total: len(view)})
}

func identityFrom(c *gin.Context) *models.Identity {
	v, ok := c.Get(guard.ContextIdentity)
	if !ok {
		return nil
	}
	identity, _ := v.(*models.Identity)
	return identity
}
