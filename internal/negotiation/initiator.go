// internal/negotiation/initiator.go

// Package negotiation turns a lender's funding proposal into a persisted
// negotiation record. All validation happens before the backend is
// contacted; an invalid proposal never produces a network call.
package negotiation

import (
	"context"
	"strconv"
	"strings"

	"dealdesk/internal/common/errors"
	"dealdesk/internal/common/logger"
	"dealdesk/internal/common/metrics"
	"dealdesk/internal/models"

	"github.com/google/uuid"
)

// Submitter is the backend surface that persists negotiation records.
type Submitter interface {
	StartNegotiation(ctx context.Context, rec *models.NegotiationRecord) (string, error)
}

// Form is the raw proposal input as entered by the lender. Numeric fields
// arrive as strings and are coerced during validation.
type Form struct {
	Amount          string `json:"amount"`
	ReturnRate      string `json:"returnRate"`
	FundingType     string `json:"fundingType"`
	ExitStrategy    string `json:"exitStrategy"`
	LengthOfFunding string `json:"lengthOfFunding"`
}

type Initiator struct {
	backend Submitter
	logger  logger.Logger
}

func NewInitiator(backend Submitter, log logger.Logger) *Initiator {
	return &Initiator{
		backend: backend,
		logger:  log.WithFields(map[string]interface{}{"component": "negotiation"}),
	}
}

// ProposeFunding validates the proposal, reconciles it against the deal's
// original terms and submits exactly one negotiation request. Each attempt
// carries a fresh idempotency key, so a retried request after a network
// failure cannot double-create while two distinct attempts still can.
// There is no automatic retry; a SubmissionError leaves resubmission to
// the caller.
func (n *Initiator) ProposeFunding(ctx context.Context, deal models.Deal, proposer *models.Identity, form Form) (string, error) {
	if deal.ID == "" {
		return "", n.invalid("dealId", "deal is missing an id")
	}
	if deal.SubmitterUID == "" {
		return "", n.invalid("borrowerId", "deal is missing its submitter")
	}
	if deal.BasicInfo.Address == "" {
		return "", n.invalid("dealAddress", "deal is missing an address")
	}
	if proposer == nil || proposer.ID == "" {
		return "", n.invalid("lenderId", "no authenticated proposer")
	}

	proposed, vErr := coerceTerms(form)
	if vErr != nil {
		metrics.NegotiationsSubmitted.WithLabelValues("invalid").Inc()
		return "", vErr
	}

	original := models.TermSet{
		Amount:          deal.FundingInfo.Amount(),
		ReturnRate:      deal.FundingInfo.Return(),
		FundingType:     deal.FundingInfo.FundingType,
		ExitStrategy:    deal.FundingInfo.ExitStrategy,
		LengthOfFunding: deal.FundingInfo.LengthOfFunding,
	}

	rec := &models.NegotiationRecord{
		DealID:         deal.ID,
		BorrowerID:     deal.SubmitterUID,
		LenderID:       proposer.ID,
		ProposedTerms:  *proposed,
		OriginalTerms:  original,
		DealAddress:    deal.BasicInfo.Address,
		IdempotencyKey: uuid.NewString(),
	}

	id, err := n.backend.StartNegotiation(ctx, rec)
	if err != nil {
		metrics.NegotiationsSubmitted.WithLabelValues("rejected").Inc()
		n.logger.WithError(err).Error("negotiation submission rejected", map[string]interface{}{
			"dealId":   deal.ID,
			"lenderId": proposer.ID,
		})
		// The backend's rejection reason reaches the caller; the generic
		// fallback inside NewSubmissionError covers a message-less error.
		return "", errors.NewSubmissionError(err.Error(), err)
	}

	metrics.NegotiationsSubmitted.WithLabelValues("accepted").Inc()
	return id, nil
}

func (n *Initiator) invalid(field, reason string) error {
	metrics.NegotiationsSubmitted.WithLabelValues("invalid").Inc()
	return errors.NewValidationError(field, reason)
}

// coerceTerms converts the raw form into a term set, enforcing the
// numeric invariants: amount and return rate non-negative, funding length
// strictly positive days.
func coerceTerms(form Form) (*models.TermSet, *errors.ValidationError) {
	amount, err := strconv.ParseFloat(strings.TrimSpace(form.Amount), 64)
	if err != nil || amount < 0 {
		return nil, errors.NewValidationError("amount", "must be a non-negative number")
	}

	returnRate, err := strconv.ParseFloat(strings.TrimSpace(form.ReturnRate), 64)
	if err != nil || returnRate < 0 {
		return nil, errors.NewValidationError("returnRate", "must be a non-negative number")
	}

	length, err := strconv.Atoi(strings.TrimSpace(form.LengthOfFunding))
	if err != nil || length <= 0 {
		return nil, errors.NewValidationError("lengthOfFunding", "must be a positive number of days")
	}

	if strings.TrimSpace(form.FundingType) == "" {
		return nil, errors.NewValidationError("fundingType", "is required")
	}

	exit := models.ExitStrategy(strings.TrimSpace(form.ExitStrategy))
	if exit != models.ExitSell && exit != models.ExitRefinance {
		return nil, errors.NewValidationError("exitStrategy", "must be Sell or Refinance")
	}

	return &models.TermSet{
		Amount:          amount,
		ReturnRate:      returnRate,
		FundingType:     models.FundingType(strings.TrimSpace(form.FundingType)),
		ExitStrategy:    exit,
		LengthOfFunding: length,
	}, nil
}
