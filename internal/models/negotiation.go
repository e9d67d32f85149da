// internal/models/negotiation.go
package models

import "time"

// TermSet is the structurally uniform bundle of funding terms used for both
// a deal's original terms and a lender's proposed terms, so the two can be
// diffed field by field.
type TermSet struct {
	Amount          float64      `json:"amount"`
	ReturnRate      float64      `json:"returnRate"`
	FundingType     FundingType  `json:"fundingType"`
	ExitStrategy    ExitStrategy `json:"exitStrategy"`
	LengthOfFunding int          `json:"lengthOfFunding"` // days
}

// NegotiationRecord is created exactly once per successful proposal
// submission. Its ID is backend-assigned and opaque to this service.
type NegotiationRecord struct {
	ID             string    `json:"id,omitempty" db:"id"`
	DealID         string    `json:"dealId" db:"deal_id"`
	BorrowerID     string    `json:"borrowerId" db:"borrower_id"`
	LenderID       string    `json:"lenderId" db:"lender_id"`
	ProposedTerms  TermSet   `json:"proposedTerms"`
	OriginalTerms  TermSet   `json:"originalTerms"`
	DealAddress    string    `json:"dealAddress" db:"deal_address"` // denormalized for display
	IdempotencyKey string    `json:"idempotencyKey,omitempty" db:"idempotency_key"`
	CreatedAt      time.Time `json:"createdAt,omitempty" db:"created_at"`
}
