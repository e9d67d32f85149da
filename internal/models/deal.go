// internal/models/deal.go
package models

import "time"

// FundingType enumerates the funding products a deal can request.
type FundingType string

const (
	FundingEMD             FundingType = "EMD"
	FundingDoubleClose     FundingType = "Double Close"
	FundingGap             FundingType = "Gap Funding"
	FundingBridgeLoan      FundingType = "Bridge Loan"
	FundingNewConstruction FundingType = "New Construction"
	FundingRentalLoan      FundingType = "Rental Loan"
)

// ExitStrategy enumerates how a submitter plans to exit the deal.
type ExitStrategy string

const (
	ExitSell      ExitStrategy = "Sell"
	ExitRefinance ExitStrategy = "Refinance"
)

// DealStatus is owned by the backend; this service only reads it.
type DealStatus string

const (
	DealStatusPending  DealStatus = "pending"
	DealStatusApproved DealStatus = "approved"
	DealStatusRejected DealStatus = "rejected"
	DealStatusFunded   DealStatus = "funded"
)

// Deal is a funding request record with property, funding and description facets.
type Deal struct {
	ID              string          `json:"id" db:"id"`
	BasicInfo       BasicInfo       `json:"basicInfo"`
	FundingInfo     FundingInfo     `json:"fundingInfo"`
	DescriptionInfo DescriptionInfo `json:"descriptionInfo"`
	Attachments     []Attachment    `json:"attachments,omitempty"`
	SubmitterUID    string          `json:"submitterUid" db:"submitter_uid"`
	Status          DealStatus      `json:"status" db:"status"`
	CreatedAt       time.Time       `json:"createdAt" db:"created_at"`
}

// BasicInfo describes the property behind a deal.
type BasicInfo struct {
	Address      string `json:"address"`
	City         string `json:"city"`
	State        string `json:"state"`
	PropertyType string `json:"propertyType"`
	Condition    string `json:"condition"`
	Bedrooms     int    `json:"bedrooms"`
	Bathrooms    int    `json:"bathrooms"`
	BuildingSize int    `json:"buildingSize"`
	LotSize      int    `json:"lotSize"`
}

// FundingInfo carries the original funding terms asked by the submitter.
// AmountRequested and ProjectedReturn are pointers so a missing value can
// be told apart from zero; the query engine relies on that distinction.
type FundingInfo struct {
	FundingType     FundingType  `json:"fundingType"`
	AmountRequested *float64     `json:"amountRequested,omitempty"`
	ProjectedReturn *float64     `json:"projectedReturn,omitempty"`
	ExitStrategy    ExitStrategy `json:"exitStrategy"`
	LengthOfFunding int          `json:"lengthOfFunding"` // days
	ARV             *float64     `json:"arv,omitempty"`
	PurchasePrice   *float64     `json:"purchasePrice,omitempty"`
	RehabCost       *float64     `json:"rehabCost,omitempty"`
}

// DescriptionInfo holds the free-text facets of a deal.
type DescriptionInfo struct {
	Summary       string `json:"summary,omitempty"`
	ScopeOfWork   string `json:"scopeOfWork,omitempty"`
	ExitPlan      string `json:"exitPlan,omitempty"`
	AdditionalURL string `json:"additionalUrl,omitempty"`
}

// Attachment is one uploaded document associated with a deal.
type Attachment struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Type string `json:"type"`
	Size int64  `json:"size"`
}

// Amount returns the requested amount, or 0 when missing.
func (f FundingInfo) Amount() float64 {
	if f.AmountRequested == nil {
		return 0
	}
	return *f.AmountRequested
}

// Return returns the projected return, or -1 when missing so a missing
// value fails every positive return bucket.
func (f FundingInfo) Return() float64 {
	if f.ProjectedReturn == nil {
		return -1
	}
	return *f.ProjectedReturn
}
