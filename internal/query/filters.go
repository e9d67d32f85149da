// internal/query/filters.go
package query

import (
	"strings"

	"dealdesk/internal/models"
)

// Facet is one constraint on the displayed deal list. Each facet kind is
// its own type so a new facet cannot be added without a Match method.
type Facet interface {
	Match(d models.Deal) bool
}

// FundingTypeFilter matches deals whose funding type equals the selected
// value, case-insensitively.
type FundingTypeFilter struct {
	Value string
}

func (f FundingTypeFilter) Match(d models.Deal) bool {
	return strings.EqualFold(string(d.FundingInfo.FundingType), f.Value)
}

// ReturnRangeFilter matches deals whose projected return falls in a fixed
// bucket. Bounds are inclusive as named; a deal missing the value fails
// every bucket.
type ReturnRangeFilter struct {
	Bucket string
}

func (f ReturnRangeFilter) Match(d models.Deal) bool {
	v := d.FundingInfo.Return()
	switch f.Bucket {
	case "0-10":
		return v >= 0 && v <= 10
	case "10-15":
		return v >= 10 && v <= 15
	case "15-20":
		return v >= 15 && v <= 20
	case "20+":
		return v >= 20
	}
	return false
}

// AmountRangeFilter matches deals whose requested amount falls in a fixed
// bucket. A deal missing the value is treated as asking for 0.
type AmountRangeFilter struct {
	Bucket string
}

func (f AmountRangeFilter) Match(d models.Deal) bool {
	v := d.FundingInfo.Amount()
	switch f.Bucket {
	case "0-50000":
		return v >= 0 && v <= 50000
	case "50001-100000":
		return v >= 50001 && v <= 100000
	case "100001-250000":
		return v >= 100001 && v <= 250000
	case "250001-500000":
		return v >= 250001 && v <= 500000
	case "500001+":
		return v >= 500001
	}
	return false
}

// Filters is the set of active facets. Nil members are inactive.
type Filters struct {
	FundingType *FundingTypeFilter
	ReturnRange *ReturnRangeFilter
	AmountRange *AmountRangeFilter
}

// ParseFilters builds Filters from raw selector values. A value of "all"
// or empty leaves that facet inactive.
func ParseFilters(fundingType, returnRange, amountRange string) Filters {
	var f Filters
	if active(fundingType) {
		f.FundingType = &FundingTypeFilter{Value: fundingType}
	}
	if active(returnRange) {
		f.ReturnRange = &ReturnRangeFilter{Bucket: returnRange}
	}
	if active(amountRange) {
		f.AmountRange = &AmountRangeFilter{Bucket: amountRange}
	}
	return f
}

func active(v string) bool {
	return v != "" && !strings.EqualFold(v, "all")
}

func (f Filters) facets() []Facet {
	var out []Facet
	if f.FundingType != nil {
		out = append(out, *f.FundingType)
	}
	if f.ReturnRange != nil {
		out = append(out, *f.ReturnRange)
	}
	if f.AmountRange != nil {
		out = append(out, *f.AmountRange)
	}
	return out
}
