// internal/query/engine.go

// Package query derives the displayed deal list from a raw catalog
// snapshot plus search, facet and sort parameters. Everything here is
// pure: identical inputs always produce identical output, and the input
// slice is never mutated or aliased.
package query

import (
	"sort"
	"strconv"
	"strings"

	"dealdesk/internal/models"
)

// Display filters and orders a raw deal list. The result is always a
// subset of deals; ties keep their input relative order.
func Display(deals []models.Deal, searchQuery string, filters Filters, sortKey string) []models.Deal {
	facets := filters.facets()
	needle := strings.ToLower(strings.TrimSpace(searchQuery))

	out := make([]models.Deal, 0, len(deals))
	for _, d := range deals {
		if needle != "" && !matchesSearch(d, needle) {
			continue
		}
		if !matchesFacets(d, facets) {
			continue
		}
		out = append(out, d)
	}

	sortDeals(out, sortKey)
	return out
}

// matchesSearch does a case-insensitive substring match against address,
// city, state and funding type. Any one hit passes.
func matchesSearch(d models.Deal, needle string) bool {
	for _, field := range []string{
		d.BasicInfo.Address,
		d.BasicInfo.City,
		d.BasicInfo.State,
		string(d.FundingInfo.FundingType),
	} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

func matchesFacets(d models.Deal, facets []Facet) bool {
	for _, f := range facets {
		if !f.Match(d) {
			return false
		}
	}
	return true
}

// sortDeals orders in place by "<field>-<direction>". A deal missing the
// sort value always lands at the end, regardless of direction. The sort
// is stable.
func sortDeals(deals []models.Deal, sortKey string) {
	field, desc := parseSortKey(sortKey)
	if field == "" {
		return
	}

	sort.SliceStable(deals, func(i, j int) bool {
		a, aStr, aNum, aOK := sortValue(deals[i], field)
		b, bStr, bNum, bOK := sortValue(deals[j], field)

		if !aOK || !bOK {
			// Present before missing; two missing values keep input order.
			return aOK && !bOK
		}

		if aNum && bNum {
			if desc {
				return a > b
			}
			return a < b
		}
		if aNum != bNum {
			// Mixed attribute types inside one field: numbers first.
			return aNum
		}
		if desc {
			return aStr > bStr
		}
		return aStr < bStr
	})
}

// parseSortKey splits "<field>-<direction>". An unknown or absent
// direction defaults to descending.
func parseSortKey(sortKey string) (field string, desc bool) {
	if sortKey == "" {
		return "", false
	}
	idx := strings.LastIndex(sortKey, "-")
	if idx <= 0 {
		return sortKey, true
	}
	field = sortKey[:idx]
	return field, sortKey[idx+1:] != "asc"
}

// sortValue extracts the sortable value for a field. Numeric fields
// return (num, "", true, ok); string attributes return a lowercased
// (0, str, false, ok). ok is false when the deal lacks the value.
func sortValue(d models.Deal, field string) (num float64, str string, isNum bool, ok bool) {
	switch field {
	case "createdAt":
		if d.CreatedAt.IsZero() {
			return 0, "", true, false
		}
		return float64(d.CreatedAt.UnixMilli()), "", true, true
	case "projectedReturn":
		if d.FundingInfo.ProjectedReturn == nil {
			return 0, "", true, false
		}
		return *d.FundingInfo.ProjectedReturn, "", true, true
	case "amountRequested":
		if d.FundingInfo.AmountRequested == nil {
			return 0, "", true, false
		}
		return *d.FundingInfo.AmountRequested, "", true, true
	case "lengthOfFunding":
		if d.FundingInfo.LengthOfFunding == 0 {
			return 0, "", true, false
		}
		return float64(d.FundingInfo.LengthOfFunding), "", true, true
	case "bedrooms":
		return float64(d.BasicInfo.Bedrooms), "", true, true
	case "bathrooms":
		return float64(d.BasicInfo.Bathrooms), "", true, true
	case "buildingSize":
		return float64(d.BasicInfo.BuildingSize), "", true, true
	case "lotSize":
		return float64(d.BasicInfo.LotSize), "", true, true
	}

	s := stringAttr(d, field)
	if s == "" {
		return 0, "", false, false
	}
	// Numeric-looking attributes compare numerically so "9" < "10".
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v, "", true, true
	}
	return 0, strings.ToLower(s), false, true
}

func stringAttr(d models.Deal, field string) string {
	switch field {
	case "id":
		return d.ID
	case "address":
		return d.BasicInfo.Address
	case "city":
		return d.BasicInfo.City
	case "state":
		return d.BasicInfo.State
	case "propertyType":
		return d.BasicInfo.PropertyType
	case "condition":
		return d.BasicInfo.Condition
	case "fundingType":
		return string(d.FundingInfo.FundingType)
	case "exitStrategy":
		return string(d.FundingInfo.ExitStrategy)
	case "status":
		return string(d.Status)
	case "submitterUid":
		return d.SubmitterUID
	}
	return ""
}
