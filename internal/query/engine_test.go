// internal/query/engine_test.go
package query

import (
	"testing"
	"time"

	"dealdesk/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

func f64(v float64) *float64 { return &v }

func createDeal(id string, amount, ret *float64) models.Deal {
	return models.Deal{
		ID: id,
		BasicInfo: models.BasicInfo{
			Address: "123 Main St",
			City:    "Austin",
			State:   "TX",
		},
		FundingInfo: models.FundingInfo{
			FundingType:     models.FundingBridgeLoan,
			AmountRequested: amount,
			ProjectedReturn: ret,
		},
	}
}

func ids(deals []models.Deal) []string {
	out := make([]string, len(deals))
	for i, d := range deals {
		out[i] = d.ID
	}
	return out
}

// ==========================
// Filter Tests
// ==========================

func TestDisplay_SearchMatchesAcrossFields(t *testing.T) {
	deals := []models.Deal{
		{ID: "a", BasicInfo: models.BasicInfo{Address: "44 Oak Ave", City: "Dallas", State: "TX"}},
		{ID: "b", BasicInfo: models.BasicInfo{Address: "9 Elm St", City: "Miami", State: "FL"}},
		{ID: "c", BasicInfo: models.BasicInfo{City: "Denver", State: "CO"},
			FundingInfo: models.FundingInfo{FundingType: models.FundingGap}},
	}

	tests := []struct {
		name     string
		search   string
		expected []string
	}{
		{name: "matches address substring", search: "oak", expected: []string{"a"}},
		{name: "matches city case-insensitively", search: "MIAMI", expected: []string{"b"}},
		{name: "matches state", search: "tx", expected: []string{"a"}},
		{name: "matches funding type", search: "gap", expected: []string{"c"}},
		{name: "no match yields empty list", search: "zzz", expected: []string{}},
		{name: "empty search passes everything", search: "", expected: []string{"a", "b", "c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Display(deals, tt.search, Filters{}, "")
			assert.Equal(t, tt.expected, ids(got))
		})
	}
}

func TestDisplay_AmountBuckets(t *testing.T) {
	deal := createDeal("d1", f64(75000), nil)

	tests := []struct {
		name   string
		bucket string
		passes bool
	}{
		{name: "75000 passes 50001-100000", bucket: "50001-100000", passes: true},
		{name: "75000 fails 0-50000", bucket: "0-50000", passes: false},
		{name: "75000 fails 100001-250000", bucket: "100001-250000", passes: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filters := ParseFilters("", "", tt.bucket)
			got := Display([]models.Deal{deal}, "", filters, "")
			if tt.passes {
				assert.Len(t, got, 1)
			} else {
				assert.Empty(t, got)
			}
		})
	}
}

func TestDisplay_MissingAmountTreatedAsZero(t *testing.T) {
	deal := createDeal("d1", nil, nil)

	filters := ParseFilters("", "", "0-50000")
	got := Display([]models.Deal{deal}, "", filters, "")
	assert.Len(t, got, 1, "missing amount counts as 0 and passes the first bucket")

	filters = ParseFilters("", "", "50001-100000")
	got = Display([]models.Deal{deal}, "", filters, "")
	assert.Empty(t, got)
}

func TestDisplay_MissingReturnFailsEveryBucket(t *testing.T) {
	deal := createDeal("d1", f64(100000), nil)

	for _, bucket := range []string{"0-10", "10-15", "15-20", "20+"} {
		filters := ParseFilters("", bucket, "")
		got := Display([]models.Deal{deal}, "", filters, "")
		assert.Empty(t, got, "bucket %s must exclude a deal with no projected return", bucket)
	}
}

func TestDisplay_ReturnBucketBoundsInclusive(t *testing.T) {
	tests := []struct {
		name   string
		ret    float64
		bucket string
		passes bool
	}{
		{name: "10 passes 0-10", ret: 10, bucket: "0-10", passes: true},
		{name: "10 passes 10-15", ret: 10, bucket: "10-15", passes: true},
		{name: "20 passes 20+", ret: 20, bucket: "20+", passes: true},
		{name: "9.9 fails 10-15", ret: 9.9, bucket: "10-15", passes: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deal := createDeal("d1", nil, f64(tt.ret))
			filters := ParseFilters("", tt.bucket, "")
			got := Display([]models.Deal{deal}, "", filters, "")
			if tt.passes {
				assert.Len(t, got, 1)
			} else {
				assert.Empty(t, got)
			}
		})
	}
}

func TestDisplay_FundingTypeFilter(t *testing.T) {
	deals := []models.Deal{
		createDeal("a", nil, nil),
		{ID: "b", FundingInfo: models.FundingInfo{FundingType: models.FundingEMD}},
	}

	filters := ParseFilters("emd", "", "")
	got := Display(deals, "", filters, "")
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ID)

	filters = ParseFilters("all", "", "")
	got = Display(deals, "", filters, "")
	assert.Len(t, got, 2, `"all" leaves the facet inactive`)
}

// ==========================
// Sort Tests
// ==========================

func TestDisplay_MissingValuesSortLast(t *testing.T) {
	deals := []models.Deal{
		createDeal("a", f64(50000), nil),
		createDeal("b", nil, nil),
		createDeal("c", f64(200000), nil),
	}

	got := Display(deals, "", Filters{}, "amountRequested-desc")
	assert.Equal(t, []string{"c", "a", "b"}, ids(got), "missing amount sorts last on desc")

	got = Display(deals, "", Filters{}, "amountRequested-asc")
	assert.Equal(t, []string{"a", "c", "b"}, ids(got), "missing amount sorts last on asc too")
}

func TestDisplay_SortIsStableAndIdempotent(t *testing.T) {
	deals := []models.Deal{
		createDeal("a", f64(100), nil),
		createDeal("b", f64(100), nil),
		createDeal("c", f64(100), nil),
	}

	once := Display(deals, "", Filters{}, "amountRequested-desc")
	assert.Equal(t, []string{"a", "b", "c"}, ids(once), "ties keep input order")

	twice := Display(once, "", Filters{}, "amountRequested-desc")
	assert.Equal(t, ids(once), ids(twice), "re-sorting a sorted list reproduces it")
}

func TestDisplay_SortByCreatedAt(t *testing.T) {
	now := time.Now()
	deals := []models.Deal{
		{ID: "old", CreatedAt: now.Add(-time.Hour)},
		{ID: "new", CreatedAt: now},
		{ID: "unset"},
	}

	got := Display(deals, "", Filters{}, "createdAt-desc")
	assert.Equal(t, []string{"new", "old", "unset"}, ids(got))
}

func TestDisplay_SortByStringAttribute(t *testing.T) {
	deals := []models.Deal{
		{ID: "b", BasicInfo: models.BasicInfo{City: "Boston"}},
		{ID: "a", BasicInfo: models.BasicInfo{City: "austin"}},
		{ID: "m", BasicInfo: models.BasicInfo{City: ""}},
	}

	got := Display(deals, "", Filters{}, "city-asc")
	assert.Equal(t, []string{"a", "b", "m"}, ids(got), "string compare is case-insensitive, missing last")
}

func TestDisplay_UnknownDirectionDefaultsToDesc(t *testing.T) {
	deals := []models.Deal{
		createDeal("a", f64(1), nil),
		createDeal("b", f64(2), nil),
	}

	got := Display(deals, "", Filters{}, "amountRequested-sideways")
	assert.Equal(t, []string{"b", "a"}, ids(got))
}

// ==========================
// Purity Tests
// ==========================

func TestDisplay_ResultIsSubsetAndInputUntouched(t *testing.T) {
	deals := []models.Deal{
		createDeal("a", f64(10), nil),
		createDeal("b", f64(30), nil),
		createDeal("c", f64(20), nil),
	}
	originalOrder := ids(deals)

	got := Display(deals, "", Filters{}, "amountRequested-asc")

	for _, d := range got {
		assert.Contains(t, originalOrder, d.ID, "no fabricated entries")
	}
	assert.Equal(t, originalOrder, ids(deals), "input slice order is untouched")
}

func TestDisplay_Deterministic(t *testing.T) {
	deals := []models.Deal{
		createDeal("a", f64(5), f64(12)),
		createDeal("b", f64(90000), nil),
		createDeal("c", nil, f64(22)),
	}

	first := Display(deals, "main", ParseFilters("", "", ""), "projectedReturn-desc")
	second := Display(deals, "main", ParseFilters("", "", ""), "projectedReturn-desc")
	assert.Equal(t, ids(first), ids(second))
}
