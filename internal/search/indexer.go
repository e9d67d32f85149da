// internal/search/indexer.go

// Package search mirrors approved-deal snapshots into Elasticsearch for
// the marketing and search pages outside the core catalog flow. The
// mirror follows snapshot semantics: every delivery replaces the index
// contents wholesale.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"dealdesk/internal/common/logger"
	"dealdesk/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
)

type Indexer struct {
	client *elasticsearch.Client
	index  string
	logger logger.Logger
}

func NewIndexer(client *elasticsearch.Client, index string, log logger.Logger) *Indexer {
	return &Indexer{
		client: client,
		index:  index,
		logger: log.WithFields(map[string]interface{}{"component": "search-indexer"}),
	}
}

// ReplaceAll replaces the index contents with the given snapshot: a
// match_all delete followed by one bulk index of every deal. Interleaved
// reads may briefly see a partial state; the next snapshot heals it.
func (i *Indexer) ReplaceAll(ctx context.Context, deals []models.Deal) error {
	if err := i.clear(ctx); err != nil {
		return err
	}
	if len(deals) == 0 {
		return nil
	}
	return i.bulkIndex(ctx, deals)
}

func (i *Indexer) clear(ctx context.Context) error {
	query := strings.NewReader(`{"query":{"match_all":{}}}`)
	res, err := i.client.DeleteByQuery(
		[]string{i.index},
		query,
		i.client.DeleteByQuery.WithContext(ctx),
		i.client.DeleteByQuery.WithConflicts("proceed"),
		i.client.DeleteByQuery.WithRefresh(true),
	)
	if err != nil {
		return fmt.Errorf("clear index %s: %w", i.index, err)
	}
	defer res.Body.Close()

	// 404 means the index does not exist yet; the bulk below creates it.
	if res.IsError() && res.StatusCode != 404 {
		return fmt.Errorf("clear index %s: %s", i.index, res.Status())
	}
	return nil
}

func (i *Indexer) bulkIndex(ctx context.Context, deals []models.Deal) error {
	var buf bytes.Buffer
	for _, d := range deals {
		meta := fmt.Sprintf(`{"index":{"_index":%q,"_id":%q}}`, i.index, d.ID)
		buf.WriteString(meta)
		buf.WriteByte('\n')

		doc, err := json.Marshal(searchDoc(d))
		if err != nil {
			return fmt.Errorf("encode deal %s: %w", d.ID, err)
		}
		buf.Write(doc)
		buf.WriteByte('\n')
	}

	res, err := i.client.Bulk(
		bytes.NewReader(buf.Bytes()),
		i.client.Bulk.WithContext(ctx),
		i.client.Bulk.WithRefresh("true"),
	)
	if err != nil {
		return fmt.Errorf("bulk index into %s: %w", i.index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("bulk index into %s: %s", i.index, res.Status())
	}

	var bulkResp struct {
		Errors bool `json:"errors"`
	}
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return fmt.Errorf("decode bulk response: %w", err)
	}
	if bulkResp.Errors {
		return fmt.Errorf("bulk index into %s: some documents were rejected", i.index)
	}

	i.logger.Info("search mirror refreshed", map[string]interface{}{
		"index": i.index,
		"deals": len(deals),
	})
	return nil
}

// searchDoc flattens a deal into the shape the search pages query on.
func searchDoc(d models.Deal) map[string]interface{} {
	doc := map[string]interface{}{
		"id":           d.ID,
		"address":      d.BasicInfo.Address,
		"city":         d.BasicInfo.City,
		"state":        d.BasicInfo.State,
		"propertyType": d.BasicInfo.PropertyType,
		"fundingType":  string(d.FundingInfo.FundingType),
		"exitStrategy": string(d.FundingInfo.ExitStrategy),
		"status":       string(d.Status),
		"createdAt":    d.CreatedAt.Format(time.RFC3339),
	}
	if d.FundingInfo.AmountRequested != nil {
		doc["amountRequested"] = *d.FundingInfo.AmountRequested
	}
	if d.FundingInfo.ProjectedReturn != nil {
		doc["projectedReturn"] = *d.FundingInfo.ProjectedReturn
	}
	return doc
}

// Follow attaches the indexer to a snapshot stream. The returned function
// detaches it.
func (i *Indexer) Follow(subscribe func(func([]models.Deal)) func()) func() {
	return subscribe(func(deals []models.Deal) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := i.ReplaceAll(ctx, deals); err != nil {
			i.logger.WithError(err).Error("search mirror refresh failed", nil)
		}
	})
}
