// internal/backend/store.go
package backend

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"dealdesk/internal/common/errors"
	"dealdesk/internal/common/logger"
	"dealdesk/internal/models"

	"github.com/google/uuid"
)

// Store is the Postgres-backed persistence layer for deals, profiles and
// negotiations. Deal facets are stored as jsonb columns; the relational
// columns carry only what queries filter on.
type Store struct {
	db     *sql.DB
	logger logger.Logger
}

func NewStore(db *sql.DB, log logger.Logger) *Store {
	return &Store{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "store"}),
	}
}

const dealColumns = `id, basic_info, funding_info, description_info, attachments, submitter_uid, status, created_at`

// LoadApprovedDeals returns the complete current approved-deal list.
func (s *Store) LoadApprovedDeals(ctx context.Context) ([]models.Deal, error) {
	query := `SELECT ` + dealColumns + ` FROM deals WHERE status = $1 ORDER BY created_at`
	rows, err := s.db.QueryContext(ctx, query, models.DealStatusApproved)
	if err != nil {
		return nil, fmt.Errorf("load approved deals: %w", err)
	}
	defer rows.Close()

	return scanDeals(rows)
}

// LoadDealsBySubmitter returns every deal owned by the given identity,
// regardless of status.
func (s *Store) LoadDealsBySubmitter(ctx context.Context, submitterUID string) ([]models.Deal, error) {
	query := `SELECT ` + dealColumns + ` FROM deals WHERE submitter_uid = $1 ORDER BY created_at`
	rows, err := s.db.QueryContext(ctx, query, submitterUID)
	if err != nil {
		return nil, fmt.Errorf("load deals by submitter: %w", err)
	}
	defer rows.Close()

	return scanDeals(rows)
}

func scanDeals(rows *sql.Rows) ([]models.Deal, error) {
	deals := []models.Deal{}
	for rows.Next() {
		var d models.Deal
		var basic, funding, description, attachments []byte
		if err := rows.Scan(
			&d.ID, &basic, &funding, &description, &attachments,
			&d.SubmitterUID, &d.Status, &d.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan deal row: %w", err)
		}
		if err := json.Unmarshal(basic, &d.BasicInfo); err != nil {
			return nil, fmt.Errorf("decode basic_info for deal %s: %w", d.ID, err)
		}
		if err := json.Unmarshal(funding, &d.FundingInfo); err != nil {
			return nil, fmt.Errorf("decode funding_info for deal %s: %w", d.ID, err)
		}
		if len(description) > 0 {
			if err := json.Unmarshal(description, &d.DescriptionInfo); err != nil {
				return nil, fmt.Errorf("decode description_info for deal %s: %w", d.ID, err)
			}
		}
		if len(attachments) > 0 {
			if err := json.Unmarshal(attachments, &d.Attachments); err != nil {
				return nil, fmt.Errorf("decode attachments for deal %s: %w", d.ID, err)
			}
		}
		deals = append(deals, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deal rows: %w", err)
	}
	return deals, nil
}

// FetchProfile returns the role profile for an identity, or nil when the
// identity has not completed onboarding yet.
func (s *Store) FetchProfile(ctx context.Context, identityID string) (*models.Profile, error) {
	var p models.Profile
	query := `SELECT identity_id, role, name, phone, created_at, updated_at FROM profiles WHERE identity_id = $1`
	err := s.db.QueryRowContext(ctx, query, identityID).Scan(
		&p.IdentityID, &p.Role, &p.Name, &p.Phone, &p.CreatedAt, &p.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch profile %s: %w", identityID, err)
	}
	return &p, nil
}

// CreateProfileDocument creates the role profile for a newly signed-up
// identity. The role attribute is mandatory and must be a known role.
func (s *Store) CreateProfileDocument(ctx context.Context, identity models.Identity, attrs map[string]string) (*models.Profile, error) {
	role := models.Role(attrs["role"])
	if !models.ValidRole(role) {
		return nil, errors.NewValidationError("role", "must be one of investor, lender, admin")
	}

	now := time.Now().UTC()
	p := &models.Profile{
		IdentityID: identity.ID,
		Role:       role,
		Name:       attrs["name"],
		Phone:      attrs["phone"],
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	query := `INSERT INTO profiles (identity_id, role, name, phone, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := s.db.ExecContext(ctx, query,
		p.IdentityID, p.Role, p.Name, p.Phone, p.CreatedAt, p.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("create profile %s: %w", identity.ID, err)
	}

	s.logger.Info("profile created", map[string]interface{}{
		"identityId": identity.ID,
		"role":       string(role),
	})

	return p, nil
}

// StartNegotiation persists a negotiation record and returns its id. The
// idempotency key makes a retried insert return the already-created id
// instead of a duplicate row.
func (s *Store) StartNegotiation(ctx context.Context, rec *models.NegotiationRecord) (string, error) {
	proposed, err := json.Marshal(rec.ProposedTerms)
	if err != nil {
		return "", fmt.Errorf("encode proposed terms: %w", err)
	}
	original, err := json.Marshal(rec.OriginalTerms)
	if err != nil {
		return "", fmt.Errorf("encode original terms: %w", err)
	}

	id := uuid.NewString()
	query := `INSERT INTO negotiations
	          (id, deal_id, borrower_id, lender_id, proposed_terms, original_terms, deal_address, idempotency_key, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	          ON CONFLICT (idempotency_key) DO UPDATE SET idempotency_key = EXCLUDED.idempotency_key
	          RETURNING id`

	var createdID string
	err = s.db.QueryRowContext(ctx, query,
		id, rec.DealID, rec.BorrowerID, rec.LenderID,
		proposed, original, rec.DealAddress, rec.IdempotencyKey, time.Now().UTC(),
	).Scan(&createdID)
	if err != nil {
		return "", fmt.Errorf("start negotiation for deal %s: %w", rec.DealID, err)
	}

	s.logger.Info("negotiation created", map[string]interface{}{
		"negotiationId": createdID,
		"dealId":        rec.DealID,
		"lenderId":      rec.LenderID,
	})

	return createdID, nil
}
