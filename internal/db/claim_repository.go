package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/sweshisj/HealthcareApp/internal/domain"
)

const claimColumns = `
	id, member_id, policy_id, claim_type, date_of_service, provider_name,
	amount::text, description, document_url, status, status_reason,
	submitted_at, adjudicated_at, published_at
`

// ClaimRepository implements domain.ClaimRepository using PostgreSQL.
type ClaimRepository struct {
	pool *pgxpool.Pool
}

// NewClaimRepository creates a new ClaimRepository.
func NewClaimRepository(pool *pgxpool.Pool) *ClaimRepository {
	return &ClaimRepository{
		pool: pool,
	}
}

// Create persists a new claim. The identifier comes from the column default.
func (r *ClaimRepository) Create(ctx context.Context, claim *domain.Claim) (uuid.UUID, error) {
	query := `
		INSERT INTO claims (
			member_id, policy_id, claim_type, date_of_service, provider_name,
			amount, description, document_url, status, submitted_at
		) VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8, $9, $10)
		RETURNING id
	`

	var id uuid.UUID
	err := conn(ctx, r.pool).QueryRow(ctx, query,
		claim.MemberID,
		claim.PolicyID,
		claim.ClaimType,
		claim.DateOfService,
		claim.ProviderName,
		claim.Amount.StringFixed(2),
		claim.Description,
		claim.DocumentURL,
		string(claim.Status),
		claim.SubmittedAt,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, domain.Transient(fmt.Errorf("failed to create claim: %w", err))
	}

	return id, nil
}

// GetByID retrieves a claim by its unique identifier.
func (r *ClaimRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Claim, error) {
	query := `SELECT ` + claimColumns + ` FROM claims WHERE id = $1`

	claim, err := scanClaim(conn(ctx, r.pool).QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrClaimNotFound
		}
		return nil, domain.Transient(fmt.Errorf("failed to get claim: %w", err))
	}

	return claim, nil
}

// CompareAndSetStatus applies the transition only while the stored status
// still equals expected. Concurrent callers race on the row lock and only
// the first one observes a matching status.
func (r *ClaimRepository) CompareAndSetStatus(
	ctx context.Context,
	id uuid.UUID,
	expected, next domain.ClaimStatus,
	reason string,
	at time.Time,
) (bool, error) {
	query := `
		UPDATE claims
		SET status = $3,
		    status_reason = $4,
		    adjudicated_at = $5
		WHERE id = $1 AND status = $2
	`

	tag, err := conn(ctx, r.pool).Exec(ctx, query, id, string(expected), string(next), reason, at)
	if err != nil {
		return false, domain.Transient(fmt.Errorf("failed to update claim status: %w", err))
	}

	return tag.RowsAffected() == 1, nil
}

// ListByMember returns the member's claims, newest submission first.
func (r *ClaimRepository) ListByMember(ctx context.Context, memberID uuid.UUID) ([]*domain.Claim, error) {
	query := `SELECT ` + claimColumns + `
		FROM claims
		WHERE member_id = $1
		ORDER BY submitted_at DESC, id
	`

	rows, err := conn(ctx, r.pool).Query(ctx, query, memberID)
	if err != nil {
		return nil, domain.Transient(fmt.Errorf("failed to list claims: %w", err))
	}
	return collectClaims(rows)
}

// MarkPublished records the broker confirmation time for a claim.
func (r *ClaimRepository) MarkPublished(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE claims SET published_at = $2 WHERE id = $1`

	tag, err := conn(ctx, r.pool).Exec(ctx, query, id, at)
	if err != nil {
		return domain.Transient(fmt.Errorf("failed to mark claim published: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrClaimNotFound
	}

	return nil
}

// ListUnpublished returns Pending claims whose event never reached the
// broker. Rows are locked FOR UPDATE SKIP LOCKED, so the call only makes
// sense within a transaction.
func (r *ClaimRepository) ListUnpublished(ctx context.Context, olderThan time.Time, limit int) ([]*domain.Claim, error) {
	query := `SELECT ` + claimColumns + `
		FROM claims
		WHERE status = $1
		  AND published_at IS NULL
		  AND submitted_at < $2
		ORDER BY submitted_at
		LIMIT $3
		FOR UPDATE SKIP LOCKED
	`

	rows, err := conn(ctx, r.pool).Query(ctx, query, string(domain.ClaimStatusPending), olderThan, limit)
	if err != nil {
		return nil, domain.Transient(fmt.Errorf("failed to list unpublished claims: %w", err))
	}
	return collectClaims(rows)
}

func collectClaims(rows pgx.Rows) ([]*domain.Claim, error) {
	defer rows.Close()

	claims := make([]*domain.Claim, 0)
	for rows.Next() {
		claim, err := scanClaim(rows)
		if err != nil {
			return nil, domain.Transient(fmt.Errorf("failed to scan claim: %w", err))
		}
		claims = append(claims, claim)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Transient(fmt.Errorf("failed to iterate claims: %w", err))
	}

	return claims, nil
}

func scanClaim(row pgx.Row) (*domain.Claim, error) {
	var (
		claim  domain.Claim
		amount string
		status string
	)

	err := row.Scan(
		&claim.ID,
		&claim.MemberID,
		&claim.PolicyID,
		&claim.ClaimType,
		&claim.DateOfService,
		&claim.ProviderName,
		&amount,
		&claim.Description,
		&claim.DocumentURL,
		&status,
		&claim.StatusReason,
		&claim.SubmittedAt,
		&claim.AdjudicatedAt,
		&claim.PublishedAt,
	)
	if err != nil {
		return nil, err
	}

	claim.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("stored amount %q: %w", amount, err)
	}
	claim.Status = domain.ClaimStatus(status)

	return &claim, nil
}
