package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sweshisj/HealthcareApp/internal/domain"
)

// PolicyRepository implements domain.PolicyRepository using PostgreSQL.
type PolicyRepository struct {
	pool *pgxpool.Pool
}

// NewPolicyRepository creates a new PolicyRepository.
func NewPolicyRepository(pool *pgxpool.Pool) *PolicyRepository {
	return &PolicyRepository{
		pool: pool,
	}
}

// IsOwnedPolicy reports whether the policy exists and belongs to the member.
func (r *PolicyRepository) IsOwnedPolicy(ctx context.Context, policyID, memberID uuid.UUID) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM policies WHERE id = $1 AND member_id = $2)`

	var owned bool
	if err := conn(ctx, r.pool).QueryRow(ctx, query, policyID, memberID).Scan(&owned); err != nil {
		return false, domain.Transient(fmt.Errorf("failed to look up policy: %w", err))
	}

	return owned, nil
}
