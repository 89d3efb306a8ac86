package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kpibot-inc/kpibot-engine/pkg/services"
)

// UnsupportedKPIRepository persists questions about metrics the catalog
// does not cover, for later review by the catalog owners.
type UnsupportedKPIRepository interface {
	services.UnsupportedKPIAudit
}

type unsupportedKPIRepository struct {
	pool *pgxpool.Pool
}

// NewUnsupportedKPIRepository creates an UnsupportedKPIRepository.
func NewUnsupportedKPIRepository(pool *pgxpool.Pool) UnsupportedKPIRepository {
	return &unsupportedKPIRepository{pool: pool}
}

var _ UnsupportedKPIRepository = (*unsupportedKPIRepository)(nil)

func (r *unsupportedKPIRepository) Record(ctx context.Context, query, timeRange string, scope []string) error {
	sql := `
		INSERT INTO unsupported_kpi_requests (query, time_range, scope)
		VALUES ($1, $2, $3)`

	_, err := r.pool.Exec(ctx, sql, query, timeRange, scope)
	if err != nil {
		return fmt.Errorf("failed to record unsupported kpi request: %w", err)
	}
	return nil
}
