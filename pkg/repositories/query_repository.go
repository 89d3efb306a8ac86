package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kpibot-inc/kpibot-engine/pkg/services"
)

// QueryRepository executes generated KPI statements. The statement has
// already passed the single-statement guard; values arrive as bound
// parameters only.
type QueryRepository interface {
	services.QueryRunner
}

type queryRepository struct {
	pool *pgxpool.Pool
}

// NewQueryRepository creates a QueryRepository over the pool.
func NewQueryRepository(pool *pgxpool.Pool) QueryRepository {
	return &queryRepository{pool: pool}
}

var _ QueryRepository = (*queryRepository)(nil)

func (r *queryRepository) Run(ctx context.Context, statement string, args []any) (*services.QueryResult, error) {
	rows, err := r.pool.Query(ctx, statement, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Name
	}

	result := &services.QueryResult{Columns: columns, Rows: make([]map[string]any, 0)}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read row: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return result, nil
}
