package repositories

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kpibot-inc/kpibot-engine/pkg/services"
	enginesql "github.com/kpibot-inc/kpibot-engine/pkg/sql"
)

// DimensionRepository resolves free-text tokens against dimension columns
// of the KPI tables. All identifiers are validated before interpolation and
// all values travel as bound parameters.
type DimensionRepository interface {
	services.DimensionLookup

	// UniqueValues lists the distinct values of a column, optionally
	// narrowed by filters, capped at 100 entries.
	UniqueValues(ctx context.Context, table, column string, filters map[string][]string) ([]string, error)
}

type dimensionRepository struct {
	pool *pgxpool.Pool
}

// NewDimensionRepository creates a DimensionRepository over the pool.
func NewDimensionRepository(pool *pgxpool.Pool) DimensionRepository {
	return &dimensionRepository{pool: pool}
}

var _ DimensionRepository = (*dimensionRepository)(nil)

// FindExactMatch looks up value in table.column case-insensitively and
// returns the stored spelling. filters maps additional columns to allowed
// values (equality for one value, IN for several).
func (r *dimensionRepository) FindExactMatch(ctx context.Context, table, column, value string, filters map[string][]string) (string, bool, error) {
	if err := validateIdentifiers(table, column); err != nil {
		return "", false, err
	}

	args := []any{value}
	where := fmt.Sprintf("LOWER(%s) = LOWER($1)", column)

	filterPart, filterArgs, err := buildFilterClause(filters, len(args))
	if err != nil {
		return "", false, err
	}
	where += filterPart
	args = append(args, filterArgs...)

	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s LIMIT 1", column, table, where)

	var match string
	err = r.pool.QueryRow(ctx, sql, args...).Scan(&match)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to look up %s.%s: %w", table, column, err)
	}
	return match, true, nil
}

func (r *dimensionRepository) UniqueValues(ctx context.Context, table, column string, filters map[string][]string) ([]string, error) {
	if err := validateIdentifiers(table, column); err != nil {
		return nil, err
	}

	var args []any
	where := ""
	filterPart, filterArgs, err := buildFilterClause(filters, 0)
	if err != nil {
		return nil, err
	}
	if filterPart != "" {
		where = " WHERE " + strings.TrimPrefix(filterPart, " AND ")
		args = append(args, filterArgs...)
	}

	sql := fmt.Sprintf(
		"SELECT DISTINCT %s FROM %s%s ORDER BY %s LIMIT 100",
		column, table, where, column,
	)

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list values of %s.%s: %w", table, column, err)
	}
	defer rows.Close()

	values := make([]string, 0)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan value: %w", err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating values: %w", err)
	}

	return values, nil
}

// buildFilterClause renders filters as " AND col = $n" / " AND col IN (...)"
// fragments. startIndex is the count of placeholders already used.
func buildFilterClause(filters map[string][]string, startIndex int) (string, []any, error) {
	if len(filters) == 0 {
		return "", nil, nil
	}

	// Deterministic clause order for testability.
	cols := make([]string, 0, len(filters))
	for col := range filters {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	var b strings.Builder
	var args []any
	n := startIndex

	for _, col := range cols {
		vals := filters[col]
		if len(vals) == 0 {
			continue
		}
		if !enginesql.ValidIdentifier(col) {
			return "", nil, fmt.Errorf("invalid filter column %q", col)
		}
		if len(vals) == 1 {
			n++
			fmt.Fprintf(&b, " AND %s = $%d", col, n)
			args = append(args, vals[0])
			continue
		}
		placeholders := make([]string, 0, len(vals))
		for _, v := range vals {
			n++
			placeholders = append(placeholders, fmt.Sprintf("$%d", n))
			args = append(args, v)
		}
		fmt.Fprintf(&b, " AND %s IN (%s)", col, strings.Join(placeholders, ", "))
	}

	return b.String(), args, nil
}

func validateIdentifiers(names ...string) error {
	for _, name := range names {
		if !enginesql.ValidIdentifier(name) {
			return fmt.Errorf("invalid identifier %q", name)
		}
	}
	return nil
}
