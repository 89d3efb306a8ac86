package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kpibot-inc/kpibot-engine/pkg/models"
	"github.com/kpibot-inc/kpibot-engine/pkg/sql"
)

// QueryResult is the tabular outcome of one executed KPI query. Columns
// preserve the statement's projection order; rows map column name to value.
type QueryResult struct {
	Columns []string
	Rows    []map[string]any
}

// QueryRunner executes a single guarded statement with bound arguments.
type QueryRunner interface {
	Run(ctx context.Context, statement string, args []any) (*QueryResult, error)
}

// QueryService turns resolved slots into executed queries. Generation,
// guarding, and execution are separate steps so the chart and download
// endpoints can reuse the generated SQL without re-resolving slots.
type QueryService struct {
	runner QueryRunner
	logger *zap.Logger
}

// NewQueryService creates the service. runner may be nil for generate-only
// deployments; Execute then fails cleanly.
func NewQueryService(runner QueryRunner, logger *zap.Logger) *QueryService {
	return &QueryService{runner: runner, logger: logger.Named("query")}
}

// Build generates the month/value aggregation for the resolved slots and
// runs it through the single-statement guard.
func (s *QueryService) Build(def *models.KPIDefinition, timeRange string, scope *models.ScopeSet) (*sql.Query, error) {
	q, err := sql.BuildQuery(def, timeRange, scope)
	if err != nil {
		return nil, err
	}
	return s.guard(q)
}

// BuildDetail generates the row-level SELECT * variant used for export.
func (s *QueryService) BuildDetail(def *models.KPIDefinition, timeRange string, scope *models.ScopeSet) (*sql.Query, error) {
	q, err := sql.BuildDetailQuery(def, timeRange, scope)
	if err != nil {
		return nil, err
	}
	return s.guard(q)
}

func (s *QueryService) guard(q *sql.Query) (*sql.Query, error) {
	guarded, err := sql.GuardStatement(q.SQL)
	if err != nil {
		return nil, err
	}
	q.SQL = guarded
	for _, tok := range q.DroppedScope {
		s.logger.Warn("scope token dropped from query",
			zap.String("category", tok.Category),
			zap.String("value", tok.Value),
		)
	}
	return q, nil
}

// Execute builds and runs the aggregation query.
func (s *QueryService) Execute(ctx context.Context, def *models.KPIDefinition, timeRange string, scope *models.ScopeSet) (*QueryResult, *sql.Query, error) {
	q, err := s.Build(def, timeRange, scope)
	if err != nil {
		return nil, nil, err
	}
	result, err := s.run(ctx, def, q)
	if err != nil {
		return nil, nil, err
	}
	return result, q, nil
}

// ExecuteDetail builds and runs the detail query.
func (s *QueryService) ExecuteDetail(ctx context.Context, def *models.KPIDefinition, timeRange string, scope *models.ScopeSet) (*QueryResult, *sql.Query, error) {
	q, err := s.BuildDetail(def, timeRange, scope)
	if err != nil {
		return nil, nil, err
	}
	result, err := s.run(ctx, def, q)
	if err != nil {
		return nil, nil, err
	}
	return result, q, nil
}

func (s *QueryService) run(ctx context.Context, def *models.KPIDefinition, q *sql.Query) (*QueryResult, error) {
	if s.runner == nil {
		return nil, fmt.Errorf("no query runner configured")
	}
	result, err := s.runner.Run(ctx, q.SQL, q.Args)
	if err != nil {
		s.logger.Error("query execution failed",
			zap.String("kpi", def.Key),
			zap.Error(err),
		)
		return nil, fmt.Errorf("execute query for %s: %w", def.Key, err)
	}
	s.logger.Debug("query executed",
		zap.String("kpi", def.Key),
		zap.Int("rows", len(result.Rows)),
	)
	return result, nil
}
