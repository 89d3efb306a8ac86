package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kpibot-inc/kpibot-engine/pkg/apperrors"
	"github.com/kpibot-inc/kpibot-engine/pkg/models"
	sqlutil "github.com/kpibot-inc/kpibot-engine/pkg/sql"
)

// KPICatalog is the immutable set of KPI definitions, loaded once at process
// start. Lookups never mutate it, so it is safe to share across requests.
type KPICatalog struct {
	defs map[string]*models.KPIDefinition
	keys []string // sorted, for deterministic fuzzy matching
}

// LoadKPICatalog reads and validates the KPI definitions document.
// Identifier validation happens here, at configuration-load time, so the
// query builder can trust every table and column name it interpolates.
func LoadKPICatalog(path string) (*KPICatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read KPI catalog %s: %w", path, err)
	}
	return ParseKPICatalog(data)
}

// ParseKPICatalog parses a KPI definitions YAML document.
func ParseKPICatalog(data []byte) (*KPICatalog, error) {
	var doc struct {
		Definitions map[string]*models.KPIDefinition `yaml:"kpi_definitions"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse KPI catalog: %w", err)
	}
	if len(doc.Definitions) == 0 {
		return nil, fmt.Errorf("KPI catalog declares no kpi_definitions")
	}

	catalog := &KPICatalog{defs: make(map[string]*models.KPIDefinition, len(doc.Definitions))}
	for key, def := range doc.Definitions {
		def.Key = key
		if err := validateDefinition(def); err != nil {
			return nil, fmt.Errorf("invalid KPI %q: %w", key, err)
		}
		catalog.defs[key] = def
		catalog.keys = append(catalog.keys, key)
	}
	sort.Strings(catalog.keys)

	return catalog, nil
}

// validateDefinition checks identifiers and template shape. A template
// without a SELECT...FROM clause is a configuration defect and fails the
// load rather than surfacing at query time.
func validateDefinition(def *models.KPIDefinition) error {
	if def.TableName == "" || !sqlutil.ValidIdentifier(def.TableName) {
		return fmt.Errorf("table_name %q is not a valid identifier", def.TableName)
	}
	if def.TimeColumn == "" || !sqlutil.ValidIdentifier(def.TimeColumn) {
		return fmt.Errorf("time_column %q is not a valid identifier", def.TimeColumn)
	}
	if def.MonthColumn != "" && !sqlutil.ValidIdentifier(def.MonthColumn) {
		return fmt.Errorf("month_column %q is not a valid identifier", def.MonthColumn)
	}
	for category, col := range def.ScopeColumns {
		if !sqlutil.ValidIdentifier(col) {
			return fmt.Errorf("scope column %q for category %q is not a valid identifier", col, category)
		}
	}
	if def.SQLTemplate != "" {
		if _, _, err := sqlutil.SplitSelectFrom(def.SQLTemplate); err != nil {
			return fmt.Errorf("sql_template: %w", err)
		}
	}
	return nil
}

// Get returns the definition for an exact key match.
func (c *KPICatalog) Get(key string) (*models.KPIDefinition, bool) {
	def, ok := c.defs[key]
	return def, ok
}

// Resolve finds a definition by key, falling back to a fuzzy lookup: a
// case-insensitive substring match of the requested name against each key or
// description, first match (in sorted key order) wins.
func (c *KPICatalog) Resolve(name string) (*models.KPIDefinition, bool) {
	if def, ok := c.defs[name]; ok {
		return def, true
	}
	needle := strings.ToLower(name)
	if needle == "" {
		return nil, false
	}
	for _, key := range c.keys {
		def := c.defs[key]
		if strings.Contains(strings.ToLower(key), needle) ||
			strings.Contains(strings.ToLower(def.Description), needle) {
			return def, true
		}
	}
	return nil, false
}

// Lookup is Resolve in error form for HTTP handlers.
func (c *KPICatalog) Lookup(name string) (*models.KPIDefinition, error) {
	if def, ok := c.Resolve(name); ok {
		return def, nil
	}
	return nil, fmt.Errorf("%w: %s", apperrors.ErrUnknownKPI, name)
}

// Keys returns the sorted KPI keys.
func (c *KPICatalog) Keys() []string {
	out := make([]string, len(c.keys))
	copy(out, c.keys)
	return out
}

// Descriptions returns key→description for prompt construction.
func (c *KPICatalog) Descriptions() map[string]string {
	out := make(map[string]string, len(c.defs))
	for key, def := range c.defs {
		out[key] = def.Description
	}
	return out
}
