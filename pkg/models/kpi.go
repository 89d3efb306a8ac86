package models

// KPIDefinition describes one pre-declared KPI template. Definitions are
// loaded once at process start from the KPI catalog and are immutable for
// the process lifetime; the engine never mutates them.
type KPIDefinition struct {
	// Key is the canonical KPI identifier (e.g. "fe_count").
	Key string `yaml:"-"`

	// Description is the human-readable explanation, also searched by the
	// fuzzy catalog lookup.
	Description string `yaml:"description"`

	// Label is the short display name used in summaries and chart titles.
	Label string `yaml:"label"`

	// TableName is the table the sql_template reads from.
	TableName string `yaml:"table_name"`

	// TimeColumn is the column holding the year-month (or fiscal label).
	TimeColumn string `yaml:"time_column"`

	// MonthColumn overrides TimeColumn for filtering and grouping when
	// TimeColumn holds a fiscal label rather than a year-month.
	MonthColumn string `yaml:"month_column"`

	// ScopeColumns maps scope categories to table columns. Categories a
	// KPI does not map are silently dropped from generated conditions.
	ScopeColumns map[string]string `yaml:"scope_columns"`

	// AllowedScopes lists the scope categories this KPI supports, in the
	// order follow-up questions should offer them.
	AllowedScopes []string `yaml:"allowed_scopes"`

	// SQLTemplate contains exactly one SELECT...FROM clause and an
	// optional {conditions} placeholder.
	SQLTemplate string `yaml:"sql_template"`

	// ColumnLabels maps raw result columns to friendly display names for
	// summary tables.
	ColumnLabels map[string]string `yaml:"column_labels"`
}

// EffectiveTimeColumn returns the column used for time filtering, grouping
// and ordering: MonthColumn when declared, TimeColumn otherwise.
func (d *KPIDefinition) EffectiveTimeColumn() string {
	if d.MonthColumn != "" {
		return d.MonthColumn
	}
	return d.TimeColumn
}

// ScopeColumn returns the column mapped to a category, if any.
func (d *KPIDefinition) ScopeColumn(category string) (string, bool) {
	col, ok := d.ScopeColumns[category]
	return col, ok
}
