package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuardStatement(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"plain select", "SELECT 1", "SELECT 1", false},
		{"trailing semicolon stripped", "SELECT 1;", "SELECT 1", false},
		{"trailing semicolon and whitespace", "SELECT 1 ; \n", "SELECT 1", false},
		{"empty", "", "", false},
		{"interior semicolon", "SELECT 1; DROP TABLE x", "", true},
		{"two statements with trailing", "SELECT 1; SELECT 2;", "", true},
		{
			"semicolon inside single quotes ok",
			"SELECT * FROM t WHERE name = 'a;b'",
			"SELECT * FROM t WHERE name = 'a;b'",
			false,
		},
		{
			"semicolon inside double quotes ok",
			`SELECT "a;b" FROM t`,
			`SELECT "a;b" FROM t`,
			false,
		},
		{
			"semicolon inside backticks ok",
			"SELECT `a;b` FROM t",
			"SELECT `a;b` FROM t",
			false,
		},
		{
			"escaped quote does not close literal",
			`SELECT * FROM t WHERE name = 'a\'; DROP TABLE x --'`,
			`SELECT * FROM t WHERE name = 'a\'; DROP TABLE x --'`,
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := GuardStatement(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMultipleStatements)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidIdentifier(t *testing.T) {
	assert.True(t, ValidIdentifier("st_Month"))
	assert.True(t, ValidIdentifier("fe_headcount"))
	assert.True(t, ValidIdentifier("Table1"))

	assert.False(t, ValidIdentifier(""))
	assert.False(t, ValidIdentifier("fe headcount"))
	assert.False(t, ValidIdentifier("t;drop"))
	assert.False(t, ValidIdentifier("t-1"))
	assert.False(t, ValidIdentifier("t.col"))
}
