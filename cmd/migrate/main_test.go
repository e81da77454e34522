package main

import (
	"testing"

	"tgmedia/internal/migrations"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveTarget(t *testing.T) {
	tests := []struct {
		name       string
		driver     string
		url        string
		env        string
		path       string
		wantDriver string
		wantDSN    string
		wantErr    bool
	}{
		{"sqlite by default", "", "", "", "./x.db", migrations.DriverSQLite, "./x.db", false},
		{"url selects postgres", "", "postgres://u@h/db", "", "./x.db", migrations.DriverPostgres, "postgres://u@h/db", false},
		{"env url selects postgres", "", "", "postgres://env@h/db", "./x.db", migrations.DriverPostgres, "postgres://env@h/db", false},
		{"explicit sqlite ignores env url", migrations.DriverSQLite, "", "postgres://env@h/db", "./x.db", migrations.DriverSQLite, "./x.db", false},
		{"postgres without url", migrations.DriverPostgres, "", "", "./x.db", "", "", true},
		{"unknown driver", "mysql", "", "", "./x.db", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DATABASE_URL", tt.env)

			driver, dsn, err := resolveTarget(tt.driver, tt.url, tt.path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantDriver, driver)
			assert.Equal(t, tt.wantDSN, dsn)
		})
	}
}
