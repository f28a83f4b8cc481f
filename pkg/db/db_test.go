package db

import (
	"testing"

	"github.com/smallbiznis/payrecon/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialect(t *testing.T) {
	for _, dbType := range []string{"postgres", "mysql", "sqlite", "POSTGRESQL"} {
		d, err := Dialect(config.Config{DBType: dbType, DBName: "payrecon"})
		require.NoError(t, err, dbType)
		assert.NotNil(t, d)
	}

	_, err := Dialect(config.Config{DBType: "oracle"})
	assert.Error(t, err)
}

func TestOpenRejectsUnknownDialect(t *testing.T) {
	_, err := Open(config.Config{DBType: "mssql"}, Options{})
	assert.Error(t, err)
}
