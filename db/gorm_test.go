package db

import (
	"strings"
	"testing"

	"mediacore/config"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDSN(t *testing.T) {
	cfg := &config.Config{
		DBUser:     "svc",
		DBPassword: "p@ss",
		DBHost:     "db.local",
		DBPort:     "3307",
		DBName:     "media",
	}

	dsn := DSN(cfg)
	assert.True(t, strings.HasPrefix(dsn, "svc:p@ss@tcp(db.local:3307)/media?"))

	parsed, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)
	assert.True(t, parsed.ParseTime)
	assert.Contains(t, dsn, "charset=utf8mb4")
	assert.Equal(t, "'READ-COMMITTED'", parsed.Params["transaction_isolation"])
}

func TestAutoMigrateRequiresDB(t *testing.T) {
	assert.Error(t, AutoMigrate(nil))
}
