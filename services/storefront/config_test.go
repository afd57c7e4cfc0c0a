package main

import (
	"net/url"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatabaseConfig_URL(t *testing.T) {
	cfg := DatabaseConfig{
		User:     "shop",
		Password: "p@ss:w/rd?#",
		Host:     "db.internal",
		Port:     "5433",
		Name:     "storefront_db",
	}

	dsn := cfg.URL()

	parsed, err := url.Parse(dsn)
	require.NoError(t, err)
	password, _ := parsed.User.Password()
	assert.Equal(t, "shop", parsed.User.Username())
	assert.Equal(t, "p@ss:w/rd?#", password)
	assert.Equal(t, "db.internal:5433", parsed.Host)
	assert.Equal(t, "/storefront_db", parsed.Path)
	assert.Equal(t, "disable", parsed.Query().Get("sslmode"))

	connCfg, err := pgx.ParseConfig(dsn)
	require.NoError(t, err)
	assert.Equal(t, "p@ss:w/rd?#", connCfg.Password)
	assert.Equal(t, uint16(5433), connCfg.Port)
	assert.Equal(t, "storefront_db", connCfg.Database)
}
