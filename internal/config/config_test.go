package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []int{85, 86}, cfg.Scan.SubDepts)
	assert.Equal(t, 10*time.Second, cfg.Scan.Interval)
	assert.Equal(t, 2, cfg.Scan.DayBoundaryHour)
	assert.Equal(t, "memory", cfg.State.Type)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Address())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SCAN_SUBDEPTS", "85")
	t.Setenv("SCAN_INTERVAL", "30s")
	t.Setenv("STATE_STORE_TYPE", "redis")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("DASHBOARD_API_KEYS", "a,b")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []int{85}, cfg.Scan.SubDepts)
	assert.Equal(t, 30*time.Second, cfg.Scan.Interval)
	assert.Equal(t, "localhost:6380", cfg.State.RedisAddress())
	assert.Equal(t, []string{"a", "b"}, cfg.App.APIKeys)
}

func TestLoad_RejectsUnknownStateStore(t *testing.T) {
	t.Setenv("STATE_STORE_TYPE", "mongodb")

	_, err := Load()
	assert.ErrorContains(t, err, "STATE_STORE_TYPE")
}

func TestLoad_RejectsBoundaryHour(t *testing.T) {
	t.Setenv("SCAN_DAY_BOUNDARY_HOUR", "24")

	_, err := Load()
	assert.Error(t, err)
}

func TestStateConfig_DSN(t *testing.T) {
	s := StateConfig{Type: "mysql", DBUser: "u", DBPassword: "p", DBHost: "db", DBName: "state"}
	driver, dsn, err := s.DSN()
	require.NoError(t, err)
	assert.Equal(t, "mysql", driver)
	assert.Equal(t, "u:p@tcp(db:3306)/state?parseTime=true", dsn)

	s.Type = "postgres"
	driver, dsn, err = s.DSN()
	require.NoError(t, err)
	assert.Equal(t, "postgres", driver)
	assert.Equal(t, "postgres://u:p@db:5432/state?sslmode=", dsn)

	s.Type = "memory"
	_, _, err = s.DSN()
	assert.Error(t, err)
}
