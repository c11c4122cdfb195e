package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_ShippedFile(t *testing.T) {
	cfg, err := Load("config.yaml")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 10*time.Millisecond, cfg.Retry.BaseDelay)
	assert.Equal(t, time.Minute, cfg.Scheduler.Interval)
	assert.Equal(t, []string{"log", "kafka"}, cfg.Audit.Sinks)
	assert.False(t, cfg.Positions.EarlyExit.Enabled)
	assert.Equal(t, TermsConfig{Rate: 0.12, Duration: 180 * 24 * time.Hour}, cfg.Positions.Staking["vip"])
	assert.Equal(t, 90*24*time.Hour, cfg.Positions.Investments["growth"].Duration)
}

func TestParse_DefaultsAndEnv(t *testing.T) {
	t.Setenv("POSTGRES_PASSWORD", "s3cret")
	t.Setenv("JWT_SECRET", "from-env")

	cfg, err := Parse([]byte("postgres:\n  dsn: host=db\n"))
	require.NoError(t, err)

	assert.Equal(t, "host=db password=s3cret", cfg.Postgres.DSN)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, 4, cfg.Retry.Attempts)
	assert.Equal(t, 5*time.Minute, cfg.Redis.CacheTTL)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, "ledger.audit", cfg.Kafka.AuditTopic)
	assert.Equal(t, []string{"log"}, cfg.Audit.Sinks)
	assert.Len(t, cfg.Positions.Staking, 3)
	assert.Len(t, cfg.Positions.Investments, 3)
}

func TestParse_Invalid(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("POSTGRES_PASSWORD", "")

	cases := map[string]string{
		"missing dsn":    "auth:\n  jwt_secret: x\n",
		"missing secret": "postgres:\n  dsn: host=db\n",
		"bad sink":       "postgres:\n  dsn: host=db\nauth:\n  jwt_secret: x\naudit:\n  sinks: [carrier-pigeon]\n",
		"bad penalty":    "postgres:\n  dsn: host=db\nauth:\n  jwt_secret: x\npositions:\n  early_exit:\n    penalty_rate: 2\n",
		"not yaml":       "postgres: [",
		"zero duration":  "postgres:\n  dsn: host=db\nauth:\n  jwt_secret: x\npositions:\n  staking:\n    basic: {rate: 0.1}\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoad_ConfigPathFromEnv(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "alt.yaml")
	require.NoError(t, os.WriteFile(p, []byte("postgres:\n  dsn: host=alt\nauth:\n  jwt_secret: x\nserver:\n  port: 9999\n"), 0o600))
	t.Setenv("LEDGER_CONFIG", p)
	t.Setenv("POSTGRES_PASSWORD", "")
	t.Setenv("JWT_SECRET", "")

	cfg, err := Load("does-not-exist.yaml")
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "host=alt", cfg.Postgres.DSN)
}
