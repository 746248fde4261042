package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	originalEnv := map[string]string{
		"CLINIC_APP_NAME":             os.Getenv("CLINIC_APP_NAME"),
		"CLINIC_APP_ENV":              os.Getenv("CLINIC_APP_ENV"),
		"CLINIC_APP_PORT":             os.Getenv("CLINIC_APP_PORT"),
		"CLINIC_DATABASE_HOST":        os.Getenv("CLINIC_DATABASE_HOST"),
		"CLINIC_DATABASE_PORT":        os.Getenv("CLINIC_DATABASE_PORT"),
		"CLINIC_DATABASE_USER":        os.Getenv("CLINIC_DATABASE_USER"),
		"CLINIC_DATABASE_PASSWORD":    os.Getenv("CLINIC_DATABASE_PASSWORD"),
		"CLINIC_DATABASE_DBNAME":      os.Getenv("CLINIC_DATABASE_DBNAME"),
		"CLINIC_DATABASE_SSLMODE":     os.Getenv("CLINIC_DATABASE_SSLMODE"),
		"CLINIC_JWT_SECRET":           os.Getenv("CLINIC_JWT_SECRET"),
		"CLINIC_CACHE_BALANCE_TTL":    os.Getenv("CLINIC_CACHE_BALANCE_TTL"),
		"CLINIC_JOBS_OVERDUE_BATCH_SIZE": os.Getenv("CLINIC_JOBS_OVERDUE_BATCH_SIZE"),
	}

	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	clearEnv := func() {
		for k := range originalEnv {
			os.Unsetenv(k)
		}
	}

	t.Run("loads default values when env vars not set", func(t *testing.T) {
		clearEnv()

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "clinic-billing", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "8080", cfg.App.Port)
		assert.Equal(t, "localhost", cfg.Database.Host)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, "clinic", cfg.Database.DBName)
		assert.Equal(t, "disable", cfg.Database.SSLMode)
		assert.Equal(t, 25, cfg.Database.MaxOpenConns)
		assert.Equal(t, 5*time.Minute, cfg.Cache.BalanceTTL)
		assert.Equal(t, 100, cfg.Jobs.OverdueBatchSize)
	})

	t.Run("loads values from environment variables with CLINIC prefix", func(t *testing.T) {
		clearEnv()
		os.Setenv("CLINIC_APP_NAME", "billing-test")
		os.Setenv("CLINIC_APP_PORT", "9000")
		os.Setenv("CLINIC_DATABASE_HOST", "testdb.local")
		os.Setenv("CLINIC_DATABASE_PORT", "5433")
		os.Setenv("CLINIC_DATABASE_USER", "testuser")
		os.Setenv("CLINIC_DATABASE_PASSWORD", "testpass")
		os.Setenv("CLINIC_DATABASE_DBNAME", "billing")
		os.Setenv("CLINIC_CACHE_BALANCE_TTL", "90s")
		os.Setenv("CLINIC_JOBS_OVERDUE_BATCH_SIZE", "250")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "billing-test", cfg.App.Name)
		assert.Equal(t, "9000", cfg.App.Port)
		assert.Equal(t, "testdb.local", cfg.Database.Host)
		assert.Equal(t, 5433, cfg.Database.Port)
		assert.Equal(t, "testuser", cfg.Database.User)
		assert.Equal(t, "testpass", cfg.Database.Password)
		assert.Equal(t, "billing", cfg.Database.DBName)
		assert.Equal(t, 90*time.Second, cfg.Cache.BalanceTTL)
		assert.Equal(t, 250, cfg.Jobs.OverdueBatchSize)
	})

	t.Run("rejects production without jwt secret", func(t *testing.T) {
		clearEnv()
		os.Setenv("CLINIC_APP_ENV", "production")
		os.Setenv("CLINIC_DATABASE_PASSWORD", "prodpass")
		os.Setenv("CLINIC_DATABASE_SSLMODE", "require")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "jwt.secret")
	})

	t.Run("rejects production with short jwt secret", func(t *testing.T) {
		clearEnv()
		os.Setenv("CLINIC_APP_ENV", "production")
		os.Setenv("CLINIC_JWT_SECRET", "tooshort")
		os.Setenv("CLINIC_DATABASE_PASSWORD", "prodpass")
		os.Setenv("CLINIC_DATABASE_SSLMODE", "require")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "at least 32 characters")
	})

	t.Run("rejects production with sslmode disable", func(t *testing.T) {
		clearEnv()
		os.Setenv("CLINIC_APP_ENV", "production")
		os.Setenv("CLINIC_JWT_SECRET", "a-very-long-secret-key-for-production-use")
		os.Setenv("CLINIC_DATABASE_PASSWORD", "prodpass")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sslmode")
	})
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "db.internal",
		Port:     5432,
		User:     "clinic",
		Password: "p@ss/word",
		DBName:   "billing",
		SSLMode:  "require",
	}

	dsn := cfg.DSN()

	assert.Contains(t, dsn, "postgres://")
	assert.Contains(t, dsn, "db.internal:5432")
	assert.Contains(t, dsn, "sslmode=require")
	// Special characters in the password are escaped
	assert.NotContains(t, dsn, "p@ss/word")
}

func TestRedisConfig_Addr(t *testing.T) {
	cfg := RedisConfig{Host: "cache.internal", Port: 6380}
	assert.Equal(t, "cache.internal:6380", cfg.Addr())
}
