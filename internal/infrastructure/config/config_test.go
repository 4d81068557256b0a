package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)

	assert.Equal(t, "bankrec", cfg.App.Name)
	assert.Equal(t, "development", cfg.App.Env)
	assert.Equal(t, "8080", cfg.App.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 4, cfg.Jobs.Workers)
	assert.Equal(t, 2*time.Minute, cfg.Jobs.JobTimeout)
	assert.Equal(t, 500, cfg.Import.BatchSize)
	assert.Equal(t, 1000, cfg.Matching.BatchValidateLimit)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{}
		applyDefaults(cfg)
		return cfg
	}

	t.Run("defaults are valid", func(t *testing.T) {
		assert.NoError(t, valid().validate())
	})

	t.Run("rejects unknown driver", func(t *testing.T) {
		cfg := valid()
		cfg.Database.Driver = "mysql"
		assert.Error(t, cfg.validate())
	})

	t.Run("rejects idle conns above open conns", func(t *testing.T) {
		cfg := valid()
		cfg.Database.MaxIdleConns = 100
		assert.Error(t, cfg.validate())
	})

	t.Run("production requires password and ssl", func(t *testing.T) {
		cfg := valid()
		cfg.App.Env = "production"
		assert.Error(t, cfg.validate())

		cfg.Database.Password = "secret"
		cfg.Database.SSLMode = "require"
		assert.NoError(t, cfg.validate())
	})

	t.Run("production rejects sqlite", func(t *testing.T) {
		cfg := valid()
		cfg.App.Env = "production"
		cfg.Database.Driver = "sqlite"
		cfg.Database.Password = "secret"
		cfg.Database.SSLMode = "require"
		assert.Error(t, cfg.validate())
	})
}

func TestDatabaseDSN(t *testing.T) {
	t.Run("postgres DSN escapes credentials", func(t *testing.T) {
		d := DatabaseConfig{
			Driver:   "postgres",
			Host:     "db.internal",
			Port:     5432,
			User:     "bankrec",
			Password: "p@ss:word",
			DBName:   "bankrec",
			SSLMode:  "require",
		}
		dsn := d.DSN()
		assert.Contains(t, dsn, "postgres://")
		assert.Contains(t, dsn, "db.internal:5432")
		assert.Contains(t, dsn, "sslmode=require")
		assert.NotContains(t, dsn, "p@ss:word")
	})

	t.Run("sqlite DSN is the file path", func(t *testing.T) {
		d := DatabaseConfig{Driver: "sqlite", Path: "test.db"}
		assert.Equal(t, "test.db", d.DSN())
	})
}

func TestLoadUsesDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "bankrec", cfg.App.Name)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
}
