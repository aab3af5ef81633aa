// AngelaMos | 2026
// config_test.go

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/users")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("HOST", "0.0.0.0")
	t.Setenv("PORT", "8080")
	t.Setenv("ENVIRONMENT", "development")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	c, err := load("", "")
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost:5432/users", c.Database.URL)
	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, time.Hour, c.JWT.AccessTokenExpire)
	assert.Equal(t, "master", c.Auth.MasterUsername)
	assert.False(t, c.Auth.HideLockStatus)
	assert.True(t, c.Database.ApplySchema)
	assert.True(t, c.IsDevelopment())
	assert.Equal(t, "0.0.0.0:8080", c.Server.Address())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	setRequiredEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := []byte("server:\n  port: 9000\nauth:\n  master_username: root\n  hide_lock_status: true\n")
	require.NoError(t, os.WriteFile(path, yaml, 0o600))

	t.Setenv("PORT", "9100")

	c, err := load(path, "")
	require.NoError(t, err)

	assert.Equal(t, 9100, c.Server.Port)
	assert.Equal(t, "root", c.Auth.MasterUsername)
	assert.True(t, c.Auth.HideLockStatus)
}

func TestLoad_DotenvFile(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(
		path,
		[]byte("DATABASE_URL=postgres://dotenv/users\nMASTER_PASSWORD=secret\n"),
		0o600,
	))
	for _, key := range []string{"DATABASE_URL", "MASTER_PASSWORD"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	c, err := load("", path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://dotenv/users", c.Database.URL)
	assert.Equal(t, "secret", c.Auth.MasterPassword)
}

func TestLoad_MissingDotenvIsIgnored(t *testing.T) {
	setRequiredEnv(t)

	_, err := load("", filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
}

func TestLoad_MissingConfigFileIsIgnored(t *testing.T) {
	setRequiredEnv(t)

	c, err := load(filepath.Join(t.TempDir(), "absent.yaml"), "")
	require.NoError(t, err)
	assert.Equal(t, 8080, c.Server.Port)
}

func TestLoad_MissingDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	_, err := load("", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL is required")
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Database: DatabaseConfig{URL: "postgres://x"},
			Redis:    RedisConfig{URL: "redis://x"},
			JWT: JWTConfig{
				PrivateKeyPath:    "priv.pem",
				PublicKeyPath:     "pub.pem",
				AccessTokenExpire: time.Minute,
			},
			Server: ServerConfig{
				ReadTimeout:  time.Second,
				WriteTimeout: time.Second,
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(c *Config) {},
		},
		{
			name: "cors wildcard with credentials",
			mutate: func(c *Config) {
				c.CORS.AllowCredentials = true
				c.CORS.AllowedOrigins = []string{"*"}
			},
			wantErr: "CORS wildcard",
		},
		{
			name: "default master password in production",
			mutate: func(c *Config) {
				c.App.Environment = "production"
				c.Auth.MasterPassword = "1"
			},
			wantErr: "MASTER_PASSWORD",
		},
		{
			name: "non positive access token lifetime",
			mutate: func(c *Config) {
				c.JWT.AccessTokenExpire = 0
			},
			wantErr: "access_token_expire",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)

			err := validate(c)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
