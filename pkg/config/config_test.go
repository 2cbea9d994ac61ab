package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
service:
  name: gateway
  port: 9000
mysql:
  host: db
  user: root
  password: secret
  dbname: storefront
jwt:
  secret: s3cret
  access_ttl: 30m
storage:
  driver: mysql
ratelimit:
  order_create_qps: 50
`

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(sample), 0o600))
	t.Setenv("MYSQL_HOST", "mysql.internal")
	t.Setenv("SERVICE_PORT", "9100")

	c, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "gateway", c.Service.Name)
	assert.Equal(t, 9100, c.Service.Port)
	assert.Equal(t, "mysql.internal", c.Mysql.Host)
	assert.Equal(t, 3306, c.Mysql.Port)
	assert.Equal(t, 30*time.Minute, c.JWT.AccessTTL)
	assert.Equal(t, 24*time.Hour, c.JWT.RefreshTTL)
	assert.Equal(t, 50.0, c.RateLimit.OrderCreateQPS)
	assert.Equal(t, "root:secret@tcp(mysql.internal:3306)/storefront?charset=utf8mb4&parseTime=True&loc=Local", c.Mysql.DSN())
	assert.NoError(t, c.Validate())
}

func TestLoadConfigWithoutFileUsesDefaults(t *testing.T) {
	c, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "memory", c.Storage.Driver)
	assert.Equal(t, "demo", c.Payment.Provider)
	assert.Equal(t, 10*time.Second, c.Payment.Timeout)
	assert.Equal(t, 200*time.Millisecond, c.Mysql.SlowThreshold)

	assert.EqualError(t, c.Validate(), "jwt.secret is required")
	c.JWT.Secret = "x"
	assert.NoError(t, c.Validate())

	c.Payment.Provider = "chapa"
	assert.Error(t, c.Validate())
}
