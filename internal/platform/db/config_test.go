package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestConfigUnmarshal(t *testing.T) {
	raw := `
version: "1.0"
mode: dev
database:
  host: localhost
  port: 3306
  user: biblio
  password: secret
  dbname: biblio
scanner:
  interval: 1h30m
jwt_secret: s3cret
`
	var cfg Config
	require.NoError(t, yaml.Unmarshal([]byte(raw), &cfg))

	assert.Equal(t, "dev", cfg.Mode)
	assert.Equal(t, "biblio", cfg.DB.DBName)
	assert.Equal(t, Duration(90*time.Minute), cfg.Scanner.Interval)
	assert.Equal(t, "s3cret", cfg.JWTSecret)
}

func TestConfigUnmarshalBadInterval(t *testing.T) {
	var cfg Config
	err := yaml.Unmarshal([]byte("scanner:\n  interval: soon\n"), &cfg)
	assert.Error(t, err)
}

func TestConfigUnmarshalEmptyInterval(t *testing.T) {
	var cfg Config
	require.NoError(t, yaml.Unmarshal([]byte("scanner:\n  interval: \"\"\n"), &cfg))
	assert.Equal(t, Duration(0), cfg.Scanner.Interval)
}
