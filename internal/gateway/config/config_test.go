package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("REPORT_STORE", "")
	t.Setenv("MODEL", "")
	t.Setenv("SEARCH_PROVIDER", "")
	t.Setenv("TASK_TIMEOUT", "")

	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, ":8081", cfg.Port)
	assert.Equal(t, "disk", cfg.Store.Backend)
	assert.Equal(t, "gemini/gemini-2.5-flash", cfg.LLM.Model)
	assert.Equal(t, "serper", cfg.Search.Provider)
	assert.Equal(t, 10*time.Minute, cfg.TaskTimeout)
	assert.Equal(t, 1, cfg.LLM.RetryAttempts)
}

func TestParseEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("REPORT_STORE", "SQLite")
	t.Setenv("TASK_TIMEOUT", "45")
	t.Setenv("LLM_RPS", "0.5")
	t.Setenv("SEARCH_PROVIDER", "searxng")
	t.Setenv("SEARXNG_URL", "http://searx:8080")

	cfg, err := Parse([]string{"-port", ":7000"})
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Port, "PORT wins over -port")
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, 45*time.Second, cfg.TaskTimeout)
	assert.Equal(t, 0.5, cfg.LLM.RPS)
	assert.Equal(t, "http://searx:8080", cfg.Search.SearxngURL)
}

func TestValidate(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("SEARCH_PROVIDER", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("ARTIFACT_S3_ENDPOINT", "")
	t.Setenv("ARTIFACT_MINIO_ENDPOINT", "")

	t.Setenv("REPORT_STORE", "postgres")
	_, err := Parse(nil)
	assert.ErrorContains(t, err, "DATABASE_URL")

	t.Setenv("REPORT_STORE", "s3")
	_, err = Parse(nil)
	assert.ErrorContains(t, err, "ARTIFACT_S3_ENDPOINT")

	t.Setenv("REPORT_STORE", "floppy")
	_, err = Parse(nil)
	assert.ErrorContains(t, err, "unknown REPORT_STORE")

	t.Setenv("REPORT_STORE", "memory")
	t.Setenv("SEARCH_PROVIDER", "bing")
	_, err = Parse(nil)
	assert.ErrorContains(t, err, "unknown SEARCH_PROVIDER")
}

func TestArtifactConfig(t *testing.T) {
	t.Setenv("ARTIFACT_S3_ENDPOINT", "")
	t.Setenv("ARTIFACT_MINIO_ENDPOINT", "minio:9000")
	t.Setenv("ARTIFACT_S3_ACCESS_KEY", "")
	t.Setenv("MINIO_ROOT_USER", "admin")
	t.Setenv("ARTIFACT_S3_SECRET_KEY", "secret")
	t.Setenv("ARTIFACT_S3_USE_SSL", "")

	a := loadArtifactConfig("local")
	assert.Equal(t, "minio:9000", a.Endpoint)
	assert.Equal(t, "admin", a.AccessKey)
	assert.False(t, a.UseSSL)
	assert.True(t, a.CanUseS3())

	a = loadArtifactConfig("production")
	assert.Empty(t, a.Endpoint)
	assert.True(t, a.UseSSL)
	assert.False(t, a.CanUseS3())
}
