package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"deal_watcher/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("AMO_URL", "https://example.amocrm.ru")
	t.Setenv("AMO_TOKEN", "token")
	t.Setenv("PROF_URL", "https://pb.example.com/api/v4/json")
	t.Setenv("PROF_API_KEY", "key")
	t.Setenv("CRITERION_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 250, cfg.CRM.PageSize)
	assert.Equal(t, 500, cfg.CRM.MaxPages)
	assert.Equal(t, 5, cfg.Profitbase.RPS)
	assert.Equal(t, 30*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, 10*time.Minute, cfg.Scheduler.RunTimeout)
	assert.Equal(t, 72*time.Hour, cfg.Scheduler.RetryWindow)
	assert.Equal(t, models.DefaultCriterion(), cfg.Criterion)
}

func TestLoadMalformedNumbers(t *testing.T) {
	tests := []struct {
		key, val string
	}{
		{"AMO_PAGE_SIZE", "abc"},
		{"SMTP_PORT", "5x"},
		{"HTTP_TIMEOUT", "30"},
		{"SYNC_TIMEOUT", "ten minutes"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(tt.key, tt.val)

			_, err := Load()
			require.Error(t, err)
			assert.ErrorIs(t, err, models.ErrConfig)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestLoadMissingToken(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("AMO_TOKEN", "")

	_, err := Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrConfig)
	assert.Contains(t, err.Error(), "Token")
}

func TestLoadInvalidURL(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PROF_URL", "not a url")

	_, err := Load()
	assert.ErrorIs(t, err, models.ErrConfig)
}

func TestLoadCriterionFile(t *testing.T) {
	setRequiredEnv(t)
	path := filepath.Join(t.TempDir(), "criterion.yaml")
	require.NoError(t, os.WriteFile(path, []byte("field_id: 7\nfield_name: Contract\nvalue: SALE\nenum_id: 9\n"), 0644))
	t.Setenv("CRITERION_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, models.ContractCriterion{FieldID: 7, FieldName: "Contract", Value: "SALE", EnumID: 9}, cfg.Criterion)
}

func TestLoadBadCriterionFile(t *testing.T) {
	setRequiredEnv(t)
	path := filepath.Join(t.TempDir(), "criterion.yaml")
	require.NoError(t, os.WriteFile(path, []byte("field_name: Contract\n"), 0644))
	t.Setenv("CRITERION_FILE", path)

	_, err := Load()
	assert.ErrorIs(t, err, models.ErrConfig)
}
